// Package noop contains a publisher that discards all events.
package noop

import "context"

// Publisher drops every event. It is the default when no event
// transport is configured, so pipeline code can publish unconditionally.
type Publisher struct{}

// New returns a noop Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish discards the payload.
func (p *Publisher) Publish(context.Context, string, any) (string, error) {
	return "", nil
}
