package crawl

import (
	"bytes"

	"github.com/quarrylabs/quarry/internal/rag"
)

// Detector decides when a plain fetch should be retried with a headless
// browser, using rule-based heuristics over the response body.
type Detector struct {
	BodyLengthThreshold int
}

// NewDetector creates a Detector. A zero threshold selects the default.
func NewDetector(threshold int) *Detector {
	if threshold == 0 {
		threshold = 2048
	}
	return &Detector{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldPromote reports whether a headless render is likely to produce
// meaningfully more content than the plain response.
func (d *Detector) ShouldPromote(resp rag.FetchResponse) bool {
	if resp.StatusCode != 200 || resp.Rendered {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	if len(resp.Body) < d.BodyLengthThreshold {
		for _, marker := range spaMarkers {
			if bytes.Contains(resp.Body, marker) {
				return true
			}
		}
	}
	return false
}
