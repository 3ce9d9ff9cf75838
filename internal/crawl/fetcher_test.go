package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quarrylabs/quarry/internal/rag"
)

// TestFetcherFetch verifies a plain GET returns status and body.
func TestFetcherFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "quarry-test" {
			t.Errorf("User-Agent = %q, want quarry-test", ua)
		}
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{UserAgent: "quarry-test", Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), rag.FetchRequest{JobID: "j", URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != "<html><body>hello</body></html>" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Rendered {
		t.Error("plain fetch should not be marked rendered")
	}
}

// TestFetcherServerError verifies a 500 surfaces as an error with the
// status recorded.
func TestFetcherServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), rag.FetchRequest{JobID: "j", URL: srv.URL})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if resp.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
}

// TestFetcherCanceledContext verifies cancellation aborts the fetch.
func TestFetcherCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher(FetcherConfig{Timeout: 30 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := f.Fetch(ctx, rag.FetchRequest{JobID: "j", URL: srv.URL}); err == nil {
		t.Fatal("expected cancellation error")
	}
}
