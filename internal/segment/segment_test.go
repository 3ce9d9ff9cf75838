package segment

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/hash/sha256"
	"github.com/quarrylabs/quarry/internal/rag"
)

const samplePage = `<html>
<head><title>Release Notes</title><style>body{color:red}</style></head>
<body>
<nav>Home | About</nav>
<article>
<h1>Version 2 released.</h1>
<p>The new release improves indexing speed. It also fixes several crashes.
Upgrading is recommended for all users.</p>
</article>
<script>console.log("tracking")</script>
<footer>Copyright 2026</footer>
</body>
</html>`

// TestCleanHTMLStripsBoilerplate verifies scripts, styles, nav and footer
// are removed and whitespace is collapsed.
func TestCleanHTMLStripsBoilerplate(t *testing.T) {
	t.Parallel()

	got := CleanHTML(samplePage)

	for _, banned := range []string{"tracking", "color:red", "Home | About", "Copyright"} {
		if strings.Contains(got, banned) {
			t.Errorf("cleaned text contains boilerplate %q", banned)
		}
	}
	if !strings.Contains(got, "improves indexing speed") {
		t.Errorf("cleaned text missing article body: %q", got)
	}
	if strings.Contains(got, "\n") || strings.Contains(got, "  ") {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}

// TestCleanHTMLEmpty verifies blank input yields empty output.
func TestCleanHTMLEmpty(t *testing.T) {
	t.Parallel()

	if got := CleanHTML("   "); got != "" {
		t.Fatalf("CleanHTML(blank) = %q, want empty", got)
	}
}

// TestTitle verifies title extraction.
func TestTitle(t *testing.T) {
	t.Parallel()

	if got := Title(samplePage); got != "Release Notes" {
		t.Fatalf("Title() = %q, want %q", got, "Release Notes")
	}
}

// TestSegmentProducesOffsets verifies chunk offsets index back into the
// cleaned text and metadata carries the source URL.
func TestSegmentProducesOffsets(t *testing.T) {
	t.Parallel()

	seg := New(80, 20, sha256.New(), zap.NewNop())
	doc := &rag.Document{
		URL:         "https://example.com/releases",
		HTMLContent: samplePage,
	}

	chunks := seg.Segment(doc)
	if len(chunks) == 0 {
		t.Fatal("expected chunks, got none")
	}
	if doc.TextContent == "" {
		t.Fatal("Segment did not populate TextContent")
	}

	seen := map[string]bool{}
	for i, c := range chunks {
		if c.DocumentURL != doc.URL {
			t.Errorf("chunk[%d].DocumentURL = %q", i, c.DocumentURL)
		}
		if got := doc.TextContent[c.StartIndex:c.EndIndex]; got != c.TextContent {
			t.Errorf("chunk[%d] offsets do not recover text: %q vs %q", i, got, c.TextContent)
		}
		if c.Metadata["source"] != doc.URL {
			t.Errorf("chunk[%d] missing source metadata", i)
		}
		if c.Metadata["title"] != "Release Notes" {
			t.Errorf("chunk[%d] missing title metadata", i)
		}
		if seen[c.ChunkID] {
			t.Errorf("duplicate chunk id %q", c.ChunkID)
		}
		seen[c.ChunkID] = true
		if !strings.HasPrefix(c.ChunkID, "example.com-") {
			t.Errorf("chunk id %q does not embed host", c.ChunkID)
		}
	}
}

// TestSegmentNoHTML verifies documents without HTML yield no chunks.
func TestSegmentNoHTML(t *testing.T) {
	t.Parallel()

	seg := New(500, 50, sha256.New(), zap.NewNop())
	doc := &rag.Document{URL: "https://example.com/empty"}

	if got := seg.Segment(doc); len(got) != 0 {
		t.Fatalf("expected no chunks, got %d", len(got))
	}
}
