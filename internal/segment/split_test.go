package segment

import (
	"strings"
	"testing"
)

// TestSplitSentences verifies terminators stay attached and whitespace
// between sentences is consumed.
func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "basic",
			input: "First sentence. Second one! Third?",
			want:  []string{"First sentence.", "Second one!", "Third?"},
		},
		{
			name:  "multiple spaces and newlines",
			input: "One.  Two.\nThree.",
			want:  []string{"One.", "Two.", "Three."},
		},
		{
			name:  "no terminator",
			input: "just a fragment without punctuation",
			want:  []string{"just a fragment without punctuation"},
		},
		{
			name:  "period without following space does not split",
			input: "version 1.2 is out. really",
			want:  []string{"version 1.2 is out.", "really"},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SplitSentences(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitSentences() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestChunkTextRespectsSize verifies chunks never exceed the size bound
// when sentences fit within it.
func TestChunkTextRespectsSize(t *testing.T) {
	t.Parallel()

	text := strings.TrimSpace(strings.Repeat("This is a short sentence. ", 40))
	chunks := ChunkText(text, 100, 30)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk[%d] has %d chars, want <= 100", i, len(c))
		}
	}
}

// TestChunkTextOverlap verifies consecutive chunks share trailing content.
func TestChunkTextOverlap(t *testing.T) {
	t.Parallel()

	text := "Alpha one two. Beta three four. Gamma five six. Delta seven eight. Epsilon nine ten."
	chunks := ChunkText(text, 40, 20)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d: %q", len(chunks), chunks)
	}
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		// The carried sentence from the previous chunk starts the next one.
		firstSentence := SplitSentences(chunks[i])[0]
		if !strings.Contains(prev, firstSentence) {
			t.Errorf("chunk[%d] does not start with overlap from chunk[%d]: %q / %q",
				i, i-1, chunks[i], prev)
		}
	}
}

// TestChunkTextForceSplit verifies a single oversized sentence is split
// at a space near the boundary.
func TestChunkTextForceSplit(t *testing.T) {
	t.Parallel()

	long := strings.TrimSpace(strings.Repeat("word ", 60)) // 299 chars, no terminator
	chunks := ChunkText(long, 100, 20)

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk[%d] has %d chars, want <= 100", i, len(c))
		}
	}
}

// TestChunkTextForceSplitNoSpace verifies an unbroken oversized token is
// cut at the boundary itself.
func TestChunkTextForceSplitNoSpace(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 250)
	chunks := ChunkText(long, 100, 20)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Errorf("chunk lengths = %d,%d,%d, want 100,100,50",
			len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

// TestChunkTextEmpty verifies blank input yields no chunks.
func TestChunkTextEmpty(t *testing.T) {
	t.Parallel()

	if got := ChunkText("   ", 100, 20); len(got) != 0 {
		t.Fatalf("expected no chunks, got %q", got)
	}
}
