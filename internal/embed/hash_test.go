package embed

import (
	"context"
	"math"
	"testing"
)

// TestHashEmbedderDeterministic verifies identical input yields identical
// vectors.
func TestHashEmbedderDeterministic(t *testing.T) {
	t.Parallel()

	e := NewHashEmbedder(128)
	ctx := context.Background()

	a, err := e.EmbedOne(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("EmbedOne() error = %v", err)
	}
	b, _ := e.EmbedOne(ctx, "the quick brown fox")

	if len(a) != 128 {
		t.Fatalf("vector dimension = %d, want 128", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

// TestHashEmbedderNormalized verifies non-empty vectors are unit length.
func TestHashEmbedderNormalized(t *testing.T) {
	t.Parallel()

	e := NewHashEmbedder(256)
	vec, _ := e.EmbedOne(context.Background(), "some sentence about web crawling")

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Fatalf("squared norm = %f, want 1", norm)
	}
}

// TestHashEmbedderSimilarity verifies overlapping texts score closer than
// unrelated ones.
func TestHashEmbedderSimilarity(t *testing.T) {
	t.Parallel()

	e := NewHashEmbedder(384)
	ctx := context.Background()

	q, _ := e.EmbedOne(ctx, "how do I install the database")
	near, _ := e.EmbedOne(ctx, "to install the database run the setup script")
	far, _ := e.EmbedOne(ctx, "quarterly revenue grew across all regions")

	if dot(q, near) <= dot(q, far) {
		t.Fatalf("related text not closer: near=%f far=%f", dot(q, near), dot(q, far))
	}
}

// TestHashEmbedderBatchShape verifies one vector per input, including
// empty texts.
func TestHashEmbedderBatchShape(t *testing.T) {
	t.Parallel()

	e := NewHashEmbedder(64)
	out, err := e.EmbedBatch(context.Background(), []string{"one", "", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("batch size = %d, want 3", len(out))
	}
	for i, v := range out {
		if len(v) != 64 {
			t.Errorf("vector[%d] dimension = %d, want 64", i, len(v))
		}
	}
	// Empty text embeds to the zero vector.
	for _, v := range out[1] {
		if v != 0 {
			t.Fatal("empty text should produce a zero vector")
		}
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
