package mock

import (
	"context"
	"math"
	"testing"
)

func TestEmbedDeterministicUnitVectors(t *testing.T) {
	ctx := context.Background()
	e := NewWithDimensions(64)

	a, _ := e.Embed(ctx, "buy milk")
	b, _ := e.Embed(ctx, "buy milk")
	c, _ := e.Embed(ctx, "buy eggs")

	if len(a) != 64 {
		t.Fatalf("expected 64 dimensions, got %d", len(a))
	}

	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same text embedded differently at %d", i)
		}
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Fatal("different texts produced identical embeddings")
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Fatalf("expected unit vector, got squared norm %v", norm)
	}
}

func TestCallCounters(t *testing.T) {
	ctx := context.Background()
	e := New()

	e.Embed(ctx, "x")
	e.Embed(ctx, "y")
	dims, err := e.Dimensions(ctx)
	if err != nil || dims != DefaultDimensions {
		t.Fatalf("Dimensions = %d, %v", dims, err)
	}

	if e.EmbedCalls() != 2 || e.DimensionsCalls() != 1 {
		t.Fatalf("unexpected counters: embed=%d dims=%d", e.EmbedCalls(), e.DimensionsCalls())
	}
}
