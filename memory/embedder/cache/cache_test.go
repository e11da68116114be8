package cache_test

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/becomeliminal/nim-memory/memory/embedder/cache"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
)

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := mock.NewWithDimensions(16)

	c, err := cache.New(inner, cache.Config{MaxEntries: 100})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	first, err := c.Embed(ctx, "buy milk")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	c.Wait()

	second, err := c.Embed(ctx, "buy milk")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if got := inner.EmbedCalls(); got != 1 {
		t.Fatalf("expected 1 inner Embed call, got %d", got)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached embedding differs at %d", i)
		}
	}

	if _, err := c.Embed(ctx, "buy eggs"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if got := inner.EmbedCalls(); got != 2 {
		t.Fatalf("expected 2 inner Embed calls, got %d", got)
	}
}

func TestCachedEmbedderForwardsDimensions(t *testing.T) {
	inner := mock.NewWithDimensions(16)
	c, err := cache.New(inner, cache.Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	dims, err := c.Dimensions(context.Background())
	if err != nil || dims != 16 {
		t.Fatalf("Dimensions = %d, %v", dims, err)
	}
	if inner.DimensionsCalls() != 1 {
		t.Fatal("expected Dimensions to reach the wrapped embedder")
	}
}

func TestCachedEmbedderRejectedSetsAreQuiet(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	c, err := cache.New(mock.NewWithDimensions(8), cache.Config{MaxEntries: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	for i := 0; i < 200; i++ {
		if _, err := c.Embed(context.Background(), fmt.Sprintf("fact %d", i)); err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
	}
	c.Wait()

	if buf.Len() != 0 {
		t.Fatalf("expected no log output, got %q", buf.String())
	}
}
