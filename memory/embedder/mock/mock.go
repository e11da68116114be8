package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// MockEmbedder is a simple mock embedder for testing.
// It generates deterministic embeddings based on text hash.
type MockEmbedder struct {
	dimensions int

	embedCalls      atomic.Int64
	dimensionsCalls atomic.Int64
}

// New creates a new mock embedder with DefaultDimensions.
func New() *MockEmbedder {
	return NewWithDimensions(DefaultDimensions)
}

// NewWithDimensions creates a mock embedder producing vectors of size dims.
func NewWithDimensions(dims int) *MockEmbedder {
	return &MockEmbedder{dimensions: dims}
}

// Embed creates a deterministic embedding from text.
// Uses hash-based generation for consistent results.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)

	// Hash the text
	h := fnv.New64a()
	h.Write([]byte(text))
	hash := h.Sum64()

	embedding := make([]float32, m.dimensions)

	// Use hash as seed for pseudo-random generation
	seed := hash
	for i := 0; i < m.dimensions; i++ {
		// Simple LCG (Linear Congruential Generator)
		seed = seed*6364136223846793005 + 1442695040888963407
		// Convert to [-1, 1] range
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions(ctx context.Context) (int, error) {
	m.dimensionsCalls.Add(1)
	return m.dimensions, nil
}

// EmbedCalls reports how many times Embed ran.
func (m *MockEmbedder) EmbedCalls() int64 {
	return m.embedCalls.Load()
}

// DimensionsCalls reports how many times Dimensions ran.
func (m *MockEmbedder) DimensionsCalls() int64 {
	return m.dimensionsCalls.Load()
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
