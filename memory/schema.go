package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Field names of the record layout every memory table is created with.
const (
	IDField     = "id"
	TextField   = "text"
	VectorField = "vector"
)

// Schema describes the record layout of a memory table: an ID field, a raw
// text field that feeds the embedder, and a vector field of fixed size.
type Schema struct {
	IDField     string
	TextField   string
	VectorField string
	Dimensions  int

	embedder Embedder
}

// Source is the text-ingestion hook: it returns the text a record's vector
// is derived from.
func (s *Schema) Source(rec Record) string {
	return rec.Text
}

// Embed is the vector-production hook engines call at insert and search
// time. Its signature matches chromem.EmbeddingFunc.
func (s *Schema) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vec) != s.Dimensions {
		return nil, fmt.Errorf("%w: got %d, schema has %d", ErrDimensionMismatch, len(vec), s.Dimensions)
	}
	return vec, nil
}

// HasField reports whether name is one of the schema's filterable fields.
func (s *Schema) HasField(name string) bool {
	return name == s.IDField || name == s.TextField
}

// NewSchema builds a schema around embedder with a known dimensionality.
// Most callers should go through SchemaCache instead.
func NewSchema(embedder Embedder, dims int) *Schema {
	return &Schema{
		IDField:     IDField,
		TextField:   TextField,
		VectorField: VectorField,
		Dimensions:  dims,
		embedder:    embedder,
	}
}

// SchemaCache derives the Schema for an embedder once and serves the same
// value afterwards. Safe for concurrent use.
type SchemaCache struct {
	embedder Embedder
	schema   atomic.Pointer[Schema]
	mu       sync.Mutex
}

// NewSchemaCache creates an empty cache bound to embedder.
func NewSchemaCache(embedder Embedder) *SchemaCache {
	return &SchemaCache{embedder: embedder}
}

// Schema returns the cached schema, deriving it on first call by asking the
// embedder for its dimensionality. A failed derivation is not cached; the
// next call tries again.
func (c *SchemaCache) Schema(ctx context.Context) (*Schema, error) {
	if s := c.schema.Load(); s != nil {
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring lock
	if s := c.schema.Load(); s != nil {
		return s, nil
	}

	if c.embedder == nil {
		return nil, &ConfigurationError{Op: "derive schema", Err: fmt.Errorf("no embedder configured")}
	}

	dims, err := c.embedder.Dimensions(ctx)
	if err != nil {
		return nil, &ConfigurationError{Op: "derive schema", Err: fmt.Errorf("embedder dimensions: %w", err)}
	}
	if dims <= 0 {
		return nil, &ConfigurationError{Op: "derive schema", Err: fmt.Errorf("embedder reported %d dimensions", dims)}
	}

	s := NewSchema(c.embedder, dims)
	c.schema.Store(s)
	return s, nil
}
