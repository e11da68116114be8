package memory

import (
	"context"
	"fmt"
)

// Provider is the capability set every memory backend offers.
// Implementations: Manager (local engines), rpc.Client (remote memoryd).
//
// Spaces are independent: records added under one key are never visible
// through another key.
type Provider interface {
	// Add stores content in the space for key and returns the generated ID.
	Add(ctx context.Context, key string, content string) (string, error)

	// Delete removes every record in the space whose ID equals id.
	// Deleting an unknown ID is a no-op.
	Delete(ctx context.Context, key string, id string) error

	// Search returns up to limit records most similar to query, as a map
	// from record ID to text. Map order carries no meaning.
	Search(ctx context.Context, key string, query string, limit int) (map[string]string, error)
}

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (local model), openai, google, cache (decorator).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the embedding vector size. Remote embedders may
	// need a network round trip to answer, so callers should cache it.
	Dimensions(ctx context.Context) (int, error)
}

// Engine is the vector storage backend.
// Implementations: store/chromem, store/postgres, store/sqlite, store/hnsw.
type Engine interface {
	// Connect returns a connection to the storage rooted at location.
	// Engines may pool connections per location.
	Connect(ctx context.Context, location string) (Connection, error)
}

// Connection opens and creates tables.
type Connection interface {
	// OpenTable opens an existing table. It must return an error wrapping
	// ErrTableNotFound when no table with that name exists, and should reject
	// tables whose vector size differs from schema.Dimensions.
	OpenTable(ctx context.Context, name string, schema *Schema) (Table, error)

	// CreateTable creates a table laid out by schema. It must return an error
	// wrapping ErrTableExists when the table already exists, including when
	// another caller created it concurrently.
	CreateTable(ctx context.Context, name string, schema *Schema) (Table, error)
}

// Table is a handle to one memory space's physical storage.
type Table interface {
	// Insert stores records. The vector of each record is produced by the
	// table's schema from the record text; any caller-supplied vector is ignored.
	Insert(ctx context.Context, records ...Record) error

	// DeleteWhere removes all records matching filter.
	DeleteWhere(ctx context.Context, filter Filter) error

	// Search embeds query with the table's schema and returns up to limit
	// records, closest first.
	Search(ctx context.Context, query string, limit int) ([]Record, error)
}

// Record is the atomic stored unit.
type Record struct {
	ID     string
	Text   string
	Vector []float32

	// Score is the engine's similarity for search results (higher is closer).
	// Zero for records that did not come from a search.
	Score float32
}

// Filter is an equality predicate over one schema field. Engines bind Value
// as a query parameter or pass it to a native ID API; it is never spliced
// into query text.
type Filter struct {
	Field string
	Value string
}

// Equals builds a filter matching records whose field equals value.
func Equals(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

func (f Filter) String() string {
	return fmt.Sprintf("%s = %q", f.Field, f.Value)
}
