package chromem

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-memory/memory"
)

// ChromemStore is a memory.Engine backed by chromem-go, a pure Go embedded
// vector database. Each memory table is a chromem collection.
//
// An empty location keeps everything in memory; any other location is a
// directory chromem persists collections under.
type ChromemStore struct {
	options Options
	conns   map[string]*connection // Per-location databases
	mu      sync.Mutex
}

var _ memory.Engine = (*ChromemStore)(nil)

// New creates a new chromem-based engine.
func New(opts ...Option) *ChromemStore {
	return &ChromemStore{
		options: NewOptions(opts...),
		conns:   make(map[string]*connection),
	}
}

// Connect returns the database for location, opening it on first use.
// chromem keeps one writer per directory, so databases are shared.
func (s *ChromemStore) Connect(ctx context.Context, location string) (memory.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, exists := s.conns[location]; exists {
		return conn, nil
	}

	var db *chromem.DB
	if location == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(location, s.options.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", location, err)
		}
		log.Printf("[CHROMEM] Opened persistent db at %s", location)
	}

	conn := &connection{db: db, options: s.options}
	s.conns[location] = conn
	return conn, nil
}

type connection struct {
	db      *chromem.DB
	options Options
	mu      sync.Mutex // Serialises collection creation
}

func (c *connection) OpenTable(ctx context.Context, name string, schema *memory.Schema) (memory.Table, error) {
	col := c.db.GetCollection(name, schema.Embed)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", memory.ErrTableNotFound, name)
	}
	return &table{col: col, schema: schema, options: c.options}, nil
}

func (c *connection) CreateTable(ctx context.Context, name string, schema *memory.Schema) (memory.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db.GetCollection(name, schema.Embed) != nil {
		return nil, fmt.Errorf("%w: %s", memory.ErrTableExists, name)
	}

	metadata := map[string]string{
		"id_field":     schema.IDField,
		"text_field":   schema.TextField,
		"vector_field": schema.VectorField,
		"dimensions":   strconv.Itoa(schema.Dimensions),
	}
	col, err := c.db.CreateCollection(name, metadata, schema.Embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	log.Printf("[CHROMEM] Created collection %q", name)
	return &table{col: col, schema: schema, options: c.options}, nil
}

type table struct {
	col     *chromem.Collection
	schema  *memory.Schema
	options Options
}

// Insert embeds every record before adding any, so a failed embedding
// leaves the collection untouched.
func (t *table) Insert(ctx context.Context, records ...memory.Record) error {
	docs := make([]chromem.Document, 0, len(records))
	for _, rec := range records {
		embedding, err := t.schema.Embed(ctx, t.schema.Source(rec))
		if err != nil {
			return err
		}
		docs = append(docs, chromem.Document{
			ID:        rec.ID,
			Content:   rec.Text,
			Embedding: embedding,
		})
	}

	if err := t.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (t *table) DeleteWhere(ctx context.Context, filter memory.Filter) error {
	if filter.Field != t.schema.IDField {
		return fmt.Errorf("%w: chromem deletes by %s only, got %s", memory.ErrUnsupportedFilter, t.schema.IDField, filter)
	}

	// Unknown IDs are a no-op
	if _, err := t.col.GetByID(ctx, filter.Value); err != nil {
		return nil
	}

	if err := t.col.Delete(ctx, nil, nil, filter.Value); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (t *table) Search(ctx context.Context, query string, limit int) ([]memory.Record, error) {
	if limit < 1 {
		return nil, nil
	}

	embedding, err := t.schema.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size.
	// Retry with a fresh count if documents were deleted in between.
	var results []chromem.Result
	for attempt := 0; attempt < 3; attempt++ {
		n := min(limit, t.col.Count())
		if n == 0 {
			return nil, nil
		}

		results, err = t.col.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err == nil {
			break
		}
		if !isInsufficientDocsError(err) {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	records := make([]memory.Record, 0, len(results))
	for _, result := range results {
		if result.Similarity < t.options.MinSimilarity {
			continue
		}
		records = append(records, memory.Record{
			ID:     result.ID,
			Text:   result.Content,
			Vector: result.Embedding,
			Score:  result.Similarity,
		})
	}
	return records, nil
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "nResults must be") || strings.Contains(errStr, "number of documents")
}
