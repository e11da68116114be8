package hnsw

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/becomeliminal/nim-memory/memory"
)

// HNSWStore is an in-process memory.Engine. Each table is a coder/hnsw graph
// using cosine distance, with record text and vectors kept alongside. Deletes
// rebuild the graph from the surviving records. Nothing is persisted; the
// location only separates independent namespaces.
type HNSWStore struct {
	namespaces map[string]*connection
	mu         sync.Mutex
}

var _ memory.Engine = (*HNSWStore)(nil)

// New creates an empty HNSW engine.
func New() *HNSWStore {
	return &HNSWStore{
		namespaces: make(map[string]*connection),
	}
}

func (s *HNSWStore) Connect(ctx context.Context, location string) (memory.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, exists := s.namespaces[location]
	if !exists {
		conn = &connection{tables: make(map[string]*table)}
		s.namespaces[location] = conn
	}
	return conn, nil
}

type connection struct {
	tables map[string]*table
	mu     sync.RWMutex
}

func (c *connection) OpenTable(ctx context.Context, name string, schema *memory.Schema) (memory.Table, error) {
	c.mu.RLock()
	t, exists := c.tables[name]
	c.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", memory.ErrTableNotFound, name)
	}
	if t.dims != schema.Dimensions {
		return nil, fmt.Errorf("%w: table %s has %d dimensions, schema has %d", memory.ErrDimensionMismatch, name, t.dims, schema.Dimensions)
	}
	return t.withSchema(schema), nil
}

func (c *connection) CreateTable(ctx context.Context, name string, schema *memory.Schema) (memory.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return nil, fmt.Errorf("%w: %s", memory.ErrTableExists, name)
	}

	t := &table{
		graph:   newGraph(),
		dims:    schema.Dimensions,
		texts:   make(map[string]string),
		vectors: make(map[string][]float32),
	}
	c.tables[name] = t

	log.Printf("[HNSW] Created graph %q (dims=%d)", name, schema.Dimensions)
	return t.withSchema(schema), nil
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	return g
}

// table is the shared graph state of one memory table. texts and vectors
// hold exactly the records present in graph.
type table struct {
	graph   *hnsw.Graph[string]
	dims    int
	texts   map[string]string
	vectors map[string][]float32
	mu      sync.Mutex
}

// rebuildLocked replaces the graph with one holding only the live records.
// coder/hnsw's in-place Delete leaves dangling neighbour links behind.
func (t *table) rebuildLocked() {
	g := newGraph()
	nodes := make([]hnsw.Node[string], 0, len(t.vectors))
	for id, vec := range t.vectors {
		nodes = append(nodes, hnsw.MakeNode(id, vec))
	}
	if len(nodes) > 0 {
		g.Add(nodes...)
	}
	t.graph = g
}

func (t *table) withSchema(schema *memory.Schema) *handle {
	return &handle{table: t, schema: schema}
}

// handle binds a table to the schema of the caller that opened it.
type handle struct {
	*table
	schema *memory.Schema
}

func (h *handle) Insert(ctx context.Context, records ...memory.Record) error {
	nodes := make([]hnsw.Node[string], 0, len(records))
	for _, rec := range records {
		vec, err := h.schema.Embed(ctx, h.schema.Source(rec))
		if err != nil {
			return err
		}
		nodes = append(nodes, hnsw.MakeNode(rec.ID, vec))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	replaced := false
	for i, rec := range records {
		if _, exists := h.texts[rec.ID]; exists {
			replaced = true
		}
		h.texts[rec.ID] = rec.Text
		h.vectors[rec.ID] = nodes[i].Value
	}

	if replaced {
		h.rebuildLocked()
	} else if len(nodes) > 0 {
		h.graph.Add(nodes...)
	}
	return nil
}

func (h *handle) DeleteWhere(ctx context.Context, filter memory.Filter) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	switch filter.Field {
	case h.schema.IDField:
		if h.removeLocked(filter.Value) {
			removed++
		}
	case h.schema.TextField:
		for id, text := range h.texts {
			if text == filter.Value && h.removeLocked(id) {
				removed++
			}
		}
	default:
		return fmt.Errorf("%w: %s", memory.ErrUnsupportedFilter, filter)
	}

	if removed > 0 {
		h.rebuildLocked()
	}
	return nil
}

func (h *handle) removeLocked(id string) bool {
	if _, exists := h.texts[id]; !exists {
		return false
	}
	delete(h.texts, id)
	delete(h.vectors, id)
	return true
}

func (h *handle) Search(ctx context.Context, query string, limit int) ([]memory.Record, error) {
	if limit < 1 {
		return nil, nil
	}

	vec, err := h.schema.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	k := min(limit, len(h.texts))
	if k == 0 || h.graph.Len() == 0 {
		return nil, nil
	}

	neighbors := h.graph.Search(vec, k)

	records := make([]memory.Record, 0, len(neighbors))
	for _, node := range neighbors {
		text, ok := h.texts[node.Key]
		if !ok {
			continue
		}
		records = append(records, memory.Record{
			ID:     node.Key,
			Text:   text,
			Vector: node.Value,
			Score:  1 - hnsw.CosineDistance(vec, node.Value),
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Score > records[j].Score
	})
	return records, nil
}
