package memory

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Manager is the Provider implementation over a local storage Engine.
//
// Every operation first resolves the memory space (open-or-create) and then
// acts on the resolved table. Spaces share nothing except the schema cache
// and the engine's connection pool.
type Manager struct {
	engine Engine
	schema *SchemaCache
	config *Config
}

var _ Provider = (*Manager)(nil)

// NewManager creates a Manager. A nil config uses DefaultConfig.
func NewManager(engine Engine, embedder Embedder, config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if engine == nil {
		return nil, &ConfigurationError{Op: "new manager", Err: errors.New("no storage engine configured")}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		engine: engine,
		schema: NewSchemaCache(embedder),
		config: config,
	}, nil
}

// Schema returns the cached embedding schema, deriving it on first use.
func (m *Manager) Schema(ctx context.Context) (*Schema, error) {
	return m.schema.Schema(ctx)
}

// TableName returns the physical table name for a memory key.
func (m *Manager) TableName(key string) string {
	return m.config.TableName(key)
}

// ResolveSpace opens the table for key, creating it with the cached schema
// if it does not exist. Only ErrTableNotFound triggers creation; losing a
// creation race to a concurrent caller opens the winner's table.
func (m *Manager) ResolveSpace(ctx context.Context, key string) (Table, error) {
	name := m.TableName(key)

	schema, err := m.schema.Schema(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := m.engine.Connect(ctx, m.config.Location)
	if err != nil {
		return nil, storageError("connect", "", err)
	}

	table, err := conn.OpenTable(ctx, name, schema)
	if err == nil {
		return table, nil
	}
	if !errors.Is(err, ErrTableNotFound) {
		return nil, storageError("open table", name, err)
	}

	table, err = conn.CreateTable(ctx, name, schema)
	if errors.Is(err, ErrTableExists) {
		log.Printf("[MEMORY] Table %q created concurrently, opening it", name)
		table, err = conn.OpenTable(ctx, name, schema)
		if err != nil {
			return nil, storageError("open table", name, err)
		}
		return table, nil
	}
	if err != nil {
		return nil, storageError("create table", name, err)
	}

	log.Printf("[MEMORY] Created table %q (dims=%d)", name, schema.Dimensions)
	return table, nil
}

// Add stores content in the space for key and returns its new ID.
func (m *Manager) Add(ctx context.Context, key string, content string) (string, error) {
	table, err := m.ResolveSpace(ctx, key)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	if err := table.Insert(ctx, Record{ID: id, Text: content}); err != nil {
		return "", storageError("insert", m.TableName(key), err)
	}

	log.Printf("[MEMORY] Stored memory %s in %q", id, key)
	return id, nil
}

// Delete removes the record with the given ID from the space for key.
// Unknown IDs are ignored.
func (m *Manager) Delete(ctx context.Context, key string, id string) error {
	table, err := m.ResolveSpace(ctx, key)
	if err != nil {
		return err
	}

	if err := table.DeleteWhere(ctx, Equals(IDField, id)); err != nil {
		return storageError("delete", m.TableName(key), err)
	}
	return nil
}

// Search returns up to limit records most similar to query as an ID → text
// map. An empty or new space yields an empty map.
func (m *Manager) Search(ctx context.Context, key string, query string, limit int) (map[string]string, error) {
	records, err := m.Query(ctx, key, query, limit)
	if err != nil {
		return nil, err
	}

	results := make(map[string]string, len(records))
	for _, rec := range records {
		results[rec.ID] = rec.Text
	}
	return results, nil
}

// Query is Search with the engine's ranking preserved: closest first.
func (m *Manager) Query(ctx context.Context, key string, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}

	table, err := m.ResolveSpace(ctx, key)
	if err != nil {
		return nil, err
	}

	records, err := table.Search(ctx, query, limit)
	if err != nil {
		return nil, storageError("search", m.TableName(key), err)
	}
	if len(records) > limit {
		records = records[:limit]
	}

	log.Printf("[MEMORY] Retrieved %d memories from %q for query: %q", len(records), key, truncateLog(query, 50))
	return records, nil
}

// Retrieve finds the memories most relevant to message and formats them for
// prompt injection. Returns "" when the space has nothing relevant.
func (m *Manager) Retrieve(ctx context.Context, key string, message string) (string, error) {
	records, err := m.Query(ctx, key, message, recallLimit)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		log.Printf("[MEMORY]   No memories found")
		return "", nil
	}
	return FormatMemories(records), nil
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return cutRunes(s, maxLen) + "..."
}

// String describes the manager for logs.
func (m *Manager) String() string {
	return fmt.Sprintf("memory.Manager{location=%q, template=%q}", m.config.Location, m.config.TableNameTemplate)
}
