package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/becomeliminal/nim-memory/memory"
)

// SQLiteStore is a memory.Engine keeping every memory table in one SQLite
// file. Each table is stored under a physical identifier derived from the hex
// of its name, because SQLite matches identifiers case-insensitively. Vectors are stored as little-endian BLOBs and searched by brute-force
// cosine similarity, which suits spaces of up to a few thousand records.
type SQLiteStore struct {
	dbs map[string]*connection
	mu  sync.Mutex
}

var _ memory.Engine = (*SQLiteStore)(nil)

// New creates a SQLite engine. Connect takes the database file path.
func New() *SQLiteStore {
	return &SQLiteStore{
		dbs: make(map[string]*connection),
	}
}

// Connect opens (and initialises) the database file at location.
func (s *SQLiteStore) Connect(ctx context.Context, location string) (memory.Connection, error) {
	if location == "" {
		return nil, errors.New("sqlite location is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, exists := s.dbs[location]; exists {
		return conn, nil
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(location), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", location)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	conn := &connection{db: db}
	if err := conn.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Printf("[SQLITE] Opened %s", location)
	s.dbs[location] = conn
	return conn, nil
}

// Close closes every open database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for location, conn := range s.dbs {
		errs = append(errs, conn.db.Close())
		delete(s.dbs, location)
	}
	return errors.Join(errs...)
}

type connection struct {
	db *sql.DB
}

// initSchema creates the registry mapping memory table names to physical
// tables and their dimensions.
func (c *connection) initSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS memory_tables (
		name TEXT PRIMARY KEY,
		physical TEXT NOT NULL UNIQUE,
		dims INTEGER NOT NULL
	);
	`)
	return err
}

// physicalName maps a table name injectively onto identifiers that differ
// in more than letter case.
func physicalName(name string) string {
	return "mem_" + hex.EncodeToString([]byte(name))
}

func (c *connection) OpenTable(ctx context.Context, name string, schema *memory.Schema) (memory.Table, error) {
	var physical string
	var dims int
	err := c.db.QueryRowContext(ctx, `SELECT physical, dims FROM memory_tables WHERE name = ?`, name).Scan(&physical, &dims)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", memory.ErrTableNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read table registry: %w", err)
	}
	if dims != schema.Dimensions {
		return nil, fmt.Errorf("%w: table %s has %d dimensions, schema has %d", memory.ErrDimensionMismatch, name, dims, schema.Dimensions)
	}
	return &table{db: c.db, name: physical, schema: schema}, nil
}

// CreateTable registers and creates the table in one transaction. The
// registry's primary key decides creation races.
func (c *connection) CreateTable(ctx context.Context, name string, schema *memory.Schema) (memory.Table, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	physical := physicalName(name)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO memory_tables (name, physical, dims) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		name, physical, schema.Dimensions,
	)
	if err != nil {
		return nil, fmt.Errorf("register table: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("%w: %s", memory.ErrTableExists, name)
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		%s TEXT PRIMARY KEY,
		%s TEXT NOT NULL,
		%s BLOB NOT NULL
	)`, quoteIdent(physical), quoteIdent(schema.IDField), quoteIdent(schema.TextField), quoteIdent(schema.VectorField))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[SQLITE] Created table %q as %s (dims=%d)", name, physical, schema.Dimensions)
	return &table{db: c.db, name: physical, schema: schema}, nil
}

type table struct {
	db *sql.DB
	// name is the physical table identifier
	name   string
	schema *memory.Schema
}

func (t *table) Insert(ctx context.Context, records ...memory.Record) error {
	type row struct {
		id, text string
		vector   []byte
	}
	rows := make([]row, 0, len(records))
	for _, rec := range records {
		vec, err := t.schema.Embed(ctx, t.schema.Source(rec))
		if err != nil {
			return err
		}
		rows = append(rows, row{rec.ID, rec.Text, encodeVector(vec)})
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)`,
		quoteIdent(t.name), quoteIdent(t.schema.IDField), quoteIdent(t.schema.TextField), quoteIdent(t.schema.VectorField),
	))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.id, r.text, r.vector); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (t *table) DeleteWhere(ctx context.Context, filter memory.Filter) error {
	if !t.schema.HasField(filter.Field) {
		return fmt.Errorf("%w: %s", memory.ErrUnsupportedFilter, filter)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, quoteIdent(t.name), quoteIdent(filter.Field))
	_, err := t.db.ExecContext(ctx, query, filter.Value)
	return err
}

// Search finds the top limit records by cosine similarity.
func (t *table) Search(ctx context.Context, query string, limit int) ([]memory.Record, error) {
	if limit < 1 {
		return nil, nil
	}

	queryVec, err := t.schema.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := t.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, %s, %s FROM %s`,
		quoteIdent(t.schema.IDField), quoteIdent(t.schema.TextField), quoteIdent(t.schema.VectorField), quoteIdent(t.name),
	))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []memory.Record
	for rows.Next() {
		var rec memory.Record
		var vectorBlob []byte

		if err := rows.Scan(&rec.ID, &rec.Text, &vectorBlob); err != nil {
			return nil, err
		}

		rec.Vector = decodeVector(vectorBlob)
		rec.Score = cosineSimilarity(queryVec, rec.Vector)
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sort by score descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// quoteIdent quotes a SQLite identifier, doubling embedded quotes so any
// table name maps to exactly one identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// encodeVector encodes a float32 slice to binary
func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// decodeVector decodes binary data to a float32 slice
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	binary.Read(bytes.NewReader(b), binary.LittleEndian, &v)
	return v
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
