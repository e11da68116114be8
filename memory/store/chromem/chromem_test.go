package chromem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
)

func newSchema() *memory.Schema {
	return memory.NewSchema(mock.NewWithDimensions(32), 32)
}

func TestOpenMissingTable(t *testing.T) {
	conn, err := chromem.New().Connect(context.Background(), "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, err = conn.OpenTable(context.Background(), "memory-u1", newSchema())
	if !errors.Is(err, memory.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestCreateTwice(t *testing.T) {
	ctx := context.Background()
	conn, _ := chromem.New().Connect(ctx, "")

	if _, err := conn.CreateTable(ctx, "memory-u1", newSchema()); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	_, err := conn.CreateTable(ctx, "memory-u1", newSchema())
	if !errors.Is(err, memory.ErrTableExists) {
		t.Fatalf("expected ErrTableExists, got %v", err)
	}
}

func TestInsertSearchDelete(t *testing.T) {
	ctx := context.Background()
	conn, _ := chromem.New().Connect(ctx, "")
	schema := newSchema()

	table, err := conn.CreateTable(ctx, "memory-u1", schema)
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	err = table.Insert(ctx,
		memory.Record{ID: "a", Text: "buy milk"},
		memory.Record{ID: "b", Text: "buy eggs"},
	)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Limit above the collection size is clamped
	records, err := table.Search(ctx, "buy milk", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "a" || records[0].Text != "buy milk" {
		t.Errorf("expected exact match first, got %+v", records[0])
	}

	if err := table.DeleteWhere(ctx, memory.Equals(memory.IDField, "a")); err != nil {
		t.Fatalf("DeleteWhere failed: %v", err)
	}
	if err := table.DeleteWhere(ctx, memory.Equals(memory.IDField, "missing")); err != nil {
		t.Fatalf("DeleteWhere on missing id failed: %v", err)
	}

	records, _ = table.Search(ctx, "buy milk", 10)
	if len(records) != 1 || records[0].ID != "b" {
		t.Fatalf("expected only b, got %+v", records)
	}
}

func TestDeleteByTextUnsupported(t *testing.T) {
	ctx := context.Background()
	conn, _ := chromem.New().Connect(ctx, "")
	table, _ := conn.CreateTable(ctx, "memory-u1", newSchema())

	err := table.DeleteWhere(ctx, memory.Equals(memory.TextField, "buy milk"))
	if !errors.Is(err, memory.ErrUnsupportedFilter) {
		t.Fatalf("expected ErrUnsupportedFilter, got %v", err)
	}
}

func TestSearchEmptyTable(t *testing.T) {
	ctx := context.Background()
	conn, _ := chromem.New().Connect(ctx, "")
	table, _ := conn.CreateTable(ctx, "memory-u1", newSchema())

	records, err := table.Search(ctx, "anything", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestMinSimilarity(t *testing.T) {
	ctx := context.Background()
	conn, _ := chromem.New(chromem.WithMinSimilarity(0.99)).Connect(ctx, "")
	table, _ := conn.CreateTable(ctx, "memory-u1", newSchema())

	table.Insert(ctx,
		memory.Record{ID: "a", Text: "buy milk"},
		memory.Record{ID: "b", Text: "renew passport"},
	)

	records, err := table.Search(ctx, "buy milk", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != "a" {
		t.Fatalf("expected only the exact match, got %+v", records)
	}
}

func TestConnectSharesDatabase(t *testing.T) {
	ctx := context.Background()
	store := chromem.New()
	dir := t.TempDir()

	c1, err := store.Connect(ctx, dir)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := c1.CreateTable(ctx, "memory-u1", newSchema()); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	c2, _ := store.Connect(ctx, dir)
	if _, err := c2.OpenTable(ctx, "memory-u1", newSchema()); err != nil {
		t.Fatalf("expected table visible through second connection: %v", err)
	}
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	conn, err := chromem.New(chromem.WithCompression(true)).Connect(ctx, dir)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	table, _ := conn.CreateTable(ctx, "memory-u1", newSchema())
	if err := table.Insert(ctx, memory.Record{ID: "a", Text: "buy milk"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	reopened, err := chromem.New(chromem.WithCompression(true)).Connect(ctx, dir)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	table, err = reopened.OpenTable(ctx, "memory-u1", newSchema())
	if err != nil {
		t.Fatalf("OpenTable failed: %v", err)
	}

	records, err := table.Search(ctx, "milk", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 1 || records[0].Text != "buy milk" {
		t.Fatalf("expected persisted record, got %+v", records)
	}
}
