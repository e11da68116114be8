package hnsw_test

import (
	"context"
	"errors"
	"testing"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/store/hnsw"
)

func TestOpenCreate(t *testing.T) {
	ctx := context.Background()
	conn, _ := hnsw.New().Connect(ctx, "ns")
	schema := memory.NewSchema(mock.NewWithDimensions(16), 16)

	if _, err := conn.OpenTable(ctx, "memory-u1", schema); !errors.Is(err, memory.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
	if _, err := conn.CreateTable(ctx, "memory-u1", schema); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if _, err := conn.CreateTable(ctx, "memory-u1", schema); !errors.Is(err, memory.ErrTableExists) {
		t.Fatalf("expected ErrTableExists, got %v", err)
	}
	if _, err := conn.OpenTable(ctx, "memory-u1", schema); err != nil {
		t.Fatalf("OpenTable failed: %v", err)
	}
}

func TestOpenRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	conn, _ := hnsw.New().Connect(ctx, "ns")

	conn.CreateTable(ctx, "memory-u1", memory.NewSchema(mock.NewWithDimensions(16), 16))

	_, err := conn.OpenTable(ctx, "memory-u1", memory.NewSchema(mock.NewWithDimensions(8), 8))
	if !errors.Is(err, memory.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := hnsw.New()
	schema := memory.NewSchema(mock.NewWithDimensions(16), 16)

	a, _ := store.Connect(ctx, "a")
	b, _ := store.Connect(ctx, "b")

	a.CreateTable(ctx, "memory-u1", schema)
	if _, err := b.OpenTable(ctx, "memory-u1", schema); !errors.Is(err, memory.ErrTableNotFound) {
		t.Fatalf("expected table to be invisible in another namespace, got %v", err)
	}
}

func TestInsertSearchDelete(t *testing.T) {
	ctx := context.Background()
	conn, _ := hnsw.New().Connect(ctx, "")
	table, _ := conn.CreateTable(ctx, "memory-u1", memory.NewSchema(mock.NewWithDimensions(16), 16))

	err := table.Insert(ctx,
		memory.Record{ID: "a", Text: "buy milk"},
		memory.Record{ID: "b", Text: "buy eggs"},
		memory.Record{ID: "c", Text: "buy bread"},
	)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	records, err := table.Search(ctx, "buy eggs", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "b" {
		t.Errorf("expected exact match first, got %+v", records[0])
	}

	if err := table.DeleteWhere(ctx, memory.Equals(memory.TextField, "buy bread")); err != nil {
		t.Fatalf("DeleteWhere by text failed: %v", err)
	}
	if err := table.DeleteWhere(ctx, memory.Equals(memory.IDField, "a")); err != nil {
		t.Fatalf("DeleteWhere by id failed: %v", err)
	}

	records, _ = table.Search(ctx, "buy", 10)
	if len(records) != 1 || records[0].ID != "b" {
		t.Fatalf("expected only b, got %+v", records)
	}

	err = table.DeleteWhere(ctx, memory.Equals(memory.VectorField, "x"))
	if !errors.Is(err, memory.ErrUnsupportedFilter) {
		t.Fatalf("expected ErrUnsupportedFilter, got %v", err)
	}
}

func TestDeleteOnlyRecordThenInsert(t *testing.T) {
	ctx := context.Background()
	conn, _ := hnsw.New().Connect(ctx, "")
	table, _ := conn.CreateTable(ctx, "memory-u1", memory.NewSchema(mock.NewWithDimensions(16), 16))

	table.Insert(ctx, memory.Record{ID: "a", Text: "one"})
	if err := table.DeleteWhere(ctx, memory.Equals(memory.IDField, "a")); err != nil {
		t.Fatalf("DeleteWhere failed: %v", err)
	}
	if records, _ := table.Search(ctx, "one", 5); len(records) != 0 {
		t.Fatalf("expected empty table, got %+v", records)
	}

	if err := table.Insert(ctx, memory.Record{ID: "b", Text: "two"}); err != nil {
		t.Fatalf("Insert after delete failed: %v", err)
	}
	records, err := table.Search(ctx, "two", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != "b" {
		t.Fatalf("expected only b, got %+v", records)
	}
}

func TestInsertReplacesExistingID(t *testing.T) {
	ctx := context.Background()
	conn, _ := hnsw.New().Connect(ctx, "")
	table, _ := conn.CreateTable(ctx, "memory-u1", memory.NewSchema(mock.NewWithDimensions(16), 16))

	table.Insert(ctx, memory.Record{ID: "a", Text: "old"})
	table.Insert(ctx, memory.Record{ID: "a", Text: "new"})

	records, _ := table.Search(ctx, "new", 5)
	if len(records) != 1 || records[0].Text != "new" {
		t.Fatalf("expected the replaced record, got %+v", records)
	}
}
