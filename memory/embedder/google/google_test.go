package google

import (
	"context"
	"testing"
)

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without APIKey")
	}
}

func TestNewDefaultsModel(t *testing.T) {
	e, err := New(context.Background(), Config{APIKey: "test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()

	if e.model != DefaultModel {
		t.Fatalf("expected %s, got %s", DefaultModel, e.model)
	}
}
