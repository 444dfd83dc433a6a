package semantic

import (
	"context"
	"testing"
)

func newMemory(t *testing.T) *MemoryStore {
	t.Helper()
	m, err := NewMemoryStore("", "Document")
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	return m
}

func TestMemoryStore_UpsertAndSearch(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	err := m.Upsert(ctx, []VectorRecord{
		{Vector: []float32{1, 0, 0}, Text: "oil change", Source: "a.txt"},
		{Vector: []float32{0, 1, 0}, Text: "brake pads", Source: "b.txt"},
		{Vector: []float32{0.9, 0.1, 0}, Text: "oil filter", Source: "a.txt"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	res, err := m.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].Text != "oil change" || res[1].Text != "oil filter" {
		t.Fatalf("unexpected order %+v", res)
	}
	if res[0].Source != "a.txt" || res[0].Score < res[1].Score {
		t.Fatalf("unexpected result %+v", res[0])
	}
}

func TestMemoryStore_TopKLargerThanCollection(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()
	_ = m.Upsert(ctx, []VectorRecord{{Vector: []float32{1, 0}, Text: "only", Source: "a.txt"}})

	res, err := m.Search(ctx, []float32{1, 0}, 4)
	if err != nil || len(res) != 1 {
		t.Fatalf("expected 1 result, got %v %v", res, err)
	}
}

func TestMemoryStore_EmptySearch(t *testing.T) {
	res, err := newMemory(t).Search(context.Background(), []float32{1, 0}, 4)
	if err != nil || res == nil || len(res) != 0 {
		t.Fatalf("expected empty result, got %v %v", res, err)
	}
}

func TestMemoryStore_AdditiveAndReset(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	_ = m.Upsert(ctx, []VectorRecord{{Vector: []float32{1, 0}, Text: "x", Source: "a.txt"}})
	_ = m.Upsert(ctx, []VectorRecord{{Vector: []float32{1, 0}, Text: "x", Source: "a.txt"}})
	if n, _ := m.Count(ctx); n != 2 {
		t.Fatalf("re-ingesting identical text should append, count=%d", n)
	}

	if err := m.ResetCollection(ctx); err != nil {
		t.Fatalf("ResetCollection: %v", err)
	}
	if n, _ := m.Count(ctx); n != 0 {
		t.Fatalf("expected empty after reset, got %d", n)
	}
	res, _ := m.Search(ctx, []float32{1, 0}, 4)
	if len(res) != 0 {
		t.Fatalf("expected no results after reset, got %v", res)
	}
	if err := m.Upsert(ctx, []VectorRecord{{Vector: []float32{0, 1}, Text: "y", Source: "b.txt"}}); err != nil {
		t.Fatalf("upsert after reset: %v", err)
	}
}

func TestMemoryStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m, err := NewMemoryStore(dir, "Document")
	if err != nil {
		t.Fatal(err)
	}
	_ = m.Upsert(ctx, []VectorRecord{{Vector: []float32{1, 0}, Text: "kept", Source: "a.txt"}})

	reopened, err := NewMemoryStore(dir, "Document")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := reopened.Count(ctx); n != 1 {
		t.Fatalf("expected persisted record, count=%d", n)
	}
}
