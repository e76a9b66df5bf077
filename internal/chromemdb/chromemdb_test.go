package chromemdb

import (
	"context"
	"testing"

	"multilingual-rag/internal/index"
	"multilingual-rag/internal/models"
)

var _ index.Store = (*VectorDBManager)(nil)

func unit(x, y float32) []float32 { return []float32{x, y} }

func TestVectorDBManager_SearchOrdersByDistanceThenIndex(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager("test")
	if err := m.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	chunks := []models.Chunk{{Index: 0, Content: "a"}, {Index: 1, Content: "b"}, {Index: 2, Content: "c"}, {Index: 3, Content: "d"}}
	vectors := [][]float32{unit(0, 1), unit(1, 0), unit(0, 1), unit(1, 0)}
	if err := m.Add(ctx, chunks, vectors); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 4 {
		t.Fatalf("expected 4 documents, got %d", m.Count())
	}

	hits, err := m.Search(ctx, unit(1, 0), 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 3, 0}
	if len(hits) != len(want) {
		t.Fatalf("expected %d hits, got %d", len(want), len(hits))
	}
	for i, w := range want {
		if hits[i].ChunkIndex != w {
			t.Errorf("hit %d: expected chunk %d, got %d", i, w, hits[i].ChunkIndex)
		}
	}
	if hits[0].Distance > 1e-6 {
		t.Errorf("expected zero distance for identical direction, got %f", hits[0].Distance)
	}
}

func TestVectorDBManager_ResetEmpties(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager("test")
	if hits, err := m.Search(ctx, unit(1, 0), 1); err != nil || hits != nil {
		t.Fatalf("uninitialized search: %v %v", hits, err)
	}
	if err := m.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(ctx, []models.Chunk{{Index: 0, Content: "a"}}, [][]float32{unit(1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := m.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 0 {
		t.Errorf("expected empty collection after reset, got %d", m.Count())
	}
	if hits, _ := m.Search(ctx, unit(1, 0), 1); len(hits) != 0 {
		t.Errorf("expected no hits, got %v", hits)
	}
}

func TestVectorDBManager_AddMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager("test")
	if err := m.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(ctx, []models.Chunk{{Index: 0, Content: "a"}}, nil); err == nil {
		t.Error("expected length mismatch error")
	}
}
