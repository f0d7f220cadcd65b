package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/sourcechat/sourcechat/engine/domain"
	"github.com/sourcechat/sourcechat/engine/semantic"
)

// --- fakes ---

type fakeStore struct {
	existing map[string]bool
	created  []string
	deleted  []string
	upserts  [][]semantic.VectorRecord
	dims     int
	failOn   string // "exists", "create", "upsert"
}

func (f *fakeStore) Exists(_ context.Context, name string) (bool, error) {
	if f.failOn == "exists" {
		return false, fmt.Errorf("index unavailable")
	}
	return f.existing[name], nil
}

func (f *fakeStore) Create(_ context.Context, name string, dims int) error {
	if f.failOn == "create" {
		return fmt.Errorf("create failed")
	}
	f.created = append(f.created, name)
	f.dims = dims
	return nil
}

func (f *fakeStore) Delete(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, _ string, records []semantic.VectorRecord) error {
	if f.failOn == "upsert" {
		return fmt.Errorf("upsert failed")
	}
	f.upserts = append(f.upserts, records)
	return nil
}

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func units(n int) []domain.DocumentUnit {
	out := make([]domain.DocumentUnit, n)
	for i := range out {
		out[i] = domain.DocumentUnit{RawID: fmt.Sprintf("%d", i), Text: fmt.Sprintf("unit %d", i), Hash: "h"}
	}
	return out
}

// --- tests ---

func TestPointID_Deterministic(t *testing.T) {
	a := PointID(1, "42")
	b := PointID(1, "42")
	if a != b {
		t.Errorf("same inputs must give same id: %s vs %s", a, b)
	}
	if PointID(2, "42") == a {
		t.Error("different sources must give different ids")
	}
	if PointID(1, "43") == a {
		t.Error("different raw ids must give different ids")
	}
}

func TestRebuild_CreatesFreshCollection(t *testing.T) {
	store := &fakeStore{existing: map[string]bool{}}
	m := New(store, &fakeEmbedder{dim: 4}, nil)
	src := domain.Source{ID: 1, OwnerID: 2, Name: "orders", Kind: domain.KindAPI}

	n, err := m.Rebuild(context.Background(), src, units(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 points, got %d", n)
	}
	if len(store.deleted) != 0 {
		t.Errorf("no delete expected for a fresh collection, got %v", store.deleted)
	}
	if len(store.created) != 1 || store.created[0] != "source_1_2" {
		t.Errorf("unexpected created collections: %v", store.created)
	}
	if store.dims != 4 {
		t.Errorf("expected dimension 4, got %d", store.dims)
	}
}

func TestRebuild_ReplacesExistingCollection(t *testing.T) {
	store := &fakeStore{existing: map[string]bool{"source_1_2": true}}
	m := New(store, &fakeEmbedder{dim: 4}, nil)
	src := domain.Source{ID: 1, OwnerID: 2, Name: "orders", Kind: domain.KindAPI}

	if _, err := m.Rebuild(context.Background(), src, units(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "source_1_2" {
		t.Errorf("expected unconditional delete before recreate, got %v", store.deleted)
	}
	if len(store.created) != 1 {
		t.Errorf("expected recreate, got %v", store.created)
	}
}

func TestRebuild_BatchesUpserts(t *testing.T) {
	store := &fakeStore{existing: map[string]bool{}}
	m := New(store, &fakeEmbedder{dim: 2}, nil)
	src := domain.Source{ID: 1, OwnerID: 1, Name: "big", Kind: domain.KindAPI}

	n, err := m.Rebuild(context.Background(), src, units(250))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 250 {
		t.Errorf("expected 250 points, got %d", n)
	}
	if len(store.upserts) != 3 {
		t.Fatalf("expected 3 upsert batches, got %d", len(store.upserts))
	}
	if len(store.upserts[0]) != 100 || len(store.upserts[1]) != 100 || len(store.upserts[2]) != 50 {
		t.Errorf("unexpected batch sizes: %d %d %d",
			len(store.upserts[0]), len(store.upserts[1]), len(store.upserts[2]))
	}
}

func TestRebuild_IdempotentPointIDs(t *testing.T) {
	src := domain.Source{ID: 9, OwnerID: 1, Name: "x", Kind: domain.KindAPI}

	collect := func() map[string]bool {
		store := &fakeStore{existing: map[string]bool{}}
		m := New(store, &fakeEmbedder{dim: 2}, nil)
		if _, err := m.Rebuild(context.Background(), src, units(5)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids := make(map[string]bool)
		for _, batch := range store.upserts {
			for _, r := range batch {
				ids[r.ID] = true
			}
		}
		return ids
	}

	first, second := collect(), collect()
	if len(first) != 5 || len(second) != 5 {
		t.Fatalf("expected 5 distinct ids, got %d and %d", len(first), len(second))
	}
	for id := range first {
		if !second[id] {
			t.Errorf("id %s missing from second rebuild", id)
		}
	}
}

func TestRebuild_EmptyUnits(t *testing.T) {
	store := &fakeStore{existing: map[string]bool{}, failOn: "exists"}
	m := New(store, &fakeEmbedder{dim: 2}, nil)

	// Zero units must not touch the index at all.
	n, err := m.Rebuild(context.Background(), domain.Source{ID: 1, OwnerID: 1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 points, got %d", n)
	}
}

func TestRebuild_PayloadFields(t *testing.T) {
	store := &fakeStore{existing: map[string]bool{}}
	m := New(store, &fakeEmbedder{dim: 2}, nil)
	src := domain.Source{ID: 1, OwnerID: 1, Name: "products", Kind: domain.KindAPI}

	u := []domain.DocumentUnit{{RawID: "42", Text: "title: Phone", Hash: "deadbeef"}}
	if _, err := m.Rebuild(context.Background(), src, u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := store.upserts[0][0].Payload
	if p["text"] != "title: Phone" || p["source_name"] != "products" ||
		p["source_kind"] != "api" || p["raw_id"] != "42" || p["hash"] != "deadbeef" {
		t.Errorf("unexpected payload: %v", p)
	}
	if p["source_id"] != int64(1) {
		t.Errorf("expected source_id 1, got %v", p["source_id"])
	}
}

func TestDrop_Idempotent(t *testing.T) {
	store := &fakeStore{existing: map[string]bool{}}
	m := New(store, &fakeEmbedder{dim: 2}, nil)

	if err := m.Drop(context.Background(), domain.Source{ID: 5, OwnerID: 5}); err != nil {
		t.Fatalf("drop of a missing collection must not fail: %v", err)
	}
	if len(store.deleted) != 0 {
		t.Errorf("no delete expected, got %v", store.deleted)
	}

	store.existing["source_5_5"] = true
	if err := m.Drop(context.Background(), domain.Source{ID: 5, OwnerID: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deleted) != 1 {
		t.Errorf("expected one delete, got %v", store.deleted)
	}
}
