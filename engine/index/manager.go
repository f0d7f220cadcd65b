// Package index owns the lifecycle of one vector collection per source:
// create, replace-on-reingest, delete-on-source-delete.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sourcechat/sourcechat/engine/domain"
	"github.com/sourcechat/sourcechat/engine/semantic"
	"github.com/sourcechat/sourcechat/pkg/fn"
)

// UpsertBatchSize bounds the points per upsert request. A batch failure
// aborts the remaining batches; there is no partial-batch retry.
const UpsertBatchSize = 100

// Store abstracts the vector index service operations the manager needs.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name string, dims int) error
	Delete(ctx context.Context, name string) error
	Upsert(ctx context.Context, name string, records []semantic.VectorRecord) error
}

// Embedder batch-encodes texts into L2-normalized vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Manager rebuilds and drops per-source collections.
type Manager struct {
	store  Store
	embed  Embedder
	logger *slog.Logger
}

// New creates a Manager.
func New(store Store, embed Embedder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, embed: embed, logger: logger}
}

// PointID derives a stable point id from (source id, raw id). Identical
// logical items always map to the same id across rebuilds, so re-ingest
// overwrites rather than duplicates.
func PointID(sourceID int64, rawID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%d:%s", sourceID, rawID))).String()
}

// Rebuild embeds all unit texts, then destructively replaces the source's
// collection: an existing collection is deleted unconditionally and a
// fresh one created at the embedding dimension. Returns the number of
// points written.
func (m *Manager) Rebuild(ctx context.Context, src domain.Source, units []domain.DocumentUnit) (int, error) {
	if len(units) == 0 {
		return 0, nil
	}

	texts := fn.Map(units, func(u domain.DocumentUnit) string { return u.Text })
	vectors, err := m.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("index: embed %d units: %w", len(units), err)
	}
	if len(vectors) != len(units) {
		return 0, fmt.Errorf("index: got %d vectors for %d units", len(vectors), len(units))
	}

	name := src.CollectionName()
	exists, err := m.store.Exists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("index: check collection %s: %w", name, err)
	}
	if exists {
		if err := m.store.Delete(ctx, name); err != nil {
			return 0, fmt.Errorf("index: replace collection %s: %w", name, err)
		}
	}
	if err := m.store.Create(ctx, name, len(vectors[0])); err != nil {
		return 0, fmt.Errorf("index: create collection %s: %w", name, err)
	}

	records := make([]semantic.VectorRecord, len(units))
	for i, u := range units {
		records[i] = semantic.VectorRecord{
			ID:        PointID(src.ID, u.RawID),
			Embedding: vectors[i],
			Payload: map[string]any{
				"text":        u.Text,
				"source_id":   src.ID,
				"source_name": src.Name,
				"source_kind": string(src.Kind),
				"raw_id":      u.RawID,
				"hash":        u.Hash,
			},
		}
	}

	for i, batch := range fn.Chunk(records, UpsertBatchSize) {
		if err := m.store.Upsert(ctx, name, batch); err != nil {
			return 0, fmt.Errorf("index: upsert batch %d: %w", i, err)
		}
	}

	m.logger.Info("index rebuilt", "collection", name, "points", len(records))
	return len(records), nil
}

// Drop deletes the source's collection. Absence is not an error.
func (m *Manager) Drop(ctx context.Context, src domain.Source) error {
	name := src.CollectionName()
	exists, err := m.store.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("index: check collection %s: %w", name, err)
	}
	if !exists {
		return nil
	}
	return m.store.Delete(ctx, name)
}
