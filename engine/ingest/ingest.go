// Package ingest runs the source ingestion pipeline: fetch raw content,
// normalize it into document units, embed and index them, and track the
// source's lifecycle status along the way.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcechat/sourcechat/engine/domain"
	"github.com/sourcechat/sourcechat/engine/fetch"
	"github.com/sourcechat/sourcechat/pkg/fn"
)

// MaxErrorLen caps the stored error message. The full error still goes
// to the log.
const MaxErrorLen = 500

// SourceStore persists source status transitions.
type SourceStore interface {
	MarkIngesting(ctx context.Context, id int64) error
	MarkReady(ctx context.Context, id int64, count int, when time.Time) error
	MarkError(ctx context.Context, id int64, msg string) error
}

// Fetcher retrieves a source's raw content.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.Source) (fetch.Result, error)
}

// Indexer rebuilds a source's vector collection from document units.
type Indexer interface {
	Rebuild(ctx context.Context, src domain.Source, units []domain.DocumentUnit) (int, error)
}

// Ingestor drives one source through the pipeline. Concurrent runs for
// the same source are serialized; runs for different sources proceed in
// parallel.
type Ingestor struct {
	store   SourceStore
	fetcher Fetcher
	indexer Indexer
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates an Ingestor.
func New(store SourceStore, fetcher Fetcher, indexer Indexer, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:   store,
		fetcher: fetcher,
		indexer: indexer,
		logger:  logger,
		locks:   make(map[int64]*sync.Mutex),
	}
}

func (ing *Ingestor) sourceLock(id int64) *sync.Mutex {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	l, ok := ing.locks[id]
	if !ok {
		l = &sync.Mutex{}
		ing.locks[id] = l
	}
	return l
}

// Run ingests one source end to end and returns the indexed unit count.
// On failure the source is marked errored with a truncated message and
// its previous document count is left untouched; the error is also
// returned to the caller.
func (ing *Ingestor) Run(ctx context.Context, src domain.Source) (int, error) {
	lock := ing.sourceLock(src.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := ing.store.MarkIngesting(ctx, src.ID); err != nil {
		return 0, fmt.Errorf("ingest: mark ingesting source %d: %w", src.ID, err)
	}
	ing.logger.Info("ingest started", "source", src.ID, "kind", src.Kind, "name", src.Name)

	pipeline := fn.Then(
		fn.TracedStage("ingest.fetch", func(ctx context.Context, s domain.Source) fn.Result[fetch.Result] {
			return fn.FromPair(ing.fetcher.Fetch(ctx, s))
		}),
		fn.Then(
			fn.TracedStage("ingest.normalize", fn.MapStage(Normalize)),
			fn.TracedStage("ingest.index", func(ctx context.Context, units []domain.DocumentUnit) fn.Result[int] {
				return fn.FromPair(ing.indexer.Rebuild(ctx, src, units))
			}),
		),
	)

	count, err := pipeline(ctx, src).Unwrap()
	if err != nil {
		ing.logger.Error("ingest failed", "source", src.ID, "error", err)
		msg := err.Error()
		if len(msg) > MaxErrorLen {
			msg = msg[:MaxErrorLen]
		}
		if merr := ing.store.MarkError(ctx, src.ID, msg); merr != nil {
			ing.logger.Error("ingest: record failure", "source", src.ID, "error", merr)
		}
		return 0, err
	}

	if err := ing.store.MarkReady(ctx, src.ID, count, time.Now().UTC()); err != nil {
		return count, fmt.Errorf("ingest: mark ready source %d: %w", src.ID, err)
	}
	ing.logger.Info("ingest finished", "source", src.ID, "units", count)
	return count, nil
}
