package ingest

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/sourcechat/sourcechat/engine/domain"
	"github.com/sourcechat/sourcechat/pkg/natsutil"
)

// NATS subjects for asynchronous ingestion.
const (
	// Subject carries ingest jobs from the API to the worker.
	Subject = "sourcechat.ingest"
	// DoneSubject carries completion notices back.
	DoneSubject = "sourcechat.ingest.done"
)

// Job asks the worker to ingest one source.
type Job struct {
	SourceID int64 `json:"source_id"`
}

// Done reports a finished ingest run.
type Done struct {
	SourceID int64  `json:"source_id"`
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
}

// SourceLoader fetches a source record by id regardless of owner; the
// worker trusts jobs published by the API.
type SourceLoader interface {
	GetSourceAnyOwner(ctx context.Context, id int64) (domain.Source, error)
}

// Consumer subscribes to ingest jobs and runs them through an Ingestor.
type Consumer struct {
	nc     *nats.Conn
	loader SourceLoader
	ing    *Ingestor
	logger *slog.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(nc *nats.Conn, loader SourceLoader, ing *Ingestor, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{nc: nc, loader: loader, ing: ing, logger: logger}
}

// Start subscribes to the ingest subject. Each job runs in the handler
// goroutine NATS provides; same-source serialization happens inside the
// Ingestor.
func (c *Consumer) Start() (*nats.Subscription, error) {
	return natsutil.Subscribe(c.nc, Subject, func(ctx context.Context, job Job) {
		src, err := c.loader.GetSourceAnyOwner(ctx, job.SourceID)
		if err != nil {
			c.logger.Error("ingest job: load source", "source", job.SourceID, "error", err)
			return
		}

		done := Done{SourceID: src.ID}
		count, err := c.ing.Run(ctx, src)
		if err != nil {
			done.Error = err.Error()
		}
		done.Count = count

		if err := natsutil.Publish(ctx, c.nc, DoneSubject, done); err != nil {
			c.logger.Error("ingest job: publish done", "source", src.ID, "error", err)
		}
	})
}

// Enqueue publishes an ingest job for the source.
func Enqueue(ctx context.Context, nc *nats.Conn, sourceID int64) error {
	return natsutil.Publish(ctx, nc, Subject, Job{SourceID: sourceID})
}
