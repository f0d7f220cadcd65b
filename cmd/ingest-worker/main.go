// Package main implements the sourcechat ingest worker. It consumes
// ingest jobs from NATS and runs the fetch/normalize/index pipeline.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/sourcechat/sourcechat/engine/fetch"
	"github.com/sourcechat/sourcechat/engine/index"
	"github.com/sourcechat/sourcechat/engine/ingest"
	"github.com/sourcechat/sourcechat/engine/semantic"
	"github.com/sourcechat/sourcechat/pkg/llm"
	"github.com/sourcechat/sourcechat/pkg/metrics"
	"github.com/sourcechat/sourcechat/pkg/repo"
)

// Config holds all environment-based configuration.
type Config struct {
	NATSURL     string
	DBPath      string
	QdrantURL   string
	OpenAIKey   string
	OpenAIBase  string
	EmbedModel  string
	EmbedDim    int
	MetricsPort int
}

func loadConfig() Config {
	return Config{
		NATSURL:     envOr("NATS_URL", nats.DefaultURL),
		DBPath:      envOr("DB_PATH", "sourcechat.db"),
		QdrantURL:   envOr("QDRANT_URL", "localhost:6334"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIBase:  os.Getenv("OPENAI_BASE_URL"),
		EmbedModel:  envOr("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDim:    envIntOr("EMBED_DIM", 384),
		MetricsPort: envIntOr("METRICS_PORT", 9091),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repo.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	vectorStore, err := semantic.New(cfg.QdrantURL)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	embedder, err := llm.NewEmbedder(cfg.OpenAIKey, cfg.OpenAIBase, cfg.EmbedModel, cfg.EmbedDim)
	if err != nil {
		return err
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("sourcechat-ingest-worker"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	ingestor := ingest.New(store, fetch.New(), index.New(vectorStore, embedder, logger), logger)
	consumer := ingest.NewConsumer(nc, store, ingestor, logger)

	sub, err := consumer.Start()
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ingest.Subject, err)
	}
	defer sub.Unsubscribe()

	reg := metrics.New()
	reg.ServeAsync(cfg.MetricsPort)

	logger.Info("ingest worker started", "subject", ingest.Subject, "nats", cfg.NATSURL)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nc.Drain()
}
