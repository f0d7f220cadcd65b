// Package main implements the sourcechat API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/sourcechat/sourcechat/engine/domain"
	"github.com/sourcechat/sourcechat/engine/fetch"
	"github.com/sourcechat/sourcechat/engine/index"
	"github.com/sourcechat/sourcechat/engine/ingest"
	"github.com/sourcechat/sourcechat/engine/rag"
	"github.com/sourcechat/sourcechat/engine/semantic"
	"github.com/sourcechat/sourcechat/pkg/llm"
	"github.com/sourcechat/sourcechat/pkg/metrics"
	"github.com/sourcechat/sourcechat/pkg/mid"
	"github.com/sourcechat/sourcechat/pkg/repo"
)

// Config holds all environment-based configuration.
type Config struct {
	Port        string
	DBPath      string
	QdrantURL   string
	NATSURL     string
	OpenAIKey   string
	OpenAIBase  string
	EmbedModel  string
	EmbedDim    int
	ChatModel   string
	RetrieveTop int
	CORSOrigin  string
}

func loadConfig() Config {
	return Config{
		Port:        envOr("PORT", "8080"),
		DBPath:      envOr("DB_PATH", "sourcechat.db"),
		QdrantURL:   envOr("QDRANT_URL", "localhost:6334"),
		NATSURL:     os.Getenv("NATS_URL"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIBase:  os.Getenv("OPENAI_BASE_URL"),
		EmbedModel:  envOr("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDim:    envIntOr("EMBED_DIM", 384),
		ChatModel:   envOr("CHAT_MODEL", "gpt-4o-mini"),
		RetrieveTop: envIntOr("RETRIEVE_TOP_K", rag.DefaultTopK),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
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
		if n, err := strconv.Atoi(v); err == nil {
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
		logger.Error("server exited with error", "err", err)
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
	chatClient, err := llm.NewChatClient(cfg.OpenAIKey, cfg.OpenAIBase, cfg.ChatModel)
	if err != nil {
		return err
	}

	reg := metrics.New()
	indexer := index.New(vectorStore, embedder, logger)
	ingestor := ingest.New(store, fetch.New(), indexer, logger)
	ragSvc := rag.NewService(
		rag.NewRetriever(vectorStore, embedder, cfg.RetrieveTop),
		rag.NewComposer(chatClient),
		store,
		logger,
	)

	starter := &ingestStarter{ingestor: ingestor}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("sourcechat-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		starter.nc = nc
		logger.Info("ingest jobs go through nats", "url", cfg.NATSURL)
	}

	a := &api{
		sources:  store,
		sessions: store,
		ingest:   starter,
		index:    indexer,
		rag:      ragSvc,
		reg:      reg,
		logger:   logger,
	}

	handler := mid.Chain(a.routes(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("sourcechat-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// ingestStarter enqueues jobs over NATS when connected, and otherwise
// runs the ingest synchronously in the request.
type ingestStarter struct {
	ingestor *ingest.Ingestor
	nc       *nats.Conn
}

func (s *ingestStarter) Start(ctx context.Context, src domain.Source) (IngestOutcome, error) {
	if s.nc != nil {
		if err := ingest.Enqueue(ctx, s.nc, src.ID); err != nil {
			return IngestOutcome{}, err
		}
		return IngestOutcome{Queued: true}, nil
	}
	count, err := s.ingestor.Run(ctx, src)
	if err != nil {
		return IngestOutcome{}, err
	}
	return IngestOutcome{Documents: count}, nil
}
