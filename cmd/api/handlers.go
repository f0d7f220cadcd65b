package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sourcechat/sourcechat/engine/domain"
	"github.com/sourcechat/sourcechat/engine/rag"
	"github.com/sourcechat/sourcechat/pkg/metrics"
	"github.com/sourcechat/sourcechat/pkg/mid"
	"github.com/sourcechat/sourcechat/pkg/repo"
)

// sourceStore is the slice of the repository the handlers need for
// source management.
type sourceStore interface {
	CreateSource(ctx context.Context, src domain.Source) (domain.Source, error)
	GetSource(ctx context.Context, id, ownerID int64) (domain.Source, error)
	ListSources(ctx context.Context, ownerID int64) ([]domain.Source, error)
	DeleteSource(ctx context.Context, id, ownerID int64) error
}

// sessionStore is the slice of the repository for chat sessions.
type sessionStore interface {
	CreateSession(ctx context.Context, ownerID, sourceID int64, title string) (repo.Session, error)
	GetSession(ctx context.Context, id, ownerID int64) (repo.Session, error)
	ListSessions(ctx context.Context, ownerID, sourceID int64) ([]repo.Session, error)
	DeleteSession(ctx context.Context, id, ownerID int64) error
	Messages(ctx context.Context, sessionID int64) ([]repo.Message, error)
}

// IngestOutcome reports how an ingest request was handled: queued to a
// worker, or run inline with a final document count.
type IngestOutcome struct {
	Queued    bool
	Documents int
}

// ingestRunner runs or enqueues an ingest for a source.
type ingestRunner interface {
	Start(ctx context.Context, src domain.Source) (IngestOutcome, error)
}

// indexDropper removes a source's vector collection.
type indexDropper interface {
	Drop(ctx context.Context, src domain.Source) error
}

// asker answers one chat question.
type asker interface {
	Ask(ctx context.Context, src domain.Source, sessionID int64, question string) (rag.Answer, error)
}

type api struct {
	sources  sourceStore
	sessions sessionStore
	ingest   ingestRunner
	index    indexDropper
	rag      asker
	reg      *metrics.Registry
	logger   *slog.Logger
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", a.reg.Handler())

	authed := func(h http.HandlerFunc) http.Handler {
		return mid.Chain(h, mid.UserID())
	}
	mux.Handle("GET /api/sources", authed(a.handleListSources))
	mux.Handle("POST /api/sources", authed(a.handleCreateSource))
	mux.Handle("GET /api/sources/{id}", authed(a.handleGetSource))
	mux.Handle("DELETE /api/sources/{id}", authed(a.handleDeleteSource))
	mux.Handle("POST /api/sources/{id}/ingest", authed(a.handleIngestSource))
	mux.Handle("POST /api/sources/{id}/sync", authed(a.handleIngestSource))

	mux.Handle("GET /api/sessions", authed(a.handleListSessions))
	mux.Handle("POST /api/sessions", authed(a.handleCreateSession))
	mux.Handle("GET /api/sessions/{id}", authed(a.handleGetSession))
	mux.Handle("DELETE /api/sessions/{id}", authed(a.handleDeleteSession))
	mux.Handle("GET /api/sessions/{id}/messages", authed(a.handleMessages))
	mux.Handle("POST /api/sessions/{id}/query", authed(a.handleQuery))
	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- sources ---

// CreateSourceRequest is the JSON body for POST /api/sources.
type CreateSourceRequest struct {
	Kind      string            `json:"kind"`
	Name      string            `json:"name"`
	AgentRole string            `json:"agent_role"`
	APIURL    string            `json:"api_url"`
	APIKey    string            `json:"api_key"`
	Headers   map[string]string `json:"headers"`
	DataPath  string            `json:"data_path"`
	PDFPath   string            `json:"pdf_path"`
}

func (a *api) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req CreateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	src := domain.Source{
		OwnerID:   mid.UserFrom(r.Context()),
		Kind:      domain.SourceKind(req.Kind),
		Name:      req.Name,
		AgentRole: req.AgentRole,
		APIURL:    req.APIURL,
		APIKey:    req.APIKey,
		Headers:   req.Headers,
		DataPath:  req.DataPath,
		PDFPath:   req.PDFPath,
	}
	if err := domain.ValidateSource(src); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := a.sources.CreateSource(r.Context(), src)
	if err != nil {
		a.fail(w, "create source", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *api) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := a.sources.ListSources(r.Context(), mid.UserFrom(r.Context()))
	if err != nil {
		a.fail(w, "list sources", err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (a *api) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, ok := a.loadSource(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (a *api) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	src, ok := a.loadSource(w, r)
	if !ok {
		return
	}

	// Drop the vector collection first; a failure there must not leave
	// the source row behind.
	if err := a.index.Drop(r.Context(), src); err != nil {
		a.logger.Error("drop collection on delete", "source", src.ID, "error", err)
	}
	if err := a.sources.DeleteSource(r.Context(), src.ID, src.OwnerID); err != nil {
		a.fail(w, "delete source", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleIngestSource(w http.ResponseWriter, r *http.Request) {
	src, ok := a.loadSource(w, r)
	if !ok {
		return
	}

	a.reg.Counter(metrics.WithLabels("ingest_requests_total", "kind", string(src.Kind)),
		"Ingest requests accepted.").Inc()

	outcome, err := a.ingest.Start(r.Context(), src)
	if err != nil {
		a.logger.Error("ingest", "source", src.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if outcome.Queued {
		writeJSON(w, http.StatusAccepted, map[string]any{"source_id": src.ID, "status": "queued"})
		return
	}
	a.reg.Counter("documents_indexed_total", "Documents indexed by inline ingests.").
		Add(int64(outcome.Documents))
	writeJSON(w, http.StatusOK, map[string]any{
		"source_id": src.ID,
		"status":    string(domain.StatusReady),
		"documents": outcome.Documents,
	})
}

func (a *api) loadSource(w http.ResponseWriter, r *http.Request) (domain.Source, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return domain.Source{}, false
	}
	src, err := a.sources.GetSource(r.Context(), id, mid.UserFrom(r.Context()))
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "source not found")
		return domain.Source{}, false
	}
	if err != nil {
		a.fail(w, "get source", err)
		return domain.Source{}, false
	}
	return src, true
}

// --- sessions ---

// CreateSessionRequest is the JSON body for POST /api/sessions.
type CreateSessionRequest struct {
	SourceID int64  `json:"source_id"`
	Title    string `json:"title"`
}

func (a *api) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	owner := mid.UserFrom(r.Context())
	if _, err := a.sources.GetSource(r.Context(), req.SourceID, owner); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		a.fail(w, "get source", err)
		return
	}

	sess, err := a.sessions.CreateSession(r.Context(), owner, req.SourceID, req.Title)
	if err != nil {
		a.fail(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (a *api) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var sourceID int64
	if v := r.URL.Query().Get("source_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid source_id")
			return
		}
		sourceID = id
	}
	sessions, err := a.sessions.ListSessions(r.Context(), mid.UserFrom(r.Context()), sourceID)
	if err != nil {
		a.fail(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *api) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *api) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	if err := a.sessions.DeleteSession(r.Context(), sess.ID, sess.OwnerID); err != nil {
		a.fail(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	messages, err := a.sessions.Messages(r.Context(), sess.ID)
	if err != nil {
		a.fail(w, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// QueryRequest is the JSON body for POST /api/sessions/{id}/query.
type QueryRequest struct {
	Question string `json:"question"`
}

func (a *api) handleQuery(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.loadSession(w, r)
	if !ok {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	src, err := a.sources.GetSource(r.Context(), sess.SourceID, sess.OwnerID)
	if err != nil {
		a.fail(w, "get session source", err)
		return
	}

	start := time.Now()
	answer, err := a.rag.Ask(r.Context(), src, sess.ID, req.Question)
	a.reg.Histogram("query_duration_seconds", "Chat query latency.", nil).Since(start)
	if err != nil {
		a.reg.Counter("query_errors_total", "Failed chat queries.").Inc()
		a.fail(w, "answer query", err)
		return
	}
	a.reg.Counter("queries_total", "Answered chat queries.").Inc()
	writeJSON(w, http.StatusOK, answer)
}

func (a *api) loadSession(w http.ResponseWriter, r *http.Request) (repo.Session, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return repo.Session{}, false
	}
	sess, err := a.sessions.GetSession(r.Context(), id, mid.UserFrom(r.Context()))
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return repo.Session{}, false
	}
	if err != nil {
		a.fail(w, "get session", err)
		return repo.Session{}, false
	}
	return sess, true
}

// --- helpers ---

func (a *api) fail(w http.ResponseWriter, op string, err error) {
	a.logger.Error(op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
