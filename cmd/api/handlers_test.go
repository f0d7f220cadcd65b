package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sourcechat/sourcechat/engine/domain"
	"github.com/sourcechat/sourcechat/engine/rag"
	"github.com/sourcechat/sourcechat/pkg/metrics"
	"github.com/sourcechat/sourcechat/pkg/repo"
)

// --- fakes ---

type fakeSources struct {
	byID    map[int64]domain.Source
	nextID  int64
	deleted []int64
}

func (f *fakeSources) CreateSource(_ context.Context, src domain.Source) (domain.Source, error) {
	f.nextID++
	src.ID = f.nextID
	src.Status = domain.StatusPending
	if f.byID == nil {
		f.byID = map[int64]domain.Source{}
	}
	f.byID[src.ID] = src
	return src, nil
}

func (f *fakeSources) GetSource(_ context.Context, id, ownerID int64) (domain.Source, error) {
	src, ok := f.byID[id]
	if !ok || src.OwnerID != ownerID {
		return domain.Source{}, repo.ErrNotFound
	}
	return src, nil
}

func (f *fakeSources) ListSources(_ context.Context, ownerID int64) ([]domain.Source, error) {
	out := []domain.Source{}
	for _, src := range f.byID {
		if src.OwnerID == ownerID {
			out = append(out, src)
		}
	}
	return out, nil
}

func (f *fakeSources) DeleteSource(_ context.Context, id, ownerID int64) error {
	src, ok := f.byID[id]
	if !ok || src.OwnerID != ownerID {
		return repo.ErrNotFound
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeSessions struct {
	byID   map[int64]repo.Session
	nextID int64
	msgs   map[int64][]repo.Message
}

func (f *fakeSessions) CreateSession(_ context.Context, ownerID, sourceID int64, title string) (repo.Session, error) {
	f.nextID++
	sess := repo.Session{ID: f.nextID, OwnerID: ownerID, SourceID: sourceID, Title: title}
	if f.byID == nil {
		f.byID = map[int64]repo.Session{}
	}
	f.byID[sess.ID] = sess
	return sess, nil
}

func (f *fakeSessions) GetSession(_ context.Context, id, ownerID int64) (repo.Session, error) {
	sess, ok := f.byID[id]
	if !ok || sess.OwnerID != ownerID {
		return repo.Session{}, repo.ErrNotFound
	}
	return sess, nil
}

func (f *fakeSessions) ListSessions(_ context.Context, ownerID, sourceID int64) ([]repo.Session, error) {
	out := []repo.Session{}
	for _, sess := range f.byID {
		if sess.OwnerID == ownerID && (sourceID == 0 || sess.SourceID == sourceID) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (f *fakeSessions) DeleteSession(_ context.Context, id, ownerID int64) error {
	if _, err := f.GetSession(context.Background(), id, ownerID); err != nil {
		return err
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeSessions) Messages(_ context.Context, sessionID int64) ([]repo.Message, error) {
	return f.msgs[sessionID], nil
}

type fakeIngest struct {
	started []int64
	queued  bool
	count   int
	err     error
}

func (f *fakeIngest) Start(_ context.Context, src domain.Source) (IngestOutcome, error) {
	if f.err != nil {
		return IngestOutcome{}, f.err
	}
	f.started = append(f.started, src.ID)
	return IngestOutcome{Queued: f.queued, Documents: f.count}, nil
}

type fakeDropper struct{ dropped []string }

func (f *fakeDropper) Drop(_ context.Context, src domain.Source) error {
	f.dropped = append(f.dropped, src.CollectionName())
	return nil
}

type fakeAsker struct {
	answer rag.Answer
	err    error
}

func (f *fakeAsker) Ask(_ context.Context, _ domain.Source, _ int64, _ string) (rag.Answer, error) {
	return f.answer, f.err
}

type apiFixture struct {
	*api
	sourcesF  *fakeSources
	sessionsF *fakeSessions
	ingestF   *fakeIngest
	dropF     *fakeDropper
	askF      *fakeAsker
	handler   http.Handler
}

func newFixture() *apiFixture {
	f := &apiFixture{
		sourcesF:  &fakeSources{},
		sessionsF: &fakeSessions{},
		ingestF:   &fakeIngest{},
		dropF:     &fakeDropper{},
		askF:      &fakeAsker{answer: rag.Answer{Text: "answer", Sources: []string{"products"}}},
	}
	f.api = &api{
		sources:  f.sourcesF,
		sessions: f.sessionsF,
		ingest:   f.ingestF,
		index:    f.dropF,
		rag:      f.askF,
		reg:      metrics.New(),
		logger:   slog.Default(),
	}
	f.handler = f.api.routes()
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string, user int64) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != 0 {
		req.Header.Set("X-User-ID", fmt.Sprint(user))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestHealth(t *testing.T) {
	f := newFixture()
	rec := f.do(t, "GET", "/api/health", "", 0)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture()
	rec := f.do(t, "GET", "/api/sources", "", 0)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without X-User-ID, got %d", rec.Code)
	}
}

func TestCreateSource(t *testing.T) {
	f := newFixture()
	rec := f.do(t, "POST", "/api/sources",
		`{"kind":"api","name":"products","api_url":"http://api/items"}`, 1)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var src domain.Source
	json.Unmarshal(rec.Body.Bytes(), &src)
	if src.ID == 0 || src.Status != domain.StatusPending {
		t.Errorf("unexpected created source: %+v", src)
	}
}

func TestCreateSource_Invalid(t *testing.T) {
	f := newFixture()
	for _, body := range []string{
		`{"kind":"api","name":"x"}`,       // api without url
		`{"kind":"ftp","name":"x"}`,       // unknown kind
		`{"kind":"api","api_url":"http"}`, // missing name
	} {
		rec := f.do(t, "POST", "/api/sources", body, 1)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %s, got %d", body, rec.Code)
		}
	}
}

func TestGetSource_OwnerScoped(t *testing.T) {
	f := newFixture()
	f.do(t, "POST", "/api/sources", `{"kind":"api","name":"p","api_url":"http://a"}`, 1)

	if rec := f.do(t, "GET", "/api/sources/1", "", 1); rec.Code != http.StatusOK {
		t.Errorf("owner expected 200, got %d", rec.Code)
	}
	if rec := f.do(t, "GET", "/api/sources/1", "", 2); rec.Code != http.StatusNotFound {
		t.Errorf("other user expected 404, got %d", rec.Code)
	}
}

func TestDeleteSource_DropsCollection(t *testing.T) {
	f := newFixture()
	f.do(t, "POST", "/api/sources", `{"kind":"api","name":"p","api_url":"http://a"}`, 1)

	rec := f.do(t, "DELETE", "/api/sources/1", "", 1)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(f.dropF.dropped) != 1 || f.dropF.dropped[0] != "source_1_1" {
		t.Errorf("expected collection drop, got %v", f.dropF.dropped)
	}
	if len(f.sourcesF.deleted) != 1 {
		t.Errorf("expected source row delete, got %v", f.sourcesF.deleted)
	}
}

func TestIngestSource_Inline(t *testing.T) {
	f := newFixture()
	f.ingestF.count = 7
	f.do(t, "POST", "/api/sources", `{"kind":"api","name":"p","api_url":"http://a"}`, 1)

	rec := f.do(t, "POST", "/api/sources/1/ingest", "", 1)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if len(f.ingestF.started) != 1 || f.ingestF.started[0] != 1 {
		t.Errorf("expected ingest started for source 1, got %v", f.ingestF.started)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["documents"] != float64(7) || body["status"] != "ready" {
		t.Errorf("unexpected response: %v", body)
	}

	// /sync is an alias for re-ingest.
	if rec := f.do(t, "POST", "/api/sources/1/sync", "", 1); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for sync, got %d", rec.Code)
	}
}

func TestIngestSource_Queued(t *testing.T) {
	f := newFixture()
	f.ingestF.queued = true
	f.do(t, "POST", "/api/sources", `{"kind":"api","name":"p","api_url":"http://a"}`, 1)

	rec := f.do(t, "POST", "/api/sources/1/ingest", "", 1)
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202 when queued, got %d", rec.Code)
	}
}

func TestIngestSource_FailureSurfacesError(t *testing.T) {
	f := newFixture()
	f.ingestF.err = fmt.Errorf("upstream returned 503")
	f.do(t, "POST", "/api/sources", `{"kind":"api","name":"p","api_url":"http://a"}`, 1)

	rec := f.do(t, "POST", "/api/sources/1/ingest", "", 1)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "upstream returned 503") {
		t.Errorf("error text must reach the client, got %s", rec.Body)
	}
}

func TestSessionsFlow(t *testing.T) {
	f := newFixture()
	f.do(t, "POST", "/api/sources", `{"kind":"api","name":"p","api_url":"http://a"}`, 1)

	rec := f.do(t, "POST", "/api/sessions", `{"source_id":1}`, 1)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	if rec := f.do(t, "POST", "/api/sessions", `{"source_id":99}`, 1); rec.Code != http.StatusNotFound {
		t.Errorf("session over unknown source expected 404, got %d", rec.Code)
	}

	if rec := f.do(t, "GET", "/api/sessions", "", 1); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := f.do(t, "GET", "/api/sessions/1", "", 2); rec.Code != http.StatusNotFound {
		t.Errorf("other user expected 404, got %d", rec.Code)
	}
	if rec := f.do(t, "DELETE", "/api/sessions/1", "", 1); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestQuery(t *testing.T) {
	f := newFixture()
	f.do(t, "POST", "/api/sources", `{"kind":"api","name":"p","api_url":"http://a"}`, 1)
	f.do(t, "POST", "/api/sessions", `{"source_id":1}`, 1)

	rec := f.do(t, "POST", "/api/sessions/1/query", `{"question":"how much?"}`, 1)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var answer rag.Answer
	json.Unmarshal(rec.Body.Bytes(), &answer)
	if answer.Text != "answer" || len(answer.Sources) != 1 {
		t.Errorf("unexpected answer: %+v", answer)
	}

	if rec := f.do(t, "POST", "/api/sessions/1/query", `{"question":""}`, 1); rec.Code != http.StatusBadRequest {
		t.Errorf("empty question expected 400, got %d", rec.Code)
	}
}

func TestQuery_ProviderFailure(t *testing.T) {
	f := newFixture()
	f.askF.err = fmt.Errorf("provider down")
	f.do(t, "POST", "/api/sources", `{"kind":"api","name":"p","api_url":"http://a"}`, 1)
	f.do(t, "POST", "/api/sessions", `{"source_id":1}`, 1)

	rec := f.do(t, "POST", "/api/sessions/1/query", `{"question":"q"}`, 1)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
