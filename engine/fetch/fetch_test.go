package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sourcechat/sourcechat/engine/domain"
)

func apiSource(url, path string) domain.Source {
	return domain.Source{ID: 1, OwnerID: 1, Name: "test", Kind: domain.KindAPI, APIURL: url, DataPath: path}
}

func TestFetchAPI_ArrayAtPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"products": [{"id": 1, "title": "Phone", "price": 500}, {"id": 2, "title": "Laptop"}]}`))
	}))
	defer srv.Close()

	res, err := New().Fetch(context.Background(), apiSource(srv.URL, "products"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}
	if res.Items[0]["title"] != "Phone" {
		t.Errorf("unexpected first item: %v", res.Items[0])
	}
}

func TestFetchAPI_NestedPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"items": [{"id": "a"}]}}`))
	}))
	defer srv.Close()

	res, err := New().Fetch(context.Background(), apiSource(srv.URL, "data.items"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0]["id"] != "a" {
		t.Errorf("unexpected items: %v", res.Items)
	}
}

func TestFetchAPI_SingleObjectWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 7, "name": "only"}`))
	}))
	defer srv.Close()

	res, err := New().Fetch(context.Background(), apiSource(srv.URL, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("expected single wrapped item, got %d", len(res.Items))
	}
}

func TestFetchAPI_PathNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"products": []}`))
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), apiSource(srv.URL, "results.items"))
	if !errors.Is(err, domain.ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}
}

func TestFetchAPI_PathThroughNonObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"products": "not-an-object"}`))
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), apiSource(srv.URL, "products.nested"))
	if !errors.Is(err, domain.ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}
}

func TestFetchAPI_InvalidShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count": 3}`))
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), apiSource(srv.URL, "count"))
	if !errors.Is(err, domain.ErrInvalidShape) {
		t.Errorf("expected ErrInvalidShape, got %v", err)
	}
}

func TestFetchAPI_HeadersAndBearer(t *testing.T) {
	var gotAuth, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotExtra = r.Header.Get("X-Custom")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	src := apiSource(srv.URL, "")
	src.APIKey = "secret"
	src.Headers = map[string]string{"X-Custom": "yes"}

	if _, err := New().Fetch(context.Background(), src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
	if gotExtra != "yes" {
		t.Errorf("expected custom header, got %q", gotExtra)
	}
}

func TestFetchAPI_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), apiSource(srv.URL, ""))
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Status != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", fe.Status)
	}
}

func TestFetchPDF_MissingFile(t *testing.T) {
	_, err := New().Fetch(context.Background(), domain.Source{ID: 1, Name: "x", Kind: domain.KindPDF})
	if !errors.Is(err, domain.ErrMissingFile) {
		t.Errorf("expected ErrMissingFile, got %v", err)
	}
}

func TestFetch_UnknownKind(t *testing.T) {
	_, err := New().Fetch(context.Background(), domain.Source{ID: 1, Name: "x", Kind: "rss"})
	if err == nil {
		t.Error("expected error for unknown kind")
	}
}
