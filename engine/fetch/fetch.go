// Package fetch retrieves raw content for a source: JSON items from an HTTP
// API navigated by a dot-separated path, or per-page text extracted from an
// uploaded PDF.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sourcechat/sourcechat/engine/domain"
)

// DefaultTimeout bounds a single outbound API request. There is no retry;
// a failed fetch surfaces to the orchestrator as-is.
const DefaultTimeout = 60 * time.Second

// Page is the extracted text of one PDF page.
type Page struct {
	Number int
	Text   string
}

// Result holds fetched content for one source. Exactly one of Items or
// Pages is populated, depending on the source kind.
type Result struct {
	Items []map[string]any
	Pages []Page
}

// Fetcher retrieves raw source content. Safe for concurrent use.
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher with the default request timeout and traced
// outbound requests.
func New() *Fetcher {
	return &Fetcher{client: &http.Client{
		Timeout:   DefaultTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}}
}

// NewWithClient creates a Fetcher using the given HTTP client.
func NewWithClient(c *http.Client) *Fetcher {
	return &Fetcher{client: c}
}

// Fetch retrieves the raw content for a source according to its kind.
func (f *Fetcher) Fetch(ctx context.Context, src domain.Source) (Result, error) {
	switch src.Kind {
	case domain.KindAPI:
		items, err := f.fetchAPI(ctx, src)
		if err != nil {
			return Result{}, err
		}
		return Result{Items: items}, nil
	case domain.KindPDF:
		pages, err := fetchPDF(src)
		if err != nil {
			return Result{}, err
		}
		return Result{Pages: pages}, nil
	default:
		return Result{}, fmt.Errorf("fetch: unknown source kind %q", src.Kind)
	}
}
