package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sourcechat/sourcechat/engine/domain"
)

// fetchAPI issues a single GET against the source's URL and resolves the
// configured data path to a sequence of JSON objects.
func (f *Fetcher) fetchAPI(ctx context.Context, src domain.Source) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.APIURL, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: src.APIURL, Wrapped: err}
	}
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}
	if src.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+src.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: src.APIURL, Wrapped: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.FetchError{URL: src.APIURL, Status: resp.StatusCode}
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &domain.FetchError{URL: src.APIURL, Wrapped: fmt.Errorf("decode json: %w", err)}
	}

	if src.DataPath != "" {
		data, err = navigate(data, src.DataPath)
		if err != nil {
			return nil, err
		}
	}

	return toItems(data)
}

// navigate descends through data by splitting path on "." and indexing into
// objects. A missing segment or a non-object intermediate value is an
// ErrPathNotFound, surfaced as a value rather than a caught exception.
func navigate(data any, path string) (any, error) {
	for _, key := range strings.Split(path, ".") {
		key = strings.TrimSpace(key)
		obj, ok := data.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("fetch: path %q: %w", path, domain.ErrPathNotFound)
		}
		data, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("fetch: path %q: %w", path, domain.ErrPathNotFound)
		}
	}
	return data, nil
}

// toItems coerces the resolved value into a sequence of objects: a single
// object becomes a one-element sequence, anything else is ErrInvalidShape.
func toItems(data any) ([]map[string]any, error) {
	switch v := data.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		items := make([]map[string]any, 0, len(v))
		for i, el := range v {
			obj, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("fetch: element %d: %w", i, domain.ErrInvalidShape)
			}
			items = append(items, obj)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("fetch: %w", domain.ErrInvalidShape)
	}
}
