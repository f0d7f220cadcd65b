package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for fetch failures. "Not found" cases are explicit
// values so callers handle them without catching generic errors.
var (
	ErrPathNotFound = errors.New("data path not found in response")
	ErrInvalidShape = errors.New("response is not an object or array")
	ErrMissingFile  = errors.New("no file attached to source")
)

// FetchError wraps a transport or HTTP failure while fetching a source.
type FetchError struct {
	URL     string
	Status  int // 0 when the request never completed
	Wrapped error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Wrapped)
}

func (e *FetchError) Unwrap() error { return e.Wrapped }

// ProviderError wraps an embedding or LLM provider failure.
type ProviderError struct {
	Provider string // "embed" or "chat"
	Wrapped  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Wrapped)
}

func (e *ProviderError) Unwrap() error { return e.Wrapped }
