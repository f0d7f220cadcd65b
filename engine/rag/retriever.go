// Package rag answers questions over a source's indexed content:
// retrieve the most similar chunks from the vector index, then compose
// a grounded answer with a chat model.
package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/sourcechat/sourcechat/engine/domain"
	"github.com/sourcechat/sourcechat/engine/semantic"
	"github.com/sourcechat/sourcechat/pkg/fn"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// Searcher is the slice of the vector store the retriever needs.
type Searcher interface {
	Exists(ctx context.Context, name string) (bool, error)
	Search(ctx context.Context, name string, embedding []float32, topK int) ([]semantic.SearchResult, error)
}

// QueryEmbedder encodes a single query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retrieval is the ranked context for one question.
type Retrieval struct {
	Contexts []semantic.SearchResult
	Sources  []string
}

// Retriever runs similarity search against a source's collection.
type Retriever struct {
	store Searcher
	embed QueryEmbedder
	topK  int
}

// NewRetriever creates a Retriever. topK <= 0 selects DefaultTopK.
func NewRetriever(store Searcher, embed QueryEmbedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{store: store, embed: embed, topK: topK}
}

// Retrieve returns the topK most similar chunks for the question. A
// source whose collection does not exist yet (never ingested, or
// ingestion failed before indexing) yields an empty Retrieval, not an
// error.
func (r *Retriever) Retrieve(ctx context.Context, src domain.Source, question string) (Retrieval, error) {
	name := src.CollectionName()
	exists, err := r.store.Exists(ctx, name)
	if err != nil {
		return Retrieval{}, fmt.Errorf("rag: check collection %s: %w", name, err)
	}
	if !exists {
		return Retrieval{}, nil
	}

	vec, err := r.embed.Embed(ctx, question)
	if err != nil {
		return Retrieval{}, fmt.Errorf("rag: embed question: %w", err)
	}

	hits, err := r.store.Search(ctx, name, vec, r.topK)
	if err != nil {
		return Retrieval{}, fmt.Errorf("rag: search %s: %w", name, err)
	}

	sources := fn.Unique(fn.FilterMap(hits, func(h semantic.SearchResult) (string, bool) {
		return h.SourceName, h.SourceName != ""
	}))
	sort.Strings(sources)

	return Retrieval{Contexts: hits, Sources: sources}, nil
}
