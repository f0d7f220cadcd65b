// Package llm wraps an OpenAI-compatible endpoint for embeddings and chat
// completions. Both clients are constructed once at process start and
// shared by all in-flight pipeline invocations.
package llm

import (
	"context"
	"fmt"
	"math"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"github.com/sourcechat/sourcechat/engine/domain"
)

// apiBatchMax is the largest input batch one embeddings request carries.
const apiBatchMax = 100

// Embedder generates L2-normalized embedding vectors. The same instance
// must embed both documents and queries so similarity scores are
// comparable.
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	limiter   *rate.Limiter
}

// NewEmbedder creates an Embedder. baseURL may be empty for the default
// OpenAI endpoint; Groq-style compatible endpoints work the same way.
func NewEmbedder(apiKey, baseURL, model string, dimension int) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: embedder api key not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Embedder{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
		limiter:   rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

// Dimension returns the configured embedding dimension.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed encodes a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, &domain.ProviderError{Provider: "embed", Wrapped: fmt.Errorf("no embedding returned")}
	}
	return vectors[0], nil
}

// EmbedBatch encodes all texts, splitting into API-sized requests as
// needed, and returns one L2-normalized vector per input in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += apiBatchMax {
		end := start + apiBatchMax
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedRequest(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, &domain.ProviderError{Provider: "embed", Wrapped: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &domain.ProviderError{
			Provider: "embed",
			Wrapped:  fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		v := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			v[j] = float32(f)
		}
		Normalize(v)
		vectors[i] = v
	}
	return vectors, nil
}

// Normalize scales v to unit L2 norm in place. Zero vectors are left as-is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
