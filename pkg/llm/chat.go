package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"github.com/sourcechat/sourcechat/engine/domain"
)

// chatTimeout bounds a single completion call; a slow call fails at the
// transport level rather than hanging.
const chatTimeout = 60 * time.Second

// ChatClient calls an OpenAI-compatible chat-completion endpoint.
type ChatClient struct {
	client  openai.Client
	model   string
	limiter *rate.Limiter
}

// NewChatClient creates a ChatClient. baseURL may be empty for the default
// OpenAI endpoint.
func NewChatClient(apiKey, baseURL, model string) (*ChatClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: chat api key not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &ChatClient{
		client:  openai.NewClient(opts...),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}, nil
}

// Complete sends one system+user exchange and returns the trimmed reply.
// There is no retry; provider failures propagate to the caller.
func (c *ChatClient) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &domain.ProviderError{Provider: "chat", Wrapped: err}
	}
	if len(completion.Choices) == 0 {
		return "", &domain.ProviderError{Provider: "chat", Wrapped: fmt.Errorf("no completion choices returned")}
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
