package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcechat/sourcechat/engine/domain"
)

// FallbackAnswer is stored when retrieval returns nothing for a
// question in a chat session.
const FallbackAnswer = "I couldn't find relevant information in your indexed data."

// TitleMaxLen caps the auto-generated session title.
const TitleMaxLen = 100

// Message roles as persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageStore persists the chat transcript the service produces.
type MessageStore interface {
	AppendMessage(ctx context.Context, sessionID int64, role, content string, sources []string) error
	UserMessageCount(ctx context.Context, sessionID int64) (int, error)
	SetTitle(ctx context.Context, sessionID int64, title string) error
}

// Answer is one answered question, with the source names behind it.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Service runs the full chat turn: persist the question, retrieve,
// compose, persist the reply.
type Service struct {
	retriever *Retriever
	composer  *Composer
	messages  MessageStore
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(retriever *Retriever, composer *Composer, messages MessageStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{retriever: retriever, composer: composer, messages: messages, logger: logger}
}

// Ask handles one question in a session. The user message is always
// persisted first; the first question also becomes the session title.
// Composition failures are recorded in the transcript as an assistant
// error message and returned to the caller.
func (s *Service) Ask(ctx context.Context, src domain.Source, sessionID int64, question string) (Answer, error) {
	if err := s.messages.AppendMessage(ctx, sessionID, RoleUser, question, nil); err != nil {
		return Answer{}, fmt.Errorf("rag: persist question: %w", err)
	}

	count, err := s.messages.UserMessageCount(ctx, sessionID)
	if err != nil {
		s.logger.Error("session title check", "session", sessionID, "error", err)
	} else if count == 1 {
		if err := s.messages.SetTitle(ctx, sessionID, truncate(question, TitleMaxLen)); err != nil {
			s.logger.Error("session title set", "session", sessionID, "error", err)
		}
	}

	answer, err := s.answer(ctx, src, question)
	if err != nil {
		if aerr := s.messages.AppendMessage(ctx, sessionID, RoleAssistant, "Error: "+err.Error(), nil); aerr != nil {
			s.logger.Error("persist error reply", "session", sessionID, "error", aerr)
		}
		return Answer{}, err
	}

	if err := s.messages.AppendMessage(ctx, sessionID, RoleAssistant, answer.Text, answer.Sources); err != nil {
		return answer, fmt.Errorf("rag: persist answer: %w", err)
	}
	return answer, nil
}

func (s *Service) answer(ctx context.Context, src domain.Source, question string) (Answer, error) {
	retrieval, err := s.retriever.Retrieve(ctx, src, question)
	if err != nil {
		return Answer{}, err
	}
	if len(retrieval.Contexts) == 0 {
		return Answer{Text: FallbackAnswer}, nil
	}

	text, err := s.composer.Compose(ctx, src, question, retrieval.Contexts)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Sources: retrieval.Sources}, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
