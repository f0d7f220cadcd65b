package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcechat/sourcechat/engine/domain"
	"github.com/sourcechat/sourcechat/engine/semantic"
)

// NoContextAnswer is returned when composition is attempted with no
// retrieved chunks at all.
const NoContextAnswer = "No relevant data found in the knowledge base."

// Generation parameters for answer composition. Low temperature keeps
// answers close to the retrieved text.
const (
	answerTemperature = 0.2
	answerMaxTokens   = 1024
)

const defaultRole = "a helpful assistant that answers questions using the provided context"

// ChatCompleter is the single-exchange chat interface the composer needs.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error)
}

// Composer turns retrieved chunks and a question into a grounded answer.
type Composer struct {
	chat ChatCompleter
}

// NewComposer creates a Composer.
func NewComposer(chat ChatCompleter) *Composer {
	return &Composer{chat: chat}
}

// Compose answers the question from the given chunks only. The source's
// agent role, when set, shapes the assistant persona.
func (c *Composer) Compose(ctx context.Context, src domain.Source, question string, contexts []semantic.SearchResult) (string, error) {
	if len(contexts) == 0 {
		return NoContextAnswer, nil
	}

	role := strings.TrimSpace(src.AgentRole)
	if role == "" {
		role = defaultRole
	}

	system := fmt.Sprintf(`You are %s.

Answer strictly from the context below. If the context does not contain the answer, say so instead of guessing.

Structure your answer in three labeled sections:
Answer: a direct answer to the question.
Facts: the supporting facts from the context, as bullet points.
Evidence: short verbatim snippets from the context that back the facts.`, role)

	var b strings.Builder
	b.WriteString("Context:\n")
	for _, c := range contexts {
		b.WriteString("- ")
		b.WriteString(c.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	answer, err := c.chat.Complete(ctx, system, b.String(), answerTemperature, answerMaxTokens)
	if err != nil {
		return "", fmt.Errorf("rag: compose answer: %w", err)
	}
	return answer, nil
}
