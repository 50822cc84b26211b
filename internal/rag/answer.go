package rag

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
	"github.com/docuchat/go-pdf-chat-backend/internal/llm"
)

const systemPrompt = "You are a helpful assistant answering questions about a document. " +
	"Use ONLY the context passages below to answer. If the context does not " +
	"contain the answer, say you don't know instead of guessing.\n\nContext:\n%s"

// Answerer produces a grounded answer for one question against one
// document's retriever.
type Answerer struct {
	Completer llm.Completer
}

// Answer retrieves the relevant passages, assembles the prompt (system
// instruction with context, then prior turns, then the question) and issues
// a single completion.
//
// The empty-question guard runs before any collaborator call: a blank
// question must not cost an embedding round-trip. A failed completion call
// maps to ErrGenerationFailed; a completion that comes back without text
// maps to ErrMissingAnswer.
func (a *Answerer) Answer(ctx context.Context, retriever *Retriever, question string, history []domain.ChatTurn) (string, error) {
	tr := otel.Tracer("rag/Answerer")
	ctx, span := tr.Start(ctx, "Answer",
		trace.WithAttributes(attribute.Int("history.turns", len(history))),
	)
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}

	passages, err := retriever.Retrieve(ctx, question)
	if err != nil {
		return "", err
	}

	messages := buildPrompt(passages, history, question)
	answer, err := a.Completer.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", ErrMissingAnswer
	}
	return answer, nil
}

// buildPrompt lays the conversation out oldest-first with the question as
// the final user turn. History roles map human→user and ai→assistant; turns
// with any other role are skipped.
func buildPrompt(passages []Passage, history []domain.ChatTurn, question string) []llm.Message {
	var ctxText strings.Builder
	if len(passages) == 0 {
		ctxText.WriteString("(no relevant passages found)")
	}
	for i, p := range passages {
		if i > 0 {
			ctxText.WriteString("\n\n")
		}
		ctxText.WriteString(p.Text)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: fmt.Sprintf(systemPrompt, ctxText.String()),
	})
	for _, turn := range history {
		var role string
		switch turn.Role {
		case domain.RoleHuman:
			role = "user"
		case domain.RoleAI:
			role = "assistant"
		default:
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})
	return messages
}
