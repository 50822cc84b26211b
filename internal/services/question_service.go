// Package services – QuestionService
//
// This file implements QuestionService, the application-level component that
// owns the question pipeline: quota check, vector-store attachment, history
// loading, persistence of the human turn, grounded answer generation, and
// persistence of the assistant turn.
//
// The pipeline deliberately does not roll back the human message when a
// later stage fails: the question was asked and it counts against quota even
// when no answer could be produced. Stage failures after validation are
// reported through AskResult reason codes, never through raw error text.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include document/user identifiers and the failure reason where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
	"github.com/docuchat/go-pdf-chat-backend/internal/rag"
	"github.com/docuchat/go-pdf-chat-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Failure reason codes carried by AskResult. Stable values: handlers and
// clients branch on them.
const (
	ReasonQuotaExceeded        = "quota_exceeded"
	ReasonPersistQuestionError = "persist_question_failed"
	ReasonGenerationError      = "generation_failed"
	ReasonPersistAnswerError   = "persist_answer_failed"
	ReasonInternal             = "internal"
)

// AskResult is the discriminated outcome of one question. Exactly one of
// the two shapes holds: Success with a persisted assistant message, or
// failure with a Reason code and a nil Answer.
type AskResult struct {
	Success bool
	Answer  *domain.ChatMessage
	Reason  string
}

// StoreProvider attaches (building if needed) the document's vector store.
type StoreProvider interface {
	EnsureStore(ctx context.Context, documentID string) (*rag.Retriever, error)
}

// AnswerProvider generates a grounded answer from a retriever, a question,
// and prior conversation turns.
type AnswerProvider interface {
	Answer(ctx context.Context, retriever *rag.Retriever, question string, history []domain.ChatTurn) (string, error)
}

// QuestionRepo is the persistence contract QuestionService depends on.
type QuestionRepo interface {
	// GetDocument fetches a document ensuring it belongs to the user.
	GetDocument(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Document, error)

	// CreateMessage inserts one chat message under the document.
	CreateMessage(ctx context.Context, db *gorm.DB, documentID, userID, role, message string) (*domain.ChatMessage, error)

	// CountMessages returns the total message count for pagination.
	CountMessages(ctx context.Context, db *gorm.DB, documentID string) (int64, error)

	// ListMessagesPage returns a page of the document's messages in
	// chronological order.
	ListMessagesPage(ctx context.Context, db *gorm.DB, documentID string, offset, limit int) ([]domain.ChatMessage, error)
}

// QuestionService coordinates the full ask pipeline for one document.
type QuestionService struct {
	DB       *gorm.DB
	Repo     QuestionRepo
	Quota    *QuotaService
	History  *HistoryService
	Stores   StoreProvider
	Answerer AnswerProvider

	// MaxQuestionRunes caps accepted questions; <= 0 disables the cap.
	MaxQuestionRunes int
}

// Ask runs the pipeline for one question and returns its outcome.
//
// Validation failures (blank question, overlong question, unknown document)
// return sentinel errors so handlers map them to 4xx. Everything after
// validation folds into AskResult: quota exhaustion, stage failures, and
// success. The human turn is persisted before generation and survives any
// later failure.
func (s *QuestionService) Ask(ctx context.Context, userID, documentID, question string) (*AskResult, error) {
	tr := otel.Tracer("services/QuestionService")
	ctx, span := tr.Start(ctx, "Ask",
		trace.WithAttributes(
			attribute.String("document.id", documentID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if s.MaxQuestionRunes > 0 && utf8.RuneCountInString(question) > s.MaxQuestionRunes {
		return nil, ErrTooLong
	}

	if _, err := s.Repo.GetDocument(ctx, s.DB, documentID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}

	if err := s.Quota.Check(ctx, userID, documentID); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return s.failed(span, ReasonQuotaExceeded), nil
		}
		return s.failed(span, ReasonInternal), nil
	}

	// History is loaded before the human turn is written so the question
	// being asked does not appear twice in the prompt.
	history, err := s.History.Load(ctx, documentID)
	if err != nil {
		return s.failed(span, ReasonInternal), nil
	}

	if _, err := s.Repo.CreateMessage(ctx, s.DB, documentID, userID, domain.RoleHuman, question); err != nil {
		return s.failed(span, ReasonPersistQuestionError), nil
	}

	// Store attachment and generation run after the human turn is written:
	// the question was asked, it stays in history and counts against quota
	// even when no answer can be produced.
	retriever, err := s.Stores.EnsureStore(ctx, documentID)
	if err != nil {
		return s.failed(span, ReasonGenerationError), nil
	}

	answer, err := s.Answerer.Answer(ctx, retriever, question, history)
	if err != nil {
		// The human message stays; the question was asked.
		return s.failed(span, ReasonGenerationError), nil
	}

	aiMsg, err := s.Repo.CreateMessage(ctx, s.DB, documentID, userID, domain.RoleAI, answer)
	if err != nil {
		return s.failed(span, ReasonPersistAnswerError), nil
	}

	span.SetAttributes(attribute.Bool("ask.success", true))
	return &AskResult{Success: true, Answer: aiMsg}, nil
}

// ListPage returns paginated conversation messages for a document owned by
// the user.
func (s *QuestionService) ListPage(ctx context.Context, userID, documentID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	tr := otel.Tracer("services/QuestionService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("document.id", documentID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := s.Repo.GetDocument(ctx, s.DB, documentID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrDocumentNotFound
		}
		return nil, 0, err
	}

	total, err := s.Repo.CountMessages(ctx, s.DB, documentID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatMessage{}, 0, nil
	}

	items, err := s.Repo.ListMessagesPage(ctx, s.DB, documentID, offset, pageSize)
	return items, total, err
}

func (s *QuestionService) failed(span trace.Span, reason string) *AskResult {
	span.SetAttributes(
		attribute.Bool("ask.success", false),
		attribute.String("ask.reason", reason),
	)
	return &AskResult{Reason: reason}
}
