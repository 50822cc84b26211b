// Package services – conversation history loading
//
// Loads the prompt-facing view of a document's conversation. The window is a
// suffix: when the conversation exceeds MaxTurns, the oldest turns fall off
// and the most recent ones keep their original order.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
)

// HistoryRepo is the persistence contract for history loading.
type HistoryRepo interface {
	// ListRecentMessages returns the newest n messages of the document in
	// chronological order.
	ListRecentMessages(ctx context.Context, db *gorm.DB, documentID string, n int) ([]domain.ChatMessage, error)
}

// HistoryService converts stored chat messages into prompt turns.
type HistoryService struct {
	DB   *gorm.DB
	Repo HistoryRepo

	// MaxTurns bounds the window handed to the model; <= 0 means 50.
	MaxTurns int
}

// Load returns the most recent turns of the document's conversation.
// Messages with an unknown role or blank text are skipped rather than
// poisoning the prompt; ordering of the survivors is preserved.
func (s *HistoryService) Load(ctx context.Context, documentID string) ([]domain.ChatTurn, error) {
	n := s.MaxTurns
	if n <= 0 {
		n = 50
	}

	msgs, err := s.Repo.ListRecentMessages(ctx, s.DB, documentID, n)
	if err != nil {
		return nil, err
	}

	turns := make([]domain.ChatTurn, 0, len(msgs))
	for _, m := range msgs {
		if !m.Valid() {
			continue
		}
		turns = append(turns, domain.ChatTurn{Role: m.Role, Text: m.Message})
	}
	return turns, nil
}
