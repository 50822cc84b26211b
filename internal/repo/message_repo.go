// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatMessage
// model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
)

// CreateMessage inserts a new chat message row.
func CreateMessage(ctx context.Context, db *gorm.DB, documentID, userID, role, message string) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		UserID:     userID,
		Role:       role,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// ListMessages returns messages for a document ordered deterministically
// (CreatedAt ASC, ID ASC). Ordering is load-bearing: conversational context
// fed to the completion model must preserve turn order.
func ListMessages(ctx context.Context, db *gorm.DB, documentID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	q := db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListRecentMessages returns the most recent n messages for a document in
// ascending order (a suffix window of the conversation, not a prefix).
func ListRecentMessages(ctx context.Context, db *gorm.DB, documentID string, n int) ([]domain.ChatMessage, error) {
	if n <= 0 {
		return ListMessages(ctx, db, documentID, 0)
	}
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	// Reverse back to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, documentID string, offset, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, documentID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM chat_messages WHERE document_id = ? AND deleted_at IS NULL", documentID).
		Scan(&total).Error
	return total, err
}

// CountMessagesByRole counts the user's messages of the given role under a
// document. The quota enforcer counts role "human" rows: one per question
// asked.
func CountMessagesByRole(ctx context.Context, db *gorm.DB, documentID, userID, role string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("document_id = ? AND user_id = ? AND role = ?", documentID, userID, role).
		Count(&total).Error
	return total, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
