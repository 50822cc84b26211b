// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the AskReceipt
// model used to implement safe-retry semantics for question submission.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
)

// ErrDuplicate indicates that a receipt already exists for the given
// (user_id, document_id, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetReceipt returns a non-expired receipt or ErrNotFound.
func GetReceipt(ctx context.Context, db *gorm.DB, userID, documentID, key string, now time.Time) (*domain.AskReceipt, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, ErrNotFound
	}
	var rec domain.AskReceipt
	err := db.WithContext(ctx).
		Where("user_id = ? AND document_id = ? AND key = ? AND expires_at > ?", userID, documentID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// CreateReceipt inserts a receipt and returns ErrDuplicate on unique violation.
func CreateReceipt(ctx context.Context, db *gorm.DB, userID, documentID, key, messageID string, ttl time.Duration) (*domain.AskReceipt, error) {
	now := time.Now().UTC()
	rec := &domain.AskReceipt{
		ID:         uuid.NewString(),
		UserID:     userID,
		DocumentID: documentID,
		Key:        key,
		MessageID:  messageID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
