// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Document
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a document is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateDocument inserts a new Document row owned by userID. The document ID
// is a randomly generated UUID, and CreatedAt is set to UTC. Callers must
// only invoke this after the blob write succeeded (no orphan metadata).
func CreateDocument(ctx context.Context, db *gorm.DB, userID, fileID, name, contentType string, size int64) (*domain.Document, error) {
	d := &domain.Document{
		ID:          uuid.NewString(),
		FileID:      fileID,
		UserID:      userID,
		Name:        name,
		Size:        size,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// GetDocument fetches a single document by its ID and owner (userID).
// If the record does not exist, it returns ErrNotFound.
func GetDocument(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Document, error) {
	var d domain.Document
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocumentAnyOwner fetches a document by ID without an ownership filter.
// The ingestion path uses it because embeddings are keyed by document ID
// alone; ownership was already checked at the pipeline boundary.
func GetDocumentAnyOwner(ctx context.Context, db *gorm.DB, id string) (*domain.Document, error) {
	var d domain.Document
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns all documents belonging to userID, ordered by
// creation time descending (most recent first).
func ListDocuments(ctx context.Context, db *gorm.DB, userID string) ([]domain.Document, error) {
	var out []domain.Document
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListDocumentsPage returns a page of documents owned by userID, most
// recent first.
func ListDocumentsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Document, error) {
	var out []domain.Document
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountDocuments returns the total number of documents owned by userID.
func CountDocuments(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// DeleteDocument removes a document row owned by userID along with its chat
// messages, in one transaction. If no document row is affected, it returns
// ErrNotFound. Blob and vector-namespace cleanup belong to the service layer.
func DeleteDocument(ctx context.Context, db *gorm.DB, id, userID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("document_id = ?", id).Delete(&domain.ChatMessage{}).Error
	})
}
