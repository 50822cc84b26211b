// Package domain defines the core persistence models for the application.
package domain

import "time"

// AskReceipt records the outcome of a previously processed question, keyed by
// (user_id, document_id, key). It enables safe retries of question submission:
// replaying the same Idempotency-Key returns the recorded answer message
// instead of creating a duplicate human message and spending another
// completion call.
type AskReceipt struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_doc_key,priority:1"`
	DocumentID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_doc_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_doc_key,priority:3"`
	MessageID  string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (AskReceipt) TableName() string { return "ask_receipts" }
