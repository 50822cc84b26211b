// Package domain defines the persistence models for documents, chat messages,
// and user accounts. These types are mapped with GORM and form the core data
// layer of the document-chat application.
package domain

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Message roles. A conversation about a document alternates between a
// "human" question and its paired "ai" answer, stored as two separate rows.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Document represents one uploaded PDF. The row is created only after the
// underlying blob has been written, so a Document always has a storage object
// behind it (no orphan metadata).
//
// Fields:
//   - ID: stable UUID primary key (char(36)); doubles as the vector-index
//     namespace key for this document's embeddings.
//   - FileID: identifier of the blob in the storage bucket. Distinct from ID
//     so the storage layer can be swapped without rewriting metadata.
//   - UserID: identifier of the owner; indexed for listing.
//   - Name: human-readable display name shown in the UI.
//   - Size / ContentType: blob metadata captured at upload time.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type Document struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	FileID      string         `json:"file_id"      gorm:"type:varchar(64);not null;index"`
	UserID      string         `json:"user_id"      gorm:"type:varchar(64);not null;index:idx_user_docs"`
	Name        string         `json:"name"         gorm:"type:varchar(255);not null"`
	Size        int64          `json:"size"         gorm:"not null"`
	ContentType string         `json:"content_type" gorm:"type:varchar(128);not null;default:'application/pdf'"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string { return "documents" }

// ChatMessage represents a single turn in a document's conversation.
// Messages are immutable once created and ordered by creation time ascending.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - DocumentID: foreign key to the owning document (indexed with CreatedAt
//     so history loads are a single index scan).
//   - UserID: identifier of the conversation owner.
//   - Role: "human" or "ai" (enforced by DB constraint).
//   - Message: full text of the turn.
type ChatMessage struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	DocumentID string         `json:"document_id" gorm:"type:char(36);not null;index:idx_doc_msgs,priority:1"`
	UserID     string         `json:"user_id"     gorm:"type:varchar(64);not null;index"`
	Role       string         `json:"role"        gorm:"type:varchar(16);not null;check:role IN ('human','ai')"`
	Message    string         `json:"message"     gorm:"type:text;not null"`
	CreatedAt  time.Time      `json:"created_at"  gorm:"index:idx_doc_msgs,priority:2"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`

	// Document is the parent. Messages are cascade-deleted when the
	// document row is removed.
	Document Document `json:"-" gorm:"foreignKey:DocumentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// Valid reports whether the row carries the fields the history loader needs.
// Rows that fail this check are skipped, not fatal.
func (m ChatMessage) Valid() bool {
	if strings.TrimSpace(m.Message) == "" {
		return false
	}
	return m.Role == RoleHuman || m.Role == RoleAI
}

// UserAccount holds the per-user subscription state. The tier flag is the
// single source of truth for quota thresholds and is mutated only by the
// billing webhook, never by chat or upload logic.
//
// The row is created implicitly on first billing interaction; its absence is
// equivalent to the free tier.
type UserAccount struct {
	ID                  string         `json:"id"                    gorm:"type:varchar(64);primaryKey"`
	BillingCustomerID   string         `json:"billing_customer_id"   gorm:"type:varchar(64);index"`
	HasActiveMembership bool           `json:"has_active_membership" gorm:"not null;default:false"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for UserAccount.
func (UserAccount) TableName() string { return "user_accounts" }

// ChatTurn is a role-tagged turn handed to the answer orchestrator. It is the
// in-memory projection of a valid ChatMessage, stripped of persistence fields.
type ChatTurn struct {
	Role string
	Text string
}
