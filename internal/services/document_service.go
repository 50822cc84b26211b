// Package services – DocumentService
//
// This file implements DocumentService, which owns the document lifecycle:
// upload (blob first, then metadata, so a failed metadata write never leaves
// a dangling row pointing at nothing), listing with pagination, and the
// delete cascade across metadata, chat history, blob storage, and the vector
// namespace.
//
// Display names are derived from the uploaded filename: extension stripped,
// separators collapsed, then title-cased.
package services

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
	"github.com/docuchat/go-pdf-chat-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DocumentRepo is the persistence contract required by DocumentService.
type DocumentRepo interface {
	// CreateDocument inserts a new document row for the given user.
	CreateDocument(ctx context.Context, db *gorm.DB, userID, fileID, name, contentType string, size int64) (*domain.Document, error)

	// GetDocument fetches a document by ID ensuring it belongs to the user.
	GetDocument(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Document, error)

	// CountDocuments returns the total number of documents for pagination.
	CountDocuments(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListDocumentsPage returns a page of documents belonging to the user.
	ListDocumentsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Document, error)

	// DeleteDocument removes the document row and its chat messages.
	DeleteDocument(ctx context.Context, db *gorm.DB, id, userID string) error
}

// DocumentBlobs is the blob-storage contract required by DocumentService.
type DocumentBlobs interface {
	Put(fileID string, r io.Reader) (int64, error)
	Delete(fileID string) error
}

// NamespaceDeleter removes a document's vectors; deleting an absent
// namespace succeeds.
type NamespaceDeleter interface {
	DeleteNamespace(ctx context.Context, documentID string) error
}

// UploadGate authorizes a new upload against the user's tier allowance.
// The tier flag is consulted on every upload, mirroring the question quota.
type UploadGate interface {
	CheckUpload(ctx context.Context, userID string) error
}

// DocumentService provides document-level operations: upload, listing, and
// the delete cascade.
type DocumentService struct {
	DB    *gorm.DB
	Repo  DocumentRepo
	Blobs DocumentBlobs
	Index NamespaceDeleter
	Gate  UploadGate

	// NameMaxLen caps stored display names by rune length.
	NameMaxLen int
	// NameLocale controls title casing of derived display names.
	NameLocale language.Tag
}

// NewDocumentService constructs a DocumentService with sane defaults for
// display-name handling.
func NewDocumentService(db *gorm.DB, r DocumentRepo, blobs DocumentBlobs, index NamespaceDeleter, gate UploadGate) *DocumentService {
	return &DocumentService{
		DB:         db,
		Repo:       r,
		Blobs:      blobs,
		Index:      index,
		Gate:       gate,
		NameMaxLen: 120,
		NameLocale: language.English,
	}
}

// Upload stores the file bytes and records the document metadata. The blob
// is written first; if the metadata insert fails the blob is removed so no
// orphaned bytes accumulate.
func (s *DocumentService) Upload(ctx context.Context, userID, filename, contentType string, r io.Reader) (*domain.Document, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "Upload",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("upload.filename", filename),
		),
	)
	defer span.End()

	if !isPDF(filename, contentType) {
		return nil, ErrUnsupportedFile
	}

	// Allowance check runs before any bytes are written so a rejected
	// upload leaves nothing behind.
	if s.Gate != nil {
		if err := s.Gate.CheckUpload(ctx, userID); err != nil {
			return nil, err
		}
	}

	fileID := uuid.NewString()
	size, err := s.Blobs.Put(fileID, r)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		_ = s.Blobs.Delete(fileID)
		return nil, ErrEmptyUpload
	}
	span.SetAttributes(attribute.Int64("upload.size", size))

	name := s.clip(s.displayName(filename))
	doc, err := s.Repo.CreateDocument(ctx, s.DB, userID, fileID, name, contentType, size)
	if err != nil {
		_ = s.Blobs.Delete(fileID)
		return nil, err
	}
	return doc, nil
}

// Get fetches one document owned by the user.
func (s *DocumentService) Get(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	doc, err := s.Repo.GetDocument(ctx, s.DB, documentID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// ListPage returns a page of the user's documents (newest first). It applies
// defaults for invalid page/pageSize and returns the total count.
func (s *DocumentService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Document, int64, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
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

	total, err := s.Repo.CountDocuments(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Document{}, 0, nil
	}

	items, err := s.Repo.ListDocumentsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Delete removes a document and everything hanging off it: the metadata row
// with its chat messages, the stored blob, and the vector namespace. The
// cascade runs metadata first so a repeated call observes "not found" and
// the blob/namespace steps stay idempotent.
func (s *DocumentService) Delete(ctx context.Context, userID, documentID string) error {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("document.id", documentID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	doc, err := s.Repo.GetDocument(ctx, s.DB, documentID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return err
	}

	if err := s.Repo.DeleteDocument(ctx, s.DB, documentID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return err
	}

	if err := s.Blobs.Delete(doc.FileID); err != nil {
		return err
	}
	return s.Index.DeleteNamespace(ctx, documentID)
}

// displayName derives a human-facing name from the uploaded filename.
func (s *DocumentService) displayName(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = separatorRE.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)
	if base == "" {
		return "Untitled document"
	}
	return cases.Title(s.localeOrDefault()).String(base)
}

func (s *DocumentService) clip(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

func (s *DocumentService) localeOrDefault() language.Tag {
	if s.NameLocale == language.Und {
		return language.English
	}
	return s.NameLocale
}

// isPDF accepts ".pdf" filenames and the application/pdf content type.
func isPDF(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return true
	}
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "application/pdf"
}

// separatorRE collapses filename separators and runs of whitespace.
var separatorRE = regexp.MustCompile(`[-_.\s]+`)
