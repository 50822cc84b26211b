// Document HTTP handlers.
//
// This file exposes REST endpoints for document resources:
//   - POST   /documents        (upload a PDF, multipart)
//   - GET    /documents        (list, paginated, ETag support)
//   - GET    /documents/{id}   (fetch one)
//   - DELETE /documents/{id}   (delete cascade)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
	"github.com/docuchat/go-pdf-chat-backend/internal/services"
	"github.com/docuchat/go-pdf-chat-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// DocumentService defines document lifecycle operations consumed by the HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type DocumentService interface {
	// Upload stores the file bytes and records document metadata.
	Upload(ctx context.Context, userID, filename, contentType string, r io.Reader) (*domain.Document, error)
	// Get returns one document owned by the user.
	Get(ctx context.Context, userID, documentID string) (*domain.Document, error)
	// ListPage returns a page of the user's documents and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Document, int64, error)
	// Delete removes a document, its messages, blob, and vector namespace.
	Delete(ctx context.Context, userID, documentID string) error
}

// QuestionService defines the question pipeline and conversation retrieval
// operations consumed by the HTTP handlers.
type QuestionService interface {
	// Ask runs the question pipeline and returns its discriminated outcome.
	Ask(ctx context.Context, userID, documentID, question string) (*services.AskResult, error)
	// ListPage returns a page of the document's conversation messages.
	ListPage(ctx context.Context, userID, documentID string, page, pageSize int) ([]domain.ChatMessage, int64, error)
}

// SubscriptionService exposes billing account state: the subscription
// snapshot and the checkout-time customer link.
type SubscriptionService interface {
	// Status returns the tier flag and document allowance for the user.
	Status(ctx context.Context, userID string) (*services.SubscriptionStatus, error)
	// LinkCustomer stores the billing customer id on the user's account.
	LinkCustomer(ctx context.Context, userID, customerID string) (*domain.UserAccount, error)
}

// WebhookProcessor verifies and applies billing webhook events.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, sigHeader string) error
}

// ReceiptStore records and replays idempotency receipts keyed by
// (user, document, key). Get must treat an expired receipt as absent.
type ReceiptStore interface {
	Get(ctx context.Context, userID, documentID, key string, now time.Time) (*domain.AskReceipt, error)
	Create(ctx context.Context, userID, documentID, key, messageID string, ttl time.Duration) (*domain.AskReceipt, error)
	GetMessage(ctx context.Context, id string) (*domain.ChatMessage, error)
}

// StatsProvider supplies cheap count/latest-change aggregates used to build
// weak ETags for list endpoints.
type StatsProvider interface {
	DocumentsStats(ctx context.Context, userID string) (int64, *time.Time, error)
	MessagesStats(ctx context.Context, documentID string) (int64, *time.Time, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for documents, questions, subscription
// state, and billing. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	docSvc  DocumentService
	qSvc    QuestionService
	subs    SubscriptionService
	webhook WebhookProcessor

	receipts ReceiptStore
	stats    StatsProvider

	maxQuestionRunes int
	receiptTTL       time.Duration
}

// Options carries the optional handler collaborators and tunables. Zero
// values are fine: nil Receipts disables idempotency replay, nil Stats
// disables ETags, and the limits fall back to defaults.
type Options struct {
	Receipts         ReceiptStore
	Stats            StatsProvider
	MaxQuestionRunes int
	ReceiptTTL       time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(docSvc DocumentService, qSvc QuestionService, subs SubscriptionService, webhook WebhookProcessor, opts Options) *Handlers {
	if opts.MaxQuestionRunes <= 0 {
		opts.MaxQuestionRunes = 4000
	}
	if opts.ReceiptTTL <= 0 {
		opts.ReceiptTTL = 24 * time.Hour
	}
	return &Handlers{
		docSvc:           docSvc,
		qSvc:             qSvc,
		subs:             subs,
		webhook:          webhook,
		receipts:         opts.Receipts,
		stats:            opts.Stats,
		maxQuestionRunes: opts.MaxQuestionRunes,
		receiptTTL:       opts.ReceiptTTL,
	}
}

// userID extracts the authenticated user id from Gin context (set by
// upstream middleware). If absent, it falls back to the "X-User-ID" header
// and finally to "demo-user".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListDocumentsResponse wraps a page of documents and pagination info.
type ListDocumentsResponse struct {
	Documents  []domain.Document `json:"documents"`
	Pagination Pagination        `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// UploadDocument godoc
// @ID          uploadDocument
// @Summary     Upload a PDF document
// @Description Stores the uploaded PDF and records its metadata. Embeddings are built lazily on the first question.
// @Tags        Documents
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       file       formData file   true  "PDF file"
//
// @Success     201  {object}  domain.Document
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     415  {object}  handlers.ErrorResponse  "Unsupported file type"
// @Failure     429  {object}  handlers.ErrorResponse  "Document limit reached for the tier"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /documents [post]
func (h *Handlers) UploadDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'file' required")
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read uploaded file")
		return
	}
	defer f.Close()

	doc, err := h.docSvc.Upload(c.Request.Context(), userID(c), fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		switch err {
		case services.ErrUnsupportedFile:
			fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedFile, "only PDF uploads are supported")
		case services.ErrEmptyUpload:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "uploaded file is empty")
		case services.ErrUploadQuotaExceeded:
			fail(c, http.StatusTooManyRequests, ErrCodeQuotaExceeded, "document limit reached for this tier")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, doc)
}

// ListDocuments godoc
// @ID          listDocuments
// @Summary     List documents (paginated)
// @Description Returns a page of the user's documents. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListDocumentsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documents [get]
func (h *Handlers) ListDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if h.stats != nil {
		count, maxTS, err := h.stats.DocumentsStats(ctx, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"documents:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.docSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListDocumentsResponse{
		Documents: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetDocument godoc
// @ID          getDocument
// @Summary     Fetch one document
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Document ID (UUID)"     format(uuid)
//
// @Success     200  {object} domain.Document
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Router      /documents/{id} [get]
func (h *Handlers) GetDocument(c *gin.Context) {
	documentID := c.Param("id")
	if _, err := uuid.Parse(documentID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document id must be a UUID")
		return
	}

	doc, err := h.docSvc.Get(c.Request.Context(), userID(c), documentID)
	if err != nil {
		if err == services.ErrDocumentNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "document not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, doc)
}

// DeleteDocument godoc
// @ID          deleteDocument
// @Summary     Delete a document
// @Description Removes the document, its conversation, the stored file, and its vector namespace.
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Document ID (UUID)"     format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documents/{id} [delete]
func (h *Handlers) DeleteDocument(c *gin.Context) {
	documentID := c.Param("id")
	if _, err := uuid.Parse(documentID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document id must be a UUID")
		return
	}

	if err := h.docSvc.Delete(c.Request.Context(), userID(c), documentID); err != nil {
		if err == services.ErrDocumentNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "document not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, err.Error())
		return
	}
	noContent(c)
}
