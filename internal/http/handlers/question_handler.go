// Question and conversation HTTP handlers.
//
// This file exposes:
//   - POST /documents/{id}/questions  (ask a question about the document)
//   - GET  /documents/{id}/messages   (list conversation, paginated)
//
// The question endpoint returns a discriminated envelope: {"success": true,
// "message": {...}} when an answer was produced and persisted, or
// {"success": false} with an error code otherwise. The human question is
// persisted and counts against quota even when answer generation fails.
//
// Idempotency: when the client supplies an Idempotency-Key header and a
// previous successful result exists for (user, document, key), the handler
// returns the recorded assistant message and sets Idempotency-Replayed.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
	"github.com/docuchat/go-pdf-chat-backend/internal/http/middleware"
	"github.com/docuchat/go-pdf-chat-backend/internal/services"
)

//
// DTOs
//

// AskQuestionRequest is the JSON payload for asking a question.
type AskQuestionRequest struct {
	// Question is the user's question about the document. Must be non-empty.
	Question string `json:"question" binding:"required,min=1" example:"What does section 3 say about termination notice periods?"`
}

// AskQuestionResponse is the discriminated envelope for question outcomes.
// Message is non-nil exactly when Success is true.
type AskQuestionResponse struct {
	Success bool                `json:"success"`
	Message *domain.ChatMessage `json:"message"`
}

// ListConversationResponse contains a page of chat messages and pagination
// metadata.
type ListConversationResponse struct {
	Messages   []domain.ChatMessage `json:"messages"`
	Pagination Pagination           `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeQuestion normalizes user text: CRLF/CR to LF, runs of 3+ LFs to
// two, surrounding whitespace trimmed.
func sanitizeQuestion(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// AskQuestion godoc
// @ID          askQuestion
// @Summary     Ask a question about a document
// @Description Persists the question, retrieves relevant passages, and generates a grounded answer.
// @Description The question counts against the per-document quota even when generation fails.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Questions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "User ID that owns the document"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       id               path    string  true  "Document ID (UUID)"              format(uuid)
// @Param       body             body    handlers.AskQuestionRequest  true  "Question payload"
//
// @Success     200  {object}  handlers.AskQuestionResponse  "Answer (success true) or failure envelope"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse        "Document not found"
// @Failure     429  {object}  handlers.ErrorResponse        "Quota exceeded"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /documents/{id}/questions [post]
func (h *Handlers) AskQuestion(c *gin.Context) {
	ctx := c.Request.Context()
	documentID := c.Param("id")

	if _, err := uuid.Parse(documentID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document id must be a UUID")
		return
	}

	var req AskQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		return
	}

	question := sanitizeQuestion(req.Question)
	maxRunes := h.maxQuestionRunes
	if maxRunes > 0 && utf8.RuneCountInString(question) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("question too long: max %d runes", maxRunes))
		return
	}
	if question == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		return
	}

	currentUser := userID(c)

	// Receipt replay path: same key returns the stored answer.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey == "" {
		idemKey = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	if idemKey != "" && h.receipts != nil {
		if rec, err := h.receipts.Get(ctx, currentUser, documentID, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err2 := h.receipts.GetMessage(ctx, rec.MessageID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, AskQuestionResponse{Success: true, Message: prev})
				return
			}
		}
	}

	res, err := h.qSvc.Ask(ctx, currentUser, documentID, question)
	if err != nil {
		switch err {
		case services.ErrDocumentNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "document not found")
		case services.ErrEmptyQuestion:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		case services.ErrTooLong:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("question too long: max %d runes", maxRunes))
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	if !res.Success {
		middleware.ObserveAskOutcome(res.Reason)
		switch res.Reason {
		case services.ReasonQuotaExceeded:
			fail(c, http.StatusTooManyRequests, ErrCodeQuotaExceeded, "question quota exceeded for this document")
		default:
			// The failure envelope still reports 200: the human question was
			// accepted and persisted; only the answer is missing.
			ok(c, http.StatusOK, AskQuestionResponse{Success: false})
		}
		return
	}
	middleware.ObserveAskOutcome("success")

	// Receipt store path (best effort).
	if idemKey != "" && res.Answer != nil && h.receipts != nil {
		_, _ = h.receipts.Create(ctx, currentUser, documentID, idemKey, res.Answer.ID, h.receiptTTL)
	}

	ok(c, http.StatusOK, AskQuestionResponse{Success: true, Message: res.Answer})
}

// ListConversation godoc
// @ID          listConversation
// @Summary     List the conversation for a document
// @Description Returns a paginated, chronologically ordered list of the document's messages.
// @Tags        Questions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Document ID (UUID)"     format(uuid)
// @Param       page       query   int     false "Page number"            minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"         minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListConversationResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documents/{id}/messages [get]
func (h *Handlers) ListConversation(c *gin.Context) {
	ctx := c.Request.Context()
	documentID := c.Param("id")

	if _, err := uuid.Parse(documentID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document id must be a UUID")
		return
	}

	// ETag pre-check (best effort).
	if h.stats != nil {
		count, maxTS, err := h.stats.MessagesStats(ctx, documentID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, documentID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.qSvc.ListPage(ctx, userID(c), documentID, page, pageSize)
	if err != nil {
		switch err {
		case services.ErrDocumentNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "document not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListConversationResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
