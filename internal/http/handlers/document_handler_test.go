package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
	"github.com/docuchat/go-pdf-chat-backend/internal/services"
)

// ---------- fakes ----------

type fakeDocSvc struct {
	doc       *domain.Document
	uploadErr error
	getErr    error
	list      []domain.Document
	total     int64
	listErr   error
	deleteErr error

	gotUser     string
	gotFilename string
	gotCT       string
	gotBody     []byte
	deleted     []string
}

func (f *fakeDocSvc) Upload(ctx context.Context, userID, filename, contentType string, r io.Reader) (*domain.Document, error) {
	f.gotUser, f.gotFilename, f.gotCT = userID, filename, contentType
	f.gotBody, _ = io.ReadAll(r)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.doc, nil
}

func (f *fakeDocSvc) Get(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	f.gotUser = userID
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.doc, nil
}

func (f *fakeDocSvc) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Document, int64, error) {
	f.gotUser = userID
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	return f.list, f.total, nil
}

func (f *fakeDocSvc) Delete(ctx context.Context, userID, documentID string) error {
	f.gotUser = userID
	f.deleted = append(f.deleted, documentID)
	return f.deleteErr
}

type fakeQSvc struct {
	result  *services.AskResult
	askErr  error
	msgs    []domain.ChatMessage
	total   int64
	listErr error

	gotUser     string
	gotDoc      string
	gotQuestion string
	askCalls    int
}

func (f *fakeQSvc) Ask(ctx context.Context, userID, documentID, question string) (*services.AskResult, error) {
	f.askCalls++
	f.gotUser, f.gotDoc, f.gotQuestion = userID, documentID, question
	if f.askErr != nil {
		return nil, f.askErr
	}
	return f.result, nil
}

func (f *fakeQSvc) ListPage(ctx context.Context, userID, documentID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	f.gotUser, f.gotDoc = userID, documentID
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	return f.msgs, f.total, nil
}

type fakeWebhook struct {
	err     error
	gotBody []byte
	gotSig  string
}

func (f *fakeWebhook) Process(ctx context.Context, payload []byte, sigHeader string) error {
	f.gotBody, f.gotSig = payload, sigHeader
	return f.err
}

type fakeSubsSvc struct {
	status    *services.SubscriptionStatus
	statusErr error
	acct      *domain.UserAccount
	linkErr   error

	gotUser     string
	gotCustomer string
	linkCalls   int
}

func (f *fakeSubsSvc) Status(ctx context.Context, userID string) (*services.SubscriptionStatus, error) {
	f.gotUser = userID
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeSubsSvc) LinkCustomer(ctx context.Context, userID, customerID string) (*domain.UserAccount, error) {
	f.linkCalls++
	f.gotUser, f.gotCustomer = userID, customerID
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	return f.acct, nil
}

type fakeReceipts struct {
	rec    *domain.AskReceipt
	getErr error
	msg    *domain.ChatMessage
	msgErr error

	getCalls   int
	created    []string
	createdTTL time.Duration
}

func (f *fakeReceipts) Get(ctx context.Context, userID, documentID, key string, now time.Time) (*domain.AskReceipt, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rec, nil
}

func (f *fakeReceipts) Create(ctx context.Context, userID, documentID, key, messageID string, ttl time.Duration) (*domain.AskReceipt, error) {
	f.created = append(f.created, key+"/"+messageID)
	f.createdTTL = ttl
	return &domain.AskReceipt{UserID: userID, DocumentID: documentID, Key: key, MessageID: messageID}, nil
}

func (f *fakeReceipts) GetMessage(ctx context.Context, id string) (*domain.ChatMessage, error) {
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	return f.msg, nil
}

// ---------- helpers ----------

type handlerFixture struct {
	docs     *fakeDocSvc
	qs       *fakeQSvc
	subs     *fakeSubsSvc
	hook     *fakeWebhook
	receipts *fakeReceipts
	r        *gin.Engine
}

func newFixture() *handlerFixture {
	f := &handlerFixture{
		docs:     &fakeDocSvc{},
		qs:       &fakeQSvc{},
		subs:     &fakeSubsSvc{},
		hook:     &fakeWebhook{},
		receipts: &fakeReceipts{},
	}
	h := New(f.docs, f.qs, f.subs, f.hook, Options{Receipts: f.receipts})

	r := gin.New()
	r.POST("/documents", h.UploadDocument)
	r.GET("/documents", h.ListDocuments)
	r.GET("/documents/:id", h.GetDocument)
	r.DELETE("/documents/:id", h.DeleteDocument)
	r.POST("/documents/:id/questions", h.AskQuestion)
	r.GET("/documents/:id/messages", h.ListConversation)
	r.GET("/subscription", h.SubscriptionStatus)
	r.POST("/billing/customer", h.LinkBillingCustomer)
	r.POST("/billing/webhook", h.BillingWebhook)
	f.r = r
	return f
}

// pdfUpload builds a multipart request body with one "file" part.
func pdfUpload(t *testing.T, field, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
	hdr["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body %q: %v", w.Body.String(), err)
	}
	return resp
}

// ---------- upload ----------

func TestUploadDocument_Success(t *testing.T) {
	f := newFixture()
	f.docs.doc = &domain.Document{ID: "d1", Name: "Report"}

	body, ct := pdfUpload(t, "file", "report.pdf", "application/pdf", "%PDF-1.4 data")
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-User-ID", "u7")
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if f.docs.gotUser != "u7" || f.docs.gotFilename != "report.pdf" || f.docs.gotCT != "application/pdf" {
		t.Fatalf("service received wrong args: %q %q %q", f.docs.gotUser, f.docs.gotFilename, f.docs.gotCT)
	}
	if string(f.docs.gotBody) != "%PDF-1.4 data" {
		t.Fatalf("file bytes not forwarded")
	}
	if !strings.Contains(w.Body.String(), `"d1"`) {
		t.Fatalf("created document missing from body: %s", w.Body.String())
	}
}

func TestUploadDocument_MissingFilePart(t *testing.T) {
	f := newFixture()
	body, ct := pdfUpload(t, "wrongfield", "report.pdf", "application/pdf", "x")
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if decodeError(t, w).Code != ErrCodeBadRequest {
		t.Fatalf("wrong error code: %s", w.Body.String())
	}
}

func TestUploadDocument_UnsupportedType(t *testing.T) {
	f := newFixture()
	f.docs.uploadErr = services.ErrUnsupportedFile

	body, ct := pdfUpload(t, "file", "notes.txt", "text/plain", "hello")
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}
	if decodeError(t, w).Code != ErrCodeUnsupportedFile {
		t.Fatalf("wrong error code: %s", w.Body.String())
	}
}

func TestUploadDocument_EmptyFile(t *testing.T) {
	f := newFixture()
	f.docs.uploadErr = services.ErrEmptyUpload

	body, ct := pdfUpload(t, "file", "empty.pdf", "application/pdf", "")
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUploadDocument_TierLimitReached(t *testing.T) {
	f := newFixture()
	f.docs.uploadErr = services.ErrUploadQuotaExceeded

	body, ct := pdfUpload(t, "file", "one-too-many.pdf", "application/pdf", "x")
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if decodeError(t, w).Code != ErrCodeQuotaExceeded {
		t.Fatalf("wrong error code: %s", w.Body.String())
	}
}

func TestUploadDocument_ServiceFailure(t *testing.T) {
	f := newFixture()
	f.docs.uploadErr = errors.New("disk full")

	body, ct := pdfUpload(t, "file", "report.pdf", "application/pdf", "x")
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if decodeError(t, w).Code != ErrCodeUploadFailed {
		t.Fatalf("wrong error code: %s", w.Body.String())
	}
}

// ---------- list ----------

func TestListDocuments_PaginationMath(t *testing.T) {
	f := newFixture()
	f.docs.list = []domain.Document{{ID: "d1"}, {ID: "d2"}}
	f.docs.total = 5

	req := httptest.NewRequest(http.MethodGet, "/documents?page=2&page_size=2", nil)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListDocumentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	p := resp.Pagination
	if p.Page != 2 || p.PageSize != 2 || p.Total != 5 || p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination wrong: %+v", p)
	}
	if len(resp.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(resp.Documents))
	}
}

func TestListDocuments_ClampsParams(t *testing.T) {
	f := newFixture()
	f.docs.total = 1
	f.docs.list = []domain.Document{{ID: "d1"}}

	req := httptest.NewRequest(http.MethodGet, "/documents?page=-3&page_size=9999", nil)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	var resp ListDocumentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.Pagination.Page != 1 || resp.Pagination.PageSize != 100 {
		t.Fatalf("params not clamped: %+v", resp.Pagination)
	}
}

func TestListDocuments_ServiceFailure(t *testing.T) {
	f := newFixture()
	f.docs.listErr = errors.New("db gone")

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if decodeError(t, w).Code != ErrCodeListFailed {
		t.Fatalf("wrong error code: %s", w.Body.String())
	}
}

// ---------- get ----------

func TestGetDocument_RejectsNonUUID(t *testing.T) {
	f := newFixture()
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	f := newFixture()
	f.docs.getErr = services.ErrDocumentNotFound

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString(), nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if decodeError(t, w).Code != ErrCodeNotFound {
		t.Fatalf("wrong error code: %s", w.Body.String())
	}
}

func TestGetDocument_Success(t *testing.T) {
	f := newFixture()
	f.docs.doc = &domain.Document{ID: "d1", Name: "Report"}

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString(), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Report") {
		t.Fatalf("document missing from body: %s", w.Body.String())
	}
}

// ---------- delete ----------

func TestDeleteDocument_Success(t *testing.T) {
	f := newFixture()
	id := uuid.NewString()

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(f.docs.deleted) != 1 || f.docs.deleted[0] != id {
		t.Fatalf("service not called with document id: %v", f.docs.deleted)
	}
}

func TestDeleteDocument_NotFound(t *testing.T) {
	f := newFixture()
	f.docs.deleteErr = services.ErrDocumentNotFound

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/"+uuid.NewString(), nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeleteDocument_RejectsNonUUID(t *testing.T) {
	f := newFixture()
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/123", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(f.docs.deleted) != 0 {
		t.Fatalf("service must not be called for invalid ids")
	}
}

// ---------- user identity ----------

func TestUserID_Resolution(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := userID(c); got != "demo-user" {
		t.Fatalf("expected fallback, got %q", got)
	}

	c.Request.Header.Set("X-User-ID", " u-hdr ")
	if got := userID(c); got != "u-hdr" {
		t.Fatalf("header not trimmed/used: %q", got)
	}

	c.Set("userID", "u-ctx")
	if got := userID(c); got != "u-ctx" {
		t.Fatalf("context value must win: %q", got)
	}
}
