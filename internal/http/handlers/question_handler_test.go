package handlers

import (
	"encoding/json"
	"errors"
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

func askReq(docID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/documents/"+docID+"/questions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---------- ask ----------

func TestAskQuestion_Success(t *testing.T) {
	f := newFixture()
	answer := &domain.ChatMessage{ID: "m2", Role: domain.RoleAI, Message: "The notice period is 30 days."}
	f.qs.result = &services.AskResult{Success: true, Answer: answer}
	docID := uuid.NewString()

	req := askReq(docID, `{"question":"What is the notice period?"}`)
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp AskQuestionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if !resp.Success || resp.Message == nil || resp.Message.ID != "m2" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if f.qs.gotUser != "u1" || f.qs.gotDoc != docID {
		t.Fatalf("service received wrong identifiers: %q %q", f.qs.gotUser, f.qs.gotDoc)
	}
}

func TestAskQuestion_SanitizesBeforeService(t *testing.T) {
	f := newFixture()
	f.qs.result = &services.AskResult{Success: true, Answer: &domain.ChatMessage{ID: "m1"}}

	req := askReq(uuid.NewString(), `{"question":"  line one\r\n\r\n\r\n\r\nline two  "}`)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.qs.gotQuestion != "line one\n\nline two" {
		t.Fatalf("question not sanitized: %q", f.qs.gotQuestion)
	}
}

func TestAskQuestion_RejectsNonUUIDDocument(t *testing.T) {
	f := newFixture()
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, askReq("not-a-uuid", `{"question":"hi"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if f.qs.askCalls != 0 {
		t.Fatalf("service must not run for invalid document ids")
	}
}

func TestAskQuestion_RejectsMissingQuestion(t *testing.T) {
	f := newFixture()
	for _, body := range []string{``, `{}`, `{"question":""}`, `{"question":"   \n  "}`, `not json`} {
		w := httptest.NewRecorder()
		f.r.ServeHTTP(w, askReq(uuid.NewString(), body))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
	}
	if f.qs.askCalls != 0 {
		t.Fatalf("service must not run for empty questions")
	}
}

func TestAskQuestion_RejectsOverlongQuestion(t *testing.T) {
	f := newFixture()
	// The fixture uses the default 4000-rune cap.
	long := strings.Repeat("q", 4001)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, askReq(uuid.NewString(), `{"question":"`+long+`"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if f.qs.askCalls != 0 {
		t.Fatalf("service must not run for overlong questions")
	}
}

func TestAskQuestion_DocumentNotFound(t *testing.T) {
	f := newFixture()
	f.qs.askErr = services.ErrDocumentNotFound

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, askReq(uuid.NewString(), `{"question":"hi"}`))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if decodeError(t, w).Code != ErrCodeNotFound {
		t.Fatalf("wrong error code: %s", w.Body.String())
	}
}

func TestAskQuestion_QuotaExceeded(t *testing.T) {
	f := newFixture()
	f.qs.result = &services.AskResult{Success: false, Reason: services.ReasonQuotaExceeded}

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, askReq(uuid.NewString(), `{"question":"one more?"}`))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if decodeError(t, w).Code != ErrCodeQuotaExceeded {
		t.Fatalf("wrong error code: %s", w.Body.String())
	}
}

func TestAskQuestion_GenerationFailureIsAccepted(t *testing.T) {
	// The question was persisted and counted; the envelope reports the
	// missing answer with success=false but the request itself succeeded.
	f := newFixture()
	f.qs.result = &services.AskResult{Success: false, Reason: services.ReasonGenerationError}

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, askReq(uuid.NewString(), `{"question":"hi"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp AskQuestionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.Success || resp.Message != nil {
		t.Fatalf("expected failure envelope, got %+v", resp)
	}
}

func TestAskQuestion_InternalError(t *testing.T) {
	f := newFixture()
	f.qs.askErr = errors.New("db exploded")

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, askReq(uuid.NewString(), `{"question":"hi"}`))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

// ---------- conversation ----------

func TestListConversation_Success(t *testing.T) {
	f := newFixture()
	f.qs.msgs = []domain.ChatMessage{
		{ID: "m1", Role: domain.RoleHuman, Message: "hi"},
		{ID: "m2", Role: domain.RoleAI, Message: "hello"},
	}
	f.qs.total = 2
	docID := uuid.NewString()

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+docID+"/messages", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListConversationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Pagination.Total != 2 || resp.Pagination.HasNext {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if f.qs.gotDoc != docID {
		t.Fatalf("document id not forwarded: %q", f.qs.gotDoc)
	}
}

func TestListConversation_RejectsNonUUID(t *testing.T) {
	f := newFixture()
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/xyz/messages", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListConversation_NotFound(t *testing.T) {
	f := newFixture()
	f.qs.listErr = services.ErrDocumentNotFound

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString()+"/messages", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// ---------- helpers ----------

func TestSanitizeQuestion(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"  padded  ", "padded"},
		{"a\r\nb", "a\nb"},
		{"a\rb", "a\nb"},
		{"a\n\n\n\n\nb", "a\n\nb"},
		{"a\n\nb", "a\n\nb"},
		{"\n\n\n", ""},
	}
	for _, tc := range cases {
		if got := sanitizeQuestion(tc.in); got != tc.want {
			t.Fatalf("sanitizeQuestion(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNew_OptionDefaults(t *testing.T) {
	h := New(&fakeDocSvc{}, &fakeQSvc{}, &fakeSubsSvc{}, &fakeWebhook{}, Options{})
	if h.maxQuestionRunes != 4000 {
		t.Fatalf("default rune cap wrong: %d", h.maxQuestionRunes)
	}
	if h.receiptTTL != 24*time.Hour {
		t.Fatalf("default receipt TTL wrong: %v", h.receiptTTL)
	}

	h = New(&fakeDocSvc{}, &fakeQSvc{}, &fakeSubsSvc{}, &fakeWebhook{}, Options{MaxQuestionRunes: 123, ReceiptTTL: time.Minute})
	if h.maxQuestionRunes != 123 || h.receiptTTL != time.Minute {
		t.Fatalf("configured options ignored: %d %v", h.maxQuestionRunes, h.receiptTTL)
	}
}

func TestAskQuestion_ConfiguredRuneCapApplies(t *testing.T) {
	qs := &fakeQSvc{result: &services.AskResult{Success: true, Answer: &domain.ChatMessage{ID: "m1"}}}
	h := New(&fakeDocSvc{}, qs, &fakeSubsSvc{}, &fakeWebhook{}, Options{MaxQuestionRunes: 10})
	r := gin.New()
	r.POST("/documents/:id/questions", h.AskQuestion)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, askReq(uuid.NewString(), `{"question":"`+strings.Repeat("q", 11)+`"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 over the configured cap, got %d", w.Code)
	}
	if qs.askCalls != 0 {
		t.Fatalf("service must not run for overlong questions")
	}
}

// ---------- idempotency receipts ----------

func TestAskQuestion_ReplayReturnsStoredAnswer(t *testing.T) {
	f := newFixture()
	f.receipts.rec = &domain.AskReceipt{MessageID: "m-old"}
	f.receipts.msg = &domain.ChatMessage{ID: "m-old", Role: domain.RoleAI, Message: "cached answer"}

	req := askReq(uuid.NewString(), `{"question":"again?"}`)
	req.Header.Set("Idempotency-Key", "key-1")
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
	var resp AskQuestionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if !resp.Success || resp.Message == nil || resp.Message.ID != "m-old" {
		t.Fatalf("stored answer not replayed: %+v", resp)
	}
	if f.qs.askCalls != 0 {
		t.Fatalf("pipeline must not run on replay")
	}
}

func TestAskQuestion_RecordsReceiptOnSuccess(t *testing.T) {
	f := newFixture()
	f.qs.result = &services.AskResult{Success: true, Answer: &domain.ChatMessage{ID: "m-new"}}

	req := askReq(uuid.NewString(), `{"question":"fresh"}`)
	req.Header.Set("Idempotency-Key", "key-2")
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(f.receipts.created) != 1 || f.receipts.created[0] != "key-2/m-new" {
		t.Fatalf("receipt not recorded: %v", f.receipts.created)
	}
	if f.receipts.createdTTL != 24*time.Hour {
		t.Fatalf("receipt TTL not taken from options: %v", f.receipts.createdTTL)
	}
}

func TestAskQuestion_NoReceiptWithoutKey(t *testing.T) {
	f := newFixture()
	f.qs.result = &services.AskResult{Success: true, Answer: &domain.ChatMessage{ID: "m1"}}

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, askReq(uuid.NewString(), `{"question":"plain"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.receipts.getCalls != 0 || len(f.receipts.created) != 0 {
		t.Fatalf("receipt store touched without a key: gets=%d creates=%d", f.receipts.getCalls, len(f.receipts.created))
	}
}
