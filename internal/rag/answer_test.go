package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
	"github.com/docuchat/go-pdf-chat-backend/internal/llm"
	"github.com/docuchat/go-pdf-chat-backend/internal/vectorindex"
)

type fakeCompleter struct {
	answer string
	err    error
	calls  int
	got    []llm.Message
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	f.calls++
	f.got = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func testRetriever(idx *fakeIndex, emb *fakeEmbedder) *Retriever {
	return &Retriever{index: idx, embedder: emb, namespace: "doc-1", topK: 4}
}

// ---------- Retriever ----------

func TestRetrieve_EmptyQueryCostsNothing(t *testing.T) {
	idx := &fakeIndex{}
	emb := &fakeEmbedder{}
	r := testRetriever(idx, emb)

	_, err := r.Retrieve(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if emb.ones != 0 || idx.queries != 0 {
		t.Fatalf("collaborators called for an empty query: embed=%d query=%d", emb.ones, idx.queries)
	}
}

func TestRetrieve_MapsMatchesToPassages(t *testing.T) {
	idx := &fakeIndex{queryOut: []vectorindex.Match{
		{ID: "doc-1-0", Score: 0.9, Metadata: map[string]any{"text": "first chunk", "position": float64(0)}},
		{ID: "doc-1-3", Score: 0.5, Metadata: map[string]any{"text": "fourth chunk", "position": float64(3)}},
	}}
	r := testRetriever(idx, &fakeEmbedder{})

	out, err := r.Retrieve(context.Background(), "what?")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(out))
	}
	if out[0].Text != "first chunk" || out[0].Position != 0 || out[0].Score != 0.9 {
		t.Fatalf("passage 0 wrong: %+v", out[0])
	}
	if out[1].Position != 3 {
		t.Fatalf("JSON float position not decoded: %+v", out[1])
	}
}

func TestRetrieve_DropsBlankTextMatches(t *testing.T) {
	idx := &fakeIndex{queryOut: []vectorindex.Match{
		{ID: "a", Score: 0.9, Metadata: map[string]any{"text": "   "}},
		{ID: "b", Score: 0.8, Metadata: nil},
		{ID: "c", Score: 0.7, Metadata: map[string]any{"text": "keep me"}},
	}}
	r := testRetriever(idx, &fakeEmbedder{})

	out, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(out) != 1 || out[0].Text != "keep me" {
		t.Fatalf("blank matches not dropped: %+v", out)
	}
}

func TestRetrieve_EmbedderErrorPropagates(t *testing.T) {
	emb := &fakeEmbedder{oneErr: errors.New("down")}
	idx := &fakeIndex{}
	r := testRetriever(idx, emb)
	if _, err := r.Retrieve(context.Background(), "q"); err == nil {
		t.Fatalf("expected embedder error")
	}
	if idx.queries != 0 {
		t.Fatalf("index queried after embedding failure")
	}
}

func TestRetrieve_QueryErrorPropagates(t *testing.T) {
	idx := &fakeIndex{queryErr: vectorindex.ErrIndexUnavailable}
	r := testRetriever(idx, &fakeEmbedder{})
	if _, err := r.Retrieve(context.Background(), "q"); !errors.Is(err, vectorindex.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

// ---------- Answerer ----------

func TestAnswer_EmptyQuestionBeforeAnyCall(t *testing.T) {
	idx := &fakeIndex{}
	emb := &fakeEmbedder{}
	comp := &fakeCompleter{}
	a := &Answerer{Completer: comp}

	_, err := a.Answer(context.Background(), testRetriever(idx, emb), "  \t ", nil)
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if emb.ones != 0 || idx.queries != 0 || comp.calls != 0 {
		t.Fatalf("collaborators touched for blank question")
	}
}

func TestAnswer_Success(t *testing.T) {
	idx := &fakeIndex{queryOut: []vectorindex.Match{
		{Score: 0.9, Metadata: map[string]any{"text": "The warranty lasts two years.", "position": float64(0)}},
	}}
	comp := &fakeCompleter{answer: "Two years."}
	a := &Answerer{Completer: comp}

	out, err := a.Answer(context.Background(), testRetriever(idx, &fakeEmbedder{}), "How long is the warranty?", nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if out != "Two years." {
		t.Fatalf("unexpected answer: %q", out)
	}

	// Prompt layout: system with context first, question as final user turn.
	if len(comp.got) < 2 || comp.got[0].Role != "system" {
		t.Fatalf("system message missing: %+v", comp.got)
	}
	if !strings.Contains(comp.got[0].Content, "The warranty lasts two years.") {
		t.Fatalf("context passages missing from system prompt")
	}
	last := comp.got[len(comp.got)-1]
	if last.Role != "user" || last.Content != "How long is the warranty?" {
		t.Fatalf("question not last user turn: %+v", last)
	}
}

func TestAnswer_HistoryRoleMapping(t *testing.T) {
	idx := &fakeIndex{}
	comp := &fakeCompleter{answer: "ok"}
	a := &Answerer{Completer: comp}

	history := []domain.ChatTurn{
		{Role: domain.RoleHuman, Text: "first question"},
		{Role: domain.RoleAI, Text: "first answer"},
		{Role: "system", Text: "should be skipped"},
	}
	if _, err := a.Answer(context.Background(), testRetriever(idx, &fakeEmbedder{}), "next", history); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	// system + 2 mapped turns + final question
	if len(comp.got) != 4 {
		t.Fatalf("expected 4 prompt messages, got %d: %+v", len(comp.got), comp.got)
	}
	if comp.got[1].Role != "user" || comp.got[1].Content != "first question" {
		t.Fatalf("human turn not mapped to user: %+v", comp.got[1])
	}
	if comp.got[2].Role != "assistant" || comp.got[2].Content != "first answer" {
		t.Fatalf("ai turn not mapped to assistant: %+v", comp.got[2])
	}
}

func TestAnswer_NoPassagesPlaceholder(t *testing.T) {
	idx := &fakeIndex{} // no matches
	comp := &fakeCompleter{answer: "I don't know."}
	a := &Answerer{Completer: comp}

	if _, err := a.Answer(context.Background(), testRetriever(idx, &fakeEmbedder{}), "anything", nil); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(comp.got[0].Content, "(no relevant passages found)") {
		t.Fatalf("empty-context placeholder missing: %q", comp.got[0].Content)
	}
}

func TestAnswer_CompletionFailureIsGenerationFailed(t *testing.T) {
	idx := &fakeIndex{}
	comp := &fakeCompleter{err: errors.New("timeout")}
	a := &Answerer{Completer: comp}

	_, err := a.Answer(context.Background(), testRetriever(idx, &fakeEmbedder{}), "q", nil)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	// A failed call is not the same failure as a text-less response.
	if errors.Is(err, ErrMissingAnswer) {
		t.Fatalf("call failure must not map to ErrMissingAnswer: %v", err)
	}
}

func TestAnswer_BlankCompletionIsMissingAnswer(t *testing.T) {
	idx := &fakeIndex{}
	comp := &fakeCompleter{answer: "   "}
	a := &Answerer{Completer: comp}

	_, err := a.Answer(context.Background(), testRetriever(idx, &fakeEmbedder{}), "q", nil)
	if !errors.Is(err, ErrMissingAnswer) {
		t.Fatalf("expected ErrMissingAnswer for blank text, got %v", err)
	}
	if errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("text-less response must not map to ErrGenerationFailed: %v", err)
	}
}

func TestBuildPrompt_PassageJoining(t *testing.T) {
	passages := []Passage{{Text: "one"}, {Text: "two"}}
	msgs := buildPrompt(passages, nil, "q")
	if !strings.Contains(msgs[0].Content, "one\n\ntwo") {
		t.Fatalf("passages not joined with blank line: %q", msgs[0].Content)
	}
}
