package rag

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docuchat/go-pdf-chat-backend/internal/embedding"
	"github.com/docuchat/go-pdf-chat-backend/internal/vectorindex"
)

// Retriever answers similarity queries against one document's namespace.
// Construct it through StoreBuilder.EnsureStore so the namespace is known
// to be populated.
type Retriever struct {
	index     vectorindex.Index
	embedder  embedding.Embedder
	namespace string
	topK      int
}

// Passage is one retrieved chunk, ordered by descending similarity.
type Passage struct {
	Text     string
	Position int
	Score    float64
}

// Retrieve embeds the query and returns the nearest passages. Matches whose
// metadata carries no text are dropped rather than handed to the prompt as
// empty context.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Passage, error) {
	tr := otel.Tracer("rag/Retriever")
	ctx, span := tr.Start(ctx, "Retrieve",
		trace.WithAttributes(
			attribute.String("namespace", r.namespace),
			attribute.Int("top_k", r.topK),
		),
	)
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuestion
	}

	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.index.Query(ctx, r.namespace, vec, r.topK)
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, 0, len(matches))
	for _, m := range matches {
		text, _ := m.Metadata["text"].(string)
		if strings.TrimSpace(text) == "" {
			continue
		}
		p := Passage{Text: text, Score: m.Score}
		// JSON numbers decode as float64; positions were stored as ints.
		if pos, ok := m.Metadata["position"].(float64); ok {
			p.Position = int(pos)
		}
		passages = append(passages, p)
	}
	span.SetAttributes(attribute.Int("passages", len(passages)))
	return passages, nil
}
