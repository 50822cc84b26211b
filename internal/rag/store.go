// Package rag – StoreBuilder
//
// The StoreBuilder owns the idempotence contract of the whole pipeline:
// expensive chunk/embed/store work happens at most once per document. It
// checks namespace existence through aggregate index statistics, attaches a
// retriever when the namespace is already populated, and otherwise ingests
// the document (blob → text → chunks → vectors → upsert) into a fresh
// namespace keyed by the document id.
package rag

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docuchat/go-pdf-chat-backend/internal/chunker"
	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
	"github.com/docuchat/go-pdf-chat-backend/internal/embedding"
	"github.com/docuchat/go-pdf-chat-backend/internal/pdftext"
	"github.com/docuchat/go-pdf-chat-backend/internal/vectorindex"
)

// DocumentSource resolves document metadata. Implemented by the repo layer;
// kept as an interface so store tests run against fixtures.
type DocumentSource interface {
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
}

// BlobSource fetches the raw bytes of a stored file.
type BlobSource interface {
	Get(fileID string) ([]byte, error)
}

// StoreBuilder builds or attaches the per-document vector store.
type StoreBuilder struct {
	Index     vectorindex.Index
	Embedder  embedding.Embedder
	Chunker   *chunker.Chunker
	Extractor pdftext.Extractor
	Documents DocumentSource
	Blobs     BlobSource

	// TopK is the retriever's result count; values <= 0 fall back to 4.
	TopK int
}

// EnsureStore returns a retriever over the document's namespace, ingesting
// the document first when its embeddings do not exist yet.
//
// The existence check reads aggregate index statistics; an unreachable index
// propagates as vectorindex.ErrIndexUnavailable and is never interpreted as
// "namespace absent", which would cause a duplicate, costly re-embedding.
func (b *StoreBuilder) EnsureStore(ctx context.Context, documentID string) (*Retriever, error) {
	tr := otel.Tracer("rag/StoreBuilder")
	ctx, span := tr.Start(ctx, "EnsureStore",
		trace.WithAttributes(attribute.String("document.id", documentID)),
	)
	defer span.End()

	if strings.TrimSpace(documentID) == "" {
		return nil, fmt.Errorf("rag: empty document id")
	}

	stats, err := b.Index.DescribeStats(ctx)
	if err != nil {
		return nil, err
	}

	if stats.HasNamespace(documentID) {
		// Fast path: attach only, no source read. This is what every
		// question after the first one hits.
		span.SetAttributes(attribute.Bool("namespace.existed", true))
		return b.retriever(documentID), nil
	}

	span.SetAttributes(attribute.Bool("namespace.existed", false))
	if err := b.ingest(ctx, documentID); err != nil {
		return nil, err
	}
	return b.retriever(documentID), nil
}

// DeleteNamespace removes the document's vectors. Deleting a namespace that
// was never created is a no-op, and deleting twice succeeds on both calls.
func (b *StoreBuilder) DeleteNamespace(ctx context.Context, documentID string) error {
	return b.Index.DeleteNamespace(ctx, documentID)
}

// ingest runs the one-time pipeline: resolve metadata, fetch the blob,
// extract text, chunk, embed, upsert.
//
// The underlying index only supports incremental upsert, so a mid-way
// failure can leave a partial namespace behind. To keep retries safe the
// partial namespace is deleted (best effort) before the error is returned;
// if that cleanup also fails, the namespace must be repaired by deleting the
// document or calling DeleteNamespace before asking again.
func (b *StoreBuilder) ingest(ctx context.Context, documentID string) (err error) {
	doc, derr := b.Documents.GetDocument(ctx, documentID)
	if derr != nil {
		return fmt.Errorf("%w: %v", ErrDocumentNotFound, derr)
	}

	data, berr := b.Blobs.Get(doc.FileID)
	if berr != nil {
		return fmt.Errorf("%w: blob %s: %v", ErrDocumentNotFound, doc.FileID, berr)
	}

	text, xerr := b.Extractor.Extract(ctx, data)
	if xerr != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, xerr)
	}

	chunks, cerr := b.Chunker.Chunk(text)
	if cerr != nil {
		return cerr // chunker.ErrEmptyDocument
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, eerr := b.Embedder.EmbedMany(ctx, texts)
	if eerr != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, eerr)
	}

	vectors := make([]vectorindex.Vector, len(chunks))
	for i, c := range chunks {
		vectors[i] = vectorindex.Vector{
			ID:     fmt.Sprintf("%s-%d", documentID, c.Position),
			Values: vecs[i],
			Metadata: map[string]any{
				"text":     c.Text,
				"position": c.Position,
			},
		}
	}

	if uerr := b.Index.Upsert(ctx, documentID, vectors); uerr != nil {
		// Best-effort repair so the namespace is not left half-written.
		_ = b.Index.DeleteNamespace(ctx, documentID)
		return uerr
	}
	return nil
}

func (b *StoreBuilder) retriever(documentID string) *Retriever {
	k := b.TopK
	if k <= 0 {
		k = 4
	}
	return &Retriever{
		index:     b.Index,
		embedder:  b.Embedder,
		namespace: documentID,
		topK:      k,
	}
}
