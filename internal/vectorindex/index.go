// Package vectorindex wraps the external similarity-search service. Each
// document's vectors live in their own namespace keyed by the document id;
// the Index interface is the boundary the RAG pipeline depends on.
package vectorindex

import (
	"context"
	"errors"
)

// ErrIndexUnavailable is returned when the index cannot be reached or
// answers with a server error. Callers must never treat this as "namespace
// absent": doing so would trigger a duplicate, costly re-embedding.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// Vector is one embedding plus its retrievable metadata (the source chunk
// text and its position in the document).
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is one ranked query result.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Stats describes the aggregate state of the index. The existence check
// reads it instead of issuing a query that would fail ambiguously on a
// missing namespace.
type Stats struct {
	Namespaces map[string]NamespaceStats
}

// NamespaceStats carries per-namespace aggregates.
type NamespaceStats struct {
	VectorCount int64
}

// Index is the contract the pipeline consumes. DeleteNamespace is
// idempotent: removing an absent namespace is not an error.
type Index interface {
	DescribeStats(ctx context.Context) (Stats, error)
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
	DeleteNamespace(ctx context.Context, namespace string) error
}

// HasNamespace reports whether stats contain the given namespace key.
func (s Stats) HasNamespace(key string) bool {
	_, ok := s.Namespaces[key]
	return ok
}
