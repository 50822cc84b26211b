// Package embedding wraps the external embedding model behind a small
// capability interface. Providers convert text into fixed-length numeric
// vectors used for similarity search; no caching happens at this level
// (the write-once namespace guarantee lives in the vector-store builder).
package embedding

import (
	"context"
	"errors"
)

// ErrEmptyInput is returned when a text is empty after trimming. Blank
// vectors would silently corrupt similarity search, so the guard sits in
// front of every remote call.
var ErrEmptyInput = errors.New("embedding input is empty")

// Embedder is the capability interface implemented by provider adapters.
type Embedder interface {
	// EmbedOne converts a single text into a vector.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// EmbedMany converts a batch of texts into vectors, one per input,
	// in input order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}
