// Package rag implements the retrieval-augmented generation core: the
// write-once vector-store builder, the retriever, and the answer
// orchestrator. This file centralizes the error values that make the
// pipeline's failure taxonomy explicit.
package rag

import "errors"

var (
	// ErrEmptyQuestion is returned before any retrieval or embedding call
	// when the question is empty or whitespace-only.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrExtractionFailed wraps PDF parsing failures (corrupt, encrypted,
	// truncated files).
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrEmbeddingFailed wraps failures of the embedding collaborator.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrGenerationFailed wraps failures of the completion call itself
	// (transport, auth, model errors). A response that arrives but lacks
	// answer text is ErrMissingAnswer instead.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrMissingAnswer is returned when the completion response lacks
	// answer text. It is distinct from returning an empty string because
	// downstream persistence must not save emptiness as a valid AI turn.
	ErrMissingAnswer = errors.New("model response is missing an answer")

	// ErrDocumentNotFound is returned when the document metadata or its
	// underlying blob cannot be resolved during ingestion.
	ErrDocumentNotFound = errors.New("document not found")
)
