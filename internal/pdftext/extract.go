// Package pdftext extracts plain text from PDF bytes. Extraction sits behind
// a small interface because the vector-store builder only cares about getting
// text out of a blob; the PDF library is an implementation detail.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor converts raw PDF bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// PDFExtractor extracts text with a pure-Go PDF reader. Scanned or
// image-only PDFs yield empty text, which the chunker reports as an
// empty document downstream.
type PDFExtractor struct{}

// New returns a ready PDFExtractor.
func New() *PDFExtractor { return &PDFExtractor{} }

// Extract parses the PDF and concatenates the plain text of all pages.
// Corrupt, encrypted, or truncated files surface as an error; empty output
// is legal here and rejected later by the chunker.
func (PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("pdftext: empty input")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdftext: parse: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdftext: extract: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("pdftext: read: %w", err)
	}
	return sb.String(), nil
}
