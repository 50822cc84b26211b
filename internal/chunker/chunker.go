// Package chunker splits extracted document text into overlapping fixed-size
// segments, the unit of embedding and retrieval. Overlap between consecutive
// chunks prevents context loss at chunk boundaries.
package chunker

import (
	"errors"
	"strings"
)

// ErrEmptyDocument signals a document with no extractable text after
// chunking (typically a scanned or corrupted PDF).
var ErrEmptyDocument = errors.New("document contains no extractable text")

// Chunk is one bounded-length segment of a document's text. Position is the
// zero-based ordinal of the chunk within the document.
type Chunk struct {
	Text     string
	Position int
}

// Chunker produces overlapping character chunks. The zero value is not
// usable; construct with New.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker with the given target chunk size and overlap, both
// in bytes of the (predominantly ASCII) extracted text. Invalid values fall
// back to 1000/200.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 200
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits raw into ordered segments. Boundaries prefer the last space
// inside the window so words are not cut mid-token. Whitespace-only segments
// are dropped; if nothing survives, ErrEmptyDocument is returned.
func (c *Chunker) Chunk(raw string) ([]Chunk, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return nil, ErrEmptyDocument
	}

	var out []Chunk
	pos := 0
	start := 0
	for start < len(content) {
		end := start + c.size
		if end > len(content) {
			end = len(content)
		}
		// Break at a word boundary when we are not at the tail.
		if end < len(content) {
			if i := strings.LastIndex(content[start:end], " "); i > 0 {
				end = start + i
			}
		}

		if text := strings.TrimSpace(content[start:end]); text != "" {
			out = append(out, Chunk{Text: text, Position: pos})
			pos++
		}

		if end == len(content) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	if len(out) == 0 {
		return nil, ErrEmptyDocument
	}
	return out, nil
}
