package chunker

import (
	"strings"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	c := New(0, -1)
	if c.size != 1000 || c.overlap != 200 {
		t.Fatalf("expected defaults 1000/200, got %d/%d", c.size, c.overlap)
	}

	// overlap >= size falls back to size/5
	c2 := New(100, 100)
	if c2.size != 100 || c2.overlap != 20 {
		t.Fatalf("expected 100/20, got %d/%d", c2.size, c2.overlap)
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	c := New(1000, 200)
	if _, err := c.Chunk(""); err != ErrEmptyDocument {
		t.Fatalf("expected ErrEmptyDocument for empty, got %v", err)
	}
	if _, err := c.Chunk("   \n\t  "); err != ErrEmptyDocument {
		t.Fatalf("expected ErrEmptyDocument for whitespace, got %v", err)
	}
}

func TestChunk_SingleChunkWhenShort(t *testing.T) {
	c := New(1000, 200)
	out, err := c.Chunk("  hello world  ")
	if err != nil {
		t.Fatalf("Chunk error: %v", err)
	}
	if len(out) != 1 || out[0].Text != "hello world" || out[0].Position != 0 {
		t.Fatalf("unexpected chunks: %+v", out)
	}
}

func TestChunk_WordBoundaryAndOverlap(t *testing.T) {
	// 26 five-letter words separated by spaces → 155 characters.
	words := make([]string, 26)
	for i := range words {
		words[i] = strings.Repeat(string(rune('a'+i)), 5)
	}
	text := strings.Join(words, " ")

	c := New(50, 10)
	out, err := c.Chunk(text)
	if err != nil {
		t.Fatalf("Chunk error: %v", err)
	}
	if len(out) < 3 {
		t.Fatalf("expected several chunks, got %d", len(out))
	}

	for i, ch := range out {
		if ch.Position != i {
			t.Fatalf("positions not sequential: chunk %d has position %d", i, ch.Position)
		}
		if len(ch.Text) > 50 {
			t.Fatalf("chunk %d exceeds size: %d bytes", i, len(ch.Text))
		}
		// Word-boundary breaking: no chunk should start or end mid-word,
		// so every chunk must be a substring aligned on full words.
		for _, w := range strings.Fields(ch.Text) {
			found := false
			for _, orig := range words {
				if w == orig {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("chunk %d split a word: %q", i, w)
			}
		}
	}

	// Overlap: consecutive chunks share at least one word.
	for i := 1; i < len(out); i++ {
		prev := strings.Fields(out[i-1].Text)
		cur := strings.Fields(out[i].Text)
		if prev[len(prev)-1] != cur[0] {
			t.Fatalf("chunks %d/%d do not overlap: %q vs %q", i-1, i, out[i-1].Text, out[i].Text)
		}
	}

	// Reconstruction: every original word appears somewhere.
	joined := strings.Join(chunkTexts(out), " ")
	for _, w := range words {
		if !strings.Contains(joined, w) {
			t.Fatalf("word %q lost during chunking", w)
		}
	}
}

func TestChunk_NoSpacesLongRun(t *testing.T) {
	// A single unbroken token longer than the chunk size must still make
	// progress (hard split, no infinite loop).
	text := strings.Repeat("x", 2500)
	c := New(1000, 200)
	out, err := c.Chunk(text)
	if err != nil {
		t.Fatalf("Chunk error: %v", err)
	}
	total := 0
	for _, ch := range out {
		total += len(ch.Text)
	}
	if total < 2500 {
		t.Fatalf("content lost: reassembled %d of 2500 bytes", total)
	}
}

func TestChunk_TailNotDuplicatedForever(t *testing.T) {
	text := strings.Repeat("word ", 300) // 1500 chars
	c := New(1000, 200)
	out, err := c.Chunk(text)
	if err != nil {
		t.Fatalf("Chunk error: %v", err)
	}
	if len(out) < 2 || len(out) > 4 {
		t.Fatalf("unexpected chunk count %d for 1500 chars at 1000/200", len(out))
	}
}

func chunkTexts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
