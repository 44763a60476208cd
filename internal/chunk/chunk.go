// Package chunk splits source records into bounded text segments with stable
// provenance metadata. Chunks are the unit of embedding and retrieval.
//
// Chunks are immutable: updating a source record replaces its whole chunk
// set, never edits chunks in place.
package chunk

import (
	"fmt"
	"strings"
)

// Kind identifies the source record type a chunk was derived from.
type Kind string

const (
	KindCase    Kind = "case"
	KindScript  Kind = "script"
	KindArticle Kind = "article"
)

// Valid reports whether k is a known source kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCase, KindScript, KindArticle:
		return true
	}
	return false
}

// Default window parameters (characters).
const (
	DefaultSize    = 600
	DefaultOverlap = 100
)

// Chunk is one text fragment with the metadata needed to locate its source
// record.
type Chunk struct {
	Kind     Kind
	SourceID string
	Index    int // 0-based within the source
	Text     string
}

// ID returns the stable chunk identifier {kind}_{source_id}_{index}.
// Re-chunking the same source text yields the same IDs, which makes
// re-indexing replay-safe.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s_%s_%d", c.Kind, c.SourceID, c.Index)
}

// Splitter produces chunks using a character sliding window.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a Splitter. Non-positive size or a negative overlap
// falls back to the defaults; overlap must be smaller than size.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultOverlap, size-1)
	}
	return Splitter{size: size, overlap: overlap}
}

// Split breaks text into overlapping windows and tags each with provenance.
// Empty or whitespace-only text yields no chunks.
func (s Splitter) Split(kind Kind, sourceID, text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" || sourceID == "" {
		return nil
	}
	// A zero-value Splitter would never advance the window.
	if s.size <= 0 {
		s = NewSplitter(0, 0)
	}

	var chunks []Chunk
	if len(text) <= s.size {
		return []Chunk{{Kind: kind, SourceID: sourceID, Index: 0, Text: text}}
	}

	start := 0
	for start < len(text) {
		end := min(start+s.size, len(text))
		chunks = append(chunks, Chunk{
			Kind:     kind,
			SourceID: sourceID,
			Index:    len(chunks),
			Text:     text[start:end],
		})
		if end >= len(text) {
			break
		}
		start = end - s.overlap
	}
	return chunks
}

// CaseText builds the canonical embedding text for a support case.
func CaseText(description, resolution string) string {
	return strings.TrimSpace(fmt.Sprintf("Description: %s\n\nResolution: %s",
		strings.TrimSpace(description), strings.TrimSpace(resolution)))
}

// ArticleText builds the canonical embedding text for a knowledge article.
func ArticleText(title, body string) string {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" {
		return body
	}
	return strings.TrimSpace(fmt.Sprintf("Title: %s\n\n%s", title, body))
}
