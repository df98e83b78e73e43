// Package indexer loads source documents, splits them into chunks, embeds them and writes the vector file.
package indexer

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparator splits documents on paragraph breaks.
const DefaultSeparator = "\n\n"

// Splitter cuts text on a separator and merges the pieces into chunks of at most
// ChunkSize characters, carrying up to ChunkOverlap characters of trailing pieces
// into the next chunk. A single piece longer than ChunkSize becomes its own chunk.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separator    string
}

// NewSplitter returns a splitter on DefaultSeparator. The overlap is clamped below the size.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &Splitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, Separator: DefaultSeparator}
}

// Split returns the chunks of text in order. Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	var pieces []string
	for _, p := range strings.Split(text, s.Separator) {
		if strings.TrimSpace(p) != "" {
			pieces = append(pieces, p)
		}
	}
	return s.merge(pieces)
}

func (s *Splitter) merge(pieces []string) []string {
	sepLen := utf8.RuneCountInString(s.Separator)
	var (
		chunks  []string
		current []string
		total   int
	)
	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinLen() > s.ChunkSize && len(current) > 0 {
			if c := s.join(current); c != "" {
				chunks = append(chunks, c)
			}
			for total > s.ChunkOverlap || (total+n+joinLen() > s.ChunkSize && total > 0) {
				drop := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}
	if c := s.join(current); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

func (s *Splitter) join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, s.Separator))
}
