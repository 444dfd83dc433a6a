package ingest

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the window length in runes.
	DefaultChunkSize = 500
	// DefaultOverlap is the number of runes shared by consecutive windows.
	DefaultOverlap = 50
)

// Chunking strategies.
const (
	StrategyWindow    = "window"
	StrategyRecursive = "recursive"
)

// Splitter turns documents into chunks.
type Splitter struct {
	Size     int
	Overlap  int
	Strategy string
}

// DefaultSplitter uses a 500-rune window with 50 runes of overlap.
func DefaultSplitter() Splitter {
	return Splitter{Size: DefaultChunkSize, Overlap: DefaultOverlap, Strategy: StrategyWindow}
}

// Split loads raw and cuts it into chunks attributed to filename.
func (s Splitter) Split(raw []byte, filename string) ([]domain.Chunk, error) {
	text, err := Load(raw, filename)
	if err != nil {
		return nil, err
	}
	return s.chunk(text, filename)
}

// Split is DefaultSplitter().Split.
func Split(raw []byte, filename string) ([]domain.Chunk, error) {
	return DefaultSplitter().Split(raw, filename)
}

func (s Splitter) chunk(text, filename string) ([]domain.Chunk, error) {
	var (
		parts []string
		err   error
	)
	switch s.Strategy {
	case StrategyRecursive:
		parts, err = textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(s.Size),
			textsplitter.WithChunkOverlap(s.Overlap),
		).SplitText(text)
		if err != nil {
			return nil, fmt.Errorf("ingest: split %s: %w", filename, err)
		}
	case StrategyWindow, "":
		parts = windows(text, s.Size, s.Overlap)
	default:
		return nil, fmt.Errorf("ingest: unknown chunk strategy %q", s.Strategy)
	}

	chunks := make([]domain.Chunk, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{Text: p, Source: filename})
	}
	if len(chunks) == 0 {
		return nil, domain.Errorf("ingest: split "+filename, domain.ErrEmptyDocument, "no non-blank chunks")
	}
	return chunks, nil
}

// windows slides a size-rune window over text in steps of size-overlap.
// The last window ends exactly at the end of text.
func windows(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	var out []string
	for start := 0; ; start += step {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
