package chunk

import (
	"errors"
	"fmt"
)

// Mode selects how chunking parameters are chosen.
type Mode string

const (
	ModeAutomatic Mode = "automatic"
	ModeManual    Mode = "manual"
)

var ErrInvalidStrategy = errors.New("invalid chunking strategy")

// Chunk is a contiguous slice of document text, embedded independently.
// Offsets are rune positions into the extracted text.
type Chunk struct {
	ID    int    `json:"id"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Strategy holds the chunking parameters, fixed at indexing time.
// Sizes are measured in runes.
type Strategy struct {
	Mode         Mode `json:"mode"`
	ChunkSize    int  `json:"chunk_size"`
	ChunkOverlap int  `json:"chunk_overlap"`
}

// AutoStrategy picks chunk size and overlap from the total length of the
// extracted text. Short documents get small chunks to preserve granularity,
// long documents get larger chunks to bound the chunk count. The policy is
// monotonic: size and overlap never decrease as the document grows, and
// overlap stays below size.
func AutoStrategy(textLen int) Strategy {
	var size, overlap int
	switch {
	case textLen < 5000:
		size, overlap = 500, 100
	case textLen < 50000:
		size, overlap = 1000, 200
	default:
		size, overlap = 1500, 300
	}
	return Strategy{Mode: ModeAutomatic, ChunkSize: size, ChunkOverlap: overlap}
}

// NewManualStrategy validates caller-supplied parameters.
func NewManualStrategy(size, overlap int) (Strategy, error) {
	if size <= 0 {
		return Strategy{}, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidStrategy, size)
	}
	if overlap < 0 || overlap >= size {
		return Strategy{}, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", ErrInvalidStrategy, overlap, size)
	}
	return Strategy{Mode: ModeManual, ChunkSize: size, ChunkOverlap: overlap}, nil
}

// Split cuts text into overlapping chunks. Every chunk except possibly the
// last is exactly ChunkSize runes long, and consecutive chunks share
// ChunkOverlap runes. Concatenating the non-overlapping spans reconstructs
// the input exactly.
func Split(text string, strategy Strategy) ([]Chunk, error) {
	if strategy.ChunkSize <= 0 || strategy.ChunkOverlap < 0 || strategy.ChunkOverlap >= strategy.ChunkSize {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidStrategy, strategy.ChunkSize, strategy.ChunkOverlap)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	if len(runes) <= strategy.ChunkSize {
		return []Chunk{{ID: 0, Text: text, Start: 0, End: len(runes)}}, nil
	}

	stride := strategy.ChunkSize - strategy.ChunkOverlap
	var chunks []Chunk
	for start := 0; ; start += stride {
		end := start + strategy.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			ID:    len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
