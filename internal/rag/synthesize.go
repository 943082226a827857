package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/docuquery/docuquery/internal/chunk"
	"github.com/docuquery/docuquery/internal/llm"
)

// Synthesizer produces the final grounded answer. It sees the retrieved
// chunks, the full history, and the question exactly as the user typed it —
// never the rewritten form, which exists only for retrieval.
type Synthesizer struct {
	capability llm.Capability
}

func NewSynthesizer(capability llm.Capability) *Synthesizer {
	return &Synthesizer{capability: capability}
}

// Synthesize returns the answer plus the chunks shown to the user as
// sources. All retrieved chunks are attributed, in retrieval order. Model
// failures propagate; a degraded answer is never fabricated here.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, history History, retrieved []chunk.Chunk) (string, []chunk.Chunk, error) {
	var prompt strings.Builder
	prompt.WriteString(answerInstruction)
	prompt.WriteString("\n\nContext:\n")
	if len(retrieved) == 0 {
		prompt.WriteString(noContextNote)
	} else {
		prompt.WriteString(contextBlock(retrieved))
	}
	if len(history) > 0 {
		prompt.WriteString("\n\nChat history:\n")
		prompt.WriteString(history.Transcript())
	}
	prompt.WriteString("\n\nQuestion: ")
	prompt.WriteString(question)
	prompt.WriteString("\n\nAnswer:")

	answer, err := s.capability.Complete(ctx, prompt.String())
	if err != nil {
		return "", nil, fmt.Errorf("failed to synthesize answer: %w", err)
	}
	return strings.TrimSpace(answer), retrieved, nil
}

func contextBlock(chunks []chunk.Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c.Text)
	}
	return b.String()
}
