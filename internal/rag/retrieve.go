package rag

import (
	"context"
	"fmt"

	"github.com/docuquery/docuquery/internal/chunk"
	"github.com/docuquery/docuquery/internal/index"
	"github.com/docuquery/docuquery/internal/llm"
)

// Retriever embeds a standalone question and pulls the top-k chunks from the
// session's index, best first. No re-ranking.
type Retriever struct {
	capability llm.Capability
}

func NewRetriever(capability llm.Capability) *Retriever {
	return &Retriever{capability: capability}
}

// Retrieve may legitimately return an empty slice (k=0 or empty index);
// synthesis handles missing grounding itself.
func (r *Retriever) Retrieve(ctx context.Context, idx *index.Index, question string, k int) ([]chunk.Chunk, error) {
	if k <= 0 || idx.Len() == 0 {
		return nil, nil
	}

	vectors, err := r.capability.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one question", len(vectors))
	}

	results, err := idx.Query(vectors[0], k)
	if err != nil {
		return nil, err
	}

	chunks := make([]chunk.Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
	}
	return chunks, nil
}
