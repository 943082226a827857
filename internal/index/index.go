package index

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/docuquery/docuquery/internal/chunk"
	"github.com/docuquery/docuquery/internal/llm"
)

const embedBatchSize = 16

var (
	ErrNotBuilt          = errors.New("index: not built")
	ErrDimensionMismatch = errors.New("index: embedding dimension mismatch")
)

// Result is a chunk scored against a query embedding. Higher is better
// (cosine similarity).
type Result struct {
	Chunk chunk.Chunk
	Score float32
}

// Index is an in-memory nearest-neighbor store over chunk embeddings. It is
// built once per document and read-only afterwards, so queries need no
// locking.
type Index struct {
	chunks    []chunk.Chunk
	vectors   [][]float32
	dimension int
}

// Build embeds every chunk and stores the vectors keyed by chunk position.
// Embedding calls are batched and fan out across a bounded worker pool;
// results land in their batch's slot so chunk order is preserved regardless
// of completion order.
func Build(ctx context.Context, chunks []chunk.Chunk, embedder llm.Capability, workers int) (*Index, error) {
	if workers <= 0 {
		workers = 1
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(texts); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			batch, err := embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dimension := 0
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for chunk %d", ErrDimensionMismatch, chunks[i].ID)
		}
		if dimension == 0 {
			dimension = len(vec)
		} else if len(vec) != dimension {
			return nil, fmt.Errorf("%w: chunk %d has dimension %d, index has %d", ErrDimensionMismatch, chunks[i].ID, len(vec), dimension)
		}
	}

	log.Printf("Built vector index: %d chunks, dimension %d", len(chunks), dimension)
	return &Index{chunks: chunks, vectors: vectors, dimension: dimension}, nil
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.chunks)
}

// Dimension returns the embedding dimension the index was built with.
func (idx *Index) Dimension() int {
	if idx == nil {
		return 0
	}
	return idx.dimension
}

// Query returns the k chunks most similar to the query embedding, best
// first. Ties break toward the lower chunk id, so repeated queries with the
// same vector return the same ordering.
func (idx *Index) Query(queryVec []float32, k int) ([]Result, error) {
	if idx == nil || idx.dimension == 0 {
		return nil, ErrNotBuilt
	}
	if len(queryVec) != idx.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(queryVec), idx.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	results := make([]Result, len(idx.chunks))
	for i := range idx.chunks {
		results[i] = Result{Chunk: idx.chunks[i], Score: cosineSimilarity(idx.vectors[i], queryVec)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}
