package llm

import (
	"context"
	"errors"
)

// Capability is the narrow interface the pipeline consumes for all model
// access. Concrete providers (Gemini, Ollama) implement it; tests substitute
// doubles.
type Capability interface {
	// Embed converts texts to fixed-length vectors, one per input, in input
	// order. All vectors from one provider have the same dimension.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Complete generates text for a fully-assembled prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Capability boundary error kinds. The pipeline distinguishes only these;
// everything else is treated as non-retryable.
var (
	ErrRateLimit = errors.New("llm: rate limited")
	ErrAuth      = errors.New("llm: authentication failed")
	ErrTransient = errors.New("llm: transient network error")
	ErrTimeout   = errors.New("llm: request timed out")
)

// Retryable reports whether an error is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimit)
}
