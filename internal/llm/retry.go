package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
)

type retryCapability struct {
	inner       Capability
	maxAttempts int
	backoffBase time.Duration
}

// WithRetry wraps a capability with bounded exponential backoff. Only
// transient network and rate-limit errors are retried; validation and
// authentication errors surface immediately.
func WithRetry(inner Capability) Capability {
	return &retryCapability{inner: inner, maxAttempts: defaultMaxAttempts, backoffBase: defaultBackoffBase}
}

func (r *retryCapability) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := r.do(ctx, "embed", func() error {
		var err error
		vectors, err = r.inner.Embed(ctx, texts)
		return err
	})
	return vectors, err
}

func (r *retryCapability) Complete(ctx context.Context, prompt string) (string, error) {
	var text string
	err := r.do(ctx, "complete", func() error {
		var err error
		text, err = r.inner.Complete(ctx, prompt)
		return err
	})
	return text, err
}

func (r *retryCapability) do(ctx context.Context, op string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := r.backoffBase << (attempt - 1)
			log.Printf("Retrying %s after %v (attempt %d/%d): %v", op, backoff, attempt+1, r.maxAttempts, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, r.maxAttempts, lastErr)
}

type timeoutCapability struct {
	inner   Capability
	timeout time.Duration
}

// WithTimeout applies a per-call deadline. A zero or negative timeout leaves
// the capability unbounded, matching the default.
func WithTimeout(inner Capability, timeout time.Duration) Capability {
	if timeout <= 0 {
		return inner
	}
	return &timeoutCapability{inner: inner, timeout: timeout}
}

func (t *timeoutCapability) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	vectors, err := t.inner.Embed(ctx, texts)
	return vectors, mapDeadline(err)
}

func (t *timeoutCapability) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	text, err := t.inner.Complete(ctx, prompt)
	return text, mapDeadline(err)
}

func mapDeadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
