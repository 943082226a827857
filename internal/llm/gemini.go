package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"
)

// Gemini implements Capability on top of the Google generative AI API.
type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Close() {
	if g.client != nil {
		if err := g.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	em := g.client.EmbeddingModel(defaultEmbeddingModelName)

	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, mapGeminiError("embedding", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d inputs", ErrTransient, embeddingCount(res), len(texts))
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrTransient, i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(defaultChatModelName)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", mapGeminiError("completion", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini response was empty", ErrTransient)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}
	return responseText.String(), nil
}

func embeddingCount(res *genai.BatchEmbedContentsResponse) int {
	if res == nil {
		return 0
	}
	return len(res.Embeddings)
}

// mapGeminiError translates API failures into the capability error kinds the
// pipeline distinguishes.
func mapGeminiError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: gemini %s: %v", ErrTimeout, op, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return fmt.Errorf("%w: gemini %s: %v", ErrRateLimit, op, err)
		case apiErr.Code == 401 || apiErr.Code == 403:
			return fmt.Errorf("%w: gemini %s: %v", ErrAuth, op, err)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: gemini %s: %v", ErrTransient, op, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: gemini %s: %v", ErrTransient, op, err)
	}

	return fmt.Errorf("gemini %s request failed: %w", op, err)
}
