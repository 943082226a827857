package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// Ollama implements Capability against a local Ollama server over its JSON
// HTTP API.
type Ollama struct {
	baseURL    string
	httpClient *http.Client
	chatModel  string
	embedModel string
}

func NewOllama(baseURL, chatModel, embedModel string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434/api"
	}
	return &Ollama{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		chatModel:  chatModel,
		embedModel: embedModel,
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		var resp ollamaEmbeddingResponse
		err := o.post(ctx, "/embeddings", ollamaEmbeddingRequest{Model: o.embedModel, Prompt: text}, &resp)
		if err != nil {
			return nil, err
		}
		if len(resp.Embedding) == 0 {
			return nil, fmt.Errorf("%w: ollama returned an empty embedding", ErrTransient)
		}
		vectors[i] = resp.Embedding
	}
	return vectors, nil
}

func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	req := ollamaChatRequest{
		Model:    o.chatModel,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	}
	var resp ollamaChatResponse
	if err := o.post(ctx, "/chat", req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (o *Ollama) post(ctx context.Context, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return mapOllamaError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: ollama API status %d: %s", ErrRateLimit, resp.StatusCode, body)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: ollama API status %d: %s", ErrAuth, resp.StatusCode, body)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: ollama API status %d: %s", ErrTransient, resp.StatusCode, body)
		default:
			return fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, body)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("%w: failed to decode ollama response: %v", ErrTransient, err)
	}
	return nil
}

func mapOllamaError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return fmt.Errorf("failed to send ollama request: %w", err)
}
