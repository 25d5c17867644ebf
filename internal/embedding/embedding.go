// Package embedding provides a pluggable interface for text embedding
// providers speaking the OpenAI-compatible /embeddings wire contract.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ErrUnavailable marks any transport, auth, or quota failure talking to
// the embedding endpoint. Callers degrade to "no retrieval" on it.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider identifies the configured embedding backend.
type Provider string

const (
	ProviderOpenAI           Provider = "openai"
	ProviderOpenAICompatible Provider = "openai-compatible"
)

// Config holds embedding provider settings. One instance per memory
// manager; absence of a config disables retrieval entirely.
type Config struct {
	Provider Provider
	APIKey   string
	BaseURL  string // empty = https://api.openai.com/v1
	Model    string // empty = text-embedding-3-small
}

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in chunks of at most batchSize, preserving
	// input order in the output.
	EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

const defaultBatchSize = 100

// Client calls an OpenAI-compatible embedding API.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a client for the given config, filling in the
// OpenAI defaults for base URL and model.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
}

func (c *Client) call(ctx context.Context, input []string) ([][]float32, error) {
	body, _ := json.Marshal(embedRequest{Model: c.cfg.Model, Input: input})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(b))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(result.Data) != len(input) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrUnavailable, len(result.Data), len(input))
	}

	vectors := make([][]float32, len(input))
	for i, item := range result.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.call(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vectors...)
	}
	return results, nil
}

// NewFromEnv creates an embedder from environment variables.
// MEMCORE_EMBED_PROVIDER: "openai" | "openai-compatible" | "" (disabled)
// MEMCORE_EMBED_MODEL: model name
// MEMCORE_EMBED_URL: base URL override
// OPENAI_API_KEY: bearer token
func NewFromEnv() Embedder {
	provider := Provider(os.Getenv("MEMCORE_EMBED_PROVIDER"))

	switch provider {
	case ProviderOpenAI, ProviderOpenAICompatible:
		return NewClient(Config{
			Provider: provider,
			APIKey:   os.Getenv("OPENAI_API_KEY"),
			BaseURL:  os.Getenv("MEMCORE_EMBED_URL"),
			Model:    os.Getenv("MEMCORE_EMBED_MODEL"),
		})
	default:
		return nil // embeddings disabled
	}
}
