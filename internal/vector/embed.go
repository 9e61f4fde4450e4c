// Package vector provides embeddings, a vector store client, and the
// stable-id indexing/retrieval layer over both.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anatolykoptev/go_scout/internal/engine"
)

// Embedder turns text into a vector. Implemented by EmbedClient; tests
// substitute fakes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedClient talks to an OpenAI-compatible /v1/embeddings endpoint.
type EmbedClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	metrics *engine.Metrics
}

// NewEmbedClient creates an embeddings client.
func NewEmbedClient(baseURL, apiKey, model string, metrics *engine.Metrics) *EmbedClient {
	return &EmbedClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
		metrics: metrics,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.metrics != nil {
		c.metrics.EmbedRequests.Add(1)
	}
	vec, err := c.embed(ctx, text)
	if err != nil && c.metrics != nil {
		c.metrics.EmbedErrors.Add(1)
	}
	return vec, err
}

func (c *EmbedClient) embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: c.model, Input: []string{text}})
	if err != nil {
		return nil, err
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return c.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed: status %d: %s", resp.StatusCode, string(b))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embed decode: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	return out.Data[0].Embedding, nil
}
