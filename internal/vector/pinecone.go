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

// Vector is one embedding plus its metadata, keyed by a stable id.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is one nearest-neighbor query result.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Store talks to a Pinecone-compatible vector index over HTTP.
type Store struct {
	baseURL   string // index host, e.g. https://jobs-xxxx.svc.pinecone.io
	apiKey    string
	namespace string
	http      *http.Client
	metrics   *engine.Metrics
}

// NewStore creates a vector store client.
func NewStore(baseURL, apiKey, namespace string, metrics *engine.Metrics) *Store {
	return &Store{
		baseURL:   baseURL,
		apiKey:    apiKey,
		namespace: namespace,
		http:      &http.Client{Timeout: 60 * time.Second},
		metrics:   metrics,
	}
}

// Upsert writes vectors, overwriting by id. A no-op on empty input.
func (s *Store) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	if s.metrics != nil {
		s.metrics.VectorUpserts.Add(int64(len(vectors)))
	}

	body := map[string]any{"vectors": vectors, "namespace": s.namespace}
	resp, err := s.post(ctx, "/vectors/upsert", body)
	if err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vector upsert: status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// Query returns the topK nearest matches. Entries without a string id or a
// numeric score are dropped rather than propagated.
func (s *Store) Query(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]Match, error) {
	if s.metrics != nil {
		s.metrics.VectorQueries.Add(1)
	}

	body := map[string]any{
		"vector":          vec,
		"topK":            topK,
		"namespace":       s.namespace,
		"includeMetadata": true,
	}
	if len(filter) > 0 {
		body["filter"] = filter
	}

	resp, err := s.post(ctx, "/query", body)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vector query: status %d: %s", resp.StatusCode, string(b))
	}

	var raw struct {
		Matches []struct {
			ID       any            `json:"id"`
			Score    any            `json:"score"`
			Metadata map[string]any `json:"metadata"`
		} `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("vector query decode: %w", err)
	}

	var matches []Match
	for _, m := range raw.Matches {
		id, okID := m.ID.(string)
		score, okScore := m.Score.(float64)
		if !okID || id == "" || !okScore {
			continue
		}
		matches = append(matches, Match{ID: id, Score: score, Metadata: m.Metadata})
	}
	return matches, nil
}

func (s *Store) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Api-Key", s.apiKey)
		return s.http.Do(req)
	})
}
