// Package search implements the SearXNG search collaborator.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_scout/internal/engine"
	"github.com/anatolykoptev/go_scout/internal/funnel"
)

// Config for the search client.
type Config struct {
	BaseURL   string        // SearXNG instance, e.g. http://localhost:8888
	Engines   string        // comma-separated engine list, empty for instance default
	Language  string        // empty or "all" means no restriction
	TimeRange string        // day|week|month|year, empty for no restriction
	RPS       float64       // requests per second, <= 0 disables limiting
	Timeout   time.Duration // per-request, <= 0 selects 30s
}

// Client queries a SearXNG instance. Implements funnel.Searcher.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   *engine.Cache
	metrics *engine.Metrics
}

// New builds a search client. cache and metrics may be nil.
func New(cfg Config, cache *engine.Cache, metrics *engine.Metrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("search: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		cache:   cache,
		metrics: metrics,
	}, nil
}

type searxngResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Engine  string  `json:"engine"`
	Score   float64 `json:"score"`
}

type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

// Search queries SearXNG and returns hits deduplicated by URL, result order
// preserved. Results are cached per query.
func (c *Client) Search(ctx context.Context, query string) ([]funnel.SearchHit, error) {
	cacheKey := engine.CacheKey("search", c.cfg.Engines, query)
	if hits, ok := engine.LoadJSON[[]funnel.SearchHit](ctx, c.cache, cacheKey); ok {
		return hits, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(c.cfg.BaseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	if c.cfg.Language != "" && c.cfg.Language != "all" {
		q.Set("language", c.cfg.Language)
	}
	if c.cfg.TimeRange != "" {
		q.Set("time_range", c.cfg.TimeRange)
	}
	if c.cfg.Engines != "" {
		q.Set("engines", c.cfg.Engines)
	}
	u.RawQuery = q.Encode()

	if c.metrics != nil {
		c.metrics.SearchRequests.Add(1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	// Self-hosted SearXNG; identify honestly instead of faking a browser.
	req.Header.Set("User-Agent", engine.UserAgentBot)
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer resp.Body.Close()

	var data searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("search decode: %w", err)
	}

	seen := make(map[string]bool, len(data.Results))
	var hits []funnel.SearchHit
	for _, r := range data.Results {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		hits = append(hits, funnel.SearchHit{URL: r.URL, Title: r.Title, Source: r.Engine})
	}

	engine.StoreJSON(ctx, c.cache, cacheKey, hits)
	return hits, nil
}
