package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the funnel. One instance is
// constructed in main and shared by every stage.
type Metrics struct {
	SearchRequests  atomic.Int64
	ScrapeRequests  atomic.Int64
	ScrapeErrors    atomic.Int64
	LLMCalls        atomic.Int64
	LLMErrors       atomic.Int64
	EmbedRequests   atomic.Int64
	EmbedErrors     atomic.Int64
	VectorUpserts   atomic.Int64
	VectorQueries   atomic.Int64
	JobsPersisted   atomic.Int64
	FitScoresSaved  atomic.Int64
	ScansStarted    atomic.Int64
	ScansCompleted  atomic.Int64
	ScansFailed     atomic.Int64
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"search_requests":  m.SearchRequests.Load(),
		"scrape_requests":  m.ScrapeRequests.Load(),
		"scrape_errors":    m.ScrapeErrors.Load(),
		"llm_calls":        m.LLMCalls.Load(),
		"llm_errors":       m.LLMErrors.Load(),
		"embed_requests":   m.EmbedRequests.Load(),
		"embed_errors":     m.EmbedErrors.Load(),
		"vector_upserts":   m.VectorUpserts.Load(),
		"vector_queries":   m.VectorQueries.Load(),
		"jobs_persisted":   m.JobsPersisted.Load(),
		"fit_scores_saved": m.FitScoresSaved.Load(),
		"scans_started":    m.ScansStarted.Load(),
		"scans_completed":  m.ScansCompleted.Load(),
		"scans_failed":     m.ScansFailed.Load(),
		"cache_hits":       m.CacheHits.Load(),
		"cache_misses":     m.CacheMisses.Load(),
	}
}

// Format returns metrics as a simple text format for the HTTP endpoint.
func (m *Metrics) Format() string {
	snap := m.Snapshot()
	keys := []string{
		"search_requests", "scrape_requests", "scrape_errors",
		"llm_calls", "llm_errors",
		"embed_requests", "embed_errors",
		"vector_upserts", "vector_queries",
		"jobs_persisted", "fit_scores_saved",
		"scans_started", "scans_completed", "scans_failed",
		"cache_hits", "cache_misses",
	}
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, snap[k])
	}
	return sb.String()
}

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
