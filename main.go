// go_scout — job discovery and ranking funnel, exposed as an MCP server.
//
// Tools: job_scan (full funnel), job_rank (rerank explicit postings),
// funnel_status (state + metrics). All clients are constructed here and
// injected; nothing holds package-level state.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_scout/internal/billing"
	"github.com/anatolykoptev/go_scout/internal/engine"
	"github.com/anatolykoptev/go_scout/internal/funnel"
	"github.com/anatolykoptev/go_scout/internal/llm"
	"github.com/anatolykoptev/go_scout/internal/scoutserver"
	"github.com/anatolykoptev/go_scout/internal/scrape"
	"github.com/anatolykoptev/go_scout/internal/search"
	"github.com/anatolykoptev/go_scout/internal/store"
	"github.com/anatolykoptev/go_scout/internal/vector"
)

var version = "dev"

func main() {
	mcpPort := env.Str("MCP_PORT", "8893")

	slog.Info("starting go_scout", slog.String("port", mcpPort), slog.String("version", version))

	metrics := &engine.Metrics{}
	cache := engine.NewCache(
		env.Str("REDIS_URL", ""),
		env.Duration("CACHE_TTL", time.Hour),
		env.Int("CACHE_MAX_ENTRIES", 1000),
		env.Duration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
		metrics,
	)

	llmClient := llm.New(llm.Config{
		BaseURL:      env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
		APIKey:       env.Str("LLM_API_KEY", ""),
		FallbackKeys: env.List("LLM_API_KEY_FALLBACKS", ""),
		Model:        env.Str("LLM_MODEL", "gemini-2.5-flash"),
		Temperature:  env.Float("LLM_TEMPERATURE", 0.1),
		MaxTokens:    env.Int("LLM_MAX_TOKENS", 16384),
	}, metrics)

	searcher, err := search.New(search.Config{
		BaseURL:   env.Str("SEARXNG_URL", "http://127.0.0.1:8888"),
		Engines:   env.Str("SEARXNG_ENGINES", "google"),
		Language:  env.Str("SEARXNG_LANGUAGE", "en"),
		TimeRange: env.Str("SEARXNG_TIME_RANGE", "month"),
		RPS:       env.Float("SEARXNG_RPS", 1.0),
	}, cache, metrics)
	if err != nil {
		slog.Error("search client init failed", slog.Any("error", err))
		os.Exit(1)
	}

	fetcher := scrape.New(scrape.Config{
		Timeout:         env.Duration("FETCH_TIMEOUT", 30*time.Second),
		MaxContentChars: env.Int("MAX_CONTENT_CHARS", 40000),
	}, cache, metrics)

	var vectors funnel.VectorIndex
	if pineconeURL := env.Str("PINECONE_URL", ""); pineconeURL != "" {
		embedder := vector.NewEmbedClient(
			env.Str("EMBED_API_BASE", "https://api.openai.com"),
			env.Str("EMBED_API_KEY", ""),
			env.Str("EMBED_MODEL", "text-embedding-3-small"),
			metrics,
		)
		vectors = vector.NewIndex(vector.NewStore(
			pineconeURL,
			env.Str("PINECONE_API_KEY", ""),
			env.Str("PINECONE_NAMESPACE", "jobs"),
			metrics,
		), embedder)
	} else {
		slog.Warn("PINECONE_URL not set, vector retrieval disabled")
	}

	var jobStore funnel.JobStore
	var fitStore scoutserver.FitStore
	if databaseURL := env.Str("DATABASE_URL", ""); databaseURL != "" {
		db, err := store.Connect(context.Background(), databaseURL)
		if err != nil {
			slog.Error("job store init failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()
		jobStore = db
		fitStore = db
	} else {
		slog.Warn("DATABASE_URL not set, persistence disabled")
	}

	var ledger funnel.Ledger
	if ledgerPath := env.Str("LEDGER_DB", ""); ledgerPath != "" {
		l, err := billing.Open(ledgerPath)
		if err != nil {
			slog.Error("ledger init failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer l.Close()
		ledger = l
	} else {
		slog.Warn("LEDGER_DB not set, billing disabled")
	}

	orchestrator := funnel.NewOrchestrator(searcher, fetcher, llmClient, vectors, jobStore, ledger, metrics)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_scout",
		Version: version,
	}, nil)

	toolCount := 3
	if fitStore != nil {
		toolCount++
	}
	scoutserver.RegisterTools(server, scoutserver.Deps{
		Orchestrator: orchestrator,
		Reranker:     funnel.NewReranker(llmClient),
		Fits:         fitStore,
		Metrics:      metrics,
	})
	slog.Info("tools registered", slog.Int("count", toolCount))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_scout",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 600 * time.Second,
		Metrics:      metrics.Format,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}
