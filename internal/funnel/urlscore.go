package funnel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_scout/internal/engine"
)

// JSONCaller issues one LLM call and decodes the strict-JSON answer into out.
// Implemented by internal/llm; funnel stages depend on the interface so tests
// substitute fakes without touching global state.
type JSONCaller interface {
	CallJSON(ctx context.Context, system, user, schema string, out any) error
}

// DefaultScoreBatchSize bounds prompt size and token cost per classifier call.
const DefaultScoreBatchSize = 25

const scoreBatchParallelism = 4

// URLScorer classifies candidate URLs for job relevance in batches.
type URLScorer struct {
	llm       JSONCaller
	batchSize int
}

// NewURLScorer creates a URL scorer. batchSize <= 0 selects the default.
func NewURLScorer(llm JSONCaller, batchSize int) *URLScorer {
	if batchSize <= 0 {
		batchSize = DefaultScoreBatchSize
	}
	return &URLScorer{llm: llm, batchSize: batchSize}
}

type rawScoredURL struct {
	URL    string `json:"url"`
	Score  int    `json:"score"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Score classifies every input URL. The output always has exactly one entry
// per input URL, in input order, duplicates included. A failed batch
// degrades to default entries rather than breaking the contract.
func (s *URLScorer) Score(ctx context.Context, urls []string, userContext string) []ScoredURL {
	if len(urls) == 0 {
		return nil
	}

	// Classifier sees each distinct URL once.
	seen := make(map[string]bool, len(urls))
	var unique []string
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}

	var batches [][]string
	for start := 0; start < len(unique); start += s.batchSize {
		end := min(start+s.batchSize, len(unique))
		batches = append(batches, unique[start:end])
	}

	batchResults, errs := engine.MapLimit(ctx, scoreBatchParallelism, batches, func(ctx context.Context, batch []string) ([]rawScoredURL, error) {
		return s.scoreBatch(ctx, batch, userContext)
	})
	for i, err := range errs {
		if err != nil {
			slog.Warn("url scoring batch failed", slog.Int("batch", i), slog.Int("urls", len(batches[i])), slog.Any("error", err))
		}
	}

	// First answer encountered wins when the model repeats a URL.
	byURL := make(map[string]ScoredURL, len(unique))
	for _, batch := range batchResults {
		for _, raw := range batch {
			if _, ok := byURL[raw.URL]; ok {
				continue
			}
			byURL[raw.URL] = ScoredURL{
				URL:    raw.URL,
				Score:  ClampScore(raw.Score),
				Kind:   ParsePageKind(raw.Kind),
				Reason: raw.Reason,
			}
		}
	}

	// Broadcast unique results back to every original occurrence.
	out := make([]ScoredURL, len(urls))
	for i, u := range urls {
		if scored, ok := byURL[u]; ok {
			out[i] = scored
			continue
		}
		out[i] = ScoredURL{URL: u, Score: 0, Kind: PageIrrelevant, Reason: "missing model output"}
	}
	return out
}

func (s *URLScorer) scoreBatch(ctx context.Context, batch []string, userContext string) ([]rawScoredURL, error) {
	var list strings.Builder
	for i, u := range batch {
		fmt.Fprintf(&list, "%d. %s\n", i+1, u)
	}

	contextSection := ""
	if userContext != "" {
		contextSection = "\nCandidate context (bias scores toward relevant roles):\n" + userContext + "\n"
	}

	prompt := fmt.Sprintf(urlScorePrompt, contextSection, list.String())

	var raw []rawScoredURL
	if err := s.llm.CallJSON(ctx, "", prompt, urlScoreSchema, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
