package funnel

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/anatolykoptev/go_scout/internal/engine"
)

// DefaultTopK is how many ranked jobs a run returns by default.
const DefaultTopK = 10

// maxSummaryRunes caps each job description inside the rerank prompt so one
// verbose posting cannot crowd out the rest of the shortlist.
const maxSummaryRunes = 400

// Reranker scores a retrieved shortlist against a candidate profile in a
// single LLM call.
type Reranker struct {
	llm JSONCaller
}

// NewReranker creates a reranker.
func NewReranker(llm JSONCaller) *Reranker {
	return &Reranker{llm: llm}
}

type rawRankEntry struct {
	Index    int      `json:"index"`
	FitScore int      `json:"fit_score"`
	Match    []string `json:"match"`
	Missing  []string `json:"missing"`
	Reason   string   `json:"reason"`
}

// Rerank scores every retrieved job against userContext and returns the top
// topK by fit score, descending; ties keep the order the model answered in.
// Jobs the model fails to score stay in the result with a zero score; a
// rationale never gates inclusion. topK <= 0 selects DefaultTopK.
func (r *Reranker) Rerank(ctx context.Context, jobs []RetrievedJob, userContext string, topK int) ([]RankedJob, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(rerankPrompt, userContext, renderJobList(jobs))

	var raw []rawRankEntry
	if err := r.llm.CallJSON(ctx, "", prompt, rerankSchema, &raw); err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	// Join 1-based model indexes back to jobs; first verdict per index wins,
	// out-of-range indexes are dropped. Ranked entries are built in the order
	// the model returned them, so the stable sort breaks score ties by model
	// order; unscored jobs follow in input order at zero.
	scored := make(map[int]bool, len(raw))
	ranked := make([]RankedJob, 0, len(jobs))
	for _, e := range raw {
		idx := e.Index - 1
		if idx < 0 || idx >= len(jobs) || scored[idx] {
			continue
		}
		scored[idx] = true
		ranked = append(ranked, RankedJob{
			Job:       jobs[idx].Job,
			FitScore:  ClampScore(e.FitScore),
			Rationale: Rationale{Match: e.Match, Missing: e.Missing, Reason: e.Reason},
		})
	}
	for i, j := range jobs {
		if !scored[i] {
			ranked = append(ranked, RankedJob{Job: j.Job})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FitScore > ranked[j].FitScore
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// renderJobList formats jobs for the rerank prompt, numbered from 1.
func renderJobList(jobs []RetrievedJob) string {
	var b strings.Builder
	for i, rj := range jobs {
		j := rj.Job
		fmt.Fprintf(&b, "%d. %s", i+1, j.Title)
		if j.Company != "" {
			fmt.Fprintf(&b, " at %s", j.Company)
		}
		if j.Location != "" {
			fmt.Fprintf(&b, " (%s)", j.Location)
		}
		b.WriteByte('\n')
		if len(j.Requirements) > 0 {
			fmt.Fprintf(&b, "   requirements: %s\n", strings.Join(j.Requirements, "; "))
		}
		if len(j.Skills) > 0 {
			fmt.Fprintf(&b, "   skills: %s\n", strings.Join(j.Skills, ", "))
		}
		if j.Description != "" {
			fmt.Fprintf(&b, "   summary: %s\n", engine.TruncateRunes(j.Description, maxSummaryRunes, "..."))
		}
	}
	return b.String()
}
