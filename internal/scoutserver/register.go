// Package scoutserver registers the funnel's MCP tools: job_scan, job_rank,
// funnel_status.
package scoutserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_scout/internal/engine"
	"github.com/anatolykoptev/go_scout/internal/funnel"
)

// FitStore reads back persisted fit scores. Implemented by *store.DB.
type FitStore interface {
	TopFits(ctx context.Context, profileID string, limit int) ([]funnel.RankedJob, error)
}

// Deps are the collaborators the tools need. Fits may be nil; job_top_fits
// is only registered when persistence is configured.
type Deps struct {
	Orchestrator *funnel.Orchestrator
	Reranker     *funnel.Reranker
	Fits         FitStore
	Metrics      *engine.Metrics
}

// RegisterTools registers all funnel tools on the given MCP server.
func RegisterTools(server *mcp.Server, deps Deps) {
	registerJobScan(server, deps)
	registerJobRank(server, deps)
	registerFunnelStatus(server, deps)
	if deps.Fits != nil {
		registerJobTopFits(server, deps)
	}
}

// JobScanInput is the input for job_scan.
type JobScanInput struct {
	UserID      string   `json:"user_id" jsonschema:"billing account to charge"`
	ProfileID   string   `json:"profile_id" jsonschema:"profile whose fit scores are updated"`
	Queries     []string `json:"queries,omitempty" jsonschema:"explicit search queries; omit to derive from role"`
	Role        string   `json:"role,omitempty" jsonschema:"role to search for, e.g. 'senior go engineer'"`
	Location    string   `json:"location,omitempty"`
	Platforms   []string `json:"platforms,omitempty" jsonschema:"job boards to target: linkedin, greenhouse, lever, yc, hn, remoteok, weworkremotely, remotive"`
	UserContext string   `json:"user_context,omitempty" jsonschema:"candidate profile text used for scoring and reranking"`
	MinScore    int      `json:"min_score,omitempty" jsonschema:"extra floor on URL relevance scores"`
	MaxToScrape int      `json:"max_to_scrape,omitempty"`
	PerDomain   int      `json:"per_domain,omitempty" jsonschema:"max shortlisted URLs per registrable domain, 0 for no cap"`
	KeepCareers bool     `json:"keep_careers,omitempty" jsonschema:"also scrape company careers landing pages"`
	Exhaustive  bool     `json:"exhaustive,omitempty" jsonschema:"extract every posting from each page, not just clearly described ones"`
	TopK        int      `json:"top_k,omitempty" jsonschema:"ranked jobs to return, default 10"`
}

// toScanRequest maps the tool input onto a funnel run request.
func toScanRequest(input JobScanInput) funnel.ScanRequest {
	return funnel.ScanRequest{
		UserID:      input.UserID,
		ProfileID:   input.ProfileID,
		Queries:     input.Queries,
		Role:        input.Role,
		Location:    input.Location,
		Platforms:   input.Platforms,
		UserContext: input.UserContext,
		MinScore:    input.MinScore,
		MaxToScrape: input.MaxToScrape,
		PerDomain:   input.PerDomain,
		KeepCareers: input.KeepCareers,
		Exhaustive:  input.Exhaustive,
		TopK:        input.TopK,
	}
}

// JobScanOutput is the output for job_scan.
type JobScanOutput struct {
	RunID       string             `json:"run_id"`
	Ranked      []funnel.RankedJob `json:"ranked"`
	URLsFound   int                `json:"urls_found"`
	Shortlisted int                `json:"shortlisted"`
	Scraped     int                `json:"scraped"`
	Extracted   int                `json:"extracted"`
	Deduped     int                `json:"deduped"`
	Persisted   int                `json:"persisted"`
}

func registerJobScan(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_scan",
		Description: "Run the full job discovery funnel for a candidate: search the web, score and shortlist URLs, scrape and extract postings, deduplicate, rank against the candidate profile, and persist results. Returns the ranked shortlist.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input JobScanInput) (*mcp.CallToolResult, JobScanOutput, error) {
		if input.UserID == "" || input.ProfileID == "" {
			return nil, JobScanOutput{}, fmt.Errorf("user_id and profile_id are required")
		}
		if len(input.Queries) == 0 && input.Role == "" {
			return nil, JobScanOutput{}, fmt.Errorf("queries or role is required")
		}

		res, err := deps.Orchestrator.Run(ctx, toScanRequest(input))
		if err != nil {
			return nil, JobScanOutput{}, err
		}
		return nil, JobScanOutput{
			RunID:       res.RunID,
			Ranked:      res.Ranked,
			URLsFound:   res.URLsFound,
			Shortlisted: res.Shortlisted,
			Scraped:     res.Scraped,
			Extracted:   res.Extracted,
			Deduped:     res.Deduped,
			Persisted:   res.Persisted,
		}, nil
	})
}

// JobRankInput is the input for job_rank.
type JobRankInput struct {
	Jobs        []funnel.JobPosting `json:"jobs" jsonschema:"postings to rank"`
	UserContext string              `json:"user_context" jsonschema:"candidate profile text"`
	TopK        int                 `json:"top_k,omitempty" jsonschema:"ranked jobs to return, default 10"`
}

// JobRankOutput is the output for job_rank.
type JobRankOutput struct {
	Ranked []funnel.RankedJob `json:"ranked"`
}

func registerJobRank(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_rank",
		Description: "Rank an explicit list of job postings against a candidate profile. One LLM call; returns fit scores 0-100 with matched/missing requirements.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input JobRankInput) (*mcp.CallToolResult, JobRankOutput, error) {
		if len(input.Jobs) == 0 {
			return nil, JobRankOutput{}, fmt.Errorf("jobs are required")
		}
		if input.UserContext == "" {
			return nil, JobRankOutput{}, fmt.Errorf("user_context is required")
		}

		canonical := funnel.Dedupe(funnel.Canonicalize(input.Jobs))
		retrieved := make([]funnel.RetrievedJob, len(canonical))
		for i, c := range canonical {
			retrieved[i] = funnel.RetrievedJob{Job: c.Job}
		}

		ranked, err := deps.Reranker.Rerank(ctx, retrieved, input.UserContext, input.TopK)
		if err != nil {
			return nil, JobRankOutput{}, err
		}
		return nil, JobRankOutput{Ranked: ranked}, nil
	})
}

// JobTopFitsInput is the input for job_top_fits.
type JobTopFitsInput struct {
	ProfileID string `json:"profile_id" jsonschema:"profile whose fit scores are read"`
	Limit     int    `json:"limit,omitempty" jsonschema:"jobs to return, default 10"`
}

// JobTopFitsOutput is the output for job_top_fits.
type JobTopFitsOutput struct {
	Ranked []funnel.RankedJob `json:"ranked"`
}

func jobTopFitsHandler(deps Deps) func(context.Context, *mcp.CallToolRequest, JobTopFitsInput) (*mcp.CallToolResult, JobTopFitsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JobTopFitsInput) (*mcp.CallToolResult, JobTopFitsOutput, error) {
		if input.ProfileID == "" {
			return nil, JobTopFitsOutput{}, fmt.Errorf("profile_id is required")
		}
		ranked, err := deps.Fits.TopFits(ctx, input.ProfileID, input.Limit)
		if err != nil {
			return nil, JobTopFitsOutput{}, err
		}
		return nil, JobTopFitsOutput{Ranked: ranked}, nil
	}
}

func registerJobTopFits(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_top_fits",
		Description: "Read back a profile's best persisted fit scores, highest first, joined with the stored job rows. No LLM calls.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, jobTopFitsHandler(deps))
}

// FunnelStatusInput is the (empty) input for funnel_status.
type FunnelStatusInput struct{}

// FunnelStatusOutput is the output for funnel_status.
type FunnelStatusOutput struct {
	State   string           `json:"state"`
	RunID   string           `json:"run_id,omitempty"`
	Metrics map[string]int64 `json:"metrics,omitempty"`
}

func registerFunnelStatus(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "funnel_status",
		Description: "Report the funnel's current state and operational counters.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ FunnelStatusInput) (*mcp.CallToolResult, FunnelStatusOutput, error) {
		st := deps.Orchestrator.Status()
		out := FunnelStatusOutput{State: string(st.State), RunID: st.RunID}
		if deps.Metrics != nil {
			out.Metrics = deps.Metrics.Snapshot()
		}
		return nil, out, nil
	})
}
