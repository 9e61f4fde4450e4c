package funnel

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_scout/internal/engine"
)

// State names one stage of a funnel run.
type State string

const (
	StateIdle           State = "idle"
	StateSearching      State = "searching_queries"
	StateScoring        State = "scoring"
	StateShortlisting   State = "shortlisting"
	StateScraping       State = "scraping_extracting"
	StateCanonicalizing State = "canonicalizing_deduping"
	StateIndexing       State = "indexing"
	StateRetrieving     State = "retrieving"
	StateReranking      State = "reranking"
	StatePersisting     State = "persisting"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Stage concurrency limits and safety ceilings.
const (
	searchParallelism  = 2
	scrapeParallelism  = 4
	persistParallelism = 10
	scrapeAttempts     = 2
	maxPostingsPerRun  = 200
)

// ActionScan is the billing action consumed by one full funnel run.
const ActionScan = "job_scan"

// SearchHit is one search-engine result.
type SearchHit struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Source string `json:"source,omitempty"`
}

// Searcher finds candidate URLs for one query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// Scraper fetches one page as markdown. Retried by the orchestrator, not
// internally beyond transport-level retries.
type Scraper interface {
	FetchMarkdown(ctx context.Context, url string) (string, error)
}

// VectorIndex upserts posting embeddings and retrieves the nearest postings
// to a profile context. Implemented by internal/vector.
type VectorIndex interface {
	IndexPostings(ctx context.Context, postings []JobPosting) error
	RetrieveRelevant(ctx context.Context, postings []JobPosting, userContext string, topK int) ([]RetrievedJob, error)
}

// JobStore persists postings and fit scores with upsert semantics.
type JobStore interface {
	UpsertJob(ctx context.Context, job JobPosting) (int64, error)
	UpsertFitScore(ctx context.Context, profileID string, jobID int64, score int, rationale Rationale) error
}

// Ledger is the billing collaborator consulted before expensive work.
type Ledger interface {
	CanUserAction(ctx context.Context, userID, action string) (bool, error)
	ConsumeCredits(ctx context.Context, userID, action string) error
}

// ScanRequest describes one funnel run.
type ScanRequest struct {
	UserID      string   `json:"user_id"`
	ProfileID   string   `json:"profile_id"`
	Queries     []string `json:"queries,omitempty"`   // explicit search queries
	Role        string   `json:"role,omitempty"`      // expanded via BuildDorks when Queries is empty
	Location    string   `json:"location,omitempty"`
	Platforms   []string `json:"platforms,omitempty"`
	UserContext string   `json:"user_context,omitempty"`
	MinScore    int      `json:"min_score,omitempty"`
	MaxToScrape int      `json:"max_to_scrape,omitempty"`
	PerDomain   int      `json:"per_domain,omitempty"` // 0 disables domain diversity capping
	KeepCareers bool     `json:"keep_careers,omitempty"`
	Exhaustive  bool     `json:"exhaustive,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

// ScanResult summarizes one completed run.
type ScanResult struct {
	RunID       string      `json:"run_id"`
	Ranked      []RankedJob `json:"ranked"`
	URLsFound   int         `json:"urls_found"`
	Shortlisted int         `json:"shortlisted"`
	Scraped     int         `json:"scraped"`
	Extracted   int         `json:"extracted"`
	Deduped     int         `json:"deduped"`
	Persisted   int         `json:"persisted"`
}

// Status is a point-in-time view of the orchestrator for funnel_status.
type Status struct {
	State State  `json:"state"`
	RunID string `json:"run_id,omitempty"`
}

// Orchestrator drives the funnel: search, score, shortlist, scrape, extract,
// canonicalize, index, retrieve, rerank, persist. All collaborators are
// injected; vectors, store and ledger may be nil and their stages degrade.
type Orchestrator struct {
	search    Searcher
	scraper   Scraper
	scorer    *URLScorer
	extractor *Extractor
	reranker  *Reranker
	vectors   VectorIndex
	store     JobStore
	ledger    Ledger
	metrics   *engine.Metrics

	status atomic.Value // Status
}

// NewOrchestrator wires a funnel from its collaborators.
func NewOrchestrator(search Searcher, scraper Scraper, llm JSONCaller, vectors VectorIndex, store JobStore, ledger Ledger, metrics *engine.Metrics) *Orchestrator {
	o := &Orchestrator{
		search:    search,
		scraper:   scraper,
		scorer:    NewURLScorer(llm, 0),
		extractor: NewExtractor(llm),
		reranker:  NewReranker(llm),
		vectors:   vectors,
		store:     store,
		ledger:    ledger,
		metrics:   metrics,
	}
	o.status.Store(Status{State: StateIdle})
	return o
}

// Status reports the current run state.
func (o *Orchestrator) Status() Status {
	return o.status.Load().(Status)
}

func (o *Orchestrator) setState(runID string, s State) {
	o.status.Store(Status{State: s, RunID: runID})
}

// Run executes one full funnel pass. Stage-internal failures degrade to zero
// contributions; only the credit check, empty queries, and a rerank failure
// are fatal. Every external write is upsert-keyed, so retrying an abandoned
// run reconciles instead of duplicating.
func (o *Orchestrator) Run(ctx context.Context, req ScanRequest) (ScanResult, error) {
	runID := uuid.NewString()
	res := ScanResult{RunID: runID}
	if o.metrics != nil {
		o.metrics.ScansStarted.Add(1)
	}

	fail := func(s State, err error) (ScanResult, error) {
		o.setState(runID, StateFailed)
		if o.metrics != nil {
			o.metrics.ScansFailed.Add(1)
		}
		return res, fmt.Errorf("%s: %w", s, err)
	}

	// Credit gate before any network call.
	if o.ledger != nil {
		ok, err := o.ledger.CanUserAction(ctx, req.UserID, ActionScan)
		if err != nil {
			return fail(StateIdle, fmt.Errorf("credit check: %w", err))
		}
		if !ok {
			return fail(StateIdle, fmt.Errorf("user %s has no credits for %s", req.UserID, ActionScan))
		}
		if err := o.ledger.ConsumeCredits(ctx, req.UserID, ActionScan); err != nil {
			return fail(StateIdle, fmt.Errorf("consume credits: %w", err))
		}
	}

	queries := req.Queries
	if len(queries) == 0 {
		queries = BuildDorks(req.Role, req.Location, req.Platforms)
	}
	if len(queries) == 0 {
		return fail(StateIdle, fmt.Errorf("no queries: provide queries or a role"))
	}

	// Search.
	o.setState(runID, StateSearching)
	candidates := o.searchAll(ctx, queries)
	res.URLsFound = len(candidates)
	urls := make([]string, len(candidates))
	for i, c := range candidates {
		urls[i] = c.URL
	}
	if len(urls) == 0 {
		o.setState(runID, StateDone)
		if o.metrics != nil {
			o.metrics.ScansCompleted.Add(1)
		}
		return res, nil
	}

	// Score.
	o.setState(runID, StateScoring)
	scored := o.scorer.Score(ctx, urls, req.UserContext)

	// Shortlist.
	o.setState(runID, StateShortlisting)
	if req.PerDomain > 0 {
		scored = DedupByDomain(scored, req.PerDomain)
	}
	shortlist := Shortlist(scored, ShortlistOptions{
		MinScore:    req.MinScore,
		MaxToScrape: req.MaxToScrape,
		KeepCareers: req.KeepCareers,
	})
	res.Shortlisted = len(shortlist)

	// Scrape and extract.
	o.setState(runID, StateScraping)
	postings, scraped := o.scrapeAndExtract(ctx, shortlist, req)
	res.Scraped = scraped
	res.Extracted = len(postings)

	// Hard filter and safety cap.
	postings = hardFilter(postings)
	if len(postings) > maxPostingsPerRun {
		slog.Warn("capping extracted postings", slog.Int("extracted", len(postings)), slog.Int("cap", maxPostingsPerRun))
		postings = postings[:maxPostingsPerRun]
	}

	// Canonicalize and dedupe.
	o.setState(runID, StateCanonicalizing)
	canonical := Dedupe(Canonicalize(postings))
	res.Deduped = len(canonical)
	jobs := make([]JobPosting, len(canonical))
	for i, c := range canonical {
		jobs[i] = c.Job
	}

	// Index, best effort: a vector-store failure never fails the run.
	o.setState(runID, StateIndexing)
	if o.vectors != nil {
		if err := o.vectors.IndexPostings(ctx, jobs); err != nil {
			slog.Warn("vector indexing failed", slog.String("run_id", runID), slog.Any("error", err))
		}
	}

	// Retrieve; without an index or on failure, the whole deduped set
	// proceeds to reranking.
	o.setState(runID, StateRetrieving)
	retrieved := o.retrieve(ctx, jobs, req)

	// Rerank.
	o.setState(runID, StateReranking)
	ranked, err := o.reranker.Rerank(ctx, retrieved, req.UserContext, req.TopK)
	if err != nil {
		return fail(StateReranking, err)
	}
	res.Ranked = ranked

	// Persist.
	o.setState(runID, StatePersisting)
	res.Persisted = o.persist(ctx, req.ProfileID, ranked)

	o.setState(runID, StateDone)
	if o.metrics != nil {
		o.metrics.ScansCompleted.Add(1)
	}
	return res, nil
}

// searchAll runs every query and returns deduplicated candidates, input
// order preserved. A failed query contributes nothing; the first query to
// surface a URL owns its provenance.
func (o *Orchestrator) searchAll(ctx context.Context, queries []string) []CandidateURL {
	hits, errs := engine.MapLimit(ctx, searchParallelism, queries, func(ctx context.Context, q string) ([]SearchHit, error) {
		return o.search.Search(ctx, q)
	})
	for i, err := range errs {
		if err != nil {
			slog.Warn("search query failed", slog.String("query", queries[i]), slog.Any("error", err))
		}
	}

	seen := make(map[string]bool)
	var candidates []CandidateURL
	for qi, qh := range hits {
		for _, h := range qh {
			if h.URL == "" || seen[h.URL] {
				continue
			}
			seen[h.URL] = true
			candidates = append(candidates, CandidateURL{URL: h.URL, Query: queries[qi], Source: h.Source})
			slog.Debug("candidate url", slog.String("url", h.URL), slog.String("query", queries[qi]), slog.String("source", h.Source))
		}
	}
	return candidates
}

// scrapeAndExtract fetches each shortlisted URL (up to scrapeAttempts tries)
// and extracts postings. A failed URL contributes zero postings.
func (o *Orchestrator) scrapeAndExtract(ctx context.Context, shortlist []ScoredURL, req ScanRequest) ([]JobPosting, int) {
	results, errs := engine.MapLimit(ctx, scrapeParallelism, shortlist, func(ctx context.Context, s ScoredURL) ([]JobPosting, error) {
		var jobs []JobPosting
		err := engine.TrackOperation(ctx, "scrape "+s.URL, func(ctx context.Context) error {
			var lastErr error
			for attempt := range scrapeAttempts {
				md, err := o.scraper.FetchMarkdown(ctx, s.URL)
				if err != nil {
					lastErr = err
					slog.Debug("scrape attempt failed", slog.String("url", s.URL), slog.Int("attempt", attempt+1), slog.Any("error", err))
					continue
				}
				ex, err := o.extractor.Extract(ctx, s.URL, md, req.UserContext, req.Exhaustive || s.Kind == PageJobsIndex)
				if err != nil {
					lastErr = err
					continue
				}
				jobs = ex.Jobs
				return nil
			}
			return lastErr
		})
		return jobs, err
	})

	scraped := 0
	var postings []JobPosting
	for i, err := range errs {
		if err != nil {
			slog.Warn("scrape/extract failed", slog.String("url", shortlist[i].URL), slog.Any("error", err))
			continue
		}
		scraped++
		postings = append(postings, results[i]...)
	}
	return postings, scraped
}

// hardFilter drops postings without a title or a usable source URL.
func hardFilter(postings []JobPosting) []JobPosting {
	out := postings[:0]
	for _, p := range postings {
		if p.Title == "" || NormalizeURL(p.SourceURL) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (o *Orchestrator) retrieve(ctx context.Context, jobs []JobPosting, req ScanRequest) []RetrievedJob {
	if o.vectors != nil {
		topK := req.TopK
		if topK <= 0 {
			topK = DefaultTopK
		}
		// Retrieve more than topK so reranking has room to reorder.
		retrieved, err := o.vectors.RetrieveRelevant(ctx, jobs, req.UserContext, topK*3)
		if err == nil {
			return retrieved
		}
		slog.Warn("vector retrieval failed, reranking full set", slog.Any("error", err))
	}
	out := make([]RetrievedJob, len(jobs))
	for i, j := range jobs {
		out[i] = RetrievedJob{Job: j}
	}
	return out
}

// persist upserts each ranked job and its fit score. One job failing never
// blocks the others.
func (o *Orchestrator) persist(ctx context.Context, profileID string, ranked []RankedJob) int {
	if o.store == nil {
		return 0
	}
	errs := engine.ForEachLimit(ctx, persistParallelism, ranked, func(ctx context.Context, r RankedJob) error {
		jobID, err := o.store.UpsertJob(ctx, r.Job)
		if err != nil {
			return fmt.Errorf("upsert job: %w", err)
		}
		if o.metrics != nil {
			o.metrics.JobsPersisted.Add(1)
		}
		if err := o.store.UpsertFitScore(ctx, profileID, jobID, r.FitScore, r.Rationale); err != nil {
			return fmt.Errorf("upsert fit score: %w", err)
		}
		if o.metrics != nil {
			o.metrics.FitScoresSaved.Add(1)
		}
		return nil
	})

	persisted := 0
	for i, err := range errs {
		if err != nil {
			slog.Warn("persist failed", slog.String("title", ranked[i].Job.Title), slog.Any("error", err))
			continue
		}
		persisted++
	}
	return persisted
}
