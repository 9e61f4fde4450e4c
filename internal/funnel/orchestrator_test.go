package funnel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routedCaller answers by stage, recognized from the prompt, so concurrent
// extraction calls can't shuffle a replay sequence.
type routedCaller struct {
	scoreAnswer   string
	extractAnswer string
	rerankAnswer  string
	rerankErr     error
}

func (r *routedCaller) CallJSON(_ context.Context, _, user, _ string, out any) error {
	switch {
	case strings.Contains(user, "worth scraping"):
		return jsonInto(r.scoreAnswer, out)
	case strings.Contains(user, "job-posting extractor"):
		return jsonInto(r.extractAnswer, out)
	case strings.Contains(user, "career advisor"):
		if r.rerankErr != nil {
			return r.rerankErr
		}
		return jsonInto(r.rerankAnswer, out)
	}
	return errors.New("unrecognized prompt")
}

func jsonInto(answer string, out any) error {
	f := fakeCaller{answers: []string{answer}}
	return f.CallJSON(context.Background(), "", "", "", out)
}

type fakeSearcher struct {
	hits   map[string][]SearchHit
	err    error
	called atomic.Int64
}

func (s *fakeSearcher) Search(_ context.Context, query string) ([]SearchHit, error) {
	s.called.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.hits[query], nil
}

type fakeScraper struct {
	pages    map[string]string
	failURLs map[string]bool
}

func (s *fakeScraper) FetchMarkdown(_ context.Context, url string) (string, error) {
	if s.failURLs[url] {
		return "", errors.New("fetch failed")
	}
	return s.pages[url], nil
}

type fakeVectors struct {
	indexErr    error
	retrieveErr error
	indexed     []JobPosting
}

func (v *fakeVectors) IndexPostings(_ context.Context, postings []JobPosting) error {
	if v.indexErr != nil {
		return v.indexErr
	}
	v.indexed = postings
	return nil
}

func (v *fakeVectors) RetrieveRelevant(_ context.Context, postings []JobPosting, _ string, _ int) ([]RetrievedJob, error) {
	if v.retrieveErr != nil {
		return nil, v.retrieveErr
	}
	out := make([]RetrievedJob, len(postings))
	for i, p := range postings {
		out[i] = RetrievedJob{Job: p, RetrievalScore: 0.9}
	}
	return out, nil
}

type fakeStore struct {
	mu     sync.Mutex
	jobs   map[string]int64 // source url -> id
	scores map[int64]int
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]int64{}, scores: map[int64]int{}}
}

func (s *fakeStore) UpsertJob(_ context.Context, job JobPosting) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[job.SourceURL]; ok {
		return id, nil
	}
	s.nextID++
	s.jobs[job.SourceURL] = s.nextID
	return s.nextID, nil
}

func (s *fakeStore) UpsertFitScore(_ context.Context, _ string, jobID int64, score int, _ Rationale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[jobID] = score
	return nil
}

type fakeLedger struct {
	allowed  bool
	consumed atomic.Int64
}

func (l *fakeLedger) CanUserAction(_ context.Context, _, _ string) (bool, error) {
	return l.allowed, nil
}

func (l *fakeLedger) ConsumeCredits(_ context.Context, _, _ string) error {
	l.consumed.Add(1)
	return nil
}

func happyPathFixtures() (*fakeSearcher, *fakeScraper, *routedCaller) {
	searcher := &fakeSearcher{hits: map[string][]SearchHit{
		"go engineer jobs": {
			{URL: "https://acme.com/jobs/1", Title: "Go Engineer"},
			{URL: "https://acme.com/blog/post"},
		},
	}}
	scraper := &fakeScraper{pages: map[string]string{
		"https://acme.com/jobs/1": "# Go Engineer\nRequirements: go",
	}}
	caller := &routedCaller{
		scoreAnswer: `[
			{"url": "https://acme.com/jobs/1", "score": 90, "kind": "job_listing"},
			{"url": "https://acme.com/blog/post", "score": 10, "kind": "blog_or_news"}
		]`,
		extractAnswer: `{
			"page_is_job_related": true,
			"page_kind": "job_listing",
			"jobs": [{"title": "Go Engineer", "company": "Acme", "requirements": ["go"]}]
		}`,
		rerankAnswer: `[{"index": 1, "fit_score": 85, "match": ["go"], "reason": "fit"}]`,
	}
	return searcher, scraper, caller
}

func TestRunHappyPath(t *testing.T) {
	searcher, scraper, caller := happyPathFixtures()
	vectors := &fakeVectors{}
	store := newFakeStore()
	ledger := &fakeLedger{allowed: true}

	o := NewOrchestrator(searcher, scraper, caller, vectors, store, ledger, nil)
	res, err := o.Run(context.Background(), ScanRequest{
		UserID:    "u1",
		ProfileID: "p1",
		Queries:   []string{"go engineer jobs"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.URLsFound)
	assert.Equal(t, 1, res.Shortlisted)
	assert.Equal(t, 1, res.Scraped)
	assert.Equal(t, 1, res.Deduped)
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, "Go Engineer", res.Ranked[0].Job.Title)
	assert.Equal(t, 85, res.Ranked[0].FitScore)
	assert.Equal(t, "https://acme.com/jobs/1", res.Ranked[0].Job.SourceURL)

	assert.Equal(t, 1, res.Persisted)
	assert.Len(t, store.jobs, 1)
	assert.Equal(t, int64(1), ledger.consumed.Load())
	assert.Len(t, vectors.indexed, 1)
	assert.Equal(t, StateDone, o.Status().State)
	assert.NotEmpty(t, res.RunID)
}

func TestRunCreditDeniedFailsFast(t *testing.T) {
	searcher, scraper, caller := happyPathFixtures()
	ledger := &fakeLedger{allowed: false}

	o := NewOrchestrator(searcher, scraper, caller, nil, nil, ledger, nil)
	_, err := o.Run(context.Background(), ScanRequest{UserID: "u1", Queries: []string{"q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credits")
	assert.Equal(t, int64(0), searcher.called.Load(), "denied run must make no network calls")
	assert.Equal(t, int64(0), ledger.consumed.Load())
	assert.Equal(t, StateFailed, o.Status().State)
}

func TestRunNoQueries(t *testing.T) {
	searcher, scraper, caller := happyPathFixtures()
	o := NewOrchestrator(searcher, scraper, caller, nil, nil, nil, nil)
	_, err := o.Run(context.Background(), ScanRequest{})
	require.Error(t, err)
	assert.Equal(t, StateFailed, o.Status().State)
}

func TestRunRoleExpandsToDorks(t *testing.T) {
	searcher, scraper, caller := happyPathFixtures()
	o := NewOrchestrator(searcher, scraper, caller, nil, nil, nil, nil)
	res, err := o.Run(context.Background(), ScanRequest{Role: "go engineer"})
	require.NoError(t, err)
	// The generic dork matches the fixture query; the ATS dorks return nothing.
	assert.Equal(t, 2, res.URLsFound)
	assert.Equal(t, int64(3), searcher.called.Load())
}

func TestRunScrapeFailureDegrades(t *testing.T) {
	searcher, scraper, caller := happyPathFixtures()
	searcher.hits["go engineer jobs"] = append(searcher.hits["go engineer jobs"],
		SearchHit{URL: "https://broken.com/jobs/x"})
	scraper.failURLs = map[string]bool{"https://broken.com/jobs/x": true}
	caller.scoreAnswer = `[
		{"url": "https://acme.com/jobs/1", "score": 90, "kind": "job_listing"},
		{"url": "https://acme.com/blog/post", "score": 10, "kind": "blog_or_news"},
		{"url": "https://broken.com/jobs/x", "score": 95, "kind": "job_listing"}
	]`

	o := NewOrchestrator(searcher, scraper, caller, nil, nil, nil, nil)
	res, err := o.Run(context.Background(), ScanRequest{Queries: []string{"go engineer jobs"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Shortlisted)
	assert.Equal(t, 1, res.Scraped, "failed scrape contributes zero postings, not an error")
	require.Len(t, res.Ranked, 1)
}

func TestRunVectorFailuresAreBestEffort(t *testing.T) {
	searcher, scraper, caller := happyPathFixtures()
	vectors := &fakeVectors{indexErr: errors.New("index down"), retrieveErr: errors.New("query down")}

	o := NewOrchestrator(searcher, scraper, caller, vectors, nil, nil, nil)
	res, err := o.Run(context.Background(), ScanRequest{Queries: []string{"go engineer jobs"}})
	require.NoError(t, err)
	require.Len(t, res.Ranked, 1, "vector failures degrade to reranking the full set")
}

func TestRunRerankFailureIsFatal(t *testing.T) {
	searcher, scraper, caller := happyPathFixtures()
	caller.rerankErr = errors.New("model down")

	o := NewOrchestrator(searcher, scraper, caller, nil, nil, nil, nil)
	_, err := o.Run(context.Background(), ScanRequest{Queries: []string{"go engineer jobs"}})
	require.Error(t, err)
	assert.Equal(t, StateFailed, o.Status().State)
}

func TestRunEmptySearchShortCircuits(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]SearchHit{}}
	_, scraper, caller := happyPathFixtures()
	o := NewOrchestrator(searcher, scraper, caller, nil, nil, nil, nil)
	res, err := o.Run(context.Background(), ScanRequest{Queries: []string{"nothing"}})
	require.NoError(t, err)
	assert.Zero(t, res.URLsFound)
	assert.Empty(t, res.Ranked)
	assert.Equal(t, StateDone, o.Status().State)
}

func TestSearchAllCarriesProvenance(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]SearchHit{
		"q1": {{URL: "https://a.com/1", Source: "google"}, {URL: "https://b.com/2", Source: "bing"}},
		"q2": {{URL: "https://a.com/1", Source: "bing"}, {URL: "https://c.com/3", Source: "google"}},
	}}
	o := NewOrchestrator(searcher, nil, nil, nil, nil, nil, nil)

	got := o.searchAll(context.Background(), []string{"q1", "q2"})
	require.Len(t, got, 3)
	assert.Equal(t, CandidateURL{URL: "https://a.com/1", Query: "q1", Source: "google"}, got[0])
	assert.Equal(t, CandidateURL{URL: "https://b.com/2", Query: "q1", Source: "bing"}, got[1])
	assert.Equal(t, CandidateURL{URL: "https://c.com/3", Query: "q2", Source: "google"}, got[2])
}

func TestHardFilter(t *testing.T) {
	in := []JobPosting{
		{Title: "A", SourceURL: "https://a.com/1"},
		{Title: "", SourceURL: "https://a.com/2"},
		{Title: "C", SourceURL: "   "},
	}
	got := hardFilter(in)
	if len(got) != 1 || got[0].Title != "A" {
		t.Fatalf("hard filter wrong: %+v", got)
	}
}
