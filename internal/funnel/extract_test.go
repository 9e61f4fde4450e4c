package funnel

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExtractProvenanceLock(t *testing.T) {
	// Model claims postings live elsewhere; the page URL must win.
	fake := &fakeCaller{answers: []string{`{
		"page_is_job_related": true,
		"page_kind": "jobs_index",
		"jobs": [
			{"title": "Go Engineer", "company": "Acme", "source_url": "https://evil.example/other"},
			{"title": "SRE", "company": "Acme", "source_url": ""}
		]
	}`}}
	ex := NewExtractor(fake)

	got, err := ex.Extract(context.Background(), "https://acme.com/careers", "# Jobs", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(got.Jobs))
	}
	for i, j := range got.Jobs {
		if j.SourceURL != "https://acme.com/careers" {
			t.Errorf("job %d source_url = %q, want page URL", i, j.SourceURL)
		}
		if j.PageKind != PageJobsIndex {
			t.Errorf("job %d page_kind = %q", i, j.PageKind)
		}
	}
}

func TestExtractSkipsUntitled(t *testing.T) {
	fake := &fakeCaller{answers: []string{`{
		"page_is_job_related": true,
		"page_kind": "job_listing",
		"jobs": [
			{"title": "  ", "company": "Acme"},
			{"title": "Engineer", "company": "Acme"}
		]
	}`}}
	got, err := NewExtractor(fake).Extract(context.Background(), "https://acme.com/jobs/1", "text", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Jobs) != 1 || got.Jobs[0].Title != "Engineer" {
		t.Fatalf("untitled entry not skipped: %+v", got.Jobs)
	}
}

func TestExtractEnumMapping(t *testing.T) {
	tests := []struct {
		name     string
		remote   string
		wantR    Remote
		emp      string
		wantE    EmploymentType
		seniorty string
		wantS    Seniority
	}{
		{"exact values", "remote", RemoteRemote, "full_time", EmploymentFullTime, "senior", SenioritySenior},
		{"aliases", "ONSITE", RemoteOnSite, "FullTime", EmploymentFullTime, "Staff", SeniorityStaff},
		{"junk omitted", "sometimes", "", "gig", "", "wizard", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCaller{answers: []string{`{
				"page_is_job_related": true,
				"page_kind": "job_listing",
				"jobs": [{"title": "X", "remote": "` + tt.remote + `", "employment_type": "` + tt.emp + `", "seniority": "` + tt.seniorty + `"}]
			}`}}
			got, err := NewExtractor(fake).Extract(context.Background(), "https://a.com/1", "t", "", false)
			if err != nil {
				t.Fatal(err)
			}
			j := got.Jobs[0]
			if j.Remote != tt.wantR || j.EmploymentType != tt.wantE || j.Seniority != tt.wantS {
				t.Errorf("got remote=%q emp=%q sen=%q", j.Remote, j.EmploymentType, j.Seniority)
			}
		})
	}
}

func TestExtractModes(t *testing.T) {
	fake := &fakeCaller{answers: []string{`{"page_is_job_related": false, "page_kind": "blog_or_news", "jobs": []}`}}
	ex := NewExtractor(fake)

	if _, err := ex.Extract(context.Background(), "https://a.com", "t", "", true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fake.prompts[0], "EVERY distinct posting") {
		t.Error("exhaustive mode not reflected in prompt")
	}

	if _, err := ex.Extract(context.Background(), "https://a.com", "t", "", false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fake.prompts[1], "clearly described postings") {
		t.Error("selective mode not reflected in prompt")
	}
}

func TestExtractUnknownPageKindCollapses(t *testing.T) {
	fake := &fakeCaller{answers: []string{`{"page_is_job_related": false, "page_kind": "mystery", "jobs": []}`}}
	got, err := NewExtractor(fake).Extract(context.Background(), "https://a.com", "t", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if got.PageKind != PageIrrelevant {
		t.Errorf("page_kind = %q, want irrelevant", got.PageKind)
	}
}

func TestExtractError(t *testing.T) {
	fake := &fakeCaller{err: errors.New("model down")}
	if _, err := NewExtractor(fake).Extract(context.Background(), "https://a.com", "t", "", false); err == nil {
		t.Fatal("expected error")
	}
}
