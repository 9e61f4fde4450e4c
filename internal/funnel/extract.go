package funnel

import (
	"context"
	"fmt"
	"strings"
)

// Extraction is the result of mining one page for postings.
type Extraction struct {
	PageIsJobRelated bool         `json:"page_is_job_related"`
	PageKind         PageKind     `json:"page_kind"`
	PageReason       string       `json:"page_reason,omitempty"`
	Jobs             []JobPosting `json:"jobs"`
}

// Extractor turns page markdown into structured postings.
type Extractor struct {
	llm JSONCaller
}

// NewExtractor creates a content extractor.
func NewExtractor(llm JSONCaller) *Extractor {
	return &Extractor{llm: llm}
}

type rawExtractedJob struct {
	Title            string   `json:"title"`
	Company          string   `json:"company"`
	Location         string   `json:"location"`
	Team             string   `json:"team"`
	Compensation     string   `json:"compensation"`
	Remote           string   `json:"remote"`
	EmploymentType   string   `json:"employment_type"`
	Seniority        string   `json:"seniority"`
	Responsibilities []string `json:"responsibilities"`
	Requirements     []string `json:"requirements"`
	NiceToHave       []string `json:"nice_to_have"`
	Skills           []string `json:"skills"`
	Description      string   `json:"description"`
	SourceURL        string   `json:"source_url"`
	ApplyURL         string   `json:"apply_url"`
}

type rawExtraction struct {
	PageIsJobRelated bool              `json:"page_is_job_related"`
	PageKind         string            `json:"page_kind"`
	PageReason       string            `json:"page_reason"`
	Jobs             []rawExtractedJob `json:"jobs"`
}

// Extract mines one page. Every returned posting has its SourceURL forced to
// pageURL; the model is never allowed to relocate provenance. Enum fields
// outside the known vocabulary are omitted, not guessed.
func (e *Extractor) Extract(ctx context.Context, pageURL, markdown, userContext string, exhaustive bool) (Extraction, error) {
	mode := extractSelective
	if exhaustive {
		mode = extractExhaustive
	}

	contextSection := ""
	if userContext != "" {
		contextSection = "\nCandidate context (prioritize postings relevant to it):\n" + userContext + "\n"
	}

	prompt := fmt.Sprintf(extractPrompt, mode, contextSection, pageURL, markdown)

	var raw rawExtraction
	if err := e.llm.CallJSON(ctx, "", prompt, extractSchema, &raw); err != nil {
		return Extraction{}, fmt.Errorf("extract %s: %w", pageURL, err)
	}

	pageKind := ParsePageKind(raw.PageKind)
	out := Extraction{
		PageIsJobRelated: raw.PageIsJobRelated,
		PageKind:         pageKind,
		PageReason:       raw.PageReason,
	}

	for _, rj := range raw.Jobs {
		title := strings.TrimSpace(rj.Title)
		if title == "" {
			continue
		}
		job := JobPosting{
			Title:            title,
			Company:          strings.TrimSpace(rj.Company),
			Location:         strings.TrimSpace(rj.Location),
			Team:             strings.TrimSpace(rj.Team),
			Compensation:     strings.TrimSpace(rj.Compensation),
			Responsibilities: rj.Responsibilities,
			Requirements:     rj.Requirements,
			NiceToHave:       rj.NiceToHave,
			Skills:           rj.Skills,
			Description:      strings.TrimSpace(rj.Description),
			SourceURL:        pageURL, // provenance lock
			ApplyURL:         strings.TrimSpace(rj.ApplyURL),
			PageKind:         pageKind,
		}
		if r, ok := remoteFromModel[strings.ToLower(strings.TrimSpace(rj.Remote))]; ok {
			job.Remote = r
		}
		if et, ok := employmentFromModel[strings.ToLower(strings.TrimSpace(rj.EmploymentType))]; ok {
			job.EmploymentType = et
		}
		if sn, ok := seniorityFromModel[strings.ToLower(strings.TrimSpace(rj.Seniority))]; ok {
			job.Seniority = sn
		}
		out.Jobs = append(out.Jobs, job)
	}
	return out, nil
}
