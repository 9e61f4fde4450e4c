// Package funnel implements the job discovery and ranking pipeline:
// URL scoring, content extraction, canonicalization/dedup, vector retrieval,
// LLM reranking, and the orchestration that glues the stages together.
package funnel

// Remote is the work-location mode of a posting.
type Remote string

const (
	RemoteRemote  Remote = "remote"
	RemoteHybrid  Remote = "hybrid"
	RemoteOnSite  Remote = "on_site"
	RemoteUnknown Remote = "unknown"
)

// EmploymentType is the contract type of a posting.
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "full_time"
	EmploymentPartTime   EmploymentType = "part_time"
	EmploymentContract   EmploymentType = "contract"
	EmploymentInternship EmploymentType = "internship"
	EmploymentTemporary  EmploymentType = "temporary"
	EmploymentUnknown    EmploymentType = "unknown"
)

// Seniority is the experience level of a posting.
type Seniority string

const (
	SeniorityJunior    Seniority = "junior"
	SeniorityMid       Seniority = "mid"
	SenioritySenior    Seniority = "senior"
	SeniorityStaff     Seniority = "staff"
	SeniorityLead      Seniority = "lead"
	SeniorityPrincipal Seniority = "principal"
	SeniorityUnknown   Seniority = "unknown"
)

// PageKind classifies what kind of page a URL points at.
type PageKind string

const (
	PageJobListing   PageKind = "job_listing"
	PageJobsIndex    PageKind = "jobs_index"
	PageCareers      PageKind = "careers"
	PageLoginOrGate  PageKind = "login_or_gate"
	PageBlogOrNews   PageKind = "blog_or_news"
	PageCompanyAbout PageKind = "company_about"
	PageIrrelevant   PageKind = "irrelevant"
)

// validPageKinds is the closed set a classifier answer must fall into.
var validPageKinds = map[PageKind]bool{
	PageJobListing:   true,
	PageJobsIndex:    true,
	PageCareers:      true,
	PageLoginOrGate:  true,
	PageBlogOrNews:   true,
	PageCompanyAbout: true,
	PageIrrelevant:   true,
}

// ParsePageKind maps a raw classifier string into the PageKind enum.
// Unknown values collapse to PageIrrelevant rather than propagating junk.
func ParsePageKind(s string) PageKind {
	k := PageKind(s)
	if validPageKinds[k] {
		return k
	}
	return PageIrrelevant
}

// JobPosting is the unit of job information extracted from one page.
type JobPosting struct {
	Title            string         `json:"title"`
	Company          string         `json:"company,omitempty"`
	Location         string         `json:"location,omitempty"`
	Team             string         `json:"team,omitempty"`
	Compensation     string         `json:"compensation,omitempty"`
	Remote           Remote         `json:"remote,omitempty"`
	EmploymentType   EmploymentType `json:"employment_type,omitempty"`
	Seniority        Seniority      `json:"seniority,omitempty"`
	Responsibilities []string       `json:"responsibilities,omitempty"`
	Requirements     []string       `json:"requirements,omitempty"`
	NiceToHave       []string       `json:"nice_to_have,omitempty"`
	Skills           []string       `json:"skills,omitempty"`
	Description      string         `json:"description,omitempty"`
	SourceURL        string         `json:"source_url"`
	ApplyURL         string         `json:"apply_url,omitempty"`
	PageKind         PageKind       `json:"page_kind,omitempty"`
}

// CandidateURL is a URL plus the query that produced it and its provenance.
// Lives only within one funnel run.
type CandidateURL struct {
	URL    string `json:"url"`
	Query  string `json:"query"`
	Source string `json:"source"`
}

// ScoredURL is a classifier verdict on one candidate URL.
type ScoredURL struct {
	URL    string   `json:"url"`
	Score  int      `json:"score"` // 0–100
	Kind   PageKind `json:"kind"`
	Reason string   `json:"reason,omitempty"`
}

// CanonicalJob pairs a posting (with normalized source URL) with its
// deduplication key.
type CanonicalJob struct {
	Job JobPosting `json:"job"`
	Key string     `json:"key"`
}

// RetrievedJob is a posting annotated with its nearest-neighbor score.
type RetrievedJob struct {
	Job            JobPosting `json:"job"`
	RetrievalScore float64    `json:"retrieval_score"`
}

// Rationale explains a fit score: matched and missing requirements plus an
// optional free-text reason. Advisory only, never used to gate inclusion.
type Rationale struct {
	Match   []string `json:"match,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// RankedJob is the final reranked output for one posting.
type RankedJob struct {
	Job       JobPosting `json:"job"`
	FitScore  int        `json:"fit_score"` // 0–100
	Rationale Rationale  `json:"rationale"`
}

// ClampScore bounds a model-supplied score to [0,100].
func ClampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// remoteFromModel maps the extractor vocabulary into the Remote enum.
// Absent keys mean the field stays empty; consumers apply defaults, not
// the extractor.
var remoteFromModel = map[string]Remote{
	"remote":  RemoteRemote,
	"hybrid":  RemoteHybrid,
	"on_site": RemoteOnSite,
	"onsite":  RemoteOnSite,
	"unknown": RemoteUnknown,
}

var employmentFromModel = map[string]EmploymentType{
	"full_time":  EmploymentFullTime,
	"fulltime":   EmploymentFullTime,
	"part_time":  EmploymentPartTime,
	"contract":   EmploymentContract,
	"internship": EmploymentInternship,
	"temporary":  EmploymentTemporary,
	"unknown":    EmploymentUnknown,
}

var seniorityFromModel = map[string]Seniority{
	"junior":    SeniorityJunior,
	"mid":       SeniorityMid,
	"senior":    SenioritySenior,
	"staff":     SeniorityStaff,
	"lead":      SeniorityLead,
	"principal": SeniorityPrincipal,
	"unknown":   SeniorityUnknown,
}
