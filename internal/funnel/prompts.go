package funnel

// LLM prompt templates and response schemas. Data only, no logic.

// urlScorePrompt classifies a batch of URLs for job relevance.
// Args: optional user context section, numbered URL list.
const urlScorePrompt = `You are a job-search crawler deciding which URLs are worth scraping.

Classify every URL below. For each, answer with:
- score: 0-100 likelihood the page contains real job postings worth scraping
- kind: one of job_listing, jobs_index, careers, login_or_gate, blog_or_news, company_about, irrelevant
- reason: one short phrase

Respond with valid JSON only (no markdown, no ` + "```" + ` block):
[
  {"url": "https://...", "score": 85, "kind": "job_listing", "reason": "single posting with requirements"},
  {"url": "https://...", "score": 10, "kind": "blog_or_news", "reason": "engineering blog article"}
]

Rules:
- Output EXACTLY one entry per input URL, same url string as given
- job_listing = one specific role; jobs_index = list of many roles; careers = company careers landing page
- login_or_gate = requires auth/paywall; score it low
- Do NOT invent URLs not in the list
%s
URLs:
%s`

// urlScoreSchema validates the scorer's answer shape.
const urlScoreSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["url", "score", "kind"],
    "properties": {
      "url": {"type": "string"},
      "score": {"type": "number"},
      "kind": {"type": "string"},
      "reason": {"type": "string"}
    }
  }
}`

// extractPrompt turns page markdown into structured postings.
// Args: capture-mode instruction, optional user context section, page URL, markdown.
const extractPrompt = `You are a job-posting extractor. Read the page content below and emit structured postings.

%s

Respond with valid JSON only (no markdown, no ` + "```" + ` block):
{
  "page_is_job_related": true,
  "page_kind": "job_listing",
  "page_reason": "single engineering role",
  "jobs": [
    {
      "title": "Senior Go Engineer",
      "company": "Acme",
      "location": "Berlin, Germany",
      "team": "Platform",
      "compensation": "90k-120k EUR",
      "remote": "hybrid",
      "employment_type": "full_time",
      "seniority": "senior",
      "responsibilities": ["..."],
      "requirements": ["..."],
      "nice_to_have": ["..."],
      "skills": ["go", "postgres"],
      "description": "one-paragraph summary",
      "source_url": "https://...",
      "apply_url": "https://..."
    }
  ]
}

Rules:
- page_kind: one of job_listing, jobs_index, careers, login_or_gate, blog_or_news, company_about, irrelevant
- title is mandatory for every job; skip entries where you cannot find one
- remote: remote|hybrid|on_site|unknown; employment_type: full_time|part_time|contract|internship|temporary|unknown; seniority: junior|mid|senior|staff|lead|principal|unknown
- OMIT enum fields you are not sure about instead of guessing
- Do NOT invent requirements or compensation not present on the page
- An index page may yield many jobs; a single listing yields exactly one
%s
Page URL: %s

Page content:
%s`

// extractExhaustive/extractSelective steer how aggressively index pages are mined.
const (
	extractExhaustive = "Capture EVERY distinct posting you can find on the page, including short entries with only a title and link."
	extractSelective  = "Capture only clearly described postings; skip bare links and navigation stubs."
)

const extractSchema = `{
  "type": "object",
  "required": ["page_is_job_related", "page_kind", "jobs"],
  "properties": {
    "page_is_job_related": {"type": "boolean"},
    "page_kind": {"type": "string"},
    "page_reason": {"type": "string"},
    "jobs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "title": {"type": "string"},
          "company": {"type": "string"},
          "location": {"type": "string"},
          "source_url": {"type": "string"},
          "apply_url": {"type": "string"}
        }
      }
    }
  }
}`

// rerankPrompt scores a shortlist against a candidate context in ONE call.
// Args: user context, numbered job list.
const rerankPrompt = `You are a career advisor scoring job postings against a candidate profile.

Candidate profile:
%s

For each numbered job below, estimate fit on 0-100 and explain which of the
posting's stated requirements the candidate matches and which they miss.

Respond with valid JSON only (no markdown, no ` + "```" + ` block):
[
  {"index": 1, "fit_score": 82, "match": ["go", "kubernetes"], "missing": ["rust"], "reason": "strong backend overlap"},
  {"index": 2, "fit_score": 40, "match": [], "missing": ["ios"], "reason": "mobile role"}
]

Rules:
- index is 1-based into the job list below
- Use ONLY requirements stated in the job entries; do NOT invent new ones
- Score every job exactly once
- reason: one short sentence

Jobs:
%s`

const rerankSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["index", "fit_score"],
    "properties": {
      "index": {"type": "integer"},
      "fit_score": {"type": "number"},
      "match": {"type": "array", "items": {"type": "string"}},
      "missing": {"type": "array", "items": {"type": "string"}},
      "reason": {"type": "string"}
    }
  }
}`
