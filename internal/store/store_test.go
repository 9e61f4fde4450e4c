package store

import (
	"regexp"
	"strings"
	"testing"
)

func readSchema(t *testing.T) string {
	t.Helper()
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		t.Fatal(err)
	}
	var sb strings.Builder
	for _, entry := range entries {
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			t.Fatal(err)
		}
		sb.Write(data)
	}
	return sb.String()
}

// Identity constraints the upsert logic depends on. upsertJobRow skips the
// (title, company_name) lookup when the company is empty, so the uniqueness
// of that pair must not cover empty companies or distinct postings sharing a
// title would collide on insert.
func TestSchemaIdentityConstraints(t *testing.T) {
	schema := readSchema(t)

	if !strings.Contains(schema, "external_url TEXT UNIQUE") {
		t.Error("jobs.external_url must be unique")
	}
	if regexp.MustCompile(`(?i)UNIQUE\s*\(\s*title\s*,\s*company_name\s*\)`).MatchString(schema) {
		t.Error("(title, company_name) must not be unconditionally unique; empty companies would collide")
	}

	idx := regexp.MustCompile(`(?is)CREATE UNIQUE INDEX[^;]+ON jobs \(title, company_name\)[^;]+WHERE company_name <> ''`)
	if !idx.MatchString(schema) {
		t.Error("partial unique index on (title, company_name) for non-empty companies is missing")
	}

	if !regexp.MustCompile(`(?i)UNIQUE\s*\(\s*profile_id\s*,\s*job_id\s*\)`).MatchString(schema) {
		t.Error("fit_scores must be unique per (profile_id, job_id)")
	}
}
