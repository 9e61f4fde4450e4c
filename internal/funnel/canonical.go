package funnel

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
)

// Tracking query parameters stripped during URL normalization.
var trackingParams = map[string]bool{
	"ref":    true,
	"source": true,
	"gh_src": true,
}

// NormalizeURL strips tracking params and fragments and reserializes.
// Unparsable input passes through trimmed; a bad URL is still a usable
// dedup key, just not a normalizable one.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return trimmed
	}

	q := u.Query()
	for key := range q {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// normalizeSigText prepares a field for signature hashing: trim, lowercase,
// collapse whitespace, and drop characters outside letters/digits/space and
// -_/().:@ so cosmetic punctuation differences don't split keys.
func normalizeSigText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '/', r == '(', r == ')',
			r == '.', r == ':', r == '@':
			b.WriteRune(r)
			prevSpace = false
		case r == ' ', r == '\t', r == '\n', r == '\r':
			if !prevSpace && b.Len() > 0 {
				b.WriteByte(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// hash24 returns the first 24 hex characters of sha256(s).
func hash24(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum[:12])
}

// CanonicalKey returns the dedup identity of a posting: the normalized source
// URL when one exists, otherwise a content signature over
// company|title|location. Every posting gets a key.
func CanonicalKey(p JobPosting) string {
	if u := NormalizeURL(p.SourceURL); u != "" {
		return "url:" + u
	}
	sig := normalizeSigText(p.Company) + "|" + normalizeSigText(p.Title) + "|" + normalizeSigText(p.Location)
	return "sig:" + hash24(sig)
}

// Canonicalize normalizes each posting's source URL and computes its key.
// Order-preserving; no network or LLM calls.
func Canonicalize(postings []JobPosting) []CanonicalJob {
	out := make([]CanonicalJob, len(postings))
	for i, p := range postings {
		p.SourceURL = NormalizeURL(p.SourceURL)
		out[i] = CanonicalJob{Job: p, Key: CanonicalKey(p)}
	}
	return out
}

// Dedupe drops later occurrences of an already-seen canonical key.
// First-seen wins; survivor order matches input order.
func Dedupe(jobs []CanonicalJob) []CanonicalJob {
	seen := make(map[string]bool, len(jobs))
	out := make([]CanonicalJob, 0, len(jobs))
	for _, j := range jobs {
		if seen[j.Key] {
			continue
		}
		seen[j.Key] = true
		out = append(out, j)
	}
	return out
}
