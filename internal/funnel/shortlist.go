package funnel

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DefaultMaxToScrape bounds how many shortlisted URLs proceed to scraping.
const DefaultMaxToScrape = 8

// Per-kind score floors. An index page has to clear a higher bar than a
// single listing because scraping it costs more and yields noisier results;
// careers landing pages are the noisiest of all.
const (
	floorJobListing = 55
	floorJobsIndex  = 60
	floorCareers    = 65
)

// ShortlistOptions tunes shortlist selection.
type ShortlistOptions struct {
	MinScore    int  // global floor raised per kind, never lowered
	MaxToScrape int  // <= 0 selects DefaultMaxToScrape
	KeepCareers bool // admit careers landing pages
}

// Shortlist selects scored URLs worth scraping. Only job_listing, jobs_index
// and (optionally) careers kinds are admitted, each over its own floor.
// Duplicate URLs collapse keeping the highest-scored verdict. The result is
// sorted by score descending, stable on input order, truncated to MaxToScrape.
func Shortlist(scored []ScoredURL, opts ShortlistOptions) []ScoredURL {
	maxOut := opts.MaxToScrape
	if maxOut <= 0 {
		maxOut = DefaultMaxToScrape
	}

	var kept []ScoredURL
	for _, s := range scored {
		floor := 0
		switch s.Kind {
		case PageJobListing:
			floor = floorJobListing
		case PageJobsIndex:
			floor = floorJobsIndex
		case PageCareers:
			if !opts.KeepCareers {
				continue
			}
			floor = floorCareers
		default:
			continue
		}
		floor = max(floor, opts.MinScore)
		if s.Score >= floor {
			kept = append(kept, s)
		}
	}

	// Same page scored twice keeps its best verdict.
	best := make(map[string]int, len(kept)) // normalized URL -> index in deduped
	var deduped []ScoredURL
	for _, s := range kept {
		key := NormalizeURL(s.URL)
		if i, ok := best[key]; ok {
			if s.Score > deduped[i].Score {
				deduped[i] = s
			}
			continue
		}
		best[key] = len(deduped)
		deduped = append(deduped, s)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})
	if len(deduped) > maxOut {
		deduped = deduped[:maxOut]
	}
	return deduped
}

// DedupByDomain keeps at most perDomain URLs per registrable domain
// (eTLD+1), preserving order. Hosts that don't resolve to a registrable
// domain are keyed by hostname as-is.
func DedupByDomain(scored []ScoredURL, perDomain int) []ScoredURL {
	if perDomain <= 0 {
		return scored
	}
	counts := make(map[string]int)
	out := make([]ScoredURL, 0, len(scored))
	for _, s := range scored {
		key := registrableDomain(s.URL)
		if counts[key] >= perDomain {
			continue
		}
		counts[key]++
		out = append(out, s)
	}
	return out
}

func registrableDomain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	host := u.Hostname()
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}
