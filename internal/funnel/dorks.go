package funnel

import "strings"

// Job board platforms with known search dorks.
const (
	PlatLinkedIn   = "linkedin"
	PlatGreenhouse = "greenhouse"
	PlatLever      = "lever"
	PlatYC         = "yc"
	PlatHN         = "hn"
	PlatRemoteOK   = "remoteok"
	PlatWWR        = "weworkremotely"
	PlatRemotive   = "remotive"
	PlatRemote     = "remote"
	PlatAny        = ""
)

// siteDork returns the site: restriction for a platform, or a generic
// "jobs" tail for unknown platforms.
func siteDork(platform string) string {
	switch platform {
	case PlatLinkedIn:
		return "site:linkedin.com/jobs"
	case PlatGreenhouse:
		return "site:boards.greenhouse.io"
	case PlatLever:
		return "site:jobs.lever.co"
	case PlatYC:
		return "site:workatastartup.com"
	case PlatHN:
		return `site:news.ycombinator.com "who is hiring"`
	case PlatRemoteOK:
		return "site:remoteok.com"
	case PlatWWR:
		return "site:weworkremotely.com"
	case PlatRemotive:
		return "site:remotive.com"
	case PlatRemote:
		return "site:remoteok.com OR site:weworkremotely.com OR site:remotive.com"
	default:
		return "jobs"
	}
}

// BuildDorks expands one query into platform-targeted search queries.
// With no platforms it returns the query with a generic jobs tail plus a
// greenhouse/lever ATS sweep. Blank queries yield nothing.
func BuildDorks(query, location string, platforms []string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if len(platforms) == 0 {
		platforms = []string{PlatAny, PlatGreenhouse, PlatLever}
	}

	seen := make(map[string]bool, len(platforms))
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		parts := []string{query}
		if location != "" {
			parts = append(parts, location)
		}
		parts = append(parts, siteDork(p))
		q := strings.Join(parts, " ")
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}
