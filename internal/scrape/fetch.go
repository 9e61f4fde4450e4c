// Package scrape fetches web pages and converts them to markdown.
package scrape

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v5"

	"github.com/anatolykoptev/go_scout/internal/engine"
)

// Config for the fetcher.
type Config struct {
	Timeout         time.Duration // per-page, <= 0 selects 30s
	MaxContentChars int           // markdown length cap, <= 0 selects 40000
	UserAgent       string        // empty selects the browser UA
	CacheTTL        time.Duration // informational; TTL is owned by the cache
}

// Fetcher retrieves pages as markdown. Implements funnel.Scraper.
type Fetcher struct {
	cfg     Config
	http    *http.Client
	cache   *engine.Cache
	metrics *engine.Metrics
}

// New builds a fetcher. cache and metrics may be nil.
func New(cfg Config, cache *engine.Cache, metrics *engine.Metrics) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = 40000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = engine.UserAgentChrome
	}
	return &Fetcher{
		cfg: cfg,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 15 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
		},
		cache:   cache,
		metrics: metrics,
	}
}

// FetchMarkdown fetches url and returns its main content as markdown.
// Scraped pages are cached by URL hash so re-runs skip the network.
func (f *Fetcher) FetchMarkdown(ctx context.Context, url string) (string, error) {
	cacheKey := engine.CacheKey("scrape", url)
	if md, ok := engine.LoadJSON[string](ctx, f.cache, cacheKey); ok {
		return md, nil
	}

	if f.metrics != nil {
		f.metrics.ScrapeRequests.Add(1)
	}

	body, err := f.fetchWithRetry(ctx, url)
	if err != nil {
		if f.metrics != nil {
			f.metrics.ScrapeErrors.Add(1)
		}
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}

	md := f.toMarkdown(body)
	if md == "" {
		if f.metrics != nil {
			f.metrics.ScrapeErrors.Add(1)
		}
		return "", fmt.Errorf("fetch %s: no extractable content", url)
	}

	engine.StoreJSON(ctx, f.cache, cacheKey, md)
	return md, nil
}

// fetchWithRetry performs the GET with exponential backoff. Retryable
// statuses are retried; other non-200s are permanent.
func (f *Fetcher) fetchWithRetry(ctx context.Context, fetchURL string) ([]byte, error) {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		// readBody only decodes gzip; do not advertise encodings it cannot undo.
		req.Header.Set("Accept-Encoding", "gzip")

		resp, err := f.http.Do(req)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		defer resp.Body.Close()

		if engine.IsRetryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		return readBody(resp)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 10 * time.Second

	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3), backoff.WithMaxElapsedTime(30*time.Second))
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(gz)
	}
	return io.ReadAll(resp.Body)
}

// Selectors for page chrome that never carries posting content.
var removeSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"header", "footer", "nav", "aside",
	".advertisement", ".ad", ".sidebar", ".comments",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
}

// toMarkdown converts an HTML body into markdown: goquery cleanup plus
// html-to-markdown, with a regex stripper as the last resort.
func (f *Fetcher) toMarkdown(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return f.stripTags(string(body))
	}

	doc.Find(strings.Join(removeSelectors, ", ")).Each(func(_ int, s *goquery.Selection) {
		s.Remove()
	})

	content := doc.Find("article, main, .content, .job-description, #content").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}
	html, err := goquery.OuterHtml(content)
	if err != nil || html == "" {
		return f.stripTags(string(body))
	}

	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return f.stripTags(html)
	}
	return engine.Truncate(strings.TrimSpace(md), f.cfg.MaxContentChars)
}

var blockTagRes = func() []*regexp.Regexp {
	tags := []string{"script", "style", "noscript", "header", "footer", "nav", "aside", "iframe"}
	res := make([]*regexp.Regexp, len(tags))
	for i, tag := range tags {
		res[i] = regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	}
	return res
}()

func (f *Fetcher) stripTags(html string) string {
	for _, re := range blockTagRes {
		html = re.ReplaceAllString(html, "")
	}
	text := engine.CleanHTML(html)
	return engine.Truncate(engine.CollapseSpace(text), f.cfg.MaxContentChars)
}
