package scrape

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anatolykoptev/go_scout/internal/engine"
)

const jobPage = `<html>
<head><title>Go Engineer - Acme</title><style>body{color:red}</style></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Go Engineer</h1>
<p>We are hiring a Go engineer in Berlin.</p>
<ul><li>5 years Go</li><li>Postgres</li></ul>
</article>
<footer>© Acme</footer>
<script>trackVisit()</script>
</body>
</html>`

func TestFetchMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("user agent not set")
		}
		w.Write([]byte(jobPage))
	}))
	defer srv.Close()

	f := New(Config{}, nil, nil)
	md, err := f.FetchMarkdown(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "Go Engineer") || !strings.Contains(md, "5 years Go") {
		t.Errorf("content missing from markdown:\n%s", md)
	}
	if strings.Contains(md, "trackVisit") || strings.Contains(md, "© Acme") {
		t.Errorf("page chrome not stripped:\n%s", md)
	}
}

func TestFetchMarkdownGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ae := r.Header.Get("Accept-Encoding"); strings.Contains(ae, "deflate") {
			t.Errorf("deflate advertised but not decodable: %q", ae)
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(jobPage))
		gz.Close()
	}))
	defer srv.Close()

	f := New(Config{}, nil, nil)
	md, err := f.FetchMarkdown(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "Go Engineer") {
		t.Errorf("gzip body not decoded:\n%s", md)
	}
}

func TestFetchMarkdownNotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{}, nil, nil)
	if _, err := f.FetchMarkdown(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("404 should not be retried, server saw %d requests", calls.Load())
	}
}

func TestFetchMarkdownRetriesServerError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(jobPage))
	}))
	defer srv.Close()

	f := New(Config{}, nil, nil)
	md, err := f.FetchMarkdown(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "Go Engineer") {
		t.Errorf("expected recovery after retry")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", calls.Load())
	}
}

func TestFetchMarkdownTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><article>" + strings.Repeat("words ", 10000) + "</article></body></html>"))
	}))
	defer srv.Close()

	f := New(Config{MaxContentChars: 500}, nil, nil)
	md, err := f.FetchMarkdown(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(md) > 500 {
		t.Errorf("markdown not truncated: %d chars", len(md))
	}
}

func TestFetchMarkdownUsesCache(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(jobPage))
	}))
	defer srv.Close()

	cache := engine.NewCache("", time.Minute, 100, time.Minute, nil)
	f := New(Config{}, cache, nil)

	for range 2 {
		if _, err := f.FetchMarkdown(context.Background(), srv.URL); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("second fetch should hit cache, server saw %d requests", calls.Load())
	}
}
