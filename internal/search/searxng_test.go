package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anatolykoptev/go_scout/internal/engine"
)

func TestSearchDedupsByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("format param missing")
		}
		w.Write([]byte(`{"results": [
			{"url": "https://a.com/1", "title": "One", "engine": "google"},
			{"url": "https://b.com/2", "title": "Two", "engine": "bing"},
			{"url": "https://a.com/1", "title": "One again", "engine": "bing"},
			{"url": "", "title": "no url"}
		]}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := c.Search(context.Background(), "go jobs")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d: %+v", len(hits), hits)
	}
	if hits[0].URL != "https://a.com/1" || hits[1].URL != "https://b.com/2" {
		t.Errorf("order not preserved: %+v", hits)
	}
	if hits[0].Source != "google" {
		t.Errorf("first occurrence should win: %+v", hits[0])
	}
}

func TestSearchQueryParams(t *testing.T) {
	var gotQuery, gotEngines, gotLang, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotEngines = r.URL.Query().Get("engines")
		gotLang = r.URL.Query().Get("language")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, Engines: "google", Language: "en"}, nil, nil)
	if _, err := c.Search(context.Background(), "sre berlin"); err != nil {
		t.Fatal(err)
	}
	if gotQuery != "sre berlin" || gotEngines != "google" || gotLang != "en" {
		t.Errorf("params: q=%q engines=%q language=%q", gotQuery, gotEngines, gotLang)
	}
	if gotUA != engine.UserAgentBot {
		t.Errorf("user agent = %q, want %q", gotUA, engine.UserAgentBot)
	}
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"results": [{"url": "https://a.com/1", "title": "One"}]}`))
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL}, nil, nil)
	hits, err := c.Search(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected recovery after retry, got %+v", hits)
	}
	if calls.Load() < 2 {
		t.Errorf("expected a retry, got %d calls", calls.Load())
	}
}

func TestSearchUsesCache(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"results": [{"url": "https://a.com/1", "title": "One"}]}`))
	}))
	defer srv.Close()

	cache := engine.NewCache("", time.Minute, 100, time.Minute, nil)
	c, _ := New(Config{BaseURL: srv.URL}, cache, nil)

	for range 2 {
		hits, err := c.Search(context.Background(), "cached query")
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 {
			t.Fatalf("got %+v", hits)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("second call should hit cache, server saw %d requests", calls.Load())
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Fatal("expected error for missing base URL")
	}
}
