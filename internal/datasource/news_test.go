package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Yahoo! Finance: AAPL News</title>
<item>
  <title>Older headline</title>
  <link>https://example.com/older</link>
  <description>&lt;p&gt;Apple &lt;b&gt;ships&lt;/b&gt; phones&lt;/p&gt;</description>
  <pubDate>Thu, 16 Oct 2025 10:00:00 +0000</pubDate>
</item>
<item>
  <title>Newer headline</title>
  <link>https://example.com/newer</link>
  <description>Plain summary</description>
  <pubDate>Fri, 17 Oct 2025 10:00:00 +0000</pubDate>
</item>
</channel></rss>`

const articleHTML = `<html><head><title>Apple beats estimates</title></head><body>
<nav>menu menu menu</nav>
<article><h1>Apple beats estimates</h1>
<p>Apple reported quarterly revenue above analyst expectations, driven by strong services growth and a rebound in iPhone demand across several regions.</p>
<p>Management guided for continued margin expansion in the coming quarter while noting foreign exchange headwinds and supply constraints for some products.</p>
<p>Shares rose in after-hours trading as investors welcomed the results and the expanded buyback authorization announced alongside the report.</p>
</article></body></html>`

func TestNewsHeadlines(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("s") != "AAPL" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed)
	}))
	defer srv.Close()

	n := NewNewsFeed(srv.URL, srv.Client(), time.Minute)
	n.limiter = nil

	articles, err := n.Headlines(context.Background(), "AAPL", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(articles))
	}
	if articles[0].Title != "Newer headline" {
		t.Errorf("articles should be newest first, got %q", articles[0].Title)
	}
	if articles[1].Summary != "Apple ships phones" {
		t.Errorf("HTML should be stripped, got %q", articles[1].Summary)
	}
	if articles[0].Symbol != "AAPL" || articles[0].Source == "" {
		t.Errorf("unexpected article: %+v", articles[0])
	}

	limited, err := n.Headlines(context.Background(), "AAPL", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit: got %d, %v", len(limited), err)
	}
	if calls != 1 {
		t.Errorf("second call should be served from cache, got %d fetches", calls)
	}
}

func TestNewsHeadlinesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewNewsFeed(srv.URL, srv.Client(), 0)
	n.limiter = nil
	if _, err := n.Headlines(context.Background(), "AAPL", 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	n := NewNewsFeed("", srv.Client(), 0)
	n.limiter = nil

	a, err := n.Article(context.Background(), srv.URL+"/story")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(a.Content, "quarterly revenue") {
		t.Errorf("article text missing body: %q", a.Content)
	}
	if strings.Contains(a.Content, "menu menu") {
		t.Errorf("navigation should be dropped: %q", a.Content)
	}

	if _, err := n.Article(context.Background(), "ftp://example.com/x"); err == nil {
		t.Error("expected error for non-http URL")
	}
}

func TestCleanHTML(t *testing.T) {
	tests := map[string]string{
		"":                            "",
		"plain":                       "plain",
		"<p>a <i>b</i></p>\n<p>c</p>": "a b c",
	}
	for in, want := range tests {
		if got := cleanHTML(in); got != want {
			t.Errorf("cleanHTML(%q) = %q, want %q", in, got, want)
		}
	}
}
