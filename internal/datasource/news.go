package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/seenimoa/finanalyst/internal/config"
	"github.com/seenimoa/finanalyst/internal/infra"
	"github.com/seenimoa/finanalyst/pkg/models"
)

// DefaultNewsURL is the Yahoo Finance headline feed; it takes ?s=SYMBOL.
const DefaultNewsURL = "https://feeds.finance.yahoo.com/rss/2.0/headline"

// maxArticleChars bounds the article text handed to the model.
const maxArticleChars = 6000

// NewsFeed reads per-symbol headlines from an RSS feed.
type NewsFeed struct {
	feedURL string
	client  *http.Client
	parser  *gofeed.Parser
	cache   *infra.Cache[[]models.NewsArticle]
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewNewsFeed creates a feed reader. An empty feedURL selects DefaultNewsURL.
func NewNewsFeed(feedURL string, client *http.Client, ttl time.Duration) *NewsFeed {
	if feedURL == "" {
		feedURL = DefaultNewsURL
	}
	if client == nil {
		client = defaultClient
	}
	return &NewsFeed{
		feedURL: feedURL,
		client:  client,
		parser:  gofeed.NewParser(),
		cache:   infra.NewCache[[]models.NewsArticle](ttl),
		limiter: infra.NewLimiter(2),
		logger:  zerolog.Nop(),
	}
}

// NewNewsFeedFromConfig builds a feed reader from the data section.
func NewNewsFeedFromConfig(cfg *config.Config, logger zerolog.Logger) *NewsFeed {
	n := NewNewsFeed(cfg.Data.NewsURL,
		&http.Client{Timeout: time.Duration(cfg.Data.TimeoutSec) * time.Second},
		cfg.CacheTTL())
	n.limiter = infra.NewLimiter(cfg.Data.RequestsPerSecond)
	n.logger = logger
	return n
}

// Headlines returns up to limit recent articles for symbol, newest first.
func (n *NewsFeed) Headlines(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	articles, err := n.cache.GetOrLoad(ctx, symbol, func(ctx context.Context) ([]models.NewsArticle, error) {
		return n.fetch(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}

func (n *NewsFeed) fetch(ctx context.Context, symbol string) ([]models.NewsArticle, error) {
	if err := infra.Wait(ctx, n.limiter); err != nil {
		return nil, err
	}
	u := n.feedURL + "?s=" + url.QueryEscape(symbol) + "&region=US&lang=en-US"
	body, err := infra.Get(ctx, n.client, u, map[string]string{"Accept": "application/rss+xml, application/xml"})
	if err != nil {
		return nil, fmt.Errorf("news feed %s: %w", symbol, err)
	}
	defer body.Close()

	feed, err := n.parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse news feed %s: %w", symbol, err)
	}

	source := feed.Title
	if source == "" {
		source = SourceName
	}
	articles := make([]models.NewsArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		a := models.NewsArticle{
			Symbol:  symbol,
			Title:   strings.TrimSpace(item.Title),
			URL:     item.Link,
			Source:  source,
			Summary: cleanHTML(item.Description),
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = item.PublishedParsed.UTC()
		}
		articles = append(articles, a)
	}
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	n.logger.Debug().Str("symbol", symbol).Int("articles", len(articles)).Msg("news fetched")
	return articles, nil
}

// Article downloads link and returns its readable text, truncated for
// prompt use.
func (n *NewsFeed) Article(ctx context.Context, link string) (*models.NewsArticle, error) {
	parsed, err := url.Parse(link)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid article URL %q", link)
	}
	if err := infra.Wait(ctx, n.limiter); err != nil {
		return nil, err
	}
	body, err := infra.Get(ctx, n.client, link, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, fmt.Errorf("fetch article: %w", err)
	}
	defer body.Close()

	article, err := readability.FromReader(body, parsed)
	if err != nil {
		return nil, fmt.Errorf("extract article: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > maxArticleChars {
		text = text[:maxArticleChars] + "..."
	}
	return &models.NewsArticle{
		Title:   article.Title,
		URL:     link,
		Source:  article.SiteName,
		Summary: article.Excerpt,
		Content: text,
	}, nil
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
