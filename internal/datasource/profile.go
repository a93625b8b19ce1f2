package datasource

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/finanalyst/internal/infra"
)

// scrapeProfile reads sector and industry from the public profile page.
// It is the fallback when quoteSummary omits assetProfile.
func (y *YFinance) scrapeProfile(ctx context.Context, symbol string) (sector, industry string, err error) {
	if y.endpoints.Profile == "" {
		return "", "", nil
	}
	if err := infra.Wait(ctx, y.limiter); err != nil {
		return "", "", err
	}

	u := fmt.Sprintf("%s/%s/profile", y.endpoints.Profile, url.PathEscape(symbol))
	body, err := infra.Get(ctx, y.client, u, map[string]string{"Accept": "text/html"})
	if err != nil {
		return "", "", fmt.Errorf("yfinance profile %s: %w", symbol, err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", "", fmt.Errorf("parse profile HTML: %w", err)
	}
	sector, industry = parseProfile(doc)
	return sector, industry, nil
}

// parseProfile finds "Sector" and "Industry" labels and reads the element
// that follows each. Both the definition-list layout and the older
// span-pair layout are handled.
func parseProfile(doc *goquery.Document) (sector, industry string) {
	doc.Find("dt, span").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		label := profileLabel(sel.Text())
		if label != "sector" && label != "industry" {
			return true
		}
		value := strings.TrimSpace(sel.Next().Text())
		if value == "" {
			return true
		}
		switch label {
		case "sector":
			if sector == "" {
				sector = value
			}
		case "industry":
			if industry == "" {
				industry = value
			}
		}
		return sector == "" || industry == ""
	})
	return sector, industry
}

func profileLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "(s)")
	return strings.TrimSpace(s)
}
