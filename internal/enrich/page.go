// Package enrich implements the enrichment collaborator: page scraping,
// favicon probing, and the model-backed suggestion client.
package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/mstanton/curator/internal/collection"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultMaxTextRunes = 6000
)

// PageFetcher downloads a bookmark's target page and extracts the metadata
// the suggestion client feeds on.
type PageFetcher struct {
	userAgent    string
	timeout      time.Duration
	maxTextRunes int
	base         *colly.Collector
}

// NewPageFetcher builds a fetcher with a reusable base collector.
func NewPageFetcher(userAgent string, timeout time.Duration, maxTextRunes int) *PageFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if maxTextRunes <= 0 {
		maxTextRunes = defaultMaxTextRunes
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &PageFetcher{
		userAgent:    userAgent,
		timeout:      timeout,
		maxTextRunes: maxTextRunes,
		base:         c,
	}
}

// Fetch downloads one page and extracts its title, OpenGraph metadata, and
// a whitespace-collapsed text body.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (collection.PageContent, error) {
	var (
		content  collection.PageContent
		fetchErr error
		gotHTML  bool
	)

	collector := f.base.Clone()
	if f.userAgent != "" {
		collector.UserAgent = f.userAgent
	}
	collector.SetRequestTimeout(f.timeout)

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		gotHTML = true
		content = extractContent(e.DOM, url, f.maxTextRunes)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			fetchErr = fmt.Errorf("fetch %s: http %d", url, r.StatusCode)
			return
		}
		fetchErr = fmt.Errorf("fetch %s: %w", url, err)
	})

	// Visit blocks; run it aside so the caller's context stays in charge.
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return collection.PageContent{}, fmt.Errorf("fetch %s canceled: %w", url, ctx.Err())
	case err := <-done:
		if err != nil {
			return collection.PageContent{}, fmt.Errorf("fetch %s: %w", url, err)
		}
	}

	if fetchErr != nil {
		return collection.PageContent{}, fetchErr
	}
	if !gotHTML {
		return collection.PageContent{}, fmt.Errorf("fetch %s: no html document", url)
	}
	return content, nil
}

func extractContent(doc *goquery.Selection, pageURL string, maxTextRunes int) collection.PageContent {
	content := collection.PageContent{
		Title:        metaProperty(doc, "og:title"),
		Description:  metaProperty(doc, "og:description"),
		ImageURL:     metaProperty(doc, "og:image"),
		SiteName:     metaProperty(doc, "og:site_name"),
		CanonicalURL: metaProperty(doc, "og:url"),
	}
	if content.Title == "" {
		content.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if content.Description == "" {
		content.Description = metaName(doc, "description")
	}
	if content.CanonicalURL == "" {
		if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
			content.CanonicalURL = resolveHref(pageURL, href)
		}
	}
	content.FaviconURL = linkIcon(doc, pageURL)

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, svg").Remove()
	content.CleanedText = collapseWhitespace(body.Text(), maxTextRunes)
	return content
}

func metaProperty(doc *goquery.Selection, property string) string {
	val, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
	return strings.TrimSpace(val)
}

// linkIcon returns the first icon the page declares via link rel, resolved
// against the page URL.
func linkIcon(doc *goquery.Selection, pageURL string) string {
	sel := `link[rel="icon"], link[rel="shortcut icon"], link[rel="apple-touch-icon"]`
	href, ok := doc.Find(sel).First().Attr("href")
	if !ok {
		return ""
	}
	return resolveHref(pageURL, href)
}

func resolveHref(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func metaName(doc *goquery.Selection, name string) string {
	val, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(val)
}

func collapseWhitespace(s string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	count := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			if lastSpace {
				continue
			}
			b.WriteRune(' ')
			lastSpace = true
		} else {
			b.WriteRune(r)
			lastSpace = false
		}
		count++
		if count >= maxRunes {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
