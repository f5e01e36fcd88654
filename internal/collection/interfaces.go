package collection

import (
	"context"
	"time"
)

// PageContent is the scraped surface of a bookmark's target page.
type PageContent struct {
	Title        string
	Description  string
	ImageURL     string
	SiteName     string
	CanonicalURL string
	FaviconURL   string
	CleanedText  string
}

// Suggestion carries the model-generated enrichment for one bookmark.
type Suggestion struct {
	RefinedTitle string
	Summary      string
	CategoryName string
	TagNames     []string
	IconSymbol   string
}

// Enricher is the external AI/scraping collaborator used by the enrichment
// run. All calls are network-bound and fallible.
type Enricher interface {
	FetchPage(ctx context.Context, url string) (PageContent, error)
	FetchFavicon(ctx context.Context, url string) (string, error)
	Suggest(ctx context.Context, page PageContent, categories, tags []string) (Suggestion, error)
}

// Reachability is the probe classification of one bookmark URL.
type Reachability struct {
	Accessible bool
	StatusCode int
	Reason     string
	Duration   time.Duration
}

// Prober checks whether a bookmark URL still resolves.
type Prober interface {
	Probe(ctx context.Context, url string) Reachability
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity ids (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
