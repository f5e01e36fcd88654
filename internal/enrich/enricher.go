package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/collection"
)

const defaultUserAgent = "curator/1.0 (+https://github.com/mstanton/curator)"

// Options tunes the enrichment collaborators.
type Options struct {
	UserAgent      string
	FetchTimeout   time.Duration
	FaviconTimeout time.Duration
	MaxTextRunes   int
}

// Service bundles the page scraper, favicon finder, and suggestion client
// behind the Enricher interface.
type Service struct {
	pages    *PageFetcher
	favicons *FaviconFinder
	client   *SuggestClient
	logger   *zap.Logger
}

// NewService wires the three collaborators. The suggest client may come from
// NewSuggestClient or, in tests, NewSuggestClientWith.
func NewService(client *SuggestClient, opts Options, logger *zap.Logger) *Service {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		pages:    NewPageFetcher(opts.UserAgent, opts.FetchTimeout, opts.MaxTextRunes),
		favicons: NewFaviconFinder(opts.FaviconTimeout, opts.UserAgent),
		client:   client,
		logger:   logger,
	}
}

var _ collection.Enricher = (*Service)(nil)

func (s *Service) FetchPage(ctx context.Context, url string) (collection.PageContent, error) {
	start := time.Now()
	page, err := s.pages.Fetch(ctx, url)
	if err != nil {
		return collection.PageContent{}, err
	}
	s.logger.Debug("fetched page",
		zap.String("url", url),
		zap.String("title", page.Title),
		zap.Duration("took", time.Since(start)))
	return page, nil
}

func (s *Service) FetchFavicon(ctx context.Context, url string) (string, error) {
	return s.favicons.Find(ctx, url)
}

func (s *Service) Suggest(ctx context.Context, page collection.PageContent, categories, tags []string) (collection.Suggestion, error) {
	return s.client.Suggest(ctx, page, categories, tags)
}
