package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/collection"
	"github.com/mstanton/curator/internal/progress"
	"github.com/mstanton/curator/internal/store"
)

// Enrichment run defaults.
const (
	EnrichmentWorkers    = 5
	EnrichmentClaimDelay = 200 * time.Millisecond
)

// NewEnrichment builds the runner that pushes unparsed items through the AI
// enrichment pipeline.
func NewEnrichment(
	st *store.Store,
	enricher collection.Enricher,
	emitter progress.Emitter,
	idGen collection.IDGenerator,
	clock collection.Clock,
	logger *zap.Logger,
	opts ...Option,
) *Runner {
	cfg := Config{
		Kind:       progress.RunEnrichment,
		Workers:    EnrichmentWorkers,
		ClaimDelay: EnrichmentClaimDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	op := enrichmentOp(st, enricher, idGen, logger)
	return New(
		cfg,
		st,
		unparsedItems,
		op,
		emitter,
		clock,
		logger,
	)
}

// unparsedItems snapshots every item not yet through enrichment.
func unparsedItems(st *store.Store) []collection.Item {
	all := st.FetchAllItems()
	out := all[:0:0]
	for _, item := range all {
		if !item.Parsed {
			out = append(out, item)
		}
	}
	return out
}

func enrichmentOp(
	st *store.Store,
	enricher collection.Enricher,
	idGen collection.IDGenerator,
	logger *zap.Logger,
) Operation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, item collection.Item) ItemResult {
		label := item.ID
		if item.Bookmark != nil {
			label = item.Bookmark.URL
		}

		// Only bookmarks have a page to enrich; other kinds just get
		// flagged as processed.
		if item.Kind != collection.KindBookmark {
			item.Parsed = true
			return ItemResult{Item: item, Write: true, Label: label}
		}

		page, err := enricher.FetchPage(ctx, item.Bookmark.URL)
		if err != nil {
			return ItemResult{Err: fmt.Errorf("fetch page: %w", err), Label: label}
		}

		categories := st.FetchAllCategories()
		tags := st.FetchAllTags()
		categoryNames := make([]string, 0, len(categories))
		for _, c := range categories {
			categoryNames = append(categoryNames, c.Name)
		}
		tagNames := make([]string, 0, len(tags))
		for _, t := range tags {
			tagNames = append(tagNames, t.Name)
		}

		suggestion, err := enricher.Suggest(ctx, page, categoryNames, tagNames)
		if err != nil {
			return ItemResult{Err: fmt.Errorf("suggest: %w", err), Label: label}
		}

		result := ItemResult{Label: label}

		// An existing category match wins; an unknown name is surfaced as a
		// proposal, never auto-created by the run.
		if suggestion.CategoryName != "" {
			if cat, ok := st.FindCategoryByName(suggestion.CategoryName); ok {
				item.CategoryID = cat.ID
			} else {
				result.ProposedCategory = suggestion.CategoryName
			}
		}

		// Unknown tag names are auto-created, unlike categories. Tags
		// created here are not rolled back if a later step fails.
		tagIDs, err := resolveTags(st, idGen, item.TagIDs, suggestion.TagNames, logger)
		if err != nil {
			result.Err = err
			return result
		}
		item.TagIDs = tagIDs

		if suggestion.RefinedTitle != "" {
			item.Bookmark.Title = suggestion.RefinedTitle
		}
		item.Bookmark.MetaTitle = page.Title
		item.Bookmark.MetaDescription = firstNonEmpty(suggestion.Summary, page.Description)
		item.Bookmark.MetaImageURL = page.ImageURL
		item.Bookmark.MetaSiteName = page.SiteName
		item.Bookmark.MetaURL = page.CanonicalURL

		// Best-effort favicon; its absence never fails the item. An icon
		// the page declares itself wins over probing well-known paths.
		favicon := page.FaviconURL
		if favicon == "" {
			probed, faviconErr := enricher.FetchFavicon(ctx, item.Bookmark.URL)
			if faviconErr != nil {
				logger.Debug("favicon fetch failed",
					zap.String("url", item.Bookmark.URL),
					zap.Error(faviconErr),
				)
			}
			favicon = probed
		}
		switch {
		case favicon != "":
			item.Bookmark.Icon = favicon
			item.Bookmark.MetaFaviconURL = favicon
		case suggestion.IconSymbol != "":
			item.Bookmark.Icon = suggestion.IconSymbol
		}

		item.Parsed = true
		result.Item = item
		result.Write = true
		return result
	}
}

func resolveTags(
	st *store.Store,
	idGen collection.IDGenerator,
	existing []string,
	names []string,
	logger *zap.Logger,
) ([]string, error) {
	out := append([]string(nil), existing...)
	have := make(map[string]struct{}, len(out))
	for _, id := range out {
		have[id] = struct{}{}
	}
	for _, name := range names {
		tag, ok := st.FindTagByName(name)
		if !ok {
			id, err := idGen.NewID()
			if err != nil {
				return nil, fmt.Errorf("new tag id: %w", err)
			}
			tag = collection.Tag{ID: id, Name: name}
			if addErr := st.AddTag(tag); addErr != nil {
				// Another worker may have just created the same name.
				if found, again := st.FindTagByName(name); again {
					tag = found
				} else {
					return nil, fmt.Errorf("create tag %q: %w", name, addErr)
				}
			}
			logger.Debug("tag created by enrichment", zap.String("name", name))
		}
		if _, dup := have[tag.ID]; dup {
			continue
		}
		have[tag.ID] = struct{}{}
		out = append(out, tag.ID)
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
