package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/collection"
	"github.com/mstanton/curator/internal/progress"
	"github.com/mstanton/curator/internal/store"
)

// Reachability run defaults.
const (
	ReachabilityWorkers    = 10
	ReachabilityClaimDelay = 50 * time.Millisecond
)

// NewReachability builds the runner that probes every bookmark and collects
// the broken ones.
func NewReachability(
	st *store.Store,
	prober collection.Prober,
	emitter progress.Emitter,
	clock collection.Clock,
	logger *zap.Logger,
	opts ...Option,
) *Runner {
	cfg := Config{
		Kind:       progress.RunReachability,
		Workers:    ReachabilityWorkers,
		ClaimDelay: ReachabilityClaimDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(
		cfg,
		st,
		allBookmarks,
		reachabilityOp(prober),
		emitter,
		clock,
		logger,
	)
}

// allBookmarks snapshots every bookmark-kind item.
func allBookmarks(st *store.Store) []collection.Item {
	all := st.FetchAllItems()
	out := all[:0:0]
	for _, item := range all {
		if item.Kind == collection.KindBookmark {
			out = append(out, item)
		}
	}
	return out
}

func reachabilityOp(prober collection.Prober) Operation {
	return func(ctx context.Context, item collection.Item) ItemResult {
		url := item.Bookmark.URL
		reach := prober.Probe(ctx, url)
		result := ItemResult{Label: url, Dur: reach.Duration}
		if !reach.Accessible {
			result.Broken = &progress.BrokenLink{
				ItemID: item.ID,
				URL:    url,
				Reason: reach.Reason,
			}
		}
		return result
	}
}
