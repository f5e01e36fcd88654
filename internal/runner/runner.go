// Package runner implements the bounded-concurrency batch engine driving
// the enrichment and reachability runs.
package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mstanton/curator/internal/collection"
	"github.com/mstanton/curator/internal/progress"
	"github.com/mstanton/curator/internal/store"
)

// Operation processes one item. Workers invoke it concurrently; it must not
// touch shared state outside the store.
type Operation func(ctx context.Context, item collection.Item) ItemResult

// ItemResult is the terminal outcome of one per-item operation.
type ItemResult struct {
	// Item is written back to the store when Write is set.
	Item  collection.Item
	Write bool
	// Err marks the item as failed; the run keeps going.
	Err error
	// Broken records a reachability failure with its reason taxonomy.
	Broken *progress.BrokenLink
	// Skipped marks an item whose result was dropped (deleted mid-run).
	Skipped bool
	// ProposedCategory surfaces a category name the enrichment suggested
	// but did not auto-create.
	ProposedCategory string
	// Label is a human-readable handle (title or URL) for progress events.
	Label string
	// Dur is the operation latency.
	Dur time.Duration
}

// Config controls one runner instantiation.
type Config struct {
	Kind progress.RunKind
	// Workers bounds concurrent per-item operations.
	Workers int
	// ClaimDelay throttles the aggregate rate at which workers claim new
	// items, to stay under remote rate limits.
	ClaimDelay time.Duration
}

// Option overrides one tuning knob on a runner instantiation.
type Option func(*Config)

// WithWorkers overrides the worker pool size; n <= 0 keeps the default.
func WithWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithClaimDelay overrides the claim throttle; negative keeps the default.
func WithClaimDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.ClaimDelay = d
		}
	}
}

// Runner drives a pool of workers over a snapshot of eligible items. A
// single coordinator goroutine owns the shared counters and result lists;
// workers never mutate those directly.
type Runner struct {
	cfg      Config
	store    *store.Store
	eligible func(*store.Store) []collection.Item
	op       Operation
	observer *progress.Observer
	emitter  progress.Emitter
	clock    collection.Clock
	logger   *zap.Logger

	running    atomic.Bool
	pauseFlag  atomic.Bool
	cancelFlag atomic.Bool

	mu        sync.Mutex
	proposals []string
	doneCh    chan struct{}
}

// New constructs a Runner. The eligible func snapshots the work set at
// start time; op runs once per claimed item.
func New(
	cfg Config,
	st *store.Store,
	eligible func(*store.Store) []collection.Item,
	op Operation,
	emitter progress.Emitter,
	clock collection.Clock,
	logger *zap.Logger,
) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		store:    st,
		eligible: eligible,
		op:       op,
		observer: progress.NewObserver(cfg.Kind),
		emitter:  emitter,
		clock:    clock,
		logger:   logger,
	}
}

// Start snapshots the eligible work set and launches the run in the
// background. It reports false when a run is already active or the snapshot
// is empty; both cases perform no work and touch no network.
func (r *Runner) Start(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}

	items := r.eligible(r.store)
	if len(items) == 0 {
		r.running.Store(false)
		return false
	}

	r.pauseFlag.Store(false)
	r.cancelFlag.Store(false)
	r.mu.Lock()
	r.proposals = nil
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	runID := progress.UUIDToBytes(uuid.New())
	go r.run(ctx, runID, items)
	return true
}

// Pause asks workers to stop claiming new items. In-flight operations
// complete and their results are still committed.
func (r *Runner) Pause() {
	r.pauseFlag.Store(true)
}

// Cancel asks workers to stop claiming new items and marks the run
// canceled. In-flight operations complete.
func (r *Runner) Cancel() {
	r.cancelFlag.Store(true)
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Progress returns the current read model for this runner.
func (r *Runner) Progress() progress.Snapshot {
	return r.observer.Snapshot()
}

// ProposedCategories returns the category names the enrichment surfaced but
// did not create, in first-seen order without duplicates.
func (r *Runner) ProposedCategories() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.proposals...)
}

// wait blocks until the active run's coordinator exits. Test helper.
func (r *Runner) wait() {
	r.mu.Lock()
	done := r.doneCh
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

type outcomeMsg struct {
	item   collection.Item
	result ItemResult
}

func (r *Runner) run(ctx context.Context, runID [16]byte, items []collection.Item) {
	defer r.running.Store(false)
	r.mu.Lock()
	done := r.doneCh
	r.mu.Unlock()
	defer close(done)

	total := len(items)
	start := r.now()
	r.observer.Publish(progress.Snapshot{
		Kind:      r.cfg.Kind,
		Running:   true,
		Total:     total,
		StartedAt: start,
	})
	r.emit(progress.Event{
		RunID: runID,
		Kind:  r.cfg.Kind,
		TS:    start,
		Stage: progress.StageRunStart,
		Total: total,
	})

	// Work-stealing queue: a worker that finishes immediately claims the
	// next unclaimed item instead of waiting out its siblings.
	queue := make(chan collection.Item, total)
	for _, item := range items {
		queue <- item
	}
	close(queue)

	outcomes := make(chan outcomeMsg, r.cfg.Workers)
	limiter := claimLimiter(r.cfg.ClaimDelay)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, limiter, queue, outcomes)
		}()
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	r.coordinate(ctx, runID, total, start, outcomes)
}

func claimLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

func (r *Runner) worker(
	ctx context.Context,
	limiter *rate.Limiter,
	queue <-chan collection.Item,
	outcomes chan<- outcomeMsg,
) {
	for {
		// Claim boundary: cancellation and pause are cooperative, checked
		// before each claim, never mid-operation.
		if r.pauseFlag.Load() || r.cancelFlag.Load() || ctx.Err() != nil {
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if r.pauseFlag.Load() || r.cancelFlag.Load() {
			return
		}
		item, ok := <-queue
		if !ok {
			return
		}

		opStart := time.Now()
		result := r.op(ctx, item)
		if result.Dur == 0 {
			result.Dur = time.Since(opStart)
		}
		result = r.commit(item, result)
		outcomes <- outcomeMsg{item: item, result: result}
	}
}

// commit writes a successful result back to the store. A NotFound from a
// racing delete downgrades the outcome to skipped rather than failing the
// run.
func (r *Runner) commit(item collection.Item, result ItemResult) ItemResult {
	if result.Err != nil || !result.Write {
		return result
	}
	if err := r.store.UpdateItem(result.Item); err != nil {
		if errors.Is(err, collection.ErrNotFound) {
			r.logger.Info("item deleted mid-run, result dropped",
				zap.String("item_id", item.ID),
				zap.String("kind", string(r.cfg.Kind)),
			)
			result.Write = false
			result.Err = nil
			result.Broken = nil
			result.Skipped = true
			return result
		}
		result.Err = err
	}
	return result
}

func (r *Runner) coordinate(
	ctx context.Context,
	runID [16]byte,
	total int,
	start time.Time,
	outcomes <-chan outcomeMsg,
) {
	completed := 0
	var broken []progress.BrokenLink
	var currentID, currentLabel string

	for msg := range outcomes {
		completed++
		currentID = msg.item.ID
		currentLabel = msg.result.Label

		outcome := progress.OutcomeSucceeded
		reason := ""
		switch {
		case msg.result.Broken != nil:
			outcome = progress.OutcomeFailed
			reason = msg.result.Broken.Reason
			broken = append(broken, *msg.result.Broken)
		case msg.result.Err != nil:
			outcome = progress.OutcomeFailed
			reason = msg.result.Err.Error()
		case msg.result.Skipped:
			outcome = progress.OutcomeSkipped
		}

		if msg.result.ProposedCategory != "" {
			r.addProposal(msg.result.ProposedCategory)
		}

		r.observer.Publish(progress.Snapshot{
			Kind:          r.cfg.Kind,
			Running:       true,
			Total:         total,
			Completed:     completed,
			CurrentItemID: currentID,
			CurrentLabel:  currentLabel,
			Broken:        append([]progress.BrokenLink(nil), broken...),
			StartedAt:     start,
		})
		r.emit(progress.Event{
			RunID:     runID,
			Kind:      r.cfg.Kind,
			TS:        r.now(),
			Stage:     progress.StageItemDone,
			ItemID:    msg.item.ID,
			Label:     msg.result.Label,
			Outcome:   outcome,
			Reason:    reason,
			Completed: completed,
			Total:     total,
			Dur:       msg.result.Dur,
		})
	}

	finished := r.now()
	stage := progress.StageRunCompleted
	switch {
	case r.cancelFlag.Load() || ctx.Err() != nil:
		stage = progress.StageRunCanceled
	case r.pauseFlag.Load():
		stage = progress.StageRunPaused
	}
	r.observer.Publish(progress.Snapshot{
		Kind:       r.cfg.Kind,
		Running:    false,
		Total:      total,
		Completed:  completed,
		Broken:     broken,
		StartedAt:  start,
		FinishedAt: finished,
	})
	r.emit(progress.Event{
		RunID:     runID,
		Kind:      r.cfg.Kind,
		TS:        finished,
		Stage:     stage,
		Completed: completed,
		Total:     total,
		Dur:       finished.Sub(start),
	})
}

func (r *Runner) addProposal(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.proposals {
		if existing == name {
			return
		}
	}
	r.proposals = append(r.proposals, name)
}

func (r *Runner) emit(evt progress.Event) {
	if r.emitter != nil {
		r.emitter.Emit(evt)
	}
}

func (r *Runner) now() time.Time {
	if r.clock != nil {
		return r.clock.Now().UTC()
	}
	return time.Now().UTC()
}
