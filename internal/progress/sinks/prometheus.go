package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mstanton/curator/internal/progress"
)

// PrometheusSink exports batch-run progress metrics. It owns the collectors
// for runs started/completed and per-item outcomes.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	itemsDone     *prometheus.CounterVec
	brokenLinks   prometheus.Counter
	itemDuration  *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_runs_started_total",
			Help: "Batch runs started, partitioned by run kind.",
		}, []string{"kind"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_runs_completed_total",
			Help: "Batch runs finished, partitioned by kind and end state.",
		}, []string{"kind", "state"}),
		itemsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_run_items_total",
			Help: "Per-item terminal outcomes, partitioned by kind and outcome.",
		}, []string{"kind", "outcome"}),
		brokenLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curator_broken_links_total",
			Help: "Bookmarks the reachability run classified as broken.",
		}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curator_run_item_duration_seconds",
			Help:    "Per-item operation latency, partitioned by run kind.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 15, 30},
		}, []string{"kind"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.itemsDone,
		s.brokenLinks,
		s.itemDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from one event.
func (s *PrometheusSink) Consume(_ context.Context, evt progress.Event) error {
	kind := string(evt.Kind)
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(kind).Inc()
	case progress.StageRunCompleted:
		s.runsCompleted.WithLabelValues(kind, "completed").Inc()
	case progress.StageRunCanceled:
		s.runsCompleted.WithLabelValues(kind, "canceled").Inc()
	case progress.StageRunPaused:
		s.runsCompleted.WithLabelValues(kind, "paused").Inc()
	case progress.StageItemDone:
		s.itemsDone.WithLabelValues(kind, string(evt.Outcome)).Inc()
		if evt.Kind == progress.RunReachability && evt.Outcome == progress.OutcomeFailed {
			s.brokenLinks.Inc()
		}
		if evt.Dur > 0 {
			s.itemDuration.WithLabelValues(kind).Observe(evt.Dur.Seconds())
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
