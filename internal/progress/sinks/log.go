// Package sinks ships the progress sink implementations bundled with the
// service.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/progress"
)

// LogSink emits structured logs for run progress. Useful during development
// and when auditing what a batch run touched.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event using structured fields.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	s.logger.Info("run progress",
		zap.String("run_id", evt.RunUUID().String()),
		zap.String("kind", string(evt.Kind)),
		zap.String("stage", string(evt.Stage)),
		zap.String("item_id", evt.ItemID),
		zap.String("label", evt.Label),
		zap.String("outcome", string(evt.Outcome)),
		zap.String("reason", evt.Reason),
		zap.Int("completed", evt.Completed),
		zap.Int("total", evt.Total),
		zap.Duration("dur", evt.Dur),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
