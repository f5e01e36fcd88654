package progress

import "context"

// Sink consumes progress events. Implementations must be safe for repeated
// calls and honor ctx deadlines; the Hub invokes them from one goroutine.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so
// runners stay agnostic about how events are buffered or delivered.
type Emitter interface {
	Emit(evt Event)
}
