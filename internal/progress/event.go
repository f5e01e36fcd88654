// Package progress defines the event structures emitted by batch runs and
// the read model presentation layers poll.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunKind identifies which batch runner emitted an event.
type RunKind string

// Supported run kinds.
const (
	RunEnrichment   RunKind = "enrichment"
	RunReachability RunKind = "reachability"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageItemClaim    Stage = "ITEM_CLAIM"
	StageItemDone     Stage = "ITEM_DONE"
	StageRunPaused    Stage = "RUN_PAUSED"
	StageRunCanceled  Stage = "RUN_CANCELED"
	StageRunCompleted Stage = "RUN_COMPLETED"
)

// Outcome classifies a terminal per-item result.
type Outcome string

// Per-item outcomes attached to ITEM_DONE events.
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Event captures a single milestone of a batch run.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// Kind names the runner instantiation that produced the event.
	Kind RunKind
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or per-item milestone occurred.
	Stage Stage
	// ItemID scopes item events to a store item.
	ItemID string
	// Label carries a human-readable handle for the item (title or URL).
	Label string
	// Outcome is set on ITEM_DONE events only.
	Outcome Outcome
	// Reason carries failure or broken-link context.
	Reason string
	// Completed and Total mirror the coordinator counters at emit time.
	Completed int
	Total     int
	// Dur captures per-item latency where known.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case RunEnrichment, RunReachability:
	default:
		return fmt.Errorf("unknown run kind %q", e.Kind)
	}
	switch e.Stage {
	case StageRunStart, StageRunPaused, StageRunCanceled, StageRunCompleted:
	case StageItemClaim:
		if e.ItemID == "" {
			return errors.New("item claim requires item id")
		}
	case StageItemDone:
		if e.ItemID == "" {
			return errors.New("item done requires item id")
		}
		if e.Outcome == "" {
			return errors.New("item done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Completed < 0 || e.Total < 0 || e.Completed > e.Total {
		return fmt.Errorf("counter mismatch %d/%d", e.Completed, e.Total)
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for sinks.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
