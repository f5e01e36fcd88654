package progress

import (
	"sync"
	"time"
)

// BrokenLink records one bookmark the reachability run classified as broken.
type BrokenLink struct {
	ItemID string `json:"item_id"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Snapshot is the passive read model exposed for presentation. It is only
// ever overwritten by the owning runner's coordinator.
type Snapshot struct {
	Kind          RunKind      `json:"kind"`
	Running       bool         `json:"running"`
	Total         int          `json:"total"`
	Completed     int          `json:"completed"`
	CurrentItemID string       `json:"current_item_id,omitempty"`
	CurrentLabel  string       `json:"current_label,omitempty"`
	Broken        []BrokenLink `json:"broken,omitempty"`
	StartedAt     time.Time    `json:"started_at,omitzero"`
	FinishedAt    time.Time    `json:"finished_at,omitzero"`
}

// Observer holds the latest Snapshot behind a mutex so any number of
// readers can poll while the coordinator publishes.
type Observer struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewObserver returns an Observer primed with the run kind.
func NewObserver(kind RunKind) *Observer {
	return &Observer{snap: Snapshot{Kind: kind}}
}

// Publish overwrites the read model. Only the run coordinator calls this.
func (o *Observer) Publish(snap Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snap = snap
}

// Snapshot returns a copy of the current read model.
func (o *Observer) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := o.snap
	out.Broken = append([]BrokenLink(nil), o.snap.Broken...)
	return out
}
