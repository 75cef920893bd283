// Package projection builds local timelines from observed events.
// Handles ordering and per-transfer folding.
// Does not emit events or interact with UI directly.
package projection

import (
	"context"
	"sync"
	"time"

	"transfer-lab/domain"
	"transfer-lab/domain/event"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// TransferRecord is one row of the timeline: a transfer folded into its
// latest observed state.
type TransferRecord struct {
	ID        domain.TransferID
	Direction domain.Direction
	Name      string
	Size      int64
	Status    Status
	Reason    string
	StartedAt time.Time
	Duration  time.Duration
}

// Timeline folds transfer lifecycle events into an ordered record list.
// Part-level events are ignored; only lifecycle changes shape the rows.
type Timeline struct {
	mu      sync.Mutex
	records []TransferRecord
	index   map[domain.TransferID]int
}

func NewTimeline() *Timeline {
	return &Timeline{index: make(map[domain.TransferID]int)}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch evt := e.(type) {
	case event.TransferStarted:
		t.upsert(TransferRecord{
			ID:        evt.ID,
			Direction: evt.Direction,
			Name:      evt.Name,
			Size:      evt.Size,
			Status:    StatusRunning,
			StartedAt: evt.At,
		})
	case event.TransferCompleted:
		rec := t.lookup(evt.ID)
		rec.ID = evt.ID
		rec.Direction = evt.Direction
		rec.Name = evt.Name
		rec.Size = evt.Bytes
		rec.Status = StatusDone
		rec.Duration = evt.Duration
		t.upsert(rec)
	case event.TransferFailed:
		rec := t.lookup(evt.ID)
		rec.ID = evt.ID
		rec.Direction = evt.Direction
		rec.Name = evt.Name
		rec.Status = StatusFailed
		rec.Reason = evt.Reason
		t.upsert(rec)
	}
	return nil
}

// lookup returns the existing record for id or a zero one.
func (t *Timeline) lookup(id domain.TransferID) TransferRecord {
	if pos, ok := t.index[id]; ok {
		return t.records[pos]
	}
	return TransferRecord{}
}

func (t *Timeline) upsert(rec TransferRecord) {
	if pos, ok := t.index[rec.ID]; ok {
		t.records[pos] = rec
		return
	}
	t.index[rec.ID] = len(t.records)
	t.records = append(t.records, rec)
}

// Records returns a copy of every row in arrival order.
func (t *Timeline) Records() []TransferRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TransferRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Recent returns a copy of the n most recent rows, oldest first.
func (t *Timeline) Recent(n int) []TransferRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > len(t.records) {
		n = len(t.records)
	}
	out := make([]TransferRecord, n)
	copy(out, t.records[len(t.records)-n:])
	return out
}
