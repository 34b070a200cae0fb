package eventbus

import (
	"context"
	"sync"
	"time"
)

// Tally counts events by type. Run consumes a subscription until ctx ends.
type Tally struct {
	mu     sync.Mutex
	counts map[string]uint64
	last   map[string]time.Time
}

func NewTally() *Tally {
	return &Tally{counts: map[string]uint64{}, last: map[string]time.Time{}}
}

func (t *Tally) Run(ctx context.Context, bus Bus) {
	if bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			t.Add(e)
		}
	}
}

func (t *Tally) Add(e Event) {
	t.mu.Lock()
	t.counts[e.Type]++
	if e.Time.After(t.last[e.Type]) {
		t.last[e.Type] = e.Time
	}
	t.mu.Unlock()
}

// TallySnapshot is the JSON view served by the health endpoint.
type TallySnapshot struct {
	Counts map[string]uint64    `json:"counts"`
	Last   map[string]time.Time `json:"last"`
}

func (t *Tally) Snapshot() TallySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := TallySnapshot{
		Counts: make(map[string]uint64, len(t.counts)),
		Last:   make(map[string]time.Time, len(t.last)),
	}
	for k, v := range t.counts {
		out.Counts[k] = v
	}
	for k, v := range t.last {
		out.Last[k] = v
	}
	return out
}

func (t *Tally) Count(typ string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[typ]
}
