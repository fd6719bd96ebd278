package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/vrtctl/internal/protocol"
)

// PendingExchange tracks one control packet awaiting its ack.
type PendingExchange struct {
	Sequence      protocol.Sequence
	Destination   string
	Attempts      int
	Discarded     int
	StartedAt     time.Time
	LastAttemptAt time.Time
	LastError     string
}

// Tracker stores in-flight exchanges by sequence.
type Tracker struct {
	mu    sync.RWMutex
	items map[protocol.Sequence]PendingExchange
}

func NewTracker() *Tracker {
	return &Tracker{
		items: make(map[protocol.Sequence]PendingExchange),
	}
}

func (t *Tracker) Begin(item PendingExchange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[item.Sequence] = item
}

func (t *Tracker) MarkAttempt(seq protocol.Sequence, at time.Time) (PendingExchange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[seq]
	if !ok {
		return PendingExchange{}, false
	}
	item.Attempts++
	item.LastAttemptAt = at
	t.items[seq] = item
	return item, true
}

func (t *Tracker) MarkDiscard(seq protocol.Sequence, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[seq]
	if !ok {
		return
	}
	item.Discarded++
	item.LastError = strings.TrimSpace(reason)
	t.items[seq] = item
}

// Finish removes seq and returns its final state.
func (t *Tracker) Finish(seq protocol.Sequence) (PendingExchange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[seq]
	delete(t.items, seq)
	return item, ok
}

func (t *Tracker) Get(seq protocol.Sequence) (PendingExchange, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[seq]
	return item, ok
}

func (t *Tracker) List() []PendingExchange {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PendingExchange, 0, len(t.items))
	for _, item := range t.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}
