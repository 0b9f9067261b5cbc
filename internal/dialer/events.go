package dialer

import (
	"sync"

	"github.com/dense-identity/confdialer/internal/callstore"
)

// Hub fans out record snapshots to subscribers. Slow subscribers miss
// updates instead of blocking the engine.
type Hub struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*subscription
}

type subscription struct {
	callID string
	ch     chan *callstore.CallRecord
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscription)}
}

// Subscribe returns a channel of updates for one call, or for every call
// when callID is empty, and a function that ends the subscription.
func (h *Hub) Subscribe(callID string, buffer int) (<-chan *callstore.CallRecord, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscription{callID: callID, ch: make(chan *callstore.CallRecord, buffer)}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(sub.ch)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Publish(rec *callstore.CallRecord) {
	if rec == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.callID != "" && sub.callID != rec.ID {
			continue
		}
		select {
		case sub.ch <- rec.Clone():
		default:
		}
	}
}
