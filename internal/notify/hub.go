package notify

import (
	"context"
	"sync"
	"time"
)

// Hub stores recent events per owner and wakes waiters when new events
// arrive. It implements Publisher.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	owners   map[string]*ownerBuffer
	nextSeq  uint64
}

type ownerBuffer struct {
	events []Event
}

// NewHub constructs a hub holding up to capacity events per owner.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 16
	}
	h := &Hub{capacity: capacity, owners: make(map[string]*ownerBuffer)}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends an event to its owner's buffer, evicting the oldest event
// when the buffer is full. Publish never blocks.
func (h *Hub) Publish(_ context.Context, event Event) {
	if h == nil || event.Owner == "" {
		return
	}

	h.mu.Lock()
	h.nextSeq++
	event.Sequence = h.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	buf, ok := h.owners[event.Owner]
	if !ok {
		buf = &ownerBuffer{}
		h.owners[event.Owner] = buf
	}
	if len(buf.events) == h.capacity {
		copy(buf.events, buf.events[1:])
		buf.events = buf.events[:h.capacity-1]
	}
	buf.events = append(buf.events, event)

	h.cond.Broadcast()
	h.mu.Unlock()
}

// Fetch returns an owner's events with sequence greater than since. When wait
// is true, Fetch blocks until at least one event is available or the context
// ends.
func (h *Hub) Fetch(ctx context.Context, owner string, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next := h.snapshotLocked(owner, since, limit)
		if len(events) > 0 || !wait {
			return events, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Sequence returns the sequence number of the most recently published event.
func (h *Hub) Sequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq
}

// Tail returns an owner's most recent limit events without blocking.
func (h *Hub) Tail(owner string, limit int) ([]Event, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	buf, ok := h.owners[owner]
	if !ok || len(buf.events) == 0 {
		return nil, h.nextSeq
	}
	start := len(buf.events) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(buf.events)-start)
	copy(out, buf.events[start:])
	return out, h.nextSeq
}

func (h *Hub) snapshotLocked(owner string, since uint64, limit int) ([]Event, uint64) {
	buf, ok := h.owners[owner]
	if !ok || len(buf.events) == 0 {
		return nil, h.nextSeq
	}
	startIdx := -1
	for i, event := range buf.events {
		if event.Sequence > since {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, h.nextSeq
	}
	end := startIdx + limit
	if end > len(buf.events) {
		end = len(buf.events)
	}
	out := make([]Event, end-startIdx)
	copy(out, buf.events[startIdx:end])
	return out, h.nextSeq
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
