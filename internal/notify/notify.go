// Package notify provides a small fan-out primitive for single-writer,
// many-reader state.
//
// Each subscriber owns a one-slot mailbox. Publishing never blocks: when a
// subscriber has not consumed the previous value it is replaced, so a slow
// reader skips intermediate values but always observes the latest one.
package notify

import "sync"

// Hub fans values out to subscribers with latest-wins delivery. The zero
// value is ready to use. All methods are safe for concurrent use.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

// Subscribe registers a new subscriber. The returned cancel function removes
// the subscription and closes the channel; it is safe to call more than once.
// Subscribing to a closed hub returns an already-closed channel.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	return h.subscribe(nil)
}

// SubscribeWith is like [Hub.Subscribe] but places initial in the new
// subscriber's mailbox. Other subscribers are not affected.
func (h *Hub[T]) SubscribeWith(initial T) (<-chan T, func()) {
	return h.subscribe(&initial)
}

func (h *Hub[T]) subscribe(initial *T) (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan T, 1)
	if initial != nil {
		ch <- *initial
	}
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subs == nil {
		h.subs = make(map[uint64]chan T)
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers v to every subscriber, replacing any value still waiting
// in a subscriber's mailbox. Publishing to a closed hub is a no-op.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// Mailbox full: drop the stale value. Only Publish sends, and it holds
		// the lock, so the retry cannot fail.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Len reports the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later Subscribe calls return closed
// channels and Publish becomes a no-op.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
