// Package notify fans events out to in-process subscribers.
//
// Publishing never blocks: a subscriber whose buffer is full misses the event. Subscriptions end when
// their context is cancelled or the hub shuts down, at which point the channel is closed.
package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultBuffer absorbs bursts such as a merged delta touching many movies.
const DefaultBuffer = 256

// ErrClosed is returned by [Hub.Subscribe] after [Hub.Shutdown].
var ErrClosed = errors.New("notify: hub closed")

// Filter selects the events a subscriber receives. A nil filter accepts everything.
type Filter[T any] func(T) bool

type subscriber[T any] struct {
	ctx    context.Context
	filter Filter[T]
	ch     chan T
	closed atomic.Bool
}

// Hub is a typed publish/subscribe fan-out. The zero value is not usable; use [NewHub].
type Hub[T any] struct {
	mu          sync.RWMutex
	subscribers map[*subscriber[T]]struct{}
	buffer      int
	closed      atomic.Bool
}

// NewHub creates a hub whose subscriber channels hold buffer events. Values below 1 use [DefaultBuffer].
func NewHub[T any](buffer int) *Hub[T] {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Hub[T]{subscribers: make(map[*subscriber[T]]struct{}), buffer: buffer}
}

// Publish delivers events to every matching subscriber.
func (h *Hub[T]) Publish(events ...T) {
	if h.closed.Load() || len(events) == 0 {
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber[T], 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed.Load() {
			continue
		}
		for _, evt := range events {
			if sub.filter != nil && !sub.filter(evt) {
				continue
			}
			h.trySend(sub, evt)
		}
	}
}

// Subscribe registers a subscriber until ctx is done.
func (h *Hub[T]) Subscribe(ctx context.Context, filter Filter[T]) (<-chan T, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}

	sub := &subscriber[T]{ctx: ctx, filter: filter, ch: make(chan T, h.buffer)}

	h.mu.Lock()
	if h.closed.Load() {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	go h.monitorContext(sub)

	return sub.ch, nil
}

// Len reports the number of live subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown closes every subscriber channel. Later publishes are dropped.
func (h *Hub[T]) Shutdown() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
	}
	h.subscribers = nil
}

func (h *Hub[T]) monitorContext(sub *subscriber[T]) {
	<-sub.ctx.Done()
	h.remove(sub)
}

func (h *Hub[T]) remove(sub *subscriber[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers == nil {
		return
	}
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	if sub.closed.CompareAndSwap(false, true) {
		close(sub.ch)
	}
}

func (h *Hub[T]) trySend(sub *subscriber[T], evt T) {
	// a concurrent remove may close the channel between the closed check and the send
	defer func() {
		if r := recover(); r != nil {
			sub.closed.Store(true)
		}
	}()

	select {
	case sub.ch <- evt:
	default:
	}
}
