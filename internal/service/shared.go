package service

import (
	"context"
	"sync"
	"time"
)

// shared is a hot stream of T. The producer runs while at least one
// subscriber is attached and for grace after the last one leaves; a
// subscriber attached in between reuses it. New subscribers receive the
// latest value first. Slow subscribers only ever see the newest value.
type shared[T any] struct {
	parent  context.Context
	grace   time.Duration
	produce func(ctx context.Context, emit func(T))
	wg      *sync.WaitGroup

	mu          sync.Mutex
	latest      T
	hasLatest   bool
	subscribers map[int]chan T
	nextID      int
	stop        context.CancelFunc
	graceTimer  *time.Timer
	graceGen    int
	closed      bool
}

func newShared[T any](
	parent context.Context,
	wg *sync.WaitGroup,
	grace time.Duration,
	produce func(ctx context.Context, emit func(T)),
) *shared[T] {
	return &shared[T]{
		parent:      parent,
		grace:       grace,
		produce:     produce,
		wg:          wg,
		subscribers: make(map[int]chan T),
	}
}

// subscribe attaches until ctx is done. The channel is closed on detach.
func (h *shared[T]) subscribe(ctx context.Context) <-chan T {
	out := make(chan T, 1)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(out)
		return out
	}

	id := h.nextID
	h.nextID++
	h.subscribers[id] = out
	if h.hasLatest {
		out <- h.latest
	}

	if h.graceTimer != nil {
		h.graceTimer.Stop()
		h.graceTimer = nil
	}
	if h.stop == nil {
		h.startLocked()
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		select {
		case <-ctx.Done():
		case <-h.parent.Done():
		}
		h.unsubscribe(id)
	}()

	return out
}

func (h *shared[T]) startLocked() {
	ctx, cancel := context.WithCancel(h.parent)
	h.stop = cancel

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.produce(ctx, h.emit)
	}()
}

func (h *shared[T]) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	close(ch)

	if len(h.subscribers) > 0 || h.stop == nil {
		return
	}
	if h.closed || h.parent.Err() != nil {
		h.stop()
		h.stop = nil
		return
	}

	h.graceGen++
	gen := h.graceGen
	h.graceTimer = time.AfterFunc(h.grace, func() { h.expire(gen) })
}

// expire stops the producer when no one came back during the grace period.
func (h *shared[T]) expire(gen int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if gen != h.graceGen || len(h.subscribers) > 0 || h.stop == nil {
		return
	}
	h.stop()
	h.stop = nil
	h.graceTimer = nil
}

func (h *shared[T]) emit(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = v
	h.hasLatest = true
	for _, ch := range h.subscribers {
		// drop a value the subscriber has not read yet
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func (h *shared[T]) current() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.hasLatest
}

// active reports whether the producer is running.
func (h *shared[T]) active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stop != nil
}

// shutdown stops the producer and refuses new subscribers. Attached
// subscribers are detached once parent is done.
func (h *shared[T]) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.graceTimer != nil {
		h.graceTimer.Stop()
		h.graceTimer = nil
	}
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
}
