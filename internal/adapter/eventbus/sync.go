// Package eventbus delivers player callbacks and session signals in process.
package eventbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
)

// ErrClosed is returned by Close when the bus was already closed.
var ErrClosed = errors.New("event bus already closed")

// SyncEventBus runs handlers on the publisher's goroutine, in subscription
// order, type-specific handlers before wildcard ones. The player publishes
// from whichever goroutine drives it, so the session sees callbacks in the
// order the player produced them. Handlers may publish, subscribe or
// unsubscribe re-entrantly.
type SyncEventBus struct {
	logger *slog.Logger

	subscribers    map[domain.EventType][]subscription
	allSubscribers []subscription // wildcard, optionally filtered

	// mu guards everything above plus closed
	mu        sync.RWMutex
	idCounter uint64
	closed    bool
}

type subscription struct {
	id      domain.SubscriptionID
	handler domain.EventHandler
	filter  ports.EventFilter
}

// NewSyncEventBus creates a new synchronous event bus.
func NewSyncEventBus() *SyncEventBus {
	return &SyncEventBus{
		subscribers:    make(map[domain.EventType][]subscription),
		allSubscribers: make([]subscription, 0),
	}
}

// SetLogger enables debug logging of deliveries and handler panics.
func (bus *SyncEventBus) SetLogger(logger *slog.Logger) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.logger = logger
}

// Publish delivers event to its subscribers. A panicking handler is logged
// and skipped. Publishing on a closed bus does nothing.
func (bus *SyncEventBus) Publish(event domain.Event) {
	if event == nil {
		return
	}

	bus.mu.RLock()
	if bus.closed {
		bus.mu.RUnlock()
		return
	}

	// Snapshot under the lock so handlers can (un)subscribe while we deliver
	eventType := event.Type()
	targets := make([]subscription, 0, len(bus.subscribers[eventType])+len(bus.allSubscribers))
	targets = append(targets, bus.subscribers[eventType]...)
	targets = append(targets, bus.allSubscribers...)
	logger := bus.logger

	bus.mu.RUnlock()

	if logger != nil {
		logger.Debug("event published",
			slog.String("event_type", string(eventType)),
			slog.Int("handlers", len(targets)))
	}

	for _, sub := range targets {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		bus.callHandler(logger, sub, event)
	}
}

func (bus *SyncEventBus) callHandler(logger *slog.Logger, sub subscription, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error("event handler panicked",
					slog.Any("panic", r),
					slog.String("subscription", string(sub.id)),
					slog.String("event_type", string(event.Type())))
			}
		}
	}()

	sub.handler(event)
}

// Subscribe registers handler for eventType. It panics on a nil handler or
// a closed bus.
func (bus *SyncEventBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID {
	if handler == nil {
		panic("event handler cannot be nil")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		panic("cannot subscribe to closed event bus")
	}

	sub := subscription{id: bus.nextID("sub"), handler: handler}
	bus.subscribers[eventType] = append(bus.subscribers[eventType], sub)

	return sub.id
}

// SubscribeAll registers handler for every event.
func (bus *SyncEventBus) SubscribeAll(handler domain.EventHandler) domain.SubscriptionID {
	return bus.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a wildcard handler that only sees events
// accepted by filter. A nil filter accepts everything.
func (bus *SyncEventBus) SubscribeFiltered(filter ports.EventFilter, handler domain.EventHandler) domain.SubscriptionID {
	if handler == nil {
		panic("event handler cannot be nil")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		panic("cannot subscribe to closed event bus")
	}

	sub := subscription{id: bus.nextID("sub-all"), handler: handler, filter: filter}
	bus.allSubscribers = append(bus.allSubscribers, sub)

	return sub.id
}

// nextID must be called with mu held.
func (bus *SyncEventBus) nextID(prefix string) domain.SubscriptionID {
	return domain.SubscriptionID(fmt.Sprintf("%s-%d", prefix, atomic.AddUint64(&bus.idCounter, 1)))
}

// Unsubscribe removes a subscription, keeping the order of the rest.
func (bus *SyncEventBus) Unsubscribe(id domain.SubscriptionID) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	for eventType, subs := range bus.subscribers {
		if i := indexOf(subs, id); i >= 0 {
			bus.subscribers[eventType] = remove(subs, i)
			return
		}
	}

	if i := indexOf(bus.allSubscribers, id); i >= 0 {
		bus.allSubscribers = remove(bus.allSubscribers, i)
	}
}

func indexOf(subs []subscription, id domain.SubscriptionID) int {
	for i, sub := range subs {
		if sub.id == id {
			return i
		}
	}
	return -1
}

// remove returns a new slice so snapshots taken by Publish stay intact.
func remove(subs []subscription, i int) []subscription {
	out := make([]subscription, 0, len(subs)-1)
	out = append(out, subs[:i]...)
	return append(out, subs[i+1:]...)
}

// Close drops every subscription. Later calls return ErrClosed.
func (bus *SyncEventBus) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		return ErrClosed
	}

	bus.closed = true
	bus.subscribers = make(map[domain.EventType][]subscription)
	bus.allSubscribers = make([]subscription, 0)

	return nil
}

// SubscriberCount counts type-specific and wildcard subscriptions.
func (bus *SyncEventBus) SubscriberCount() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	count := len(bus.allSubscribers)
	for _, subs := range bus.subscribers {
		count += len(subs)
	}
	return count
}

var _ ports.FilteringEventBus = (*SyncEventBus)(nil)
