// Package ports define the EventBus interface for event-driven communication.
package ports

import (
	"github.com/tejashwikalptaru/tunesession/internal/domain"
)

// EventBus carries player lifecycle callbacks and session signals.
//
// The player publishes, the session and its connections subscribe. Neither
// side knows about the other. Implementations must be safe for concurrent use.
//
//	id := bus.Subscribe(domain.EventRepeatModeChanged, func(event domain.Event) {
//	    e := event.(domain.RepeatModeChangedEvent)
//	    prefs.SetRepeatMode(e.Mode)
//	})
//	defer bus.Unsubscribe(id)
type EventBus interface {
	// Publish delivers event to every matching subscriber. Handlers must
	// return quickly; slow work belongs on a background goroutine.
	Publish(event domain.Event)

	// Subscribe registers handler for one event type.
	Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID

	// Unsubscribe is a no-op for unknown ids.
	Unsubscribe(id domain.SubscriptionID)

	// SubscribeAll registers handler for every event type.
	SubscribeAll(handler domain.EventHandler) domain.SubscriptionID

	// Close drops all subscriptions. Publishing afterwards does nothing.
	Close() error
}

// EventFilter reports whether an event should reach a subscriber.
type EventFilter func(event domain.Event) bool

// FilteringEventBus extends EventBus with filtered subscriptions.
// Session connections use it to forward only what their client asked for.
type FilteringEventBus interface {
	EventBus

	// SubscribeFiltered registers a wildcard handler that only sees events
	// accepted by filter. A nil filter accepts everything.
	SubscribeFiltered(filter EventFilter, handler domain.EventHandler) domain.SubscriptionID
}
