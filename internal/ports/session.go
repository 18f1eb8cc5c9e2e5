package ports

import (
	"context"
	"time"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
)

// SessionConnection is a client's handle on a playback session.
// Remote controllers, the MPRIS bridge and the HTTP surface all talk to the
// session through it.
//
// A connection dies when the session is released or when Release is called;
// afterwards every method returns domain.ErrConnectionClosed and IsAlive is false.
// Clients are expected to reconnect.
//
// Thread-safety: Implementations must be thread-safe.
type SessionConnection interface {
	// ID identifies the connection in logs.
	ID() string

	// IsAlive reports whether the connection can still be used.
	IsAlive() bool

	// Done is closed when the connection dies.
	Done() <-chan struct{}

	// Subscribe delivers session events accepted by filter (nil accepts all)
	// to handler until Unsubscribe or until the connection dies.
	Subscribe(filter EventFilter, handler domain.EventHandler) (domain.SubscriptionID, error)

	// Unsubscribe removes a handler registered with Subscribe.
	Unsubscribe(id domain.SubscriptionID)

	// Snapshot reads the player state in one call.
	Snapshot() (domain.PlayerSnapshot, error)

	// MediaItems returns the queue in natural order.
	MediaItems() ([]domain.MediaReference, error)

	// Children returns the browse children of parentID (domain.RootQueue).
	Children(parentID string) ([]domain.MediaReference, error)

	// Player commands
	SetPlayWhenReady(play bool) error
	Prepare() error
	SetShuffleModeEnabled(enabled bool) error
	SetRepeatMode(mode domain.RepeatMode) error
	SeekTo(index int, position time.Duration) error
	SeekToPosition(position time.Duration) error
	SeekToNext() error
	SeekToPrevious() error
	SetMediaItems(items []domain.MediaReference, startIndex int, startPosition time.Duration) error
	AddMediaItems(index int, items []domain.MediaReference) error
	RemoveMediaItem(index int) error
	ClearMediaItems() error
	SetPlaybackSpeed(speed float32) error

	// Dispatch sends a custom command and waits for its result.
	Dispatch(ctx context.Context, cmd domain.Command) (domain.CommandResult, error)

	// Release closes the connection. Calling it more than once is a no-op.
	Release()
}

// Connector opens a new connection to the session.
type Connector func(ctx context.Context) (SessionConnection, error)
