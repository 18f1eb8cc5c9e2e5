// Package ports define interfaces for dependency inversion.
// These interfaces allow the core session logic to remain independent of the media engine,
// the storage backend and the transports that expose it.
package ports

import (
	"time"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/shuffle"
)

// Player is the narrow command surface of the underlying media engine.
// The session drives it; decoding and rendering stay behind this interface.
//
// Lifecycle callbacks are published on the EventBus the player was built with
// (domain.EventMediaItemTransition, domain.EventTimelineChanged, ...).
// Implementations must publish after releasing their own locks, because
// handlers call back into the player.
//
// Thread-safety: Implementations must be thread-safe.
type Player interface {
	// Queue mutation

	// SetMediaItems replaces the queue and moves to startIndex at startPosition.
	// startIndex may be domain.IndexUnset to start at the first item.
	SetMediaItems(items []domain.MediaReference, startIndex int, startPosition time.Duration) error

	// AddMediaItems inserts items before index. index == MediaItemCount() appends.
	AddMediaItems(index int, items []domain.MediaReference) error

	// RemoveMediaItem removes the item at index. Removing the current item
	// moves playback to the item that takes its place.
	RemoveMediaItem(index int) error

	// ClearMediaItems empties the queue.
	ClearMediaItems() error

	// Queue queries

	// MediaItems returns the queue in natural order.
	MediaItems() []domain.MediaReference

	// MediaItemCount returns the number of queued items.
	MediaItemCount() int

	// MediaItemAt returns the item at index, false when out of range.
	MediaItemAt(index int) (domain.MediaReference, bool)

	// CurrentMediaItemIndex returns the current natural index or domain.IndexUnset.
	CurrentMediaItemIndex() int

	// CurrentMediaItem returns the current item, false when the queue is empty.
	CurrentMediaItem() (domain.MediaReference, bool)

	// HasNextMediaItem reports whether SeekToNext would move (respects shuffle and repeat).
	HasNextMediaItem() bool

	// HasPreviousMediaItem reports whether SeekToPrevious would move.
	HasPreviousMediaItem() bool

	// Transport

	// Prepare moves an idle player towards ready.
	Prepare()

	// SetPlayWhenReady requests play (true) or pause (false).
	SetPlayWhenReady(play bool)

	// PlayWhenReady returns the current play request.
	PlayWhenReady() bool

	// IsPlaying reports whether media is actually advancing.
	IsPlaying() bool

	// SeekTo moves to index at position.
	SeekTo(index int, position time.Duration) error

	// SeekToPosition seeks within the current item.
	SeekToPosition(position time.Duration) error

	// SeekToNext moves to the next item in traversal order.
	SeekToNext() error

	// SeekToPrevious moves to the previous item in traversal order.
	SeekToPrevious() error

	// Modes

	// ShuffleModeEnabled reports shuffle mode.
	ShuffleModeEnabled() bool

	// SetShuffleModeEnabled toggles shuffle traversal.
	SetShuffleModeEnabled(enabled bool)

	// SetShuffleOrder installs the permutation used while shuffle is on.
	// The session owns the order; the player only follows it.
	SetShuffleOrder(order shuffle.Order) error

	// RepeatMode returns the repeat mode.
	RepeatMode() domain.RepeatMode

	// SetRepeatMode changes the repeat mode.
	SetRepeatMode(mode domain.RepeatMode)

	// PlaybackSpeed returns the speed multiplier.
	PlaybackSpeed() float32

	// SetPlaybackSpeed changes the speed multiplier.
	SetPlaybackSpeed(speed float32) error

	// SetScrubbingMode enables low-latency seeking while a seek bar is dragged.
	SetScrubbingMode(enabled bool)

	// State queries

	// PlaybackState returns the lifecycle state.
	PlaybackState() domain.PlayerState

	// CurrentPosition returns the position in the current item.
	CurrentPosition() time.Duration

	// Duration returns the duration of the current item, or a negative value when unknown.
	Duration() time.Duration

	// IsCurrentMediaItemSeekable reports whether seeking inside the item is possible.
	IsCurrentMediaItemSeekable() bool

	// VideoSize returns the current video dimensions (0, 0 for audio).
	VideoSize() (width, height int)

	// PlayerError returns the last playback error, nil when healthy.
	PlayerError() error

	// AudioSessionID returns the engine audio session.
	AudioSessionID() int

	// Release frees engine resources. The player is unusable afterwards.
	Release() error
}
