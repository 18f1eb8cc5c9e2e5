// Package ports define repository interfaces for data persistence abstraction.
// These interfaces enable the repository pattern and allow swapping persistence mechanisms.
package ports

import (
	"github.com/tejashwikalptaru/tunesession/internal/domain"
)

// PlaylistRepository handles playlists and their member tracks.
//
// Thread-safety: Implementations must be thread-safe.
type PlaylistRepository interface {
	// Get returns the playlist with the given name.
	// If it doesn't exist, returns (nil, domain.ErrPlaylistNotFound).
	Get(name string) (*domain.Playlist, error)

	// Insert creates a playlist and returns its id.
	// Names are unique; inserting an existing name fails.
	Insert(playlist domain.Playlist) (int64, error)

	// Update rewrites name, description and dateModified of an existing playlist.
	Update(playlist domain.Playlist) error

	// Tracks returns the members ordered by order ascending.
	Tracks(playlistID int64) ([]domain.Track, error)

	// InsertTracks inserts members. A (playlistID, uri) pair that already exists
	// is replaced.
	InsertTracks(tracks []domain.Track) error

	// ReplaceTracks deletes every member of the playlist and inserts tracks,
	// atomically.
	ReplaceTracks(playlistID int64, tracks []domain.Track) error

	// Delete removes members whose order is >= fromOrder.
	// fromOrder 0 clears the playlist.
	Delete(playlistID int64, fromOrder int) error

	// Contains reports membership of uri.
	Contains(playlistID int64, uri string) (bool, error)

	// Track returns the member with uri, or (nil, domain.ErrTrackNotFound).
	Track(playlistID int64, uri string) (*domain.Track, error)

	// RemoveTrack deletes the member with uri. Missing members are a no-op.
	RemoveTrack(playlistID int64, uri string) error

	// LastPlayOrder returns the highest order in the playlist, -1 when empty.
	LastPlayOrder(playlistID int64) (int, error)

	// ShiftOrders adds delta to the order of every member with order < below.
	// A negative below shifts every member.
	ShiftOrders(playlistID int64, below int, delta int) error

	// SetOrder changes the order of the member with uri.
	SetOrder(playlistID int64, uri string, order int) error

	// Atomically runs fn against a repository whose changes are committed
	// together when fn returns nil and discarded otherwise.
	Atomically(fn func(repo PlaylistRepository) error) error
}

// PreferencesRepository is a flat typed key-value store.
// Getters return def when the key has never been written.
//
// Thread-safety: Implementations must be thread-safe.
type PreferencesRepository interface {
	GetString(key string, def string) (string, error)
	SetString(key string, value string) error

	GetInt(key string, def int) (int, error)
	SetInt(key string, value int) error

	GetInt64(key string, def int64) (int64, error)
	SetInt64(key string, value int64) error

	GetBool(key string, def bool) (bool, error)
	SetBool(key string, value bool) error

	GetFloat(key string, def float64) (float64, error)
	SetFloat(key string, value float64) error

	// Remove deletes a key. Missing keys are a no-op.
	Remove(key string) error

	// Clear removes all saved preferences.
	Clear() error
}
