// Package domain contains core business models and logic with no external dependencies.
// This package defines the fundamental entities of the playback session.
package domain

import (
	"net/url"
	"strings"
	"time"
)

// Sentinel values shared by the session and its clients.
const (
	// IndexUnset marks an unknown or absent queue index.
	IndexUnset = -1

	// TimeUnset marks an unknown position, duration or bookmark (milliseconds).
	TimeUnset int64 = -1

	// SleepUnset marks the absence of a scheduled sleep pause.
	SleepUnset int64 = -1

	// LocalAudioSessionID is passed when audio effects are reinitialised locally
	// rather than because the engine reported a new audio session.
	LocalAudioSessionID = -1

	// DefaultRecentLimit caps the Recent playlist when no preference is stored.
	DefaultRecentLimit = 50

	// OwnMediaAuthority is the content authority of the app's own media source.
	OwnMediaAuthority = "media"

	// RootQueue is the browse id whose children are the playing queue.
	RootQueue = "com.prime.player.queue"
)

// MediaReference is an immutable playable item. Identity is the URI.
type MediaReference struct {
	// URI locates the media and keys queue uniqueness
	URI string

	// Title is the display title
	Title string

	// Subtitle is usually the artist
	Subtitle string

	// ArtworkURI is optional
	ArtworkURI string

	// MimeType is optional (e.g. "audio/mpeg")
	MimeType string
}

// IsVideo reports whether the reference points at video content.
func (m MediaReference) IsVideo() bool {
	return strings.HasPrefix(m.MimeType, "video/")
}

// IsThirdParty reports whether the URI belongs to another app's content provider.
// Such URIs lose their grant after a restart and cannot be replayed.
func (m MediaReference) IsThirdParty() bool {
	return IsThirdPartyURI(m.URI)
}

// IsThirdPartyURI reports whether uri is a content URI outside the own media authority.
func IsThirdPartyURI(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return u.Scheme == "content" && u.Host != OwnMediaAuthority
}

// Private playlist naming. System playlists carry the prefix so they never
// collide with user-created names.
const (
	PrivatePlaylistPrefix = "_"

	PlaylistQueue     = PrivatePlaylistPrefix + "queue"
	PlaylistRecent    = PrivatePlaylistPrefix + "recent"
	PlaylistFavourite = PrivatePlaylistPrefix + "favourite"
)

// Playlist is a named container of tracks.
type Playlist struct {
	ID           int64
	Name         string
	Description  string
	DateCreated  time.Time
	DateModified time.Time
}

// Track is the persisted form of a MediaReference inside a playlist.
// (PlaylistID, URI) is unique; Order gives the position, and in the
// Recent playlist order 0 is the most recently played entry.
type Track struct {
	PlaylistID int64  `db:"playlist_id"`
	Order      int    `db:"play_order"`
	URI        string `db:"uri"`
	Title      string `db:"title"`
	Subtitle   string `db:"subtitle"`
	ArtworkURI string `db:"artwork_uri"`
	MimeType   string `db:"mime_type"`
}

// NewTrack converts a reference into a playlist member at the given order.
func NewTrack(playlistID int64, order int, item MediaReference) Track {
	return Track{
		PlaylistID: playlistID,
		Order:      order,
		URI:        item.URI,
		Title:      item.Title,
		Subtitle:   item.Subtitle,
		ArtworkURI: item.ArtworkURI,
		MimeType:   item.MimeType,
	}
}

// MediaReference converts the track back into a playable reference.
func (t Track) MediaReference() MediaReference {
	return MediaReference{
		URI:        t.URI,
		Title:      t.Title,
		Subtitle:   t.Subtitle,
		ArtworkURI: t.ArtworkURI,
		MimeType:   t.MimeType,
	}
}

// RepeatMode controls what happens at the end of an item or the queue.
type RepeatMode int

const (
	// RepeatOff stops at the end of the queue
	RepeatOff RepeatMode = iota
	// RepeatOne repeats the current item
	RepeatOne
	// RepeatAll wraps around the queue
	RepeatAll
)

// String returns the string representation of the repeat mode.
func (r RepeatMode) String() string {
	switch r {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the known modes.
func (r RepeatMode) Valid() bool {
	return r >= RepeatOff && r <= RepeatAll
}

// Next cycles OFF -> ONE -> ALL -> OFF.
func (r RepeatMode) Next() RepeatMode {
	switch r {
	case RepeatOff:
		return RepeatOne
	case RepeatOne:
		return RepeatAll
	default:
		return RepeatOff
	}
}

// PlayerState is the lifecycle state reported by the engine.
type PlayerState int

const (
	StateIdle PlayerState = iota + 1
	StateBuffering
	StateReady
	StateEnded
)

// String returns the string representation of the player state.
func (s PlayerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StateReady:
		return "ready"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// TimelineChangeReason explains a timeline-changed event.
type TimelineChangeReason int

const (
	// TimelinePlaylistChanged means items were added, removed or replaced.
	TimelinePlaylistChanged TimelineChangeReason = iota
	// TimelineSourceUpdate means only durations or other metadata changed.
	TimelineSourceUpdate
)

// TransitionReason explains a media-item-transition event.
type TransitionReason int

const (
	TransitionRepeat TransitionReason = iota
	TransitionAuto
	TransitionSeek
	TransitionPlaylistChanged
)

// Neighbour availability encoding used by NowPlaying.
const (
	NeighboursNone     = 0
	NeighboursNextOnly = 1
	NeighboursPrevOnly = -1
	NeighboursBoth     = 2
)

// NowPlaying is an immutable snapshot of the session, rebuilt on every
// qualifying event and never persisted.
type NowPlaying struct {
	Title         string
	Subtitle      string
	ArtworkURI    string
	URI           string
	Speed         float32
	Shuffle       bool
	Duration      int64 // milliseconds, TimeUnset when unknown
	Position      int64 // milliseconds
	Favourite     bool
	PlayWhenReady bool
	MimeType      string
	State         PlayerState
	Repeat        RepeatMode
	Error         string
	VideoWidth    int
	VideoHeight   int
	Neighbours    int
	SleepAt       int64 // epoch millis, SleepUnset when no timer
	Timestamp     time.Time
}

// IsPlaying reports whether playback is requested and not finished.
func (n NowPlaying) IsPlaying() bool {
	return n.PlayWhenReady && n.State != StateEnded
}

// IsNextAvailable reports whether a following item exists.
func (n NowPlaying) IsNextAvailable() bool {
	return n.Neighbours == NeighboursBoth || n.Neighbours == NeighboursNextOnly
}

// IsPrevAvailable reports whether a preceding item exists.
func (n NowPlaying) IsPrevAvailable() bool {
	return n.Neighbours == NeighboursBoth || n.Neighbours == NeighboursPrevOnly
}

// IsVideo reports whether the current item is video.
func (n NowPlaying) IsVideo() bool {
	return strings.HasPrefix(n.MimeType, "video/")
}

// SleepRemaining returns the time left until the scheduled pause, or -1 when unset.
func (n NowPlaying) SleepRemaining(now time.Time) time.Duration {
	if n.SleepAt == SleepUnset {
		return -1
	}
	left := time.Duration(n.SleepAt-now.UnixMilli()) * time.Millisecond
	if left < 0 {
		return 0
	}
	return left
}

// Neighbours encodes next/previous availability.
func Neighbours(hasPrev, hasNext bool) int {
	switch {
	case hasPrev && hasNext:
		return NeighboursBoth
	case hasNext:
		return NeighboursNextOnly
	case hasPrev:
		return NeighboursPrevOnly
	default:
		return NeighboursNone
	}
}
