package domain

import "time"

// PlayerSnapshot is the raw session state read over a connection in one call.
// Observers derive NowPlaying from it.
type PlayerSnapshot struct {
	Current       *MediaReference
	Index         int
	Count         int
	PlayWhenReady bool
	State         PlayerState
	Position      time.Duration
	Duration      time.Duration // negative when unknown
	Speed         float32
	Shuffle       bool
	Repeat        RepeatMode
	Favourite     bool
	Error         error
	VideoWidth    int
	VideoHeight   int
	HasNext       bool
	HasPrevious   bool
	Seekable      bool
	SleepAt       int64 // epoch millis or SleepUnset
}
