// Package memory provides an in-memory implementation of the Player port.
// It simulates the media engine without decoding anything: items have a
// duration, a position that moves when Advance is called, and the same
// lifecycle callbacks a real engine would raise.
package memory

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
	"github.com/tejashwikalptaru/tunesession/internal/shuffle"
)

// ErrReleased is returned by mutating calls after Release.
var ErrReleased = errors.New("player released")

const (
	// DefaultDuration is used for items without an explicit duration.
	DefaultDuration = 3 * time.Minute

	// DefaultAudioSessionID is the audio session reported before any change.
	DefaultAudioSessionID = 1

	// previousRestartThreshold: SeekToPrevious restarts the item instead of
	// moving back once playback is past this point.
	previousRestartThreshold = 3 * time.Second
)

// Player is an in-memory media engine.
//
// Thread-safety: This implementation is thread-safe. Events are published
// after the internal lock is released, so handlers may call back into the player.
type Player struct {
	// Dependencies
	logger *slog.Logger
	bus    ports.EventBus
	rnd    *rand.Rand

	mu sync.Mutex

	// Queue state
	items    []domain.MediaReference
	index    int
	position time.Duration
	order    shuffle.Order

	// Transport state
	prepared      bool
	playWhenReady bool
	state         domain.PlayerState
	err           error

	// Modes
	shuffle   bool
	repeat    domain.RepeatMode
	speed     float32
	scrubbing bool

	audioSessionID int
	released       bool

	// Simulation knobs
	defaultDuration time.Duration
	durations       map[string]time.Duration
	unplayable      map[string]bool
}

// Option configures a Player.
type Option func(*Player)

// WithRand sets the random source used for shuffle orders created by the player.
func WithRand(rnd *rand.Rand) Option {
	return func(p *Player) { p.rnd = rnd }
}

// WithAudioSessionID sets the initial audio session id.
func WithAudioSessionID(id int) Option {
	return func(p *Player) { p.audioSessionID = id }
}

// WithDefaultDuration sets the duration of items without an explicit one.
func WithDefaultDuration(d time.Duration) Option {
	return func(p *Player) { p.defaultDuration = d }
}

// NewPlayer creates an idle player that publishes its callbacks on bus.
func NewPlayer(bus ports.EventBus, logger *slog.Logger, opts ...Option) *Player {
	p := &Player{
		logger:          logger.With(slog.String("component", "memory_player")),
		bus:             bus,
		rnd:             rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		index:           domain.IndexUnset,
		state:           domain.StateIdle,
		speed:           1,
		audioSessionID:  DefaultAudioSessionID,
		defaultDuration: DefaultDuration,
		durations:       make(map[string]time.Duration),
		unplayable:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// emit publishes events collected under the lock. mu must not be held.
func (p *Player) emit(events []domain.Event) {
	for _, e := range events {
		p.bus.Publish(e)
	}
}

// SetMediaItems replaces the queue.
func (p *Player) SetMediaItems(items []domain.MediaReference, startIndex int, startPosition time.Duration) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	if len(items) > 0 && (startIndex < domain.IndexUnset || startIndex >= len(items)) {
		p.mu.Unlock()
		return domain.ErrInvalidIndex
	}

	p.items = slices.Clone(items)
	p.order = shuffle.New(len(items), p.rnd)

	events := []domain.Event{domain.NewTimelineChangedEvent(domain.TimelinePlaylistChanged, len(items))}
	switch {
	case len(items) == 0:
		events = append(events, p.emptyLocked()...)
	default:
		if startIndex == domain.IndexUnset {
			startIndex = p.traversalLocked().First()
			startPosition = 0
		}
		events = append(events, p.moveToLocked(startIndex, startPosition, domain.TransitionPlaylistChanged, true)...)
	}
	p.mu.Unlock()

	p.emit(events)
	return nil
}

// AddMediaItems inserts items before index.
func (p *Player) AddMediaItems(index int, items []domain.MediaReference) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	n := len(p.items)
	if index < 0 || index > n {
		p.mu.Unlock()
		return domain.ErrInvalidIndex
	}
	if len(items) == 0 {
		p.mu.Unlock()
		return nil
	}

	p.items = slices.Insert(p.items, index, items...)
	if p.order.Len() == n {
		p.order = p.order.CloneAndInsert(index, len(items), p.rnd)
	} else {
		p.order = shuffle.New(len(p.items), p.rnd)
	}

	events := []domain.Event{domain.NewTimelineChangedEvent(domain.TimelinePlaylistChanged, len(p.items))}
	switch {
	case n == 0:
		events = append(events, p.moveToLocked(p.traversalLocked().First(), 0, domain.TransitionPlaylistChanged, true)...)
	case p.index >= index:
		p.index += len(items)
	}
	p.mu.Unlock()

	p.emit(events)
	return nil
}

// RemoveMediaItem removes the item at index.
func (p *Player) RemoveMediaItem(index int) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	n := len(p.items)
	if index < 0 || index >= n {
		p.mu.Unlock()
		return domain.ErrInvalidIndex
	}

	p.items = slices.Delete(p.items, index, index+1)
	if p.order.Len() == n {
		p.order = p.order.CloneAndRemove(index, index+1)
	} else {
		p.order = shuffle.New(len(p.items), p.rnd)
	}

	events := []domain.Event{domain.NewTimelineChangedEvent(domain.TimelinePlaylistChanged, len(p.items))}
	switch {
	case len(p.items) == 0:
		events = append(events, p.emptyLocked()...)
	case index < p.index:
		p.index--
	case index == p.index:
		// the following item takes the removed one's place
		events = append(events, p.moveToLocked(min(index, len(p.items)-1), 0, domain.TransitionPlaylistChanged, true)...)
	}
	p.mu.Unlock()

	p.emit(events)
	return nil
}

// ClearMediaItems empties the queue.
func (p *Player) ClearMediaItems() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	p.items = nil
	p.order = shuffle.Order{}

	events := []domain.Event{domain.NewTimelineChangedEvent(domain.TimelinePlaylistChanged, 0)}
	events = append(events, p.emptyLocked()...)
	p.mu.Unlock()

	p.emit(events)
	return nil
}

// MediaItems returns a copy of the queue in natural order.
func (p *Player) MediaItems() []domain.MediaReference {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.items)
}

// MediaItemCount returns the queue length.
func (p *Player) MediaItemCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// MediaItemAt returns the item at index.
func (p *Player) MediaItemAt(index int) (domain.MediaReference, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.items) {
		return domain.MediaReference{}, false
	}
	return p.items[index], true
}

// CurrentMediaItemIndex returns the current index or domain.IndexUnset.
func (p *Player) CurrentMediaItemIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// CurrentMediaItem returns the current item.
func (p *Player) CurrentMediaItem() (domain.MediaReference, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if item := p.currentLocked(); item != nil {
		return *item, true
	}
	return domain.MediaReference{}, false
}

// HasNextMediaItem reports whether SeekToNext would change item.
func (p *Player) HasNextMediaItem() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextLocked(explicitRepeat(p.repeat)) >= 0
}

// HasPreviousMediaItem reports whether SeekToPrevious could change item.
func (p *Player) HasPreviousMediaItem() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.previousLocked(explicitRepeat(p.repeat)) >= 0
}

// Prepare loads the current item.
func (p *Player) Prepare() {
	p.mu.Lock()
	if p.released || (p.prepared && p.err == nil) {
		p.mu.Unlock()
		return
	}
	p.prepared = true
	events := p.loadLocked()
	p.mu.Unlock()

	p.emit(events)
}

// SetPlayWhenReady requests play or pause.
func (p *Player) SetPlayWhenReady(play bool) {
	p.mu.Lock()
	if p.released || p.playWhenReady == play {
		p.mu.Unlock()
		return
	}
	p.playWhenReady = play
	p.mu.Unlock()

	p.emit([]domain.Event{domain.NewPlayWhenReadyChangedEvent(play)})
}

// PlayWhenReady returns the current play request.
func (p *Player) PlayWhenReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playWhenReady
}

// IsPlaying reports whether the position is advancing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPlayingLocked()
}

// SeekTo moves to index at position.
func (p *Player) SeekTo(index int, position time.Duration) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	if index < 0 || index >= len(p.items) {
		p.mu.Unlock()
		return domain.ErrInvalidIndex
	}
	if position < 0 {
		position = 0
	}
	events := p.moveToLocked(index, position, domain.TransitionSeek, false)
	p.mu.Unlock()

	p.emit(events)
	return nil
}

// SeekToPosition seeks inside the current item.
func (p *Player) SeekToPosition(position time.Duration) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	if p.index == domain.IndexUnset {
		p.mu.Unlock()
		return domain.ErrQueueEmpty
	}
	duration := p.durationLocked()
	if duration < 0 {
		p.mu.Unlock()
		return domain.ErrSeekUnsupported
	}
	if position < 0 {
		p.mu.Unlock()
		return domain.ErrInvalidPosition
	}
	p.position = min(position, duration)
	events := []domain.Event{domain.NewPositionDiscontinuityEvent(p.position)}
	p.mu.Unlock()

	p.emit(events)
	return nil
}

// SeekToNext moves to the next item in traversal order. It is a no-op at the end.
func (p *Player) SeekToNext() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	next := p.nextLocked(explicitRepeat(p.repeat))
	if next < 0 {
		p.mu.Unlock()
		return nil
	}
	events := p.moveToLocked(next, 0, domain.TransitionSeek, next == p.index)
	p.mu.Unlock()

	p.emit(events)
	return nil
}

// SeekToPrevious moves to the previous item, or restarts the current one
// when playback is already past the first few seconds.
func (p *Player) SeekToPrevious() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	if p.index == domain.IndexUnset {
		p.mu.Unlock()
		return nil
	}
	prev := p.previousLocked(explicitRepeat(p.repeat))

	var events []domain.Event
	if prev >= 0 && p.position <= previousRestartThreshold {
		events = p.moveToLocked(prev, 0, domain.TransitionSeek, prev == p.index)
	} else {
		p.position = 0
		events = []domain.Event{domain.NewPositionDiscontinuityEvent(0)}
	}
	p.mu.Unlock()

	p.emit(events)
	return nil
}

// ShuffleModeEnabled reports shuffle mode.
func (p *Player) ShuffleModeEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shuffle
}

// SetShuffleModeEnabled toggles shuffle traversal.
func (p *Player) SetShuffleModeEnabled(enabled bool) {
	p.mu.Lock()
	if p.released || p.shuffle == enabled {
		p.mu.Unlock()
		return
	}
	p.shuffle = enabled
	p.mu.Unlock()

	p.emit([]domain.Event{domain.NewShuffleModeChangedEvent(enabled)})
}

// SetShuffleOrder installs the permutation followed while shuffle is on.
// No timeline event is raised: the caller owns the order.
func (p *Player) SetShuffleOrder(order shuffle.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return ErrReleased
	}
	if !order.Valid(len(p.items)) {
		return domain.NewValidationError("shuffle_order", order.String(), "not a permutation of the queue")
	}
	p.order = order
	return nil
}

// ShuffleOrder returns the installed permutation.
func (p *Player) ShuffleOrder() shuffle.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order
}

// RepeatMode returns the repeat mode.
func (p *Player) RepeatMode() domain.RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repeat
}

// SetRepeatMode changes the repeat mode. Unknown modes are ignored.
func (p *Player) SetRepeatMode(mode domain.RepeatMode) {
	p.mu.Lock()
	if p.released || !mode.Valid() || p.repeat == mode {
		p.mu.Unlock()
		return
	}
	p.repeat = mode
	p.mu.Unlock()

	p.emit([]domain.Event{domain.NewRepeatModeChangedEvent(mode)})
}

// PlaybackSpeed returns the speed multiplier.
func (p *Player) PlaybackSpeed() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// SetPlaybackSpeed changes the speed multiplier.
func (p *Player) SetPlaybackSpeed(speed float32) error {
	if speed <= 0 {
		return domain.NewValidationError("speed", speed, "must be positive")
	}

	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	if p.speed == speed {
		p.mu.Unlock()
		return nil
	}
	p.speed = speed
	p.mu.Unlock()

	p.emit([]domain.Event{domain.NewPlaybackParametersChangedEvent(speed)})
	return nil
}

// SetScrubbingMode toggles low-latency seeking.
func (p *Player) SetScrubbingMode(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrubbing = enabled
}

// ScrubbingMode reports whether scrubbing mode is on.
func (p *Player) ScrubbingMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrubbing
}

// PlaybackState returns the lifecycle state.
func (p *Player) PlaybackState() domain.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CurrentPosition returns the position in the current item.
func (p *Player) CurrentPosition() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Duration returns the duration of the current item, negative when unknown.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index == domain.IndexUnset {
		return -1
	}
	return p.durationLocked()
}

// IsCurrentMediaItemSeekable reports whether the current item has a known duration.
func (p *Player) IsCurrentMediaItemSeekable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index != domain.IndexUnset && p.durationLocked() >= 0
}

// VideoSize returns 1280x720 for video items and zero for audio.
func (p *Player) VideoSize() (width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if item := p.currentLocked(); item != nil && item.IsVideo() {
		return 1280, 720
	}
	return 0, 0
}

// PlayerError returns the last playback error.
func (p *Player) PlayerError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// AudioSessionID returns the engine audio session.
func (p *Player) AudioSessionID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audioSessionID
}

// Release stops the player. Further mutations return ErrReleased.
func (p *Player) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil
	}
	p.released = true
	p.playWhenReady = false
	p.items = nil
	p.index = domain.IndexUnset
	p.state = domain.StateIdle
	p.logger.Debug("player released")
	return nil
}

// Simulation controls

// SetDuration overrides the duration of uri. A negative value makes the item
// unseekable.
func (p *Player) SetDuration(uri string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.durations[uri] = d
}

// SetUnplayable marks uri as failing to load.
func (p *Player) SetUnplayable(uri string, unplayable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if unplayable {
		p.unplayable[uri] = true
	} else {
		delete(p.unplayable, uri)
	}
}

// SetAudioSessionID simulates the engine opening a new audio session.
func (p *Player) SetAudioSessionID(id int) {
	p.mu.Lock()
	if p.audioSessionID == id {
		p.mu.Unlock()
		return
	}
	p.audioSessionID = id
	p.mu.Unlock()

	p.emit([]domain.Event{domain.NewAudioSessionIDChangedEvent(id)})
}

// InjectError fails the current item with err.
func (p *Player) InjectError(err error) {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	events := p.failLocked(err)
	p.mu.Unlock()

	p.emit(events)
}

// Advance moves the playback position by d scaled by the speed, as if that
// much wall time had passed. At the end of an item it follows the repeat mode.
func (p *Player) Advance(d time.Duration) {
	p.mu.Lock()
	if !p.isPlayingLocked() {
		p.mu.Unlock()
		return
	}

	p.position += time.Duration(float64(d) * float64(p.speed))
	duration := p.durationLocked()
	if duration < 0 || p.position < duration {
		p.mu.Unlock()
		return
	}

	var events []domain.Event
	switch next := p.nextLocked(p.repeat); {
	case p.repeat == domain.RepeatOne:
		events = p.moveToLocked(p.index, 0, domain.TransitionRepeat, true)
	case next >= 0:
		events = p.moveToLocked(next, 0, domain.TransitionAuto, next == p.index)
	default:
		p.position = duration
		events = p.setStateLocked(domain.StateEnded)
	}
	p.mu.Unlock()

	p.emit(events)
}

// internals, mu held

func (p *Player) currentLocked() *domain.MediaReference {
	if p.index < 0 || p.index >= len(p.items) {
		return nil
	}
	item := p.items[p.index]
	return &item
}

func (p *Player) durationLocked() time.Duration {
	item := p.currentLocked()
	if item == nil {
		return -1
	}
	if d, ok := p.durations[item.URI]; ok {
		return d
	}
	return p.defaultDuration
}

func (p *Player) isPlayingLocked() bool {
	return !p.released && p.playWhenReady && p.state == domain.StateReady && p.err == nil
}

// traversalLocked returns the order items are visited in. A shuffle order that
// no longer matches the queue falls back to natural order.
func (p *Player) traversalLocked() shuffle.Order {
	if p.shuffle && p.order.Len() == len(p.items) {
		return p.order
	}
	return shuffle.Identity(len(p.items))
}

func (p *Player) nextLocked(repeat domain.RepeatMode) int {
	if p.index == domain.IndexUnset {
		return -1
	}
	o := p.traversalLocked()
	next := o.Next(p.index)
	if next < 0 && repeat == domain.RepeatAll {
		next = o.First()
	}
	return next
}

func (p *Player) previousLocked(repeat domain.RepeatMode) int {
	if p.index == domain.IndexUnset {
		return -1
	}
	o := p.traversalLocked()
	prev := o.Previous(p.index)
	if prev < 0 && repeat == domain.RepeatAll {
		prev = o.Last()
	}
	return prev
}

// explicitRepeat maps the repeat mode for user-initiated skips, which move
// on even when a single item repeats.
func explicitRepeat(mode domain.RepeatMode) domain.RepeatMode {
	if mode == domain.RepeatOne {
		return domain.RepeatOff
	}
	return mode
}

// moveToLocked makes index current. force raises the transition even when the
// index is unchanged (repeat, or a removed item replaced at the same index).
func (p *Player) moveToLocked(index int, position time.Duration, reason domain.TransitionReason, force bool) []domain.Event {
	var events []domain.Event

	changed := force || index != p.index
	p.index = index
	p.position = position
	p.err = nil

	if changed {
		events = append(events, domain.NewMediaItemTransitionEvent(p.currentLocked(), index, reason))
	}
	events = append(events, domain.NewPositionDiscontinuityEvent(position))
	if p.prepared {
		events = append(events, p.loadLocked()...)
	}
	return events
}

func (p *Player) emptyLocked() []domain.Event {
	p.index = domain.IndexUnset
	p.position = 0
	p.err = nil

	events := []domain.Event{domain.NewMediaItemTransitionEvent(nil, domain.IndexUnset, domain.TransitionPlaylistChanged)}
	if p.prepared {
		events = append(events, p.setStateLocked(domain.StateEnded)...)
	}
	return events
}

// loadLocked simulates buffering the current item.
func (p *Player) loadLocked() []domain.Event {
	item := p.currentLocked()
	if item == nil {
		return p.setStateLocked(domain.StateEnded)
	}
	if p.unplayable[item.URI] {
		return p.failLocked(domain.NewPlayerError("prepare", item.URI, -1, "source error", domain.ErrUnplayable))
	}

	events := p.setStateLocked(domain.StateBuffering)
	return append(events, p.setStateLocked(domain.StateReady)...)
}

// failLocked puts the player in error. The error event is always the last one
// in the batch.
func (p *Player) failLocked(err error) []domain.Event {
	p.err = err
	events := p.setStateLocked(domain.StateIdle)
	p.logger.Debug("playback failed", slog.Any("error", err))
	return append(events, domain.NewPlayerErrorEvent(p.currentLocked(), err))
}

func (p *Player) setStateLocked(state domain.PlayerState) []domain.Event {
	if p.state == state {
		return nil
	}
	p.state = state
	return []domain.Event{domain.NewPlaybackStateChangedEvent(state)}
}

// Verify that Player implements the Player port
var _ ports.Player = (*Player)(nil)
