// Package domain defines events for the event-driven architecture.
// Player lifecycle callbacks and session signals are all delivered as events.
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Player lifecycle events
	EventMediaItemTransition       EventType = "player.media_item_transition"
	EventPlayWhenReadyChanged      EventType = "player.play_when_ready_changed"
	EventPlaybackStateChanged      EventType = "player.state_changed"
	EventShuffleModeChanged        EventType = "player.shuffle_mode_changed"
	EventRepeatModeChanged         EventType = "player.repeat_mode_changed"
	EventTimelineChanged           EventType = "player.timeline_changed"
	EventPlayerError               EventType = "player.error"
	EventAudioSessionIDChanged     EventType = "player.audio_session_id_changed"
	EventPositionDiscontinuity     EventType = "player.position_discontinuity"
	EventPlaybackParametersChanged EventType = "player.parameters_changed"

	// Session events
	EventStateInvalidated EventType = "session.state_invalidated"
	EventChildrenChanged  EventType = "session.children_changed"
	EventLikeChanged      EventType = "session.like_changed"
	EventNotice           EventType = "session.notice"
	EventStopRequested    EventType = "session.stop_requested"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// MediaItemTransitionEvent is published when the current item changes.
// Item is nil when the queue became empty.
type MediaItemTransitionEvent struct {
	baseEvent
	Item   *MediaReference
	Index  int
	Reason TransitionReason
}

// Type returns the event type.
func (e MediaItemTransitionEvent) Type() EventType {
	return EventMediaItemTransition
}

// NewMediaItemTransitionEvent creates a new MediaItemTransitionEvent.
func NewMediaItemTransitionEvent(item *MediaReference, index int, reason TransitionReason) MediaItemTransitionEvent {
	return MediaItemTransitionEvent{
		baseEvent: newBaseEvent(),
		Item:      item,
		Index:     index,
		Reason:    reason,
	}
}

// PlayWhenReadyChangedEvent is published when play/pause is requested.
type PlayWhenReadyChangedEvent struct {
	baseEvent
	PlayWhenReady bool
}

// Type returns the event type.
func (e PlayWhenReadyChangedEvent) Type() EventType {
	return EventPlayWhenReadyChanged
}

// NewPlayWhenReadyChangedEvent creates a new PlayWhenReadyChangedEvent.
func NewPlayWhenReadyChangedEvent(playWhenReady bool) PlayWhenReadyChangedEvent {
	return PlayWhenReadyChangedEvent{
		baseEvent:     newBaseEvent(),
		PlayWhenReady: playWhenReady,
	}
}

// PlaybackStateChangedEvent is published when the engine lifecycle state changes.
type PlaybackStateChangedEvent struct {
	baseEvent
	State PlayerState
}

// Type returns the event type.
func (e PlaybackStateChangedEvent) Type() EventType {
	return EventPlaybackStateChanged
}

// NewPlaybackStateChangedEvent creates a new PlaybackStateChangedEvent.
func NewPlaybackStateChangedEvent(state PlayerState) PlaybackStateChangedEvent {
	return PlaybackStateChangedEvent{
		baseEvent: newBaseEvent(),
		State:     state,
	}
}

// ShuffleModeChangedEvent is published when shuffle is toggled.
type ShuffleModeChangedEvent struct {
	baseEvent
	Enabled bool
}

// Type returns the event type.
func (e ShuffleModeChangedEvent) Type() EventType {
	return EventShuffleModeChanged
}

// NewShuffleModeChangedEvent creates a new ShuffleModeChangedEvent.
func NewShuffleModeChangedEvent(enabled bool) ShuffleModeChangedEvent {
	return ShuffleModeChangedEvent{
		baseEvent: newBaseEvent(),
		Enabled:   enabled,
	}
}

// RepeatModeChangedEvent is published when the repeat mode changes.
type RepeatModeChangedEvent struct {
	baseEvent
	Mode RepeatMode
}

// Type returns the event type.
func (e RepeatModeChangedEvent) Type() EventType {
	return EventRepeatModeChanged
}

// NewRepeatModeChangedEvent creates a new RepeatModeChangedEvent.
func NewRepeatModeChangedEvent(mode RepeatMode) RepeatModeChangedEvent {
	return RepeatModeChangedEvent{
		baseEvent: newBaseEvent(),
		Mode:      mode,
	}
}

// TimelineChangedEvent is published when the queue or its metadata changes.
type TimelineChangedEvent struct {
	baseEvent
	Reason TimelineChangeReason
	Count  int
}

// Type returns the event type.
func (e TimelineChangedEvent) Type() EventType {
	return EventTimelineChanged
}

// NewTimelineChangedEvent creates a new TimelineChangedEvent.
func NewTimelineChangedEvent(reason TimelineChangeReason, count int) TimelineChangedEvent {
	return TimelineChangedEvent{
		baseEvent: newBaseEvent(),
		Reason:    reason,
		Count:     count,
	}
}

// PlayerErrorEvent is published when the engine fails to play an item.
type PlayerErrorEvent struct {
	baseEvent
	Item  *MediaReference
	Error error
}

// Type returns the event type.
func (e PlayerErrorEvent) Type() EventType {
	return EventPlayerError
}

// NewPlayerErrorEvent creates a new PlayerErrorEvent.
func NewPlayerErrorEvent(item *MediaReference, err error) PlayerErrorEvent {
	return PlayerErrorEvent{
		baseEvent: newBaseEvent(),
		Item:      item,
		Error:     err,
	}
}

// AudioSessionIDChangedEvent is published when the engine opens a new audio session.
type AudioSessionIDChangedEvent struct {
	baseEvent
	AudioSessionID int
}

// Type returns the event type.
func (e AudioSessionIDChangedEvent) Type() EventType {
	return EventAudioSessionIDChanged
}

// NewAudioSessionIDChangedEvent creates a new AudioSessionIDChangedEvent.
func NewAudioSessionIDChangedEvent(id int) AudioSessionIDChangedEvent {
	return AudioSessionIDChangedEvent{
		baseEvent:      newBaseEvent(),
		AudioSessionID: id,
	}
}

// PositionDiscontinuityEvent is published after a seek or an automatic jump.
type PositionDiscontinuityEvent struct {
	baseEvent
	Position time.Duration
}

// Type returns the event type.
func (e PositionDiscontinuityEvent) Type() EventType {
	return EventPositionDiscontinuity
}

// NewPositionDiscontinuityEvent creates a new PositionDiscontinuityEvent.
func NewPositionDiscontinuityEvent(position time.Duration) PositionDiscontinuityEvent {
	return PositionDiscontinuityEvent{
		baseEvent: newBaseEvent(),
		Position:  position,
	}
}

// PlaybackParametersChangedEvent is published when the speed changes.
type PlaybackParametersChangedEvent struct {
	baseEvent
	Speed float32
}

// Type returns the event type.
func (e PlaybackParametersChangedEvent) Type() EventType {
	return EventPlaybackParametersChanged
}

// NewPlaybackParametersChangedEvent creates a new PlaybackParametersChangedEvent.
func NewPlaybackParametersChangedEvent(speed float32) PlaybackParametersChangedEvent {
	return PlaybackParametersChangedEvent{
		baseEvent: newBaseEvent(),
		Speed:     speed,
	}
}

// StateInvalidatedEvent asks observers to recompute their snapshot. The session
// raises it for changes that produce no player callback (likes, sleep timer).
type StateInvalidatedEvent struct {
	baseEvent
	Reason string
}

// Type returns the event type.
func (e StateInvalidatedEvent) Type() EventType {
	return EventStateInvalidated
}

// NewStateInvalidatedEvent creates a new StateInvalidatedEvent.
func NewStateInvalidatedEvent(reason string) StateInvalidatedEvent {
	return StateInvalidatedEvent{
		baseEvent: newBaseEvent(),
		Reason:    reason,
	}
}

// ChildrenChangedEvent tells browsers that the children of ParentID changed.
type ChildrenChangedEvent struct {
	baseEvent
	ParentID string
}

// Type returns the event type.
func (e ChildrenChangedEvent) Type() EventType {
	return EventChildrenChanged
}

// NewChildrenChangedEvent creates a new ChildrenChangedEvent.
func NewChildrenChangedEvent(parentID string) ChildrenChangedEvent {
	return ChildrenChangedEvent{
		baseEvent: newBaseEvent(),
		ParentID:  parentID,
	}
}

// LikeChangedEvent updates the like/unlike affordance for the current item.
type LikeChangedEvent struct {
	baseEvent
	URI       string
	Favourite bool
}

// Type returns the event type.
func (e LikeChangedEvent) Type() EventType {
	return EventLikeChanged
}

// NewLikeChangedEvent creates a new LikeChangedEvent.
func NewLikeChangedEvent(uri string, favourite bool) LikeChangedEvent {
	return LikeChangedEvent{
		baseEvent: newBaseEvent(),
		URI:       uri,
		Favourite: favourite,
	}
}

// NoticeEvent carries a short user-facing message (a toast).
type NoticeEvent struct {
	baseEvent
	Message string
}

// Type returns the event type.
func (e NoticeEvent) Type() EventType {
	return EventNotice
}

// NewNoticeEvent creates a new NoticeEvent.
func NewNoticeEvent(message string) NoticeEvent {
	return NoticeEvent{
		baseEvent: newBaseEvent(),
		Message:   message,
	}
}

// StopRequestedEvent is published when the session wants the host to shut it down.
type StopRequestedEvent struct {
	baseEvent
}

// Type returns the event type.
func (e StopRequestedEvent) Type() EventType {
	return EventStopRequested
}

// NewStopRequestedEvent creates a new StopRequestedEvent.
func NewStopRequestedEvent() StopRequestedEvent {
	return StopRequestedEvent{baseEvent: newBaseEvent()}
}
