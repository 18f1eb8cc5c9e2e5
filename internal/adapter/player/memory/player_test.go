package memory

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunesession/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/logger"
	"github.com/tejashwikalptaru/tunesession/internal/shuffle"
)

// recorder collects every event published on the bus.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) handle(e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type()
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) last(eventType domain.EventType) domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type() == eventType {
			return r.events[i]
		}
	}
	return nil
}

func newTestPlayer(t *testing.T) (*Player, *eventbus.SyncEventBus, *recorder) {
	t.Helper()

	bus := eventbus.NewSyncEventBus()
	t.Cleanup(func() { bus.Close() })

	rec := &recorder{}
	bus.SubscribeAll(rec.handle)

	p := NewPlayer(bus, logger.NewTestLogger(), WithRand(rand.New(rand.NewPCG(7, 11))))
	return p, bus, rec
}

func items(names ...string) []domain.MediaReference {
	out := make([]domain.MediaReference, len(names))
	for i, n := range names {
		out[i] = domain.MediaReference{URI: fmt.Sprintf("file:///music/%s.mp3", n), Title: n, MimeType: "audio/mpeg"}
	}
	return out
}

func TestNewPlayer(t *testing.T) {
	p, _, _ := newTestPlayer(t)

	assert.Equal(t, domain.StateIdle, p.PlaybackState())
	assert.Equal(t, domain.IndexUnset, p.CurrentMediaItemIndex())
	assert.Equal(t, float32(1), p.PlaybackSpeed())
	assert.Equal(t, DefaultAudioSessionID, p.AudioSessionID())
	assert.False(t, p.IsPlaying())
	assert.Negative(t, p.Duration())
}

func TestSetMediaItems(t *testing.T) {
	p, _, rec := newTestPlayer(t)

	require.NoError(t, p.SetMediaItems(items("a", "b", "c"), 1, 5*time.Second))

	assert.Equal(t, 3, p.MediaItemCount())
	assert.Equal(t, 1, p.CurrentMediaItemIndex())
	assert.Equal(t, 5*time.Second, p.CurrentPosition())
	assert.Equal(t, []domain.EventType{
		domain.EventTimelineChanged,
		domain.EventMediaItemTransition,
		domain.EventPositionDiscontinuity,
	}, rec.types())

	transition := rec.last(domain.EventMediaItemTransition).(domain.MediaItemTransitionEvent)
	assert.Equal(t, "b", transition.Item.Title)
	assert.Equal(t, domain.TransitionPlaylistChanged, transition.Reason)
	assert.True(t, p.ShuffleOrder().Valid(3))
}

func TestSetMediaItems_InvalidIndex(t *testing.T) {
	p, _, _ := newTestPlayer(t)

	assert.ErrorIs(t, p.SetMediaItems(items("a"), 3, 0), domain.ErrInvalidIndex)
	assert.Equal(t, 0, p.MediaItemCount())
}

func TestPrepareAndPlay(t *testing.T) {
	p, _, rec := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a", "b"), domain.IndexUnset, 0))
	rec.reset()

	p.Prepare()
	p.SetPlayWhenReady(true)

	assert.Equal(t, domain.StateReady, p.PlaybackState())
	assert.True(t, p.IsPlaying())
	assert.Equal(t, []domain.EventType{
		domain.EventPlaybackStateChanged,
		domain.EventPlaybackStateChanged,
		domain.EventPlayWhenReadyChanged,
	}, rec.types())

	// Repeated requests are not re-announced
	rec.reset()
	p.SetPlayWhenReady(true)
	assert.Empty(t, rec.types())
}

func TestPrepare_EmptyQueueEnds(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	p.Prepare()
	assert.Equal(t, domain.StateEnded, p.PlaybackState())
}

func TestAdvance_AutoTransitionAndEnd(t *testing.T) {
	p, _, rec := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a", "b"), 0, 0))
	p.SetDuration("file:///music/a.mp3", 10*time.Second)
	p.SetDuration("file:///music/b.mp3", 10*time.Second)
	p.Prepare()
	p.SetPlayWhenReady(true)

	p.Advance(4 * time.Second)
	assert.Equal(t, 4*time.Second, p.CurrentPosition())

	p.Advance(6 * time.Second)
	assert.Equal(t, 1, p.CurrentMediaItemIndex())
	transition := rec.last(domain.EventMediaItemTransition).(domain.MediaItemTransitionEvent)
	assert.Equal(t, domain.TransitionAuto, transition.Reason)

	p.Advance(10 * time.Second)
	assert.Equal(t, domain.StateEnded, p.PlaybackState())
	assert.False(t, p.IsPlaying())
}

func TestAdvance_RepeatModes(t *testing.T) {
	t.Run("one repeats the item", func(t *testing.T) {
		p, _, rec := newTestPlayer(t)
		require.NoError(t, p.SetMediaItems(items("a", "b"), 0, 0))
		p.SetRepeatMode(domain.RepeatOne)
		p.Prepare()
		p.SetPlayWhenReady(true)

		p.Advance(DefaultDuration)
		assert.Equal(t, 0, p.CurrentMediaItemIndex())
		assert.Equal(t, time.Duration(0), p.CurrentPosition())
		transition := rec.last(domain.EventMediaItemTransition).(domain.MediaItemTransitionEvent)
		assert.Equal(t, domain.TransitionRepeat, transition.Reason)
	})

	t.Run("all wraps around", func(t *testing.T) {
		p, _, _ := newTestPlayer(t)
		require.NoError(t, p.SetMediaItems(items("a", "b"), 1, 0))
		p.SetRepeatMode(domain.RepeatAll)
		p.Prepare()
		p.SetPlayWhenReady(true)

		p.Advance(DefaultDuration)
		assert.Equal(t, 0, p.CurrentMediaItemIndex())
		assert.True(t, p.IsPlaying())
	})
}

func TestAdvance_Speed(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a"), 0, 0))
	p.Prepare()
	p.SetPlayWhenReady(true)
	require.NoError(t, p.SetPlaybackSpeed(2))

	p.Advance(time.Second)
	assert.Equal(t, 2*time.Second, p.CurrentPosition())

	assert.Error(t, p.SetPlaybackSpeed(0))
}

func TestSeekToNextAndPrevious(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a", "b", "c"), 0, 0))

	assert.False(t, p.HasPreviousMediaItem())
	assert.True(t, p.HasNextMediaItem())

	require.NoError(t, p.SeekToNext())
	require.NoError(t, p.SeekToNext())
	assert.Equal(t, 2, p.CurrentMediaItemIndex())
	assert.False(t, p.HasNextMediaItem())

	// No-op at the end with repeat off
	require.NoError(t, p.SeekToNext())
	assert.Equal(t, 2, p.CurrentMediaItemIndex())

	// Repeat one still lets the user skip; repeat all wraps
	p.SetRepeatMode(domain.RepeatOne)
	assert.False(t, p.HasNextMediaItem())
	p.SetRepeatMode(domain.RepeatAll)
	assert.True(t, p.HasNextMediaItem())
	require.NoError(t, p.SeekToNext())
	assert.Equal(t, 0, p.CurrentMediaItemIndex())

	require.NoError(t, p.SeekToPrevious())
	assert.Equal(t, 2, p.CurrentMediaItemIndex())
}

func TestSeekToPrevious_RestartsPastThreshold(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a", "b"), 1, 30*time.Second))

	require.NoError(t, p.SeekToPrevious())
	assert.Equal(t, 1, p.CurrentMediaItemIndex())
	assert.Equal(t, time.Duration(0), p.CurrentPosition())

	require.NoError(t, p.SeekToPrevious())
	assert.Equal(t, 0, p.CurrentMediaItemIndex())
}

func TestShuffleTraversal(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a", "b", "c"), 2, 0))

	order, err := shuffle.FromIndices([]int{2, 0, 1})
	require.NoError(t, err)
	require.NoError(t, p.SetShuffleOrder(order))
	p.SetShuffleModeEnabled(true)

	require.NoError(t, p.SeekToNext())
	assert.Equal(t, 0, p.CurrentMediaItemIndex())
	require.NoError(t, p.SeekToNext())
	assert.Equal(t, 1, p.CurrentMediaItemIndex())
	assert.False(t, p.HasNextMediaItem())

	// Natural traversal once shuffle is off
	p.SetShuffleModeEnabled(false)
	assert.True(t, p.HasNextMediaItem())
}

func TestSetShuffleOrder_RejectsWrongLength(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a", "b"), 0, 0))

	var verr *domain.ValidationError
	assert.ErrorAs(t, p.SetShuffleOrder(shuffle.Identity(3)), &verr)
}

func TestAddMediaItems(t *testing.T) {
	p, _, rec := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a", "b"), 1, 0))
	rec.reset()

	require.NoError(t, p.AddMediaItems(0, items("x", "y")))
	assert.Equal(t, 4, p.MediaItemCount())
	assert.Equal(t, 3, p.CurrentMediaItemIndex(), "current item keeps its identity")
	assert.True(t, p.ShuffleOrder().Valid(4))
	assert.Equal(t, []domain.EventType{domain.EventTimelineChanged}, rec.types())

	assert.ErrorIs(t, p.AddMediaItems(9, items("z")), domain.ErrInvalidIndex)
}

func TestAddMediaItems_ToEmptyQueue(t *testing.T) {
	p, _, rec := newTestPlayer(t)

	require.NoError(t, p.AddMediaItems(0, items("a")))
	assert.Equal(t, 0, p.CurrentMediaItemIndex())
	assert.NotNil(t, rec.last(domain.EventMediaItemTransition))
}

func TestRemoveMediaItem(t *testing.T) {
	p, _, rec := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a", "b", "c"), 1, 0))

	require.NoError(t, p.RemoveMediaItem(0))
	assert.Equal(t, 0, p.CurrentMediaItemIndex())
	assert.True(t, p.ShuffleOrder().Valid(2))

	rec.reset()
	require.NoError(t, p.RemoveMediaItem(0))
	current, ok := p.CurrentMediaItem()
	require.True(t, ok)
	assert.Equal(t, "c", current.Title)
	assert.NotNil(t, rec.last(domain.EventMediaItemTransition))

	require.NoError(t, p.RemoveMediaItem(0))
	assert.Equal(t, domain.IndexUnset, p.CurrentMediaItemIndex())
	_, ok = p.CurrentMediaItem()
	assert.False(t, ok)

	assert.ErrorIs(t, p.RemoveMediaItem(0), domain.ErrInvalidIndex)
}

func TestClearMediaItems(t *testing.T) {
	p, _, rec := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a", "b"), 0, 0))
	p.Prepare()

	require.NoError(t, p.ClearMediaItems())
	assert.Equal(t, 0, p.MediaItemCount())
	assert.Equal(t, domain.StateEnded, p.PlaybackState())

	transition := rec.last(domain.EventMediaItemTransition).(domain.MediaItemTransitionEvent)
	assert.Nil(t, transition.Item)
}

func TestUnplayableItem(t *testing.T) {
	p, _, rec := newTestPlayer(t)
	p.SetUnplayable("file:///music/b.mp3", true)
	require.NoError(t, p.SetMediaItems(items("a", "b", "c"), 0, 0))
	p.Prepare()
	rec.reset()

	require.NoError(t, p.SeekToNext())

	assert.Equal(t, domain.StateIdle, p.PlaybackState())
	assert.ErrorIs(t, p.PlayerError(), domain.ErrUnplayable)
	types := rec.types()
	assert.Equal(t, domain.EventPlayerError, types[len(types)-1])

	// Skipping recovers
	require.NoError(t, p.SeekToNext())
	assert.NoError(t, p.PlayerError())
	assert.Equal(t, domain.StateReady, p.PlaybackState())
}

func TestInjectError(t *testing.T) {
	p, _, rec := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a"), 0, 0))

	boom := errors.New("decoder crashed")
	p.InjectError(boom)

	ev := rec.last(domain.EventPlayerError).(domain.PlayerErrorEvent)
	assert.ErrorIs(t, ev.Error, boom)
	assert.Equal(t, "a", ev.Item.Title)
}

func TestSeekToPosition(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	assert.ErrorIs(t, p.SeekToPosition(time.Second), domain.ErrQueueEmpty)

	require.NoError(t, p.SetMediaItems(items("a", "live"), 0, 0))
	require.NoError(t, p.SeekToPosition(time.Hour))
	assert.Equal(t, DefaultDuration, p.CurrentPosition())
	assert.ErrorIs(t, p.SeekToPosition(-time.Second), domain.ErrInvalidPosition)

	p.SetDuration("file:///music/live.mp3", -1)
	require.NoError(t, p.SeekTo(1, 0))
	assert.False(t, p.IsCurrentMediaItemSeekable())
	assert.ErrorIs(t, p.SeekToPosition(time.Second), domain.ErrSeekUnsupported)
}

func TestVideoSize(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems([]domain.MediaReference{{URI: "file:///v.mp4", MimeType: "video/mp4"}}, 0, 0))

	w, h := p.VideoSize()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
}

func TestAudioSessionID(t *testing.T) {
	p, _, rec := newTestPlayer(t)

	p.SetAudioSessionID(42)
	assert.Equal(t, 42, p.AudioSessionID())
	ev := rec.last(domain.EventAudioSessionIDChanged).(domain.AudioSessionIDChangedEvent)
	assert.Equal(t, 42, ev.AudioSessionID)
}

func TestReentrantHandler(t *testing.T) {
	p, bus, _ := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a", "b", "c"), 0, 0))
	p.Prepare()

	// A handler that calls back into the player must not deadlock
	bus.Subscribe(domain.EventPlayerError, func(domain.Event) {
		_ = p.SeekToNext()
	})
	p.InjectError(errors.New("bad frame"))

	assert.Equal(t, 1, p.CurrentMediaItemIndex())
	assert.NoError(t, p.PlayerError())
}

func TestRelease(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	require.NoError(t, p.SetMediaItems(items("a"), 0, 0))

	require.NoError(t, p.Release())
	require.NoError(t, p.Release())

	assert.ErrorIs(t, p.SetMediaItems(items("b"), 0, 0), ErrReleased)
	assert.ErrorIs(t, p.SeekToNext(), ErrReleased)
	assert.Equal(t, 0, p.MediaItemCount())
}
