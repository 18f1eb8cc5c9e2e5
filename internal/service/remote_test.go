package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunesession/internal/adapter/player/memory"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/logger"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
	"github.com/tejashwikalptaru/tunesession/internal/testutil"
)

func testRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Debounce:    20 * time.Millisecond,
		StopGrace:   50 * time.Millisecond,
		ScrubSettle: time.Millisecond,
		Retry:       10 * time.Millisecond,
	}
}

// Helper to create a remote controller on a fresh session. Both are torn
// down when the test ends; deferred leak checks must be registered first.
func newRemoteFixture(t *testing.T) (*RemoteController, *sessionFixture) {
	t.Helper()

	f := newSessionFixture(t, openTestDB(t))
	remote := NewRemoteController(logger.NewTestLogger(), f.session.Connect, testRemoteConfig())
	return remote, f
}

// await reads ch until match accepts a value.
func await[T any](t *testing.T, ch <-chan T, match func(T) bool) T {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			require.True(t, ok, "stream closed")
			if match(v) {
				return v
			}
		case <-timeout:
			t.Fatal("timed out waiting for stream value")
			var zero T
			return zero
		}
	}
}

func TestRemote_StateStream(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote, f := newRemoteFixture(t)
	defer f.session.Release()
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states := remote.State(ctx)
	first := await(t, states, func(*domain.NowPlaying) bool { return true })
	assert.Empty(t, first.URI)
	assert.Equal(t, domain.NeighboursNone, first.Neighbours)

	items := testReferences("a", "b", "c")
	n, err := remote.SetMediaFiles(ctx, items, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	np := await(t, states, func(np *domain.NowPlaying) bool { return np.URI == items[1].URI })
	assert.Equal(t, items[1].Title, np.Title)
	assert.Equal(t, domain.NeighboursBoth, np.Neighbours)
	assert.Equal(t, memory.DefaultDuration.Milliseconds(), np.Duration)

	require.NoError(t, remote.Play(ctx))
	await(t, states, func(np *domain.NowPlaying) bool { return np.IsPlaying() && np.State == domain.StateReady })

	require.NoError(t, remote.TogglePlay(ctx))
	await(t, states, func(np *domain.NowPlaying) bool { return !np.PlayWhenReady })

	require.NotNil(t, remote.Current())
}

func TestRemote_QueueStreamFollowsShuffle(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote, f := newRemoteFixture(t)
	defer f.session.Release()
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	items := testReferences("a", "b", "c", "d", "e", "f", "g", "h")
	_, err := remote.SetMediaFiles(ctx, items, 0, 0)
	require.NoError(t, err)

	queue := remote.Queue(ctx)
	await(t, queue, func(q []domain.MediaReference) bool { return assert.ObjectsAreEqual(items, q) })

	require.NoError(t, remote.Shuffle(ctx, true))
	children, err := f.session.Children(domain.RootQueue)
	require.NoError(t, err)
	assert.ElementsMatch(t, items, children)

	await(t, queue, func(q []domain.MediaReference) bool { return assert.ObjectsAreEqual(children, q) })

	natural, err := remote.MediaItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, natural, "shuffling leaves the natural order alone")
	played, err := remote.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, children, played)
}

func TestRemote_Add(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote, f := newRemoteFixture(t)
	defer f.session.Release()
	defer remote.Close()
	ctx := context.Background()

	a, b, c, d := createTestReference("a"), createTestReference("b"), createTestReference("c"), createTestReference("d")

	// an empty queue is replaced outright
	n, err := remote.Add(ctx, []domain.MediaReference{a, b, a}, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []domain.MediaReference{a, b}, f.player.MediaItems())

	// queued items are skipped, IndexUnset appends
	n, err = remote.Add(ctx, []domain.MediaReference{b, c}, domain.IndexUnset)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []domain.MediaReference{a, b, c}, f.player.MediaItems())

	// out of range indexes are clamped
	n, err = remote.Add(ctx, []domain.MediaReference{d}, -7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []domain.MediaReference{d, a, b, c}, f.player.MediaItems())

	n, err = remote.Add(ctx, []domain.MediaReference{a, d}, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = remote.Add(ctx, nil, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemote_RemoveAndSkip(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote, f := newRemoteFixture(t)
	defer f.session.Release()
	defer remote.Close()
	ctx := context.Background()

	a, b, c := createTestReference("a"), createTestReference("b"), createTestReference("c")
	_, err := remote.SetMediaFiles(ctx, []domain.MediaReference{a, b, c}, 0, 0)
	require.NoError(t, err)

	removed, err := remote.Remove(ctx, a.URI)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []domain.MediaReference{b, c}, f.player.MediaItems())
	current, ok := f.player.CurrentMediaItem()
	require.True(t, ok)
	assert.Equal(t, b, current)

	removed, err = remote.Remove(ctx, a.URI)
	require.NoError(t, err)
	assert.False(t, removed)

	found, err := remote.SkipTo(ctx, c.URI)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, f.player.CurrentMediaItemIndex())

	found, err = remote.SkipTo(ctx, "file:///missing.mp3")
	require.NoError(t, err)
	assert.False(t, found)

	index, err := remote.IndexOf(ctx, c.URI)
	require.NoError(t, err)
	assert.Equal(t, 1, index)

	require.NoError(t, remote.SkipToPrevious(ctx))
	assert.Equal(t, 0, f.player.CurrentMediaItemIndex())
	require.NoError(t, remote.SkipToNext(ctx))
	assert.Equal(t, 1, f.player.CurrentMediaItemIndex())

	require.NoError(t, remote.Clear(ctx))
	assert.Zero(t, f.player.MediaItemCount())
	index, err = remote.IndexOf(ctx, c.URI)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexUnset, index)
}

func TestRemote_Seeking(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote, f := newRemoteFixture(t)
	defer f.session.Release()
	defer remote.Close()
	ctx := context.Background()

	a, b := createTestReference("a"), createTestReference("b")
	f.player.SetDuration(a.URI, 100*time.Second)
	_, err := remote.SetMediaFiles(ctx, []domain.MediaReference{a, b}, 0, 0)
	require.NoError(t, err)

	require.NoError(t, remote.SeekToFraction(ctx, 0.5))
	assert.Equal(t, 50*time.Second, f.player.CurrentPosition())
	assert.False(t, f.player.ScrubbingMode())

	require.NoError(t, remote.SeekBy(ctx, 10*time.Second))
	assert.Equal(t, 60*time.Second, f.player.CurrentPosition())
	require.NoError(t, remote.SeekBy(ctx, -2*time.Minute))
	assert.Zero(t, f.player.CurrentPosition())
	require.NoError(t, remote.SeekBy(ctx, 5*time.Minute))
	assert.Equal(t, 100*time.Second, f.player.CurrentPosition())

	var validation *domain.ValidationError
	assert.ErrorAs(t, remote.SeekToFraction(ctx, -0.1), &validation)

	require.NoError(t, remote.SeekTo(ctx, 1, 3*time.Second))
	assert.Equal(t, 1, f.player.CurrentMediaItemIndex())
	assert.Equal(t, 3*time.Second, f.player.CurrentPosition())

	f.player.SetDuration(b.URI, -1)
	assert.ErrorIs(t, remote.SeekToFraction(ctx, 0.5), domain.ErrDurationUnknown)
	assert.ErrorIs(t, remote.SeekBy(ctx, time.Second), domain.ErrDurationUnknown)
}

func TestRemote_Modes(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote, f := newRemoteFixture(t)
	defer f.session.Release()
	defer remote.Close()
	ctx := context.Background()

	for _, expected := range []domain.RepeatMode{domain.RepeatOne, domain.RepeatAll, domain.RepeatOff} {
		mode, err := remote.CycleRepeatMode(ctx)
		require.NoError(t, err)
		assert.Equal(t, expected, mode)
		assert.Equal(t, expected, f.player.RepeatMode())
	}

	require.NoError(t, remote.SetRepeatMode(ctx, domain.RepeatAll))
	assert.Equal(t, domain.RepeatAll, f.player.RepeatMode())

	require.NoError(t, remote.SetPlaybackSpeed(ctx, 1.5))
	assert.InDelta(t, 1.5, f.player.PlaybackSpeed(), 0.001)

	require.NoError(t, remote.Shuffle(ctx, true))
	assert.True(t, f.player.ShuffleModeEnabled())
}

func TestRemote_CustomCommands(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote, f := newRemoteFixture(t)
	defer f.session.Release()
	defer remote.Close()
	ctx := context.Background()

	_, err := remote.SetMediaFiles(ctx, testReferences("a"), 0, 0)
	require.NoError(t, err)

	liked, err := remote.ToggleLike(ctx)
	require.NoError(t, err)
	assert.True(t, liked)

	remaining, err := remote.ScheduleSleep(ctx, 30_000)
	require.NoError(t, err)
	assert.Equal(t, int64(30_000), remaining)
	remaining, err = remote.ScheduleSleep(ctx, domain.SleepUnset)
	require.NoError(t, err)
	assert.Equal(t, domain.SleepUnset, remaining)

	cfg, err := remote.EqualizerConfig(ctx, nil)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)

	id, err := remote.AudioSessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.player.AudioSessionID(), id)
}

func TestRemote_ReconnectsAfterConnectionDies(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote, f := newRemoteFixture(t)
	defer f.session.Release()
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states := remote.State(ctx)
	await(t, states, func(*domain.NowPlaying) bool { return true })

	conn, err := remote.connection(ctx)
	require.NoError(t, err)
	conn.Release()

	_, err = remote.SetMediaFiles(ctx, testReferences("a"), 0, 0)
	require.NoError(t, err)

	replacement, err := remote.connection(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, conn.ID(), replacement.ID())

	// the stream moved over to the new connection
	await(t, states, func(np *domain.NowPlaying) bool { return np.URI == createTestReference("a").URI })
}

func TestRemote_RetriesFailedConnect(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newSessionFixture(t, openTestDB(t))
	defer f.session.Release()

	var attempts atomic.Int32
	connect := func(ctx context.Context) (ports.SessionConnection, error) {
		if attempts.Add(1) <= 2 {
			return nil, errors.New("service not bound yet")
		}
		return f.session.Connect(ctx)
	}
	remote := NewRemoteController(logger.NewTestLogger(), connect, testRemoteConfig())
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	await(t, remote.State(ctx), func(*domain.NowPlaying) bool { return true })
	assert.GreaterOrEqual(t, attempts.Load(), int32(3))
}

func TestRemote_StreamGracePeriod(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote, f := newRemoteFixture(t)
	defer f.session.Release()
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	states := remote.State(ctx)
	first := await(t, states, func(*domain.NowPlaying) bool { return true })
	cancel()

	// a subscriber arriving within the grace period reuses the producer and
	// gets the latest value straight away
	assert.True(t, remote.state.active())
	again, stop := context.WithCancel(context.Background())
	replay := await(t, remote.State(again), func(*domain.NowPlaying) bool { return true })
	assert.Equal(t, first.Timestamp, replay.Timestamp)
	stop()

	assert.Eventually(t, func() bool { return !remote.state.active() }, time.Second, 5*time.Millisecond)
}

func TestRemote_Close(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote, f := newRemoteFixture(t)
	defer f.session.Release()

	ctx := context.Background()
	states := remote.State(ctx)
	await(t, states, func(*domain.NowPlaying) bool { return true })

	conn, err := remote.connection(ctx)
	require.NoError(t, err)

	remote.Close()
	remote.Close()

	assert.False(t, conn.IsAlive())
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-states:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, remote.Play(ctx), ErrRemoteClosed)
	_, ok := <-remote.Queue(ctx)
	assert.False(t, ok)
}

func TestNowPlayingFrom(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	item := createTestReference("a")

	np := NowPlayingFrom(domain.PlayerSnapshot{
		Current:       &item,
		Index:         0,
		PlayWhenReady: true,
		State:         domain.StateReady,
		Position:      1500 * time.Millisecond,
		Duration:      -1,
		Speed:         1,
		Favourite:     true,
		Error:         errors.New("boom"),
		HasNext:       true,
		SleepAt:       domain.SleepUnset,
	}, at)

	assert.Equal(t, item.URI, np.URI)
	assert.Equal(t, item.Title, np.Title)
	assert.Equal(t, domain.TimeUnset, np.Duration)
	assert.Equal(t, int64(1500), np.Position)
	assert.Equal(t, domain.NeighboursNextOnly, np.Neighbours)
	assert.Equal(t, "boom", np.Error)
	assert.True(t, np.Favourite)
	assert.True(t, np.IsPlaying())
	assert.Equal(t, at, np.Timestamp)
	assert.Equal(t, time.Duration(-1), np.SleepRemaining(at))
}

// countingConnection counts the state refreshes made through it.
type countingConnection struct {
	ports.SessionConnection
	snapshots atomic.Int32
}

func (c *countingConnection) Snapshot() (domain.PlayerSnapshot, error) {
	c.snapshots.Add(1)
	return c.SessionConnection.Snapshot()
}

func TestRemote_StateDebounce(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newSessionFixture(t, openTestDB(t))
	defer f.session.Release()

	var conn atomic.Pointer[countingConnection]
	connect := func(ctx context.Context) (ports.SessionConnection, error) {
		inner, err := f.session.Connect(ctx)
		if err != nil {
			return nil, err
		}
		c := &countingConnection{SessionConnection: inner}
		conn.Store(c)
		return c, nil
	}
	cfg := testRemoteConfig()
	cfg.Debounce = 200 * time.Millisecond
	remote := NewRemoteController(logger.NewTestLogger(), connect, cfg)
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states := remote.State(ctx)
	await(t, states, func(*domain.NowPlaying) bool { return true })
	refreshes := func() int32 { return conn.Load().snapshots.Load() }
	require.Equal(t, int32(1), refreshes())

	// the first event of a burst refreshes straight away
	f.session.Invalidate("burst")
	require.Eventually(t, func() bool { return refreshes() == 2 }, cfg.Debounce/2, time.Millisecond)

	// the rest of the burst lands inside the window and collapses into one
	// trailing refresh that carries the final state
	for range 3 {
		f.session.Invalidate("burst")
	}
	f.player.SetRepeatMode(domain.RepeatAll)
	assert.Equal(t, int32(2), refreshes())

	np := await(t, states, func(np *domain.NowPlaying) bool { return np.Repeat == domain.RepeatAll })
	assert.Equal(t, domain.RepeatAll, np.Repeat)
	assert.Equal(t, int32(3), refreshes())

	// nothing else is pending once the window runs out
	time.Sleep(2 * cfg.Debounce)
	assert.Equal(t, int32(3), refreshes())

	// after a quiet period a single event refreshes immediately again
	f.session.Invalidate("single")
	require.Eventually(t, func() bool { return refreshes() == 4 }, cfg.Debounce/2, time.Millisecond)
	time.Sleep(2 * cfg.Debounce)
	assert.Equal(t, int32(4), refreshes())
}
