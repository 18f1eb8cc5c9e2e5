package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
)

// ErrRemoteClosed is returned by RemoteController calls after Close.
var ErrRemoteClosed = errors.New("remote controller closed")

// RemoteConfig tunes a RemoteController. Zero fields fall back to the defaults.
type RemoteConfig struct {
	// Debounce coalesces bursts of session events into one refresh.
	Debounce time.Duration

	// StopGrace keeps a stream's producer alive after its last subscriber left.
	StopGrace time.Duration

	// ScrubSettle is the pause between enabling scrubbing and seeking.
	ScrubSettle time.Duration

	// Retry is the wait before reconnecting after a failed connect.
	Retry time.Duration
}

// DefaultRemoteConfig returns the production configuration.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Debounce:    200 * time.Millisecond,
		StopGrace:   5 * time.Second,
		ScrubSettle: 50 * time.Millisecond,
		Retry:       500 * time.Millisecond,
	}
}

func (c RemoteConfig) withDefaults() RemoteConfig {
	def := DefaultRemoteConfig()
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.StopGrace <= 0 {
		c.StopGrace = def.StopGrace
	}
	if c.ScrubSettle <= 0 {
		c.ScrubSettle = def.ScrubSettle
	}
	if c.Retry <= 0 {
		c.Retry = def.Retry
	}
	return c
}

// stateEvents are the session events that change what NowPlaying shows.
var stateEvents = map[domain.EventType]bool{
	domain.EventPlayWhenReadyChanged:      true,
	domain.EventPlaybackStateChanged:      true,
	domain.EventPositionDiscontinuity:     true,
	domain.EventMediaItemTransition:       true,
	domain.EventTimelineChanged:           true,
	domain.EventShuffleModeChanged:        true,
	domain.EventRepeatModeChanged:         true,
	domain.EventPlaybackParametersChanged: true,
	domain.EventLikeChanged:               true,
	domain.EventStateInvalidated:          true,
}

// queueEvents are the session events that change the queue listing.
var queueEvents = map[domain.EventType]bool{
	domain.EventShuffleModeChanged: true,
	domain.EventTimelineChanged:    true,
	domain.EventChildrenChanged:    true,
}

func acceptTypes(types map[domain.EventType]bool) ports.EventFilter {
	return func(e domain.Event) bool { return types[e.Type()] }
}

// RemoteController is the client side of a session. It connects lazily,
// reconnects when the connection dies, and exposes the session as two hot
// streams plus a set of commands.
//
// Everything it starts is bound to the controller: Close stops the streams
// and releases the connection.
//
// Thread-safety: all methods are safe for concurrent use.
type RemoteController struct {
	logger  *slog.Logger
	connect ports.Connector
	cfg     RemoteConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	state *shared[*domain.NowPlaying]
	queue *shared[[]domain.MediaReference]

	mu     sync.Mutex
	conn   ports.SessionConnection
	closed bool
}

// NewRemoteController creates a controller. No connection is made until it
// is needed.
func NewRemoteController(logger *slog.Logger, connect ports.Connector, cfg RemoteConfig) *RemoteController {
	ctx, cancel := context.WithCancel(context.Background())
	r := &RemoteController{
		logger:  logger.With(slog.String("service", "remote")),
		connect: connect,
		cfg:     cfg.withDefaults(),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.state = newShared(ctx, &r.wg, r.cfg.StopGrace, r.produceState)
	r.queue = newShared(ctx, &r.wg, r.cfg.StopGrace, r.produceQueue)
	return r
}

// connection returns a live connection, opening a new one when needed.
func (r *RemoteController) connection(ctx context.Context) (ports.SessionConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRemoteClosed
	}
	if r.conn != nil && r.conn.IsAlive() {
		return r.conn, nil
	}
	if r.conn != nil {
		r.logger.Info("session connection lost, reconnecting")
	}

	conn, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	r.logger.Debug("connected to session", slog.String("connection", conn.ID()))
	return conn, nil
}

func (r *RemoteController) with(ctx context.Context, fn func(conn ports.SessionConnection) error) error {
	conn, err := r.connection(ctx)
	if err != nil {
		return err
	}
	return fn(conn)
}

// Streams

// State streams NowPlaying snapshots until ctx is done or the controller is
// closed. The latest snapshot is delivered first.
func (r *RemoteController) State(ctx context.Context) <-chan *domain.NowPlaying {
	return r.state.subscribe(ctx)
}

// Queue streams the queue in play order.
func (r *RemoteController) Queue(ctx context.Context) <-chan []domain.MediaReference {
	return r.queue.subscribe(ctx)
}

// Current returns the last state snapshot, nil before the first one.
func (r *RemoteController) Current() *domain.NowPlaying {
	np, _ := r.state.current()
	return np
}

// Snapshot reads the session state once, without subscribing.
func (r *RemoteController) Snapshot(ctx context.Context) (*domain.NowPlaying, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := conn.Snapshot()
	if err != nil {
		return nil, err
	}
	return NowPlayingFrom(snap, time.Now()), nil
}

// Items reads the queue in play order once.
func (r *RemoteController) Items(ctx context.Context) ([]domain.MediaReference, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}
	return conn.Children(domain.RootQueue)
}

// MediaItems reads the queue in natural order once. Indexes into it are what
// Add and IndexOf use.
func (r *RemoteController) MediaItems(ctx context.Context) ([]domain.MediaReference, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}
	return conn.MediaItems()
}

func (r *RemoteController) produceState(ctx context.Context, emit func(*domain.NowPlaying)) {
	r.follow(ctx, acceptTypes(stateEvents), func(conn ports.SessionConnection) {
		snap, err := conn.Snapshot()
		if err != nil {
			r.logger.Debug("state refresh failed", slog.Any("error", err))
			return
		}
		emit(NowPlayingFrom(snap, time.Now()))
	})
}

func (r *RemoteController) produceQueue(ctx context.Context, emit func([]domain.MediaReference)) {
	r.follow(ctx, acceptTypes(queueEvents), func(conn ports.SessionConnection) {
		items, err := conn.Children(domain.RootQueue)
		if err != nil {
			r.logger.Debug("queue refresh failed", slog.Any("error", err))
			return
		}
		emit(items)
	})
}

// follow keeps refresh running against a live connection until ctx is done.
func (r *RemoteController) follow(ctx context.Context, filter ports.EventFilter, refresh func(ports.SessionConnection)) {
	for ctx.Err() == nil {
		conn, err := r.connection(ctx)
		if err != nil {
			if errors.Is(err, ErrRemoteClosed) || ctx.Err() != nil {
				return
			}
			r.logger.Warn("failed to connect to session", slog.Any("error", err))
			if !sleepCtx(ctx, r.cfg.Retry) {
				return
			}
			continue
		}
		r.stream(ctx, conn, filter, refresh)
	}
}

// stream refreshes once, then on matching events. The first event after a
// quiet period refreshes immediately; later ones within Debounce are
// coalesced into a single refresh at the end of the window.
func (r *RemoteController) stream(ctx context.Context, conn ports.SessionConnection, filter ports.EventFilter, refresh func(ports.SessionConnection)) {
	signal := make(chan struct{}, 1)
	id, err := conn.Subscribe(filter, func(domain.Event) {
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return
	}
	defer conn.Unsubscribe(id)

	refresh(conn)

	var (
		timer   *time.Timer
		window  <-chan time.Time
		pending bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case <-signal:
			if window != nil {
				pending = true
				continue
			}
			refresh(conn)
			if timer == nil {
				timer = time.NewTimer(r.cfg.Debounce)
			} else {
				timer.Reset(r.cfg.Debounce)
			}
			window = timer.C
		case <-window:
			if !pending {
				window = nil
				continue
			}
			pending = false
			refresh(conn)
			timer.Reset(r.cfg.Debounce)
		}
	}
}

// NowPlayingFrom converts a session snapshot into the observer view.
func NowPlayingFrom(snap domain.PlayerSnapshot, at time.Time) *domain.NowPlaying {
	np := &domain.NowPlaying{
		Speed:         snap.Speed,
		Shuffle:       snap.Shuffle,
		Duration:      domain.TimeUnset,
		Position:      snap.Position.Milliseconds(),
		Favourite:     snap.Favourite,
		PlayWhenReady: snap.PlayWhenReady,
		State:         snap.State,
		Repeat:        snap.Repeat,
		VideoWidth:    snap.VideoWidth,
		VideoHeight:   snap.VideoHeight,
		Neighbours:    domain.Neighbours(snap.HasPrevious, snap.HasNext),
		SleepAt:       snap.SleepAt,
		Timestamp:     at,
	}
	if item := snap.Current; item != nil {
		np.Title = item.Title
		np.Subtitle = item.Subtitle
		np.ArtworkURI = item.ArtworkURI
		np.URI = item.URI
		np.MimeType = item.MimeType
	}
	if snap.Duration >= 0 {
		np.Duration = snap.Duration.Milliseconds()
	}
	if snap.Error != nil {
		np.Error = snap.Error.Error()
	}
	return np
}

// Playback

// Play prepares the player if needed and starts playback.
func (r *RemoteController) Play(ctx context.Context) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		if err := conn.Prepare(); err != nil {
			return err
		}
		return conn.SetPlayWhenReady(true)
	})
}

// Pause pauses playback.
func (r *RemoteController) Pause(ctx context.Context) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		return conn.SetPlayWhenReady(false)
	})
}

// TogglePlay pauses when playing and plays otherwise.
func (r *RemoteController) TogglePlay(ctx context.Context) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		snap, err := conn.Snapshot()
		if err != nil {
			return err
		}
		if snap.PlayWhenReady {
			return conn.SetPlayWhenReady(false)
		}
		if err := conn.Prepare(); err != nil {
			return err
		}
		return conn.SetPlayWhenReady(true)
	})
}

// Shuffle turns shuffle mode on or off.
func (r *RemoteController) Shuffle(ctx context.Context, enabled bool) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		return conn.SetShuffleModeEnabled(enabled)
	})
}

// SetRepeatMode changes the repeat mode.
func (r *RemoteController) SetRepeatMode(ctx context.Context, mode domain.RepeatMode) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		return conn.SetRepeatMode(mode)
	})
}

// CycleRepeatMode moves OFF -> ONE -> ALL -> OFF and returns the new mode.
func (r *RemoteController) CycleRepeatMode(ctx context.Context) (domain.RepeatMode, error) {
	var next domain.RepeatMode
	err := r.with(ctx, func(conn ports.SessionConnection) error {
		snap, err := conn.Snapshot()
		if err != nil {
			return err
		}
		next = snap.Repeat.Next()
		return conn.SetRepeatMode(next)
	})
	return next, err
}

// SeekTo moves to the item at index (natural order) at position.
func (r *RemoteController) SeekTo(ctx context.Context, index int, position time.Duration) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		return conn.SeekTo(index, position)
	})
}

// SeekToFraction seeks to a point of the current item given as a fraction of
// its duration. Scrubbing mode is on while the seek happens.
func (r *RemoteController) SeekToFraction(ctx context.Context, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return domain.NewValidationError("fraction", fraction, "must be within [0, 1]")
	}

	return r.with(ctx, func(conn ports.SessionConnection) error {
		snap, err := conn.Snapshot()
		if err != nil {
			return err
		}
		if snap.Duration < 0 {
			return domain.ErrDurationUnknown
		}
		if !snap.Seekable {
			return domain.ErrSeekUnsupported
		}

		if err := r.scrubbing(ctx, conn, true); err != nil {
			return err
		}
		defer func() {
			if err := r.scrubbing(context.WithoutCancel(ctx), conn, false); err != nil {
				r.logger.Warn("failed to leave scrubbing mode", slog.Any("error", err))
			}
		}()

		if !sleepCtx(ctx, r.cfg.ScrubSettle) {
			return ctx.Err()
		}
		return conn.SeekToPosition(time.Duration(fraction * float64(snap.Duration)))
	})
}

func (r *RemoteController) scrubbing(ctx context.Context, conn ports.SessionConnection, enabled bool) error {
	_, err := conn.Dispatch(ctx, domain.Command{Name: domain.CommandScrubbingMode, Enabled: enabled})
	return err
}

// SeekBy moves the position of the current item by delta, clamped to the item.
func (r *RemoteController) SeekBy(ctx context.Context, delta time.Duration) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		snap, err := conn.Snapshot()
		if err != nil {
			return err
		}
		if snap.Duration < 0 {
			return domain.ErrDurationUnknown
		}
		return conn.SeekToPosition(lo.Clamp(snap.Position+delta, 0, snap.Duration))
	})
}

// SkipToNext moves to the next item.
func (r *RemoteController) SkipToNext(ctx context.Context) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		return conn.SeekToNext()
	})
}

// SkipToPrevious moves to the previous item, or restarts the current one.
func (r *RemoteController) SkipToPrevious(ctx context.Context) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		return conn.SeekToPrevious()
	})
}

// SetPlaybackSpeed changes the speed multiplier.
func (r *RemoteController) SetPlaybackSpeed(ctx context.Context, speed float32) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		return conn.SetPlaybackSpeed(speed)
	})
}

// Queue edits

// SetMediaFiles replaces the queue with values, distinct by URI, and returns
// how many items were queued. index and position pick the starting point.
func (r *RemoteController) SetMediaFiles(ctx context.Context, values []domain.MediaReference, index int, position time.Duration) (int, error) {
	unique := lo.UniqBy(values, func(item domain.MediaReference) string { return item.URI })
	err := r.with(ctx, func(conn ports.SessionConnection) error {
		return conn.SetMediaItems(values, index, position)
	})
	if err != nil {
		return 0, err
	}
	return len(unique), nil
}

// Add inserts the values not queued yet before index (natural order) and
// returns how many were added. domain.IndexUnset appends; other indexes are
// clamped to the queue. An empty queue is replaced outright.
func (r *RemoteController) Add(ctx context.Context, values []domain.MediaReference, index int) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}

	conn, err := r.connection(ctx)
	if err != nil {
		return 0, err
	}
	queue, err := conn.MediaItems()
	if err != nil {
		return 0, err
	}
	if len(queue) == 0 {
		return r.SetMediaFiles(ctx, values, domain.IndexUnset, 0)
	}

	present := lo.SliceToMap(queue, func(item domain.MediaReference) (string, struct{}) {
		return item.URI, struct{}{}
	})
	fresh := lo.Reject(lo.UniqBy(values, func(item domain.MediaReference) string { return item.URI }),
		func(item domain.MediaReference, _ int) bool {
			_, queued := present[item.URI]
			return queued
		})
	if len(fresh) == 0 {
		return 0, nil
	}

	at := len(queue)
	if index != domain.IndexUnset {
		at = lo.Clamp(index, 0, len(queue))
	}
	if err := conn.AddMediaItems(at, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// Remove drops the item with uri. When it is playing, playback moves on to
// the next item first. It reports whether the item was queued.
func (r *RemoteController) Remove(ctx context.Context, uri string) (bool, error) {
	removed := false
	err := r.with(ctx, func(conn ports.SessionConnection) error {
		snap, err := conn.Snapshot()
		if err != nil {
			return err
		}
		items, err := conn.MediaItems()
		if err != nil {
			return err
		}
		index := indexOfURI(items, uri)
		if index == domain.IndexUnset {
			return nil
		}
		if index == snap.Index && snap.HasNext {
			if err := conn.SeekToNext(); err != nil {
				return err
			}
		}
		if err := conn.RemoveMediaItem(index); err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

// SkipTo starts the item with uri from the beginning. It reports whether the
// item was queued.
func (r *RemoteController) SkipTo(ctx context.Context, uri string) (bool, error) {
	found := false
	err := r.with(ctx, func(conn ports.SessionConnection) error {
		items, err := conn.MediaItems()
		if err != nil {
			return err
		}
		index := indexOfURI(items, uri)
		if index == domain.IndexUnset {
			return nil
		}
		found = true
		return conn.SeekTo(index, 0)
	})
	return found, err
}

// IndexOf returns the natural index of uri, or domain.IndexUnset.
func (r *RemoteController) IndexOf(ctx context.Context, uri string) (int, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return domain.IndexUnset, err
	}
	items, err := conn.MediaItems()
	if err != nil {
		return domain.IndexUnset, err
	}
	return indexOfURI(items, uri), nil
}

// Clear empties the queue.
func (r *RemoteController) Clear(ctx context.Context) error {
	return r.with(ctx, func(conn ports.SessionConnection) error {
		return conn.ClearMediaItems()
	})
}

func indexOfURI(items []domain.MediaReference, uri string) int {
	return slices.IndexFunc(items, func(item domain.MediaReference) bool { return item.URI == uri })
}

// Custom commands

func (r *RemoteController) dispatch(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	var result domain.CommandResult
	err := r.with(ctx, func(conn ports.SessionConnection) error {
		var err error
		result, err = conn.Dispatch(ctx, cmd)
		return err
	})
	return result, err
}

// ToggleLike flips the favourite membership of the current item and returns it.
func (r *RemoteController) ToggleLike(ctx context.Context) (bool, error) {
	result, err := r.dispatch(ctx, domain.Command{Name: domain.CommandToggleLike})
	return result.Favourite, err
}

// ScheduleSleep sets the sleep timer millis from now. 0 only reads it and
// domain.SleepUnset cancels it. It returns the milliseconds left, or
// domain.SleepUnset when no timer is set.
func (r *RemoteController) ScheduleSleep(ctx context.Context, millis int64) (int64, error) {
	result, err := r.dispatch(ctx, domain.Command{Name: domain.CommandScheduleSleepTime, SleepMillis: millis})
	if err != nil {
		return domain.SleepUnset, err
	}
	return result.SleepRemaining, nil
}

// EqualizerConfig stores cfg when it is not nil and returns the stored config.
func (r *RemoteController) EqualizerConfig(ctx context.Context, cfg *domain.EqualizerConfig) (domain.EqualizerConfig, error) {
	result, err := r.dispatch(ctx, domain.Command{Name: domain.CommandEqualizerConfig, Equalizer: cfg})
	return result.Equalizer, err
}

// AudioSessionID returns the audio session of the player.
func (r *RemoteController) AudioSessionID(ctx context.Context) (int, error) {
	result, err := r.dispatch(ctx, domain.Command{Name: domain.CommandAudioSessionID})
	return result.AudioSessionID, err
}

// Close stops the streams and releases the connection. It is idempotent.
func (r *RemoteController) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	r.state.shutdown()
	r.queue.shutdown()
	r.cancel()
	r.wg.Wait()

	if conn != nil {
		conn.Release()
	}
}

// sleepCtx waits for d and reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
