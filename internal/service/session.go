package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
	"github.com/tejashwikalptaru/tunesession/internal/shuffle"
)

const (
	// DefaultPositionInterval is how often the bookmark is saved while playing.
	DefaultPositionInterval = 5 * time.Second

	// DefaultEqualizerReinitDelay separates an EQUALIZER_CONFIG write from the
	// equalizer picking it up.
	DefaultEqualizerReinitDelay = 100 * time.Millisecond

	noticeUnplayable = "Unplayable file"
)

// SessionConfig tunes a Session. Zero fields fall back to the defaults.
type SessionConfig struct {
	PositionInterval     time.Duration
	EqualizerReinitDelay time.Duration

	// Now is the wall clock behind the sleep timer.
	Now func() time.Time

	// Rand generates shuffle orders.
	Rand *rand.Rand
}

// DefaultSessionConfig returns the production configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PositionInterval:     DefaultPositionInterval,
		EqualizerReinitDelay: DefaultEqualizerReinitDelay,
		Now:                  time.Now,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	def := DefaultSessionConfig()
	if c.PositionInterval <= 0 {
		c.PositionInterval = def.PositionInterval
	}
	if c.EqualizerReinitDelay <= 0 {
		c.EqualizerReinitDelay = def.EqualizerReinitDelay
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

// likeState caches the favourite membership of the item that was current
// when it was looked up.
type likeState struct {
	uri       string
	favourite bool
}

// Session owns the player, the queue and its shuffle order, and keeps the
// persisted state in step with what the player does.
//
// Player callbacks arrive through the event bus on the goroutine that drove
// the player. Persistence is handed to a single Writer so no handler waits on
// the database.
//
// Thread-safety: all methods are safe for concurrent use. mu is never held
// while calling the player.
type Session struct {
	// Dependencies (injected)
	logger     *slog.Logger
	player     ports.Player
	bus        ports.FilteringEventBus
	store      *QueueStore
	prefs      *PreferenceService
	equalizers ports.EqualizerFactory
	writer     *Writer
	cfg        SessionConfig

	// ctx bounds the monitor and delayed work; cancelled by Release.
	// jobCtx outlives it so queued writes still land while draining.
	ctx    context.Context
	cancel context.CancelFunc
	jobCtx context.Context
	wg     sync.WaitGroup

	mu            sync.Mutex
	order         shuffle.Order
	pendingOrder  *shuffle.Order
	sleepAt       int64
	liked         likeState
	errorStreak   int
	stopMonitor   context.CancelFunc
	subscriptions []domain.SubscriptionID
	connections   map[string]*Connection
	released      bool

	// eqMu guards equalizer and eqReleased
	eqMu       sync.Mutex
	equalizer  ports.Equalizer
	eqReleased bool
}

// NewSession restores the persisted session into player and starts
// listening to its callbacks. Restore problems are logged and skipped.
// equalizers may be nil when audio effects are unsupported.
func NewSession(
	ctx context.Context,
	logger *slog.Logger,
	player ports.Player,
	bus ports.FilteringEventBus,
	store *QueueStore,
	prefs *PreferenceService,
	equalizers ports.EqualizerFactory,
	cfg SessionConfig,
) *Session {
	cfg = cfg.withDefaults()
	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s := &Session{
		logger:      logger.With(slog.String("service", "session")),
		player:      player,
		bus:         bus,
		store:       store,
		prefs:       prefs,
		equalizers:  equalizers,
		writer:      NewWriter(logger),
		cfg:         cfg,
		ctx:         lifetime,
		cancel:      cancel,
		jobCtx:      context.WithoutCancel(ctx),
		sleepAt:     domain.SleepUnset,
		connections: make(map[string]*Connection),
	}

	s.restore(ctx)
	return s
}

// restore loads the persisted state. Subscriptions are only made once the
// player holds the restored queue, so restoring never writes anything back.
func (s *Session) restore(ctx context.Context) {
	s.player.SetShuffleModeEnabled(s.prefs.Shuffle())
	s.player.SetRepeatMode(s.prefs.RepeatMode())

	items, err := s.store.LoadQueue(ctx)
	if err != nil {
		s.logger.Warn("failed to load queue", slog.Any("error", err))
	}
	if len(items) > 0 {
		if err := s.player.SetMediaItems(items, 0, 0); err != nil {
			s.logger.Warn("failed to restore queue", slog.Any("error", err))
		}
	}
	count := s.player.MediaItemCount()

	s.mu.Lock()
	order, outcome, err := shuffle.Restore(s.prefs.ShuffleOrder(), count, s.cfg.Rand)
	s.order = order
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("stored shuffle order unreadable", slog.Any("error", err))
	}
	if outcome == shuffle.Regenerated {
		s.logger.Info("stored shuffle order did not match the queue, regenerated", slog.Int("items", count))
	}
	if err := s.player.SetShuffleOrder(order); err != nil {
		s.logger.Warn("failed to install shuffle order", slog.Any("error", err))
	}

	if index := s.prefs.Index(); index != domain.IndexUnset && index < count {
		s.restorePosition(ctx, index)
	}

	s.subscribe()
	s.initEqualizer(domain.LocalAudioSessionID)

	s.logger.Info("session restored",
		slog.Int("items", count),
		slog.Int("index", s.player.CurrentMediaItemIndex()))
	s.Invalidate("restored")
}

// restorePosition seeks to the bookmark and drops the current item when it
// came from another app; such grants do not survive a restart.
func (s *Session) restorePosition(ctx context.Context, index int) {
	position := time.Duration(0)
	if bookmark := s.prefs.Bookmark(); bookmark != domain.TimeUnset {
		position = time.Duration(bookmark) * time.Millisecond
	}
	if err := s.player.SeekTo(index, position); err != nil {
		s.logger.Warn("failed to restore position", slog.Int("index", index), slog.Any("error", err))
		return
	}

	item, ok := s.player.CurrentMediaItem()
	if !ok || !item.IsThirdParty() {
		return
	}
	s.logger.Info("dropping third-party item from restored queue", slog.String("uri", item.URI))

	s.mu.Lock()
	s.order = s.order.CloneAndRemove(index, index+1)
	order := s.order
	s.mu.Unlock()

	if err := s.player.RemoveMediaItem(index); err != nil {
		s.logger.Warn("failed to drop third-party item", slog.Any("error", err))
		return
	}
	if err := s.player.SetShuffleOrder(order); err != nil {
		s.logger.Warn("failed to install shuffle order", slog.Any("error", err))
	}

	items := s.player.MediaItems()
	current := s.player.CurrentMediaItemIndex()
	if err := s.store.UpsertQueue(ctx, items); err != nil {
		s.logger.Warn("failed to save queue", slog.Any("error", err))
	}
	if err := s.prefs.SetShuffleOrder(order.String()); err != nil {
		s.logger.Warn("failed to save shuffle order", slog.Any("error", err))
	}
	if err := s.prefs.SetIndex(current); err != nil {
		s.logger.Warn("failed to save index", slog.Any("error", err))
	}
}

func (s *Session) subscribe() {
	handlers := map[domain.EventType]domain.EventHandler{
		domain.EventMediaItemTransition:   s.onMediaItemTransition,
		domain.EventShuffleModeChanged:    s.onShuffleModeChanged,
		domain.EventRepeatModeChanged:     s.onRepeatModeChanged,
		domain.EventTimelineChanged:       s.onTimelineChanged,
		domain.EventPlayerError:           s.onPlayerError,
		domain.EventPlayWhenReadyChanged:  s.onPlayWhenReadyChanged,
		domain.EventAudioSessionIDChanged: s.onAudioSessionIDChanged,
		domain.EventPlaybackStateChanged:  s.onPlaybackStateChanged,
	}

	ids := make([]domain.SubscriptionID, 0, len(handlers))
	for eventType, handler := range handlers {
		ids = append(ids, s.bus.Subscribe(eventType, handler))
	}

	s.mu.Lock()
	s.subscriptions = ids
	s.mu.Unlock()
}

// Event handlers

func (s *Session) onMediaItemTransition(event domain.Event) {
	e, ok := event.(domain.MediaItemTransitionEvent)
	if !ok {
		return
	}

	index := e.Index
	s.writer.Submit("save index", func() error { return s.prefs.SetIndex(index) })
	s.bus.Publish(domain.NewChildrenChangedEvent(domain.RootQueue))

	if e.Item == nil {
		s.setLiked(likeState{})
		return
	}
	item := *e.Item
	if item.IsThirdParty() || item.IsVideo() {
		s.setLiked(likeState{uri: item.URI})
		return
	}

	s.writer.Submit("record recent", func() error {
		favourite, err := s.store.IsFavourite(s.jobCtx, item.URI)
		if err != nil {
			return err
		}
		s.setLiked(likeState{uri: item.URI, favourite: favourite})
		s.bus.Publish(domain.NewLikeChangedEvent(item.URI, favourite))

		return s.store.RecentUpsert(s.jobCtx, item, s.prefs.RecentLimit())
	})
}

func (s *Session) onShuffleModeChanged(event domain.Event) {
	e, ok := event.(domain.ShuffleModeChangedEvent)
	if !ok {
		return
	}

	enabled := e.Enabled
	s.writer.Submit("save shuffle", func() error { return s.prefs.SetShuffle(enabled) })

	if enabled {
		count := s.player.MediaItemCount()
		s.mu.Lock()
		order, regenerated := s.order.Reconcile(count, s.cfg.Rand)
		s.order = order
		s.mu.Unlock()
		if regenerated {
			s.installOrder(order)
		}
	}

	s.bus.Publish(domain.NewChildrenChangedEvent(domain.RootQueue))
}

func (s *Session) onRepeatModeChanged(event domain.Event) {
	e, ok := event.(domain.RepeatModeChangedEvent)
	if !ok {
		return
	}
	mode := e.Mode
	s.writer.Submit("save repeat mode", func() error { return s.prefs.SetRepeatMode(mode) })
}

func (s *Session) onTimelineChanged(event domain.Event) {
	e, ok := event.(domain.TimelineChangedEvent)
	if !ok || e.Reason != domain.TimelinePlaylistChanged {
		return
	}

	items := s.player.MediaItems()

	s.mu.Lock()
	order := s.nextOrderLocked(len(items))
	s.order = order
	s.mu.Unlock()

	if err := s.player.SetShuffleOrder(order); err != nil {
		s.logger.Warn("failed to install shuffle order", slog.Any("error", err))
	}
	s.bus.Publish(domain.NewChildrenChangedEvent(domain.RootQueue))

	encoded := order.String()
	s.writer.Submit("save queue", func() error { return s.store.UpsertQueue(s.jobCtx, items) })
	s.writer.Submit("save shuffle order", func() error { return s.prefs.SetShuffleOrder(encoded) })
}

// nextOrderLocked picks the order for a queue of n items: the one prepared by
// the structural edit that caused the change, otherwise the current order if
// it still fits, otherwise a fresh one.
func (s *Session) nextOrderLocked(n int) shuffle.Order {
	pending := s.pendingOrder
	s.pendingOrder = nil
	if pending != nil && pending.Valid(n) {
		return *pending
	}

	order, regenerated := s.order.Reconcile(n, s.cfg.Rand)
	if regenerated {
		s.logger.Debug("shuffle order regenerated", slog.Int("items", n))
	}
	return order
}

func (s *Session) installOrder(order shuffle.Order) {
	if err := s.player.SetShuffleOrder(order); err != nil {
		s.logger.Warn("failed to install shuffle order", slog.Any("error", err))
		return
	}
	encoded := order.String()
	s.writer.Submit("save shuffle order", func() error { return s.prefs.SetShuffleOrder(encoded) })
}

func (s *Session) onPlayerError(event domain.Event) {
	e, ok := event.(domain.PlayerErrorEvent)
	if !ok {
		return
	}

	uri := ""
	if e.Item != nil {
		uri = e.Item.URI
	}
	s.logger.Warn("playback error", slog.String("uri", uri), slog.Any("error", e.Error))
	s.bus.Publish(domain.NewNoticeEvent(noticeUnplayable))

	// Every item failing in a row would otherwise skip forever under RepeatAll.
	s.mu.Lock()
	s.errorStreak++
	streak := s.errorStreak
	s.mu.Unlock()
	if streak >= s.player.MediaItemCount() {
		s.logger.Warn("no playable item left in queue", slog.Int("failures", streak))
		return
	}

	if err := s.player.SeekToNext(); err != nil {
		s.logger.Warn("failed to skip unplayable item", slog.Any("error", err))
	}
}

func (s *Session) onPlaybackStateChanged(event domain.Event) {
	e, ok := event.(domain.PlaybackStateChangedEvent)
	if !ok || e.State != domain.StateReady {
		return
	}
	s.mu.Lock()
	s.errorStreak = 0
	s.mu.Unlock()
}

func (s *Session) onPlayWhenReadyChanged(event domain.Event) {
	e, ok := event.(domain.PlayWhenReadyChangedEvent)
	if !ok {
		return
	}

	if e.PlayWhenReady {
		s.startMonitor()
		return
	}

	s.mu.Lock()
	if s.stopMonitor != nil {
		s.stopMonitor()
		s.stopMonitor = nil
	}
	s.sleepAt = domain.SleepUnset
	s.mu.Unlock()

	s.Invalidate("paused")
}

func (s *Session) onAudioSessionIDChanged(event domain.Event) {
	e, ok := event.(domain.AudioSessionIDChangedEvent)
	if !ok {
		return
	}
	s.initEqualizer(e.AudioSessionID)
}

// Invalidate tells observers to recompute their view of the session. It is
// raised for changes the player itself does not report.
func (s *Session) Invalidate(reason string) {
	s.bus.Publish(domain.NewStateInvalidatedEvent(reason))
}

func (s *Session) setLiked(state likeState) {
	s.mu.Lock()
	s.liked = state
	s.mu.Unlock()
}

// Position monitor

// startMonitor replaces any running monitor. A monitor that was cancelled but
// has not noticed yet never acts again.
func (s *Session) startMonitor() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	if s.stopMonitor != nil {
		s.stopMonitor()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.stopMonitor = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.monitor(ctx)
}

// monitor saves the bookmark and fires the sleep timer, once right away and
// then every PositionInterval for as long as the player keeps playing.
func (s *Session) monitor(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PositionInterval)
	defer ticker.Stop()

	for {
		position := s.player.CurrentPosition().Milliseconds()
		s.writer.Submit("save bookmark", func() error { return s.prefs.SetBookmark(position) })

		if s.sleepElapsed() {
			s.logger.Info("sleep timer elapsed, pausing")
			s.player.SetPlayWhenReady(false)
			s.Invalidate("sleep timer elapsed")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil || !s.player.IsPlaying() {
			return
		}
	}
}

// sleepElapsed clears and reports a sleep timer that is due.
func (s *Session) sleepElapsed() bool {
	now := s.cfg.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sleepAt == domain.SleepUnset || s.sleepAt > now {
		return false
	}
	s.sleepAt = domain.SleepUnset
	return true
}

// Equalizer

// initEqualizer recreates the equalizer for a new audio session. The local
// sentinel only reapplies the saved settings to the existing one.
func (s *Session) initEqualizer(audioSessionID int) {
	if s.equalizers == nil {
		return
	}

	cfg := s.prefs.EqualizerConfig()
	target := audioSessionID
	if target == domain.LocalAudioSessionID {
		target = s.player.AudioSessionID()
	}

	s.eqMu.Lock()
	defer s.eqMu.Unlock()

	if s.eqReleased {
		return
	}
	if s.equalizer == nil || audioSessionID != domain.LocalAudioSessionID {
		if s.equalizer != nil {
			if err := s.equalizer.Release(); err != nil {
				s.logger.Warn("failed to release equalizer", slog.Any("error", err))
			}
			s.equalizer = nil
		}
		eq, err := s.equalizers(target)
		if err != nil {
			s.logger.Warn("audio effects unavailable", slog.Int("audio_session_id", target), slog.Any("error", err))
			return
		}
		s.equalizer = eq
		s.logger.Debug("equalizer created", slog.Int("audio_session_id", target))
	}

	if err := s.equalizer.SetEnabled(cfg.Enabled); err != nil {
		s.logger.Warn("failed to toggle equalizer", slog.Any("error", err))
	}
	if strings.TrimSpace(cfg.Properties) == "" {
		return
	}
	settings, err := domain.ParseEqualizerSettings(cfg.Properties)
	if err != nil {
		s.logger.Warn("stored equalizer settings unreadable", slog.Any("error", err))
		return
	}
	if err := s.equalizer.Apply(settings); err != nil {
		s.logger.Warn("failed to apply equalizer settings", slog.Any("error", err))
	}
}

func (s *Session) scheduleEqualizerReinit() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(s.cfg.EqualizerReinitDelay)
		defer timer.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}
		s.initEqualizer(domain.LocalAudioSessionID)
	}()
}

// Queue edits made on behalf of connections. Each prepares the shuffle order
// the resulting timeline change should install.

// SetMediaItems replaces the queue. Duplicate URIs are dropped and startIndex
// keeps pointing at the item it named.
func (s *Session) SetMediaItems(items []domain.MediaReference, startIndex int, startPosition time.Duration) error {
	if s.isReleased() {
		return domain.ErrSessionReleased
	}

	unique := lo.UniqBy(items, func(item domain.MediaReference) string { return item.URI })
	if startIndex >= 0 && startIndex < len(items) {
		uri := items[startIndex].URI
		startIndex = slices.IndexFunc(unique, func(item domain.MediaReference) bool { return item.URI == uri })
	}

	s.mu.Lock()
	order := shuffle.New(len(unique), s.cfg.Rand)
	s.pendingOrder = &order
	s.mu.Unlock()
	defer s.clearPendingOrder()

	if startIndex == domain.IndexUnset && len(unique) > 0 && s.player.ShuffleModeEnabled() {
		startIndex, startPosition = order.First(), 0
	}
	return s.player.SetMediaItems(unique, startIndex, startPosition)
}

// AddMediaItems inserts the items whose URI is not queued yet before index.
func (s *Session) AddMediaItems(index int, items []domain.MediaReference) error {
	if s.isReleased() {
		return domain.ErrSessionReleased
	}

	queued := s.player.MediaItems()
	present := lo.SliceToMap(queued, func(item domain.MediaReference) (string, struct{}) {
		return item.URI, struct{}{}
	})
	fresh := lo.Filter(lo.UniqBy(items, func(item domain.MediaReference) string { return item.URI }),
		func(item domain.MediaReference, _ int) bool {
			_, dup := present[item.URI]
			return !dup
		})
	if len(fresh) == 0 {
		return nil
	}

	s.mu.Lock()
	if index >= 0 && index <= len(queued) && s.order.Valid(len(queued)) {
		order := s.order.CloneAndInsert(index, len(fresh), s.cfg.Rand)
		s.pendingOrder = &order
	}
	s.mu.Unlock()
	defer s.clearPendingOrder()

	return s.player.AddMediaItems(index, fresh)
}

// RemoveMediaItem removes the item at index.
func (s *Session) RemoveMediaItem(index int) error {
	if s.isReleased() {
		return domain.ErrSessionReleased
	}

	count := s.player.MediaItemCount()
	s.mu.Lock()
	if index >= 0 && index < count && s.order.Valid(count) {
		order := s.order.CloneAndRemove(index, index+1)
		s.pendingOrder = &order
	}
	s.mu.Unlock()
	defer s.clearPendingOrder()

	return s.player.RemoveMediaItem(index)
}

// ClearMediaItems empties the queue.
func (s *Session) ClearMediaItems() error {
	if s.isReleased() {
		return domain.ErrSessionReleased
	}
	return s.player.ClearMediaItems()
}

func (s *Session) clearPendingOrder() {
	s.mu.Lock()
	s.pendingOrder = nil
	s.mu.Unlock()
}

// Queries

// MediaItems returns the queue in natural order.
func (s *Session) MediaItems() []domain.MediaReference {
	return s.player.MediaItems()
}

// Children returns the browse children of parentID. The queue root lists the
// items in the order they will play.
func (s *Session) Children(parentID string) ([]domain.MediaReference, error) {
	if parentID != domain.RootQueue {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownParent, parentID)
	}

	items := s.player.MediaItems()
	if !s.player.ShuffleModeEnabled() {
		return items, nil
	}

	s.mu.Lock()
	order := s.order
	s.mu.Unlock()
	if !order.Valid(len(items)) {
		return items, nil
	}
	return lo.Map(order.Indices(), func(i int, _ int) domain.MediaReference { return items[i] }), nil
}

// Item looks up a queued item by URI.
func (s *Session) Item(uri string) (domain.MediaReference, bool) {
	return lo.Find(s.player.MediaItems(), func(item domain.MediaReference) bool { return item.URI == uri })
}

// Snapshot reads the player state in one call.
func (s *Session) Snapshot() domain.PlayerSnapshot {
	item, ok := s.player.CurrentMediaItem()
	width, height := s.player.VideoSize()

	snap := domain.PlayerSnapshot{
		Index:         s.player.CurrentMediaItemIndex(),
		Count:         s.player.MediaItemCount(),
		PlayWhenReady: s.player.PlayWhenReady(),
		State:         s.player.PlaybackState(),
		Position:      s.player.CurrentPosition(),
		Duration:      s.player.Duration(),
		Speed:         s.player.PlaybackSpeed(),
		Shuffle:       s.player.ShuffleModeEnabled(),
		Repeat:        s.player.RepeatMode(),
		Error:         s.player.PlayerError(),
		VideoWidth:    width,
		VideoHeight:   height,
		HasNext:       s.player.HasNextMediaItem(),
		HasPrevious:   s.player.HasPreviousMediaItem(),
		Seekable:      s.player.IsCurrentMediaItemSeekable(),
	}
	if ok {
		snap.Current = &item
	}

	s.mu.Lock()
	snap.SleepAt = s.sleepAt
	snap.Favourite = ok && s.liked.uri == item.URI && s.liked.favourite
	s.mu.Unlock()

	return snap
}

// ShuffleOrder returns the order the session installed in the player.
func (s *Session) ShuffleOrder() shuffle.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order
}

// Transport shortcuts

// HandleAction runs a transport shortcut. fraction is only read by
// ActionSeekTo and is a position relative to the item duration.
func (s *Session) HandleAction(action domain.Action, fraction float64) error {
	if s.isReleased() {
		return domain.ErrSessionReleased
	}

	switch action {
	case domain.ActionTogglePlay:
		if s.player.PlayWhenReady() {
			s.player.SetPlayWhenReady(false)
			return nil
		}
		s.player.Prepare()
		s.player.SetPlayWhenReady(true)
		return nil
	case domain.ActionNext:
		return s.player.SeekToNext()
	case domain.ActionPrevious:
		return s.player.SeekToPrevious()
	case domain.ActionSeekTo:
		if fraction < 0 || fraction > 1 {
			return domain.NewValidationError("fraction", fraction, "must be within [0, 1]")
		}
		duration := s.player.Duration()
		if duration < 0 {
			return domain.ErrDurationUnknown
		}
		return s.player.SeekToPosition(time.Duration(fraction * float64(duration)))
	default:
		return domain.NewValidationError("action", action, "unknown action")
	}
}

// Lifecycle

// SaveState writes index, bookmark, shuffle order and queue behind any
// pending writes, and waits for it.
func (s *Session) SaveState(ctx context.Context) error {
	if s.isReleased() {
		return domain.ErrSessionReleased
	}

	index := s.player.CurrentMediaItemIndex()
	bookmark := s.player.CurrentPosition().Milliseconds()
	items := s.player.MediaItems()
	order := s.ShuffleOrder().String()

	return s.writer.Do(ctx, "save state", func() error {
		return errors.Join(
			s.prefs.SetIndex(index),
			s.prefs.SetBookmark(bookmark),
			s.prefs.SetShuffleOrder(order),
			s.store.UpsertQueue(ctx, items),
		)
	})
}

// TaskRemoved pauses playback and, when the user asked for it, stops the
// session altogether.
func (s *Session) TaskRemoved() {
	if s.isReleased() {
		return
	}
	s.player.SetPlayWhenReady(false)

	if !s.prefs.StopOnTaskRemoved() {
		return
	}
	s.logger.Info("task removed, stopping session")
	s.bus.Publish(domain.NewStopRequestedEvent())
	s.Release()
}

// Release stops listening, closes every connection, waits for background
// work, and frees the player and the equalizer. It is idempotent.
func (s *Session) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	subscriptions := s.subscriptions
	s.subscriptions = nil
	connections := lo.Values(s.connections)
	s.connections = make(map[string]*Connection)
	if s.stopMonitor != nil {
		s.stopMonitor()
		s.stopMonitor = nil
	}
	s.mu.Unlock()

	for _, id := range subscriptions {
		s.bus.Unsubscribe(id)
	}
	for _, conn := range connections {
		conn.close()
	}

	s.cancel()
	s.wg.Wait()
	s.writer.Close()

	if err := s.player.Release(); err != nil {
		s.logger.Warn("failed to release player", slog.Any("error", err))
	}

	s.eqMu.Lock()
	s.eqReleased = true
	if s.equalizer != nil {
		if err := s.equalizer.Release(); err != nil {
			s.logger.Warn("failed to release equalizer", slog.Any("error", err))
		}
		s.equalizer = nil
	}
	s.eqMu.Unlock()

	s.logger.Info("session released")
}

func (s *Session) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
