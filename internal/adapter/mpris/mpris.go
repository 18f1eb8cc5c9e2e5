//go:build linux

// Package mpris publishes the playback session on the D-Bus session bus so
// desktop media keys and applets can drive it.
package mpris

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
)

const (
	busName     = "tunesession"
	callTimeout = 2 * time.Second
)

// Controller is the part of the remote controller the adapter drives.
type Controller interface {
	State(ctx context.Context) <-chan *domain.NowPlaying
	Snapshot(ctx context.Context) (*domain.NowPlaying, error)

	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	TogglePlay(ctx context.Context) error
	SkipToNext(ctx context.Context) error
	SkipToPrevious(ctx context.Context) error
	SeekBy(ctx context.Context, delta time.Duration) error
	SeekToFraction(ctx context.Context, fraction float64) error
	Shuffle(ctx context.Context, enabled bool) error
	SetRepeatMode(ctx context.Context, mode domain.RepeatMode) error
	SetPlaybackSpeed(ctx context.Context, speed float32) error
}

// Adapter connects the session to MPRIS over D-Bus.
type Adapter struct {
	logger *slog.Logger
	server *server.Server
	player *playerAdapter
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and starts a new MPRIS adapter.
func New(logger *slog.Logger, remote Controller) (*Adapter, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter{
		logger: logger.With(slog.String("service", "mpris")),
		player: newPlayerAdapter(remote, time.Now),
		cancel: cancel,
	}
	a.server = server.NewServer(busName, &rootAdapter{}, a.player)

	// Keep the cached state current; D-Bus property reads come from it.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for np := range remote.State(ctx) {
			a.player.update(np)
		}
	}()

	go func() {
		if err := a.server.Listen(); err != nil {
			a.logger.Warn("mpris server stopped", slog.Any("error", err))
		}
	}()

	return a, nil
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	a.cancel()
	a.wg.Wait()
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error {
	return nil
}

func (r *rootAdapter) Quit() error {
	return nil
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil
}

func (r *rootAdapter) Identity() (string, error) {
	return "Tune Session", nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"file", "http", "https", "content"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/mp4", "video/mp4"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter and the loop
// and shuffle extensions.
type playerAdapter struct {
	remote Controller
	now    func() time.Time

	mu     sync.RWMutex
	latest *domain.NowPlaying
}

func newPlayerAdapter(remote Controller, now func() time.Time) *playerAdapter {
	return &playerAdapter{remote: remote, now: now}
}

func (p *playerAdapter) update(np *domain.NowPlaying) {
	p.mu.Lock()
	p.latest = np
	p.mu.Unlock()
}

// state returns the cached state, fetching it once when nothing arrived yet.
func (p *playerAdapter) state() *domain.NowPlaying {
	p.mu.RLock()
	np := p.latest
	p.mu.RUnlock()
	if np != nil {
		return np
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	np, err := p.remote.Snapshot(ctx)
	if err != nil {
		return &domain.NowPlaying{Duration: domain.TimeUnset, SleepAt: domain.SleepUnset}
	}
	p.update(np)
	return np
}

func (p *playerAdapter) call(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return fn(ctx)
}

func (p *playerAdapter) Next() error {
	return p.call(p.remote.SkipToNext)
}

func (p *playerAdapter) Previous() error {
	return p.call(p.remote.SkipToPrevious)
}

func (p *playerAdapter) Pause() error {
	return p.call(p.remote.Pause)
}

func (p *playerAdapter) PlayPause() error {
	return p.call(p.remote.TogglePlay)
}

// Stop pauses; the session keeps its queue and position.
func (p *playerAdapter) Stop() error {
	return p.call(p.remote.Pause)
}

func (p *playerAdapter) Play() error {
	return p.call(p.remote.Play)
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	return p.call(func(ctx context.Context) error {
		return p.remote.SeekBy(ctx, time.Duration(offset)*time.Microsecond)
	})
}

func (p *playerAdapter) SetPosition(trackID string, position types.Microseconds) error {
	np := p.state()
	if trackID != formatTrackID(np.URI) || np.Duration <= 0 {
		return nil
	}
	fraction := float64(time.Duration(position)*time.Microsecond) / float64(time.Duration(np.Duration)*time.Millisecond)
	if fraction < 0 || fraction > 1 {
		return nil
	}
	return p.call(func(ctx context.Context) error {
		return p.remote.SeekToFraction(ctx, fraction)
	})
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	return playbackStatus(p.state()), nil
}

func (p *playerAdapter) Rate() (float64, error) {
	if speed := p.state().Speed; speed > 0 {
		return float64(speed), nil
	}
	return 1.0, nil
}

func (p *playerAdapter) SetRate(rate float64) error {
	if rate <= 0 {
		return nil
	}
	return p.call(func(ctx context.Context) error {
		return p.remote.SetPlaybackSpeed(ctx, float32(rate))
	})
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	return metadata(p.state()), nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetVolume(_ float64) error {
	return nil
}

func (p *playerAdapter) Position() (int64, error) {
	return position(p.state(), p.now()).Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 0.25, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 4.0, nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	return p.state().IsNextAvailable(), nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return p.state().IsPrevAvailable(), nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.state().URI != "", nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return p.state().Duration > 0, nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

// LoopStatus implements OrgMprisMediaPlayer2PlayerAdapterLoopStatus.
func (p *playerAdapter) LoopStatus() (types.LoopStatus, error) {
	return loopStatus(p.state().Repeat), nil
}

// SetLoopStatus implements OrgMprisMediaPlayer2PlayerAdapterLoopStatus.
func (p *playerAdapter) SetLoopStatus(status types.LoopStatus) error {
	mode, ok := repeatMode(status)
	if !ok {
		return nil
	}
	return p.call(func(ctx context.Context) error {
		return p.remote.SetRepeatMode(ctx, mode)
	})
}

// Shuffle implements OrgMprisMediaPlayer2PlayerAdapterShuffle.
func (p *playerAdapter) Shuffle() (bool, error) {
	return p.state().Shuffle, nil
}

// SetShuffle implements OrgMprisMediaPlayer2PlayerAdapterShuffle.
func (p *playerAdapter) SetShuffle(shuffle bool) error {
	return p.call(func(ctx context.Context) error {
		return p.remote.Shuffle(ctx, shuffle)
	})
}

func playbackStatus(np *domain.NowPlaying) types.PlaybackStatus {
	switch {
	case np.URI == "" || np.State == domain.StateIdle || np.State == domain.StateEnded:
		return types.PlaybackStatusStopped
	case np.IsPlaying():
		return types.PlaybackStatusPlaying
	default:
		return types.PlaybackStatusPaused
	}
}

func loopStatus(mode domain.RepeatMode) types.LoopStatus {
	switch mode {
	case domain.RepeatOne:
		return types.LoopStatusTrack
	case domain.RepeatAll:
		return types.LoopStatusPlaylist
	default:
		return types.LoopStatusNone
	}
}

func repeatMode(status types.LoopStatus) (domain.RepeatMode, bool) {
	switch status {
	case types.LoopStatusNone:
		return domain.RepeatOff, true
	case types.LoopStatusTrack:
		return domain.RepeatOne, true
	case types.LoopStatusPlaylist:
		return domain.RepeatAll, true
	}
	return domain.RepeatOff, false
}

func metadata(np *domain.NowPlaying) types.Metadata {
	if np.URI == "" {
		return types.Metadata{}
	}

	meta := types.Metadata{
		TrackId: dbus.ObjectPath(formatTrackID(np.URI)),
		Title:   np.Title,
		ArtUrl:  np.ArtworkURI,
	}
	if np.Subtitle != "" {
		meta.Artist = []string{np.Subtitle}
	}
	if np.Duration > 0 {
		meta.Length = types.Microseconds((time.Duration(np.Duration) * time.Millisecond).Microseconds())
	}
	if meta.ArtUrl == "" {
		if art := FindAlbumArt(np.URI); art != "" {
			meta.ArtUrl = "file://" + art
		}
	}
	return meta
}

// position extrapolates the playback position from the snapshot time.
func position(np *domain.NowPlaying, now time.Time) time.Duration {
	pos := time.Duration(np.Position) * time.Millisecond
	if np.IsPlaying() && np.State == domain.StateReady && !np.Timestamp.IsZero() {
		speed := float64(np.Speed)
		if speed <= 0 {
			speed = 1
		}
		pos += time.Duration(float64(now.Sub(np.Timestamp)) * speed)
	}
	if np.Duration > 0 {
		pos = min(pos, time.Duration(np.Duration)*time.Millisecond)
	}
	return max(pos, 0)
}

func formatTrackID(uri string) string {
	h := fnv.New64a()
	h.Write([]byte(uri))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}
