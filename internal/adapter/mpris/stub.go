//go:build !linux

package mpris

import (
	"context"
	"log/slog"
	"time"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
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

// Adapter is a no-op on non-Linux platforms.
type Adapter struct{}

// New returns a no-op adapter on non-Linux platforms.
func New(_ *slog.Logger, _ Controller) (*Adapter, error) {
	return &Adapter{}, nil
}

// Close is a no-op on non-Linux platforms.
func (a *Adapter) Close() error {
	return nil
}
