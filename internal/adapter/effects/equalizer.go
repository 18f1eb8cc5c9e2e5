// Package effects provides an in-memory audio equalizer bound to an audio
// session id, standing in for the platform effect.
package effects

import (
	"errors"
	"slices"
	"sync"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
)

// ErrReleased is returned after Release.
var ErrReleased = errors.New("equalizer released")

const (
	// DefaultBands is the number of bands every equalizer exposes.
	DefaultBands = 5

	// Band level range in millibels.
	MinBandLevel = -1500
	MaxBandLevel = 1500

	// PresetCount is the number of built-in presets.
	PresetCount = 10
)

// Equalizer is an in-memory equalizer.
//
// Thread-safety: safe for concurrent use.
type Equalizer struct {
	mu             sync.Mutex
	audioSessionID int
	enabled        bool
	settings       domain.EqualizerSettings
	released       bool
}

// NewEqualizer creates a flat, disabled equalizer for audioSessionID.
func NewEqualizer(audioSessionID int) *Equalizer {
	return &Equalizer{
		audioSessionID: audioSessionID,
		settings:       domain.EqualizerSettings{BandLevels: make([]int, DefaultBands)},
	}
}

// Factory returns a ports.EqualizerFactory producing in-memory equalizers and
// remembering the last one created.
func Factory() (ports.EqualizerFactory, func() *Equalizer) {
	var (
		mu   sync.Mutex
		last *Equalizer
	)
	factory := func(audioSessionID int) (ports.Equalizer, error) {
		eq := NewEqualizer(audioSessionID)
		mu.Lock()
		last = eq
		mu.Unlock()
		return eq, nil
	}
	latest := func() *Equalizer {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
	return factory, latest
}

// AudioSessionID returns the session the equalizer is attached to.
func (e *Equalizer) AudioSessionID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioSessionID
}

// SetEnabled turns the effect on or off.
func (e *Equalizer) SetEnabled(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrReleased
	}
	e.enabled = enabled
	return nil
}

// Enabled reports whether the effect is on.
func (e *Equalizer) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Apply installs settings. The band count must match and levels must be in range.
func (e *Equalizer) Apply(settings domain.EqualizerSettings) error {
	if len(settings.BandLevels) != DefaultBands {
		return domain.NewValidationError("numBands", len(settings.BandLevels), "band count mismatch")
	}
	for _, level := range settings.BandLevels {
		if level < MinBandLevel || level > MaxBandLevel {
			return domain.NewValidationError("bandLevel", level, "out of range")
		}
	}
	if settings.CurrentPreset < -1 || settings.CurrentPreset >= PresetCount {
		return domain.NewValidationError("curPreset", settings.CurrentPreset, "unknown preset")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrReleased
	}
	e.settings = domain.EqualizerSettings{
		CurrentPreset: settings.CurrentPreset,
		BandLevels:    slices.Clone(settings.BandLevels),
	}
	return nil
}

// Settings returns a copy of the installed settings.
func (e *Equalizer) Settings() domain.EqualizerSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.EqualizerSettings{
		CurrentPreset: e.settings.CurrentPreset,
		BandLevels:    slices.Clone(e.settings.BandLevels),
	}
}

// Release frees the effect. Calling it twice is a no-op.
func (e *Equalizer) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
	e.enabled = false
	return nil
}

// Released reports whether Release was called.
func (e *Equalizer) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

// Verify interface implementation
var _ ports.Equalizer = (*Equalizer)(nil)
