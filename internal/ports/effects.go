package ports

import "github.com/tejashwikalptaru/tunesession/internal/domain"

// Equalizer is an audio effect bound to one engine audio session.
type Equalizer interface {
	SetEnabled(enabled bool) error
	Enabled() bool

	// Apply installs band levels and preset.
	Apply(settings domain.EqualizerSettings) error
	Settings() domain.EqualizerSettings

	// Release frees the effect. It must be recreated for a new audio session.
	Release() error
}

// EqualizerFactory creates an equalizer attached to audioSessionID.
// Returning an error means effects are unsupported; the session carries on without them.
type EqualizerFactory func(audioSessionID int) (Equalizer, error)
