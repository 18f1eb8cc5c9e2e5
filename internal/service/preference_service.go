// Package service provides the playback session and the persistence services
// it drives.
package service

import (
	"log/slog"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
)

// Preference keys.
const (
	KeyShuffle                 = "_shuffle"
	KeyRepeatMode              = "_repeat_mode"
	KeyIndex                   = "_index"
	KeyBookmark                = "_bookmark"
	KeyRecentLimit             = "_max_recent_size"
	KeyEqualizerEnabled        = "_equalizer_enabled"
	KeyEqualizerProperties     = "_equalizer_properties"
	KeyStopPlaybackWhenRemoved = "_stop_playback_when_removed"
	KeyShuffleOrder            = "_orders"
)

// PreferenceDefaults holds the defaults that configuration may override.
type PreferenceDefaults struct {
	RecentLimit       int
	StopOnTaskRemoved bool
}

// DefaultPreferenceDefaults returns the built-in defaults.
func DefaultPreferenceDefaults() PreferenceDefaults {
	return PreferenceDefaults{RecentLimit: domain.DefaultRecentLimit}
}

// PreferenceService exposes the session preferences as typed accessors.
// Reads never fail: a missing or unreadable value yields its default and the
// error is logged. Writes go straight to the repository.
type PreferenceService struct {
	// Dependencies (injected)
	logger     *slog.Logger
	repository ports.PreferencesRepository

	defaults PreferenceDefaults
}

// NewPreferenceService creates a new preference service.
func NewPreferenceService(
	logger *slog.Logger,
	repository ports.PreferencesRepository,
	defaults PreferenceDefaults,
) *PreferenceService {
	if defaults.RecentLimit <= 0 {
		defaults.RecentLimit = domain.DefaultRecentLimit
	}
	return &PreferenceService{
		logger:     logger.With(slog.String("service", "preferences")),
		repository: repository,
		defaults:   defaults,
	}
}

func (s *PreferenceService) warn(key string, err error) {
	s.logger.Warn("failed to read preference, using default",
		slog.String("key", key),
		slog.Any("error", err))
}

// Shuffle returns the persisted shuffle flag.
func (s *PreferenceService) Shuffle() bool {
	v, err := s.repository.GetBool(KeyShuffle, false)
	if err != nil {
		s.warn(KeyShuffle, err)
	}
	return v
}

// SetShuffle persists the shuffle flag.
func (s *PreferenceService) SetShuffle(enabled bool) error {
	return s.repository.SetBool(KeyShuffle, enabled)
}

// RepeatMode returns the persisted repeat mode. Unknown values read as RepeatOff.
func (s *PreferenceService) RepeatMode() domain.RepeatMode {
	v, err := s.repository.GetInt(KeyRepeatMode, int(domain.RepeatOff))
	if err != nil {
		s.warn(KeyRepeatMode, err)
	}
	mode := domain.RepeatMode(v)
	if !mode.Valid() {
		return domain.RepeatOff
	}
	return mode
}

// SetRepeatMode persists the repeat mode.
func (s *PreferenceService) SetRepeatMode(mode domain.RepeatMode) error {
	if !mode.Valid() {
		return domain.NewValidationError("repeat_mode", int(mode), "must be off, one or all")
	}
	return s.repository.SetInt(KeyRepeatMode, int(mode))
}

// Index returns the persisted current index or domain.IndexUnset.
func (s *PreferenceService) Index() int {
	v, err := s.repository.GetInt(KeyIndex, domain.IndexUnset)
	if err != nil {
		s.warn(KeyIndex, err)
	}
	return v
}

// SetIndex persists the current index.
func (s *PreferenceService) SetIndex(index int) error {
	return s.repository.SetInt(KeyIndex, index)
}

// Bookmark returns the persisted position in milliseconds or domain.TimeUnset.
func (s *PreferenceService) Bookmark() int64 {
	v, err := s.repository.GetInt64(KeyBookmark, domain.TimeUnset)
	if err != nil {
		s.warn(KeyBookmark, err)
	}
	return v
}

// SetBookmark persists the position in milliseconds.
func (s *PreferenceService) SetBookmark(millis int64) error {
	return s.repository.SetInt64(KeyBookmark, millis)
}

// RecentLimit returns the maximum size of the Recent playlist.
func (s *PreferenceService) RecentLimit() int {
	v, err := s.repository.GetInt(KeyRecentLimit, s.defaults.RecentLimit)
	if err != nil {
		s.warn(KeyRecentLimit, err)
	}
	if v <= 0 {
		return s.defaults.RecentLimit
	}
	return v
}

// SetRecentLimit persists the Recent playlist limit.
func (s *PreferenceService) SetRecentLimit(limit int) error {
	if limit <= 0 {
		return domain.NewValidationError("recent_limit", limit, "must be positive")
	}
	return s.repository.SetInt(KeyRecentLimit, limit)
}

// EqualizerConfig returns the persisted equalizer state.
func (s *PreferenceService) EqualizerConfig() domain.EqualizerConfig {
	enabled, err := s.repository.GetBool(KeyEqualizerEnabled, false)
	if err != nil {
		s.warn(KeyEqualizerEnabled, err)
	}
	properties, err := s.repository.GetString(KeyEqualizerProperties, "")
	if err != nil {
		s.warn(KeyEqualizerProperties, err)
	}
	return domain.EqualizerConfig{Enabled: enabled, Properties: properties}
}

// SetEqualizerConfig persists the equalizer state. Non-empty properties must parse.
func (s *PreferenceService) SetEqualizerConfig(cfg domain.EqualizerConfig) error {
	if cfg.Properties != "" {
		if _, err := domain.ParseEqualizerSettings(cfg.Properties); err != nil {
			return err
		}
	}
	if err := s.repository.SetString(KeyEqualizerProperties, cfg.Properties); err != nil {
		return err
	}
	return s.repository.SetBool(KeyEqualizerEnabled, cfg.Enabled)
}

// StopOnTaskRemoved reports whether removing the task stops the session.
func (s *PreferenceService) StopOnTaskRemoved() bool {
	v, err := s.repository.GetBool(KeyStopPlaybackWhenRemoved, s.defaults.StopOnTaskRemoved)
	if err != nil {
		s.warn(KeyStopPlaybackWhenRemoved, err)
	}
	return v
}

// SetStopOnTaskRemoved persists the task-removed policy.
func (s *PreferenceService) SetStopOnTaskRemoved(stop bool) error {
	return s.repository.SetBool(KeyStopPlaybackWhenRemoved, stop)
}

// ShuffleOrder returns the persisted shuffle order string.
func (s *PreferenceService) ShuffleOrder() string {
	v, err := s.repository.GetString(KeyShuffleOrder, "")
	if err != nil {
		s.warn(KeyShuffleOrder, err)
	}
	return v
}

// SetShuffleOrder persists the shuffle order string.
func (s *PreferenceService) SetShuffleOrder(order string) error {
	return s.repository.SetString(KeyShuffleOrder, order)
}

// ResetToDefaults removes every stored preference.
func (s *PreferenceService) ResetToDefaults() error {
	return s.repository.Clear()
}
