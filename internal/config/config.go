// Package config loads the tunesession configuration from TOML files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tejashwikalptaru/tunesession/internal/logger"
)

const (
	appName        = "tunesession"
	configFileName = "config.toml"

	// DefaultListen is the HTTP control surface address.
	DefaultListen = "127.0.0.1:8765"
)

type Config struct {
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Session SessionConfig `koanf:"session"`
	Remote  RemoteConfig  `koanf:"remote"`
	HTTP    HTTPConfig    `koanf:"http"`
	MPRIS   MPRISConfig   `koanf:"mpris"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // "text" or "json"
}

// StoreConfig locates the database. An empty path means the XDG data directory.
type StoreConfig struct {
	Path string `koanf:"path"`
}

type SessionConfig struct {
	PositionInterval     time.Duration `koanf:"position_interval"`      // bookmark save period while playing
	EqualizerReinitDelay time.Duration `koanf:"equalizer_reinit_delay"` // delay before a new EQ config applies
	RecentLimit          int           `koanf:"recent_limit"`           // default size of the Recent playlist
	StopOnTaskRemoved    bool          `koanf:"stop_on_task_removed"`   // default for the stop preference
}

type RemoteConfig struct {
	Debounce  time.Duration `koanf:"debounce"`
	StopGrace time.Duration `koanf:"stop_grace"`
}

// HTTPConfig configures the control surface. An empty listen address disables it.
type HTTPConfig struct {
	Listen string `koanf:"listen"`
}

type MPRISConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Session: SessionConfig{
			PositionInterval:     5 * time.Second,
			EqualizerReinitDelay: 100 * time.Millisecond,
			RecentLimit:          50,
		},
		Remote: RemoteConfig{
			Debounce:  200 * time.Millisecond,
			StopGrace: 5 * time.Second,
		},
		HTTP:  HTTPConfig{Listen: DefaultListen},
		MPRIS: MPRISConfig{Enabled: true},
	}
}

// Load reads the given files on top of the defaults, later files winning.
// Missing files are skipped. Without arguments the default locations are used.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = DefaultPaths()
	}

	k := koanf.New(".")
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Store.Path = expandPath(cfg.Store.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPaths returns the config files read by Load, lowest priority first.
func DefaultPaths() []string {
	return []string{
		filepath.Join(xdg.ConfigHome, appName, configFileName),
		configFileName,
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Log.Level != "" && logger.ParseLevel(c.Log.Level, slog.Level(-100)) == slog.Level(-100) {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if c.Session.PositionInterval <= 0 {
		errs = append(errs, errors.New("session.position_interval must be positive"))
	}
	if c.Session.EqualizerReinitDelay < 0 {
		errs = append(errs, errors.New("session.equalizer_reinit_delay must not be negative"))
	}
	if c.Session.RecentLimit <= 0 {
		errs = append(errs, errors.New("session.recent_limit must be positive"))
	}
	if c.Remote.Debounce < 0 || c.Remote.StopGrace < 0 {
		errs = append(errs, errors.New("remote durations must not be negative"))
	}

	return errors.Join(errs...)
}

// LoggerConfig converts the [log] section. TUNESESSION_LOG_LEVEL wins over the file.
func (c *Config) LoggerConfig() logger.Config {
	level := logger.ParseLevel(c.Log.Level, slog.LevelInfo)
	if env := os.Getenv(logger.EnvLevel); env != "" {
		level = logger.ParseLevel(env, level)
	}
	return logger.Config{
		Level:  level,
		Format: strings.ToLower(c.Log.Format),
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
