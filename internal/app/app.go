// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/tunesession/internal/adapter/effects"
	"github.com/tejashwikalptaru/tunesession/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/tunesession/internal/adapter/httpapi"
	"github.com/tejashwikalptaru/tunesession/internal/adapter/metadata"
	"github.com/tejashwikalptaru/tunesession/internal/adapter/mpris"
	"github.com/tejashwikalptaru/tunesession/internal/adapter/player/memory"
	"github.com/tejashwikalptaru/tunesession/internal/adapter/repository/sqlite"
	"github.com/tejashwikalptaru/tunesession/internal/config"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/service"
)

// clockTick is how often the simulated engine advances while serving.
const clockTick = 250 * time.Millisecond

// Application is the root application structure that holds all dependencies.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Running the control surfaces until asked to stop
// - Saving the session and releasing everything on shutdown
type Application struct {
	// Core dependencies
	cfg    *config.Config
	logger *slog.Logger

	// Infrastructure
	db     *sqlite.DB
	bus    *eventbus.SyncEventBus
	player *memory.Player

	// Services
	store   *service.QueueStore
	prefs   *service.PreferenceService
	session *service.Session
	remote  *service.RemoteController
	scanner *service.LibraryService

	stopped      chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates the application and restores the persisted session.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	app := &Application{
		cfg:     cfg,
		logger:  logger,
		stopped: make(chan struct{}),
	}
	logger.Info("initializing application", slog.String("version", GetVersionInfo().FullString()))

	// Step 1: Open the database
	dsn := cfg.Store.Path
	if dsn == "" {
		path, err := sqlite.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		dsn = path
	}
	db, err := sqlite.Open(dsn)
	if err != nil {
		return nil, err
	}
	app.db = db
	logger.Debug("database opened", slog.String("path", dsn))

	// Step 2: Create an event bus and the engine
	app.bus = eventbus.NewSyncEventBus()
	app.bus.SetLogger(logger.With(slog.String("component", "eventbus")))
	app.player = memory.NewPlayer(app.bus, logger.With(slog.String("engine", "memory")))

	// Step 3: Create services (with dependency injection)
	app.store = service.NewQueueStore(logger, sqlite.NewPlaylistRepository(db))
	app.prefs = service.NewPreferenceService(logger, sqlite.NewPreferencesRepository(db), service.PreferenceDefaults{
		RecentLimit:       cfg.Session.RecentLimit,
		StopOnTaskRemoved: cfg.Session.StopOnTaskRemoved,
	})

	factory, _ := effects.Factory()
	app.session = service.NewSession(ctx, logger, app.player, app.bus, app.store, app.prefs, factory, service.SessionConfig{
		PositionInterval:     cfg.Session.PositionInterval,
		EqualizerReinitDelay: cfg.Session.EqualizerReinitDelay,
	})
	app.bus.Subscribe(domain.EventStopRequested, func(domain.Event) { app.stop() })

	remoteCfg := service.DefaultRemoteConfig()
	remoteCfg.Debounce = cfg.Remote.Debounce
	remoteCfg.StopGrace = cfg.Remote.StopGrace
	app.remote = service.NewRemoteController(logger, app.session.Connect, remoteCfg)
	app.scanner = service.NewLibraryService(logger, metadata.Reader{})

	return app, nil
}

// Remote returns the controller used by every client of the session.
func (a *Application) Remote() *service.RemoteController {
	return a.remote
}

// Library returns the system playlists.
func (a *Application) Library() *service.QueueStore {
	return a.store
}

// Scanner returns the local media scanner.
func (a *Application) Scanner() *service.LibraryService {
	return a.scanner
}

// Session returns the playback session.
func (a *Application) Session() *service.Session {
	return a.session
}

func (a *Application) stop() {
	a.stopOnce.Do(func() { close(a.stopped) })
}

// Run serves the configured control surfaces until ctx is done or the
// session asks to stop.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		select {
		case <-a.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer wg.Done()
		a.runClock(ctx)
	}()

	if a.cfg.MPRIS.Enabled {
		adapter, err := mpris.New(a.logger, a.remote)
		if err != nil {
			a.logger.Warn("mpris unavailable", slog.Any("error", err))
		} else {
			defer func() {
				if err := adapter.Close(); err != nil {
					a.logger.Warn("failed to close mpris", slog.Any("error", err))
				}
			}()
		}
	}

	a.logger.Info("tunesession started")

	if a.cfg.HTTP.Listen == "" {
		<-ctx.Done()
		return nil
	}
	server := httpapi.New(a.logger, a.remote, a.store, a.session)
	return server.ListenAndServe(ctx, a.cfg.HTTP.Listen)
}

// runClock drives the simulated engine in real time.
func (a *Application) runClock(ctx context.Context) {
	ticker := time.NewTicker(clockTick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.player.Advance(now.Sub(last))
			last = now
		}
	}
}

// Shutdown saves the session and releases everything. It is safe to call
// more than once.
func (a *Application) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down application")
		a.stop()

		var errs []error
		if err := a.scanner.Shutdown(); err != nil {
			errs = append(errs, err)
		}
		a.remote.Close()
		if err := a.session.SaveState(context.Background()); err != nil && !errors.Is(err, domain.ErrSessionReleased) {
			errs = append(errs, fmt.Errorf("failed to save state: %w", err))
		}
		a.session.Release()
		if err := a.bus.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}

		a.shutdownErr = errors.Join(errs...)
		a.logger.Info("application shutdown complete")
	})
	return a.shutdownErr
}
