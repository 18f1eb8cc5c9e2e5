// Package httpapi exposes the playback session over a small JSON API.
// It is a transport like a notification or a widget: every call goes
// through a session connection.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/service"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Controller is the client side of the session used by the handlers.
type Controller interface {
	Snapshot(ctx context.Context) (*domain.NowPlaying, error)
	Items(ctx context.Context) ([]domain.MediaReference, error)
	State(ctx context.Context) <-chan *domain.NowPlaying

	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	TogglePlay(ctx context.Context) error
	SkipToNext(ctx context.Context) error
	SkipToPrevious(ctx context.Context) error
	SeekToFraction(ctx context.Context, fraction float64) error
	SeekBy(ctx context.Context, delta time.Duration) error
	Shuffle(ctx context.Context, enabled bool) error
	SetRepeatMode(ctx context.Context, mode domain.RepeatMode) error
	CycleRepeatMode(ctx context.Context) (domain.RepeatMode, error)
	SetPlaybackSpeed(ctx context.Context, speed float32) error

	SetMediaFiles(ctx context.Context, values []domain.MediaReference, index int, position time.Duration) (int, error)
	Add(ctx context.Context, values []domain.MediaReference, index int) (int, error)
	Remove(ctx context.Context, uri string) (bool, error)
	SkipTo(ctx context.Context, uri string) (bool, error)
	Clear(ctx context.Context) error

	ToggleLike(ctx context.Context) (bool, error)
	ScheduleSleep(ctx context.Context, millis int64) (int64, error)
	EqualizerConfig(ctx context.Context, cfg *domain.EqualizerConfig) (domain.EqualizerConfig, error)
	AudioSessionID(ctx context.Context) (int, error)
}

// Library lists the system playlists.
type Library interface {
	Recent(ctx context.Context) ([]domain.MediaReference, error)
	Favourites(ctx context.Context) ([]domain.MediaReference, error)
}

// ActionHandler runs transport shortcuts and host lifecycle signals.
type ActionHandler interface {
	HandleAction(action domain.Action, fraction float64) error
	// TaskRemoved tells the session its client went away for good.
	TaskRemoved()
}

var actionNames = map[string]domain.Action{
	"toggle-play": domain.ActionTogglePlay,
	"next":        domain.ActionNext,
	"previous":    domain.ActionPrevious,
	"seek":        domain.ActionSeekTo,
}

// Server is the HTTP control surface.
type Server struct {
	logger  *slog.Logger
	remote  Controller
	library Library
	actions ActionHandler
	now     func() time.Time
	router  chi.Router
}

// New builds the router. library and actions may be nil; their routes then
// answer 501.
func New(logger *slog.Logger, remote Controller, library Library, actions ActionHandler) *Server {
	s := &Server{
		logger:  logger.With(slog.String("service", "http")),
		remote:  remote,
		library: library,
		actions: actions,
		now:     time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/v1", s.routes)

	s.router = r
	return s
}

func (s *Server) routes(r chi.Router) {
	r.Get("/state", s.getState)
	r.Get("/state/stream", s.streamState)

	r.Post("/play", s.run(Controller.Play))
	r.Post("/pause", s.run(Controller.Pause))
	r.Post("/toggle", s.run(Controller.TogglePlay))
	r.Post("/next", s.run(Controller.SkipToNext))
	r.Post("/previous", s.run(Controller.SkipToPrevious))
	r.Post("/seek", s.seek)
	r.Put("/shuffle", s.setShuffle)
	r.Put("/repeat", s.setRepeat)
	r.Post("/repeat/cycle", s.cycleRepeat)
	r.Put("/speed", s.setSpeed)

	r.Get("/queue", s.getQueue)
	r.Put("/queue", s.replaceQueue)
	r.Post("/queue", s.addToQueue)
	r.Delete("/queue", s.run(Controller.Clear))
	r.Delete("/queue/item", s.removeFromQueue)
	r.Post("/queue/skip", s.skipTo)

	r.Post("/like", s.toggleLike)
	r.Get("/sleep", s.getSleep)
	r.Put("/sleep", s.setSleep)
	r.Get("/equalizer", s.getEqualizer)
	r.Put("/equalizer", s.setEqualizer)
	r.Get("/audio-session", s.getAudioSession)

	r.Get("/recent", s.listRecent)
	r.Get("/favourites", s.listFavourites)

	r.Post("/actions/{action}", s.runAction)
	r.Post("/task-removed", s.taskRemoved)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
// Open state streams are ended before the shutdown waits for handlers.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", listener.Addr().String()))
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// Handlers

// run adapts a controller call without a body or a result.
func (s *Server) run(fn func(Controller, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(s.remote, r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	np, err := s.remote.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNowPlaying(np, s.now()))
}

// streamState sends a server-sent event per state change until the client
// goes away.
func (s *Server) streamState(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Debug("streaming unsupported", slog.Any("error", err))
		return
	}

	for np := range s.remote.State(r.Context()) {
		data, err := json.Marshal(toNowPlaying(np, s.now()))
		if err != nil {
			s.logger.Warn("failed to encode state", slog.Any("error", err))
			continue
		}
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !s.decode(w, r, &req) {
		return
	}

	var err error
	switch {
	case req.Fraction != nil:
		err = s.remote.SeekToFraction(r.Context(), *req.Fraction)
	case req.DeltaMs != nil:
		err = s.remote.SeekBy(r.Context(), time.Duration(*req.DeltaMs)*time.Millisecond)
	default:
		err = domain.NewValidationError("seek", req, "fraction or delta_ms is required")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setShuffle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.remote.Shuffle(r.Context(), req.Enabled); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setRepeat(w http.ResponseWriter, r *http.Request) {
	var req repeatRequest
	if !s.decode(w, r, &req) {
		return
	}
	mode, ok := parseRepeatMode(req.Mode)
	if !ok {
		s.writeError(w, r, domain.NewValidationError("mode", req.Mode, "expected off, one or all"))
		return
	}
	if err := s.remote.SetRepeatMode(r.Context(), mode); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repeatRequest{Mode: mode.String()})
}

func (s *Server) cycleRepeat(w http.ResponseWriter, r *http.Request) {
	mode, err := s.remote.CycleRepeatMode(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repeatRequest{Mode: mode.String()})
}

func (s *Server) setSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Speed <= 0 {
		s.writeError(w, r, domain.NewValidationError("speed", req.Speed, "must be positive"))
		return
	}
	if err := s.remote.SetPlaybackSpeed(r.Context(), req.Speed); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.remote.Items(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMediaItems(items))
}

func (s *Server) replaceQueue(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if !s.decode(w, r, &req) {
		return
	}
	index := domain.IndexUnset
	if req.Index != nil {
		index = *req.Index
	}
	n, err := s.remote.SetMediaFiles(r.Context(), fromMediaItems(req.Items), index, time.Duration(req.PositionMs)*time.Millisecond)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) addToQueue(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !s.decode(w, r, &req) {
		return
	}
	index := domain.IndexUnset
	if req.Index != nil {
		index = *req.Index
	}
	n, err := s.remote.Add(r.Context(), fromMediaItems(req.Items), index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) removeFromQueue(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.writeError(w, r, domain.NewValidationError("uri", uri, "is required"))
		return
	}
	removed, err := s.remote.Remove(r.Context(), uri)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !removed {
		writeErrorMessage(w, http.StatusNotFound, "not queued")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) skipTo(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.writeError(w, r, domain.NewValidationError("uri", uri, "is required"))
		return
	}
	found, err := s.remote.SkipTo(r.Context(), uri)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		writeErrorMessage(w, http.StatusNotFound, "not queued")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	favourite, err := s.remote.ToggleLike(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{Favourite: favourite})
}

func (s *Server) getSleep(w http.ResponseWriter, r *http.Request) {
	s.scheduleSleep(w, r, 0)
}

func (s *Server) setSleep(w http.ResponseWriter, r *http.Request) {
	var req sleepRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.scheduleSleep(w, r, req.Millis)
}

func (s *Server) scheduleSleep(w http.ResponseWriter, r *http.Request, millis int64) {
	remaining, err := s.remote.ScheduleSleep(r.Context(), millis)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sleepResponse{RemainingMs: remaining})
}

func (s *Server) getEqualizer(w http.ResponseWriter, r *http.Request) {
	s.equalizerConfig(w, r, nil)
}

func (s *Server) setEqualizer(w http.ResponseWriter, r *http.Request) {
	var req equalizer
	if !s.decode(w, r, &req) {
		return
	}
	s.equalizerConfig(w, r, &domain.EqualizerConfig{Enabled: req.Enabled, Properties: req.Properties})
}

func (s *Server) equalizerConfig(w http.ResponseWriter, r *http.Request, cfg *domain.EqualizerConfig) {
	stored, err := s.remote.EqualizerConfig(r.Context(), cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, equalizer{Enabled: stored.Enabled, Properties: stored.Properties})
}

func (s *Server) getAudioSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.remote.AudioSessionID(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"audio_session_id": id})
}

func (s *Server) listRecent(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeErrorMessage(w, http.StatusNotImplemented, "library unavailable")
		return
	}
	s.writeItems(w, r, s.library.Recent)
}

func (s *Server) listFavourites(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeErrorMessage(w, http.StatusNotImplemented, "library unavailable")
		return
	}
	s.writeItems(w, r, s.library.Favourites)
}

func (s *Server) writeItems(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]domain.MediaReference, error)) {
	items, err := list(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMediaItems(items))
}

func (s *Server) runAction(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		writeErrorMessage(w, http.StatusNotImplemented, "actions unavailable")
		return
	}
	action, ok := actionNames[chi.URLParam(r, "action")]
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "unknown action")
		return
	}

	var fraction float64
	if raw := r.URL.Query().Get("fraction"); raw != "" {
		if _, err := fmt.Sscan(raw, &fraction); err != nil {
			s.writeError(w, r, domain.NewValidationError("fraction", raw, "not a number"))
			return
		}
	}
	if err := s.actions.HandleAction(action, fraction); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) taskRemoved(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		writeErrorMessage(w, http.StatusNotImplemented, "actions unavailable")
		return
	}
	s.logger.Info("task removed", slog.String("remote_addr", r.RemoteAddr))
	s.actions.TaskRemoved()
	w.WriteHeader(http.StatusNoContent)
}

// Helpers

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err))
	}
	writeErrorMessage(w, status, err.Error())
}

func statusFor(err error) int {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownCommand), errors.Is(err, domain.ErrUnknownParent):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrQueueEmpty),
		errors.Is(err, domain.ErrInvalidIndex),
		errors.Is(err, domain.ErrDurationUnknown),
		errors.Is(err, domain.ErrSeekUnsupported):
		return http.StatusConflict
	case errors.Is(err, service.ErrRemoteClosed),
		errors.Is(err, domain.ErrSessionReleased),
		errors.Is(err, domain.ErrConnectionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requestLogger logs every request at debug level through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// Verify that RemoteController satisfies Controller
var _ Controller = (*service.RemoteController)(nil)
