package service

import (
	"context"
	"log/slog"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
)

const (
	noticeLiked   = "Added to favourites"
	noticeUnliked = "Removed from favourites"
)

// Dispatch runs a custom command. Failures are returned as *domain.CommandError.
func (s *Session) Dispatch(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.CommandResult{}, domain.NewCommandError(cmd.Name, err)
	}
	if s.isReleased() {
		return domain.CommandResult{}, domain.NewCommandError(cmd.Name, domain.ErrSessionReleased)
	}

	s.logger.Debug("command received", slog.String("command", string(cmd.Name)))

	switch cmd.Name {
	case domain.CommandAudioSessionID:
		return domain.CommandResult{AudioSessionID: s.player.AudioSessionID()}, nil
	case domain.CommandScheduleSleepTime:
		return s.scheduleSleep(cmd)
	case domain.CommandEqualizerConfig:
		return s.equalizerConfig(cmd)
	case domain.CommandScrubbingMode:
		s.player.SetScrubbingMode(cmd.Enabled)
		return domain.CommandResult{}, nil
	case domain.CommandToggleLike:
		return s.toggleLike(ctx, cmd)
	default:
		return domain.CommandResult{}, domain.NewCommandError(cmd.Name, domain.ErrUnknownCommand)
	}
}

// scheduleSleep sets, cancels or reads the sleep timer. The result carries the
// time left in milliseconds.
func (s *Session) scheduleSleep(cmd domain.Command) (domain.CommandResult, error) {
	if cmd.SleepMillis < 0 && cmd.SleepMillis != domain.SleepUnset {
		return domain.CommandResult{}, domain.NewCommandError(cmd.Name,
			domain.NewValidationError("sleep_millis", cmd.SleepMillis, "must be positive, 0 or -1"))
	}

	now := s.cfg.Now().UnixMilli()

	s.mu.Lock()
	changed := false
	switch {
	case cmd.SleepMillis == domain.SleepUnset:
		changed = s.sleepAt != domain.SleepUnset
		s.sleepAt = domain.SleepUnset
	case cmd.SleepMillis > 0:
		s.sleepAt = now + cmd.SleepMillis
		changed = true
	}
	remaining := domain.SleepUnset
	if s.sleepAt != domain.SleepUnset {
		remaining = max(s.sleepAt-now, 0)
	}
	s.mu.Unlock()

	if changed {
		s.logger.Info("sleep timer updated", slog.Int64("remaining_ms", remaining))
		s.Invalidate("sleep timer")
	}
	return domain.CommandResult{SleepRemaining: remaining}, nil
}

// equalizerConfig persists a new configuration when one is given and returns
// the stored one. The equalizer picks it up shortly after.
func (s *Session) equalizerConfig(cmd domain.Command) (domain.CommandResult, error) {
	if cmd.Equalizer != nil {
		if err := s.prefs.SetEqualizerConfig(*cmd.Equalizer); err != nil {
			return domain.CommandResult{}, domain.NewCommandError(cmd.Name, err)
		}
		s.scheduleEqualizerReinit()
	}
	return domain.CommandResult{Equalizer: s.prefs.EqualizerConfig()}, nil
}

// toggleLike flips the favourite membership of the current item. The store
// write is queued behind pending bookkeeping so the like state never goes
// backwards.
func (s *Session) toggleLike(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	item, ok := s.player.CurrentMediaItem()
	if !ok {
		return domain.CommandResult{}, domain.NewCommandError(cmd.Name, domain.ErrInvalidState)
	}

	var favourite bool
	err := s.writer.Do(ctx, "toggle like", func() error {
		liked, err := s.store.ToggleFavourite(s.jobCtx, item)
		if err != nil {
			return err
		}
		favourite = liked
		s.setLiked(likeState{uri: item.URI, favourite: liked})
		return nil
	})
	if err != nil {
		return domain.CommandResult{}, domain.NewCommandError(cmd.Name, err)
	}

	s.bus.Publish(domain.NewLikeChangedEvent(item.URI, favourite))
	s.Invalidate("like toggled")
	if favourite {
		s.bus.Publish(domain.NewNoticeEvent(noticeLiked))
	} else {
		s.bus.Publish(domain.NewNoticeEvent(noticeUnliked))
	}

	return domain.CommandResult{Favourite: favourite}, nil
}
