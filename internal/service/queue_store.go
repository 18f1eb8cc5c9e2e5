package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
)

// QueueStore maps in-memory reference lists onto the system playlists
// (_queue, _recent, _favourite). Playlists are created on first use.
//
// Thread-safety: all methods are safe for concurrent use. Multi-step updates
// of one store are serialized.
type QueueStore struct {
	// Dependencies (injected)
	logger     *slog.Logger
	repository ports.PlaylistRepository
	now        func() time.Time

	// mu serializes read-modify-write sequences and guards ids
	mu  sync.Mutex
	ids map[string]int64
}

// NewQueueStore creates a queue store.
func NewQueueStore(logger *slog.Logger, repository ports.PlaylistRepository) *QueueStore {
	return &QueueStore{
		logger:     logger.With(slog.String("service", "queue_store")),
		repository: repository,
		now:        time.Now,
		ids:        make(map[string]int64),
	}
}

// getOrCreate returns the id of the named playlist, creating it if needed.
// mu must be held.
func (s *QueueStore) getOrCreate(name string) (int64, error) {
	if id, ok := s.ids[name]; ok {
		return id, nil
	}

	playlist, err := s.repository.Get(name)
	switch {
	case err == nil:
		s.ids[name] = playlist.ID
		return playlist.ID, nil
	case !errors.Is(err, domain.ErrPlaylistNotFound):
		return 0, err
	}

	now := s.now()
	id, err := s.repository.Insert(domain.Playlist{Name: name, DateCreated: now, DateModified: now})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("created system playlist", slog.String("name", name), slog.Int64("id", id))
	s.ids[name] = id
	return id, nil
}

// lookup returns the id of an existing playlist; ok is false when it was never created.
// mu must be held.
func (s *QueueStore) lookup(name string) (int64, bool, error) {
	if id, ok := s.ids[name]; ok {
		return id, true, nil
	}
	playlist, err := s.repository.Get(name)
	if errors.Is(err, domain.ErrPlaylistNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	s.ids[name] = playlist.ID
	return playlist.ID, true, nil
}

// touch bumps the modification date of a playlist through repo. mu must be held.
func (s *QueueStore) touch(repo ports.PlaylistRepository, name string, id int64) error {
	playlist, err := repo.Get(name)
	if err != nil {
		return err
	}
	playlist.ID = id
	playlist.DateModified = s.now()
	return repo.Update(*playlist)
}

func (s *QueueStore) members(ctx context.Context, name string) ([]domain.MediaReference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := s.lookup(name)
	if err != nil {
		return nil, domain.NewServiceError("QueueStore", "members", name, err)
	}
	if !ok {
		return []domain.MediaReference{}, nil
	}

	tracks, err := s.repository.Tracks(id)
	if err != nil {
		return nil, domain.NewServiceError("QueueStore", "members", name, err)
	}
	return lo.Map(tracks, func(t domain.Track, _ int) domain.MediaReference {
		return t.MediaReference()
	}), nil
}

// UpsertQueue replaces the persisted queue with items, in order.
func (s *QueueStore) UpsertQueue(ctx context.Context, items []domain.MediaReference) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.getOrCreate(domain.PlaylistQueue)
	if err != nil {
		return domain.NewServiceError("QueueStore", "UpsertQueue", "resolve queue playlist", err)
	}

	unique := lo.UniqBy(items, func(item domain.MediaReference) string { return item.URI })
	tracks := lo.Map(unique, func(item domain.MediaReference, i int) domain.Track {
		return domain.NewTrack(id, i, item)
	})
	if err := s.repository.ReplaceTracks(id, tracks); err != nil {
		return domain.NewServiceError("QueueStore", "UpsertQueue", "replace members", err)
	}
	return s.touch(s.repository, domain.PlaylistQueue, id)
}

// LoadQueue returns the persisted queue in order.
func (s *QueueStore) LoadQueue(ctx context.Context) ([]domain.MediaReference, error) {
	return s.members(ctx, domain.PlaylistQueue)
}

// RecentUpsert moves item to the front of the Recent playlist. An existing
// entry is moved and the entries that were ahead of it shift back by one; a
// new entry pushes everything back and the tail beyond limit is evicted.
// The whole move is one transaction.
func (s *QueueStore) RecentUpsert(ctx context.Context, item domain.MediaReference, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if limit <= 0 {
		limit = domain.DefaultRecentLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.getOrCreate(domain.PlaylistRecent)
	if err != nil {
		return domain.NewServiceError("QueueStore", "RecentUpsert", "resolve recent playlist", err)
	}

	return s.repository.Atomically(func(repo ports.PlaylistRepository) error {
		existing, err := repo.Track(id, item.URI)
		switch {
		case err == nil:
			if existing.Order != 0 {
				if err := repo.ShiftOrders(id, existing.Order, 1); err != nil {
					return domain.NewServiceError("QueueStore", "RecentUpsert", "shift entries", err)
				}
				if err := repo.SetOrder(id, item.URI, 0); err != nil {
					return domain.NewServiceError("QueueStore", "RecentUpsert", "move entry", err)
				}
			}
		case errors.Is(err, domain.ErrTrackNotFound):
			if err := repo.ShiftOrders(id, -1, 1); err != nil {
				return domain.NewServiceError("QueueStore", "RecentUpsert", "shift entries", err)
			}
			if err := repo.InsertTracks([]domain.Track{domain.NewTrack(id, 0, item)}); err != nil {
				return domain.NewServiceError("QueueStore", "RecentUpsert", "insert entry", err)
			}
		default:
			return domain.NewServiceError("QueueStore", "RecentUpsert", "lookup entry", err)
		}

		// orders stay contiguous from 0, so everything at limit or beyond is surplus
		if err := repo.Delete(id, limit); err != nil {
			return domain.NewServiceError("QueueStore", "RecentUpsert", "evict entries", err)
		}
		return s.touch(repo, domain.PlaylistRecent, id)
	})
}

// Recent returns the Recent playlist, most recent first.
func (s *QueueStore) Recent(ctx context.Context) ([]domain.MediaReference, error) {
	return s.members(ctx, domain.PlaylistRecent)
}

// Favourites returns the Favourite playlist in insertion order.
func (s *QueueStore) Favourites(ctx context.Context) ([]domain.MediaReference, error) {
	return s.members(ctx, domain.PlaylistFavourite)
}

// IsFavourite reports whether uri is in the Favourite playlist.
func (s *QueueStore) IsFavourite(ctx context.Context, uri string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := s.lookup(domain.PlaylistFavourite)
	if err != nil || !ok {
		return false, err
	}
	return s.repository.Contains(id, uri)
}

// ToggleFavourite adds or removes item and returns the new membership.
func (s *QueueStore) ToggleFavourite(ctx context.Context, item domain.MediaReference) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.getOrCreate(domain.PlaylistFavourite)
	if err != nil {
		return false, domain.NewServiceError("QueueStore", "ToggleFavourite", "resolve favourite playlist", err)
	}

	member, err := s.repository.Contains(id, item.URI)
	if err != nil {
		return false, domain.NewServiceError("QueueStore", "ToggleFavourite", "lookup entry", err)
	}

	if member {
		if err := s.repository.RemoveTrack(id, item.URI); err != nil {
			return true, domain.NewServiceError("QueueStore", "ToggleFavourite", "remove entry", err)
		}
	} else {
		last, err := s.repository.LastPlayOrder(id)
		if err != nil {
			return false, domain.NewServiceError("QueueStore", "ToggleFavourite", "last order", err)
		}
		if err := s.repository.InsertTracks([]domain.Track{domain.NewTrack(id, last+1, item)}); err != nil {
			return false, domain.NewServiceError("QueueStore", "ToggleFavourite", "insert entry", err)
		}
	}

	if err := s.touch(s.repository, domain.PlaylistFavourite, id); err != nil {
		s.logger.Warn("failed to touch favourite playlist", slog.Any("error", err))
	}
	return !member, nil
}

// Playlist returns the stored metadata of a system playlist.
func (s *QueueStore) Playlist(ctx context.Context, name string) (*domain.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.repository.Get(name)
}

// ClearQueue deletes the persisted queue.
func (s *QueueStore) ClearQueue(ctx context.Context) error {
	return s.UpsertQueue(ctx, nil)
}
