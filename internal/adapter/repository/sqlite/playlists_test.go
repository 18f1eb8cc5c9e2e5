package sqlite

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
)

func createTestTrack(playlistID int64, order int, name string) domain.Track {
	return domain.NewTrack(playlistID, order, domain.MediaReference{
		URI:      fmt.Sprintf("file:///music/%s.mp3", name),
		Title:    name,
		Subtitle: "Artist",
		MimeType: "audio/mpeg",
	})
}

func setupPlaylist(t *testing.T, name string) (*PlaylistRepository, int64) {
	t.Helper()

	repo := NewPlaylistRepository(setupTestDB(t))
	id, err := repo.Insert(domain.Playlist{Name: name})
	require.NoError(t, err)
	return repo, id
}

func uris(tracks []domain.Track) []string {
	out := make([]string, len(tracks))
	for i, tr := range tracks {
		out[i] = tr.URI
	}
	return out
}

func TestPlaylistRepository_InsertAndGet(t *testing.T) {
	repo := NewPlaylistRepository(setupTestDB(t))

	created := time.UnixMilli(1700000000000)
	id, err := repo.Insert(domain.Playlist{Name: domain.PlaylistQueue, DateCreated: created, DateModified: created})
	require.NoError(t, err)
	assert.Positive(t, id)

	p, err := repo.Get(domain.PlaylistQueue)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, domain.PlaylistQueue, p.Name)
	assert.True(t, created.Equal(p.DateCreated))

	// Names are unique
	_, err = repo.Insert(domain.Playlist{Name: domain.PlaylistQueue})
	assert.Error(t, err)
}

func TestPlaylistRepository_GetMissing(t *testing.T) {
	repo := NewPlaylistRepository(setupTestDB(t))

	p, err := repo.Get("_nope")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, domain.ErrPlaylistNotFound)
}

func TestPlaylistRepository_Update(t *testing.T) {
	repo, id := setupPlaylist(t, "mine")

	modified := time.UnixMilli(1800000000000)
	require.NoError(t, repo.Update(domain.Playlist{ID: id, Name: "renamed", Description: "d", DateModified: modified}))

	p, err := repo.Get("renamed")
	require.NoError(t, err)
	assert.Equal(t, "d", p.Description)
	assert.True(t, modified.Equal(p.DateModified))

	assert.ErrorIs(t, repo.Update(domain.Playlist{ID: id + 100, Name: "x"}), domain.ErrPlaylistNotFound)
}

func TestPlaylistRepository_TracksOrdered(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistQueue)

	require.NoError(t, repo.InsertTracks([]domain.Track{
		createTestTrack(id, 2, "c"),
		createTestTrack(id, 0, "a"),
		createTestTrack(id, 1, "b"),
	}))

	tracks, err := repo.Tracks(id)
	require.NoError(t, err)
	require.Len(t, tracks, 3)
	assert.Equal(t, "a", tracks[0].Title)
	assert.Equal(t, "b", tracks[1].Title)
	assert.Equal(t, "c", tracks[2].Title)
	assert.Equal(t, "audio/mpeg", tracks[0].MimeType)
}

func TestPlaylistRepository_InsertReplacesOnConflict(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistRecent)

	require.NoError(t, repo.InsertTracks([]domain.Track{createTestTrack(id, 3, "a")}))

	updated := createTestTrack(id, 0, "a")
	updated.Title = "A (remaster)"
	require.NoError(t, repo.InsertTracks([]domain.Track{updated}))

	tracks, err := repo.Tracks(id)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, 0, tracks[0].Order)
	assert.Equal(t, "A (remaster)", tracks[0].Title)
}

func TestPlaylistRepository_ReplaceTracks(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistQueue)

	require.NoError(t, repo.InsertTracks([]domain.Track{createTestTrack(id, 0, "old")}))
	require.NoError(t, repo.ReplaceTracks(id, []domain.Track{
		createTestTrack(id, 0, "x"),
		createTestTrack(id, 1, "y"),
	}))

	tracks, err := repo.Tracks(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"file:///music/x.mp3", "file:///music/y.mp3"}, uris(tracks))

	// Replacing with nothing clears
	require.NoError(t, repo.ReplaceTracks(id, nil))
	tracks, err = repo.Tracks(id)
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestPlaylistRepository_ReplaceTracksIsAtomic(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistQueue)
	require.NoError(t, repo.InsertTracks([]domain.Track{createTestTrack(id, 0, "kept")}))

	// The foreign key on the second track fails the whole replacement
	bad := createTestTrack(id+100, 1, "orphan")
	err := repo.ReplaceTracks(id, []domain.Track{createTestTrack(id, 0, "new"), bad})
	assert.Error(t, err)

	tracks, err := repo.Tracks(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"file:///music/kept.mp3"}, uris(tracks))
}

func TestPlaylistRepository_DeleteFromOrder(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistRecent)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.InsertTracks([]domain.Track{createTestTrack(id, i, fmt.Sprint(i))}))
	}

	require.NoError(t, repo.Delete(id, 3))
	tracks, err := repo.Tracks(id)
	require.NoError(t, err)
	assert.Len(t, tracks, 3)

	require.NoError(t, repo.Delete(id, 0))
	tracks, err = repo.Tracks(id)
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestPlaylistRepository_ContainsTrackRemove(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistFavourite)
	tr := createTestTrack(id, 0, "liked")
	require.NoError(t, repo.InsertTracks([]domain.Track{tr}))

	ok, err := repo.Contains(id, tr.URI)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Track(id, tr.URI)
	require.NoError(t, err)
	assert.Equal(t, tr, *got)

	require.NoError(t, repo.RemoveTrack(id, tr.URI))
	require.NoError(t, repo.RemoveTrack(id, tr.URI))

	ok, err = repo.Contains(id, tr.URI)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Track(id, tr.URI)
	assert.ErrorIs(t, err, domain.ErrTrackNotFound)
}

func TestPlaylistRepository_LastPlayOrder(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistFavourite)

	last, err := repo.LastPlayOrder(id)
	require.NoError(t, err)
	assert.Equal(t, -1, last)

	require.NoError(t, repo.InsertTracks([]domain.Track{createTestTrack(id, 0, "a"), createTestTrack(id, 4, "b")}))
	last, err = repo.LastPlayOrder(id)
	require.NoError(t, err)
	assert.Equal(t, 4, last)
}

func TestPlaylistRepository_ShiftAndSetOrder(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistRecent)
	require.NoError(t, repo.InsertTracks([]domain.Track{
		createTestTrack(id, 0, "a"),
		createTestTrack(id, 1, "b"),
		createTestTrack(id, 2, "c"),
	}))

	// Move c to the front: shift entries ahead of it, then set it to 0
	require.NoError(t, repo.ShiftOrders(id, 2, 1))
	require.NoError(t, repo.SetOrder(id, "file:///music/c.mp3", 0))

	tracks, err := repo.Tracks(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"file:///music/c.mp3", "file:///music/a.mp3", "file:///music/b.mp3"}, uris(tracks))

	require.NoError(t, repo.ShiftOrders(id, -1, 1))
	last, err := repo.LastPlayOrder(id)
	require.NoError(t, err)
	assert.Equal(t, 3, last)

	assert.ErrorIs(t, repo.SetOrder(id, "file:///missing", 0), domain.ErrTrackNotFound)
}

func TestPlaylistRepository_AtomicallyCommits(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistRecent)
	require.NoError(t, repo.InsertTracks([]domain.Track{createTestTrack(id, 0, "a")}))

	err := repo.Atomically(func(tx ports.PlaylistRepository) error {
		if err := tx.ShiftOrders(id, -1, 1); err != nil {
			return err
		}
		return tx.InsertTracks([]domain.Track{createTestTrack(id, 0, "b")})
	})
	require.NoError(t, err)

	tracks, err := repo.Tracks(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"file:///music/b.mp3", "file:///music/a.mp3"}, uris(tracks))
}

func TestPlaylistRepository_AtomicallyRollsBack(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistRecent)
	require.NoError(t, repo.InsertTracks([]domain.Track{
		createTestTrack(id, 0, "a"),
		createTestTrack(id, 1, "b"),
	}))

	errBoom := errors.New("boom")
	err := repo.Atomically(func(tx ports.PlaylistRepository) error {
		require.NoError(t, tx.ShiftOrders(id, -1, 1))
		require.NoError(t, tx.Delete(id, 2))

		// Reads inside the transaction see its own writes
		tracks, err := tx.Tracks(id)
		require.NoError(t, err)
		assert.Equal(t, []string{"file:///music/a.mp3"}, uris(tracks))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	tracks, err := repo.Tracks(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"file:///music/a.mp3", "file:///music/b.mp3"}, uris(tracks))
	assert.Equal(t, []int{0, 1}, []int{tracks[0].Order, tracks[1].Order})
}

func TestPlaylistRepository_AtomicallyNests(t *testing.T) {
	repo, id := setupPlaylist(t, domain.PlaylistQueue)

	// ReplaceTracks on a bound repository joins the outer transaction
	err := repo.Atomically(func(tx ports.PlaylistRepository) error {
		if err := tx.ReplaceTracks(id, []domain.Track{createTestTrack(id, 0, "a")}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	assert.Error(t, err)

	tracks, err := repo.Tracks(id)
	require.NoError(t, err)
	assert.Empty(t, tracks)
}
