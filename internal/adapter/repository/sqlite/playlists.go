package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
)

const playlistRepoType = "playlist"

// PlaylistRepository implements ports.PlaylistRepository over tbl_playlists
// and tbl_playlist_members.
//
// Thread-safety: safe for concurrent use; the pool holds a single connection.
// A repository handed out by Atomically is bound to its transaction and must
// not outlive the callback.
type PlaylistRepository struct {
	db *DB
	tx *sqlx.Tx
}

// queryer is what *sqlx.DB and *sqlx.Tx have in common.
type queryer interface {
	Get(dest any, query string, args ...any) error
	Select(dest any, query string, args ...any) error
	Exec(query string, args ...any) (sql.Result, error)
	NamedExec(query string, arg any) (sql.Result, error)
}

func (r *PlaylistRepository) q() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// inTx runs fn in the bound transaction, or in a new one.
func (r *PlaylistRepository) inTx(fn func(tx *sqlx.Tx) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	return withTx(r.db.DB, fn)
}

// playlistRow is the on-disk shape of a playlist; times are unix milliseconds.
type playlistRow struct {
	ID           int64  `db:"playlist_id"`
	Name         string `db:"name"`
	Description  string `db:"description"`
	DateCreated  int64  `db:"date_created"`
	DateModified int64  `db:"date_modified"`
}

func (r playlistRow) toDomain() *domain.Playlist {
	return &domain.Playlist{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		DateCreated:  time.UnixMilli(r.DateCreated),
		DateModified: time.UnixMilli(r.DateModified),
	}
}

// NewPlaylistRepository creates a playlist repository on db.
func NewPlaylistRepository(db *DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Get returns the playlist named name.
func (r *PlaylistRepository) Get(name string) (*domain.Playlist, error) {
	var row playlistRow
	err := r.q().Get(&row, `
		SELECT playlist_id, name, description, date_created, date_modified
		FROM tbl_playlists WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPlaylistNotFound
	}
	if err != nil {
		return nil, domain.NewRepositoryError("get", playlistRepoType, name, err)
	}
	return row.toDomain(), nil
}

// Insert creates the playlist and returns its id.
func (r *PlaylistRepository) Insert(playlist domain.Playlist) (int64, error) {
	now := time.Now()
	if playlist.DateCreated.IsZero() {
		playlist.DateCreated = now
	}
	if playlist.DateModified.IsZero() {
		playlist.DateModified = now
	}

	res, err := r.q().NamedExec(`
		INSERT INTO tbl_playlists (name, description, date_created, date_modified)
		VALUES (:name, :description, :date_created, :date_modified)`,
		playlistRow{
			Name:         playlist.Name,
			Description:  playlist.Description,
			DateCreated:  playlist.DateCreated.UnixMilli(),
			DateModified: playlist.DateModified.UnixMilli(),
		})
	if err != nil {
		return 0, domain.NewRepositoryError("insert", playlistRepoType, playlist.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, domain.NewRepositoryError("insert", playlistRepoType, "last insert id", err)
	}
	return id, nil
}

// Update rewrites the mutable columns of an existing playlist.
func (r *PlaylistRepository) Update(playlist domain.Playlist) error {
	res, err := r.q().NamedExec(`
		UPDATE tbl_playlists
		SET name = :name, description = :description, date_modified = :date_modified
		WHERE playlist_id = :playlist_id`,
		playlistRow{
			ID:           playlist.ID,
			Name:         playlist.Name,
			Description:  playlist.Description,
			DateModified: playlist.DateModified.UnixMilli(),
		})
	if err != nil {
		return domain.NewRepositoryError("update", playlistRepoType, playlist.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlaylistNotFound
	}
	return nil
}

// Tracks returns the members of the playlist ordered by play order.
func (r *PlaylistRepository) Tracks(playlistID int64) ([]domain.Track, error) {
	tracks := []domain.Track{}
	err := r.q().Select(&tracks, `
		SELECT playlist_id, play_order, uri, title, subtitle, artwork_uri, mime_type
		FROM tbl_playlist_members
		WHERE playlist_id = ?
		ORDER BY play_order ASC, rowid ASC`, playlistID)
	if err != nil {
		return nil, domain.NewRepositoryError("tracks", playlistRepoType, "select members", err)
	}
	return tracks, nil
}

const upsertMember = `
	INSERT INTO tbl_playlist_members (playlist_id, play_order, uri, title, subtitle, artwork_uri, mime_type)
	VALUES (:playlist_id, :play_order, :uri, :title, :subtitle, :artwork_uri, :mime_type)
	ON CONFLICT(playlist_id, uri) DO UPDATE SET
		play_order = excluded.play_order,
		title = excluded.title,
		subtitle = excluded.subtitle,
		artwork_uri = excluded.artwork_uri,
		mime_type = excluded.mime_type`

// InsertTracks inserts or replaces members.
func (r *PlaylistRepository) InsertTracks(tracks []domain.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	err := r.inTx(func(tx *sqlx.Tx) error {
		return insertMembers(tx, tracks)
	})
	if err != nil {
		return domain.NewRepositoryError("insert_tracks", playlistRepoType, "insert members", err)
	}
	return nil
}

// ReplaceTracks swaps the whole member set of the playlist in one transaction.
func (r *PlaylistRepository) ReplaceTracks(playlistID int64, tracks []domain.Track) error {
	err := r.inTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`DELETE FROM tbl_playlist_members WHERE playlist_id = ?`, playlistID); err != nil {
			return err
		}
		return insertMembers(tx, tracks)
	})
	if err != nil {
		return domain.NewRepositoryError("replace_tracks", playlistRepoType, "replace members", err)
	}
	return nil
}

func insertMembers(tx *sqlx.Tx, tracks []domain.Track) error {
	stmt, err := tx.PrepareNamed(upsertMember)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tracks {
		if _, err := stmt.Exec(t); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes members with play order >= fromOrder.
func (r *PlaylistRepository) Delete(playlistID int64, fromOrder int) error {
	_, err := r.q().Exec(`DELETE FROM tbl_playlist_members WHERE playlist_id = ? AND play_order >= ?`,
		playlistID, fromOrder)
	if err != nil {
		return domain.NewRepositoryError("delete", playlistRepoType, "delete members", err)
	}
	return nil
}

// Contains reports whether uri is a member.
func (r *PlaylistRepository) Contains(playlistID int64, uri string) (bool, error) {
	var found bool
	err := r.q().Get(&found, `
		SELECT EXISTS(SELECT 1 FROM tbl_playlist_members WHERE playlist_id = ? AND uri = ?)`,
		playlistID, uri)
	if err != nil {
		return false, domain.NewRepositoryError("contains", playlistRepoType, uri, err)
	}
	return found, nil
}

// Track returns the member with uri.
func (r *PlaylistRepository) Track(playlistID int64, uri string) (*domain.Track, error) {
	var t domain.Track
	err := r.q().Get(&t, `
		SELECT playlist_id, play_order, uri, title, subtitle, artwork_uri, mime_type
		FROM tbl_playlist_members WHERE playlist_id = ? AND uri = ?`, playlistID, uri)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTrackNotFound
	}
	if err != nil {
		return nil, domain.NewRepositoryError("track", playlistRepoType, uri, err)
	}
	return &t, nil
}

// RemoveTrack deletes the member with uri.
func (r *PlaylistRepository) RemoveTrack(playlistID int64, uri string) error {
	_, err := r.q().Exec(`DELETE FROM tbl_playlist_members WHERE playlist_id = ? AND uri = ?`, playlistID, uri)
	if err != nil {
		return domain.NewRepositoryError("remove_track", playlistRepoType, uri, err)
	}
	return nil
}

// LastPlayOrder returns the highest play order, -1 for an empty playlist.
func (r *PlaylistRepository) LastPlayOrder(playlistID int64) (int, error) {
	var last sql.NullInt64
	err := r.q().Get(&last, `SELECT MAX(play_order) FROM tbl_playlist_members WHERE playlist_id = ?`, playlistID)
	if err != nil {
		return 0, domain.NewRepositoryError("last_play_order", playlistRepoType, "max order", err)
	}
	if !last.Valid {
		return -1, nil
	}
	return int(last.Int64), nil
}

// ShiftOrders adds delta to every member with play order < below (all members when below < 0).
func (r *PlaylistRepository) ShiftOrders(playlistID int64, below int, delta int) error {
	var err error
	if below < 0 {
		_, err = r.q().Exec(`UPDATE tbl_playlist_members SET play_order = play_order + ? WHERE playlist_id = ?`,
			delta, playlistID)
	} else {
		_, err = r.q().Exec(`UPDATE tbl_playlist_members SET play_order = play_order + ? WHERE playlist_id = ? AND play_order < ?`,
			delta, playlistID, below)
	}
	if err != nil {
		return domain.NewRepositoryError("shift_orders", playlistRepoType, "update orders", err)
	}
	return nil
}

// SetOrder changes the play order of one member.
func (r *PlaylistRepository) SetOrder(playlistID int64, uri string, order int) error {
	res, err := r.q().Exec(`UPDATE tbl_playlist_members SET play_order = ? WHERE playlist_id = ? AND uri = ?`,
		order, playlistID, uri)
	if err != nil {
		return domain.NewRepositoryError("set_order", playlistRepoType, uri, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTrackNotFound
	}
	return nil
}

// Atomically runs fn against a repository bound to one transaction. Either
// every change fn makes is committed or none is.
func (r *PlaylistRepository) Atomically(fn func(repo ports.PlaylistRepository) error) error {
	return r.inTx(func(tx *sqlx.Tx) error {
		return fn(&PlaylistRepository{db: r.db, tx: tx})
	})
}

// Verify that PlaylistRepository implements the port
var _ ports.PlaylistRepository = (*PlaylistRepository)(nil)
