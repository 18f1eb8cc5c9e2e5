package sqlite

import (
	"github.com/jmoiron/sqlx"
)

const currentSchemaVersion = 1

func initSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS tbl_playlists (
			playlist_id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			date_created INTEGER NOT NULL,
			date_modified INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tbl_playlist_members (
			playlist_id INTEGER NOT NULL REFERENCES tbl_playlists(playlist_id) ON DELETE CASCADE,
			play_order INTEGER NOT NULL,
			uri TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			subtitle TEXT NOT NULL DEFAULT '',
			artwork_uri TEXT NOT NULL DEFAULT '',
			mime_type TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (playlist_id, uri)
		);

		CREATE INDEX IF NOT EXISTS idx_members_order ON tbl_playlist_members(playlist_id, play_order);

		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, currentSchemaVersion)
	return err
}
