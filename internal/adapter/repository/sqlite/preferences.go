package sqlite

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
)

const preferencesRepoType = "preferences"

// PreferencesRepository implements ports.PreferencesRepository on the
// preferences table. Values are stored as text and parsed on read.
//
// Thread-safety: safe for concurrent use.
type PreferencesRepository struct {
	db *DB
}

// NewPreferencesRepository creates a preferences repository on db.
func NewPreferencesRepository(db *DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

func (r *PreferencesRepository) get(key string) (string, bool, error) {
	var value string
	err := r.db.Get(&value, `SELECT value FROM preferences WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.NewRepositoryError("get", preferencesRepoType, key, err)
	}
	return value, true, nil
}

func (r *PreferencesRepository) set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return domain.NewRepositoryError("set", preferencesRepoType, key, err)
	}
	return nil
}

// parse reads key and decodes it with fn, returning def when the key is absent.
func parse[T any](r *PreferencesRepository, key string, def T, fn func(string) (T, error)) (T, error) {
	raw, ok, err := r.get(key)
	if err != nil || !ok {
		return def, err
	}
	v, err := fn(raw)
	if err != nil {
		return def, domain.NewRepositoryError("get", preferencesRepoType, key, err)
	}
	return v, nil
}

// GetString returns the string stored at key.
func (r *PreferencesRepository) GetString(key string, def string) (string, error) {
	return parse(r, key, def, func(s string) (string, error) { return s, nil })
}

// SetString stores a string.
func (r *PreferencesRepository) SetString(key string, value string) error {
	return r.set(key, value)
}

// GetInt returns the int stored at key.
func (r *PreferencesRepository) GetInt(key string, def int) (int, error) {
	return parse(r, key, def, strconv.Atoi)
}

// SetInt stores an int.
func (r *PreferencesRepository) SetInt(key string, value int) error {
	return r.set(key, strconv.Itoa(value))
}

// GetInt64 returns the int64 stored at key.
func (r *PreferencesRepository) GetInt64(key string, def int64) (int64, error) {
	return parse(r, key, def, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
}

// SetInt64 stores an int64.
func (r *PreferencesRepository) SetInt64(key string, value int64) error {
	return r.set(key, strconv.FormatInt(value, 10))
}

// GetBool returns the bool stored at key.
func (r *PreferencesRepository) GetBool(key string, def bool) (bool, error) {
	return parse(r, key, def, strconv.ParseBool)
}

// SetBool stores a bool.
func (r *PreferencesRepository) SetBool(key string, value bool) error {
	return r.set(key, strconv.FormatBool(value))
}

// GetFloat returns the float stored at key.
func (r *PreferencesRepository) GetFloat(key string, def float64) (float64, error) {
	return parse(r, key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// SetFloat stores a float.
func (r *PreferencesRepository) SetFloat(key string, value float64) error {
	return r.set(key, strconv.FormatFloat(value, 'g', -1, 64))
}

// Remove deletes key.
func (r *PreferencesRepository) Remove(key string) error {
	if _, err := r.db.Exec(`DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return domain.NewRepositoryError("remove", preferencesRepoType, key, err)
	}
	return nil
}

// Clear removes all saved preferences.
func (r *PreferencesRepository) Clear() error {
	if _, err := r.db.Exec(`DELETE FROM preferences`); err != nil {
		return domain.NewRepositoryError("clear", preferencesRepoType, "delete all", err)
	}
	return nil
}

// Verify interface implementation
var _ ports.PreferencesRepository = (*PreferencesRepository)(nil)
