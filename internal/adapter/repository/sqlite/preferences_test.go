package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferencesRepository_Defaults(t *testing.T) {
	repo := NewPreferencesRepository(setupTestDB(t))

	s, err := repo.GetString("_orders", "")
	require.NoError(t, err)
	assert.Equal(t, "", s)

	i, err := repo.GetInt("_index", -1)
	require.NoError(t, err)
	assert.Equal(t, -1, i)

	b, err := repo.GetBool("_shuffle", false)
	require.NoError(t, err)
	assert.False(t, b)

	i64, err := repo.GetInt64("_bookmark", -1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), i64)
}

func TestPreferencesRepository_SetAndGet(t *testing.T) {
	repo := NewPreferencesRepository(setupTestDB(t))

	require.NoError(t, repo.SetString("_orders", "2;0;1"))
	require.NoError(t, repo.SetInt("_repeat_mode", 2))
	require.NoError(t, repo.SetInt64("_bookmark", 123456789012))
	require.NoError(t, repo.SetBool("_shuffle", true))
	require.NoError(t, repo.SetFloat("speed", 1.25))

	s, err := repo.GetString("_orders", "")
	require.NoError(t, err)
	assert.Equal(t, "2;0;1", s)

	i, err := repo.GetInt("_repeat_mode", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	i64, err := repo.GetInt64("_bookmark", -1)
	require.NoError(t, err)
	assert.Equal(t, int64(123456789012), i64)

	b, err := repo.GetBool("_shuffle", false)
	require.NoError(t, err)
	assert.True(t, b)

	f, err := repo.GetFloat("speed", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.25, f)
}

func TestPreferencesRepository_Overwrite(t *testing.T) {
	repo := NewPreferencesRepository(setupTestDB(t))

	require.NoError(t, repo.SetInt("_index", 1))
	require.NoError(t, repo.SetInt("_index", 7))

	i, err := repo.GetInt("_index", -1)
	require.NoError(t, err)
	assert.Equal(t, 7, i)
}

func TestPreferencesRepository_TypeMismatch(t *testing.T) {
	repo := NewPreferencesRepository(setupTestDB(t))

	require.NoError(t, repo.SetString("_index", "not a number"))

	i, err := repo.GetInt("_index", -1)
	assert.Error(t, err)
	assert.Equal(t, -1, i)
}

func TestPreferencesRepository_RemoveAndClear(t *testing.T) {
	repo := NewPreferencesRepository(setupTestDB(t))

	require.NoError(t, repo.SetBool("_shuffle", true))
	require.NoError(t, repo.SetInt("_index", 3))

	require.NoError(t, repo.Remove("_shuffle"))
	require.NoError(t, repo.Remove("missing"))

	b, err := repo.GetBool("_shuffle", false)
	require.NoError(t, err)
	assert.False(t, b)

	require.NoError(t, repo.Clear())
	i, err := repo.GetInt("_index", -1)
	require.NoError(t, err)
	assert.Equal(t, -1, i)
}
