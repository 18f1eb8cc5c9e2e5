package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestProbe_UntaggedFallsBackToFileName(t *testing.T) {
	path := writeFile(t, "Night Drive.mp3", []byte("not really an mp3"))

	ref, err := Probe(path)
	require.NoError(t, err)

	assert.Equal(t, "Night Drive", ref.Title)
	assert.Equal(t, "audio/mpeg", ref.MimeType)
	assert.Empty(t, ref.Subtitle)
	assert.Contains(t, ref.URI, "file://")
	assert.False(t, ref.IsThirdParty())
}

func TestProbe_VideoExtension(t *testing.T) {
	ref, err := Probe(writeFile(t, "clip.mp4", []byte{0, 1, 2, 3}))
	require.NoError(t, err)
	assert.True(t, ref.IsVideo())
}

func TestProbe_Errors(t *testing.T) {
	_, err := Probe("")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = Probe(filepath.Join(t.TempDir(), "missing.flac"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReader(t *testing.T) {
	good := writeFile(t, "a.flac", []byte("x"))

	ref, err := Reader{}.ReadMetadata(good)
	require.NoError(t, err)
	assert.Equal(t, "a", ref.Title)
	assert.Equal(t, "audio/flac", ref.MimeType)

	_, err = Reader{}.ReadMetadata(filepath.Join(t.TempDir(), "b.flac"))
	assert.Error(t, err)
}

func TestFileURI(t *testing.T) {
	uri, err := FileURI("/tmp/x y.mp3")
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/x%20y.mp3", uri)
}
