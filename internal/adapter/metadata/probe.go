// Package metadata reads tags from local media files and turns them into
// queueable media references.
package metadata

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
)

// fileTypeMIME maps tag file types to MIME types.
var fileTypeMIME = map[tag.FileType]string{
	tag.MP3:  "audio/mpeg",
	tag.M4A:  "audio/mp4",
	tag.M4B:  "audio/mp4",
	tag.M4P:  "audio/mp4",
	tag.ALAC: "audio/mp4",
	tag.FLAC: "audio/flac",
	tag.OGG:  "audio/ogg",
	tag.DSF:  "audio/dsf",
}

// extensionMIME covers formats mime.TypeByExtension does not know on every platform.
var extensionMIME = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// FileURI returns the file:// URI for path.
func FileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// Probe builds a MediaReference for the file at path. Title falls back to the
// file name when the file carries no usable tags.
func Probe(path string) (domain.MediaReference, error) {
	if path == "" {
		return domain.MediaReference{}, domain.NewValidationError("path", path, "empty path")
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.MediaReference{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	uri, err := FileURI(path)
	if err != nil {
		return domain.MediaReference{}, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	ref := domain.MediaReference{
		URI:      uri,
		Title:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		MimeType: mimeForExtension(ext),
	}

	metadata, err := tag.ReadFrom(file)
	if err != nil || metadata == nil {
		// untagged or unsupported container
		return ref, nil
	}

	if title := strings.TrimSpace(metadata.Title()); title != "" {
		ref.Title = title
	}
	if artist := strings.TrimSpace(metadata.Artist()); artist != "" {
		ref.Subtitle = artist
	} else if albumArtist := strings.TrimSpace(metadata.AlbumArtist()); albumArtist != "" {
		ref.Subtitle = albumArtist
	}
	if mimeType, ok := fileTypeMIME[metadata.FileType()]; ok && ref.MimeType == "" {
		ref.MimeType = mimeType
	}

	return ref, nil
}

func mimeForExtension(ext string) string {
	if m, ok := extensionMIME[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		mediaType, _, _ := mime.ParseMediaType(m)
		return mediaType
	}
	return ""
}

// Reader adapts Probe to ports.MetadataReader.
type Reader struct{}

// ReadMetadata implements ports.MetadataReader.
func (Reader) ReadMetadata(path string) (domain.MediaReference, error) {
	return Probe(path)
}
