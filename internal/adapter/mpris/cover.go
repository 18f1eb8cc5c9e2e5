//go:build linux

package mpris

import (
	"net/url"
	"os"
	"path/filepath"
)

// coverNames lists common album art filenames in priority order.
var coverNames = []string{
	"cover.jpg", "cover.png", "cover.jpeg",
	"folder.jpg", "folder.png", "folder.jpeg",
	"albumart.jpg", "front.jpg", "front.png",
}

// FindAlbumArt looks for album art next to a local file. uri may be a plain
// path or a file:// URI; other schemes never have art.
func FindAlbumArt(uri string) string {
	path := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme != "" {
		if u.Scheme != "file" {
			return ""
		}
		path = u.Path
	}
	if path == "" {
		return ""
	}

	dir := filepath.Dir(path)
	for _, name := range coverNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
