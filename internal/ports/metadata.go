package ports

import "github.com/tejashwikalptaru/tunesession/internal/domain"

// MetadataReader turns a local media file into a queueable reference.
type MetadataReader interface {
	ReadMetadata(path string) (domain.MediaReference, error)
}
