package service

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
	"github.com/tejashwikalptaru/tunesession/internal/ports"
)

// LibraryService finds local media files and reads their metadata so they can
// be queued. One scan runs at a time.
type LibraryService struct {
	// Dependencies (injected)
	logger *slog.Logger
	reader ports.MetadataReader

	// State
	scanning      bool
	cancelScan    context.CancelFunc
	supportedExts []string

	// Concurrency control
	mu sync.RWMutex
}

// NewLibraryService creates a new library service.
func NewLibraryService(logger *slog.Logger, reader ports.MetadataReader) *LibraryService {
	return &LibraryService{
		logger: logger.With(slog.String("service", "library")),
		reader: reader,
		supportedExts: []string{
			".mp3", ".mp2",
			".ogg", ".oga", ".opus",
			".wav", ".aif", ".aiff",
			".flac",
			".aac", ".m4a", ".m4b",
			".wma",
			".mp4", ".mkv", ".webm",
		},
	}
}

// begin marks a scan as running and returns its context.
func (s *LibraryService) begin(ctx context.Context, op string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanning {
		return nil, nil, domain.NewServiceError("LibraryService", op, "scan already in progress", nil)
	}
	s.scanning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancelScan = cancel

	return ctx, func() {
		cancel()
		s.mu.Lock()
		s.scanning = false
		s.cancelScan = nil
		s.mu.Unlock()
	}, nil
}

// Scan reads every supported file under paths. Directories are walked
// recursively in lexical order; files are taken as given. Unreadable entries
// are logged and skipped.
func (s *LibraryService) Scan(ctx context.Context, paths []string) ([]domain.MediaReference, error) {
	ctx, done, err := s.begin(ctx, "Scan")
	if err != nil {
		return nil, err
	}
	defer done()

	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			s.logger.Warn("skipping path", slog.String("path", path), slog.Any("error", err))
			continue
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		found, err := s.collectMediaFiles(ctx, path)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	refs := make([]domain.MediaReference, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return refs, err
		}
		ref, err := s.reader.ReadMetadata(file)
		if err != nil {
			s.logger.Warn("skipping unreadable file", slog.String("path", file), slog.Any("error", err))
			continue
		}
		refs = append(refs, ref)
	}

	s.logger.Debug("scan finished", slog.Int("files", len(files)), slog.Int("found", len(refs)))
	return refs, nil
}

// CancelScan cancels the currently running scan operation.
func (s *LibraryService) CancelScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanning {
		return domain.NewServiceError("LibraryService", "CancelScan", "no scan in progress", nil)
	}
	s.cancelScan()
	return nil
}

// IsScanning returns true if a scan is currently in progress.
func (s *LibraryService) IsScanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanning
}

// IsFormatSupported checks if a file format is supported.
func (s *LibraryService) IsFormatSupported(filePath string) bool {
	return slices.Contains(s.supportedExts, strings.ToLower(filepath.Ext(filePath)))
}

// collectMediaFiles recursively collects all supported files in a directory.
func (s *LibraryService) collectMediaFiles(ctx context.Context, folderPath string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(folderPath, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Skip files/folders we can't access
			if d != nil && d.IsDir() && path != folderPath {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && s.IsFormatSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Shutdown cancels any running scan.
func (s *LibraryService) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanning && s.cancelScan != nil {
		s.cancelScan()
	}
	return nil
}
