// Package fs writes generated artifacts, skipping files whose content is
// already up to date.
package fs

import (
	"crypto/sha1" //nolint:gosec // Not used for security purposes, just content comparison
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/trly/pei-docker/internal/log"
)

// Service provides file system operations over an afero filesystem.
type Service struct {
	fs     afero.Fs
	logger log.Logger
}

// NewService creates a filesystem service backed by the OS filesystem.
func NewService(logger log.Logger) *Service {
	return NewServiceWithFs(afero.NewOsFs(), logger)
}

// NewServiceWithFs creates a filesystem service with explicit filesystem injection.
func NewServiceWithFs(fsys afero.Fs, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{fs: fsys, logger: logger}
}

// Fs returns the underlying filesystem.
func (s *Service) Fs() afero.Fs {
	return s.fs
}

// HasChanged reports whether the file at path differs from content.
func (s *Service) HasChanged(path string, content []byte) bool {
	existing, err := afero.ReadFile(s.fs, path)
	if err != nil {
		// File doesn't exist or can't be read, so it has changed
		return true
	}

	s.logger.Debug("Content hash comparison",
		"path", path,
		"existing", fmt.Sprintf("%x", GetContentHash(existing)),
		"new", fmt.Sprintf("%x", GetContentHash(content)))

	return string(existing) != string(content)
}

// WriteFile writes content to path with mode, creating parent directories.
// Unchanged files are left alone, apart from correcting their mode.
// It reports whether the content was written.
func (s *Service) WriteFile(path string, content []byte, mode os.FileMode) (bool, error) {
	if !s.HasChanged(path, content) {
		s.logger.Debug("File unchanged, skipping", "path", path)
		if err := s.ensureMode(path, mode); err != nil {
			return false, err
		}
		return false, nil
	}

	s.logger.Debug("Writing file", "path", path, "mode", fmt.Sprintf("%#o", mode))

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(s.fs, path, content, mode); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	// WriteFile only applies mode on create.
	if err := s.ensureMode(path, mode); err != nil {
		return false, err
	}
	return true, nil
}

// ReadFile reads the file at path.
func (s *Service) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, path)
}

// Exists reports whether path exists.
func (s *Service) Exists(path string) (bool, error) {
	_, err := s.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *Service) ensureMode(path string, mode os.FileMode) error {
	info, err := s.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Mode().Perm() == mode.Perm() {
		return nil
	}
	if err := s.fs.Chmod(path, mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	return nil
}

// GetContentHash calculates a SHA1 hash for change tracking.
func GetContentHash(content []byte) []byte {
	hash := sha1.New() //nolint:gosec // Not used for security purposes, just for content tracking
	hash.Write(content)
	return hash.Sum(nil)
}
