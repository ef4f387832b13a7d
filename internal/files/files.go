// Package files manages the directory generated media is written into and
// the public URLs it is served under.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const publicPrefix = "/generated/"

// Store resolves between the on-disk generated directory and the public
// /generated/ URL space.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create generated dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the absolute output directory, for static serving.
func (s *Store) Dir() string {
	return s.dir
}

// CreatePaths allocates a fresh file name and returns its absolute path and
// public URL. Nothing is written yet; callers that download by reference
// write into the absolute path themselves.
func (s *Store) CreatePaths(extension string) (absPath, publicURL string) {
	name := uuid.NewString() + "." + strings.TrimPrefix(extension, ".")
	return filepath.Join(s.dir, name), publicPrefix + name
}

// Write persists raw bytes under a fresh name and returns the public URL.
func (s *Store) Write(data []byte, extension string) (string, error) {
	absPath, publicURL := s.CreatePaths(extension)
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write generated file: %w", err)
	}
	return publicURL, nil
}

// Resolve maps a public /generated/ URL back to its absolute path. Absolute
// http(s) URLs pass through untouched so remote sources stay usable.
func (s *Store) Resolve(url string) (string, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url, nil
	}
	name := strings.TrimPrefix(url, publicPrefix)
	if name == url || name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", fmt.Errorf("not a generated media url: %s", url)
	}
	return filepath.Join(s.dir, name), nil
}
