package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrTooLarge    = errors.New("file exceeds upload limit")
)

// Saved describes a file written by DiskStore.
type Saved struct {
	Filename string
	Path     string
	Size     int64
}

// DiskStore writes project attachments under a single directory as
// <owner>_<project>_<attachment id>_<basename>, one file per upload.
type DiskStore struct {
	dir      string
	maxBytes int64
}

func NewDiskStore(dir string, maxBytes int64) (*DiskStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, maxBytes: maxBytes}, nil
}

func (s *DiskStore) Dir() string { return s.dir }

// Save streams r into a temporary file and moves it to its final name only
// once the size limit has been checked, so a rejected upload never touches
// an existing attachment.
func (s *DiskStore) Save(owner, projectID, filename string, r io.Reader) (Saved, error) {
	base := sanitizeName(filename)
	if base == "" {
		return Saved{}, ErrInvalidName
	}
	name := strings.Join([]string{sanitizeName(owner), sanitizeName(projectID), uuid.NewString(), base}, "_")
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Saved{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(tmpPath)
		return Saved{}, fmt.Errorf("write file: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(tmpPath)
		return Saved{}, fmt.Errorf("close file: %w", closeErr)
	case s.maxBytes > 0 && n > s.maxBytes:
		_ = os.Remove(tmpPath)
		return Saved{}, ErrTooLarge
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return Saved{}, fmt.Errorf("store file: %w", err)
	}
	return Saved{Filename: base, Path: path, Size: n}, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *DiskStore) Remove(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	clean := filepath.Clean(path)
	if filepath.Dir(clean) != filepath.Clean(s.dir) {
		return fmt.Errorf("%w: %s is outside the upload dir", ErrInvalidName, path)
	}
	if err := os.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func sanitizeName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == ".." || base == "/" {
		return ""
	}
	return base
}
