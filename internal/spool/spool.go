// Package spool persists uploaded source images so the worker and later
// regenerate requests can read them back by file name.
package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidName = errors.New("spool: invalid file name")
	ErrNotFound    = errors.New("spool: file not found")
)

// Spool writes source images under a private directory. Files are never
// removed by the service.
type Spool struct {
	dir string
	seq atomic.Uint64
	now func() time.Time
}

// New initializes a Spool rooted at dir, creating it if needed.
func New(dir string) (*Spool, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("spool: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("spool: resolve directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("spool: ensure directory: %w", err)
	}
	return &Spool{dir: abs, now: time.Now}, nil
}

// Dir returns the absolute spool directory.
func (s *Spool) Dir() string { return s.dir }

// Save writes data to a fresh, unique file and returns its absolute path.
// ext should include the leading dot.
func (s *Spool) Save(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, s.nextName(ext))
	// Never overwrite an existing source.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("spool: create file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("spool: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("spool: close file: %w", err)
	}
	return path, nil
}

// nextName builds YYYYMMDDhhmmss + microseconds + "_" + sequence + ext.
func (s *Spool) nextName(ext string) string {
	now := s.now()
	return fmt.Sprintf("%s%06d_%d%s", now.Format("20060102150405"), now.Nanosecond()/1000, s.seq.Add(1), ext)
}

// Resolve maps a bare file name back to its absolute path inside the spool.
// Names containing path separators or parent references are rejected.
func (s *Spool) Resolve(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("spool: stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return path, nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
