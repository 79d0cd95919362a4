package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cliply/internal/config"
	"cliply/internal/fileutil"
)

// Store writes artifacts and resolves their public URLs.
type Store interface {
	// Put copies the reader's contents to the named artifact and returns
	// its absolute path on disk.
	Put(category, name string, r io.Reader) (string, error)
	// PutFile moves or copies an existing file into the store.
	PutFile(category, name, sourcePath string) (string, error)
	// URLFor maps a stored path to the URL handed back to callers.
	URLFor(path string) string
}

// Local stores artifacts under a base directory, one subdirectory per
// category.
type Local struct {
	baseDir string
	baseURL string
}

// NewLocal constructs a filesystem store. baseURL may be empty, in which
// case URLFor returns root-relative paths.
func NewLocal(baseDir, baseURL string) *Local {
	return &Local{
		baseDir: baseDir,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

// NewFromConfig builds a store rooted at the configured media directory.
func NewFromConfig(cfg *config.Config) *Local {
	return NewLocal(cfg.Paths.MediaDir, cfg.Storage.PublicBaseURL)
}

// Put writes the reader's contents to category/name under the base
// directory. Writes go through a temp file and rename so readers never see
// a half-written artifact.
func (l *Local) Put(category, name string, r io.Reader) (string, error) {
	dest, err := l.destPath(category, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return dest, nil
}

// PutFile copies an existing file into the store with checksum
// verification, via a temp file and rename like Put.
func (l *Local) PutFile(category, name, sourcePath string) (string, error) {
	dest, err := l.destPath(category, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmp := dest + ".put"
	if err := fileutil.CopyFileVerified(sourcePath, tmp); err != nil {
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return dest, nil
}

// URLFor maps a stored path to its public URL. Paths outside the base
// directory are returned unchanged.
func (l *Local) URLFor(path string) string {
	rel, err := filepath.Rel(l.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	urlPath := "/" + filepath.ToSlash(rel)
	if l.baseURL == "" {
		return urlPath
	}
	return l.baseURL + urlPath
}

// PathFor maps a URL produced by URLFor back to its on-disk path. It
// reports false for URLs the store did not produce.
func (l *Local) PathFor(url string) (string, bool) {
	trimmed := url
	if l.baseURL != "" && strings.HasPrefix(trimmed, l.baseURL) {
		trimmed = strings.TrimPrefix(trimmed, l.baseURL)
	}
	if !strings.HasPrefix(trimmed, "/") {
		return "", false
	}
	path := filepath.Join(l.baseDir, filepath.FromSlash(strings.TrimPrefix(trimmed, "/")))
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// BaseDir returns the store's root directory.
func (l *Local) BaseDir() string {
	return l.baseDir
}

func (l *Local) destPath(category, name string) (string, error) {
	category = strings.TrimSpace(category)
	name = filepath.Base(strings.TrimSpace(name))
	if category == "" || name == "" || name == "." {
		return "", fmt.Errorf("artifact category and name are required")
	}
	return filepath.Join(l.baseDir, category, name), nil
}
