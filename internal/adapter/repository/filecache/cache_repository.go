package filecache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	quarantineDirName = "quarantine"
	filePerm          = 0644
)

// gzipMagic identifies a compressed entry at read time, independent of
// any file naming convention.
var gzipMagic = []byte{0x1f, 0x8b, 0x08}

// CacheRepository implements a content-addressed, file-backed
// transcript cache. Entries are named by the cache key under the root
// directory; a present entry is always a complete transcript because
// writes go through a temp file published by rename. Content for a
// given key is always identical, so concurrent writers need no
// coordination beyond that atomic publish.
type CacheRepository struct {
	root   string
	logger *slog.Logger
}

// NewCacheRepository creates a CacheRepository rooted at dir, creating
// the directory on first use.
func NewCacheRepository(dir string, logger *slog.Logger) (*CacheRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	return &CacheRepository{
		root:   dir,
		logger: logger.With("component", "file_cache"),
	}, nil
}

// Location returns the path of the entry for key.
func (r *CacheRepository) Location(key string) string {
	return filepath.Join(r.root, key)
}

// Exists reports whether a published entry is present for key.
func (r *CacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(r.Location(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat cache entry %s: %w", key, err)
}

// Write persists a complete transcript under key, optionally prefixed
// by a tab-separated header line and optionally gzip-compressed. The
// content is staged in a temp file in the same directory and published
// with a rename, so a crash mid-write never leaves a truncated entry
// that could pass for a valid one on the next run.
func (r *CacheRepository) Write(ctx context.Context, key string, header []string, transcript string, compress bool) error {
	tmp, err := os.CreateTemp(r.root, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to stage cache entry %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(tmp)
		w = gz
	}

	if len(header) > 0 {
		if _, err := io.WriteString(w, strings.Join(header, "\t")+"\n"); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write cache header for %s: %w", key, err)
		}
	}
	if _, err := io.WriteString(w, transcript); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to flush compressed cache entry %s: %w", key, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close staged cache entry %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		return fmt.Errorf("failed to chmod staged cache entry %s: %w", key, err)
	}

	path := r.Location(key)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to publish cache entry %s: %w", key, err)
	}

	r.logger.Info("cache entry written", "key", key, "compressed", compress, "path", path)
	return nil
}

// Read returns the stored content for key, decompressing transparently
// when the entry starts with the gzip magic bytes.
func (r *CacheRepository) Read(ctx context.Context, key string) (string, error) {
	path := r.Location(key)
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open cache entry %s: %w", key, err)
	}
	defer f.Close()

	head := make([]byte, len(gzipMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind cache entry %s: %w", key, err)
	}

	var reader io.Reader = f
	if n == len(gzipMagic) && bytes.Equal(head, gzipMagic) {
		r.logger.Debug("opening cache entry as gzip", "path", path)
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("failed to decompress cache entry %s: %w", key, err)
		}
		defer gz.Close()
		reader = gz
	} else {
		r.logger.Debug("opening cache entry as plain text", "path", path)
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return string(content), nil
}

// Invalidate deletes the entry for key. A missing entry is not an error.
func (r *CacheRepository) Invalidate(ctx context.Context, key string) error {
	err := os.Remove(r.Location(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to invalidate cache entry %s: %w", key, err)
	}
	if err == nil {
		r.logger.Info("cache entry invalidated", "key", key)
	}
	return nil
}

// Quarantine relocates the entry for key into the quarantine
// subdirectory so a retry does not replay a corrupted transcript, and
// returns the new path for diagnostics.
func (r *CacheRepository) Quarantine(ctx context.Context, key string) (string, error) {
	dir := filepath.Join(r.root, quarantineDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create quarantine directory: %w", err)
	}

	dest := filepath.Join(dir, key)
	if err := os.Rename(r.Location(key), dest); err != nil {
		return "", fmt.Errorf("failed to quarantine cache entry %s: %w", key, err)
	}

	r.logger.Warn("cache entry quarantined", "key", key, "path", dest)
	return dest, nil
}

// Clear removes all live entries. Quarantined entries are kept.
func (r *CacheRepository) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(r.root, entry.Name())); err != nil {
			r.logger.Error("failed to remove cache entry", "name", entry.Name(), "error", err)
		}
	}

	r.logger.Info("cache cleared")
	return nil
}
