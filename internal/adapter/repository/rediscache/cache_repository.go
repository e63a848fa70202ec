package rediscache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"
)

const (
	entryPrefix      = "skyquery:cache:"
	quarantinePrefix = "skyquery:quarantine:"
)

var gzipMagic = []byte{0x1f, 0x8b, 0x08}

// CacheRepository implements the transcript cache on Redis, for fleets
// that share one cache across hosts. Same invariants as the file
// backend: an entry is published in a single SET so it is never
// visible half-written, and identical keys always carry identical
// content, so SETNX makes concurrent writers race-free.
type CacheRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCacheRepository creates a Redis-backed CacheRepository.
func NewCacheRepository(client *redis.Client, logger *slog.Logger) *CacheRepository {
	return &CacheRepository{
		client: client,
		logger: logger.With("component", "redis_cache"),
	}
}

// Location returns the Redis key of the entry for key.
func (r *CacheRepository) Location(key string) string {
	return entryPrefix + key
}

// Exists reports whether an entry is present for key.
func (r *CacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.Location(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cache entry %s: %w", key, err)
	}
	return n > 0, nil
}

// Write publishes a complete transcript under key. The optional header
// and gzip framing match the file backend byte for byte, so entries
// are portable between backends.
func (r *CacheRepository) Write(ctx context.Context, key string, header []string, transcript string, compress bool) error {
	var buf bytes.Buffer
	var w io.Writer = &buf
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(&buf)
		w = gz
	}

	if len(header) > 0 {
		if _, err := io.WriteString(w, strings.Join(header, "\t")+"\n"); err != nil {
			return fmt.Errorf("failed to encode cache header for %s: %w", key, err)
		}
	}
	if _, err := io.WriteString(w, transcript); err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to flush compressed cache entry %s: %w", key, err)
		}
	}

	// SETNX: a concurrent writer of the same key wrote the same bytes.
	if err := r.client.SetNX(ctx, r.Location(key), buf.Bytes(), 0).Err(); err != nil {
		return fmt.Errorf("failed to publish cache entry %s: %w", key, err)
	}

	r.logger.Info("cache entry written", "key", key, "compressed", compress)
	return nil
}

// Read returns the stored content for key, decompressing transparently
// when the payload starts with the gzip magic bytes.
func (r *CacheRepository) Read(ctx context.Context, key string) (string, error) {
	payload, err := r.client.Get(ctx, r.Location(key)).Bytes()
	if err != nil {
		return "", fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}

	if !bytes.HasPrefix(payload, gzipMagic) {
		return string(payload), nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to decompress cache entry %s: %w", key, err)
	}
	defer gz.Close()

	content, err := io.ReadAll(gz)
	if err != nil {
		return "", fmt.Errorf("failed to decompress cache entry %s: %w", key, err)
	}
	return string(content), nil
}

// Invalidate deletes the entry for key. A missing entry is not an error.
func (r *CacheRepository) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.Location(key)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache entry %s: %w", key, err)
	}
	return nil
}

// Quarantine renames the entry under the quarantine prefix and returns
// the new key.
func (r *CacheRepository) Quarantine(ctx context.Context, key string) (string, error) {
	dest := quarantinePrefix + key
	if err := r.client.Rename(ctx, r.Location(key), dest).Err(); err != nil {
		return "", fmt.Errorf("failed to quarantine cache entry %s: %w", key, err)
	}
	r.logger.Warn("cache entry quarantined", "key", key, "location", dest)
	return dest, nil
}

// Clear removes all live entries, leaving quarantined ones in place.
func (r *CacheRepository) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, entryPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil && !errors.Is(err, redis.Nil) {
			r.logger.Error("failed to remove cache entry", "redis_key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache entries: %w", err)
	}

	r.logger.Info("cache cleared")
	return nil
}
