package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Granularity is the partitioning granularity of the remote store.
// Partition bounds of a window are always aligned to it.
type Granularity time.Duration

const (
	GranularityHour = Granularity(time.Hour)
	GranularityDay  = Granularity(24 * time.Hour)
)

// Floor rounds t down to the nearest partition boundary.
func (g Granularity) Floor(t time.Time) time.Time {
	return t.Truncate(time.Duration(g))
}

// Ceil rounds t up to the nearest partition boundary. An already
// aligned instant is returned unchanged.
func (g Granularity) Ceil(t time.Time) time.Time {
	floored := t.Truncate(time.Duration(g))
	if floored.Equal(t) {
		return t
	}
	return floored.Add(time.Duration(g))
}

// Window is one half-open slice [Start, Stop) of a query range. The
// partition bounds are the enclosing partition-aligned interval, so
// PartitionStart <= Start and PartitionEnd >= Stop always hold.
type Window struct {
	Start          time.Time
	Stop           time.Time
	PartitionStart time.Time
	PartitionEnd   time.Time
}

// ProgressFunc observes window completion during a multi-window run.
// It is called synchronously between windows and must not block.
type ProgressFunc func(completed, total int)

// Query describes one multi-window request. It is treated as immutable
// once handed to the executor.
//
// Template is opaque command text containing the placeholders
// {before_time}, {after_time}, {before_hour}, {after_hour} (and the
// day-granularity equivalents {before_day}, {after_day}), which the
// executor substitutes per window with unix-second bounds.
type Query struct {
	Template    string
	Start       time.Time
	Stop        time.Time
	Columns     []string
	WindowSize  time.Duration
	Granularity Granularity
	UseCache    bool
	Compress    bool
	Progress    ProgressFunc
}

// CommandKey derives the cache key for one fully-substituted command:
// the lowercase hex SHA-256 digest of the literal text. Identical text
// always maps to the same key.
func CommandKey(command string) string {
	sum := sha256.Sum256([]byte(command))
	return hex.EncodeToString(sum[:])
}
