package domain

import (
	"context"
	"time"
)

// CacheRepository is the content-addressed transcript store. An entry,
// once visible, is always the complete transcript of a finished remote
// execution; implementations must publish atomically so a crash mid
// transfer never leaves a truncated entry behind.
type CacheRepository interface {
	// Exists reports whether a complete entry is present for key.
	Exists(ctx context.Context, key string) (bool, error)

	// Write persists a full transcript under key, optionally prefixed
	// by a tab-separated header line naming the columns, optionally
	// gzip-compressed. The entry becomes visible only once complete.
	Write(ctx context.Context, key string, header []string, transcript string, compress bool) error

	// Read returns the stored content, transparently decompressing
	// based on the gzip magic bytes regardless of how it was written.
	Read(ctx context.Context, key string) (string, error)

	// Invalidate deletes the entry for key. Missing entries are not
	// an error.
	Invalidate(ctx context.Context, key string) error

	// Quarantine relocates the entry for key out of the live cache so
	// a retry does not reuse it, and returns the new location.
	Quarantine(ctx context.Context, key string) (string, error)

	// Clear removes all live entries.
	Clear(ctx context.Context) error

	// Location returns where the entry for key lives (for diagnostics).
	Location(key string) string
}

// ShellSession is one authenticated interactive channel to the remote
// store. Implementations are not safe for concurrent use: commands on
// one channel are strictly sequential.
type ShellSession interface {
	// Connect opens the transport, authenticates, launches the remote
	// shell and discards the greeting. Lazily called once per run.
	Connect(ctx context.Context) error

	// Execute submits one command and returns the complete response
	// transcript, or fails without exposing partial output.
	Execute(ctx context.Context, command string) (string, error)

	// Close tears the channel down. Safe to call when disconnected.
	Close() error
}

// TranscriptParser turns one stored transcript into a typed table, a
// raw-text fallback, or an empty result. On a corrupt transcript it
// quarantines the backing cache entry; on a remote error banner it
// deletes the entry.
type TranscriptParser interface {
	Parse(ctx context.Context, key, transcript string, columns []string) (WindowResult, error)
}

// QueryExecution is one window's execution record for the history sink.
type QueryExecution struct {
	RunID       string
	CacheKey    string
	Command     string
	Columns     []string
	WindowStart time.Time
	WindowStop  time.Time
	CacheHit    bool
	RowCount    int
	Outcome     string
	Duration    time.Duration
	ExecutedAt  time.Time
}

// QueryHistoryRepository records executed windows for audit. Recording
// is best-effort and must not fail the query.
type QueryHistoryRepository interface {
	RecordExecution(ctx context.Context, rec QueryExecution) error
}
