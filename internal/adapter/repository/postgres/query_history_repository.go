package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"

	"skyquery/internal/domain"
)

const historyTableName = "query_history"

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS ` + historyTableName + ` (
	id           BIGSERIAL PRIMARY KEY,
	run_id       UUID        NOT NULL,
	cache_key    TEXT        NOT NULL,
	command      TEXT        NOT NULL,
	columns      TEXT[],
	window_start TIMESTAMPTZ NOT NULL,
	window_stop  TIMESTAMPTZ NOT NULL,
	cache_hit    BOOLEAN     NOT NULL,
	row_count    INTEGER     NOT NULL,
	outcome      TEXT        NOT NULL,
	duration_ms  BIGINT      NOT NULL,
	executed_at  TIMESTAMPTZ NOT NULL
);`

// QueryHistoryRepository records executed windows to PostgreSQL for
// audit and cache-usage analysis.
type QueryHistoryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewQueryHistoryRepository creates a new PostgreSQL history repository.
func NewQueryHistoryRepository(db *sql.DB, logger *slog.Logger) *QueryHistoryRepository {
	return &QueryHistoryRepository{
		db:     db,
		logger: logger.With("component", "query_history"),
	}
}

// EnsureSchema creates the history table if it does not exist.
func (r *QueryHistoryRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, createHistoryTable)
	return err
}

// RecordExecution inserts one window execution record.
func (r *QueryHistoryRepository) RecordExecution(ctx context.Context, rec domain.QueryExecution) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO `+historyTableName+
			` (run_id, cache_key, command, columns, window_start, window_stop,
			   cache_hit, row_count, outcome, duration_ms, executed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.RunID,
		rec.CacheKey,
		rec.Command,
		pq.Array(rec.Columns),
		rec.WindowStart,
		rec.WindowStop,
		rec.CacheHit,
		rec.RowCount,
		rec.Outcome,
		rec.Duration.Milliseconds(),
		rec.ExecutedAt,
	)
	if err != nil {
		r.logger.Error("failed to record query execution", "error", err, "cache_key", rec.CacheKey)
	}
	return err
}
