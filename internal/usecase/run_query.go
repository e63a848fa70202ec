package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"skyquery/internal/adapter/metrics"
	"skyquery/internal/domain"
	"skyquery/internal/pkg/timewindow"
)

// RunQueryUseCase drives one query across its time windows: split,
// substitute, consult the cache, execute on a miss, persist, parse,
// accumulate. Windows run strictly sequentially over a single session;
// callers needing parallel queries run independent executors.
type RunQueryUseCase struct {
	session domain.ShellSession
	cache   domain.CacheRepository
	parser  domain.TranscriptParser
	history domain.QueryHistoryRepository
	limiter *rate.Limiter
	metrics *metrics.QueryMetrics
	logger  *slog.Logger

	connected bool
}

// Option configures optional collaborators of the executor.
type Option func(*RunQueryUseCase)

// WithHistory records every executed window to the given sink.
func WithHistory(h domain.QueryHistoryRepository) Option {
	return func(uc *RunQueryUseCase) { uc.history = h }
}

// WithMetrics publishes executor metrics.
func WithMetrics(m *metrics.QueryMetrics) Option {
	return func(uc *RunQueryUseCase) { uc.metrics = m }
}

// WithSubmitInterval throttles consecutive remote submissions.
func WithSubmitInterval(interval time.Duration) Option {
	return func(uc *RunQueryUseCase) {
		if interval > 0 {
			uc.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// NewRunQueryUseCase creates a new RunQueryUseCase.
func NewRunQueryUseCase(
	session domain.ShellSession,
	cache domain.CacheRepository,
	parser domain.TranscriptParser,
	logger *slog.Logger,
	opts ...Option,
) *RunQueryUseCase {
	uc := &RunQueryUseCase{
		session: session,
		cache:   cache,
		parser:  parser,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logger.With("component", "query_executor"),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Run executes the query window by window and assembles the aggregate
// result. It returns nil when no window produced data. Any window
// failure aborts the whole call: a partial, silently-incomplete result
// set is never returned.
func (uc *RunQueryUseCase) Run(ctx context.Context, q domain.Query) (*domain.ResultSet, error) {
	granularity := q.Granularity
	if granularity == 0 {
		granularity = domain.GranularityHour
	}
	windowSize := q.WindowSize
	if windowSize <= 0 {
		windowSize = time.Hour
	}

	runID := uuid.NewString()
	logger := uc.logger.With("run_id", runID)

	windows := timewindow.Collect(q.Start, q.Stop, windowSize, granularity)
	logger.Info("starting query run",
		"windows", len(windows), "start", q.Start, "stop", q.Stop, "use_cache", q.UseCache)

	result := &domain.ResultSet{}
	for i, w := range windows {
		if err := uc.runWindow(ctx, logger, runID, q, w, result); err != nil {
			uc.countFailure(err)
			return nil, err
		}
		if q.Progress != nil {
			q.Progress(i+1, len(windows))
		}
	}

	if result.Empty() {
		logger.Info("query run finished with no matching rows")
		return nil, nil
	}
	logger.Info("query run finished", "rows", len(result.Rows))
	return result, nil
}

func (uc *RunQueryUseCase) runWindow(
	ctx context.Context,
	logger *slog.Logger,
	runID string,
	q domain.Query,
	w domain.Window,
	result *domain.ResultSet,
) error {
	started := time.Now()
	command := substitute(q.Template, w)
	key := domain.CommandKey(command)
	logger = logger.With("cache_key", key, "window_start", w.Start, "window_stop", w.Stop)

	if !q.UseCache {
		if err := uc.cache.Invalidate(ctx, key); err != nil {
			return fmt.Errorf("failed to invalidate cache for forced refresh: %w", err)
		}
	}

	hit, err := uc.cache.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to consult cache: %w", err)
	}

	if hit {
		logger.Debug("serving window from cache")
		if uc.metrics != nil {
			uc.metrics.CacheHits.Inc()
		}
	} else {
		if uc.metrics != nil {
			uc.metrics.CacheMisses.Inc()
		}
		if err := uc.executeAndPersist(ctx, logger, key, command, q); err != nil {
			return err
		}
	}

	stored, err := uc.cache.Read(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read cached transcript: %w", err)
	}

	res, err := uc.parser.Parse(ctx, key, stored, q.Columns)
	outcome := classify(res, err)
	uc.record(ctx, domain.QueryExecution{
		RunID:       runID,
		CacheKey:    key,
		Command:     command,
		Columns:     q.Columns,
		WindowStart: w.Start,
		WindowStop:  w.Stop,
		CacheHit:    hit,
		RowCount:    rowCount(res),
		Outcome:     outcome,
		Duration:    time.Since(started),
		ExecutedAt:  started,
	})
	if uc.metrics != nil {
		uc.metrics.WindowsTotal.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		return err
	}

	switch {
	case res.Empty():
		logger.Debug("window returned no rows")
	case res.Raw != "":
		result.Raw = append(result.Raw, res.Raw)
	default:
		formatIdentifiers(res.Table)
		result.Append(res.Table)
	}
	return nil
}

// executeAndPersist runs the command remotely and persists the full
// transcript before any parsing, connecting the session on first use.
func (uc *RunQueryUseCase) executeAndPersist(
	ctx context.Context,
	logger *slog.Logger,
	key, command string,
	q domain.Query,
) error {
	if !uc.connected {
		logger.Info("connecting session")
		if err := uc.session.Connect(ctx); err != nil {
			return err
		}
		uc.connected = true
		if uc.metrics != nil {
			uc.metrics.SessionsOpened.Inc()
		}
	}

	if err := uc.limiter.Wait(ctx); err != nil {
		return &domain.ConnectionError{Op: "throttle", Err: err}
	}

	logger.Info("executing remote command")
	transcript, err := uc.session.Execute(ctx, command)
	if err != nil {
		uc.connected = false
		return err
	}
	if uc.metrics != nil {
		uc.metrics.ExecutionsTotal.Inc()
		uc.metrics.TranscriptBytes.Add(float64(len(transcript)))
	}

	if err := uc.cache.Write(ctx, key, q.Columns, transcript, q.Compress); err != nil {
		return fmt.Errorf("failed to persist transcript: %w", err)
	}
	return nil
}

// record writes the window execution to the history sink, best-effort.
func (uc *RunQueryUseCase) record(ctx context.Context, rec domain.QueryExecution) {
	if uc.history == nil {
		return
	}
	if err := uc.history.RecordExecution(ctx, rec); err != nil {
		uc.logger.Warn("failed to record query execution", "error", err)
	}
}

func (uc *RunQueryUseCase) countFailure(err error) {
	if uc.metrics == nil {
		return
	}
	var remoteErr *domain.RemoteQueryError
	var parseErr *domain.ParseError
	var connErr *domain.ConnectionError
	switch {
	case errors.As(err, &remoteErr):
		uc.metrics.QueryFailures.WithLabelValues("remote").Inc()
	case errors.As(err, &parseErr):
		uc.metrics.QueryFailures.WithLabelValues("parse").Inc()
	case errors.As(err, &connErr):
		uc.metrics.QueryFailures.WithLabelValues("connection").Inc()
	default:
		uc.metrics.QueryFailures.WithLabelValues("cache").Inc()
	}
}

// substitute materializes the window bounds into the command text.
// This is the only templating the executor performs; the rest of the
// command is opaque.
func substitute(template string, w domain.Window) string {
	return strings.NewReplacer(
		"{before_time}", unixSeconds(w.Start),
		"{after_time}", unixSeconds(w.Stop),
		"{before_hour}", unixSeconds(w.PartitionStart),
		"{after_hour}", unixSeconds(w.PartitionEnd),
		"{before_day}", unixSeconds(w.PartitionStart),
		"{after_day}", unixSeconds(w.PartitionEnd),
	).Replace(template)
}

func unixSeconds(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func classify(res domain.WindowResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case res.Raw != "":
		return "raw"
	case res.Empty():
		return "empty"
	default:
		return "rows"
	}
}

func rowCount(res domain.WindowResult) int {
	if res.Table == nil {
		return 0
	}
	return len(res.Table.Rows)
}

// formatIdentifiers normalizes the two identifier columns in place:
// callsigns lose their fixed-width padding and icao24 addresses become
// 6-digit lower hex.
func formatIdentifiers(t *domain.Table) {
	for i, col := range t.Columns {
		switch col {
		case "callsign":
			for _, row := range t.Rows {
				if s, ok := row[i].(string); ok {
					row[i] = strings.TrimRight(s, " ")
				}
			}
		case "icao24":
			for _, row := range t.Rows {
				if s, ok := row[i].(string); ok {
					if addr, err := strconv.ParseUint(strings.TrimSpace(s), 16, 64); err == nil {
						row[i] = fmt.Sprintf("%06x", addr)
					}
				}
			}
		}
	}
}
