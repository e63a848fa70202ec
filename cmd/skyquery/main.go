package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"skyquery/internal/adapter/metrics"
	"skyquery/internal/adapter/parser"
	"skyquery/internal/adapter/repository/filecache"
	"skyquery/internal/adapter/repository/postgres"
	"skyquery/internal/adapter/repository/rediscache"
	"skyquery/internal/adapter/transport/sshshell"
	"skyquery/internal/domain"
	"skyquery/internal/pkg/config"
	"skyquery/internal/pkg/logger"
	"skyquery/internal/usecase"

	_ "github.com/lib/pq" // postgres driver for the history sink
)

func main() {
	var (
		queryText   = flag.String("query", "", "command template with {before_time}/{after_time}/{before_hour}/{after_hour} placeholders")
		queryFile   = flag.String("query-file", "", "read the command template from a file instead")
		startArg    = flag.String("start", "", "range start, RFC 3339 (e.g. 2019-02-01T10:00:00Z)")
		stopArg     = flag.String("stop", "", "range stop, RFC 3339; defaults to start + 24h")
		columnsArg  = flag.String("columns", "", "comma-separated expected column names, in result order")
		windowArg   = flag.Duration("window", time.Hour, "window size for splitting the range")
		granArg     = flag.String("granularity", "hour", "partition granularity: hour or day")
		noCache     = flag.Bool("no-cache", false, "ignore and refresh any cached transcripts")
		compressArg = flag.Bool("compress", false, "gzip-compress cache entries")
		clearCache  = flag.Bool("clear-cache", false, "remove all cached transcripts and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, err := buildCache(cfg, log)
	if err != nil {
		log.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}

	if *clearCache {
		if err := cache.Clear(ctx); err != nil {
			log.Error("failed to clear cache", "error", err)
			os.Exit(1)
		}
		return
	}

	query, err := buildQuery(*queryText, *queryFile, *startArg, *stopArg,
		*columnsArg, *windowArg, *granArg, !*noCache, *compressArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	var m *metrics.QueryMetrics
	if cfg.MetricsAddr != "" {
		m = metrics.NewQueryMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("starting metrics server", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	session := sshshell.NewSession(sshshell.Config{
		Host:           cfg.ShellHost,
		Port:           cfg.ShellPort,
		Username:       cfg.ShellUsername,
		Password:       cfg.ShellPassword,
		ProxyCommand:   cfg.ProxyCommand,
		ShellCommand:   cfg.ShellCommand,
		Prompt:         cfg.PromptSentinel,
		CommandTimeout: cfg.CommandTimeout,
	}, log)
	defer session.Close()

	opts := []usecase.Option{usecase.WithSubmitInterval(cfg.SubmitInterval)}
	if m != nil {
		opts = append(opts, usecase.WithMetrics(m))
	}
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		history := postgres.NewQueryHistoryRepository(db, log)
		if err := history.EnsureSchema(ctx); err != nil {
			log.Error("failed to prepare query history schema", "error", err)
			os.Exit(1)
		}
		opts = append(opts, usecase.WithHistory(history))
	}

	executor := usecase.NewRunQueryUseCase(session, cache, parser.New(cache, log), log, opts...)

	result, err := executor.Run(ctx, query)
	if err != nil {
		log.Error("query failed", "error", err)
		os.Exit(1)
	}
	if result == nil {
		log.Info("no matching rows")
		return
	}

	if err := writeCSV(os.Stdout, result); err != nil {
		log.Error("failed to write result", "error", err)
		os.Exit(1)
	}
}

func buildCache(cfg *config.Config, log *slog.Logger) (domain.CacheRepository, error) {
	switch cfg.CacheBackend {
	case "redis":
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return rediscache.NewCacheRepository(redis.NewClient(redisOpts), log), nil
	case "file", "":
		return filecache.NewCacheRepository(cfg.CacheDir, log)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func buildQuery(queryText, queryFile, startArg, stopArg, columnsArg string,
	window time.Duration, granArg string, useCache, compress bool) (domain.Query, error) {

	if queryFile != "" {
		content, err := os.ReadFile(queryFile)
		if err != nil {
			return domain.Query{}, fmt.Errorf("failed to read query file: %w", err)
		}
		queryText = string(content)
	}
	if strings.TrimSpace(queryText) == "" {
		return domain.Query{}, fmt.Errorf("a query template is required (-query or -query-file)")
	}

	start, err := time.Parse(time.RFC3339, startArg)
	if err != nil {
		return domain.Query{}, fmt.Errorf("invalid -start: %w", err)
	}
	stop := start.Add(24 * time.Hour)
	if stopArg != "" {
		if stop, err = time.Parse(time.RFC3339, stopArg); err != nil {
			return domain.Query{}, fmt.Errorf("invalid -stop: %w", err)
		}
	}

	var granularity domain.Granularity
	switch granArg {
	case "hour":
		granularity = domain.GranularityHour
	case "day":
		granularity = domain.GranularityDay
	default:
		return domain.Query{}, fmt.Errorf("unknown granularity %q", granArg)
	}

	var columns []string
	if columnsArg != "" {
		for _, c := range strings.Split(columnsArg, ",") {
			columns = append(columns, strings.TrimSpace(c))
		}
	}

	return domain.Query{
		Template:    queryText,
		Start:       start,
		Stop:        stop,
		Columns:     columns,
		WindowSize:  window,
		Granularity: granularity,
		UseCache:    useCache,
		Compress:    compress,
		Progress: func(completed, total int) {
			slog.Debug("window done", "completed", completed, "total", total)
		},
	}, nil
}

func writeCSV(dst *os.File, result *domain.ResultSet) error {
	// Windows that defeated structured parsing are passed through as-is.
	for _, raw := range result.Raw {
		if _, err := dst.WriteString(raw); err != nil {
			return err
		}
	}
	if len(result.Rows) == 0 {
		return nil
	}

	w := csv.NewWriter(dst)
	if err := w.Write(result.Columns); err != nil {
		return err
	}
	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i, cell := range row {
			record[i] = formatCell(cell)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatCell(v domain.Value) string {
	switch cell := v.(type) {
	case nil:
		return ""
	case string:
		return cell
	case int64:
		return strconv.FormatInt(cell, 10)
	case float64:
		return strconv.FormatFloat(cell, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(cell)
	default:
		return fmt.Sprint(cell)
	}
}
