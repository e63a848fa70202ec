package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueryMetrics holds all Prometheus metrics for the query executor.
type QueryMetrics struct {
	WindowsTotal    *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	ExecutionsTotal prometheus.Counter
	TranscriptBytes prometheus.Counter
	SessionsOpened  prometheus.Counter
	QueryFailures   *prometheus.CounterVec
}

// NewQueryMetrics initializes and registers the Prometheus metrics.
func NewQueryMetrics() *QueryMetrics {
	return &QueryMetrics{
		WindowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyquery",
			Subsystem: "executor",
			Name:      "windows_total",
			Help:      "Total number of processed query windows by outcome.",
		}, []string{"outcome"}), // outcome: rows, raw, empty, error
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "skyquery",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of windows served from the transcript cache.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "skyquery",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of windows that required a remote execution.",
		}),
		ExecutionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "skyquery",
			Subsystem: "shell",
			Name:      "executions_total",
			Help:      "Total number of commands submitted to the remote shell.",
		}),
		TranscriptBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "skyquery",
			Subsystem: "shell",
			Name:      "transcript_bytes_total",
			Help:      "Total number of transcript bytes received from the remote shell.",
		}),
		SessionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "skyquery",
			Subsystem: "shell",
			Name:      "sessions_opened_total",
			Help:      "Total number of shell sessions opened.",
		}),
		QueryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyquery",
			Subsystem: "executor",
			Name:      "failures_total",
			Help:      "Total number of aborted runs by error kind.",
		}, []string{"kind"}), // kind: connection, remote, parse, cache
	}
}
