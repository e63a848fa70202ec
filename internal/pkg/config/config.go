package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Remote shell endpoint and credentials.
	ShellHost     string `env:"SHELL_HOST" envDefault:"data.opensky-network.org"`
	ShellPort     int    `env:"SHELL_PORT" envDefault:"2230"`
	ShellUsername string `env:"SHELL_USERNAME"`
	ShellPassword string `env:"SHELL_PASSWORD"`
	// ProxyCommand relays the transport through an intermediary, e.g.
	// "ssh -W data.opensky-network.org:2230 bastion".
	ProxyCommand string `env:"SHELL_PROXY_COMMAND"`
	// ShellCommand is handed to the forced remote shell on startup.
	ShellCommand string `env:"SHELL_COMMAND" envDefault:"-B"`
	// PromptSentinel is the idle-prompt suffix that frames responses.
	PromptSentinel string        `env:"SHELL_PROMPT" envDefault:":21000] > "`
	CommandTimeout time.Duration `env:"COMMAND_TIMEOUT" envDefault:"0"`
	// SubmitInterval throttles consecutive command submissions.
	SubmitInterval time.Duration `env:"SUBMIT_INTERVAL" envDefault:"100ms"`

	// CacheBackend selects "file" or "redis".
	CacheBackend string `env:"CACHE_BACKEND" envDefault:"file"`
	CacheDir     string `env:"CACHE_DIR"`
	RedisURL     string `env:"REDIS_URL"`

	// PostgresURL enables the query history sink when set.
	PostgresURL string `env:"POSTGRES_URL"`

	// MetricsAddr enables the Prometheus listener when set, e.g. ":9091".
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.CacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		cfg.CacheDir = filepath.Join(base, "skyquery")
	}

	return cfg, nil
}
