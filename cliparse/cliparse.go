// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort             = 3318
	DefaultSQLitePath       = "quorum.db"
	DefaultFetchConcurrency = 8
	MaxFetchConcurrency     = 64
)

type Config struct {
	Port             int    `yaml:"port"`
	DatabaseURL      string `yaml:"database_url"`
	DatabaseType     string `yaml:"database_type"`
	AuthorKeySalt    string `yaml:"author_key_salt"`
	FetchConcurrency int    `yaml:"fetch_concurrency"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`

	ConfigFile string `yaml:"-"`
}

// ParseFlags builds the server config. CLI flags win over environment
// variables, which win over the YAML config file, which wins over defaults.
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("quorum", flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigFile, "c", "", "YAML config file")

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL or SQLite path")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.IntVar(&cfg.FetchConcurrency, "fetch-concurrency", 0, "Parallel file fetches per cache refresh")

	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format (text or json)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.AuthorKeySalt, "author-salt", "", "Author key salt (prefer env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = os.Getenv("QUORUM_CONFIG")
	}
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		}
	}
	if cfg.FetchConcurrency == 0 {
		if s := os.Getenv("FETCH_CONCURRENCY"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return Config{}, errors.New("invalid FETCH_CONCURRENCY env variable")
			}
			cfg.FetchConcurrency = n
		}
	}
	envString(&cfg.DatabaseURL, "DATABASE_URL")
	envString(&cfg.DatabaseType, "DATABASE_TYPE")
	envString(&cfg.AuthorKeySalt, "AUTHOR_KEY_SALT")
	envString(&cfg.LogLevel, "LOG_LEVEL")
	envString(&cfg.LogFormat, "LOG_FORMAT")

	// Then the config file
	if cfg.ConfigFile != "" {
		fileCfg, err := LoadConfigFile(cfg.ConfigFile)
		if err != nil {
			return Config{}, err
		}
		cfg.merge(fileCfg)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return cfg, nil
}

func envString(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

// merge fills fields still unset from other.
func (c *Config) merge(other Config) {
	if c.Port == 0 {
		c.Port = other.Port
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = other.DatabaseURL
	}
	if c.DatabaseType == "" {
		c.DatabaseType = other.DatabaseType
	}
	if c.AuthorKeySalt == "" {
		c.AuthorKeySalt = other.AuthorKeySalt
	}
	if c.FetchConcurrency == 0 {
		c.FetchConcurrency = other.FetchConcurrency
	}
	if c.LogLevel == "" {
		c.LogLevel = other.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = other.LogFormat
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.DatabaseType == "" {
		c.DatabaseType = "sqlite"
	}
	if c.DatabaseURL == "" && c.DatabaseType == "sqlite" {
		c.DatabaseURL = DefaultSQLitePath
	}
	if c.FetchConcurrency == 0 {
		c.FetchConcurrency = DefaultFetchConcurrency
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks a fully resolved config.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.DatabaseType {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type %q (use sqlite or postgres)", c.DatabaseType)
	}
	if c.DatabaseURL == "" {
		return errors.New("database URL required (use -d or DATABASE_URL env)")
	}
	if c.FetchConcurrency < 1 || c.FetchConcurrency > MaxFetchConcurrency {
		return fmt.Errorf("fetch concurrency must be 1-%d", MaxFetchConcurrency)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q (use text or json)", c.LogFormat)
	}

	// Secrets - MUST be provided
	if c.AuthorKeySalt == "" {
		return errors.New("AUTHOR_KEY_SALT required")
	}
	return nil
}

// DriverName returns the database/sql driver registered for DatabaseType.
func (c Config) DriverName() string {
	if c.DatabaseType == "postgres" {
		return "postgres"
	}
	return "sqlite"
}

// DataSourceName returns the DSN passed to sql.Open. Plain SQLite paths get
// a busy timeout and WAL journaling.
func (c Config) DataSourceName() string {
	if c.DatabaseType != "sqlite" || strings.Contains(c.DatabaseURL, "?") {
		return c.DatabaseURL
	}
	return c.DatabaseURL + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// NewLogger builds the slog logger for LogFormat and LogLevel.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unsupported log level %q", s)
}
