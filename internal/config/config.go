// Package config provides centralized configuration management for the pipeline.
// It loads configuration from environment variables (optionally backed by a
// YAML config file) with sensible defaults and validates all settings on
// startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database   DatabaseConfig
	Source     SourceConfig
	Validation ValidationConfig
	Logging    LoggingConfig
	Alert      AlertConfig
	Server     ServerConfig
	Metrics    MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies embedded schema migrations before running (default: false)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"false"`
}

// SourceConfig locates the tabular extracts loaded by the daily refresh.
type SourceConfig struct {
	// DataDir is the directory holding the extracts (default: ./data)
	DataDir string `env:"DATA_SOURCE_PATH" default:"./data"`

	ProvidersFile   string `env:"PROVIDERS_FILE" default:"providers.csv"`
	CredentialsFile string `env:"CREDENTIALS_FILE" default:"credentials.csv"`
	EntitiesFile    string `env:"ENTITIES_FILE" default:"entities.csv"`
}

// ValidationConfig holds validation run and reporting settings.
type ValidationConfig struct {
	// RunType is the run type used by the validate command: Scheduled, Manual, OnDemand (default: Manual)
	RunType string `env:"VALIDATION_RUN_TYPE" default:"Manual"`

	// FailureLimit caps the failure detail rows fetched for reporting (default: 100)
	FailureLimit int `env:"VALIDATION_FAILURE_LIMIT" default:"100"`

	// SummaryWindow is the lookback used when no run is specified (default: 168h)
	SummaryWindow time.Duration `env:"VALIDATION_SUMMARY_WINDOW" default:"168h"`

	// SummaryLimit caps the grouped rows of a windowed summary (default: 100)
	SummaryLimit int `env:"VALIDATION_SUMMARY_LIMIT" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File is the append log written alongside stdout; empty disables it
	File string `env:"LOG_FILE" default:"credentialing_validation.log"`

	// MaxSizeMB is the size at which the log file is rotated (default: 50)
	MaxSizeMB int `env:"LOG_MAX_SIZE_MB" default:"50"`

	// MaxBackups is the number of rotated files to keep (default: 10)
	MaxBackups int `env:"LOG_MAX_BACKUPS" default:"10"`

	// MaxAgeDays is the number of days to keep rotated files (default: 30)
	MaxAgeDays int `env:"LOG_MAX_AGE_DAYS" default:"30"`
}

// AlertConfig holds the optional email alert settings.
type AlertConfig struct {
	Enabled bool `env:"EMAIL_ENABLED" default:"false"`

	SMTPHost string   `env:"EMAIL_SMTP_SERVER" default:"smtp.gmail.com"`
	SMTPPort int      `env:"EMAIL_SMTP_PORT" default:"587"`
	From     string   `env:"EMAIL_FROM"`
	To       []string `env:"EMAIL_TO"`
	Username string   `env:"EMAIL_USERNAME"`
	Password string   `env:"EMAIL_PASSWORD"`

	// FailureThreshold alerts when a run has more failures than this (default: 100)
	FailureThreshold int `env:"MAX_VALIDATION_FAILURES_THRESHOLD" default:"100"`

	// WarningThreshold alerts when a run has more warnings than this; 0 disables (default: 0)
	WarningThreshold int `env:"MAX_VALIDATION_WARNINGS_THRESHOLD" default:"0"`
}

// ServerConfig holds report API settings used by the serve command.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// TextfilePath receives a Prometheus textfile after each pipeline run; empty disables it
	TextfilePath string `env:"METRICS_TEXTFILE"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
