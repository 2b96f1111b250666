// Package config provides configuration management for the Alyx worker.
package config

import (
	"time"
)

// Config is the root configuration structure for the worker.
type Config struct {
	Host      HostConfig      `mapstructure:"host"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Functions FunctionsConfig `mapstructure:"functions"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Journal   JournalConfig   `mapstructure:"journal"`
}

// HostConfig holds settings for the connection to the function host.
type HostConfig struct {
	// WebSocket URL of the host's worker stream
	URL string `mapstructure:"url"`

	// Time allowed to establish the connection
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// Maximum size of one inbound message in bytes
	ReadLimit int64 `mapstructure:"read_limit"`

	// Interval between keepalive pings (0 disables)
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// WorkerConfig holds message loop settings.
type WorkerConfig struct {
	// Worker id announced in start_stream (generated when empty)
	ID string `mapstructure:"id"`

	// Maximum concurrent synchronous invocations
	MaxSyncWorkers int `mapstructure:"max_sync_workers"`

	// Capacity of the outbound message queue
	SendBuffer int `mapstructure:"send_buffer"`

	// How long to wait for in-flight handlers on shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Minimum level of worker diagnostics forwarded to the host
	ForwardLogLevel string `mapstructure:"forward_log_level"`
}

// FunctionsConfig holds settings for local function discovery.
type FunctionsConfig struct {
	// Root directory holding one folder per function
	ScriptRoot string `mapstructure:"script_root"`

	// Glob patterns that trigger revalidation in watch mode
	Watch []string `mapstructure:"watch"`

	// Glob patterns ignored in watch mode
	Ignore []string `mapstructure:"ignore"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// JournalConfig holds settings for the local invocation journal.
type JournalConfig struct {
	// Enable the journal
	Enabled bool `mapstructure:"enabled"`

	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// How long finished invocations are kept
	Retention time.Duration `mapstructure:"retention"`

	// Enable WAL mode
	WALMode bool `mapstructure:"wal_mode"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}
