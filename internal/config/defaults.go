package config

import "time"

// Default configuration values.
const (
	// Host defaults.
	DefaultHostURL      = "ws://127.0.0.1:7071/worker"
	DefaultDialTimeout  = 10 * time.Second
	DefaultReadLimit    = 100 * 1024 * 1024 // 100MB
	DefaultPingInterval = 30 * time.Second

	// Worker defaults.
	DefaultMaxSyncWorkers  = 8
	DefaultSendBuffer      = 256
	DefaultShutdownTimeout = 10 * time.Second
	DefaultForwardLogLevel = "info"

	// Functions defaults.
	DefaultScriptRoot = "functions"

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	// Metrics defaults.
	DefaultMetricsAddr = ":9464"

	// Journal defaults.
	DefaultJournalPath      = "alyx-worker.db"
	DefaultJournalRetention = 7 * 24 * time.Hour
	DefaultBusyTimeout      = 5 * time.Second
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			URL:          DefaultHostURL,
			DialTimeout:  DefaultDialTimeout,
			ReadLimit:    DefaultReadLimit,
			PingInterval: DefaultPingInterval,
		},
		Worker: WorkerConfig{
			MaxSyncWorkers:  DefaultMaxSyncWorkers,
			SendBuffer:      DefaultSendBuffer,
			ShutdownTimeout: DefaultShutdownTimeout,
			ForwardLogLevel: DefaultForwardLogLevel,
		},
		Functions: FunctionsConfig{
			ScriptRoot: DefaultScriptRoot,
			Watch:      []string{"**/function.json", "**/function.yaml", "**/*.go"},
			Ignore:     []string{"**/.*", "**/*_test.go"},
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
		Journal: JournalConfig{
			Enabled:     false,
			Path:        DefaultJournalPath,
			Retention:   DefaultJournalRetention,
			WALMode:     true,
			BusyTimeout: DefaultBusyTimeout,
		},
	}
}
