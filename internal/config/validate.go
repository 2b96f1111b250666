package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateHost(&cfg.Host)...)
	errs = append(errs, validateWorker(&cfg.Worker)...)
	errs = append(errs, validateFunctions(&cfg.Functions)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true, "fatal": true, "panic": true,
}

func validateHost(cfg *HostConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "host.url",
			Message: "is required",
		})
	} else if u, err := url.Parse(cfg.URL); err != nil {
		errs = append(errs, ValidationError{
			Field:   "host.url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		})
	} else if u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{
			Field:   "host.url",
			Message: "scheme must be one of: ws, wss, http, https",
		})
	}

	if cfg.DialTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "host.dial_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.ReadLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "host.read_limit",
			Message: "must be at least 1",
		})
	}

	if cfg.PingInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "host.ping_interval",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateWorker(cfg *WorkerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MaxSyncWorkers < 1 {
		errs = append(errs, ValidationError{
			Field:   "worker.max_sync_workers",
			Message: "must be at least 1",
		})
	}

	if cfg.SendBuffer < 1 {
		errs = append(errs, ValidationError{
			Field:   "worker.send_buffer",
			Message: "must be at least 1",
		})
	}

	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "worker.shutdown_timeout",
			Message: "must be non-negative",
		})
	}

	if !validLevels[cfg.ForwardLogLevel] {
		errs = append(errs, ValidationError{
			Field:   "worker.forward_log_level",
			Message: "must be one of: trace, debug, info, warn, error, fatal, panic",
		})
	}

	return errs
}

func validateFunctions(cfg *FunctionsConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.ScriptRoot == "" {
		errs = append(errs, ValidationError{
			Field:   "functions.script_root",
			Message: "is required",
		})
	}

	for i, pattern := range cfg.Watch {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("functions.watch[%d]", i),
				Message: fmt.Sprintf("invalid glob %q: %v", pattern, err),
			})
		}
	}

	for i, pattern := range cfg.Ignore {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("functions.ignore[%d]", i),
				Message: fmt.Sprintf("invalid glob %q: %v", pattern, err),
			})
		}
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if !validLevels[cfg.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error, fatal, panic",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'console'",
		})
	}

	return errs
}

func validateMetrics(cfg *MetricsConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Enabled && cfg.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "metrics.addr",
			Message: "required when metrics are enabled",
		})
	}

	return errs
}

func validateJournal(cfg *JournalConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return errs
	}

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "journal.path",
			Message: "required when the journal is enabled",
		})
	}

	if cfg.Retention < 0 {
		errs = append(errs, ValidationError{
			Field:   "journal.retention",
			Message: "must be non-negative",
		})
	}

	if cfg.BusyTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "journal.busy_timeout",
			Message: "must be non-negative",
		})
	}

	return errs
}
