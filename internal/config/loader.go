package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "ALYX_WORKER"
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("alyx-worker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/alyx")
		v.AddConfigPath("/etc/alyx")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvInConfig(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("host.url", cfg.Host.URL)
	v.SetDefault("host.dial_timeout", cfg.Host.DialTimeout)
	v.SetDefault("host.read_limit", cfg.Host.ReadLimit)
	v.SetDefault("host.ping_interval", cfg.Host.PingInterval)

	v.SetDefault("worker.id", cfg.Worker.ID)
	v.SetDefault("worker.max_sync_workers", cfg.Worker.MaxSyncWorkers)
	v.SetDefault("worker.send_buffer", cfg.Worker.SendBuffer)
	v.SetDefault("worker.shutdown_timeout", cfg.Worker.ShutdownTimeout)
	v.SetDefault("worker.forward_log_level", cfg.Worker.ForwardLogLevel)

	v.SetDefault("functions.script_root", cfg.Functions.ScriptRoot)
	v.SetDefault("functions.watch", cfg.Functions.Watch)
	v.SetDefault("functions.ignore", cfg.Functions.Ignore)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.caller", cfg.Logging.Caller)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("journal.enabled", cfg.Journal.Enabled)
	v.SetDefault("journal.path", cfg.Journal.Path)
	v.SetDefault("journal.retention", cfg.Journal.Retention)
	v.SetDefault("journal.wal_mode", cfg.Journal.WALMode)
	v.SetDefault("journal.busy_timeout", cfg.Journal.BusyTimeout)
}

func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envVar := val[2 : len(val)-1]
			if envVal := os.Getenv(envVar); envVal != "" {
				v.Set(key, envVal)
			}
		}
	}
}

func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		absPath, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", absPath)
		}
		return absPath, nil
	}

	searchPaths := []string{
		"alyx-worker.yaml",
		"alyx-worker.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "alyx", "alyx-worker.yaml"),
		"/etc/alyx/alyx-worker.yaml",
	}

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", ErrConfigNotFound
}
