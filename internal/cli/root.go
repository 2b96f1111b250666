// Package cli implements the alyx-worker command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/alyx-worker/internal/config"
	"github.com/watzon/alyx-worker/internal/worker"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "alyx-worker",
	Short: "Go language worker for the functions host",
	Long: `alyx-worker runs Go functions on behalf of a functions host.

Functions are Go funcs compiled into the worker binary and registered in
the function catalog. The host starts the worker, which connects back over
a WebSocket stream, loads the functions the host describes and runs their
invocations.

Connect to a host:
  alyx-worker start --host ws://127.0.0.1:7071/worker

Check functions against their manifests without a host:
  alyx-worker validate ./functions`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(loadConfig())

		if path, err := config.ConfigFilePath(cfgFile); err == nil {
			log.Debug().Str("path", path).Msg("Loaded configuration file")
		} else {
			log.Debug().Msg("No configuration file, using defaults and environment")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./alyx-worker.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// loadConfig reads the configuration file and environment. Without a
// usable file it falls back to defaults.
func loadConfig() *config.Config {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) || cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return config.Default()
	}
	return cfg
}

// setupLogging configures zerolog based on configuration and verbosity.
func setupLogging(cfg *config.Config) {
	// The host reads the worker's stdout; diagnostics go to stderr.
	log.Logger = newLogger(cfg, os.Stderr, verbose)
	current = cfg
}

// newLogger builds the process logger. The level filters what reaches out,
// not what the logger emits, so invocation log hooks see every level.
func newLogger(cfg *config.Config, out io.Writer, verbose bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	if cfg.Logging.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	filtered := &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: out},
		Level:  level,
	}

	ctx := zerolog.New(filtered).With().Timestamp()
	if cfg.Logging.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// current is the configuration loaded for the running command.
var current *config.Config

func currentConfig() *config.Config {
	if current == nil {
		return config.Default()
	}
	return current
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("alyx-worker version %s", worker.Version)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the worker version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
