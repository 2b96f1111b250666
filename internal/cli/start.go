package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/watzon/alyx-worker/internal/config"
	"github.com/watzon/alyx-worker/internal/database"
	"github.com/watzon/alyx-worker/internal/executions"
	"github.com/watzon/alyx-worker/internal/metrics"
	"github.com/watzon/alyx-worker/internal/transport"
	"github.com/watzon/alyx-worker/internal/worker"
	"github.com/watzon/alyx-worker/pkg/fn"
)

var (
	startHost      string
	startWorkerID  string
	startRequestID string
	startJournal   bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Connect to the host and serve functions",
	Long: `Connect to the functions host and serve the functions registered in
this binary until the host closes the stream or the worker is interrupted.

The host usually starts the worker itself and passes --host, --worker-id
and --request-id. All other settings come from alyx-worker.yaml and
ALYX_WORKER_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startHost, "host", "", "Host stream URL (default: host.url)")
	startCmd.Flags().StringVar(&startWorkerID, "worker-id", "", "Worker id assigned by the host")
	startCmd.Flags().StringVar(&startRequestID, "request-id", "", "Request id of the start_stream message")
	startCmd.Flags().BoolVar(&startJournal, "journal", false, "Record invocations in the journal database")

	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg := currentConfig()
	applyStartFlags(cmd, cfg)

	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []worker.Option{worker.WithRequestID(startRequestID)}

	if cfg.Journal.Enabled {
		db, err := database.Open(&cfg.Journal)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer db.Close()

		journal := executions.NewJournal(db, cfg.Journal.Retention)
		journal.Start()
		defer journal.Stop()

		opts = append(opts, worker.WithJournal(journal))
		log.Info().Str("path", cfg.Journal.Path).Msg("Invocation journal enabled")
	}

	w := worker.New(&cfg.Worker, fn.Default, opts...)

	log.Info().
		Str("worker_id", w.ID()).
		Str("host", cfg.Host.URL).
		Int("functions", len(fn.Default.Scripts())).
		Msg("Starting worker")

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Host.DialTimeout)
	stream, err := transport.Dial(dialCtx, cfg.Host.URL, transport.Options{
		ReadLimit:    cfg.Host.ReadLimit,
		PingInterval: cfg.Host.PingInterval,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to host %s: %w", cfg.Host.URL, err)
	}
	defer stream.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer stop()
		return w.Serve(gctx, stream)
	})

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			log.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics server started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker stopped with error")
		return err
	}

	log.Info().Msg("Worker stopped")
	return nil
}

func applyStartFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Host.URL = startHost
	}
	if cmd.Flags().Changed("worker-id") {
		cfg.Worker.ID = startWorkerID
	}
	if cmd.Flags().Changed("journal") {
		cfg.Journal.Enabled = startJournal
	}
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
