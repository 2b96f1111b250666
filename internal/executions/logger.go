package executions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/alyx-worker/internal/database"
)

// DefaultRetention is how long journaled invocations are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Journal records invocations in the worker's database.
type Journal struct {
	store     *Store
	retention time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewJournal creates a journal on db.
func NewJournal(db *database.DB, retention time.Duration) *Journal {
	if retention == 0 {
		retention = DefaultRetention
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Journal{
		store:     NewStore(db),
		retention: retention,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins background cleanup.
func (j *Journal) Start() {
	j.wg.Add(1)
	go j.cleanupLoop(j.ctx, 1*time.Hour)
}

// Stop gracefully shuts down the journal.
func (j *Journal) Stop() {
	j.cancel()
	j.wg.Wait()
}

// Store returns the underlying store.
func (j *Journal) Store() *Store {
	return j.store
}

// Begin records a started invocation.
func (j *Journal) Begin(ctx context.Context, execLog *ExecutionLog) error {
	if err := j.store.Create(ctx, execLog); err != nil {
		return fmt.Errorf("creating execution log: %w", err)
	}

	log.Debug().
		Str("invocation_id", execLog.ID).
		Str("function_id", execLog.FunctionID).
		Msg("Invocation journaled")

	return nil
}

// Finish records the outcome of an invocation.
func (j *Journal) Finish(ctx context.Context, id string, status ExecutionStatus, errorMsg string, duration time.Duration, logCount int64) error {
	execLog, err := j.store.Complete(ctx, id, func(l *ExecutionLog) {
		l.Status = status
		l.Error = errorMsg
		l.DurationMs = int(duration.Milliseconds())
		l.LogCount = logCount
		now := time.Now().UTC()
		l.CompletedAt = &now
	})
	if err != nil {
		return fmt.Errorf("completing execution log: %w", err)
	}

	log.Debug().
		Str("invocation_id", id).
		Str("status", string(status)).
		Int("duration_ms", execLog.DurationMs).
		Msg("Invocation status updated")

	return nil
}

// cleanupLoop periodically removes old execution logs.
func (j *Journal) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer j.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.store.DeleteOlderThan(ctx, j.retention); err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old execution logs")
			}
		}
	}
}
