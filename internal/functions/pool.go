package functions

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/watzon/alyx-worker/internal/metrics"
)

// DefaultPoolSize is used when no pool size is configured.
const DefaultPoolSize = 8

// Pool bounds the number of synchronous entry points running at once.
// Callers block in Run until a slot is free.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
	busy atomic.Int64
}

// NewPool creates a pool with size slots.
func NewPool(size int) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Run executes task once a slot is free. It only fails when ctx ends
// before a slot becomes available.
func (p *Pool) Run(ctx context.Context, task func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for a free worker slot: %w", err)
	}
	defer p.sem.Release(1)

	metrics.UpdateSyncPoolStats(int(p.size), int(p.busy.Add(1)))
	defer func() {
		metrics.UpdateSyncPoolStats(int(p.size), int(p.busy.Add(-1)))
	}()

	task()
	return nil
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return int(p.size)
}

// Busy returns the number of slots in use.
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}
