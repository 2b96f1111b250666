package executions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJournal_BeginFinish(t *testing.T) {
	db := testDBExec(t)
	journal := NewJournal(db, 0)
	ctx := context.Background()

	require.Equal(t, DefaultRetention, journal.retention)

	err := journal.Begin(ctx, &ExecutionLog{
		ID:           "inv-1",
		FunctionID:   "fn-1",
		FunctionName: "hello",
		Mode:         "sync",
		Status:       ExecutionStatusRunning,
		StartedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	err = journal.Finish(ctx, "inv-1", ExecutionStatusFailed, "boom", 150*time.Millisecond, 2)
	require.NoError(t, err)

	log, err := journal.Store().Get(ctx, "inv-1")
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusFailed, log.Status)
	require.Equal(t, "boom", log.Error)
	require.Equal(t, 150, log.DurationMs)
	require.Equal(t, int64(2), log.LogCount)
	require.NotNil(t, log.CompletedAt)
}

func TestJournal_FinishUnknown(t *testing.T) {
	db := testDBExec(t)
	journal := NewJournal(db, time.Hour)

	err := journal.Finish(context.Background(), "missing", ExecutionStatusSuccess, "", 0, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestJournal_Cleanup(t *testing.T) {
	db := testDBExec(t)
	journal := NewJournal(db, 1*time.Hour)
	ctx := context.Background()

	now := time.Now().UTC()

	completedAt := now.Add(-2 * time.Hour)
	oldLog := &ExecutionLog{
		ID:           "inv-old",
		FunctionID:   "fn-1",
		FunctionName: "hello",
		Status:       ExecutionStatusSuccess,
		StartedAt:    now.Add(-2 * time.Hour),
		CompletedAt:  &completedAt,
	}
	recentLog := &ExecutionLog{
		ID:           "inv-recent",
		FunctionID:   "fn-1",
		FunctionName: "hello",
		Status:       ExecutionStatusSuccess,
		StartedAt:    now.Add(-30 * time.Minute),
	}

	require.NoError(t, journal.Begin(ctx, oldLog))
	require.NoError(t, journal.Begin(ctx, recentLog))

	_, err := journal.store.DeleteOlderThan(ctx, journal.retention)
	require.NoError(t, err)

	logs, err := journal.store.List(ctx, ListFilter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "inv-recent", logs[0].ID)
}

func TestJournal_StartStop(t *testing.T) {
	db := testDBExec(t)
	journal := NewJournal(db, 1*time.Hour)

	journal.Start()

	time.Sleep(100 * time.Millisecond)

	journal.Stop()
}
