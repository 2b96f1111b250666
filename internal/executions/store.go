package executions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/watzon/alyx-worker/internal/database"
)

// ErrNotFound is returned when an execution log does not exist.
var ErrNotFound = errors.New("execution log not found")

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `
	SELECT id, function_id, function_name, mode, status,
	       started_at, completed_at, duration_ms, error, log_count
	FROM invocations
`

// Store handles database operations for executions.
type Store struct {
	db *database.DB
}

// NewStore creates a new execution store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new execution log.
func (s *Store) Create(ctx context.Context, log *ExecutionLog) error {
	query := `
		INSERT INTO invocations (
			id, function_id, function_name, mode, status,
			started_at, completed_at, duration_ms, error, log_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		log.ID,
		log.FunctionID,
		log.FunctionName,
		log.Mode,
		log.Status,
		log.StartedAt.UTC().Format(timeLayout),
		formatCompletedAt(log.CompletedAt),
		log.DurationMs,
		log.Error,
		log.LogCount,
	)
	if err != nil {
		return fmt.Errorf("inserting execution log: %w", err)
	}

	return nil
}

// Complete loads the log with the given ID, applies update to it and
// writes it back in one transaction.
func (s *Store) Complete(ctx context.Context, id string, update func(*ExecutionLog)) (*ExecutionLog, error) {
	var out *ExecutionLog
	err := s.db.Transaction(ctx, func(tx *database.Tx) error {
		log, err := scanExecutionLog(tx.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}

		update(log)

		_, err = tx.ExecContext(ctx, `
			UPDATE invocations
			SET status = ?, completed_at = ?, duration_ms = ?,
			    error = ?, log_count = ?
			WHERE id = ?
		`,
			log.Status,
			formatCompletedAt(log.CompletedAt),
			log.DurationMs,
			log.Error,
			log.LogCount,
			log.ID,
		)
		if err != nil {
			return fmt.Errorf("updating execution log: %w", err)
		}

		out = log
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get retrieves an execution log by ID.
func (s *Store) Get(ctx context.Context, id string) (*ExecutionLog, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)

	log, err := scanExecutionLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return log, nil
}

// ListFilter narrows List results. Zero fields match everything.
type ListFilter struct {
	FunctionID   string
	FunctionName string
	Status       ExecutionStatus
}

// List retrieves execution logs, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*ExecutionLog, error) {
	query := selectColumns + " WHERE 1=1"
	args := []any{}

	if filter.FunctionID != "" {
		query += " AND function_id = ?"
		args = append(args, filter.FunctionID)
	}
	if filter.FunctionName != "" {
		query += " AND function_name = ?"
		args = append(args, filter.FunctionName)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY started_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying execution logs: %w", err)
	}
	defer rows.Close()

	var logs []*ExecutionLog
	for rows.Next() {
		log, err := scanExecutionLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating execution logs: %w", err)
	}

	return logs, nil
}

// DeleteOlderThan deletes finished logs older than the given duration and
// returns how many were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, duration time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-duration).Format(timeLayout)

	query := `
		DELETE FROM invocations
		WHERE started_at < ?
		  AND status IN ('success', 'failed')
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old execution logs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecutionLog(row scanner) (*ExecutionLog, error) {
	var log ExecutionLog
	var startedAtStr string
	var completedAt sql.NullString

	if err := row.Scan(
		&log.ID,
		&log.FunctionID,
		&log.FunctionName,
		&log.Mode,
		&log.Status,
		&startedAtStr,
		&completedAt,
		&log.DurationMs,
		&log.Error,
		&log.LogCount,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning execution log: %w", err)
	}

	startedAt, err := time.Parse(timeLayout, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	log.StartedAt = startedAt

	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		log.CompletedAt = &t
	}

	return &log, nil
}

func formatCompletedAt(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{
		String: t.UTC().Format(timeLayout),
		Valid:  true,
	}
}
