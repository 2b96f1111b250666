// Package migrations provides embedded SQL migrations for the worker journal.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// Migration is one numbered schema change. Files are named
// NNN_description.sql and NNN becomes the schema version once applied.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Run applies every migration newer than the database's schema version.
// The version is kept in SQLite's user_version pragma, so a journal file
// is self-describing. Each migration runs in its own transaction.
func Run(ctx context.Context, db *sql.DB) error {
	current, err := Version(ctx, db)
	if err != nil {
		return err
	}

	migrations, err := Load()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	if n := len(migrations); n > 0 && current > migrations[n-1].Version {
		return fmt.Errorf("journal schema version %d is newer than this worker (%d)", current, migrations[n-1].Version)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.Name, err)
		}

		log.Debug().Int("version", m.Version).Str("migration", m.Name).Msg("Applied journal migration")
	}

	return nil
}

// Version returns the schema version of db. A fresh database is version 0.
func Version(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// Load returns the embedded migrations ordered by version.
func Load() ([]Migration, error) {
	entries, err := fs.ReadDir(sqlFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("reading sql directory: %w", err)
	}

	migrations := make([]Migration, 0, len(entries))
	seen := make(map[int]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".sql")
		version, err := parseVersion(name)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, name, version)
		}
		seen[version] = name

		content, err := fs.ReadFile(sqlFS, "sql/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func parseVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration %s: name must start with NNN_", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("migration %s: invalid version %q", name, prefix)
	}
	return v, nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}

	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}

	return tx.Commit()
}
