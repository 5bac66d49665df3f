// Package schema applies embedded SQL migrations, tracking progress in a
// schema_version table so repeated runs are no-ops.
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// Runner applies pending migrations for one backend.
type Runner struct {
	db         *sql.DB
	dbType     string // "postgres" or "sqlite"
	migrations []migration
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// NewRunner creates a migration runner for dbType.
func NewRunner(db *sql.DB, dbType string) (*Runner, error) {
	r := &Runner{
		db:     db,
		dbType: dbType,
	}

	if err := r.loadMigrations(); err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	return r, nil
}

func (r *Runner) loadMigrations() error {
	var fs embed.FS
	var path string

	switch r.dbType {
	case "postgres":
		fs = postgresFS
		path = "migrations/postgres"
	case "sqlite":
		fs = sqliteFS
		path = "migrations/sqlite"
	default:
		return fmt.Errorf("unsupported database type: %s", r.dbType)
	}

	entries, err := fs.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to read migration directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(path + "/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		// Filenames are "<version>_<name>.sql", e.g. "001_initial.sql".
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("invalid migration filename %s: %w", entry.Name(), err)
		}

		r.migrations = append(r.migrations, migration{
			Version: version,
			Name:    entry.Name(),
			SQL:     string(content),
		})
	}

	sort.Slice(r.migrations, func(i, j int) bool {
		return r.migrations[i].Version < r.migrations[j].Version
	})

	return nil
}

// Run executes all pending migrations.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.createVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to create schema version table: %w", err)
	}

	currentVersion, err := r.currentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range r.migrations {
		if m.Version <= currentVersion {
			continue
		}

		if err := r.apply(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.Name, err)
		}
	}

	return nil
}

func (r *Runner) createVersionTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`

	if r.dbType == "postgres" {
		query = strings.ReplaceAll(query, "TIMESTAMP DEFAULT CURRENT_TIMESTAMP", "TIMESTAMP DEFAULT NOW()")
	}

	_, err := r.db.ExecContext(ctx, query)
	return err
}

func (r *Runner) currentVersion(ctx context.Context) (int, error) {
	var version int
	query := "SELECT COALESCE(MAX(version), 0) FROM schema_version"

	if err := r.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, err
	}

	return version, nil
}

func (r *Runner) apply(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	recordQuery := "INSERT INTO schema_version (version, name) VALUES ($1, $2)"
	if r.dbType == "sqlite" {
		recordQuery = "INSERT INTO schema_version (version, name) VALUES (?, ?)"
	}

	if _, err := tx.ExecContext(ctx, recordQuery, m.Version, m.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
