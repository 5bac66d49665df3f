// Package sqlite implements etl.Storage on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	etl "github.com/jamesprial/go-reddit-etl"
	"github.com/jamesprial/go-reddit-etl/schema"
)

// Storage implements the etl.Storage interface for SQLite
type Storage struct {
	db *sql.DB
}

var _ etl.Storage = (*Storage)(nil)

// New creates a new SQLite storage instance
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &etl.StorageError{Op: "open", Err: err}
	}

	// A single connection keeps the PRAGMAs effective for every statement
	// and makes :memory: databases usable; SQLite is single-writer anyway.
	db.SetMaxOpenConns(1)

	// Enable foreign keys and WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, &etl.StorageError{Op: "enable_foreign_keys", Err: err}
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, &etl.StorageError{Op: "enable_wal", Err: err}
	}

	return &Storage{db: db}, nil
}

// RunMigrations runs all pending database migrations
func (s *Storage) RunMigrations(ctx context.Context) error {
	runner, err := schema.NewRunner(s.db, "sqlite")
	if err != nil {
		return &etl.StorageError{Op: "create_migration_runner", Err: err}
	}

	if err := runner.Run(ctx); err != nil {
		return &etl.StorageError{Op: "run_migrations", Err: err}
	}

	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if err := s.db.Close(); err != nil {
		return &etl.StorageError{Op: "close", Err: err}
	}
	return nil
}

// Stats returns collection totals, reported at the end of a run.
func (s *Storage) Stats(ctx context.Context) (*etl.StoreStats, error) {
	stats := &etl.StoreStats{
		PostsBySubreddit: make(map[string]int64),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&stats.Posts); err != nil {
		return nil, &etl.StorageError{Op: "count_posts", Err: err}
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments").Scan(&stats.Comments); err != nil {
		return nil, &etl.StorageError{Op: "count_comments", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT subreddit, COUNT(*) FROM posts GROUP BY subreddit")
	if err != nil {
		return nil, &etl.StorageError{Op: "count_by_subreddit", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var subreddit string
		var count int64
		if err := rows.Scan(&subreddit, &count); err != nil {
			return nil, &etl.StorageError{Op: "scan_subreddit_count", Err: err}
		}
		stats.PostsBySubreddit[subreddit] = count
	}

	if err := rows.Err(); err != nil {
		return nil, &etl.StorageError{Op: "count_by_subreddit", Err: err}
	}

	return stats, nil
}
