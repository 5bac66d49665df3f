// Package postgres implements etl.Storage on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	etl "github.com/jamesprial/go-reddit-etl"
	"github.com/jamesprial/go-reddit-etl/schema"
)

// Storage implements the etl.Storage interface for PostgreSQL
type Storage struct {
	db *sql.DB
}

var _ etl.Storage = (*Storage)(nil)

// PoolConfig configures the PostgreSQL connection pool
type PoolConfig struct {
	// MaxOpenConns sets the maximum number of open connections to the database
	// Default: 0 (unlimited)
	MaxOpenConns int

	// MaxIdleConns sets the maximum number of connections in the idle connection pool
	// Default: 2
	MaxIdleConns int

	// ConnMaxLifetime sets the maximum amount of time a connection may be reused
	// Default: 0 (connections are reused forever)
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime sets the maximum amount of time a connection may be idle
	// Default: 0 (connections are not closed due to idle time)
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns sensible defaults for production use
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// New creates a new PostgreSQL storage instance with default pool configuration
func New(connString string) (*Storage, error) {
	return NewWithPool(connString, DefaultPoolConfig())
}

// NewWithPool creates a new PostgreSQL storage instance with custom pool configuration
func NewWithPool(connString string, config *PoolConfig) (*Storage, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, &etl.StorageError{Op: "open", Err: err}
	}

	if config != nil {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	if err := db.Ping(); err != nil {
		return nil, &etl.StorageError{Op: "ping", Err: err}
	}

	return &Storage{db: db}, nil
}

// RunMigrations runs all pending database migrations
func (s *Storage) RunMigrations(ctx context.Context) error {
	runner, err := schema.NewRunner(s.db, "postgres")
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
