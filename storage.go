package etl

import (
	"context"
	"fmt"
	"time"
)

// Storage persists normalized documents with upsert semantics: a post or
// comment id maps to at most one stored document, and repeated writes of
// the same id update only the mutable fields.
type Storage interface {
	// Posts
	UpsertPost(ctx context.Context, post *Post) (UpsertResult, error)
	UpsertPosts(ctx context.Context, posts []*Post) (UpsertResult, error)
	GetPost(ctx context.Context, id string) (*Post, error)
	GetPostsBySubreddit(ctx context.Context, subreddit string, opts QueryOptions) ([]*Post, error)

	// Comments
	UpsertComment(ctx context.Context, comment *Comment) (UpsertResult, error)
	UpsertComments(ctx context.Context, comments []*Comment) (UpsertResult, error)
	GetCommentsByPost(ctx context.Context, postID string) ([]*Comment, error)

	// Queries
	Stats(ctx context.Context) (*StoreStats, error)

	// Management
	RunMigrations(ctx context.Context) error
	Close() error
}

// UpsertResult reports how an upsert batch resolved.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// QueryOptions provides filtering and pagination for read queries.
type QueryOptions struct {
	Limit     int
	Offset    int
	SortBy    string // "created", "score", "comments"
	SortOrder string // "asc", "desc"
	StartDate time.Time
	EndDate   time.Time
}

// StoreStats aggregates collection totals, surfaced in the run summary.
type StoreStats struct {
	Posts            int64
	Comments         int64
	PostsBySubreddit map[string]int64
}

// StorageError represents a storage operation error
type StorageError struct {
	Op  string // Operation being performed
	Err error  // Underlying error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
