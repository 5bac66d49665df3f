package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	etl "github.com/jamesprial/go-reddit-etl"
)

const upsertPostQuery = `
	INSERT INTO posts (
		id, fullname, subreddit, author, title, body, url,
		score, num_comments, is_self, created_utc, edited_utc,
		retrieved_at, raw_json, last_updated
	) VALUES (
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP
	)
	ON CONFLICT (id) DO UPDATE SET
		score = excluded.score,
		num_comments = excluded.num_comments,
		body = excluded.body,
		edited_utc = excluded.edited_utc,
		retrieved_at = excluded.retrieved_at,
		raw_json = excluded.raw_json,
		last_updated = CURRENT_TIMESTAMP
`

// UpsertPost inserts or updates a single post by id.
func (s *Storage) UpsertPost(ctx context.Context, post *etl.Post) (etl.UpsertResult, error) {
	return s.UpsertPosts(ctx, []*etl.Post{post})
}

// UpsertPosts inserts or updates multiple posts in one transaction. The
// result distinguishes rows that were new from rows that already existed.
func (s *Storage) UpsertPosts(ctx context.Context, posts []*etl.Post) (etl.UpsertResult, error) {
	var result etl.UpsertResult
	if len(posts) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, &etl.StorageError{Op: "begin_transaction", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPostQuery)
	if err != nil {
		return result, &etl.StorageError{Op: "prepare_statement", Err: err}
	}
	defer stmt.Close()

	exists, err := tx.PrepareContext(ctx, "SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)")
	if err != nil {
		return result, &etl.StorageError{Op: "prepare_statement", Err: err}
	}
	defer exists.Close()

	for _, post := range posts {
		// SQLite has no way to report insert-vs-update from ON CONFLICT,
		// so probe inside the same transaction.
		var present bool
		if err := exists.QueryRowContext(ctx, post.ID).Scan(&present); err != nil {
			return result, &etl.StorageError{Op: "check_post", Err: err}
		}

		isSelf := 0
		if post.IsSelf {
			isSelf = 1
		}

		var editedUTC interface{}
		if post.EditedUTC > 0 {
			editedUTC = post.EditedUTC
		}

		_, err = stmt.ExecContext(ctx,
			post.ID, post.Fullname, post.Subreddit, post.Author,
			post.Title, post.Body, post.URL, post.Score,
			post.NumComments, isSelf, post.CreatedUTC, editedUTC,
			post.RetrievedAt, string(post.Raw),
		)
		if err != nil {
			return result, &etl.StorageError{Op: "upsert_post", Err: err}
		}

		if present {
			result.Updated++
		} else {
			result.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return etl.UpsertResult{}, &etl.StorageError{Op: "commit_transaction", Err: err}
	}

	return result, nil
}

// GetPost retrieves a single post by ID
func (s *Storage) GetPost(ctx context.Context, id string) (*etl.Post, error) {
	query := `
		SELECT id, fullname, subreddit, author, title, body, url, score,
		       num_comments, is_self, created_utc, edited_utc, retrieved_at, raw_json
		FROM posts
		WHERE id = ?
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, &etl.StorageError{Op: "get_post", Err: err}
	}
	defer rows.Close()

	posts, err := scanPosts(rows)
	if err != nil {
		return nil, err
	}

	if len(posts) == 0 {
		return nil, &etl.StorageError{Op: "get_post", Err: fmt.Errorf("post not found: %s", id)}
	}

	return posts[0], nil
}

// GetPostsBySubreddit retrieves posts from a subreddit with filtering options
func (s *Storage) GetPostsBySubreddit(ctx context.Context, subreddit string, opts etl.QueryOptions) ([]*etl.Post, error) {
	query := `
		SELECT id, fullname, subreddit, author, title, body, url, score,
		       num_comments, is_self, created_utc, edited_utc, retrieved_at, raw_json
		FROM posts
		WHERE subreddit = ?
	`

	var args []interface{}
	args = append(args, subreddit)

	if !opts.StartDate.IsZero() {
		query += " AND created_utc >= ?"
		args = append(args, float64(opts.StartDate.Unix()))
	}

	if !opts.EndDate.IsZero() {
		query += " AND created_utc <= ?"
		args = append(args, float64(opts.EndDate.Unix()))
	}

	query += fmt.Sprintf(" ORDER BY %s %s", sortColumn(opts.SortBy), sortOrder(opts.SortOrder))

	limit := opts.Limit
	if limit == 0 {
		limit = 25
	}

	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &etl.StorageError{Op: "get_posts_by_subreddit", Err: err}
	}
	defer rows.Close()

	return scanPosts(rows)
}

// sortColumn maps a QueryOptions sort key to a known column, preventing
// SQL injection through the options struct.
func sortColumn(sortBy string) string {
	switch sortBy {
	case "score":
		return "score"
	case "comments":
		return "num_comments"
	default:
		return "created_utc"
	}
}

func sortOrder(order string) string {
	if strings.EqualFold(order, "asc") {
		return "ASC"
	}
	return "DESC"
}

func scanPosts(rows *sql.Rows) ([]*etl.Post, error) {
	var posts []*etl.Post

	for rows.Next() {
		var post etl.Post
		var rawJSON string
		var isSelf int
		var editedUTC sql.NullFloat64
		var retrievedAt sql.NullTime

		err := rows.Scan(
			&post.ID, &post.Fullname, &post.Subreddit, &post.Author,
			&post.Title, &post.Body, &post.URL, &post.Score,
			&post.NumComments, &isSelf, &post.CreatedUTC, &editedUTC,
			&retrievedAt, &rawJSON,
		)
		if err != nil {
			return nil, &etl.StorageError{Op: "scan_post", Err: err}
		}

		post.IsSelf = isSelf != 0
		if editedUTC.Valid {
			post.EditedUTC = editedUTC.Float64
		}
		if retrievedAt.Valid {
			post.RetrievedAt = retrievedAt.Time
		}
		post.Raw = []byte(rawJSON)

		posts = append(posts, &post)
	}

	if err := rows.Err(); err != nil {
		return nil, &etl.StorageError{Op: "scan_posts", Err: err}
	}

	return posts, nil
}
