package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	etl "github.com/jamesprial/go-reddit-etl"
)

// xmax is zero for a freshly inserted row, so RETURNING (xmax = 0) tells
// insert apart from conflict-update without a second query.
const upsertPostQuery = `
	INSERT INTO posts (
		id, fullname, subreddit, author, title, body, url,
		score, num_comments, is_self, created_utc, edited_utc,
		retrieved_at, raw_json, last_updated
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		score = EXCLUDED.score,
		num_comments = EXCLUDED.num_comments,
		body = EXCLUDED.body,
		edited_utc = EXCLUDED.edited_utc,
		retrieved_at = EXCLUDED.retrieved_at,
		raw_json = EXCLUDED.raw_json,
		last_updated = NOW()
	RETURNING (xmax = 0)
`

// UpsertPost inserts or updates a single post by id.
func (s *Storage) UpsertPost(ctx context.Context, post *etl.Post) (etl.UpsertResult, error) {
	return s.UpsertPosts(ctx, []*etl.Post{post})
}

// UpsertPosts inserts or updates multiple posts in one transaction.
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

	for _, post := range posts {
		var editedUTC interface{}
		if post.EditedUTC > 0 {
			editedUTC = post.EditedUTC
		}

		var inserted bool
		err := stmt.QueryRowContext(ctx,
			post.ID, post.Fullname, post.Subreddit, post.Author,
			post.Title, post.Body, post.URL, post.Score,
			post.NumComments, post.IsSelf, post.CreatedUTC, editedUTC,
			post.RetrievedAt, post.Raw,
		).Scan(&inserted)
		if err != nil {
			return result, &etl.StorageError{Op: "upsert_post", Err: err}
		}

		if inserted {
			result.Inserted++
		} else {
			result.Updated++
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
		WHERE id = $1
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
		WHERE subreddit = $1
	`

	args := []interface{}{subreddit}
	argIdx := 2

	if !opts.StartDate.IsZero() {
		query += fmt.Sprintf(" AND created_utc >= $%d", argIdx)
		args = append(args, float64(opts.StartDate.Unix()))
		argIdx++
	}

	if !opts.EndDate.IsZero() {
		query += fmt.Sprintf(" AND created_utc <= $%d", argIdx)
		args = append(args, float64(opts.EndDate.Unix()))
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY %s %s", sortColumn(opts.SortBy), sortOrder(opts.SortOrder))

	limit := opts.Limit
	if limit == 0 {
		limit = 25
	}

	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &etl.StorageError{Op: "get_posts_by_subreddit", Err: err}
	}
	defer rows.Close()

	return scanPosts(rows)
}

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
		var rawJSON []byte
		var editedUTC sql.NullFloat64
		var retrievedAt sql.NullTime

		err := rows.Scan(
			&post.ID, &post.Fullname, &post.Subreddit, &post.Author,
			&post.Title, &post.Body, &post.URL, &post.Score,
			&post.NumComments, &post.IsSelf, &post.CreatedUTC, &editedUTC,
			&retrievedAt, &rawJSON,
		)
		if err != nil {
			return nil, &etl.StorageError{Op: "scan_post", Err: err}
		}

		if editedUTC.Valid {
			post.EditedUTC = editedUTC.Float64
		}
		if retrievedAt.Valid {
			post.RetrievedAt = retrievedAt.Time
		}
		post.Raw = rawJSON

		posts = append(posts, &post)
	}

	if err := rows.Err(); err != nil {
		return nil, &etl.StorageError{Op: "scan_posts", Err: err}
	}

	return posts, nil
}
