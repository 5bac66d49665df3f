package sqlite

import (
	"context"
	"database/sql"

	etl "github.com/jamesprial/go-reddit-etl"
)

const upsertCommentQuery = `
	INSERT INTO comments (
		id, fullname, post_id, parent_id, author, body, score,
		created_utc, edited_utc, retrieved_at, raw_json, last_updated
	) VALUES (
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP
	)
	ON CONFLICT (id) DO UPDATE SET
		score = excluded.score,
		body = excluded.body,
		edited_utc = excluded.edited_utc,
		retrieved_at = excluded.retrieved_at,
		raw_json = excluded.raw_json,
		last_updated = CURRENT_TIMESTAMP
`

// UpsertComment inserts or updates a single comment by id.
func (s *Storage) UpsertComment(ctx context.Context, comment *etl.Comment) (etl.UpsertResult, error) {
	return s.UpsertComments(ctx, []*etl.Comment{comment})
}

// UpsertComments inserts or updates multiple comments in one transaction.
// The owning post row must exist already.
func (s *Storage) UpsertComments(ctx context.Context, comments []*etl.Comment) (etl.UpsertResult, error) {
	var result etl.UpsertResult
	if len(comments) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, &etl.StorageError{Op: "begin_transaction", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertCommentQuery)
	if err != nil {
		return result, &etl.StorageError{Op: "prepare_statement", Err: err}
	}
	defer stmt.Close()

	exists, err := tx.PrepareContext(ctx, "SELECT EXISTS(SELECT 1 FROM comments WHERE id = ?)")
	if err != nil {
		return result, &etl.StorageError{Op: "prepare_statement", Err: err}
	}
	defer exists.Close()

	for _, comment := range comments {
		var present bool
		if err := exists.QueryRowContext(ctx, comment.ID).Scan(&present); err != nil {
			return result, &etl.StorageError{Op: "check_comment", Err: err}
		}

		// NULL parent_id marks a top-level comment.
		var parentID interface{}
		if comment.ParentID != "" {
			parentID = comment.ParentID
		}

		var editedUTC interface{}
		if comment.EditedUTC > 0 {
			editedUTC = comment.EditedUTC
		}

		_, err = stmt.ExecContext(ctx,
			comment.ID, comment.Fullname, comment.PostID, parentID,
			comment.Author, comment.Body, comment.Score,
			comment.CreatedUTC, editedUTC, comment.RetrievedAt,
			string(comment.Raw),
		)
		if err != nil {
			return result, &etl.StorageError{Op: "upsert_comment", Err: err}
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

// GetCommentsByPost retrieves all comments for a post, thread order
// preserved: top-level comments first, replies after their parents.
func (s *Storage) GetCommentsByPost(ctx context.Context, postID string) ([]*etl.Comment, error) {
	query := `
		WITH RECURSIVE comment_tree AS (
			SELECT id, fullname, post_id, parent_id, author, body, score,
			       created_utc, edited_utc, retrieved_at, raw_json,
			       printf('%020.5f', created_utc) AS path
			FROM comments
			WHERE post_id = ? AND parent_id IS NULL

			UNION ALL

			SELECT c.id, c.fullname, c.post_id, c.parent_id, c.author, c.body,
			       c.score, c.created_utc, c.edited_utc, c.retrieved_at,
			       c.raw_json, ct.path || '/' || printf('%020.5f', c.created_utc)
			FROM comments c
			JOIN comment_tree ct ON c.parent_id = ct.id
		)
		SELECT id, fullname, post_id, parent_id, author, body, score,
		       created_utc, edited_utc, retrieved_at, raw_json
		FROM comment_tree
		ORDER BY path
	`

	rows, err := s.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, &etl.StorageError{Op: "get_comments_by_post", Err: err}
	}
	defer rows.Close()

	var comments []*etl.Comment

	for rows.Next() {
		var comment etl.Comment
		var rawJSON string
		var parentID sql.NullString
		var editedUTC sql.NullFloat64
		var retrievedAt sql.NullTime

		err := rows.Scan(
			&comment.ID, &comment.Fullname, &comment.PostID, &parentID,
			&comment.Author, &comment.Body, &comment.Score,
			&comment.CreatedUTC, &editedUTC, &retrievedAt, &rawJSON,
		)
		if err != nil {
			return nil, &etl.StorageError{Op: "scan_comment", Err: err}
		}

		if parentID.Valid {
			comment.ParentID = parentID.String
		}
		if editedUTC.Valid {
			comment.EditedUTC = editedUTC.Float64
		}
		if retrievedAt.Valid {
			comment.RetrievedAt = retrievedAt.Time
		}
		comment.Raw = []byte(rawJSON)

		comments = append(comments, &comment)
	}

	if err := rows.Err(); err != nil {
		return nil, &etl.StorageError{Op: "scan_comments", Err: err}
	}

	return comments, nil
}
