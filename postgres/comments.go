package postgres

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
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		score = EXCLUDED.score,
		body = EXCLUDED.body,
		edited_utc = EXCLUDED.edited_utc,
		retrieved_at = EXCLUDED.retrieved_at,
		raw_json = EXCLUDED.raw_json,
		last_updated = NOW()
	RETURNING (xmax = 0)
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

	for _, comment := range comments {
		// NULL parent_id marks a top-level comment.
		var parentID interface{}
		if comment.ParentID != "" {
			parentID = comment.ParentID
		}

		var editedUTC interface{}
		if comment.EditedUTC > 0 {
			editedUTC = comment.EditedUTC
		}

		var inserted bool
		err := stmt.QueryRowContext(ctx,
			comment.ID, comment.Fullname, comment.PostID, parentID,
			comment.Author, comment.Body, comment.Score,
			comment.CreatedUTC, editedUTC, comment.RetrievedAt,
			comment.Raw,
		).Scan(&inserted)
		if err != nil {
			return result, &etl.StorageError{Op: "upsert_comment", Err: err}
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

// GetCommentsByPost retrieves all comments for a post, thread order
// preserved: top-level comments first, replies after their parents.
func (s *Storage) GetCommentsByPost(ctx context.Context, postID string) ([]*etl.Comment, error) {
	query := `
		WITH RECURSIVE comment_tree AS (
			SELECT id, fullname, post_id, parent_id, author, body, score,
			       created_utc, edited_utc, retrieved_at, raw_json,
			       ARRAY[created_utc] AS path
			FROM comments
			WHERE post_id = $1 AND parent_id IS NULL

			UNION ALL

			SELECT c.id, c.fullname, c.post_id, c.parent_id, c.author, c.body,
			       c.score, c.created_utc, c.edited_utc, c.retrieved_at,
			       c.raw_json, ct.path || c.created_utc
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
		var rawJSON []byte
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
		comment.Raw = rawJSON

		comments = append(comments, &comment)
	}

	if err := rows.Err(); err != nil {
		return nil, &etl.StorageError{Op: "scan_comments", Err: err}
	}

	return comments, nil
}
