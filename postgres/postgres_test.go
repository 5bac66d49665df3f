package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	etl "github.com/jamesprial/go-reddit-etl"
	"github.com/jamesprial/go-reddit-etl/internal/testutil"
)

// getTestDB returns a test database connection or skips the test
func getTestDB(t *testing.T) *Storage {
	t.Helper()

	dbURL := os.Getenv("TEST_POSTGRES_URL")
	if dbURL == "" {
		t.Skip("TEST_POSTGRES_URL not set, skipping PostgreSQL tests")
	}

	store, err := New(dbURL)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.RunMigrations(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	// Tests share a database, so rows get unique ids per run.
	return store
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestPostgresUpsertPost(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	id := uniqueID("post")
	post := testutil.NewPost(id, "golang", "Test post")
	post.Score = 10

	res, err := store.UpsertPost(ctx, post)
	if err != nil {
		t.Fatalf("UpsertPost failed: %v", err)
	}
	if res.Inserted != 1 || res.Updated != 0 {
		t.Errorf("Expected 1 insert / 0 updates, got %d / %d", res.Inserted, res.Updated)
	}

	// Second write with changed counters must update, not duplicate.
	changed := testutil.NewPost(id, "golang", "Changed title")
	changed.Score = 99
	changed.NumComments = 7

	res, err = store.UpsertPost(ctx, changed)
	if err != nil {
		t.Fatalf("Second UpsertPost failed: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 1 {
		t.Errorf("Expected 0 inserts / 1 update, got %d / %d", res.Inserted, res.Updated)
	}

	got, err := store.GetPost(ctx, id)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if got.Score != 99 || got.NumComments != 7 {
		t.Errorf("Mutable fields not updated: score=%d comments=%d", got.Score, got.NumComments)
	}
	if got.Title != "Test post" {
		t.Errorf("Immutable title changed to %q", got.Title)
	}
}

func TestPostgresUpsertComments(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	postID := uniqueID("post")
	if _, err := store.UpsertPost(ctx, testutil.NewPost(postID, "golang", "Parent post")); err != nil {
		t.Fatalf("UpsertPost failed: %v", err)
	}

	top := testutil.NewComment(uniqueID("c"), postID, "alice", "Top level")
	top.CreatedUTC = 1700000000
	reply := testutil.NewComment(uniqueID("c"), postID, "bob", "Reply")
	reply.CreatedUTC = 1700000100
	reply.ParentID = top.ID

	res, err := store.UpsertComments(ctx, []*etl.Comment{top, reply})
	if err != nil {
		t.Fatalf("UpsertComments failed: %v", err)
	}
	if res.Inserted != 2 {
		t.Errorf("Expected 2 inserts, got %d", res.Inserted)
	}

	got, err := store.GetCommentsByPost(ctx, postID)
	if err != nil {
		t.Fatalf("GetCommentsByPost failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 comments, got %d", len(got))
	}
	if got[0].ID != top.ID || got[1].ID != reply.ID {
		t.Errorf("Expected thread order %s, %s, got %s, %s",
			top.ID, reply.ID, got[0].ID, got[1].ID)
	}

	// Re-upserting must not duplicate.
	res, err = store.UpsertComments(ctx, []*etl.Comment{top, reply})
	if err != nil {
		t.Fatalf("Second UpsertComments failed: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 2 {
		t.Errorf("Expected 0 inserts / 2 updates, got %d / %d", res.Inserted, res.Updated)
	}
}

func TestPostgresGetPostsBySubreddit(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	subreddit := uniqueID("sub")
	for i := 0; i < 3; i++ {
		post := testutil.NewPost(uniqueID("post"), subreddit, fmt.Sprintf("Post %d", i))
		post.Score = (i + 1) * 10
		if _, err := store.UpsertPost(ctx, post); err != nil {
			t.Fatalf("UpsertPost failed: %v", err)
		}
	}

	posts, err := store.GetPostsBySubreddit(ctx, subreddit, etl.QueryOptions{
		SortBy:    "score",
		SortOrder: "desc",
	})
	if err != nil {
		t.Fatalf("GetPostsBySubreddit failed: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("Expected 3 posts, got %d", len(posts))
	}
	if posts[0].Score != 30 || posts[2].Score != 10 {
		t.Errorf("Expected score-descending order, got %d..%d", posts[0].Score, posts[2].Score)
	}
}

func TestPostgresStats(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	subreddit := uniqueID("sub")
	if _, err := store.UpsertPost(ctx, testutil.NewPost(uniqueID("post"), subreddit, "Post")); err != nil {
		t.Fatalf("UpsertPost failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Posts < 1 {
		t.Errorf("Expected at least 1 post, got %d", stats.Posts)
	}
	if stats.PostsBySubreddit[subreddit] != 1 {
		t.Errorf("Expected 1 post for %s, got %d", subreddit, stats.PostsBySubreddit[subreddit])
	}
}
