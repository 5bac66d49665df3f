package etl_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jamesprial/go-reddit-api-wrapper/pkg/types"

	etl "github.com/jamesprial/go-reddit-etl"
	"github.com/jamesprial/go-reddit-etl/internal/testutil"
	"github.com/jamesprial/go-reddit-etl/sqlite"
)

// mockFetcher serves canned posts and comments, keyed by subreddit and
// post id respectively.
type mockFetcher struct {
	posts    map[string][]*types.Post
	comments map[string][]*types.Comment

	postsErr    map[string]error
	commentsErr map[string]error

	commentCalls []string
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		posts:       make(map[string][]*types.Post),
		comments:    make(map[string][]*types.Comment),
		postsErr:    make(map[string]error),
		commentsErr: make(map[string]error),
	}
}

func (m *mockFetcher) FetchPosts(_ context.Context, target etl.FetchTarget) ([]*types.Post, error) {
	if err := m.postsErr[target.Subreddit]; err != nil {
		return nil, err
	}
	posts := m.posts[target.Subreddit]
	if target.Limit > 0 && len(posts) > target.Limit {
		posts = posts[:target.Limit]
	}
	return posts, nil
}

func (m *mockFetcher) FetchComments(_ context.Context, _, postID string) ([]*types.Comment, error) {
	m.commentCalls = append(m.commentCalls, postID)
	if err := m.commentsErr[postID]; err != nil {
		return nil, err
	}
	return m.comments[postID], nil
}

func setupStorage(t *testing.T) *sqlite.Storage {
	t.Helper()

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.RunMigrations(context.Background()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return store
}

func TestPipelineRun(t *testing.T) {
	store := setupStorage(t)

	fetcher := newMockFetcher()
	fetcher.posts["golang"] = []*types.Post{
		testutil.NewRawPost("p1", "golang", "First post"),
		testutil.NewRawPost("p2", "golang", "Second post"),
	}
	fetcher.comments["p1"] = []*types.Comment{
		testutil.NewRawComment("c1", "p1", "alice", "First comment"),
		testutil.NewRawComment("c2", "p1", "bob", "Second comment"),
	}

	pipeline := etl.NewPipeline(fetcher, store)

	summary, err := pipeline.Run(context.Background(), []etl.FetchTarget{
		{Subreddit: "golang", Sort: "hot", Limit: 10, Comments: true},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.PostsFetched != 2 {
		t.Errorf("Expected 2 posts fetched, got %d", summary.PostsFetched)
	}
	if summary.PostsInserted != 2 {
		t.Errorf("Expected 2 posts inserted, got %d", summary.PostsInserted)
	}
	if summary.CommentsFetched != 2 {
		t.Errorf("Expected 2 comments fetched, got %d", summary.CommentsFetched)
	}
	if summary.CommentsInserted != 2 {
		t.Errorf("Expected 2 comments inserted, got %d", summary.CommentsInserted)
	}
	if summary.Failures() != 0 {
		t.Errorf("Expected no failures, got %d", summary.Failures())
	}

	post, err := store.GetPost(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if post.Title != "First post" {
		t.Errorf("Expected title 'First post', got %q", post.Title)
	}

	comments, err := store.GetCommentsByPost(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetCommentsByPost failed: %v", err)
	}
	if len(comments) != 2 {
		t.Errorf("Expected 2 comments for p1, got %d", len(comments))
	}
}

func TestPipelineIdempotent(t *testing.T) {
	store := setupStorage(t)

	fetcher := newMockFetcher()
	fetcher.posts["golang"] = []*types.Post{
		testutil.NewRawPost("p1", "golang", "First post"),
		testutil.NewRawPost("p2", "golang", "Second post"),
	}

	pipeline := etl.NewPipeline(fetcher, store)
	targets := []etl.FetchTarget{{Subreddit: "golang", Limit: 2}}

	first, err := pipeline.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if first.PostsInserted != 2 || first.PostsUpdated != 0 {
		t.Errorf("First run: expected 2 inserted / 0 updated, got %d / %d",
			first.PostsInserted, first.PostsUpdated)
	}

	second, err := pipeline.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if second.PostsInserted != 0 || second.PostsUpdated != 2 {
		t.Errorf("Second run: expected 0 inserted / 2 updated, got %d / %d",
			second.PostsInserted, second.PostsUpdated)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Posts != 2 {
		t.Errorf("Expected 2 stored posts after two runs, got %d", stats.Posts)
	}
}

func TestPipelineMalformedPostSkipped(t *testing.T) {
	store := setupStorage(t)

	fetcher := newMockFetcher()
	fetcher.posts["golang"] = []*types.Post{
		testutil.NewRawPost("p1", "golang", "Good post"),
		testutil.NewRawPost("p2", "golang", ""), // no title
	}

	pipeline := etl.NewPipeline(fetcher, store)

	summary, err := pipeline.Run(context.Background(), []etl.FetchTarget{
		{Subreddit: "golang", Limit: 10},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.TransformFailures != 1 {
		t.Errorf("Expected 1 transform failure, got %d", summary.TransformFailures)
	}
	if summary.PostsInserted != 1 {
		t.Errorf("Expected 1 post inserted, got %d", summary.PostsInserted)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Posts != 1 {
		t.Errorf("Expected 1 stored post, got %d", stats.Posts)
	}
}

func TestPipelineTargetFailureContinues(t *testing.T) {
	store := setupStorage(t)

	fetcher := newMockFetcher()
	fetcher.postsErr["broken"] = errors.New("listing unavailable")
	fetcher.posts["golang"] = []*types.Post{
		testutil.NewRawPost("p1", "golang", "Still arrives"),
	}

	pipeline := etl.NewPipeline(fetcher, store)

	summary, err := pipeline.Run(context.Background(), []etl.FetchTarget{
		{Subreddit: "broken", Limit: 10},
		{Subreddit: "golang", Limit: 10},
	})
	if err != nil {
		t.Fatalf("Run should survive a failing target, got %v", err)
	}

	if summary.FetchFailures != 1 {
		t.Errorf("Expected 1 fetch failure, got %d", summary.FetchFailures)
	}
	if len(summary.FailedTargets) != 1 || summary.FailedTargets[0] != "broken" {
		t.Errorf("Expected failed target 'broken', got %v", summary.FailedTargets)
	}
	if summary.PostsInserted != 1 {
		t.Errorf("Expected healthy target to be processed, got %d inserts", summary.PostsInserted)
	}
}

func TestPipelineAuthAbortsRun(t *testing.T) {
	store := setupStorage(t)

	fetcher := newMockFetcher()
	fetcher.postsErr["golang"] = &etl.AuthError{Err: errors.New("invalid credentials")}
	fetcher.posts["rust"] = []*types.Post{
		testutil.NewRawPost("p1", "rust", "Never reached"),
	}

	pipeline := etl.NewPipeline(fetcher, store)

	_, err := pipeline.Run(context.Background(), []etl.FetchTarget{
		{Subreddit: "golang", Limit: 10},
		{Subreddit: "rust", Limit: 10},
	})
	if !etl.IsAuth(err) {
		t.Fatalf("Expected auth error to abort the run, got %v", err)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Posts != 0 {
		t.Errorf("Expected no posts after aborted run, got %d", stats.Posts)
	}
}

func TestPipelineCommentFetchFailureIsolated(t *testing.T) {
	store := setupStorage(t)

	fetcher := newMockFetcher()
	fetcher.posts["golang"] = []*types.Post{
		testutil.NewRawPost("p1", "golang", "First post"),
		testutil.NewRawPost("p2", "golang", "Second post"),
	}
	fetcher.commentsErr["p1"] = errors.New("thread gone")
	fetcher.comments["p2"] = []*types.Comment{
		testutil.NewRawComment("c1", "p2", "alice", "Survives"),
	}

	pipeline := etl.NewPipeline(fetcher, store)

	summary, err := pipeline.Run(context.Background(), []etl.FetchTarget{
		{Subreddit: "golang", Limit: 10, Comments: true},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.FetchFailures != 1 {
		t.Errorf("Expected 1 fetch failure, got %d", summary.FetchFailures)
	}
	if summary.PostsInserted != 2 {
		t.Errorf("Expected both posts stored, got %d", summary.PostsInserted)
	}
	if summary.CommentsInserted != 1 {
		t.Errorf("Expected 1 comment stored, got %d", summary.CommentsInserted)
	}
}

func TestPipelineCommentsSkippedWhenPostFails(t *testing.T) {
	store := setupStorage(t)

	fetcher := newMockFetcher()
	fetcher.posts["golang"] = []*types.Post{
		testutil.NewRawPost("p1", "golang", "First post"),
	}
	fetcher.comments["p1"] = []*types.Comment{
		testutil.NewRawComment("c1", "p1", "alice", "Should not be fetched"),
	}

	pipeline := etl.NewPipeline(fetcher, &failingPostStorage{Storage: store})

	summary, err := pipeline.Run(context.Background(), []etl.FetchTarget{
		{Subreddit: "golang", Limit: 10, Comments: true},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.StorageFailures != 1 {
		t.Errorf("Expected 1 storage failure, got %d", summary.StorageFailures)
	}
	if len(fetcher.commentCalls) != 0 {
		t.Errorf("Comments must not be fetched for an unstored post, got calls %v",
			fetcher.commentCalls)
	}
}

// failingPostStorage rejects every post write.
type failingPostStorage struct {
	etl.Storage
}

func (f *failingPostStorage) UpsertPost(context.Context, *etl.Post) (etl.UpsertResult, error) {
	return etl.UpsertResult{}, &etl.StorageError{Op: "upsert_post", Err: errors.New("disk full")}
}

func TestPipelineCheckpointSkips(t *testing.T) {
	store := setupStorage(t)

	fetcher := newMockFetcher()
	fetcher.posts["golang"] = []*types.Post{
		testutil.NewRawPost("p1", "golang", "First post"),
		testutil.NewRawPost("p2", "golang", "Second post"),
	}

	path := filepath.Join(t.TempDir(), "checkpoint.json")
	cp, err := etl.LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}

	pipeline := etl.NewPipeline(fetcher, store)
	pipeline.SetCheckpoint(cp)
	targets := []etl.FetchTarget{{Subreddit: "golang", Limit: 10}}

	first, err := pipeline.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if first.PostsInserted != 2 || first.SkippedCheckpointed != 0 {
		t.Errorf("First run: expected 2 inserted / 0 skipped, got %d / %d",
			first.PostsInserted, first.SkippedCheckpointed)
	}

	second, err := pipeline.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if second.SkippedCheckpointed != 2 {
		t.Errorf("Expected 2 checkpointed posts skipped, got %d", second.SkippedCheckpointed)
	}
	if second.PostsInserted != 0 || second.PostsUpdated != 0 {
		t.Errorf("Checkpointed posts should not be written again, got %d / %d",
			second.PostsInserted, second.PostsUpdated)
	}
}

func TestPipelineContextCancelled(t *testing.T) {
	store := setupStorage(t)

	fetcher := newMockFetcher()
	fetcher.posts["golang"] = []*types.Post{
		testutil.NewRawPost("p1", "golang", "First post"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline := etl.NewPipeline(fetcher, store)

	_, err := pipeline.Run(ctx, []etl.FetchTarget{{Subreddit: "golang", Limit: 10}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
