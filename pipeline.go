package etl

import (
	"context"
	"log/slog"
	"time"

	"github.com/jamesprial/go-reddit-api-wrapper/pkg/types"
)

// Fetcher produces raw records from the remote API. Implementations own
// pagination and rate-limit handling; errors escaping a Fetcher are either
// fatal (AuthError) or terminal for the current target.
type Fetcher interface {
	FetchPosts(ctx context.Context, target FetchTarget) ([]*types.Post, error)
	FetchComments(ctx context.Context, subreddit, postID string) ([]*types.Comment, error)
}

// Pipeline sequences fetch, transform and upsert for each configured
// target. A failing target is recorded and the run moves on; only an auth
// failure or context cancellation aborts the run.
type Pipeline struct {
	fetcher     Fetcher
	storage     Storage
	transformer *Transformer
	checkpoint  *Checkpoint
	log         *slog.Logger
}

// NewPipeline creates a pipeline over the given fetcher and storage.
func NewPipeline(fetcher Fetcher, store Storage) *Pipeline {
	return &Pipeline{
		fetcher:     fetcher,
		storage:     store,
		transformer: NewTransformer(),
		log:         slog.Default(),
	}
}

// SetCheckpoint enables skipping of posts processed by previous runs.
func (p *Pipeline) SetCheckpoint(cp *Checkpoint) {
	p.checkpoint = cp
}

// SetLogger replaces the default logger.
func (p *Pipeline) SetLogger(log *slog.Logger) {
	if log != nil {
		p.log = log
	}
}

// Run executes one pass over all targets and reports aggregate counts. The
// returned summary is valid even when an error is returned; already
// persisted documents are never rolled back, and re-running is safe because
// every write is an upsert.
func (p *Pipeline) Run(ctx context.Context, targets []FetchTarget) (*RunSummary, error) {
	summary := &RunSummary{Started: time.Now()}
	defer func() {
		summary.Duration = time.Since(summary.Started)
	}()

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		p.log.Info("processing target",
			"subreddit", target.Subreddit, "sort", target.Sort, "limit", target.Limit)

		if err := p.runTarget(ctx, target, summary); err != nil {
			if IsAuth(err) || ctx.Err() != nil {
				return summary, err
			}
			summary.FetchFailures++
			summary.FailedTargets = append(summary.FailedTargets, target.Subreddit)
			p.log.Error("target failed", "subreddit", target.Subreddit, "error", err)
		}
	}

	p.log.Info("run complete",
		"posts_fetched", summary.PostsFetched,
		"posts_inserted", summary.PostsInserted,
		"posts_updated", summary.PostsUpdated,
		"comments_fetched", summary.CommentsFetched,
		"failures", summary.Failures())

	return summary, nil
}

func (p *Pipeline) runTarget(ctx context.Context, target FetchTarget, summary *RunSummary) error {
	rawPosts, err := p.fetcher.FetchPosts(ctx, target)
	if err != nil {
		return err
	}
	summary.PostsFetched += len(rawPosts)

	for _, raw := range rawPosts {
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.checkpoint != nil && raw.ID != "" && p.checkpoint.Seen(raw.ID) {
			summary.SkippedCheckpointed++
			continue
		}

		post, err := p.transformer.Post(raw)
		if err != nil {
			summary.TransformFailures++
			p.log.Warn("skipping post", "error", err)
			continue
		}

		res, err := p.storage.UpsertPost(ctx, post)
		if err != nil {
			// The post never made it to storage, so its comments are
			// skipped too: a comment must not precede its parent.
			summary.StorageFailures++
			p.log.Error("failed to store post", "id", post.ID, "error", err)
			continue
		}
		summary.PostsInserted += res.Inserted
		summary.PostsUpdated += res.Updated

		if target.Comments {
			if err := p.runComments(ctx, target.Subreddit, post.ID, summary); err != nil {
				return err
			}
		}

		if p.checkpoint != nil {
			if err := p.checkpoint.Mark(post.ID); err != nil {
				p.log.Warn("failed to save checkpoint", "id", post.ID, "error", err)
			}
		}
	}

	return nil
}

func (p *Pipeline) runComments(ctx context.Context, subreddit, postID string, summary *RunSummary) error {
	rawComments, err := p.fetcher.FetchComments(ctx, subreddit, postID)
	if err != nil {
		if IsAuth(err) || ctx.Err() != nil {
			return err
		}
		summary.FetchFailures++
		p.log.Error("failed to fetch comments", "post", postID, "error", err)
		return nil
	}
	summary.CommentsFetched += len(rawComments)

	comments := make([]*Comment, 0, len(rawComments))
	for _, raw := range rawComments {
		comment, err := p.transformer.Comment(raw)
		if err != nil {
			summary.TransformFailures++
			p.log.Warn("skipping comment", "post", postID, "error", err)
			continue
		}
		comments = append(comments, comment)
	}

	if len(comments) == 0 {
		return nil
	}

	res, err := p.storage.UpsertComments(ctx, comments)
	if err != nil {
		summary.StorageFailures++
		p.log.Error("failed to store comments", "post", postID, "error", err)
		return nil
	}
	summary.CommentsInserted += res.Inserted
	summary.CommentsUpdated += res.Updated

	return nil
}
