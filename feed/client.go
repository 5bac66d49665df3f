// Package feed wraps the Reddit API client with pagination, request pacing
// and rate-limit backoff, producing raw records for the pipeline.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jamesprial/go-reddit-api-wrapper/pkg/types"
	"golang.org/x/time/rate"

	etl "github.com/jamesprial/go-reddit-etl"
)

// API is the slice of the Reddit client the adapter needs. The real client
// from go-reddit-api-wrapper satisfies it; tests substitute a fake.
type API interface {
	GetHot(ctx context.Context, req *types.PostsRequest) (*types.PostsResponse, error)
	GetNew(ctx context.Context, req *types.PostsRequest) (*types.PostsResponse, error)
	GetComments(ctx context.Context, req *types.CommentsRequest) (*types.CommentsResponse, error)
}

// Config tunes the adapter's pacing and retry behavior.
type Config struct {
	// RequestsPerMinute caps outbound request rate. Reddit allows 60/min
	// for OAuth clients; default 60.
	RequestsPerMinute int
	// MaxRetries bounds retry attempts per request for rate-limit and
	// transient errors. Default 3.
	MaxRetries int
	// InitialBackoff seeds the exponential delay schedule. Default 1s.
	InitialBackoff time.Duration
	// MaxBackoff caps a single backoff interval. Default 2m.
	MaxBackoff time.Duration

	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.RequestsPerMinute <= 0 {
		out.RequestsPerMinute = 60
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = 3
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = time.Second
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = 2 * time.Minute
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Client implements etl.Fetcher over the Reddit API.
type Client struct {
	api     API
	limiter *rate.Limiter
	cfg     Config
	log     *slog.Logger
}

// Statically ensure Client satisfies the pipeline's contract.
var _ etl.Fetcher = (*Client)(nil)

// New creates a feed client over the given API.
func New(api API, cfg Config) *Client {
	cfg = cfg.withDefaults()

	interval := time.Minute / time.Duration(cfg.RequestsPerMinute)

	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		cfg:     cfg,
		log:     cfg.Logger,
	}
}

// FetchPosts pages through the target's listing until the configured cap is
// reached or the listing ends.
func (c *Client) FetchPosts(ctx context.Context, target etl.FetchTarget) ([]*types.Post, error) {
	limit := target.Limit
	if limit <= 0 {
		limit = 100
	}

	var posts []*types.Post
	after := ""

	for len(posts) < limit {
		batchSize := 100
		if remaining := limit - len(posts); remaining < batchSize {
			batchSize = remaining
		}

		req := &types.PostsRequest{
			Subreddit: target.Subreddit,
			Pagination: types.Pagination{
				Limit: batchSize,
				After: after,
			},
		}

		var resp *types.PostsResponse
		err := c.do(ctx, func() error {
			var err error
			resp, err = c.listPosts(ctx, target.Sort, req)
			return err
		})
		if err != nil {
			return posts, err
		}

		if len(resp.Posts) == 0 {
			break
		}
		posts = append(posts, resp.Posts...)

		after = resp.AfterFullname
		if after == "" {
			break
		}
	}

	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// FetchComments retrieves the flattened comment listing for one post.
func (c *Client) FetchComments(ctx context.Context, subreddit, postID string) ([]*types.Comment, error) {
	req := &types.CommentsRequest{
		Subreddit: subreddit,
		PostID:    postID,
	}

	var resp *types.CommentsResponse
	err := c.do(ctx, func() error {
		var err error
		resp, err = c.api.GetComments(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	return resp.Comments, nil
}

func (c *Client) listPosts(ctx context.Context, sort string, req *types.PostsRequest) (*types.PostsResponse, error) {
	switch sort {
	case "", "hot":
		return c.api.GetHot(ctx, req)
	case "new", "top":
		// "top" is not yet supported by the API wrapper; fall back to "new".
		return c.api.GetNew(ctx, req)
	default:
		return nil, fmt.Errorf("invalid sort type: %s", sort)
	}
}

// do issues one logical request: wait for a limiter token, call, and on a
// rate-limit or transient error sleep a capped exponential interval before
// retrying. Auth errors are returned immediately.
func (c *Client) do(ctx context.Context, call func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.MaxElapsedTime = 0

	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := call()
		if err == nil {
			return nil
		}
		lastErr = err

		switch kind, wait := classify(err); kind {
		case kindAuth:
			return &etl.AuthError{Err: err}
		case kindRateLimit:
			if wait <= 0 {
				wait = bo.NextBackOff()
			}
			if wait > c.cfg.MaxBackoff {
				wait = c.cfg.MaxBackoff
			}
			c.log.Warn("rate limited, backing off",
				"wait", wait, "attempt", attempt+1)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			lastErr = &etl.RateLimitError{Wait: wait, Err: err}
		default:
			wait := bo.NextBackOff()
			c.log.Warn("request failed, retrying",
				"wait", wait, "attempt", attempt+1, "error", err)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
