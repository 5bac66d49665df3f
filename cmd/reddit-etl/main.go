package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	graw "github.com/jamesprial/go-reddit-api-wrapper"
	"github.com/joho/godotenv"

	etl "github.com/jamesprial/go-reddit-etl"
	"github.com/jamesprial/go-reddit-etl/config"
	"github.com/jamesprial/go-reddit-etl/feed"
	"github.com/jamesprial/go-reddit-etl/postgres"
	"github.com/jamesprial/go-reddit-etl/sqlite"
)

func main() {
	os.Exit(run())
}

func run() int {
	godotenv.Load()

	opts, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("configuration error", "error", err)
		return 1
	}
	if opts == nil {
		// Help was shown.
		return 0
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Checkpoint state is shared across runs, so handle the clear mode
	// before anything else connects.
	if opts.ClearCheckpoint {
		if opts.CheckpointFile == "" {
			logger.Error("no checkpoint file configured")
			return 1
		}
		cp, err := etl.LoadCheckpoint(opts.CheckpointFile)
		if err != nil {
			logger.Error("failed to load checkpoint", "error", err)
			return 1
		}
		if err := cp.Clear(); err != nil {
			logger.Error("failed to clear checkpoint", "error", err)
			return 1
		}
		logger.Info("checkpoint cleared", "path", opts.CheckpointFile)
		return 0
	}

	targets, err := config.LoadTargets(opts.TargetsFile)
	if err != nil {
		logger.Error("failed to load targets", "path", opts.TargetsFile, "error", err)
		return 1
	}
	logger.Info("targets loaded", "path", opts.TargetsFile, "count", len(targets))

	var store etl.Storage
	switch opts.DBType {
	case "sqlite":
		store, err = sqlite.New(opts.DBURL)
	case "postgres":
		store, err = postgres.New(opts.DBURL)
	}
	if err != nil {
		logger.Error("failed to open storage", "type", opts.DBType, "error", err)
		return 1
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		return 1
	}

	client, err := graw.NewClient(&graw.Config{
		ClientID:     opts.RedditClientID,
		ClientSecret: opts.RedditClientSecret,
		UserAgent:    opts.UserAgent,
	})
	if err != nil {
		logger.Error("failed to initialize Reddit client", "error", err)
		return 1
	}

	fetcher := feed.New(client, feed.Config{
		RequestsPerMinute: opts.RequestsPerMinute,
		MaxRetries:        opts.MaxRetries,
		Logger:            logger,
	})

	pipeline := etl.NewPipeline(fetcher, store)
	pipeline.SetLogger(logger)

	if opts.CheckpointFile != "" {
		cp, err := etl.LoadCheckpoint(opts.CheckpointFile)
		if err != nil {
			logger.Error("failed to load checkpoint", "path", opts.CheckpointFile, "error", err)
			return 1
		}
		pipeline.SetCheckpoint(cp)
	}

	summary, err := pipeline.Run(ctx, targets)
	logSummary(logger, summary)

	if err != nil {
		// Completed work is already persisted; re-running resumes safely.
		logger.Error("run aborted", "error", err)
		return 1
	}

	if stats, err := store.Stats(ctx); err == nil {
		logger.Info("database totals",
			"posts", stats.Posts,
			"comments", stats.Comments,
			"subreddits", len(stats.PostsBySubreddit))
	}

	// Per-target failures are logged, not propagated to the exit code.
	return 0
}

func logSummary(logger *slog.Logger, s *etl.RunSummary) {
	logger.Info("run summary",
		"duration", s.Duration,
		"posts_fetched", s.PostsFetched,
		"posts_inserted", s.PostsInserted,
		"posts_updated", s.PostsUpdated,
		"comments_fetched", s.CommentsFetched,
		"comments_inserted", s.CommentsInserted,
		"comments_updated", s.CommentsUpdated,
		"skipped_checkpointed", s.SkippedCheckpointed,
		"transform_failures", s.TransformFailures,
		"storage_failures", s.StorageFailures,
		"fetch_failures", s.FetchFailures,
		"failed_targets", s.FailedTargets)
}
