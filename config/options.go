// Package config resolves run parameters from environment variables,
// command-line flags and the targets file.
package config

import (
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Options holds all runtime configuration. Values come from flags and
// environment variables; a .env file in the working directory is honored
// when the caller loads it first.
type Options struct {
	// Reddit API credentials
	RedditClientID     string `long:"reddit-client-id" env:"REDDIT_CLIENT_ID" description:"Reddit OAuth client id (required)" required:"true"`
	RedditClientSecret string `long:"reddit-client-secret" env:"REDDIT_CLIENT_SECRET" description:"Reddit OAuth client secret (required)" required:"true"`
	UserAgent          string `long:"user-agent" env:"REDDIT_USER_AGENT" default:"go-reddit-etl/1.0" description:"User agent string for API requests"`

	// Storage
	DBType string `long:"db-type" env:"DB_TYPE" default:"sqlite" choice:"sqlite" choice:"postgres" description:"Storage backend"`
	DBURL  string `long:"db" env:"DATABASE_URL" description:"Connection string (postgres) or database path (sqlite, default ./reddit-etl.db)"`

	// Run parameters
	TargetsFile    string `long:"targets" env:"TARGETS_FILE" default:"./targets.yaml" description:"YAML file listing subreddits to fetch"`
	CheckpointFile string `long:"checkpoint" env:"CHECKPOINT_FILE" default:"./checkpoint.json" description:"Checkpoint file path, empty to disable"`

	// Rate limiting and retries
	RequestsPerMinute int `long:"requests-per-minute" env:"REQUESTS_PER_MINUTE" default:"60" description:"Outbound API request cap"`
	MaxRetries        int `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Retry attempts per request"`

	// Modes
	ClearCheckpoint bool `long:"clear-checkpoint" description:"Clear checkpoint state and exit"`
	Debug           bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses args (excluding the program name) plus environment variables.
// Returns (nil, nil) when help was requested.
func Load(args []string) (*Options, error) {
	var opts Options

	parser := flags.NewParser(&opts, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if opts.DBURL == "" {
		switch opts.DBType {
		case "sqlite":
			opts.DBURL = "./reddit-etl.db"
		case "postgres":
			return nil, fmt.Errorf("--db or DATABASE_URL is required for postgres")
		}
	}

	return &opts, nil
}
