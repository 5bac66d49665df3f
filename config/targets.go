package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	etl "github.com/jamesprial/go-reddit-etl"
)

// Subreddit names are 3-21 word characters.
var subredditNameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,21}$`)

var validSorts = map[string]bool{
	"hot": true,
	"new": true,
	"top": true,
}

const (
	defaultSort  = "hot"
	defaultLimit = 100
)

type targetsFile struct {
	Targets []targetEntry `yaml:"targets"`
}

type targetEntry struct {
	Subreddit string `yaml:"subreddit"`
	Sort      string `yaml:"sort"`
	Limit     int    `yaml:"limit"`
	Comments  *bool  `yaml:"comments"`
}

// LoadTargets reads and validates the YAML targets file. Missing sort,
// limit and comments fields get defaults (hot, 100, enabled).
func LoadTargets(path string) ([]etl.FetchTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	var file targetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse targets file: %w", err)
	}

	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("targets file %s lists no targets", path)
	}

	targets := make([]etl.FetchTarget, 0, len(file.Targets))
	for i, entry := range file.Targets {
		target, err := entry.toTarget()
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i+1, err)
		}
		targets = append(targets, target)
	}

	return targets, nil
}

func (e targetEntry) toTarget() (etl.FetchTarget, error) {
	if !subredditNameRe.MatchString(e.Subreddit) {
		return etl.FetchTarget{}, fmt.Errorf("invalid subreddit name: %q", e.Subreddit)
	}

	sort := e.Sort
	if sort == "" {
		sort = defaultSort
	}
	if !validSorts[sort] {
		return etl.FetchTarget{}, fmt.Errorf("invalid sort %q for r/%s (use hot, new or top)", e.Sort, e.Subreddit)
	}

	limit := e.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 0 {
		return etl.FetchTarget{}, fmt.Errorf("negative limit for r/%s", e.Subreddit)
	}

	comments := true
	if e.Comments != nil {
		comments = *e.Comments
	}

	return etl.FetchTarget{
		Subreddit: e.Subreddit,
		Sort:      sort,
		Limit:     limit,
		Comments:  comments,
	}, nil
}
