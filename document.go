package etl

import (
	"encoding/json"
	"time"
)

// Post is the normalized document stored for one Reddit submission.
// Identity is the Reddit id with its "t3_" prefix stripped; score,
// num_comments, body and the edited timestamp are mutable between runs.
type Post struct {
	ID          string
	Fullname    string // "t3_" + ID
	Subreddit   string
	Author      string
	Title       string
	Body        string // selftext, empty for link posts
	URL         string
	Score       int
	NumComments int
	IsSelf      bool
	CreatedUTC  float64
	EditedUTC   float64 // 0 when never edited
	RetrievedAt time.Time
	Raw         json.RawMessage // original API record, stored verbatim
}

// Comment is the normalized document stored for one Reddit comment.
// A comment belongs to exactly one post (PostID). ParentID is empty for
// top-level comments, otherwise the id of the parent comment.
type Comment struct {
	ID          string
	Fullname    string // "t1_" + ID
	PostID      string
	ParentID    string
	Author      string
	Body        string
	Score       int
	CreatedUTC  float64
	EditedUTC   float64
	RetrievedAt time.Time
	Raw         json.RawMessage
}

// TopLevel reports whether the comment replies directly to its post.
func (c *Comment) TopLevel() bool {
	return c.ParentID == ""
}

// FetchTarget configures one subreddit fetch for a run.
type FetchTarget struct {
	Subreddit string
	Sort      string // "hot", "new", "top"
	Limit     int    // max posts per run
	Comments  bool   // fetch comment threads for each post
}

// RunSummary aggregates counts for a single pipeline execution.
type RunSummary struct {
	Started  time.Time
	Duration time.Duration

	PostsFetched     int
	PostsInserted    int
	PostsUpdated     int
	CommentsFetched  int
	CommentsInserted int
	CommentsUpdated  int

	SkippedCheckpointed int
	TransformFailures   int
	StorageFailures     int
	FetchFailures       int

	FailedTargets []string
}

// Failures returns the total number of non-fatal failures in the run.
func (s *RunSummary) Failures() int {
	return s.TransformFailures + s.StorageFailures + s.FetchFailures
}
