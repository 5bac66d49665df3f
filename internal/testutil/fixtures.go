package testutil

import (
	"time"

	"github.com/jamesprial/go-reddit-api-wrapper/pkg/types"

	etl "github.com/jamesprial/go-reddit-etl"
)

// NewRawPost creates a raw API post with proper embedded types
func NewRawPost(id, subreddit, title string) *types.Post {
	return &types.Post{
		ThingData: types.ThingData{
			ID:   id,
			Name: "t3_" + id,
		},
		Created: types.Created{
			CreatedUTC: float64(time.Now().Unix()),
		},
		Subreddit:   subreddit,
		Author:      "testuser",
		Title:       title,
		NumComments: 0,
		Score:       0,
	}
}

// NewRawComment creates a raw API comment with proper embedded types
func NewRawComment(id, postID, author, body string) *types.Comment {
	return &types.Comment{
		ThingData: types.ThingData{
			ID:   id,
			Name: "t1_" + id,
		},
		Created: types.Created{
			CreatedUTC: float64(time.Now().Unix()),
		},
		LinkID: "t3_" + postID,
		Author: author,
		Body:   body,
		Score:  0,
	}
}

// NewPost creates a normalized post document.
func NewPost(id, subreddit, title string) *etl.Post {
	return &etl.Post{
		ID:          id,
		Fullname:    "t3_" + id,
		Subreddit:   subreddit,
		Author:      "testuser",
		Title:       title,
		CreatedUTC:  float64(time.Now().Unix()),
		RetrievedAt: time.Now().UTC(),
		Raw:         []byte(`{}`),
	}
}

// NewComment creates a normalized comment document owned by postID.
func NewComment(id, postID, author, body string) *etl.Comment {
	return &etl.Comment{
		ID:          id,
		Fullname:    "t1_" + id,
		PostID:      postID,
		Author:      author,
		Body:        body,
		CreatedUTC:  float64(time.Now().Unix()),
		RetrievedAt: time.Now().UTC(),
		Raw:         []byte(`{}`),
	}
}
