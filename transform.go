package etl

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jamesprial/go-reddit-api-wrapper/pkg/types"
)

const deletedAuthor = "[deleted]"

// Transformer maps raw API records into normalized documents. The mapping is
// pure: it never touches the network or storage, and fails only on records
// missing required fields.
type Transformer struct {
	now func() time.Time
}

// NewTransformer creates a transformer using the wall clock.
func NewTransformer() *Transformer {
	return &Transformer{now: time.Now}
}

// Post normalizes a raw submission. The id and title are required; a record
// without them yields a TransformError and should be skipped.
func (t *Transformer) Post(raw *types.Post) (*Post, error) {
	if raw == nil {
		return nil, &TransformError{Kind: "post", Reason: "nil record"}
	}
	if raw.ID == "" {
		return nil, &TransformError{Kind: "post", Reason: "missing id"}
	}
	if raw.Title == "" {
		return nil, &TransformError{Kind: "post", ID: raw.ID, Reason: "missing title"}
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, &TransformError{Kind: "post", ID: raw.ID, Reason: "unmarshalable record: " + err.Error()}
	}

	post := &Post{
		ID:          raw.ID,
		Fullname:    fullname(raw.Name, "t3_", raw.ID),
		Subreddit:   raw.Subreddit,
		Author:      authorOrDeleted(raw.Author),
		Title:       raw.Title,
		Body:        raw.SelfText,
		URL:         raw.URL,
		Score:       raw.Score,
		NumComments: raw.NumComments,
		IsSelf:      raw.IsSelf,
		CreatedUTC:  raw.CreatedUTC,
		RetrievedAt: t.now().UTC(),
		Raw:         rawJSON,
	}

	if raw.Edited.IsEdited && raw.Edited.Timestamp > 0 {
		post.EditedUTC = raw.Edited.Timestamp
	}

	return post, nil
}

// Comment normalizes a raw comment. The id and owning post link are
// required. Fullname prefixes are stripped so stored ids are bare.
func (t *Transformer) Comment(raw *types.Comment) (*Comment, error) {
	if raw == nil {
		return nil, &TransformError{Kind: "comment", Reason: "nil record"}
	}
	if raw.ID == "" {
		return nil, &TransformError{Kind: "comment", Reason: "missing id"}
	}
	if raw.LinkID == "" {
		return nil, &TransformError{Kind: "comment", ID: raw.ID, Reason: "missing post link"}
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, &TransformError{Kind: "comment", ID: raw.ID, Reason: "unmarshalable record: " + err.Error()}
	}

	comment := &Comment{
		ID:          raw.ID,
		Fullname:    fullname(raw.Name, "t1_", raw.ID),
		PostID:      stripPrefix(raw.LinkID),
		Author:      authorOrDeleted(raw.Author),
		Body:        raw.Body,
		Score:       raw.Score,
		CreatedUTC:  raw.CreatedUTC,
		RetrievedAt: t.now().UTC(),
		Raw:         rawJSON,
	}

	// A parent pointing at the post itself means a top-level comment;
	// anything else is a reply to another comment.
	if raw.ParentID != "" && raw.ParentID != raw.LinkID {
		comment.ParentID = stripPrefix(raw.ParentID)
	}

	if raw.Edited.IsEdited && raw.Edited.Timestamp > 0 {
		comment.EditedUTC = raw.Edited.Timestamp
	}

	return comment, nil
}

func authorOrDeleted(author string) string {
	if author == "" {
		return deletedAuthor
	}
	return author
}

func fullname(name, prefix, id string) string {
	if name != "" {
		return name
	}
	return prefix + id
}

// stripPrefix removes a "tN_" fullname prefix, e.g. "t3_abc" -> "abc".
func stripPrefix(fullname string) string {
	if len(fullname) > 3 && fullname[2] == '_' && strings.HasPrefix(fullname, "t") {
		return fullname[3:]
	}
	return fullname
}
