package app

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Sabina940/atlas/internal/util"
)

// PostInput is the wire schema of a post upsert. Defaults are applied by
// normalize, once, before the store is touched.
type PostInput struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Slug        string       `json:"slug"`
	Excerpt     *string      `json:"excerpt"`
	CoverURL    *string      `json:"cover_url"`
	Tags        util.TagList `json:"tags"`
	Status      string       `json:"status"`
	Content     string       `json:"content"`
	ContentMD   string       `json:"content_md"`
	PublishedAt *time.Time   `json:"published_at"`
}

type CommentInput struct {
	PostID      string  `json:"post_id"`
	AuthorName  string  `json:"author_name"`
	AuthorEmail *string `json:"author_email"`
	Body        string  `json:"body"`
	ParentID    *string `json:"parent_id"`
}

// PostCommand is one admin mutation of /admin/posts.
type PostCommand interface {
	postCommand()
}

type UpsertPostCommand struct {
	Input PostInput
}

type SetPostStatusCommand struct {
	ID     string
	Status string
}

type DeletePostCommand struct {
	ID string
}

func (UpsertPostCommand) postCommand()    {}
func (SetPostStatusCommand) postCommand() {}
func (DeletePostCommand) postCommand()    {}

// CommentCommand is one admin mutation of /admin/comments.
type CommentCommand interface {
	commentCommand()
}

type SetCommentStatusCommand struct {
	ID     string
	Status string
}

type ReplyCommentCommand struct {
	ParentID string
	Body     string
}

func (SetCommentStatusCommand) commentCommand() {}
func (ReplyCommentCommand) commentCommand()     {}

type postEnvelope struct {
	Action string     `json:"action"`
	Post   *PostInput `json:"post"`
	ID     string     `json:"id"`
	Status string     `json:"status"`
}

type commentEnvelope struct {
	Action string `json:"action"`
	ID     string `json:"id"`
	Status string `json:"status"`
	Reply  string `json:"reply"`
}

// decodeJSON decodes body into a fresh T. A body that does not parse yields
// the zero value, so required-field checks report what is missing.
func decodeJSON[T any](body []byte) T {
	var value T
	if len(body) == 0 {
		return value
	}
	if err := json.Unmarshal(body, &value); err != nil {
		var zero T
		return zero
	}
	return value
}

// decodePostCommand turns the wire envelope into a command. An absent action
// is an upsert.
func decodePostCommand(body []byte) (PostCommand, error) {
	envelope := decodeJSON[postEnvelope](body)
	switch action := strings.TrimSpace(envelope.Action); action {
	case "", "upsert":
		var input PostInput
		if envelope.Post != nil {
			input = *envelope.Post
		}
		return UpsertPostCommand{Input: input}, nil
	case "setStatus":
		return SetPostStatusCommand{ID: envelope.ID, Status: envelope.Status}, nil
	case "delete":
		return DeletePostCommand{ID: envelope.ID}, nil
	default:
		return nil, unknownAction(action)
	}
}

func decodeCommentCommand(body []byte) (CommentCommand, error) {
	envelope := decodeJSON[commentEnvelope](body)
	switch action := strings.TrimSpace(envelope.Action); action {
	case "setStatus":
		return SetCommentStatusCommand{ID: envelope.ID, Status: envelope.Status}, nil
	case "reply":
		return ReplyCommentCommand{ParentID: envelope.ID, Body: envelope.Reply}, nil
	default:
		return nil, unknownAction(action)
	}
}
