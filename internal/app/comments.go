package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sabina940/atlas/internal/email"
	"github.com/Sabina940/atlas/internal/store"
	"github.com/Sabina940/atlas/internal/util"
)

var commentStatuses = []string{
	string(store.CommentPending),
	string(store.CommentApproved),
	string(store.CommentSpam),
	string(store.CommentDeleted),
}

// PublicComment is the reader-facing projection of an approved comment.
type PublicComment struct {
	ID           string    `json:"id"`
	PostID       string    `json:"post_id"`
	ParentID     *string   `json:"parent_id"`
	AuthorName   string    `json:"author_name"`
	Body         string    `json:"body"`
	IsAdminReply bool      `json:"is_admin_reply"`
	CreatedAt    time.Time `json:"created_at"`
}

func publicComment(c store.Comment) PublicComment {
	return PublicComment{
		ID:           c.ID,
		PostID:       c.PostID,
		ParentID:     c.ParentID,
		AuthorName:   c.AuthorName,
		Body:         c.Body,
		IsAdminReply: c.IsAdminReply,
		CreatedAt:    c.CreatedAt,
	}
}

// Thread is a top-level comment with its direct replies.
type Thread struct {
	Comment PublicComment   `json:"comment"`
	Replies []PublicComment `json:"replies"`
}

func parseCommentStatus(value string) (store.CommentStatus, error) {
	status := store.CommentStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", invalidEnum("status", value, commentStatuses)
	}
	return status, nil
}

// SubmitComment stores a reader comment. Moderation fields never come from
// the caller: every submission starts pending and is not an admin reply.
func (s *Service) SubmitComment(ctx context.Context, input CommentInput) (store.Comment, error) {
	postID := strings.TrimSpace(input.PostID)
	if postID == "" {
		return store.Comment{}, missingField("post_id")
	}
	authorName := strings.TrimSpace(input.AuthorName)
	if authorName == "" {
		return store.Comment{}, missingField("author_name")
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return store.Comment{}, missingField("body")
	}

	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Comment{}, invalidReference("post_id")
		}
		return store.Comment{}, storeError(err)
	}

	parentID := util.TrimOrNil(input.ParentID)
	if parentID != nil {
		parent, err := s.store.GetComment(ctx, *parentID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return store.Comment{}, invalidReference("parent_id")
		case err != nil:
			return store.Comment{}, storeError(err)
		case parent.PostID != postID:
			return store.Comment{}, invalidReference("parent_id")
		}
	}

	comment, err := s.store.InsertComment(ctx, store.Comment{
		PostID:       postID,
		ParentID:     parentID,
		AuthorName:   authorName,
		AuthorEmail:  util.TrimOrNil(input.AuthorEmail),
		Body:         body,
		Status:       store.CommentPending,
		IsAdminReply: false,
		CreatedAt:    s.clock(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Comment{}, invalidReference("post_id")
	}
	if err != nil {
		return store.Comment{}, storeError(err)
	}
	if s.notifier != nil {
		s.notifier.NotifyPendingComment(email.PendingComment{
			CommentID:  comment.ID,
			PostTitle:  post.Title,
			PostSlug:   post.Slug,
			AuthorName: comment.AuthorName,
			Body:       comment.Body,
			CreatedAt:  comment.CreatedAt,
		})
	}
	return comment, nil
}

// ExecuteCommentCommand runs one admin moderation command. Only reply
// returns a comment.
func (s *Service) ExecuteCommentCommand(ctx context.Context, command CommentCommand) (*store.Comment, error) {
	switch cmd := command.(type) {
	case SetCommentStatusCommand:
		return nil, s.SetCommentStatus(ctx, cmd.ID, cmd.Status)
	case ReplyCommentCommand:
		reply, err := s.Reply(ctx, cmd.ParentID, cmd.Body)
		if err != nil {
			return nil, err
		}
		return &reply, nil
	default:
		return nil, fmt.Errorf("unhandled comment command %T", command)
	}
}

// Reply posts an approved owner comment under parentID on the parent's post.
func (s *Service) Reply(ctx context.Context, parentID, body string) (store.Comment, error) {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return store.Comment{}, missingField("id")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, missingField("reply")
	}

	parent, err := s.store.GetComment(ctx, parentID)
	if err != nil {
		return store.Comment{}, fromStore(err, "comment")
	}
	reply, err := s.store.InsertComment(ctx, store.Comment{
		PostID:       parent.PostID,
		ParentID:     &parent.ID,
		AuthorName:   s.ownerName,
		Body:         body,
		Status:       store.CommentApproved,
		IsAdminReply: true,
		CreatedAt:    s.clock(),
	})
	if err != nil {
		return store.Comment{}, fromStore(err, "post")
	}
	return reply, nil
}

func (s *Service) SetCommentStatus(ctx context.Context, id, status string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return missingField("id")
	}
	if strings.TrimSpace(status) == "" {
		return missingField("status")
	}
	parsed, err := parseCommentStatus(status)
	if err != nil {
		return err
	}
	return fromStore(s.store.SetCommentStatus(ctx, id, parsed, s.clock()), "comment")
}

// ListForModeration lists comments in one status, newest first. An empty
// status means the pending queue.
func (s *Service) ListForModeration(ctx context.Context, status string) ([]store.Comment, error) {
	parsed := store.CommentPending
	if strings.TrimSpace(status) != "" {
		value, err := parseCommentStatus(status)
		if err != nil {
			return nil, err
		}
		parsed = value
	}
	comments, err := s.store.ListCommentsByStatus(ctx, parsed)
	if err != nil {
		return nil, storeError(err)
	}
	if comments == nil {
		comments = []store.Comment{}
	}
	return comments, nil
}

// ListApproved returns the approved comments of one post in reading order.
func (s *Service) ListApproved(ctx context.Context, postID string) ([]PublicComment, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, missingField("post_id")
	}
	comments, err := s.store.ListApprovedComments(ctx, postID)
	if err != nil {
		return nil, storeError(err)
	}
	out := make([]PublicComment, 0, len(comments))
	for _, comment := range comments {
		if comment.Status != store.CommentApproved || comment.PostID != postID {
			continue
		}
		out = append(out, publicComment(comment))
	}
	return out, nil
}

// GroupThreads builds the one-level display model: top-level comments with
// their direct replies, in input order. A reply whose parent is not a
// top-level comment in the list is returned in orphans.
func GroupThreads(comments []PublicComment) (threads []Thread, orphans []PublicComment) {
	threads = []Thread{}
	orphans = []PublicComment{}
	index := make(map[string]int)
	for _, comment := range comments {
		if comment.ParentID == nil {
			index[comment.ID] = len(threads)
			threads = append(threads, Thread{Comment: comment, Replies: []PublicComment{}})
		}
	}
	for _, comment := range comments {
		if comment.ParentID == nil {
			continue
		}
		position, ok := index[*comment.ParentID]
		if !ok {
			orphans = append(orphans, comment)
			continue
		}
		threads[position].Replies = append(threads[position].Replies, comment)
	}
	return threads, orphans
}
