package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/Sabina940/atlas/internal/gitrepo"
	"github.com/Sabina940/atlas/internal/media"
	"github.com/Sabina940/atlas/internal/search"
	"github.com/Sabina940/atlas/internal/store"
	"github.com/Sabina940/atlas/internal/util"
)

var postStatuses = []string{string(store.PostDraft), string(store.PostPublished)}

const defaultHistoryLimit = 50

// PostResult carries the stored post for an upsert; other commands only succeed.
type PostResult struct {
	Post *store.Post
}

func parsePostStatus(value string) (store.PostStatus, error) {
	status := store.PostStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", invalidEnum("status", value, postStatuses)
	}
	return status, nil
}

// normalize validates the input and applies its defaults. The supplied ID
// is not part of the write; slug identifies the row.
func (in PostInput) normalize() (store.PostWrite, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return store.PostWrite{}, missingField("title")
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		return store.PostWrite{}, missingField("slug")
	}
	status := store.PostDraft
	if strings.TrimSpace(in.Status) != "" {
		parsed, err := parsePostStatus(in.Status)
		if err != nil {
			return store.PostWrite{}, err
		}
		status = parsed
	}
	return store.PostWrite{
		Title:       title,
		Slug:        slug,
		Excerpt:     util.TrimOrNil(in.Excerpt),
		CoverURL:    util.TrimOrNil(in.CoverURL),
		Tags:        util.NormalizeTags(in.Tags),
		Status:      status,
		Content:     util.FirstNonBlank(in.Content, in.ContentMD),
		PublishedAt: in.PublishedAt,
	}, nil
}

func (s *Service) ListPosts(ctx context.Context) ([]store.PostSummary, error) {
	posts, err := s.store.ListPosts(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	if posts == nil {
		posts = []store.PostSummary{}
	}
	return posts, nil
}

// GetPost resolves key as an id first and then as a slug.
func (s *Service) GetPost(ctx context.Context, key string) (store.Post, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return store.Post{}, missingField("id")
	}
	post, err := s.store.GetPost(ctx, key)
	if err == nil {
		return post, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Post{}, storeError(err)
	}
	post, err = s.store.GetPostBySlug(ctx, key)
	if err != nil {
		return store.Post{}, fromStore(err, "post")
	}
	return post, nil
}

// ExecutePostCommand runs one admin post mutation on behalf of actor.
func (s *Service) ExecutePostCommand(ctx context.Context, actor string, command PostCommand) (PostResult, error) {
	switch cmd := command.(type) {
	case UpsertPostCommand:
		post, err := s.UpsertPost(ctx, actor, cmd.Input)
		if err != nil {
			return PostResult{}, err
		}
		return PostResult{Post: &post}, nil
	case SetPostStatusCommand:
		return PostResult{}, s.SetPostStatus(ctx, actor, cmd.ID, cmd.Status)
	case DeletePostCommand:
		return PostResult{}, s.DeletePost(ctx, cmd.ID)
	default:
		return PostResult{}, fmt.Errorf("unhandled post command %T", command)
	}
}

func (s *Service) UpsertPost(ctx context.Context, actor string, input PostInput) (store.Post, error) {
	write, err := input.normalize()
	if err != nil {
		return store.Post{}, err
	}
	write.Now = s.clock()

	post, err := s.store.UpsertPost(ctx, write)
	if err != nil {
		return store.Post{}, storeError(err)
	}
	s.afterWrite(post, actor, fmt.Sprintf("upsert %s (%s)", post.Slug, post.Status))
	return post, nil
}

// SetPostStatus changes only status, updated_at and, when first published, published_at.
func (s *Service) SetPostStatus(ctx context.Context, actor, id, status string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return missingField("id")
	}
	if strings.TrimSpace(status) == "" {
		return missingField("status")
	}
	parsed, err := parsePostStatus(status)
	if err != nil {
		return err
	}
	if err := s.store.SetPostStatus(ctx, id, parsed, s.clock()); err != nil {
		return fromStore(err, "post")
	}

	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		log.Printf("posts: reload %s after status change: %v", id, err)
		return nil
	}
	s.afterWrite(post, actor, fmt.Sprintf("set status %s (%s)", post.Slug, post.Status))
	return nil
}

func (s *Service) DeletePost(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return missingField("id")
	}
	if err := s.store.DeletePost(ctx, id); err != nil {
		return fromStore(err, "post")
	}
	if s.search != nil {
		s.search.DeletePost(id)
	}
	return nil
}

func (s *Service) PostHistory(ctx context.Context, key string, limit int) ([]gitrepo.CommitInfo, error) {
	if s.archive == nil {
		return nil, disabled("revision archive")
	}
	post, err := s.GetPost(ctx, key)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	history, err := s.archive.History(post.Slug, limit)
	if err != nil {
		return nil, storeError(err)
	}
	return history, nil
}

func (s *Service) PostRevision(ctx context.Context, key, hash string) (gitrepo.Snapshot, gitrepo.CommitInfo, error) {
	if s.archive == nil {
		return gitrepo.Snapshot{}, gitrepo.CommitInfo{}, disabled("revision archive")
	}
	post, err := s.GetPost(ctx, key)
	if err != nil {
		return gitrepo.Snapshot{}, gitrepo.CommitInfo{}, err
	}
	snapshot, info, err := s.archive.Revision(post.Slug, strings.TrimSpace(hash))
	if errors.Is(err, gitrepo.ErrRevisionNotFound) {
		return gitrepo.Snapshot{}, gitrepo.CommitInfo{}, notFound("revision")
	}
	if err != nil {
		return gitrepo.Snapshot{}, gitrepo.CommitInfo{}, storeError(err)
	}
	return snapshot, info, nil
}

func (s *Service) UploadCover(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	if s.uploader == nil {
		return "", disabled("cover uploads")
	}
	url, err := s.uploader.PutCover(ctx, filename, contentType, r, size)
	switch {
	case errors.Is(err, media.ErrUnsupportedType), errors.Is(err, media.ErrTooLarge):
		return "", invalidUpload(err.Error())
	case err != nil:
		return "", storeError(err)
	}
	return url, nil
}

// ListPublishedPosts returns published summaries, newest published_at first.
func (s *Service) ListPublishedPosts(ctx context.Context) ([]store.PostSummary, error) {
	posts, err := s.store.ListPublishedPosts(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	summaries := make([]store.PostSummary, 0, len(posts))
	for _, post := range posts {
		summaries = append(summaries, post.Summary())
	}
	return summaries, nil
}

func (s *Service) GetPublishedPost(ctx context.Context, slug string) (store.Post, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return store.Post{}, missingField("slug")
	}
	post, err := s.store.GetPublishedPost(ctx, slug)
	if err != nil {
		return store.Post{}, fromStore(err, "post")
	}
	return post, nil
}

func (s *Service) SearchPosts(ctx context.Context, q search.Query) (search.Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, missingField("q")
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: strings.TrimSpace(q.Text)}, nil
	}
	return s.search.Search(ctx, q), nil
}
