package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contractStore interface {
	ListPosts(ctx context.Context) ([]PostSummary, error)
	GetPost(ctx context.Context, id string) (Post, error)
	GetPostBySlug(ctx context.Context, slug string) (Post, error)
	GetPublishedPost(ctx context.Context, slug string) (Post, error)
	ListPublishedPosts(ctx context.Context) ([]Post, error)
	UpsertPost(ctx context.Context, write PostWrite) (Post, error)
	UpsertNote(ctx context.Context, write NoteWrite) (Post, error)
	SetPostStatus(ctx context.Context, id string, status PostStatus, now time.Time) error
	DeletePost(ctx context.Context, id string) error
	InsertComment(ctx context.Context, comment Comment) (Comment, error)
	GetComment(ctx context.Context, id string) (Comment, error)
	SetCommentStatus(ctx context.Context, id string, status CommentStatus, now time.Time) error
	ListCommentsByStatus(ctx context.Context, status CommentStatus) ([]Comment, error)
	ListApprovedComments(ctx context.Context, postID string) ([]Comment, error)
}

var (
	_ contractStore = (*MemoryStore)(nil)
	_ contractStore = (*PostgresStore)(nil)
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }

func runStoreContract(t *testing.T, newStore func(t *testing.T) contractStore) {
	ctx := context.Background()

	t.Run("upsert by slug keeps one row", func(t *testing.T) {
		s := newStore(t)
		first, err := s.UpsertPost(ctx, PostWrite{Title: "One", Slug: "same", Status: PostDraft, Tags: []string{"a"}, Now: base})
		require.NoError(t, err)
		second, err := s.UpsertPost(ctx, PostWrite{Title: "Two", Slug: "same", Status: PostDraft, Content: "body", Now: base.Add(time.Minute)})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Two", second.Title)
		assert.Equal(t, "body", second.Content)
		assert.Empty(t, second.Tags)
		assert.True(t, second.CreatedAt.Equal(base))
		assert.True(t, second.UpdatedAt.Equal(base.Add(time.Minute)))

		posts, err := s.ListPosts(ctx)
		require.NoError(t, err)
		assert.Len(t, posts, 1)
	})

	t.Run("updated_at never moves backwards", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertPost(ctx, PostWrite{Title: "T", Slug: "clock", Status: PostDraft, Now: base.Add(time.Hour)})
		require.NoError(t, err)
		post, err := s.UpsertPost(ctx, PostWrite{Title: "T2", Slug: "clock", Status: PostDraft, Now: base})
		require.NoError(t, err)
		assert.True(t, post.UpdatedAt.Equal(base.Add(time.Hour)))
	})

	t.Run("publish sets and preserves published_at", func(t *testing.T) {
		s := newStore(t)
		post, err := s.UpsertPost(ctx, PostWrite{Title: "T", Slug: "pub", Status: PostPublished, Now: base})
		require.NoError(t, err)
		require.NotNil(t, post.PublishedAt)
		assert.True(t, post.PublishedAt.Equal(base))

		original := base.Add(-48 * time.Hour)
		post, err = s.UpsertPost(ctx, PostWrite{Title: "T", Slug: "pub", Status: PostPublished, PublishedAt: &original, Now: base.Add(time.Hour)})
		require.NoError(t, err)
		require.NotNil(t, post.PublishedAt)
		assert.True(t, post.PublishedAt.Equal(original))

		post, err = s.UpsertPost(ctx, PostWrite{Title: "T", Slug: "pub", Status: PostDraft, Now: base.Add(2 * time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, PostDraft, post.Status)
		require.NotNil(t, post.PublishedAt, "draft keeps published_at")
		assert.True(t, post.PublishedAt.Equal(original))
	})

	t.Run("draft without date stays unpublished", func(t *testing.T) {
		s := newStore(t)
		post, err := s.UpsertPost(ctx, PostWrite{Title: "T", Slug: "draft", Status: PostDraft, Now: base})
		require.NoError(t, err)
		assert.Nil(t, post.PublishedAt)
	})

	t.Run("set status touches only lifecycle fields", func(t *testing.T) {
		s := newStore(t)
		post, err := s.UpsertPost(ctx, PostWrite{Title: "T", Slug: "status", Excerpt: strPtr("ex"), Status: PostDraft, Content: "keep", Tags: []string{"x"}, Now: base})
		require.NoError(t, err)

		require.NoError(t, s.SetPostStatus(ctx, post.ID, PostPublished, base.Add(time.Minute)))
		got, err := s.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, PostPublished, got.Status)
		assert.Equal(t, "keep", got.Content)
		assert.Equal(t, []string{"x"}, got.Tags)
		require.NotNil(t, got.Excerpt)
		assert.Equal(t, "ex", *got.Excerpt)
		require.NotNil(t, got.PublishedAt)
		assert.True(t, got.PublishedAt.Equal(base.Add(time.Minute)))

		require.NoError(t, s.SetPostStatus(ctx, post.ID, PostDraft, base.Add(2*time.Minute)))
		require.NoError(t, s.SetPostStatus(ctx, post.ID, PostPublished, base.Add(3*time.Minute)))
		got, err = s.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.True(t, got.PublishedAt.Equal(base.Add(time.Minute)), "re-publish keeps the first date")
		assert.True(t, got.UpdatedAt.Equal(base.Add(3*time.Minute)))

		assert.ErrorIs(t, s.SetPostStatus(ctx, "missing", PostDraft, base), ErrNotFound)
	})

	t.Run("delete then get", func(t *testing.T) {
		s := newStore(t)
		post, err := s.UpsertPost(ctx, PostWrite{Title: "T", Slug: "gone", Status: PostDraft, Now: base})
		require.NoError(t, err)
		require.NoError(t, s.DeletePost(ctx, post.ID))

		_, err = s.GetPost(ctx, post.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetPostBySlug(ctx, "gone")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeletePost(ctx, post.ID), ErrNotFound)
	})

	t.Run("note ingestion keeps or reverts published status", func(t *testing.T) {
		s := newStore(t)
		post, err := s.UpsertNote(ctx, NoteWrite{Title: "A", Slug: "note", Tags: []string{"x"}, Content: "v1", Now: base})
		require.NoError(t, err)
		assert.Equal(t, PostDraft, post.Status)
		require.NoError(t, s.SetPostStatus(ctx, post.ID, PostPublished, base.Add(time.Minute)))

		kept, err := s.UpsertNote(ctx, NoteWrite{Title: "B", Slug: "note", Content: "v2", KeepStatus: true, Now: base.Add(2 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, post.ID, kept.ID)
		assert.Equal(t, PostPublished, kept.Status)
		assert.Equal(t, "v2", kept.Content)
		assert.NotNil(t, kept.PublishedAt)

		reverted, err := s.UpsertNote(ctx, NoteWrite{Title: "C", Slug: "note", Content: "v3", Now: base.Add(3 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, PostDraft, reverted.Status)
		assert.NotNil(t, reverted.PublishedAt)

		posts, err := s.ListPosts(ctx)
		require.NoError(t, err)
		assert.Len(t, posts, 1)
	})

	t.Run("concurrent upserts of one slug leave one row", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.UpsertPost(ctx, PostWrite{Title: "T", Slug: "race", Status: PostDraft, Now: base.Add(time.Duration(i) * time.Second)})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		posts, err := s.ListPosts(ctx)
		require.NoError(t, err)
		assert.Len(t, posts, 1)
	})

	t.Run("comments ordering and visibility", func(t *testing.T) {
		s := newStore(t)
		post, err := s.UpsertPost(ctx, PostWrite{Title: "T", Slug: "c1", Status: PostPublished, Now: base})
		require.NoError(t, err)
		other, err := s.UpsertPost(ctx, PostWrite{Title: "T", Slug: "c2", Status: PostPublished, Now: base})
		require.NoError(t, err)

		insert := func(postID string, status CommentStatus, offset time.Duration) Comment {
			t.Helper()
			comment, err := s.InsertComment(ctx, Comment{PostID: postID, AuthorName: "Reader", Body: "hi", Status: status, CreatedAt: base.Add(offset)})
			require.NoError(t, err)
			return comment
		}
		older := insert(post.ID, CommentApproved, time.Minute)
		newer := insert(post.ID, CommentApproved, 2*time.Minute)
		insert(post.ID, CommentPending, 3*time.Minute)
		insert(other.ID, CommentApproved, 4*time.Minute)
		pendingNewest := insert(other.ID, CommentPending, 5*time.Minute)

		approved, err := s.ListApprovedComments(ctx, post.ID)
		require.NoError(t, err)
		require.Len(t, approved, 2)
		assert.Equal(t, older.ID, approved[0].ID)
		assert.Equal(t, newer.ID, approved[1].ID)

		pending, err := s.ListCommentsByStatus(ctx, CommentPending)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, pendingNewest.ID, pending[0].ID)

		require.NoError(t, s.SetCommentStatus(ctx, older.ID, CommentSpam, base.Add(time.Hour)))
		got, err := s.GetComment(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, CommentSpam, got.Status)
		require.NotNil(t, got.ModeratedAt)
		assert.ErrorIs(t, s.SetCommentStatus(ctx, "missing", CommentSpam, base), ErrNotFound)

		_, err = s.GetComment(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("published listing", func(t *testing.T) {
		s := newStore(t)
		early := base.Add(-time.Hour)
		_, err := s.UpsertPost(ctx, PostWrite{Title: "Old", Slug: "old", Status: PostPublished, PublishedAt: &early, Now: base})
		require.NoError(t, err)
		_, err = s.UpsertPost(ctx, PostWrite{Title: "New", Slug: "new", Status: PostPublished, Now: base})
		require.NoError(t, err)
		_, err = s.UpsertPost(ctx, PostWrite{Title: "Hidden", Slug: "hidden", Status: PostDraft, Now: base})
		require.NoError(t, err)

		posts, err := s.ListPublishedPosts(ctx)
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, "new", posts[0].Slug)
		assert.Equal(t, "old", posts[1].Slug)

		_, err = s.GetPublishedPost(ctx, "hidden")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
