package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sabina940/atlas/internal/util"
)

// MemoryStore keeps posts and comments in process. Every method holds one
// mutex, which gives the same single-row atomicity as PostgresStore.
type MemoryStore struct {
	mu       sync.RWMutex
	posts    map[string]Post
	slugs    map[string]string
	comments map[string]Comment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:    make(map[string]Post),
		slugs:    make(map[string]string),
		comments: make(map[string]Comment),
	}
}

func (s *MemoryStore) ListPosts(_ context.Context) ([]PostSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := s.sortedPosts(func(a, b Post) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	}, nil)
	items := make([]PostSummary, 0, len(posts))
	for _, post := range posts {
		items = append(items, post.Summary())
	}
	return items, nil
}

func (s *MemoryStore) GetPost(_ context.Context, id string) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return clonePost(post), nil
}

func (s *MemoryStore) GetPostBySlug(_ context.Context, slug string) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.bySlug(slug)
	if !ok {
		return Post{}, ErrNotFound
	}
	return clonePost(post), nil
}

func (s *MemoryStore) GetPublishedPost(ctx context.Context, slug string) (Post, error) {
	post, err := s.GetPostBySlug(ctx, slug)
	if err != nil {
		return Post{}, err
	}
	if post.Status != PostPublished {
		return Post{}, ErrNotFound
	}
	return post, nil
}

func (s *MemoryStore) ListPublishedPosts(_ context.Context) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedPosts(func(a, b Post) bool {
		switch {
		case a.PublishedAt == nil || b.PublishedAt == nil:
			if (a.PublishedAt == nil) != (b.PublishedAt == nil) {
				return b.PublishedAt == nil
			}
		case !a.PublishedAt.Equal(*b.PublishedAt):
			return a.PublishedAt.After(*b.PublishedAt)
		}
		return a.ID < b.ID
	}, func(p Post) bool { return p.Status == PostPublished }), nil
}

func (s *MemoryStore) UpsertPost(_ context.Context, write PostWrite) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := write.Now.UTC()
	existing, found := s.bySlug(write.Slug)
	post := Post{
		ID:        util.NewID(),
		Slug:      write.Slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var previous *time.Time
	if found {
		post.ID = existing.ID
		post.CreatedAt = existing.CreatedAt
		post.UpdatedAt = latest(existing.UpdatedAt, now)
		previous = existing.PublishedAt
	}
	post.Title = write.Title
	post.Excerpt = copyString(write.Excerpt)
	post.CoverURL = copyString(write.CoverURL)
	post.Tags = copyTags(write.Tags)
	post.Status = write.Status
	post.Content = write.Content
	post.PublishedAt = ResolvePublishedAt(write.Status, write.PublishedAt, previous, now)

	s.posts[post.ID] = post
	s.slugs[post.Slug] = post.ID
	return clonePost(post), nil
}

func (s *MemoryStore) UpsertNote(_ context.Context, write NoteWrite) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := write.Now.UTC()
	post, found := s.bySlug(write.Slug)
	if !found {
		post = Post{
			ID:        util.NewID(),
			Slug:      write.Slug,
			Status:    PostDraft,
			CreatedAt: now,
			UpdatedAt: now,
		}
	} else {
		post.UpdatedAt = latest(post.UpdatedAt, now)
		if !write.KeepStatus {
			post.Status = PostDraft
		}
	}
	post.Title = write.Title
	post.CoverURL = copyString(write.CoverURL)
	post.Tags = copyTags(write.Tags)
	post.Content = write.Content

	s.posts[post.ID] = post
	s.slugs[post.Slug] = post.ID
	return clonePost(post), nil
}

func (s *MemoryStore) SetPostStatus(_ context.Context, id string, status PostStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return ErrNotFound
	}
	now = now.UTC()
	post.Status = status
	post.UpdatedAt = latest(post.UpdatedAt, now)
	if status == PostPublished && post.PublishedAt == nil {
		post.PublishedAt = &now
	}
	s.posts[id] = post
	return nil
}

// DeletePost removes the post and, like the foreign key cascade, its comments.
func (s *MemoryStore) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	delete(s.slugs, post.Slug)
	for commentID, comment := range s.comments {
		if comment.PostID == id {
			delete(s.comments, commentID)
		}
	}
	return nil
}

func (s *MemoryStore) InsertComment(_ context.Context, comment Comment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[comment.PostID]; !ok {
		return Comment{}, ErrNotFound
	}
	if comment.ID == "" {
		comment.ID = util.NewID()
	}
	comment.CreatedAt = comment.CreatedAt.UTC()
	comment.ParentID = copyString(comment.ParentID)
	comment.AuthorEmail = copyString(comment.AuthorEmail)
	s.comments[comment.ID] = comment
	return cloneComment(comment), nil
}

func (s *MemoryStore) GetComment(_ context.Context, id string) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comment, ok := s.comments[id]
	if !ok {
		return Comment{}, ErrNotFound
	}
	return cloneComment(comment), nil
}

func (s *MemoryStore) SetCommentStatus(_ context.Context, id string, status CommentStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.comments[id]
	if !ok {
		return ErrNotFound
	}
	moderated := now.UTC()
	comment.Status = status
	comment.ModeratedAt = &moderated
	s.comments[id] = comment
	return nil
}

func (s *MemoryStore) ListCommentsByStatus(_ context.Context, status CommentStatus) ([]Comment, error) {
	return s.filterComments(func(c Comment) bool { return c.Status == status }, true), nil
}

func (s *MemoryStore) ListApprovedComments(_ context.Context, postID string) ([]Comment, error) {
	return s.filterComments(func(c Comment) bool {
		return c.PostID == postID && c.Status == CommentApproved
	}, false), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) bySlug(slug string) (Post, bool) {
	id, ok := s.slugs[slug]
	if !ok {
		return Post{}, false
	}
	post, ok := s.posts[id]
	return post, ok
}

func (s *MemoryStore) sortedPosts(less func(a, b Post) bool, keep func(Post) bool) []Post {
	items := make([]Post, 0, len(s.posts))
	for _, post := range s.posts {
		if keep == nil || keep(post) {
			items = append(items, clonePost(post))
		}
	}
	sort.Slice(items, func(i, j int) bool { return less(items[i], items[j]) })
	return items
}

func (s *MemoryStore) filterComments(keep func(Comment) bool, newestFirst bool) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Comment, 0)
	for _, comment := range s.comments {
		if keep(comment) {
			items = append(items, cloneComment(comment))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if newestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return items
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func copyTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func copyTags(tags []string) []string {
	copied := make([]string, len(tags))
	copy(copied, tags)
	return copied
}

func clonePost(post Post) Post {
	post.Excerpt = copyString(post.Excerpt)
	post.CoverURL = copyString(post.CoverURL)
	post.Tags = copyTags(post.Tags)
	post.PublishedAt = copyTime(post.PublishedAt)
	return post
}

func cloneComment(comment Comment) Comment {
	comment.ParentID = copyString(comment.ParentID)
	comment.AuthorEmail = copyString(comment.AuthorEmail)
	comment.ModeratedAt = copyTime(comment.ModeratedAt)
	return comment
}
