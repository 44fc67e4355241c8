package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
)

func (s PostStatus) Valid() bool {
	return s == PostDraft || s == PostPublished
}

type CommentStatus string

const (
	CommentPending  CommentStatus = "pending"
	CommentApproved CommentStatus = "approved"
	CommentSpam     CommentStatus = "spam"
	CommentDeleted  CommentStatus = "deleted"
)

func (s CommentStatus) Valid() bool {
	switch s {
	case CommentPending, CommentApproved, CommentSpam, CommentDeleted:
		return true
	default:
		return false
	}
}

type Post struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     *string    `json:"excerpt"`
	CoverURL    *string    `json:"cover_url"`
	Tags        []string   `json:"tags"`
	Status      PostStatus `json:"status"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at"`
}

// PostSummary is a Post without its body, used for listings.
type PostSummary struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     *string    `json:"excerpt"`
	CoverURL    *string    `json:"cover_url"`
	Tags        []string   `json:"tags"`
	Status      PostStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at"`
}

func (p Post) Summary() PostSummary {
	return PostSummary{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		Excerpt:     p.Excerpt,
		CoverURL:    p.CoverURL,
		Tags:        p.Tags,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		PublishedAt: p.PublishedAt,
	}
}

// PostWrite is the complete field set of an upsert keyed by Slug.
// PublishedAt nil means "not supplied".
type PostWrite struct {
	Title       string
	Slug        string
	Excerpt     *string
	CoverURL    *string
	Tags        []string
	Status      PostStatus
	Content     string
	PublishedAt *time.Time
	Now         time.Time
}

// NoteWrite is an ingestion upsert. New rows are drafts. With KeepStatus an
// existing row keeps status, excerpt and published_at; otherwise it reverts to draft.
type NoteWrite struct {
	Title      string
	Slug       string
	Tags       []string
	CoverURL   *string
	Content    string
	KeepStatus bool
	Now        time.Time
}

// ResolvePublishedAt applies the publish rule shared by both stores:
// a supplied value wins, then the existing value, then now for published rows.
func ResolvePublishedAt(status PostStatus, supplied, existing *time.Time, now time.Time) *time.Time {
	switch {
	case supplied != nil:
		value := supplied.UTC()
		return &value
	case existing != nil:
		value := *existing
		return &value
	case status == PostPublished:
		value := now.UTC()
		return &value
	default:
		return nil
	}
}

type Comment struct {
	ID           string        `json:"id"`
	PostID       string        `json:"post_id"`
	ParentID     *string       `json:"parent_id"`
	AuthorName   string        `json:"author_name"`
	AuthorEmail  *string       `json:"author_email"`
	Body         string        `json:"body"`
	Status       CommentStatus `json:"status"`
	IsAdminReply bool          `json:"is_admin_reply"`
	CreatedAt    time.Time     `json:"created_at"`
	ModeratedAt  *time.Time    `json:"moderated_at,omitempty"`
}
