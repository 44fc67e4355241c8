package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Sabina940/atlas/internal/util"
)

const foreignKeyViolation = "23503"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const postColumns = `id, title, slug, excerpt, cover_url, tags, status, content, created_at, updated_at, published_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var (
		item Post
		tags []byte
	)
	if err := row.Scan(&item.ID, &item.Title, &item.Slug, &item.Excerpt, &item.CoverURL, &tags, &item.Status, &item.Content, &item.CreatedAt, &item.UpdatedAt, &item.PublishedAt); err != nil {
		return Post{}, err
	}
	item.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &item.Tags); err != nil {
			return Post{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return item, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(encoded), nil
}

func (s *PostgresStore) queryPosts(ctx context.Context, op, query string, args ...any) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		item, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) getPost(ctx context.Context, op, query string, args ...any) (Post, error) {
	item, err := scanPost(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("%s: %w", op, err)
	}
	return item, nil
}

func (s *PostgresStore) ListPosts(ctx context.Context) ([]PostSummary, error) {
	posts, err := s.queryPosts(ctx, "list posts", `
		SELECT `+postColumns+`
		FROM posts
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	items := make([]PostSummary, 0, len(posts))
	for _, post := range posts {
		items = append(items, post.Summary())
	}
	return items, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (Post, error) {
	return s.getPost(ctx, "get post", `SELECT `+postColumns+` FROM posts WHERE id=$1`, id)
}

func (s *PostgresStore) GetPostBySlug(ctx context.Context, slug string) (Post, error) {
	return s.getPost(ctx, "get post by slug", `SELECT `+postColumns+` FROM posts WHERE slug=$1`, slug)
}

func (s *PostgresStore) GetPublishedPost(ctx context.Context, slug string) (Post, error) {
	return s.getPost(ctx, "get published post", `SELECT `+postColumns+` FROM posts WHERE slug=$1 AND status='published'`, slug)
}

func (s *PostgresStore) ListPublishedPosts(ctx context.Context) ([]Post, error) {
	return s.queryPosts(ctx, "list published posts", `
		SELECT `+postColumns+`
		FROM posts
		WHERE status='published'
		ORDER BY published_at DESC NULLS LAST, id
	`)
}

// UpsertPost writes the full field set in one statement keyed by slug.
// The surviving row keeps its id and created_at.
func (s *PostgresStore) UpsertPost(ctx context.Context, write PostWrite) (Post, error) {
	tags, err := encodeTags(write.Tags)
	if err != nil {
		return Post{}, err
	}
	now := write.Now.UTC()
	return s.getPost(ctx, "upsert post", `
		INSERT INTO posts (id, title, slug, excerpt, cover_url, tags, status, content, created_at, updated_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $9,
			COALESCE($10::timestamptz, CASE WHEN $7::text = 'published' THEN $9::timestamptz END))
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			excerpt = EXCLUDED.excerpt,
			cover_url = EXCLUDED.cover_url,
			tags = EXCLUDED.tags,
			status = EXCLUDED.status,
			content = EXCLUDED.content,
			updated_at = GREATEST(posts.updated_at, EXCLUDED.updated_at),
			published_at = COALESCE($10::timestamptz, posts.published_at,
				CASE WHEN EXCLUDED.status = 'published' THEN EXCLUDED.updated_at END)
		RETURNING `+postColumns,
		util.NewID(), write.Title, write.Slug, write.Excerpt, write.CoverURL, tags, string(write.Status), write.Content, now, write.PublishedAt)
}

func (s *PostgresStore) UpsertNote(ctx context.Context, write NoteWrite) (Post, error) {
	tags, err := encodeTags(write.Tags)
	if err != nil {
		return Post{}, err
	}
	return s.getPost(ctx, "ingest note", `
		INSERT INTO posts (id, title, slug, cover_url, tags, status, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, 'draft', $6, $7, $7)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			cover_url = EXCLUDED.cover_url,
			tags = EXCLUDED.tags,
			content = EXCLUDED.content,
			status = CASE WHEN $8::boolean THEN posts.status ELSE 'draft' END,
			updated_at = GREATEST(posts.updated_at, EXCLUDED.updated_at)
		RETURNING `+postColumns,
		util.NewID(), write.Title, write.Slug, write.CoverURL, tags, write.Content, write.Now.UTC(), write.KeepStatus)
}

// SetPostStatus touches only status, updated_at and published_at.
func (s *PostgresStore) SetPostStatus(ctx context.Context, id string, status PostStatus, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET status = $2,
			updated_at = GREATEST(updated_at, $3),
			published_at = CASE WHEN $2::text = 'published' THEN COALESCE(published_at, $3) ELSE published_at END
		WHERE id = $1
	`, id, string(status), now.UTC())
	if err != nil {
		return fmt.Errorf("set post status: %w", err)
	}
	return requireAffected(result, "set post status")
}

func (s *PostgresStore) DeletePost(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return requireAffected(result, "delete post")
}

const commentColumns = `id, post_id, parent_id, author_name, author_email, body, status, is_admin_reply, created_at, moderated_at`

func scanComment(row rowScanner) (Comment, error) {
	var item Comment
	err := row.Scan(&item.ID, &item.PostID, &item.ParentID, &item.AuthorName, &item.AuthorEmail, &item.Body, &item.Status, &item.IsAdminReply, &item.CreatedAt, &item.ModeratedAt)
	return item, err
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) (Comment, error) {
	if comment.ID == "" {
		comment.ID = util.NewID()
	}
	item, err := scanComment(s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, post_id, parent_id, author_name, author_email, body, status, is_admin_reply, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+commentColumns,
		comment.ID, comment.PostID, comment.ParentID, comment.AuthorName, comment.AuthorEmail, comment.Body, string(comment.Status), comment.IsAdminReply, comment.CreatedAt.UTC()))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, id string) (Comment, error) {
	item, err := scanComment(s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("get comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) SetCommentStatus(ctx context.Context, id string, status CommentStatus, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE comments SET status=$2, moderated_at=$3 WHERE id=$1`, id, string(status), now.UTC())
	if err != nil {
		return fmt.Errorf("set comment status: %w", err)
	}
	return requireAffected(result, "set comment status")
}

func (s *PostgresStore) queryComments(ctx context.Context, op, query string, args ...any) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListCommentsByStatus(ctx context.Context, status CommentStatus) ([]Comment, error) {
	return s.queryComments(ctx, "list comments by status", `
		SELECT `+commentColumns+`
		FROM comments
		WHERE status=$1
		ORDER BY created_at DESC, id
	`, string(status))
}

func (s *PostgresStore) ListApprovedComments(ctx context.Context, postID string) ([]Comment, error) {
	return s.queryComments(ctx, "list approved comments", `
		SELECT `+commentColumns+`
		FROM comments
		WHERE post_id=$1 AND status='approved'
		ORDER BY created_at ASC, id
	`, postID)
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
