package search

import (
	"context"
	"strings"

	"github.com/Sabina940/atlas/internal/store"
)

type publishedSource interface {
	ListPublishedPosts(ctx context.Context) ([]store.Post, error)
}

// Substring is the in-process searcher used with the memory store.
type Substring struct {
	source publishedSource
}

func NewSubstring(source publishedSource) *Substring {
	return &Substring{source: source}
}

func (s *Substring) Healthy() bool {
	return true
}

func (s *Substring) Search(ctx context.Context, q Query) ([]Result, int, error) {
	q = q.normalized()
	if q.Text == "" {
		return nil, 0, nil
	}
	posts, err := s.source.ListPublishedPosts(ctx)
	if err != nil {
		return nil, 0, err
	}

	needle := strings.ToLower(q.Text)
	matches := make([]Result, 0)
	for _, post := range posts {
		record := RecordFromPost(post)
		haystack := strings.ToLower(strings.Join([]string{
			record.Title, record.Excerpt, record.Content, strings.Join(record.Tags, " "),
		}, "\n"))
		if !strings.Contains(haystack, needle) {
			continue
		}
		matches = append(matches, Result{
			ID:      record.ID,
			Slug:    record.Slug,
			Title:   record.Title,
			Snippet: snippetOf(record.Excerpt, record.Content),
		})
	}

	total := len(matches)
	if q.Offset >= total {
		return []Result{}, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return matches[q.Offset:end], total, nil
}
