package search

import (
	"context"
	"strings"

	"github.com/Sabina940/atlas/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

func (q Query) normalized() Query {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 || q.Limit > 50 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher executes a full-text search over published posts.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// PostRecord is the data we index for a post.
type PostRecord struct {
	ID      string   `json:"id"`
	Slug    string   `json:"slug"`
	Title   string   `json:"title"`
	Excerpt string   `json:"excerpt"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Status  string   `json:"status"`
}

func RecordFromPost(post store.Post) PostRecord {
	record := PostRecord{
		ID:      post.ID,
		Slug:    post.Slug,
		Title:   post.Title,
		Content: post.Content,
		Tags:    post.Tags,
		Status:  string(post.Status),
	}
	if post.Excerpt != nil {
		record.Excerpt = *post.Excerpt
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}
	return record
}

func snippetOf(excerpt, content string) string {
	if text := strings.TrimSpace(excerpt); text != "" {
		return text
	}
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= 160 {
		return content
	}
	return string(runes[:160]) + "…"
}
