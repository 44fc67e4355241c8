package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sabina940/atlas/internal/store"
)

type fakeIndex struct {
	mu       sync.Mutex
	healthy  bool
	searchFn func(q Query) ([]Result, int, error)
	indexed  []PostRecord
	deleted  []string
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(_ context.Context, q Query) ([]Result, int, error) {
	return f.searchFn(q)
}

func (f *fakeIndex) IndexPost(record PostRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, record)
	return nil
}

func (f *fakeIndex) IndexPosts(records []PostRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
	return nil
}

func (f *fakeIndex) DeletePost(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeSearcher struct {
	calls int
	err   error
}

func (f *fakeSearcher) Healthy() bool { return true }

func (f *fakeSearcher) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	return []Result{{ID: "fallback", Title: q.Text}}, 1, nil
}

func TestServicePrefersHealthyPrimary(t *testing.T) {
	primary := &fakeIndex{healthy: true, searchFn: func(q Query) ([]Result, int, error) {
		return []Result{{ID: "meili"}}, 1, nil
	}}
	fallback := &fakeSearcher{}
	svc := newService(primary, fallback)

	resp := svc.Search(context.Background(), Query{Text: " go "})
	assert.Equal(t, "go", resp.Query)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "meili", resp.Results[0].ID)
	assert.Zero(t, fallback.calls)
}

func TestServiceFallsBack(t *testing.T) {
	primary := &fakeIndex{healthy: true, searchFn: func(Query) ([]Result, int, error) {
		return nil, 0, errors.New("boom")
	}}
	fallback := &fakeSearcher{}
	resp := newService(primary, fallback).Search(context.Background(), Query{Text: "go"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "fallback", resp.Results[0].ID)

	primary.healthy = false
	resp = newService(primary, fallback).Search(context.Background(), Query{Text: "go"})
	assert.Equal(t, 2, fallback.calls)
	assert.Equal(t, 1, resp.Total)
}

func TestServiceFallbackErrorReturnsEmpty(t *testing.T) {
	resp := NewService(nil, &fakeSearcher{err: errors.New("db down")}).Search(context.Background(), Query{Text: "go"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestServiceIndexesAsynchronously(t *testing.T) {
	primary := &fakeIndex{healthy: true}
	svc := newService(primary, nil)

	svc.IndexPost(store.Post{ID: "p1", Slug: "s", Title: "T", Status: store.PostPublished})
	svc.DeletePost("p2")
	svc.Wait()

	require.Len(t, primary.indexed, 1)
	assert.Equal(t, "published", primary.indexed[0].Status)
	assert.Equal(t, []string{}, primary.indexed[0].Tags)
	assert.Equal(t, []string{"p2"}, primary.deleted)
}

func TestServiceSkipsIndexingWhenPrimaryDown(t *testing.T) {
	primary := &fakeIndex{}
	svc := newService(primary, nil)
	svc.IndexPost(store.Post{ID: "p1"})
	svc.Wait()
	assert.Empty(t, primary.indexed)
}

func TestServiceReindexAll(t *testing.T) {
	ctx := context.Background()
	memory := store.NewMemoryStore()
	_, err := memory.UpsertPost(ctx, store.PostWrite{Title: "Live", Slug: "live", Status: store.PostPublished, Now: time.Now()})
	require.NoError(t, err)
	_, err = memory.UpsertPost(ctx, store.PostWrite{Title: "Draft", Slug: "draft", Status: store.PostDraft, Now: time.Now()})
	require.NoError(t, err)

	primary := &fakeIndex{healthy: true}
	newService(primary, nil).ReindexAll(ctx, memory)
	require.Len(t, primary.indexed, 1)
	assert.Equal(t, "live", primary.indexed[0].Slug)
}

func TestSubstringSearchesPublishedOnly(t *testing.T) {
	ctx := context.Background()
	memory := store.NewMemoryStore()
	excerpt := "A short tour"
	_, err := memory.UpsertPost(ctx, store.PostWrite{Title: "Golang Notes", Slug: "go", Excerpt: &excerpt, Status: store.PostPublished, Now: time.Now()})
	require.NoError(t, err)
	_, err = memory.UpsertPost(ctx, store.PostWrite{Title: "Tagged", Slug: "tagged", Tags: []string{"golang"}, Status: store.PostPublished, Content: "plain", Now: time.Now()})
	require.NoError(t, err)
	_, err = memory.UpsertPost(ctx, store.PostWrite{Title: "golang draft", Slug: "hidden", Status: store.PostDraft, Now: time.Now()})
	require.NoError(t, err)

	searcher := NewSubstring(memory)
	results, total, err := searcher.Search(ctx, Query{Text: "GOLANG"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, r := range results {
		assert.NotEqual(t, "hidden", r.Slug)
	}

	results, total, err = searcher.Search(ctx, Query{Text: "golang", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, results, 1)

	results, _, err = searcher.Search(ctx, Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHitToResult(t *testing.T) {
	raw := func(v any) json.RawMessage {
		encoded, err := json.Marshal(v)
		require.NoError(t, err)
		return encoded
	}
	hit := meili.Hit{
		"id":         raw("p1"),
		"slug":       raw("hello"),
		"title":      raw("Hello"),
		"content":    raw("some long body"),
		"_formatted": raw(map[string]any{"title": "<mark>Hello</mark>", "content": "…long body…", "tags": []string{"x"}}),
	}
	result := hitToResult(hit)
	assert.Equal(t, Result{ID: "p1", Slug: "hello", Title: "<mark>Hello</mark>", Snippet: "…long body…"}, result)
}

func TestSnippetOf(t *testing.T) {
	assert.Equal(t, "excerpt", snippetOf(" excerpt ", "content"))
	assert.Equal(t, "a b", snippetOf("", "a\n\n b"))
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, []rune(snippetOf("", string(long))), 161)
}
