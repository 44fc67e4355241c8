package search

import (
	"context"
	"log"
	"sync"

	"github.com/Sabina940/atlas/internal/store"
)

type postIndex interface {
	Searcher
	IndexPost(record PostRecord) error
	IndexPosts(records []PostRecord) error
	DeletePost(id string) error
}

// Service is the facade that tries Meilisearch first and falls back to the
// configured database searcher.
type Service struct {
	primary  postIndex
	fallback Searcher
	pending  sync.WaitGroup
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	if meili == nil {
		return newService(nil, fallback)
	}
	return newService(meili, fallback)
}

func newService(primary postIndex, fallback Searcher) *Service {
	return &Service{primary: primary, fallback: fallback}
}

func (s *Service) primaryReady() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q = q.normalized()
	if s.primaryReady() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back: %v", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexPost pushes the post to Meilisearch without blocking the caller.
func (s *Service) IndexPost(post store.Post) {
	if !s.primaryReady() {
		return
	}
	record := RecordFromPost(post)
	s.async(func() {
		if err := s.primary.IndexPost(record); err != nil {
			log.Printf("search: index post %s: %v", record.ID, err)
		}
	})
}

// DeletePost removes a post from the index without blocking the caller.
func (s *Service) DeletePost(id string) {
	if !s.primaryReady() {
		return
	}
	s.async(func() {
		if err := s.primary.DeletePost(id); err != nil {
			log.Printf("search: delete post %s: %v", id, err)
		}
	})
}

// ReindexAll pushes every published post to Meilisearch. Called at startup.
func (s *Service) ReindexAll(ctx context.Context, source publishedSource) {
	if !s.primaryReady() || source == nil {
		return
	}
	posts, err := source.ListPublishedPosts(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	records := make([]PostRecord, 0, len(posts))
	for _, post := range posts {
		records = append(records, RecordFromPost(post))
	}
	if err := s.primary.IndexPosts(records); err != nil {
		log.Printf("search: reindex posts: %v", err)
	}
}

// Wait blocks until in-flight index updates finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) async(fn func()) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		fn()
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
