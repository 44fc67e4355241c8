package app

import (
	"context"

	"github.com/Sabina940/atlas/internal/notes"
	"github.com/Sabina940/atlas/internal/store"
)

const ingestActor = "ingest"

// IngestNote parses raw and upserts it by slug. New posts are drafts; an
// existing published post keeps its status unless the service reverts them.
func (s *Service) IngestNote(ctx context.Context, raw string) (store.Post, error) {
	note := notes.Parse(raw)
	if note.Slug == "" {
		return store.Post{}, missingField("slug")
	}

	post, err := s.store.UpsertNote(ctx, store.NoteWrite{
		Title:      note.Title,
		Slug:       note.Slug,
		Tags:       note.Tags,
		CoverURL:   note.CoverURL,
		Content:    note.Content,
		KeepStatus: s.ingestKeepStatus,
		Now:        s.clock(),
	})
	if err != nil {
		return store.Post{}, storeError(err)
	}
	s.afterWrite(post, ingestActor, "ingest note "+post.Slug)
	return post, nil
}
