package app

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/Sabina940/atlas/internal/config"
	"github.com/Sabina940/atlas/internal/email"
	"github.com/Sabina940/atlas/internal/gitrepo"
	"github.com/Sabina940/atlas/internal/search"
	"github.com/Sabina940/atlas/internal/store"
)

// DataStore is the persistence surface the service needs. Both store
// implementations satisfy it.
type DataStore interface {
	ListPosts(context.Context) ([]store.PostSummary, error)
	GetPost(context.Context, string) (store.Post, error)
	GetPostBySlug(context.Context, string) (store.Post, error)
	GetPublishedPost(context.Context, string) (store.Post, error)
	ListPublishedPosts(context.Context) ([]store.Post, error)
	UpsertPost(context.Context, store.PostWrite) (store.Post, error)
	UpsertNote(context.Context, store.NoteWrite) (store.Post, error)
	SetPostStatus(context.Context, string, store.PostStatus, time.Time) error
	DeletePost(context.Context, string) error
	InsertComment(context.Context, store.Comment) (store.Comment, error)
	GetComment(context.Context, string) (store.Comment, error)
	SetCommentStatus(context.Context, string, store.CommentStatus, time.Time) error
	ListCommentsByStatus(context.Context, store.CommentStatus) ([]store.Comment, error)
	ListApprovedComments(context.Context, string) ([]store.Comment, error)
	Ping(context.Context) error
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexPost(post store.Post)
	DeletePost(id string)
}

type revisionArchive interface {
	Record(snapshot gitrepo.Snapshot, actor, message string, when time.Time) (gitrepo.CommitInfo, bool, error)
	History(slug string, limit int) ([]gitrepo.CommitInfo, error)
	Revision(slug, hash string) (gitrepo.Snapshot, gitrepo.CommitInfo, error)
}

type coverUploader interface {
	PutCover(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
}

type moderationNotifier interface {
	NotifyPendingComment(comment email.PendingComment)
}

// Service runs every content and moderation operation. It keeps no request
// state; each call works only from its arguments and the collaborators below.
type Service struct {
	store            DataStore
	search           searchIndex
	archive          revisionArchive
	uploader         coverUploader
	notifier         moderationNotifier
	now              func() time.Time
	ownerName        string
	ingestKeepStatus bool
}

type Option func(*Service)

func WithSearch(index searchIndex) Option {
	return func(s *Service) { s.search = index }
}

func WithArchive(archive revisionArchive) Option {
	return func(s *Service) { s.archive = archive }
}

func WithUploader(uploader coverUploader) Option {
	return func(s *Service) { s.uploader = uploader }
}

func WithNotifier(notifier moderationNotifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(cfg config.Config, data DataStore, opts ...Option) *Service {
	owner := strings.TrimSpace(cfg.OwnerName)
	if owner == "" {
		owner = "Site owner"
	}
	service := &Service{
		store:            data,
		now:              time.Now,
		ownerName:        owner,
		ingestKeepStatus: cfg.IngestKeepStatus,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// afterWrite pushes a stored post to search and the revision archive.
// Neither can fail the write that already succeeded.
func (s *Service) afterWrite(post store.Post, actor, message string) {
	if s.search != nil {
		s.search.IndexPost(post)
	}
	if s.archive == nil {
		return
	}
	if _, _, err := s.archive.Record(gitrepo.SnapshotFromPost(post), actor, message, s.clock()); err != nil {
		log.Printf("archive: record %s: %v", post.Slug, err)
	}
}

// fromStore converts store sentinels into domain errors for the given row kind.
func fromStore(err error, kind string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return notFound(kind)
	}
	return storeError(err)
}
