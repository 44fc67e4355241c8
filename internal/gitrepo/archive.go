// Package gitrepo keeps a git history of every post, one repository per slug.
package gitrepo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Sabina940/atlas/internal/store"
)

const snapshotFile = "post.json"

var ErrRevisionNotFound = errors.New("revision not found")

// Snapshot is the archived field set of a post at one revision.
type Snapshot struct {
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     *string    `json:"excerpt"`
	CoverURL    *string    `json:"cover_url"`
	Tags        []string   `json:"tags"`
	Status      string     `json:"status"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at"`
}

func SnapshotFromPost(post store.Post) Snapshot {
	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	return Snapshot{
		Title:       post.Title,
		Slug:        post.Slug,
		Excerpt:     post.Excerpt,
		CoverURL:    post.CoverURL,
		Tags:        tags,
		Status:      string(post.Status),
		Content:     post.Content,
		PublishedAt: post.PublishedAt,
	}
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

type Archive struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Archive {
	return &Archive{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits the snapshot unless it matches the current head.
// The returned bool reports whether a new commit was written.
func (a *Archive) Record(snapshot Snapshot, actor, message string, when time.Time) (CommitInfo, bool, error) {
	lock := a.slugLock(snapshot.Slug)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.openOrInit(snapshot.Slug)
	if err != nil {
		return CommitInfo{}, false, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, false, fmt.Errorf("write %s: %w", snapshotFile, err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return CommitInfo{}, false, fmt.Errorf("git add snapshot: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		head, err := headCommit(repo)
		if err != nil {
			return CommitInfo{}, false, err
		}
		return toCommitInfo(head), false, nil
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  actor,
			Email: fmt.Sprintf("%s@atlas.local", sanitizeEmail(actor)),
			When:  when,
		},
	})
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), true, nil
}

// History lists commits newest first. A slug that was never archived has no history.
func (a *Archive) History(slug string, limit int) ([]CommitInfo, error) {
	lock := a.slugLock(slug)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(a.repoPath(slug))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Revision loads the snapshot stored at hash (full or abbreviated).
func (a *Archive) Revision(slug, hash string) (Snapshot, CommitInfo, error) {
	lock := a.slugLock(slug)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(a.repoPath(slug))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Snapshot{}, CommitInfo{}, ErrRevisionNotFound
	}
	if err != nil {
		return Snapshot{}, CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	resolved, err := repo.ResolveRevision(plumbing.Revision(strings.TrimSpace(hash)))
	if err != nil {
		return Snapshot{}, CommitInfo{}, ErrRevisionNotFound
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return Snapshot{}, CommitInfo{}, ErrRevisionNotFound
	}
	snapshot, err := readSnapshot(commitObj)
	if err != nil {
		return Snapshot{}, CommitInfo{}, err
	}
	return snapshot, toCommitInfo(commitObj), nil
}

func (a *Archive) openOrInit(slug string) (*git.Repository, error) {
	path := a.repoPath(slug)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

// repoPath keeps directory names filesystem safe and unique per slug.
func (a *Archive) repoPath(slug string) string {
	sum := sha256.Sum256([]byte(slug))
	return filepath.Join(a.baseDir, sanitizeName(slug)+"-"+hex.EncodeToString(sum[:4]))
}

func (a *Archive) slugLock(slug string) *sync.Mutex {
	a.lockMu.Lock()
	defer a.lockMu.Unlock()
	lock, ok := a.locks[slug]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	a.locks[slug] = lock
	return lock
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(contents), &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeName(input string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(input) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ' || r == '.':
			b.WriteRune('-')
		}
		if b.Len() >= 48 {
			break
		}
	}
	if b.Len() == 0 {
		return "post"
	}
	return b.String()
}

func sanitizeEmail(input string) string {
	runes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' || r == '.' {
			runes = append(runes, '.')
		}
	}
	if len(runes) == 0 {
		return "atlas"
	}
	return string(runes)
}
