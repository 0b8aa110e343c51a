package revision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Signature identifies the author recorded on commits.
type Signature struct {
	Name  string
	Email string
}

// DefaultSignature is used when no author is configured.
var DefaultSignature = Signature{Name: "jab", Email: "jab@localhost"}

// GitBackend stores history in git repositories on the local filesystem.
type GitBackend struct {
	author Signature
	now    func() time.Time
}

// NewGitBackend returns a backend that commits as author.
// Empty fields fall back to DefaultSignature.
func NewGitBackend(author Signature) *GitBackend {
	if author.Name == "" {
		author.Name = DefaultSignature.Name
	}
	if author.Email == "" {
		author.Email = DefaultSignature.Email
	}
	return &GitBackend{author: author, now: time.Now}
}

// Open binds to an existing git repository at path.
func (b *GitBackend) Open(ctx context.Context, path string) (Store, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, &Error{Op: "open", Path: path, Err: ErrRepositoryNotFound}
		}
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	return b.store(path, repo), nil
}

// Upsert opens the git repository at path, running git init first if there
// is none.
func (b *GitBackend) Upsert(ctx context.Context, path string) (Store, error) {
	repo, err := git.PlainOpen(path)
	if err == nil {
		return b.store(path, repo), nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, &Error{Op: "init", Path: path, Err: err}
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, &Error{Op: "init", Path: path, Err: err}
	}
	return b.store(path, repo), nil
}

func (b *GitBackend) store(path string, repo *git.Repository) *gitStore {
	return &gitStore{path: path, repo: repo, author: b.author, now: b.now}
}

// gitStore implements Store over a go-git repository.
type gitStore struct {
	path   string
	repo   *git.Repository
	author Signature
	now    func() time.Time
}

func (s *gitStore) Path() string {
	return s.path
}

func (s *gitStore) Commit(ctx context.Context, file, message string) (string, error) {
	wt, err := s.repo.Worktree()
	if err != nil {
		return "", s.err("commit", file, "", err)
	}

	if _, err := wt.Add(filepath.ToSlash(file)); err != nil {
		return "", s.err("commit", file, "", fmt.Errorf("stage: %w", err))
	}

	// Identical dumps still mark a point in time.
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.author.Name,
			Email: s.author.Email,
			When:  s.now(),
		},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", s.err("commit", file, "", err)
	}
	return hash.String(), nil
}

func (s *gitStore) FileAt(ctx context.Context, file, rev string) ([]byte, error) {
	if rev == "" {
		return nil, s.err("read", file, rev, ErrRevisionNotFound)
	}

	hash, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, s.err("read", file, rev, fmt.Errorf("%w: %v", ErrRevisionNotFound, err))
	}

	commit, err := s.repo.CommitObject(*hash)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) || errors.Is(err, object.ErrUnsupportedObject) {
			return nil, s.err("read", file, rev, fmt.Errorf("%w: %v", ErrRevisionNotFound, err))
		}
		return nil, s.err("read", file, rev, err)
	}

	f, err := commit.File(filepath.ToSlash(file))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, s.err("read", file, rev, ErrPathNotTracked)
		}
		return nil, s.err("read", file, rev, err)
	}

	r, err := f.Reader()
	if err != nil {
		return nil, s.err("read", file, rev, err)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, s.err("read", file, rev, err)
	}
	return content, nil
}

func (s *gitStore) Latest(ctx context.Context) (string, error) {
	head, err := s.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", s.err("latest", "", "", ErrNoRevisions)
		}
		return "", s.err("latest", "", "", err)
	}
	return head.Hash().String(), nil
}

func (s *gitStore) Log(ctx context.Context) (Iter, error) {
	head, err := s.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return newSliceIter(nil), nil
		}
		return nil, s.err("log", "", "", err)
	}

	// Parent walk, not committer time: snapshots taken within the same
	// second must still come back newest first.
	commits, err := s.repo.Log(&git.LogOptions{
		From:  head.Hash(),
		Order: git.LogOrderDFS,
	})
	if err != nil {
		return nil, s.err("log", "", head.Hash().String(), err)
	}
	return &gitIter{store: s, commits: commits}, nil
}

func (s *gitStore) err(op, file, rev string, err error) error {
	return &Error{Op: op, Path: s.path, File: file, Rev: rev, Err: err}
}

// gitIter adapts object.CommitIter.
type gitIter struct {
	store   *gitStore
	commits object.CommitIter
}

func (it *gitIter) Next() (*Revision, error) {
	c, err := it.commits.Next()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, it.store.err("log", "", "", err)
	}
	return toRevision(c), nil
}

func (it *gitIter) ForEach(fn func(*Revision) error) error {
	err := it.commits.ForEach(func(c *object.Commit) error {
		if err := fn(toRevision(c)); err != nil {
			if errors.Is(err, ErrStop) {
				return storer.ErrStop
			}
			return err
		}
		return nil
	})
	if err != nil {
		return it.store.err("log", "", "", err)
	}
	return nil
}

func (it *gitIter) Close() {
	it.commits.Close()
}

func toRevision(c *object.Commit) *Revision {
	return &Revision{
		ID:      c.Hash.String(),
		Message: c.Message,
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		When:    c.Author.When,
	}
}
