// Package revision defines the revision-control capability behind a project.
//
// A Store is bound to one repository directory and exposes exactly what the
// snapshot core needs: commit one file, read a file at a revision, resolve the
// latest revision and walk history newest-first. A Backend opens or creates
// stores.
//
// Two backends are provided:
//   - GitBackend: a real git repository on disk, driven by go-git.
//   - MemoryBackend: history kept in memory, for tests.
//
// Every failure returned by a Store or Backend is an *Error, so callers can
// tell that it originated below the project layer:
//
//	var storeErr *revision.Error
//	if errors.As(err, &storeErr) {
//	    // storeErr.Op, storeErr.Path, storeErr.Rev
//	}
package revision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Sentinel errors reachable through errors.Is on an *Error.
var (
	ErrRepositoryNotFound = errors.New("repository does not exist")
	ErrRevisionNotFound   = errors.New("revision not found")
	ErrPathNotTracked     = errors.New("path not tracked at revision")
	ErrNoRevisions        = errors.New("repository has no revisions")
)

// Revision describes one entry of a repository's history.
type Revision struct {
	ID      string
	Message string
	Author  string
	Email   string
	When    time.Time
}

// Short returns the abbreviated revision id.
func (r *Revision) Short() string {
	if len(r.ID) > 7 {
		return r.ID[:7]
	}
	return r.ID
}

// Subject returns the first line of the message.
func (r *Revision) Subject() string {
	subject, _, _ := strings.Cut(r.Message, "\n")
	return strings.TrimSpace(subject)
}

// Backend opens revision stores.
type Backend interface {
	// Open binds to an existing repository at path.
	// It fails with ErrRepositoryNotFound when there is none.
	Open(ctx context.Context, path string) (Store, error)

	// Upsert opens the repository at path, initializing one if absent.
	Upsert(ctx context.Context, path string) (Store, error)
}

// Store is a revision-controlled directory.
//
// File paths are relative to Path() and use the host separator.
type Store interface {
	// Path returns the repository root.
	Path() string

	// Commit records the current content of file as a new revision and
	// returns its id. Only file is staged.
	Commit(ctx context.Context, file, message string) (string, error)

	// FileAt returns the content of file as of revision rev.
	FileAt(ctx context.Context, file, rev string) ([]byte, error)

	// Latest returns the id of the most recent revision on the tracked
	// branch, or ErrNoRevisions.
	Latest(ctx context.Context) (string, error)

	// Log returns the history as of the call, newest first.
	Log(ctx context.Context) (Iter, error)
}

// Iter walks revisions. Next returns io.EOF once exhausted.
type Iter interface {
	Next() (*Revision, error)
	ForEach(fn func(*Revision) error) error
	Close()
}

// Collect drains it into a slice and closes it.
func Collect(it Iter) ([]*Revision, error) {
	defer it.Close()

	var out []*Revision
	err := it.ForEach(func(r *Revision) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ErrStop may be returned from a ForEach callback to end iteration early
// without an error.
var ErrStop = errors.New("stop iteration")

// Error is returned for every failure of a revision store.
type Error struct {
	Op   string // "open", "init", "commit", "read", "latest", "log"
	Path string // repository path
	File string // tracked file, when relevant
	Rev  string // revision, when relevant
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "revision store %s %s", e.Op, e.Path)
	if e.File != "" {
		fmt.Fprintf(&b, " file %s", e.File)
	}
	if e.Rev != "" {
		fmt.Fprintf(&b, " at %s", e.Rev)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// sliceIter iterates a fixed, newest-first slice.
type sliceIter struct {
	revs []*Revision
	pos  int
}

func newSliceIter(revs []*Revision) *sliceIter {
	return &sliceIter{revs: revs}
}

func (it *sliceIter) Next() (*Revision, error) {
	if it.pos >= len(it.revs) {
		return nil, io.EOF
	}
	r := it.revs[it.pos]
	it.pos++
	return r, nil
}

func (it *sliceIter) ForEach(fn func(*Revision) error) error {
	defer it.Close()
	for {
		r, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err := fn(r); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

func (it *sliceIter) Close() {
	it.pos = len(it.revs)
}
