package revision

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MemoryBackend keeps history in memory. Tracked files are still read from
// disk at commit time, so it pairs with a real working directory.
type MemoryBackend struct {
	mu     sync.Mutex
	stores map[string]*memoryStore
	now    func() time.Time
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		stores: make(map[string]*memoryStore),
		now:    time.Now,
	}
}

// Open returns the store created earlier for path.
func (b *MemoryBackend) Open(ctx context.Context, path string) (Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.stores[filepath.Clean(path)]
	if !ok {
		return nil, &Error{Op: "open", Path: path, Err: ErrRepositoryNotFound}
	}
	return s, nil
}

// Upsert returns the store for path, creating it and its directory if needed.
func (b *MemoryBackend) Upsert(ctx context.Context, path string) (Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := filepath.Clean(path)
	if s, ok := b.stores[key]; ok {
		return s, nil
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, &Error{Op: "init", Path: path, Err: err}
	}
	s := &memoryStore{path: path, now: b.now}
	b.stores[key] = s
	return s, nil
}

type memoryCommit struct {
	rev   Revision
	files map[string][]byte
}

type memoryStore struct {
	mu      sync.RWMutex
	path    string
	now     func() time.Time
	commits []memoryCommit // oldest first
}

func (s *memoryStore) Path() string {
	return s.path
}

func (s *memoryStore) Commit(ctx context.Context, file, message string) (string, error) {
	content, err := os.ReadFile(filepath.Join(s.path, file))
	if err != nil {
		return "", s.err("commit", file, "", fmt.Errorf("stage: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files := make(map[string][]byte)
	parent := ""
	if n := len(s.commits); n > 0 {
		for k, v := range s.commits[n-1].files {
			files[k] = v
		}
		parent = s.commits[n-1].rev.ID
	}
	key := filepath.ToSlash(file)
	files[key] = content

	when := s.now()
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00%s\x00", parent, len(s.commits), key, message)
	h.Write(content)
	id := hex.EncodeToString(h.Sum(nil))

	s.commits = append(s.commits, memoryCommit{
		rev: Revision{
			ID:      id,
			Message: message,
			Author:  DefaultSignature.Name,
			Email:   DefaultSignature.Email,
			When:    when,
		},
		files: files,
	})
	return id, nil
}

func (s *memoryStore) FileAt(ctx context.Context, file, rev string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.resolve(rev)
	if !ok {
		return nil, s.err("read", file, rev, ErrRevisionNotFound)
	}
	content, ok := c.files[filepath.ToSlash(file)]
	if !ok {
		return nil, s.err("read", file, rev, ErrPathNotTracked)
	}

	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

// resolve accepts HEAD, a full id, or an unambiguous prefix of at least
// four characters.
func (s *memoryStore) resolve(rev string) (*memoryCommit, bool) {
	if rev == "HEAD" && len(s.commits) > 0 {
		return &s.commits[len(s.commits)-1], true
	}
	if len(rev) < 4 {
		return nil, false
	}

	var found *memoryCommit
	for i := range s.commits {
		if strings.HasPrefix(s.commits[i].rev.ID, rev) {
			if found != nil {
				return nil, false
			}
			found = &s.commits[i]
		}
	}
	return found, found != nil
}

func (s *memoryStore) Latest(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.commits) == 0 {
		return "", s.err("latest", "", "", ErrNoRevisions)
	}
	return s.commits[len(s.commits)-1].rev.ID, nil
}

func (s *memoryStore) Log(ctx context.Context) (Iter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := make([]*Revision, 0, len(s.commits))
	for i := len(s.commits) - 1; i >= 0; i-- {
		rev := s.commits[i].rev
		revs = append(revs, &rev)
	}
	return newSliceIter(revs), nil
}

func (s *memoryStore) err(op, file, rev string, err error) error {
	return &Error{Op: op, Path: s.path, File: file, Rev: rev, Err: err}
}
