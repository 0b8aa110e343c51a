package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/registry"
	"github.com/fyrsmithlabs/jab/internal/revision"
)

// DumpFile is the tracked file inside every project repository.
const DumpFile = "dump.sql"

// Common errors.
var (
	ErrEmptyProjectDir = errors.New("project directory cannot be empty")
	ErrEmptyDBURI      = errors.New("database URI cannot be empty")
)

// Project binds one database to one revision-controlled dump file.
type Project struct {
	name     string
	dir      string
	repoPath string
	dumpPath string
	dbURI    string
	store    revision.Store
}

// Create opens the project repository at dir/name, initializing it first if
// needed. Calling Create again with the same arguments binds to the same
// repository.
func Create(ctx context.Context, backend revision.Backend, dir, name, dbURI string) (*Project, error) {
	if err := validate(dir, name, dbURI); err != nil {
		return nil, err
	}

	repoPath := filepath.Join(dir, name)
	ctx = logging.WithProject(ctx, name)
	logging.FromContext(ctx).Debug(ctx, "creating project repository",
		zap.String("repo_path", repoPath))

	if _, err := backend.Upsert(ctx, repoPath); err != nil {
		return nil, fmt.Errorf("create project %s: %w", name, err)
	}

	return Open(ctx, backend, dir, name, dbURI)
}

// Open binds to the existing project repository at dir/name. It fails with
// revision.ErrRepositoryNotFound when the repository has not been created.
//
// dbURI is stored as given; keeping it consistent with the registry is the
// caller's job.
func Open(ctx context.Context, backend revision.Backend, dir, name, dbURI string) (*Project, error) {
	if err := validate(dir, name, dbURI); err != nil {
		return nil, err
	}

	repoPath := filepath.Join(dir, name)
	store, err := backend.Open(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("open project %s: %w", name, err)
	}

	return &Project{
		name:     name,
		dir:      dir,
		repoPath: repoPath,
		dumpPath: DumpFile,
		dbURI:    dbURI,
		store:    store,
	}, nil
}

func validate(dir, name, dbURI string) error {
	if err := registry.ValidateName(name); err != nil {
		return fmt.Errorf("project %q: %w", name, err)
	}
	if dir == "" {
		return ErrEmptyProjectDir
	}
	if dbURI == "" {
		return fmt.Errorf("project %s: %w", name, ErrEmptyDBURI)
	}
	return nil
}

// Name returns the project name.
func (p *Project) Name() string { return p.name }

// Dir returns the root directory holding all project repositories.
func (p *Project) Dir() string { return p.dir }

// RepoPath returns the repository directory, Dir()/Name().
func (p *Project) RepoPath() string { return p.repoPath }

// DumpPath returns the tracked file path relative to RepoPath().
func (p *Project) DumpPath() string { return p.dumpPath }

// AbsoluteDumpPath returns the tracked file path on disk.
func (p *Project) AbsoluteDumpPath() string {
	return filepath.Join(p.repoPath, p.dumpPath)
}

// DBURI returns the database URI the project snapshots.
func (p *Project) DBURI() string { return p.dbURI }

// CommitDump writes dump to the tracked file and records it as a new
// revision with message. It returns the new revision id.
//
// The file is synced to disk before the revision is created. A failed write
// creates no revision. A failed commit leaves the new content in the working
// file; calling CommitDump again is safe because the write fully overwrites.
func (p *Project) CommitDump(ctx context.Context, message string, dump []byte) (string, error) {
	ctx = logging.WithProject(ctx, p.name)
	logger := logging.FromContext(ctx)

	logger.Debug(ctx, "writing dump", zap.Int("bytes", len(dump)))
	if err := p.SyncDump(ctx, dump); err != nil {
		return "", err
	}

	logger.Debug(ctx, "committing dump", zap.String("message", message))
	id, err := p.store.Commit(ctx, p.dumpPath, message)
	if err != nil {
		return "", fmt.Errorf("commit dump for project %s: %w", p.name, err)
	}

	logger.Info(ctx, "dump committed", zap.String("revision", id), zap.Int("bytes", len(dump)))
	return id, nil
}

// SyncDump replaces the tracked file's content with dump without recording
// a revision. The new content is fsynced before it replaces the old file.
func (p *Project) SyncDump(ctx context.Context, dump []byte) error {
	path := p.AbsoluteDumpPath()

	tmp, err := os.CreateTemp(p.repoPath, "."+p.dumpPath+".*.tmp")
	if err != nil {
		return fmt.Errorf("write dump %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write dump %s: %w", path, err)
	}

	if _, err := tmp.Write(dump); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write dump %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write dump %s: %w", path, err)
	}
	return nil
}

// DumpAt returns the tracked file's content at revision rev.
func (p *Project) DumpAt(ctx context.Context, rev string) ([]byte, error) {
	dump, err := p.store.FileAt(ctx, p.dumpPath, rev)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", p.name, err)
	}
	return dump, nil
}

// LatestDump returns the tracked file's content at the latest revision.
// It fails with revision.ErrNoRevisions when nothing was committed yet.
func (p *Project) LatestDump(ctx context.Context) ([]byte, error) {
	id, err := p.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return p.DumpAt(ctx, id)
}

// Latest returns the latest revision id.
func (p *Project) Latest(ctx context.Context) (string, error) {
	id, err := p.store.Latest(ctx)
	if err != nil {
		return "", fmt.Errorf("project %s: %w", p.name, err)
	}
	return id, nil
}

// Revisions walks the project history newest first, as of the call.
// Call again to restart.
func (p *Project) Revisions(ctx context.Context) (revision.Iter, error) {
	it, err := p.store.Log(ctx)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", p.name, err)
	}
	return it, nil
}
