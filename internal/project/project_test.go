package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/registry"
	"github.com/fyrsmithlabs/jab/internal/revision"
)

type backendCase struct {
	name    string
	backend func() revision.Backend
}

func backends() []backendCase {
	return []backendCase{
		{name: "git", backend: func() revision.Backend {
			return revision.NewGitBackend(revision.Signature{Name: "tester", Email: "tester@example.com"})
		}},
		{name: "memory", backend: func() revision.Backend { return revision.NewMemoryBackend() }},
	}
}

func collect(t *testing.T, p *Project) []*revision.Revision {
	t.Helper()
	it, err := p.Revisions(context.Background())
	require.NoError(t, err)
	revs, err := revision.Collect(it)
	require.NoError(t, err)
	return revs
}

func TestProject_SnapshotHistory(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			p, err := Create(ctx, bc.backend(), dir, "shop", "postgres://localhost/shop")
			require.NoError(t, err)

			first, err := p.CommitDump(ctx, "first", []byte("v1"))
			require.NoError(t, err)
			second, err := p.CommitDump(ctx, "second", []byte("v2"))
			require.NoError(t, err)

			latest, err := p.LatestDump(ctx)
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), latest)

			revs := collect(t, p)
			require.Len(t, revs, 2)
			assert.Equal(t, second, revs[0].ID)
			assert.Equal(t, first, revs[1].ID)
			assert.Equal(t, "second", revs[0].Subject())

			old, err := p.DumpAt(ctx, revs[1].ID)
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), old)

			onDisk, err := os.ReadFile(p.AbsoluteDumpPath())
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), onDisk)
		})
	}
}

func TestProject_Accessors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p, err := Create(ctx, revision.NewMemoryBackend(), dir, "shop", "sqlite:///var/lib/shop.db")
	require.NoError(t, err)

	assert.Equal(t, "shop", p.Name())
	assert.Equal(t, dir, p.Dir())
	assert.Equal(t, filepath.Join(dir, "shop"), p.RepoPath())
	assert.Equal(t, DumpFile, p.DumpPath())
	assert.Equal(t, filepath.Join(dir, "shop", "dump.sql"), p.AbsoluteDumpPath())
	assert.Equal(t, "sqlite:///var/lib/shop.db", p.DBURI())
	assert.DirExists(t, p.RepoPath())
}

func TestCreate_Idempotent(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			backend := bc.backend()

			p1, err := Create(ctx, backend, dir, "shop", "postgres://localhost/shop")
			require.NoError(t, err)
			id, err := p1.CommitDump(ctx, "init", []byte("v1"))
			require.NoError(t, err)

			p2, err := Create(ctx, backend, dir, "shop", "postgres://localhost/shop")
			require.NoError(t, err)
			latest, err := p2.Latest(ctx)
			require.NoError(t, err)
			assert.Equal(t, id, latest)
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend := revision.NewMemoryBackend()

	tests := []struct {
		name    string
		dir     string
		project string
		dbURI   string
		wantErr error
	}{
		{"empty name", dir, "", "postgres://localhost/shop", registry.ErrInvalidName},
		{"traversal", dir, "..", "postgres://localhost/shop", registry.ErrPathTraversal},
		{"slash", dir, "a/b", "postgres://localhost/shop", registry.ErrInvalidName},
		{"empty dir", "", "shop", "postgres://localhost/shop", ErrEmptyProjectDir},
		{"empty uri", dir, "shop", "", ErrEmptyDBURI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(ctx, backend, tt.dir, tt.project, tt.dbURI)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpen_MissingRepository(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			_, err := Open(context.Background(), bc.backend(), t.TempDir(), "shop", "postgres://localhost/shop")
			require.Error(t, err)
			assert.ErrorIs(t, err, revision.ErrRepositoryNotFound)
			assert.Contains(t, err.Error(), "open project shop")
		})
	}
}

func TestProject_EmptyHistory(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			p, err := Create(ctx, bc.backend(), t.TempDir(), "shop", "postgres://localhost/shop")
			require.NoError(t, err)

			_, err = p.LatestDump(ctx)
			assert.ErrorIs(t, err, revision.ErrNoRevisions)

			assert.Empty(t, collect(t, p))
		})
	}
}

func TestProject_DumpAtErrors(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			p, err := Create(ctx, bc.backend(), t.TempDir(), "shop", "postgres://localhost/shop")
			require.NoError(t, err)
			_, err = p.CommitDump(ctx, "init", []byte("v1"))
			require.NoError(t, err)

			_, err = p.DumpAt(ctx, "0123456789abcdef0123456789abcdef01234567")
			assert.ErrorIs(t, err, revision.ErrRevisionNotFound)

			var storeErr *revision.Error
			assert.True(t, errors.As(err, &storeErr))
		})
	}
}

func TestProject_IdenticalDumpsStillRecorded(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			p, err := Create(ctx, bc.backend(), t.TempDir(), "shop", "postgres://localhost/shop")
			require.NoError(t, err)

			_, err = p.CommitDump(ctx, "monday", []byte("same"))
			require.NoError(t, err)
			_, err = p.CommitDump(ctx, "tuesday", []byte("same"))
			require.NoError(t, err)

			assert.Len(t, collect(t, p), 2)
		})
	}
}

func TestProject_SyncDumpCreatesNoRevision(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			p, err := Create(ctx, bc.backend(), t.TempDir(), "shop", "postgres://localhost/shop")
			require.NoError(t, err)

			require.NoError(t, p.SyncDump(ctx, []byte("draft")))

			content, err := os.ReadFile(p.AbsoluteDumpPath())
			require.NoError(t, err)
			assert.Equal(t, []byte("draft"), content)

			_, err = p.Latest(ctx)
			assert.ErrorIs(t, err, revision.ErrNoRevisions)

			leftovers, err := filepath.Glob(filepath.Join(p.RepoPath(), ".dump.sql.*.tmp"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestProject_WriteFailureCreatesNoRevision(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			p, err := Create(ctx, bc.backend(), t.TempDir(), "shop", "postgres://localhost/shop")
			require.NoError(t, err)

			// A non-empty directory where the dump belongs cannot be replaced
			require.NoError(t, os.MkdirAll(filepath.Join(p.AbsoluteDumpPath(), "blocker"), 0755))

			_, err = p.CommitDump(ctx, "doomed", []byte("v1"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "write dump")

			_, err = p.Latest(ctx)
			assert.ErrorIs(t, err, revision.ErrNoRevisions)

			leftovers, err := filepath.Glob(filepath.Join(p.RepoPath(), ".dump.sql.*.tmp"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestProject_CommitDumpLogs(t *testing.T) {
	tl := logging.NewTestLogger()
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	p, err := Create(ctx, revision.NewMemoryBackend(), t.TempDir(), "shop", "postgres://localhost/shop")
	require.NoError(t, err)

	id, err := p.CommitDump(ctx, "nightly", []byte("v1"))
	require.NoError(t, err)

	tl.AssertLogged(t, zapcore.InfoLevel, "dump committed")
	tl.AssertField(t, "dump committed", "project", "shop")
	tl.AssertField(t, "dump committed", "revision", id)
	tl.AssertLogged(t, zapcore.DebugLevel, "writing dump")
}
