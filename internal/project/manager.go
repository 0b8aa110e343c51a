package project

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/metrics"
	"github.com/fyrsmithlabs/jab/internal/registry"
	"github.com/fyrsmithlabs/jab/internal/revision"
)

// Manager resolves projects by name through the registry and keeps their
// repositories under one root directory.
type Manager struct {
	registry *registry.Registry
	backend  revision.Backend
	dir      string
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records commit metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// NewManager creates a manager storing repositories under dir.
func NewManager(reg *registry.Registry, backend revision.Backend, dir string, opts ...Option) *Manager {
	m := &Manager{
		registry: reg,
		backend:  backend,
		dir:      dir,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the root directory of project repositories.
func (m *Manager) Dir() string {
	return m.dir
}

// Create registers name with dbURI, creates its repository and persists the
// registry. Re-creating an existing project replaces its database URI and
// keeps its history.
func (m *Manager) Create(ctx context.Context, name, dbURI string) (*Project, error) {
	if err := m.registry.Register(registry.ProjectConfig{Name: name, DBURI: dbURI}); err != nil {
		return nil, err
	}

	p, err := Create(ctx, m.backend, m.dir, name, dbURI)
	if err != nil {
		return nil, err
	}

	if err := m.registry.Save(); err != nil {
		return nil, fmt.Errorf("failed to persist project %s: %w", name, err)
	}

	ctx = logging.WithProject(ctx, name)
	logging.FromContext(ctx).Info(ctx, "project created",
		logging.URI("db_uri", dbURI),
		zap.String("repo_path", p.RepoPath()))
	return p, nil
}

// Open returns the registered project called name.
func (m *Manager) Open(ctx context.Context, name string) (*Project, error) {
	cfg, err := m.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return Open(ctx, m.backend, m.dir, cfg.Name, cfg.DBURI)
}

// List returns all registered projects sorted by name.
func (m *Manager) List() []registry.ProjectConfig {
	return m.registry.Projects()
}

// Commit stores dump as a new revision of project name.
func (m *Manager) Commit(ctx context.Context, name, message string, dump []byte) (string, error) {
	start := m.now()

	p, err := m.Open(ctx, name)
	if err != nil {
		m.observeFailure(name)
		return "", err
	}

	id, err := p.CommitDump(ctx, message, dump)
	if err != nil {
		m.observeFailure(name)
		return "", err
	}

	if m.metrics != nil {
		end := m.now()
		m.metrics.ObserveCommit(name, len(dump), end.Sub(start), end)
	}
	return id, nil
}

func (m *Manager) observeFailure(name string) {
	if m.metrics != nil {
		m.metrics.ObserveFailure(name)
	}
}
