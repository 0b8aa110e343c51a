// Package registry manages the named-project registry.
//
// The registry maps a project name to the database it snapshots. It is
// persisted as a single pretty-printed JSON file:
//
//	~/.jab/
//	├── config                 ← registry (this package)
//	├── settings.yaml          ← optional settings (internal/config)
//	└── projects/
//	    └── {project}/         ← git repository holding dump.sql
//
// The file holds one object with a "projects" field:
//
//	{
//	  "projects": {
//	    "shop": {
//	      "name": "shop",
//	      "db_uri": "postgres://localhost/shop"
//	    }
//	  }
//	}
//
// Mutations are in-memory until Save is called. Load, mutate, Save is not
// protected against other processes; callers that share a home directory
// must serialize that sequence themselves.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
)

// FileName is the registry file name inside the jab home directory.
const FileName = "config"

// Errors for registry operations.
var (
	ErrProjectConfigNotFound = errors.New("project config does not exist, please check config or create it")
	ErrInvalidName           = errors.New("invalid name: must be alphanumeric with hyphens/underscores/dots")
	ErrPathTraversal         = errors.New("path traversal detected")
	ErrEmptyDBURI            = errors.New("database URI cannot be empty")
	ErrRegistryCorrupted     = errors.New("registry file corrupted")
)

// namePattern validates project names.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ProjectConfig binds a project name to a database.
type ProjectConfig struct {
	Name  string `json:"name"`
	DBURI string `json:"db_uri"`
}

// Data is the persisted registry structure.
type Data struct {
	Projects map[string]*ProjectConfig `json:"projects"`
}

// Registry holds project configs keyed by name.
type Registry struct {
	mu       sync.RWMutex
	dir      string
	filePath string
	data     *Data
}

// New returns an empty registry bound to dir. Nothing is read or written.
func New(dir string) *Registry {
	return &Registry{
		dir:      dir,
		filePath: filepath.Join(dir, FileName),
		data:     &Data{Projects: make(map[string]*ProjectConfig)},
	}
}

// Load reads the registry persisted in dir.
//
// A missing or unreadable file is returned as the underlying os error, so
// errors.Is(err, fs.ErrNotExist) distinguishes "not initialized" from
// ErrRegistryCorrupted.
func Load(dir string) (*Registry, error) {
	r := New(dir)
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// DefaultDir returns ~/.jab.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".jab"), nil
}

// Init creates dir and seeds an empty registry file if none exists.
// It reports whether a new file was written.
func Init(dir string) (bool, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return false, fmt.Errorf("failed to create jab directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat registry: %w", err)
	}

	if err := os.WriteFile(path, EmptyConfig(), 0600); err != nil {
		return false, fmt.Errorf("failed to write registry: %w", err)
	}
	return true, nil
}

// EmptyConfig returns the serialization of a registry with no projects.
func EmptyConfig() []byte {
	data, err := marshal(&Data{Projects: map[string]*ProjectConfig{}})
	if err != nil {
		// A map of string to struct of strings always marshals.
		panic(err)
	}
	return data
}

// ValidateName checks if a name is safe to use as a directory name.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: name too long (max 255)", ErrInvalidName)
	}
	if name == "." || name == ".." {
		return ErrPathTraversal
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	if filepath.Clean(name) != name {
		return ErrPathTraversal
	}
	return nil
}

// Register inserts cfg, replacing any config with the same name.
// The change is not persisted until Save.
func (r *Registry) Register(cfg ProjectConfig) error {
	if err := ValidateName(cfg.Name); err != nil {
		return fmt.Errorf("project %q: %w", cfg.Name, err)
	}
	if cfg.DBURI == "" {
		return fmt.Errorf("project %q: %w", cfg.Name, ErrEmptyDBURI)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.data.Projects[cfg.Name] = &cfg
	return nil
}

// Lookup returns the config registered under name.
func (r *Registry) Lookup(name string) (ProjectConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.data.Projects[name]
	if !ok {
		return ProjectConfig{}, fmt.Errorf("%w: %s", ErrProjectConfigNotFound, name)
	}
	return *cfg, nil
}

// Projects returns all configs sorted by name.
func (r *Registry) Projects() []ProjectConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProjectConfig, 0, len(r.data.Projects))
	for _, cfg := range r.data.Projects {
		out = append(out, *cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered projects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data.Projects)
}

// Dir returns the directory holding the registry file.
func (r *Registry) Dir() string {
	return r.dir
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return r.filePath
}

// Save writes the registry to disk.
func (r *Registry) Save() error {
	r.mu.RLock()
	data, err := marshal(r.data)
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	// Write atomically
	tmpPath := r.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}

	if err := os.Rename(tmpPath, r.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename registry: %w", err)
	}

	return nil
}

// load reads the registry from disk.
func (r *Registry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return fmt.Errorf("failed to read registry: %w", err)
	}

	var rd Data
	if err := json.Unmarshal(data, &rd); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRegistryCorrupted, r.filePath, err)
	}

	if rd.Projects == nil {
		rd.Projects = make(map[string]*ProjectConfig)
	}
	for key, cfg := range rd.Projects {
		if cfg == nil {
			return fmt.Errorf("%w: %s: project %q is null", ErrRegistryCorrupted, r.filePath, key)
		}
		// The key names the repository directory; Manager opens by cfg.Name.
		if cfg.Name != key {
			return fmt.Errorf("%w: %s: project %q is stored under %q", ErrRegistryCorrupted, r.filePath, cfg.Name, key)
		}
		if err := ValidateName(key); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrRegistryCorrupted, r.filePath, err)
		}
	}

	r.mu.Lock()
	r.data = &rd
	r.mu.Unlock()
	return nil
}

func marshal(d *Data) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
