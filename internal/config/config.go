// Package config provides settings loading for jab.
//
// Settings are resolved from hardcoded defaults, an optional
// <home>/settings.yaml and JAB_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/jab/internal/registry"
)

// SettingsFile is the optional settings file name inside the jab home.
const SettingsFile = "settings.yaml"

// HomeEnv overrides the default jab home directory.
const HomeEnv = "JAB_HOME"

// Settings holds the complete jab configuration.
type Settings struct {
	// Home holds the registry file and, by default, the project repositories.
	Home        string        `koanf:"home"`
	ProjectsDir string        `koanf:"projects_dir"`
	Logging     LoggingConfig `koanf:"logging"`
	Author      AuthorConfig  `koanf:"author"`
	Tools       ToolsConfig   `koanf:"tools"`
	Metrics     MetricsConfig `koanf:"metrics"`
}

// LoggingConfig selects log verbosity and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// AuthorConfig is the signature recorded on snapshot commits.
type AuthorConfig struct {
	Name  string `koanf:"name"`
	Email string `koanf:"email"`
}

// ToolsConfig names the external client binaries used for dumps and restores.
type ToolsConfig struct {
	PgDump    string   `koanf:"pg_dump"`
	Psql      string   `koanf:"psql"`
	MySQLDump string   `koanf:"mysqldump"`
	MySQL     string   `koanf:"mysql"`
	Timeout   Duration `koanf:"timeout"`
}

// MetricsConfig controls the Prometheus textfile written after each command.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// Validation errors.
var (
	ErrEmptyHome     = errors.New("home directory cannot be empty")
	ErrInvalidFormat = errors.New("logging format must be json or console")
	ErrInvalidEmail  = errors.New("author email must contain @")
)

// ResolveHome picks the jab home: explicit value, then $JAB_HOME, then ~/.jab.
func ResolveHome(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(HomeEnv); env != "" {
		return env, nil
	}
	return registry.DefaultDir()
}

// Default returns settings for home with every field at its default.
func Default(home string) *Settings {
	s := &Settings{Home: home}
	applyDefaults(s)
	return s
}

// RegistryDir returns the directory holding the registry file.
func (s *Settings) RegistryDir() string {
	return s.Home
}

// Validate checks settings for errors.
func (s *Settings) Validate() error {
	if s.Home == "" {
		return ErrEmptyHome
	}
	switch s.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, s.Logging.Format)
	}
	if s.Author.Email != "" && !strings.Contains(s.Author.Email, "@") {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, s.Author.Email)
	}
	return nil
}

// applyDefaults sets default values for missing fields.
func applyDefaults(s *Settings) {
	if s.ProjectsDir == "" {
		s.ProjectsDir = filepath.Join(s.Home, "projects")
	} else if !filepath.IsAbs(s.ProjectsDir) {
		s.ProjectsDir = filepath.Join(s.Home, s.ProjectsDir)
	}

	if s.Logging.Level == "" {
		s.Logging.Level = "warn"
	}
	if s.Logging.Format == "" {
		s.Logging.Format = "console"
	}

	if s.Tools.PgDump == "" {
		s.Tools.PgDump = "pg_dump"
	}
	if s.Tools.Psql == "" {
		s.Tools.Psql = "psql"
	}
	if s.Tools.MySQLDump == "" {
		s.Tools.MySQLDump = "mysqldump"
	}
	if s.Tools.MySQL == "" {
		s.Tools.MySQL = "mysql"
	}
	if s.Tools.Timeout == 0 {
		s.Tools.Timeout = Duration(10 * time.Minute)
	}
}
