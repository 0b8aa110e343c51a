package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxSettingsFileSize = 1024 * 1024 // 1MB

	envPrefix = "JAB_"
)

// sections are the nested settings groups addressable from the environment.
var sections = map[string]bool{
	"logging": true,
	"author":  true,
	"tools":   true,
	"metrics": true,
}

// Load resolves settings for the jab home directory.
//
// Precedence (highest to lowest):
//  1. Environment variables (JAB_LOGGING_LEVEL, JAB_TOOLS_PG_DUMP, etc.)
//  2. <home>/settings.yaml, if present
//  3. Hardcoded defaults
//
// home is resolved with ResolveHome and always wins over a home key in the
// file or environment.
//
// # Security Considerations
//
// The settings file must not be group or world writable, and files larger
// than 1MB are rejected.
//
// # Environment Variable Mapping
//
// The JAB_ prefix is stripped and the rest lowercased. A leading section
// name becomes a key prefix; anything else maps to a top-level key:
//
//	JAB_LOGGING_LEVEL -> logging.level
//	JAB_TOOLS_PG_DUMP -> tools.pg_dump
//	JAB_PROJECTS_DIR  -> projects_dir
func Load(home string) (*Settings, error) {
	home, err := ResolveHome(home)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")

	path := filepath.Join(home, SettingsFile)
	content, err := readSettingsFile(path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load settings file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	s.Home = home

	applyDefaults(&s)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}
	return &s, nil
}

// envKey maps JAB_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 2 && sections[parts[0]] {
		return parts[0] + "." + parts[1]
	}
	return lower
}

// readSettingsFile returns nil content when path does not exist.
func readSettingsFile(path string) ([]byte, error) {
	// Open once and validate the descriptor to avoid a TOCTOU race
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat settings file: %w", err)
	}
	if err := validateSettingsFileProperties(info); err != nil {
		return nil, fmt.Errorf("settings file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return content, nil
}

// validateSettingsFileProperties checks file type, permissions and size.
func validateSettingsFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", info.Name())
	}

	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0022 != 0 {
			return fmt.Errorf("insecure settings file permissions: %v (must not be group or world writable)", perm)
		}
	}

	if info.Size() > maxSettingsFileSize {
		return fmt.Errorf("settings file too large: %d bytes (max %d)", info.Size(), maxSettingsFileSize)
	}
	return nil
}
