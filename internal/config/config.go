// Package config loads diaudit's optional project-level configuration
// file, following the same find-upward-then-decode shape the teacher's
// project manifest loader uses for surge.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is diaudit's optional diaudit.toml, mirroring
// definiteinit.Options plus the on-disk cache location.
type Config struct {
	Pass  PassConfig  `toml:"pass"`
	Cache CacheConfig `toml:"cache"`
}

type PassConfig struct {
	EnableCopyAddrForwarding  bool `toml:"enable_copy_addr_forwarding"`
	MaxDiagnosticsPerFunction int  `toml:"max_diagnostics_per_function"`
}

type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Default returns the configuration diaudit uses when no diaudit.toml is
// found.
func Default() Config {
	return Config{
		Pass: PassConfig{MaxDiagnosticsPerFunction: 64},
	}
}

// FindUpward searches startDir and each of its ancestors for
// "diaudit.toml", the same upward-search findSurgeToml uses for
// surge.toml.
func FindUpward(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "diaudit.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load finds and decodes diaudit.toml starting from startDir, returning
// Default() untouched if none is found.
func Load(startDir string) (Config, error) {
	path, ok, err := FindUpward(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return cfg, nil
}
