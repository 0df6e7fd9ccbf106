package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected Default() with no diaudit.toml present, got %+v", cfg)
	}
}

func TestLoadDecodesNearestTOML(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	toml := `
[pass]
enable_copy_addr_forwarding = true
max_diagnostics_per_function = 10

[cache]
enabled = true
dir = ".cache"
`
	if err := os.WriteFile(filepath.Join(root, "diaudit.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nested)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Pass.EnableCopyAddrForwarding {
		t.Errorf("expected EnableCopyAddrForwarding=true, got %+v", cfg.Pass)
	}
	if cfg.Pass.MaxDiagnosticsPerFunction != 10 {
		t.Errorf("expected MaxDiagnosticsPerFunction=10, got %d", cfg.Pass.MaxDiagnosticsPerFunction)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Dir != ".cache" {
		t.Errorf("expected cache.enabled=true, dir=.cache, got %+v", cfg.Cache)
	}
}

func TestFindUpwardStopsAtRoot(t *testing.T) {
	dir := t.TempDir()
	_, ok, err := FindUpward(dir)
	if err != nil {
		t.Fatalf("FindUpward: %v", err)
	}
	if ok {
		t.Errorf("expected no diaudit.toml to be found under an empty temp tree")
	}
}
