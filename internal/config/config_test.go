package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate_Defaults(t *testing.T) {
	warnings := Default().Validate()
	// Defaults run without Redis, which is worth one warning and no more.
	if len(warnings) != 1 || !strings.Contains(warnings[0], "redis_addr") {
		t.Errorf("default config warnings = %v, want only the redis_addr notice", warnings)
	}
}

func TestValidate_BadConcurrency(t *testing.T) {
	cfg := Default()
	cfg.Resolve.MaxConcurrency = 0
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "max_concurrency") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about non-positive max_concurrency")
	}
}

func TestValidate_DepthExceedsMax(t *testing.T) {
	cfg := Default()
	cfg.Resolve.DefaultDepth = 12
	cfg.Resolve.MaxDepth = 10
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "default_depth") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning when default_depth exceeds max_depth")
	}
}

func TestValidate_Tiebreak(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool // true = should warn
	}{
		{"empty", "", false},
		{"first_seen", "first-seen", false},
		{"highest", "highest", false},
		{"unknown", "lowest", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Resolve.ConflictTiebreak = tt.value
			hasWarn := false
			for _, w := range cfg.Validate() {
				if strings.Contains(w, "conflict_tiebreak") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("tiebreak=%q: hasWarn=%v, want=%v", tt.value, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_EmptyMirrors(t *testing.T) {
	cfg := Default()
	cfg.Registries = map[string]RegistryConfig{"python": {}}
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "registries.python") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about registry with no mirrors")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "librarymaster.yaml")
	data := `
server:
  http_addr: ":9000"
cache:
  local_ttl: 30m
resolve:
  default_depth: 3
registries:
  python:
    mirrors:
      - https://pypi.example.test/pypi
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9000" {
		t.Errorf("http_addr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Cache.LocalTTL != 30*time.Minute {
		t.Errorf("local_ttl = %v", cfg.Cache.LocalTTL)
	}
	if cfg.Resolve.DefaultDepth != 3 {
		t.Errorf("default_depth = %d", cfg.Resolve.DefaultDepth)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.HealthAddr != ":8371" {
		t.Errorf("health_addr = %q, want default", cfg.Server.HealthAddr)
	}
	if got := cfg.Registries["python"].Mirrors; len(got) != 1 || got[0] != "https://pypi.example.test/pypi" {
		t.Errorf("python mirrors = %v", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
