package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
project:
  name: demo
app:
  command: demo-shell
targets:
  - name: renderer
    role: served
    sources: [src/renderer]
    build: "make renderer"
    out_dir: dist/renderer
  - name: worker
    role: background
    sources: [src/worker]
    build: "make worker"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile = %v", err)
	}
	return path
}

func TestLoadProjectConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("LoadProjectConfig = %v", err)
	}

	if cfg.Dev.Host != "127.0.0.1" {
		t.Fatalf("host = %q, want default 127.0.0.1", cfg.Dev.Host)
	}
	if cfg.Dev.DebounceMs != 500 {
		t.Fatalf("debounce_ms = %d, want default 500", cfg.Dev.DebounceMs)
	}
}

func TestLoadProjectConfigUserOverridesDefaults(t *testing.T) {
	path := writeConfig(t, validYAML+`
dev:
  port: 8080
`)
	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("LoadProjectConfig = %v", err)
	}

	if cfg.Dev.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Dev.Port)
	}
	// Untouched defaults survive a partial override.
	if cfg.Dev.DebounceMs != 500 {
		t.Fatalf("debounce_ms = %d, want 500", cfg.Dev.DebounceMs)
	}
}

func TestLoadProjectConfigResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("LoadProjectConfig = %v", err)
	}

	base := filepath.Dir(path)
	want := filepath.Join(base, "src/renderer")
	if got := cfg.ServedTarget().Sources[0]; got != want {
		t.Fatalf("served sources[0] = %q, want %q", got, want)
	}
	if got := cfg.ServedTarget().OutDir; got != filepath.Join(base, "dist/renderer") {
		t.Fatalf("served out_dir = %q, want under config dir", got)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name string
		cfg  ProjectConfig
	}{
		{"no targets", ProjectConfig{App: AppConfig{Command: "x"}}},
		{"no served target", ProjectConfig{
			App:     AppConfig{Command: "x"},
			Targets: []TargetConfig{{Name: "a", Role: RoleBackground, Build: "make"}},
		}},
		{"two served targets", ProjectConfig{
			App: AppConfig{Command: "x"},
			Targets: []TargetConfig{
				{Name: "a", Role: RoleServed, Build: "make"},
				{Name: "b", Role: RoleServed, Build: "make"},
			},
		}},
		{"duplicate names", ProjectConfig{
			App: AppConfig{Command: "x"},
			Targets: []TargetConfig{
				{Name: "a", Role: RoleServed, Build: "make"},
				{Name: "a", Role: RoleBackground, Build: "make"},
			},
		}},
		{"unknown role", ProjectConfig{
			App:     AppConfig{Command: "x"},
			Targets: []TargetConfig{{Name: "a", Role: "sideways", Build: "make"}},
		}},
		{"missing build command", ProjectConfig{
			App:     AppConfig{Command: "x"},
			Targets: []TargetConfig{{Name: "a", Role: RoleServed}},
		}},
		{"missing app command", ProjectConfig{
			Targets: []TargetConfig{{Name: "a", Role: RoleServed, Build: "make"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBackgroundTargetsExcludeServed(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("LoadProjectConfig = %v", err)
	}

	bg := cfg.BackgroundTargets()
	if len(bg) != 1 || bg[0].Name != "worker" {
		t.Fatalf("background targets = %v, want [worker]", bg)
	}
	if got := cfg.ServedTarget().Name; got != "renderer" {
		t.Fatalf("served target = %q, want %q", got, "renderer")
	}
}
