// Package config provides project configuration management.
//
// This package handles reading devws.yaml project files, merging them with
// built-in defaults, and resolving the consumer application manifest.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the project configuration file name.
const DefaultConfigFile = "devws.yaml"

// Target roles. Exactly one target per project is served; every other
// target is rebuilt in the background while the app process runs.
const (
	RoleServed     = "served"
	RoleBackground = "background"
)

// ProjectConfig represents the devws.yaml file.
type ProjectConfig struct {
	// Project contains project identification.
	Project Project `yaml:"project"`

	// App describes the supervised consumer application.
	App AppConfig `yaml:"app"`

	// Targets lists the independently buildable units of the project.
	Targets []TargetConfig `yaml:"targets"`

	// Dev contains dev-loop settings.
	Dev DevConfig `yaml:"dev,omitempty"`
}

// Project contains project identification.
type Project struct {
	// Name is the project name, used for logging.
	Name string `yaml:"name"`
}

// AppConfig describes how to launch the supervised consumer application.
type AppConfig struct {
	// Command is the executable to spawn (looked up on PATH if relative).
	Command string `yaml:"command"`

	// Args are passed to the executable verbatim.
	Args []string `yaml:"args,omitempty"`

	// Manifest is an optional path to a JSON package manifest describing
	// the application (name, entry point). Used for log attribution and
	// for rendering the dev manifest consumed by external tooling.
	Manifest string `yaml:"manifest,omitempty"`
}

// TargetConfig describes one buildable target.
type TargetConfig struct {
	// Name is the unique target key.
	Name string `yaml:"name"`

	// Role is "served" or "background".
	Role string `yaml:"role"`

	// Sources are the directories watched for changes in watch mode.
	Sources []string `yaml:"sources"`

	// Build is the shell command that compiles the target.
	Build string `yaml:"build"`

	// OutDir is the directory the build writes artifacts to.
	OutDir string `yaml:"out_dir,omitempty"`
}

// DevConfig contains dev-loop settings.
type DevConfig struct {
	// Host is the interface the serving server binds to.
	Host string `yaml:"host,omitempty"`

	// Port is the serving server port. 0 picks a free port.
	Port int `yaml:"port,omitempty"`

	// DebounceMs is the restart quiescence window in milliseconds.
	DebounceMs int `yaml:"debounce_ms,omitempty"`
}

// defaults returns the built-in configuration defaults as a generic map
// so they can be combined with the user file via Merge.
func defaults() map[string]any {
	return map[string]any{
		"dev": map[string]any{
			"host":        "127.0.0.1",
			"port":        0,
			"debounce_ms": 500,
		},
	}
}

// LoadProjectConfig reads and parses a devws.yaml file, applying the
// built-in defaults underneath the user-supplied values.
//
// Relative source and output paths are resolved against the config file's
// directory.
//
// Parameters:
//   - path: Path to the config file
//
// Returns:
//   - *ProjectConfig: The merged, validated configuration
//   - error: Any error that occurred
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	merged := Merge(defaults(), raw)

	// Round-trip through yaml so the merged map lands in the typed struct.
	mergedData, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode merged config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(mergedData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode merged config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i := range cfg.Targets {
		for j, src := range cfg.Targets[i].Sources {
			if !filepath.IsAbs(src) {
				cfg.Targets[i].Sources[j] = filepath.Join(base, src)
			}
		}
		if out := cfg.Targets[i].OutDir; out != "" && !filepath.IsAbs(out) {
			cfg.Targets[i].OutDir = filepath.Join(base, out)
		}
	}
	if m := cfg.App.Manifest; m != "" && !filepath.IsAbs(m) {
		cfg.App.Manifest = filepath.Join(base, m)
	}

	return &cfg, nil
}

// Validate checks structural invariants of the configuration.
//
// Returns:
//   - error: The first violation found, or nil
func (c *ProjectConfig) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("config declares no targets")
	}

	served := 0
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true

		switch t.Role {
		case RoleServed:
			served++
		case RoleBackground:
		default:
			return fmt.Errorf("target %q has unknown role %q", t.Name, t.Role)
		}

		if t.Build == "" {
			return fmt.Errorf("target %q has no build command", t.Name)
		}
	}
	if served != 1 {
		return fmt.Errorf("config must declare exactly one served target, found %d", served)
	}

	if c.App.Command == "" {
		return fmt.Errorf("app.command is required")
	}
	return nil
}

// ServedTarget returns the single target with the served role.
//
// Returns:
//   - TargetConfig: The served target (zero value only on unvalidated configs)
func (c *ProjectConfig) ServedTarget() TargetConfig {
	for _, t := range c.Targets {
		if t.Role == RoleServed {
			return t
		}
	}
	return TargetConfig{}
}

// BackgroundTargets returns every target that is not served, in
// declaration order.
//
// Returns:
//   - []TargetConfig: The background targets
func (c *ProjectConfig) BackgroundTargets() []TargetConfig {
	var out []TargetConfig
	for _, t := range c.Targets {
		if t.Role != RoleServed {
			out = append(out, t)
		}
	}
	return out
}
