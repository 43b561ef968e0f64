package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	// The command generator needs a command; defaults leave it empty.
	cfg.Generator.Command = "converter"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("max retries: %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.CyclePolicy != "abort" {
		t.Errorf("cycle policy: %s", cfg.Retry.CyclePolicy)
	}
	if cfg.Validation.DoubleAbs != 1e-12 || cfg.Validation.FloatAbs != 1e-6 {
		t.Errorf("tolerances: %+v", cfg.Validation)
	}
	if cfg.Execution.CompileTimeout() != 60*time.Second {
		t.Errorf("compile timeout: %v", cfg.Execution.CompileTimeout())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing project name", func(c *Config) { c.Project.Name = "" }},
		{"unknown strategy", func(c *Config) { c.Oracle.Strategies = []string{"fuzz"} }},
		{"bad mode", func(c *Config) { c.Execution.Mode = "parallel" }},
		{"zero retries", func(c *Config) { c.Retry.MaxRetries = 0 }},
		{"bad cycle policy", func(c *Config) { c.Retry.CyclePolicy = "ignore" }},
		{"negative tolerance", func(c *Config) { c.Validation.DoubleAbs = -1 }},
		{"bad generator kind", func(c *Config) { c.Generator.Kind = "local" }},
		{"command generator without command", func(c *Config) { c.Generator.Command = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Generator.Command = "converter"
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "portcheck.yaml", `
project:
  name: demo
  source_dir: ./c_src
  output_dir: ./out
oracle:
  seed: 7
  random_count: 10
retry:
  max_retries: 5
  cycle_policy: sever
generator:
  kind: command
  command: ./convert.sh
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Project.Name != "demo" || cfg.Oracle.Seed != 7 {
		t.Errorf("overrides not applied: %+v", cfg.Project)
	}
	if cfg.Retry.MaxRetries != 5 || cfg.Retry.CyclePolicy != "sever" {
		t.Errorf("retry overrides: %+v", cfg.Retry)
	}
	// Untouched fields keep their defaults.
	if cfg.Execution.Mode != "batch" || cfg.Validation.Relative != 1e-9 {
		t.Errorf("defaults lost: %+v %+v", cfg.Execution, cfg.Validation)
	}
}

func TestLoadCUE(t *testing.T) {
	path := writeConfig(t, "portcheck.cue", `
project: {
	name:       "demo"
	source_dir: "./c_src"
	output_dir: "./out"
}
generator: {
	kind:    "command"
	command: "./convert.sh"
}
validation: double_abs: 1e-6
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Project.Name != "demo" {
		t.Errorf("project: %+v", cfg.Project)
	}
	if cfg.Validation.DoubleAbs != 1e-6 {
		t.Errorf("tolerance override: %g", cfg.Validation.DoubleAbs)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, "portcheck.yaml", `
project:
  name: demo
  source_dir: ./c_src
  output_dir: ./out
retry:
  cycle_policy: ignore
generator:
  kind: command
  command: ./convert.sh
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for bad cycle policy")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := writeConfig(t, "portcheck.toml", "x = 1")
	if _, err := Load(bad); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
