// Package config defines the engine configuration and its loaders. Files can
// be written in CUE or YAML; both decode into the same Config, which is then
// checked with struct validation tags.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/portcheck/portcheck/pkg/telemetry"
)

// Config is the full engine configuration.
type Config struct {
	Project    ProjectConfig    `json:"project" yaml:"project" validate:"required"`
	Oracle     OracleConfig     `json:"oracle" yaml:"oracle"`
	Execution  ExecutionConfig  `json:"execution" yaml:"execution"`
	Validation ValidationConfig `json:"validation" yaml:"validation"`
	Retry      RetryConfig      `json:"retry" yaml:"retry"`
	Generator  GeneratorConfig  `json:"generator" yaml:"generator"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Telemetry  telemetry.Config `json:"telemetry" yaml:"telemetry"`
}

// ProjectConfig locates the migration inputs and outputs.
type ProjectConfig struct {
	// Name identifies the migration project in reports and storage.
	Name string `json:"name" yaml:"name" validate:"required"`

	// SourceDir holds the C translation units.
	SourceDir string `json:"source_dir" yaml:"source_dir" validate:"required"`

	// OutputDir receives the accepted C# sources and the report.
	OutputDir string `json:"output_dir" yaml:"output_dir" validate:"required"`
}

// OracleConfig controls test suite generation.
type OracleConfig struct {
	// Strategies lists the enabled generation strategies.
	Strategies []string `json:"strategies" yaml:"strategies" validate:"dive,oneof=boundary edge random"`

	// Seed is the random strategy seed.
	Seed int64 `json:"seed" yaml:"seed"`

	// RandomCount is the number of random cases per function.
	RandomCount int `json:"random_count" yaml:"random_count" validate:"min=0"`

	// MaxTestsPerFunction caps the suite size per function.
	MaxTestsPerFunction int `json:"max_tests_per_function" yaml:"max_tests_per_function" validate:"min=0"`
}

// ExecutionConfig controls harness compilation and execution.
type ExecutionConfig struct {
	// Mode is batch or percase.
	Mode string `json:"mode" yaml:"mode" validate:"oneof=batch percase"`

	// Concurrency bounds parallel per-case invocations.
	Concurrency int `json:"concurrency" yaml:"concurrency" validate:"min=1"`

	// CompileTimeoutSec and ExecTimeoutSec bound the two phases.
	CompileTimeoutSec int `json:"compile_timeout_sec" yaml:"compile_timeout_sec" validate:"min=1"`
	ExecTimeoutSec    int `json:"exec_timeout_sec" yaml:"exec_timeout_sec" validate:"min=1"`

	// GCC is the C compiler binary; GCCFlags are appended to the defaults.
	GCC      string   `json:"gcc" yaml:"gcc"`
	GCCFlags []string `json:"gcc_flags" yaml:"gcc_flags"`

	// Dotnet is the dotnet binary; DotnetFramework the target framework.
	Dotnet          string `json:"dotnet" yaml:"dotnet"`
	DotnetFramework string `json:"dotnet_framework" yaml:"dotnet_framework"`

	// KeepWorkDirs leaves harness build directories behind for debugging.
	KeepWorkDirs bool `json:"keep_work_dirs" yaml:"keep_work_dirs"`
}

// CompileTimeout returns the compile phase timeout as a duration.
func (e ExecutionConfig) CompileTimeout() time.Duration {
	return time.Duration(e.CompileTimeoutSec) * time.Second
}

// ExecTimeout returns the execute phase timeout as a duration.
func (e ExecutionConfig) ExecTimeout() time.Duration {
	return time.Duration(e.ExecTimeoutSec) * time.Second
}

// ValidationConfig holds the numeric comparison tolerances.
type ValidationConfig struct {
	// FloatAbs is the absolute tolerance for single-precision outputs.
	FloatAbs float64 `json:"float_abs" yaml:"float_abs" validate:"min=0"`

	// DoubleAbs is the absolute tolerance for double-precision outputs.
	DoubleAbs float64 `json:"double_abs" yaml:"double_abs" validate:"min=0"`

	// Relative is the relative tolerance applied to both widths.
	Relative float64 `json:"relative" yaml:"relative" validate:"min=0"`
}

// RetryConfig controls the orchestrator's retry and cycle behavior.
type RetryConfig struct {
	// MaxRetries is the number of conversion attempts per unit.
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"min=1"`

	// RegenerateRandom re-rolls the random cases on each retry attempt.
	// Off by default: an identical suite across attempts keeps failures
	// reproducible and verdict history comparable.
	RegenerateRandom bool `json:"regenerate_random" yaml:"regenerate_random"`

	// CyclePolicy decides what to do with dependency cycles: abort the
	// run or sever the closing edges and continue.
	CyclePolicy string `json:"cycle_policy" yaml:"cycle_policy" validate:"oneof=abort sever"`
}

// GeneratorConfig selects and configures the code generator.
type GeneratorConfig struct {
	// Kind is command or openai.
	Kind string `json:"kind" yaml:"kind" validate:"oneof=command openai"`

	// Command and Args configure the command generator.
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`

	// Model and BaseURL configure the openai generator. The API key is
	// read from the environment variable named by APIKeyEnv.
	Model     string `json:"model" yaml:"model"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env"`

	// TimeoutSec bounds one conversion request.
	TimeoutSec int `json:"timeout_sec" yaml:"timeout_sec" validate:"min=1"`
}

// Timeout returns the generator timeout as a duration.
func (g GeneratorConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSec) * time.Second
}

// StoreConfig locates the run database.
type StoreConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `json:"path" yaml:"path"`
}

// Default returns the configuration defaults. Loaders start from this and
// overlay the file contents.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Name:      "migration",
			SourceDir: "./src",
			OutputDir: "./converted",
		},
		Oracle: OracleConfig{
			Strategies:          []string{"boundary", "edge", "random"},
			Seed:                42,
			RandomCount:         5,
			MaxTestsPerFunction: 40,
		},
		Execution: ExecutionConfig{
			Mode:              "batch",
			Concurrency:       4,
			CompileTimeoutSec: 60,
			ExecTimeoutSec:    30,
			GCC:               "gcc",
			Dotnet:            "dotnet",
			DotnetFramework:   "net8.0",
		},
		Validation: ValidationConfig{
			FloatAbs:  1e-6,
			DoubleAbs: 1e-12,
			Relative:  1e-9,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			CyclePolicy: "abort",
		},
		Generator: GeneratorConfig{
			Kind:       "command",
			APIKeyEnv:  "OPENAI_API_KEY",
			TimeoutSec: 300,
		},
		Store: StoreConfig{
			Path: "portcheck.db",
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Validate checks the configuration against its struct tags and the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Generator.Kind == "command" && c.Generator.Command == "" {
		return fmt.Errorf("invalid configuration: generator.command is required for the command generator")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}
