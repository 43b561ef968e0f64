package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/portcheck/portcheck/pkg/config"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portcheck",
		Short: "portcheck - Differential C to C# migration engine",
		Long: `portcheck migrates a C codebase to C# one translation unit at a time and
proves each conversion with differential testing.

For every unit it:
  - Parses the C source and resolves the dependency graph
  - Generates a test oracle (boundary, edge and random cases)
  - Runs the cases against the original via gcc and the conversion via dotnet
  - Compares outputs type-aware, with tolerances for floating point
  - Retries rejected conversions with structured feedback, up to a bound`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (CUE or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newGenCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}

// loadConfig loads the configured file, or the defaults when no --config flag
// was given. The defaults are not validated here: commands that do not need a
// generator should still work without a config file.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// buildTelemetry constructs the telemetry stack from the config, with the
// --verbose flag overriding the configured log level.
func buildTelemetry(cfg *config.Config) (*telemetry.Telemetry, error) {
	tcfg := cfg.Telemetry
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	return telemetry.NewTelemetry(&tcfg)
}
