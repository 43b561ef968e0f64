package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/portcheck/portcheck/pkg/config"
	"github.com/portcheck/portcheck/pkg/convert"
	"github.com/portcheck/portcheck/pkg/executor"
	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/oracle"
	"github.com/portcheck/portcheck/pkg/orchestrator"
	"github.com/portcheck/portcheck/pkg/report"
	"github.com/portcheck/portcheck/pkg/stores"
	"github.com/portcheck/portcheck/pkg/telemetry"
	"github.com/portcheck/portcheck/pkg/validator"
)

func newRunCommand() *cobra.Command {
	var (
		sourceDir string
		outputDir string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full migration",
		Long: `Run the full migration: parse the C sources, order them by dependency,
convert each unit and accept only conversions that pass differential testing.

The run exits non-zero when any unit failed or was skipped; the report is
printed either way.`,
		Example: `  # Migrate ./src with the default configuration
  portcheck run --source ./src --output ./converted

  # Use a config file and emit the report as JSON
  portcheck -c portcheck.cue run --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if sourceDir != "" {
				cfg.Project.SourceDir = sourceDir
			}
			if outputDir != "" {
				cfg.Project.OutputDir = outputDir
			}

			tel, err := buildTelemetry(cfg)
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())

			rep, err := runMigration(cmd.Context(), cfg, tel)
			if err != nil {
				return err
			}

			if err := renderReport(cmd.OutOrStdout(), rep, format); err != nil {
				return err
			}
			if err := writeReportFile(cfg, rep); err != nil {
				tel.Logger.WithError(err).Warn("failed to write report file")
			}
			if rep.ExitCode() != 0 {
				cmd.SilenceUsage = true
				cmd.SilenceErrors = true
				return fmt.Errorf("%d of %d units did not convert", rep.Failed+rep.Skipped, rep.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceDir, "source", "s", "", "C source directory (overrides config)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for converted sources (overrides config)")
	cmd.Flags().StringVar(&format, "format", "", "report format: text, json or yaml")

	return cmd
}

// runMigration wires the engine from the config and executes one run.
func runMigration(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) (*orchestrator.Report, error) {
	units, err := parseSources(ctx, cfg, tel)
	if err != nil {
		return nil, err
	}

	gen, err := buildGenerator(cfg, tel)
	if err != nil {
		return nil, err
	}

	exec := buildExecutor(cfg, tel)
	val := validator.New(validator.Tolerances{
		FloatAbs:  cfg.Validation.FloatAbs,
		DoubleAbs: cfg.Validation.DoubleAbs,
		Relative:  cfg.Validation.Relative,
	}, tel.Logger)

	var store *stores.SQLiteStore
	if cfg.Store.Path != "" {
		store, err = stores.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			return nil, err
		}
		defer store.Close()
	}

	o := orchestrator.New(gen, exec, val, tel, store, orchestrator.Options{
		Project:          cfg.Project.Name,
		MaxRetries:       cfg.Retry.MaxRetries,
		RegenerateRandom: cfg.Retry.RegenerateRandom,
		CyclePolicy:      orchestrator.CyclePolicy(cfg.Retry.CyclePolicy),
		OutputDir:        cfg.Project.OutputDir,
		Oracle:           oracleOptions(cfg),
	})
	return o.Run(ctx, units)
}

func buildGenerator(cfg *config.Config, tel *telemetry.Telemetry) (convert.Generator, error) {
	switch cfg.Generator.Kind {
	case "openai":
		apiKey := os.Getenv(cfg.Generator.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("generator: %s is not set", cfg.Generator.APIKeyEnv)
		}
		return convert.NewOpenAIGenerator(apiKey, cfg.Generator.BaseURL, cfg.Generator.Model, tel.Logger), nil
	case "command", "":
		if cfg.Generator.Command == "" {
			return nil, fmt.Errorf("generator: command is required (set generator.command or use -c)")
		}
		return convert.NewCommandGenerator(cfg.Generator.Command, cfg.Generator.Args, cfg.Generator.Timeout(), tel.Logger), nil
	default:
		return nil, fmt.Errorf("generator: unknown kind %q", cfg.Generator.Kind)
	}
}

func buildExecutor(cfg *config.Config, tel *telemetry.Telemetry) *executor.Executor {
	source := &executor.GCCToolchain{
		Compiler:       cfg.Execution.GCC,
		Flags:          cfg.Execution.GCCFlags,
		CompileTimeout: cfg.Execution.CompileTimeout(),
		ExecTimeout:    cfg.Execution.ExecTimeout(),
	}
	target := &executor.DotnetToolchain{
		Command:        cfg.Execution.Dotnet,
		Framework:      cfg.Execution.DotnetFramework,
		CompileTimeout: cfg.Execution.CompileTimeout(),
		ExecTimeout:    cfg.Execution.ExecTimeout(),
	}
	return executor.New(source, target, executor.Options{
		Mode:         executor.Mode(cfg.Execution.Mode),
		Concurrency:  cfg.Execution.Concurrency,
		KeepWorkDirs: cfg.Execution.KeepWorkDirs,
	}, tel.Logger, tel.Metrics)
}

func oracleOptions(cfg *config.Config) oracle.Options {
	opts := oracle.Options{
		Seed:                cfg.Oracle.Seed,
		RandomCount:         cfg.Oracle.RandomCount,
		MaxTestsPerFunction: cfg.Oracle.MaxTestsPerFunction,
	}
	for _, s := range cfg.Oracle.Strategies {
		opts.Strategies = append(opts.Strategies, model.TestCategory(s))
	}
	return opts
}

func renderReport(w io.Writer, rep *orchestrator.Report, format string) error {
	f := report.Format(format)
	if format == "" {
		f = report.FormatText
		if jsonOutput {
			f = report.FormatJSON
		}
	}
	return report.Render(w, rep, f)
}

// writeReportFile persists the report as JSON alongside the converted
// sources.
func writeReportFile(cfg *config.Config, rep *orchestrator.Report) error {
	if cfg.Project.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.Project.OutputDir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(cfg.Project.OutputDir, "report.json"))
	if err != nil {
		return err
	}
	defer f.Close()
	return report.RenderJSON(f, rep)
}
