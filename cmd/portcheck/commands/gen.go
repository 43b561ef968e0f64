package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/oracle"
)

func newGenCommand() *cobra.Command {
	var (
		sourceDir string
		unitID    string
	)

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate test oracles without running them",
		Long: `Parse the C sources and print the generated test suites as JSON. Useful
for inspecting what the differential run would execute, and for seeding
external tooling with the same deterministic cases.`,
		Example: `  # Dump the suites for every unit
  portcheck gen --source ./src

  # Dump the suite for one unit
  portcheck gen --source ./src --unit math_ops`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if sourceDir != "" {
				cfg.Project.SourceDir = sourceDir
			}

			tel, err := buildTelemetry(cfg)
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())

			units, err := parseSources(cmd.Context(), cfg, tel)
			if err != nil {
				return err
			}

			gen := oracle.NewGenerator(oracleOptions(cfg), tel.Logger)
			suites := make([]*model.Suite, 0, len(units))
			for _, u := range units {
				if unitID != "" && u.ID != unitID {
					continue
				}
				suite, err := gen.GenerateSuite(u)
				if err != nil {
					return err
				}
				suites = append(suites, suite)
			}
			if unitID != "" && len(suites) == 0 {
				return fmt.Errorf("no unit named %q in %s", unitID, cfg.Project.SourceDir)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if unitID != "" {
				return enc.Encode(suites[0])
			}
			return enc.Encode(suites)
		},
	}

	cmd.Flags().StringVarP(&sourceDir, "source", "s", "", "C source directory (overrides config)")
	cmd.Flags().StringVarP(&unitID, "unit", "u", "", "limit output to one unit")

	return cmd
}
