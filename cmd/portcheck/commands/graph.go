package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/portcheck/portcheck/pkg/config"
	"github.com/portcheck/portcheck/pkg/graph"
	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/parser"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

func newGraphCommand() *cobra.Command {
	var (
		sourceDir string
		dotFile   string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the dependency graph",
		Long: `Parse the C sources and print the dependency graph: the topological
processing order and any cycles. No conversion is performed.`,
		Example: `  # Print the processing order
  portcheck graph --source ./src

  # Write the graph as DOT for visualization
  portcheck graph --source ./src --dot deps.dot`,
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

			g := graph.New()
			for _, u := range units {
				if err := g.AddUnit(u.ID, u.Dependencies); err != nil {
					return err
				}
			}
			if err := g.Validate(); err != nil {
				return err
			}

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(g.ToDOT()), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", dotFile)
			}

			out := cmd.OutOrStdout()
			if cycles := g.DetectCycles(); len(cycles) > 0 {
				for _, cycle := range cycles {
					fmt.Fprintf(out, "cycle: %s\n", strings.Join(cycle, " -> "))
				}
				return fmt.Errorf("dependency graph has %d cycle(s)", len(cycles))
			}

			order, err := g.TopologicalOrder()
			if err != nil {
				return err
			}
			for i, id := range order {
				deps := g.Dependencies(id)
				if len(deps) == 0 {
					fmt.Fprintf(out, "%3d. %s\n", i+1, id)
					continue
				}
				fmt.Fprintf(out, "%3d. %s (depends on %s)\n", i+1, id, strings.Join(deps, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceDir, "source", "s", "", "C source directory (overrides config)")
	cmd.Flags().StringVar(&dotFile, "dot", "", "output DOT graph file (optional)")

	return cmd
}

// parseSources parses every C translation unit in the configured source
// directory and resolves their dependency edges.
func parseSources(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) ([]*model.Unit, error) {
	p := parser.New(tel.Logger)
	units, err := p.ParseProject(ctx, cfg.Project.SourceDir)
	if err != nil {
		return nil, err
	}
	tel.Logger.WithField("units", len(units)).Info("parsed source directory")
	return units, nil
}
