// Package report renders migration run reports for the CLI: a human-readable
// text summary, or machine-readable JSON and YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/orchestrator"
)

// Format selects the rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Render writes the report to w in the given format.
func Render(w io.Writer, rep *orchestrator.Report, format Format) error {
	switch format {
	case FormatJSON:
		return RenderJSON(w, rep)
	case FormatYAML:
		return RenderYAML(w, rep)
	case FormatText, "":
		return RenderText(w, rep)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// RenderJSON writes the report as indented JSON.
func RenderJSON(w io.Writer, rep *orchestrator.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// RenderYAML writes the report as YAML.
func RenderYAML(w io.Writer, rep *orchestrator.Report) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(rep)
}

// RenderText writes a human-readable summary: a header, a per-unit table and
// the totals line.
func RenderText(w io.Writer, rep *orchestrator.Report) error {
	fmt.Fprintf(w, "Migration run %s (%s)\n", rep.RunID, rep.Project)
	fmt.Fprintf(w, "Status: %s  Duration: %s\n", rep.Status, rep.Duration.Round(1e6))
	if len(rep.SeveredEdges) > 0 {
		edges := make([]string, len(rep.SeveredEdges))
		for i, e := range rep.SeveredEdges {
			edges[i] = e[0] + " -> " + e[1]
		}
		fmt.Fprintf(w, "Severed cyclic edges: %s\n", strings.Join(edges, ", "))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tSTATUS\tATTEMPTS\tCASES\tDETAIL")
	for _, u := range rep.Units {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			u.UnitID, statusLabel(u.Status), u.Attempts, caseSummary(u), detail(u))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d units: %d converted, %d failed, %d skipped\n",
		rep.Total, rep.Converted, rep.Failed, rep.Skipped)
	return nil
}

func statusLabel(s model.ConversionStatus) string {
	return strings.ToUpper(string(s))
}

// caseSummary shows the final attempt's pass/fail counts.
func caseSummary(u orchestrator.UnitReport) string {
	if len(u.Verdicts) == 0 {
		return "-"
	}
	last := u.Verdicts[len(u.Verdicts)-1]
	return fmt.Sprintf("%d/%d", last.Passed, last.Passed+last.Failed)
}

func detail(u orchestrator.UnitReport) string {
	if u.Error == "" {
		return ""
	}
	msg := u.Error
	if len(msg) > 80 {
		msg = msg[:77] + "..."
	}
	return msg
}
