// Package convert produces C# translations of C translation units. The
// engine treats the converter as an external collaborator behind the
// Generator interface; the implementations here shell out to a command or
// call an OpenAI-compatible chat completion API.
package convert

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/portcheck/portcheck/pkg/executor"
	"github.com/portcheck/portcheck/pkg/model"
)

// Feedback carries the failure evidence from a rejected attempt back into the
// next conversion request.
type Feedback struct {
	// Attempt is the attempt number that failed.
	Attempt int

	// CompileLog holds the target compiler output when the attempt failed
	// to compile.
	CompileLog string

	// Verdict holds the differential verdict when the attempt compiled
	// but produced mismatches.
	Verdict *model.UnitVerdict
}

// Empty reports whether there is any evidence to feed back.
func (f *Feedback) Empty() bool {
	return f == nil || (f.CompileLog == "" && f.Verdict == nil)
}

// Generator converts one translation unit to C#. Implementations must emit a
// single compilable source file declaring a public static class named after
// the unit, with one public static method per non-static C function, keeping
// the C function names.
type Generator interface {
	// Name identifies the generator in logs and metrics.
	Name() string

	// Convert translates the unit. deps maps already-converted dependency
	// unit IDs to their C# sources, provided as context. feedback is nil
	// on the first attempt.
	Convert(ctx context.Context, unit *model.Unit, deps map[string]string, feedback *Feedback) (string, error)
}

// buildPrompt renders the conversion request shared by the generator
// implementations.
func buildPrompt(unit *model.Unit, deps map[string]string, feedback *Feedback) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Convert the following C translation unit to C#.\n\n")
	fmt.Fprintf(&b, "Requirements:\n")
	fmt.Fprintf(&b, "- Emit exactly one C# source file, no explanations and no markdown fences.\n")
	fmt.Fprintf(&b, "- Declare: public static class %s\n", executor.ClassName(unit.ID))
	fmt.Fprintf(&b, "- Every non-static C function becomes a public static method with the same name.\n")
	fmt.Fprintf(&b, "- Do not declare a Main method.\n")
	fmt.Fprintf(&b, "- Map C types as follows: int->int, long->long, short->short, char->sbyte, ")
	fmt.Fprintf(&b, "unsigned int->uint, unsigned long->ulong, unsigned short->ushort, ")
	fmt.Fprintf(&b, "unsigned char->byte, float->float, double->double, pointer or array parameters->arrays.\n")
	fmt.Fprintf(&b, "- Preserve C semantics exactly, including integer overflow (use unchecked arithmetic) ")
	fmt.Fprintf(&b, "and IEEE 754 floating-point behavior.\n")

	if len(deps) > 0 {
		fmt.Fprintf(&b, "\nAlready-converted dependencies (call these classes, do not re-emit them):\n")
		// Sorted so identical inputs always render the identical prompt.
		ids := make([]string, 0, len(deps))
		for id := range deps {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "\n// dependency %s\n%s\n", id, deps[id])
		}
	}

	fmt.Fprintf(&b, "\nC source (%s.c):\n%s\n", unit.ID, unit.Source)

	if !feedback.Empty() {
		fmt.Fprintf(&b, "\nA previous conversion (attempt %d) was rejected. Fix the issues below.\n", feedback.Attempt)
		if feedback.CompileLog != "" {
			fmt.Fprintf(&b, "\nC# compiler output:\n%s\n", feedback.CompileLog)
		}
		if feedback.Verdict != nil {
			fmt.Fprintf(&b, "\nDifferential test failures (%d of %d cases):\n",
				feedback.Verdict.Failed, feedback.Verdict.Passed+feedback.Verdict.Failed)
			for _, cv := range feedback.Verdict.FailedCases() {
				fmt.Fprintf(&b, "- case %s (function %s):\n", cv.Name, cv.Function)
				for _, d := range cv.Differences {
					fmt.Fprintf(&b, "    %s\n", d.String())
				}
			}
		}
	}
	return b.String()
}

// stripFences removes a markdown code fence if the generator wrapped its
// output in one anyway.
func stripFences(src string) string {
	trimmed := strings.TrimSpace(src)
	if !strings.HasPrefix(trimmed, "```") {
		return src
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return src
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
