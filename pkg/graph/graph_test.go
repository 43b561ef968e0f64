package graph

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/portcheck/portcheck/pkg/model"
)

func buildGraph(t *testing.T, units map[string][]string) *Graph {
	t.Helper()
	g := New()
	for id, deps := range units {
		if err := g.AddUnit(id, deps); err != nil {
			t.Fatalf("AddUnit(%s) failed: %v", id, err)
		}
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	return g
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	// utils has no dependencies; math_ops and string_ops depend on utils;
	// app depends on both.
	g := buildGraph(t, map[string][]string{
		"utils":      nil,
		"math_ops":   {"utils"},
		"string_ops": {"utils"},
		"app":        {"math_ops", "string_ops"},
	})

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder() failed: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 units in order, got %d: %v", len(order), order)
	}

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, id := range g.Units() {
		for _, dep := range g.Dependencies(id) {
			if pos[dep] >= pos[id] {
				t.Errorf("dependency %s of %s ordered at %d, after %d", dep, id, pos[dep], pos[id])
			}
		}
	}
}

func TestTopologicalOrderDeterministic(t *testing.T) {
	units := map[string][]string{
		"c": nil,
		"a": nil,
		"b": nil,
		"d": {"a", "b", "c"},
	}

	first, err := buildGraph(t, units).TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder() failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := buildGraph(t, units).TopologicalOrder()
		if err != nil {
			t.Fatalf("TopologicalOrder() failed: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("order not deterministic: %v vs %v", first, again)
		}
	}
	// Zero-in-degree ties break lexicographically.
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("expected order %v, got %v", want, first)
	}
}

func TestDetectCyclesReportsFullCycle(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})

	cycles := g.DetectCycles()
	if len(cycles) == 0 {
		t.Fatal("expected a cycle, got none")
	}
	cycle := cycles[0]
	if len(cycle) != 4 {
		t.Fatalf("expected cycle of length 4 (closed), got %v", cycle)
	}
	if cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("cycle not closed: %v", cycle)
	}
	seen := make(map[string]bool)
	for _, id := range cycle[:len(cycle)-1] {
		seen[id] = true
	}
	for _, id := range []string{"a", "b", "c"} {
		if !seen[id] {
			t.Errorf("cycle %v missing member %s", cycle, id)
		}
	}
}

func TestTopologicalOrderFailsOnCycle(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a": {"b"},
		"b": {"a"},
		"c": nil,
	})

	_, err := g.TopologicalOrder()
	if err == nil {
		t.Fatal("expected cycle error, got nil")
	}
	var cycErr *CyclicDependencyError
	if !errors.As(err, &cycErr) {
		t.Fatalf("expected *CyclicDependencyError, got %T: %v", err, err)
	}
	if len(cycErr.Cycles) == 0 {
		t.Error("cycle error carries no cycles")
	}
}

func TestAcyclicGraphHasNoCycles(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"utils":    nil,
		"math_ops": {"utils"},
		"app":      {"math_ops", "utils"},
	})
	if cycles := g.DetectCycles(); len(cycles) != 0 {
		t.Errorf("expected no cycles, got %v", cycles)
	}
}

func TestReadySetGrowsMonotonically(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"utils":      nil,
		"math_ops":   {"utils"},
		"string_ops": {"utils"},
		"app":        {"math_ops", "string_ops"},
	})
	statuses := map[string]model.ConversionStatus{}

	ready := g.ReadySet(statuses)
	if !reflect.DeepEqual(ready, []string{"utils"}) {
		t.Fatalf("initial ready set: got %v, want [utils]", ready)
	}

	if err := g.MarkConverted("utils"); err != nil {
		t.Fatalf("MarkConverted failed: %v", err)
	}
	ready = g.ReadySet(statuses)
	if !reflect.DeepEqual(ready, []string{"math_ops", "string_ops"}) {
		t.Fatalf("ready set after utils: got %v", ready)
	}

	if err := g.MarkConverted("math_ops"); err != nil {
		t.Fatalf("MarkConverted failed: %v", err)
	}
	ready = g.ReadySet(statuses)
	// string_ops stays ready even though math_ops converted.
	if !reflect.DeepEqual(ready, []string{"string_ops"}) {
		t.Fatalf("ready set after math_ops: got %v", ready)
	}

	if err := g.MarkConverted("string_ops"); err != nil {
		t.Fatalf("MarkConverted failed: %v", err)
	}
	ready = g.ReadySet(statuses)
	if !reflect.DeepEqual(ready, []string{"app"}) {
		t.Fatalf("ready set after both deps: got %v", ready)
	}
}

func TestReadySetExcludesTerminalUnits(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"utils": nil,
		"app":   {"utils"},
	})
	statuses := map[string]model.ConversionStatus{
		"utils": model.StatusFailed,
	}
	if ready := g.ReadySet(statuses); len(ready) != 0 {
		t.Errorf("failed unit still in ready set: %v", ready)
	}
}

func TestSelfDependencyRejected(t *testing.T) {
	g := New()
	err := g.AddUnit("loop", []string{"loop"})
	if err == nil {
		t.Fatal("expected error for self-dependency")
	}
	if model.KindOf(err) != model.ErrKindCycle {
		t.Errorf("expected cycle kind, got %s", model.KindOf(err))
	}
}

func TestDuplicateUnitRejected(t *testing.T) {
	g := New()
	if err := g.AddUnit("utils", nil); err != nil {
		t.Fatalf("first AddUnit failed: %v", err)
	}
	if err := g.AddUnit("utils", nil); err == nil {
		t.Fatal("expected error for duplicate unit ID")
	}
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	g := New()
	if err := g.AddUnit("app", []string{"ghost"}); err != nil {
		t.Fatalf("AddUnit failed: %v", err)
	}
	if err := g.Validate(); err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestSeverCyclesRemovesBackEdges(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"a": {"b"},
		"b": {"a"},
		"c": {"a"},
	})

	removed := g.SeverCycles()
	if len(removed) != 1 {
		t.Fatalf("expected 1 removed edge, got %v", removed)
	}
	if cycles := g.DetectCycles(); len(cycles) != 0 {
		t.Errorf("cycles remain after sever: %v", cycles)
	}
	if _, err := g.TopologicalOrder(); err != nil {
		t.Errorf("TopologicalOrder after sever failed: %v", err)
	}
}

func TestToDOTListsAllUnitsAndEdges(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"utils": nil,
		"app":   {"utils"},
	})
	if err := g.MarkConverted("utils"); err != nil {
		t.Fatalf("MarkConverted failed: %v", err)
	}

	dot := g.ToDOT()
	for _, want := range []string{"digraph", "\"app\"", "\"utils\"", "\"app\" -> \"utils\"", "lightgreen"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}
