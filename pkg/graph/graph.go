// Package graph maintains the dependency graph over translation units and
// answers the ordering questions the orchestrator asks: cycle detection,
// deterministic topological order, and the set of units whose dependencies
// have all been converted.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/portcheck/portcheck/pkg/model"
)

// CyclicDependencyError reports one or more dependency cycles. Each cycle is
// listed with its start node repeated at the end.
type CyclicDependencyError struct {
	Cycles [][]string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, cycle := range e.Cycles {
		parts[i] = formatCycle(cycle)
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(parts, "; "))
}

// Graph is the dependency graph over translation units. Edges point from a
// unit to the units it depends on; a unit is ready when every unit it points
// at has been converted.
//
// Graph is not safe for concurrent use. The orchestrator owns it and is the
// only caller of MarkConverted.
type Graph struct {
	// nodes maps unit IDs to their declared dependency IDs.
	nodes map[string][]string

	// dependents maps unit IDs to the units that depend on them.
	dependents map[string][]string

	// converted records the units marked as converted.
	converted map[string]bool
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[string][]string),
		dependents: make(map[string][]string),
		converted:  make(map[string]bool),
	}
}

// AddUnit registers a unit and its dependencies. Dependencies on unknown
// units are permitted until Validate; self-dependencies and duplicate IDs are
// rejected immediately.
func (g *Graph) AddUnit(id string, deps []string) error {
	if id == "" {
		return model.NewError(model.ErrKindInternal, "unit has empty ID", nil)
	}
	if _, exists := g.nodes[id]; exists {
		return model.NewError(model.ErrKindInternal,
			fmt.Sprintf("duplicate unit ID: %s", id), nil)
	}
	for _, dep := range deps {
		if dep == id {
			return model.NewError(model.ErrKindCycle,
				fmt.Sprintf("unit %s depends on itself", id), nil).WithUnit(id)
		}
	}
	g.nodes[id] = append([]string(nil), deps...)
	for _, dep := range deps {
		g.dependents[dep] = append(g.dependents[dep], id)
	}
	return nil
}

// Validate checks that every declared dependency resolves to a registered
// unit.
func (g *Graph) Validate() error {
	for id, deps := range g.nodes {
		for _, dep := range deps {
			if _, exists := g.nodes[dep]; !exists {
				return model.NewError(model.ErrKindInternal,
					fmt.Sprintf("unit %s depends on unknown unit %s", id, dep), nil).
					WithUnit(id)
			}
		}
	}
	return nil
}

// Units returns the registered unit IDs in sorted order.
func (g *Graph) Units() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependencies returns the declared dependencies of a unit.
func (g *Graph) Dependencies(id string) []string {
	return g.nodes[id]
}

// Dependents returns the units that depend on the given unit.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// DetectCycles finds all dependency cycles using depth-first search with a
// recursion stack. Returns nil when the graph is acyclic. Nodes are visited
// in sorted order so repeated calls report cycles identically.
func (g *Graph) DetectCycles() [][]string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var cycles [][]string

	var visit func(id string, path []string)
	visit = func(id string, path []string) {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		deps := append([]string(nil), g.nodes[id]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, known := g.nodes[dep]; !known {
				continue
			}
			if !visited[dep] {
				visit(dep, path)
			} else if onStack[dep] {
				start := -1
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				if start >= 0 {
					cycle := append(append([]string(nil), path[start:]...), dep)
					cycles = append(cycles, cycle)
				}
			}
		}

		onStack[id] = false
	}

	for _, id := range g.Units() {
		if !visited[id] {
			visit(id, nil)
		}
	}
	return cycles
}

// TopologicalOrder returns a dependency-respecting conversion order using
// Kahn's algorithm. The zero-in-degree queue is kept sorted, so the order is
// deterministic for a given edge set. Returns *CyclicDependencyError when
// the graph contains cycles.
func (g *Graph) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for id, deps := range g.nodes {
		count := 0
		for _, dep := range deps {
			if _, known := g.nodes[dep]; known {
				count++
			}
		}
		inDegree[id] = count
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, dependent := range g.dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(g.nodes) {
		cycles := g.DetectCycles()
		if len(cycles) == 0 {
			return nil, model.NewError(model.ErrKindInternal,
				"topological sort incomplete without detectable cycle", nil)
		}
		return nil, &CyclicDependencyError{Cycles: cycles}
	}
	return order, nil
}

// ReadySet returns the units that are not converted but whose dependencies
// all are, in sorted order. Units in a terminal non-converted state are
// excluded via the statuses map.
func (g *Graph) ReadySet(statuses map[string]model.ConversionStatus) []string {
	var ready []string
	for id, deps := range g.nodes {
		if g.converted[id] {
			continue
		}
		if st, ok := statuses[id]; ok && st.IsTerminal() {
			continue
		}
		ok := true
		for _, dep := range deps {
			if !g.converted[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// MarkConverted records a unit as converted, unlocking its dependents. This
// is the only mutation after construction.
func (g *Graph) MarkConverted(id string) error {
	if _, exists := g.nodes[id]; !exists {
		return model.NewError(model.ErrKindInternal,
			fmt.Sprintf("unknown unit: %s", id), nil)
	}
	g.converted[id] = true
	return nil
}

// Converted reports whether the unit has been marked converted.
func (g *Graph) Converted(id string) bool {
	return g.converted[id]
}

// SeverCycles removes one back edge per detected cycle and returns the
// removed edges as [from, to] pairs. Used when the cycle policy is "sever";
// the caller is expected to warn about each removed edge.
func (g *Graph) SeverCycles() [][2]string {
	var removed [][2]string
	for {
		cycles := g.DetectCycles()
		if len(cycles) == 0 {
			return removed
		}
		// Drop the cycle's closing edge: last node depends on the first.
		cycle := cycles[0]
		from := cycle[len(cycle)-2]
		to := cycle[len(cycle)-1]
		g.removeEdge(from, to)
		removed = append(removed, [2]string{from, to})
	}
}

func (g *Graph) removeEdge(from, to string) {
	deps := g.nodes[from]
	for i, dep := range deps {
		if dep == to {
			g.nodes[from] = append(deps[:i:i], deps[i+1:]...)
			break
		}
	}
	dependents := g.dependents[to]
	for i, d := range dependents {
		if d == from {
			g.dependents[to] = append(dependents[:i:i], dependents[i+1:]...)
			break
		}
	}
}

// ToDOT generates a DOT format representation of the graph for visualization.
// Converted units are filled green.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph DependencyGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, id := range g.Units() {
		if g.converted[id] {
			sb.WriteString(fmt.Sprintf("  \"%s\" [fillcolor=\"lightgreen\", style=\"filled,rounded\"];\n", id))
		} else {
			sb.WriteString(fmt.Sprintf("  \"%s\";\n", id))
		}
	}
	sb.WriteString("\n")

	for _, id := range g.Units() {
		deps := append([]string(nil), g.nodes[id]...)
		sort.Strings(deps)
		for _, dep := range deps {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", id, dep))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}
