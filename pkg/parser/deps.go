package parser

import (
	"sort"
	"strings"

	"github.com/portcheck/portcheck/pkg/model"
)

// BuildEdges resolves each unit's dependencies in place. Two signals produce
// an edge from unit A to unit B:
//
//   - A includes B's user header ("b.h" for unit b), or
//   - a function in A calls a function that exactly one other unit defines.
//
// Calls to names defined by several units are ambiguous and contribute no
// edge; the include signal has to disambiguate those.
func BuildEdges(units []*model.Unit) {
	byID := make(map[string]*model.Unit, len(units))
	definers := make(map[string][]string)
	for _, u := range units {
		byID[u.ID] = u
		for _, fn := range u.Functions {
			if fn.IsStatic {
				continue
			}
			definers[fn.Name] = append(definers[fn.Name], u.ID)
		}
	}

	for _, u := range units {
		deps := make(map[string]bool)

		for _, inc := range u.Includes {
			if inc.System {
				continue
			}
			id := strings.TrimSuffix(inc.File, ".h")
			if id != u.ID && byID[id] != nil {
				deps[id] = true
			}
		}

		for _, fn := range u.Functions {
			for _, callee := range fn.CalledFunctions {
				owners := definers[callee]
				if len(owners) != 1 {
					continue
				}
				if owners[0] != u.ID {
					deps[owners[0]] = true
				}
			}
		}

		u.Dependencies = u.Dependencies[:0]
		for id := range deps {
			u.Dependencies = append(u.Dependencies, id)
		}
		sort.Strings(u.Dependencies)
	}
}
