// Package oracle generates test suites for functions under migration. Inputs
// come from three strategies: boundary values at type extrema, structural
// edge cases (null pointers, zero divisors, float specials), and seeded
// pseudo-random values. Generation is deterministic for a given signature,
// strategy list, and seed.
package oracle

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

// Options controls suite generation.
type Options struct {
	// Strategies selects the generation strategies, applied in order.
	Strategies []model.TestCategory

	// Seed seeds the random strategy. The same seed yields the same
	// suite for the same unit.
	Seed int64

	// RandomCount is the number of random cases per function.
	RandomCount int

	// MaxTestsPerFunction caps the cases generated per function; the
	// earliest-generated cases are kept.
	MaxTestsPerFunction int
}

// DefaultOptions returns the standard generation options: all strategies,
// five random cases, at most forty cases per function.
func DefaultOptions() Options {
	return Options{
		Strategies: []model.TestCategory{
			model.CategoryBoundary,
			model.CategoryEdge,
			model.CategoryRandom,
		},
		Seed:                42,
		RandomCount:         5,
		MaxTestsPerFunction: 40,
	}
}

// Generator produces test suites from translation units.
type Generator struct {
	opts Options
	log  *telemetry.Logger
}

// NewGenerator creates a generator with the given options.
func NewGenerator(opts Options, log *telemetry.Logger) *Generator {
	if opts.RandomCount <= 0 {
		opts.RandomCount = DefaultOptions().RandomCount
	}
	if opts.MaxTestsPerFunction <= 0 {
		opts.MaxTestsPerFunction = DefaultOptions().MaxTestsPerFunction
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultOptions().Strategies
	}
	return &Generator{
		opts: opts,
		log:  log.NewComponentLogger("oracle"),
	}
}

// GenerateSuite generates the frozen test suite for a translation unit,
// covering every testable function.
func (g *Generator) GenerateSuite(unit *model.Unit) (*model.Suite, error) {
	suite := &model.Suite{
		UnitID: unit.ID,
		Seed:   g.opts.Seed,
	}
	for i := range unit.Functions {
		fn := &unit.Functions[i]
		if fn.IsStatic || fn.Name == "main" {
			continue
		}
		if err := g.generateFunction(suite, fn); err != nil {
			return nil, err
		}
	}
	suite.Freeze()
	g.log.WithUnitID(unit.ID).Debugf("generated %d test cases", len(suite.Cases))
	return suite, nil
}

// generateFunction appends the cases for one function to the suite.
func (g *Generator) generateFunction(suite *model.Suite, fn *model.Function) error {
	added := 0
	counters := make(map[model.TestCategory]int)

	add := func(category model.TestCategory, inputs map[string]model.Value) {
		if added >= g.opts.MaxTestsPerFunction {
			return
		}
		idx := counters[category]
		counters[category]++
		name := fmt.Sprintf("%s_%s_%d", fn.Name, category, idx)
		suite.Add(model.TestCase{
			ID:       name,
			Name:     name,
			Function: fn.Name,
			Category: category,
			Inputs:   inputs,
		})
		added++
	}

	for _, strategy := range g.opts.Strategies {
		switch strategy {
		case model.CategoryBoundary:
			g.generateBoundary(fn, add)
		case model.CategoryEdge:
			g.generateEdge(fn, add)
		case model.CategoryRandom:
			g.generateRandom(fn, add)
		default:
			return model.NewError(model.ErrKindGeneration,
				fmt.Sprintf("unknown strategy: %s", strategy), nil)
		}
	}
	return nil
}

type addFunc func(category model.TestCategory, inputs map[string]model.Value)

// generateBoundary emits boundary cases. Functions with at most two scalar
// parameters get the full cartesian product of their boundary lists;
// wider signatures vary one parameter at a time against neutral defaults,
// plus all-minimum and all-maximum combinations.
func (g *Generator) generateBoundary(fn *model.Function, add addFunc) {
	if len(fn.Params) == 0 {
		add(model.CategoryBoundary, map[string]model.Value{})
		return
	}

	scalars := scalarParams(fn)
	if len(scalars) > 0 && len(scalars) <= 2 {
		g.boundaryProduct(fn, scalars, add)
	} else {
		for _, p := range scalars {
			for _, v := range boundaryValues(p.Type) {
				inputs := defaultInputs(fn)
				inputs[p.Name] = v
				add(model.CategoryBoundary, inputs)
			}
		}
	}

	if len(scalars) > 1 {
		mins := defaultInputs(fn)
		maxs := defaultInputs(fn)
		for _, p := range scalars {
			mins[p.Name] = minValue(p.Type)
			maxs[p.Name] = maxValue(p.Type)
		}
		add(model.CategoryBoundary, mins)
		add(model.CategoryBoundary, maxs)
	}
}

// boundaryProduct emits the cartesian product of the boundary values of the
// given scalar parameters, with pointer parameters held at their defaults.
func (g *Generator) boundaryProduct(fn *model.Function, scalars []model.Param, add addFunc) {
	if len(scalars) == 1 {
		p := scalars[0]
		for _, v := range boundaryValues(p.Type) {
			inputs := defaultInputs(fn)
			inputs[p.Name] = v
			add(model.CategoryBoundary, inputs)
		}
		return
	}
	a, b := scalars[0], scalars[1]
	for _, va := range boundaryValues(a.Type) {
		for _, vb := range boundaryValues(b.Type) {
			inputs := defaultInputs(fn)
			inputs[a.Name] = va
			inputs[b.Name] = vb
			add(model.CategoryBoundary, inputs)
		}
	}
}

// generateEdge emits structurally detected edge cases: null pointers, zero
// divisors, float specials, empty and single-element arrays, and unsigned
// zero against non-zero companions.
func (g *Generator) generateEdge(fn *model.Function, add addFunc) {
	divisors := divisorParams(fn)

	for _, p := range fn.Params {
		switch {
		case p.IsPointer() && !p.IsArray:
			inputs := defaultInputs(fn)
			inputs[p.Name] = model.NullValue()
			add(model.CategoryEdge, inputs)

			empty := defaultInputs(fn)
			empty[p.Name] = model.ArrayValue()
			add(model.CategoryEdge, empty)

		case p.IsArray:
			empty := defaultInputs(fn)
			empty[p.Name] = model.ArrayValue()
			add(model.CategoryEdge, empty)

			single := defaultInputs(fn)
			single[p.Name] = model.ArrayValue(maxValue(p.Type))
			add(model.CategoryEdge, single)

		case p.Type.IsFloat():
			for _, v := range floatEdgeValues(p.Type) {
				inputs := defaultInputs(fn)
				inputs[p.Name] = v
				add(model.CategoryEdge, inputs)
			}

		case p.Type.IsUnsigned():
			inputs := oneInputs(fn)
			inputs[p.Name] = model.UintValue(0)
			add(model.CategoryEdge, inputs)
		}

		if divisors[p.Name] {
			// Zero divisor with non-zero companions so the division is
			// actually reached.
			inputs := oneInputs(fn)
			inputs[p.Name] = defaultScalar(p.Type)
			add(model.CategoryEdge, inputs)
		}
	}
}

// generateRandom emits seeded pseudo-random cases. The stream is keyed by
// seed and function name so suites are stable regardless of unit ordering.
func (g *Generator) generateRandom(fn *model.Function, add addFunc) {
	rng := rand.New(rand.NewSource(g.opts.Seed ^ hashName(fn.Name)))
	for i := 0; i < g.opts.RandomCount; i++ {
		inputs := make(map[string]model.Value, len(fn.Params))
		for _, p := range fn.Params {
			inputs[p.Name] = randomValue(rng, p)
		}
		add(model.CategoryRandom, inputs)
	}
}

// scalarParams returns the non-pointer, non-array parameters.
func scalarParams(fn *model.Function) []model.Param {
	var out []model.Param
	for _, p := range fn.Params {
		if !p.IsPointer() && !p.IsArray {
			out = append(out, p)
		}
	}
	return out
}

// defaultInputs binds every parameter to its neutral value.
func defaultInputs(fn *model.Function) map[string]model.Value {
	inputs := make(map[string]model.Value, len(fn.Params))
	for _, p := range fn.Params {
		inputs[p.Name] = defaultValue(p)
	}
	return inputs
}

// oneInputs binds every scalar parameter to one and the rest to defaults.
func oneInputs(fn *model.Function) map[string]model.Value {
	inputs := make(map[string]model.Value, len(fn.Params))
	for _, p := range fn.Params {
		if p.IsPointer() || p.IsArray {
			inputs[p.Name] = defaultValue(p)
			continue
		}
		switch {
		case p.Type.IsFloat():
			if p.Type == model.CTypeFloat {
				inputs[p.Name] = model.Float32Value(1)
			} else {
				inputs[p.Name] = model.FloatValue(1)
			}
		case p.Type.IsUnsigned():
			inputs[p.Name] = model.UintValue(1)
		default:
			inputs[p.Name] = model.IntValue(1)
		}
	}
	return inputs
}

func hashName(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
