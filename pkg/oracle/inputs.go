package oracle

import (
	"math"
	"math/rand"
	"regexp"

	"github.com/portcheck/portcheck/pkg/model"
)

// boundaryValues returns the boundary inputs for a scalar type: the type's
// extrema plus a small spread around zero.
func boundaryValues(t model.CType) []model.Value {
	switch t {
	case model.CTypeInt:
		return intValues(math.MinInt32, -1000, -1, 0, 1, 1000, math.MaxInt32)
	case model.CTypeLong:
		return intValues(math.MinInt64, -1000, -1, 0, 1, 1000, math.MaxInt64)
	case model.CTypeShort:
		return intValues(math.MinInt16, -100, -1, 0, 1, 100, math.MaxInt16)
	case model.CTypeChar:
		return intValues(math.MinInt8, -1, 0, 1, math.MaxInt8)
	case model.CTypeUnsignedInt:
		return uintValues(0, 1, 1000, math.MaxUint32)
	case model.CTypeUnsignedLong:
		return uintValues(0, 1, 1000, math.MaxUint64)
	case model.CTypeUnsignedShort:
		return uintValues(0, 1, 100, math.MaxUint16)
	case model.CTypeUnsignedChar:
		return uintValues(0, 1, math.MaxUint8)
	case model.CTypeFloat:
		return floatValues(32, -math.MaxFloat32, -1.5, -1, 0, 1, 1.5, math.MaxFloat32)
	case model.CTypeDouble:
		return floatValues(64, -math.MaxFloat64, -1.5, -1, 0, 1, 1.5, math.MaxFloat64)
	}
	return nil
}

// minValue and maxValue return the extremes used for all-min / all-max
// combination cases.
func minValue(t model.CType) model.Value {
	vals := boundaryValues(t)
	if len(vals) == 0 {
		return defaultScalar(t)
	}
	return vals[0]
}

func maxValue(t model.CType) model.Value {
	vals := boundaryValues(t)
	if len(vals) == 0 {
		return defaultScalar(t)
	}
	return vals[len(vals)-1]
}

// floatEdgeValues returns the special floating-point inputs used by the edge
// strategy. NaN is deliberately absent: a NaN input makes every comparison
// vacuous because both sides agree on NaN by rule.
func floatEdgeValues(t model.CType) []model.Value {
	if t == model.CTypeFloat {
		return []model.Value{
			model.Float32Value(math.Inf(1)),
			model.Float32Value(math.Inf(-1)),
			model.Float32Value(math.Copysign(0, -1)),
		}
	}
	return []model.Value{
		model.FloatValue(math.Inf(1)),
		model.FloatValue(math.Inf(-1)),
		model.FloatValue(math.Copysign(0, -1)),
	}
}

// defaultScalar returns the neutral value used for parameters not being
// varied: zero for numeric types.
func defaultScalar(t model.CType) model.Value {
	switch {
	case t.IsFloat():
		if t == model.CTypeFloat {
			return model.Float32Value(0)
		}
		return model.FloatValue(0)
	case t.IsUnsigned():
		return model.UintValue(0)
	}
	return model.IntValue(0)
}

// defaultValue returns the neutral value for a parameter: zero for scalars,
// a single zero element for pointers and arrays.
func defaultValue(p model.Param) model.Value {
	if p.IsPointer() || p.IsArray {
		return model.ArrayValue(defaultScalar(p.Type))
	}
	return defaultScalar(p.Type)
}

// randomValue draws a type-appropriate pseudo-random value.
func randomValue(rng *rand.Rand, p model.Param) model.Value {
	if p.IsPointer() || p.IsArray {
		n := 1 + rng.Intn(4)
		elems := make([]model.Value, n)
		for i := range elems {
			elems[i] = randomScalar(rng, p.Type)
		}
		return model.ArrayValue(elems...)
	}
	return randomScalar(rng, p.Type)
}

func randomScalar(rng *rand.Rand, t model.CType) model.Value {
	switch t {
	case model.CTypeInt:
		return model.IntValue(int64(int32(rng.Uint64())))
	case model.CTypeLong:
		return model.IntValue(int64(rng.Uint64()))
	case model.CTypeShort:
		return model.IntValue(int64(int16(rng.Uint64())))
	case model.CTypeChar:
		return model.IntValue(int64(int8(rng.Uint64())))
	case model.CTypeUnsignedInt:
		return model.UintValue(uint64(rng.Uint32()))
	case model.CTypeUnsignedLong:
		return model.UintValue(rng.Uint64())
	case model.CTypeUnsignedShort:
		return model.UintValue(uint64(uint16(rng.Uint64())))
	case model.CTypeUnsignedChar:
		return model.UintValue(uint64(uint8(rng.Uint64())))
	case model.CTypeFloat:
		return model.Float32Value(float64(float32((rng.Float64() - 0.5) * 2e6)))
	case model.CTypeDouble:
		return model.FloatValue((rng.Float64() - 0.5) * 2e12)
	}
	return model.IntValue(int64(int32(rng.Uint64())))
}

// divisorPattern matches a parameter name used directly after a division or
// modulo operator.
var divisorPattern = regexp.MustCompile(`[/%]\s*([A-Za-z_][A-Za-z0-9_]*)`)

// divisorParams returns the names of parameters that appear as a divisor in
// the function body. A zero input for such a parameter exercises the
// division-by-zero behavior of both toolchains.
func divisorParams(fn *model.Function) map[string]bool {
	out := make(map[string]bool)
	if fn.Body == "" {
		return out
	}
	names := make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		if !p.IsPointer() && !p.IsArray {
			names[p.Name] = true
		}
	}
	for _, m := range divisorPattern.FindAllStringSubmatch(fn.Body, -1) {
		if names[m[1]] {
			out[m[1]] = true
		}
	}
	return out
}

func intValues(vs ...int64) []model.Value {
	out := make([]model.Value, len(vs))
	for i, v := range vs {
		out[i] = model.IntValue(v)
	}
	return out
}

func uintValues(vs ...uint64) []model.Value {
	out := make([]model.Value, len(vs))
	for i, v := range vs {
		out[i] = model.UintValue(v)
	}
	return out
}

func floatValues(width int, vs ...float64) []model.Value {
	out := make([]model.Value, len(vs))
	for i, v := range vs {
		if width == 32 {
			out[i] = model.Float32Value(v)
		} else {
			out[i] = model.FloatValue(v)
		}
	}
	return out
}
