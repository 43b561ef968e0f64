package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind tags a Value with its declared type category. Comparison in the
// validator dispatches on this tag rather than on runtime inspection.
type ValueKind string

const (
	// KindInt is a signed integer value.
	KindInt ValueKind = "int"

	// KindUint is an unsigned integer value.
	KindUint ValueKind = "uint"

	// KindFloat is a floating-point value; Width distinguishes single
	// from double precision for tolerance selection.
	KindFloat ValueKind = "float"

	// KindBool is a boolean value.
	KindBool ValueKind = "bool"

	// KindString is a string value.
	KindString ValueKind = "string"

	// KindNull is a null pointer.
	KindNull ValueKind = "null"

	// KindArray is an ordered sequence of values of one element kind.
	KindArray ValueKind = "array"
)

// Value is a typed value exchanged between the oracle, the harnesses and the
// validator. Exactly one payload field is meaningful for a given Kind.
type Value struct {
	Kind ValueKind `json:"kind"`

	// Width is the bit width for KindFloat (32 or 64). Zero means 64.
	Width int `json:"width,omitempty"`

	Int   int64   `json:"int,omitempty"`
	Uint  uint64  `json:"uint,omitempty"`
	Float float64 `json:"float,omitempty"`
	Bool  bool    `json:"bool,omitempty"`
	Str   string  `json:"str,omitempty"`

	// Elems holds the elements for KindArray.
	Elems []Value `json:"elems,omitempty"`
}

// IntValue constructs a signed integer value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// UintValue constructs an unsigned integer value.
func UintValue(v uint64) Value { return Value{Kind: KindUint, Uint: v} }

// FloatValue constructs a double-precision value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Width: 64, Float: v} }

// Float32Value constructs a single-precision value.
func Float32Value(v float64) Value { return Value{Kind: KindFloat, Width: 32, Float: v} }

// BoolValue constructs a boolean value.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// StringValue constructs a string value.
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// NullValue constructs a null pointer value.
func NullValue() Value { return Value{Kind: KindNull} }

// ArrayValue constructs an array value from the given elements.
func ArrayValue(elems ...Value) Value { return Value{Kind: KindArray, Elems: elems} }

// IsNumeric reports whether the value carries a numeric payload.
func (v Value) IsNumeric() bool {
	return v.Kind == KindInt || v.Kind == KindUint || v.Kind == KindFloat
}

// AsFloat returns the value as a float64 for numeric kinds.
func (v Value) AsFloat() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.Int)
	case KindUint:
		return float64(v.Uint)
	case KindFloat:
		return v.Float
	}
	return 0
}

// String renders the value in the wire format used by the test harnesses:
// plain decimal for integers, %g-style for floats with nan/inf spelled out,
// "null" for null pointers, and brace-wrapped comma-joined elements for
// arrays.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindUint:
		return strconv.FormatUint(v.Uint, 10)
	case KindFloat:
		return FormatFloat(v.Float)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindString:
		return v.Str
	case KindNull:
		return "null"
	case KindArray:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.String()
		}
		return "{" + strings.Join(parts, ";") + "}"
	}
	return ""
}

// FormatFloat renders a float in the harness wire format.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', 17, 64)
}

// ParseValue parses a harness output token into a Value of the kind implied
// by the declared parameter or return type.
func ParseValue(token string, typ CType, pointer bool) (Value, error) {
	token = strings.TrimSpace(token)
	if pointer && token == "null" {
		return NullValue(), nil
	}
	switch {
	case typ.IsFloat():
		f, err := parseFloatToken(token)
		if err != nil {
			return Value{}, err
		}
		if typ == CTypeFloat {
			return Float32Value(f), nil
		}
		return FloatValue(f), nil
	case typ.IsUnsigned():
		u, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as %s: %w", token, typ, err)
		}
		return UintValue(u), nil
	case typ.IsInteger():
		i, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as %s: %w", token, typ, err)
		}
		return IntValue(i), nil
	}
	return StringValue(token), nil
}

func parseFloatToken(token string) (float64, error) {
	switch strings.ToLower(token) {
	case "nan", "-nan":
		return math.NaN(), nil
	case "inf", "+inf", "infinity":
		return math.Inf(1), nil
	case "-inf", "-infinity":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q as float: %w", token, err)
	}
	return f, nil
}

// KindForType returns the value kind used for a declared C type.
func KindForType(typ CType, pointer bool) ValueKind {
	switch {
	case pointer:
		return KindNull
	case typ.IsFloat():
		return KindFloat
	case typ.IsUnsigned():
		return KindUint
	case typ.IsInteger():
		return KindInt
	}
	return KindString
}
