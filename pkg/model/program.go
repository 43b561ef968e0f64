// Package model provides the core types shared by the portcheck migration
// engine: the normalized program model produced by the source parser, test
// cases and suites, execution results, and validation verdicts.
package model

import (
	"time"
)

// CType identifies a C scalar type as declared in a function signature.
// The harness generators and the oracle dispatch on this name.
type CType string

const (
	CTypeInt           CType = "int"
	CTypeLong          CType = "long"
	CTypeShort         CType = "short"
	CTypeChar          CType = "char"
	CTypeUnsignedInt   CType = "unsigned int"
	CTypeUnsignedLong  CType = "unsigned long"
	CTypeUnsignedShort CType = "unsigned short"
	CTypeUnsignedChar  CType = "unsigned char"
	CTypeFloat         CType = "float"
	CTypeDouble        CType = "double"
	CTypeVoid          CType = "void"
)

// IsUnsigned reports whether the type is an unsigned integer type.
func (t CType) IsUnsigned() bool {
	switch t {
	case CTypeUnsignedInt, CTypeUnsignedLong, CTypeUnsignedShort, CTypeUnsignedChar:
		return true
	}
	return false
}

// IsInteger reports whether the type is any integer type (signed or unsigned).
func (t CType) IsInteger() bool {
	switch t {
	case CTypeInt, CTypeLong, CTypeShort, CTypeChar,
		CTypeUnsignedInt, CTypeUnsignedLong, CTypeUnsignedShort, CTypeUnsignedChar:
		return true
	}
	return false
}

// IsFloat reports whether the type is a floating-point type.
func (t CType) IsFloat() bool {
	return t == CTypeFloat || t == CTypeDouble
}

// Param represents one parameter in a function signature.
type Param struct {
	// Name is the parameter name as declared.
	Name string `json:"name"`

	// Type is the base C type with pointer stars stripped.
	Type CType `json:"type"`

	// PointerLevel is the number of pointer indirections (0 for values).
	PointerLevel int `json:"pointer_level,omitempty"`

	// IsArray indicates the parameter was declared with array syntax.
	IsArray bool `json:"is_array,omitempty"`
}

// IsPointer reports whether the parameter is passed by pointer.
func (p Param) IsPointer() bool {
	return p.PointerLevel > 0
}

// Function represents one function declared in a translation unit.
type Function struct {
	// Name is the function name.
	Name string `json:"name"`

	// ReturnType is the declared return type.
	ReturnType CType `json:"return_type"`

	// Params is the ordered parameter list.
	Params []Param `json:"params,omitempty"`

	// Body is the full function text, used for edge-case detection
	// (e.g. spotting parameters used as divisors).
	Body string `json:"body,omitempty"`

	// CalledFunctions lists the names of functions called in the body.
	CalledFunctions []string `json:"called_functions,omitempty"`

	// IsStatic marks file-local functions, which are not tested across
	// the migration boundary.
	IsStatic bool `json:"is_static,omitempty"`

	// LineStart and LineEnd locate the definition in the source file.
	LineStart int `json:"line_start,omitempty"`
	LineEnd   int `json:"line_end,omitempty"`
}

// StructField represents one member of a struct definition.
type StructField struct {
	Name         string `json:"name"`
	Type         CType  `json:"type"`
	PointerLevel int    `json:"pointer_level,omitempty"`
}

// Struct represents a struct declared in a translation unit.
type Struct struct {
	Name      string        `json:"name"`
	Fields    []StructField `json:"fields,omitempty"`
	IsTypedef bool          `json:"is_typedef,omitempty"`
}

// Enum represents an enum declared in a translation unit.
type Enum struct {
	Name   string         `json:"name"`
	Values map[string]int `json:"values,omitempty"`
}

// Constant represents a #define constant.
type Constant struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Include represents one #include directive.
type Include struct {
	// File is the included file name as written in the directive.
	File string `json:"file"`

	// System distinguishes <...> system headers from "..." user headers.
	// Only user headers contribute dependency edges.
	System bool `json:"system"`
}

// Unit is the normalized program model for one translation unit.
// Units are immutable once parsed; the orchestrator tracks conversion
// state separately.
type Unit struct {
	// ID is the unit identifier, the source file name without extension.
	ID string `json:"id"`

	// Path is the source file path the unit was parsed from.
	Path string `json:"path"`

	// Source is the full original source text.
	Source string `json:"source,omitempty"`

	// Functions, Structs, Enums and Constants are the declared entities.
	Functions []Function `json:"functions,omitempty"`
	Structs   []Struct   `json:"structs,omitempty"`
	Enums     []Enum     `json:"enums,omitempty"`
	Constants []Constant `json:"constants,omitempty"`

	// Includes are the raw include directives.
	Includes []Include `json:"includes,omitempty"`

	// Dependencies are the resolved unit IDs this unit depends on.
	Dependencies []string `json:"dependencies,omitempty"`

	// ParsedAt is when the unit was parsed.
	ParsedAt time.Time `json:"parsed_at"`
}

// FunctionByName returns the declared function with the given name, or nil.
func (u *Unit) FunctionByName(name string) *Function {
	for i := range u.Functions {
		if u.Functions[i].Name == name {
			return &u.Functions[i]
		}
	}
	return nil
}

// TestableFunctions returns the functions eligible for differential testing:
// non-static functions other than main.
func (u *Unit) TestableFunctions() []Function {
	out := make([]Function, 0, len(u.Functions))
	for _, fn := range u.Functions {
		if fn.IsStatic || fn.Name == "main" {
			continue
		}
		out = append(out, fn)
	}
	return out
}

// FunctionNames returns the names of all declared functions.
func (u *Unit) FunctionNames() []string {
	names := make([]string, len(u.Functions))
	for i, fn := range u.Functions {
		names[i] = fn.Name
	}
	return names
}
