package parser

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

func testParser(t *testing.T) *Parser {
	t.Helper()
	log, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	return New(log)
}

const mathSource = `#include <stdio.h>
#include "utils.h"

#define MAX_ITEMS 64

static int helper(int x) {
    return x * 2;
}

int add(int a, int b) {
    return a + b;
}

double divide(double num, double den) {
    return num / den;
}

unsigned long sum_array(const int *values, int n) {
    unsigned long total = 0;
    for (int i = 0; i < n; i++) {
        total += clamp(values[i]);
    }
    return total;
}

void scale(double values[], int n, double factor) {
    for (int i = 0; i < n; i++) {
        values[i] = values[i] * factor;
    }
}
`

func parseSource(t *testing.T, src, path string) *model.Unit {
	t.Helper()
	unit, err := testParser(t).Parse(context.Background(), []byte(src), path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return unit
}

func TestParseExtractsSignatures(t *testing.T) {
	unit := parseSource(t, mathSource, "src/math_ops.c")
	if unit.ID != "math_ops" {
		t.Errorf("unit ID: %q", unit.ID)
	}
	if len(unit.Functions) != 5 {
		t.Fatalf("functions: got %d, want 5", len(unit.Functions))
	}

	add := unit.FunctionByName("add")
	if add == nil {
		t.Fatal("add not found")
	}
	if add.ReturnType != model.CTypeInt || len(add.Params) != 2 {
		t.Errorf("add signature: %+v", add)
	}
	if add.Params[0].Name != "a" || add.Params[1].Name != "b" {
		t.Errorf("add params: %+v", add.Params)
	}

	div := unit.FunctionByName("divide")
	if div.ReturnType != model.CTypeDouble || div.Params[0].Type != model.CTypeDouble {
		t.Errorf("divide signature: %+v", div)
	}
}

func TestParsePointerAndArrayParams(t *testing.T) {
	unit := parseSource(t, mathSource, "math_ops.c")

	sum := unit.FunctionByName("sum_array")
	if sum == nil {
		t.Fatal("sum_array not found")
	}
	if sum.ReturnType != model.CTypeUnsignedLong {
		t.Errorf("return type: %s", sum.ReturnType)
	}
	values := sum.Params[0]
	if values.Type != model.CTypeInt || values.PointerLevel != 1 {
		t.Errorf("pointer param: %+v", values)
	}

	scale := unit.FunctionByName("scale")
	if scale.ReturnType != model.CTypeVoid {
		t.Errorf("void return: %s", scale.ReturnType)
	}
	if !scale.Params[0].IsArray || scale.Params[0].Type != model.CTypeDouble {
		t.Errorf("array param: %+v", scale.Params[0])
	}
}

func TestParseStaticAndCalls(t *testing.T) {
	unit := parseSource(t, mathSource, "math_ops.c")

	helper := unit.FunctionByName("helper")
	if helper == nil || !helper.IsStatic {
		t.Errorf("static not detected: %+v", helper)
	}

	sum := unit.FunctionByName("sum_array")
	if !reflect.DeepEqual(sum.CalledFunctions, []string{"clamp"}) {
		t.Errorf("called functions: %v", sum.CalledFunctions)
	}

	testable := unit.TestableFunctions()
	for _, fn := range testable {
		if fn.Name == "helper" {
			t.Error("static function listed as testable")
		}
	}
}

func TestParseIncludesAndConstants(t *testing.T) {
	unit := parseSource(t, mathSource, "math_ops.c")

	want := []model.Include{
		{File: "stdio.h", System: true},
		{File: "utils.h", System: false},
	}
	if !reflect.DeepEqual(unit.Includes, want) {
		t.Errorf("includes: %+v", unit.Includes)
	}

	if len(unit.Constants) != 1 || unit.Constants[0].Name != "MAX_ITEMS" || unit.Constants[0].Value != "64" {
		t.Errorf("constants: %+v", unit.Constants)
	}
}

func TestParseStructAndEnum(t *testing.T) {
	src := `
typedef struct {
    int x;
    int y;
    double *weights;
} point_t;

struct node {
    int value;
};

enum color { RED, GREEN = 5, BLUE };
`
	unit := parseSource(t, src, "shapes.c")

	if len(unit.Structs) != 2 {
		t.Fatalf("structs: got %d, want 2", len(unit.Structs))
	}
	pt := unit.Structs[0]
	if pt.Name != "point_t" || !pt.IsTypedef || len(pt.Fields) != 3 {
		t.Errorf("typedef struct: %+v", pt)
	}
	if pt.Fields[2].Name != "weights" || pt.Fields[2].PointerLevel != 1 {
		t.Errorf("pointer field: %+v", pt.Fields[2])
	}
	if unit.Structs[1].Name != "node" || unit.Structs[1].IsTypedef {
		t.Errorf("named struct: %+v", unit.Structs[1])
	}

	if len(unit.Enums) != 1 {
		t.Fatalf("enums: got %d", len(unit.Enums))
	}
	want := map[string]int{"RED": 0, "GREEN": 5, "BLUE": 6}
	if !reflect.DeepEqual(unit.Enums[0].Values, want) {
		t.Errorf("enum values: %v", unit.Enums[0].Values)
	}
}

func TestMapCType(t *testing.T) {
	tests := []struct {
		in   string
		want model.CType
	}{
		{"int", model.CTypeInt},
		{"const int", model.CTypeInt},
		{"unsigned", model.CTypeUnsignedInt},
		{"unsigned long long", model.CTypeUnsignedLong},
		{"long long int", model.CTypeLong},
		{"signed int", model.CTypeInt},
		{"uint8_t", model.CTypeUnsignedChar},
		{"size_t", model.CTypeUnsignedLong},
		{"struct point", model.CTypeInt},
	}
	for _, tt := range tests {
		if got := mapCType(tt.in); got != tt.want {
			t.Errorf("mapCType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestBuildEdges(t *testing.T) {
	units := []*model.Unit{
		{
			ID: "main",
			Includes: []model.Include{
				{File: "utils.h"},
				{File: "stdio.h", System: true},
			},
			Functions: []model.Function{
				{Name: "main", CalledFunctions: []string{"clamp", "printf"}},
			},
		},
		{
			ID: "utils",
			Functions: []model.Function{
				{Name: "clamp"},
				{Name: "internal", IsStatic: true},
			},
		},
		{
			ID: "extra",
			Functions: []model.Function{
				{Name: "run", CalledFunctions: []string{"clamp"}},
			},
		},
	}
	BuildEdges(units)

	if !reflect.DeepEqual(units[0].Dependencies, []string{"utils"}) {
		t.Errorf("main deps: %v", units[0].Dependencies)
	}
	if len(units[1].Dependencies) != 0 {
		t.Errorf("utils deps: %v", units[1].Dependencies)
	}
	if !reflect.DeepEqual(units[2].Dependencies, []string{"utils"}) {
		t.Errorf("extra deps: %v", units[2].Dependencies)
	}
}

func TestBuildEdgesIgnoresAmbiguousCalls(t *testing.T) {
	units := []*model.Unit{
		{ID: "a", Functions: []model.Function{{Name: "init"}}},
		{ID: "b", Functions: []model.Function{{Name: "init"}}},
		{ID: "c", Functions: []model.Function{{Name: "go", CalledFunctions: []string{"init"}}}},
	}
	BuildEdges(units)
	if len(units[2].Dependencies) != 0 {
		t.Errorf("ambiguous call produced edges: %v", units[2].Dependencies)
	}
}

func TestParseProject(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"utils.c": "int clamp(int v) { return v < 0 ? 0 : v; }\n",
		"app.c":   "#include \"utils.h\"\nint run(int v) { return clamp(v); }\n",
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	units, err := testParser(t).ParseProject(context.Background(), dir)
	if err != nil {
		t.Fatalf("ParseProject failed: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("units: got %d", len(units))
	}
	// Sorted by file name: app before utils.
	if units[0].ID != "app" || units[1].ID != "utils" {
		t.Errorf("unit order: %s, %s", units[0].ID, units[1].ID)
	}
	if !reflect.DeepEqual(units[0].Dependencies, []string{"utils"}) {
		t.Errorf("app deps: %v", units[0].Dependencies)
	}
}

func TestParseProjectEmptyDirFails(t *testing.T) {
	if _, err := testParser(t).ParseProject(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for directory without C sources")
	}
}
