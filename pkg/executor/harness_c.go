package executor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/portcheck/portcheck/pkg/model"
)

// GenerateCHarness renders the C harness for a suite. The harness declares
// the functions under test, defines one case function per test case, and a
// main that runs either all cases or the single case named in argv[1]. Each
// case prints one line: caseID=ret,out1,... and flushes, so a crash mid-batch
// leaves earlier lines intact.
func GenerateCHarness(unit *model.Unit, suite *model.Suite) (string, error) {
	var b strings.Builder

	b.WriteString("#include <stdio.h>\n")
	b.WriteString("#include <stdlib.h>\n")
	b.WriteString("#include <string.h>\n")
	b.WriteString("#include <math.h>\n\n")

	// Prototypes for the functions under test; the unit source supplies
	// the definitions at link time.
	declared := make(map[string]bool)
	for _, tc := range suite.Cases {
		if declared[tc.Function] {
			continue
		}
		fn := unit.FunctionByName(tc.Function)
		if fn == nil {
			return "", model.NewError(model.ErrKindGeneration,
				fmt.Sprintf("suite references unknown function %s", tc.Function), nil).WithUnit(unit.ID)
		}
		b.WriteString(cPrototype(fn))
		b.WriteString("\n")
		declared[tc.Function] = true
	}

	b.WriteString(`
static void print_fp(double v) {
    if (isnan(v)) { printf("nan"); }
    else if (isinf(v)) { printf(v > 0 ? "inf" : "-inf"); }
    else { printf("%.17g", v); }
}
`)

	for i := range suite.Cases {
		tc := &suite.Cases[i]
		fn := unit.FunctionByName(tc.Function)
		caseSrc, err := cCaseFunc(tc, fn)
		if err != nil {
			return "", err
		}
		b.WriteString("\n")
		b.WriteString(caseSrc)
	}

	b.WriteString("\nint main(int argc, char **argv) {\n")
	b.WriteString("    if (argc > 1) {\n")
	for _, tc := range suite.Cases {
		fmt.Fprintf(&b, "        if (strcmp(argv[1], %q) == 0) { case_%s(); return 0; }\n", tc.ID, tc.ID)
	}
	b.WriteString("        fprintf(stderr, \"unknown test: %s\\n\", argv[1]);\n")
	b.WriteString("        return 2;\n")
	b.WriteString("    }\n")
	for _, tc := range suite.Cases {
		fmt.Fprintf(&b, "    case_%s();\n", tc.ID)
	}
	b.WriteString("    return 0;\n}\n")

	return b.String(), nil
}

// cPrototype renders a function declaration.
func cPrototype(fn *model.Function) string {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = cParamDecl(p)
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	return fmt.Sprintf("%s %s(%s);", fn.ReturnType, fn.Name, strings.Join(params, ", "))
}

func cParamDecl(p model.Param) string {
	stars := strings.Repeat("*", p.PointerLevel)
	if p.IsArray && p.PointerLevel == 0 {
		stars = "*"
	}
	return fmt.Sprintf("%s %s%s", p.Type, stars, p.Name)
}

// cCaseFunc renders the function that sets up one case's inputs, invokes the
// function under test, and prints the output line.
func cCaseFunc(tc *model.TestCase, fn *model.Function) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "static void case_%s(void) {\n", tc.ID)

	args := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		v, ok := tc.Inputs[p.Name]
		if !ok {
			return "", model.NewError(model.ErrKindGeneration,
				fmt.Sprintf("case %s missing input for %s", tc.ID, p.Name), nil)
		}
		if p.IsPointer() || p.IsArray {
			writeCArraySetup(&b, p, v)
		} else {
			fmt.Fprintf(&b, "    %s %s = %s;\n", p.Type, p.Name, cLiteral(v, p.Type))
		}
		args[i] = p.Name
	}

	call := fmt.Sprintf("%s(%s)", fn.Name, strings.Join(args, ", "))
	if fn.ReturnType != model.CTypeVoid {
		fmt.Fprintf(&b, "    %s ret = %s;\n", fn.ReturnType, call)
	} else {
		fmt.Fprintf(&b, "    %s;\n", call)
	}

	fmt.Fprintf(&b, "    printf(\"%s=\");\n", tc.ID)
	first := true
	if fn.ReturnType != model.CTypeVoid {
		writeCPrintScalar(&b, "ret", fn.ReturnType)
		first = false
	}
	for _, p := range fn.Params {
		if !p.IsPointer() && !p.IsArray {
			continue
		}
		if !first {
			b.WriteString("    printf(\",\");\n")
		}
		first = false
		writeCPrintArray(&b, p, tc.Inputs[p.Name])
	}
	b.WriteString("    printf(\"\\n\");\n")
	b.WriteString("    fflush(stdout);\n")
	b.WriteString("}\n")
	return b.String(), nil
}

// writeCArraySetup declares the backing storage and pointer for an array or
// pointer input. Null inputs become a null pointer; empty arrays get one
// zeroed slot of storage but are treated as length zero.
func writeCArraySetup(b *strings.Builder, p model.Param, v model.Value) {
	if v.Kind == model.KindNull {
		fmt.Fprintf(b, "    %s *%s = NULL;\n", p.Type, p.Name)
		return
	}
	elems := v.Elems
	lits := make([]string, 0, len(elems))
	for _, e := range elems {
		lits = append(lits, cLiteral(e, p.Type))
	}
	if len(lits) == 0 {
		lits = []string{"0"}
	}
	fmt.Fprintf(b, "    %s %s_storage[%d] = {%s};\n", p.Type, p.Name, len(lits), strings.Join(lits, ", "))
	fmt.Fprintf(b, "    %s *%s = %s_storage;\n", p.Type, p.Name, p.Name)
}

// writeCPrintScalar prints one scalar expression in the wire format.
func writeCPrintScalar(b *strings.Builder, expr string, t model.CType) {
	switch {
	case t.IsFloat():
		fmt.Fprintf(b, "    print_fp((double)%s);\n", expr)
	case t.IsUnsigned():
		fmt.Fprintf(b, "    printf(\"%%llu\", (unsigned long long)%s);\n", expr)
	default:
		fmt.Fprintf(b, "    printf(\"%%lld\", (long long)%s);\n", expr)
	}
}

// writeCPrintArray prints an observable pointer parameter: "null" for null
// inputs, otherwise the brace-wrapped semicolon-joined elements. The printed
// length equals the input length, since the callee cannot grow the buffer.
func writeCPrintArray(b *strings.Builder, p model.Param, v model.Value) {
	if v.Kind == model.KindNull {
		fmt.Fprintf(b, "    printf(\"null\");\n")
		return
	}
	n := len(v.Elems)
	fmt.Fprintf(b, "    printf(\"{\");\n")
	if n > 0 {
		fmt.Fprintf(b, "    for (int i_%s = 0; i_%s < %d; i_%s++) {\n", p.Name, p.Name, n, p.Name)
		fmt.Fprintf(b, "        if (i_%s) printf(\";\");\n", p.Name)
		writeCPrintScalar(b, fmt.Sprintf("%s[i_%s]", p.Name, p.Name), p.Type)
		fmt.Fprintf(b, "    }\n")
	}
	fmt.Fprintf(b, "    printf(\"}\");\n")
}

// cLiteral renders a value as a C expression of the given type. Integer type
// minima are spelled arithmetically because their magnitudes exceed the
// range of the corresponding positive literal.
func cLiteral(v model.Value, t model.CType) string {
	switch v.Kind {
	case model.KindInt:
		switch {
		case v.Int == math.MinInt64:
			return "(-9223372036854775807LL - 1)"
		case v.Int == math.MinInt32 && t == model.CTypeInt:
			return "(-2147483647 - 1)"
		case t == model.CTypeLong:
			return strconv.FormatInt(v.Int, 10) + "LL"
		}
		return strconv.FormatInt(v.Int, 10)
	case model.KindUint:
		if t == model.CTypeUnsignedLong {
			return strconv.FormatUint(v.Uint, 10) + "ULL"
		}
		return strconv.FormatUint(v.Uint, 10) + "U"
	case model.KindFloat:
		return cFloatLiteral(v.Float)
	case model.KindBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case model.KindNull:
		return "NULL"
	}
	return "0"
}

func cFloatLiteral(f float64) string {
	switch {
	case math.IsNaN(f):
		return "(0.0/0.0)"
	case math.IsInf(f, 1):
		return "(1.0/0.0)"
	case math.IsInf(f, -1):
		return "(-1.0/0.0)"
	case f == 0 && math.Signbit(f):
		return "-0.0"
	}
	s := strconv.FormatFloat(f, 'g', 17, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
