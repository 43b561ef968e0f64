package executor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/portcheck/portcheck/pkg/model"
)

// GenerateCSHarness renders the C# harness for a suite. The converted unit
// is expected to expose a public static class named after the unit (see
// ClassName) with one static method per C function, keeping the original
// names; that convention is part of the conversion request.
func GenerateCSHarness(unit *model.Unit, suite *model.Suite) (string, error) {
	class := ClassName(unit.ID)
	var b strings.Builder

	b.WriteString("using System;\n")
	b.WriteString("using System.Globalization;\n\n")
	b.WriteString("public static class Harness\n{\n")

	b.WriteString(`    static void PrintFp(double v)
    {
        if (double.IsNaN(v)) Console.Write("nan");
        else if (double.IsPositiveInfinity(v)) Console.Write("inf");
        else if (double.IsNegativeInfinity(v)) Console.Write("-inf");
        else Console.Write(v.ToString("G17", CultureInfo.InvariantCulture));
    }
`)

	for i := range suite.Cases {
		tc := &suite.Cases[i]
		fn := unit.FunctionByName(tc.Function)
		if fn == nil {
			return "", model.NewError(model.ErrKindGeneration,
				fmt.Sprintf("suite references unknown function %s", tc.Function), nil).WithUnit(unit.ID)
		}
		caseSrc, err := csCaseMethod(tc, fn, class)
		if err != nil {
			return "", err
		}
		b.WriteString("\n")
		b.WriteString(caseSrc)
	}

	b.WriteString("\n    public static int Main(string[] args)\n    {\n")
	b.WriteString("        if (args.Length > 0)\n        {\n")
	b.WriteString("            switch (args[0])\n            {\n")
	for _, tc := range suite.Cases {
		fmt.Fprintf(&b, "                case %q: Case_%s(); return 0;\n", tc.ID, tc.ID)
	}
	b.WriteString("                default: Console.Error.WriteLine(\"unknown test: \" + args[0]); return 2;\n")
	b.WriteString("            }\n        }\n")
	for _, tc := range suite.Cases {
		fmt.Fprintf(&b, "        Case_%s();\n", tc.ID)
	}
	b.WriteString("        return 0;\n    }\n}\n")

	return b.String(), nil
}

// ClassName maps a unit ID to the static class the converted source must
// declare: snake_case becomes PascalCase.
func ClassName(unitID string) string {
	parts := strings.FieldsFunc(unitID, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	if b.Len() == 0 {
		return "Unit"
	}
	return b.String()
}

// csCaseMethod renders the method that runs one test case.
func csCaseMethod(tc *model.TestCase, fn *model.Function, class string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "    static void Case_%s()\n    {\n", tc.ID)

	args := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		v, ok := tc.Inputs[p.Name]
		if !ok {
			return "", model.NewError(model.ErrKindGeneration,
				fmt.Sprintf("case %s missing input for %s", tc.ID, p.Name), nil)
		}
		if p.IsPointer() || p.IsArray {
			fmt.Fprintf(&b, "        %s[] %s = %s;\n", csType(p.Type), p.Name, csArrayLiteral(v, p.Type))
		} else {
			fmt.Fprintf(&b, "        %s %s = %s;\n", csType(p.Type), p.Name, csLiteral(v, p.Type))
		}
		args[i] = p.Name
	}

	call := fmt.Sprintf("%s.%s(%s)", class, fn.Name, strings.Join(args, ", "))
	if fn.ReturnType != model.CTypeVoid {
		fmt.Fprintf(&b, "        %s ret = %s;\n", csType(fn.ReturnType), call)
	} else {
		fmt.Fprintf(&b, "        %s;\n", call)
	}

	fmt.Fprintf(&b, "        Console.Write(%q);\n", tc.ID+"=")
	first := true
	if fn.ReturnType != model.CTypeVoid {
		writeCSPrintScalar(&b, "ret", fn.ReturnType, 2)
		first = false
	}
	for _, p := range fn.Params {
		if !p.IsPointer() && !p.IsArray {
			continue
		}
		if !first {
			b.WriteString("        Console.Write(\",\");\n")
		}
		first = false
		writeCSPrintArray(&b, p)
	}
	b.WriteString("        Console.Write(\"\\n\");\n")
	b.WriteString("        Console.Out.Flush();\n")
	b.WriteString("    }\n")
	return b.String(), nil
}

func writeCSPrintScalar(b *strings.Builder, expr string, t model.CType, depth int) {
	indent := strings.Repeat("    ", depth)
	if t.IsFloat() {
		fmt.Fprintf(b, "%sPrintFp((double)%s);\n", indent, expr)
		return
	}
	fmt.Fprintf(b, "%sConsole.Write(%s.ToString(CultureInfo.InvariantCulture));\n", indent, expr)
}

func writeCSPrintArray(b *strings.Builder, p model.Param) {
	name := p.Name
	fmt.Fprintf(b, "        if (%s == null) { Console.Write(\"null\"); }\n", name)
	fmt.Fprintf(b, "        else\n        {\n")
	fmt.Fprintf(b, "            Console.Write(\"{\");\n")
	fmt.Fprintf(b, "            for (int i = 0; i < %s.Length; i++)\n            {\n", name)
	fmt.Fprintf(b, "                if (i > 0) Console.Write(\";\");\n")
	writeCSPrintScalar(b, name+"[i]", p.Type, 4)
	fmt.Fprintf(b, "            }\n")
	fmt.Fprintf(b, "            Console.Write(\"}\");\n")
	fmt.Fprintf(b, "        }\n")
}

// csType maps a C scalar type to the C# type used in harness declarations.
func csType(t model.CType) string {
	switch t {
	case model.CTypeInt:
		return "int"
	case model.CTypeLong:
		return "long"
	case model.CTypeShort:
		return "short"
	case model.CTypeChar:
		return "sbyte"
	case model.CTypeUnsignedInt:
		return "uint"
	case model.CTypeUnsignedLong:
		return "ulong"
	case model.CTypeUnsignedShort:
		return "ushort"
	case model.CTypeUnsignedChar:
		return "byte"
	case model.CTypeFloat:
		return "float"
	case model.CTypeDouble:
		return "double"
	case model.CTypeVoid:
		return "void"
	}
	return "int"
}

// csLiteral renders a value as a C# expression of the given type.
func csLiteral(v model.Value, t model.CType) string {
	switch v.Kind {
	case model.KindInt:
		switch {
		case v.Int == math.MinInt64:
			return "long.MinValue"
		case v.Int == math.MinInt32 && t == model.CTypeInt:
			return "int.MinValue"
		case t == model.CTypeLong:
			return strconv.FormatInt(v.Int, 10) + "L"
		case t == model.CTypeShort:
			return fmt.Sprintf("(short)%d", v.Int)
		case t == model.CTypeChar:
			return fmt.Sprintf("(sbyte)%d", v.Int)
		}
		return strconv.FormatInt(v.Int, 10)
	case model.KindUint:
		switch t {
		case model.CTypeUnsignedLong:
			return strconv.FormatUint(v.Uint, 10) + "UL"
		case model.CTypeUnsignedShort:
			return fmt.Sprintf("(ushort)%d", v.Uint)
		case model.CTypeUnsignedChar:
			return fmt.Sprintf("(byte)%d", v.Uint)
		}
		return strconv.FormatUint(v.Uint, 10) + "U"
	case model.KindFloat:
		return csFloatLiteral(v.Float, t)
	case model.KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case model.KindNull:
		return "null"
	}
	return "0"
}

func csFloatLiteral(f float64, t model.CType) string {
	typeName := "double"
	suffix := "d"
	if t == model.CTypeFloat {
		typeName = "float"
		suffix = "f"
	}
	switch {
	case math.IsNaN(f):
		return typeName + ".NaN"
	case math.IsInf(f, 1):
		return typeName + ".PositiveInfinity"
	case math.IsInf(f, -1):
		return typeName + ".NegativeInfinity"
	case f == math.MaxFloat64 && t == model.CTypeDouble:
		return "double.MaxValue"
	case f == -math.MaxFloat64 && t == model.CTypeDouble:
		return "double.MinValue"
	case f == math.MaxFloat32 && t == model.CTypeFloat:
		return "float.MaxValue"
	case f == -math.MaxFloat32 && t == model.CTypeFloat:
		return "float.MinValue"
	case f == 0 && math.Signbit(f):
		return "-0.0" + suffix
	}
	s := strconv.FormatFloat(f, 'g', 17, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s + suffix
}

// csArrayLiteral renders an array input.
func csArrayLiteral(v model.Value, t model.CType) string {
	if v.Kind == model.KindNull {
		return "null"
	}
	lits := make([]string, len(v.Elems))
	for i, e := range v.Elems {
		lits[i] = csLiteral(e, t)
	}
	return fmt.Sprintf("new %s[] { %s }", csType(t), strings.Join(lits, ", "))
}
