package executor

import (
	"fmt"
	"strings"

	"github.com/portcheck/portcheck/pkg/model"
)

// parseHarnessOutput maps harness stdout back onto case results. Each line is
// caseID=tok1,tok2,... where tokens follow the declared output order of the
// case's function: the return value first, then every pointer or array
// parameter. Array tokens are brace-wrapped with semicolon separators, so a
// top-level comma split is unambiguous.
//
// A malformed line fails only its own case: the error is recorded per case ID
// in the second return value and parsing continues with the sibling lines.
func parseHarnessOutput(stdout string, unit *model.Unit, suite *model.Suite) (map[string]map[string]model.Value, map[string]error) {
	parsed := make(map[string]map[string]model.Value)
	malformed := make(map[string]error)
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, rest, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		tc := suite.CaseByID(id)
		if tc == nil {
			continue
		}
		fn := unit.FunctionByName(tc.Function)
		if fn == nil {
			continue
		}
		outputs, err := parseOutputLine(rest, fn)
		if err != nil {
			malformed[id] = fmt.Errorf("case %s: %w", id, err)
			continue
		}
		parsed[id] = outputs
	}
	return parsed, malformed
}

// parseOutputLine parses one line's value list against the function signature.
func parseOutputLine(rest string, fn *model.Function) (map[string]model.Value, error) {
	tokens := strings.Split(rest, ",")
	names, types, pointers := outputLayout(fn)
	if len(tokens) != len(names) {
		return nil, fmt.Errorf("expected %d outputs for %s, got %d", len(names), fn.Name, len(tokens))
	}
	outputs := make(map[string]model.Value, len(names))
	for i, tok := range tokens {
		v, err := parseOutputToken(strings.TrimSpace(tok), types[i], pointers[i])
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", names[i], err)
		}
		outputs[names[i]] = v
	}
	return outputs, nil
}

// outputLayout returns the declared output names of a function in wire order.
func outputLayout(fn *model.Function) (names []string, types []model.CType, pointers []bool) {
	if fn.ReturnType != model.CTypeVoid {
		names = append(names, "ret")
		types = append(types, fn.ReturnType)
		pointers = append(pointers, false)
	}
	for _, p := range fn.Params {
		if !p.IsPointer() && !p.IsArray {
			continue
		}
		names = append(names, p.Name)
		types = append(types, p.Type)
		pointers = append(pointers, true)
	}
	return names, types, pointers
}

func parseOutputToken(tok string, typ model.CType, pointer bool) (model.Value, error) {
	if pointer {
		if tok == "null" {
			return model.NullValue(), nil
		}
		if !strings.HasPrefix(tok, "{") || !strings.HasSuffix(tok, "}") {
			return model.Value{}, fmt.Errorf("malformed array token %q", tok)
		}
		inner := tok[1 : len(tok)-1]
		if inner == "" {
			return model.ArrayValue(), nil
		}
		parts := strings.Split(inner, ";")
		elems := make([]model.Value, len(parts))
		for i, part := range parts {
			e, err := model.ParseValue(part, typ, false)
			if err != nil {
				return model.Value{}, err
			}
			elems[i] = e
		}
		return model.ArrayValue(elems...), nil
	}
	return model.ParseValue(tok, typ, false)
}
