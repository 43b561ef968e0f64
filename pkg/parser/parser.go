// Package parser turns C translation units into the normalized program model.
// It parses sources with tree-sitter and extracts the entities the rest of
// the engine works with: function signatures and bodies, structs, enums,
// constants, and include directives.
package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

// DefaultMaxFileSize bounds the source files the parser accepts (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// Parser extracts the program model from C sources. Each Parse call creates
// its own tree-sitter parser, so a Parser is safe for concurrent use.
type Parser struct {
	maxFileSize int64
	log         *telemetry.Logger
}

// New constructs a parser.
func New(log *telemetry.Logger) *Parser {
	return &Parser{
		maxFileSize: DefaultMaxFileSize,
		log:         log.NewComponentLogger("parser"),
	}
}

// ParseFile parses one .c file into a unit. The unit ID is the file name
// without its extension.
func (p *Parser) ParseFile(ctx context.Context, path string) (*model.Unit, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewError(model.ErrKindInternal, "read source file", err)
	}
	return p.Parse(ctx, content, path)
}

// ParseProject parses every .c file directly under dir, sorted by name.
func (p *Parser) ParseProject(ctx context.Context, dir string) ([]*model.Unit, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.c"))
	if err != nil {
		return nil, model.NewError(model.ErrKindInternal, "scan project directory", err)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, model.NewError(model.ErrKindInternal,
			fmt.Sprintf("no C sources found in %s", dir), nil)
	}

	units := make([]*model.Unit, 0, len(paths))
	for _, path := range paths {
		unit, err := p.ParseFile(ctx, path)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	BuildEdges(units)
	return units, nil
}

// Parse parses C source text into a unit.
func (p *Parser) Parse(ctx context.Context, content []byte, path string) (*model.Unit, error) {
	if int64(len(content)) > p.maxFileSize {
		return nil, model.NewError(model.ErrKindInternal,
			fmt.Sprintf("%s exceeds maximum source size", path), nil)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, model.NewError(model.ErrKindInternal, "tree-sitter parse failed", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	unit := &model.Unit{
		ID:       unitID(path),
		Path:     path,
		Source:   string(content),
		ParsedAt: time.Now(),
	}
	if root.HasError() {
		p.log.WithUnitID(unit.ID).Warn("source contains syntax errors, extraction may be partial")
	}

	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		switch node.Type() {
		case "preproc_include":
			if inc, ok := parseInclude(node, content); ok {
				unit.Includes = append(unit.Includes, inc)
			}
		case "preproc_def":
			if c, ok := parseConstant(node, content); ok {
				unit.Constants = append(unit.Constants, c)
			}
		case "function_definition":
			if fn, ok := parseFunction(node, content); ok {
				unit.Functions = append(unit.Functions, fn)
			}
		case "type_definition", "declaration", "struct_specifier", "enum_specifier":
			collectTypes(node, content, unit)
		}
	}

	p.log.WithUnitID(unit.ID).
		WithField("functions", len(unit.Functions)).
		WithField("includes", len(unit.Includes)).
		Debug("unit parsed")
	return unit, nil
}

// unitID derives the unit identifier from the source path.
func unitID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseInclude(node *sitter.Node, content []byte) (model.Include, bool) {
	path := node.ChildByFieldName("path")
	if path == nil {
		return model.Include{}, false
	}
	text := nodeText(path, content)
	switch path.Type() {
	case "system_lib_string":
		return model.Include{File: strings.Trim(text, "<>"), System: true}, true
	case "string_literal":
		return model.Include{File: strings.Trim(text, `"`), System: false}, true
	}
	return model.Include{}, false
}

func parseConstant(node *sitter.Node, content []byte) (model.Constant, bool) {
	name := node.ChildByFieldName("name")
	value := node.ChildByFieldName("value")
	if name == nil || value == nil {
		return model.Constant{}, false
	}
	return model.Constant{
		Name:  nodeText(name, content),
		Value: strings.TrimSpace(nodeText(value, content)),
	}, true
}

// parseFunction extracts a signature and body from a function_definition.
// Functions returning pointers or taking unsupported parameter shapes are
// still recorded so they contribute dependency edges, but with the raw type
// text mapped best-effort onto the scalar type set.
func parseFunction(node *sitter.Node, content []byte) (model.Function, bool) {
	typeNode := node.ChildByFieldName("type")
	declNode := node.ChildByFieldName("declarator")
	bodyNode := node.ChildByFieldName("body")
	if typeNode == nil || declNode == nil {
		return model.Function{}, false
	}

	// Unwrap pointer declarators around the function declarator.
	fnDecl := declNode
	for fnDecl != nil && fnDecl.Type() == "pointer_declarator" {
		fnDecl = fnDecl.ChildByFieldName("declarator")
	}
	if fnDecl == nil || fnDecl.Type() != "function_declarator" {
		return model.Function{}, false
	}
	nameNode := fnDecl.ChildByFieldName("declarator")
	if nameNode == nil {
		return model.Function{}, false
	}

	fn := model.Function{
		Name:       nodeText(nameNode, content),
		ReturnType: mapCType(nodeText(typeNode, content)),
		IsStatic:   hasStorageClass(node, content, "static"),
		LineStart:  int(node.StartPoint().Row) + 1,
		LineEnd:    int(node.EndPoint().Row) + 1,
	}
	if bodyNode != nil {
		fn.Body = nodeText(bodyNode, content)
		fn.CalledFunctions = collectCalls(bodyNode, content)
	}

	if params := fnDecl.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			pn := params.NamedChild(i)
			if pn.Type() != "parameter_declaration" {
				continue
			}
			if param, ok := parseParam(pn, content); ok {
				fn.Params = append(fn.Params, param)
			}
		}
	}
	return fn, true
}

func parseParam(node *sitter.Node, content []byte) (model.Param, bool) {
	typeNode := node.ChildByFieldName("type")
	declNode := node.ChildByFieldName("declarator")
	if typeNode == nil {
		return model.Param{}, false
	}
	typeText := nodeText(typeNode, content)
	if typeText == "void" && declNode == nil {
		// f(void) has a parameter_declaration with no declarator.
		return model.Param{}, false
	}

	param := model.Param{Type: mapCType(typeText)}
	for declNode != nil {
		switch declNode.Type() {
		case "pointer_declarator":
			param.PointerLevel++
			declNode = declNode.ChildByFieldName("declarator")
		case "array_declarator":
			param.IsArray = true
			declNode = declNode.ChildByFieldName("declarator")
		case "identifier":
			param.Name = nodeText(declNode, content)
			declNode = nil
		default:
			declNode = nil
		}
	}
	if param.Name == "" {
		return model.Param{}, false
	}
	return param, true
}

// hasStorageClass reports whether the definition carries the given storage
// class specifier.
func hasStorageClass(node *sitter.Node, content []byte, class string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "storage_class_specifier" && nodeText(child, content) == class {
			return true
		}
	}
	return false
}

// collectCalls walks a function body and returns the distinct callee names in
// first-appearance order.
func collectCalls(body *sitter.Node, content []byte) []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "call_expression" {
			if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() == "identifier" {
				name := nodeText(fn, content)
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(body)
	return names
}

// collectTypes pulls struct and enum definitions out of a top-level
// declaration or typedef.
func collectTypes(node *sitter.Node, content []byte, unit *model.Unit) {
	isTypedef := node.Type() == "type_definition"
	var typedefName string
	if isTypedef {
		if decl := node.ChildByFieldName("declarator"); decl != nil {
			typedefName = nodeText(decl, content)
		}
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "struct_specifier":
			if s, ok := parseStruct(n, content); ok {
				if s.Name == "" {
					s.Name = typedefName
				}
				s.IsTypedef = isTypedef
				unit.Structs = append(unit.Structs, s)
				return
			}
		case "enum_specifier":
			if e, ok := parseEnum(n, content); ok {
				if e.Name == "" {
					e.Name = typedefName
				}
				unit.Enums = append(unit.Enums, e)
				return
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(node)
}

func parseStruct(node *sitter.Node, content []byte) (model.Struct, bool) {
	body := node.ChildByFieldName("body")
	if body == nil {
		// A bare reference like "struct point p", not a definition.
		return model.Struct{}, false
	}
	s := model.Struct{}
	if name := node.ChildByFieldName("name"); name != nil {
		s.Name = nodeText(name, content)
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		fd := body.NamedChild(i)
		if fd.Type() != "field_declaration" {
			continue
		}
		typeNode := fd.ChildByFieldName("type")
		declNode := fd.ChildByFieldName("declarator")
		if typeNode == nil || declNode == nil {
			continue
		}
		field := model.StructField{Type: mapCType(nodeText(typeNode, content))}
		for declNode != nil && declNode.Type() == "pointer_declarator" {
			field.PointerLevel++
			declNode = declNode.ChildByFieldName("declarator")
		}
		if declNode != nil {
			field.Name = nodeText(declNode, content)
		}
		if field.Name != "" {
			s.Fields = append(s.Fields, field)
		}
	}
	return s, true
}

func parseEnum(node *sitter.Node, content []byte) (model.Enum, bool) {
	body := node.ChildByFieldName("body")
	if body == nil {
		return model.Enum{}, false
	}
	e := model.Enum{Values: make(map[string]int)}
	if name := node.ChildByFieldName("name"); name != nil {
		e.Name = nodeText(name, content)
	}
	next := 0
	for i := 0; i < int(body.NamedChildCount()); i++ {
		en := body.NamedChild(i)
		if en.Type() != "enumerator" {
			continue
		}
		nameNode := en.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		if valueNode := en.ChildByFieldName("value"); valueNode != nil {
			if v, err := strconv.Atoi(strings.TrimSpace(nodeText(valueNode, content))); err == nil {
				next = v
			}
		}
		e.Values[nodeText(nameNode, content)] = next
		next++
	}
	return e, true
}

func nodeText(n *sitter.Node, content []byte) string {
	return string(content[n.StartByte():n.EndByte()])
}

// mapCType normalizes declared type text onto the scalar type set. Qualifiers
// are stripped and common synonyms collapse to their canonical spelling.
func mapCType(text string) model.CType {
	text = strings.TrimSpace(text)
	for _, qual := range []string{"const ", "volatile ", "signed "} {
		text = strings.TrimPrefix(text, qual)
	}
	text = strings.Join(strings.Fields(text), " ")

	switch text {
	case "int", "long", "short", "char", "float", "double", "void",
		"unsigned int", "unsigned long", "unsigned short", "unsigned char":
		return model.CType(text)
	case "signed", "":
		return model.CTypeInt
	case "unsigned":
		return model.CTypeUnsignedInt
	case "long int", "long long", "long long int":
		return model.CTypeLong
	case "short int":
		return model.CTypeShort
	case "unsigned long int", "unsigned long long", "unsigned long long int":
		return model.CTypeUnsignedLong
	case "unsigned short int":
		return model.CTypeUnsignedShort
	case "int32_t":
		return model.CTypeInt
	case "int64_t":
		return model.CTypeLong
	case "int16_t":
		return model.CTypeShort
	case "int8_t":
		return model.CTypeChar
	case "uint32_t":
		return model.CTypeUnsignedInt
	case "uint64_t", "size_t":
		return model.CTypeUnsignedLong
	case "uint16_t":
		return model.CTypeUnsignedShort
	case "uint8_t":
		return model.CTypeUnsignedChar
	}
	return model.CTypeInt
}
