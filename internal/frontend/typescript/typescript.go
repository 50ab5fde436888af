// Package typescript is the TypeScript/JavaScript front end. Imports are
// path-style; only relative specifiers resolve to project files.
package typescript

import (
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/leapstack-labs/dcverify/internal/frontend"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

var (
	tsLanguage  = sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	tsxLanguage = sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	jsLanguage  = sitter.NewLanguage(tree_sitter_javascript.Language())
)

// Extensions lists the file extensions this front end parses, in resolution
// order.
var Extensions = []string{".ts", ".tsx", ".js", ".jsx"}

// Frontend parses TypeScript and JavaScript files.
type Frontend struct{}

// New creates a TypeScript front end.
func New() *Frontend {
	return &Frontend{}
}

// Language implements frontend.Frontend.
func (*Frontend) Language() string { return "typescript" }

// Layout implements frontend.Frontend.
func (*Frontend) Layout() frontend.Layout {
	return frontend.Layout{
		Style:       frontend.PathImports,
		Extensions:  Extensions,
		PackageInit: "index.ts",
	}
}

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx":
		return tsxLanguage
	case ".js", ".jsx", ".mjs", ".cjs":
		return jsLanguage
	default:
		return tsLanguage
	}
}

// Parse implements frontend.Frontend.
func (*Frontend) Parse(path string, src []byte) (*frontend.File, error) {
	tree, err := frontend.ParseTree(languageFor(path), src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	conv := frontend.NewLocationConverter(src)
	if err := frontend.SyntaxError(root, conv); err != nil {
		return nil, err
	}

	x := &extractor{src: src, path: path, conv: conv, file: &frontend.File{Path: path}}
	for _, stmt := range frontend.NamedChildren(root) {
		x.statement(stmt)
	}
	x.walkCalls(root, nil)
	return x.file, nil
}

type extractor struct {
	src  []byte
	path string
	conv *frontend.LocationConverter
	file *frontend.File
}

func (x *extractor) text(n *sitter.Node) string {
	return frontend.Text(n, x.src)
}

func (x *extractor) location(n *sitter.Node) schema.Location {
	line, col := x.conv.Position(int(n.StartByte()))
	return schema.Location{File: x.path, Line: line, Column: col}
}

func (x *extractor) statement(n *sitter.Node) {
	switch n.Kind() {
	case "import_statement":
		x.importStatement(n)
	case "export_statement":
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			x.statement(decl)
		}
	case "function_declaration", "generator_function_declaration":
		x.addFunction(n, x.text(n.ChildByFieldName("name")))
	case "class_declaration", "abstract_class_declaration":
		x.file.Definitions = append(x.file.Definitions, x.class(n))
	case "lexical_declaration", "variable_declaration":
		x.variables(n)
	case "interface_declaration":
		x.interfaceSchema(n)
	case "type_alias_declaration":
		x.typeAliasSchema(n)
	case "expression_statement":
		x.routeRegistration(n)
	}
}

func (x *extractor) importStatement(n *sitter.Node) {
	source := n.ChildByFieldName("source")
	if source == nil {
		return
	}
	imp := frontend.Import{Path: frontend.Unquote(x.text(source)), Location: x.location(n)}
	for _, c := range frontend.NamedChildren(n) {
		if c.Kind() == "import_clause" {
			imp.Names = x.importNames(c)
		}
	}
	x.file.Imports = append(x.file.Imports, imp)
}

func (x *extractor) importNames(clause *sitter.Node) []string {
	var names []string
	for _, c := range frontend.NamedChildren(clause) {
		switch c.Kind() {
		case "identifier":
			names = append(names, x.text(c))
		case "namespace_import":
			for _, id := range frontend.NamedChildren(c) {
				names = append(names, x.text(id))
			}
		case "named_imports":
			for _, spec := range frontend.NamedChildren(c) {
				if spec.Kind() == "import_specifier" {
					names = append(names, x.text(spec.ChildByFieldName("name")))
				}
			}
		}
	}
	return names
}

func (x *extractor) addFunction(fn *sitter.Node, name string) {
	if name == "" {
		return
	}
	x.file.Definitions = append(x.file.Definitions, x.function(fn, name))
}

func (x *extractor) function(fn *sitter.Node, name string) frontend.Definition {
	def := frontend.Definition{
		Kind:     frontend.FunctionDef,
		Name:     name,
		Params:   x.parameters(fn),
		Location: x.location(fn),
	}
	if rt := fn.ChildByFieldName("return_type"); rt != nil {
		def.ReturnType, _ = normalizeType(typeAnnotation(x.text(rt)))
	}
	return def
}

// variables handles "const f = () => {}" and Zod schema declarations.
func (x *extractor) variables(n *sitter.Node) {
	for _, decl := range frontend.NamedChildren(n) {
		if decl.Kind() != "variable_declarator" {
			continue
		}
		name := decl.ChildByFieldName("name")
		value := decl.ChildByFieldName("value")
		if name == nil || value == nil || name.Kind() != "identifier" {
			continue
		}
		switch value.Kind() {
		case "arrow_function", "function_expression", "function":
			def := x.function(value, x.text(name))
			def.Location = x.location(decl)
			x.file.Definitions = append(x.file.Definitions, def)
		case "call_expression":
			x.zodSchema(x.text(name), value, x.location(decl))
		}
	}
}

func (x *extractor) class(n *sitter.Node) frontend.Definition {
	def := frontend.Definition{
		Kind:     frontend.ClassDef,
		Name:     x.text(n.ChildByFieldName("name")),
		Location: x.location(n),
	}
	for _, c := range frontend.NamedChildren(n) {
		if c.Kind() == "class_heritage" {
			def.Bases = append(def.Bases, x.heritage(c)...)
		}
	}

	var decorators []string
	for _, member := range frontend.NamedChildren(n.ChildByFieldName("body")) {
		switch member.Kind() {
		case "decorator":
			decorators = append(decorators, x.decoratorName(member))
		case "method_definition":
			m := x.function(member, x.text(member.ChildByFieldName("name")))
			m.Decorators = decorators
			for _, d := range frontend.NamedChildren(member) {
				if d.Kind() == "decorator" {
					m.Decorators = append(m.Decorators, x.decoratorName(d))
				}
			}
			decorators = nil
			def.Body = append(def.Body, m)
		default:
			decorators = nil
		}
	}
	return def
}

func (x *extractor) heritage(n *sitter.Node) []string {
	var out []string
	for _, clause := range frontend.NamedChildren(n) {
		switch clause.Kind() {
		case "extends_clause", "implements_clause":
			for _, t := range frontend.NamedChildren(clause) {
				out = append(out, x.text(t))
			}
		default:
			// JavaScript puts the superclass expression directly under class_heritage
			out = append(out, x.text(clause))
		}
	}
	return out
}

func (x *extractor) decoratorName(d *sitter.Node) string {
	children := frontend.NamedChildren(d)
	if len(children) == 0 {
		return ""
	}
	expr := children[0]
	if expr.Kind() == "call_expression" {
		expr = expr.ChildByFieldName("function")
	}
	return memberName(expr, x.src)
}

// parameters reads TypeScript required/optional parameters and plain
// JavaScript identifiers and defaults.
func (x *extractor) parameters(fn *sitter.Node) []frontend.Param {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		// single-parameter arrow function: x => ...
		if p := fn.ChildByFieldName("parameter"); p != nil {
			return []frontend.Param{{Name: x.text(p)}}
		}
		return nil
	}

	var out []frontend.Param
	for _, c := range frontend.NamedChildren(params) {
		var p frontend.Param
		switch c.Kind() {
		case "required_parameter", "optional_parameter":
			pattern := c.ChildByFieldName("pattern")
			if pattern == nil || pattern.Kind() == "this" {
				continue
			}
			p.Name = strings.TrimPrefix(x.text(pattern), "...")
			if t := c.ChildByFieldName("type"); t != nil {
				p.TypeText, p.Optional = normalizeType(typeAnnotation(x.text(t)))
			}
			if v := c.ChildByFieldName("value"); v != nil {
				p.Default = x.text(v)
				p.Optional = true
			}
			if c.Kind() == "optional_parameter" {
				p.Optional = true
			}
		case "identifier":
			p.Name = x.text(c)
		case "assignment_pattern":
			p.Name = x.text(c.ChildByFieldName("left"))
			p.Default = x.text(c.ChildByFieldName("right"))
			p.Optional = true
		case "rest_pattern":
			p.Name = strings.TrimPrefix(x.text(c), "...")
		default:
			continue
		}
		out = append(out, p)
	}
	return out
}

func typeAnnotation(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), ":"))
}

// normalizeType reduces a type to the name the graph cares about and reports
// whether it admits null or undefined.
func normalizeType(t string) (string, bool) {
	t = strings.TrimSpace(t)
	if t == "" {
		return "", false
	}

	var kept []string
	optional := false
	for _, m := range splitTopLevel(t, '|') {
		if m == "null" || m == "undefined" {
			optional = true
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) != 1 {
		return strings.Join(kept, " | "), optional
	}

	t = kept[0]
	switch {
	case strings.HasSuffix(t, "[]"), strings.HasPrefix(t, "Array<"), strings.HasPrefix(t, "ReadonlyArray<"):
		return "array", optional
	case strings.HasPrefix(t, "Record<"), strings.HasPrefix(t, "Map<"), t == "object":
		return "object", optional
	case strings.HasPrefix(t, "Promise<") && strings.HasSuffix(t, ">"):
		inner, opt := normalizeType(t[len("Promise<") : len(t)-1])
		return inner, optional || opt
	}
	return t, optional
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[', '{':
			depth++
		case '>', ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// memberName renders identifier and member chains as "a.b.c".
func memberName(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "identifier", "property_identifier", "this":
		return frontend.Text(n, src)
	case "member_expression":
		base := memberName(n.ChildByFieldName("object"), src)
		if base == "" {
			return ""
		}
		return base + "." + frontend.Text(n.ChildByFieldName("property"), src)
	}
	return ""
}
