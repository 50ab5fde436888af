// Package python is the Python-family front end. It parses source with
// tree-sitter and reports imports, definitions, calls, decorators and
// Pydantic models.
package python

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/leapstack-labs/dcverify/internal/frontend"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

var language = sitter.NewLanguage(tree_sitter_python.Language())

// Frontend parses Python files. It is safe for concurrent use.
type Frontend struct{}

// New creates a Python front end.
func New() *Frontend {
	return &Frontend{}
}

// Language implements frontend.Frontend.
func (*Frontend) Language() string { return "python" }

// Layout implements frontend.Frontend.
func (*Frontend) Layout() frontend.Layout {
	return frontend.Layout{
		Style:            frontend.DottedImports,
		Extensions:       []string{".py"},
		PackageInit:      "__init__.py",
		ImplicitReceiver: true,
	}
}

// Parse implements frontend.Frontend.
func (*Frontend) Parse(path string, src []byte) (*frontend.File, error) {
	tree, err := frontend.ParseTree(language, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	conv := frontend.NewLocationConverter(src)
	if err := frontend.SyntaxError(root, conv); err != nil {
		return nil, err
	}

	x := &extractor{
		src:    src,
		path:   path,
		conv:   conv,
		file:   &frontend.File{Path: path},
		models: make(map[string]*model),
	}
	x.collectModels(root)
	for _, stmt := range frontend.NamedChildren(root) {
		x.statement(stmt)
	}
	x.walkCalls(root, nil)
	return x.file, nil
}

type extractor struct {
	src    []byte
	path   string
	conv   *frontend.LocationConverter
	file   *frontend.File
	models map[string]*model
}

func (x *extractor) text(n *sitter.Node) string {
	return frontend.Text(n, x.src)
}

func (x *extractor) location(n *sitter.Node) schema.Location {
	line, col := x.conv.Position(int(n.StartByte()))
	return schema.Location{File: x.path, Line: line, Column: col}
}

// statement handles one top-level statement.
func (x *extractor) statement(n *sitter.Node) {
	switch n.Kind() {
	case "import_statement":
		x.importStatement(n)
	case "import_from_statement":
		x.importFromStatement(n)
	case "function_definition", "class_definition", "decorated_definition":
		if def, ok := x.definition(n, ""); ok {
			x.file.Definitions = append(x.file.Definitions, def)
		}
	}
}

func (x *extractor) importStatement(n *sitter.Node) {
	loc := x.location(n)
	for _, c := range frontend.NamedChildren(n) {
		if name := importedName(c, x.src); name != "" {
			x.file.Imports = append(x.file.Imports, frontend.Import{Path: name, Location: loc})
		}
	}
}

// importFromStatement reports "from m import a, b" as path m with names
// [a b]. A bare relative "from . import a" reports one import per name.
func (x *extractor) importFromStatement(n *sitter.Node) {
	module := n.ChildByFieldName("module_name")
	if module == nil {
		return
	}
	modPath := x.text(module)
	loc := x.location(n)

	var names []string
	for _, c := range frontend.NamedChildren(n) {
		if c.StartByte() == module.StartByte() {
			continue
		}
		if name := importedName(c, x.src); name != "" {
			names = append(names, name)
		}
	}

	if strings.Trim(modPath, ".") == "" {
		for _, name := range names {
			x.file.Imports = append(x.file.Imports, frontend.Import{Path: modPath + name, Names: []string{name}, Location: loc})
		}
		return
	}
	x.file.Imports = append(x.file.Imports, frontend.Import{Path: modPath, Names: names, Location: loc})
}

func importedName(n *sitter.Node, src []byte) string {
	switch n.Kind() {
	case "dotted_name":
		return frontend.Text(n, src)
	case "aliased_import":
		return frontend.Text(n.ChildByFieldName("name"), src)
	}
	return ""
}

// definition converts a function, class or decorated definition. owner is
// the enclosing class name, empty at module level.
func (x *extractor) definition(n *sitter.Node, owner string) (frontend.Definition, bool) {
	var decorators []*sitter.Node
	if n.Kind() == "decorated_definition" {
		for _, c := range frontend.NamedChildren(n) {
			if c.Kind() == "decorator" {
				decorators = append(decorators, c)
			}
		}
		n = n.ChildByFieldName("definition")
		if n == nil {
			return frontend.Definition{}, false
		}
	}

	name := x.text(n.ChildByFieldName("name"))
	def := frontend.Definition{Name: name, Location: x.location(n)}

	switch n.Kind() {
	case "function_definition":
		def.Kind = frontend.FunctionDef
		def.Params = x.parameters(n.ChildByFieldName("parameters"))
		if rt := n.ChildByFieldName("return_type"); rt != nil {
			def.ReturnType, _ = normalizeHint(x.text(rt))
		}
		target := name
		if owner != "" {
			target = owner + "." + name
		}
		for _, d := range decorators {
			dec := x.decorator(d)
			def.Decorators = append(def.Decorators, dec.name)
			ann := frontend.Annotation{Name: dec.name, Target: target, Location: x.location(d)}
			if len(dec.args) > 0 {
				ann.PathArg = dec.args[0]
			}
			x.file.Annotations = append(x.file.Annotations, ann)
		}

	case "class_definition":
		def.Kind = frontend.ClassDef
		def.Bases = x.bases(n)
		for _, d := range decorators {
			def.Decorators = append(def.Decorators, x.decorator(d).name)
		}
		for _, stmt := range frontend.NamedChildren(n.ChildByFieldName("body")) {
			switch stmt.Kind() {
			case "function_definition", "class_definition", "decorated_definition":
				// nested classes are indexed under their own name
				memberOwner := name
				if stmt.Kind() == "class_definition" {
					memberOwner = ""
				}
				if member, ok := x.definition(stmt, memberOwner); ok {
					def.Body = append(def.Body, member)
				}
			}
		}

	default:
		return frontend.Definition{}, false
	}
	return def, true
}

func (x *extractor) bases(class *sitter.Node) []string {
	var out []string
	for _, c := range frontend.NamedChildren(class.ChildByFieldName("superclasses")) {
		if c.Kind() == "keyword_argument" {
			continue
		}
		out = append(out, x.text(c))
	}
	return out
}

type decoratorInfo struct {
	name string
	args []string
}

// decorator reads "@name" or "@name(args)". Arguments are positional values
// followed by keyword values.
func (x *extractor) decorator(d *sitter.Node) decoratorInfo {
	children := frontend.NamedChildren(d)
	if len(children) == 0 {
		return decoratorInfo{}
	}
	expr := children[0]
	if expr.Kind() != "call" {
		return decoratorInfo{name: dottedName(expr, x.src)}
	}

	info := decoratorInfo{name: dottedName(expr.ChildByFieldName("function"), x.src)}
	var keywords []string
	for _, a := range x.arguments(expr.ChildByFieldName("arguments")) {
		if a.Name != "" {
			keywords = append(keywords, a.Value)
			continue
		}
		info.args = append(info.args, a.Value)
	}
	info.args = append(info.args, keywords...)
	return info
}

// parameters converts a parameter list. Defaults keep their source text.
func (x *extractor) parameters(n *sitter.Node) []frontend.Param {
	var params []frontend.Param
	for _, c := range frontend.NamedChildren(n) {
		var p frontend.Param
		switch c.Kind() {
		case "identifier":
			p.Name = x.text(c)
		case "typed_parameter":
			for _, inner := range frontend.NamedChildren(c) {
				if inner.Kind() != "type" {
					p.Name = splatName(x.text(inner))
					break
				}
			}
			p.TypeText, p.Optional = normalizeHint(x.text(c.ChildByFieldName("type")))
		case "default_parameter":
			p.Name = x.text(c.ChildByFieldName("name"))
			p.Default = x.text(c.ChildByFieldName("value"))
			p.Optional = true
		case "typed_default_parameter":
			p.Name = x.text(c.ChildByFieldName("name"))
			p.TypeText, _ = normalizeHint(x.text(c.ChildByFieldName("type")))
			p.Default = x.text(c.ChildByFieldName("value"))
			p.Optional = true
		case "list_splat_pattern", "dictionary_splat_pattern":
			p.Name = splatName(x.text(c))
		default:
			continue
		}
		if p.Name != "" {
			params = append(params, p)
		}
	}
	return params
}

func splatName(s string) string {
	return strings.TrimLeft(s, "*")
}

// dottedName renders identifier and attribute chains as "a.b.c". Other
// expressions yield "".
func dottedName(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "identifier":
		return frontend.Text(n, src)
	case "attribute":
		base := dottedName(n.ChildByFieldName("object"), src)
		if base == "" {
			return ""
		}
		return fmt.Sprintf("%s.%s", base, frontend.Text(n.ChildByFieldName("attribute"), src))
	}
	return ""
}
