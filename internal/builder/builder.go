// Package builder turns source files, starting from an entry point, into a
// populated call graph. It drives a language front end, resolves imports to
// files, disambiguates same-named symbols across files and bounds recursion.
//
// A Builder is not safe for concurrent use.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/frontend"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

// ErrMaxDepthExceeded is matched by errors returned when the recursion limit
// is hit.
var ErrMaxDepthExceeded = errors.New("maximum recursion depth exceeded")

// DepthError reports the configured recursion limit that was exceeded.
type DepthError struct {
	Limit int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("maximum recursion depth (%d) exceeded", e.Limit)
}

// Is makes errors.Is(err, ErrMaxDepthExceeded) match.
func (e *DepthError) Is(target error) bool {
	return target == ErrMaxDepthExceeded
}

// DiagnosticKind classifies a soft failure.
type DiagnosticKind string

// Diagnostic kinds.
const (
	DiagUnresolvedImport DiagnosticKind = "unresolved_import"
	DiagExternalModule   DiagnosticKind = "external_module"
	DiagAmbiguousSymbol  DiagnosticKind = "ambiguous_symbol"
	DiagUnresolvedRoute  DiagnosticKind = "unresolved_route"
)

// Diagnostic is a non-fatal problem found while building.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	File    string         `json:"file"`
	Message string         `json:"message"`
}

// Builder incrementally builds a call graph.
type Builder struct {
	fe     frontend.Frontend
	layout frontend.Layout
	logger *slog.Logger

	graph     *callgraph.Graph
	processed map[string]bool
	modules   map[string]callgraph.NodeID
	symbols   *symbolIndex
	schemas   map[string]*schema.Reference

	root     string
	maxDepth int
	depth    int

	diagnostics []Diagnostic
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxDepth bounds the file recursion depth. Zero or less means unbounded.
func WithMaxDepth(n int) Option {
	return func(b *Builder) {
		b.maxDepth = n
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithProjectRoot fixes the root absolute imports resolve from. By default it
// is the directory of the first entry built.
func WithProjectRoot(dir string) Option {
	return func(b *Builder) {
		b.root = canonicalize(dir)
	}
}

// New creates a builder driving fe.
func New(fe frontend.Frontend, opts ...Option) *Builder {
	b := &Builder{
		fe:        fe,
		layout:    fe.Layout(),
		logger:    slog.New(slog.DiscardHandler),
		graph:     callgraph.New(),
		processed: make(map[string]bool),
		modules:   make(map[string]callgraph.NodeID),
		symbols:   newSymbolIndex(),
		schemas:   make(map[string]*schema.Reference),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Graph returns the graph built so far.
func (b *Builder) Graph() *callgraph.Graph {
	return b.graph
}

// Diagnostics returns the soft failures collected so far.
func (b *Builder) Diagnostics() []Diagnostic {
	return b.diagnostics
}

// ProjectRoot returns the directory absolute imports resolve from.
func (b *Builder) ProjectRoot() string {
	return b.root
}

// ProcessedFiles returns the canonical paths of every file built, sorted.
func (b *Builder) ProcessedFiles() []string {
	files := make([]string, 0, len(b.processed))
	for f := range b.processed {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// BuildFromEntry builds path and, recursively, everything it imports or calls
// into. Building an already processed file is a no-op. Read, parse and depth
// errors are fatal and propagate; unresolved imports and calls are not.
func (b *Builder) BuildFromEntry(ctx context.Context, path string) error {
	file := canonicalize(path)
	if b.processed[file] {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.maxDepth > 0 && b.depth >= b.maxDepth {
		return &DepthError{Limit: b.maxDepth}
	}
	b.depth++
	defer func() { b.depth-- }()

	if b.root == "" {
		b.root = filepath.Dir(file)
	}

	src, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	parsed, err := b.fe.Parse(file, src)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", file, err)
	}

	module := b.moduleNode(file)
	b.processed[file] = true
	b.logger.Debug("building file", "file", file, "depth", b.depth)

	for i := range parsed.Schemas {
		ref := parsed.Schemas[i]
		if _, exists := b.schemas[ref.Name]; !exists {
			b.schemas[ref.Name] = &ref
		}
	}

	if err := b.processImports(ctx, module, file, parsed.Imports); err != nil {
		return err
	}

	b.addDefinitions(file, parsed.Definitions, nil)

	if err := b.processCalls(ctx, module, file, parsed.Calls); err != nil {
		return err
	}

	b.processAnnotations(file, parsed.Annotations)
	return nil
}

func (b *Builder) moduleNode(file string) callgraph.NodeID {
	if id, ok := b.modules[file]; ok {
		return id
	}
	id := b.graph.AddNode(&callgraph.Module{Path: file})
	b.modules[file] = id
	return id
}

func (b *Builder) diag(kind DiagnosticKind, file, msg string, args ...any) {
	b.diagnostics = append(b.diagnostics, Diagnostic{Kind: kind, File: file, Message: msg})
	b.logger.Warn(msg, append([]any{"file", file}, args...)...)
}

func (b *Builder) processImports(ctx context.Context, module callgraph.NodeID, file string, imports []frontend.Import) error {
	for _, imp := range imports {
		target, err := b.resolveImport(imp.Path, file)
		if err != nil {
			kind := DiagUnresolvedImport
			if errors.Is(err, ErrExternalModule) {
				kind = DiagExternalModule
			}
			b.diag(kind, file, fmt.Sprintf("failed to resolve import %q", imp.Path), "error", err)
			continue
		}

		to := b.moduleNode(target)
		if err := b.graph.AddEdge(module, to, callgraph.Import{ImportPath: imp.Path, File: target}); err != nil {
			return err
		}
		if err := b.BuildFromEntry(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// addDefinitions indexes functions, classes and methods in document order.
// Classes are created before their members so methods can reference them.
func (b *Builder) addDefinitions(file string, defs []frontend.Definition, owner *ownerClass) {
	for i := range defs {
		def := &defs[i]
		switch def.Kind {
		case frontend.FunctionDef:
			if owner != nil {
				b.addMethod(file, def, owner)
				continue
			}
			id := b.graph.AddNode(&callgraph.Function{
				FuncName:   def.Name,
				File:       file,
				Line:       def.Location.Line,
				Params:     b.convertParams(def.Params),
				ReturnType: b.returnType(def.ReturnType),
			})
			b.symbols.add(file, def.Name, id)

		case frontend.ClassDef:
			cls := &callgraph.Class{ClassName: def.Name, File: file, Line: def.Location.Line}
			if ref, ok := b.schemas[def.Name]; ok && ref.Location.File == file {
				cls.Schema = ref
			}
			id := b.graph.AddNode(cls)
			b.symbols.add(file, def.Name, id)
			b.addDefinitions(file, def.Body, &ownerClass{name: def.Name, id: id})
		}
	}
}

type ownerClass struct {
	name string
	id   callgraph.NodeID
}

func (b *Builder) addMethod(file string, def *frontend.Definition, owner *ownerClass) {
	params := b.convertParams(def.Params)
	if b.layout.ImplicitReceiver && !def.IsStatic() && len(params) > 0 {
		params = params[1:]
	}

	id := b.graph.AddNode(&callgraph.Method{
		MethodName: def.Name,
		Class:      owner.id,
		Line:       def.Location.Line,
		Params:     params,
		ReturnType: b.returnType(def.ReturnType),
	})
	if err := b.graph.AddMethod(owner.id, id); err != nil {
		b.logger.Error("failed to attach method", "method", def.Name, "class", owner.name, "error", err)
	}
	b.symbols.add(file, owner.name+"."+def.Name, id)
}

func (b *Builder) convertParams(params []frontend.Param) []callgraph.Parameter {
	if len(params) == 0 {
		return nil
	}
	out := make([]callgraph.Parameter, len(params))
	for i, p := range params {
		ti := schema.TypeInfo{
			BaseType:  schema.BaseTypeFromString(p.TypeText),
			SchemaRef: p.Schema,
			Optional:  p.Optional,
		}
		if ti.SchemaRef == nil && p.TypeText != "" {
			ti.SchemaRef = b.schemas[p.TypeText]
		}
		if p.TypeText == "" {
			ti.BaseType = schema.Any
		}
		if ti.SchemaRef != nil {
			ti.BaseType = schema.Object
		}
		out[i] = callgraph.Parameter{
			Name:     p.Name,
			Type:     ti,
			Optional: p.Optional,
			Default:  p.Default,
		}
	}
	return out
}

func (b *Builder) returnType(text string) *schema.TypeInfo {
	if text == "" {
		return nil
	}
	ti := &schema.TypeInfo{BaseType: schema.BaseTypeFromString(text)}
	if ref, ok := b.schemas[text]; ok {
		ti.SchemaRef = ref
		ti.BaseType = schema.Object
	}
	return ti
}

func (b *Builder) processCalls(ctx context.Context, module callgraph.NodeID, file string, calls []frontend.Call) error {
	for _, call := range calls {
		caller := module
		if call.Enclosing != "" {
			id, ok := b.findFunctionNode(call.Enclosing, file)
			if !ok {
				continue
			}
			caller = id
		}

		callee, ok := b.resolveCallee(call, file)
		if !ok {
			continue
		}

		args := make([]callgraph.Argument, len(call.Args))
		for i, a := range call.Args {
			key := a.Name
			if key == "" {
				key = fmt.Sprintf("arg%d", i)
			}
			args[i] = callgraph.Argument{Param: key, Value: a.Value}
		}

		if err := b.graph.AddEdge(caller, callee, callgraph.Call{Args: args, Location: call.Location}); err != nil {
			return err
		}

		calleeFile, err := b.graph.FileOf(callee)
		if err != nil {
			return err
		}
		if calleeFile != "" && !b.processed[canonicalize(calleeFile)] {
			if err := b.BuildFromEntry(ctx, calleeFile); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveCallee looks the callee up by name. Receiver calls such as
// self.save() inside a method resolve against the enclosing class first.
func (b *Builder) resolveCallee(call frontend.Call, file string) (callgraph.NodeID, bool) {
	for _, recv := range []string{"self.", "this."} {
		rest, ok := strings.CutPrefix(call.Callee, recv)
		if !ok || call.Enclosing == "" {
			continue
		}
		if dot := strings.LastIndex(call.Enclosing, "."); dot > 0 {
			if id, ok := b.symbols.get(file, call.Enclosing[:dot]+"."+rest); ok {
				return id, true
			}
		}
	}
	return b.findFunctionNode(call.Callee, file)
}

// IsRouteAnnotation reports whether a decorator name binds an HTTP route.
func IsRouteAnnotation(name string) bool {
	return strings.HasPrefix(name, "app.") || strings.HasPrefix(name, "router.") || strings.Contains(name, ".route")
}

// RouteMethod extracts the HTTP method from the second dotted segment of an
// annotation name, defaulting to GET.
func RouteMethod(name string) callgraph.HTTPMethod {
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		if m, ok := callgraph.ParseHTTPMethod(parts[1]); ok {
			return m
		}
	}
	return callgraph.MethodGet
}

func (b *Builder) processAnnotations(file string, annotations []frontend.Annotation) {
	for _, ann := range annotations {
		if !IsRouteAnnotation(ann.Name) || ann.Target == "" {
			continue
		}

		handler, ok := b.findFunctionNode(ann.Target, file)
		if !ok {
			b.diag(DiagUnresolvedRoute, file, fmt.Sprintf("route handler %q not found", ann.Target), "annotation", ann.Name)
			continue
		}

		path := ann.PathArg
		if path == "" {
			path = "/"
		}
		loc := ann.Location
		if loc.File == "" {
			loc.File = file
		}

		route := b.graph.AddNode(&callgraph.Route{
			Path:     path,
			Method:   RouteMethod(ann.Name),
			Handler:  handler,
			Location: loc,
		})
		if err := b.graph.AddEdge(route, handler, callgraph.Call{Location: loc}); err != nil {
			b.logger.Error("failed to link route", "path", path, "error", err)
		}
	}
}

func canonicalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}
