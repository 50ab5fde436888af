// Package callgraph provides the directed, labeled graph of program entities
// (modules, functions, classes, methods, routes) and the import, call and
// return relations between them.
//
// Nodes live in a single arena and are addressed by NodeID, an index ordered
// by creation. Node references held by other nodes (a method's owning class,
// a route's handler) are plain NodeIDs, not ownership.
package callgraph

import (
	"strings"

	"github.com/leapstack-labs/dcverify/internal/schema"
)

// NodeID addresses a node in a Graph.
type NodeID int

// NodeKind identifies the variant of a Node.
type NodeKind string

// Node kinds.
const (
	KindModule   NodeKind = "module"
	KindFunction NodeKind = "function"
	KindClass    NodeKind = "class"
	KindMethod   NodeKind = "method"
	KindRoute    NodeKind = "route"
)

// Node is one program entity. Implementations are *Module, *Function,
// *Class, *Method and *Route.
type Node interface {
	Kind() NodeKind
	// Name is the symbol name, the module path for modules and the URL path
	// for routes.
	Name() string
}

// Parameter is a declared function or method parameter.
type Parameter struct {
	Name     string          `json:"name"`
	Type     schema.TypeInfo `json:"type_info"`
	Optional bool            `json:"optional"`
	Default  string          `json:"default_value,omitempty"`
}

// Module is a source file.
type Module struct {
	Path string `json:"path"`
}

// Function is a free function.
type Function struct {
	FuncName   string           `json:"name"`
	File       string           `json:"file"`
	Line       int              `json:"line"`
	Params     []Parameter      `json:"parameters,omitempty"`
	ReturnType *schema.TypeInfo `json:"return_type,omitempty"`
}

// Class is a class definition. Methods is append-only and deduplicated.
type Class struct {
	ClassName string   `json:"name"`
	File      string   `json:"file"`
	Line      int      `json:"line,omitempty"`
	Methods   []NodeID `json:"methods,omitempty"`

	// Schema is set when the class itself declares a data model.
	Schema *schema.Reference `json:"schema,omitempty"`
}

// Method is a function bound to a class.
type Method struct {
	MethodName string           `json:"name"`
	Class      NodeID           `json:"owning_class"`
	Line       int              `json:"line,omitempty"`
	Params     []Parameter      `json:"parameters,omitempty"`
	ReturnType *schema.TypeInfo `json:"return_type,omitempty"`
}

// Route is an HTTP endpoint bound to a handler.
type Route struct {
	Path     string          `json:"path"`
	Method   HTTPMethod      `json:"http_method"`
	Handler  NodeID          `json:"handler"`
	Location schema.Location `json:"location"`
}

func (*Module) Kind() NodeKind   { return KindModule }
func (*Function) Kind() NodeKind { return KindFunction }
func (*Class) Kind() NodeKind    { return KindClass }
func (*Method) Kind() NodeKind   { return KindMethod }
func (*Route) Kind() NodeKind    { return KindRoute }

func (n *Module) Name() string   { return n.Path }
func (n *Function) Name() string { return n.FuncName }
func (n *Class) Name() string    { return n.ClassName }
func (n *Method) Name() string   { return n.MethodName }
func (n *Route) Name() string    { return n.Path }

// Location returns where the function is defined.
func (n *Function) Location() schema.Location {
	return schema.Location{File: n.File, Line: n.Line}
}

// HTTPMethod is an HTTP request method.
type HTTPMethod string

// Supported HTTP methods.
const (
	MethodGet     HTTPMethod = "GET"
	MethodPost    HTTPMethod = "POST"
	MethodPut     HTTPMethod = "PUT"
	MethodPatch   HTTPMethod = "PATCH"
	MethodDelete  HTTPMethod = "DELETE"
	MethodOptions HTTPMethod = "OPTIONS"
	MethodHead    HTTPMethod = "HEAD"
)

// ParseHTTPMethod parses s case-insensitively.
func ParseHTTPMethod(s string) (HTTPMethod, bool) {
	switch m := HTTPMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodOptions, MethodHead:
		return m, true
	default:
		return "", false
	}
}
