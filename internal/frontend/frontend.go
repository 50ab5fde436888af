// Package frontend defines the normalized events a source-language front end
// produces for one file, and the contract the call graph builder drives.
package frontend

import (
	"errors"
	"strings"

	"github.com/leapstack-labs/dcverify/internal/schema"
)

// ImportStyle selects how import specifiers map to files.
type ImportStyle int

const (
	// DottedImports resolves "pkg.mod" and leading-dot relative specifiers.
	DottedImports ImportStyle = iota
	// PathImports resolves "./mod" style specifiers; bare specifiers are external.
	PathImports
)

// Layout describes how a language lays out modules on disk.
type Layout struct {
	Style ImportStyle
	// Extensions are tried in order when a resolved path has none.
	Extensions []string
	// PackageInit is the file a directory import resolves to.
	PackageInit string
	// ImplicitReceiver drops the first parameter of non-static methods.
	ImplicitReceiver bool
}

// Frontend parses one source file into normalized events.
type Frontend interface {
	Language() string
	Layout() Layout
	Parse(path string, src []byte) (*File, error)
}

// File holds everything a front end extracted from one source file.
type File struct {
	Path        string
	Imports     []Import
	Calls       []Call
	Definitions []Definition
	Annotations []Annotation
	Schemas     []schema.Reference
}

// Import is one import statement.
type Import struct {
	Path     string
	Names    []string
	Location schema.Location
}

// Argument is a call argument. Name is empty for positional arguments.
type Argument struct {
	Name  string
	Value string
}

// Call is one call site. Enclosing is the dotted symbol of the function or
// method containing the call, empty at module level.
type Call struct {
	Callee    string
	Args      []Argument
	Location  schema.Location
	Enclosing string
}

// DefinitionKind tells functions from classes.
type DefinitionKind int

// Definition kinds.
const (
	FunctionDef DefinitionKind = iota
	ClassDef
)

// Param is a declared parameter.
type Param struct {
	Name     string
	TypeText string
	Optional bool
	Default  string
	Schema   *schema.Reference
}

// Definition is a function or class. Class members (methods and nested
// classes) are in Body, in document order.
type Definition struct {
	Kind       DefinitionKind
	Name       string
	Params     []Param
	ReturnType string
	Decorators []string
	Bases      []string
	Body       []Definition
	Location   schema.Location
}

// IsStatic reports whether the definition carries a static method marker.
func (d *Definition) IsStatic() bool {
	for _, dec := range d.Decorators {
		if dec == "staticmethod" || strings.HasSuffix(dec, ".staticmethod") {
			return true
		}
	}
	return false
}

// Annotation is a decorator applied to a function. Target is the decorated
// symbol, "Class.method" inside a class. PathArg is the first argument, if any.
type Annotation struct {
	Name     string
	Target   string
	PathArg  string
	Location schema.Location
}

// ErrSyntax is wrapped by front ends when source text does not parse.
var ErrSyntax = errors.New("syntax error")
