// Package schema holds the source-independent description of data shapes
// (schema references, type info, constraints) and normalizes them into a
// canonical structural form for contract comparison.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Location points at a position in a source file. Line and Column are 1-based;
// a zero Column means the column is unknown.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// String renders the location as file:line[:column].
func (l Location) String() string {
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Type classifies where a schema reference was captured from.
type Type string

// Schema types.
const (
	FrontendValidator  Type = "frontend_validator"
	BackendModel       Type = "backend_model"
	LanguageNativeType Type = "language_native_type"
	APISpec            Type = "api_spec"
	GenericJSONSchema  Type = "generic_json_schema"
)

// Metadata keys understood by the Parser.
const (
	MetaJSONSchema = "json_schema"
	MetaFields     = "fields"
	MetaRequired   = "required"
	MetaType       = "type"
	MetaBaseType   = "base_type"
)

// Reference names a schema and carries whatever was captured about its shape.
// Metadata is a loose side channel: a serialized JSON schema, a flattened
// field list, or a bare type name.
type Reference struct {
	Name     string            `json:"name"`
	Type     Type              `json:"schema_type"`
	Location Location          `json:"location"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Fingerprint returns a stable identity for the reference contents. Metadata
// keys are encoded in sorted order and values are quoted, so separators
// inside a value cannot collide with another reference.
func (r *Reference) Fingerprint() string {
	b, _ := json.Marshal(struct {
		Type     Type              `json:"t"`
		Name     string            `json:"n"`
		Metadata map[string]string `json:"m,omitempty"`
	}{r.Type, r.Name, r.Metadata})
	return string(b)
}

// BaseType is the canonical primitive kind of a value.
type BaseType string

// Base types.
const (
	String  BaseType = "string"
	Number  BaseType = "number"
	Integer BaseType = "integer"
	Boolean BaseType = "boolean"
	Object  BaseType = "object"
	Array   BaseType = "array"
	Null    BaseType = "null"
	Any     BaseType = "any"
	Unknown BaseType = "unknown"
)

// BaseTypeFromString maps a declared type token onto a BaseType. Matching is
// case-insensitive and unrecognized tokens yield Unknown.
func BaseTypeFromString(s string) BaseType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "str", "string":
		return String
	case "int", "integer":
		return Integer
	case "number", "float", "double":
		return Number
	case "bool", "boolean":
		return Boolean
	case "list", "array":
		return Array
	case "dict", "object":
		return Object
	case "null", "none":
		return Null
	default:
		return Unknown
	}
}

// TypeInfo describes the type of a parameter, field or value.
type TypeInfo struct {
	BaseType    BaseType     `json:"base_type"`
	SchemaRef   *Reference   `json:"schema_ref,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
	Optional    bool         `json:"optional"`
}

// ConstraintKind identifies a validation constraint.
type ConstraintKind string

// Constraint kinds.
const (
	ConstraintMin     ConstraintKind = "min"
	ConstraintMax     ConstraintKind = "max"
	ConstraintPattern ConstraintKind = "pattern"
	ConstraintEmail   ConstraintKind = "email"
	ConstraintURL     ConstraintKind = "url"
	ConstraintEnum    ConstraintKind = "enum"
)

// Constraint is a validation rule attached to a type. Min and Max carry either
// a numeric bound or, when Length is set, a string length bound.
type Constraint struct {
	Kind    ConstraintKind `json:"kind"`
	Value   float64        `json:"value,omitempty"`
	Length  bool           `json:"length,omitempty"`
	Pattern string         `json:"pattern,omitempty"`
	Values  []string       `json:"values,omitempty"`
}

// HasConstraint reports whether cs contains a constraint of the given kind.
func HasConstraint(cs []Constraint, kind ConstraintKind) bool {
	for _, c := range cs {
		if c.Kind == kind {
			return true
		}
	}
	return false
}
