package contract

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/dcverify/internal/schema"
)

func init() {
	Register(TypeMismatchRule{})
	Register(MissingFieldRule{})
	Register(UnnormalizedDataRule{})
}

func sortedFields(s *schema.JSONSchema) []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func typeOf(f *schema.FieldInfo) schema.TypeInfo {
	return schema.TypeInfo{BaseType: f.BaseType, Constraints: f.Constraints, Optional: f.Optional}
}

// TypeMismatchRule reports fields present on both sides whose base types
// differ. Any and Unknown are compared like every other base type.
type TypeMismatchRule struct{}

func (TypeMismatchRule) ID() string                { return string(TypeMismatch) }
func (TypeMismatchRule) Name() string              { return "type mismatch" }
func (TypeMismatchRule) DefaultSeverity() Severity { return SeverityCritical }
func (TypeMismatchRule) Description() string {
	return "A field present on both sides has a different base type."
}

func (TypeMismatchRule) Check(source, sink *schema.JSONSchema) []Mismatch {
	var out []Mismatch
	for _, name := range sortedFields(sink) {
		want := sink.Properties[name]
		got, ok := source.Properties[name]
		if !ok || want.BaseType == got.BaseType {
			continue
		}
		out = append(out, Mismatch{
			Type:     TypeMismatch,
			Path:     name,
			Expected: typeOf(want),
			Actual:   typeOf(got),
			Message:  fmt.Sprintf("Type mismatch for field '%s': expected %s, got %s", name, want.BaseType, got.BaseType),
		})
	}
	return out
}

// MissingFieldRule reports sink fields the source does not provide. A sink
// field counts as required when it is in the required list or is not
// optional.
type MissingFieldRule struct{}

func (MissingFieldRule) ID() string                { return string(MissingField) }
func (MissingFieldRule) Name() string              { return "missing field" }
func (MissingFieldRule) DefaultSeverity() Severity { return SeverityWarning }
func (MissingFieldRule) Description() string {
	return "A field the sink requires is absent from the source."
}

func (MissingFieldRule) Check(source, sink *schema.JSONSchema) []Mismatch {
	var out []Mismatch
	var reported []string
	missing := func(name string, want *schema.FieldInfo) {
		if _, ok := source.Properties[name]; ok || slices.Contains(reported, name) {
			return
		}
		reported = append(reported, name)
		expected := schema.TypeInfo{BaseType: schema.Unknown}
		if want != nil {
			expected = typeOf(want)
		}
		out = append(out, Mismatch{
			Type:     MissingField,
			Path:     name,
			Expected: expected,
			Actual:   schema.TypeInfo{BaseType: schema.Null, Optional: true},
			Message:  fmt.Sprintf("Required field '%s' is missing from source", name),
		})
	}

	for _, name := range sink.Required {
		missing(name, sink.Properties[name])
	}
	for _, name := range sortedFields(sink) {
		if f := sink.Properties[name]; !f.Optional {
			missing(name, f)
		}
	}
	return out
}

// UnnormalizedDataRule flags a sink string field validated as an email or
// by pattern when the source field of the same name is an unvalidated
// string.
type UnnormalizedDataRule struct{}

func (UnnormalizedDataRule) ID() string                { return string(UnnormalizedData) }
func (UnnormalizedDataRule) Name() string              { return "unnormalized data" }
func (UnnormalizedDataRule) DefaultSeverity() Severity { return SeverityWarning }
func (UnnormalizedDataRule) Description() string {
	return "The sink validates a string format the source never checks."
}

func (UnnormalizedDataRule) Check(source, sink *schema.JSONSchema) []Mismatch {
	var out []Mismatch
	for _, name := range sortedFields(sink) {
		want := sink.Properties[name]
		got, ok := source.Properties[name]
		if !ok || want.BaseType != schema.String || got.BaseType != schema.String {
			continue
		}
		kind := validation(want.Constraints)
		if kind == "" || validation(got.Constraints) != "" {
			continue
		}
		out = append(out, Mismatch{
			Type:     UnnormalizedData,
			Path:     name,
			Expected: typeOf(want),
			Actual:   typeOf(got),
			Message:  fmt.Sprintf("Field '%s' requires %s validation but source is an unvalidated string", name, kind),
		})
	}
	return out
}

func validation(cs []schema.Constraint) string {
	switch {
	case schema.HasConstraint(cs, schema.ConstraintEmail):
		return "email"
	case schema.HasConstraint(cs, schema.ConstraintPattern):
		return "pattern"
	}
	return ""
}
