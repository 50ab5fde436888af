package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoSize is the number of parsed schemas a Parser keeps.
const DefaultMemoSize = 512

// JSONSchema is the canonical structural form used for comparison.
type JSONSchema struct {
	Type        string                `json:"type"`
	Properties  map[string]*FieldInfo `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Items       *JSONSchema           `json:"items,omitempty"`
	Constraints []Constraint          `json:"constraints,omitempty"`
}

// FieldInfo describes one property of an object schema.
type FieldInfo struct {
	TypeName    string       `json:"type_name"`
	BaseType    BaseType     `json:"base_type"`
	Optional    bool         `json:"optional"`
	Constraints []Constraint `json:"constraints,omitempty"`
	Nested      *JSONSchema  `json:"nested,omitempty"`
}

// IsRequired reports whether name is listed in the required list.
func (s *JSONSchema) IsRequired(name string) bool {
	return slices.Contains(s.Required, name)
}

func emptyObject() *JSONSchema {
	return &JSONSchema{Type: "object", Properties: map[string]*FieldInfo{}}
}

// Parser normalizes References into JSONSchemas. Results are memoized by
// reference contents; returned schemas are shared and must not be mutated.
type Parser struct {
	memo *lru.Cache[string, *JSONSchema]
}

// NewParser creates a parser that memoizes up to size results.
// A non-positive size disables memoization.
func NewParser(size int) *Parser {
	p := &Parser{}
	if size > 0 {
		if memo, err := lru.New[string, *JSONSchema](size); err == nil {
			p.memo = memo
		}
	}
	return p
}

// Parse normalizes ref. Strategies in priority order: an embedded JSON schema
// under "json_schema", a flattened "fields" list, a bare "type", and finally an
// empty object shape. Only a malformed embedded JSON schema is an error.
func (p *Parser) Parse(ref *Reference) (*JSONSchema, error) {
	if ref == nil {
		return emptyObject(), nil
	}

	var key string
	if p != nil && p.memo != nil {
		key = ref.Fingerprint()
		if cached, ok := p.memo.Get(key); ok {
			return cached, nil
		}
	}

	s, err := parseReference(ref)
	if err != nil {
		return nil, err
	}

	if key != "" {
		p.memo.Add(key, s)
	}
	return s, nil
}

func parseReference(ref *Reference) (*JSONSchema, error) {
	if raw, ok := ref.Metadata[MetaJSONSchema]; ok {
		var v map[string]any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to parse json schema for %s: %w", ref.Name, err)
		}
		s := parseJSONValue(v)
		for name, f := range s.Properties {
			f.Optional = !s.IsRequired(name)
		}
		return s, nil
	}

	if fields, ok := ref.Metadata[MetaFields]; ok {
		return parseFieldList(fields, splitList(ref.Metadata[MetaRequired])), nil
	}

	if t, ok := ref.Metadata[MetaType]; ok {
		return &JSONSchema{Type: string(BaseTypeFromString(t)), Properties: map[string]*FieldInfo{}}, nil
	}

	return emptyObject(), nil
}

// parseFieldList reads "name:type[:optional|required]" tokens. Without an
// explicit marker a field is optional when no required list was given and
// required otherwise.
func parseFieldList(fields string, required []string) *JSONSchema {
	s := emptyObject()
	s.Required = append(s.Required, required...)

	for _, token := range strings.Split(fields, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		parts := strings.Split(token, ":")
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		typeName := strings.TrimSpace(parts[1])
		if name == "" || typeName == "" {
			continue
		}

		optional := len(required) == 0
		if len(parts) >= 3 {
			switch strings.ToLower(strings.TrimSpace(parts[2])) {
			case "optional":
				optional = true
			case "required":
				optional = false
			}
		}

		s.Properties[name] = &FieldInfo{
			TypeName: typeName,
			BaseType: BaseTypeFromString(typeName),
			Optional: optional,
		}
		if !optional && !s.IsRequired(name) {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseJSONValue(v map[string]any) *JSONSchema {
	s := emptyObject()
	if t, ok := v["type"].(string); ok {
		s.Type = t
	}

	if props, ok := v["properties"].(map[string]any); ok {
		for name, raw := range props {
			prop, _ := raw.(map[string]any)
			s.Properties[name] = parseProperty(prop)
		}
	}

	if req, ok := v["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}

	s.Constraints = parseConstraints(v)

	if items, ok := v["items"].(map[string]any); ok {
		s.Items = parseJSONValue(items)
	}
	return s
}

func parseProperty(v map[string]any) *FieldInfo {
	typeName := "any"
	if t, ok := v["type"].(string); ok {
		typeName = t
	}
	f := &FieldInfo{
		TypeName:    typeName,
		BaseType:    BaseTypeFromString(typeName),
		Optional:    true,
		Constraints: parseConstraints(v),
	}
	if typeName == "object" {
		f.Nested = parseJSONValue(v)
	}
	return f
}

func parseConstraints(v map[string]any) []Constraint {
	var cs []Constraint
	if n, ok := v["minimum"].(float64); ok {
		cs = append(cs, Constraint{Kind: ConstraintMin, Value: n})
	}
	if n, ok := v["maximum"].(float64); ok {
		cs = append(cs, Constraint{Kind: ConstraintMax, Value: n})
	}
	if n, ok := v["minLength"].(float64); ok && n >= 0 {
		cs = append(cs, Constraint{Kind: ConstraintMin, Value: n, Length: true})
	}
	if n, ok := v["maxLength"].(float64); ok && n >= 0 {
		cs = append(cs, Constraint{Kind: ConstraintMax, Value: n, Length: true})
	}
	if pattern, ok := v["pattern"].(string); ok {
		cs = append(cs, Constraint{Kind: ConstraintPattern, Pattern: pattern})
	}
	switch v["format"] {
	case "email":
		cs = append(cs, Constraint{Kind: ConstraintEmail})
	case "uri":
		cs = append(cs, Constraint{Kind: ConstraintURL})
	}
	if values, ok := v["enum"].([]any); ok {
		var strs []string
		for _, e := range values {
			if s, ok := e.(string); ok {
				strs = append(strs, s)
			}
		}
		if len(strs) > 0 {
			cs = append(cs, Constraint{Kind: ConstraintEnum, Values: strs})
		}
	}
	return cs
}
