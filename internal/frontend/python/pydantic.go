package python

import (
	"encoding/json"
	"strconv"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/leapstack-labs/dcverify/internal/frontend"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

var modelBases = map[string]bool{
	"BaseModel":          true,
	"pydantic.BaseModel": true,
}

// model is a Pydantic model declared in the file.
type model struct {
	name   string
	fields []modelField
}

type modelField struct {
	name        string
	typeName    string
	optional    bool
	hasDefault  bool
	constraints map[string]any
}

func (f modelField) required() bool {
	return !f.optional && !f.hasDefault
}

// collectModels finds top-level classes deriving from BaseModel, directly or
// through a model declared earlier in the same file, and reports each as a
// backend model schema.
func (x *extractor) collectModels(root *sitter.Node) {
	for _, stmt := range frontend.NamedChildren(root) {
		class := stmt
		if class.Kind() == "decorated_definition" {
			class = class.ChildByFieldName("definition")
		}
		if class == nil || class.Kind() != "class_definition" {
			continue
		}
		if !x.isModel(x.bases(class)) {
			continue
		}

		m := &model{name: x.text(class.ChildByFieldName("name"))}
		for _, base := range x.bases(class) {
			if parent, ok := x.models[base]; ok {
				m.fields = append(m.fields, parent.fields...)
			}
		}
		for _, s := range frontend.NamedChildren(class.ChildByFieldName("body")) {
			if f, ok := x.modelField(s); ok {
				m.fields = overrideField(m.fields, f)
			}
		}
		x.models[m.name] = m
		x.file.Schemas = append(x.file.Schemas, x.modelReference(m, x.location(class)))
	}
}

func (x *extractor) isModel(bases []string) bool {
	for _, b := range bases {
		if modelBases[b] || strings.HasSuffix(b, ".BaseModel") || x.models[b] != nil {
			return true
		}
	}
	return false
}

func overrideField(fields []modelField, f modelField) []modelField {
	for i := range fields {
		if fields[i].name == f.name {
			fields[i] = f
			return fields
		}
	}
	return append(fields, f)
}

// modelField reads "name: T" or "name: T = default" from a class body.
func (x *extractor) modelField(stmt *sitter.Node) (modelField, bool) {
	if stmt.Kind() != "expression_statement" || stmt.NamedChildCount() == 0 {
		return modelField{}, false
	}
	assign := stmt.NamedChild(0)
	if assign.Kind() != "assignment" {
		return modelField{}, false
	}
	left, typ := assign.ChildByFieldName("left"), assign.ChildByFieldName("type")
	if left == nil || typ == nil || left.Kind() != "identifier" {
		return modelField{}, false
	}
	name := x.text(left)
	if strings.HasPrefix(name, "_") || name == "model_config" {
		return modelField{}, false
	}

	f := modelField{name: name, constraints: map[string]any{}}
	f.typeName, f.optional = normalizeHint(x.text(typ))

	right := assign.ChildByFieldName("right")
	if right == nil {
		return f, true
	}
	callee := ""
	if right.Kind() == "call" {
		callee = dottedName(right.ChildByFieldName("function"), x.src)
	}
	if callee != "Field" && callee != "pydantic.Field" {
		f.hasDefault = right.Kind() != "ellipsis"
		return f, true
	}

	for i, c := range frontend.NamedChildren(right.ChildByFieldName("arguments")) {
		if c.Kind() != "keyword_argument" {
			if i == 0 {
				f.hasDefault = c.Kind() != "ellipsis"
			}
			continue
		}
		key := x.text(c.ChildByFieldName("name"))
		val := c.ChildByFieldName("value")
		switch key {
		case "default":
			f.hasDefault = val.Kind() != "ellipsis"
		case "default_factory":
			f.hasDefault = true
		case "gt", "ge":
			setNumber(f.constraints, "minimum", x.text(val))
		case "lt", "le":
			setNumber(f.constraints, "maximum", x.text(val))
		case "min_length":
			setNumber(f.constraints, "minLength", x.text(val))
		case "max_length":
			setNumber(f.constraints, "maxLength", x.text(val))
		case "pattern", "regex":
			f.constraints["pattern"] = x.value(val)
		}
	}
	return f, true
}

func setNumber(m map[string]any, key, text string) {
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		m[key] = v
	}
}

// jsonType maps a normalized hint to JSON schema keywords.
func (x *extractor) jsonType(typeName string, seen map[string]bool) map[string]any {
	switch typeName {
	case "str":
		return map[string]any{"type": "string"}
	case "EmailStr":
		return map[string]any{"type": "string", "format": "email"}
	case "HttpUrl", "AnyUrl", "AnyHttpUrl":
		return map[string]any{"type": "string", "format": "uri"}
	case "int":
		return map[string]any{"type": "integer"}
	case "float", "Decimal":
		return map[string]any{"type": "number"}
	case "bool":
		return map[string]any{"type": "boolean"}
	case "list":
		return map[string]any{"type": "array"}
	case "dict":
		return map[string]any{"type": "object"}
	}
	if m, ok := x.models[typeName]; ok && !seen[typeName] {
		seen[typeName] = true
		defer delete(seen, typeName)
		return x.modelJSON(m, seen)
	}
	return map[string]any{}
}

func (x *extractor) modelJSON(m *model, seen map[string]bool) map[string]any {
	props := make(map[string]any, len(m.fields))
	required := []string{}
	for _, f := range m.fields {
		prop := x.jsonType(f.typeName, seen)
		for k, v := range f.constraints {
			prop[k] = v
		}
		props[f.name] = prop
		if f.required() {
			required = append(required, f.name)
		}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// modelReference serializes m both as a JSON schema and as a flat field
// list, so consumers that only read one form still see the model.
func (x *extractor) modelReference(m *model, loc schema.Location) schema.Reference {
	ref := schema.Reference{
		Name:     m.name,
		Type:     schema.BackendModel,
		Location: loc,
		Metadata: map[string]string{},
	}
	if raw, err := json.Marshal(x.modelJSON(m, map[string]bool{m.name: true})); err == nil {
		ref.Metadata[schema.MetaJSONSchema] = string(raw)
	}

	tokens := make([]string, 0, len(m.fields))
	for _, f := range m.fields {
		marker := "optional"
		if f.required() {
			marker = "required"
		}
		tokens = append(tokens, f.name+":"+fieldTypeToken(f.typeName)+":"+marker)
	}
	ref.Metadata[schema.MetaFields] = strings.Join(tokens, ",")
	return ref
}

// fieldTypeToken keeps field list tokens free of separators.
func fieldTypeToken(t string) string {
	if strings.ContainsAny(t, ",:[] |") {
		return "any"
	}
	return t
}
