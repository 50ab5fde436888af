package typescript

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/leapstack-labs/dcverify/internal/frontend"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

type zodCall struct {
	name string
	args []*sitter.Node
}

// zodChain unwinds "z.string().email().optional()" into the base call and
// its modifiers, outermost first.
func (x *extractor) zodChain(n *sitter.Node) (base zodCall, mods []zodCall, ok bool) {
	for n != nil && n.Kind() == "call_expression" {
		fn := n.ChildByFieldName("function")
		if fn == nil || fn.Kind() != "member_expression" {
			return zodCall{}, nil, false
		}
		call := zodCall{
			name: x.text(fn.ChildByFieldName("property")),
			args: frontend.NamedChildren(n.ChildByFieldName("arguments")),
		}
		obj := fn.ChildByFieldName("object")
		if obj.Kind() == "identifier" {
			if id := x.text(obj); id == "z" || id == "zod" {
				return call, mods, true
			}
			return zodCall{}, nil, false
		}
		mods = append(mods, call)
		n = obj
	}
	return zodCall{}, nil, false
}

// zodJSON converts a Zod expression to JSON schema keywords and reports
// whether the value may be omitted.
func (x *extractor) zodJSON(n *sitter.Node) (map[string]any, bool) {
	base, mods, ok := x.zodChain(n)
	if !ok {
		return map[string]any{}, false
	}

	out := map[string]any{}
	switch base.name {
	case "string", "date":
		out["type"] = "string"
	case "number", "bigint":
		out["type"] = "number"
	case "boolean":
		out["type"] = "boolean"
	case "array":
		out["type"] = "array"
		if len(base.args) > 0 {
			items, _ := x.zodJSON(base.args[0])
			out["items"] = items
		}
	case "object":
		if len(base.args) > 0 {
			props, required, _ := x.zodObject(base.args[0])
			return mergeModifiers(x, map[string]any{"type": "object", "properties": props, "required": required}, mods)
		}
		out["type"] = "object"
	case "record":
		out["type"] = "object"
	case "enum":
		out["type"] = "string"
		if len(base.args) > 0 {
			var values []any
			for _, v := range frontend.NamedChildren(base.args[0]) {
				values = append(values, x.value(v))
			}
			out["enum"] = values
		}
	}
	return mergeModifiers(x, out, mods)
}

func mergeModifiers(x *extractor, out map[string]any, mods []zodCall) (map[string]any, bool) {
	optional := false
	isString := out["type"] == "string"
	for _, m := range mods {
		switch m.name {
		case "optional", "nullable", "nullish":
			optional = true
		case "default":
			optional = true
		case "email":
			out["format"] = "email"
		case "url":
			out["format"] = "uri"
		case "int":
			out["type"] = "integer"
		case "min", "gte", "gt", "nonempty", "positive", "nonnegative":
			key := "minimum"
			if isString {
				key = "minLength"
			}
			switch {
			case m.name == "nonempty":
				out[key] = 1.0
			case m.name == "positive" || m.name == "nonnegative":
				out[key] = 0.0
			default:
				setNumber(x, out, key, m.args)
			}
		case "max", "lte", "lt":
			key := "maximum"
			if isString {
				key = "maxLength"
			}
			setNumber(x, out, key, m.args)
		case "length":
			setNumber(x, out, "minLength", m.args)
			setNumber(x, out, "maxLength", m.args)
		case "regex":
			if len(m.args) > 0 && m.args[0].Kind() == "regex" {
				out["pattern"] = x.text(m.args[0].ChildByFieldName("pattern"))
			}
		}
	}
	return out, optional
}

func setNumber(x *extractor, out map[string]any, key string, args []*sitter.Node) {
	if len(args) == 0 {
		return
	}
	if v, err := strconv.ParseFloat(x.text(args[0]), 64); err == nil {
		out[key] = v
	}
}

// zodObject reads the shape literal of z.object({...}). Keys keep source
// order.
func (x *extractor) zodObject(obj *sitter.Node) (map[string]any, []string, []string) {
	props := map[string]any{}
	required := []string{}
	var order []string
	if obj.Kind() != "object" {
		return props, required, order
	}
	for _, pair := range frontend.NamedChildren(obj) {
		if pair.Kind() != "pair" {
			continue
		}
		key := x.value(pair.ChildByFieldName("key"))
		prop, optional := x.zodJSON(pair.ChildByFieldName("value"))
		props[key] = prop
		order = append(order, key)
		if !optional {
			required = append(required, key)
		}
	}
	return props, required, order
}

// zodSchema records "const UserSchema = z.object({...})" as a frontend
// validator schema.
func (x *extractor) zodSchema(name string, call *sitter.Node, loc schema.Location) {
	base, _, ok := x.zodChain(call)
	if !ok || base.name != "object" || len(base.args) == 0 {
		return
	}
	props, required, order := x.zodObject(base.args[0])
	raw, err := json.Marshal(map[string]any{"type": "object", "properties": props, "required": required})
	if err != nil {
		return
	}

	tokens := make([]string, 0, len(order))
	for _, key := range order {
		t, _ := props[key].(map[string]any)["type"].(string)
		if t == "" {
			t = "any"
		}
		tokens = append(tokens, key+":"+t+":"+marker(slices.Contains(required, key)))
	}

	x.file.Schemas = append(x.file.Schemas, schema.Reference{
		Name:     name,
		Type:     schema.FrontendValidator,
		Location: loc,
		Metadata: map[string]string{
			schema.MetaJSONSchema: string(raw),
			schema.MetaFields:     strings.Join(tokens, ","),
		},
	})
}

func (x *extractor) interfaceSchema(n *sitter.Node) {
	x.objectTypeSchema(x.text(n.ChildByFieldName("name")), n.ChildByFieldName("body"), x.location(n))
}

func (x *extractor) typeAliasSchema(n *sitter.Node) {
	value := n.ChildByFieldName("value")
	if value == nil || value.Kind() != "object_type" {
		return
	}
	x.objectTypeSchema(x.text(n.ChildByFieldName("name")), value, x.location(n))
}

// objectTypeSchema records an interface or object type alias as a native
// type schema described by a field list.
func (x *extractor) objectTypeSchema(name string, body *sitter.Node, loc schema.Location) {
	if name == "" || body == nil {
		return
	}
	var tokens []string
	for _, member := range frontend.NamedChildren(body) {
		if member.Kind() != "property_signature" {
			continue
		}
		optional := false
		for i := uint(0); i < member.ChildCount(); i++ {
			if c := member.Child(i); c != nil && c.Kind() == "?" {
				optional = true
			}
		}
		typeName := "any"
		if t := member.ChildByFieldName("type"); t != nil {
			var nullable bool
			typeName, nullable = normalizeType(typeAnnotation(x.text(t)))
			optional = optional || nullable
		}
		tokens = append(tokens, x.text(member.ChildByFieldName("name"))+":"+fieldType(typeName)+":"+marker(!optional))
	}

	x.file.Schemas = append(x.file.Schemas, schema.Reference{
		Name:     name,
		Type:     schema.LanguageNativeType,
		Location: loc,
		Metadata: map[string]string{schema.MetaFields: strings.Join(tokens, ",")},
	})
}

func fieldType(t string) string {
	if t == "" || strings.ContainsAny(t, ",:<>[]{}() |") {
		return "any"
	}
	return t
}

func marker(required bool) string {
	if required {
		return "required"
	}
	return "optional"
}
