// Package openapi extracts per-endpoint request and response schemas from an
// OpenAPI document (JSON or YAML) so routes without a declared model can
// still be compared against the published API contract.
package openapi

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

// Methods are the operation keys of a path item. Other keys (parameters,
// summary, servers) are skipped.
var Methods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

// Endpoint is one operation of the document.
type Endpoint struct {
	Path        string
	Method      string // upper case
	OperationID string
	Location    schema.Location
	Request     *schema.Reference
	Response    *schema.Reference
}

// Document is a parsed OpenAPI document.
type Document struct {
	File      string
	Endpoints []Endpoint

	components map[string]any
}

// ParseError reports a document that could not be read as OpenAPI.
type ParseError struct {
	File    string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// ParseFile reads and parses the document at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAPI document: %w", err)
	}
	return Parse(data, path)
}

// Parse parses an OpenAPI document. JSON is accepted as a subset of YAML.
func Parse(data []byte, file string) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{File: file, Message: fmt.Sprintf("invalid document: %v", err)}
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, &ParseError{File: file, Message: "document is not a mapping"}
	}
	top := root.Content[0]

	doc := &Document{File: file}
	if comp := child(top, "components"); comp != nil {
		if schemas := child(comp, "schemas"); schemas != nil {
			doc.components = toMap(decode(schemas))
		}
	}
	// Swagger 2 keeps shared schemas under definitions.
	if defs := child(top, "definitions"); defs != nil && doc.components == nil {
		doc.components = toMap(decode(defs))
	}

	paths := child(top, "paths")
	if paths == nil {
		return doc, nil
	}
	if paths.Kind != yaml.MappingNode {
		return nil, &ParseError{File: file, Message: "paths is not a mapping"}
	}

	for i := 0; i+1 < len(paths.Content); i += 2 {
		path, item := paths.Content[i].Value, paths.Content[i+1]
		if item.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			key, op := item.Content[j], item.Content[j+1]
			method := strings.ToLower(key.Value)
			if !isMethod(method) || op.Kind != yaml.MappingNode {
				continue
			}
			doc.Endpoints = append(doc.Endpoints, doc.endpoint(path, method, key, op))
		}
	}
	return doc, nil
}

func isMethod(m string) bool {
	return slices.Contains(Methods, m)
}

func (d *Document) endpoint(path, method string, key, op *yaml.Node) Endpoint {
	ep := Endpoint{
		Path:     path,
		Method:   strings.ToUpper(method),
		Location: schema.Location{File: d.File, Line: key.Line, Column: key.Column},
	}
	if id := child(op, "operationId"); id != nil {
		ep.OperationID = id.Value
	}

	if body := child(op, "requestBody"); body != nil {
		ep.Request = d.reference(ep, "Request", mediaSchema(body))
	} else {
		ep.Request = d.reference(ep, "Request", bodyParameter(op))
	}

	if responses := child(op, "responses"); responses != nil {
		ep.Response = d.reference(ep, "Response", successSchema(responses))
	}
	return ep
}

// mediaSchema picks the schema of application/json content, or of the first
// media type. A Swagger 2 response carries its schema directly.
func mediaSchema(n *yaml.Node) *yaml.Node {
	if s := child(n, "schema"); s != nil {
		return s
	}
	content := child(n, "content")
	if content == nil || content.Kind != yaml.MappingNode || len(content.Content) < 2 {
		return nil
	}
	if js := child(content, "application/json"); js != nil {
		return child(js, "schema")
	}
	return child(content.Content[1], "schema")
}

func bodyParameter(op *yaml.Node) *yaml.Node {
	params := child(op, "parameters")
	if params == nil || params.Kind != yaml.SequenceNode {
		return nil
	}
	for _, p := range params.Content {
		if in := child(p, "in"); in != nil && in.Value == "body" {
			return child(p, "schema")
		}
	}
	return nil
}

// successSchema returns the schema of the 200 response, else of the lowest
// other 2xx response.
func successSchema(responses *yaml.Node) *yaml.Node {
	if r := child(responses, "200"); r != nil {
		return mediaSchema(r)
	}
	var codes []string
	for i := 0; i+1 < len(responses.Content); i += 2 {
		if code := responses.Content[i].Value; strings.HasPrefix(code, "2") {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return nil
	}
	sort.Strings(codes)
	return mediaSchema(child(responses, codes[0]))
}

func (d *Document) reference(ep Endpoint, suffix string, node *yaml.Node) *schema.Reference {
	if node == nil {
		return nil
	}
	raw := toMap(decode(node))
	if raw == nil {
		return nil
	}

	name := refName(raw)
	if name == "" {
		if ep.OperationID != "" {
			name = ep.OperationID + suffix
		} else {
			name = ep.Method + " " + ep.Path
		}
	}

	resolved := d.resolve(raw, map[string]bool{})
	data, err := json.Marshal(resolved)
	if err != nil {
		return nil
	}
	return &schema.Reference{
		Name:     name,
		Type:     schema.APISpec,
		Location: ep.Location,
		Metadata: map[string]string{schema.MetaJSONSchema: string(data)},
	}
}

func refName(m map[string]any) string {
	ref, _ := m["$ref"].(string)
	if ref == "" {
		return ""
	}
	return ref[strings.LastIndex(ref, "/")+1:]
}

// resolve inlines local $ref pointers. A reference already being expanded
// becomes an empty object.
func (d *Document) resolve(v any, seen map[string]bool) any {
	switch t := v.(type) {
	case map[string]any:
		if name := refName(t); name != "" {
			if seen[name] {
				return map[string]any{"type": "object"}
			}
			target, ok := d.components[name]
			if !ok {
				return map[string]any{"type": "object"}
			}
			seen[name] = true
			out := d.resolve(target, seen)
			delete(seen, name)
			return out
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = d.resolve(val, seen)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = d.resolve(val, seen)
		}
		return out
	default:
		return v
	}
}

var expressParam = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// NormalizePath rewrites Express-style :param segments to {param} and drops a
// trailing slash.
func NormalizePath(p string) string {
	p = expressParam.ReplaceAllString(p, "{$1}")
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Find returns the endpoint for path and method.
func (d *Document) Find(path string, method callgraph.HTTPMethod) (*Endpoint, bool) {
	want := NormalizePath(path)
	for i := range d.Endpoints {
		ep := &d.Endpoints[i]
		if ep.Method == string(method) && NormalizePath(ep.Path) == want {
			return ep, true
		}
	}
	return nil, false
}

// RouteSchema returns the schema a route should be checked against: the
// request body when the operation has one, otherwise the success response.
// Its signature matches chain.RouteSchemaFunc.
func (d *Document) RouteSchema(path string, method callgraph.HTTPMethod) *schema.Reference {
	ep, ok := d.Find(path, method)
	if !ok {
		return nil
	}
	if ep.Request != nil {
		return ep.Request
	}
	return ep.Response
}

func child(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func decode(n *yaml.Node) any {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil
	}
	return normalize(v)
}

// normalize converts YAML mappings with non-string keys (response codes,
// numeric property names) into string-keyed maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}

func toMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
