package typescript

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/leapstack-labs/dcverify/internal/frontend"
)

var routeVerbs = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true,
	"head": true, "options": true, "all": true,
}

// walkCalls records calls. Calls inside nested closures belong to the
// outermost named function; top-level calls have no enclosing name.
func (x *extractor) walkCalls(n *sitter.Node, enclosing *string) {
	named := func(name string, body *sitter.Node) {
		if body == nil {
			return
		}
		if enclosing != nil {
			x.walkCalls(body, enclosing)
			return
		}
		x.walkCalls(body, &name)
	}

	switch n.Kind() {
	case "decorator":
		return

	case "function_declaration", "generator_function_declaration":
		named(x.text(n.ChildByFieldName("name")), n.ChildByFieldName("body"))
		return

	case "class_declaration", "abstract_class_declaration":
		class := x.text(n.ChildByFieldName("name"))
		for _, member := range frontend.NamedChildren(n.ChildByFieldName("body")) {
			if member.Kind() == "method_definition" {
				method := class + "." + x.text(member.ChildByFieldName("name"))
				x.walkCalls(member.ChildByFieldName("body"), &method)
				continue
			}
			x.walkCalls(member, &class)
		}
		return

	case "variable_declarator":
		value := n.ChildByFieldName("value")
		if value != nil && enclosing == nil {
			switch value.Kind() {
			case "arrow_function", "function_expression", "function":
				named(x.text(n.ChildByFieldName("name")), value.ChildByFieldName("body"))
				return
			}
		}

	case "call_expression":
		if callee := memberName(n.ChildByFieldName("function"), x.src); callee != "" {
			caller := ""
			if enclosing != nil {
				caller = *enclosing
			}
			x.file.Calls = append(x.file.Calls, frontend.Call{
				Callee:    callee,
				Args:      x.arguments(n.ChildByFieldName("arguments")),
				Location:  x.location(n),
				Enclosing: caller,
			})
		}
	}

	for _, c := range frontend.NamedChildren(n) {
		x.walkCalls(c, enclosing)
	}
}

func (x *extractor) arguments(n *sitter.Node) []frontend.Argument {
	var args []frontend.Argument
	for _, c := range frontend.NamedChildren(n) {
		args = append(args, frontend.Argument{Value: x.value(c)})
	}
	return args
}

func (x *extractor) value(n *sitter.Node) string {
	switch n.Kind() {
	case "string", "template_string":
		return frontend.Unquote(x.text(n))
	}
	return x.text(n)
}

// routeRegistration turns Express-style "app.get('/path', handler)" into a
// route annotation on the named handler. Inline handlers are skipped.
func (x *extractor) routeRegistration(stmt *sitter.Node) {
	children := frontend.NamedChildren(stmt)
	if len(children) == 0 || children[0].Kind() != "call_expression" {
		return
	}
	call := children[0]
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "member_expression" {
		return
	}
	verb := x.text(fn.ChildByFieldName("property"))
	if !routeVerbs[verb] {
		return
	}
	object := x.text(fn.ChildByFieldName("object"))
	if object != "app" && object != "router" && !strings.HasSuffix(object, "Router") {
		return
	}

	args := frontend.NamedChildren(call.ChildByFieldName("arguments"))
	if len(args) < 2 {
		return
	}
	handler := memberName(args[len(args)-1], x.src)
	if handler == "" {
		return
	}

	ann := frontend.Annotation{
		Name:     normalizeRouter(object) + "." + verb,
		Target:   handler,
		Location: x.location(call),
	}
	if k := args[0].Kind(); k == "string" || k == "template_string" {
		ann.PathArg = x.value(args[0])
	}
	x.file.Annotations = append(x.file.Annotations, ann)
}

// normalizeRouter maps "userRouter" style receivers onto "router".
func normalizeRouter(object string) string {
	if object == "app" {
		return object
	}
	return "router"
}
