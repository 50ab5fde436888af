package python

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/leapstack-labs/dcverify/internal/frontend"
)

// scope tracks the innermost class and the outermost function around a
// node. Calls in nested functions are attributed to the outer function.
type scope struct {
	class string
	fn    string
}

// enclosing names the caller. Top-level calls have none.
func (s *scope) enclosing() string {
	if s == nil {
		return ""
	}
	if s.fn != "" {
		return s.fn
	}
	return s.class
}

// walkCalls records calls. Decorator calls are skipped.
func (x *extractor) walkCalls(n *sitter.Node, cur *scope) {
	switch n.Kind() {
	case "decorator":
		return

	case "class_definition":
		next := scope{class: x.text(n.ChildByFieldName("name"))}
		if cur != nil && cur.fn != "" {
			next = *cur
		}
		x.walkCalls(n.ChildByFieldName("body"), &next)
		return

	case "function_definition":
		name := x.text(n.ChildByFieldName("name"))
		next := scope{fn: name}
		switch {
		case cur != nil && cur.fn != "":
			next = *cur
		case cur != nil && cur.class != "":
			next = scope{class: cur.class, fn: cur.class + "." + name}
		}
		x.walkCalls(n.ChildByFieldName("body"), &next)
		return

	case "call":
		if callee := dottedName(n.ChildByFieldName("function"), x.src); callee != "" {
			x.file.Calls = append(x.file.Calls, frontend.Call{
				Callee:    callee,
				Args:      x.arguments(n.ChildByFieldName("arguments")),
				Location:  x.location(n),
				Enclosing: cur.enclosing(),
			})
		}
	}

	for _, c := range frontend.NamedChildren(n) {
		x.walkCalls(c, cur)
	}
}

// arguments converts an argument list. String literals are unquoted; other
// values keep their source text.
func (x *extractor) arguments(n *sitter.Node) []frontend.Argument {
	var args []frontend.Argument
	for _, c := range frontend.NamedChildren(n) {
		if c.Kind() == "keyword_argument" {
			args = append(args, frontend.Argument{
				Name:  x.text(c.ChildByFieldName("name")),
				Value: x.value(c.ChildByFieldName("value")),
			})
			continue
		}
		args = append(args, frontend.Argument{Value: x.value(c)})
	}
	return args
}

func (x *extractor) value(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	if n.Kind() == "string" {
		return frontend.Unquote(x.text(n))
	}
	return x.text(n)
}

// normalizeHint reduces a type hint to the name the graph cares about and
// reports whether it admits None. Optional[X], Union[X, None] and X | None
// all become X.
func normalizeHint(hint string) (string, bool) {
	hint = strings.TrimSpace(hint)
	hint = strings.TrimPrefix(hint, "typing.")
	if hint == "" {
		return "", false
	}

	if parts := splitTopLevel(hint, '|'); len(parts) > 1 {
		return collapseUnion(parts)
	}

	head, inner, ok := subscript(hint)
	if !ok {
		return hint, false
	}
	switch head {
	case "Optional":
		t, _ := normalizeHint(inner)
		return t, true
	case "Union":
		return collapseUnion(splitTopLevel(inner, ','))
	case "Annotated":
		return normalizeHint(splitTopLevel(inner, ',')[0])
	case "List", "list", "Sequence", "Set", "set", "Tuple", "tuple":
		return "list", false
	case "Dict", "dict", "Mapping":
		return "dict", false
	}
	return hint, false
}

func collapseUnion(members []string) (string, bool) {
	var kept []string
	optional := false
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m == "None" {
			optional = true
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 1 {
		t, opt := normalizeHint(kept[0])
		return t, optional || opt
	}
	return strings.Join(kept, " | "), optional
}

// subscript splits "Head[inner]".
func subscript(s string) (head, inner string, ok bool) {
	open := strings.IndexByte(s, '[')
	if open <= 0 || !strings.HasSuffix(s, "]") {
		return "", "", false
	}
	return strings.TrimPrefix(s[:open], "typing."), s[open+1 : len(s)-1], true
}

// splitTopLevel splits s on sep outside brackets.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}
