package frontend

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ParseTree parses src with a fresh tree-sitter parser for lang. Parsers are
// not shared so front ends stay safe for concurrent use. The caller closes
// the returned tree.
func ParseTree(lang *sitter.Language, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("%w: parser produced no tree", ErrSyntax)
	}
	return tree, nil
}

// SyntaxError returns an ErrSyntax error locating the first error or missing
// node under root, or nil when the tree is clean.
func SyntaxError(root *sitter.Node, conv *LocationConverter) error {
	if !root.HasError() {
		return nil
	}
	bad := firstError(root)
	if bad == nil {
		return fmt.Errorf("%w: malformed source", ErrSyntax)
	}
	line, col := conv.Position(int(bad.StartByte()))
	return fmt.Errorf("%w at line %d, column %d", ErrSyntax, line, col)
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c == nil || !c.HasError() && !c.IsMissing() {
			continue
		}
		if bad := firstError(c); bad != nil {
			return bad
		}
	}
	return nil
}

// NamedChildren returns the named children of n, skipping comments.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c == nil || c.Kind() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Text returns the source text spanned by n.
func Text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(src)
}

// Unquote strips string prefixes and quotes from a string literal.
func Unquote(lit string) string {
	s := strings.TrimLeft(lit, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`, "`"} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return lit
}
