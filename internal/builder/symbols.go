package builder

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/dcverify/internal/callgraph"
)

type symbolKey struct {
	file string
	name string
}

// symbolIndex maps (file, name) to nodes and remembers, per name, the files
// defining it in insertion order.
type symbolIndex struct {
	nodes  map[symbolKey]callgraph.NodeID
	byName map[string][]symbolKey
}

func newSymbolIndex() *symbolIndex {
	return &symbolIndex{
		nodes:  make(map[symbolKey]callgraph.NodeID),
		byName: make(map[string][]symbolKey),
	}
}

func (s *symbolIndex) add(file, name string, id callgraph.NodeID) {
	key := symbolKey{file: file, name: name}
	if _, exists := s.nodes[key]; !exists {
		s.byName[name] = append(s.byName[name], key)
	}
	s.nodes[key] = id
}

func (s *symbolIndex) get(file, name string) (callgraph.NodeID, bool) {
	id, ok := s.nodes[symbolKey{file: file, name: name}]
	return id, ok
}

// findFunctionNode resolves name as seen from currentFile. A definition in the
// current file wins. Otherwise a unique match anywhere is used; among several,
// one in the same directory wins, then the one sharing the longest path prefix,
// then the first defined. With no indexed match the graph is scanned by name.
func (b *Builder) findFunctionNode(name, currentFile string) (callgraph.NodeID, bool) {
	if id, ok := b.symbols.get(currentFile, name); ok {
		return id, true
	}

	matches := b.symbols.byName[name]
	switch len(matches) {
	case 0:
		return b.graph.FindByName(name)
	case 1:
		return b.symbols.nodes[matches[0]], true
	}

	dir := filepath.Dir(currentFile)
	for _, key := range matches {
		if filepath.Dir(key.file) == dir {
			return b.symbols.nodes[key], true
		}
	}

	best, bestLen := matches[0], 0
	for _, key := range matches {
		if n := commonPrefixLen(currentFile, key.file); n > bestLen {
			best, bestLen = key, n
		}
	}
	b.diag(DiagAmbiguousSymbol, currentFile,
		fmt.Sprintf("ambiguous name %q has %d definitions, selected %s", name, len(matches), best.file),
		"symbol", name)
	return b.symbols.nodes[best], true
}

// commonPrefixLen counts the leading path components a and b share.
func commonPrefixLen(a, b string) int {
	pa := strings.Split(filepath.ToSlash(a), "/")
	pb := strings.Split(filepath.ToSlash(b), "/")
	n := 0
	for n < len(pa) && n < len(pb) && pa[n] == pb[n] {
		n++
	}
	return n
}
