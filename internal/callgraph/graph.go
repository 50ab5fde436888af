package callgraph

import (
	"errors"
	"fmt"
)

// ErrDanglingReference is returned when a node field references a node that
// does not exist or has the wrong kind.
var ErrDanglingReference = errors.New("dangling node reference")

// Graph is a directed multigraph over an arena of nodes. Cycles are allowed.
// Neighbor queries return nodes in edge insertion order.
type Graph struct {
	nodes []Node
	edges []EdgeEntry
	out   [][]int // node -> indices into edges
	in    [][]int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// AddNode stores n and returns its identifier.
func (g *Graph) AddNode(n Node) NodeID {
	g.nodes = append(g.nodes, n)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	return NodeID(len(g.nodes) - 1)
}

// AddEdge adds a directed edge from -> to labeled e.
func (g *Graph) AddEdge(from, to NodeID, e Edge) error {
	if !g.has(from) {
		return fmt.Errorf("source node %d does not exist", from)
	}
	if !g.has(to) {
		return fmt.Errorf("target node %d does not exist", to)
	}
	if e == nil {
		return fmt.Errorf("edge %d -> %d has no label", from, to)
	}

	g.edges = append(g.edges, EdgeEntry{From: from, To: to, Edge: e})
	idx := len(g.edges) - 1
	g.out[from] = append(g.out[from], idx)
	g.in[to] = append(g.in[to], idx)
	return nil
}

func (g *Graph) has(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	if !g.has(id) {
		return nil, false
	}
	return g.nodes[id], true
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// NodeIDs returns every node id in creation order.
func (g *Graph) NodeIDs() []NodeID {
	ids := make([]NodeID, len(g.nodes))
	for i := range g.nodes {
		ids[i] = NodeID(i)
	}
	return ids
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []EdgeEntry {
	out := make([]EdgeEntry, len(g.edges))
	copy(out, g.edges)
	return out
}

// Outgoing returns the distinct targets of edges leaving id.
func (g *Graph) Outgoing(id NodeID) []NodeID {
	if !g.has(id) {
		return nil
	}
	return g.neighbors(g.out[id], func(e EdgeEntry) NodeID { return e.To })
}

// Incoming returns the distinct sources of edges entering id.
func (g *Graph) Incoming(id NodeID) []NodeID {
	if !g.has(id) {
		return nil
	}
	return g.neighbors(g.in[id], func(e EdgeEntry) NodeID { return e.From })
}

func (g *Graph) neighbors(idxs []int, end func(EdgeEntry) NodeID) []NodeID {
	seen := make(map[NodeID]bool, len(idxs))
	var result []NodeID
	for _, i := range idxs {
		n := end(g.edges[i])
		if !seen[n] {
			seen[n] = true
			result = append(result, n)
		}
	}
	return result
}

// OutgoingEdges returns the edges leaving id.
func (g *Graph) OutgoingEdges(id NodeID) []EdgeEntry {
	if !g.has(id) {
		return nil
	}
	return g.collect(g.out[id])
}

// IncomingEdges returns the edges entering id.
func (g *Graph) IncomingEdges(id NodeID) []EdgeEntry {
	if !g.has(id) {
		return nil
	}
	return g.collect(g.in[id])
}

// EdgesBetween returns the edges from -> to in insertion order.
func (g *Graph) EdgesBetween(from, to NodeID) []EdgeEntry {
	var result []EdgeEntry
	for _, e := range g.OutgoingEdges(from) {
		if e.To == to {
			result = append(result, e)
		}
	}
	return result
}

func (g *Graph) collect(idxs []int) []EdgeEntry {
	result := make([]EdgeEntry, len(idxs))
	for i, idx := range idxs {
		result[i] = g.edges[idx]
	}
	return result
}

// Find returns every node matching pred, in creation order.
func (g *Graph) Find(pred func(NodeID, Node) bool) []NodeID {
	var result []NodeID
	for i, n := range g.nodes {
		if pred(NodeID(i), n) {
			result = append(result, NodeID(i))
		}
	}
	return result
}

// FindByName returns the first function, class or method called name. It is a
// raw scan; callers needing disambiguation across files should use the
// builder's symbol index.
func (g *Graph) FindByName(name string) (NodeID, bool) {
	for i, n := range g.nodes {
		switch n.(type) {
		case *Function, *Class, *Method:
			if n.Name() == name {
				return NodeID(i), true
			}
		}
	}
	return 0, false
}

// Routes returns every route node in creation order.
func (g *Graph) Routes() []NodeID {
	return g.Find(func(_ NodeID, n Node) bool { return n.Kind() == KindRoute })
}

// AddMethod appends method to the class's method list unless already present.
func (g *Graph) AddMethod(class, method NodeID) error {
	c, err := g.Class(class)
	if err != nil {
		return err
	}
	if _, err := g.Method(method); err != nil {
		return err
	}
	for _, m := range c.Methods {
		if m == method {
			return nil
		}
	}
	c.Methods = append(c.Methods, method)
	return nil
}

// Class returns the class node id refers to.
func (g *Graph) Class(id NodeID) (*Class, error) {
	n, ok := g.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: class %d", ErrDanglingReference, id)
	}
	c, ok := n.(*Class)
	if !ok {
		return nil, fmt.Errorf("%w: node %d is a %s, not a class", ErrDanglingReference, id, n.Kind())
	}
	return c, nil
}

// Method returns the method node id refers to.
func (g *Graph) Method(id NodeID) (*Method, error) {
	n, ok := g.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: method %d", ErrDanglingReference, id)
	}
	m, ok := n.(*Method)
	if !ok {
		return nil, fmt.Errorf("%w: node %d is a %s, not a method", ErrDanglingReference, id, n.Kind())
	}
	return m, nil
}

// Owner resolves the owning class of a method.
func (g *Graph) Owner(m *Method) (*Class, error) {
	return g.Class(m.Class)
}

// Handler resolves the handler node of a route.
func (g *Graph) Handler(r *Route) (Node, error) {
	n, ok := g.Node(r.Handler)
	if !ok {
		return nil, fmt.Errorf("%w: route %s handler %d", ErrDanglingReference, r.Path, r.Handler)
	}
	return n, nil
}

// FileOf returns the file a node is defined in. Methods report their owning
// class's file.
func (g *Graph) FileOf(id NodeID) (string, error) {
	n, ok := g.Node(id)
	if !ok {
		return "", fmt.Errorf("%w: node %d", ErrDanglingReference, id)
	}
	switch v := n.(type) {
	case *Module:
		return v.Path, nil
	case *Function:
		return v.File, nil
	case *Class:
		return v.File, nil
	case *Method:
		c, err := g.Owner(v)
		if err != nil {
			return "", err
		}
		return c.File, nil
	case *Route:
		return v.Location.File, nil
	}
	return "", fmt.Errorf("unknown node kind %s", n.Kind())
}

// ImportCycle returns a cycle of modules connected by import edges, or nil
// when imports are acyclic. The returned path starts and ends with the same
// module.
func (g *Graph) ImportCycle() []NodeID {
	visited := make(map[NodeID]bool)
	onStack := make(map[NodeID]bool)
	parent := make(map[NodeID]NodeID)

	var cycle []NodeID

	var dfs func(id NodeID) bool
	dfs = func(id NodeID) bool {
		visited[id] = true
		onStack[id] = true

		for _, e := range g.OutgoingEdges(id) {
			if e.Edge.Kind() != EdgeImport {
				continue
			}
			next := e.To
			if !visited[next] {
				parent[next] = id
				if dfs(next) {
					return true
				}
			} else if onStack[next] {
				cycle = []NodeID{next}
				for cur := id; cur != next; cur = parent[cur] {
					cycle = append([]NodeID{cur}, cycle...)
				}
				cycle = append([]NodeID{next}, cycle...)
				return true
			}
		}

		onStack[id] = false
		return false
	}

	for _, id := range g.Find(func(_ NodeID, n Node) bool { return n.Kind() == KindModule }) {
		if !visited[id] && dfs(id) {
			return cycle
		}
	}
	return nil
}
