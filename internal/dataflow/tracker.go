package dataflow

import (
	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

// ReturnValue names the variable traced by TrackReturn.
const ReturnValue = "return"

// Tracker traces variables, parameters and return values over a built graph.
// It reads the graph and never mutates it.
type Tracker struct {
	graph     *callgraph.Graph
	variables map[callgraph.NodeID][]Variable
}

// NewTracker indexes the variables visible at each node: declared
// parameters of functions and methods, and identifiers passed as call
// arguments at the caller.
func NewTracker(g *callgraph.Graph) *Tracker {
	t := &Tracker{graph: g, variables: make(map[callgraph.NodeID][]Variable)}
	for _, id := range g.NodeIDs() {
		for _, p := range params(g, id) {
			t.Record(id, Variable{Name: p.Name, Type: p.Type, Source: SourceParameter})
		}
	}
	for _, e := range g.Edges() {
		call, ok := e.Edge.(callgraph.Call)
		if !ok {
			continue
		}
		for _, a := range call.Args {
			if isIdentifier(a.Value) {
				t.Record(e.From, Variable{
					Name:     a.Value,
					Type:     schema.TypeInfo{BaseType: schema.Unknown},
					Source:   SourceLocal,
					Location: call.Location,
				})
			}
		}
	}
	return t
}

// Record adds a variable at node. A second variable with the same name at
// the same node is ignored.
func (t *Tracker) Record(node callgraph.NodeID, v Variable) {
	for _, existing := range t.variables[node] {
		if existing.Name == v.Name {
			return
		}
	}
	t.variables[node] = append(t.variables[node], v)
}

// Variables returns the variables recorded at node.
func (t *Tracker) Variables(node callgraph.NodeID) []Variable {
	return t.variables[node]
}

func (t *Tracker) lookup(node callgraph.NodeID, name string) (Variable, bool) {
	for _, v := range t.variables[node] {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// TrackVariable walks outgoing edges depth first from from and records a
// path to every reachable node where a variable called name is recorded.
func (t *Tracker) TrackVariable(name string, from callgraph.NodeID) []*DataPath {
	var paths []*DataPath
	visited := map[callgraph.NodeID]bool{}
	stack := []callgraph.NodeID{}

	var walk func(id callgraph.NodeID)
	walk = func(id callgraph.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		stack = append(stack, id)
		defer func() { stack = stack[:len(stack)-1] }()

		if id != from {
			if v, ok := t.lookup(id, name); ok {
				paths = append(paths, pathOf(v, stack))
			}
		}
		for _, next := range t.graph.Outgoing(id) {
			walk(next)
		}
	}
	walk(from)
	return paths
}

// TrackParameter finds callers that pass name into function, then follows
// the value forward through calls whose arguments mention it again.
func (t *Tracker) TrackParameter(name string, function callgraph.NodeID) []*DataPath {
	v := Variable{Name: name, Type: schema.TypeInfo{BaseType: schema.Unknown}, Source: SourceParameter}
	if declared, ok := t.lookup(function, name); ok && declared.Source == SourceParameter {
		v = declared
	}

	var paths []*DataPath
	for _, e := range t.graph.IncomingEdges(function) {
		if call, ok := e.Edge.(callgraph.Call); ok && passes(call, name) {
			paths = append(paths, NewDataPath(v, e.From, function))
		}
	}

	visited := map[callgraph.NodeID]bool{}
	stack := []callgraph.NodeID{}
	var walk func(id callgraph.NodeID)
	walk = func(id callgraph.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		stack = append(stack, id)
		defer func() { stack = stack[:len(stack)-1] }()

		for _, e := range t.graph.OutgoingEdges(id) {
			call, ok := e.Edge.(callgraph.Call)
			if !ok || visited[e.To] {
				continue
			}
			if passes(call, name) {
				paths = append(paths, pathOf(v, append(stack, e.To)))
			}
			walk(e.To)
		}
	}
	walk(function)
	return paths
}

// TrackReturn records one path per caller of function, then keeps climbing
// to callers of callers.
func (t *Tracker) TrackReturn(function callgraph.NodeID) []*DataPath {
	v := Variable{Name: ReturnValue, Type: schema.TypeInfo{BaseType: schema.Unknown}, Source: SourceReturn}
	if rt := returnType(t.graph, function); rt != nil {
		v.Type = *rt
	}

	var paths []*DataPath
	visited := map[callgraph.NodeID]bool{function: true}
	var climb func(stack []callgraph.NodeID)
	climb = func(stack []callgraph.NodeID) {
		top := stack[len(stack)-1]
		for _, e := range t.graph.IncomingEdges(top) {
			if _, ok := e.Edge.(callgraph.Call); !ok || visited[e.From] {
				continue
			}
			visited[e.From] = true
			next := append(append([]callgraph.NodeID{}, stack...), e.From)
			paths = append(paths, pathOf(v, next))
			climb(next)
		}
	}
	climb([]callgraph.NodeID{function})
	return paths
}

// pathOf copies nodes into a new path. nodes has at least two entries.
func pathOf(v Variable, nodes []callgraph.NodeID) *DataPath {
	p := NewDataPath(v, nodes[0], nodes[1])
	for _, id := range nodes[2:] {
		p.Push(id)
	}
	return p
}

func passes(call callgraph.Call, name string) bool {
	for _, a := range call.Args {
		if a.Param == name || a.Value == name {
			return true
		}
	}
	return false
}

func params(g *callgraph.Graph, id callgraph.NodeID) []callgraph.Parameter {
	n, _ := g.Node(id)
	switch n := n.(type) {
	case *callgraph.Function:
		return n.Params
	case *callgraph.Method:
		return n.Params
	}
	return nil
}

func returnType(g *callgraph.Graph, id callgraph.NodeID) *schema.TypeInfo {
	n, _ := g.Node(id)
	switch n := n.(type) {
	case *callgraph.Function:
		return n.ReturnType
	case *callgraph.Method:
		return n.ReturnType
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
