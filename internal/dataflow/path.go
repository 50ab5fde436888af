// Package dataflow traces where a named value travels through a call graph.
package dataflow

import (
	"errors"
	"slices"

	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

var (
	// ErrEmptyNodes is returned when a path would be replaced by no nodes.
	ErrEmptyNodes = errors.New("data path needs at least one node")
	// ErrInsufficientNodes is returned when a path would have a single node.
	ErrInsufficientNodes = errors.New("data path needs at least two nodes")
)

// VariableSource says where a tracked value originates.
type VariableSource int

// Variable sources.
const (
	SourceParameter VariableSource = iota
	SourceReturn
	SourceImport
	SourceLocal
	SourceField
)

func (s VariableSource) String() string {
	switch s {
	case SourceParameter:
		return "parameter"
	case SourceReturn:
		return "return"
	case SourceImport:
		return "import"
	case SourceLocal:
		return "local"
	case SourceField:
		return "field"
	default:
		return "unknown"
	}
}

// Variable is a named value recorded at a graph node.
type Variable struct {
	Name     string
	Type     schema.TypeInfo
	Source   VariableSource
	Location schema.Location
}

// DataPath is an ordered node sequence a variable travels along. It always
// holds at least its two endpoints.
type DataPath struct {
	Variable Variable
	nodes    []callgraph.NodeID
}

// NewDataPath creates a path between two endpoints.
func NewDataPath(v Variable, from, to callgraph.NodeID) *DataPath {
	return &DataPath{Variable: v, nodes: []callgraph.NodeID{from, to}}
}

// Push appends id. Appending a node already on the path is a no-op.
func (p *DataPath) Push(id callgraph.NodeID) {
	if slices.Contains(p.nodes, id) {
		return
	}
	p.nodes = append(p.nodes, id)
}

// SetNodes replaces the node sequence.
func (p *DataPath) SetNodes(nodes []callgraph.NodeID) error {
	switch len(nodes) {
	case 0:
		return ErrEmptyNodes
	case 1:
		return ErrInsufficientNodes
	}
	p.nodes = slices.Clone(nodes)
	return nil
}

// Nodes returns a copy of the node sequence.
func (p *DataPath) Nodes() []callgraph.NodeID {
	return slices.Clone(p.nodes)
}

// Len returns the number of nodes on the path.
func (p *DataPath) Len() int { return len(p.nodes) }

// Start returns the first node.
func (p *DataPath) Start() callgraph.NodeID { return p.nodes[0] }

// End returns the last node.
func (p *DataPath) End() callgraph.NodeID { return p.nodes[len(p.nodes)-1] }
