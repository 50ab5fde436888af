package callgraph

import "github.com/leapstack-labs/dcverify/internal/schema"

// EdgeKind identifies the variant of an Edge.
type EdgeKind string

// Edge kinds.
const (
	EdgeImport EdgeKind = "import"
	EdgeCall   EdgeKind = "call"
	EdgeReturn EdgeKind = "return"
)

// Edge is the label of a directed relation. Implementations are Import, Call
// and Return.
type Edge interface {
	Kind() EdgeKind
}

// Import records that one module imports another.
type Import struct {
	ImportPath string `json:"import_path"`
	File       string `json:"file"`
}

// Argument binds a call argument to a parameter name. Positional arguments
// are keyed "arg<index>".
type Argument struct {
	Param string `json:"param"`
	Value string `json:"value"`
}

// Call records a call site.
type Call struct {
	Args     []Argument      `json:"argument_mapping,omitempty"`
	Location schema.Location `json:"location"`
}

// Return records a value flowing back from callee to caller.
type Return struct {
	Value string `json:"return_value"`
}

func (Import) Kind() EdgeKind { return EdgeImport }
func (Call) Kind() EdgeKind   { return EdgeCall }
func (Return) Kind() EdgeKind { return EdgeReturn }

// EdgeEntry is a labeled edge with its endpoints.
type EdgeEntry struct {
	From NodeID
	To   NodeID
	Edge Edge
}
