// Package chain assembles data chains, single representative source-to-sink
// paths through a call graph, and the contracts between consecutive links.
package chain

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/contract"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

var (
	// ErrEmptyPath is returned when a walk yields no nodes.
	ErrEmptyPath = errors.New("chain path is empty")
	// ErrModuleLink is returned when a module node would become a link.
	ErrModuleLink = errors.New("module nodes cannot be chain links")
)

// LinkType is a node's role within a chain.
type LinkType int

// Link types.
const (
	Source LinkType = iota
	Transformer
	Sink
)

func (t LinkType) String() string {
	switch t {
	case Source:
		return "source"
	case Transformer:
		return "transformer"
	case Sink:
		return "sink"
	default:
		return fmt.Sprintf("link(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t LinkType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Direction says which way data travels along a chain.
type Direction int

// Directions.
const (
	FrontendToBackend Direction = iota
	BackendToFrontend
)

func (d Direction) String() string {
	if d == BackendToFrontend {
		return "backend_to_frontend"
	}
	return "frontend_to_backend"
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Link is one node's place in a chain.
type Link struct {
	ID       string             `json:"id"`
	Type     LinkType           `json:"link_type"`
	Name     string             `json:"name"`
	Kind     callgraph.NodeKind `json:"kind"`
	Location schema.Location    `json:"location"`
	Node     callgraph.NodeID   `json:"node_id"`
	Schema   *schema.Reference  `json:"schema_ref,omitempty"`
}

// DataChain is one source-to-sink path. Contracts has one entry per
// consecutive link pair.
type DataChain struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Links     []Link               `json:"links"`
	Contracts []*contract.Contract `json:"contracts"`
	Direction Direction            `json:"direction"`

	// Flows traces the entry handler's schema parameter through the graph.
	Flows []Flow `json:"flows,omitempty"`
}

// Flow is one traced data path with its nodes resolved to display names.
type Flow struct {
	Variable string             `json:"variable"`
	Source   string             `json:"source"`
	Nodes    []callgraph.NodeID `json:"node_ids"`
	Path     []string           `json:"path"`
}

// Severity is the worst contract severity in the chain.
func (c *DataChain) Severity() contract.Severity {
	worst := contract.SeverityInfo
	for _, ct := range c.Contracts {
		if ct.Severity > worst {
			worst = ct.Severity
		}
	}
	return worst
}

// Mismatches returns every mismatch across the chain's contracts.
func (c *DataChain) Mismatches() []contract.Mismatch {
	var out []contract.Mismatch
	for _, ct := range c.Contracts {
		out = append(out, ct.Mismatches...)
	}
	return out
}

// linkType assigns Source, Transformer and Sink by position.
func linkType(i, n int) LinkType {
	switch {
	case i == 0:
		return Source
	case i == n-1:
		return Sink
	default:
		return Transformer
	}
}

// contracts pairs consecutive links.
func contracts(links []Link) []*contract.Contract {
	if len(links) < 2 {
		return []*contract.Contract{}
	}
	out := make([]*contract.Contract, 0, len(links)-1)
	for i := 0; i+1 < len(links); i++ {
		out = append(out, &contract.Contract{
			FromLinkID: links[i].ID,
			ToLinkID:   links[i+1].ID,
			FromSchema: links[i].Schema,
			ToSchema:   links[i+1].Schema,
			Mismatches: []contract.Mismatch{},
			Severity:   contract.SeverityInfo,
		})
	}
	return out
}
