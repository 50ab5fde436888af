package cache

import (
	"encoding/json"
	"fmt"

	"github.com/leapstack-labs/dcverify/internal/callgraph"
)

// graphRecord is the persisted form of a graph: flat node and edge lists
// keyed by the node's index at save time.
type graphRecord struct {
	Nodes []nodeRecord `json:"nodes"`
	Edges []edgeRecord `json:"edges"`
}

type nodeRecord struct {
	Index uint32             `json:"index"`
	Kind  callgraph.NodeKind `json:"kind"`
	Node  json.RawMessage    `json:"node"`
}

type edgeRecord struct {
	Source uint32             `json:"source"`
	Target uint32             `json:"target"`
	Kind   callgraph.EdgeKind `json:"kind"`
	Edge   json.RawMessage    `json:"edge"`
}

// SaveGraph stores g under id, replacing any graph stored there.
func (s *Store) SaveGraph(id string, g *callgraph.Graph) error {
	data, err := encodeGraph(g)
	if err != nil {
		return fmt.Errorf("failed to encode graph %s: %w", id, err)
	}
	s.logger.Debug("saving graph", "id", id, "nodes", g.NodeCount(), "edges", g.EdgeCount())
	return s.put(graphPrefix+id, data)
}

// LoadGraph loads the graph stored under id. ok is false when none is
// stored. A record that cannot be rebuilt exactly fails with
// ErrCorruptedCache.
func (s *Store) LoadGraph(id string) (g *callgraph.Graph, ok bool, err error) {
	data, ok, err := s.get(graphPrefix + id)
	if err != nil || !ok {
		return nil, false, err
	}
	g, err = decodeGraph(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load graph %s: %w", id, err)
	}
	return g, true, nil
}

func encodeGraph(g *callgraph.Graph) ([]byte, error) {
	rec := graphRecord{Nodes: []nodeRecord{}, Edges: []edgeRecord{}}
	for _, id := range g.NodeIDs() {
		n, _ := g.Node(id)
		raw, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		rec.Nodes = append(rec.Nodes, nodeRecord{Index: uint32(id), Kind: n.Kind(), Node: raw})
	}
	for _, e := range g.Edges() {
		raw, err := json.Marshal(e.Edge)
		if err != nil {
			return nil, err
		}
		rec.Edges = append(rec.Edges, edgeRecord{
			Source: uint32(e.From),
			Target: uint32(e.To),
			Kind:   e.Edge.Kind(),
			Edge:   raw,
		})
	}
	return json.Marshal(rec)
}

// decodeGraph rebuilds a graph, remapping stored indices through a fresh
// insertion order. Node references and edge endpoints that point at a
// missing index are corruption, never dropped.
func decodeGraph(data []byte) (*callgraph.Graph, error) {
	var rec graphRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedCache, err)
	}

	g := callgraph.New()
	remap := make(map[uint32]callgraph.NodeID, len(rec.Nodes))
	nodes := make([]callgraph.Node, 0, len(rec.Nodes))
	for _, nr := range rec.Nodes {
		if _, dup := remap[nr.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate node index %d", ErrCorruptedCache, nr.Index)
		}
		n, err := decodeNode(nr)
		if err != nil {
			return nil, err
		}
		remap[nr.Index] = g.AddNode(n)
		nodes = append(nodes, n)
	}

	lookup := func(idx callgraph.NodeID, what string) (callgraph.NodeID, error) {
		id, ok := remap[uint32(idx)]
		if !ok {
			return 0, fmt.Errorf("%w: %s references missing node %d", ErrCorruptedCache, what, idx)
		}
		return id, nil
	}

	var err error
	for _, n := range nodes {
		switch v := n.(type) {
		case *callgraph.Method:
			if v.Class, err = lookup(v.Class, "method "+v.MethodName); err != nil {
				return nil, err
			}
		case *callgraph.Route:
			if v.Handler, err = lookup(v.Handler, "route "+v.Path); err != nil {
				return nil, err
			}
		case *callgraph.Class:
			for i, m := range v.Methods {
				if v.Methods[i], err = lookup(m, "class "+v.ClassName); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, er := range rec.Edges {
		from, ok := remap[er.Source]
		if !ok {
			return nil, fmt.Errorf("%w: edge source %d not in node list", ErrCorruptedCache, er.Source)
		}
		to, ok := remap[er.Target]
		if !ok {
			return nil, fmt.Errorf("%w: edge target %d not in node list", ErrCorruptedCache, er.Target)
		}
		e, err := decodeEdge(er)
		if err != nil {
			return nil, err
		}
		if err := g.AddEdge(from, to, e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedCache, err)
		}
	}
	return g, nil
}

func decodeNode(nr nodeRecord) (callgraph.Node, error) {
	var n callgraph.Node
	switch nr.Kind {
	case callgraph.KindModule:
		n = &callgraph.Module{}
	case callgraph.KindFunction:
		n = &callgraph.Function{}
	case callgraph.KindClass:
		n = &callgraph.Class{}
	case callgraph.KindMethod:
		n = &callgraph.Method{}
	case callgraph.KindRoute:
		n = &callgraph.Route{}
	default:
		return nil, fmt.Errorf("%w: unknown node kind %q", ErrCorruptedCache, nr.Kind)
	}
	if err := json.Unmarshal(nr.Node, n); err != nil {
		return nil, fmt.Errorf("%w: node %d: %v", ErrCorruptedCache, nr.Index, err)
	}
	return n, nil
}

func decodeEdge(er edgeRecord) (callgraph.Edge, error) {
	var err error
	switch er.Kind {
	case callgraph.EdgeImport:
		var e callgraph.Import
		err = json.Unmarshal(er.Edge, &e)
		if err == nil {
			return e, nil
		}
	case callgraph.EdgeCall:
		var e callgraph.Call
		err = json.Unmarshal(er.Edge, &e)
		if err == nil {
			return e, nil
		}
	case callgraph.EdgeReturn:
		var e callgraph.Return
		err = json.Unmarshal(er.Edge, &e)
		if err == nil {
			return e, nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown edge kind %q", ErrCorruptedCache, er.Kind)
	}
	return nil, fmt.Errorf("%w: edge %d->%d: %v", ErrCorruptedCache, er.Source, er.Target, err)
}
