package chain

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/dataflow"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

// RouteSchemaFunc supplies a schema for a route whose handler declares none,
// typically from an API description.
type RouteSchemaFunc func(path string, method callgraph.HTTPMethod) *schema.Reference

// Builder assembles chains from one graph.
type Builder struct {
	graph        *callgraph.Graph
	tracker      *dataflow.Tracker
	logger       *slog.Logger
	routeSchemas RouteSchemaFunc
	prefix       string
	seq          int
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithRouteSchemas sets the fallback schema lookup for routes.
func WithRouteSchemas(f RouteSchemaFunc) Option {
	return func(b *Builder) { b.routeSchemas = f }
}

// WithIDPrefix prefixes chain IDs, keeping them unique across graphs.
func WithIDPrefix(prefix string) Option {
	return func(b *Builder) { b.prefix = prefix }
}

// NewBuilder creates a chain builder over g.
func NewBuilder(g *callgraph.Graph, opts ...Option) *Builder {
	b := &Builder{
		graph:   g,
		tracker: dataflow.NewTracker(g),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FindAllChains builds a forward and a reverse chain from every route.
// Chains that cannot be built are logged and skipped.
func (b *Builder) FindAllChains() ([]*DataChain, error) {
	var chains []*DataChain
	for _, id := range b.graph.Routes() {
		forward, err := b.BuildForwardChain(id)
		if err != nil {
			if !b.skippable(err, id) {
				return nil, err
			}
		} else {
			chains = append(chains, forward)
		}

		reverse, err := b.BuildReverseChain(id)
		if err != nil {
			if !b.skippable(err, id) {
				return nil, err
			}
			continue
		}
		reverse.Name += " (reverse)"
		chains = append(chains, reverse)
	}
	return chains, nil
}

func (b *Builder) skippable(err error, start callgraph.NodeID) bool {
	if errors.Is(err, ErrEmptyPath) || errors.Is(err, ErrModuleLink) {
		b.logger.Warn("skipping chain", "start", start, "error", err)
		return true
	}
	return false
}

// BuildForwardChain follows outgoing edges from start, always taking the
// first unvisited neighbor in edge insertion order, until it runs out of
// neighbors.
func (b *Builder) BuildForwardChain(start callgraph.NodeID) (*DataChain, error) {
	path := b.walk(start, b.graph.Outgoing)
	c, err := b.newChain(path, FrontendToBackend)
	if err != nil {
		return nil, err
	}
	b.traceFlows(c)
	return c, nil
}

// BuildReverseChain walks incoming edges from start the same way, then
// reverses the path so the chain reads source to sink.
func (b *Builder) BuildReverseChain(start callgraph.NodeID) (*DataChain, error) {
	path := b.walk(start, b.graph.Incoming)
	slices.Reverse(path)
	return b.newChain(path, BackendToFrontend)
}

func (b *Builder) walk(start callgraph.NodeID, next func(callgraph.NodeID) []callgraph.NodeID) []callgraph.NodeID {
	if _, ok := b.graph.Node(start); !ok {
		return nil
	}
	path := []callgraph.NodeID{start}
	visited := map[callgraph.NodeID]bool{start: true}
	for cur := start; ; {
		found := false
		for _, n := range next(cur) {
			if !visited[n] {
				visited[n] = true
				path = append(path, n)
				cur = n
				found = true
				break
			}
		}
		if !found {
			return path
		}
	}
}

func (b *Builder) newChain(path []callgraph.NodeID, dir Direction) (*DataChain, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}
	b.seq++
	c := &DataChain{
		ID:        fmt.Sprintf("%schain-%d", b.prefix, b.seq),
		Direction: dir,
	}

	for i, id := range path {
		link, err := b.link(c.ID, i, id)
		if err != nil {
			return nil, err
		}
		link.Type = linkType(i, len(path))
		c.Links = append(c.Links, link)
	}
	c.Contracts = contracts(c.Links)
	c.Name = c.Links[0].Name
	return c, nil
}

// link describes one node. Module nodes are rejected.
func (b *Builder) link(chainID string, i int, id callgraph.NodeID) (Link, error) {
	n, _ := b.graph.Node(id)
	link := Link{
		ID:   fmt.Sprintf("%s.link-%d", chainID, i),
		Name: n.Name(),
		Kind: n.Kind(),
		Node: id,
	}

	switch v := n.(type) {
	case *callgraph.Module:
		return Link{}, fmt.Errorf("%w: %s", ErrModuleLink, v.Path)

	case *callgraph.Route:
		link.Name = string(v.Method) + " " + v.Path
		link.Location = v.Location
		handler, err := b.graph.Handler(v)
		if err != nil {
			return Link{}, err
		}
		link.Schema = firstSchemaParam(paramsOf(handler))
		if link.Schema == nil && b.routeSchemas != nil {
			link.Schema = b.routeSchemas(v.Path, v.Method)
		}

	case *callgraph.Function:
		link.Location = v.Location()
		link.Schema = firstSchemaParam(v.Params)

	case *callgraph.Method:
		owner, err := b.graph.Owner(v)
		if err != nil {
			return Link{}, err
		}
		link.Name = owner.ClassName + "." + v.MethodName
		link.Location = schema.Location{File: owner.File, Line: v.Line}
		link.Schema = firstSchemaParam(v.Params)

	case *callgraph.Class:
		link.Location = schema.Location{File: v.File, Line: v.Line}
		link.Schema = v.Schema
		if link.Schema == nil {
			link.Schema = &schema.Reference{Name: v.ClassName, Type: schema.LanguageNativeType, Location: link.Location}
		}
	}
	return link, nil
}

func paramsOf(n callgraph.Node) []callgraph.Parameter {
	switch v := n.(type) {
	case *callgraph.Function:
		return v.Params
	case *callgraph.Method:
		return v.Params
	}
	return nil
}

// firstSchemaParam returns the schema of the first parameter that carries
// one. Object and array parameters without a reference get a placeholder
// of their shape.
func firstSchemaParam(params []callgraph.Parameter) *schema.Reference {
	for _, p := range params {
		if p.Type.SchemaRef != nil {
			return p.Type.SchemaRef
		}
		if p.Type.BaseType == schema.Object || p.Type.BaseType == schema.Array {
			return &schema.Reference{
				Name:     p.Name,
				Type:     schema.GenericJSONSchema,
				Metadata: map[string]string{schema.MetaType: string(p.Type.BaseType)},
			}
		}
	}
	return nil
}

// traceFlows follows the entry handler's schema parameter through the graph.
func (b *Builder) traceFlows(c *DataChain) {
	if len(c.Links) < 2 || c.Links[0].Kind != callgraph.KindRoute {
		return
	}
	handler := c.Links[1].Node
	n, _ := b.graph.Node(handler)
	for _, p := range paramsOf(n) {
		if p.Type.SchemaRef != nil || p.Type.BaseType == schema.Object || p.Type.BaseType == schema.Array {
			for _, dp := range b.tracker.TrackParameter(p.Name, handler) {
				c.Flows = append(c.Flows, b.flow(dp))
			}
			return
		}
	}
}

func (b *Builder) flow(dp *dataflow.DataPath) Flow {
	f := Flow{
		Variable: dp.Variable.Name,
		Source:   dp.Variable.Source.String(),
		Nodes:    dp.Nodes(),
	}
	for _, id := range f.Nodes {
		f.Path = append(f.Path, b.displayName(id))
	}
	return f
}

// displayName names a node the way its chain link would.
func (b *Builder) displayName(id callgraph.NodeID) string {
	n, ok := b.graph.Node(id)
	if !ok {
		return fmt.Sprintf("#%d", id)
	}
	switch v := n.(type) {
	case *callgraph.Route:
		return string(v.Method) + " " + v.Path
	case *callgraph.Method:
		if owner, err := b.graph.Owner(v); err == nil {
			return owner.ClassName + "." + v.MethodName
		}
	}
	return n.Name()
}
