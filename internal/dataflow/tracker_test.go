package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

type fixture struct {
	g                               *callgraph.Graph
	route, handler, svc, repo, main callgraph.NodeID
}

// newFixture builds:
//
//	route -> handler(user) -> service(payload) -> repo(item)
//	main  -> handler
func newFixture(t *testing.T) fixture {
	t.Helper()
	g := callgraph.New()
	param := func(name string) []callgraph.Parameter {
		return []callgraph.Parameter{{Name: name, Type: schema.TypeInfo{BaseType: schema.Object}}}
	}

	f := fixture{g: g}
	f.handler = g.AddNode(&callgraph.Function{FuncName: "create", File: "api.py", Params: param("user")})
	f.svc = g.AddNode(&callgraph.Function{
		FuncName:   "save_user",
		File:       "service.py",
		Params:     param("payload"),
		ReturnType: &schema.TypeInfo{BaseType: schema.Integer},
	})
	f.repo = g.AddNode(&callgraph.Function{FuncName: "insert", File: "repo.py", Params: param("item")})
	f.main = g.AddNode(&callgraph.Function{FuncName: "main", File: "main.py"})
	f.route = g.AddNode(&callgraph.Route{Path: "/users", Method: callgraph.MethodPost, Handler: f.handler})

	edges := []struct {
		from, to callgraph.NodeID
		args     []callgraph.Argument
	}{
		{f.route, f.handler, nil},
		{f.handler, f.svc, []callgraph.Argument{{Param: "payload", Value: "user"}}},
		{f.svc, f.repo, []callgraph.Argument{{Param: "arg0", Value: "payload"}}},
		{f.main, f.handler, []callgraph.Argument{{Param: "user", Value: "u"}}},
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e.from, e.to, callgraph.Call{Args: e.args}))
	}
	return f
}

func TestDataPath(t *testing.T) {
	p := NewDataPath(Variable{Name: "x"}, 1, 2)
	p.Push(3)
	p.Push(2)
	p.Push(3)
	assert.Equal(t, []callgraph.NodeID{1, 2, 3}, p.Nodes())
	assert.Equal(t, callgraph.NodeID(1), p.Start())
	assert.Equal(t, callgraph.NodeID(3), p.End())

	assert.ErrorIs(t, p.SetNodes(nil), ErrEmptyNodes)
	assert.ErrorIs(t, p.SetNodes([]callgraph.NodeID{4}), ErrInsufficientNodes)
	assert.Equal(t, 3, p.Len(), "failed replacement must not truncate")

	require.NoError(t, p.SetNodes([]callgraph.NodeID{5, 6}))
	assert.Equal(t, []callgraph.NodeID{5, 6}, p.Nodes())
}

func TestTrackParameter(t *testing.T) {
	f := newFixture(t)
	paths := NewTracker(f.g).TrackParameter("user", f.handler)

	require.Len(t, paths, 2)
	assert.Equal(t, []callgraph.NodeID{f.main, f.handler}, paths[0].Nodes())
	assert.Equal(t, []callgraph.NodeID{f.handler, f.svc}, paths[1].Nodes())
	assert.Equal(t, schema.Object, paths[0].Variable.Type.BaseType)
	assert.Equal(t, SourceParameter, paths[0].Variable.Source)
}

func TestTrackVariable(t *testing.T) {
	f := newFixture(t)
	paths := NewTracker(f.g).TrackVariable("payload", f.route)

	require.Len(t, paths, 1)
	assert.Equal(t, []callgraph.NodeID{f.route, f.handler, f.svc}, paths[0].Nodes())
}

func TestTrackVariableIgnoresStart(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, NewTracker(f.g).TrackVariable("user", f.handler))
}

func TestTrackReturn(t *testing.T) {
	f := newFixture(t)
	paths := NewTracker(f.g).TrackReturn(f.svc)

	require.Len(t, paths, 3)
	assert.Equal(t, []callgraph.NodeID{f.svc, f.handler}, paths[0].Nodes())
	assert.Equal(t, []callgraph.NodeID{f.svc, f.handler, f.route}, paths[1].Nodes())
	assert.Equal(t, []callgraph.NodeID{f.svc, f.handler, f.main}, paths[2].Nodes())
	assert.Equal(t, ReturnValue, paths[0].Variable.Name)
	assert.Equal(t, schema.Integer, paths[0].Variable.Type.BaseType)
}

func TestTrackingTerminatesOnCycles(t *testing.T) {
	g := callgraph.New()
	a := g.AddNode(&callgraph.Function{FuncName: "a", Params: []callgraph.Parameter{{Name: "v"}}})
	b := g.AddNode(&callgraph.Function{FuncName: "b", Params: []callgraph.Parameter{{Name: "v"}}})
	require.NoError(t, g.AddEdge(a, b, callgraph.Call{Args: []callgraph.Argument{{Param: "v", Value: "v"}}}))
	require.NoError(t, g.AddEdge(b, a, callgraph.Call{Args: []callgraph.Argument{{Param: "v", Value: "v"}}}))

	tr := NewTracker(g)
	assert.Len(t, tr.TrackVariable("v", a), 1)
	assert.Len(t, tr.TrackParameter("v", a), 2)
	assert.Len(t, tr.TrackReturn(a), 1)
}

func TestRecordIgnoresDuplicates(t *testing.T) {
	tr := NewTracker(callgraph.New())
	tr.Record(0, Variable{Name: "x", Source: SourceLocal})
	tr.Record(0, Variable{Name: "x", Source: SourceField})
	require.Len(t, tr.Variables(0), 1)
	assert.Equal(t, SourceLocal, tr.Variables(0)[0].Source)
	assert.Equal(t, "field", SourceField.String())
}
