package cache

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/schema"
	"github.com/leapstack-labs/dcverify/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleGraph(t *testing.T) *callgraph.Graph {
	t.Helper()
	g := callgraph.New()
	mod := g.AddNode(&callgraph.Module{Path: "/app/main.py"})
	other := g.AddNode(&callgraph.Module{Path: "/app/db.py"})
	fn := g.AddNode(&callgraph.Function{
		FuncName: "create",
		File:     "/app/main.py",
		Line:     7,
		Params: []callgraph.Parameter{{
			Name: "user",
			Type: schema.TypeInfo{
				BaseType:  schema.Object,
				SchemaRef: &schema.Reference{Name: "UserIn", Type: schema.BackendModel, Metadata: map[string]string{schema.MetaFields: "email:str"}},
			},
		}},
		ReturnType: &schema.TypeInfo{BaseType: schema.Integer},
	})
	class := g.AddNode(&callgraph.Class{ClassName: "Repo", File: "/app/db.py", Line: 3})
	method := g.AddNode(&callgraph.Method{MethodName: "save", Class: class, Line: 4})
	require.NoError(t, g.AddMethod(class, method))
	route := g.AddNode(&callgraph.Route{
		Path:     "/users",
		Method:   callgraph.MethodPost,
		Handler:  fn,
		Location: schema.Location{File: "/app/main.py", Line: 6, Column: 1},
	})

	require.NoError(t, g.AddEdge(mod, other, callgraph.Import{ImportPath: "db", File: "/app/db.py"}))
	require.NoError(t, g.AddEdge(route, fn, callgraph.Call{}))
	require.NoError(t, g.AddEdge(fn, method, callgraph.Call{
		Args:     []callgraph.Argument{{Param: "arg0", Value: "user"}},
		Location: schema.Location{File: "/app/main.py", Line: 8, Column: 5},
	}))
	require.NoError(t, g.AddEdge(method, fn, callgraph.Return{Value: "id"}))
	return g
}

func TestStore_IsChanged(t *testing.T) {
	s := openTestStore(t)
	content := []byte("def f(): pass\n")

	changed, err := s.IsChanged("/app/main.py", content)
	require.NoError(t, err)
	assert.True(t, changed, "unknown file counts as changed")

	require.NoError(t, s.SaveFileHash("/app/main.py", content))
	changed, err = s.IsChanged("/app/main.py", content)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.IsChanged("/app/main.py", []byte("def g(): pass\n"))
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Len(t, HashContent(content), 64)
}

func TestStore_GraphRoundTrip(t *testing.T) {
	s := openTestStore(t)
	g := sampleGraph(t)

	require.NoError(t, s.SaveGraph("adapter:0:app", g))
	loaded, ok, err := s.LoadGraph("adapter:0:app")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, g.NodeCount(), loaded.NodeCount())
	assert.Equal(t, g.EdgeCount(), loaded.EdgeCount())
	for _, id := range g.NodeIDs() {
		want, _ := g.Node(id)
		got, _ := loaded.Node(id)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, g.Edges(), loaded.Edges())

	_, ok, err = s.LoadGraph("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SaveGraphOverwrites(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveGraph("g", sampleGraph(t)))
	require.NoError(t, s.SaveGraph("g", callgraph.New()))

	loaded, ok, err := s.LoadGraph("g")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, loaded.NodeCount())
}

func TestDecodeGraph_Corruption(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"nodes":`},
		{"edge to pruned node", `{"nodes":[{"index":0,"kind":"module","node":{"path":"a.py"}}],
			"edges":[{"source":0,"target":5,"kind":"import","edge":{"import_path":"b","file":"b.py"}}]}`},
		{"edge from pruned node", `{"nodes":[{"index":0,"kind":"module","node":{"path":"a.py"}}],
			"edges":[{"source":3,"target":0,"kind":"call","edge":{}}]}`},
		{"dangling route handler", `{"nodes":[{"index":0,"kind":"route","node":{"path":"/x","http_method":"GET","handler":9}}],"edges":[]}`},
		{"unknown node kind", `{"nodes":[{"index":0,"kind":"lambda","node":{}}],"edges":[]}`},
		{"unknown edge kind", `{"nodes":[{"index":0,"kind":"module","node":{}}],
			"edges":[{"source":0,"target":0,"kind":"spawn","edge":{}}]}`},
		{"duplicate index", `{"nodes":[{"index":0,"kind":"module","node":{}},{"index":0,"kind":"module","node":{}}],"edges":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := decodeGraph([]byte(tt.data))
			assert.Nil(t, g)
			assert.ErrorIs(t, err, ErrCorruptedCache)
		})
	}
}

func TestDecodeGraph_RemapsSparseIndices(t *testing.T) {
	data := `{"nodes":[
		{"index":10,"kind":"function","node":{"name":"handler","file":"a.py","line":1}},
		{"index":20,"kind":"route","node":{"path":"/x","http_method":"GET","handler":10,"location":{"file":"a.py","line":1}}}],
		"edges":[{"source":20,"target":10,"kind":"call","edge":{}}]}`

	g, err := decodeGraph([]byte(data))
	require.NoError(t, err)
	require.Equal(t, 2, g.NodeCount())

	n, ok := g.Node(1)
	require.True(t, ok)
	route := n.(*callgraph.Route)
	assert.Equal(t, callgraph.NodeID(0), route.Handler)
	assert.Equal(t, []callgraph.NodeID{0}, g.Outgoing(1))
}

func TestStore_LoadCorruptedGraph(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.put(graphPrefix+"bad", []byte(`{"nodes":[],"edges":[{"source":0,"target":1,"kind":"call","edge":{}}]}`)))

	_, ok, err := s.LoadGraph("bad")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCorruptedCache)
}

func TestStore_Runs(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun()
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	summary := Summary{TotalChains: 4, Critical: 1, Warnings: 1, Valid: 2}
	require.NoError(t, s.CompleteRun(run.ID, summary, ""))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, summary, got.Summary)
	assert.NotNil(t, got.CompletedAt)

	failed, err := s.CreateRun()
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(failed.ID, Summary{}, "boom"))

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = s.GetRun("nope")
	assert.Error(t, err)
}

func TestStore_OpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveFileHash("a", []byte("x")))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	changed, err := s.IsChanged("a", []byte("x"))
	require.NoError(t, err)
	assert.False(t, changed)

	v, err := s.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestStore_NotOpened(t *testing.T) {
	s := NewStore(nil)

	_, err := s.IsChanged("a", nil)
	assert.ErrorIs(t, err, ErrNotOpened)
	assert.ErrorIs(t, s.SaveGraph("g", callgraph.New()), ErrNotOpened)
	_, err = s.CreateRun()
	assert.ErrorIs(t, err, ErrNotOpened)
	assert.ErrorIs(t, s.Migrate(), ErrNotOpened)
}

func TestStore_QueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewWithDB(db, nil)

	mock.ExpectQuery("SELECT value FROM kv").WillReturnError(errors.New("disk I/O error"))
	_, err = s.IsChanged("a.py", []byte("x"))
	assert.ErrorContains(t, err, "disk I/O error")

	mock.ExpectExec("INSERT INTO kv").WillReturnError(errors.New("database is locked"))
	assert.ErrorContains(t, s.SaveFileHash("a.py", []byte("x")), "database is locked")

	mock.ExpectQuery("SELECT value FROM kv").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("not a graph")))
	_, _, err = s.LoadGraph("g")
	assert.ErrorIs(t, err, ErrCorruptedCache)

	mock.ExpectExec("INSERT INTO runs").WillReturnError(errors.New("no such table: runs"))
	_, err = s.CreateRun()
	assert.ErrorContains(t, err, "failed to create run")

	assert.NoError(t, mock.ExpectationsWereMet())
}
