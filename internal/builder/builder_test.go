package builder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/frontend"
	"github.com/leapstack-labs/dcverify/internal/frontend/python"
	"github.com/leapstack-labs/dcverify/internal/schema"
	"github.com/leapstack-labs/dcverify/internal/testutil"
)

// fakeFrontend serves canned events keyed by path relative to root.
type fakeFrontend struct {
	root   string
	layout frontend.Layout
	files  map[string]frontend.File
	broken map[string]bool
}

func pythonLayout() frontend.Layout {
	return frontend.Layout{
		Style:            frontend.DottedImports,
		Extensions:       []string{".py"},
		PackageInit:      "__init__.py",
		ImplicitReceiver: true,
	}
}

func (f *fakeFrontend) Language() string        { return "fake" }
func (f *fakeFrontend) Layout() frontend.Layout { return f.layout }

func (f *fakeFrontend) Parse(path string, _ []byte) (*frontend.File, error) {
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)
	if f.broken[rel] {
		return nil, fmt.Errorf("syntax error in %s", rel)
	}
	file := f.files[rel]
	file.Path = path
	for i := range file.Schemas {
		file.Schemas[i].Location.File = path
	}
	return &file, nil
}

// project writes one empty file per event set so the builder can read it.
func project(t *testing.T, files map[string]frontend.File) (string, *fakeFrontend) {
	t.Helper()
	contents := make(map[string]string, len(files))
	for rel := range files {
		contents[rel] = "# fixture\n"
	}
	root := testutil.Project(t, contents)
	return root, &fakeFrontend{root: root, layout: pythonLayout(), files: files, broken: map[string]bool{}}
}

func countKind(g *callgraph.Graph, kind callgraph.NodeKind) int {
	return len(g.Find(func(_ callgraph.NodeID, n callgraph.Node) bool { return n.Kind() == kind }))
}

func fn(name string, line int, params ...frontend.Param) frontend.Definition {
	return frontend.Definition{Kind: frontend.FunctionDef, Name: name, Params: params, Location: schema.Location{Line: line}}
}

func TestBuildFromEntry_CircularImports(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"a.py": {Imports: []frontend.Import{{Path: "b"}}},
		"b.py": {Imports: []frontend.Import{{Path: "a"}}},
	})

	b := New(fe, WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, b.BuildFromEntry(context.Background(), filepath.Join(root, "a.py")))

	g := b.Graph()
	assert.Equal(t, 2, countKind(g, callgraph.KindModule))
	require.Equal(t, 2, g.EdgeCount())

	a, b2 := b.modules[filepath.Join(root, "a.py")], b.modules[filepath.Join(root, "b.py")]
	assert.Len(t, g.EdgesBetween(a, b2), 1)
	assert.Len(t, g.EdgesBetween(b2, a), 1)
	assert.NotNil(t, g.ImportCycle())
}

func TestBuildFromEntry_Idempotent(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"main.py": {
			Imports:     []frontend.Import{{Path: "util"}},
			Definitions: []frontend.Definition{fn("main", 3)},
			Calls:       []frontend.Call{{Callee: "helper", Enclosing: "main"}},
		},
		"util.py": {Definitions: []frontend.Definition{fn("helper", 1)}},
	})

	b := New(fe)
	entry := filepath.Join(root, "main.py")
	require.NoError(t, b.BuildFromEntry(context.Background(), entry))
	nodes, edges := b.Graph().NodeCount(), b.Graph().EdgeCount()

	require.NoError(t, b.BuildFromEntry(context.Background(), entry))
	assert.Equal(t, nodes, b.Graph().NodeCount())
	assert.Equal(t, edges, b.Graph().EdgeCount())
	assert.Equal(t, []string{entry, filepath.Join(root, "util.py")}, b.ProcessedFiles())
}

func TestBuildFromEntry_MaxDepth(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"a.py": {Imports: []frontend.Import{{Path: "b"}}},
		"b.py": {Imports: []frontend.Import{{Path: "c"}}},
		"c.py": {},
	})

	b := New(fe, WithMaxDepth(2))
	err := b.BuildFromEntry(context.Background(), filepath.Join(root, "a.py"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxDepthExceeded))
	assert.Equal(t, "maximum recursion depth (2) exceeded", err.Error())
	assert.Equal(t, 0, b.depth, "depth counter must unwind on failure")

	unbounded := New(fe)
	require.NoError(t, unbounded.BuildFromEntry(context.Background(), filepath.Join(root, "a.py")))
	assert.Equal(t, 3, countKind(unbounded.Graph(), callgraph.KindModule))
}

func TestBuildFromEntry_ParseErrorPropagates(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"a.py":      {Imports: []frontend.Import{{Path: "broken"}}},
		"broken.py": {},
	})
	fe.broken["broken.py"] = true

	err := New(fe).BuildFromEntry(context.Background(), filepath.Join(root, "a.py"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")

	err = New(fe).BuildFromEntry(context.Background(), filepath.Join(root, "missing.py"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestBuildFromEntry_UnresolvedImportIsSoft(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"main.py": {
			Imports:     []frontend.Import{{Path: "fastapi"}, {Path: "models"}},
			Definitions: []frontend.Definition{fn("main", 1)},
		},
		"models.py": {},
	})

	b := New(fe, WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, b.BuildFromEntry(context.Background(), filepath.Join(root, "main.py")))

	require.Len(t, b.Diagnostics(), 1)
	assert.Equal(t, DiagUnresolvedImport, b.Diagnostics()[0].Kind)
	assert.Contains(t, b.Diagnostics()[0].Message, "fastapi")
	assert.Equal(t, 2, countKind(b.Graph(), callgraph.KindModule))
	assert.Equal(t, 1, countKind(b.Graph(), callgraph.KindFunction))
}

func TestBuildFromEntry_RelativeAndPackageImports(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"app/api/routes.py": {Imports: []frontend.Import{
			{Path: ".deps"},
			{Path: "..models.user"},
			{Path: "app.services"},
		}},
		"app/api/deps.py":          {},
		"app/models/user.py":       {},
		"app/services/__init__.py": {},
	})

	b := New(fe, WithProjectRoot(root))
	require.NoError(t, b.BuildFromEntry(context.Background(), filepath.Join(root, "app/api/routes.py")))

	assert.Empty(t, b.Diagnostics())
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "app/api/routes.py"),
		filepath.Join(root, "app/api/deps.py"),
		filepath.Join(root, "app/models/user.py"),
		filepath.Join(root, "app/services/__init__.py"),
	}, b.ProcessedFiles())
}

func TestBuildFromEntry_PathImports(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"src/main.ts":             {Imports: []frontend.Import{{Path: "./api/user.service"}, {Path: "react"}, {Path: "./lib"}}},
		"src/api/user.service.ts": {},
		"src/lib/index.ts":        {},
	})
	fe.layout = frontend.Layout{Style: frontend.PathImports, Extensions: []string{".ts", ".tsx"}, PackageInit: "index.ts"}

	b := New(fe)
	require.NoError(t, b.BuildFromEntry(context.Background(), filepath.Join(root, "src/main.ts")))

	require.Len(t, b.Diagnostics(), 1)
	assert.Equal(t, DiagExternalModule, b.Diagnostics()[0].Kind)
	assert.Len(t, b.ProcessedFiles(), 3)
}

func TestBuildFromEntry_DisambiguatesByDirectory(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"main.py": {Imports: []frontend.Import{{Path: "billing.handlers"}, {Path: "users.handlers"}}},
		"billing/handlers.py": {
			Imports:     []frontend.Import{{Path: "billing.util"}},
			Definitions: []frontend.Definition{fn("charge", 1)},
			Calls:       []frontend.Call{{Callee: "helper", Enclosing: "charge"}},
		},
		"billing/util.py": {Definitions: []frontend.Definition{fn("helper", 1)}},
		"users/handlers.py": {
			Imports:     []frontend.Import{{Path: "users.util"}},
			Definitions: []frontend.Definition{fn("register", 1)},
			Calls:       []frontend.Call{{Callee: "helper", Enclosing: "register"}},
		},
		"users/util.py": {Definitions: []frontend.Definition{fn("helper", 1)}},
	})

	b := New(fe)
	require.NoError(t, b.BuildFromEntry(context.Background(), filepath.Join(root, "main.py")))
	g := b.Graph()

	for _, tc := range []struct{ caller, dir string }{{"charge", "billing"}, {"register", "users"}} {
		caller, ok := g.FindByName(tc.caller)
		require.True(t, ok)
		out := g.Outgoing(caller)
		require.Len(t, out, 1, tc.caller)
		file, err := g.FileOf(out[0])
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, tc.dir, "util.py"), file)
	}
	assert.Empty(t, b.Diagnostics())
}

func TestBuildFromEntry_DisambiguatesByCommonPrefix(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"svc/api/main.py": {
			Imports:     []frontend.Import{{Path: "lib.util"}, {Path: "svc.util"}},
			Definitions: []frontend.Definition{fn("main", 1)},
			Calls:       []frontend.Call{{Callee: "helper", Enclosing: "main"}},
		},
		"lib/util.py": {Definitions: []frontend.Definition{fn("helper", 1)}},
		"svc/util.py": {Definitions: []frontend.Definition{fn("helper", 1)}},
	})

	b := New(fe, WithProjectRoot(root), WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, b.BuildFromEntry(context.Background(), filepath.Join(root, "svc/api/main.py")))

	caller, ok := b.Graph().FindByName("main")
	require.True(t, ok)
	out := b.Graph().Outgoing(caller)
	require.Len(t, out, 1)
	file, err := b.Graph().FileOf(out[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "svc/util.py"), file)

	require.Len(t, b.Diagnostics(), 1)
	assert.Equal(t, DiagAmbiguousSymbol, b.Diagnostics()[0].Kind)
}

func TestBuildFromEntry_ClassesAndMethods(t *testing.T) {
	self := frontend.Param{Name: "self"}
	user := frontend.Param{Name: "user", TypeText: "UserCreate"}
	root, fe := project(t, map[string]frontend.File{
		"svc.py": {
			Schemas: []schema.Reference{{Name: "UserCreate", Type: schema.BackendModel, Metadata: map[string]string{"fields": "name:str"}}},
			Definitions: []frontend.Definition{
				{Kind: frontend.ClassDef, Name: "UserCreate"},
				{Kind: frontend.ClassDef, Name: "UserService", Body: []frontend.Definition{
					fn("create", 5, self, user),
					{Kind: frontend.FunctionDef, Name: "validate", Decorators: []string{"staticmethod"}, Params: []frontend.Param{user}},
					fn("save", 12, self),
				}},
			},
			Calls: []frontend.Call{
				{Callee: "self.save", Enclosing: "UserService.create", Args: []frontend.Argument{{Value: "user"}}},
				{Callee: "UserService.validate", Enclosing: "UserService.create", Args: []frontend.Argument{{Name: "user", Value: "user"}}},
			},
		},
	})

	b := New(fe)
	require.NoError(t, b.BuildFromEntry(context.Background(), filepath.Join(root, "svc.py")))
	g := b.Graph()

	modelID, ok := g.FindByName("UserCreate")
	require.True(t, ok)
	model, err := g.Class(modelID)
	require.NoError(t, err)
	require.NotNil(t, model.Schema)

	clsID, ok := g.FindByName("UserService")
	require.True(t, ok)
	cls, err := g.Class(clsID)
	require.NoError(t, err)
	require.Len(t, cls.Methods, 3)

	create, err := g.Method(cls.Methods[0])
	require.NoError(t, err)
	require.Len(t, create.Params, 1, "receiver dropped")
	assert.Equal(t, "user", create.Params[0].Name)
	assert.Equal(t, schema.Object, create.Params[0].Type.BaseType)
	require.NotNil(t, create.Params[0].Type.SchemaRef)
	assert.Equal(t, "UserCreate", create.Params[0].Type.SchemaRef.Name)

	validate, err := g.Method(cls.Methods[1])
	require.NoError(t, err)
	assert.Len(t, validate.Params, 1, "static methods keep their first parameter")

	out := g.OutgoingEdges(cls.Methods[0])
	require.Len(t, out, 2)
	assert.Equal(t, cls.Methods[2], out[0].To)
	assert.Equal(t, []callgraph.Argument{{Param: "arg0", Value: "user"}}, out[0].Edge.(callgraph.Call).Args)
	assert.Equal(t, cls.Methods[1], out[1].To)
	assert.Equal(t, []callgraph.Argument{{Param: "user", Value: "user"}}, out[1].Edge.(callgraph.Call).Args)
}

func TestBuildFromEntry_CallsFromUnknownEnclosingAreSkipped(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"main.py": {
			Definitions: []frontend.Definition{fn("helper", 1)},
			Calls: []frontend.Call{
				{Callee: "helper"},
				{Callee: "helper", Enclosing: "outer.inner"},
				{Callee: "print", Enclosing: "helper"},
			},
		},
	})

	b := New(fe)
	require.NoError(t, b.BuildFromEntry(context.Background(), filepath.Join(root, "main.py")))
	assert.Equal(t, 1, b.Graph().EdgeCount(), "only the module-level call resolves")
}

func TestBuildFromEntry_ModuleLevelCallWithPython(t *testing.T) {
	root := testutil.Project(t, map[string]string{
		"app.py": "def setup():\n    pass\n\nsetup()\n",
	})
	entry := filepath.Join(root, "app.py")

	b := New(python.New())
	require.NoError(t, b.BuildFromEntry(context.Background(), entry))
	g := b.Graph()

	setup, ok := g.FindByName("setup")
	require.True(t, ok)
	in := g.IncomingEdges(setup)
	require.Len(t, in, 1)
	assert.Equal(t, callgraph.EdgeCall, in[0].Edge.Kind())

	caller, ok := g.Node(in[0].From)
	require.True(t, ok)
	assert.Equal(t, callgraph.KindModule, caller.Kind())
	assert.Equal(t, 4, in[0].Edge.(callgraph.Call).Location.Line)
}

func TestBuildFromEntry_Routes(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{
		"app.py": {
			Definitions: []frontend.Definition{fn("create_user", 4), fn("health", 9)},
			Annotations: []frontend.Annotation{
				{Name: "app.post", Target: "create_user", PathArg: "/users", Location: schema.Location{Line: 3}},
				{Name: "router.get", Target: "health"},
				{Name: "app.api_route", Target: "health", PathArg: "/h"},
				{Name: "functools.wraps", Target: "health"},
				{Name: "app.get", Target: "missing"},
			},
		},
	})

	b := New(fe)
	require.NoError(t, b.BuildFromEntry(context.Background(), filepath.Join(root, "app.py")))
	g := b.Graph()

	routes := g.Routes()
	require.Len(t, routes, 3)

	n, _ := g.Node(routes[0])
	r := n.(*callgraph.Route)
	assert.Equal(t, "/users", r.Path)
	assert.Equal(t, callgraph.MethodPost, r.Method)
	assert.Equal(t, filepath.Join(root, "app.py"), r.Location.File)
	handler, err := g.Handler(r)
	require.NoError(t, err)
	assert.Equal(t, "create_user", handler.Name())
	assert.Equal(t, []callgraph.NodeID{r.Handler}, g.Outgoing(routes[0]))

	n, _ = g.Node(routes[1])
	assert.Equal(t, "/", n.(*callgraph.Route).Path)
	assert.Equal(t, callgraph.MethodGet, n.(*callgraph.Route).Method)

	n, _ = g.Node(routes[2])
	assert.Equal(t, callgraph.MethodGet, n.(*callgraph.Route).Method, "unknown method segment defaults to GET")

	require.Len(t, b.Diagnostics(), 1)
	assert.Equal(t, DiagUnresolvedRoute, b.Diagnostics()[0].Kind)
}

func TestBuildFromEntry_Canceled(t *testing.T) {
	root, fe := project(t, map[string]frontend.File{"a.py": {}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(fe).BuildFromEntry(ctx, filepath.Join(root, "a.py"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouteHelpers(t *testing.T) {
	assert.True(t, IsRouteAnnotation("app.get"))
	assert.True(t, IsRouteAnnotation("router.delete"))
	assert.True(t, IsRouteAnnotation("bp.route"))
	assert.False(t, IsRouteAnnotation("staticmethod"))
	assert.False(t, IsRouteAnnotation("pytest.fixture"))

	assert.Equal(t, callgraph.MethodDelete, RouteMethod("router.delete"))
	assert.Equal(t, callgraph.MethodGet, RouteMethod("bp.route"))
	assert.Equal(t, callgraph.MethodGet, RouteMethod("app"))
}

func TestCommonPrefixLen(t *testing.T) {
	assert.Equal(t, 3, commonPrefixLen("/a/b/c.py", "/a/b/d.py"))
	assert.Equal(t, 1, commonPrefixLen("/a/x.py", "/b/x.py"))
}
