package verify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dcverify/internal/builder"
	"github.com/leapstack-labs/dcverify/internal/cache"
	"github.com/leapstack-labs/dcverify/internal/frontend"
	"github.com/leapstack-labs/dcverify/internal/testutil"
)

const usersApp = `from fastapi import FastAPI
from pydantic import BaseModel

app = FastAPI()


class UserIn(BaseModel):
    id: str
    name: str


class UserRow(BaseModel):
    id: int
    name: str


def save(row: UserRow):
    return row


@app.post("/users")
def create_user(user: UserIn):
    return save(user)
`

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	cfg.Logger = testutil.NewTestLogger(t)
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestRun_FastAPITypeMismatch(t *testing.T) {
	root := testutil.Project(t, map[string]string{"app.py": usersApp})

	e := newEngine(t, Config{Adapters: []Adapter{{Type: FastAPI, AppPath: root}}})
	result, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{TotalChains: 2, Critical: 1, Valid: 1}, result.Summary)
	assert.False(t, result.Summary.Passed())
	require.Len(t, result.Adapters, 1)
	assert.False(t, result.Adapters[0].FromCache)
	assert.NotNil(t, result.Adapters[0].Graph)

	forward := result.Chains[0]
	assert.True(t, strings.HasPrefix(forward.ID, "fastapi0:"))
	assert.Equal(t, "POST /users", forward.Name)
	require.Len(t, forward.Links, 3)
	assert.Equal(t, "UserIn", forward.Links[0].Schema.Name)
	assert.Equal(t, "UserRow", forward.Links[2].Schema.Name)

	mismatches := forward.Mismatches()
	require.Len(t, mismatches, 1)
	assert.Equal(t, "id", mismatches[0].Path)

	require.Len(t, forward.Flows, 1)
	assert.Equal(t, "user", forward.Flows[0].Variable)
	assert.Equal(t, []string{"create_user", "save"}, forward.Flows[0].Path)

	reverse := result.Chains[1]
	assert.Equal(t, "POST /users (reverse)", reverse.Name)
	require.Len(t, reverse.Links, 1)
	assert.Equal(t, forward.Links[0].Node, reverse.Links[0].Node)
	assert.Empty(t, reverse.Contracts)
}

func TestRun_RuleDisabled(t *testing.T) {
	root := testutil.Project(t, map[string]string{"app.py": usersApp})

	e := newEngine(t, Config{
		Adapters: []Adapter{{Type: FastAPI, AppPath: root}},
		Rules:    map[string]string{"type_mismatch": "off"},
	})
	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{TotalChains: 2, Valid: 2}, result.Summary)
	assert.True(t, result.Summary.Passed())
}

func TestNew_InvalidRuleSetting(t *testing.T) {
	_, err := New(Config{Rules: map[string]string{"type_mismatch": "loud"}})
	assert.Error(t, err)
}

func TestRun_MissingEntryPointIsSoft(t *testing.T) {
	good := testutil.Project(t, map[string]string{"app.py": usersApp})
	empty := t.TempDir()

	e := newEngine(t, Config{Adapters: []Adapter{
		{Type: FastAPI, AppPath: empty},
		{Type: FastAPI, AppPath: good},
	}})
	result, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Adapters, 1)
	assert.Equal(t, 1, result.Adapters[0].Index)
	assert.Equal(t, 2, result.Summary.TotalChains)

	var kinds []string
	for _, d := range result.Diagnostics {
		kinds = append(kinds, d.Kind)
	}
	assert.Contains(t, kinds, "entry_point")
}

func TestRun_SyntaxErrorIsFatal(t *testing.T) {
	root := testutil.Project(t, map[string]string{"main.py": "def broken(:\n    pass\n"})

	e := newEngine(t, Config{Adapters: []Adapter{{Type: FastAPI, AppPath: root}}})
	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, frontend.ErrSyntax)
}

func TestRun_CacheReuse(t *testing.T) {
	root := testutil.Project(t, map[string]string{"app.py": usersApp})
	cachePath := filepath.Join(t.TempDir(), "cache.db")

	e := newEngine(t, Config{
		Adapters:  []Adapter{{Type: FastAPI, AppPath: root}},
		CachePath: cachePath,
	})
	ctx := context.Background()

	first, err := e.Run(ctx)
	require.NoError(t, err)
	assert.False(t, first.Adapters[0].FromCache)
	assert.NotEmpty(t, first.RunID)

	second, err := e.Run(ctx)
	require.NoError(t, err)
	assert.True(t, second.Adapters[0].FromCache)
	assert.Equal(t, first.Summary, second.Summary)

	edited := strings.Replace(usersApp, "id: int", "id: str", 1)
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte(edited), 0o644))

	third, err := e.Run(ctx)
	require.NoError(t, err)
	assert.False(t, third.Adapters[0].FromCache)
	assert.Equal(t, Summary{TotalChains: 2, Valid: 2}, third.Summary)

	runs, err := e.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for _, r := range runs {
		assert.Equal(t, cache.RunStatusCompleted, r.Status)
	}
}

func TestRun_CacheRespectsMaxDepth(t *testing.T) {
	root := testutil.Project(t, map[string]string{
		"app.py": "import svc\n",
		"svc.py": "import db\n",
		"db.py":  "",
	})
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	adapters := []Adapter{{Type: FastAPI, AppPath: root}}
	ctx := context.Background()

	unbounded := newEngine(t, Config{Adapters: adapters, CachePath: cachePath})
	_, err := unbounded.Run(ctx)
	require.NoError(t, err)
	second, err := unbounded.Run(ctx)
	require.NoError(t, err)
	require.True(t, second.Adapters[0].FromCache)

	bounded := newEngine(t, Config{Adapters: adapters, CachePath: cachePath, MaxDepth: 2})
	_, err = bounded.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, builder.ErrMaxDepthExceeded)
}

func TestRun_OpenAPIRouteSchema(t *testing.T) {
	root := testutil.Project(t, map[string]string{
		"app.py": `from fastapi import FastAPI

app = FastAPI()


@app.get("/users/{id}")
def get_user(id: str):
    return {"id": id}
`,
		"openapi.yaml": `openapi: 3.0.3
paths:
  /users/{id}:
    get:
      responses:
        200:
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/User'
components:
  schemas:
    User:
      type: object
      properties:
        id:
          type: string
`,
	})

	e := newEngine(t, Config{Adapters: []Adapter{{
		Type:        FastAPI,
		AppPath:     filepath.Join(root, "app.py"),
		OpenAPIPath: filepath.Join(root, "openapi.yaml"),
	}}})
	result, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.Chains)

	route := result.Chains[0].Links[0]
	require.NotNil(t, route.Schema)
	assert.Equal(t, "User", route.Schema.Name)
}

func TestBuildGraphs_TypeScriptContinuesPastBrokenFiles(t *testing.T) {
	root := testutil.Project(t, map[string]string{
		"src/api.ts":    "export function submit(data: string) {\n  return data.trim();\n}\n",
		"src/broken.ts": "function (\n",
		"src/notes.md":  "# not code\n",
	})

	e := newEngine(t, Config{Adapters: []Adapter{{Type: TypeScript, SrcPaths: []string{filepath.Join(root, "src")}}}})
	results, diags, err := e.BuildGraphs(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	ar := results[0]
	assert.Equal(t, TypeScript, ar.Type)
	assert.Equal(t, []string{filepath.Join(root, "src", "api.ts")}, ar.Files)
	assert.Nil(t, ar.Chains)

	var broken bool
	for _, d := range diags {
		if d.Kind == "file" && strings.HasSuffix(d.File, "broken.ts") {
			broken = true
		}
	}
	assert.True(t, broken, "expected a diagnostic for broken.ts, got %+v", diags)
}

func TestParseAdapterType(t *testing.T) {
	got, err := ParseAdapterType(" FastAPI ")
	require.NoError(t, err)
	assert.Equal(t, FastAPI, got)

	_, err = ParseAdapterType("django")
	assert.Error(t, err)
}

func TestAdapterNameAndKey(t *testing.T) {
	a := Adapter{Type: TypeScript, SrcPaths: []string{"web/src", "web/lib"}}
	assert.Equal(t, "typescript:web/src,web/lib", a.Name())
	assert.Equal(t, `adapter:2:0:"":"web/src,web/lib"`, a.cacheKey(2, "", 0))
	assert.NotEqual(t, a.cacheKey(2, "", 0), a.cacheKey(2, "", 3))
	assert.NotEqual(t, a.cacheKey(2, "", 0), a.cacheKey(2, "main.py", 0))
}
