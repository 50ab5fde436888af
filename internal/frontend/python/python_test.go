package python

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dcverify/internal/frontend"
	"github.com/leapstack-labs/dcverify/internal/schema"
)

func parse(t *testing.T, src string) *frontend.File {
	t.Helper()
	f, err := New().Parse("app/main.py", []byte(src))
	require.NoError(t, err)
	return f
}

func TestParseImports(t *testing.T) {
	f := parse(t, `import os
import app.models as m
from .db import get_db, Session
from . import utils
from ..core.config import settings
`)

	paths := make([]string, len(f.Imports))
	for i, imp := range f.Imports {
		paths[i] = imp.Path
	}
	assert.Equal(t, []string{"os", "app.models", ".db", ".utils", "..core.config"}, paths)
	assert.Equal(t, []string{"get_db", "Session"}, f.Imports[2].Names)
	assert.Equal(t, []string{"utils"}, f.Imports[3].Names)
	assert.Equal(t, 3, f.Imports[2].Location.Line)
}

const handlerSource = `from app.service import create_user

@app.post("/users")
def create(user: UserIn, db: Optional[Session] = None) -> UserOut:
    result = create_user(user, db=db)
    return result

class Repo:
    def save(self, item):
        self.flush(item)

    @staticmethod
    def build():
        return Repo()

print("module level")
`

func TestParseDefinitions(t *testing.T) {
	f := parse(t, handlerSource)
	require.Len(t, f.Definitions, 2)

	create := f.Definitions[0]
	assert.Equal(t, frontend.FunctionDef, create.Kind)
	assert.Equal(t, "create", create.Name)
	assert.Equal(t, "UserOut", create.ReturnType)
	assert.Equal(t, []string{"app.post"}, create.Decorators)
	assert.Equal(t, 4, create.Location.Line)
	require.Len(t, create.Params, 2)
	assert.Equal(t, frontend.Param{Name: "user", TypeText: "UserIn"}, create.Params[0])
	assert.Equal(t, frontend.Param{Name: "db", TypeText: "Session", Optional: true, Default: "None"}, create.Params[1])

	repo := f.Definitions[1]
	assert.Equal(t, frontend.ClassDef, repo.Kind)
	require.Len(t, repo.Body, 2)
	assert.Equal(t, "save", repo.Body[0].Name)
	assert.Len(t, repo.Body[0].Params, 2)
	assert.True(t, repo.Body[1].IsStatic())
}

func TestParseAnnotations(t *testing.T) {
	f := parse(t, handlerSource)
	require.Len(t, f.Annotations, 1)
	ann := f.Annotations[0]
	assert.Equal(t, "app.post", ann.Name)
	assert.Equal(t, "create", ann.Target)
	assert.Equal(t, "/users", ann.PathArg)
	assert.Equal(t, 3, ann.Location.Line)
}

func TestParseCalls(t *testing.T) {
	f := parse(t, handlerSource)

	type call struct{ callee, enclosing string }
	var got []call
	for _, c := range f.Calls {
		got = append(got, call{c.Callee, c.Enclosing})
	}
	assert.Equal(t, []call{
		{"create_user", "create"},
		{"self.flush", "Repo.save"},
		{"Repo", "Repo.build"},
		{"print", ""},
	}, got)

	assert.Equal(t, []frontend.Argument{{Value: "user"}, {Name: "db", Value: "db"}}, f.Calls[0].Args)
}

func TestParseNestedFunctionCallsAttributeToOuter(t *testing.T) {
	f := parse(t, `def outer():
    def inner():
        helper("x")
    inner()
`)
	require.Len(t, f.Calls, 2)
	for _, c := range f.Calls {
		assert.Equal(t, "outer", c.Enclosing)
	}
	assert.Equal(t, "x", f.Calls[0].Args[0].Value)
}

func TestParseTopLevelCalls(t *testing.T) {
	f := parse(t, `def setup():
    pass

setup()

@app.get("/x")
def handler():
    pass
`)
	require.Len(t, f.Calls, 1)
	assert.Equal(t, "setup", f.Calls[0].Callee)
	assert.Empty(t, f.Calls[0].Enclosing)
	assert.Equal(t, 4, f.Calls[0].Location.Line)
}

func TestParseSyntaxError(t *testing.T) {
	_, err := New().Parse("bad.py", []byte("def broken(:\n    pass\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, frontend.ErrSyntax)
}

func TestPydanticModels(t *testing.T) {
	f := parse(t, `from pydantic import BaseModel, EmailStr, Field

class UserIn(BaseModel):
    email: EmailStr
    name: str = Field(..., min_length=1, max_length=50)
    age: Optional[int] = None
    tags: List[str] = []

class AdminIn(UserIn):
    level: int = Field(default=1, ge=0)

class Plain:
    x: int
`)
	require.Len(t, f.Schemas, 2)

	user := f.Schemas[0]
	assert.Equal(t, "UserIn", user.Name)
	assert.Equal(t, schema.BackendModel, user.Type)
	assert.Equal(t, "email:EmailStr:required,name:str:required,age:int:optional,tags:list:optional",
		user.Metadata[schema.MetaFields])

	parsed, err := schema.NewParser(0).Parse(&user)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"email", "name"}, parsed.Required)
	assert.Equal(t, "string", parsed.Properties["email"].TypeName)
	assert.True(t, schema.HasConstraint(parsed.Properties["email"].Constraints, schema.ConstraintEmail))
	assert.True(t, schema.HasConstraint(parsed.Properties["name"].Constraints, schema.ConstraintMin))
	assert.True(t, parsed.Properties["age"].Optional)

	admin := f.Schemas[1]
	assert.Equal(t, "AdminIn", admin.Name)
	assert.Contains(t, admin.Metadata[schema.MetaFields], "email:EmailStr:required")
	assert.Contains(t, admin.Metadata[schema.MetaFields], "level:int:optional")
}

func TestNormalizeHint(t *testing.T) {
	tests := []struct {
		hint     string
		want     string
		optional bool
	}{
		{"str", "str", false},
		{"Optional[User]", "User", true},
		{"typing.Optional[int]", "int", true},
		{"Union[str, None]", "str", true},
		{"Union[str, int]", "str | int", false},
		{"User | None", "User", true},
		{"None | int", "int", true},
		{"List[User]", "list", false},
		{"dict[str, Any]", "dict", false},
		{"Annotated[int, Field(gt=0)]", "int", false},
		{"Optional[List[str]]", "list", true},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			got, opt := normalizeHint(tt.hint)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.optional, opt)
		})
	}
}

func TestLayout(t *testing.T) {
	l := New().Layout()
	assert.Equal(t, frontend.DottedImports, l.Style)
	assert.Equal(t, "__init__.py", l.PackageInit)
	assert.True(t, l.ImplicitReceiver)
}
