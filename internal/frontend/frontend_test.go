package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefinitionIsStatic(t *testing.T) {
	tests := []struct {
		decorators []string
		want       bool
	}{
		{[]string{"staticmethod"}, true},
		{[]string{"property", "abc.staticmethod"}, true},
		{[]string{"classmethod"}, false},
		{[]string{"notstaticmethod"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		d := Definition{Kind: FunctionDef, Name: "f", Decorators: tt.decorators}
		assert.Equal(t, tt.want, d.IsStatic(), "decorators %v", tt.decorators)
	}
}
