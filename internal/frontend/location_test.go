package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationConverter(t *testing.T) {
	src := []byte("line1\nline2\nline3")
	c := NewLocationConverter(src)

	tests := []struct {
		name      string
		offset    int
		line, col int
	}{
		{"start", 0, 1, 1},
		{"inside first line", 3, 1, 4},
		{"newline char", 5, 1, 6},
		{"second line start", 6, 2, 1},
		{"third line", 14, 3, 3},
		{"end of source", len(src), 3, 6},
		{"past end clamps", 100, 3, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, col := c.Position(tt.offset)
			assert.Equal(t, tt.line, line)
			assert.Equal(t, tt.col, col)
		})
	}
}

func TestLocationConverter_Empty(t *testing.T) {
	c := NewLocationConverter(nil)
	line, col := c.Position(0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)

	line, col = c.Position(10)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)
}

func TestDefinition_IsStatic(t *testing.T) {
	assert.True(t, (&Definition{Decorators: []string{"staticmethod"}}).IsStatic())
	assert.True(t, (&Definition{Decorators: []string{"abc.staticmethod"}}).IsStatic())
	assert.False(t, (&Definition{Decorators: []string{"classmethod", "mystaticmethod"}}).IsStatic())
}
