package frontend

import "sort"

// LocationConverter maps byte offsets to 1-based line and column numbers.
type LocationConverter struct {
	size       int
	lineStarts []int
}

// NewLocationConverter indexes the line starts of src.
func NewLocationConverter(src []byte) *LocationConverter {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LocationConverter{size: len(src), lineStarts: starts}
}

// Position returns the line and column of offset. Offsets past the end clamp
// to the last line.
func (c *LocationConverter) Position(offset int) (line, column int) {
	if offset > c.size {
		last := c.lineStarts[len(c.lineStarts)-1]
		return len(c.lineStarts), max(c.size-last, 1)
	}
	if offset < 0 {
		offset = 0
	}
	// index of the first line start greater than offset
	idx := sort.SearchInts(c.lineStarts, offset+1)
	start := c.lineStarts[idx-1]
	return idx, offset - start + 1
}
