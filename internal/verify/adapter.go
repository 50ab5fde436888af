package verify

import (
	"fmt"
	"strings"
)

// AdapterType selects the front end used for a source tree.
type AdapterType string

// Adapter types.
const (
	FastAPI    AdapterType = "fastapi"
	TypeScript AdapterType = "typescript"
)

// ParseAdapterType parses s case-insensitively.
func ParseAdapterType(s string) (AdapterType, error) {
	switch t := AdapterType(strings.ToLower(strings.TrimSpace(s))); t {
	case FastAPI, TypeScript:
		return t, nil
	default:
		return "", fmt.Errorf("unknown adapter type %q (must be fastapi or typescript)", s)
	}
}

// Adapter describes one source tree to analyze.
type Adapter struct {
	Type AdapterType
	// AppPath is the application file or directory (fastapi).
	AppPath string
	// SrcPaths are the directories walked for sources (typescript).
	SrcPaths []string
	// OpenAPIPath optionally points at an API description whose schemas
	// back routes without a declared model.
	OpenAPIPath string
}

// Name identifies the adapter in diagnostics and reports.
func (a Adapter) Name() string {
	if a.AppPath != "" {
		return fmt.Sprintf("%s:%s", a.Type, a.AppPath)
	}
	return fmt.Sprintf("%s:%s", a.Type, strings.Join(a.SrcPaths, ","))
}

// cacheKey is where the adapter's graph is stored. Build settings that
// change the resulting graph are part of the key.
func (a Adapter) cacheKey(index int, entryPoint string, maxDepth int) string {
	path := a.AppPath
	if path == "" {
		path = strings.Join(a.SrcPaths, ",")
	}
	return fmt.Sprintf("adapter:%d:%d:%q:%q", index, maxDepth, entryPoint, path)
}
