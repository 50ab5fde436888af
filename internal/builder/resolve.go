package builder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/leapstack-labs/dcverify/internal/frontend"
)

// Import resolution errors.
var (
	ErrImportNotFound = errors.New("import not found")
	ErrExternalModule = errors.New("external module")
)

// resolveImport maps an import specifier to an existing file.
func (b *Builder) resolveImport(spec, currentFile string) (string, error) {
	baseDir := filepath.Dir(currentFile)
	if baseDir == "" {
		baseDir = b.root
	}

	var candidate string
	switch b.layout.Style {
	case frontend.PathImports:
		if !isRelativePath(spec) {
			return "", fmt.Errorf("%w: %s", ErrExternalModule, spec)
		}
		candidate = filepath.Join(baseDir, filepath.FromSlash(spec))
	default:
		if strings.HasPrefix(spec, ".") {
			candidate = dottedRelative(spec, baseDir)
		} else {
			candidate = filepath.Join(b.root, dottedToPath(spec))
		}
	}

	if resolved, ok := b.existing(candidate); ok {
		return canonicalize(resolved), nil
	}
	return "", fmt.Errorf("%w: %s from %s", ErrImportNotFound, spec, currentFile)
}

// existing turns a candidate into a file: directories resolve to their
// package init file and paths without a source extension try each one.
func (b *Builder) existing(candidate string) (string, bool) {
	if info, err := os.Stat(candidate); err == nil {
		if !info.IsDir() {
			return candidate, true
		}
		if b.layout.PackageInit != "" {
			init := filepath.Join(candidate, b.layout.PackageInit)
			if isFile(init) {
				return init, true
			}
		}
	}

	if !b.knownExtension(candidate) {
		for _, ext := range b.layout.Extensions {
			withExt := candidate + ext
			if isFile(withExt) {
				return withExt, true
			}
		}
	}
	return "", false
}

func (b *Builder) knownExtension(path string) bool {
	return slices.Contains(b.layout.Extensions, filepath.Ext(path))
}

// dottedRelative resolves ".mod" and "..pkg.mod": each dot past the first
// ascends one directory.
func dottedRelative(spec, baseDir string) string {
	level := len(spec) - len(strings.TrimLeft(spec, "."))
	dir := baseDir
	for i := 1; i < level; i++ {
		dir = filepath.Dir(dir)
	}
	if rest := strings.TrimLeft(spec, "."); rest != "" {
		dir = filepath.Join(dir, dottedToPath(rest))
	}
	return dir
}

func dottedToPath(spec string) string {
	return strings.ReplaceAll(spec, ".", string(filepath.Separator))
}

func isRelativePath(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
