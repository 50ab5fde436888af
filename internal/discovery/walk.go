package discovery

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"venv":         true,
}

type ignoreScope struct {
	base    string
	matcher *ignore.GitIgnore
}

// SourceFiles lists files under root with one of exts, in lexical order.
// Hidden directories, dependency directories and paths matched by any
// .gitignore on the way down are skipped.
func SourceFiles(root string, exts []string) ([]string, error) {
	var files []string
	err := walk(root, func(path string, dir bool) {
		if !dir && slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
	})
	return files, err
}

// SourceDirs lists root and every directory SourceFiles would descend into.
func SourceDirs(root string) ([]string, error) {
	var dirs []string
	err := walk(root, func(path string, dir bool) {
		if dir {
			dirs = append(dirs, path)
		}
	})
	return dirs, err
}

func walk(root string, visit func(path string, dir bool)) error {
	var scopes []ignoreScope

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || skippedDirs[d.Name()]) {
				return filepath.SkipDir
			}
			if ignored(scopes, path, true) {
				return filepath.SkipDir
			}
			if gi, err := ignore.CompileIgnoreFile(filepath.Join(path, ".gitignore")); err == nil {
				scopes = append(scopes, ignoreScope{base: path, matcher: gi})
			}
			visit(path, true)
			return nil
		}

		if !ignored(scopes, path, false) {
			visit(path, false)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return nil
}

func ignored(scopes []ignoreScope, path string, dir bool) bool {
	for _, s := range scopes {
		rel, err := filepath.Rel(s.base, path)
		if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
			continue
		}
		rel = filepath.ToSlash(rel)
		if s.matcher.MatchesPath(rel) || (dir && s.matcher.MatchesPath(rel+"/")) {
			return true
		}
	}
	return false
}
