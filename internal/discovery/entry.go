// Package discovery locates analysis entry points and the source files of
// an adapter's source tree.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEntryPointNotFound is returned when no entry file can be located.
var ErrEntryPointNotFound = errors.New("entry point not found")

// DefaultEntryPoints are tried in order inside an application directory.
var DefaultEntryPoints = []string{"main.py", "app.py", "__main__.py", "server.py"}

// FindEntryPoint returns the file analysis should start from. A custom
// entry, relative to appPath unless absolute, must exist. Otherwise appPath
// is used when it is a file, or searched for DefaultEntryPoints.
func FindEntryPoint(appPath, custom string) (string, error) {
	if custom != "" {
		path := custom
		if !filepath.IsAbs(path) {
			path = filepath.Join(dirOf(appPath), custom)
		}
		if isFile(path) {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrEntryPointNotFound, path)
	}

	info, err := os.Stat(appPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntryPointNotFound, err)
	}
	if !info.IsDir() {
		return appPath, nil
	}

	for _, name := range DefaultEntryPoints {
		if path := filepath.Join(appPath, name); isFile(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (tried %v)", ErrEntryPointNotFound, appPath, DefaultEntryPoints)
}

func dirOf(path string) string {
	if isFile(path) {
		return filepath.Dir(path)
	}
	return path
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
