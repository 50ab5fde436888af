package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
// This key is shared with root.go via both using the same type.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// envPrefix prefixes environment overrides. A double underscore nests:
// DCVERIFY_OUTPUT__FORMAT sets output.format.
const envPrefix = "DCVERIFY_"

var configNames = []string{"dcverify.yaml", "dcverify.yml"}

// flagKeys maps flag names onto config keys where they differ.
var flagKeys = map[string]string{
	"format":      "output.format",
	"output":      "output.path",
	"no-cache":    "no_cache",
	"max-depth":   "max_recursion_depth",
	"entry-point": "entry_point",
	"cache":       "cache_dir",
	"verbose":     "verbose",
}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// configExistsIn returns the config file in dir, if any.
func configExistsIn(dir string) string {
	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a dcverify config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if found := configExistsIn(dir); found != "" {
			return found
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, already absolute, or one of the
// special values ":memory:" and "-".
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || path == ":memory:" || path == "-" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// Without an explicit cfgFile the current directory and up to ten parents are
// searched. Relative paths resolve against the config file's directory.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")
	configFileUsed = ""

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"project_name":        filepath.Base(cwd),
		"max_recursion_depth": DefaultMaxDepth,
		"cache_dir":           DefaultCachePath,
		"output.format":       DefaultFormat,
		"output.path":         DefaultReportPath,
		"verbose":             false,
		"no_cache":            false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	if cfgFile == "" {
		cfgFile = findConfigUpward(cwd)
	}
	projectRoot := cwd
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		configFileUsed = cfgFile
		if abs, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	// 3. Load environment variables (DCVERIFY_ prefix)
	// Transform: DCVERIFY_CACHE_DIR -> cache_dir, DCVERIFY_OUTPUT__PATH -> output.path
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Expand ${VAR} references and resolve relative paths
	cfg.ProjectRoot = projectRoot
	cfg.expand()
	cfg.resolvePaths(projectRoot, flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	currentConfig = &cfg
	return &cfg, nil
}

func (c *Config) expand() {
	c.ProjectName = expandEnvVars(c.ProjectName)
	c.EntryPoint = expandEnvVars(c.EntryPoint)
	c.CachePath = expandEnvVars(c.CachePath)
	c.Output.Path = expandEnvVars(c.Output.Path)
	for i := range c.Adapters {
		a := &c.Adapters[i]
		a.AppPath = expandEnvVars(a.AppPath)
		a.OpenAPIPath = expandEnvVars(a.OpenAPIPath)
		for j := range a.SrcPaths {
			a.SrcPaths[j] = expandEnvVars(a.SrcPaths[j])
		}
	}
}

// resolvePaths anchors configured paths at the project root. Paths given as
// flags are relative to the working directory instead.
func (c *Config) resolvePaths(root string, flags *pflag.FlagSet) {
	fromFlag := func(name string) bool {
		return flags != nil && flags.Changed(name)
	}

	if fromFlag("cache") && c.CachePath != "" {
		c.CachePath, _ = filepath.Abs(c.CachePath)
	} else {
		c.CachePath = resolvePathRelativeTo(c.CachePath, root)
	}
	if fromFlag("output") && c.Output.Path != "" && c.Output.Path != "-" {
		c.Output.Path, _ = filepath.Abs(c.Output.Path)
	} else {
		c.Output.Path = resolvePathRelativeTo(c.Output.Path, root)
	}

	for i := range c.Adapters {
		a := &c.Adapters[i]
		a.AppPath = resolvePathRelativeTo(a.AppPath, root)
		a.OpenAPIPath = resolvePathRelativeTo(a.OpenAPIPath, root)
		for j := range a.SrcPaths {
			a.SrcPaths[j] = resolvePathRelativeTo(a.SrcPaths[j], root)
		}
	}
}

// GetCurrentConfig returns the most recently loaded configuration, or nil.
func GetCurrentConfig() *Config {
	return currentConfig
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR}
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}
