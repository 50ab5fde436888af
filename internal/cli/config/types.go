// Package config provides configuration management for the dcverify CLI.
//
// Configuration is layered with koanf: built-in defaults, then dcverify.yaml,
// then DCVERIFY_* environment variables, then explicitly set flags.
package config

// Config holds all CLI configuration options.
type Config struct {
	ProjectName       string            `koanf:"project_name" yaml:"project_name"`
	EntryPoint        string            `koanf:"entry_point" yaml:"entry_point,omitempty"`
	MaxRecursionDepth int               `koanf:"max_recursion_depth" yaml:"max_recursion_depth"`
	CachePath         string            `koanf:"cache_dir" yaml:"cache_dir"` // empty disables caching
	Adapters          []AdapterConfig   `koanf:"adapters" yaml:"adapters"`
	Rules             map[string]string `koanf:"rules" yaml:"rules"`
	Output            OutputConfig      `koanf:"output" yaml:"output"`

	Verbose bool `koanf:"verbose" yaml:"-"`
	NoCache bool `koanf:"no_cache" yaml:"-"`

	// ProjectRoot is the directory relative paths were resolved against.
	ProjectRoot string `koanf:"-" yaml:"-"`
}

// AdapterConfig describes one source tree to analyze.
type AdapterConfig struct {
	Type        string   `koanf:"type" yaml:"type"`
	AppPath     string   `koanf:"app_path" yaml:"app_path,omitempty"`
	SrcPaths    []string `koanf:"src_paths" yaml:"src_paths,omitempty"`
	OpenAPIPath string   `koanf:"openapi_path" yaml:"openapi_path,omitempty"`
}

// OutputConfig controls the written report.
type OutputConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Path   string `koanf:"path" yaml:"path"`
}

// Output formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Default configuration values.
const (
	DefaultConfigFile = "dcverify.yaml"
	DefaultCachePath  = ".dcverify/cache.db"
	DefaultFormat     = FormatMarkdown
	DefaultReportPath = ".chain_verification_report.md"
	DefaultMaxDepth   = 0
)

// CacheEnabled reports whether runs should use the cache.
func (c *Config) CacheEnabled() bool {
	return c.CachePath != "" && !c.NoCache
}

// Default returns the configuration written by `dcverify init`.
func Default(projectName string) *Config {
	return &Config{
		ProjectName:       projectName,
		MaxRecursionDepth: 50,
		CachePath:         DefaultCachePath,
		Adapters: []AdapterConfig{
			{Type: "fastapi", AppPath: "backend"},
			{Type: "typescript", SrcPaths: []string{"frontend/src"}},
		},
		Rules: map[string]string{
			"type_mismatch":     "critical",
			"missing_field":     "warning",
			"unnormalized_data": "warning",
		},
		Output: OutputConfig{Format: DefaultFormat, Path: DefaultReportPath},
	}
}
