package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/dcverify/internal/cli/config"
	"github.com/leapstack-labs/dcverify/internal/cli/output"
	"github.com/leapstack-labs/dcverify/internal/verify"
	"github.com/spf13/cobra"
)

// BindsConfigFlags marks a command whose local flags (format, output,
// no-cache) override configuration keys.
const BindsConfigFlags = "binds_config_flags"

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *verify.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ModeAuto)

	cleanup := func() {
		if err := eng.Close(); err != nil {
			logger.Warn("failed to close engine", slog.String("error", err.Error()))
		}
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: r,
	}, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that never analyze sources.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	return &CommandContext{
		Cfg:      getConfig(),
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ModeAuto),
	}
}

// getConfig returns the current configuration. Commands run outside the
// root command (tests, embedding) load it on demand and fall back to the
// init defaults.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	if cfg, err := config.LoadConfig("", nil); err == nil {
		return cfg
	}

	cwd, _ := os.Getwd()
	cfg := config.Default(filepath.Base(cwd))
	cfg.ProjectRoot = cwd
	return cfg
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*verify.Engine, error) {
	adapters := make([]verify.Adapter, 0, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		t, err := verify.ParseAdapterType(a.Type)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, verify.Adapter{
			Type:        t,
			AppPath:     a.AppPath,
			SrcPaths:    a.SrcPaths,
			OpenAPIPath: a.OpenAPIPath,
		})
	}

	cachePath := ""
	if cfg.CacheEnabled() {
		cachePath = cfg.CachePath
		if cachePath != ":memory:" {
			// Ensure cache directory exists
			if dir := filepath.Dir(cachePath); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0750); err != nil {
					return nil, fmt.Errorf("failed to create cache directory: %w", err)
				}
			}
		}
	}

	return verify.New(verify.Config{
		Adapters:   adapters,
		EntryPoint: cfg.EntryPoint,
		MaxDepth:   cfg.MaxRecursionDepth,
		Rules:      cfg.Rules,
		CachePath:  cachePath,
		Logger:     logger,
	})
}

// renderer returns r, or a renderer forced to format when one was given.
func renderer(cmd *cobra.Command, r *output.Renderer, format string) *output.Renderer {
	if format == "" {
		return r
	}
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(format))
}
