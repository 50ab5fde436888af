package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/dcverify/internal/contract"
	"github.com/leapstack-labs/dcverify/internal/verify"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxRecursionDepth < 0 {
		errs = append(errs, fmt.Errorf("max_recursion_depth must not be negative, got %d", c.MaxRecursionDepth))
	}

	for i, a := range c.Adapters {
		t, err := verify.ParseAdapterType(a.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("adapters[%d]: %w", i, err))
			continue
		}
		switch t {
		case verify.FastAPI:
			if a.AppPath == "" {
				errs = append(errs, fmt.Errorf("adapters[%d]: fastapi adapter requires app_path", i))
			}
		case verify.TypeScript:
			if len(a.SrcPaths) == 0 {
				errs = append(errs, fmt.Errorf("adapters[%d]: typescript adapter requires src_paths", i))
			}
		}
	}

	for id, value := range c.Rules {
		if _, ok := contract.GetByID(id); !ok {
			errs = append(errs, fmt.Errorf("rules: unknown rule %q", id))
			continue
		}
		if strings.EqualFold(strings.TrimSpace(value), contract.Off) {
			continue
		}
		if _, err := contract.ParseSeverity(value); err != nil {
			errs = append(errs, fmt.Errorf("rules.%s: %w", id, err))
		}
	}

	switch c.Output.Format {
	case FormatMarkdown, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("output.format must be %s or %s, got %q", FormatMarkdown, FormatJSON, c.Output.Format))
	}

	return errors.Join(errs...)
}

// ValidateAdapters checks that there is something to analyze.
func (c *Config) ValidateAdapters() error {
	if len(c.Adapters) == 0 {
		return fmt.Errorf("no adapters configured\nHint: run `dcverify init` to create %s", DefaultConfigFile)
	}
	return nil
}
