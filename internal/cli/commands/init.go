package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/dcverify/internal/cli/config"
	"github.com/leapstack-labs/dcverify/internal/cli/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a dcverify.yaml configuration",
		Long: `Create a dcverify.yaml with a FastAPI backend adapter, a TypeScript
frontend adapter, the default rule severities and report settings.

Edit the adapter paths to match your project, then run 'dcverify check'.`,
		Example: `  # Initialize in current directory
  dcverify init

  # Initialize in another directory
  dcverify init services/shop

  # Force overwrite existing config
  dcverify init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ModeAuto)
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, config.DefaultConfigFile)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.DefaultConfigFile)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	data, err := yaml.Marshal(config.Default(filepath.Base(abs)))
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	r.StatusLine(config.DefaultConfigFile, "success", "")
	r.Success("dcverify project initialized!")
	r.Muted("Edit the adapters in " + config.DefaultConfigFile + ", then run 'dcverify check'")
	return nil
}
