package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/dcverify/internal/cli/config"
	"github.com/leapstack-labs/dcverify/internal/cli/output"
	"github.com/leapstack-labs/dcverify/internal/report"
	"github.com/leapstack-labs/dcverify/internal/verify"
	"github.com/spf13/cobra"
)

// ErrCriticalIssues is returned by check when any chain has a critical
// mismatch, so the process exits non-zero.
var ErrCriticalIssues = errors.New("critical contract violations found")

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify data chain contracts",
		Long: `Build the call graph of every configured adapter, trace data chains from
routes to their sinks and check the schema contract at every boundary.

A report is written to output.path (default .chain_verification_report.md).
Use --output - to print the report instead of writing it.

The command fails when any chain has a critical mismatch.`,
		Example: `  # Verify using dcverify.yaml
  dcverify check

  # Write a JSON report
  dcverify check --format json --output report.json

  # Ignore the graph cache
  dcverify check --no-cache`,
		Annotations: map[string]string{BindsConfigFlags: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd)
		},
	}

	addReportFlags(cmd)
	return cmd
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "", "Report format: markdown, json")
	cmd.Flags().StringP("output", "o", "", "Report path, or - for stdout")
	cmd.Flags().Bool("no-cache", false, "Rebuild every call graph, ignoring the cache")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.FormatMarkdown, config.FormatJSON}, cobra.ShellCompDirectiveNoFileComp
	})
}

func runCheck(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cmdCtx.Cfg.ValidateAdapters(); err != nil {
		return err
	}

	result, err := cmdCtx.Engine.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	return writeCheck(cmdCtx, result)
}

// writeCheck writes the report and the terminal summary for one run.
func writeCheck(cmdCtx *CommandContext, result *verify.Result) error {
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer
	rep := report.New(result, cfg.ProjectName, time.Now())

	if cfg.Output.Path == "-" {
		if err := rep.Write(r.Writer(), cfg.Output.Format); err != nil {
			return err
		}
	} else {
		if err := rep.WriteFile(cfg.Output.Path, cfg.Output.Format); err != nil {
			return err
		}
		renderCheckSummary(r, rep, result, cfg.Output.Path)
	}

	if !result.Summary.Passed() {
		return fmt.Errorf("%w: %d of %d chain(s)", ErrCriticalIssues, result.Summary.Critical, result.Summary.TotalChains)
	}
	return nil
}

func renderCheckSummary(r *output.Renderer, rep *report.Report, result *verify.Result, path string) {
	if r.EffectiveMode() == output.ModeText {
		r.Header(1, "Data Chain Verification")
		rep.WriteSummaryTable(r.Writer())
		for _, d := range result.Diagnostics {
			r.Warning(fmt.Sprintf("%s (%s): %s", d.Adapter, d.Kind, d.Message))
		}
		r.Muted(fmt.Sprintf("Checked in %s, report written to %s", result.Duration.Round(time.Millisecond), path))
		switch {
		case result.Summary.Critical > 0:
			r.Error(rep.Overall())
		case result.Summary.Warnings > 0:
			r.Warning(rep.Overall())
		default:
			r.Success(rep.Overall())
		}
		return
	}

	r.Println(output.FormatHeader(1, "Data Chain Verification"))
	r.Println("")
	r.Println(output.FormatKeyValue("Total chains", fmt.Sprintf("%d", result.Summary.TotalChains)))
	r.Println(output.FormatKeyValue("Critical", fmt.Sprintf("%d", result.Summary.Critical)))
	r.Println(output.FormatKeyValue("Warnings", fmt.Sprintf("%d", result.Summary.Warnings)))
	r.Println(output.FormatKeyValue("Valid", fmt.Sprintf("%d", result.Summary.Valid)))
	r.Println(output.FormatKeyValue("Diagnostics", fmt.Sprintf("%d", len(result.Diagnostics))))
	r.Println(output.FormatKeyValue("Report", path))
	r.Println("")
	r.Println(rep.Overall())
}
