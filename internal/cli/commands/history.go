package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/dcverify/internal/cache"
	"github.com/leapstack-labs/dcverify/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent verification runs",
		Long:  `List the verification runs recorded in the cache, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			r := renderer(cmd, cmdCtx.Renderer, format)
			if !cmdCtx.Cfg.CacheEnabled() {
				r.Warning("cache is disabled, no runs are recorded")
				return nil
			}

			runs, err := cmdCtx.Engine.RecentRuns(limit)
			if err != nil {
				return fmt.Errorf("failed to read run history: %w", err)
			}
			return renderHistory(r, runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: text, json, markdown")

	return cmd
}

func renderHistory(r *output.Renderer, runs []*cache.Run) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		if runs == nil {
			runs = []*cache.Run{}
		}
		return r.JSON(runs)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Run History"))
		r.Println("")
		for _, run := range runs {
			r.Printf("- `%s` %s %s: %d chains, %d critical, %d warnings\n",
				run.ID, run.StartedAt.Format(time.RFC3339), run.Status,
				run.Summary.TotalChains, run.Summary.Critical, run.Summary.Warnings)
		}
		return nil
	}

	if len(runs) == 0 {
		r.Muted("No runs recorded yet")
		return nil
	}
	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Status", "Chains", "Critical", "Warnings", "Valid"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID[:8], run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Status,
			run.Summary.TotalChains, run.Summary.Critical, run.Summary.Warnings, run.Summary.Valid,
		})
	}
	t.Render()
	return nil
}
