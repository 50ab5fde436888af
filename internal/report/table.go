package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteSummaryTable writes the statistics and the per-chain verdicts as
// terminal tables.
func (r *Report) WriteSummaryTable(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Total", "Critical", "Warnings", "Valid"})
	t.AppendRow(table.Row{r.Summary.TotalChains, r.Summary.Critical, r.Summary.Warnings, r.Summary.Valid})
	t.Render()

	if len(r.Chains) == 0 {
		_, _ = fmt.Fprintln(w, "(no chains)")
		return
	}

	ct := table.NewWriter()
	ct.SetOutputMirror(w)
	ct.SetStyle(table.StyleLight)
	ct.AppendHeader(table.Row{"Chain", "Links", "Mismatches", "Severity"})
	for _, c := range r.Chains {
		mismatches := 0
		for _, k := range c.Contracts {
			mismatches += len(k.Mismatches)
		}
		ct.AppendRow(table.Row{c.Name, len(c.Links), mismatches, title.String(c.Severity)})
	}
	ct.Render()
}
