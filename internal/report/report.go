// Package report renders verification results as Markdown, JSON or a
// terminal summary table.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/dcverify/internal/chain"
	"github.com/leapstack-labs/dcverify/internal/contract"
	"github.com/leapstack-labs/dcverify/internal/schema"
	"github.com/leapstack-labs/dcverify/internal/verify"
)

// Version is the report format version.
const Version = "1.0"

// Formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Report is the serializable form of a verification result.
type Report struct {
	Version     string              `json:"version"`
	Timestamp   time.Time           `json:"timestamp"`
	Project     string              `json:"project,omitempty"`
	RunID       string              `json:"run_id,omitempty"`
	Summary     verify.Summary      `json:"summary"`
	Chains      []ChainReport       `json:"chains"`
	Diagnostics []verify.Diagnostic `json:"diagnostics,omitempty"`
}

// ChainReport describes one chain.
type ChainReport struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Direction string           `json:"direction"`
	Severity  string           `json:"severity"`
	Links     []LinkReport     `json:"links"`
	Contracts []ContractReport `json:"contracts"`
	Flows     []FlowReport     `json:"flows,omitempty"`
}

// FlowReport describes where the entry handler's data travels.
type FlowReport struct {
	Variable string   `json:"variable"`
	Source   string   `json:"source"`
	Path     []string `json:"path"`
}

// LinkReport describes one link.
type LinkReport struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Kind     string `json:"kind"`
	Location string `json:"location,omitempty"`
	Schema   string `json:"schema,omitempty"`
}

// ContractReport describes the boundary between two links.
type ContractReport struct {
	From       string           `json:"from"`
	To         string           `json:"to"`
	Status     string           `json:"status"`
	Severity   string           `json:"severity"`
	Mismatches []MismatchReport `json:"mismatches"`
}

// MismatchReport describes one mismatch.
type MismatchReport struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// New builds a report from a result.
func New(result *verify.Result, project string, now time.Time) *Report {
	r := &Report{
		Version:     Version,
		Timestamp:   now,
		Project:     project,
		RunID:       result.RunID,
		Summary:     result.Summary,
		Chains:      make([]ChainReport, 0, len(result.Chains)),
		Diagnostics: result.Diagnostics,
	}
	for _, c := range result.Chains {
		r.Chains = append(r.Chains, chainReport(c))
	}
	return r
}

func chainReport(c *chain.DataChain) ChainReport {
	cr := ChainReport{
		ID:        c.ID,
		Name:      c.Name,
		Direction: c.Direction.String(),
		Severity:  c.Severity().String(),
		Links:     make([]LinkReport, 0, len(c.Links)),
		Contracts: make([]ContractReport, 0, len(c.Contracts)),
	}

	names := make(map[string]string, len(c.Links))
	for _, l := range c.Links {
		names[l.ID] = l.Name
		lr := LinkReport{
			ID:   l.ID,
			Name: l.Name,
			Type: l.Type.String(),
			Kind: string(l.Kind),
		}
		if l.Location.File != "" {
			lr.Location = l.Location.String()
		}
		if l.Schema != nil {
			lr.Schema = l.Schema.Name
		}
		cr.Links = append(cr.Links, lr)
	}

	for _, ct := range c.Contracts {
		rep := ContractReport{
			From:       names[ct.FromLinkID],
			To:         names[ct.ToLinkID],
			Status:     status(ct.Severity),
			Severity:   ct.Severity.String(),
			Mismatches: make([]MismatchReport, 0, len(ct.Mismatches)),
		}
		for _, m := range ct.Mismatches {
			mr := MismatchReport{
				Type:     string(m.Type),
				Path:     m.Path,
				Expected: typeString(m.Expected),
				Actual:   typeString(m.Actual),
				Severity: m.Severity.String(),
				Message:  m.Message,
			}
			if m.Location.File != "" {
				mr.Location = m.Location.String()
			}
			rep.Mismatches = append(rep.Mismatches, mr)
		}
		cr.Contracts = append(cr.Contracts, rep)
	}

	for _, f := range c.Flows {
		cr.Flows = append(cr.Flows, FlowReport{Variable: f.Variable, Source: f.Source, Path: f.Path})
	}
	return cr
}

func status(s contract.Severity) string {
	switch s {
	case contract.SeverityCritical:
		return "failed"
	case contract.SeverityWarning:
		return "warning"
	default:
		return "valid"
	}
}

func typeString(t schema.TypeInfo) string {
	s := string(t.BaseType)
	if t.Optional {
		s += "?"
	}
	return s
}

// Overall is the one-line verdict.
func (r *Report) Overall() string {
	switch {
	case r.Summary.Critical > 0:
		return fmt.Sprintf("FAILED: %d chain(s) with critical issues", r.Summary.Critical)
	case r.Summary.Warnings > 0:
		return fmt.Sprintf("PASSED WITH WARNINGS: %d chain(s) with warnings", r.Summary.Warnings)
	default:
		return "PASSED: all chains are valid"
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

var title = cases.Title(language.English)

// WriteMarkdown writes the report as Markdown.
func (r *Report) WriteMarkdown(w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("# Data Chain Verification Report\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n", r.Timestamp.Format("2006-01-02 15:04:05"))
	if r.Project != "" {
		fmt.Fprintf(&sb, "Project: %s\n", r.Project)
	}
	sb.WriteString("\n## Verification Statistics\n\n")
	fmt.Fprintf(&sb, "- Total chains: %d\n", r.Summary.TotalChains)
	fmt.Fprintf(&sb, "- Critical: %d\n", r.Summary.Critical)
	fmt.Fprintf(&sb, "- Warnings: %d\n", r.Summary.Warnings)
	fmt.Fprintf(&sb, "- Valid: %d\n", r.Summary.Valid)

	if len(r.Chains) > 0 {
		sb.WriteString("\n## Chains\n")
	}
	for _, c := range r.Chains {
		fmt.Fprintf(&sb, "\n### %s\n\n", c.Name)
		fmt.Fprintf(&sb, "- ID: `%s`\n", c.ID)
		fmt.Fprintf(&sb, "- Direction: %s\n", c.Direction)
		fmt.Fprintf(&sb, "- Severity: %s\n", title.String(c.Severity))

		path := make([]string, len(c.Links))
		for i, l := range c.Links {
			path[i] = l.Name
		}
		fmt.Fprintf(&sb, "- Path: %s\n", strings.Join(path, " → "))

		if len(c.Contracts) > 0 {
			sb.WriteString("\n#### Contracts\n\n")
			for _, ct := range c.Contracts {
				fmt.Fprintf(&sb, "- %s → %s: **%s**\n", ct.From, ct.To, strings.ToUpper(ct.Status))
				for _, m := range ct.Mismatches {
					fmt.Fprintf(&sb, "  - [%s] `%s` %s\n", title.String(m.Severity), m.Path, m.Message)
				}
			}
		}

		if len(c.Flows) > 0 {
			sb.WriteString("\n#### Data Flows\n\n")
			for _, f := range c.Flows {
				fmt.Fprintf(&sb, "- `%s` (%s): %s\n", f.Variable, f.Source, strings.Join(f.Path, " → "))
			}
		}
	}

	if len(r.Diagnostics) > 0 {
		sb.WriteString("\n## Diagnostics\n\n")
		for _, d := range r.Diagnostics {
			if d.File != "" {
				fmt.Fprintf(&sb, "- %s (%s) %s: %s\n", d.Adapter, d.Kind, d.File, d.Message)
			} else {
				fmt.Fprintf(&sb, "- %s (%s): %s\n", d.Adapter, d.Kind, d.Message)
			}
		}
	}

	sb.WriteString("\n## Overall Result\n\n")
	sb.WriteString(r.Overall())
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// Write renders the report in format.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case FormatJSON:
		return r.WriteJSON(w)
	case FormatMarkdown, "":
		return r.WriteMarkdown(w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteFile renders the report to path, creating parent directories.
func (r *Report) WriteFile(path, format string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := r.Write(f, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
