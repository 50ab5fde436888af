package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/leapstack-labs/dcverify/internal/cli/output"
	"github.com/leapstack-labs/dcverify/internal/contract"
	"github.com/spf13/cobra"
)

// RulesOptions holds options for the rules command.
type RulesOptions struct {
	Format string
}

// RuleView is a rule with the severity the current configuration assigns.
type RuleView struct {
	contract.RuleInfo
	Configured string `json:"configured"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand() *cobra.Command {
	opts := &RulesOptions{}
	cmd := &cobra.Command{
		Use:   "rules [rule-id]",
		Short: "List contract rules",
		Long: `List the contract rules with their default and configured severity.

Severities are overridden, or rules disabled with "off", in the rules
section of dcverify.yaml.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # List all rules
  dcverify rules

  # Show one rule
  dcverify rules missing_field

  # Output as JSON
  dcverify rules --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return showRule(cmd, args[0], opts)
			}
			return listRules(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json, markdown")

	return cmd
}

func ruleViews(settings map[string]string) []RuleView {
	rules := contract.GetAll()
	views := make([]RuleView, 0, len(rules))
	for _, rule := range rules {
		v := RuleView{RuleInfo: contract.GetRuleInfo(rule), Configured: rule.DefaultSeverity().String()}
		if s, ok := settings[rule.ID()]; ok && s != "" {
			if strings.EqualFold(strings.TrimSpace(s), contract.Off) {
				v.Configured = contract.Off
			} else if sev, err := contract.ParseSeverity(s); err == nil {
				v.Configured = sev.String()
			}
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

func listRules(cmd *cobra.Command, opts *RulesOptions) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	r := renderer(cmd, cmdCtx.Renderer, opts.Format)
	rules := ruleViews(cmdCtx.Cfg.Rules)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(struct {
			Rules []RuleView `json:"rules"`
			Count int        `json:"count"`
		}{rules, len(rules)})
	case output.ModeMarkdown:
		r.Println("# Contract Rules")
		r.Println("")
		for _, rule := range rules {
			r.Printf("- **%s** - %s (`%s`", rule.ID, rule.Name, rule.DefaultSeverity)
			if rule.Configured != rule.DefaultSeverity.String() {
				r.Printf(", configured `%s`", rule.Configured)
			}
			r.Println(")")
		}
		r.Println("")
		return nil
	default:
		styles := r.Styles()
		r.Println("")
		r.Println(styles.Header1.Render(fmt.Sprintf("Contract Rules (%d)", len(rules))))
		r.Println("")
		for _, rule := range rules {
			r.Printf("  %s  %s - %s\n",
				styles.Muted.Render(rule.ID),
				rule.Name,
				severityStyle(styles, rule.Configured).Render(rule.Configured),
			)
		}
		r.Println("")
		r.Println(styles.Muted.Render("Use 'dcverify rules <rule-id>' for details"))
		r.Println("")
		return nil
	}
}

func showRule(cmd *cobra.Command, ruleID string, opts *RulesOptions) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	r := renderer(cmd, cmdCtx.Renderer, opts.Format)

	var rule *RuleView
	for _, v := range ruleViews(cmdCtx.Cfg.Rules) {
		if v.ID == ruleID {
			rule = &v
			break
		}
	}
	if rule == nil {
		return fmt.Errorf("rule %q not found", ruleID)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(rule)
	case output.ModeMarkdown:
		r.Printf("# %s - %s\n\n", rule.ID, rule.Name)
		r.Printf("**Default severity:** `%s` | **Configured:** `%s`\n\n", rule.DefaultSeverity, rule.Configured)
		r.Println(rule.Description)
		return nil
	default:
		styles := r.Styles()
		r.Println("")
		r.Println(styles.Header1.Render(fmt.Sprintf("%s - %s", rule.ID, rule.Name)))
		r.Println("")
		r.Printf("  %s: %s\n", styles.Bold.Render("Default severity"), rule.DefaultSeverity)
		r.Printf("  %s: %s\n", styles.Bold.Render("Configured"), severityStyle(styles, rule.Configured).Render(rule.Configured))
		r.Println("")
		r.Println(styles.Bold.Render("Description"))
		r.Println("  " + rule.Description)
		r.Println("")
		return nil
	}
}

func severityStyle(styles *output.Styles, sev string) lipgloss.Style {
	switch sev {
	case "critical":
		return styles.Error
	case "warning":
		return styles.Warning
	case "info":
		return styles.Info
	default:
		return styles.Muted
	}
}
