package contract

import "github.com/leapstack-labs/dcverify/internal/schema"

// Rule is one contract check.
type Rule interface {
	// ID returns the unique identifier, also the configuration key, e.g. "missing_field".
	ID() string

	// Name returns the human-readable name.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// DefaultSeverity is the severity reported unless overridden.
	DefaultSeverity() Severity

	// Check compares the canonical source and sink schemas. Both are non-nil.
	Check(source, sink *schema.JSONSchema) []Mismatch
}

// RuleInfo provides metadata about a rule for documentation and tooling.
type RuleInfo struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	DefaultSeverity Severity `json:"default_severity"`
}

// GetRuleInfo extracts metadata from a Rule.
func GetRuleInfo(r Rule) RuleInfo {
	return RuleInfo{
		ID:              r.ID(),
		Name:            r.Name(),
		Description:     r.Description(),
		DefaultSeverity: r.DefaultSeverity(),
	}
}
