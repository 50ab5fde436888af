// Package contract compares the schemas on either side of a chain boundary.
//
// A Checker runs an ordered list of Rules over the canonical forms of a
// Contract's two schemas and reports Mismatches. Rules register themselves
// with the package registry; a Config disables rules or overrides the
// severity they report at.
package contract

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/dcverify/internal/schema"
)

// Severity ranks a mismatch or contract. Higher is worse.
type Severity int

// Severities, in increasing order.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity parses "info", "warning" or "critical", case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "critical", "error":
		return SeverityCritical, nil
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", s)
}

// MismatchType classifies a mismatch.
type MismatchType string

// Mismatch types.
const (
	TypeMismatch       MismatchType = "type_mismatch"
	MissingField       MismatchType = "missing_field"
	ExtraField         MismatchType = "extra_field"
	ValidationMismatch MismatchType = "validation_mismatch"
	UnnormalizedData   MismatchType = "unnormalized_data"
)

// Mismatch is one schema incompatibility at a contract boundary. Expected
// describes the sink side and Actual the source side.
type Mismatch struct {
	Type     MismatchType    `json:"mismatch_type"`
	Path     string          `json:"path"`
	Expected schema.TypeInfo `json:"expected"`
	Actual   schema.TypeInfo `json:"actual"`
	Location schema.Location `json:"location"`
	Message  string          `json:"message"`
	Severity Severity        `json:"severity"`
}

// Contract is the boundary between two consecutive chain links.
type Contract struct {
	FromLinkID string            `json:"from_link_id"`
	ToLinkID   string            `json:"to_link_id"`
	FromSchema *schema.Reference `json:"from_schema,omitempty"`
	ToSchema   *schema.Reference `json:"to_schema,omitempty"`
	Mismatches []Mismatch        `json:"mismatches"`
	Severity   Severity          `json:"severity"`
}

// ClassifySeverity derives a contract severity from its mismatches: any
// type mismatch is critical, any other mismatch a warning, none is info.
func ClassifySeverity(mismatches []Mismatch) Severity {
	if len(mismatches) == 0 {
		return SeverityInfo
	}
	for _, m := range mismatches {
		if m.Type == TypeMismatch {
			return SeverityCritical
		}
	}
	return SeverityWarning
}
