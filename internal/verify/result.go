package verify

import (
	"time"

	"github.com/leapstack-labs/dcverify/internal/cache"
	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/chain"
	"github.com/leapstack-labs/dcverify/internal/contract"
)

// Summary counts chains by their worst severity.
type Summary struct {
	TotalChains int `json:"total_chains"`
	Critical    int `json:"critical"`
	Warnings    int `json:"warnings"`
	Valid       int `json:"valid"`
}

// Add counts one chain.
func (s *Summary) Add(c *chain.DataChain) {
	s.TotalChains++
	switch c.Severity() {
	case contract.SeverityCritical:
		s.Critical++
	case contract.SeverityWarning:
		s.Warnings++
	default:
		s.Valid++
	}
}

// Passed reports whether no chain has a critical issue.
func (s Summary) Passed() bool {
	return s.Critical == 0
}

func (s Summary) record() cache.Summary {
	return cache.Summary{
		TotalChains: s.TotalChains,
		Critical:    s.Critical,
		Warnings:    s.Warnings,
		Valid:       s.Valid,
	}
}

// Diagnostic is a soft failure attributed to an adapter.
type Diagnostic struct {
	Adapter string `json:"adapter"`
	Kind    string `json:"kind"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// AdapterResult is what one adapter produced.
type AdapterResult struct {
	Index     int                `json:"index"`
	Name      string             `json:"name"`
	Type      AdapterType        `json:"type"`
	FromCache bool               `json:"from_cache"`
	Graph     *callgraph.Graph   `json:"-"`
	Chains    []*chain.DataChain `json:"chains"`
	Files     []string           `json:"files,omitempty"`
}

// Result is the outcome of a verification run.
type Result struct {
	RunID       string             `json:"run_id"`
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration"`
	Adapters    []*AdapterResult   `json:"adapters"`
	Chains      []*chain.DataChain `json:"chains"`
	Summary     Summary            `json:"summary"`
	Diagnostics []Diagnostic       `json:"diagnostics,omitempty"`
}
