package contract

import (
	"log/slog"

	"github.com/leapstack-labs/dcverify/internal/schema"
)

// Checker runs rules against contracts.
type Checker struct {
	config *Config
	rules  []Rule
	parser *schema.Parser
	logger *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithRules replaces the registered rules.
func WithRules(rules ...Rule) Option {
	return func(c *Checker) { c.rules = rules }
}

// WithParser sets the schema parser, sharing its memo across checkers.
func WithParser(p *schema.Parser) Option {
	return func(c *Checker) { c.parser = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// NewChecker creates a checker over the registered rules.
func NewChecker(config *Config, opts ...Option) *Checker {
	if config == nil {
		config = NewConfig()
	}
	c := &Checker{
		config: config,
		rules:  GetAll(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.parser == nil {
		c.parser = schema.NewParser(schema.DefaultMemoSize)
	}
	return c
}

// Rules returns the enabled rules in evaluation order.
func (c *Checker) Rules() []Rule {
	var out []Rule
	for _, r := range c.rules {
		if !c.config.IsDisabled(r.ID()) {
			out = append(out, r)
		}
	}
	return out
}

// CheckContract returns the mismatches between a contract's schemas. A side
// without a schema, or a schema that fails to parse, yields no mismatches.
func (c *Checker) CheckContract(ct *Contract) []Mismatch {
	if ct == nil || ct.FromSchema == nil || ct.ToSchema == nil {
		return nil
	}
	source, err := c.parser.Parse(ct.FromSchema)
	if err != nil {
		c.logger.Warn("skipping contract with unparsable source schema",
			"from", ct.FromLinkID, "to", ct.ToLinkID, "error", err)
		return nil
	}
	sink, err := c.parser.Parse(ct.ToSchema)
	if err != nil {
		c.logger.Warn("skipping contract with unparsable sink schema",
			"from", ct.FromLinkID, "to", ct.ToLinkID, "error", err)
		return nil
	}

	var mismatches []Mismatch
	for _, rule := range c.Rules() {
		found := rule.Check(source, sink)
		sev := c.config.GetSeverity(rule.ID(), rule.DefaultSeverity())
		for i := range found {
			found[i].Severity = sev
			if found[i].Location == (schema.Location{}) {
				found[i].Location = ct.ToSchema.Location
			}
		}
		mismatches = append(mismatches, found...)
	}
	return mismatches
}

// Check fills in a contract's mismatches and severity.
func (c *Checker) Check(ct *Contract) {
	ct.Mismatches = c.CheckContract(ct)
	if ct.Mismatches == nil {
		ct.Mismatches = []Mismatch{}
	}
	ct.Severity = ClassifySeverity(ct.Mismatches)
}
