package contract

import "sync"

// globalRegistry holds the built-in rules in registration order.
var globalRegistry = &Registry{}

// Registry stores rules for discovery. Rules run in registration order.
type Registry struct {
	mu    sync.RWMutex
	rules []Rule
}

// Register adds a rule, replacing any rule with the same ID in place.
func (r *Registry) Register(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rules {
		if existing.ID() == rule.ID() {
			r.rules[i] = rule
			return
		}
	}
	r.rules = append(r.rules, rule)
}

// All returns the registered rules in order.
func (r *Registry) All() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rule(nil), r.rules...)
}

// Get returns a rule by its ID.
func (r *Registry) Get(id string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if rule.ID() == id {
			return rule, true
		}
	}
	return nil, false
}

// Register adds a rule to the global registry.
// Call this from init() functions.
func Register(rule Rule) {
	globalRegistry.Register(rule)
}

// GetAll returns all globally registered rules in order.
func GetAll() []Rule {
	return globalRegistry.All()
}

// GetByID returns a globally registered rule by its ID.
func GetByID(id string) (Rule, bool) {
	return globalRegistry.Get(id)
}
