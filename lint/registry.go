package lint

import (
	"fmt"
	"sort"
)

// Registry is the set of rules an Engine runs. Build it once and treat it as
// read-only afterwards.
type Registry struct {
	rules map[string]*Rule
}

// NewRegistry creates a registry holding rules.
func NewRegistry(rules ...*Rule) (*Registry, error) {
	r := &Registry{rules: make(map[string]*Rule, len(rules))}
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a rule. IDs must be unique.
func (r *Registry) Register(rule *Rule) error {
	if err := validRuleID(rule.ID); err != nil {
		return err
	}
	if !rule.Severity.Valid() {
		return fmt.Errorf("rule %s: invalid severity %q", rule.ID, rule.Severity)
	}
	if rule.Evaluate == nil {
		return fmt.Errorf("rule %s: no evaluate function", rule.ID)
	}
	if _, dup := r.rules[rule.ID]; dup {
		return fmt.Errorf("rule %s registered twice", rule.ID)
	}
	r.rules[rule.ID] = rule
	return nil
}

// Rules returns every rule sorted by ID.
func (r *Registry) Rules() []*Rule {
	out := make([]*Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rule looks up a rule by ID, or nil.
func (r *Registry) Rule(id string) *Rule {
	return r.rules[id]
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	return len(r.rules)
}

// Filter returns a registry with the rules cfg enables, severities overridden
// as configured. The receiver is not changed.
func (r *Registry) Filter(cfg *Config) *Registry {
	out := &Registry{rules: make(map[string]*Rule, len(r.rules))}
	for id, rule := range r.rules {
		if cfg != nil && !cfg.Enabled(id) {
			continue
		}
		if cfg != nil {
			if sev, ok := cfg.Severity[id]; ok && sev != rule.Severity {
				c := *rule
				c.Severity = sev
				rule = &c
			}
		}
		out.rules[id] = rule
	}
	return out
}
