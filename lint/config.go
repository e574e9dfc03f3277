package lint

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Config selects and tunes rules. Patterns are doublestar globs over rule IDs,
// e.g. "ordering/*" or "**".
type Config struct {
	// Disable lists rules to skip.
	Disable []string `yaml:"disable"`
	// Enable re-enables rules matched by Disable.
	Enable []string `yaml:"enable"`
	// Severity overrides the severity of individual rules by exact ID.
	Severity map[string]Severity `yaml:"severity"`
	// MaxScopeNodes caps touched-scope expansion. Zero keeps the engine default.
	MaxScopeNodes int `yaml:"maxScopeNodes"`
}

// LoadConfig reads a lint config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lint config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parsing lint config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and checks a YAML lint config.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding lint config: %w", err)
	}
	for _, p := range append(append([]string{}, cfg.Disable...), cfg.Enable...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid rule pattern %q", p)
		}
	}
	for id, sev := range cfg.Severity {
		if !sev.Valid() {
			return nil, fmt.Errorf("rule %s: invalid severity %q", id, sev)
		}
	}
	if cfg.MaxScopeNodes < 0 {
		return nil, fmt.Errorf("maxScopeNodes must not be negative")
	}
	return &cfg, nil
}

// Enabled reports whether a rule ID survives the disable/enable patterns.
func (c *Config) Enabled(ruleID string) bool {
	if matchAny(c.Enable, ruleID) {
		return true
	}
	return !matchAny(c.Disable, ruleID)
}

func matchAny(patterns []string, id string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, id); ok {
			return true
		}
	}
	return false
}
