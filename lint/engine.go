package lint

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kobst/project-apollo-sub005/graph"
	"github.com/kobst/project-apollo-sub005/patch"
	"github.com/kobst/project-apollo-sub005/validate"
)

// Skip reasons reported by ApplyAllFixes.
const (
	ReasonAlreadyResolved = "already resolved"
	ReasonNoFix           = "no fix available after earlier fixes"
	ReasonUnknownRule     = "rule not registered"
)

// Result is the outcome of a lint pass.
type Result struct {
	Violations        []Violation `json:"violations"`
	Fixes             []*Fix      `json:"fixes"`
	ErrorCount        int         `json:"errorCount"`
	WarningCount      int         `json:"warningCount"`
	HasBlockingErrors bool        `json:"hasBlockingErrors"`
	ScopeTruncated    bool        `json:"scopeTruncated,omitempty"`
	LastCheckedAt     int64       `json:"lastCheckedAt"`
}

// Hard returns the blocking violations.
func (r *Result) Hard() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityHard {
			out = append(out, v)
		}
	}
	return out
}

// FixReport describes a batch fix application.
type FixReport struct {
	Graph   *graph.State `json:"-"`
	Applied []*Fix       `json:"applied"`
	Skipped []*Fix       `json:"skipped"`
	// SkipReasons maps a skipped fix ID to why it was skipped.
	SkipReasons map[string]string `json:"skipReasons"`
}

// BlockingError is returned by Precommit when hard violations exist.
type BlockingError struct {
	Violations []Violation
}

func (e *BlockingError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.RuleID, v.Message))
	}
	return fmt.Sprintf("%d blocking lint violation(s):\n  %s", len(e.Violations), strings.Join(msgs, "\n  "))
}

// Engine runs the rules of a registry.
type Engine struct {
	registry      *Registry
	logger        *zap.Logger
	maxScopeNodes int
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxScopeNodes caps touched-scope expansion.
func WithMaxScopeNodes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxScopeNodes = n
		}
	}
}

// WithClock overrides the time source used for LastCheckedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over reg.
func NewEngine(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:      reg,
		logger:        zap.NewNop(),
		maxScopeNodes: DefaultMaxScopeNodes,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's rules.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Lint evaluates every rule within scope. A nil scope means the full graph.
func (e *Engine) Lint(g *graph.State, scope *Scope) *Result {
	if scope == nil {
		scope = FullScope()
	}
	if scope.Mode == ModeTouched {
		if len(scope.ExpandedNodeIDs) == 0 {
			scope = Expand(g, scope, e.maxScopeNodes)
		} else if scope.included == nil {
			scope = scope.indexed()
		}
	}

	res := &Result{
		Violations:     []Violation{},
		Fixes:          []*Fix{},
		ScopeTruncated: scope.Truncated,
		LastCheckedAt:  e.now().UnixMilli(),
	}
	for _, rule := range e.registry.Rules() {
		vs := rule.Evaluate(g, scope)
		sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID })
		for _, v := range vs {
			// Configured severity and category win over what Evaluate reported.
			v.Severity = rule.Severity
			v.Category = rule.Category
			res.Violations = append(res.Violations, v)
			if v.Severity == SeverityHard {
				res.ErrorCount++
			} else {
				res.WarningCount++
			}
			if rule.SuggestFix == nil {
				continue
			}
			if f := rule.SuggestFix(g, v); f != nil {
				res.Fixes = append(res.Fixes, f)
			}
		}
	}
	res.HasBlockingErrors = res.ErrorCount > 0
	e.logger.Debug("lint finished",
		zap.String("mode", string(scope.Mode)),
		zap.Int("errors", res.ErrorCount),
		zap.Int("warnings", res.WarningCount),
		zap.Int("fixes", len(res.Fixes)),
		zap.Bool("scopeTruncated", res.ScopeTruncated),
	)
	return res
}

// ApplyFix validates and applies a single fix.
func (e *Engine) ApplyFix(g *graph.State, f *Fix) (*graph.State, error) {
	if f == nil || f.Patch == nil {
		return nil, fmt.Errorf("applying fix: %w", patch.ErrMalformedOp)
	}
	if err := validate.Validate(g, f.Patch).Err(); err != nil {
		return nil, fmt.Errorf("validating fix %s: %w", f.ID, err)
	}
	out, err := patch.Apply(g, f.Patch)
	if err != nil {
		return nil, fmt.Errorf("applying fix %s: %w", f.ID, err)
	}
	return out, nil
}

// ApplyAllFixes applies fixes in order. When an earlier fix changed a node a
// later fix affects, the later fix's rule is re-evaluated: if the violation is
// gone the fix is skipped, otherwise a fresh fix is suggested and applied.
// Fixes that fail validation or application are skipped. The batch always
// completes.
func (e *Engine) ApplyAllFixes(g *graph.State, fixes []*Fix) *FixReport {
	report := &FixReport{
		Graph:       g,
		Applied:     []*Fix{},
		Skipped:     []*Fix{},
		SkipReasons: map[string]string{},
	}
	changed := make(map[string]bool)
	skip := func(f *Fix, reason string) {
		report.Skipped = append(report.Skipped, f)
		report.SkipReasons[f.ID] = reason
		e.logger.Debug("skipping fix", zap.String("fix", f.ID), zap.String("rule", f.RuleID), zap.String("reason", reason))
	}

	for _, f := range fixes {
		current := f
		if overlaps(f.AffectedNodeIDs, changed) {
			fresh, reason := e.refresh(report.Graph, f)
			if fresh == nil {
				skip(f, reason)
				continue
			}
			current = fresh
		}
		next, err := e.ApplyFix(report.Graph, current)
		if err != nil {
			skip(f, err.Error())
			continue
		}
		report.Graph = next
		report.Applied = append(report.Applied, current)
		for _, id := range current.AffectedNodeIDs {
			changed[id] = true
		}
	}
	return report
}

// refresh re-evaluates the rule behind f against g and returns a fix computed
// from the current graph, or nil with a reason.
func (e *Engine) refresh(g *graph.State, f *Fix) (*Fix, string) {
	rule := e.registry.Rule(f.RuleID)
	if rule == nil {
		return nil, ReasonUnknownRule
	}
	for _, v := range rule.Evaluate(g, FullScope()) {
		if v.ID != f.ViolationID {
			continue
		}
		v.Severity = rule.Severity
		v.Category = rule.Category
		if rule.SuggestFix == nil {
			return nil, ReasonNoFix
		}
		if fresh := rule.SuggestFix(g, v); fresh != nil {
			return fresh, ""
		}
		return nil, ReasonNoFix
	}
	return nil, ReasonAlreadyResolved
}

// Precommit runs a full lint and returns a *BlockingError when any hard rule
// is violated.
func (e *Engine) Precommit(g *graph.State) error {
	res := e.Lint(g, FullScope())
	if !res.HasBlockingErrors {
		return nil
	}
	hard := res.Hard()
	e.logger.Debug("precommit blocked", zap.Int("violations", len(hard)))
	return &BlockingError{Violations: hard}
}

func overlaps(ids []string, set map[string]bool) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}
