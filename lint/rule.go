// Package lint evaluates a registry of consistency rules over a story graph
// and applies the fixes they suggest through the normal validate/apply path.
package lint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kobst/project-apollo-sub005/graph"
	"github.com/kobst/project-apollo-sub005/patch"
)

// Severity separates blocking rules from advisory ones.
type Severity string

const (
	SeverityHard Severity = "hard"
	SeveritySoft Severity = "soft"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == SeverityHard || s == SeveritySoft
}

// Rule categories. Rule IDs are "<category>/<name>".
const (
	CategoryOrdering     = "ordering"
	CategoryStructure    = "structure"
	CategoryCompleteness = "completeness"
	CategoryThematic     = "thematic"
)

// Violation is a detected rule breach.
type Violation struct {
	ID             string   `json:"id"`
	RuleID         string   `json:"ruleId"`
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Message        string   `json:"message"`
	NodeID         string   `json:"nodeId,omitempty"`
	RelatedNodeIDs []string `json:"relatedNodeIds,omitempty"`
}

// Fix is a candidate patch resolving one violation.
type Fix struct {
	ID              string       `json:"id"`
	ViolationID     string       `json:"violationId"`
	RuleID          string       `json:"ruleId"`
	Label           string       `json:"label"`
	Patch           *patch.Patch `json:"patch"`
	AffectedNodeIDs []string     `json:"affectedNodeIds"`
	OperationCount  int          `json:"operationCount"`
}

// EvaluateFunc finds violations of a rule within scope.
type EvaluateFunc func(g *graph.State, scope *Scope) []Violation

// SuggestFunc proposes a fix for a violation, or nil when none applies.
type SuggestFunc func(g *graph.State, v Violation) *Fix

// Rule is a single consistency check. SuggestFix may be nil.
type Rule struct {
	ID          string
	Category    string
	Severity    Severity
	Description string
	Evaluate    EvaluateFunc
	SuggestFix  SuggestFunc
}

// violation builds a Violation whose ID is stable for the same rule and
// subject, so a violation can be found again after the graph changes.
func (r *Rule) violation(subject, nodeID string, related []string, format string, args ...any) Violation {
	sorted := append([]string(nil), related...)
	sort.Strings(sorted)
	return Violation{
		ID:             r.ID + ":" + subject,
		RuleID:         r.ID,
		Severity:       r.Severity,
		Category:       r.Category,
		Message:        fmt.Sprintf(format, args...),
		NodeID:         nodeID,
		RelatedNodeIDs: sorted,
	}
}

// fix wraps ops into a Fix for v. It returns nil when there is nothing to do.
func (r *Rule) fix(v Violation, label string, affected []string, ops ...patch.Op) *Fix {
	if len(ops) == 0 {
		return nil
	}
	p := patch.New("", patch.Metadata{Source: "lint", Action: "autofix", Note: r.ID}, ops...)
	ids := append([]string(nil), affected...)
	sort.Strings(ids)
	return &Fix{
		ID:              "fix:" + v.ID,
		ViolationID:     v.ID,
		RuleID:          r.ID,
		Label:           label,
		Patch:           p,
		AffectedNodeIDs: ids,
		OperationCount:  p.OpCount(),
	}
}

func validRuleID(id string) error {
	cat, name, ok := strings.Cut(id, "/")
	if !ok || cat == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("rule id %q must look like category/name", id)
	}
	return nil
}
