package lint

import (
	"strings"

	"github.com/kobst/project-apollo-sub005/graph"
)

// SoftRules returns the advisory built-in rules. None of them suggests a fix;
// resolving them needs new content.
func SoftRules() []*Rule {
	return []*Rule{
		missingEdgeRule(RuleSceneMissingCharacter, CategoryCompleteness, graph.TypeScene, true,
			"Every scene should feature at least one character.",
			"scene %s features no character", graph.EdgeFeaturesCharacter),
		missingEdgeRule(RuleSceneMissingLocation, CategoryCompleteness, graph.TypeScene, true,
			"Every scene should have a location.",
			"scene %s has no location", graph.EdgeLocatedAt),
		missingEdgeRule(RuleStoryBeatUnaligned, CategoryCompleteness, graph.TypeStoryBeat, true,
			"Every story beat should align with a template beat.",
			"story beat %s is not aligned with any beat", graph.EdgeAlignsWith),
		missingEdgeRule(RuleCharacterUnused, CategoryCompleteness, graph.TypeCharacter, false,
			"Every character should appear in a scene or story beat.",
			"character %s never appears in a scene or story beat", graph.EdgeFeaturesCharacter, graph.EdgeInvolves),
		missingEdgeRule(RuleThemeUnexpressed, CategoryThematic, graph.TypeTheme, false,
			"Every theme should be expressed by a scene or story beat.",
			"theme %s is never expressed", graph.EdgeExpresses),
		missingEdgeRule(RuleMotifUnexpressed, CategoryThematic, graph.TypeMotif, false,
			"Every motif should be expressed by a scene or story beat.",
			"motif %s is never expressed", graph.EdgeExpresses),
	}
}

// missingEdgeRule flags nodes of typ with no edge of the given types, looking
// at outgoing edges when outgoing is set and incoming edges otherwise.
func missingEdgeRule(id, category string, typ graph.NodeType, outgoing bool, desc, msg string, edgeTypes ...graph.EdgeType) *Rule {
	r := &Rule{ID: id, Category: category, Severity: SeveritySoft, Description: desc}
	r.Evaluate = func(g *graph.State, scope *Scope) []Violation {
		var out []Violation
		for _, n := range g.NodesOfType(typ) {
			if !scope.Includes(n.ID) || hasAnyEdge(g, n.ID, outgoing, edgeTypes) {
				continue
			}
			v := r.violation(n.ID, n.ID, nil, msg, label(n))
			out = append(out, v)
		}
		return out
	}
	return r
}

func hasAnyEdge(g *graph.State, id string, outgoing bool, types []graph.EdgeType) bool {
	for _, t := range types {
		var edges []*graph.Edge
		if outgoing {
			edges = g.EdgesFrom(id, t)
		} else {
			edges = g.EdgesTo(id, t)
		}
		if len(edges) > 0 {
			return true
		}
	}
	return false
}

// label names a node for messages: its ID, plus its display name when set.
func label(n *graph.Node) string {
	if l := n.Label(); l != n.ID {
		return n.ID + " (" + strings.TrimSpace(l) + ")"
	}
	return n.ID
}
