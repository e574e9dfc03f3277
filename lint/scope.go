package lint

import (
	"slices"
	"sort"

	"github.com/kobst/project-apollo-sub005/graph"
	"github.com/kobst/project-apollo-sub005/patch"
)

// Mode selects how much of the graph a lint pass covers.
type Mode string

const (
	ModeFull    Mode = "full"
	ModeTouched Mode = "touched"
)

// DefaultMaxScopeNodes caps touched-scope expansion when no limit is set.
const DefaultMaxScopeNodes = 500

// Scope is the part of the graph a lint pass looks at.
type Scope struct {
	Mode           Mode     `json:"mode"`
	TouchedNodeIDs []string `json:"touchedNodeIds,omitempty"`
	TouchedEdgeIDs []string `json:"touchedEdgeIds,omitempty"`
	// ExpandedNodeIDs is the touched set plus its neighborhood. It is filled
	// by Expand when empty.
	ExpandedNodeIDs []string `json:"expandedNodeIds,omitempty"`
	Truncated       bool     `json:"truncated,omitempty"`

	included map[string]bool
}

// FullScope covers the whole graph.
func FullScope() *Scope {
	return &Scope{Mode: ModeFull}
}

// TouchedScope covers the given nodes and edges plus their neighborhood.
func TouchedScope(nodeIDs, edgeIDs []string) *Scope {
	return &Scope{Mode: ModeTouched, TouchedNodeIDs: nodeIDs, TouchedEdgeIDs: edgeIDs}
}

// ScopeForPatch covers everything a patch touches.
func ScopeForPatch(p *patch.Patch) *Scope {
	return TouchedScope(p.TouchedNodeIDs(), p.TouchedEdgeIDs())
}

// Includes reports whether a node is inside the scope. It never writes to s,
// so a scope may be shared between goroutines.
func (s *Scope) Includes(id string) bool {
	if s == nil || s.Mode != ModeTouched {
		return true
	}
	if s.included != nil {
		return s.included[id]
	}
	return slices.Contains(s.members(), id)
}

// IncludesAny reports whether any of ids is inside the scope.
func (s *Scope) IncludesAny(ids ...string) bool {
	for _, id := range ids {
		if s.Includes(id) {
			return true
		}
	}
	return false
}

func (s *Scope) members() []string {
	if s.ExpandedNodeIDs != nil {
		return s.ExpandedNodeIDs
	}
	return s.TouchedNodeIDs
}

// indexed returns a copy of s with a membership index built.
func (s *Scope) indexed() *Scope {
	out := *s
	ids := out.members()
	out.included = make(map[string]bool, len(ids))
	for _, id := range ids {
		out.included[id] = true
	}
	return &out
}

// Expand fills ExpandedNodeIDs: touched nodes, endpoints of touched edges,
// their one-hop neighbors, and for scenes the parent beat with its other
// scenes. For story beats the aligned beats and their other story beats are
// added the same way. At most max nodes are kept; touched nodes first.
func Expand(g *graph.State, s *Scope, max int) *Scope {
	if s == nil || s.Mode != ModeTouched {
		return s
	}
	if max <= 0 {
		max = DefaultMaxScopeNodes
	}

	var seeds []string
	for _, id := range s.TouchedNodeIDs {
		if g.HasNode(id) {
			seeds = append(seeds, id)
		}
	}
	for _, eid := range s.TouchedEdgeIDs {
		if e := g.EdgeByID(eid); e != nil {
			seeds = append(seeds, e.From, e.To)
		}
	}
	seeds = dedupSorted(seeds)

	extra := make(map[string]bool)
	seedSet := make(map[string]bool, len(seeds))
	for _, id := range seeds {
		seedSet[id] = true
	}
	add := func(id string) {
		if id != "" && !seedSet[id] && g.HasNode(id) {
			extra[id] = true
		}
	}
	for _, id := range seeds {
		for _, n := range g.Neighbors(id) {
			add(n)
		}
		for _, sib := range structuralFamily(g, id) {
			add(sib)
		}
	}

	rest := make([]string, 0, len(extra))
	for id := range extra {
		rest = append(rest, id)
	}
	sort.Strings(rest)

	all := append(seeds, rest...)
	out := *s
	out.Truncated = false
	if len(all) > max {
		all = all[:max]
		out.Truncated = true
	}
	out.ExpandedNodeIDs = all
	return out.indexed()
}

// structuralFamily returns the parent beat(s) of a scene or story beat and
// the other children of those beats.
func structuralFamily(g *graph.State, id string) []string {
	n := g.Node(id)
	if n == nil {
		return nil
	}
	var out []string
	switch n.Type {
	case graph.TypeScene:
		beatID := n.String("beat_id")
		if beatID == "" {
			return nil
		}
		out = append(out, beatID)
		for _, sc := range g.NodesOfType(graph.TypeScene) {
			if sc.String("beat_id") == beatID {
				out = append(out, sc.ID)
			}
		}
	case graph.TypeStoryBeat:
		for _, e := range g.EdgesFrom(id, graph.EdgeAlignsWith) {
			out = append(out, e.To)
			for _, sib := range g.EdgesTo(e.To, graph.EdgeAlignsWith) {
				out = append(out, sib.From)
			}
		}
	case graph.TypeBeat:
		for _, sc := range g.NodesOfType(graph.TypeScene) {
			if sc.String("beat_id") == id {
				out = append(out, sc.ID)
			}
		}
		for _, e := range g.EdgesTo(id, graph.EdgeAlignsWith) {
			out = append(out, e.From)
		}
	}
	return out
}

func dedupSorted(ids []string) []string {
	sort.Strings(ids)
	var out []string
	for _, id := range ids {
		if len(out) == 0 || out[len(out)-1] != id {
			out = append(out, id)
		}
	}
	return out
}
