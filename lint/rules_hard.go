package lint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kobst/project-apollo-sub005/beats"
	"github.com/kobst/project-apollo-sub005/graph"
	"github.com/kobst/project-apollo-sub005/patch"
)

// Built-in rule IDs.
const (
	RuleSceneOrderUnique      = "ordering/scene-order-unique"
	RuleStoryBeatOrderUnique  = "ordering/storybeat-order-unique"
	RuleActAlignment          = "structure/act-alignment"
	RuleBeatTemplatePosition  = "structure/beat-template-position"
	RuleDuplicateBeatType     = "structure/duplicate-beat-type"
	RuleSceneMissingCharacter = "completeness/scene-missing-character"
	RuleSceneMissingLocation  = "completeness/scene-missing-location"
	RuleStoryBeatUnaligned    = "completeness/storybeat-unaligned"
	RuleCharacterUnused       = "completeness/character-unused"
	RuleThemeUnexpressed      = "thematic/theme-unexpressed"
	RuleMotifUnexpressed      = "thematic/motif-unexpressed"
)

// DefaultRegistry returns the built-in rules measured against tpl, or the
// default template when tpl is nil.
func DefaultRegistry(tpl *beats.Template) *Registry {
	if tpl == nil {
		tpl = beats.Default()
	}
	rules := append(HardRules(tpl), SoftRules()...)
	reg, err := NewRegistry(rules...)
	if err != nil {
		panic(fmt.Sprintf("lint: built-in rules: %v", err))
	}
	return reg
}

// HardRules returns the blocking built-in rules.
func HardRules(tpl *beats.Template) []*Rule {
	return []*Rule{
		orderUniqueRule(RuleSceneOrderUnique, "scenes", "Scenes under the same beat must have distinct order_index values.", scenesByBeat),
		orderUniqueRule(RuleStoryBeatOrderUnique, "story beats", "Story beats aligned to the same beat must have distinct order_index values.", storyBeatsByBeat),
		actAlignmentRule(),
		beatTemplatePositionRule(tpl),
		duplicateBeatTypeRule(),
	}
}

// ordered is a child node with its order_index.
type ordered struct {
	id    string
	order int
}

type groupFunc func(g *graph.State) map[string][]ordered

// scenesByBeat groups ordered scenes by their beat_id.
func scenesByBeat(g *graph.State) map[string][]ordered {
	groups := make(map[string][]ordered)
	for _, sc := range g.NodesOfType(graph.TypeScene) {
		beatID := sc.String("beat_id")
		order, ok := sc.Int("order_index")
		if beatID == "" || !ok {
			continue
		}
		groups[beatID] = append(groups[beatID], ordered{id: sc.ID, order: order})
	}
	return groups
}

// storyBeatsByBeat groups ordered story beats by the beats they align with.
func storyBeatsByBeat(g *graph.State) map[string][]ordered {
	groups := make(map[string][]ordered)
	for _, sb := range g.NodesOfType(graph.TypeStoryBeat) {
		order, ok := sb.Int("order_index")
		if !ok {
			continue
		}
		seen := make(map[string]bool)
		for _, e := range g.EdgesFrom(sb.ID, graph.EdgeAlignsWith) {
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			groups[e.To] = append(groups[e.To], ordered{id: sb.ID, order: order})
		}
	}
	return groups
}

func orderUniqueRule(id, noun, desc string, group groupFunc) *Rule {
	r := &Rule{ID: id, Category: CategoryOrdering, Severity: SeverityHard, Description: desc}
	r.Evaluate = func(g *graph.State, scope *Scope) []Violation {
		groups := group(g)
		var out []Violation
		for _, parent := range sortedGroupKeys(groups) {
			members := groups[parent]
			if !scope.Includes(parent) && !scope.IncludesAny(memberIDs(members)...) {
				continue
			}
			colliding := collisions(members)
			if len(colliding) == 0 {
				continue
			}
			out = append(out, r.violation(parent, parent, colliding,
				"%s %s under beat %s share an order_index", noun, strings.Join(colliding, ", "), parent))
		}
		return out
	}
	r.SuggestFix = func(g *graph.State, v Violation) *Fix {
		members := group(g)[v.NodeID]
		ops := reindex(members)
		return r.fix(v, fmt.Sprintf("Renumber %s under %s", noun, v.NodeID), memberIDs(members), ops...)
	}
	return r
}

// collisions returns the sorted IDs of members sharing an order_index.
func collisions(members []ordered) []string {
	count := make(map[int]int, len(members))
	for _, m := range members {
		count[m.order]++
	}
	var out []string
	for _, m := range members {
		if count[m.order] > 1 {
			out = append(out, m.id)
		}
	}
	sort.Strings(out)
	return out
}

// reindex renumbers a group 1..n ordered by (order_index, id), emitting
// updates only for members whose index changes.
func reindex(members []ordered) []patch.Op {
	sorted := append([]ordered(nil), members...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].order != sorted[j].order {
			return sorted[i].order < sorted[j].order
		}
		return sorted[i].id < sorted[j].id
	})
	var ops []patch.Op
	for i, m := range sorted {
		if want := i + 1; m.order != want {
			ops = append(ops, patch.UpdateNode{ID: m.id, Set: map[string]any{"order_index": want}})
		}
	}
	return ops
}

func memberIDs(members []ordered) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.id
	}
	return ids
}

func sortedGroupKeys(groups map[string][]ordered) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// expectedAct returns the act a scene or story beat should carry given its
// structural parent, and the parent's ID.
func expectedAct(g *graph.State, n *graph.Node) (int, string, bool) {
	switch n.Type {
	case graph.TypeScene:
		beat := g.Node(n.String("beat_id"))
		if beat == nil || beat.Type != graph.TypeBeat {
			return 0, "", false
		}
		act, ok := beat.Int("act")
		return act, beat.ID, ok
	case graph.TypeStoryBeat:
		edges := g.EdgesFrom(n.ID, graph.EdgeAlignsWith)
		sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
		for _, e := range edges {
			beat := g.Node(e.To)
			if beat == nil {
				continue
			}
			if act, ok := beat.Int("act"); ok {
				return act, beat.ID, true
			}
		}
	}
	return 0, "", false
}

// actMatchesParent reports whether n's act agrees with any of its parents.
func actMatchesParent(g *graph.State, n *graph.Node, act int) bool {
	if n.Type == graph.TypeScene {
		want, _, ok := expectedAct(g, n)
		return !ok || want == act
	}
	found := false
	for _, e := range g.EdgesFrom(n.ID, graph.EdgeAlignsWith) {
		beat := g.Node(e.To)
		if beat == nil {
			continue
		}
		if want, ok := beat.Int("act"); ok {
			found = true
			if want == act {
				return true
			}
		}
	}
	return !found
}

func actAlignmentRule() *Rule {
	r := &Rule{
		ID:          RuleActAlignment,
		Category:    CategoryStructure,
		Severity:    SeverityHard,
		Description: "A scene or story beat's act must match the act of the beat it belongs to.",
	}
	r.Evaluate = func(g *graph.State, scope *Scope) []Violation {
		var out []Violation
		for _, typ := range []graph.NodeType{graph.TypeScene, graph.TypeStoryBeat} {
			for _, n := range g.NodesOfType(typ) {
				act, ok := n.Int("act")
				if !ok || actMatchesParent(g, n, act) {
					continue
				}
				want, parent, _ := expectedAct(g, n)
				if !scope.IncludesAny(n.ID, parent) {
					continue
				}
				out = append(out, r.violation(n.ID, n.ID, []string{parent},
					"%s %s is in act %d but beat %s is in act %d", strings.ToLower(string(n.Type)), n.ID, act, parent, want))
			}
		}
		return out
	}
	r.SuggestFix = func(g *graph.State, v Violation) *Fix {
		n := g.Node(v.NodeID)
		if n == nil {
			return nil
		}
		want, _, ok := expectedAct(g, n)
		if !ok {
			return nil
		}
		return r.fix(v, fmt.Sprintf("Move %s to act %d", n.ID, want), []string{n.ID},
			patch.UpdateNode{ID: n.ID, Set: map[string]any{"act": want}})
	}
	return r
}

func beatTemplatePositionRule(tpl *beats.Template) *Rule {
	r := &Rule{
		ID:          RuleBeatTemplatePosition,
		Category:    CategoryStructure,
		Severity:    SeverityHard,
		Description: fmt.Sprintf("A beat's act and position_index must match the %s template.", tpl.Name),
	}
	mismatch := func(b *graph.Node) (beats.Slot, bool) {
		slot, ok := tpl.Slot(b.String("beat_type"))
		if !ok {
			return slot, false
		}
		pos, posOK := b.Int("position_index")
		act, actOK := b.Int("act")
		return slot, !posOK || !actOK || pos != slot.Position || act != slot.Act
	}
	r.Evaluate = func(g *graph.State, scope *Scope) []Violation {
		var out []Violation
		for _, b := range g.NodesOfType(graph.TypeBeat) {
			if !scope.Includes(b.ID) {
				continue
			}
			slot, bad := mismatch(b)
			if !bad {
				continue
			}
			out = append(out, r.violation(b.ID, b.ID, nil,
				"beat %s (%s) should be act %d position %d", b.ID, slot.Type, slot.Act, slot.Position))
		}
		return out
	}
	r.SuggestFix = func(g *graph.State, v Violation) *Fix {
		b := g.Node(v.NodeID)
		if b == nil {
			return nil
		}
		slot, bad := mismatch(b)
		if !bad {
			return nil
		}
		return r.fix(v, fmt.Sprintf("Move %s to its template slot", b.ID), []string{b.ID},
			patch.UpdateNode{ID: b.ID, Set: map[string]any{"act": slot.Act, "position_index": slot.Position}})
	}
	return r
}

func duplicateBeatTypeRule() *Rule {
	r := &Rule{
		ID:          RuleDuplicateBeatType,
		Category:    CategoryStructure,
		Severity:    SeverityHard,
		Description: "Each template slot may be occupied by at most one beat.",
	}
	r.Evaluate = func(g *graph.State, scope *Scope) []Violation {
		byType := make(map[string][]string)
		for _, b := range g.NodesOfType(graph.TypeBeat) {
			if t := b.String("beat_type"); t != "" {
				byType[t] = append(byType[t], b.ID)
			}
		}
		types := make([]string, 0, len(byType))
		for t := range byType {
			types = append(types, t)
		}
		sort.Strings(types)

		var out []Violation
		for _, t := range types {
			ids := byType[t]
			if len(ids) < 2 || !scope.IncludesAny(ids...) {
				continue
			}
			out = append(out, r.violation(t, ids[0], ids,
				"beats %s all occupy the %s slot", strings.Join(ids, ", "), t))
		}
		return out
	}
	return r
}
