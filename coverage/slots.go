// Package coverage derives what a story is still missing: template slots
// without content and content without detail. Everything here is a pure
// function of the graph.
package coverage

import (
	"sort"

	"github.com/kobst/project-apollo-sub005/beats"
	"github.com/kobst/project-apollo-sub005/graph"
)

// SlotState classifies how far a template slot has been filled.
type SlotState string

const (
	SlotMissing               SlotState = "missing"
	SlotUnaligned             SlotState = "unaligned"
	SlotRealizedWithoutDetail SlotState = "realized_without_detail"
	SlotSatisfied             SlotState = "satisfied"
)

// SlotStatus is the coverage of one template slot.
type SlotStatus struct {
	Slot         beats.Slot `json:"slot"`
	State        SlotState  `json:"state"`
	BeatID       string     `json:"beatId,omitempty"`
	StoryBeatIDs []string   `json:"storyBeatIds,omitempty"`
	SceneIDs     []string   `json:"sceneIds,omitempty"`
}

// ClassifySlots reports the state of every slot of tpl, in template order.
func ClassifySlots(g *graph.State, tpl *beats.Template) []SlotStatus {
	beatsByType := make(map[string][]string)
	for _, b := range g.NodesOfType(graph.TypeBeat) {
		t := b.String("beat_type")
		beatsByType[t] = append(beatsByType[t], b.ID)
	}

	out := make([]SlotStatus, 0, len(tpl.Slots))
	for _, slot := range tpl.Slots {
		st := SlotStatus{Slot: slot, State: SlotMissing}
		ids := beatsByType[slot.Type]
		if len(ids) == 0 {
			out = append(out, st)
			continue
		}
		st.BeatID = ids[0]
		st.StoryBeatIDs = alignedStoryBeats(g, st.BeatID)
		st.SceneIDs = satisfyingScenes(g, st.StoryBeatIDs)
		switch {
		case len(st.StoryBeatIDs) == 0:
			st.State = SlotUnaligned
		case len(st.SceneIDs) == 0:
			st.State = SlotRealizedWithoutDetail
		default:
			st.State = SlotSatisfied
		}
		out = append(out, st)
	}
	return out
}

func alignedStoryBeats(g *graph.State, beatID string) []string {
	var ids []string
	for _, e := range g.EdgesTo(beatID, graph.EdgeAlignsWith) {
		if n := g.Node(e.From); n != nil && n.Type == graph.TypeStoryBeat {
			ids = append(ids, n.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func satisfyingScenes(g *graph.State, storyBeatIDs []string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, sb := range storyBeatIDs {
		for _, e := range g.EdgesFrom(sb, graph.EdgeSatisfiedBy) {
			if !seen[e.To] && g.HasNode(e.To) {
				seen[e.To] = true
				ids = append(ids, e.To)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
