package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobst/project-apollo-sub005/beats"
	"github.com/kobst/project-apollo-sub005/graph"
)

func miniTemplate(t *testing.T) *beats.Template {
	t.Helper()
	tpl, err := beats.Parse([]byte(`
name: mini
slots:
  - {type: OpeningImage, name: Opening Image, act: 1, position: 1}
  - {type: Catalyst, name: Catalyst, act: 1, position: 2}
  - {type: Midpoint, name: Midpoint, act: 2, position: 3}
  - {type: Finale, name: Finale, act: 3, position: 4}
`))
	require.NoError(t, err)
	return tpl
}

// storyGraph fills the mini template to varying degrees:
// OpeningImage satisfied, Catalyst realized without detail, Midpoint
// unaligned, Finale missing.
func storyGraph() *graph.State {
	g := graph.NewState()
	add := func(n *graph.Node) { g.ReplaceNode(n) }
	add(graph.NewNode("b_open", graph.TypeBeat, map[string]any{"beat_type": "OpeningImage", "act": 1, "position_index": 1}))
	add(graph.NewNode("b_cat", graph.TypeBeat, map[string]any{"beat_type": "Catalyst", "act": 1, "position_index": 2}))
	add(graph.NewNode("b_mid", graph.TypeBeat, map[string]any{"beat_type": "Midpoint", "act": 2, "position_index": 3}))
	add(graph.NewNode("sb1", graph.TypeStoryBeat, map[string]any{"title": "Dawn at the mill", "order_index": 1}))
	add(graph.NewNode("sb2", graph.TypeStoryBeat, map[string]any{"title": "The letter arrives", "order_index": 1}))
	add(graph.NewNode("s1", graph.TypeScene, map[string]any{"heading": "EXT. MILL - DAWN", "scene_overview": "Mara works alone."}))
	add(graph.NewNode("c1", graph.TypeCharacter, map[string]any{"name": "Mara", "description": "A miller"}))
	add(graph.NewNode("l1", graph.TypeLocation, map[string]any{"name": "Mill", "description": "Old stone mill"}))
	g.Edges = append(g.Edges,
		&graph.Edge{ID: "e1", Type: graph.EdgeAlignsWith, From: "sb1", To: "b_open"},
		&graph.Edge{ID: "e2", Type: graph.EdgeSatisfiedBy, From: "sb1", To: "s1"},
		&graph.Edge{ID: "e3", Type: graph.EdgeAlignsWith, From: "sb2", To: "b_cat"},
		&graph.Edge{ID: "e4", Type: graph.EdgeFeaturesCharacter, From: "s1", To: "c1"},
		&graph.Edge{ID: "e5", Type: graph.EdgeLocatedAt, From: "s1", To: "l1"},
	)
	return g
}

func TestClassifySlots(t *testing.T) {
	statuses := ClassifySlots(storyGraph(), miniTemplate(t))
	require.Len(t, statuses, 4)

	got := make(map[string]SlotState)
	for _, s := range statuses {
		got[s.Slot.Type] = s.State
	}
	assert.Equal(t, map[string]SlotState{
		"OpeningImage": SlotSatisfied,
		"Catalyst":     SlotRealizedWithoutDetail,
		"Midpoint":     SlotUnaligned,
		"Finale":       SlotMissing,
	}, got)
	assert.Equal(t, []string{"s1"}, statuses[0].SceneIDs)
	assert.Equal(t, []string{"sb2"}, statuses[1].StoryBeatIDs)
}

func TestDeriveGaps_Ordering(t *testing.T) {
	gaps := DeriveGaps(storyGraph(), Options{Template: miniTemplate(t)})

	var ids []string
	for _, g := range gaps {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{
		"missing_logline:story",
		"missing_genre_tone:story",
		"missing_setting:story",
		"missing_beat:Finale",
		"unaligned_beat:b_mid",
		"unrealized_beat:b_cat",
		"unrealized_story_beat:sb2",
	}, ids)

	for i := 1; i < len(gaps); i++ {
		assert.LessOrEqual(t, gaps[i-1].Tier, gaps[i].Tier)
	}
}

func TestDeriveGaps_PhaseCapsTier(t *testing.T) {
	g := storyGraph()
	tpl := miniTemplate(t)

	for _, gap := range DeriveGaps(g, Options{Phase: PhasePremise, Template: tpl}) {
		assert.Equal(t, TierFoundations, gap.Tier, gap.ID)
	}
	for _, gap := range DeriveGaps(g, Options{Phase: PhaseOutline, Template: tpl}) {
		assert.LessOrEqual(t, gap.Tier, TierStructure, gap.ID)
	}
}

func TestDeriveGaps_DetailTier(t *testing.T) {
	g := storyGraph()
	g.ReplaceNode(graph.NewNode("s2", graph.TypeScene, map[string]any{"heading": "INT. MILL - NIGHT"}))
	g.ReplaceNode(graph.NewNode("c2", graph.TypeCharacter, map[string]any{"name": "Ode"}))

	var detail []Gap
	for _, gap := range DeriveGaps(g, Options{Phase: PhaseDraft, Template: miniTemplate(t)}) {
		if gap.Tier == TierDetail {
			detail = append(detail, gap)
		}
	}
	require.Len(t, detail, 2)
	assert.Equal(t, "underspecified_scene:s2", detail[0].ID)
	assert.Equal(t, SeverityMedium, detail[0].Severity)
	assert.Equal(t, "underspecified_character:c2", detail[1].ID)
}

func TestNextGap(t *testing.T) {
	next := NextGap(storyGraph(), Options{Template: miniTemplate(t)})
	require.NotNil(t, next)
	assert.Equal(t, GapMissingLogline, next.Type)

	g := graph.NewState()
	assert.Equal(t, GapMissingLogline, NextGap(g, Options{}).Type)

	assert.True(t, PhaseDraft.Valid())
	assert.False(t, Phase("revision").Valid())
}
