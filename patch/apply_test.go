package patch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobst/project-apollo-sub005/graph"
)

func fixedApplier() *Applier {
	n := 0
	return &Applier{
		Now: func() int64 { return 1700000000000 },
		NewID: func() string {
			n++
			return "edge_" + string(rune('a'+n-1))
		},
	}
}

func sceneGraph(t *testing.T) *graph.State {
	t.Helper()
	g := graph.NewState()
	g.ReplaceNode(graph.NewNode("b1", graph.TypeBeat, map[string]any{"beat_type": "Catalyst", "act": 1, "position_index": 4}))
	g.ReplaceNode(graph.NewNode("s1", graph.TypeScene, map[string]any{"heading": "INT. KITCHEN - NIGHT", "beat_id": "b1", "order_index": 1}))
	g.ReplaceNode(graph.NewNode("c1", graph.TypeCharacter, map[string]any{"name": "Mara"}))
	g.ReplaceNode(graph.NewNode("l1", graph.TypeLocation, map[string]any{"name": "Kitchen"}))
	g.Edges = append(g.Edges,
		&graph.Edge{ID: "e1", Type: graph.EdgeFeaturesCharacter, From: "s1", To: "c1", Status: graph.StatusApproved},
		&graph.Edge{ID: "e2", Type: graph.EdgeLocatedAt, From: "s1", To: "l1", Status: graph.StatusApproved},
	)
	return g
}

func TestApply_AddNodeTwiceFails(t *testing.T) {
	g := graph.NewState()
	add := AddNode{Node: graph.NewNode("c1", graph.TypeCharacter, map[string]any{"name": "Mara"})}

	g1, err := Apply(g, &Patch{ID: "p1", Ops: []Op{add}})
	require.NoError(t, err)
	require.True(t, g1.HasNode("c1"))

	g2, err := Apply(g1, &Patch{ID: "p2", Ops: []Op{add}})
	require.Error(t, err)
	assert.Nil(t, g2)
	assert.True(t, errors.Is(err, ErrNodeExists))

	var ae *ApplyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 0, ae.Index)
	assert.Equal(t, KindAddNode, ae.Op.Kind())

	assert.Len(t, g1.Nodes, 1)
	assert.Equal(t, "Mara", g1.Node("c1").String("name"))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	g := sceneGraph(t)
	nodesBefore := make(map[string]*graph.Node, len(g.Nodes))
	for id, n := range g.Nodes {
		nodesBefore[id] = n
	}
	edgesBefore := append([]*graph.Edge(nil), g.Edges...)
	headingBefore := g.Node("s1").String("heading")

	p := &Patch{ID: "p1", Ops: []Op{
		UpdateNode{ID: "s1", Set: map[string]any{"heading": "EXT. ROOF - DAY"}},
		UpdateEdge{ID: "e1", Set: map[string]any{"weight": 2}},
		DeleteNode{ID: "l1"},
		AddNode{Node: graph.NewNode("o1", graph.TypeObject, map[string]any{"name": "Key"})},
	}}
	out, err := fixedApplier().Apply(g, p)
	require.NoError(t, err)

	assert.Equal(t, "EXT. ROOF - DAY", out.Node("s1").String("heading"))
	assert.Equal(t, headingBefore, g.Node("s1").String("heading"))
	assert.Equal(t, nodesBefore, g.Nodes)
	assert.Equal(t, edgesBefore, g.Edges)
	assert.Nil(t, g.Edges[0].Properties)
	assert.False(t, g.HasNode("o1"))
}

func TestApply_FailureLeavesInputUntouched(t *testing.T) {
	g := sceneGraph(t)
	p := &Patch{ID: "p1", Ops: []Op{
		UpdateNode{ID: "s1", Set: map[string]any{"heading": "CHANGED"}},
		DeleteNode{ID: "missing"},
	}}

	_, err := Apply(g, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNodeNotFound))

	var ae *ApplyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 1, ae.Index)
	assert.Equal(t, "INT. KITCHEN - NIGHT", g.Node("s1").String("heading"))
}

func TestApply_DeleteNodeCascades(t *testing.T) {
	g := sceneGraph(t)
	out, err := Apply(g, &Patch{ID: "p1", Ops: []Op{DeleteNode{ID: "s1"}}})
	require.NoError(t, err)

	assert.False(t, out.HasNode("s1"))
	for _, e := range out.Edges {
		assert.False(t, e.Touches("s1"), "edge %s still touches deleted node", e.ID)
	}
	assert.Len(t, g.Edges, 2)
}

func TestApply_DeleteNodeUnsetsRefs(t *testing.T) {
	g := sceneGraph(t)
	out, err := Apply(g, &Patch{ID: "p1", Ops: []Op{DeleteNode{ID: "b1"}}})
	require.NoError(t, err)

	_, ok := out.Node("s1").Get("beat_id")
	assert.False(t, ok, "scene still points at deleted beat")
	assert.Equal(t, "INT. KITCHEN - NIGHT", out.Node("s1").String("heading"))
	assert.Equal(t, "b1", g.Node("s1").String("beat_id"), "input graph changed")
}

func TestApply_UpdateNodeRejectsReservedFields(t *testing.T) {
	g := sceneGraph(t)
	cases := []struct {
		name string
		op   UpdateNode
	}{
		{"set id", UpdateNode{ID: "c1", Set: map[string]any{"id": "other"}}},
		{"set type", UpdateNode{ID: "c1", Set: map[string]any{"type": "Location"}}},
		{"unset type", UpdateNode{ID: "c1", Unset: []string{"type"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(g, &Patch{ID: "p", Ops: []Op{tc.op}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrImmutableField))
			assert.True(t, g.HasNode("c1"))
			assert.False(t, g.HasNode("other"))
		})
	}
}

func TestApply_UpdateNodeMergesThenUnsets(t *testing.T) {
	g := sceneGraph(t)
	out, err := Apply(g, &Patch{ID: "p", Ops: []Op{
		UpdateNode{ID: "c1", Set: map[string]any{"archetype": "mentor", "description": "x"}, Unset: []string{"description"}},
	}})
	require.NoError(t, err)

	c := out.Node("c1")
	assert.Equal(t, "mentor", c.String("archetype"))
	assert.Equal(t, "Mara", c.String("name"))
	_, ok := c.Get("description")
	assert.False(t, ok)
}

func TestApply_AddEdgeDefaultsAndUniqueness(t *testing.T) {
	g := sceneGraph(t)
	a := fixedApplier()
	p := &Patch{ID: "p9", Metadata: Metadata{Source: "ai"}, Ops: []Op{
		AddNode{Node: graph.NewNode("o1", graph.TypeObject, map[string]any{"name": "Key"})},
		AddEdge{Edge: &graph.Edge{Type: graph.EdgeFeaturesObject, From: "s1", To: "o1"}},
	}}
	out, err := a.Apply(g, p)
	require.NoError(t, err)

	e := out.EdgeByKey(graph.EdgeKey{Type: graph.EdgeFeaturesObject, From: "s1", To: "o1"})
	require.NotNil(t, e)
	assert.Equal(t, "edge_a", e.ID)
	assert.Equal(t, graph.SourceAI, e.Provenance.Source)
	assert.Equal(t, "p9", e.Provenance.PatchID)
	assert.Equal(t, graph.StatusProposed, e.Status)
	assert.Equal(t, int64(1700000000000), e.CreatedAt)

	_, err = a.Apply(out, &Patch{ID: "p10", Ops: []Op{
		AddEdge{Edge: &graph.Edge{Type: graph.EdgeFeaturesObject, From: "s1", To: "o1"}},
	}})
	assert.True(t, errors.Is(err, ErrEdgeExists))
}

func TestApply_AddEdgeRequiresEndpoints(t *testing.T) {
	g := sceneGraph(t)
	_, err := Apply(g, &Patch{ID: "p", Ops: []Op{
		AddEdge{Edge: &graph.Edge{Type: graph.EdgeFeaturesCharacter, From: "s1", To: "ghost"}},
	}})
	assert.True(t, errors.Is(err, ErrNodeNotFound))
}

func TestApply_UpsertNeverDuplicatesTriple(t *testing.T) {
	g := sceneGraph(t)
	a := fixedApplier()
	ops := []Op{
		UpsertEdge{Edge: &graph.Edge{Type: graph.EdgeFeaturesCharacter, From: "s1", To: "c1", Properties: map[string]any{"role": "lead"}}},
		UpsertEdge{Edge: &graph.Edge{Type: graph.EdgeFeaturesCharacter, From: "s1", To: "c1", Status: graph.StatusRejected}},
	}
	out, err := a.Apply(g, &Patch{ID: "p", Ops: ops})
	require.NoError(t, err)

	seen := make(map[graph.EdgeKey]int)
	for _, e := range out.Edges {
		seen[e.Key()]++
	}
	for k, n := range seen {
		assert.Equal(t, 1, n, "triple %s appears %d times", k, n)
	}

	e := out.EdgeByID("e1")
	require.NotNil(t, e)
	assert.Equal(t, "lead", e.Properties["role"])
	assert.Equal(t, graph.StatusRejected, e.Status)
	assert.Equal(t, int64(1700000000000), e.UpdatedAt)
}

func TestApply_UpdateEdgeDropsEmptyProperties(t *testing.T) {
	g := sceneGraph(t)
	out, err := Apply(g, &Patch{ID: "p", Ops: []Op{
		UpdateEdge{ID: "e1", Set: map[string]any{"note": "x"}},
		UpdateEdge{ID: "e1", Unset: []string{"note"}, Status: graph.StatusRejected},
	}})
	require.NoError(t, err)

	e := out.EdgeByID("e1")
	assert.Nil(t, e.Properties)
	assert.Equal(t, graph.StatusRejected, e.Status)
	assert.NotZero(t, e.UpdatedAt)
}

func TestApply_DeleteEdgeByKeyAndMissing(t *testing.T) {
	g := sceneGraph(t)
	key := graph.EdgeKey{Type: graph.EdgeLocatedAt, From: "s1", To: "l1"}
	out, err := Apply(g, &Patch{ID: "p", Ops: []Op{DeleteEdge{Key: &key}}})
	require.NoError(t, err)
	assert.Nil(t, out.EdgeByKey(key))

	_, err = Apply(out, &Patch{ID: "p", Ops: []Op{DeleteEdge{ID: "e2"}}})
	assert.True(t, errors.Is(err, ErrEdgeNotFound))
}

func TestApply_BatchRunsDeletesBeforeAdds(t *testing.T) {
	g := sceneGraph(t)
	batch := BatchEdge{
		Adds: []*graph.Edge{{ID: "e1b", Type: graph.EdgeFeaturesCharacter, From: "s1", To: "c1"}},
		Updates: []UpdateEdge{
			{ID: "e2", Set: map[string]any{"primary": true}},
		},
		Deletes: []DeleteEdge{{ID: "e1"}},
	}
	out, err := Apply(g, &Patch{ID: "p", Ops: []Op{batch}})
	require.NoError(t, err)

	assert.Nil(t, out.EdgeByID("e1"))
	assert.NotNil(t, out.EdgeByID("e1b"))
	assert.Equal(t, true, out.EdgeByID("e2").Properties["primary"])
}

func TestApply_MalformedOp(t *testing.T) {
	g := sceneGraph(t)
	_, err := Apply(g, &Patch{ID: "p", Ops: []Op{UpdateNode{ID: "c1"}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedOp))
}

func TestTouchedIDs(t *testing.T) {
	key := graph.EdgeKey{Type: graph.EdgeLocatedAt, From: "s1", To: "l1"}
	p := &Patch{Ops: []Op{
		UpdateNode{ID: "c1", Set: map[string]any{"name": "M"}},
		AddEdge{Edge: &graph.Edge{ID: "e7", Type: graph.EdgeFeaturesCharacter, From: "s2", To: "c1"}},
		DeleteEdge{Key: &key},
		UpdateEdge{ID: "e9"},
	}}
	assert.Equal(t, []string{"c1", "l1", "s1", "s2"}, p.TouchedNodeIDs())
	assert.Equal(t, []string{"e7", "e9"}, p.TouchedEdgeIDs())
	assert.Equal(t, 4, p.OpCount())
}
