package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobst/project-apollo-sub005/cas"
	"github.com/kobst/project-apollo-sub005/graph"
	"github.com/kobst/project-apollo-sub005/patch"
)

func baseGraph(t *testing.T) *graph.State {
	t.Helper()
	g := graph.NewState()
	g.ReplaceNode(graph.NewNode("b1", graph.TypeBeat, map[string]any{"beat_type": "Catalyst", "act": 1, "position_index": 4}))
	g.ReplaceNode(graph.NewNode("s1", graph.TypeScene, map[string]any{"heading": "INT. KITCHEN - NIGHT", "beat_id": "b1", "order_index": 1}))
	g.ReplaceNode(graph.NewNode("c1", graph.TypeCharacter, map[string]any{"name": "Mara"}))
	g.Edges = append(g.Edges, &graph.Edge{ID: "e1", Type: graph.EdgeFeaturesCharacter, From: "s1", To: "c1"})
	return g
}

func codes(r Result) []Code {
	var out []Code
	for _, e := range r.Errors {
		out = append(out, e.Code)
	}
	return out
}

func TestValidate_IsIdempotentAndPure(t *testing.T) {
	g := baseGraph(t)
	before, _, err := cas.Digest(g)
	require.NoError(t, err)
	p := &patch.Patch{ID: "p", Ops: []patch.Op{
		patch.UpdateNode{ID: "s1", Set: map[string]any{"act": 9}},
		patch.DeleteNode{ID: "ghost"},
	}}

	first := Validate(g, p)
	second := Validate(g, p)
	assert.Equal(t, first, second)
	after, _, err := cas.Digest(g)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, first.Success)
}

func TestValidate_UpdateNodeIDChangeRejected(t *testing.T) {
	g := baseGraph(t)
	r := Validate(g, &patch.Patch{Ops: []patch.Op{
		patch.UpdateNode{ID: "c1", Set: map[string]any{"id": "other"}},
	}})
	require.False(t, r.Success)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, CodeConstraintViolation, r.Errors[0].Code)
	assert.Equal(t, "id", r.Errors[0].Field)
	assert.Equal(t, 0, r.Errors[0].OpIndex)
}

func TestValidate_EndpointsAddedEarlierInPatch(t *testing.T) {
	g := baseGraph(t)
	p := &patch.Patch{Ops: []patch.Op{
		patch.AddNode{Node: graph.NewNode("l1", graph.TypeLocation, map[string]any{"name": "Dock"})},
		patch.AddEdge{Edge: &graph.Edge{Type: graph.EdgeLocatedAt, From: "s1", To: "l1"}},
	}}
	r := Validate(g, p)
	assert.True(t, r.Success, "%v", r.Errors)
	assert.True(t, IsPatchValid(g, p))

	// The same edge before the node exists is a dangling reference.
	reversed := &patch.Patch{Ops: []patch.Op{p.Ops[1], p.Ops[0]}}
	r = Validate(g, reversed)
	assert.Equal(t, []Code{CodeFKIntegrity}, codes(r))
}

func TestValidate_EdgeLegality(t *testing.T) {
	g := baseGraph(t)
	r := Validate(g, &patch.Patch{Ops: []patch.Op{
		patch.AddEdge{Edge: &graph.Edge{Type: graph.EdgeLocatedAt, From: "c1", To: "s1"}},
		patch.AddEdge{Edge: &graph.Edge{Type: "TELEPORTS_TO", From: "s1", To: "c1"}},
	}})
	assert.Equal(t, []Code{CodeInvalidEdgeSource, CodeInvalidEdgeTarget, CodeConstraintViolation}, codes(r))
	assert.Equal(t, 0, r.Errors[0].OpIndex)
	assert.Equal(t, 1, r.Errors[2].OpIndex)
}

func TestValidate_FieldConstraints(t *testing.T) {
	g := baseGraph(t)
	cases := []struct {
		name  string
		op    patch.Op
		code  Code
		field string
	}{
		{"act above range", patch.UpdateNode{ID: "s1", Set: map[string]any{"act": 6}}, CodeOutOfRange, "act"},
		{"order below one", patch.UpdateNode{ID: "s1", Set: map[string]any{"order_index": 0}}, CodeOutOfRange, "order_index"},
		{"bad enum", patch.UpdateNode{ID: "s1", Set: map[string]any{"int_ext": "OUTSIDE"}}, CodeConstraintViolation, "int_ext"},
		{"empty name", patch.UpdateNode{ID: "c1", Set: map[string]any{"name": ""}}, CodeConstraintViolation, "name"},
		{"not an int", patch.UpdateNode{ID: "s1", Set: map[string]any{"act": "two"}}, CodeConstraintViolation, "act"},
		{"unset required", patch.UpdateNode{ID: "c1", Unset: []string{"name"}}, CodeConstraintViolation, "name"},
		{"dangling beat ref", patch.UpdateNode{ID: "s1", Set: map[string]any{"beat_id": "b99"}}, CodeFKIntegrity, "beat_id"},
		{"beat ref to wrong type", patch.UpdateNode{ID: "s1", Set: map[string]any{"beat_id": "c1"}}, CodeFKIntegrity, "beat_id"},
		{"position out of range", patch.AddNode{Node: graph.NewNode("b2", graph.TypeBeat, map[string]any{"beat_type": "Midpoint", "act": 2, "position_index": 16})}, CodeOutOfRange, "position_index"},
		{"missing required", patch.AddNode{Node: graph.NewNode("c2", graph.TypeCharacter, nil)}, CodeConstraintViolation, "name"},
		{"unknown node type", patch.AddNode{Node: &graph.Node{ID: "x", Type: "Spaceship"}}, CodeConstraintViolation, "type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Validate(g, &patch.Patch{Ops: []patch.Op{tc.op}})
			require.Len(t, r.Errors, 1, "%v", r.Errors)
			assert.Equal(t, tc.code, r.Errors[0].Code)
			assert.Equal(t, tc.field, r.Errors[0].Field)
		})
	}
}

func TestValidate_AccumulatesAcrossOps(t *testing.T) {
	g := baseGraph(t)
	r := Validate(g, &patch.Patch{Ops: []patch.Op{
		patch.AddNode{Node: graph.NewNode("c1", graph.TypeCharacter, map[string]any{"name": "Dup"})},
		patch.DeleteEdge{ID: "nope"},
		patch.UpdateEdge{ID: "e1", Status: "maybe"},
	}})
	require.Len(t, r.Errors, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{r.Errors[0].OpIndex, r.Errors[1].OpIndex, r.Errors[2].OpIndex})

	var f *Failure
	require.ErrorAs(t, r.Err(), &f)
	assert.Len(t, f.Errors, 3)
}

func TestValidate_SimulatesDeletes(t *testing.T) {
	g := baseGraph(t)
	r := Validate(g, &patch.Patch{Ops: []patch.Op{
		patch.DeleteNode{ID: "c1"},
		patch.UpdateEdge{ID: "e1", Set: map[string]any{"x": 1}},
	}})
	assert.Equal(t, []Code{CodeFKIntegrity}, codes(r))
	assert.Equal(t, "e1", r.Errors[0].EdgeID)
}

func TestValidate_DeletedRefTargetLeavesValidGraph(t *testing.T) {
	g := baseGraph(t)
	p := &patch.Patch{ID: "p", Ops: []patch.Op{patch.DeleteNode{ID: "b1"}}}
	require.True(t, Validate(g, p).Success)

	out, err := patch.Apply(g, p)
	require.NoError(t, err)
	r := ValidateGraph(out)
	assert.True(t, r.Success, "%v", r.Errors)
}

func TestValidate_BatchSeesDeletesFirst(t *testing.T) {
	g := baseGraph(t)
	r := Validate(g, &patch.Patch{Ops: []patch.Op{
		patch.BatchEdge{
			Adds:    []*graph.Edge{{Type: graph.EdgeFeaturesCharacter, From: "s1", To: "c1"}},
			Deletes: []patch.DeleteEdge{{ID: "e1"}},
		},
	}})
	assert.True(t, r.Success, "%v", r.Errors)
}

func TestValidateGraph(t *testing.T) {
	g := baseGraph(t)
	assert.True(t, ValidateGraph(g).Success)

	g.Edges = append(g.Edges,
		&graph.Edge{ID: "e1", Type: graph.EdgeFeaturesCharacter, From: "s1", To: "c1"},
		&graph.Edge{ID: "e3", Type: graph.EdgeOwns, From: "c1", To: "gone"},
	)
	bad := graph.NewNode("s2", graph.TypeScene, map[string]any{"heading": "EXT. ROAD", "act": 0})
	g.ReplaceNode(bad)

	r := ValidateGraph(g)
	require.False(t, r.Success)
	assert.True(t, r.HasCode(CodeOutOfRange))
	assert.True(t, r.HasCode(CodeFKIntegrity))
	assert.True(t, r.HasCode(CodeConstraintViolation))
}
