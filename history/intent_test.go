package history

import (
	"testing"

	"github.com/kobst/project-apollo-sub005/graph"
)

func TestDescribe_AddedNodes(t *testing.T) {
	a := graph.NewState()
	b := a.Clone()
	b.ReplaceNode(graph.NewNode("c1", graph.TypeCharacter, map[string]any{"name": "Mara"}))

	got := Describe(DiffStates(a, b))
	if got != `Add Character "Mara"` {
		t.Errorf("expected 'Add Character \"Mara\"', got %q", got)
	}

	b.ReplaceNode(graph.NewNode("c2", graph.TypeCharacter, map[string]any{"name": "Ode"}))
	b.ReplaceNode(graph.NewNode("c3", graph.TypeCharacter, map[string]any{"name": "Pell"}))
	got = Describe(DiffStates(a, b))
	if got != `Add Character "Mara", Character "Ode" and others` {
		t.Errorf("unexpected description %q", got)
	}
}

func TestDescribe_Rework(t *testing.T) {
	a := graph.NewState()
	a.ReplaceNode(graph.NewNode("l1", graph.TypeLocation, map[string]any{"name": "Mill"}))
	b := graph.NewState()
	b.ReplaceNode(graph.NewNode("l2", graph.TypeLocation, map[string]any{"name": "Barn"}))

	got := Describe(DiffStates(a, b))
	if got != `Rework Location "Barn"` {
		t.Errorf("expected 'Rework Location \"Barn\"', got %q", got)
	}
}

func TestDescribe_UpdatesAndEdges(t *testing.T) {
	a := graph.NewState()
	a.ReplaceNode(graph.NewNode("s1", graph.TypeScene, map[string]any{"heading": "INT. MILL", "order_index": 1}))
	a.ReplaceNode(graph.NewNode("c1", graph.TypeCharacter, map[string]any{"name": "Mara"}))

	b := a.Clone()
	b.ReplaceNode(graph.NewNode("s1", graph.TypeScene, map[string]any{"heading": "INT. MILL", "order_index": 2}))
	if got := Describe(DiffStates(a, b)); got != "Update Scene s1" {
		t.Errorf("expected 'Update Scene s1', got %q", got)
	}

	c := a.Clone()
	c.Edges = append(c.Edges, &graph.Edge{ID: "e1", Type: graph.EdgeFeaturesCharacter, From: "s1", To: "c1"})
	if got := Describe(DiffStates(a, c)); got != "Connect s1 -> c1" {
		t.Errorf("expected 'Connect s1 -> c1', got %q", got)
	}
	if got := Describe(DiffStates(c, a)); got != "Disconnect s1 -> c1" {
		t.Errorf("expected 'Disconnect s1 -> c1', got %q", got)
	}
	if got := Describe(DiffStates(a, a)); got != "No changes" {
		t.Errorf("expected 'No changes', got %q", got)
	}
}
