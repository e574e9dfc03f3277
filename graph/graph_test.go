package graph

import (
	"encoding/json"
	"testing"
)

func TestEveryNodeTypeHasSchema(t *testing.T) {
	for _, typ := range AllNodeTypes {
		if _, ok := SchemaFor(typ); !ok {
			t.Errorf("node type %s has no schema", typ)
		}
		if !typ.Valid() {
			t.Errorf("node type %s not reported valid", typ)
		}
	}
	if NodeType("Spaceship").Valid() {
		t.Error("undeclared node type reported valid")
	}
}

func TestEdgeRulesReferenceDeclaredTypes(t *testing.T) {
	for _, et := range AllEdgeTypes() {
		rule, _ := RuleFor(et)
		for _, nt := range append(append([]NodeType{}, rule.From...), rule.To...) {
			if !nt.Valid() {
				t.Errorf("edge %s references undeclared node type %s", et, nt)
			}
		}
	}
}

func TestNodeJSONIsFlat(t *testing.T) {
	n := NewNode("c1", TypeCharacter, map[string]any{"name": "Mara", "traits": []any{"stubborn"}})

	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if flat["id"] != "c1" || flat["type"] != "Character" || flat["name"] != "Mara" {
		t.Errorf("unexpected flat form: %s", data)
	}

	var back Node
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal node: %v", err)
	}
	if back.ID != "c1" || back.Type != TypeCharacter || back.String("name") != "Mara" {
		t.Errorf("unexpected node: %+v", back)
	}
	if _, ok := back.Fields["id"]; ok {
		t.Error("id leaked into fields")
	}
}

func TestNodeUnmarshalRequiresIDAndType(t *testing.T) {
	var n Node
	if err := json.Unmarshal([]byte(`{"type":"Character"}`), &n); err == nil {
		t.Error("expected error for missing id")
	}
	if err := json.Unmarshal([]byte(`{"id":"x"}`), &n); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestCloneSharesValuesUntilReplaced(t *testing.T) {
	g := NewState()
	g.ReplaceNode(NewNode("s1", TypeScene, map[string]any{"heading": "INT. BARN"}))
	g.Edges = append(g.Edges, &Edge{ID: "e1", Type: EdgeLocatedAt, From: "s1", To: "l1"})

	c := g.Clone()
	if c.Node("s1") != g.Node("s1") {
		t.Error("clone should share untouched nodes")
	}

	updated := c.Node("s1").Clone()
	updated.Fields["heading"] = "EXT. FIELD"
	c.ReplaceNode(updated)
	delete(c.Nodes, "missing")
	c.Edges = c.Edges[:0]

	if g.Node("s1").String("heading") != "INT. BARN" {
		t.Error("original node was mutated")
	}
	if len(g.Edges) != 1 {
		t.Error("original edge list was mutated")
	}
}

func TestNodeIntAcceptsJSONNumbers(t *testing.T) {
	n := NewNode("b1", TypeBeat, map[string]any{"act": float64(2), "position_index": 2.5})
	if v, ok := n.Int("act"); !ok || v != 2 {
		t.Errorf("Int(act) = %d, %v", v, ok)
	}
	if _, ok := n.Int("position_index"); ok {
		t.Error("fractional number accepted as int")
	}
	if _, ok := n.Int("missing"); ok {
		t.Error("missing field accepted as int")
	}
}

func TestNeighborsAndLookups(t *testing.T) {
	g := NewState()
	for _, id := range []string{"sb1", "b1", "s1"} {
		g.ReplaceNode(&Node{ID: id, Type: TypeStoryBeat})
	}
	g.Edges = append(g.Edges,
		&Edge{ID: "e1", Type: EdgeAlignsWith, From: "sb1", To: "b1"},
		&Edge{ID: "e2", Type: EdgeSatisfiedBy, From: "sb1", To: "s1"},
	)

	if got := g.Neighbors("sb1"); len(got) != 2 || got[0] != "b1" || got[1] != "s1" {
		t.Errorf("Neighbors = %v", got)
	}
	if g.EdgeByKey(EdgeKey{Type: EdgeAlignsWith, From: "sb1", To: "b1"}) == nil {
		t.Error("EdgeByKey did not find edge")
	}
	if g.EdgeByID("e2") == nil || g.EdgeByID("nope") != nil {
		t.Error("EdgeByID lookup mismatch")
	}
	if len(g.EdgesTo("b1", EdgeAlignsWith)) != 1 || len(g.EdgesFrom("sb1", "")) != 2 {
		t.Error("directional edge lookups mismatch")
	}
}
