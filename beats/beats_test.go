package beats

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kobst/project-apollo-sub005/graph"
	"github.com/kobst/project-apollo-sub005/patch"
)

func writeTemplate(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tpl.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing template: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	tpl := Default()
	if len(tpl.Slots) != 15 {
		t.Fatalf("got %d slots, want 15", len(tpl.Slots))
	}
	if !slices.Equal(tpl.Types(), graph.BeatTypes) {
		t.Errorf("Types = %v, want %v", tpl.Types(), graph.BeatTypes)
	}

	s, ok := tpl.Slot("Midpoint")
	if !ok {
		t.Fatal("Midpoint slot missing")
	}
	if s.Act != 2 || s.Position != 9 {
		t.Errorf("Midpoint = act %d position %d, want 2/9", s.Act, s.Position)
	}
	if fi, _ := tpl.Slot("FinalImage"); fi.Act != 5 {
		t.Errorf("FinalImage act = %d, want 5", fi.Act)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown type":       "name: x\nslots:\n  - {type: Prologue, act: 1, position: 1}\n",
		"duplicate type":     "name: x\nslots:\n  - {type: Setup, act: 1, position: 1}\n  - {type: Setup, act: 1, position: 2}\n",
		"duplicate position": "name: x\nslots:\n  - {type: Setup, act: 1, position: 1}\n  - {type: Debate, act: 1, position: 1}\n",
		"act out of range":   "name: x\nslots:\n  - {type: Setup, act: 6, position: 1}\n",
		"no slots":           "name: x\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(body)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestLoad_SortsByPosition(t *testing.T) {
	path := writeTemplate(t, "name: short\nslots:\n  - {type: Finale, name: Finale, act: 3, position: 3}\n  - {type: OpeningImage, name: Open, act: 1, position: 1}\n  - {type: Midpoint, name: Mid, act: 2, position: 2}\n")

	tpl, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"OpeningImage", "Midpoint", "Finale"}
	if !slices.Equal(tpl.Types(), want) {
		t.Errorf("Types = %v, want %v", tpl.Types(), want)
	}
}

func TestScaffold_AppliesCleanly(t *testing.T) {
	ops := Scaffold(Default())
	if len(ops) != 15 {
		t.Fatalf("got %d ops, want 15", len(ops))
	}

	g, err := patch.Apply(graph.NewState(), &patch.Patch{ID: "init", Ops: ops})
	if err != nil {
		t.Fatalf("applying scaffold: %v", err)
	}
	if n := len(g.NodesOfType(graph.TypeBeat)); n != 15 {
		t.Errorf("got %d beats, want 15", n)
	}

	b := g.Node(BeatID("Catalyst"))
	if b == nil {
		t.Fatal("Catalyst beat missing")
	}
	if pos, _ := b.Int("position_index"); pos != 4 {
		t.Errorf("Catalyst position_index = %d, want 4", pos)
	}
}

func TestMarshal_ParsesBack(t *testing.T) {
	data, err := Default().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	back, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if back.Name != Default().Name || !slices.Equal(back.Slots, Default().Slots) {
		t.Errorf("round trip changed template: %+v", back)
	}
}
