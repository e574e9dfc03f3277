// Package beats describes the structural template a story is measured
// against: an ordered list of beat slots grouped into acts.
package beats

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kobst/project-apollo-sub005/graph"
	"github.com/kobst/project-apollo-sub005/patch"
)

//go:embed default.yaml
var defaultYAML []byte

// Slot is one expected beat of the template.
type Slot struct {
	Type     string `yaml:"type" json:"type"`
	Name     string `yaml:"name" json:"name"`
	Act      int    `yaml:"act" json:"act"`
	Position int    `yaml:"position" json:"position"`
	Guidance string `yaml:"guidance,omitempty" json:"guidance,omitempty"`
}

// Template is an ordered set of slots, sorted by position.
type Template struct {
	Name  string `yaml:"name" json:"name"`
	Slots []Slot `yaml:"slots" json:"slots"`
}

var (
	defaultOnce sync.Once
	defaultTpl  *Template
)

// Default returns the built-in 15-beat template. Callers must not modify it.
func Default() *Template {
	defaultOnce.Do(func() {
		t, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("beats: embedded template is invalid: %v", err))
		}
		defaultTpl = t
	})
	return defaultTpl
}

// Load reads a template from a YAML file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and checks a YAML template. Slot types must be known beat
// types; types and positions must be unique.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding template: %w", err)
	}
	if len(t.Slots) == 0 {
		return nil, fmt.Errorf("template %q has no slots", t.Name)
	}

	types := make(map[string]bool, len(t.Slots))
	positions := make(map[int]string, len(t.Slots))
	for _, s := range t.Slots {
		if !slices.Contains(graph.BeatTypes, s.Type) {
			return nil, fmt.Errorf("unknown beat type %q", s.Type)
		}
		if types[s.Type] {
			return nil, fmt.Errorf("beat type %q appears twice", s.Type)
		}
		types[s.Type] = true
		if s.Act < graph.MinAct || s.Act > graph.MaxAct {
			return nil, fmt.Errorf("slot %s: act %d outside %d-%d", s.Type, s.Act, graph.MinAct, graph.MaxAct)
		}
		if s.Position < graph.MinPosition || s.Position > graph.MaxPosition {
			return nil, fmt.Errorf("slot %s: position %d outside %d-%d", s.Type, s.Position, graph.MinPosition, graph.MaxPosition)
		}
		if other, dup := positions[s.Position]; dup {
			return nil, fmt.Errorf("slots %s and %s share position %d", other, s.Type, s.Position)
		}
		positions[s.Position] = s.Type
	}

	sort.Slice(t.Slots, func(i, j int) bool { return t.Slots[i].Position < t.Slots[j].Position })
	return &t, nil
}

// Slot returns the slot for a beat type.
func (t *Template) Slot(beatType string) (Slot, bool) {
	for _, s := range t.Slots {
		if s.Type == beatType {
			return s, true
		}
	}
	return Slot{}, false
}

// Types returns the slot types in position order.
func (t *Template) Types() []string {
	out := make([]string, len(t.Slots))
	for i, s := range t.Slots {
		out[i] = s.Type
	}
	return out
}

// Marshal encodes t in the form Parse reads.
func (t *Template) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// BeatID is the conventional node ID of the Beat occupying a slot.
func BeatID(beatType string) string {
	return "beat_" + strings.ToLower(beatType)
}

// Scaffold returns ADD_NODE ops creating one Beat node per slot.
func Scaffold(t *Template) []patch.Op {
	ops := make([]patch.Op, 0, len(t.Slots))
	for _, s := range t.Slots {
		fields := map[string]any{
			"beat_type":      s.Type,
			"act":            s.Act,
			"position_index": s.Position,
			"status":         "empty",
		}
		if s.Guidance != "" {
			fields["guidance"] = s.Guidance
		}
		ops = append(ops, patch.AddNode{Node: graph.NewNode(BeatID(s.Type), graph.TypeBeat, fields)})
	}
	return ops
}
