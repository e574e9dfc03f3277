package coverage

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kobst/project-apollo-sub005/beats"
	"github.com/kobst/project-apollo-sub005/graph"
)

// Tier orders gaps from foundational to cosmetic.
type Tier int

const (
	TierFoundations Tier = 1
	TierStructure   Tier = 2
	TierRealization Tier = 3
	TierDetail      Tier = 4
)

// Severity ranks gaps within a tier.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Phase is the authoring stage; it caps the tiers reported.
type Phase string

const (
	PhasePremise Phase = "premise"
	PhaseOutline Phase = "outline"
	PhaseDraft   Phase = "draft"
)

// MaxTier returns the deepest tier reported in a phase.
func (p Phase) MaxTier() Tier {
	switch p {
	case PhasePremise:
		return TierFoundations
	case PhaseOutline:
		return TierStructure
	}
	return TierDetail
}

// Valid reports whether p is a known phase. The empty phase means draft.
func (p Phase) Valid() bool {
	switch p {
	case "", PhasePremise, PhaseOutline, PhaseDraft:
		return true
	}
	return false
}

// Gap types.
const (
	GapMissingLogline       = "missing_logline"
	GapMissingGenreTone     = "missing_genre_tone"
	GapMissingSetting       = "missing_setting"
	GapMissingProtagonist   = "missing_protagonist"
	GapMissingBeat          = "missing_beat"
	GapUnalignedBeat        = "unaligned_beat"
	GapUnalignedStoryBeat   = "unaligned_story_beat"
	GapUnrealizedBeat       = "unrealized_beat"
	GapUnrealizedStoryBeat  = "unrealized_story_beat"
	GapUnderspecifiedScene  = "underspecified_scene"
	GapUnderspecifiedChar   = "underspecified_character"
	GapUnderspecifiedLocale = "underspecified_location"
)

// Position is where a gap sits in the story structure. Zero fields are
// unknown and sort after known ones.
type Position struct {
	Act   int `json:"act,omitempty"`
	Index int `json:"index,omitempty"`
	Order int `json:"order,omitempty"`
}

// Gap is a derived fact about missing or underspecified structure.
type Gap struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Tier        Tier     `json:"tier"`
	Severity    Severity `json:"severity"`
	ScopeRefs   []string `json:"scopeRefs,omitempty"`
	Description string   `json:"description"`
	Position    Position `json:"position"`
}

// Options tune gap derivation.
type Options struct {
	Phase    Phase
	Template *beats.Template
}

// DeriveGaps lists the gaps of g, ordered by tier, then severity (highest
// first), then structural position, then ID.
func DeriveGaps(g *graph.State, opts Options) []Gap {
	tpl := opts.Template
	if tpl == nil {
		tpl = beats.Default()
	}
	maxTier := opts.Phase.MaxTier()

	d := &deriver{g: g, tpl: tpl}
	d.foundations()
	if maxTier >= TierStructure {
		d.slots(maxTier)
		d.storyBeats(maxTier)
	}
	if maxTier >= TierDetail {
		d.details()
	}

	gaps := d.gaps[:0]
	for _, gap := range d.gaps {
		if gap.Tier <= maxTier {
			gaps = append(gaps, gap)
		}
	}
	sortGaps(gaps)
	return gaps
}

// NextGap returns the most important gap, or nil when there is none.
func NextGap(g *graph.State, opts Options) *Gap {
	gaps := DeriveGaps(g, opts)
	if len(gaps) == 0 {
		return nil
	}
	return &gaps[0]
}

type deriver struct {
	g    *graph.State
	tpl  *beats.Template
	gaps []Gap
}

func (d *deriver) add(typ string, tier Tier, sev Severity, subject string, pos Position, refs []string, format string, args ...any) {
	d.gaps = append(d.gaps, Gap{
		ID:          typ + ":" + subject,
		Type:        typ,
		Tier:        tier,
		Severity:    sev,
		ScopeRefs:   refs,
		Description: fmt.Sprintf(format, args...),
		Position:    pos,
	})
}

func (d *deriver) foundations() {
	if len(d.g.NodesOfType(graph.TypeLogline)) == 0 {
		d.add(GapMissingLogline, TierFoundations, SeverityHigh, "story", Position{}, nil, "The story has no logline.")
	}
	if len(d.g.NodesOfType(graph.TypeCharacter)) == 0 {
		d.add(GapMissingProtagonist, TierFoundations, SeverityHigh, "story", Position{}, nil, "The story has no characters; start with a protagonist.")
	}
	if len(d.g.NodesOfType(graph.TypeGenreTone)) == 0 {
		d.add(GapMissingGenreTone, TierFoundations, SeverityMedium, "story", Position{}, nil, "The story has no genre or tone.")
	}
	if len(d.g.NodesOfType(graph.TypeSetting)) == 0 {
		d.add(GapMissingSetting, TierFoundations, SeverityMedium, "story", Position{}, nil, "The story has no setting.")
	}
}

func (d *deriver) slots(maxTier Tier) {
	for _, st := range ClassifySlots(d.g, d.tpl) {
		pos := Position{Act: st.Slot.Act, Index: st.Slot.Position}
		name := st.Slot.Name
		if name == "" {
			name = st.Slot.Type
		}
		switch st.State {
		case SlotMissing:
			d.add(GapMissingBeat, TierStructure, SeverityHigh, st.Slot.Type, pos, nil,
				"No beat occupies the %s slot.", name)
		case SlotUnaligned:
			d.add(GapUnalignedBeat, TierStructure, SeverityMedium, st.BeatID, pos, []string{st.BeatID},
				"No story beat is aligned with %s.", name)
		case SlotRealizedWithoutDetail:
			if maxTier >= TierRealization {
				d.add(GapUnrealizedBeat, TierRealization, SeverityMedium, st.BeatID, pos,
					append([]string{st.BeatID}, st.StoryBeatIDs...),
					"%s has story beats but no scene realizes them.", name)
			}
		}
	}
}

func (d *deriver) storyBeats(maxTier Tier) {
	for _, sb := range d.g.NodesOfType(graph.TypeStoryBeat) {
		pos := d.storyBeatPosition(sb)
		title := sb.Label()
		if len(d.g.EdgesFrom(sb.ID, graph.EdgeAlignsWith)) == 0 {
			d.add(GapUnalignedStoryBeat, TierStructure, SeverityLow, sb.ID, pos, []string{sb.ID},
				"Story beat %q is not aligned with the structure.", title)
		}
		if maxTier >= TierRealization && len(d.g.EdgesFrom(sb.ID, graph.EdgeSatisfiedBy)) == 0 {
			d.add(GapUnrealizedStoryBeat, TierRealization, SeverityLow, sb.ID, pos, []string{sb.ID},
				"Story beat %q has no scene.", title)
		}
	}
}

func (d *deriver) details() {
	for _, sc := range d.g.NodesOfType(graph.TypeScene) {
		var missing []string
		if sc.String("scene_overview") == "" {
			missing = append(missing, "overview")
		}
		if len(d.g.EdgesFrom(sc.ID, graph.EdgeFeaturesCharacter)) == 0 {
			missing = append(missing, "characters")
		}
		if len(d.g.EdgesFrom(sc.ID, graph.EdgeLocatedAt)) == 0 {
			missing = append(missing, "location")
		}
		if len(missing) == 0 {
			continue
		}
		sev := SeverityLow
		if len(missing) > 1 {
			sev = SeverityMedium
		}
		d.add(GapUnderspecifiedScene, TierDetail, sev, sc.ID, d.scenePosition(sc), []string{sc.ID},
			"Scene %q is missing %s.", sc.Label(), strings.Join(missing, ", "))
	}
	for _, c := range d.g.NodesOfType(graph.TypeCharacter) {
		if c.String("description") == "" {
			d.add(GapUnderspecifiedChar, TierDetail, SeverityLow, c.ID, Position{}, []string{c.ID},
				"Character %q has no description.", c.Label())
		}
	}
	for _, l := range d.g.NodesOfType(graph.TypeLocation) {
		if l.String("description") == "" {
			d.add(GapUnderspecifiedLocale, TierDetail, SeverityLow, l.ID, Position{}, []string{l.ID},
				"Location %q has no description.", l.Label())
		}
	}
}

func beatPosition(b *graph.Node) Position {
	if b == nil {
		return Position{}
	}
	act, _ := b.Int("act")
	idx, _ := b.Int("position_index")
	return Position{Act: act, Index: idx}
}

func (d *deriver) storyBeatPosition(sb *graph.Node) Position {
	var pos Position
	edges := d.g.EdgesFrom(sb.ID, graph.EdgeAlignsWith)
	sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	if len(edges) > 0 {
		pos = beatPosition(d.g.Node(edges[0].To))
	}
	if pos.Act == 0 {
		pos.Act, _ = sb.Int("act")
	}
	pos.Order, _ = sb.Int("order_index")
	return pos
}

func (d *deriver) scenePosition(sc *graph.Node) Position {
	pos := beatPosition(d.g.Node(sc.String("beat_id")))
	if pos.Act == 0 {
		pos.Act, _ = sc.Int("act")
	}
	pos.Order, _ = sc.Int("order_index")
	return pos
}

func known(v int) int {
	if v == 0 {
		return math.MaxInt
	}
	return v
}

func sortGaps(gaps []Gap) {
	sort.SliceStable(gaps, func(i, j int) bool {
		a, b := gaps[i], gaps[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if ra, rb := a.Severity.rank(), b.Severity.rank(); ra != rb {
			return ra > rb
		}
		if x, y := known(a.Position.Act), known(b.Position.Act); x != y {
			return x < y
		}
		if x, y := known(a.Position.Index), known(b.Position.Index); x != y {
			return x < y
		}
		if x, y := known(a.Position.Order), known(b.Position.Order); x != y {
			return x < y
		}
		return a.ID < b.ID
	})
}
