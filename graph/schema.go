package graph

import "sort"

// FieldKind describes the value shape of a node field.
type FieldKind string

const (
	KindString     FieldKind = "string"
	KindInt        FieldKind = "int"
	KindBool       FieldKind = "bool"
	KindEnum       FieldKind = "enum"
	KindRef        FieldKind = "ref"
	KindStringList FieldKind = "string_list"
)

// FieldSpec constrains a single field of a node type.
type FieldSpec struct {
	Kind     FieldKind
	Required bool

	// String bounds (KindString).
	MinLen int
	MaxLen int

	// Numeric bounds (KindInt). Nil means unbounded.
	Min *int
	Max *int

	// Allowed values (KindEnum).
	Enum []string

	// Target node type (KindRef).
	RefType NodeType
}

// NodeSchema lists the known fields of a node type.
type NodeSchema struct {
	Type   NodeType
	Fields map[string]FieldSpec
}

// FieldNames returns the schema's field names in sorted order.
func (s NodeSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EdgeRule declares which node types an edge type may connect.
type EdgeRule struct {
	Type EdgeType
	From []NodeType
	To   []NodeType
}

// AllowsFrom reports whether t is a legal source type.
func (r EdgeRule) AllowsFrom(t NodeType) bool {
	return containsType(r.From, t)
}

// AllowsTo reports whether t is a legal target type.
func (r EdgeRule) AllowsTo(t NodeType) bool {
	return containsType(r.To, t)
}

func containsType(types []NodeType, t NodeType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func intp(v int) *int { return &v }

func str(min, max int) FieldSpec {
	return FieldSpec{Kind: KindString, MinLen: min, MaxLen: max}
}

func reqStr(min, max int) FieldSpec {
	return FieldSpec{Kind: KindString, Required: true, MinLen: min, MaxLen: max}
}

func intRange(min, max *int) FieldSpec {
	return FieldSpec{Kind: KindInt, Min: min, Max: max}
}

func enum(values ...string) FieldSpec {
	return FieldSpec{Kind: KindEnum, Enum: values}
}

// Bounds of the structural integers shared by beats, story beats, and scenes.
const (
	MinAct      = 1
	MaxAct      = 5
	MinPosition = 1
	MaxPosition = 15
	MinOrder    = 1
)

// BeatTypes are the template slots a Beat node may occupy.
var BeatTypes = []string{
	"OpeningImage",
	"ThemeStated",
	"Setup",
	"Catalyst",
	"Debate",
	"BreakIntoTwo",
	"BStory",
	"FunAndGames",
	"Midpoint",
	"BadGuysCloseIn",
	"AllIsLost",
	"DarkNightOfTheSoul",
	"BreakIntoThree",
	"Finale",
	"FinalImage",
}

var schemas = map[NodeType]NodeSchema{
	TypeCharacter: {Type: TypeCharacter, Fields: map[string]FieldSpec{
		"name":        reqStr(1, 100),
		"description": str(0, 2000),
		"archetype":   str(0, 100),
		"traits":      {Kind: KindStringList},
	}},
	TypeLocation: {Type: TypeLocation, Fields: map[string]FieldSpec{
		"name":        reqStr(1, 100),
		"description": str(0, 2000),
	}},
	TypeSetting: {Type: TypeSetting, Fields: map[string]FieldSpec{
		"name":        reqStr(1, 100),
		"description": str(0, 2000),
		"time_period": str(0, 100),
	}},
	TypeObject: {Type: TypeObject, Fields: map[string]FieldSpec{
		"name":        reqStr(1, 100),
		"description": str(0, 2000),
	}},
	TypeScene: {Type: TypeScene, Fields: map[string]FieldSpec{
		"heading":        reqStr(1, 200),
		"scene_overview": str(0, 4000),
		"beat_id":        {Kind: KindRef, RefType: TypeBeat},
		"order_index":    intRange(intp(MinOrder), nil),
		"act":            intRange(intp(MinAct), intp(MaxAct)),
		"int_ext":        enum("INT", "EXT", "INT/EXT"),
		"time_of_day":    enum("DAY", "NIGHT", "DAWN", "DUSK", "CONTINUOUS"),
		"status":         enum("draft", "revised", "final"),
	}},
	TypeBeat: {Type: TypeBeat, Fields: map[string]FieldSpec{
		"beat_type":      {Kind: KindEnum, Required: true, Enum: BeatTypes},
		"act":            {Kind: KindInt, Required: true, Min: intp(MinAct), Max: intp(MaxAct)},
		"position_index": {Kind: KindInt, Required: true, Min: intp(MinPosition), Max: intp(MaxPosition)},
		"guidance":       str(0, 2000),
		"notes":          str(0, 2000),
		"status":         enum("empty", "partial", "realized"),
	}},
	TypeStoryBeat: {Type: TypeStoryBeat, Fields: map[string]FieldSpec{
		"title":       reqStr(1, 200),
		"summary":     str(0, 2000),
		"act":         intRange(intp(MinAct), intp(MaxAct)),
		"order_index": intRange(intp(MinOrder), nil),
		"intent":      enum("plot", "character", "tone"),
		"priority":    enum("low", "medium", "high"),
		"status":      enum("proposed", "approved"),
	}},
	TypeTheme: {Type: TypeTheme, Fields: map[string]FieldSpec{
		"statement": reqStr(1, 300),
		"notes":     str(0, 2000),
	}},
	TypeMotif: {Type: TypeMotif, Fields: map[string]FieldSpec{
		"name":        reqStr(1, 100),
		"description": str(0, 2000),
	}},
	TypeIdea: {Type: TypeIdea, Fields: map[string]FieldSpec{
		"title":       reqStr(1, 200),
		"description": str(0, 2000),
		"source":      enum("user", "ai"),
	}},
	TypeLogline: {Type: TypeLogline, Fields: map[string]FieldSpec{
		"text": reqStr(1, 500),
	}},
	TypeGenreTone: {Type: TypeGenreTone, Fields: map[string]FieldSpec{
		"genre": reqStr(1, 100),
		"tone":  str(0, 200),
		"notes": str(0, 2000),
	}},
}

var edgeRules = map[EdgeType]EdgeRule{
	EdgeFeaturesCharacter: {Type: EdgeFeaturesCharacter, From: []NodeType{TypeScene}, To: []NodeType{TypeCharacter}},
	EdgeLocatedAt:         {Type: EdgeLocatedAt, From: []NodeType{TypeScene}, To: []NodeType{TypeLocation}},
	EdgeFeaturesObject:    {Type: EdgeFeaturesObject, From: []NodeType{TypeScene}, To: []NodeType{TypeObject}},
	EdgeAlignsWith:        {Type: EdgeAlignsWith, From: []NodeType{TypeStoryBeat}, To: []NodeType{TypeBeat}},
	EdgeSatisfiedBy:       {Type: EdgeSatisfiedBy, From: []NodeType{TypeStoryBeat}, To: []NodeType{TypeScene}},
	EdgePrecedes:          {Type: EdgePrecedes, From: []NodeType{TypeStoryBeat}, To: []NodeType{TypeStoryBeat}},
	EdgeInvolves:          {Type: EdgeInvolves, From: []NodeType{TypeStoryBeat}, To: []NodeType{TypeCharacter}},
	EdgeExpresses:         {Type: EdgeExpresses, From: []NodeType{TypeScene, TypeStoryBeat}, To: []NodeType{TypeTheme, TypeMotif}},
	EdgePartOf:            {Type: EdgePartOf, From: []NodeType{TypeLocation}, To: []NodeType{TypeSetting, TypeLocation}},
	EdgeOwns:              {Type: EdgeOwns, From: []NodeType{TypeCharacter}, To: []NodeType{TypeObject}},
	EdgeRelatesTo:         {Type: EdgeRelatesTo, From: []NodeType{TypeCharacter}, To: []NodeType{TypeCharacter}},
	EdgeInspires: {Type: EdgeInspires, From: []NodeType{TypeIdea}, To: []NodeType{
		TypeCharacter, TypeLocation, TypeScene, TypeStoryBeat, TypeTheme, TypeMotif,
	}},
}

// SchemaFor returns the field schema of a node type.
func SchemaFor(t NodeType) (NodeSchema, bool) {
	s, ok := schemas[t]
	return s, ok
}

// RefFields returns the names of a node type's ref fields in sorted order.
func RefFields(t NodeType) []string {
	var out []string
	for _, name := range schemas[t].FieldNames() {
		if schemas[t].Fields[name].Kind == KindRef {
			out = append(out, name)
		}
	}
	return out
}

// RuleFor returns the endpoint rule of an edge type.
func RuleFor(t EdgeType) (EdgeRule, bool) {
	r, ok := edgeRules[t]
	return r, ok
}

// AllEdgeTypes lists every declared edge type in sorted order.
func AllEdgeTypes() []EdgeType {
	out := make([]EdgeType, 0, len(edgeRules))
	for t := range edgeRules {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
