// Package graph provides the in-memory story graph: typed nodes, typed edges,
// and the snapshot state that versions own.
package graph

import (
	"encoding/json"
	"fmt"
	"math"
)

// NodeType is the discriminant of a node. The set is closed; see AllNodeTypes.
type NodeType string

const (
	TypeCharacter NodeType = "Character"
	TypeLocation  NodeType = "Location"
	TypeSetting   NodeType = "Setting"
	TypeObject    NodeType = "Object"
	TypeScene     NodeType = "Scene"
	TypeBeat      NodeType = "Beat"
	TypeStoryBeat NodeType = "StoryBeat"
	TypeTheme     NodeType = "Theme"
	TypeMotif     NodeType = "Motif"
	TypeIdea      NodeType = "Idea"
	TypeLogline   NodeType = "Logline"
	TypeGenreTone NodeType = "GenreTone"
)

// AllNodeTypes lists every node type in a stable order.
var AllNodeTypes = []NodeType{
	TypeCharacter,
	TypeLocation,
	TypeSetting,
	TypeObject,
	TypeScene,
	TypeBeat,
	TypeStoryBeat,
	TypeTheme,
	TypeMotif,
	TypeIdea,
	TypeLogline,
	TypeGenreTone,
}

// Valid reports whether t is one of the declared node types.
func (t NodeType) Valid() bool {
	_, ok := schemas[t]
	return ok
}

// EdgeType represents the type of relationship between nodes.
type EdgeType string

const (
	EdgeFeaturesCharacter EdgeType = "FEATURES_CHARACTER" // Scene -> Character
	EdgeLocatedAt         EdgeType = "LOCATED_AT"         // Scene -> Location
	EdgeFeaturesObject    EdgeType = "FEATURES_OBJECT"    // Scene -> Object
	EdgeAlignsWith        EdgeType = "ALIGNS_WITH"        // StoryBeat -> Beat
	EdgeSatisfiedBy       EdgeType = "SATISFIED_BY"       // StoryBeat -> Scene
	EdgePrecedes          EdgeType = "PRECEDES"           // StoryBeat -> StoryBeat
	EdgeInvolves          EdgeType = "INVOLVES"           // StoryBeat -> Character
	EdgeExpresses         EdgeType = "EXPRESSES"          // Scene|StoryBeat -> Theme|Motif
	EdgePartOf            EdgeType = "PART_OF"            // Location -> Setting|Location
	EdgeOwns              EdgeType = "OWNS"               // Character -> Object
	EdgeRelatesTo         EdgeType = "RELATES_TO"         // Character -> Character
	EdgeInspires          EdgeType = "INSPIRES"           // Idea -> content
)

// Provenance sources.
const (
	SourceHuman = "human"
	SourceAI    = "ai"
)

// EdgeStatus is the review state of an edge.
type EdgeStatus string

const (
	StatusProposed EdgeStatus = "proposed"
	StatusApproved EdgeStatus = "approved"
	StatusRejected EdgeStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s EdgeStatus) Valid() bool {
	switch s {
	case StatusProposed, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Reserved node fields. They live outside Fields and never change after creation.
const (
	FieldID   = "id"
	FieldType = "type"
)

// Node is a story entity. Fields holds the type-specific attributes.
type Node struct {
	ID     string
	Type   NodeType
	Fields map[string]any
}

// NewNode creates a node with a copy of the given fields.
func NewNode(id string, typ NodeType, fields map[string]any) *Node {
	return &Node{ID: id, Type: typ, Fields: CloneFields(fields)}
}

// Clone returns a copy of the node whose field values can be mutated freely.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	return &Node{ID: n.ID, Type: n.Type, Fields: CloneFields(n.Fields)}
}

// Get returns a field value.
func (n *Node) Get(field string) (any, bool) {
	v, ok := n.Fields[field]
	return v, ok
}

// String returns a string field, or "" when absent or not a string.
func (n *Node) String(field string) string {
	s, _ := n.Fields[field].(string)
	return s
}

// Int returns an integral numeric field. JSON-decoded numbers arrive as
// float64, so any numeric kind with no fractional part is accepted.
func (n *Node) Int(field string) (int, bool) {
	return AsInt(n.Fields[field])
}

// Label returns a human-readable name for the node.
func (n *Node) Label() string {
	for _, f := range []string{"name", "title", "heading", "statement", "text", "genre", "beat_type"} {
		if s := n.String(f); s != "" {
			return s
		}
	}
	return n.ID
}

// MarshalJSON flattens the node into a single object: {"id", "type", fields...}.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Fields)+2)
	for k, v := range n.Fields {
		out[k] = v
	}
	out[FieldID] = n.ID
	out[FieldType] = string(n.Type)
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat form written by MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, _ := raw[FieldID].(string)
	typ, _ := raw[FieldType].(string)
	if id == "" {
		return fmt.Errorf("node missing %q", FieldID)
	}
	if typ == "" {
		return fmt.Errorf("node %s missing %q", id, FieldType)
	}
	delete(raw, FieldID)
	delete(raw, FieldType)
	n.ID = id
	n.Type = NodeType(typ)
	n.Fields = raw
	return nil
}

// EdgeKey is the uniqueness key of an edge.
type EdgeKey struct {
	Type EdgeType `json:"type"`
	From string   `json:"from"`
	To   string   `json:"to"`
}

func (k EdgeKey) String() string {
	return fmt.Sprintf("%s(%s -> %s)", k.Type, k.From, k.To)
}

// Provenance records where an edge came from.
type Provenance struct {
	Source  string `json:"source"`
	PatchID string `json:"patchId,omitempty"`
}

// Edge is a typed, directed relation between two nodes.
type Edge struct {
	ID         string         `json:"id,omitempty"`
	Type       EdgeType       `json:"type"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Properties map[string]any `json:"properties,omitempty"`
	Provenance *Provenance    `json:"provenance,omitempty"`
	Status     EdgeStatus     `json:"status,omitempty"`
	CreatedAt  int64          `json:"createdAt,omitempty"`
	UpdatedAt  int64          `json:"updatedAt,omitempty"`
}

// Key returns the (type, from, to) triple.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{Type: e.Type, From: e.From, To: e.To}
}

// Touches reports whether the edge has nodeID as an endpoint.
func (e *Edge) Touches(nodeID string) bool {
	return e.From == nodeID || e.To == nodeID
}

// Clone returns a copy of the edge with its own properties map.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := *e
	c.Properties = CloneFields(e.Properties)
	if e.Provenance != nil {
		p := *e.Provenance
		c.Provenance = &p
	}
	return &c
}

// CloneFields copies a field map, recursing into nested maps and slices.
func CloneFields(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneFields(val)
	case []any:
		c := make([]any, len(val))
		for i, x := range val {
			c[i] = cloneValue(x)
		}
		return c
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// AsInt converts a numeric value to int when it has no fractional part.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
