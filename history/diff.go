package history

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"

	"github.com/kobst/project-apollo-sub005/graph"
)

// FieldChange is one field that differs between two versions of a node.
// Before or After is nil when the field is absent on that side.
type FieldChange struct {
	Field  string `json:"field"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// NodeChange lists the field differences of a node present on both sides.
type NodeChange struct {
	ID      string         `json:"id"`
	Type    graph.NodeType `json:"type"`
	Changes []FieldChange  `json:"changes"`
}

// NodeDiff groups node differences.
type NodeDiff struct {
	Added    []*graph.Node `json:"added"`
	Removed  []*graph.Node `json:"removed"`
	Modified []NodeChange  `json:"modified"`
}

// EdgeDiff groups edge differences. Edges are matched by (type, from, to).
type EdgeDiff struct {
	Added   []*graph.Edge `json:"added"`
	Removed []*graph.Edge `json:"removed"`
}

// Summary provides aggregate counts.
type Summary struct {
	NodesAdded    int `json:"nodesAdded"`
	NodesRemoved  int `json:"nodesRemoved"`
	NodesModified int `json:"nodesModified"`
	EdgesAdded    int `json:"edgesAdded"`
	EdgesRemoved  int `json:"edgesRemoved"`
}

// DiffResult is the difference between two snapshots.
type DiffResult struct {
	From    string   `json:"from,omitempty"`
	To      string   `json:"to,omitempty"`
	Nodes   NodeDiff `json:"nodes"`
	Edges   EdgeDiff `json:"edges"`
	Summary Summary  `json:"summary"`
}

// Empty reports whether the two sides are identical.
func (d *DiffResult) Empty() bool {
	return len(d.Nodes.Added) == 0 && len(d.Nodes.Removed) == 0 &&
		len(d.Nodes.Modified) == 0 && len(d.Edges.Added) == 0 && len(d.Edges.Removed) == 0
}

// Diff compares two versions. Either side may be a branch name, version ID,
// or unique prefix.
func (h *History) Diff(from, to string) (*DiffResult, error) {
	fromID, err := h.Resolve(from)
	if err != nil {
		return nil, err
	}
	toID, err := h.Resolve(to)
	if err != nil {
		return nil, err
	}
	d := DiffStates(h.Versions[fromID].Graph, h.Versions[toID].Graph)
	d.From = fromID
	d.To = toID
	return d, nil
}

// DiffStates compares two snapshots. Output lists are sorted by node ID or
// edge triple.
func DiffStates(a, b *graph.State) *DiffResult {
	d := &DiffResult{
		Nodes: NodeDiff{Added: []*graph.Node{}, Removed: []*graph.Node{}, Modified: []NodeChange{}},
		Edges: EdgeDiff{Added: []*graph.Edge{}, Removed: []*graph.Edge{}},
	}

	for _, id := range b.NodeIDs() {
		after := b.Node(id)
		before := a.Node(id)
		if before == nil {
			d.Nodes.Added = append(d.Nodes.Added, after)
			continue
		}
		if before == after {
			continue
		}
		if changes := diffFields(before, after); len(changes) > 0 {
			d.Nodes.Modified = append(d.Nodes.Modified, NodeChange{ID: id, Type: after.Type, Changes: changes})
		}
	}
	for _, id := range a.NodeIDs() {
		if !b.HasNode(id) {
			d.Nodes.Removed = append(d.Nodes.Removed, a.Node(id))
		}
	}

	aKeys := edgeSet(a)
	bKeys := edgeSet(b)
	for k, e := range bKeys {
		if _, ok := aKeys[k]; !ok {
			d.Edges.Added = append(d.Edges.Added, e)
		}
	}
	for k, e := range aKeys {
		if _, ok := bKeys[k]; !ok {
			d.Edges.Removed = append(d.Edges.Removed, e)
		}
	}
	sortEdges(d.Edges.Added)
	sortEdges(d.Edges.Removed)

	d.Summary = Summary{
		NodesAdded:    len(d.Nodes.Added),
		NodesRemoved:  len(d.Nodes.Removed),
		NodesModified: len(d.Nodes.Modified),
		EdgesAdded:    len(d.Edges.Added),
		EdgesRemoved:  len(d.Edges.Removed),
	}
	return d
}

func diffFields(before, after *graph.Node) []FieldChange {
	var changes []FieldChange
	if before.Type != after.Type {
		changes = append(changes, FieldChange{Field: graph.FieldType, Before: string(before.Type), After: string(after.Type)})
	}
	names := make(map[string]bool, len(before.Fields)+len(after.Fields))
	for k := range before.Fields {
		names[k] = true
	}
	for k := range after.Fields {
		names[k] = true
	}
	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		bv, inBefore := before.Fields[k]
		av, inAfter := after.Fields[k]
		if inBefore && inAfter && sameValue(bv, av) {
			continue
		}
		changes = append(changes, FieldChange{Field: k, Before: bv, After: av})
	}
	return changes
}

// sameValue compares field values by their JSON encoding, so an int and the
// float64 it decodes to after a storage round trip compare equal.
func sameValue(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ab, bb)
}

func edgeSet(g *graph.State) map[graph.EdgeKey]*graph.Edge {
	m := make(map[graph.EdgeKey]*graph.Edge, len(g.Edges))
	for _, e := range g.Edges {
		m[e.Key()] = e
	}
	return m
}

func sortEdges(edges []*graph.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
}
