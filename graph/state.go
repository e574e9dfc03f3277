package graph

import "sort"

// State is a snapshot of a story graph.
//
// A State attached to a version is never written again. Clone copies the
// containers only; callers that need to change a node or edge must replace
// the pointer with a fresh copy (see ReplaceNode, ReplaceEdge).
type State struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`
}

// NewState creates an empty graph.
func NewState() *State {
	return &State{
		Nodes: make(map[string]*Node),
		Edges: []*Edge{},
	}
}

// Clone returns a structural copy sharing node and edge values with g.
func (g *State) Clone() *State {
	c := &State{
		Nodes: make(map[string]*Node, len(g.Nodes)),
		Edges: make([]*Edge, len(g.Edges)),
	}
	for id, n := range g.Nodes {
		c.Nodes[id] = n
	}
	copy(c.Edges, g.Edges)
	return c
}

// Node retrieves a node by ID, or nil.
func (g *State) Node(id string) *Node {
	return g.Nodes[id]
}

// HasNode reports whether a node with the given ID exists.
func (g *State) HasNode(id string) bool {
	_, ok := g.Nodes[id]
	return ok
}

// ReplaceNode stores n under its ID.
func (g *State) ReplaceNode(n *Node) {
	g.Nodes[n.ID] = n
}

// EdgeIndexByID returns the position of the edge with the given ID, or -1.
func (g *State) EdgeIndexByID(id string) int {
	for i, e := range g.Edges {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// EdgeIndexByKey returns the position of the edge with the given triple, or -1.
func (g *State) EdgeIndexByKey(k EdgeKey) int {
	for i, e := range g.Edges {
		if e.Type == k.Type && e.From == k.From && e.To == k.To {
			return i
		}
	}
	return -1
}

// EdgeByID retrieves an edge by ID, or nil.
func (g *State) EdgeByID(id string) *Edge {
	if i := g.EdgeIndexByID(id); i >= 0 {
		return g.Edges[i]
	}
	return nil
}

// EdgeByKey retrieves an edge by triple, or nil.
func (g *State) EdgeByKey(k EdgeKey) *Edge {
	if i := g.EdgeIndexByKey(k); i >= 0 {
		return g.Edges[i]
	}
	return nil
}

// ReplaceEdge stores e at position i.
func (g *State) ReplaceEdge(i int, e *Edge) {
	g.Edges[i] = e
}

// EdgesFrom returns edges leaving id. An empty edgeType matches all types.
func (g *State) EdgesFrom(id string, edgeType EdgeType) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.From == id && (edgeType == "" || e.Type == edgeType) {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns edges arriving at id. An empty edgeType matches all types.
func (g *State) EdgesTo(id string, edgeType EdgeType) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.To == id && (edgeType == "" || e.Type == edgeType) {
			out = append(out, e)
		}
	}
	return out
}

// NodesOfType returns nodes of a type sorted by ID.
func (g *State) NodesOfType(t NodeType) []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodeIDs returns every node ID in sorted order.
func (g *State) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Neighbors returns the IDs of nodes connected to id in either direction.
func (g *State) Neighbors(id string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.Edges {
		var other string
		switch id {
		case e.From:
			other = e.To
		case e.To:
			other = e.From
		default:
			continue
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	sort.Strings(out)
	return out
}

// NodeCount returns the number of nodes.
func (g *State) NodeCount() int {
	return len(g.Nodes)
}

// EdgeCount returns the number of edges.
func (g *State) EdgeCount() int {
	return len(g.Edges)
}
