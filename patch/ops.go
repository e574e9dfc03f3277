// Package patch defines the patch protocol, the only sanctioned way to change
// a story graph, and the applicator that turns a patch into a new snapshot.
package patch

import (
	"sort"

	"github.com/kobst/project-apollo-sub005/cas"
	"github.com/kobst/project-apollo-sub005/graph"
)

// OpKind is the wire tag of an operation.
type OpKind string

const (
	KindAddNode    OpKind = "ADD_NODE"
	KindUpdateNode OpKind = "UPDATE_NODE"
	KindDeleteNode OpKind = "DELETE_NODE"
	KindAddEdge    OpKind = "ADD_EDGE"
	KindDeleteEdge OpKind = "DELETE_EDGE"
	KindUpdateEdge OpKind = "UPDATE_EDGE"
	KindUpsertEdge OpKind = "UPSERT_EDGE"
	KindBatchEdge  OpKind = "BATCH_EDGE"
)

// Op is one operation of a patch. The set of implementations is closed:
// AddNode, UpdateNode, DeleteNode, AddEdge, DeleteEdge, UpdateEdge,
// UpsertEdge, BatchEdge.
type Op interface {
	Kind() OpKind
	sealed()
}

// AddNode creates a node.
type AddNode struct {
	Node *graph.Node
}

// UpdateNode merges Set over the node's fields, then removes Unset.
type UpdateNode struct {
	ID    string
	Set   map[string]any
	Unset []string
}

// DeleteNode removes a node and every edge touching it.
type DeleteNode struct {
	ID string
}

// AddEdge creates an edge. Its triple must not exist yet.
type AddEdge struct {
	Edge *graph.Edge
}

// DeleteEdge removes an edge by ID or, when ID is empty, by Key.
type DeleteEdge struct {
	ID  string
	Key *graph.EdgeKey
}

// UpdateEdge merges Set into an edge's properties, removes Unset, and
// optionally changes its status. The edge is looked up by ID only.
type UpdateEdge struct {
	ID     string
	Set    map[string]any
	Unset  []string
	Status graph.EdgeStatus
}

// UpsertEdge inserts an edge by triple or merges into the existing one.
type UpsertEdge struct {
	Edge *graph.Edge
}

// BatchEdge groups edge changes. They run deletes first, then updates, then adds.
type BatchEdge struct {
	Adds    []*graph.Edge
	Updates []UpdateEdge
	Deletes []DeleteEdge
}

func (AddNode) Kind() OpKind    { return KindAddNode }
func (UpdateNode) Kind() OpKind { return KindUpdateNode }
func (DeleteNode) Kind() OpKind { return KindDeleteNode }
func (AddEdge) Kind() OpKind    { return KindAddEdge }
func (DeleteEdge) Kind() OpKind { return KindDeleteEdge }
func (UpdateEdge) Kind() OpKind { return KindUpdateEdge }
func (UpsertEdge) Kind() OpKind { return KindUpsertEdge }
func (BatchEdge) Kind() OpKind  { return KindBatchEdge }

func (AddNode) sealed()    {}
func (UpdateNode) sealed() {}
func (DeleteNode) sealed() {}
func (AddEdge) sealed()    {}
func (DeleteEdge) sealed() {}
func (UpdateEdge) sealed() {}
func (UpsertEdge) sealed() {}
func (BatchEdge) sealed()  {}

// Metadata describes who produced a patch and why.
type Metadata struct {
	Source string `json:"source,omitempty"` // "human" | "ai" | "lint"
	Action string `json:"action,omitempty"` // e.g. "generate_scene", "autofix"
	Note   string `json:"note,omitempty"`
}

// Patch is an atomic, ordered list of operations against a base version.
type Patch struct {
	ID            string
	BaseVersionID string
	CreatedAt     int64
	Ops           []Op
	Metadata      Metadata
}

// New builds a patch with a generated ID and the current timestamp.
func New(baseVersionID string, meta Metadata, ops ...Op) *Patch {
	return &Patch{
		ID:            cas.NewPrefixedID("patch"),
		BaseVersionID: baseVersionID,
		CreatedAt:     cas.NowMs(),
		Ops:           ops,
		Metadata:      meta,
	}
}

// TouchedNodeIDs returns the node IDs the patch creates, changes, deletes, or
// connects, sorted.
func (p *Patch) TouchedNodeIDs() []string {
	set := make(map[string]bool)
	addEdge := func(e *graph.Edge) {
		if e != nil {
			set[e.From] = true
			set[e.To] = true
		}
	}
	addKey := func(d DeleteEdge) {
		if d.Key != nil {
			set[d.Key.From] = true
			set[d.Key.To] = true
		}
	}
	for _, op := range p.Ops {
		switch o := op.(type) {
		case AddNode:
			if o.Node != nil {
				set[o.Node.ID] = true
			}
		case UpdateNode:
			set[o.ID] = true
		case DeleteNode:
			set[o.ID] = true
		case AddEdge:
			addEdge(o.Edge)
		case UpsertEdge:
			addEdge(o.Edge)
		case DeleteEdge:
			addKey(o)
		case UpdateEdge:
		case BatchEdge:
			for _, e := range o.Adds {
				addEdge(e)
			}
			for _, d := range o.Deletes {
				addKey(d)
			}
		}
	}
	delete(set, "")
	return sortedKeys(set)
}

// TouchedEdgeIDs returns the edge IDs the patch references explicitly, sorted.
func (p *Patch) TouchedEdgeIDs() []string {
	set := make(map[string]bool)
	for _, op := range p.Ops {
		switch o := op.(type) {
		case AddEdge:
			if o.Edge != nil {
				set[o.Edge.ID] = true
			}
		case UpsertEdge:
			if o.Edge != nil {
				set[o.Edge.ID] = true
			}
		case DeleteEdge:
			set[o.ID] = true
		case UpdateEdge:
			set[o.ID] = true
		case BatchEdge:
			for _, e := range o.Adds {
				set[e.ID] = true
			}
			for _, u := range o.Updates {
				set[u.ID] = true
			}
			for _, d := range o.Deletes {
				set[d.ID] = true
			}
		}
	}
	delete(set, "")
	return sortedKeys(set)
}

// OpCount returns the number of primitive operations, counting each member of
// a batch separately.
func (p *Patch) OpCount() int {
	n := 0
	for _, op := range p.Ops {
		if b, ok := op.(BatchEdge); ok {
			n += len(b.Adds) + len(b.Updates) + len(b.Deletes)
			continue
		}
		n++
	}
	return n
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
