package patch

import (
	"fmt"
	"slices"

	"github.com/kobst/project-apollo-sub005/cas"
	"github.com/kobst/project-apollo-sub005/graph"
)

// Applier applies patches to graph snapshots. The zero value is ready to use.
type Applier struct {
	// Now returns the timestamp stamped on created/updated edges (Unix ms).
	Now func() int64
	// NewID mints IDs for edges added without one.
	NewID func() string
}

var defaultApplier = &Applier{}

// Apply applies p to g with the default clock and ID generator.
func Apply(g *graph.State, p *Patch) (*graph.State, error) {
	return defaultApplier.Apply(g, p)
}

// Apply returns a new snapshot with every op of p applied in order. g is never
// modified; if any op fails the returned error is an *ApplyError naming it and
// no partial result is returned.
func (a *Applier) Apply(g *graph.State, p *Patch) (*graph.State, error) {
	if p == nil {
		return nil, fmt.Errorf("applying patch: %w", ErrMalformedOp)
	}
	out := g.Clone()
	for i, op := range p.Ops {
		if err := CheckOp(op); err != nil {
			return nil, &ApplyError{Index: i, Op: op, Err: err}
		}
		if err := a.applyOp(out, p, op); err != nil {
			return nil, &ApplyError{Index: i, Op: op, Err: err}
		}
	}
	return out, nil
}

func (a *Applier) now() int64 {
	if a.Now != nil {
		return a.Now()
	}
	return cas.NowMs()
}

func (a *Applier) newID() string {
	if a.NewID != nil {
		return a.NewID()
	}
	return cas.NewPrefixedID("edge")
}

func (a *Applier) applyOp(g *graph.State, p *Patch, op Op) error {
	switch o := op.(type) {
	case AddNode:
		return addNode(g, o)
	case UpdateNode:
		return updateNode(g, o)
	case DeleteNode:
		return deleteNode(g, o)
	case AddEdge:
		return a.addEdge(g, p, o.Edge)
	case DeleteEdge:
		return deleteEdge(g, o)
	case UpdateEdge:
		return a.updateEdge(g, o)
	case UpsertEdge:
		return a.upsertEdge(g, p, o.Edge)
	case BatchEdge:
		for j, d := range o.Deletes {
			if err := deleteEdge(g, d); err != nil {
				return fmt.Errorf("deletes[%d]: %w", j, err)
			}
		}
		for j, u := range o.Updates {
			if err := a.updateEdge(g, u); err != nil {
				return fmt.Errorf("updates[%d]: %w", j, err)
			}
		}
		for j, e := range o.Adds {
			if err := a.addEdge(g, p, e); err != nil {
				return fmt.Errorf("adds[%d]: %w", j, err)
			}
		}
		return nil
	default:
		panic(fmt.Sprintf("patch: unhandled op type %T", op))
	}
}

func addNode(g *graph.State, o AddNode) error {
	if g.HasNode(o.Node.ID) {
		return fmt.Errorf("%w: %s", ErrNodeExists, o.Node.ID)
	}
	n := o.Node.Clone()
	if n.Fields == nil {
		n.Fields = make(map[string]any)
	}
	g.ReplaceNode(n)
	return nil
}

func updateNode(g *graph.State, o UpdateNode) error {
	cur := g.Node(o.ID)
	if cur == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, o.ID)
	}
	for k := range o.Set {
		if isReserved(k) {
			return fmt.Errorf("%w: %s", ErrImmutableField, k)
		}
	}
	for _, k := range o.Unset {
		if isReserved(k) {
			return fmt.Errorf("%w: %s", ErrImmutableField, k)
		}
	}

	n := cur.Clone()
	if n.Fields == nil {
		n.Fields = make(map[string]any)
	}
	for k, v := range graph.CloneFields(o.Set) {
		n.Fields[k] = v
	}
	for _, k := range o.Unset {
		delete(n.Fields, k)
	}
	g.ReplaceNode(n)
	return nil
}

func deleteNode(g *graph.State, o DeleteNode) error {
	if !g.HasNode(o.ID) {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, o.ID)
	}
	delete(g.Nodes, o.ID)
	g.Edges = slices.DeleteFunc(g.Edges, func(e *graph.Edge) bool {
		return e.Touches(o.ID)
	})
	unsetRefs(g, o.ID)
	return nil
}

// unsetRefs removes ref fields that point at a deleted node.
func unsetRefs(g *graph.State, id string) {
	for _, nid := range g.NodeIDs() {
		n := g.Node(nid)
		fields := graph.RefFields(n.Type)
		var stale []string
		for _, f := range fields {
			if n.String(f) == id {
				stale = append(stale, f)
			}
		}
		if len(stale) == 0 {
			continue
		}
		c := n.Clone()
		for _, f := range stale {
			delete(c.Fields, f)
		}
		g.ReplaceNode(c)
	}
}

func (a *Applier) addEdge(g *graph.State, p *Patch, in *graph.Edge) error {
	if g.EdgeIndexByKey(in.Key()) >= 0 {
		return fmt.Errorf("%w: %s", ErrEdgeExists, in.Key())
	}
	if in.ID != "" && g.EdgeIndexByID(in.ID) >= 0 {
		return fmt.Errorf("%w: id %s", ErrEdgeExists, in.ID)
	}
	for _, end := range []string{in.From, in.To} {
		if !g.HasNode(end) {
			return fmt.Errorf("%w: edge endpoint %s", ErrNodeNotFound, end)
		}
	}

	e := in.Clone()
	if e.ID == "" {
		e.ID = a.newID()
	}
	if e.Provenance == nil {
		e.Provenance = &graph.Provenance{Source: provenanceSource(p), PatchID: p.ID}
	}
	if e.Status == "" {
		e.Status = graph.StatusApproved
		if e.Provenance.Source == graph.SourceAI {
			e.Status = graph.StatusProposed
		}
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = a.now()
	}
	g.Edges = append(g.Edges, e)
	return nil
}

func deleteEdge(g *graph.State, o DeleteEdge) error {
	i := -1
	if o.ID != "" {
		i = g.EdgeIndexByID(o.ID)
	} else if o.Key != nil {
		i = g.EdgeIndexByKey(*o.Key)
	}
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, describeDelete(o))
	}
	g.Edges = slices.Delete(g.Edges, i, i+1)
	return nil
}

func (a *Applier) updateEdge(g *graph.State, o UpdateEdge) error {
	i := g.EdgeIndexByID(o.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, o.ID)
	}
	e := g.Edges[i].Clone()
	e.Properties = mergeProperties(e.Properties, o.Set, o.Unset)
	if o.Status != "" {
		e.Status = o.Status
	}
	e.UpdatedAt = a.now()
	g.ReplaceEdge(i, e)
	return nil
}

func (a *Applier) upsertEdge(g *graph.State, p *Patch, in *graph.Edge) error {
	i := g.EdgeIndexByKey(in.Key())
	if i < 0 {
		return a.addEdge(g, p, in)
	}
	e := g.Edges[i].Clone()
	e.Properties = mergeProperties(e.Properties, in.Properties, nil)
	if in.Provenance != nil {
		prov := *in.Provenance
		e.Provenance = &prov
	}
	if in.Status != "" {
		e.Status = in.Status
	}
	e.UpdatedAt = a.now()
	g.ReplaceEdge(i, e)
	return nil
}

// mergeProperties returns props with set merged in and unset removed. An empty
// result is dropped to nil.
func mergeProperties(props, set map[string]any, unset []string) map[string]any {
	if props == nil && len(set) > 0 {
		props = make(map[string]any, len(set))
	}
	for k, v := range graph.CloneFields(set) {
		props[k] = v
	}
	for _, k := range unset {
		delete(props, k)
	}
	if len(props) == 0 {
		return nil
	}
	return props
}

func provenanceSource(p *Patch) string {
	if p.Metadata.Source == graph.SourceAI {
		return graph.SourceAI
	}
	return graph.SourceHuman
}

func isReserved(field string) bool {
	return field == graph.FieldID || field == graph.FieldType
}

func describeDelete(o DeleteEdge) string {
	if o.ID != "" {
		return o.ID
	}
	if o.Key != nil {
		return o.Key.String()
	}
	return "<empty>"
}
