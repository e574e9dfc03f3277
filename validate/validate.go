package validate

import (
	"fmt"

	"github.com/kobst/project-apollo-sub005/graph"
	"github.com/kobst/project-apollo-sub005/patch"
)

// overlay is the minimal simulated state needed to validate later ops against
// the effects of earlier ones: node types, edge IDs, and edge triples.
type overlay struct {
	nodes   map[string]graph.NodeType
	edgeIDs map[string]graph.EdgeKey
	triples map[graph.EdgeKey]string
	pending int
}

func newOverlay(g *graph.State) *overlay {
	o := &overlay{
		nodes:   make(map[string]graph.NodeType, len(g.Nodes)),
		edgeIDs: make(map[string]graph.EdgeKey, len(g.Edges)),
		triples: make(map[graph.EdgeKey]string, len(g.Edges)),
	}
	for id, n := range g.Nodes {
		o.nodes[id] = n.Type
	}
	for _, e := range g.Edges {
		o.addEdge(e.ID, e.Key())
	}
	return o
}

func (o *overlay) lookup(id string) (graph.NodeType, bool) {
	t, ok := o.nodes[id]
	return t, ok
}

func (o *overlay) addEdge(id string, k graph.EdgeKey) {
	if id == "" {
		o.pending++
		id = fmt.Sprintf("\x00pending-%d", o.pending)
	}
	o.edgeIDs[id] = k
	o.triples[k] = id
}

func (o *overlay) removeEdge(id string) {
	k, ok := o.edgeIDs[id]
	if !ok {
		return
	}
	delete(o.edgeIDs, id)
	delete(o.triples, k)
}

func (o *overlay) removeNode(id string) {
	delete(o.nodes, id)
	for eid, k := range o.edgeIDs {
		if k.From == id || k.To == id {
			o.removeEdge(eid)
		}
	}
}

// Validate checks every op of p against g, simulating earlier ops so later ones
// see their effects. All problems are reported; g is not modified.
func Validate(g *graph.State, p *patch.Patch) Result {
	if p == nil {
		return newResult([]Error{{Code: CodeConstraintViolation, OpIndex: NoOp, Message: "patch is nil"}})
	}
	v := &validator{ov: newOverlay(g)}
	for i, op := range p.Ops {
		v.op(i, op)
	}
	return newResult(v.errs)
}

// IsPatchValid reports whether Validate finds no problems.
func IsPatchValid(g *graph.State, p *patch.Patch) bool {
	return Validate(g, p).Success
}

type validator struct {
	ov   *overlay
	errs []Error
}

func (v *validator) add(errs ...Error) {
	v.errs = append(v.errs, errs...)
}

func (v *validator) op(i int, op patch.Op) {
	if err := patch.CheckOp(op); err != nil {
		v.add(Error{Code: CodeConstraintViolation, OpIndex: i, Message: err.Error()})
		return
	}

	switch o := op.(type) {
	case patch.AddNode:
		v.addNode(i, o)
	case patch.UpdateNode:
		typ, ok := v.ov.lookup(o.ID)
		if !ok {
			v.add(missingNode(i, o.ID))
			return
		}
		v.add(checkFieldUpdate(i, o.ID, typ, o.Set, o.Unset, v.ov.lookup)...)
	case patch.DeleteNode:
		if _, ok := v.ov.lookup(o.ID); !ok {
			v.add(missingNode(i, o.ID))
			return
		}
		v.ov.removeNode(o.ID)
	case patch.AddEdge:
		v.addEdge(i, o.Edge, false)
	case patch.UpsertEdge:
		v.addEdge(i, o.Edge, true)
	case patch.DeleteEdge:
		v.deleteEdge(i, o)
	case patch.UpdateEdge:
		v.updateEdge(i, o)
	case patch.BatchEdge:
		for _, d := range o.Deletes {
			v.deleteEdge(i, d)
		}
		for _, u := range o.Updates {
			v.updateEdge(i, u)
		}
		for _, e := range o.Adds {
			v.addEdge(i, e, false)
		}
	default:
		panic(fmt.Sprintf("validate: unhandled op type %T", op))
	}
}

func missingNode(i int, id string) Error {
	return Error{Code: CodeFKIntegrity, OpIndex: i, NodeID: id, Message: fmt.Sprintf("node %s does not exist", id)}
}

func (v *validator) addNode(i int, o patch.AddNode) {
	n := o.Node
	if _, exists := v.ov.lookup(n.ID); exists {
		v.add(Error{
			Code:    CodeConstraintViolation,
			OpIndex: i,
			NodeID:  n.ID,
			Field:   graph.FieldID,
			Message: fmt.Sprintf("node %s already exists", n.ID),
		})
		return
	}
	// Register before checking fields so self-references resolve.
	v.ov.nodes[n.ID] = n.Type
	v.add(checkNodeFields(i, n, v.ov.lookup)...)
}

func (v *validator) addEdge(i int, e *graph.Edge, upsert bool) {
	errs := checkEdge(i, e, v.ov.lookup)
	if len(errs) > 0 {
		v.add(errs...)
		return
	}
	k := e.Key()
	existing, dup := v.ov.triples[k]
	if upsert && dup {
		return
	}
	if dup {
		v.add(Error{
			Code:    CodeConstraintViolation,
			OpIndex: i,
			EdgeID:  existing,
			Message: fmt.Sprintf("edge %s already exists", k),
		})
		return
	}
	if e.ID != "" {
		if _, taken := v.ov.edgeIDs[e.ID]; taken {
			v.add(Error{
				Code:    CodeConstraintViolation,
				OpIndex: i,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge id %s is already in use", e.ID),
			})
			return
		}
	}
	v.ov.addEdge(e.ID, k)
}

func (v *validator) deleteEdge(i int, d patch.DeleteEdge) {
	if d.ID != "" {
		if _, ok := v.ov.edgeIDs[d.ID]; !ok {
			v.add(Error{Code: CodeFKIntegrity, OpIndex: i, EdgeID: d.ID, Message: fmt.Sprintf("edge %s does not exist", d.ID)})
			return
		}
		v.ov.removeEdge(d.ID)
		return
	}
	id, ok := v.ov.triples[*d.Key]
	if !ok {
		v.add(Error{Code: CodeFKIntegrity, OpIndex: i, Message: fmt.Sprintf("edge %s does not exist", d.Key)})
		return
	}
	v.ov.removeEdge(id)
}

func (v *validator) updateEdge(i int, u patch.UpdateEdge) {
	if _, ok := v.ov.edgeIDs[u.ID]; !ok {
		v.add(Error{Code: CodeFKIntegrity, OpIndex: i, EdgeID: u.ID, Message: fmt.Sprintf("edge %s does not exist", u.ID)})
		return
	}
	if u.Status != "" && !u.Status.Valid() {
		v.add(Error{
			Code:    CodeConstraintViolation,
			OpIndex: i,
			EdgeID:  u.ID,
			Field:   "status",
			Message: fmt.Sprintf("unknown edge status %q", u.Status),
		})
	}
}

// checkEdge applies the referential and structural checks shared by patch and
// snapshot validation.
func checkEdge(i int, e *graph.Edge, lookup nodeLookup) []Error {
	var errs []Error
	rule, known := graph.RuleFor(e.Type)
	if !known {
		errs = append(errs, Error{
			Code:    CodeConstraintViolation,
			OpIndex: i,
			EdgeID:  e.ID,
			Field:   graph.FieldType,
			Message: fmt.Sprintf("unknown edge type %q", e.Type),
		})
	}
	if e.Status != "" && !e.Status.Valid() {
		errs = append(errs, Error{
			Code:    CodeConstraintViolation,
			OpIndex: i,
			EdgeID:  e.ID,
			Field:   "status",
			Message: fmt.Sprintf("unknown edge status %q", e.Status),
		})
	}
	if e.Provenance != nil && e.Provenance.Source != graph.SourceHuman && e.Provenance.Source != graph.SourceAI {
		errs = append(errs, Error{
			Code:    CodeConstraintViolation,
			OpIndex: i,
			EdgeID:  e.ID,
			Field:   "provenance",
			Message: fmt.Sprintf("unknown provenance source %q", e.Provenance.Source),
		})
	}

	fromType, fromOK := lookup(e.From)
	if !fromOK {
		errs = append(errs, Error{Code: CodeFKIntegrity, OpIndex: i, EdgeID: e.ID, NodeID: e.From, Field: "from",
			Message: fmt.Sprintf("edge source %s does not exist", e.From)})
	}
	toType, toOK := lookup(e.To)
	if !toOK {
		errs = append(errs, Error{Code: CodeFKIntegrity, OpIndex: i, EdgeID: e.ID, NodeID: e.To, Field: "to",
			Message: fmt.Sprintf("edge target %s does not exist", e.To)})
	}
	if !known {
		return errs
	}
	if fromOK && !rule.AllowsFrom(fromType) {
		errs = append(errs, Error{Code: CodeInvalidEdgeSource, OpIndex: i, EdgeID: e.ID, NodeID: e.From, Field: "from",
			Message: fmt.Sprintf("%s cannot start at a %s (allowed: %v)", e.Type, fromType, rule.From)})
	}
	if toOK && !rule.AllowsTo(toType) {
		errs = append(errs, Error{Code: CodeInvalidEdgeTarget, OpIndex: i, EdgeID: e.ID, NodeID: e.To, Field: "to",
			Message: fmt.Sprintf("%s cannot end at a %s (allowed: %v)", e.Type, toType, rule.To)})
	}
	return errs
}
