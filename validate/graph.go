package validate

import (
	"fmt"

	"github.com/kobst/project-apollo-sub005/graph"
)

// ValidateGraph runs the field, referential, and structural checks over a
// standalone snapshot. It also reports duplicate edge triples and IDs, which
// the applicator never produces but an edited snapshot might contain.
func ValidateGraph(g *graph.State) Result {
	lookup := func(id string) (graph.NodeType, bool) {
		n := g.Node(id)
		if n == nil {
			return "", false
		}
		return n.Type, true
	}

	var errs []Error
	for _, id := range g.NodeIDs() {
		n := g.Node(id)
		if n.ID != id {
			errs = append(errs, Error{
				Code:    CodeConstraintViolation,
				OpIndex: NoOp,
				NodeID:  id,
				Field:   graph.FieldID,
				Message: fmt.Sprintf("node stored under %s carries id %s", id, n.ID),
			})
		}
		errs = append(errs, checkNodeFields(NoOp, n, lookup)...)
	}

	triples := make(map[graph.EdgeKey]string, len(g.Edges))
	ids := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		errs = append(errs, checkEdge(NoOp, e, lookup)...)
		if e.ID == "" {
			errs = append(errs, Error{Code: CodeConstraintViolation, OpIndex: NoOp, Field: graph.FieldID,
				Message: fmt.Sprintf("edge %s has no id", e.Key())})
		} else if ids[e.ID] {
			errs = append(errs, Error{Code: CodeConstraintViolation, OpIndex: NoOp, EdgeID: e.ID,
				Message: fmt.Sprintf("edge id %s is used more than once", e.ID)})
		}
		ids[e.ID] = true
		if first, dup := triples[e.Key()]; dup {
			errs = append(errs, Error{Code: CodeConstraintViolation, OpIndex: NoOp, EdgeID: e.ID,
				Message: fmt.Sprintf("edge %s duplicates edge %s", e.Key(), first)})
			continue
		}
		triples[e.Key()] = e.ID
	}
	return newResult(errs)
}
