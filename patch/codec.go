package patch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kobst/project-apollo-sub005/graph"
)

// wireOp is the JSON envelope of every operation: {"op": "<TAG>", ...}.
type wireOp struct {
	Op      string         `json:"op"`
	Node    *graph.Node    `json:"node,omitempty"`
	ID      string         `json:"id,omitempty"`
	Set     map[string]any `json:"set,omitempty"`
	Unset   []string       `json:"unset,omitempty"`
	Status  string         `json:"status,omitempty"`
	Edge    *graph.Edge    `json:"edge,omitempty"`
	Adds    []*graph.Edge  `json:"adds,omitempty"`
	Updates []wireOp       `json:"updates,omitempty"`
	Deletes []wireOp       `json:"deletes,omitempty"`
}

type wirePatch struct {
	ID            string            `json:"id"`
	BaseVersionID string            `json:"baseVersionId"`
	CreatedAt     int64             `json:"createdAt"`
	Ops           []json.RawMessage `json:"ops"`
	Metadata      Metadata          `json:"metadata"`
}

// MarshalJSON writes the patch in its wire form.
func (p *Patch) MarshalJSON() ([]byte, error) {
	ops := make([]json.RawMessage, 0, len(p.Ops))
	for i, op := range p.Ops {
		w, err := toWire(op)
		if err != nil {
			return nil, fmt.Errorf("encoding op %d: %w", i, err)
		}
		b, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("encoding op %d: %w", i, err)
		}
		ops = append(ops, b)
	}
	return json.Marshal(wirePatch{
		ID:            p.ID,
		BaseVersionID: p.BaseVersionID,
		CreatedAt:     p.CreatedAt,
		Ops:           ops,
		Metadata:      p.Metadata,
	})
}

// UnmarshalJSON reads the wire form. Unknown tags and missing required fields
// fail with *MalformedOpError.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var w wirePatch
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ops := make([]Op, 0, len(w.Ops))
	for i, raw := range w.Ops {
		var wo wireOp
		if err := json.Unmarshal(raw, &wo); err != nil {
			return &MalformedOpError{Index: i, Reason: err.Error()}
		}
		op, err := fromWire(wo)
		if err != nil {
			return &MalformedOpError{Index: i, Tag: wo.Op, Reason: err.Error()}
		}
		if err := CheckOp(op); err != nil {
			var m *MalformedOpError
			if errors.As(err, &m) {
				m.Index = i
			}
			return err
		}
		ops = append(ops, op)
	}
	p.ID = w.ID
	p.BaseVersionID = w.BaseVersionID
	p.CreatedAt = w.CreatedAt
	p.Ops = ops
	p.Metadata = w.Metadata
	return nil
}

// Decode parses a patch from JSON.
func Decode(data []byte) (*Patch, error) {
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func toWire(op Op) (wireOp, error) {
	switch o := op.(type) {
	case AddNode:
		return wireOp{Op: string(KindAddNode), Node: o.Node}, nil
	case UpdateNode:
		return wireOp{Op: string(KindUpdateNode), ID: o.ID, Set: o.Set, Unset: o.Unset}, nil
	case DeleteNode:
		return wireOp{Op: string(KindDeleteNode), ID: o.ID}, nil
	case AddEdge:
		return wireOp{Op: string(KindAddEdge), Edge: o.Edge}, nil
	case DeleteEdge:
		return deleteToWire(o), nil
	case UpdateEdge:
		return updateToWire(o), nil
	case UpsertEdge:
		return wireOp{Op: string(KindUpsertEdge), Edge: o.Edge}, nil
	case BatchEdge:
		w := wireOp{Op: string(KindBatchEdge), Adds: o.Adds}
		for _, u := range o.Updates {
			w.Updates = append(w.Updates, updateToWire(u))
		}
		for _, d := range o.Deletes {
			w.Deletes = append(w.Deletes, deleteToWire(d))
		}
		return w, nil
	}
	return wireOp{}, fmt.Errorf("unsupported op type %T", op)
}

func deleteToWire(d DeleteEdge) wireOp {
	w := wireOp{Op: string(KindDeleteEdge), ID: d.ID}
	if d.ID == "" && d.Key != nil {
		w.Edge = &graph.Edge{Type: d.Key.Type, From: d.Key.From, To: d.Key.To}
	}
	return w
}

func updateToWire(u UpdateEdge) wireOp {
	return wireOp{Op: string(KindUpdateEdge), ID: u.ID, Set: u.Set, Unset: u.Unset, Status: string(u.Status)}
}

func fromWire(w wireOp) (Op, error) {
	switch OpKind(w.Op) {
	case KindAddNode:
		return AddNode{Node: w.Node}, nil
	case KindUpdateNode:
		return UpdateNode{ID: w.ID, Set: w.Set, Unset: w.Unset}, nil
	case KindDeleteNode:
		return DeleteNode{ID: w.ID}, nil
	case KindAddEdge:
		return AddEdge{Edge: w.Edge}, nil
	case KindDeleteEdge:
		return deleteFromWire(w), nil
	case KindUpdateEdge:
		return updateFromWire(w), nil
	case KindUpsertEdge:
		return UpsertEdge{Edge: w.Edge}, nil
	case KindBatchEdge:
		b := BatchEdge{Adds: w.Adds}
		for _, u := range w.Updates {
			b.Updates = append(b.Updates, updateFromWire(u))
		}
		for _, d := range w.Deletes {
			b.Deletes = append(b.Deletes, deleteFromWire(d))
		}
		return b, nil
	case "":
		return nil, fmt.Errorf("missing op tag")
	}
	return nil, fmt.Errorf("unknown op tag %q", w.Op)
}

func deleteFromWire(w wireOp) DeleteEdge {
	d := DeleteEdge{ID: w.ID}
	if w.Edge != nil {
		k := w.Edge.Key()
		d.Key = &k
	}
	return d
}

func updateFromWire(w wireOp) UpdateEdge {
	return UpdateEdge{ID: w.ID, Set: w.Set, Unset: w.Unset, Status: graph.EdgeStatus(w.Status)}
}

// CheckOp reports a *MalformedOpError when op is missing required fields.
func CheckOp(op Op) error {
	if reason := shapeProblem(op); reason != "" {
		return &MalformedOpError{Tag: string(op.Kind()), Reason: reason}
	}
	return nil
}

func shapeProblem(op Op) string {
	switch o := op.(type) {
	case AddNode:
		if o.Node == nil {
			return "node is required"
		}
		if o.Node.ID == "" || o.Node.Type == "" {
			return "node id and type are required"
		}
	case UpdateNode:
		if o.ID == "" {
			return "id is required"
		}
		if o.Set == nil && len(o.Unset) == 0 {
			return "set or unset is required"
		}
	case DeleteNode:
		if o.ID == "" {
			return "id is required"
		}
	case AddEdge:
		return edgeShape(o.Edge)
	case UpsertEdge:
		return edgeShape(o.Edge)
	case DeleteEdge:
		return deleteShape(o)
	case UpdateEdge:
		if o.ID == "" {
			return "id is required"
		}
	case BatchEdge:
		if len(o.Adds)+len(o.Updates)+len(o.Deletes) == 0 {
			return "batch is empty"
		}
		for i, e := range o.Adds {
			if r := edgeShape(e); r != "" {
				return fmt.Sprintf("adds[%d]: %s", i, r)
			}
		}
		for i, u := range o.Updates {
			if u.ID == "" {
				return fmt.Sprintf("updates[%d]: id is required", i)
			}
		}
		for i, d := range o.Deletes {
			if r := deleteShape(d); r != "" {
				return fmt.Sprintf("deletes[%d]: %s", i, r)
			}
		}
	}
	return ""
}

func edgeShape(e *graph.Edge) string {
	if e == nil {
		return "edge is required"
	}
	if e.Type == "" || e.From == "" || e.To == "" {
		return "edge type, from and to are required"
	}
	return ""
}

func deleteShape(d DeleteEdge) string {
	if d.ID != "" {
		return ""
	}
	if d.Key == nil || d.Key.Type == "" || d.Key.From == "" || d.Key.To == "" {
		return "id or (type, from, to) is required"
	}
	return ""
}
