package validate

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/kobst/project-apollo-sub005/graph"
)

// nodeLookup resolves the current type of a node ID.
type nodeLookup func(id string) (graph.NodeType, bool)

// checkNodeFields checks every known field of a node being created or
// snapshotted, including required ones.
func checkNodeFields(opIndex int, n *graph.Node, lookup nodeLookup) []Error {
	schema, ok := graph.SchemaFor(n.Type)
	if !ok {
		return []Error{{
			Code:    CodeConstraintViolation,
			OpIndex: opIndex,
			NodeID:  n.ID,
			Field:   graph.FieldType,
			Message: fmt.Sprintf("unknown node type %q", n.Type),
		}}
	}

	var errs []Error
	for _, name := range schema.FieldNames() {
		spec := schema.Fields[name]
		v, present := n.Fields[name]
		if !present {
			if spec.Required {
				errs = append(errs, Error{
					Code:    CodeConstraintViolation,
					OpIndex: opIndex,
					NodeID:  n.ID,
					Field:   name,
					Message: fmt.Sprintf("%s requires field %q", n.Type, name),
				})
			}
			continue
		}
		if e, bad := checkField(spec, v, lookup); bad {
			e.OpIndex = opIndex
			e.NodeID = n.ID
			e.Field = name
			errs = append(errs, e)
		}
	}
	return errs
}

// checkFieldUpdate checks the set/unset of an UPDATE_NODE against the node's schema.
func checkFieldUpdate(opIndex int, id string, typ graph.NodeType, set map[string]any, unset []string, lookup nodeLookup) []Error {
	var errs []Error
	immutable := func(field string) {
		errs = append(errs, Error{
			Code:    CodeConstraintViolation,
			OpIndex: opIndex,
			NodeID:  id,
			Field:   field,
			Message: fmt.Sprintf("field %q is immutable", field),
		})
	}

	schema, known := graph.SchemaFor(typ)
	for _, name := range sortedKeys(set) {
		if name == graph.FieldID || name == graph.FieldType {
			immutable(name)
			continue
		}
		if !known {
			continue
		}
		spec, ok := schema.Fields[name]
		if !ok {
			continue
		}
		if e, bad := checkField(spec, set[name], lookup); bad {
			e.OpIndex = opIndex
			e.NodeID = id
			e.Field = name
			errs = append(errs, e)
		}
	}
	for _, name := range unset {
		if name == graph.FieldID || name == graph.FieldType {
			immutable(name)
			continue
		}
		if known && schema.Fields[name].Required {
			errs = append(errs, Error{
				Code:    CodeConstraintViolation,
				OpIndex: opIndex,
				NodeID:  id,
				Field:   name,
				Message: fmt.Sprintf("required field %q cannot be unset", name),
			})
		}
	}
	return errs
}

// checkField returns the problem with a single value, if any. The caller fills
// in location details.
func checkField(spec graph.FieldSpec, v any, lookup nodeLookup) (Error, bool) {
	violation := func(format string, args ...any) (Error, bool) {
		return Error{Code: CodeConstraintViolation, Message: fmt.Sprintf(format, args...)}, true
	}
	if v == nil {
		return violation("null value; use unset to remove a field")
	}

	switch spec.Kind {
	case graph.KindString:
		s, ok := v.(string)
		if !ok {
			return violation("expected string, got %T", v)
		}
		n := utf8.RuneCountInString(s)
		if n < spec.MinLen {
			return violation("length %d is below minimum %d", n, spec.MinLen)
		}
		if spec.MaxLen > 0 && n > spec.MaxLen {
			return violation("length %d exceeds maximum %d", n, spec.MaxLen)
		}
	case graph.KindInt:
		i, ok := graph.AsInt(v)
		if !ok {
			return violation("expected integer, got %v", v)
		}
		if spec.Min != nil && i < *spec.Min {
			return Error{Code: CodeOutOfRange, Message: fmt.Sprintf("%d is below minimum %d", i, *spec.Min)}, true
		}
		if spec.Max != nil && i > *spec.Max {
			return Error{Code: CodeOutOfRange, Message: fmt.Sprintf("%d exceeds maximum %d", i, *spec.Max)}, true
		}
	case graph.KindBool:
		if _, ok := v.(bool); !ok {
			return violation("expected boolean, got %T", v)
		}
	case graph.KindEnum:
		s, ok := v.(string)
		if !ok || !slices.Contains(spec.Enum, s) {
			return violation("%v is not one of %v", v, spec.Enum)
		}
	case graph.KindRef:
		s, ok := v.(string)
		if !ok || s == "" {
			return violation("expected node reference, got %v", v)
		}
		typ, exists := lookup(s)
		if !exists {
			return Error{Code: CodeFKIntegrity, Message: fmt.Sprintf("referenced node %s does not exist", s)}, true
		}
		if spec.RefType != "" && typ != spec.RefType {
			return Error{Code: CodeFKIntegrity, Message: fmt.Sprintf("referenced node %s is a %s, want %s", s, typ, spec.RefType)}, true
		}
	case graph.KindStringList:
		switch list := v.(type) {
		case []string:
		case []any:
			for _, x := range list {
				if _, ok := x.(string); !ok {
					return violation("list element %v is not a string", x)
				}
			}
		default:
			return violation("expected list of strings, got %T", v)
		}
	}
	return Error{}, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
