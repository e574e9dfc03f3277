// Package validate checks patches and snapshots against the story schema
// before they are trusted. It never mutates its inputs.
package validate

import (
	"fmt"
	"strings"
)

// Code classifies a validation error. Callers key UX decisions off it.
type Code string

const (
	CodeFKIntegrity         Code = "FK_INTEGRITY"
	CodeInvalidEdgeSource   Code = "INVALID_EDGE_SOURCE"
	CodeInvalidEdgeTarget   Code = "INVALID_EDGE_TARGET"
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"
	CodeOutOfRange          Code = "OUT_OF_RANGE"
)

// NoOp marks errors that come from a snapshot rather than a patch op.
const NoOp = -1

// Error is one validation problem.
type Error struct {
	Code    Code   `json:"code"`
	OpIndex int    `json:"opIndex"`
	NodeID  string `json:"nodeId,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.OpIndex >= 0 {
		fmt.Fprintf(&b, " op %d", e.OpIndex)
	}
	if e.NodeID != "" {
		fmt.Fprintf(&b, " node %s", e.NodeID)
	}
	if e.EdgeID != "" {
		fmt.Fprintf(&b, " edge %s", e.EdgeID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %s", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Result is the outcome of a validation pass.
type Result struct {
	Success bool    `json:"success"`
	Errors  []Error `json:"errors"`
}

// Err returns a *Failure when the result has errors, nil otherwise.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &Failure{Errors: r.Errors}
}

// HasCode reports whether any error carries the given code.
func (r Result) HasCode(c Code) bool {
	for _, e := range r.Errors {
		if e.Code == c {
			return true
		}
	}
	return false
}

func newResult(errs []Error) Result {
	if errs == nil {
		errs = []Error{}
	}
	return Result{Success: len(errs) == 0, Errors: errs}
}

// Failure is the error form of an unsuccessful Result.
type Failure struct {
	Errors []Error
}

func (f *Failure) Error() string {
	switch len(f.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return "validation failed: " + f.Errors[0].Error()
	}
	return fmt.Sprintf("validation failed with %d errors; first: %s", len(f.Errors), f.Errors[0].Error())
}
