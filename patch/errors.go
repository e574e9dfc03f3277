package patch

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by ApplyError.
var (
	ErrNodeExists     = errors.New("node already exists")
	ErrNodeNotFound   = errors.New("node not found")
	ErrImmutableField = errors.New("field is immutable")
	ErrEdgeExists     = errors.New("edge already exists")
	ErrEdgeNotFound   = errors.New("edge not found")
	ErrMalformedOp    = errors.New("malformed operation")
)

// ApplyError reports the operation that stopped a patch from applying.
type ApplyError struct {
	Index int
	Op    Op
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("applying op %d (%s): %v", e.Index, e.Op.Kind(), e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// MalformedOpError is an input-shape error: an unknown tag or a missing
// required field. It is never retried.
type MalformedOpError struct {
	Index  int
	Tag    string
	Reason string
}

func (e *MalformedOpError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("malformed op %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("malformed op %d (%s): %s", e.Index, e.Tag, e.Reason)
}

func (e *MalformedOpError) Unwrap() error {
	return ErrMalformedOp
}
