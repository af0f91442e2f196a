package ort

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// ErrInternal marks a broken invariant inside the merge machinery.
var ErrInternal = errors.New("ort: internal error")

var stageNames = [3]string{"base", "side1", "side2"}

// TraversalError is returned when a tree needed by the walk could not be read.
// The underlying store error is available through errors.Is/As.
type TraversalError struct {
	Path  string
	Stage int
	Trees [3]plumbing.Hash
	Err   error
}

func (e *TraversalError) Error() string {
	where := e.Path
	if where == "" {
		where = "<root>"
	}
	return fmt.Sprintf("collecting merge info failed for trees %s, %s, %s at %s (%s): %v",
		e.Trees[0], e.Trees[1], e.Trees[2], where, stageNames[e.Stage], e.Err)
}

func (e *TraversalError) Unwrap() error {
	return e.Err
}
