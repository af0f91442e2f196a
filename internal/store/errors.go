package store

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

var (
	// ErrNotFound is reported when an object is missing from the store.
	ErrNotFound = errors.New("object not found")
	// ErrCorrupt is reported when an object exists but cannot be parsed as
	// the expected type.
	ErrCorrupt = errors.New("object corrupt")
	// ErrWrite is reported when an object cannot be stored.
	ErrWrite = errors.New("object not writable")
)

// Error is a failed store operation on one object.
type Error struct {
	Op   string
	Hash plumbing.Hash
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Hash.IsZero() {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Hash, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func readError(op string, h plumbing.Hash, err error) error {
	kind := ErrCorrupt
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		kind = ErrNotFound
	}
	return &Error{Op: op, Hash: h, Kind: kind, Err: err}
}
