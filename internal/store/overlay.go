package store

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Overlay keeps new objects in memory and reads everything else from a shared
// storer underneath. Merges run against an Overlay write their trees and blobs
// without touching the repository.
type Overlay struct {
	storer.EncodedObjectStorer // in-memory layer; receives all writes
	Shared                     storer.EncodedObjectStorer
}

// NewOverlay layers a fresh in-memory object storer over shared.
func NewOverlay(shared storer.EncodedObjectStorer) *Overlay {
	return &Overlay{
		EncodedObjectStorer: memory.NewStorage(),
		Shared:              shared,
	}
}

// EncodedObject tries the overlay first, then Shared.
func (o *Overlay) EncodedObject(t plumbing.ObjectType, h plumbing.Hash) (plumbing.EncodedObject, error) {
	obj, err := o.EncodedObjectStorer.EncodedObject(t, h)
	if err == nil {
		return obj, nil
	}
	return o.Shared.EncodedObject(t, h)
}

// EncodedObjectSize tries the overlay first, then Shared.
func (o *Overlay) EncodedObjectSize(h plumbing.Hash) (int64, error) {
	sz, err := o.EncodedObjectStorer.EncodedObjectSize(h)
	if err == nil {
		return sz, nil
	}
	return o.Shared.EncodedObjectSize(h)
}

// HasEncodedObject checks the overlay first, then Shared.
func (o *Overlay) HasEncodedObject(h plumbing.Hash) error {
	if err := o.EncodedObjectStorer.HasEncodedObject(h); err == nil {
		return nil
	}
	return o.Shared.HasEncodedObject(h)
}

// Flush copies every object written to the overlay into Shared. Iteration
// stays on the overlay; the shared storer can be arbitrarily large.
func (o *Overlay) Flush() (int, error) {
	iter, err := o.EncodedObjectStorer.IterEncodedObjects(plumbing.AnyObject)
	if err != nil {
		return 0, err
	}
	n := 0
	err = iter.ForEach(func(obj plumbing.EncodedObject) error {
		if _, err := o.Shared.SetEncodedObject(obj); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
