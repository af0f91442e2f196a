// Package store adapts a go-git object storer to what the merge engine needs:
// parsed trees, blob contents, and writing new trees and blobs.
package store

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// ObjectStore reads and writes objects through a go-git storer. Parsed trees
// are memoized; objects are immutable so entries never go stale.
type ObjectStore struct {
	s storer.EncodedObjectStorer

	mu    sync.RWMutex
	trees map[plumbing.Hash]*object.Tree
}

// New wraps s.
func New(s storer.EncodedObjectStorer) *ObjectStore {
	return &ObjectStore{
		s:     s,
		trees: make(map[plumbing.Hash]*object.Tree),
	}
}

// Storer returns the underlying storer.
func (o *ObjectStore) Storer() storer.EncodedObjectStorer {
	return o.s
}

// Tree returns the parsed tree h.
func (o *ObjectStore) Tree(_ context.Context, h plumbing.Hash) (*object.Tree, error) {
	o.mu.RLock()
	t, ok := o.trees[h]
	o.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := object.GetTree(o.s, h)
	if err != nil {
		return nil, readError("read tree", h, err)
	}

	o.mu.Lock()
	o.trees[h] = t
	o.mu.Unlock()
	return t, nil
}

// CachedTrees returns how many parsed trees are memoized.
func (o *ObjectStore) CachedTrees() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.trees)
}

// WriteTree encodes entries as a tree object. Entries are written in the order
// given; callers sort them.
func (o *ObjectStore) WriteTree(_ context.Context, entries []object.TreeEntry) (plumbing.Hash, error) {
	tree := &object.Tree{Entries: entries}
	obj := o.s.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, &Error{Op: "encode tree", Kind: ErrWrite, Err: err}
	}
	h, err := o.s.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, &Error{Op: "store tree", Hash: obj.Hash(), Kind: ErrWrite, Err: err}
	}
	return h, nil
}

// Blob returns the content of blob h.
func (o *ObjectStore) Blob(_ context.Context, h plumbing.Hash) ([]byte, error) {
	blob, err := object.GetBlob(o.s, h)
	if err != nil {
		return nil, readError("read blob", h, err)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, readError("open blob", h, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, readError("read blob", h, err)
	}
	return data, nil
}

// WriteBlob stores content as a blob.
func (o *ObjectStore) WriteBlob(_ context.Context, content []byte) (plumbing.Hash, error) {
	obj := o.s.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, &Error{Op: "write blob", Kind: ErrWrite, Err: fmt.Errorf("failed to create object writer: %w", err)}
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, &Error{Op: "write blob", Kind: ErrWrite, Err: err}
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, &Error{Op: "write blob", Kind: ErrWrite, Err: err}
	}

	h, err := o.s.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, &Error{Op: "store blob", Kind: ErrWrite, Err: err}
	}
	return h, nil
}
