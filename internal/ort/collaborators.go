package ort

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Store is the object database the merge reads from and writes results to.
type Store interface {
	// Tree returns the parsed tree object h.
	Tree(ctx context.Context, h plumbing.Hash) (*object.Tree, error)
	// WriteTree stores a tree with exactly the given entries, in the given
	// order, and returns its id.
	WriteTree(ctx context.Context, entries []object.TreeEntry) (plumbing.Hash, error)
	// Blob returns the content of blob h.
	Blob(ctx context.Context, h plumbing.Hash) ([]byte, error)
	// WriteBlob stores content as a blob and returns its id.
	WriteBlob(ctx context.Context, content []byte) (plumbing.Hash, error)
}

// ContentInput is one three-way content merge request.
type ContentInput struct {
	Path        string
	Base        []byte
	Ours        []byte
	Theirs      []byte
	HasBase     bool
	OursLabel   string
	TheirsLabel string
	// Variant, when not VariantNormal, resolves hunks changed on both sides
	// toward that side. Hunks changed on one side still merge normally.
	Variant Variant
}

// ContentResult is the outcome of a content merge. With Conflict set, Content
// holds conflict markers.
type ContentResult struct {
	Content  []byte
	Conflict bool
}

// ContentMerger merges file contents changed on both sides.
type ContentMerger interface {
	MergeContent(ctx context.Context, in ContentInput) (*ContentResult, error)
}

// RenameDetector maps old paths in base to new paths in side.
type RenameDetector interface {
	DetectRenames(ctx context.Context, base, side *object.Tree) (map[string]string, error)
}

// NoRenames treats files as similar only when they have the same name, i.e.
// never reports a rename.
type NoRenames struct{}

func (NoRenames) DetectRenames(context.Context, *object.Tree, *object.Tree) (map[string]string, error) {
	return map[string]string{}, nil
}
