package store

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(memory.NewStorage())

	blob, err := s.WriteBlob(ctx, []byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", blob.String())

	data, err := s.Blob(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	entries := []object.TreeEntry{{Name: "hello.txt", Mode: filemode.Regular, Hash: blob}}
	tree, err := s.WriteTree(ctx, entries)
	require.NoError(t, err)

	got, err := s.Tree(ctx, tree)
	require.NoError(t, err)
	assert.Equal(t, entries, got.Entries)
	assert.Equal(t, tree, got.Hash)
}

func TestObjectStoreMemoizesTrees(t *testing.T) {
	ctx := context.Background()
	s := New(memory.NewStorage())

	h, err := s.WriteTree(ctx, nil)
	require.NoError(t, err)

	first, err := s.Tree(ctx, h)
	require.NoError(t, err)
	second, err := s.Tree(ctx, h)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, s.CachedTrees())
}

func TestObjectStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := New(memory.NewStorage())
	missing := plumbing.NewHash("3333333333333333333333333333333333333333")

	_, err := s.Tree(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, plumbing.ErrObjectNotFound)

	_, err = s.Blob(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, missing, se.Hash)
	assert.Contains(t, se.Error(), missing.String())
}

func TestObjectStoreCorruptTree(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStorage()

	// A tree entry whose hash is cut short.
	obj := mem.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	w, err := obj.Writer()
	require.NoError(t, err)
	_, err = w.Write([]byte("100644 name\x00abc"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	h, err := mem.SetEncodedObject(obj)
	require.NoError(t, err)

	_, err = New(mem).Tree(ctx, h)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestOverlayKeepsWritesOutOfShared(t *testing.T) {
	ctx := context.Background()
	shared := memory.NewStorage()
	base, err := New(shared).WriteBlob(ctx, []byte("base"))
	require.NoError(t, err)

	overlay := NewOverlay(shared)
	s := New(overlay)

	// Reads fall through to the shared storer.
	data, err := s.Blob(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, "base", string(data))

	h, err := s.WriteBlob(ctx, []byte("merged"))
	require.NoError(t, err)
	assert.NoError(t, overlay.HasEncodedObject(h))
	assert.ErrorIs(t, shared.HasEncodedObject(h), plumbing.ErrObjectNotFound)

	n, err := overlay.Flush()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, shared.HasEncodedObject(h))

	size, err := overlay.EncodedObjectSize(base)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}
