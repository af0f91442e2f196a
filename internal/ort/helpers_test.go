package ort

import (
	"context"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"

	"github.com/kurobon/ortmerge/internal/store"
)

// entry is a file in a test tree.
type entry struct {
	mode    filemode.FileMode
	content string
}

func file(content string) entry { return entry{filemode.Regular, content} }
func exe(content string) entry  { return entry{filemode.Executable, content} }
func link(target string) entry  { return entry{filemode.Symlink, target} }

// fixture builds trees in a memory object store.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	mem   *memory.Storage
	store *store.ObjectStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.NewStorage()
	return &fixture{t: t, ctx: context.Background(), mem: mem, store: store.New(mem)}
}

// tree writes files, keyed by slash-separated path, as a tree and returns its id.
func (f *fixture) tree(files map[string]entry) plumbing.Hash {
	f.t.Helper()
	return f.writeDir(files)
}

func (f *fixture) writeDir(files map[string]entry) plumbing.Hash {
	subdirs := make(map[string]map[string]entry)
	var entries []object.TreeEntry

	for path, e := range files {
		name, rest, nested := strings.Cut(path, "/")
		if nested {
			if subdirs[name] == nil {
				subdirs[name] = make(map[string]entry)
			}
			subdirs[name][rest] = e
			continue
		}
		h, err := f.store.WriteBlob(f.ctx, []byte(e.content))
		require.NoError(f.t, err)
		entries = append(entries, object.TreeEntry{Name: name, Mode: e.mode, Hash: h})
	}
	for name, sub := range subdirs {
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: f.writeDir(sub)})
	}

	sortTreeEntries(entries)
	h, err := f.store.WriteTree(f.ctx, entries)
	require.NoError(f.t, err)
	return h
}

// files reads tree h back into the map form accepted by tree.
func (f *fixture) files(h plumbing.Hash) map[string]entry {
	f.t.Helper()
	out := make(map[string]entry)
	f.readDir(h, "", out)
	return out
}

func (f *fixture) readDir(h plumbing.Hash, prefix string, out map[string]entry) {
	t, err := f.store.Tree(f.ctx, h)
	require.NoError(f.t, err)
	for _, e := range t.Entries {
		path := joinPath(prefix, e.Name)
		if e.Mode == filemode.Dir {
			f.readDir(e.Hash, path, out)
			continue
		}
		data, err := f.store.Blob(f.ctx, e.Hash)
		require.NoError(f.t, err)
		out[path] = entry{e.Mode, string(data)}
	}
}

// blob stores content and returns its id.
func (f *fixture) blob(content string) plumbing.Hash {
	f.t.Helper()
	h, err := f.store.WriteBlob(f.ctx, []byte(content))
	require.NoError(f.t, err)
	return h
}

func (f *fixture) merger(opts Options) *Merger {
	f.t.Helper()
	m, err := New(f.store, opts)
	require.NoError(f.t, err)
	return m
}

// merge runs a default-option merge of three file maps.
func (f *fixture) merge(base, side1, side2 map[string]entry) *Result {
	f.t.Helper()
	return f.mergeWith(DefaultOptions(), base, side1, side2)
}

func (f *fixture) mergeWith(opts Options, base, side1, side2 map[string]entry) *Result {
	f.t.Helper()
	res, err := f.merger(opts).MergeTrees(f.ctx, f.tree(base), f.tree(side1), f.tree(side2))
	require.NoError(f.t, err)
	return res
}

// fakeMerger is a ContentMerger returning a fixed answer.
type fakeMerger struct {
	content  string
	conflict bool
	err      error
	calls    []ContentInput
}

func (m *fakeMerger) MergeContent(_ context.Context, in ContentInput) (*ContentResult, error) {
	m.calls = append(m.calls, in)
	if m.err != nil {
		return nil, m.err
	}
	return &ContentResult{Content: []byte(m.content), Conflict: m.conflict}, nil
}

// fakeRenames returns fixed rename pairs per side, keyed by the side tree id.
type fakeRenames struct {
	pairs map[plumbing.Hash]map[string]string
}

func (r *fakeRenames) DetectRenames(_ context.Context, _, side *object.Tree) (map[string]string, error) {
	return r.pairs[side.Hash], nil
}
