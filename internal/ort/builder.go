package ort

// builder.go - Writes the merged tree objects bottom-up

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// EmptyTreeHash is the id of the tree with no entries.
var EmptyTreeHash = plumbing.ComputeHash(plumbing.TreeObject, []byte{})

// buildTrees walks the resolved ledger in the resolver's order and writes one
// tree per surviving directory, children before parents. It returns the root.
func (st *mergeState) buildTrees(ctx context.Context) (plumbing.Hash, error) {
	pending := make(map[DirHandle][]object.TreeEntry, st.ledger.dirs.Len())

	for i := len(st.order) - 1; i >= 0; i-- {
		path := st.order[i]
		pi, _ := st.ledger.Get(path)
		m := pi.Merged()

		if ci, ok := pi.(*ConflictInfo); ok {
			if ci.DirMask != 0 && !ci.IsNull && ci.Result.IsDir() {
				h, found := st.ledger.dirs.Lookup(path)
				if !found {
					return plumbing.ZeroHash, fmt.Errorf("%w: directory %q was never interned", ErrInternal, path)
				}
				hash, err := st.writeDirectory(ctx, path, pending[h])
				if err != nil {
					return plumbing.ZeroHash, err
				}
				delete(pending, h)
				ci.Result.Hash = hash
			}
			for _, rel := range ci.Relocated {
				pending[m.Dir] = append(pending[m.Dir], object.TreeEntry{
					Name: rel.Path[m.BasenameOffset:],
					Mode: rel.Version.Mode,
					Hash: rel.Version.Hash,
				})
			}
		}

		if m.IsNull {
			continue
		}
		pending[m.Dir] = append(pending[m.Dir], object.TreeEntry{
			Name: Basename(path, m),
			Mode: m.Result.Mode,
			Hash: m.Result.Hash,
		})
	}

	root := pending[RootDir]
	if len(root) == 0 {
		st.notifyDirectory("")
		return EmptyTreeHash, nil
	}
	return st.writeDirectory(ctx, "", root)
}

// writeDirectory stores one directory's entries as a tree object.
func (st *mergeState) writeDirectory(ctx context.Context, dir string, entries []object.TreeEntry) (plumbing.Hash, error) {
	sortTreeEntries(entries)
	h, err := st.store.WriteTree(ctx, entries)
	if err != nil {
		where := dir
		if where == "" {
			where = "<root>"
		}
		return plumbing.ZeroHash, fmt.Errorf("writing tree for %s: %w", where, err)
	}
	st.log.Debug("tree written", zap.String("dir", dir), zap.Int("entries", len(entries)), zap.Stringer("hash", h))
	st.notifyDirectory(dir)
	return h, nil
}

func (st *mergeState) notifyDirectory(dir string) {
	if st.opts.OnDirectoryWritten != nil {
		st.opts.OnDirectoryWritten(dir)
	}
}

// sortTreeEntries puts entries in git's tree order, where a directory sorts as
// if its name ended in '/'.
func sortTreeEntries(entries []object.TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return treeSortKey(entries[i]) < treeSortKey(entries[j])
	})
}

func treeSortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}
