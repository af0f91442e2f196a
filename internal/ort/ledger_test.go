package ort

import (
	"path"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDFNameCompareOrder(t *testing.T) {
	paths := []string{"foo/bar", "foo", "foo.txt", "foo/bar/baz", "fo", "foo0", "foo/a"}
	sort.Slice(paths, func(i, j int) bool { return dfNameCompare(paths[i], paths[j]) < 0 })

	assert.Equal(t, []string{"fo", "foo.txt", "foo", "foo/a", "foo/bar", "foo/bar/baz", "foo0"}, paths)
}

func TestInternerReturnsOneHandlePerDirectory(t *testing.T) {
	in := newInterner()

	a := in.Intern("a")
	ab := in.Intern("a/b")

	assert.Equal(t, a, in.Intern("a"))
	assert.Equal(t, ab, in.Intern("a/b"))
	assert.NotEqual(t, a, ab)
	assert.Equal(t, RootDir, in.Intern(""))
	assert.Equal(t, "a/b", in.Name(ab))
	assert.Equal(t, 3, in.Len())

	_, ok := in.Lookup("c")
	assert.False(t, ok)
}

func TestLedgerDirectoryHandles(t *testing.T) {
	f := newFixture(t)

	res := f.merge(
		map[string]entry{"d/a": file("1"), "d/b": file("1"), "d/e/f": file("1"), "top": file("1")},
		map[string]entry{"d/a": file("2"), "d/b": file("1"), "d/e/f": file("2"), "d/e/g": file("1"), "top": file("1")},
		map[string]entry{"d/a": file("1"), "d/b": file("3"), "d/e/f": file("1"), "top": file("2")})
	require.True(t, res.Clean)

	l := res.Ledger
	require.NotNil(t, l)

	// Every entry points at the handle of its parent directory.
	for _, p := range l.Paths() {
		pi, _ := l.Get(p)
		m := pi.Merged()
		dir := path.Dir(p)
		if dir == "." {
			dir = ""
		}
		h, ok := l.Dirs().Lookup(dir)
		require.True(t, ok, p)
		assert.Equal(t, h, m.Dir, p)
		assert.Equal(t, path.Base(p), Basename(p, m))
	}

	// No two handles name the same directory.
	seen := make(map[string]DirHandle)
	for h := DirHandle(0); int(h) < l.Dirs().Len(); h++ {
		name := l.Dirs().Name(h)
		prev, dup := seen[name]
		assert.False(t, dup, "%q interned as %d and %d", name, prev, h)
		seen[name] = h
	}

	da, _ := l.Get("d/a")
	db, _ := l.Get("d/b")
	assert.Equal(t, da.Merged().Dir, db.Merged().Dir)
}

func TestLedgerUnmergedEntriesAreLedgerEntries(t *testing.T) {
	f := newFixture(t)

	res := f.merge(
		map[string]entry{"a": file("1"), "b": file("1"), "c": file("1")},
		map[string]entry{"a": file("2"), "c": file("2")},
		map[string]entry{"a": file("3"), "b": file("1"), "c": file("1")})

	l := res.Ledger
	require.Equal(t, []string{"a"}, l.UnmergedPaths())
	for _, p := range l.UnmergedPaths() {
		ci, ok := l.Unmerged(p)
		require.True(t, ok)
		pi, ok := l.Get(p)
		require.True(t, ok)
		assert.Same(t, pi, PathInfo(ci))
		assert.False(t, ci.IsClean())
	}

	b, _ := l.Get("b")
	assert.True(t, b.IsClean())
	assert.True(t, b.Merged().IsNull)
}
