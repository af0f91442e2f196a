package ort

// ledger.go - Path-indexed records for one merge
//
// Every path seen in any of the three trees gets exactly one entry. Entries are
// either already merged (all sides identical) or carry the three-way state
// needed by the resolver. Directory names are interned so that "same
// directory" is a handle comparison.

import (
	"sort"

	"github.com/samber/lo"
)

// DirHandle refers to an interned directory name. RootDir is the top level.
type DirHandle int32

// RootDir is the handle of the toplevel directory "".
const RootDir DirHandle = 0

// Interner owns the unique directory name strings of one traversal.
type Interner struct {
	names []string
	index map[string]DirHandle
}

func newInterner() *Interner {
	return &Interner{
		names: []string{""},
		index: map[string]DirHandle{"": RootDir},
	}
}

// Intern returns the handle for dir, allocating one the first time dir is seen.
func (in *Interner) Intern(dir string) DirHandle {
	if h, ok := in.index[dir]; ok {
		return h
	}
	h := DirHandle(len(in.names))
	in.names = append(in.names, dir)
	in.index[dir] = h
	return h
}

// Lookup returns the handle for dir without interning it.
func (in *Interner) Lookup(dir string) (DirHandle, bool) {
	h, ok := in.index[dir]
	return h, ok
}

// Name returns the directory string behind a handle.
func (in *Interner) Name(h DirHandle) string {
	return in.names[h]
}

// Len returns the number of interned directories, root included.
func (in *Interner) Len() int {
	return len(in.names)
}

// PathInfo is a ledger entry: either *MergedInfo or *ConflictInfo.
type PathInfo interface {
	// Merged exposes the fields shared by both variants.
	Merged() *MergedInfo
	// IsClean reports whether the entry needs no manual resolution.
	IsClean() bool
}

// MergedInfo is a resolved path.
type MergedInfo struct {
	Result         VersionInfo
	IsNull         bool
	Dir            DirHandle
	BasenameOffset int
}

func (m *MergedInfo) Merged() *MergedInfo { return m }
func (m *MergedInfo) IsClean() bool       { return true }

// ConflictKind classifies why an entry stayed unmerged.
type ConflictKind int

const (
	ConflictNone ConflictKind = iota
	ConflictContent
	ConflictAddAdd
	ConflictModifyDelete
	ConflictDistinctTypes
	ConflictDirectoryFile
	ConflictPathCollision
	ConflictMode
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictContent:
		return "content"
	case ConflictAddAdd:
		return "add/add"
	case ConflictModifyDelete:
		return "modify/delete"
	case ConflictDistinctTypes:
		return "distinct types"
	case ConflictDirectoryFile:
		return "file/directory"
	case ConflictPathCollision:
		return "rename collision"
	case ConflictMode:
		return "mode"
	}
	return "none"
}

// ConflictInfo carries the three-way state of a path that could not be
// resolved during traversal. After the resolver ran, Clean tells whether it
// was resolved after all.
type ConflictInfo struct {
	MergedInfo

	Clean     bool
	Stages    [3]VersionInfo
	Pathnames [3]string

	FileMask  SideMask
	DirMask   SideMask
	MatchMask SideMask

	DFConflict   bool
	PathConflict bool

	// Relocated lists versions written next to the entry under another name,
	// to keep them out of the way of what occupies the path itself.
	Relocated []Relocation
	Kind      ConflictKind
}

// Relocation is a version of a conflicted path stored under a new name in
// the same directory.
type Relocation struct {
	Stage   int
	Path    string
	Version VersionInfo
}

func (c *ConflictInfo) Merged() *MergedInfo { return &c.MergedInfo }
func (c *ConflictInfo) IsClean() bool       { return c.Clean }

// Ledger maps full paths to their entries for the duration of one merge.
// It is not safe for concurrent use.
type Ledger struct {
	paths    map[string]PathInfo
	unmerged map[string]*ConflictInfo
	dirs     *Interner
}

// NewLedger returns an empty ledger with only the root directory interned.
func NewLedger() *Ledger {
	return &Ledger{
		paths:    make(map[string]PathInfo),
		unmerged: make(map[string]*ConflictInfo),
		dirs:     newInterner(),
	}
}

// Dirs exposes the directory interner.
func (l *Ledger) Dirs() *Interner {
	return l.dirs
}

// Len returns the number of paths recorded.
func (l *Ledger) Len() int {
	return len(l.paths)
}

// Get returns the entry for path.
func (l *Ledger) Get(path string) (PathInfo, bool) {
	pi, ok := l.paths[path]
	return pi, ok
}

func (l *Ledger) put(path string, pi PathInfo) {
	l.paths[path] = pi
}

// markUnmerged records ci under path in the unmerged set. ci must be the
// ledger's own entry for path.
func (l *Ledger) markUnmerged(path string, ci *ConflictInfo) {
	l.unmerged[path] = ci
}

// Unmerged returns the entry for path if it remained unmerged.
func (l *Ledger) Unmerged(path string) (*ConflictInfo, bool) {
	ci, ok := l.unmerged[path]
	return ci, ok
}

// UnmergedPaths returns the unmerged paths in sorted order.
func (l *Ledger) UnmergedPaths() []string {
	keys := lo.Keys(l.unmerged)
	sort.Strings(keys)
	return keys
}

// Paths returns every recorded path, sorted so that a directory precedes its
// contents and its contents directly follow it.
func (l *Ledger) Paths() []string {
	keys := lo.Keys(l.paths)
	sort.Slice(keys, func(i, j int) bool {
		return dfNameCompare(keys[i], keys[j]) < 0
	})
	return keys
}

// Basename returns the last path component using the entry's offset.
func Basename(path string, m *MergedInfo) string {
	return path[m.BasenameOffset:]
}

// dfNameCompare orders paths as if every one of them were a directory, so "foo"
// and "foo/bar" tie on the common prefix and everything under "foo/" sorts
// right after "foo". Ties are broken by length which puts "foo" first.
func dfNameCompare(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	ca, cb := byte('/'), byte('/')
	if len(a) > n {
		ca = a[n]
	}
	if len(b) > n {
		cb = b[n]
	}
	if ca != cb {
		return int(ca) - int(cb)
	}
	return len(a) - len(b)
}
