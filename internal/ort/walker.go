package ort

// walker.go - Simultaneous traversal of base, side1 and side2
//
// Each directory level is handled as a merge of three name-sorted entry lists.
// Paths that are identical on all three sides are settled on the spot, even
// directories, since identical subtrees hold nothing to merge. Everything else
// is recorded for the resolver, and directories are descended into.

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// collectMergeInfo fills the ledger with one entry per path found in any of
// the three trees.
func (st *mergeState) collectMergeInfo(ctx context.Context, base, side1, side2 *object.Tree) error {
	return st.traverse(ctx, RootDir, "", [3]*object.Tree{base, side1, side2})
}

// traverse walks one directory level. dirPath is "" for the root.
func (st *mergeState) traverse(ctx context.Context, dir DirHandle, dirPath string, trees [3]*object.Tree) error {
	var index [3]map[string]object.TreeEntry
	for i, t := range trees {
		index[i] = entriesByName(t)
	}

	for _, name := range unionNames(trees) {
		var names [3]VersionInfo
		var mask, dirmask SideMask
		for i := range index {
			e, ok := index[i][name]
			if !ok {
				continue
			}
			names[i] = VersionInfo{Hash: e.Hash, Mode: e.Mode}
			mask |= 1 << i
			if e.Mode == filemode.Dir {
				dirmask |= 1 << i
			}
		}

		if err := st.classify(ctx, dir, dirPath, name, names, mask, dirmask); err != nil {
			return err
		}
	}
	return nil
}

// classify records one path and recurses into it if some side has a directory there.
func (st *mergeState) classify(ctx context.Context, dir DirHandle, dirPath, name string,
	names [3]VersionInfo, mask, dirmask SideMask) error {

	if mask == 0 {
		return fmt.Errorf("%w: no side has %q", ErrInternal, joinPath(dirPath, name))
	}

	filemask := mask &^ dirmask
	baseNull := !mask.Has(StageBase)
	side1Null := !mask.Has(StageSide1)
	side2Null := !mask.Has(StageSide2)

	side1MatchesBase := !side1Null && !baseNull && names[StageBase].Equal(names[StageSide1])
	side2MatchesBase := !side2Null && !baseNull && names[StageBase].Equal(names[StageSide2])
	sidesMatch := !side1Null && !side2Null && names[StageSide1].Equal(names[StageSide2])

	var matchMask SideMask
	switch {
	case side1MatchesBase && side2MatchesBase:
		matchMask = MaskAll
	case side1MatchesBase:
		matchMask = MaskBase | MaskSide1
	case side2MatchesBase:
		matchMask = MaskBase | MaskSide2
	case sidesMatch:
		matchMask = MaskSide1 | MaskSide2
	}

	fullpath := joinPath(dirPath, name)
	offset := 0
	if dirPath != "" {
		offset = len(dirPath) + 1
	}

	if matchMask == MaskAll {
		st.ledger.put(fullpath, &MergedInfo{
			Result:         names[StageBase],
			Dir:            dir,
			BasenameOffset: offset,
		})
		return nil
	}

	ci := &ConflictInfo{
		MergedInfo: MergedInfo{Dir: dir, BasenameOffset: offset},
		Stages:     names,
		FileMask:   filemask,
		DirMask:    dirmask,
		MatchMask:  matchMask,
		DFConflict: filemask != 0 && dirmask != 0,
	}
	for i := range ci.Pathnames {
		ci.Pathnames[i] = fullpath
	}
	st.ledger.put(fullpath, ci)

	if dirmask == 0 {
		return nil
	}

	// Directories never resolve through match_mask; only the file part of a
	// D/F path does.
	ci.MatchMask &= filemask

	var sub [3]*object.Tree
	for i := 0; i < 3; i++ {
		switch {
		case i == StageSide1 && side1MatchesBase:
			sub[i] = sub[StageBase]
		case i == StageSide2 && side2MatchesBase:
			sub[i] = sub[StageBase]
		case i == StageSide2 && sidesMatch:
			sub[i] = sub[StageSide1]
		case dirmask.Has(i):
			t, err := st.store.Tree(ctx, names[i].Hash)
			if err != nil {
				return &TraversalError{Path: fullpath, Stage: i, Trees: st.trees, Err: err}
			}
			sub[i] = t
		}
	}

	st.log.Debug("descending", zap.String("path", fullpath), zap.Uint8("dirmask", uint8(dirmask)))
	return st.traverse(ctx, st.ledger.dirs.Intern(fullpath), fullpath, sub)
}

// unionNames returns every entry name of the given trees, sorted and deduplicated.
func unionNames(trees [3]*object.Tree) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, t := range trees {
		if t == nil {
			continue
		}
		for _, e := range t.Entries {
			if _, ok := seen[e.Name]; ok {
				continue
			}
			seen[e.Name] = struct{}{}
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}

func entriesByName(t *object.Tree) map[string]object.TreeEntry {
	if t == nil {
		return nil
	}
	m := make(map[string]object.TreeEntry, len(t.Entries))
	for _, e := range t.Entries {
		m[e.Name] = e
	}
	return m
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
