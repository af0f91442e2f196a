package ort

// resolver.go - Per-path conflict resolution
//
// Paths are handled deepest first: the ledger is sorted so that a directory
// directly precedes its contents and the list is walked back to front. By the
// time a directory is reached we know how many of its children survived.

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"go.uber.org/zap"
)

// resolution is the decision for the file part of one path.
type resolution struct {
	result VersionInfo
	isNull bool
	clean  bool
	kind   ConflictKind
	// relocate names a side whose version has to move out of the way, 0 if none.
	relocate int
	// side is the stage the surviving file came from, for naming relocations.
	side int
}

// processEntries resolves every ConflictInfo in the ledger.
func (st *mergeState) processEntries(ctx context.Context) error {
	st.order = st.ledger.Paths()
	st.live = make(map[DirHandle]int, st.ledger.dirs.Len())
	st.reserved = make(map[string]struct{})

	for i := len(st.order) - 1; i >= 0; i-- {
		path := st.order[i]
		pi, _ := st.ledger.Get(path)

		switch e := pi.(type) {
		case *MergedInfo:
			if !e.IsNull {
				st.live[e.Dir]++
			}
		case *ConflictInfo:
			if err := st.processEntry(ctx, path, e); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unexpected ledger entry %T for %q", ErrInternal, pi, path)
		}
	}
	return nil
}

func (st *mergeState) processEntry(ctx context.Context, path string, ci *ConflictInfo) error {
	switch {
	case ci.FileMask == 0:
		// Only directories here; their children have been handled already.
		st.resolveDirectory(path, ci)
		ci.Clean = true
	case ci.DFConflict:
		if err := st.processDFConflict(ctx, path, ci); err != nil {
			return err
		}
	default:
		r, err := st.resolveFile(ctx, path, ci.Stages, ci.FileMask, ci.MatchMask, ci.PathConflict)
		if err != nil {
			return err
		}
		st.apply(path, ci, r)
	}

	st.finish(path, ci)
	return nil
}

// resolveDirectory turns a directory placeholder into a live tree or a
// deletion depending on whether anything below it survived.
func (st *mergeState) resolveDirectory(path string, ci *ConflictInfo) bool {
	if st.directoryLive(path) {
		ci.Result = VersionInfo{Mode: filemode.Dir}
		ci.IsNull = false
		return true
	}
	ci.Result = VersionInfo{}
	ci.IsNull = true
	return false
}

func (st *mergeState) directoryLive(path string) bool {
	h, ok := st.ledger.dirs.Lookup(path)
	return ok && st.live[h] > 0
}

// processDFConflict handles a path that is a file on some sides and a
// directory on others. The directory keeps the path if anything below it
// survives; a surviving file is then moved aside to path~branch.
func (st *mergeState) processDFConflict(ctx context.Context, path string, ci *ConflictInfo) error {
	var stages [3]VersionInfo
	for i := range stages {
		if !ci.DirMask.Has(i) {
			stages[i] = ci.Stages[i]
		}
	}

	r, err := st.resolveFile(ctx, path, stages, ci.FileMask, ci.MatchMask, ci.PathConflict)
	if err != nil {
		return err
	}

	if !st.resolveDirectory(path, ci) {
		st.apply(path, ci, r)
		return nil
	}

	// The directory stays.
	ci.Clean = !ci.PathConflict
	if ci.PathConflict {
		ci.Kind = ConflictPathCollision
	}
	if r.isNull {
		return nil
	}

	ci.Clean = false
	ci.Kind = ConflictDirectoryFile
	st.relocate(path, ci, r.side, r.result)
	if r.relocate != 0 {
		st.relocate(path, ci, r.relocate, ci.Stages[r.relocate])
	}
	return nil
}

// apply stores a file resolution into the entry.
func (st *mergeState) apply(path string, ci *ConflictInfo, r resolution) {
	ci.Result = r.result
	ci.IsNull = r.isNull
	ci.Clean = r.clean
	ci.Kind = r.kind
	if r.relocate != 0 {
		st.relocate(path, ci, r.relocate, ci.Stages[r.relocate])
	}
}

// finish records unmerged entries and counts live ones toward their directory.
func (st *mergeState) finish(path string, ci *ConflictInfo) {
	if !ci.Clean {
		st.ledger.markUnmerged(path, ci)
		st.log.Info(conflictMessage(path, ci, st.labels))
	}
	if !ci.IsNull {
		st.live[ci.Dir]++
	}
	st.live[ci.Dir] += len(ci.Relocated)
}

// resolveFile applies the decision table to the file versions of one path.
func (st *mergeState) resolveFile(ctx context.Context, path string, stages [3]VersionInfo,
	filemask, matchMask SideMask, pathConflict bool) (resolution, error) {

	var r resolution
	switch {
	case matchMask != 0:
		if matchMask == MaskSide1|MaskSide2 {
			r.side = StageSide1
		} else {
			// Take the side that did not match base.
			r.side = StageSide1
			if MaskAll&^matchMask == MaskSide2 {
				r.side = StageSide2
			}
		}
		r.isNull = !filemask.Has(r.side)
		if !r.isNull {
			r.result = stages[r.side]
		}
		r.clean = !pathConflict

	case filemask.Has(StageSide1) && filemask.Has(StageSide2) &&
		objectKind(stages[StageSide1].Mode) != objectKind(stages[StageSide2].Mode):
		// e.g. a regular file on one side and a symlink on the other.
		r.side = StageSide1
		r.result = stages[StageSide1]
		r.kind = ConflictDistinctTypes
		r.relocate = StageSide2

	case filemask.Has(StageSide1) && filemask.Has(StageSide2):
		return st.mergeBothChanged(ctx, path, stages, filemask.Has(StageBase), pathConflict)

	case filemask == MaskBase|MaskSide1 || filemask == MaskBase|MaskSide2:
		// Modified on one side, deleted on the other: keep the modification.
		r.side = StageSide1
		if filemask.Has(StageSide2) {
			r.side = StageSide2
		}
		r.result = stages[r.side]
		r.kind = ConflictModifyDelete

	case filemask == MaskSide1 || filemask == MaskSide2:
		r.side = StageSide1
		if filemask == MaskSide2 {
			r.side = StageSide2
		}
		r.result = stages[r.side]
		r.clean = !pathConflict

	case filemask == MaskBase:
		r.isNull = true
		r.clean = !pathConflict

	default:
		return r, fmt.Errorf("%w: unhandled filemask %d for %q", ErrInternal, filemask, path)
	}

	if !r.clean && r.kind == ConflictNone {
		r.kind = ConflictPathCollision
	}
	return r, nil
}

// mergeBothChanged handles a path present as the same kind of object on both
// sides with different content or mode.
func (st *mergeState) mergeBothChanged(ctx context.Context, path string, stages [3]VersionInfo,
	hasBase, pathConflict bool) (resolution, error) {

	base, ours, theirs := stages[StageBase], stages[StageSide1], stages[StageSide2]
	r := resolution{side: StageSide1, kind: ConflictContent}
	if !hasBase {
		r.kind = ConflictAddAdd
	}

	mode, modeClean := mergeModes(base.Mode, ours.Mode, theirs.Mode, hasBase)
	if !modeClean {
		switch st.opts.Variant {
		case VariantOurs:
			mode, modeClean = ours.Mode, true
		case VariantTheirs:
			mode, modeClean = theirs.Mode, true
		}
	}

	var hash plumbing.Hash
	contentClean, merged := true, false
	switch {
	case ours.Hash == theirs.Hash:
		hash = ours.Hash
	case hasBase && ours.Hash == base.Hash:
		hash = theirs.Hash
	case hasBase && theirs.Hash == base.Hash:
		hash = ours.Hash
	default:
		var err error
		hash, contentClean, merged, err = st.mergeContent(ctx, path, base, ours, theirs, hasBase)
		if err != nil {
			return r, err
		}
	}

	// The content merger already applied the variant hunk by hunk. Without
	// one, the favored side's blob is taken whole.
	if !contentClean && !merged {
		switch st.opts.Variant {
		case VariantOurs:
			hash, contentClean = ours.Hash, true
		case VariantTheirs:
			hash, contentClean = theirs.Hash, true
			r.side = StageSide2
		}
	}

	r.result = VersionInfo{Hash: hash, Mode: mode}
	r.clean = contentClean && modeClean && !pathConflict
	switch {
	case !contentClean:
	case !modeClean:
		r.kind = ConflictMode
	case pathConflict:
		r.kind = ConflictPathCollision
	default:
		r.kind = ConflictNone
	}
	return r, nil
}

// mergeContent runs the configured content merger over regular files and
// reports whether it did. When no merger applies, side 1's blob is kept as the
// provisional result.
func (st *mergeState) mergeContent(ctx context.Context, path string, base, ours, theirs VersionInfo,
	hasBase bool) (plumbing.Hash, bool, bool, error) {

	if st.opts.ContentMerger == nil || !isRegularKind(ours.Mode) || !isRegularKind(theirs.Mode) {
		return ours.Hash, false, false, nil
	}

	in := ContentInput{
		Path:        path,
		OursLabel:   st.labels[StageSide1],
		TheirsLabel: st.labels[StageSide2],
		Variant:     st.opts.Variant,
	}
	var err error
	if hasBase && isRegularKind(base.Mode) {
		in.HasBase = true
		if in.Base, err = st.store.Blob(ctx, base.Hash); err != nil {
			return plumbing.ZeroHash, false, true, fmt.Errorf("reading base of %q: %w", path, err)
		}
	}
	if in.Ours, err = st.store.Blob(ctx, ours.Hash); err != nil {
		return plumbing.ZeroHash, false, true, fmt.Errorf("reading %s version of %q: %w", in.OursLabel, path, err)
	}
	if in.Theirs, err = st.store.Blob(ctx, theirs.Hash); err != nil {
		return plumbing.ZeroHash, false, true, fmt.Errorf("reading %s version of %q: %w", in.TheirsLabel, path, err)
	}

	res, err := st.opts.ContentMerger.MergeContent(ctx, in)
	if err != nil {
		return plumbing.ZeroHash, false, true, fmt.Errorf("merging content of %q: %w", path, err)
	}
	h, err := st.store.WriteBlob(ctx, res.Content)
	if err != nil {
		return plumbing.ZeroHash, false, true, fmt.Errorf("writing merged content of %q: %w", path, err)
	}

	st.log.Debug("content merged", zap.String("path", path), zap.Bool("conflict", res.Conflict))
	return h, !res.Conflict, true, nil
}

// mergeModes merges file modes three-way. A conflict keeps side 1's mode.
func mergeModes(base, ours, theirs filemode.FileMode, hasBase bool) (filemode.FileMode, bool) {
	switch {
	case ours == theirs:
		return ours, true
	case hasBase && ours == base:
		return theirs, true
	case hasBase && theirs == base:
		return ours, true
	}
	return ours, false
}

// relocate records that stage's version v of path is written to path~branch.
func (st *mergeState) relocate(path string, ci *ConflictInfo, stage int, v VersionInfo) {
	if v.IsNull() {
		return
	}
	newPath := st.uniquePath(path, st.labels[stage])
	ci.Pathnames[stage] = newPath
	ci.Relocated = append(ci.Relocated, Relocation{Stage: stage, Path: newPath, Version: v})
}

// uniquePath returns path~branch, or path~branch_N if that name is taken.
func (st *mergeState) uniquePath(path, branch string) string {
	base := path + "~" + strings.ReplaceAll(branch, "/", "_")
	candidate := base
	for n := 0; st.taken(candidate); n++ {
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
	st.reserved[candidate] = struct{}{}
	return candidate
}

func (st *mergeState) taken(path string) bool {
	if _, ok := st.ledger.Get(path); ok {
		return true
	}
	_, ok := st.reserved[path]
	return ok
}
