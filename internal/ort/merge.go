package ort

// merge.go - Merge coordinator
//
// Runs walker, rename detection, resolver and tree builder in that order over
// one ledger, and packages the outcome.

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Status tells a clean merge from a conflicted one and from a failed one.
type Status int

const (
	StatusClean Status = iota
	StatusConflicted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusClean:
		return "clean"
	case StatusConflicted:
		return "conflicted"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Conflict describes one unmerged path.
type Conflict struct {
	Path      string
	Kind      ConflictKind
	Stages    [3]VersionInfo
	Pathnames [3]string
	Message   string
}

// Result is the outcome of a merge.
type Result struct {
	Tree     plumbing.Hash
	Clean    bool
	Status   Status
	Unmerged []string
	// Conflicts is ordered like Unmerged.
	Conflicts []Conflict
	// Renames holds the rename pairs found for side 1 and side 2, keyed by stage.
	Renames map[int]map[string]string
	// Ledger is the path ledger of the outermost merge. Nested merges drop theirs.
	Ledger *Ledger
}

func failedResult() *Result {
	return &Result{Status: StatusFailed}
}

// Merger runs in-core three-way merges against one object store. A Merger runs
// one merge at a time.
type Merger struct {
	store     Store
	opts      Options
	log       *zap.Logger
	callDepth int
}

// New validates opts and returns a Merger.
func New(store Store, opts Options) (*Merger, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RenameDetector == nil {
		opts.RenameDetector = NoRenames{}
	}
	return &Merger{store: store, opts: opts, log: opts.Logger}, nil
}

// mergeState is everything one merge invocation owns.
type mergeState struct {
	store  Store
	opts   *Options
	log    *zap.Logger
	ledger *Ledger
	trees  [3]plumbing.Hash
	labels [3]string
	depth  int

	renames  map[int]map[string]string
	order    []string
	live     map[DirHandle]int
	reserved map[string]struct{}
}

// MergeTrees merges side1 and side2 using base as the common ancestor. A zero
// base hash stands for the empty tree.
//
// Conflicts are not errors: they come back in a result with Clean unset. An
// error means the merge could not run; the result then has StatusFailed.
func (m *Merger) MergeTrees(ctx context.Context, base, side1, side2 plumbing.Hash) (*Result, error) {
	return m.mergeTrees(ctx, base, side1, side2, m.labels())
}

func (m *Merger) labels() [3]string {
	if m.callDepth > 0 {
		return [3]string{m.opts.Ancestor, "Temporary merge branch 1", "Temporary merge branch 2"}
	}
	return [3]string{m.opts.Ancestor, m.opts.Branch1, m.opts.Branch2}
}

func (m *Merger) mergeTrees(ctx context.Context, base, side1, side2 plumbing.Hash, labels [3]string) (*Result, error) {
	st := &mergeState{
		store:  m.store,
		opts:   &m.opts,
		log:    m.log.With(zap.Int("depth", m.callDepth)),
		ledger: NewLedger(),
		trees:  [3]plumbing.Hash{base, side1, side2},
		labels: labels,
		depth:  m.callDepth,
	}

	res, err := st.run(ctx)
	if err != nil {
		st.log.Error("merge failed", zap.Error(err))
		return failedResult(), err
	}
	// Only the outermost frame hands the ledger to its caller.
	if st.depth == 0 {
		res.Ledger = st.ledger
	}
	st.ledger = nil
	return res, nil
}

func (st *mergeState) run(ctx context.Context) (*Result, error) {
	var trees [3]*object.Tree
	for i, h := range st.trees {
		t, err := st.readRoot(ctx, h)
		if err != nil {
			return nil, &TraversalError{Stage: i, Trees: st.trees, Err: err}
		}
		trees[i] = t
	}

	if err := st.collectMergeInfo(ctx, trees[StageBase], trees[StageSide1], trees[StageSide2]); err != nil {
		return nil, err
	}

	renamesClean, err := st.detectAndProcessRenames(ctx, trees)
	if err != nil {
		return nil, err
	}

	if err := st.processEntries(ctx); err != nil {
		return nil, err
	}

	root, err := st.buildTrees(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Tree:     root,
		Unmerged: st.ledger.UnmergedPaths(),
		Renames:  st.renames,
	}
	for _, p := range res.Unmerged {
		ci, _ := st.ledger.Unmerged(p)
		res.Conflicts = append(res.Conflicts, Conflict{
			Path:      p,
			Kind:      ci.Kind,
			Stages:    ci.Stages,
			Pathnames: ci.Pathnames,
			Message:   conflictMessage(p, ci, st.labels),
		})
	}
	res.Clean = renamesClean && len(res.Unmerged) == 0
	res.Status = StatusClean
	if !res.Clean {
		res.Status = StatusConflicted
	}

	st.log.Info("merge finished",
		zap.Stringer("tree", root),
		zap.Bool("clean", res.Clean),
		zap.Int("paths", st.ledger.Len()),
		zap.Int("unmerged", len(res.Unmerged)))
	return res, nil
}

// readRoot loads a top-level tree; the zero hash and the empty tree need no
// object in the store.
func (st *mergeState) readRoot(ctx context.Context, h plumbing.Hash) (*object.Tree, error) {
	if h.IsZero() || h == EmptyTreeHash {
		return &object.Tree{}, nil
	}
	return st.store.Tree(ctx, h)
}

// renameSource is the side and base path a rename target was claimed by.
type renameSource struct {
	side int
	path string
}

// detectAndProcessRenames records rename pairs on the ledger. Pathnames of a
// renamed source point at its new name. Two different sources renamed onto
// one target, on the same side or across sides, mark both sources and the
// target as path conflicts.
func (st *mergeState) detectAndProcessRenames(ctx context.Context, trees [3]*object.Tree) (bool, error) {
	if !st.opts.DetectRenames {
		return true, nil
	}

	clean := true
	targets := make(map[string]renameSource)
	for side := StageSide1; side <= StageSide2; side++ {
		pairs, err := st.opts.RenameDetector.DetectRenames(ctx, trees[StageBase], trees[side])
		if err != nil {
			return false, fmt.Errorf("detecting renames for %s: %w", st.labels[side], err)
		}
		if len(pairs) == 0 {
			continue
		}
		if st.renames == nil {
			st.renames = make(map[int]map[string]string)
		}
		st.renames[side] = pairs

		sources := lo.Keys(pairs)
		sort.Strings(sources)

		for _, old := range sources {
			newPath := pairs[old]
			if ci := st.conflictAt(old); ci != nil {
				ci.Pathnames[side] = newPath
			}
			prev, ok := targets[newPath]
			if !ok {
				targets[newPath] = renameSource{side: side, path: old}
				continue
			}
			// Both sides renaming the same file to the same name agree.
			if prev.path == old {
				continue
			}
			st.markPathConflict(prev.path)
			st.markPathConflict(old)
			st.markPathConflict(newPath)
			clean = false
			st.log.Info("rename collision",
				zap.Strings("sides", []string{st.labels[prev.side], st.labels[side]}),
				zap.Strings("sources", []string{prev.path, old}),
				zap.String("target", newPath))
		}
	}
	return clean, nil
}

func (st *mergeState) conflictAt(path string) *ConflictInfo {
	pi, ok := st.ledger.Get(path)
	if !ok {
		return nil
	}
	ci, _ := pi.(*ConflictInfo)
	return ci
}

func (st *mergeState) markPathConflict(path string) {
	if ci := st.conflictAt(path); ci != nil && ci.FileMask != 0 {
		ci.PathConflict = true
	}
}

// conflictMessage renders an unmerged entry the way git reports it.
func conflictMessage(path string, ci *ConflictInfo, labels [3]string) string {
	switch ci.Kind {
	case ConflictContent, ConflictAddAdd:
		return fmt.Sprintf("CONFLICT (%s): Merge conflict in %s", ci.Kind, path)
	case ConflictModifyDelete:
		deleted, modified := labels[StageSide2], labels[StageSide1]
		if ci.FileMask.Has(StageSide2) {
			deleted, modified = labels[StageSide1], labels[StageSide2]
		}
		return fmt.Sprintf("CONFLICT (modify/delete): %s deleted in %s and modified in %s.", path, deleted, modified)
	case ConflictDistinctTypes:
		return fmt.Sprintf("CONFLICT (distinct types): %s had different types on each side; moved one of them out of the way to %s.",
			path, relocatedNames(ci))
	case ConflictDirectoryFile:
		return fmt.Sprintf("CONFLICT (file/directory): directory in the way of %s; moving it to %s instead.",
			path, relocatedNames(ci))
	case ConflictMode:
		return fmt.Sprintf("CONFLICT (mode): %s has conflicting modes on each side", path)
	case ConflictPathCollision:
		return fmt.Sprintf("CONFLICT (rename collision): %s is involved in colliding renames", path)
	}
	return fmt.Sprintf("CONFLICT: %s", path)
}

func relocatedNames(ci *ConflictInfo) string {
	return strings.Join(lo.Map(ci.Relocated, func(r Relocation, _ int) string {
		return r.Path
	}), " and ")
}
