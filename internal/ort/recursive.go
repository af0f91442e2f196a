package ort

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// MergeCommits merges the trees of two commits over their merge base. When the
// commits have several merge bases, the bases are first merged into a virtual
// ancestor tree by nested merges; conflicts inside those nested merges are
// kept with their provisional content. Commits without a common ancestor are
// merged over the empty tree.
func (m *Merger) MergeCommits(ctx context.Context, side1, side2 *object.Commit) (*Result, error) {
	base, err := m.ancestorTree(ctx, side1, side2)
	if err != nil {
		m.log.Error("computing merge base failed",
			zap.Stringer("side1", side1.Hash), zap.Stringer("side2", side2.Hash), zap.Error(err))
		return failedResult(), err
	}
	return m.MergeTrees(ctx, base, side1.TreeHash, side2.TreeHash)
}

// ancestorTree returns the tree to use as merge base for c1 and c2.
func (m *Merger) ancestorTree(ctx context.Context, c1, c2 *object.Commit) (plumbing.Hash, error) {
	bases, err := c1.MergeBase(c2)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("merge base of %s and %s: %w", c1.Hash, c2.Hash, err)
	}
	return m.foldBases(ctx, bases)
}

// foldBases merges a set of merge bases into one tree. The virtual ancestor
// built so far stands for every base folded into it, so the ancestor for the
// next fold step is computed from the merge bases of all of them.
func (m *Merger) foldBases(ctx context.Context, bases []*object.Commit) (plumbing.Hash, error) {
	switch len(bases) {
	case 0:
		return EmptyTreeHash, nil
	case 1:
		return bases[0].TreeHash, nil
	}

	// Oldest first, as git folds them.
	sort.Slice(bases, func(i, j int) bool {
		return bases[i].Committer.When.Before(bases[j].Committer.When)
	})

	m.callDepth++
	defer func() { m.callDepth-- }()

	m.log.Info("merging multiple merge bases",
		zap.Int("bases", len(bases)), zap.Int("depth", m.callDepth))

	folded := []*object.Commit{bases[0]}
	virtual := bases[0].TreeHash
	for _, next := range bases[1:] {
		common, err := commonAncestors(folded, next)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		ancestor, err := m.foldBases(ctx, common)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		res, err := m.mergeTrees(ctx, ancestor, virtual, next.TreeHash, m.labels())
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("building virtual merge base: %w", err)
		}
		virtual = res.Tree
		folded = append(folded, next)
	}
	return virtual, nil
}

// commonAncestors returns the best common ancestors of next and a commit
// whose parents are folded.
func commonAncestors(folded []*object.Commit, next *object.Commit) ([]*object.Commit, error) {
	seen := make(map[plumbing.Hash]struct{})
	var candidates []*object.Commit
	for _, c := range folded {
		bases, err := c.MergeBase(next)
		if err != nil {
			return nil, fmt.Errorf("merge base of %s and %s: %w", c.Hash, next.Hash, err)
		}
		for _, b := range bases {
			if _, ok := seen[b.Hash]; ok {
				continue
			}
			seen[b.Hash] = struct{}{}
			candidates = append(candidates, b)
		}
	}
	if len(candidates) < 2 {
		return candidates, nil
	}
	best, err := object.Independents(candidates)
	if err != nil {
		return nil, fmt.Errorf("reducing merge bases of %s: %w", next.Hash, err)
	}
	return best, nil
}
