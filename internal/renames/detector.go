// Package renames finds renamed files between two trees using go-git's
// similarity-based rename detection.
package renames

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/kurobon/ortmerge/internal/ort"
)

// Detector reports files of base that reappear under another name in side.
type Detector struct {
	// Score is the minimum similarity, 0..100, for a delete/add pair to count
	// as a rename.
	Score int
	// Limit caps the number of files compared. -1 and 0 mean no limit.
	Limit int
	// ExactOnly restricts detection to unchanged content.
	ExactOnly bool

	Logger *zap.Logger
}

var _ ort.RenameDetector = (*Detector)(nil)

// NewDetector builds a Detector from merge options.
func NewDetector(opts ort.Options) *Detector {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{
		Score:     opts.RenameScore,
		Limit:     opts.RenameLimit,
		ExactOnly: opts.RenameScore == ort.MaxRenameScore,
		Logger:    log,
	}
}

// DetectRenames implements ort.RenameDetector.
func (d *Detector) DetectRenames(ctx context.Context, base, side *object.Tree) (map[string]string, error) {
	limit := uint(0)
	if d.Limit > 0 {
		limit = uint(d.Limit)
	}

	changes, err := object.DiffTreeWithOptions(ctx, base, side, &object.DiffTreeOptions{
		DetectRenames:    true,
		RenameScore:      uint(d.Score),
		RenameLimit:      limit,
		OnlyExactRenames: d.ExactOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("diffing trees: %w", err)
	}

	pairs := make(map[string]string)
	for _, ch := range changes {
		from, to := ch.From.Name, ch.To.Name
		if from == "" || to == "" || from == to {
			continue
		}
		pairs[from] = to
	}

	if d.Logger != nil && len(pairs) > 0 {
		d.Logger.Debug("renames detected", zap.Int("count", len(pairs)), zap.Int("changes", len(changes)))
	}
	return pairs, nil
}
