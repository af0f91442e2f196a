package ort

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
)

// Stage indices into ConflictInfo.Stages and friends.
const (
	StageBase  = 0
	StageSide1 = 1
	StageSide2 = 2
)

// VersionInfo identifies one version of one path: content id plus file mode.
// The zero value means "absent on this side".
type VersionInfo struct {
	Hash plumbing.Hash
	Mode filemode.FileMode
}

// IsNull reports whether the version describes a missing path.
func (v VersionInfo) IsNull() bool {
	return v.Mode == filemode.Empty && v.Hash.IsZero()
}

// Equal compares content and mode.
func (v VersionInfo) Equal(o VersionInfo) bool {
	return v.Mode == o.Mode && v.Hash == o.Hash
}

// IsDir reports whether the version is a tree.
func (v VersionInfo) IsDir() bool {
	return v.Mode == filemode.Dir
}

// modeTypeMask selects the S_IFMT bits of a git mode.
const modeTypeMask = 0170000

// objectKind returns the fundamental type of a mode: regular file, symlink or
// gitlink. Regular and executable files share a kind.
func objectKind(m filemode.FileMode) uint32 {
	return uint32(m) & modeTypeMask
}

// isRegularKind reports whether m is a plain or executable file.
func isRegularKind(m filemode.FileMode) bool {
	return objectKind(m) == objectKind(filemode.Regular)
}

// SideMask is a 3-bit set over {base, side1, side2}.
type SideMask uint8

const (
	MaskBase  SideMask = 1 << StageBase
	MaskSide1 SideMask = 1 << StageSide1
	MaskSide2 SideMask = 1 << StageSide2
	MaskAll            = MaskBase | MaskSide1 | MaskSide2
)

// Has reports whether stage i is in the set.
func (m SideMask) Has(i int) bool {
	return m&(1<<i) != 0
}
