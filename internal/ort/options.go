package ort

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Variant picks a side when both sides changed the same content.
type Variant int

const (
	VariantNormal Variant = iota
	VariantOurs
	VariantTheirs
)

func (v Variant) String() string {
	switch v {
	case VariantNormal:
		return "normal"
	case VariantOurs:
		return "ours"
	case VariantTheirs:
		return "theirs"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// ParseVariant maps "", "normal", "ours" and "theirs" to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return VariantNormal, nil
	case "ours":
		return VariantOurs, nil
	case "theirs":
		return VariantTheirs, nil
	}
	return VariantNormal, fmt.Errorf("unknown merge variant %q", s)
}

// DirectoryRenames is the directory rename detection policy.
type DirectoryRenames int

const (
	DirRenamesNone DirectoryRenames = iota
	DirRenamesConservative
	DirRenamesTrue
)

func (d DirectoryRenames) String() string {
	switch d {
	case DirRenamesNone:
		return "none"
	case DirRenamesConservative:
		return "conservative"
	case DirRenamesTrue:
		return "true"
	}
	return fmt.Sprintf("DirectoryRenames(%d)", int(d))
}

// ParseDirectoryRenames maps "none"/"false", "conservative" and "true".
func ParseDirectoryRenames(s string) (DirectoryRenames, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "false":
		return DirRenamesNone, nil
	case "conservative":
		return DirRenamesConservative, nil
	case "true":
		return DirRenamesTrue, nil
	}
	return DirRenamesNone, fmt.Errorf("unknown directory rename policy %q", s)
}

const (
	// MaxRenameScore is the highest similarity score, meaning identical.
	MaxRenameScore = 100
	// DefaultRenameScore matches git's 50% similarity default.
	DefaultRenameScore = 50
)

// Options configures a Merger.
type Options struct {
	// Branch1 and Branch2 label side 1 and side 2; they show up in conflict
	// markers and in the names of relocated paths.
	Branch1  string
	Branch2  string
	Ancestor string

	DetectRenames    bool
	RenameScore      int
	RenameLimit      int
	DirectoryRenames DirectoryRenames
	Variant          Variant

	// ContentMerger merges blobs changed on both sides. Without one such
	// paths stay conflicted with side 1's content.
	ContentMerger ContentMerger
	// RenameDetector is consulted when DetectRenames is set. Defaults to
	// NoRenames.
	RenameDetector RenameDetector

	Logger *zap.Logger

	// OnDirectoryWritten, if set, is called each time the tree builder
	// finalizes a directory, root included ("").
	OnDirectoryWritten func(dir string)
}

// DefaultOptions returns options with git's defaults.
func DefaultOptions() Options {
	return Options{
		Branch1:     "HEAD",
		Branch2:     "MERGE_HEAD",
		Ancestor:    "merged common ancestors",
		RenameScore: DefaultRenameScore,
		RenameLimit: -1,
	}
}

// ConfigError reports invalid options. It is returned before any object is read.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid merge options: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrMissingLabel is reported for empty branch labels.
var ErrMissingLabel = errors.New("branch label must not be empty")

// Validate checks every option and reports all problems at once.
func (o *Options) Validate() error {
	var result *multierror.Error

	if o.Branch1 == "" {
		result = multierror.Append(result, fmt.Errorf("branch1: %w", ErrMissingLabel))
	}
	if o.Branch2 == "" {
		result = multierror.Append(result, fmt.Errorf("branch2: %w", ErrMissingLabel))
	}
	if o.RenameScore < 0 || o.RenameScore > MaxRenameScore {
		result = multierror.Append(result, fmt.Errorf("rename score %d out of range 0..%d", o.RenameScore, MaxRenameScore))
	}
	if o.RenameLimit < -1 {
		result = multierror.Append(result, fmt.Errorf("rename limit %d must be >= -1", o.RenameLimit))
	}
	if o.DirectoryRenames < DirRenamesNone || o.DirectoryRenames > DirRenamesTrue {
		result = multierror.Append(result, fmt.Errorf("directory rename policy %d out of range", int(o.DirectoryRenames)))
	}
	if o.Variant < VariantNormal || o.Variant > VariantTheirs {
		result = multierror.Append(result, fmt.Errorf("merge variant %d out of range", int(o.Variant)))
	}
	if o.DirectoryRenames != DirRenamesNone && !o.DetectRenames {
		result = multierror.Append(result, errors.New("directory rename detection requires rename detection"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}
