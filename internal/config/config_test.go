package config

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kurobon/ortmerge/internal/contentmerge"
	"github.com/kurobon/ortmerge/internal/ort"
	"github.com/kurobon/ortmerge/internal/renames"
)

func TestDefaultConfigFromEnvironment(t *testing.T) {
	t.Setenv("ORTMERGE_VARIANT", "theirs")
	t.Setenv("ORTMERGE_RENAME_SCORE", "70")
	t.Setenv("ORTMERGE_DETECT_RENAMES", "false")
	t.Setenv("ORTMERGE_RENAME_LIMIT", "not a number")

	c := DefaultConfig()

	assert.Equal(t, "theirs", c.Variant)
	assert.Equal(t, 70, c.RenameScore)
	assert.False(t, c.DetectRenames)
	assert.Equal(t, -1, c.RenameLimit)
	assert.Equal(t, "HEAD", c.Branch1)
	assert.True(t, c.ContentMerge)
}

func TestLoadFS(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "merge.yaml", []byte(`
branch1: main
branch2: topic
variant: ours
rename_score: 80
directory_renames: conservative
content_merge: false
`), 0644))

	c, err := LoadFS(fs, "merge.yaml")
	require.NoError(t, err)

	assert.Equal(t, "main", c.Branch1)
	assert.Equal(t, "topic", c.Branch2)
	assert.Equal(t, "ours", c.Variant)
	assert.Equal(t, 80, c.RenameScore)
	assert.Equal(t, "conservative", c.DirectoryRenames)
	assert.False(t, c.ContentMerge)
	// Unset keys keep their defaults.
	assert.Equal(t, "merged common ancestors", c.Ancestor)
	assert.Equal(t, -1, c.RenameLimit)
}

func TestLoadFSErrors(t *testing.T) {
	fs := memfs.New()

	_, err := LoadFS(fs, "missing.yaml")
	assert.Error(t, err)

	require.NoError(t, util.WriteFile(fs, "bad.yaml", []byte("variant: [unclosed"), 0644))
	_, err = LoadFS(fs, "bad.yaml")
	assert.ErrorContains(t, err, "failed to parse options yaml")
}

func TestOptions(t *testing.T) {
	c := DefaultConfig()
	c.Variant = "ours"
	c.DirectoryRenames = "true"
	log := zap.NewNop()

	opts, err := c.Options(log)
	require.NoError(t, err)

	assert.Equal(t, ort.VariantOurs, opts.Variant)
	assert.Equal(t, ort.DirRenamesTrue, opts.DirectoryRenames)
	assert.Same(t, log, opts.Logger)
	assert.IsType(t, &contentmerge.TextMerger{}, opts.ContentMerger)
	require.IsType(t, &renames.Detector{}, opts.RenameDetector)
	assert.Equal(t, c.RenameScore, opts.RenameDetector.(*renames.Detector).Score)
	assert.NoError(t, opts.Validate())
}

func TestOptionsWithoutCollaborators(t *testing.T) {
	c := DefaultConfig()
	c.ContentMerge = false
	c.DetectRenames = false

	opts, err := c.Options(nil)
	require.NoError(t, err)

	assert.Nil(t, opts.ContentMerger)
	assert.Nil(t, opts.RenameDetector)
}

func TestOptionsRejectsUnknownEnums(t *testing.T) {
	c := DefaultConfig()
	c.Variant = "union"
	c.DirectoryRenames = "maybe"

	_, err := c.Options(nil)

	var ce *ort.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), `"union"`)
	assert.Contains(t, err.Error(), `"maybe"`)
}
