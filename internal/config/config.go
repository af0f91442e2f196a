// Package config provides configuration for merges: defaults from the
// environment, optionally overridden by a YAML options file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kurobon/ortmerge/internal/contentmerge"
	"github.com/kurobon/ortmerge/internal/ort"
	"github.com/kurobon/ortmerge/internal/renames"
)

// MergeConfig holds the user-facing merge settings.
type MergeConfig struct {
	Branch1  string `yaml:"branch1"`
	Branch2  string `yaml:"branch2"`
	Ancestor string `yaml:"ancestor"`

	DetectRenames    bool   `yaml:"detect_renames"`
	RenameScore      int    `yaml:"rename_score"`
	RenameLimit      int    `yaml:"rename_limit"`
	DirectoryRenames string `yaml:"directory_renames"`
	Variant          string `yaml:"variant"`

	// ContentMerge enables the line-based text merge for files changed on
	// both sides.
	ContentMerge bool `yaml:"content_merge"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the default configuration, reading from environment variables.
func DefaultConfig() *MergeConfig {
	defaults := ort.DefaultOptions()
	return &MergeConfig{
		Branch1:          envString("ORTMERGE_BRANCH1", defaults.Branch1),
		Branch2:          envString("ORTMERGE_BRANCH2", defaults.Branch2),
		Ancestor:         envString("ORTMERGE_ANCESTOR", defaults.Ancestor),
		DetectRenames:    envBool("ORTMERGE_DETECT_RENAMES", true),
		RenameScore:      envInt("ORTMERGE_RENAME_SCORE", defaults.RenameScore),
		RenameLimit:      envInt("ORTMERGE_RENAME_LIMIT", defaults.RenameLimit),
		DirectoryRenames: envString("ORTMERGE_DIRECTORY_RENAMES", "none"),
		Variant:          envString("ORTMERGE_VARIANT", "normal"),
		ContentMerge:     envBool("ORTMERGE_CONTENT_MERGE", true),
		LogLevel:         envString("ORTMERGE_LOG_LEVEL", "info"),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt falls back to def for unset or unparsable values.
func envInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

// Load reads the options file at path over the environment defaults.
func Load(path string) (*MergeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}
	return parse(data)
}

// LoadFS is Load against a billy filesystem.
func LoadFS(fs billy.Filesystem, path string) (*MergeConfig, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*MergeConfig, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse options yaml: %w", err)
	}
	return c, nil
}

// Options converts the configuration into merge options with the text merger
// and rename detector attached as configured. Option values are checked by
// ort.New; only the string enums are parsed here.
func (c *MergeConfig) Options(log *zap.Logger) (ort.Options, error) {
	opts := ort.DefaultOptions()
	opts.Branch1 = c.Branch1
	opts.Branch2 = c.Branch2
	opts.Ancestor = c.Ancestor
	opts.DetectRenames = c.DetectRenames
	opts.RenameScore = c.RenameScore
	opts.RenameLimit = c.RenameLimit
	opts.Logger = log

	var result *multierror.Error
	var err error
	if opts.Variant, err = ort.ParseVariant(c.Variant); err != nil {
		result = multierror.Append(result, err)
	}
	if opts.DirectoryRenames, err = ort.ParseDirectoryRenames(c.DirectoryRenames); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return opts, &ort.ConfigError{Err: err}
	}

	if c.ContentMerge {
		opts.ContentMerger = contentmerge.NewTextMerger()
	}
	if c.DetectRenames {
		opts.RenameDetector = renames.NewDetector(opts)
	}
	return opts, nil
}

// Global is the configuration read from the environment at startup.
var Global = DefaultConfig()
