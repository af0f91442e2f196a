// Command merge-tree merges two branches in core and prints the resulting
// tree id followed by any conflicts, without touching the worktree or index.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kurobon/ortmerge/internal/config"
	"github.com/kurobon/ortmerge/internal/git"
	"github.com/kurobon/ortmerge/internal/ort"
)

// errConflicts makes the process exit with status 1 after a conflicted merge.
var errConflicts = errors.New("merge has conflicts")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errConflicts) {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(128)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "merge-tree [--base REV] BRANCH1 BRANCH2",
		Short:         "Merge two branches without touching the worktree",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if !v.IsSet("branch1") {
				cfg.Branch1 = args[0]
			}
			if !v.IsSet("branch2") {
				cfg.Branch2 = args[1]
			}

			log, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			repo, err := git.Open(v.GetString("repo"))
			if err != nil {
				return err
			}

			clean, err := mergeTree(cmd.Context(), repo, cfg, log, v.GetString("base"), args[0], args[1], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if v.GetBool("write") {
				n, err := repo.Persist()
				if err != nil {
					return err
				}
				log.Info("objects written", zap.Int("count", n))
			}
			if !clean {
				return errConflicts
			}
			return nil
		},
	}

	flags := cmd.Flags()
	addFlags(flags)

	v.SetEnvPrefix("ORTMERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return cmd
}

func addFlags(flags *pflag.FlagSet) {
	flags.String("repo", ".", "path to the repository")
	flags.String("base", "", "use this commit or tree as merge base instead of computing merge bases")
	flags.String("config", "", "YAML options file")
	flags.String("branch1", "", "label for the first branch")
	flags.String("branch2", "", "label for the second branch")
	flags.String("variant", "", "resolve conflicting hunks wholesale: ours, theirs or normal")
	flags.Bool("detect-renames", true, "detect renames")
	flags.Int("rename-score", ort.DefaultRenameScore, "minimum similarity (0-100) for renames")
	flags.Int("rename-limit", -1, "maximum number of rename candidates, -1 for no limit")
	flags.String("directory-renames", "", "directory rename detection: none, conservative or true")
	flags.Bool("content-merge", true, "merge text files changed on both sides line by line")
	flags.Bool("write", false, "write the merge result objects into the repository")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig starts from the environment or the options file and applies the
// flags given on the command line.
func loadConfig(v *viper.Viper) (*config.MergeConfig, error) {
	cfg := config.Global
	if path := v.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	} else {
		c := *cfg
		cfg = &c
	}

	strs := map[string]*string{
		"branch1":           &cfg.Branch1,
		"branch2":           &cfg.Branch2,
		"variant":           &cfg.Variant,
		"directory-renames": &cfg.DirectoryRenames,
		"log-level":         &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v.IsSet(key) && v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}
	if v.IsSet("detect-renames") {
		cfg.DetectRenames = v.GetBool("detect-renames")
	}
	if v.IsSet("content-merge") {
		cfg.ContentMerge = v.GetBool("content-merge")
	}
	if v.IsSet("rename-score") {
		cfg.RenameScore = v.GetInt("rename-score")
	}
	if v.IsSet("rename-limit") {
		cfg.RenameLimit = v.GetInt("rename-limit")
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// mergeTree runs the merge and prints the result in the layout of
// git merge-tree --write-tree: the tree id, one line per conflicted stage,
// then the conflict messages.
func mergeTree(ctx context.Context, repo *git.Repository, cfg *config.MergeConfig, log *zap.Logger,
	base, rev1, rev2 string, out io.Writer) (bool, error) {

	opts, err := cfg.Options(log)
	if err != nil {
		return false, err
	}
	m, err := ort.New(repo.Objects, opts)
	if err != nil {
		return false, err
	}

	var res *ort.Result
	if base != "" {
		var trees [3]plumbing.Hash
		for i, rev := range []string{base, rev1, rev2} {
			if trees[i], err = repo.Tree(rev); err != nil {
				return false, err
			}
		}
		res, err = m.MergeTrees(ctx, trees[0], trees[1], trees[2])
	} else {
		var c1, c2 *object.Commit
		if c1, err = repo.Commit(rev1); err != nil {
			return false, err
		}
		if c2, err = repo.Commit(rev2); err != nil {
			return false, err
		}
		res, err = m.MergeCommits(ctx, c1, c2)
	}
	if err != nil {
		return false, err
	}

	writeResult(out, res)
	return res.Clean, nil
}
