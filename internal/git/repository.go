package git

// repository.go - Repository access for the merge engine
//
// Opens an on-disk repository through go-billy and go-git's filesystem
// storage, and layers an in-memory overlay on top so that merge results can be
// computed without writing to the repository until asked to.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/kurobon/ortmerge/internal/store"
)

// ErrNotRepository is returned when a path holds no git repository.
var ErrNotRepository = errors.New("not a git repository")

// Repository is a go-git repository with an object overlay for in-core merges.
type Repository struct {
	Repo    *gogit.Repository
	Storage storage.Storer
	Overlay *store.Overlay
	Objects *store.ObjectStore
}

// Open opens the repository at path. path may be a worktree containing .git
// or a bare repository directory.
func Open(path string) (*Repository, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	var worktree, dotgit billy.Filesystem
	if fi, err := os.Stat(filepath.Join(path, gogit.GitDirName)); err == nil && fi.IsDir() {
		worktree = osfs.New(path)
		dotgit = osfs.New(filepath.Join(path, gogit.GitDirName))
	} else {
		dotgit = osfs.New(path)
	}

	if _, err := dotgit.Stat("objects"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRepository)
	}

	s := filesystem.NewStorage(dotgit, cache.NewObjectLRUDefault())
	repo, err := gogit.Open(s, worktree)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	return Wrap(repo, s), nil
}

// Wrap prepares an already opened repository, e.g. one backed by memory
// storage in tests.
func Wrap(repo *gogit.Repository, s storage.Storer) *Repository {
	overlay := store.NewOverlay(s)
	return &Repository{
		Repo:    repo,
		Storage: s,
		Overlay: overlay,
		Objects: store.New(overlay),
	}
}

// Commit resolves rev to a commit.
func (r *Repository) Commit(rev string) (*object.Commit, error) {
	h, err := ResolveRevision(r.Repo, rev)
	if err != nil {
		return nil, err
	}
	c, err := r.Repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", h, err)
	}
	return c, nil
}

// Tree resolves rev to a tree id. rev may name a commit or, as a full hash,
// a tree.
func (r *Repository) Tree(rev string) (plumbing.Hash, error) {
	rev = strings.TrimSpace(rev)
	if plumbing.IsHash(rev) {
		h := plumbing.NewHash(rev)
		if _, err := r.Repo.TreeObject(h); err == nil {
			return h, nil
		}
	}
	c, err := r.Commit(rev)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return c.TreeHash, nil
}

// Persist writes every object the merge created into the repository and
// returns how many were written.
func (r *Repository) Persist() (int, error) {
	n, err := r.Overlay.Flush()
	if err != nil {
		return n, fmt.Errorf("failed to write merge objects: %w", err)
	}
	return n, nil
}

var errStopIteration = errors.New("stop iteration")

// ResolveRevision resolves a revision string (branch, tag, commit hash, short hash)
// to a full commit hash. Supports abbreviated commit hashes (>= 4 characters).
func ResolveRevision(repo *gogit.Repository, rev string) (*plumbing.Hash, error) {
	rev = strings.TrimSpace(rev)
	// 1. Try standard resolution (branch, tag, full hash)
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err == nil {
		return hash, nil
	}

	// 2. Try short hash resolution
	if len(rev) < 4 || len(rev) >= 40 {
		return nil, fmt.Errorf("revision '%s' not found", rev)
	}

	cIter, err := repo.CommitObjects()
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}

	var match *plumbing.Hash
	ambiguous := false
	err = cIter.ForEach(func(c *object.Commit) error {
		if !strings.HasPrefix(c.Hash.String(), rev) {
			return nil
		}
		if match != nil && *match != c.Hash {
			ambiguous = true
			return errStopIteration
		}
		h := c.Hash
		match = &h
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}

	if ambiguous {
		return nil, fmt.Errorf("short commit hash '%s' is ambiguous", rev)
	}
	if match == nil {
		return nil, fmt.Errorf("revision '%s' not found", rev)
	}
	return match, nil
}
