// Package gitinfo reads revision information from the git repository that
// contains a project.
package gitinfo

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	ErrNoRepository = errors.New("not inside a git repository")
	// ErrNoCommits is returned for a repository whose HEAD has no commit yet.
	ErrNoCommits = errors.New("git repository has no commits")
)

// Head describes the commit checked out in a repository.
type Head struct {
	Hash plumbing.Hash
	// Branch is the short branch name, or "" for a detached HEAD.
	Branch string
	// CommitTime is the committer time of the HEAD commit.
	CommitTime time.Time
}

// ReadHead opens the repository containing dir (dir itself or any parent)
// and returns information about its HEAD commit.
func ReadHead(dir string) (*Head, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoRepository
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", dir, err)
	}

	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrNoCommits
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("commit lookup failed: %w", err)
	}

	h := &Head{
		Hash:       ref.Hash(),
		CommitTime: commit.Committer.When,
	}
	if ref.Name().IsBranch() {
		h.Branch = ref.Name().Short()
	}
	return h, nil
}

// HeadCommitTime returns the committer time of HEAD in the repository
// containing dir.
func HeadCommitTime(dir string) (time.Time, error) {
	h, err := ReadHead(dir)
	if err != nil {
		return time.Time{}, err
	}
	return h.CommitTime, nil
}
