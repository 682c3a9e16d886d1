package snapshot

import (
	"github.com/go-git/go-git/v5"
)

// readGitState returns HEAD, branch and dirty flag for the repository
// containing root, or nil when root is not inside a git work tree.
func readGitState(root string, withStatus bool) *GitState {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}
	state := &GitState{}
	head, err := repo.Head()
	if err != nil {
		// Fresh repository with no commits.
		return state
	}
	state.Head = head.Hash().String()
	if head.Name().IsBranch() {
		state.Branch = head.Name().Short()
	}
	if !withStatus {
		return state
	}
	wt, err := repo.Worktree()
	if err != nil {
		return state
	}
	status, err := wt.Status()
	if err != nil {
		return state
	}
	state.Dirty = !status.IsClean()
	return state
}
