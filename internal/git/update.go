package git

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	appcfg "git.home.luguber.info/inful/manifestd/internal/config"
	"git.home.luguber.info/inful/manifestd/internal/logfields"
)

func (c *Client) updateExistingRepo(repoPath string, repo appcfg.Repository) (string, error) {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	slog.Debug("Updating repository", logfields.Repository(repo.Name), logfields.Path(repoPath))
	wt, err := repository.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}

	if err := c.fetchOrigin(repository, repo); err != nil {
		return "", classifyCloneError("fetch", repo.URL, err)
	}

	branch, err := resolveTargetBranch(repository, repo)
	if err != nil {
		return "", err
	}

	localRef, remoteRef, err := checkoutAndGetRefs(repository, wt, branch)
	if err != nil {
		return "", err
	}

	if err := syncWithRemote(repository, wt, repo, branch, localRef, remoteRef); err != nil {
		return "", err
	}

	logRepositoryUpdated(repository, repo, branch)
	return repoPath, nil
}

// fetchOrigin performs a fetch of the origin remote with appropriate depth, refspec, and authentication.
func (c *Client) fetchOrigin(repository *git.Repository, repo appcfg.Repository) error {
	fetchOpts := &git.FetchOptions{RemoteName: "origin", Tags: git.NoTags, RefSpecs: []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"}}
	if c.buildCfg != nil && c.buildCfg.ShallowDepth > 0 {
		fetchOpts.Depth = c.buildCfg.ShallowDepth
	}
	if repo.Auth != nil {
		auth, err := c.getAuthentication(repo.Auth)
		if err != nil {
			return err
		}
		fetchOpts.Auth = auth
	}
	if err := repository.Fetch(fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// resolveTargetBranch determines the branch to update or checkout, following precedence rules:
// 1. Explicit branch in config, 2. Current HEAD branch, 3. Remote default branch, 4. "main" fallback.
func resolveTargetBranch(repository *git.Repository, repo appcfg.Repository) (string, error) {
	if repo.Branch != "" {
		return repo.Branch, nil
	}
	if headRef, err := repository.Head(); err == nil && headRef.Name().IsBranch() {
		return headRef.Name().Short(), nil
	}
	if def, err := resolveRemoteDefaultBranch(repository); err == nil && def != "" {
		return def, nil
	}
	return "main", nil
}

// checkoutAndGetRefs ensures the local branch exists and is checked out, returning both local and remote references.
func checkoutAndGetRefs(repository *git.Repository, wt *git.Worktree, branch string) (localRef, remoteRef *plumbing.Reference, err error) {
	localBranchRef := plumbing.NewBranchReferenceName(branch)
	remoteBranchRef := plumbing.NewRemoteReferenceName("origin", branch)
	remoteRef, err = repository.Reference(remoteBranchRef, true)
	if err != nil {
		return nil, nil, fmt.Errorf("remote ref: %w", err)
	}
	localRef, lerr := repository.Reference(localBranchRef, true)
	if lerr != nil { // create local branch
		if err = wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Create: true, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout new branch: %w", err)
		}
		localRef, _ = repository.Reference(localBranchRef, true)
	} else {
		if err = wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout existing branch: %w", err)
		}
	}
	return localRef, remoteRef, nil
}

// syncWithRemote aligns the local branch with the remote. The refresher's
// checkout never holds changes worth keeping, so divergence is always
// resolved by hard reset to the remote head.
func syncWithRemote(repository *git.Repository, wt *git.Worktree, repo appcfg.Repository, branch string, localRef, remoteRef *plumbing.Reference) error {
	fastForwardPossible, ffErr := isAncestor(repository, localRef.Hash(), remoteRef.Hash())
	if ffErr != nil {
		slog.Warn("ancestor check failed", logfields.Error(ffErr))
	}
	currentHead, _ := repository.Head()
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset to remote: %w", err)
	}
	switch {
	case currentHead != nil && currentHead.Hash() == remoteRef.Hash():
		slog.Info("Repository already up-to-date", logfields.Repository(repo.Name), logfields.Branch(branch), logfields.Commit(shortHash(remoteRef.Hash())))
	case fastForwardPossible:
		slog.Info("Fast-forwarded repository", logfields.Repository(repo.Name), logfields.Branch(branch), logfields.Commit(shortHash(remoteRef.Hash())))
	default:
		slog.Warn("Local branch diverged, reset to remote", logfields.Repository(repo.Name), logfields.Branch(branch), logfields.Commit(shortHash(remoteRef.Hash())))
	}
	return nil
}

// logRepositoryUpdated logs a repository update summary, including the short commit hash if available.
func logRepositoryUpdated(repository *git.Repository, repo appcfg.Repository, branch string) {
	if headRef, err := repository.Head(); err == nil {
		slog.Info("Repository updated", logfields.Repository(repo.Name), logfields.Branch(branch), logfields.Commit(shortHash(headRef.Hash())))
	} else {
		slog.Info("Repository updated", logfields.Repository(repo.Name), logfields.Branch(branch))
	}
}

func resolveRemoteDefaultBranch(repo *git.Repository) (string, error) {
	ref, err := repo.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"), true)
	if err != nil {
		return "", err
	}
	target := ref.Target()
	if target == "" {
		return "", fmt.Errorf("origin/HEAD target empty")
	}
	return plumbing.ReferenceName(target).Short(), nil
}

func isAncestor(repo *git.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}
