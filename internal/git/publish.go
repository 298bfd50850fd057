package git

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	appcfg "git.home.luguber.info/inful/manifestd/internal/config"
	"git.home.luguber.info/inful/manifestd/internal/logfields"
)

// Identity is the fixed committer identity used for publish commits.
type Identity struct {
	Name  string
	Email string
}

// CommittedFile reads the blob at relPath from the HEAD commit of the
// repository at repoPath. The second return reports whether the file exists
// in HEAD; an unborn branch (no commits yet) counts as absent.
func CommittedFile(repoPath, relPath string) ([]byte, bool, error) {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, false, fmt.Errorf("open repo: %w", err)
	}

	headRef, err := repository.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("resolve HEAD: %w", err)
	}

	commit, err := repository.CommitObject(headRef.Hash())
	if err != nil {
		return nil, false, fmt.Errorf("HEAD commit: %w", err)
	}

	file, err := commit.File(relPath)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup %s at HEAD: %w", relPath, err)
	}

	reader, err := file.Blob.Reader()
	if err != nil {
		return nil, false, fmt.Errorf("read blob %s: %w", relPath, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("read blob %s: %w", relPath, err)
	}
	return data, true, nil
}

// PublishArtifact writes content to relPath inside the checkout, stages
// exactly that path, commits with the given identity and message, and pushes
// the current branch to origin. Returns the new commit hash.
//
// The staged set is exactly the artifact file; any other worktree changes are
// left unstaged so a publish commit can never smuggle unrelated edits.
func (c *Client) PublishArtifact(repoPath, relPath string, content []byte, identity Identity, message string, auth *appcfg.AuthConfig, push bool) (string, error) {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	wt, err := repository.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}

	absPath := filepath.Join(repoPath, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o750); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(absPath, content, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	if _, err := wt.Add(relPath); err != nil {
		return "", fmt.Errorf("stage artifact: %w", err)
	}

	sig := &object.Signature{Name: identity.Name, Email: identity.Email, When: time.Now()}
	commitHash, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return "", fmt.Errorf("commit artifact: %w", err)
	}
	slog.Info("Artifact committed", logfields.Artifact(relPath), logfields.Commit(shortHash(commitHash)))

	if !push {
		slog.Debug("Push disabled, leaving commit local", logfields.Commit(shortHash(commitHash)))
		return commitHash.String(), nil
	}

	if err := c.pushOrigin(repository, repoPath, auth); err != nil {
		return commitHash.String(), err
	}
	slog.Info("Artifact pushed", logfields.Artifact(relPath), logfields.Commit(shortHash(commitHash)))
	return commitHash.String(), nil
}

func (c *Client) pushOrigin(repository *git.Repository, repoPath string, auth *appcfg.AuthConfig) error {
	pushOpts := &git.PushOptions{RemoteName: "origin"}
	if auth != nil {
		method, err := c.getAuthentication(auth)
		if err != nil {
			return fmt.Errorf("failed to setup authentication: %w", err)
		}
		pushOpts.Auth = method
	}

	err := repository.Push(pushOpts)
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}

	branch := "HEAD"
	if headRef, herr := repository.Head(); herr == nil && headRef.Name().IsBranch() {
		branch = headRef.Name().Short()
	}
	url := repoPath
	if remote, rerr := repository.Remote("origin"); rerr == nil && len(remote.Config().URLs) > 0 {
		url = remote.Config().URLs[0]
	}
	return classifyPushError(url, branch, err)
}
