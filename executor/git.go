package executor

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cardforge/cardforge/internal/apperr"
)

// gitCLI shells out to the system "git" binary for worktree/branch
// management and pushes, the same os/exec idiom platform/session.go uses
// for the agent subprocess (test/contract/neoexpress.go grounding) — the
// pack carries no Git library (go-git appears only outside the teacher's
// own dependency set), and a CLI the operator already has installed is a
// more natural fit here than vendoring a new dependency for one-shot
// commands.
type gitCLI struct {
	repoPath     string
	worktreeRoot string
	remoteName   string
}

// NewGitCLI builds a GitClient rooted at repoPath (the checked-out
// repository HEAD worktrees branch from), creating new worktrees under
// worktreeRoot.
func NewGitCLI(repoPath, worktreeRoot, remoteName string) GitClient {
	if remoteName == "" {
		remoteName = "origin"
	}
	return &gitCLI{repoPath: repoPath, worktreeRoot: worktreeRoot, remoteName: remoteName}
}

func (g *gitCLI) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", apperr.Wrapf(apperr.CodeIntegrationError, err, "git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// CreateWorktree creates branch card/<short-id> at HEAD and a worktree
// under a deterministic path, per spec.md §4.7's CreateGitWorktree row.
func (g *gitCLI) CreateWorktree(ctx context.Context, cardID string) (string, string, error) {
	shortID := cardID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	branch := "card/" + shortID
	path := filepath.Join(g.worktreeRoot, shortID)

	if _, err := g.run(ctx, g.repoPath, "worktree", "add", "-b", branch, path, "HEAD"); err != nil {
		return "", "", err
	}
	return branch, path, nil
}

// Push pushes worktreePath's branch to the configured remote and returns a
// compare URL synthesized from the remote's URL — no GitHub/GitLab API
// client is wired (transport/auth is out of scope per spec.md §1 Non-goals),
// so the "PR" here is the compare link a human opens to create one.
func (g *gitCLI) Push(ctx context.Context, worktreePath, branch string) (string, error) {
	if _, err := g.run(ctx, worktreePath, "push", "-u", g.remoteName, branch); err != nil {
		return "", err
	}

	remoteURL, err := g.run(ctx, worktreePath, "remote", "get-url", g.remoteName)
	if err != nil {
		return "", err
	}
	return compareURL(remoteURL, branch), nil
}

// compareURL turns a git remote URL (SSH or HTTPS form) into a compare
// link of the shape most forges accept: https://host/owner/repo/compare/branch.
func compareURL(remoteURL, branch string) string {
	repo := remoteURL
	repo = strings.TrimSuffix(repo, ".git")
	repo = strings.TrimPrefix(repo, "git@")
	repo = strings.TrimPrefix(repo, "https://")
	repo = strings.TrimPrefix(repo, "http://")
	repo = strings.Replace(repo, ":", "/", 1)
	return fmt.Sprintf("https://%s/compare/%s", repo, branch)
}
