package distribute

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/macropulse/macropulse/internal/git"
	"github.com/macropulse/macropulse/internal/log"
)

// GitOptions configures a git target.
type GitOptions struct {
	RepoDir        string
	Remote         string
	Branch         string
	Author         git.Author
	CommitTemplate string
}

// GitDistributor commits the artifact with the git CLI and pushes it.
type GitDistributor struct {
	exec git.GitExecutor
	opts GitOptions
}

// NewGitDistributor creates a GitDistributor over executor.
func NewGitDistributor(executor git.GitExecutor, opts GitOptions) *GitDistributor {
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	return &GitDistributor{exec: executor, opts: opts}
}

// Name implements Distributor.
func (g *GitDistributor) Name() string { return "git" }

// Distribute stages and commits the artifact, then pushes. An artifact that
// is already committed is still pushed, so a delivery left pending by an
// earlier failed push goes out.
func (g *GitDistributor) Distribute(ctx context.Context, d Delivery) error {
	if !g.exec.IsGitRepo(ctx) {
		return fmt.Errorf("%w: %s", git.ErrNotGitRepo, g.opts.RepoDir)
	}
	rel, err := relativeTo(g.opts.RepoDir, d.Path)
	if err != nil {
		return err
	}
	branch := g.opts.Branch
	if branch == "" {
		if branch, err = g.exec.GetCurrentBranch(ctx); err != nil {
			return err
		}
	}

	if err := g.exec.Add(ctx, rel); err != nil {
		return fmt.Errorf("staging %s: %w", rel, err)
	}
	staged, err := g.exec.HasStagedChanges(ctx, rel)
	if err != nil {
		return err
	}
	if staged {
		msg, err := CommitMessage(g.opts.CommitTemplate, d.Summary)
		if err != nil {
			return err
		}
		info, err := g.exec.Commit(ctx, msg, g.opts.Author, rel)
		switch {
		case errors.Is(err, git.ErrNothingToCommit):
			log.Info(log.CatGit, "Nothing to commit", "path", rel)
		case err != nil:
			return fmt.Errorf("committing %s: %w", rel, err)
		default:
			log.Info(log.CatGit, "Committed artifact", "commit", info.ShortHash, "subject", info.Subject)
		}
	} else {
		log.Info(log.CatGit, "Artifact already committed", "path", rel)
	}

	if err := g.exec.Push(ctx, g.opts.Remote, branch); err != nil {
		return fmt.Errorf("pushing to %s/%s: %w", g.opts.Remote, branch, err)
	}
	log.Info(log.CatGit, "Pushed", "remote", g.opts.Remote, "branch", branch)
	return nil
}

// relativeTo returns path relative to root, refusing paths outside it.
func relativeTo(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("artifact %s not under repo %s: %w", path, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("artifact %s is outside repo %s", path, root)
	}
	return rel, nil
}
