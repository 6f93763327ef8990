package distribute

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/macropulse/macropulse/internal/git"
	"github.com/macropulse/macropulse/internal/log"
)

// tokenUser is the username GitHub and GitLab accept alongside a token.
const tokenUser = "x-access-token"

// GoGitDistributor commits and pushes in-process with go-git. It needs no git
// binary and authenticates https remotes with a token.
type GoGitDistributor struct {
	opts  GitOptions
	token string
	now   func() time.Time
}

// NewGoGitDistributor creates a GoGitDistributor. token may be empty for
// remotes that need no credentials.
func NewGoGitDistributor(opts GitOptions, token string) *GoGitDistributor {
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	return &GoGitDistributor{opts: opts, token: token, now: time.Now}
}

// Name implements Distributor.
func (g *GoGitDistributor) Name() string { return "gogit" }

// Distribute implements Distributor.
func (g *GoGitDistributor) Distribute(ctx context.Context, d Delivery) error {
	repo, err := gogit.PlainOpen(g.opts.RepoDir)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return fmt.Errorf("%w: %s", git.ErrNotGitRepo, g.opts.RepoDir)
		}
		return fmt.Errorf("opening repo: %w", err)
	}
	rel, err := relativeTo(g.opts.RepoDir, d.Path)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	if _, err := wt.Add(rel); err != nil {
		return fmt.Errorf("staging %s: %w", rel, err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}
	if fs, ok := status[rel]; ok && fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
		msg, err := CommitMessage(g.opts.CommitTemplate, d.Summary)
		if err != nil {
			return err
		}
		hash, err := wt.Commit(msg, &gogit.CommitOptions{
			Author: &object.Signature{Name: g.opts.Author.Name, Email: g.opts.Author.Email, When: g.now()},
		})
		if err != nil {
			return fmt.Errorf("committing %s: %w", rel, err)
		}
		log.Info(log.CatGit, "Committed artifact", "commit", hash.String()[:7], "subject", msg)
	} else {
		log.Info(log.CatGit, "Artifact already committed", "path", rel)
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return git.ErrDetachedHead
	}
	branch := g.opts.Branch
	if branch == "" {
		branch = head.Name().Short()
	}
	auth, err := g.auth(repo)
	if err != nil {
		return err
	}
	refspec := gitconfig.RefSpec(fmt.Sprintf("%s:refs/heads/%s", head.Name(), branch))
	err = repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: g.opts.Remote,
		RefSpecs:   []gitconfig.RefSpec{refspec},
		Auth:       auth,
	})
	switch {
	case errors.Is(err, gogit.NoErrAlreadyUpToDate):
		log.Info(log.CatGit, "Remote already up to date", "remote", g.opts.Remote, "branch", branch)
		return nil
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return fmt.Errorf("%w: %v", git.ErrAuthFailed, err)
	case err != nil && strings.Contains(err.Error(), "non-fast-forward"):
		return fmt.Errorf("%w: %v", git.ErrPushRejected, err)
	case err != nil:
		return fmt.Errorf("pushing to %s/%s: %w", g.opts.Remote, branch, err)
	}
	log.Info(log.CatGit, "Pushed", "remote", g.opts.Remote, "branch", branch)
	return nil
}

// auth returns token credentials for https remotes, nil otherwise.
func (g *GoGitDistributor) auth(repo *gogit.Repository) (transport.AuthMethod, error) {
	if g.token == "" {
		return nil, nil
	}
	remote, err := repo.Remote(g.opts.Remote)
	if err != nil {
		return nil, fmt.Errorf("remote %q: %w", g.opts.Remote, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 || !strings.HasPrefix(urls[0], "https://") {
		return nil, nil
	}
	return &http.BasicAuth{Username: tokenUser, Password: g.token}, nil
}
