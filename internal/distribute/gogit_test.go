package distribute

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/macropulse/macropulse/internal/git"
)

// initGoGitRepo creates a work repo with one commit and a bare "origin".
func initGoGitRepo(t *testing.T) (work, remote string, repo *gogit.Repository) {
	t.Helper()
	root := t.TempDir()
	work = filepath.Join(root, "work")
	remote = filepath.Join(root, "remote.git")

	_, err := gogit.PlainInit(remote, true)
	require.NoError(t, err)
	repo, err = gogit.PlainInit(work, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(work, "README.md"), []byte("site\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("init", &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.invalid", When: time.Now()},
	})
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remote}})
	require.NoError(t, err)
	return work, remote, repo
}

func goGitDelivery(t *testing.T, work, content string) Delivery {
	t.Helper()
	p := filepath.Join(work, "data", "latest.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	d := testDelivery()
	d.Path = p
	return d
}

func headMessage(t *testing.T, repo *gogit.Repository) string {
	t.Helper()
	ref, err := repo.Head()
	require.NoError(t, err)
	c, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	return c.Message
}

func TestGoGitDistributor_CommitsBeforePushFails(t *testing.T) {
	work, _, repo := initGoGitRepo(t)
	d := NewGoGitDistributor(GitOptions{RepoDir: work, Remote: "missing", Branch: "main", Author: testAuthor}, "")

	err := d.Distribute(context.Background(), goGitDelivery(t, work, `{"a":1}`))

	require.Error(t, err)
	require.Equal(t, "data: update 2024-03-01 (BULL 61.2)", headMessage(t, repo))
}

func TestGoGitDistributor_NotARepo(t *testing.T) {
	dir := t.TempDir()
	d := NewGoGitDistributor(GitOptions{RepoDir: dir}, "")

	err := d.Distribute(context.Background(), goGitDelivery(t, dir, `{}`))

	require.ErrorIs(t, err, git.ErrNotGitRepo)
}

func TestGoGitDistributor_Push(t *testing.T) {
	// The file transport runs git-receive-pack.
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	work, remote, repo := initGoGitRepo(t)
	d := NewGoGitDistributor(GitOptions{RepoDir: work, Branch: "main", Author: testAuthor}, "secret-token")
	ctx := context.Background()
	delivery := goGitDelivery(t, work, `{"a":1}`)

	require.NoError(t, d.Distribute(ctx, delivery))

	bare, err := gogit.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := bare.Reference(plumbing.NewBranchReferenceName("main"), true)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, head.Hash(), ref.Hash())

	// Same content again: nothing to commit, remote already up to date.
	require.NoError(t, d.Distribute(ctx, delivery))
	again, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, head.Hash(), again.Hash())
}
