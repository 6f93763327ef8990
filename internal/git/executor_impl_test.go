package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var testAuthor = Author{Name: "macropulse", Email: "bot@macropulse.invalid"}

// gitCmd runs git in dir for test setup.
func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.invalid",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.invalid")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// initRepo creates a repository on branch main with one commit and a bare
// "origin" remote. Skips when git is not installed.
func initRepo(t *testing.T) (work, remote string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	work = filepath.Join(root, "work")
	remote = filepath.Join(root, "remote.git")
	require.NoError(t, os.MkdirAll(work, 0o750))

	gitCmd(t, root, "init", "--bare", remote)
	gitCmd(t, work, "init")
	gitCmd(t, work, "symbolic-ref", "HEAD", "refs/heads/main")
	require.NoError(t, os.WriteFile(filepath.Join(work, "README.md"), []byte("data\n"), 0o644))
	gitCmd(t, work, "add", "README.md")
	gitCmd(t, work, "commit", "-m", "init")
	gitCmd(t, work, "remote", "add", "origin", remote)
	gitCmd(t, work, "push", "origin", "main")
	return work, remote
}

// TestRealExecutor_NewRealExecutor tests the constructor.
func TestRealExecutor_NewRealExecutor(t *testing.T) {
	workDir := "/some/path"
	executor := NewRealExecutor(workDir)

	require.NotNil(t, executor, "NewRealExecutor returned nil")
	require.Equal(t, workDir, executor.workDir)
}

// TestRealExecutor_IsGitRepo tests the IsGitRepo method.
func TestRealExecutor_IsGitRepo(t *testing.T) {
	work, _ := initRepo(t)
	ctx := context.Background()

	t.Run("in git repo", func(t *testing.T) {
		require.True(t, NewRealExecutor(work).IsGitRepo(ctx))
	})

	t.Run("not in git repo", func(t *testing.T) {
		require.False(t, NewRealExecutor(t.TempDir()).IsGitRepo(ctx))
	})
}

// TestRealExecutor_RepoInfo tests branch, root and remote lookups.
func TestRealExecutor_RepoInfo(t *testing.T) {
	work, remote := initRepo(t)
	ctx := context.Background()
	executor := NewRealExecutor(work)

	branch, err := executor.GetCurrentBranch(ctx)
	require.NoError(t, err)
	require.Equal(t, "main", branch)

	root, err := executor.GetRepoRoot(ctx)
	require.NoError(t, err)
	wantRoot, err := filepath.EvalSymlinks(work)
	require.NoError(t, err)
	gotRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	require.Equal(t, wantRoot, gotRoot)

	url, err := executor.GetRemoteURL(ctx, "origin")
	require.NoError(t, err)
	require.Equal(t, remote, url)

	url, err = executor.GetRemoteURL(ctx, "nope")
	require.NoError(t, err)
	require.Empty(t, url)
}

// TestRealExecutor_CommitAndPush tests the stage, commit, push cycle.
func TestRealExecutor_CommitAndPush(t *testing.T) {
	work, remote := initRepo(t)
	ctx := context.Background()
	executor := NewRealExecutor(work)
	path := filepath.Join("data", "latest.json")
	require.NoError(t, os.MkdirAll(filepath.Join(work, "data"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(work, path), []byte(`{"a":1}`), 0o644))

	staged, err := executor.HasStagedChanges(ctx, path)
	require.NoError(t, err)
	require.False(t, staged)

	require.NoError(t, executor.Add(ctx, path))
	staged, err = executor.HasStagedChanges(ctx, path)
	require.NoError(t, err)
	require.True(t, staged)

	info, err := executor.Commit(ctx, "data: update", testAuthor, path)
	require.NoError(t, err)
	require.Len(t, info.Hash, 40)
	require.Equal(t, info.Hash[:len(info.ShortHash)], info.ShortHash)
	require.Equal(t, "data: update", info.Subject)
	require.Equal(t, "macropulse", info.Author)

	require.NoError(t, executor.Push(ctx, "origin", "main"))

	out, err := exec.Command("git", "--git-dir", remote, "rev-parse", "refs/heads/main").Output()
	require.NoError(t, err)
	require.Equal(t, info.Hash+"\n", string(out))
}

// TestRealExecutor_CommitNothing tests that an empty commit is reported.
func TestRealExecutor_CommitNothing(t *testing.T) {
	work, _ := initRepo(t)
	executor := NewRealExecutor(work)

	_, err := executor.Commit(context.Background(), "noop", testAuthor)

	require.ErrorIs(t, err, ErrNothingToCommit)
}

// TestRealExecutor_PushRejected tests a non-fast-forward push.
func TestRealExecutor_PushRejected(t *testing.T) {
	work, remote := initRepo(t)
	ctx := context.Background()

	// Another clone moves the remote ahead.
	other := filepath.Join(t.TempDir(), "other")
	gitCmd(t, filepath.Dir(other), "clone", "-b", "main", remote, other)
	require.NoError(t, os.WriteFile(filepath.Join(other, "x.txt"), []byte("x"), 0o644))
	gitCmd(t, other, "add", "x.txt")
	gitCmd(t, other, "commit", "-m", "ahead")
	gitCmd(t, other, "push", "origin", "HEAD:refs/heads/main")

	executor := NewRealExecutor(work)
	require.NoError(t, os.WriteFile(filepath.Join(work, "y.txt"), []byte("y"), 0o644))
	require.NoError(t, executor.Add(ctx, "y.txt"))
	_, err := executor.Commit(ctx, "behind", testAuthor, "y.txt")
	require.NoError(t, err)

	err = executor.Push(ctx, "origin", "main")

	require.ErrorIs(t, err, ErrPushRejected)
}

// TestRealExecutor_CancelledContext tests that commands honor ctx.
func TestRealExecutor_CancelledContext(t *testing.T) {
	work, _ := initRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRealExecutor(work).HeadCommit(ctx)

	require.ErrorIs(t, err, context.Canceled)
}

// TestParseGitError tests git error parsing.
func TestParseGitError(t *testing.T) {
	originalErr := errors.New("exit status 128")

	tests := []struct {
		name      string
		stderr    string
		wantError error
	}{
		{
			name:      "not a git repository",
			stderr:    "fatal: not a git repository (or any of the parent directories): .git",
			wantError: ErrNotGitRepo,
		},
		{
			name:      "nothing to commit",
			stderr:    "On branch main\nnothing to commit, working tree clean",
			wantError: ErrNothingToCommit,
		},
		{
			name:      "non-fast-forward",
			stderr:    " ! [rejected]        main -> main (fetch first)\nerror: failed to push some refs to 'origin'",
			wantError: ErrPushRejected,
		},
		{
			name:      "https auth",
			stderr:    "remote: Invalid username or password.\nfatal: Authentication failed for 'https://github.com/o/r.git/'",
			wantError: ErrAuthFailed,
		},
		{
			name:      "prompt disabled",
			stderr:    "fatal: could not read Username for 'https://github.com': terminal prompts disabled",
			wantError: ErrAuthFailed,
		},
		{
			name:      "unknown error",
			stderr:    "fatal: some other error",
			wantError: nil, // Should not match any specific error
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := parseGitError(tc.stderr, originalErr)

			if tc.wantError != nil {
				require.ErrorIs(t, err, tc.wantError, "parseGitError() should return expected error")
			} else {
				// For unknown errors, should still contain the stderr
				require.Contains(t, err.Error(), tc.stderr, "parseGitError() should contain stderr")
				require.ErrorIs(t, err, originalErr)
			}
		})
	}
}

// TestParseCommitLine tests parsing of the HeadCommit log format.
func TestParseCommitLine(t *testing.T) {
	info, err := parseCommitLine("0123456789abcdef0123456789abcdef01234567\x000123456\x00data: update\x00bot\x001700000000")
	require.NoError(t, err)
	require.Equal(t, "0123456", info.ShortHash)
	require.Equal(t, int64(1700000000), info.Date.Unix())

	_, err = parseCommitLine("garbage")
	require.Error(t, err)
}
