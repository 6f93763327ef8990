package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/macropulse/macropulse/internal/log"
)

// Git-specific errors.
var (
	// ErrNotGitRepo indicates the directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrDetachedHead indicates HEAD is not on a branch.
	ErrDetachedHead = errors.New("HEAD is detached")

	// ErrNothingToCommit indicates the commit would be empty.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrPushRejected indicates the remote refused the push (e.g. non-fast-forward).
	ErrPushRejected = errors.New("push rejected")

	// ErrAuthFailed indicates the remote refused our credentials.
	ErrAuthFailed = errors.New("git authentication failed")
)

// Compile-time check that RealExecutor implements GitExecutor.
var _ GitExecutor = (*RealExecutor)(nil)

// RealExecutor implements GitExecutor by executing actual git commands.
type RealExecutor struct {
	workDir string
}

// NewRealExecutor creates a new RealExecutor.
func NewRealExecutor(workDir string) *RealExecutor {
	return &RealExecutor{workDir: workDir}
}

// runGit executes a git command and returns an error if it fails.
func (e *RealExecutor) runGit(ctx context.Context, args ...string) error {
	_, err := e.runGitOutput(ctx, args...)
	return err
}

// runGitOutput executes a git command and returns stdout and any error.
func (e *RealExecutor) runGitOutput(ctx context.Context, args ...string) (string, error) {
	//nolint:gosec // G204: args come from controlled sources
	cmd := exec.CommandContext(ctx, "git", args...)
	if e.workDir != "" {
		cmd.Dir = e.workDir
	}
	// Never block on a credential prompt in a scheduled run.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	log.Debug(log.CatGit, "git", "args", strings.Join(args, " "), "duration", time.Since(start), "ok", err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %s: %w", args[0], ctx.Err())
		}
		// git commit reports "nothing to commit" on stdout.
		msg := strings.TrimSpace(stderr.String() + "\n" + stdout.String())
		if msg != "" {
			return "", parseGitError(msg, err)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// parseGitError converts git output to specific error types.
func parseGitError(output string, originalErr error) error {
	lower := strings.ToLower(output)

	// Not a git repository
	if strings.Contains(lower, "not a git repository") {
		return fmt.Errorf("%w: %s", ErrNotGitRepo, output)
	}

	if strings.Contains(lower, "nothing to commit") ||
		strings.Contains(lower, "no changes added to commit") {
		return fmt.Errorf("%w: %s", ErrNothingToCommit, output)
	}

	if strings.Contains(lower, "authentication failed") ||
		strings.Contains(lower, "could not read username") ||
		strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "403") {
		return fmt.Errorf("%w: %s", ErrAuthFailed, output)
	}

	// ! [rejected] main -> main (non-fast-forward)
	if strings.Contains(lower, "[rejected]") ||
		strings.Contains(lower, "non-fast-forward") ||
		strings.Contains(lower, "failed to push some refs") {
		return fmt.Errorf("%w: %s", ErrPushRejected, output)
	}

	return fmt.Errorf("git error: %s: %w", output, originalErr)
}

// IsGitRepo checks if the working directory is a git repository.
func (e *RealExecutor) IsGitRepo(ctx context.Context) bool {
	err := e.runGit(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// GetRepoRoot returns the root directory of the git repository.
func (e *RealExecutor) GetRepoRoot(ctx context.Context) (string, error) {
	return e.runGitOutput(ctx, "rev-parse", "--show-toplevel")
}

// GetCurrentBranch returns the name of the current branch.
func (e *RealExecutor) GetCurrentBranch(ctx context.Context) (string, error) {
	// First try git branch --show-current (git 2.22+)
	output, err := e.runGitOutput(ctx, "branch", "--show-current")
	if err == nil && output != "" {
		return output, nil
	}

	// Fallback: parse symbolic-ref
	output, err = e.runGitOutput(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		if errors.Is(err, ErrNotGitRepo) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrDetachedHead, err)
	}
	return output, nil
}

// GetRemoteURL returns the URL for the named remote.
func (e *RealExecutor) GetRemoteURL(ctx context.Context, name string) (string, error) {
	url, err := e.runGitOutput(ctx, "remote", "get-url", name)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such remote") {
			return "", nil
		}
		return "", err
	}
	return url, nil
}

// Add stages paths.
func (e *RealExecutor) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return errors.New("git add: no paths")
	}
	return e.runGit(ctx, append([]string{"add", "--"}, paths...)...)
}

// HasStagedChanges reports whether the index differs from HEAD for paths.
func (e *RealExecutor) HasStagedChanges(ctx context.Context, paths ...string) (bool, error) {
	args := append([]string{"diff", "--cached", "--quiet", "--"}, paths...)
	err := e.runGit(ctx, args...)
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, err
}

// Commit records the staged state of paths with the given author.
func (e *RealExecutor) Commit(ctx context.Context, message string, author Author, paths ...string) (CommitInfo, error) {
	args := []string{}
	if author.Name != "" {
		args = append(args, "-c", "user.name="+author.Name)
	}
	if author.Email != "" {
		args = append(args, "-c", "user.email="+author.Email)
	}
	args = append(args, "commit", "--no-verify", "-m", message)
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}
	if err := e.runGit(ctx, args...); err != nil {
		return CommitInfo{}, err
	}
	return e.HeadCommit(ctx)
}

// Push pushes branch to remote.
func (e *RealExecutor) Push(ctx context.Context, remote, branch string) error {
	return e.runGit(ctx, "push", remote, "HEAD:refs/heads/"+branch)
}

// HeadCommit returns the commit HEAD points to.
func (e *RealExecutor) HeadCommit(ctx context.Context) (CommitInfo, error) {
	// %H=hash, %h=short hash, %s=subject, %an=author, %at=unix timestamp
	out, err := e.runGitOutput(ctx, "log", "-1", "--format=%H%x00%h%x00%s%x00%an%x00%at")
	if err != nil {
		return CommitInfo{}, err
	}
	return parseCommitLine(out)
}

func parseCommitLine(line string) (CommitInfo, error) {
	parts := strings.Split(line, "\x00")
	if len(parts) != 5 {
		return CommitInfo{}, fmt.Errorf("unexpected git log output %q", line)
	}
	ts, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("parsing commit time: %w", err)
	}
	return CommitInfo{
		Hash:      parts[0],
		ShortHash: parts[1],
		Subject:   parts[2],
		Author:    parts[3],
		Date:      time.Unix(ts, 0),
	}, nil
}
