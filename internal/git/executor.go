// Package git runs the git CLI for the distribution step.
package git

import (
	"context"
	"time"
)

// CommitInfo holds information about a git commit.
type CommitInfo struct {
	Hash      string    // Full 40-char SHA
	ShortHash string    // 7-char abbreviated hash
	Subject   string    // First line of commit message
	Author    string    // Author name
	Date      time.Time // Commit timestamp
}

// Author identifies the committer of an artifact update.
type Author struct {
	Name  string
	Email string
}

// GitExecutor defines the git operations the distributor needs.
// This abstraction allows for easy testing with fake implementations.
type GitExecutor interface {
	IsGitRepo(ctx context.Context) bool
	GetRepoRoot(ctx context.Context) (string, error)
	GetCurrentBranch(ctx context.Context) (string, error)
	// GetRemoteURL returns the URL for the named remote (e.g., "origin").
	// Returns empty string and nil error if remote doesn't exist.
	GetRemoteURL(ctx context.Context, name string) (string, error)

	// Add stages paths.
	Add(ctx context.Context, paths ...string) error
	// HasStagedChanges reports whether the index differs from HEAD for paths.
	HasStagedChanges(ctx context.Context, paths ...string) (bool, error)
	// Commit records the staged state of paths. Returns ErrNothingToCommit
	// when there is nothing to record.
	Commit(ctx context.Context, message string, author Author, paths ...string) (CommitInfo, error)
	// Push pushes branch to remote. Returns ErrPushRejected or ErrAuthFailed
	// for the corresponding git failures.
	Push(ctx context.Context, remote, branch string) error
	// HeadCommit returns the commit HEAD points to.
	HeadCommit(ctx context.Context) (CommitInfo, error)
}
