// Package publish replaces the single published artifact when, and only
// when, its content changed.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/macropulse/macropulse/internal/artifact"
	"github.com/macropulse/macropulse/internal/log"
)

// ErrMissingArtifact is returned for an empty candidate, or when a reduced
// run needs a published artifact and none exists.
var ErrMissingArtifact = errors.New("missing artifact")

// Outcome of a publish attempt.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeUnchanged Outcome = "unchanged"
)

const artifactPerm = 0o644

// Result describes a publish attempt.
type Result struct {
	Outcome        Outcome
	Digest         string
	PreviousDigest string
	DryRun         bool
}

// Options configures a Publisher.
type Options struct {
	Path    string
	DiffLog bool // log a line diff of each replacement
	DryRun  bool // compare only, never write
}

// Publisher owns the artifact at a fixed path.
type Publisher struct {
	path    string
	diffLog bool
	dryRun  bool
}

// New creates a Publisher for an absolute artifact path.
func New(opts Options) *Publisher {
	return &Publisher{path: opts.Path, diffLog: opts.DiffLog, dryRun: opts.DryRun}
}

// Path returns the artifact path.
func (p *Publisher) Path() string { return p.path }

// Current returns the published content. The error satisfies
// errors.Is(err, os.ErrNotExist) when nothing is published.
func (p *Publisher) Current() ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read published artifact: %w", err)
	}
	return data, nil
}

// Digest returns the comparison digest of content.
func (p *Publisher) Digest(content []byte) (string, error) {
	return artifact.Digest(content)
}

// CurrentDigest returns the digest of the published artifact, or "" when
// nothing is published.
func (p *Publisher) CurrentDigest() (string, error) {
	current, err := p.Current()
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return p.Digest(current)
}

// Publish compares candidate with the published artifact, ignoring
// generated_at, and atomically replaces it if they differ. An unreadable or
// corrupt published artifact is replaced.
func (p *Publisher) Publish(ctx context.Context, candidate []byte) (Result, error) {
	if len(candidate) == 0 {
		return Result{}, ErrMissingArtifact
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	digest, err := p.Digest(candidate)
	if err != nil {
		return Result{}, fmt.Errorf("failed to digest candidate: %w", err)
	}
	res := Result{Digest: digest, DryRun: p.dryRun}

	current, err := p.Current()
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info(log.CatPublish, "No published artifact yet", "path", p.path)
	case err != nil:
		return Result{}, err
	default:
		prev, derr := p.Digest(current)
		if derr != nil {
			log.Warn(log.CatPublish, "Published artifact is unreadable, replacing", "path", p.path, "error", derr.Error())
		}
		res.PreviousDigest = prev
	}

	if res.PreviousDigest == digest {
		res.Outcome = OutcomeUnchanged
		log.Info(log.CatPublish, "Artifact unchanged", "digest", short(digest))
		return res, nil
	}

	res.Outcome = OutcomePublished
	if p.diffLog && current != nil {
		logDiff(current, candidate)
	}
	if p.dryRun {
		log.Info(log.CatPublish, "Dry run, artifact not written", "digest", short(digest), "previous", short(res.PreviousDigest))
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := WriteFileAtomic(p.path, candidate, artifactPerm); err != nil {
		return Result{}, err
	}
	log.Info(log.CatPublish, "Published artifact",
		"path", p.path, "digest", short(digest), "previous", short(res.PreviousDigest), "bytes", len(candidate))
	return res, nil
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
