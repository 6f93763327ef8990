// Package distribute makes a published artifact public: a git commit and push
// that a static host redeploys from, optionally mirrored to an object store.
package distribute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"github.com/hashicorp/go-multierror"

	"github.com/macropulse/macropulse/internal/artifact"
	"github.com/macropulse/macropulse/internal/log"
)

// ErrDistribution wraps every target failure.
var ErrDistribution = errors.New("distribution failed")

// DefaultCommitTemplate is used when no template is configured.
const DefaultCommitTemplate = "data: update {{.Date}} ({{.Tier}} {{.Score}})"

// Delivery is one published artifact to distribute.
type Delivery struct {
	Path    string // absolute artifact path
	Digest  string
	RunID   string
	Summary artifact.Headline
}

// Distributor propagates a delivery to one target.
type Distributor interface {
	Name() string
	Distribute(ctx context.Context, d Delivery) error
}

// Multi runs every target in order. A failing target does not stop the
// remaining ones; failures are aggregated.
type Multi struct {
	targets []Distributor
}

// NewMulti creates a Multi. Nil targets are skipped.
func NewMulti(targets ...Distributor) *Multi {
	m := &Multi{}
	for _, t := range targets {
		if t != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

// Name lists the target names.
func (m *Multi) Name() string {
	var buf bytes.Buffer
	for i, t := range m.targets {
		if i > 0 {
			buf.WriteByte('+')
		}
		buf.WriteString(t.Name())
	}
	if buf.Len() == 0 {
		return "none"
	}
	return buf.String()
}

// Len returns the number of targets.
func (m *Multi) Len() int { return len(m.targets) }

// Distribute implements Distributor.
func (m *Multi) Distribute(ctx context.Context, d Delivery) error {
	var result *multierror.Error
	for _, t := range m.targets {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		if err := t.Distribute(ctx, d); err != nil {
			log.ErrorErr(log.CatDistribute, "Target failed", err, "target", t.Name(), "digest", shortDigest(d.Digest))
			result = multierror.Append(result, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		log.Info(log.CatDistribute, "Target done", "target", t.Name(), "digest", shortDigest(d.Digest))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrDistribution, err)
	}
	return nil
}

// CommitMessage renders tmpl with the delivery summary.
func CommitMessage(tmpl string, s artifact.Headline) (string, error) {
	if tmpl == "" {
		tmpl = DefaultCommitTemplate
	}
	t, err := template.New("commit").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing commit template: %w", err)
	}
	if s.Date == "" {
		s.Date = "unknown"
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("rendering commit template: %w", err)
	}
	return buf.String(), nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
