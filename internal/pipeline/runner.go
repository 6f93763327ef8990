// Package pipeline runs one invocation end to end: lock, record, compute,
// verify, publish and distribute.
//
// A run that fails before publishing leaves the published artifact as it
// was. A run that publishes but cannot distribute is recorded failed; the
// published digest then stays pending and every later run retries the
// delivery until it succeeds.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropulse/macropulse/internal/artifact"
	"github.com/macropulse/macropulse/internal/brief"
	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/distribute"
	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/publish"
	"github.com/macropulse/macropulse/internal/pubsub"
	"github.com/macropulse/macropulse/internal/runlock"
	"github.com/macropulse/macropulse/internal/runs/domain"
	"github.com/macropulse/macropulse/internal/tracing"
	"github.com/macropulse/macropulse/internal/transform"
)

// Mode selects the pipeline.
type Mode string

const (
	// ModeFull fetches, transforms and rebuilds the whole artifact.
	ModeFull Mode = "full"
	// ModeBrief rebuilds only daily_brief inside the published artifact.
	ModeBrief Mode = "brief"
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("unknown mode")

// ParseMode validates a --mode value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, "":
		return ModeFull, nil
	case ModeBrief:
		return ModeBrief, nil
	default:
		return "", fmt.Errorf("%w %q: use full or brief", ErrUnknownMode, s)
	}
}

// PhaseError attributes a run failure to a phase.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string { return e.Phase + ": " + e.Err.Error() }

func (e *PhaseError) Unwrap() error { return e.Err }

// DataFetcher retrieves the macro dataset. *fetch.Fetcher satisfies it.
type DataFetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Dataset, error)
}

// BriefBuilder builds the daily brief. *brief.Service satisfies it.
type BriefBuilder interface {
	Build(ctx context.Context, in brief.Input) (*brief.Brief, error)
}

var (
	_ DataFetcher  = (*fetch.Fetcher)(nil)
	_ BriefBuilder = (*brief.Service)(nil)
)

// Config holds the collaborators of a Runner.
type Config struct {
	Signal      config.SignalConfig
	Judgment    config.JudgmentConfig
	Layout      config.Layout
	Fetcher     DataFetcher
	Brief       BriefBuilder           // nil disables the brief
	Distributor distribute.Distributor // nil disables distribution
	Runs        domain.RunRepository
	Tracer      trace.Tracer
	DiffLog     bool
	Now         func() time.Time
	NewID       func() string
	AcquireLock func(path string) (*runlock.Lock, error)
	WorkingCopy bool                       // also write each candidate to <output_dir>/latest.json
	Events      pubsub.Publisher[Progress] // optional progress listener
}

// Progress is the payload of run and phase events.
type Progress struct {
	RunID   string
	Mode    Mode
	Phase   string
	Took    time.Duration
	Err     string
	Outcome domain.RunState
}

// Options are the per-invocation switches.
type Options struct {
	Mode       Mode
	Start      time.Time
	End        time.Time // zero means now
	ClearCache bool
	NoBrief    bool
	NoPush     bool
	DryRun     bool
}

// Report summarizes a run.
type Report struct {
	RunID          string
	Mode           Mode
	Outcome        domain.RunState
	Digest         string
	PreviousDigest string
	Distributed    bool
	// Retried is set when this run delivered an artifact published earlier.
	Retried     bool
	DryRun      bool
	FailedPhase string
	Phases      map[string]time.Duration
	Fetch       fetch.Report
	Verify      artifact.Report
	Headline    artifact.Headline
}

// Runner executes runs. It is not safe for concurrent use; the run lock
// keeps separate processes apart.
type Runner struct {
	cfg Config
}

// New creates a Runner.
func New(cfg Config) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.AcquireLock == nil {
		cfg.AcquireLock = runlock.Acquire
	}
	return &Runner{cfg: cfg}
}

// Run executes one invocation. A held lock returns runlock.ErrLocked before
// anything is recorded. Every other failure is recorded and returned with
// the report built so far.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Mode == "" {
		opts.Mode = ModeFull
	}
	lock, err := r.cfg.AcquireLock(r.cfg.Layout.LockFile)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn(log.CatLock, "Failed to release run lock", "path", lock.Path(), "error", err.Error())
		}
	}()

	guid := r.cfg.NewID()
	ctx = tracing.ContextWithRunID(ctx, guid)
	ctx, span := tracing.Start(ctx, r.cfg.Tracer, tracing.SpanRun,
		attribute.String(tracing.AttrRunID, guid),
		attribute.String(tracing.AttrRunMode, string(opts.Mode)),
	)
	defer span.End()

	rep := &Report{RunID: guid, Mode: opts.Mode, DryRun: opts.DryRun}
	run := domain.NewRun(guid, string(opts.Mode))
	if !opts.DryRun {
		if err := r.cfg.Runs.Save(context.WithoutCancel(ctx), run); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
	}
	log.Info(log.CatRun, "Run started", "run", guid, "mode", string(opts.Mode), "dry_run", opts.DryRun)
	r.emit(pubsub.RunStarted, Progress{RunID: guid, Mode: opts.Mode})

	err = r.execute(ctx, run, rep, opts)
	rep.Phases = run.Phases()
	if err != nil {
		var pe *PhaseError
		if errors.As(err, &pe) {
			rep.FailedPhase = pe.Phase
		}
		rep.Outcome = domain.RunStateFailed
		run.MarkFailed(rep.FailedPhase, err)
		r.save(ctx, run, opts.DryRun)
		span.SetAttributes(attribute.String(tracing.AttrRunOutcome, string(rep.Outcome)))
		tracing.End(span, err)
		log.ErrorErr(log.CatRun, "Run failed", err, "run", guid, "phase", rep.FailedPhase)
		r.emit(pubsub.RunFinished, Progress{RunID: guid, Mode: opts.Mode, Phase: rep.FailedPhase, Err: err.Error(), Outcome: rep.Outcome})
		return rep, err
	}

	span.SetAttributes(attribute.String(tracing.AttrRunOutcome, string(rep.Outcome)))
	tracing.End(span, nil)
	log.Info(log.CatRun, "Run finished", "run", guid, "outcome", string(rep.Outcome),
		"distributed", rep.Distributed, "retried", rep.Retried)
	r.emit(pubsub.RunFinished, Progress{RunID: guid, Mode: opts.Mode, Outcome: rep.Outcome})
	return rep, nil
}

// execute runs the phases. The run record is updated as soon as the
// publish outcome is known, before distribution starts.
func (r *Runner) execute(ctx context.Context, run *domain.Run, rep *Report, opts Options) error {
	pub := publish.New(publish.Options{Path: r.cfg.Layout.Artifact, DiffLog: r.cfg.DiffLog, DryRun: opts.DryRun})

	var candidate []byte
	var err error
	switch opts.Mode {
	case ModeBrief:
		candidate, err = r.computeBrief(ctx, run, pub)
	default:
		candidate, err = r.computeFull(ctx, run, rep, opts)
	}
	if err != nil {
		return err
	}
	rep.Headline = artifact.ReadHeadline(candidate)

	if err := r.phase(ctx, run, tracing.PhaseVerify, func(context.Context) error {
		report, err := artifact.Verify(candidate)
		rep.Verify = report
		for _, c := range report.Failures() {
			if !c.Critical {
				log.Warn(log.CatPublish, "Self-check warning", "check", c.Name, "detail", c.Detail)
			}
		}
		return err
	}); err != nil {
		return err
	}

	// Only verified candidates reach the working copy.
	if r.cfg.WorkingCopy && !opts.DryRun && r.cfg.Layout.OutputDir != "" {
		r.writeWorkingCopy(candidate)
	}

	var res publish.Result
	if err := r.phase(ctx, run, tracing.PhasePublish, func(ctx context.Context) error {
		var err error
		res, err = pub.Publish(ctx, candidate)
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String(tracing.AttrArtifactPath, pub.Path()),
			attribute.String(tracing.AttrArtifactDigest, res.Digest),
		)
		if err == nil && res.Outcome == publish.OutcomeUnchanged {
			trace.SpanFromContext(ctx).AddEvent(tracing.EventArtifactUnchanged)
		}
		return err
	}); err != nil {
		return err
	}
	rep.Digest = res.Digest
	rep.PreviousDigest = res.PreviousDigest

	if opts.DryRun {
		rep.Outcome = domain.RunState(res.Outcome)
		return nil
	}

	if res.Outcome == publish.OutcomePublished {
		run.MarkPublished(res.Digest, res.PreviousDigest)
	} else {
		run.MarkUnchanged(res.Digest)
	}
	rep.Outcome = run.State()
	r.save(ctx, run, false)

	return r.distribute(ctx, run, rep, res, candidate, opts)
}

// distribute delivers the published artifact unless its digest was already
// delivered. An unchanged run therefore retries a delivery that an earlier
// run left pending.
func (r *Runner) distribute(ctx context.Context, run *domain.Run, rep *Report, res publish.Result, content []byte, opts Options) error {
	if r.cfg.Distributor == nil {
		log.Debug(log.CatDistribute, "Distribution disabled")
		return nil
	}
	if opts.NoPush {
		log.Info(log.CatDistribute, "Distribution skipped (--no-push)", "digest", res.Digest)
		return nil
	}

	delivered, err := r.cfg.Runs.LastDistributedDigest(ctx)
	if err != nil {
		return &PhaseError{Phase: tracing.PhaseDistribute, Err: err}
	}
	if delivered == res.Digest {
		log.Info(log.CatDistribute, "Artifact already distributed", "digest", res.Digest)
		return nil
	}
	retry := res.Outcome == publish.OutcomeUnchanged

	err = r.phase(ctx, run, tracing.PhaseDistribute, func(ctx context.Context) error {
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.String(tracing.AttrDistributeTarget, r.cfg.Distributor.Name()))
		if retry {
			span.AddEvent(tracing.EventPendingRetry)
			log.Info(log.CatDistribute, "Retrying pending distribution", "digest", res.Digest, "last_delivered", delivered)
		}
		return r.cfg.Distributor.Distribute(ctx, distribute.Delivery{
			Path:    r.cfg.Layout.Artifact,
			Digest:  res.Digest,
			RunID:   run.GUID(),
			Summary: artifact.ReadHeadline(content),
		})
	})
	if err != nil {
		return err
	}
	run.MarkDistributed(res.Digest)
	r.save(ctx, run, false)
	rep.Distributed = true
	rep.Retried = retry
	return nil
}

func (r *Runner) computeFull(ctx context.Context, run *domain.Run, rep *Report, opts Options) ([]byte, error) {
	end := opts.End
	if end.IsZero() {
		end = r.cfg.Now()
	}

	var ds *fetch.Dataset
	if err := r.phase(ctx, run, tracing.PhaseFetch, func(ctx context.Context) error {
		var err error
		ds, err = r.cfg.Fetcher.Fetch(ctx, fetch.Request{Start: opts.Start, End: end, ClearCache: opts.ClearCache})
		if ds != nil {
			rep.Fetch = ds.Report
		}
		return err
	}); err != nil {
		return nil, err
	}

	var res *transform.Result
	if err := r.phase(ctx, run, tracing.PhaseTransform, func(context.Context) error {
		var err error
		res, err = transform.Run(ds, r.cfg.Signal, r.cfg.Judgment)
		return err
	}); err != nil {
		return nil, err
	}

	a := artifact.Build(res, ds.Report, r.cfg.Signal.ChangeWindows, r.cfg.Now())
	if r.cfg.Brief != nil && !opts.NoBrief {
		if err := r.phase(ctx, run, tracing.PhaseBrief, func(ctx context.Context) error {
			b, err := r.cfg.Brief.Build(ctx, brief.Input{
				RunGUID: run.GUID(),
				Macro: &brief.MacroContext{
					Composite: res.Score.Composite,
					Tier:      string(res.Score.Tier),
					Regime:    string(res.Judgment.Regime),
				},
			})
			if err != nil {
				return err
			}
			return a.WithBrief(b)
		}); err != nil {
			return nil, err
		}
	}
	content, err := artifact.Encode(a)
	if err != nil {
		return nil, &PhaseError{Phase: tracing.PhaseTransform, Err: err}
	}
	return content, nil
}

// computeBrief merges a fresh brief into the published artifact.
func (r *Runner) computeBrief(ctx context.Context, run *domain.Run, pub *publish.Publisher) ([]byte, error) {
	var content []byte
	err := r.phase(ctx, run, tracing.PhaseBrief, func(ctx context.Context) error {
		if r.cfg.Brief == nil {
			return errors.New("brief mode requested but the brief is not configured")
		}
		current, err := pub.Current()
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: brief mode needs a published artifact at %s", publish.ErrMissingArtifact, pub.Path())
		}
		if err != nil {
			return err
		}
		h := artifact.ReadHeadline(current)
		in := brief.Input{RunGUID: run.GUID()}
		if score, perr := strconv.ParseFloat(h.Score, 64); perr == nil {
			in.Macro = &brief.MacroContext{Composite: score, Tier: h.Tier, Regime: h.Regime}
		}
		b, err := r.cfg.Brief.Build(ctx, in)
		if err != nil {
			return err
		}
		content, err = artifact.MergeBrief(current, b, r.cfg.Now())
		return err
	})
	return content, err
}

// phase runs fn inside a timed span. Errors carry the phase name.
func (r *Runner) phase(ctx context.Context, run *domain.Run, name string, fn func(context.Context) error) error {
	p := Progress{RunID: run.GUID(), Mode: Mode(run.Mode()), Phase: name}
	r.emit(pubsub.PhaseStarted, p)
	start := time.Now()
	err := tracing.Phase(ctx, r.cfg.Tracer, name, fn)
	p.Took = time.Since(start)
	run.RecordPhase(name, p.Took)
	log.Debug(log.CatRun, "Phase done", "phase", name, "took", p.Took.String(), "ok", err == nil)
	if err != nil {
		p.Err = err.Error()
		r.emit(pubsub.PhaseFailed, p)
		return &PhaseError{Phase: name, Err: err}
	}
	r.emit(pubsub.PhaseFinished, p)
	return nil
}

func (r *Runner) emit(t pubsub.EventType, p Progress) {
	if r.cfg.Events != nil {
		r.cfg.Events.Publish(t, p)
	}
}

// save records run state. The store outlives a cancelled run context so a
// cancelled or failed run is still recorded.
func (r *Runner) save(ctx context.Context, run *domain.Run, dryRun bool) {
	if dryRun {
		return
	}
	if err := r.cfg.Runs.Save(context.WithoutCancel(ctx), run); err != nil {
		log.ErrorErr(log.CatDB, "Failed to record run", err, "run", run.GUID(), "state", run.State().String())
	}
}

func (r *Runner) writeWorkingCopy(candidate []byte) {
	path := filepath.Join(r.cfg.Layout.OutputDir, "latest.json")
	if err := os.MkdirAll(r.cfg.Layout.OutputDir, 0o755); err != nil {
		log.Warn(log.CatPublish, "Cannot create output dir", "path", r.cfg.Layout.OutputDir, "error", err.Error())
		return
	}
	if err := publish.WriteFileAtomic(path, candidate, 0o644); err != nil {
		log.Warn(log.CatPublish, "Cannot write working copy", "path", path, "error", err.Error())
	}
}

// Pending reports whether the last published digest has not been
// delivered yet.
func Pending(ctx context.Context, runs domain.RunRepository) (digest string, pending bool, err error) {
	published, err := runs.LastPublishedDigest(ctx)
	if err != nil {
		return "", false, err
	}
	delivered, err := runs.LastDistributedDigest(ctx)
	if err != nil {
		return "", false, err
	}
	return published, published != "" && published != delivered, nil
}
