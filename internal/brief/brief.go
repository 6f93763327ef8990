// Package brief builds the daily brief: market indices, star-stock movers,
// ranked news and commentary. It is the reduced pipeline and an optional
// section of the full artifact.
package brief

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/runs/domain"
	"github.com/macropulse/macropulse/internal/tracing"
)

// Disclaimer is attached to every brief.
const Disclaimer = "Information digest for research only. Not investment advice."

// Status is the state of a section or of the whole brief.
type Status string

const (
	StatusOK       Status = "ok"
	StatusPartial  Status = "partial"
	StatusDegraded Status = "degraded"
	StatusEmpty    Status = "empty"
	StatusError    Status = "error"
)

// Brief is the daily_brief section of the artifact.
type Brief struct {
	Status      Status          `json:"status"`
	GeneratedAt string          `json:"generated_at"`
	Date        string          `json:"date"`
	Market      MarketSection   `json:"market"`
	News        NewsSection     `json:"news"`
	Movers      MoversSection   `json:"movers"`
	Analysis    AnalysisSection `json:"analysis"`
	Errors      []string        `json:"errors"`
	Disclaimer  string          `json:"disclaimer"`
}

// MacroContext is the slice of the macro result the analyst may cite.
type MacroContext struct {
	Composite float64 `json:"composite"`
	Tier      string  `json:"tier"`
	Regime    string  `json:"regime"`
}

// ChartSource returns recent daily bars for a symbol.
// *fetch.YahooSource satisfies it.
type ChartSource interface {
	Chart(ctx context.Context, symbol, rng string) (*fetch.Chart, error)
}

var _ ChartSource = (*fetch.YahooSource)(nil)

// Options configures a Service.
type Options struct {
	Config    config.BriefConfig
	Quotes    ChartSource
	News      NewsFeed
	Analyst   Analyst // nil uses the rule-based analyst only
	Snapshots domain.SnapshotRepository
	Tracer    trace.Tracer
	Now       func() time.Time
}

// Service assembles briefs.
type Service struct {
	cfg       config.BriefConfig
	quotes    ChartSource
	news      NewsFeed
	analyst   Analyst
	rules     *RuleAnalyst
	snapshots domain.SnapshotRepository
	tracer    trace.Tracer
	now       func() time.Time
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		cfg:       opts.Config,
		quotes:    opts.Quotes,
		news:      opts.News,
		analyst:   opts.Analyst,
		rules:     &RuleAnalyst{},
		snapshots: opts.Snapshots,
		tracer:    opts.Tracer,
		now:       opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cfg.SnapshotKeep <= 0 {
		s.cfg.SnapshotKeep = domain.DefaultSnapshotKeep
	}
	return s
}

// Input carries per-run context into Build.
type Input struct {
	RunGUID string
	Macro   *MacroContext
}

// Build assembles a brief. Section failures are recorded in the brief and do
// not fail the build; only cancellation does.
func (s *Service) Build(ctx context.Context, in Input) (*Brief, error) {
	now := s.now()
	b := &Brief{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Date:        now.Format("2006-01-02"),
		Disclaimer:  Disclaimer,
		Errors:      []string{},
	}

	var marketErr, newsErr, moversErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		marketErr = s.section(gctx, "market", func(ctx context.Context) error {
			m, err := s.buildMarket(ctx, now)
			b.Market = m
			return err
		})
		return gctx.Err()
	})
	g.Go(func() error {
		newsErr = s.section(gctx, "news", func(ctx context.Context) error {
			n, err := s.buildNews(ctx, now)
			b.News = n
			return err
		})
		return gctx.Err()
	})
	g.Go(func() error {
		moversErr = s.section(gctx, "movers", func(ctx context.Context) error {
			m, err := s.buildMovers(ctx)
			b.Movers = m
			return err
		})
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if marketErr != nil {
		b.Errors = append(b.Errors, "market: "+marketErr.Error())
		b.Market = MarketSection{Status: StatusError, Indices: []Index{}, Summary: "market data unavailable"}
	}
	if newsErr != nil {
		b.Errors = append(b.Errors, "news: "+newsErr.Error())
		b.News = NewsSection{Status: StatusError, Top5: []Event{}}
	}
	if moversErr != nil {
		b.Errors = append(b.Errors, "movers: "+moversErr.Error())
		b.Movers = MoversSection{Status: StatusError, Gainers: []Mover{}, Losers: []Mover{}}
	}

	s.saveSnapshot(ctx, in.RunGUID, domain.SnapshotMarket, b.Market)
	s.saveSnapshot(ctx, in.RunGUID, domain.SnapshotNews, b.News)
	s.saveSnapshot(ctx, in.RunGUID, domain.SnapshotMovers, b.Movers)

	ain := AnalysisInput{Market: b.Market, News: b.News, Movers: b.Movers, Macro: in.Macro}
	if err := s.section(ctx, "analysis", func(ctx context.Context) error {
		b.Analysis = s.analyze(ctx, in.RunGUID, ain)
		return nil
	}); err != nil {
		return nil, err
	}
	if b.Analysis.Status == StatusError {
		b.Errors = append(b.Errors, "analysis: commentary unavailable")
	}

	b.Status = overallStatus(len(b.Errors))
	s.saveSnapshot(ctx, in.RunGUID, domain.SnapshotBriefResult, b)
	log.Info(log.CatBrief, "Daily brief built",
		"status", b.Status,
		"errors", len(b.Errors),
		"indices", len(b.Market.Indices),
		"events", len(b.News.Top5),
		"gainers", len(b.Movers.Gainers),
		"losers", len(b.Movers.Losers),
		"analysis", b.Analysis.Source)
	return b, ctx.Err()
}

// section runs fn in a brief.section span tagged with name.
func (s *Service) section(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanBriefSection, attribute.String(tracing.AttrBriefSection, name))
	defer span.End()
	err := fn(ctx)
	tracing.End(span, err)
	if err != nil {
		log.Warn(log.CatBrief, "Section failed", "section", name, "error", err.Error())
	}
	return err
}

// overallStatus maps the number of failed sections to a brief status.
func overallStatus(failures int) Status {
	switch {
	case failures == 0:
		return StatusOK
	case failures < 3:
		return StatusPartial
	default:
		return StatusDegraded
	}
}

// saveSnapshot stores an audit copy of v and prunes older ones of the same
// type. Failures are logged only.
func (s *Service) saveSnapshot(ctx context.Context, runGUID, typ string, v any) {
	if s.snapshots == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Warn(log.CatBrief, "Snapshot encode failed", "type", typ, "error", err.Error())
		return
	}
	snap := &domain.Snapshot{RunGUID: runGUID, Type: typ, Payload: payload}
	if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
		log.Warn(log.CatDB, "Snapshot save failed", "type", typ, "error", err.Error())
		return
	}
	removed, err := s.snapshots.PruneSnapshots(ctx, typ, s.cfg.SnapshotKeep)
	if err != nil {
		log.Warn(log.CatDB, "Snapshot prune failed", "type", typ, "error", err.Error())
		return
	}
	if removed > 0 {
		log.Debug(log.CatDB, "Pruned snapshots", "type", typ, "removed", removed)
	}
}

// round2 rounds to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr[T any](v T) *T { return &v }

func signed(v float64, decimals int) string {
	if v > 0 {
		return fmt.Sprintf("+%.*f", decimals, v)
	}
	return fmt.Sprintf("%.*f", decimals, v)
}
