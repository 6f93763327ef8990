// Package fetch retrieves the configured macro series from upstream sources.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/macropulse/macropulse/internal/cachemanager"
	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/series"
	"github.com/macropulse/macropulse/internal/tracing"
)

// ErrInsufficientData is returned when a required series could not be fetched.
var ErrInsufficientData = errors.New("insufficient data")

// Error is a per-series fetch failure.
type Error struct {
	Series string
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s from %s: %v", e.Series, e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Source provides observations for an upstream id.
type Source interface {
	Name() string
	Observations(ctx context.Context, id string, start, end time.Time) ([]series.Observation, error)
}

// Status of one series in a fetch report.
type Status string

const (
	StatusOK       Status = "ok"
	StatusCached   Status = "cached"
	StatusFallback Status = "fallback"
	StatusError    Status = "error"
)

// Entry reports how one series was obtained.
type Entry struct {
	Key      string        `json:"key"`
	Source   string        `json:"source"`
	ID       string        `json:"id,omitempty"`
	Status   Status        `json:"status"`
	Rows     int           `json:"rows"`
	Error    string        `json:"error,omitempty"`
	Note     string        `json:"note,omitempty"`
	Duration time.Duration `json:"-"`
}

// Report is the ordered list of entries, one per catalog series.
type Report struct {
	Entries []Entry `json:"entries"`
}

// Succeeded counts entries that produced data.
func (r Report) Succeeded() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status != StatusError {
			n++
		}
	}
	return n
}

// Failed returns the keys of entries in error.
func (r Report) Failed() []string {
	var out []string
	for _, e := range r.Entries {
		if e.Status == StatusError {
			out = append(out, e.Key)
		}
	}
	return out
}

// Request bounds one fetch.
type Request struct {
	Start      time.Time
	End        time.Time
	ClearCache bool
}

// Dataset is the raw fetch output.
type Dataset struct {
	Start  time.Time
	End    time.Time
	Series map[string]series.Series
	Units  map[string]string
	Report Report
}

type loadInput struct {
	source Source
	id     string
	start  time.Time
	end    time.Time
	loaded *bool
}

// Options configures a Fetcher.
type Options struct {
	Catalog     []config.SeriesConfig
	Sources     map[string]Source
	Cache       cachemanager.CacheManager[string, []series.Observation]
	CacheTTL    time.Duration
	Concurrency int
	Tracer      trace.Tracer
}

// Fetcher fans out catalog requests over a bounded errgroup.
type Fetcher struct {
	catalog     []config.SeriesConfig
	sources     map[string]Source
	cache       *cachemanager.ReadThroughCache[string, []series.Observation, loadInput]
	cacheTTL    time.Duration
	concurrency int
	tracer      trace.Tracer
}

// New creates a Fetcher. A nil Cache disables caching.
func New(opts Options) *Fetcher {
	f := &Fetcher{
		catalog:     opts.Catalog,
		sources:     opts.Sources,
		cacheTTL:    opts.CacheTTL,
		concurrency: opts.Concurrency,
		tracer:      opts.Tracer,
	}
	if f.concurrency < 1 {
		f.concurrency = 1
	}
	load := func(ctx context.Context, in loadInput) ([]series.Observation, error) {
		*in.loaded = true
		return in.source.Observations(ctx, in.id, in.start, in.end)
	}
	cache := opts.Cache
	bypass := false
	if cache == nil {
		cache = cachemanager.NewInMemoryCacheManager[[]series.Observation]("series", 0, 0)
		bypass = true
	}
	f.cache = cachemanager.NewReadThroughCache[string, []series.Observation, loadInput](cache, load, bypass)
	return f
}

// Fetch retrieves every catalog series. It returns the dataset together with
// ErrInsufficientData when a required series is missing.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Dataset, error) {
	start, end := series.Day(req.Start), series.Day(req.End)
	if end.Before(start) {
		return nil, fmt.Errorf("fetch window end %s before start %s", series.FormatDate(end), series.FormatDate(start))
	}
	if req.ClearCache {
		if err := f.cache.Flush(ctx); err != nil {
			return nil, fmt.Errorf("clearing series cache: %w", err)
		}
	}

	entries := make([]Entry, len(f.catalog))
	results := make([]series.Series, len(f.catalog))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, spec := range f.catalog {
		g.Go(func() error {
			entries[i], results[i] = f.fetchOne(gctx, spec, start, end)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ds := &Dataset{
		Start:  start,
		End:    end,
		Series: make(map[string]series.Series, len(f.catalog)),
		Units:  make(map[string]string, len(f.catalog)),
		Report: Report{Entries: entries},
	}
	var missing []string
	for i, spec := range f.catalog {
		ds.Units[spec.Key] = spec.Unit
		if entries[i].Status == StatusError || results[i].ValidCount() == 0 {
			if spec.Required {
				missing = append(missing, spec.Key)
			}
			continue
		}
		ds.Series[spec.Key] = results[i]
	}

	log.Info(log.CatFetch, "Fetch complete",
		"succeeded", ds.Report.Succeeded(), "total", len(entries), "failed", ds.Report.Failed())

	if len(missing) > 0 {
		slices.Sort(missing)
		return ds, fmt.Errorf("%w: required series unavailable: %s", ErrInsufficientData, strings.Join(missing, ", "))
	}
	if len(ds.Series) == 0 {
		return ds, fmt.Errorf("%w: no series fetched", ErrInsufficientData)
	}
	return ds, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, spec config.SeriesConfig, start, end time.Time) (Entry, series.Series) {
	began := time.Now()
	ctx, span := tracing.Start(ctx, f.tracer, tracing.SpanFetchSeries,
		attribute.String(tracing.AttrSeriesKey, spec.Key),
		attribute.String(tracing.AttrSeriesSource, spec.Source),
	)
	defer span.End()

	freq, _ := series.ParseFrequency(spec.Frequency)
	entry := Entry{Key: spec.Key, Source: spec.Source, ID: spec.ID}
	var out series.Series

	defer func() {
		entry.Duration = time.Since(began)
		span.SetAttributes(
			attribute.String(tracing.AttrSeriesStatus, string(entry.Status)),
			attribute.Int(tracing.AttrSeriesRows, entry.Rows),
		)
		if entry.Status == StatusError {
			tracing.End(span, errors.New(entry.Error))
		} else {
			tracing.End(span, nil)
		}
	}()

	if spec.Source == "static" {
		out = series.Constant(spec.Key, freq, spec.Value, start, end)
		entry.Status = StatusOK
		entry.Rows = len(out.Points)
		entry.Note = fmt.Sprintf("constant %g", spec.Value)
		return entry, out
	}

	points, cached, err := f.load(ctx, spec.Source, spec.ID, start, end)
	if err == nil {
		entry.Status = StatusOK
		if cached {
			entry.Status = StatusCached
			span.AddEvent(tracing.EventCacheHit)
		}
		entry.Rows = len(points)
		log.Debug(log.CatFetch, "Series fetched", "series", spec.Key, "source", spec.Source, "rows", len(points), "cached", cached)
		return entry, series.Series{Key: spec.Key, Frequency: freq, Points: points}
	}

	ferr := &Error{Series: spec.Key, Source: spec.Source, Err: err}
	log.ErrorErr(log.CatFetch, "Series fetch failed", ferr, "series", spec.Key)

	if spec.FallbackSource != "" && ctx.Err() == nil {
		span.AddEvent(tracing.EventFallbackUsed)
		points, _, ferr2 := f.load(ctx, spec.FallbackSource, spec.FallbackID, start, end)
		if ferr2 == nil {
			entry.Status = StatusFallback
			entry.Source = spec.FallbackSource
			entry.ID = spec.FallbackID
			entry.Rows = len(points)
			entry.Note = "primary failed: " + truncate(err.Error(), 80)
			log.Info(log.CatFetch, "Series fetched from fallback", "series", spec.Key, "source", spec.FallbackSource, "rows", len(points))
			return entry, series.Series{Key: spec.Key, Frequency: freq, Points: points}
		}
		log.ErrorErr(log.CatFetch, "Fallback fetch failed", ferr2, "series", spec.Key, "source", spec.FallbackSource)
	}

	entry.Status = StatusError
	entry.Error = truncate(err.Error(), 200)
	return entry, out
}

func (f *Fetcher) load(ctx context.Context, sourceName, id string, start, end time.Time) ([]series.Observation, bool, error) {
	src, ok := f.sources[sourceName]
	if !ok {
		return nil, false, fmt.Errorf("no source registered for %q", sourceName)
	}
	key := strings.Join([]string{sourceName, id, series.FormatDate(start), series.FormatDate(end)}, ":")
	loaded := false
	points, err := f.cache.Get(ctx, key, loadInput{source: src, id: id, start: start, end: end, loaded: &loaded}, f.cacheTTL)
	if err != nil {
		return nil, false, err
	}
	return points, !loaded, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
