// Package transform turns raw fetched series into the liquidity panel, its
// signals, the regime judgment and the composite score.
package transform

import (
	"errors"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/series"
)

// ErrEmptyPanel is returned when no series carries a single observation.
var ErrEmptyPanel = errors.New("empty panel")

// Fill methods recorded in Quality.
const (
	FillInterpolated = "interpolated"
	FillWeekly       = "ffill_weekly"
	FillDaily        = "ffill_daily"
)

// Quality statuses.
const (
	QualityOK       = "ok"
	QualityDegraded = "degraded"
	QualityMissing  = "missing"
)

// dailyFillLimit caps forward-filling of daily series, in business days.
const dailyFillLimit = 3

// Panel is a business-day aligned frame. Missing cells are NaN.
type Panel struct {
	Dates   []time.Time
	columns map[string][]float64
}

// NewPanel creates an empty panel over dates.
func NewPanel(dates []time.Time) *Panel {
	return &Panel{Dates: dates, columns: make(map[string][]float64)}
}

// Len returns the number of rows.
func (p *Panel) Len() int { return len(p.Dates) }

// Has reports whether a column exists.
func (p *Panel) Has(name string) bool {
	_, ok := p.columns[name]
	return ok
}

// Column returns the named column or nil.
func (p *Panel) Column(name string) []float64 { return p.columns[name] }

// Set stores a column. Values must be the panel's length.
func (p *Panel) Set(name string, values []float64) {
	if len(values) != len(p.Dates) {
		panic("transform: column length does not match panel")
	}
	p.columns[name] = values
}

// Names returns the column names in sorted order.
func (p *Panel) Names() []string {
	names := make([]string, 0, len(p.columns))
	for k := range p.columns {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Last returns the last non-NaN value of a column.
func (p *Panel) Last(name string) (float64, bool) {
	v, _, ok := lastValid(p.columns[name])
	return v, ok
}

// LastDate returns the final row date.
func (p *Panel) LastDate() (time.Time, bool) {
	if len(p.Dates) == 0 {
		return time.Time{}, false
	}
	return p.Dates[len(p.Dates)-1], true
}

// Quality describes how well one series covers the panel.
type Quality struct {
	Status     string  `json:"status"`
	Coverage   float64 `json:"coverage"`
	FillMethod string  `json:"fill_method,omitempty"`
	StaleDays  int     `json:"stale_days"`
	LastValid  string  `json:"last_valid,omitempty"`
}

// Clean aligns the dataset onto a business-day panel spanning the earliest to
// the latest observation of any series. Series listed in the fetch report but
// absent from the dataset are recorded as missing.
func Clean(ds *fetch.Dataset) (*Panel, map[string]Quality, error) {
	quality := make(map[string]Quality)
	for _, e := range ds.Report.Entries {
		if s, ok := ds.Series[e.Key]; !ok || s.ValidCount() == 0 {
			quality[e.Key] = Quality{Status: QualityMissing}
		}
	}

	var start, end time.Time
	for _, s := range ds.Series {
		first, last, ok := s.Span()
		if !ok {
			continue
		}
		if start.IsZero() || first.Before(start) {
			start = first
		}
		if end.IsZero() || last.After(end) {
			end = last
		}
	}
	if start.IsZero() {
		return nil, quality, ErrEmptyPanel
	}

	days := series.BusinessDays(start, end)
	if len(days) == 0 {
		return nil, quality, ErrEmptyPanel
	}
	panel := NewPanel(days)

	keys := make([]string, 0, len(ds.Series))
	for k := range ds.Series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		s := ds.Series[key]
		if s.ValidCount() == 0 {
			log.Warn(log.CatTransform, "Skipping empty series", "series", key)
			quality[key] = Quality{Status: QualityMissing}
			continue
		}

		var values []float64
		var method string
		switch s.Frequency {
		case series.Monthly:
			values, method = interpolate(s.Points, days), FillInterpolated
		case series.Weekly:
			values, method = carryForward(s.Points, days), FillWeekly
		default:
			values, method = fillDaily(s.Points, days, dailyFillLimit), FillDaily
		}

		if ds.Units[key] == "millions" {
			for i := range values {
				values[i] /= 1000
			}
		}

		panel.Set(key, values)
		quality[key] = assess(values, days, method)
	}

	log.Info(log.CatTransform, "Built daily panel", "days", panel.Len(), "series", len(keys))
	return panel, quality, nil
}

func assess(values []float64, days []time.Time, method string) Quality {
	valid := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			valid++
		}
	}
	coverage := 0.0
	if len(values) > 0 {
		coverage = float64(valid) / float64(len(values))
	}

	q := Quality{
		Status:     QualityDegraded,
		Coverage:   round(coverage, 3),
		FillMethod: method,
		StaleDays:  len(values),
	}
	if coverage > 0.8 {
		q.Status = QualityOK
	}
	if _, idx, ok := lastValid(values); ok {
		q.StaleDays = len(values) - 1 - idx
		q.LastValid = series.FormatDate(days[idx])
	}
	return q
}

// valid returns the OK observations of points in date order.
func valid(points []series.Observation) []series.Observation {
	out := make([]series.Observation, 0, len(points))
	for _, p := range series.Normalize(points) {
		if p.OK && !math.IsNaN(p.Value) {
			out = append(out, p)
		}
	}
	return out
}

// interpolate evaluates the series linearly in time at every day. Days before
// the first observation are NaN; days after the last hold its value.
func interpolate(points []series.Observation, days []time.Time) []float64 {
	obs := valid(points)
	out := nanSlice(len(days))
	j := 0
	for i, d := range days {
		for j+1 < len(obs) && !obs[j+1].Date.After(d) {
			j++
		}
		switch {
		case len(obs) == 0 || d.Before(obs[0].Date):
		case j+1 >= len(obs) || obs[j].Date.Equal(d):
			out[i] = obs[j].Value
		default:
			a, b := obs[j], obs[j+1]
			frac := float64(d.Sub(a.Date)) / float64(b.Date.Sub(a.Date))
			out[i] = a.Value + frac*(b.Value-a.Value)
		}
	}
	return out
}

// carryForward holds the most recent observation on or before every day.
func carryForward(points []series.Observation, days []time.Time) []float64 {
	obs := valid(points)
	out := nanSlice(len(days))
	j := -1
	for i, d := range days {
		for j+1 < len(obs) && !obs[j+1].Date.After(d) {
			j++
		}
		if j >= 0 {
			out[i] = obs[j].Value
		}
	}
	return out
}

// fillDaily places observations on their exact dates and forward-fills gaps
// of at most limit rows.
func fillDaily(points []series.Observation, days []time.Time, limit int) []float64 {
	byDate := make(map[time.Time]float64, len(points))
	for _, p := range valid(points) {
		byDate[p.Date] = p.Value
	}
	out := nanSlice(len(days))
	last, gap := math.NaN(), 0
	for i, d := range days {
		if v, ok := byDate[d]; ok {
			out[i], last, gap = v, v, 0
			continue
		}
		gap++
		if !math.IsNaN(last) && gap <= limit {
			out[i] = last
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// lastValid returns the last non-NaN value and its index.
func lastValid(values []float64) (float64, int, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		if !math.IsNaN(values[i]) {
			return values[i], i, true
		}
	}
	return 0, -1, false
}

// staleSeries lists the keys whose quality marks the judgment as stale.
func staleSeries(quality map[string]Quality, staleDays int) []string {
	var out []string
	for k, q := range quality {
		if q.Status == QualityMissing || q.Status == QualityDegraded || q.StaleDays > staleDays {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
