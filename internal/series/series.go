// Package series holds the time-series value types shared by fetch and transform.
package series

import (
	"fmt"
	"sort"
	"time"
)

// Frequency is the native sampling frequency of an upstream series.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ParseFrequency validates a configured frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case Daily, Weekly, Monthly:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// Observation is one dated value. OK is false for upstream gaps (FRED ".").
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	OK    bool      `json:"ok"`
}

// Series is a named, date-ordered list of observations.
type Series struct {
	Key       string        `json:"key"`
	Frequency Frequency     `json:"frequency"`
	Points    []Observation `json:"points"`
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD as a UTC day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a day as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

// IsBusinessDay reports whether t falls Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDays returns every weekday between start and end inclusive.
func BusinessDays(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)*5/7+2)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// Normalize returns the points sorted by day. A repeated day keeps its last
// observation.
func Normalize(points []Observation) []Observation {
	out := make([]Observation, len(points))
	for i, p := range points {
		p.Date = Day(p.Date)
		out[i] = p
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	dedup := out[:0]
	for _, p := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Date.Equal(p.Date) {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

// ValidCount returns the number of OK observations.
func (s Series) ValidCount() int {
	n := 0
	for _, p := range s.Points {
		if p.OK {
			n++
		}
	}
	return n
}

// Span returns the first and last dates with valid values.
func (s Series) Span() (first, last time.Time, ok bool) {
	for _, p := range s.Points {
		if p.OK {
			if !ok {
				first = p.Date
				ok = true
			}
			last = p.Date
		}
	}
	return first, last, ok
}

// Constant builds a business-day series holding value from start to end.
func Constant(key string, freq Frequency, value float64, start, end time.Time) Series {
	days := BusinessDays(start, end)
	points := make([]Observation, len(days))
	for i, d := range days {
		points[i] = Observation{Date: d, Value: value, OK: true}
	}
	return Series{Key: key, Frequency: freq, Points: points}
}
