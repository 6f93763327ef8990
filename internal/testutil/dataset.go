// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"math"
	"time"

	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/series"
)

// wave describes a daily series as base + amp*sin(i/period).
type wave struct {
	key    string
	freq   series.Frequency
	base   float64
	amp    float64
	period float64
}

var defaultWaves = []wave{
	{"fed_total_assets", series.Weekly, 7_500_000, 200_000, 40},
	{"tga_balance", series.Weekly, 750_000, 50_000, 40},
	{"on_rrp", series.Daily, 500, 200, 30},
	{"sofr", series.Daily, 5.3, 0.05, 15},
	{"hy_oas", series.Daily, 3.5, 0.4, 25},
	{"vix", series.Daily, 16, 4, 10},
	{"us2y", series.Daily, 4.5, 0.3, 35},
	{"us10y", series.Daily, 4.2, 0.25, 20},
	{"dxy", series.Daily, 120, 3, 50},
	{"usdjpy", series.Daily, 148, 4, 18},
	{"spx", series.Daily, 5000, 300, 22},
	{"btc", series.Daily, 60000, 8000, 12},
}

// DatasetBuilder accumulates tweaks to the synthetic dataset.
type DatasetBuilder struct {
	days  int
	shift map[string]float64
	drop  map[string]bool
}

// NewDataset starts a dataset of n business days from 2023-01-02 covering
// every key of the default catalog.
func NewDataset(n int) *DatasetBuilder {
	return &DatasetBuilder{days: n, shift: map[string]float64{}, drop: map[string]bool{}}
}

// Shift adds delta to every observation of key.
func (b *DatasetBuilder) Shift(key string, delta float64) *DatasetBuilder {
	b.shift[key] += delta
	return b
}

// Without leaves keys out of the dataset and marks them failed in the report.
func (b *DatasetBuilder) Without(keys ...string) *DatasetBuilder {
	for _, k := range keys {
		b.drop[k] = true
	}
	return b
}

// Build renders the dataset.
func (b *DatasetBuilder) Build() *fetch.Dataset {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	days := series.BusinessDays(start, start.AddDate(4, 0, 0))[:b.days]

	ds := &fetch.Dataset{
		Start:  days[0],
		End:    days[len(days)-1],
		Series: map[string]series.Series{},
		Units:  map[string]string{"fed_total_assets": "millions", "tga_balance": "millions"},
	}
	add := func(key string, freq series.Frequency, points []series.Observation) {
		if b.drop[key] {
			ds.Report.Entries = append(ds.Report.Entries, fetch.Entry{Key: key, Status: fetch.StatusError, Error: "dropped"})
			return
		}
		ds.Series[key] = series.Series{Key: key, Frequency: freq, Points: points}
		ds.Report.Entries = append(ds.Report.Entries, fetch.Entry{Key: key, Status: fetch.StatusOK, Rows: len(points)})
	}

	for _, w := range defaultWaves {
		var points []series.Observation
		for i, d := range days {
			if w.freq == series.Weekly && d.Weekday() != time.Wednesday {
				continue
			}
			v := w.base + w.amp*math.Sin(float64(i)/w.period) + b.shift[w.key]
			points = append(points, series.Observation{Date: d, Value: v, OK: true})
		}
		add(w.key, w.freq, points)
	}
	add("jp2y", series.Monthly, series.Constant("jp2y", series.Monthly, 0.5+b.shift["jp2y"], days[0], days[len(days)-1]).Points)
	return ds
}
