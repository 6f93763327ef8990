package transform

import (
	"fmt"
	"math"
	"time"

	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/fetch"
)

// Result is everything the artifact is built from.
type Result struct {
	Panel    *Panel
	Signals  *Signals
	Quality  map[string]Quality
	Judgment Judgment
	Score    Score
}

// Run cleans the dataset and computes indicators, signals, judgment and score.
func Run(ds *fetch.Dataset, sc config.SignalConfig, jc config.JudgmentConfig) (*Result, error) {
	if ds == nil {
		return nil, fmt.Errorf("failed to transform: %w", ErrEmptyPanel)
	}
	panel, quality, err := Clean(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to build panel: %w", err)
	}
	AddIndicators(panel)
	sig := ComputeSignals(panel, sc)

	return &Result{
		Panel:    panel,
		Signals:  sig,
		Quality:  quality,
		Judgment: Judge(panel, sig, quality, jc),
		Score:    ComputeScore(panel, sig),
	}, nil
}

// Reading is the latest value of an indicator with its signal context.
type Reading struct {
	Value      float64  `json:"value"`
	ZScore     *float64 `json:"zscore,omitempty"`
	Percentile *float64 `json:"percentile,omitempty"`
	Signal     Label    `json:"signal,omitempty"`
}

// readingKeys are reported in Readings.
var readingKeys = []string{
	NetLiquidity, "sofr", "hy_oas", "vix", MoveProxy,
	"usdjpy", CarrySpreadBps, CurveSlopeBps,
	"spx", "btc", "dxy", "us2y", "us10y",
}

// changeKeys are reported in Changes.
var changeKeys = []string{
	NetLiquidity, "sofr", "hy_oas", "vix", MoveProxy,
	"usdjpy", CarrySpreadBps, "spx", "btc",
}

// Readings returns the latest reading per key indicator.
func (r *Result) Readings() map[string]Reading {
	out := make(map[string]Reading)
	for _, key := range readingKeys {
		v, ok := r.Panel.Last(key)
		if !ok {
			continue
		}
		rd := Reading{Value: round(v, 4)}
		if z, ok := r.Signals.Last(ZScoreColumn(key)); ok {
			rd.ZScore = ptr(round(z, 2))
		}
		if p, ok := r.Signals.Last(PercentileColumn(key)); ok {
			rd.Percentile = ptr(round(p, 3))
		}
		if r.Signals.Has(ZScoreColumn(key)) {
			rd.Signal = r.Signals.Label(key)
		}
		out[key] = rd
	}
	return out
}

// Changes returns the latest chg_Nd / pct_Nd values per key indicator.
func (r *Result) Changes(windows []int) map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for _, key := range changeKeys {
		entry := make(map[string]float64)
		for _, w := range windows {
			if v, ok := r.Signals.Last(ChangeColumn(key, w)); ok {
				entry[fmt.Sprintf("chg_%dd", w)] = round(v, 4)
			}
			if v, ok := r.Signals.Last(PctColumn(key, w)); ok && !math.IsInf(v, 0) {
				entry[fmt.Sprintf("pct_%dd", w)] = round(v, 4)
			}
		}
		if len(entry) > 0 {
			out[key] = entry
		}
	}
	return out
}

// Range returns the first and last panel dates and the row count.
func (r *Result) Range() (start, end time.Time, days int) {
	if r.Panel.Len() == 0 {
		return time.Time{}, time.Time{}, 0
	}
	return r.Panel.Dates[0], r.Panel.Dates[r.Panel.Len()-1], r.Panel.Len()
}
