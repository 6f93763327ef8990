package transform

import (
	"fmt"
	"math"
	"slices"

	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/log"
)

// Label is a per-indicator liquidity signal.
type Label string

const (
	LabelStress  Label = "STRESS"
	LabelTight   Label = "TIGHT"
	LabelEasing  Label = "EASING"
	LabelNeutral Label = "NEUTRAL"
)

// SignalIndicators are the columns that receive changes, z-scores,
// percentiles and labels.
var SignalIndicators = []string{
	NetLiquidity, "sofr", "hy_oas", "vix", MoveProxy,
	"usdjpy", CarrySpreadBps, CurveSlopeBps,
	"us2y", "us10y", "spx", "btc", "dxy",
}

var (
	// Rising values tighten liquidity.
	tightensUp = []string{"sofr", "hy_oas", "vix", MoveProxy, "dxy"}
	// Falling values tighten liquidity.
	tightensDown = []string{NetLiquidity, "usdjpy", CarrySpreadBps, "spx", "btc"}
	// Percentage changes are tracked for price-like series.
	pctIndicators = []string{"spx", "btc", "usdjpy", "dxy"}
)

// Signals is the signal panel: numeric columns named "<indicator>_<stat>" and
// a label column per indicator.
type Signals struct {
	*Panel
	labels map[string][]Label
}

// Label returns the latest label for an indicator, NEUTRAL when unknown.
func (s *Signals) Label(indicator string) Label {
	col := s.labels[indicator]
	if len(col) == 0 {
		return LabelNeutral
	}
	return col[len(col)-1]
}

// ChangeColumn names a w-day difference column.
func ChangeColumn(indicator string, w int) string { return fmt.Sprintf("%s_chg_%dd", indicator, w) }

// PctColumn names a w-day percentage change column.
func PctColumn(indicator string, w int) string { return fmt.Sprintf("%s_pct_%dd", indicator, w) }

// ZScoreColumn names the rolling z-score column.
func ZScoreColumn(indicator string) string { return indicator + "_zscore" }

// PercentileColumn names the rolling percentile column.
func PercentileColumn(indicator string) string { return indicator + "_pctl" }

// ComputeSignals derives the signal panel for every SignalIndicators column
// present in p.
func ComputeSignals(p *Panel, cfg config.SignalConfig) *Signals {
	s := &Signals{Panel: NewPanel(p.Dates), labels: make(map[string][]Label)}

	for _, ind := range SignalIndicators {
		if !p.Has(ind) {
			continue
		}
		x := p.Column(ind)
		s.Set(ind+"_level", x)

		for _, w := range cfg.ChangeWindows {
			s.Set(ChangeColumn(ind, w), diff(x, w))
			if slices.Contains(pctIndicators, ind) {
				s.Set(PctColumn(ind, w), pctChange(x, w))
			}
		}

		z := rollingZScore(x, cfg.ZScoreWindow, cfg.ZScoreMinPeriods)
		s.Set(ZScoreColumn(ind), z)
		s.Set(PercentileColumn(ind), rollingRankPct(x, cfg.PercentileWindow, cfg.PercentileMinPeriods))
		s.labels[ind] = labelColumn(ind, z)
	}

	log.Debug(log.CatTransform, "Computed signal panel", "columns", len(s.Names()))
	return s
}

func labelColumn(indicator string, z []float64) []Label {
	out := make([]Label, len(z))
	for i, v := range z {
		out[i] = label(indicator, v)
	}
	return out
}

func label(indicator string, z float64) Label {
	if math.IsNaN(z) {
		return LabelNeutral
	}
	switch {
	case slices.Contains(tightensUp, indicator):
	case slices.Contains(tightensDown, indicator):
		z = -z
	default:
		z = math.Abs(z)
	}
	switch {
	case z > 1.5:
		return LabelStress
	case z > 0.5:
		return LabelTight
	case z < -0.5:
		return LabelEasing
	default:
		return LabelNeutral
	}
}
