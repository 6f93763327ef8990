package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/series"
)

// Regime classifies liquidity conditions.
type Regime string

const (
	RegimeTightening       Regime = "TIGHTENING"
	RegimeLocalDisturbance Regime = "LOCAL_DISTURBANCE"
	RegimeStable           Regime = "STABLE"
	RegimeUnknown          Regime = "UNKNOWN"
)

// Confidence of a judgment.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Dimension keys in Judgment.Dimensions.
const (
	DimNetLiquidity = "net_liquidity"
	DimSOFR         = "sofr"
	DimMoveProxy    = "move_proxy"
	DimCarryChain   = "carry_chain"
	DimHYOAS        = "hy_oas"
	DimRiskAssets   = "risk_assets"
)

// confirmationDims count toward the stress tally.
var confirmationDims = []string{DimSOFR, DimMoveProxy, DimCarryChain, DimHYOAS}

// Dimension is the outcome of one check. Only the fields a check computes are set.
type Dimension struct {
	Available          bool     `json:"available"`
	Weakening          *bool    `json:"weakening,omitempty"`
	Stress             *bool    `json:"stress,omitempty"`
	ConfirmingWeakness *bool    `json:"confirming_weakness,omitempty"`
	Level              *float64 `json:"level,omitempty"`
	Chg5d              *float64 `json:"chg_5d,omitempty"`
	Chg20d             *float64 `json:"chg_20d,omitempty"`
	Chg5dBps           *float64 `json:"chg_5d_bps,omitempty"`
	ZScore             *float64 `json:"zscore,omitempty"`
	IsProxy            bool     `json:"is_proxy,omitempty"`
	Detail             string   `json:"detail"`
}

func (d Dimension) stressed() bool { return d.Stress != nil && *d.Stress }

// Judgment is the regime verdict for the last panel date.
type Judgment struct {
	Date                  string               `json:"date"`
	Regime                Regime               `json:"regime"`
	Confidence            Confidence           `json:"confidence"`
	Explanation           string               `json:"explanation"`
	NetLiquidityWeakening bool                 `json:"net_liquidity_weakening"`
	StressCount           int                  `json:"stress_count"`
	StressDimensions      []string             `json:"stress_dimensions"`
	RiskAssetConfirming   bool                 `json:"risk_asset_confirming"`
	DataStale             []string             `json:"data_stale"`
	Dimensions            map[string]Dimension `json:"dimension_details,omitempty"`
}

// Judge applies the confirmation rules to the latest panel and signal values.
func Judge(p *Panel, sig *Signals, quality map[string]Quality, cfg config.JudgmentConfig) Judgment {
	today, ok := p.LastDate()
	if !ok {
		return Judgment{
			Regime:           RegimeUnknown,
			Confidence:       ConfidenceNone,
			Explanation:      "No data available",
			StressDimensions: []string{},
			DataStale:        []string{},
			Dimensions:       map[string]Dimension{},
		}
	}

	j := judge{panel: p, sig: sig, cfg: cfg}
	dims := map[string]Dimension{
		DimNetLiquidity: j.netLiquidity(),
		DimSOFR:         j.sofr(),
		DimMoveProxy:    j.moveProxy(),
		DimCarryChain:   j.carryChain(),
		DimHYOAS:        j.hyOAS(),
		DimRiskAssets:   j.riskAssets(),
	}

	out := applyRules(dims, staleSeries(quality, cfg.StaleDays), cfg.MinConfirmations)
	out.Date = series.FormatDate(today)

	log.Info(log.CatTransform, "Judged regime",
		"regime", out.Regime, "confidence", out.Confidence, "stress_count", out.StressCount)
	return out
}

type judge struct {
	panel *Panel
	sig   *Signals
	cfg   config.JudgmentConfig
}

func (j judge) signal(col string) (float64, bool) {
	return j.sig.Last(col)
}

func (j judge) netLiquidity() Dimension {
	d := Dimension{Weakening: ptr(false)}
	if !j.panel.Has(NetLiquidity) {
		d.Detail = "data missing"
		return d
	}
	d.Available = true
	level, ok := j.panel.Last(NetLiquidity)
	if !ok {
		d.Detail = "all NaN"
		return d
	}
	chg5, _ := j.signal(ChangeColumn(NetLiquidity, 5))
	chg20, _ := j.signal(ChangeColumn(NetLiquidity, 20))

	d.Level, d.Chg5d, d.Chg20d = ptr(round(level, 1)), ptr(round(chg5, 1)), ptr(round(chg20, 1))
	d.Weakening = ptr(chg5 < j.cfg.NetLiqWeakThreshold5d)
	d.Detail = fmt.Sprintf("Level: %sB, 5d: %sB, 20d: %sB",
		formatFloat(*d.Level), formatFloat(*d.Chg5d), formatFloat(*d.Chg20d))
	return d
}

func (j judge) sofr() Dimension {
	d := Dimension{Stress: ptr(false)}
	if !j.panel.Has("sofr") {
		d.Detail = "data missing"
		return d
	}
	d.Available = true
	level, ok := j.panel.Last("sofr")
	if !ok {
		d.Detail = "all NaN"
		return d
	}
	d.Level = ptr(round(level, 4))
	bps := "n/a"
	if chg, ok := j.signal(ChangeColumn("sofr", 5)); ok {
		d.Chg5dBps = ptr(round(chg*100, 1))
		d.Stress = ptr(chg > j.cfg.SOFRStressThreshold5dBps/100)
		bps = formatFloat(*d.Chg5dBps)
	}
	d.Detail = fmt.Sprintf("SOFR: %s%%, 5d chg: %sbps", formatFloat(*d.Level), bps)
	return d
}

func (j judge) moveProxy() Dimension {
	d := Dimension{Stress: ptr(false)}
	col := MoveProxy
	if !j.panel.Has(col) {
		col = "vix"
	}
	if !j.panel.Has(col) {
		d.Detail = "data missing"
		return d
	}
	d.Available = true
	level, ok := j.panel.Last(col)
	if !ok {
		d.Detail = "all NaN"
		return d
	}
	d.Level = ptr(round(level, 1))
	d.IsProxy = true
	stress := level > j.cfg.VIXStressThreshold
	z := "n/a"
	if zs, ok := j.signal(ZScoreColumn(col)); ok {
		d.ZScore = ptr(round(zs, 2))
		stress = stress || zs > j.cfg.MoveZScoreStress
		z = formatFloat(*d.ZScore)
	}
	d.Stress = ptr(stress)
	d.Detail = fmt.Sprintf("%s: %s, z-score: %s", col, formatFloat(*d.Level), z)
	return d
}

func (j judge) carryChain() Dimension {
	d := Dimension{Stress: ptr(false)}
	hasJPY, hasSpread := j.panel.Has("usdjpy"), j.panel.Has(CarrySpreadBps)
	if !hasJPY && !hasSpread {
		d.Detail = "data missing"
		return d
	}
	d.Available = true
	stress := false
	var parts []string

	if hasJPY {
		part := "USDJPY: N/A"
		if v, ok := j.panel.Last("usdjpy"); ok && v != 0 {
			part = fmt.Sprintf("USDJPY: %.1f", v)
		}
		if chg, ok := j.signal(ChangeColumn("usdjpy", 5)); ok && chg < j.cfg.USDJPYStressThreshold5d {
			part += " [STRESS]"
			stress = true
		}
		parts = append(parts, part)
	}
	if hasSpread {
		part := "Spread: N/A"
		if v, ok := j.panel.Last(CarrySpreadBps); ok && v != 0 {
			part = fmt.Sprintf("US2Y-JP2Y: %.0fbps", v)
		}
		if chg, ok := j.signal(ChangeColumn(CarrySpreadBps, 5)); ok && chg < j.cfg.CarrySpreadNarrowThreshold5d {
			part += " [STRESS]"
			stress = true
		}
		parts = append(parts, part)
	}

	d.Stress = ptr(stress)
	d.Detail = strings.Join(parts, " | ")
	return d
}

func (j judge) hyOAS() Dimension {
	d := Dimension{Stress: ptr(false)}
	if !j.panel.Has("hy_oas") {
		d.Detail = "data missing"
		return d
	}
	d.Available = true
	level, ok := j.panel.Last("hy_oas")
	if !ok {
		d.Detail = "all NaN"
		return d
	}
	d.Level = ptr(round(level, 2))
	bps := "n/a"
	if chg, ok := j.signal(ChangeColumn("hy_oas", 5)); ok {
		d.Chg5d = ptr(round(chg*100, 1))
		d.Stress = ptr(chg > j.cfg.HYOASWidenThreshold5dBps/100)
		bps = formatFloat(*d.Chg5d)
	}
	d.Detail = fmt.Sprintf("HY OAS: %s%%, 5d: %sbps", formatFloat(*d.Level), bps)
	return d
}

func (j judge) riskAssets() Dimension {
	d := Dimension{ConfirmingWeakness: ptr(false)}
	if !j.panel.Has("spx") {
		d.Detail = "data missing"
		return d
	}
	d.Available = true
	var parts []string
	spx, spxOK := j.signal(PctColumn("spx", 5))
	if spxOK {
		parts = append(parts, fmt.Sprintf("SPX 5d: %.1f%%", spx*100))
	}
	if btc, ok := j.signal(PctColumn("btc", 5)); ok {
		parts = append(parts, fmt.Sprintf("BTC 5d: %.1f%%", btc*100))
	}
	d.ConfirmingWeakness = ptr(spxOK && spx < j.cfg.SPXWeakThreshold5d)
	d.Detail = strings.Join(parts, " | ")
	return d
}

func applyRules(dims map[string]Dimension, stale []string, minConf int) Judgment {
	netLiq := dims[DimNetLiquidity]
	weakening := netLiq.Weakening != nil && *netLiq.Weakening
	risk := dims[DimRiskAssets]
	confirming := risk.ConfirmingWeakness != nil && *risk.ConfirmingWeakness

	stressed := []string{}
	for _, name := range confirmationDims {
		if dims[name].stressed() {
			stressed = append(stressed, name)
		}
	}
	count := len(stressed)
	hasStale := len(stale) > 0

	var (
		regime      Regime
		confidence  Confidence
		explanation string
	)
	switch {
	case weakening && count >= minConf:
		regime = RegimeTightening
		confidence = ConfidenceHigh
		if hasStale {
			confidence = ConfidenceMedium
		}
		explanation = fmt.Sprintf("Net liquidity is weakening (%s) and %d confirming dimensions agree (%s)",
			netLiq.Detail, count, strings.Join(stressed, ", "))
		if !confirming {
			explanation += ". Risk assets have not confirmed yet: the leading signal is in place but market confirmation is lacking"
			if confidence == ConfidenceHigh {
				confidence = ConfidenceMedium
			} else {
				confidence = ConfidenceLow
			}
		}
	case count > 0 || weakening:
		regime = RegimeLocalDisturbance
		confidence = ConfidenceMedium
		if hasStale {
			confidence = ConfidenceLow
		}
		if weakening {
			explanation = fmt.Sprintf("Net liquidity is weakening (%s) but confirmation is insufficient (%d/%d)",
				netLiq.Detail, count, minConf)
		} else {
			explanation = fmt.Sprintf("Net liquidity is not materially weaker, but %s show stress: a local disturbance, not a regime shift",
				strings.Join(stressed, ", "))
		}
	default:
		regime = RegimeStable
		confidence = ConfidenceHigh
		explanation = "Neither net liquidity nor any confirming dimension shows weakness"
	}

	if hasStale {
		explanation += fmt.Sprintf(". [Note] Data stale/missing for: %s, judgment is conservative", strings.Join(stale, ", "))
		if regime == RegimeStable {
			confidence = ConfidenceMedium
		}
	}
	if stale == nil {
		stale = []string{}
	}

	return Judgment{
		Regime:                regime,
		Confidence:            confidence,
		Explanation:           explanation,
		NetLiquidityWeakening: weakening,
		StressCount:           count,
		StressDimensions:      stressed,
		RiskAssetConfirming:   confirming,
		DataStale:             stale,
		Dimensions:            dims,
	}
}

func ptr[T any](v T) *T { return &v }

// formatFloat renders a rounded value without trailing zeros.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
