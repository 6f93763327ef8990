package transform

import (
	"fmt"
	"math"
	"sort"

	"github.com/macropulse/macropulse/internal/log"
)

// Tier buckets the composite score.
type Tier string

const (
	TierStrongBull Tier = "STRONG_BULL"
	TierBull       Tier = "BULL"
	TierNeutral    Tier = "NEUTRAL"
	TierBear       Tier = "BEAR"
	TierStrongBear Tier = "STRONG_BEAR"
)

// ScoreSignal buckets a single indicator score.
type ScoreSignal string

const (
	SignalBullish  ScoreSignal = "BULLISH"
	SignalMildBull ScoreSignal = "MILD_BULL"
	SignalNeutral  ScoreSignal = "NEUTRAL"
	SignalMildBear ScoreSignal = "MILD_BEAR"
	SignalBearish  ScoreSignal = "BEARISH"
)

// weight pairs an indicator with its share of the composite and whether a
// higher reading favors risk assets (+1) or not (-1).
type weight struct {
	indicator string
	share     float64
	direction int
}

// scoreWeights sum to 1. Order breaks ties when ranking factors.
var scoreWeights = []weight{
	{NetLiquidity, 0.25, +1},
	{"vix", 0.15, -1},
	{"hy_oas", 0.15, -1},
	{"sofr", 0.10, -1},
	{"dxy", 0.10, -1},
	{CarrySpreadBps, 0.10, +1},
	{CurveSlopeBps, 0.08, +1},
	{"on_rrp", 0.07, -1},
}

const (
	minScoreHistory  = 30
	fallbackZWindow  = 60
	pctileShare      = 0.40
	trendShare       = 0.35
	zShare           = 0.25
	neutralComposite = 50.0
)

var (
	riskNames = map[string]string{
		NetLiquidity:   "net liquidity contraction",
		"vix":          "volatility spike",
		"hy_oas":       "credit spreads widening",
		"sofr":         "funding rates rising",
		"dxy":          "dollar strength",
		CarrySpreadBps: "carry spread compression",
		CurveSlopeBps:  "curve flattening or inversion",
		"on_rrp":       "reverse repo absorbing liquidity",
	}
	catalystNames = map[string]string{
		NetLiquidity:   "ample net liquidity",
		"vix":          "very low fear",
		"hy_oas":       "very loose credit",
		"sofr":         "falling funding rates",
		"dxy":          "dollar weakness",
		CarrySpreadBps: "active carry trade",
		CurveSlopeBps:  "curve steepening",
		"on_rrp":       "reverse repo releasing liquidity",
	}
)

// IndicatorScore is one indicator's 0-100 contribution.
type IndicatorScore struct {
	Score        float64     `json:"score"`
	Signal       ScoreSignal `json:"signal"`
	SignalColor  string      `json:"signal_color"`
	CurrentValue float64     `json:"current_value"`
	Percentile   float64     `json:"percentile"`
	Chg5d        float64     `json:"chg_5d"`
	Chg20d       float64     `json:"chg_20d"`
	Direction    int         `json:"direction"`
	WeightPct    float64     `json:"weight_pct"`
	PctileScore  float64     `json:"pctile_score"`
	TrendScore   float64     `json:"trend_score"`
	ZScoreScore  float64     `json:"zscore_score"`
}

// Factor is a ranked contributor in the advice.
type Factor struct {
	Indicator string      `json:"indicator"`
	Score     float64     `json:"score"`
	Signal    ScoreSignal `json:"signal"`
}

// Advice is the positioning guidance derived from the composite.
type Advice struct {
	Position       string   `json:"position"`
	PositionDetail string   `json:"position_detail"`
	BTCAction      string   `json:"btc_action"`
	SPXAction      string   `json:"spx_action"`
	NasdaqAction   string   `json:"nasdaq_action"`
	BullishFactors []Factor `json:"bullish_factors"`
	BearishFactors []Factor `json:"bearish_factors"`
	KeyRisk        string   `json:"key_risk"`
	KeyCatalyst    string   `json:"key_catalyst"`
}

// AssetOutlook is a per-asset rescaling of the composite.
type AssetOutlook struct {
	Score float64 `json:"score"`
	Tier  string  `json:"tier"`
	Color string  `json:"color"`
	Note  string  `json:"note"`
}

// Outlook groups the per-asset outlooks.
type Outlook struct {
	BTC    AssetOutlook `json:"btc"`
	SPX    AssetOutlook `json:"spx"`
	Nasdaq AssetOutlook `json:"nasdaq"`
}

// Score is the composite macro liquidity score.
type Score struct {
	Composite  float64                   `json:"composite"`
	Tier       Tier                      `json:"tier"`
	TierColor  string                    `json:"tier_color"`
	Indicators map[string]IndicatorScore `json:"indicator_scores"`
	Advice     Advice                    `json:"advice"`
	Outlook    Outlook                   `json:"asset_outlook"`
	Weights    map[string]float64        `json:"weights"`
}

// ComputeScore rates how favorable liquidity is for risk assets. Indicators
// with fewer than 30 observations are left out of the weighted mean.
func ComputeScore(p *Panel, sig *Signals) Score {
	scores := make(map[string]IndicatorScore)
	var weighted, total float64

	for _, w := range scoreWeights {
		if !p.Has(w.indicator) {
			log.Warn(log.CatTransform, "Indicator not in panel, skipping score", "indicator", w.indicator)
			continue
		}
		hist := dropNaN(p.Column(w.indicator))
		if len(hist) < minScoreHistory {
			log.Warn(log.CatTransform, "Too little history to score", "indicator", w.indicator, "points", len(hist))
			continue
		}
		s := scoreIndicator(w, hist, sig)
		scores[w.indicator] = s
		weighted += s.Score * w.share
		total += w.share
	}

	composite := neutralComposite
	if total > 0 {
		composite = weighted / total
	}
	composite = clip(composite, 0, 100)
	tier, color := tierFor(composite)

	weights := make(map[string]float64, len(scoreWeights))
	for _, w := range scoreWeights {
		weights[w.indicator] = round(w.share*100, 1)
	}

	log.Info(log.CatTransform, "Computed composite score", "score", round(composite, 1), "tier", tier)
	return Score{
		Composite:  round(composite, 1),
		Tier:       tier,
		TierColor:  color,
		Indicators: scores,
		Advice:     advise(composite, scores),
		Outlook:    outlook(composite),
		Weights:    weights,
	}
}

func scoreIndicator(w weight, hist []float64, sig *Signals) IndicatorScore {
	current := hist[len(hist)-1]
	pctile := shareBelow(hist, current)
	pctileScore := pctile
	if w.direction < 0 {
		pctileScore = 100 - pctile
	}

	d5, d20 := diff(hist, 5), diff(hist, 20)
	chg5, chg20 := d5[len(d5)-1], d20[len(d20)-1]
	trend5, trend20 := 50.0, 50.0
	if h := dropNaN(d5); len(h) > 0 {
		trend5 = shareBelow(h, chg5)
	}
	if h := dropNaN(d20); len(h) > 0 {
		trend20 = shareBelow(h, chg20)
	}
	if w.direction < 0 {
		trend5, trend20 = 100-trend5, 100-trend20
	}
	trendScore := trend5*0.6 + trend20*0.4

	z, ok := sig.Last(ZScoreColumn(w.indicator))
	if !ok {
		z = 0
		if !sig.Has(ZScoreColumn(w.indicator)) {
			zs := rollingZScore(hist, fallbackZWindow, fallbackZWindow)
			if v := zs[len(zs)-1]; !math.IsNaN(v) {
				z = v
			}
		}
	}
	zScore := normCDF(z) * 100
	if w.direction < 0 {
		zScore = 100 - zScore
	}

	score := clip(pctileScore*pctileShare+trendScore*trendShare+zScore*zShare, 0, 100)
	signal, color := signalFor(score)

	return IndicatorScore{
		Score:        round(score, 1),
		Signal:       signal,
		SignalColor:  color,
		CurrentValue: round(current, 4),
		Percentile:   round(pctile, 1),
		Chg5d:        finite(round(chg5, 4)),
		Chg20d:       finite(round(chg20, 4)),
		Direction:    w.direction,
		WeightPct:    round(w.share*100, 1),
		PctileScore:  round(pctileScore, 1),
		TrendScore:   round(trendScore, 1),
		ZScoreScore:  round(zScore, 1),
	}
}

func signalFor(score float64) (ScoreSignal, string) {
	switch {
	case score >= 70:
		return SignalBullish, "#22c55e"
	case score >= 55:
		return SignalMildBull, "#86efac"
	case score >= 45:
		return SignalNeutral, "#94a3b8"
	case score >= 30:
		return SignalMildBear, "#fca5a5"
	default:
		return SignalBearish, "#ef4444"
	}
}

func tierFor(composite float64) (Tier, string) {
	switch {
	case composite >= 80:
		return TierStrongBull, "#16a34a"
	case composite >= 60:
		return TierBull, "#22c55e"
	case composite >= 40:
		return TierNeutral, "#eab308"
	case composite >= 20:
		return TierBear, "#ef4444"
	default:
		return TierStrongBear, "#991b1b"
	}
}

func advise(composite float64, scores map[string]IndicatorScore) Advice {
	var a Advice
	switch {
	case composite >= 80:
		a.Position = "Aggressively long"
		a.PositionDetail = "Liquidity is extremely loose; risk assets have historically strengthened under similar conditions. Hold a high allocation (70-90%), modest leverage is acceptable."
		a.BTCAction = "BTC: hold a core position and add on pullbacks"
		a.SPXAction = "US equities: stay overweight, tilt toward growth and tech"
		a.NasdaqAction = "Nasdaq: stay overweight, tilt toward growth and tech"
	case composite >= 60:
		a.Position = "Lean long"
		a.PositionDetail = "Liquidity is broadly supportive and most indicators favor risk. Keep a medium-high allocation (50-70%) and watch for marginal deterioration."
		a.BTCAction = "BTC: hold, trim if signals weaken"
		a.SPXAction = "US equities: neutral-to-overweight, balanced"
		a.NasdaqAction = "Nasdaq: tech neutral-to-overweight, balanced"
	case composite >= 40:
		a.Position = "Neutral, wait"
		a.PositionDetail = "Signals are mixed and the liquidity direction is unclear. Reduce to 30-50% and wait for confirmation."
		a.BTCAction = "BTC: light position, wait for direction"
		a.SPXAction = "US equities: lower beta, lean defensive"
		a.NasdaqAction = "Nasdaq: lower beta, lean defensive"
	case composite >= 20:
		a.Position = "Lean defensive"
		a.PositionDetail = "Liquidity is tightening and most indicators point to risk contraction. Cut to 10-30% and add cash and short duration."
		a.BTCAction = "BTC: reduce to a minimum or hedge"
		a.SPXAction = "US equities: underweight, add bonds and cash"
		a.NasdaqAction = "Nasdaq: underweight, add bonds and cash"
	default:
		a.Position = "Fully defensive"
		a.PositionDetail = "Liquidity crisis signals; similar conditions have coincided with large drawdowns. Exit or hold a minimal allocation (<10%) and maximize cash."
		a.BTCAction = "BTC: exit or keep a token position"
		a.SPXAction = "US equities: cut sharply, capital preservation first"
		a.NasdaqAction = "Nasdaq: cut sharply, capital preservation first"
	}

	a.BullishFactors, a.BearishFactors = []Factor{}, []Factor{}
	for _, w := range scoreWeights {
		s, ok := scores[w.indicator]
		if !ok {
			continue
		}
		f := Factor{Indicator: w.indicator, Score: s.Score, Signal: s.Signal}
		switch {
		case s.Score >= 60:
			a.BullishFactors = append(a.BullishFactors, f)
		case s.Score <= 40:
			a.BearishFactors = append(a.BearishFactors, f)
		}
	}
	sort.SliceStable(a.BullishFactors, func(i, j int) bool { return a.BullishFactors[i].Score > a.BullishFactors[j].Score })
	sort.SliceStable(a.BearishFactors, func(i, j int) bool { return a.BearishFactors[i].Score < a.BearishFactors[j].Score })
	a.BullishFactors = a.BullishFactors[:min(3, len(a.BullishFactors))]
	a.BearishFactors = a.BearishFactors[:min(3, len(a.BearishFactors))]

	if worst, best, ok := extremes(scores); ok {
		a.KeyRisk = fmt.Sprintf("Biggest risk: %s (score %.0f/100)", riskNames[worst], scores[worst].Score)
		a.KeyCatalyst = fmt.Sprintf("Strongest tailwind: %s (score %.0f/100)", catalystNames[best], scores[best].Score)
	}
	return a
}

// extremes returns the lowest and highest scoring indicators, earliest in
// weight order on ties.
func extremes(scores map[string]IndicatorScore) (worst, best string, ok bool) {
	for _, w := range scoreWeights {
		s, found := scores[w.indicator]
		if !found {
			continue
		}
		if !ok {
			worst, best, ok = w.indicator, w.indicator, true
			continue
		}
		if s.Score < scores[worst].Score {
			worst = w.indicator
		}
		if s.Score > scores[best].Score {
			best = w.indicator
		}
	}
	return worst, best, ok
}

func outlook(composite float64) Outlook {
	asset := func(score float64, note string) AssetOutlook {
		score = clip(score, 0, 100)
		tier, color := assetTier(score)
		return AssetOutlook{Score: round(score, 1), Tier: tier, Color: color, Note: note}
	}
	return Outlook{
		BTC: asset(composite*1.15-7.5,
			"BTC carries the highest liquidity beta (~1.5x): largest gains when loose, largest losses when tight"),
		SPX: asset(composite*0.9+5,
			"S&P 500 is driven by both earnings and liquidity, with moderate liquidity sensitivity"),
		Nasdaq: asset(composite*1.05-2.5,
			"Nasdaq leans growth and tech, more rate and liquidity sensitive than the S&P"),
	}
}

func assetTier(score float64) (string, string) {
	switch {
	case score >= 70:
		return "bullish", "#22c55e"
	case score >= 50:
		return "mildly bullish", "#86efac"
	case score >= 40:
		return "neutral", "#eab308"
	case score >= 25:
		return "mildly bearish", "#fca5a5"
	default:
		return "bearish", "#ef4444"
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
