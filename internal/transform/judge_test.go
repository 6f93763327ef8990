package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/series"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		indicator string
		z         float64
		want      Label
	}{
		{"sofr", 2.0, LabelStress},
		{"sofr", 1.5, LabelTight},
		{"sofr", 0.6, LabelTight},
		{"sofr", 0.2, LabelNeutral},
		{"sofr", -0.8, LabelEasing},
		{NetLiquidity, -2.0, LabelStress},
		{NetLiquidity, -1.0, LabelTight},
		{NetLiquidity, 0.8, LabelEasing},
		{"us10y", -2.0, LabelStress},
		{"us10y", 1.0, LabelTight},
		{"us10y", -0.3, LabelNeutral},
		{"vix", math.NaN(), LabelNeutral},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, label(tt.indicator, tt.z), "%s z=%v", tt.indicator, tt.z)
	}
}

func dims(weakening, confirming bool, stressed ...string) map[string]Dimension {
	out := map[string]Dimension{
		DimNetLiquidity: {Available: true, Weakening: ptr(weakening), Detail: "Level: 5800B, 5d: -80B, 20d: -120B"},
		DimRiskAssets:   {Available: true, ConfirmingWeakness: ptr(confirming)},
	}
	for _, d := range confirmationDims {
		out[d] = Dimension{Available: true, Stress: ptr(false)}
	}
	for _, d := range stressed {
		out[d] = Dimension{Available: true, Stress: ptr(true)}
	}
	return out
}

func TestApplyRules(t *testing.T) {
	tests := []struct {
		name       string
		dims       map[string]Dimension
		stale      []string
		regime     Regime
		confidence Confidence
	}{
		{"tightening confirmed", dims(true, true, DimSOFR, DimHYOAS), nil, RegimeTightening, ConfidenceHigh},
		{"tightening unconfirmed by risk assets", dims(true, false, DimSOFR, DimHYOAS), nil, RegimeTightening, ConfidenceMedium},
		{"tightening stale and unconfirmed", dims(true, false, DimSOFR, DimHYOAS), []string{"vix"}, RegimeTightening, ConfidenceLow},
		{"weakening without confirmation", dims(true, true, DimSOFR), nil, RegimeLocalDisturbance, ConfidenceMedium},
		{"single stress", dims(false, false, DimCarryChain), nil, RegimeLocalDisturbance, ConfidenceMedium},
		{"single stress stale", dims(false, false, DimCarryChain), []string{"vix"}, RegimeLocalDisturbance, ConfidenceLow},
		{"stable", dims(false, false), nil, RegimeStable, ConfidenceHigh},
		{"stable stale", dims(false, false), []string{"hy_oas"}, RegimeStable, ConfidenceMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyRules(tt.dims, tt.stale, 2)
			require.Equal(t, tt.regime, got.Regime)
			require.Equal(t, tt.confidence, got.Confidence)
			require.NotNil(t, got.StressDimensions)
			require.NotNil(t, got.DataStale)
			if len(tt.stale) > 0 {
				require.Contains(t, got.Explanation, "Data stale/missing for: "+tt.stale[0])
			}
		})
	}
}

func TestApplyRules_StressDimensionOrder(t *testing.T) {
	got := applyRules(dims(true, true, DimHYOAS, DimSOFR, DimMoveProxy), nil, 2)

	require.Equal(t, []string{DimSOFR, DimMoveProxy, DimHYOAS}, got.StressDimensions)
	require.Equal(t, 3, got.StressCount)
}

func TestJudge_EmptyPanel(t *testing.T) {
	p := NewPanel(nil)

	got := Judge(p, &Signals{Panel: NewPanel(nil)}, nil, config.Defaults().Judgment)

	require.Equal(t, RegimeUnknown, got.Regime)
	require.Equal(t, ConfidenceNone, got.Confidence)
}

// rampPanel builds a panel whose columns change linearly by step per row.
func rampPanel(n int, cols map[string][2]float64) *Panel {
	p := NewPanel(series.BusinessDays(day("2024-01-01"), day("2024-12-31"))[:n])
	for name, c := range cols {
		start, step := c[0], c[1]
		p.Set(name, combine(n, func(i int) float64 { return start + step*float64(i) }))
	}
	return p
}

func TestJudge_DimensionChecks(t *testing.T) {
	p := rampPanel(40, map[string][2]float64{
		NetLiquidity: {6000, -20}, // -100B over 5 days
		"sofr":       {5.30, 0.02},
		"hy_oas":     {3.0, 0.0},
		"vix":        {30, 0},
		"usdjpy":     {150, 0},
		"spx":        {5000, -50},
	})
	cfg := config.Defaults()
	sig := ComputeSignals(p, cfg.Signal)

	got := Judge(p, sig, map[string]Quality{"vix": {Status: QualityOK}}, cfg.Judgment)

	require.Equal(t, "2024-02-23", got.Date)
	require.True(t, got.NetLiquidityWeakening)
	nl := got.Dimensions[DimNetLiquidity]
	require.Equal(t, -100.0, *nl.Chg5d)
	require.Equal(t, "Level: 5220B, 5d: -100B, 20d: -400B", nl.Detail)

	require.True(t, got.Dimensions[DimSOFR].stressed(), "10bp over 5 days exceeds 5bp")
	require.Equal(t, 10.0, *got.Dimensions[DimSOFR].Chg5dBps)
	require.True(t, got.Dimensions[DimMoveProxy].stressed(), "vix above 25")
	require.Equal(t, "vix: 30, z-score: n/a", got.Dimensions[DimMoveProxy].Detail)
	require.False(t, got.Dimensions[DimHYOAS].stressed())
	require.False(t, got.Dimensions[DimCarryChain].stressed())
	require.True(t, got.RiskAssetConfirming)

	require.Equal(t, RegimeTightening, got.Regime)
	require.Equal(t, ConfidenceHigh, got.Confidence)
}
