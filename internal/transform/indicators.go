package transform

import (
	"math"

	"github.com/macropulse/macropulse/internal/log"
)

// Derived indicator columns.
const (
	NetLiquidity   = "net_liquidity"
	CarrySpreadBps = "carry_spread_bps"
	CurveSlopeBps  = "curve_slope_bps"
	MoveProxy      = "move_proxy"
	SPXReturn1d    = "spx_ret_1d"
	BTCReturn1d    = "btc_ret_1d"
)

const (
	rateVolWindow     = 20
	rateVolMinPeriods = 5
	rateVolNormWindow = 252
	rateVolNormMin    = 60
	rateVolWeight     = 0.3
)

// AddIndicators appends the derived columns to panel. An indicator whose
// inputs are absent is skipped.
func AddIndicators(p *Panel) {
	if p.Has("fed_total_assets") && p.Has("tga_balance") && p.Has("on_rrp") {
		assets, tga, rrp := p.Column("fed_total_assets"), p.Column("tga_balance"), p.Column("on_rrp")
		p.Set(NetLiquidity, combine(p.Len(), func(i int) float64 { return assets[i] - tga[i] - rrp[i] }))
	} else {
		log.Warn(log.CatTransform, "Cannot compute net liquidity", "missing_inputs", true)
	}

	if p.Has("us2y") && p.Has("jp2y") {
		us, jp := p.Column("us2y"), p.Column("jp2y")
		p.Set(CarrySpreadBps, combine(p.Len(), func(i int) float64 { return (us[i] - jp[i]) * 100 }))
	}

	if p.Has("vix") {
		p.Set(MoveProxy, moveProxy(p.Column("vix"), p.Column("us10y")))
	} else {
		log.Warn(log.CatTransform, "Cannot compute move proxy", "missing", "vix")
	}

	if p.Has("us10y") && p.Has("us2y") {
		long, short := p.Column("us10y"), p.Column("us2y")
		p.Set(CurveSlopeBps, combine(p.Len(), func(i int) float64 { return (long[i] - short[i]) * 100 }))
	}

	if p.Has("spx") {
		p.Set(SPXReturn1d, pctChange(p.Column("spx"), 1))
	}
	if p.Has("btc") {
		p.Set(BTCReturn1d, pctChange(p.Column("btc"), 1))
	}

	log.Debug(log.CatTransform, "Computed indicators", "columns", len(p.Names()))
}

// moveProxy scales vix by how unusual recent 10y rate volatility is. Without
// a 10y column the proxy is vix itself.
func moveProxy(vix, us10y []float64) []float64 {
	out := make([]float64, len(vix))
	if us10y == nil {
		copy(out, vix)
		return out
	}
	rv := rollingStd(diff(us10y, 1), rateVolWindow, rateVolMinPeriods)
	mean := rollingMean(rv, rateVolNormWindow, rateVolNormMin)
	std := rollingStd(rv, rateVolNormWindow, rateVolNormMin)
	for i := range vix {
		norm := 0.0
		if z := (rv[i] - mean[i]) / std[i]; !math.IsNaN(z) && std[i] != 0 {
			norm = clip(z, -2, 2)
		}
		out[i] = vix[i] * (1 + rateVolWeight*norm)
	}
	return out
}

func combine(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}
