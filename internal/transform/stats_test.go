package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDiffAndPctChange(t *testing.T) {
	x := []float64{100, 110, math.NaN(), 121}

	d := diff(x, 1)
	require.True(t, math.IsNaN(d[0]))
	require.Equal(t, 10.0, d[1])
	require.True(t, math.IsNaN(d[2]))

	p := pctChange(x, 1)
	require.InDelta(t, 0.1, p[1], 1e-12)
	require.True(t, math.IsNaN(p[3]))

	require.True(t, math.IsNaN(pctChange([]float64{0, 5}, 1)[1]), "division by zero yields NaN")
}

func TestRollingStd_SampleDeviation(t *testing.T) {
	x := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	std := rollingStd(x, 8, 8)

	require.InDelta(t, 2.138089935, std[7], 1e-9)
	require.True(t, math.IsNaN(std[6]), "below min periods")
}

func TestRollingZScore_ZeroDeviationIsNaN(t *testing.T) {
	x := []float64{3, 3, 3, 3}

	z := rollingZScore(x, 4, 2)

	for _, v := range z {
		require.True(t, math.IsNaN(v))
	}
}

func TestRollingRankPct_AveragesTies(t *testing.T) {
	x := []float64{1, 2, 2, 3, 2}

	got := rollingRankPct(x, 5, 5)

	// 2 sits below 3 once and ties twice more: rank (1 + (3+1)/2) / 5.
	require.InDelta(t, 3.0/5, got[4], 1e-12)
	require.True(t, math.IsNaN(got[3]))
}

func TestRollingRankPct_SkipsNaN(t *testing.T) {
	x := []float64{1, math.NaN(), 3, 2}

	got := rollingRankPct(x, 4, 3)

	require.InDelta(t, 2.0/3, got[3], 1e-12)
}

func TestRollingStatistics_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.SliceOfN(rapid.Float64Range(-1e6, 1e6), 1, 120).Draw(t, "x")
		w := rapid.IntRange(1, 60).Draw(t, "window")
		minPeriods := rapid.IntRange(1, w).Draw(t, "min_periods")

		ranks := rollingRankPct(x, w, minPeriods)
		std := rollingStd(x, w, minPeriods)
		mean := rollingMean(x, w, minPeriods)

		for i := range x {
			if !math.IsNaN(ranks[i]) && (ranks[i] <= 0 || ranks[i] > 1) {
				t.Fatalf("rank %v out of (0, 1] at %d", ranks[i], i)
			}
			if !math.IsNaN(std[i]) && std[i] < 0 {
				t.Fatalf("negative std %v at %d", std[i], i)
			}
			if math.IsNaN(mean[i]) {
				continue
			}
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, v := range x[max(0, i-w+1) : i+1] {
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
			if mean[i] < lo-1e-6 || mean[i] > hi+1e-6 {
				t.Fatalf("mean %v outside [%v, %v] at %d", mean[i], lo, hi, i)
			}
		}
	})
}

func TestNormCDF(t *testing.T) {
	require.InDelta(t, 0.5, normCDF(0), 1e-12)
	require.InDelta(t, 0.8413447, normCDF(1), 1e-6)
	require.InDelta(t, 0.0227501, normCDF(-2), 1e-6)
}
