package transform

import "math"

// Rolling statistics over NaN-bearing columns. A window covers the last w rows
// and yields NaN until it holds at least minPeriods non-NaN values.

func diff(x []float64, w int) []float64 {
	out := nanSlice(len(x))
	for i := w; i < len(x); i++ {
		out[i] = x[i] - x[i-w]
	}
	return out
}

func pctChange(x []float64, w int) []float64 {
	out := nanSlice(len(x))
	for i := w; i < len(x); i++ {
		if x[i-w] != 0 {
			out[i] = x[i]/x[i-w] - 1
		}
	}
	return out
}

func windowValues(x []float64, i, w int, buf []float64) []float64 {
	buf = buf[:0]
	lo := i - w + 1
	if lo < 0 {
		lo = 0
	}
	for _, v := range x[lo : i+1] {
		if !math.IsNaN(v) {
			buf = append(buf, v)
		}
	}
	return buf
}

func meanStd(vals []float64) (mean, std float64) {
	n := float64(len(vals))
	for _, v := range vals {
		mean += v
	}
	mean /= n
	if len(vals) < 2 {
		return mean, math.NaN()
	}
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

func rollingMean(x []float64, w, minPeriods int) []float64 {
	out := nanSlice(len(x))
	buf := make([]float64, 0, w)
	for i := range x {
		buf = windowValues(x, i, w, buf)
		if len(buf) >= minPeriods && len(buf) > 0 {
			out[i], _ = meanStd(buf)
		}
	}
	return out
}

// rollingStd is the sample standard deviation (ddof 1).
func rollingStd(x []float64, w, minPeriods int) []float64 {
	out := nanSlice(len(x))
	buf := make([]float64, 0, w)
	for i := range x {
		buf = windowValues(x, i, w, buf)
		if len(buf) >= minPeriods && len(buf) > 0 {
			_, out[i] = meanStd(buf)
		}
	}
	return out
}

// rollingZScore standardizes each value against its trailing window. A zero
// deviation yields NaN.
func rollingZScore(x []float64, w, minPeriods int) []float64 {
	mean := rollingMean(x, w, minPeriods)
	std := rollingStd(x, w, minPeriods)
	out := nanSlice(len(x))
	for i := range x {
		if std[i] > 0 {
			out[i] = (x[i] - mean[i]) / std[i]
		}
	}
	return out
}

// rollingRankPct is the percentile rank of each value within its trailing
// window, averaging ties, in (0, 1].
func rollingRankPct(x []float64, w, minPeriods int) []float64 {
	out := nanSlice(len(x))
	buf := make([]float64, 0, w)
	for i, cur := range x {
		if math.IsNaN(cur) {
			continue
		}
		buf = windowValues(x, i, w, buf)
		if len(buf) < minPeriods || len(buf) == 0 {
			continue
		}
		var below, equal int
		for _, v := range buf {
			switch {
			case v < cur:
				below++
			case v == cur:
				equal++
			}
		}
		rank := float64(below) + float64(equal+1)/2
		out[i] = rank / float64(len(buf))
	}
	return out
}

// shareBelow is the fraction of vals strictly below cur, in percent.
func shareBelow(vals []float64, cur float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	n := 0
	for _, v := range vals {
		if v < cur {
			n++
		}
	}
	return float64(n) / float64(len(vals)) * 100
}

func dropNaN(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func normCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
