package transform

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/series"
)

func day(s string) time.Time {
	t, err := series.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func obs(date string, v float64) series.Observation {
	return series.Observation{Date: day(date), Value: v, OK: true}
}

func TestFillDaily_LimitsForwardFill(t *testing.T) {
	days := series.BusinessDays(day("2024-01-01"), day("2024-01-10"))
	points := []series.Observation{obs("2024-01-01", 1), obs("2024-01-10", 2)}

	got := fillDaily(points, days, 3)

	require.Len(t, got, 8)
	require.Equal(t, []float64{1, 1, 1, 1}, got[:4])
	require.True(t, math.IsNaN(got[4]), "fifth business day exceeds the fill limit")
	require.True(t, math.IsNaN(got[6]))
	require.Equal(t, 2.0, got[7])
}

func TestFillDaily_IgnoresGapsAndWeekends(t *testing.T) {
	days := series.BusinessDays(day("2024-01-05"), day("2024-01-08"))
	points := []series.Observation{
		obs("2024-01-05", 10),
		obs("2024-01-06", 99), // Saturday
		{Date: day("2024-01-08"), OK: false},
	}

	got := fillDaily(points, days, 3)

	require.Equal(t, []float64{10, 10}, got)
}

func TestInterpolate_LinearInTimeAndHeldAfterLast(t *testing.T) {
	days := series.BusinessDays(day("2024-01-01"), day("2024-01-12"))
	points := []series.Observation{obs("2024-01-03", 0), obs("2024-01-10", 7)}

	got := interpolate(points, days)

	require.True(t, math.IsNaN(got[0]), "before first observation")
	require.True(t, math.IsNaN(got[1]))
	require.Equal(t, 0.0, got[2])
	require.InDelta(t, 1.0, got[3], 1e-9) // Jan 4
	require.InDelta(t, 5.0, got[5], 1e-9) // Jan 8
	require.Equal(t, 7.0, got[7])
	require.Equal(t, 7.0, got[9], "held flat after last observation")
}

func TestCarryForward_HoldsLastObservation(t *testing.T) {
	days := series.BusinessDays(day("2024-01-01"), day("2024-01-12"))
	points := []series.Observation{obs("2024-01-03", 5), obs("2024-01-10", 6)}

	got := carryForward(points, days)

	require.True(t, math.IsNaN(got[1]))
	require.Equal(t, 5.0, got[2])
	require.Equal(t, 5.0, got[6])
	require.Equal(t, 6.0, got[7])
	require.Equal(t, 6.0, got[9])
}

func TestClean(t *testing.T) {
	ds := &fetch.Dataset{
		Series: map[string]series.Series{
			"fed_total_assets": {Key: "fed_total_assets", Frequency: series.Weekly, Points: []series.Observation{
				obs("2024-01-03", 7_000_000), obs("2024-01-10", 7_100_000),
			}},
			"vix": {Key: "vix", Frequency: series.Daily, Points: []series.Observation{
				obs("2024-01-02", 13), obs("2024-01-03", 14),
			}},
			"empty": {Key: "empty", Frequency: series.Daily},
		},
		Units: map[string]string{"fed_total_assets": "millions"},
		Report: fetch.Report{Entries: []fetch.Entry{
			{Key: "fed_total_assets"}, {Key: "vix"}, {Key: "hy_oas", Status: fetch.StatusError},
		}},
	}

	panel, quality, err := Clean(ds)
	require.NoError(t, err)

	require.Equal(t, day("2024-01-02"), panel.Dates[0])
	require.Equal(t, day("2024-01-10"), panel.Dates[panel.Len()-1])

	last, ok := panel.Last("fed_total_assets")
	require.True(t, ok)
	require.Equal(t, 7100.0, last, "millions are converted to billions")

	require.Equal(t, QualityMissing, quality["hy_oas"].Status)
	require.Equal(t, QualityMissing, quality["empty"].Status)

	vix := quality["vix"]
	require.Equal(t, FillDaily, vix.FillMethod)
	require.Equal(t, "2024-01-08", vix.LastValid, "forward fill reaches three business days")
	require.Equal(t, 2, vix.StaleDays)
	require.Equal(t, QualityDegraded, vix.Status)

	fed := quality["fed_total_assets"]
	require.Equal(t, FillWeekly, fed.FillMethod)
	require.Equal(t, QualityOK, fed.Status)
	require.Equal(t, 0, fed.StaleDays)
}

func TestClean_EmptyDataset(t *testing.T) {
	ds := &fetch.Dataset{Series: map[string]series.Series{"vix": {Key: "vix"}}}

	_, _, err := Clean(ds)

	require.ErrorIs(t, err, ErrEmptyPanel)
}

func TestStaleSeries(t *testing.T) {
	quality := map[string]Quality{
		"a": {Status: QualityOK, StaleDays: 0},
		"b": {Status: QualityOK, StaleDays: 4},
		"c": {Status: QualityDegraded},
		"d": {Status: QualityMissing},
		"e": {Status: QualityOK, StaleDays: 3},
	}

	require.Equal(t, []string{"b", "c", "d"}, staleSeries(quality, 3))
}
