package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func d(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBusinessDays(t *testing.T) {
	days := BusinessDays(d("2025-05-30"), d("2025-06-03")) // Fri..Tue
	require.Equal(t, []time.Time{d("2025-05-30"), d("2025-06-02"), d("2025-06-03")}, days)

	require.Nil(t, BusinessDays(d("2025-06-03"), d("2025-06-02")))
}

func TestNormalize_SortsAndDedups(t *testing.T) {
	in := []Observation{
		{Date: d("2025-06-03"), Value: 3, OK: true},
		{Date: d("2025-06-02").Add(15 * time.Hour), Value: 1, OK: true},
		{Date: d("2025-06-02"), Value: 2, OK: true},
	}
	out := Normalize(in)
	require.Len(t, out, 2)
	require.Equal(t, d("2025-06-02"), out[0].Date)
	require.Equal(t, 2.0, out[0].Value)
	require.Equal(t, 3.0, out[1].Value)
}

func TestSpanAndValidCount(t *testing.T) {
	s := Series{Points: []Observation{
		{Date: d("2025-06-02")},
		{Date: d("2025-06-03"), Value: 1, OK: true},
		{Date: d("2025-06-04"), Value: 2, OK: true},
		{Date: d("2025-06-05")},
	}}
	first, last, ok := s.Span()
	require.True(t, ok)
	require.Equal(t, d("2025-06-03"), first)
	require.Equal(t, d("2025-06-04"), last)
	require.Equal(t, 2, s.ValidCount())

	_, _, ok = Series{}.Span()
	require.False(t, ok)
}

func TestConstant(t *testing.T) {
	s := Constant("jp2y", Monthly, 0.5, d("2025-06-06"), d("2025-06-10"))
	require.Len(t, s.Points, 3)
	for _, p := range s.Points {
		require.True(t, p.OK)
		require.Equal(t, 0.5, p.Value)
	}
}

func TestParseFrequency(t *testing.T) {
	f, err := ParseFrequency("weekly")
	require.NoError(t, err)
	require.Equal(t, Weekly, f)
	_, err = ParseFrequency("hourly")
	require.Error(t, err)
}

func TestBusinessDays_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := d("2020-01-01").AddDate(0, 0, rapid.IntRange(0, 2000).Draw(t, "offset"))
		span := rapid.IntRange(0, 400).Draw(t, "span")
		end := start.AddDate(0, 0, span)

		days := BusinessDays(start, end)
		for i, day := range days {
			if !IsBusinessDay(day) {
				t.Fatalf("weekend day %s returned", day)
			}
			if i > 0 && !days[i-1].Before(day) {
				t.Fatalf("not strictly increasing at %d", i)
			}
		}
		// Every full week contributes exactly five days.
		if want := (span + 1) / 7 * 5; len(days) < want || len(days) > want+5 {
			t.Fatalf("got %d days for span %d", len(days), span)
		}
	})
}
