package render

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/macropulse/macropulse/internal/artifact"
	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/pipeline"
	"github.com/macropulse/macropulse/internal/pubsub"
	"github.com/macropulse/macropulse/internal/runs/domain"
)

func TestShortDigest(t *testing.T) {
	require.Equal(t, "abc", ShortDigest("abc"))
	require.Equal(t, "0123456789ab", ShortDigest("0123456789abcdef"))
}

func TestRunReport_Published(t *testing.T) {
	rep := &pipeline.Report{
		RunID:          "run-1",
		Mode:           pipeline.ModeFull,
		Outcome:        domain.RunStatePublished,
		Digest:         "bbbbbbbbbbbbbbbbbbbb",
		PreviousDigest: "aaaaaaaaaaaaaaaaaaaa",
		Distributed:    true,
		Phases:         map[string]time.Duration{"fetch": 1500 * time.Millisecond, "publish": 3 * time.Millisecond},
		Fetch: fetch.Report{Entries: []fetch.Entry{
			{Key: "vix", Status: fetch.StatusOK},
			{Key: "btc", Status: fetch.StatusError},
		}},
		Headline: artifact.Headline{Date: "2024-03-05", Tier: "NEUTRAL", Score: "52.3", Regime: "EASING"},
	}
	out := RunReport(rep, nil)
	require.Contains(t, out, "run-1")
	require.Contains(t, out, "published")
	require.Contains(t, out, "2024-03-05 NEUTRAL 52.3 EASING")
	require.Contains(t, out, "bbbbbbbbbbbb")
	require.Contains(t, out, "aaaaaaaaaaaa")
	require.Contains(t, out, "1/2 series")
	require.Contains(t, out, "failed: btc")
	require.Contains(t, out, "fetch 1.5s, publish 3ms")
	require.Contains(t, out, "delivered")
}

func TestRunReport_Failed(t *testing.T) {
	rep := &pipeline.Report{RunID: "run-2", Mode: pipeline.ModeBrief, Outcome: domain.RunStateFailed, FailedPhase: "verify", DryRun: true,
		Verify: artifact.Report{Checks: []artifact.Check{{Name: "score_range", Critical: true, Detail: "composite 140"}}}}
	out := RunReport(rep, errors.New("artifact failed verification"))
	require.Contains(t, out, "(dry run)")
	require.Contains(t, out, "score_range composite 140")
	require.Contains(t, out, "artifact failed verification")
	require.Contains(t, out, "verify")
}

func TestVerifyReport(t *testing.T) {
	out := VerifyReport("data/latest.json", artifact.Report{Checks: []artifact.Check{
		{Name: "schema", OK: true},
		{Name: "brief_status", Detail: "empty"},
		{Name: "score_range", Critical: true, Detail: "out of range"},
	}})
	require.Contains(t, out, "verify data/latest.json")
	require.Contains(t, out, "ok   schema")
	require.Contains(t, out, "warn brief_status")
	require.Contains(t, out, "FAIL score_range")
}

func TestHistory(t *testing.T) {
	start := time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC)
	end := start.Add(42 * time.Second)
	failedAt := start.Add(time.Hour + 5*time.Second)
	runs := []*domain.Run{
		domain.ReconstituteRun(2, "g2", "full", domain.RunStateFailed, "", "", "", "upstream down", "fetch", nil, start.Add(time.Hour), &failedAt, failedAt),
		domain.ReconstituteRun(1, "g1", "full", domain.RunStatePublished, "cccccccccccccccc", "", "cccccccccccccccc", "", "", nil, start, &end, end),
	}
	out := History(runs, "dddddddddddddddd")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "STARTED")
	require.Contains(t, lines[1], "2024-03-05 07:00")
	require.Contains(t, lines[1], "fetch: upstream down")
	require.Contains(t, lines[2], "cccccccccccc")
	require.Contains(t, lines[2], "yes")
	require.Contains(t, lines[2], "42s")
	require.Contains(t, lines[3], "pending delivery: dddddddddddd")
}

func TestHistory_Empty(t *testing.T) {
	require.Equal(t, "no runs recorded\n", History(nil, ""))
}

func TestMarkdown(t *testing.T) {
	out, err := Markdown("# Title\n\nSome **bold** text.", 60, "notty")
	require.NoError(t, err)
	require.Contains(t, out, "Title")
	require.Contains(t, out, "bold")
}

func TestProgress(t *testing.T) {
	p := pipeline.Progress{RunID: "r1", Mode: pipeline.ModeFull, Phase: "fetch", Took: 1234 * time.Millisecond, Err: "timeout"}
	require.Equal(t, "run r1 (full)", Progress(pubsub.Event[pipeline.Progress]{Type: pubsub.RunStarted, Payload: p}))
	require.Equal(t, "ok   fetch 1.234s", Progress(pubsub.Event[pipeline.Progress]{Type: pubsub.PhaseFinished, Payload: p}))
	require.Equal(t, "FAIL fetch timeout", Progress(pubsub.Event[pipeline.Progress]{Type: pubsub.PhaseFailed, Payload: p}))
	require.Empty(t, Progress(pubsub.Event[pipeline.Progress]{Type: pubsub.PhaseStarted, Payload: p}))
}
