package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/runs/domain"
)

func TestNewDataset(t *testing.T) {
	ds := NewDataset(60).Build()
	require.Len(t, ds.Series, 13)
	require.Len(t, ds.Series["vix"].Points, 60)
	require.Equal(t, 0, len(ds.Report.Failed()))

	shifted := NewDataset(60).Shift("vix", 10).Without("btc").Build()
	require.InDelta(t, ds.Series["vix"].Points[5].Value+10, shifted.Series["vix"].Points[5].Value, 1e-9)
	require.NotContains(t, shifted.Series, "btc")
	require.Equal(t, []string{"btc"}, shifted.Report.Failed())
	require.Equal(t, fetch.StatusError, shifted.Report.Entries[len(shifted.Report.Entries)-2].Status)
}

func TestRunBuilder(t *testing.T) {
	db := NewStore(t)
	runs := NewRunBuilder(t, db.Runs()).
		WithRun("r1", Published("aaa", ""), Distributed("aaa")).
		WithRun("r2", Failed("fetch", "upstream down")).
		WithRun("r3", Mode("brief"), Published("bbb", "aaa")).
		Build()
	require.Len(t, runs, 3)

	ctx := context.Background()
	published, err := db.Runs().LastPublishedDigest(ctx)
	require.NoError(t, err)
	require.Equal(t, "bbb", published)
	delivered, err := db.Runs().LastDistributedDigest(ctx)
	require.NoError(t, err)
	require.Equal(t, "aaa", delivered)

	r2 := RequireRun(t, db.Runs(), "r2")
	require.Equal(t, domain.RunStateFailed, r2.State())
	require.Equal(t, "upstream down", r2.ErrorMessage())
	require.Equal(t, "brief", RequireRun(t, db.Runs(), "r3").Mode())
}
