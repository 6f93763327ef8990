package distribute

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/macropulse/macropulse/internal/artifact"
)

type recordingTarget struct {
	name  string
	err   error
	calls []Delivery
}

func (r *recordingTarget) Name() string { return r.name }

func (r *recordingTarget) Distribute(_ context.Context, d Delivery) error {
	r.calls = append(r.calls, d)
	return r.err
}

func TestMulti_RunsEveryTarget(t *testing.T) {
	a := &recordingTarget{name: "a"}
	b := &recordingTarget{name: "b"}
	m := NewMulti(a, nil, b)

	require.Equal(t, 2, m.Len())
	require.Equal(t, "a+b", m.Name())
	require.NoError(t, m.Distribute(context.Background(), testDelivery()))
	require.Len(t, a.calls, 1)
	require.Len(t, b.calls, 1)
}

func TestMulti_AggregatesFailures(t *testing.T) {
	boomA := errors.New("boom a")
	boomC := errors.New("boom c")
	a := &recordingTarget{name: "a", err: boomA}
	b := &recordingTarget{name: "b"}
	c := &recordingTarget{name: "c", err: boomC}

	err := NewMulti(a, b, c).Distribute(context.Background(), testDelivery())

	require.ErrorIs(t, err, ErrDistribution)
	require.ErrorIs(t, err, boomA)
	require.ErrorIs(t, err, boomC)
	require.Len(t, b.calls, 1, "a failing target does not stop the others")
}

func TestMulti_Empty(t *testing.T) {
	m := NewMulti()

	require.Equal(t, "none", m.Name())
	require.NoError(t, m.Distribute(context.Background(), testDelivery()))
}

func TestMulti_CancelledContext(t *testing.T) {
	a := &recordingTarget{name: "a"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMulti(a).Distribute(ctx, testDelivery())

	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, a.calls)
}

func TestCommitMessage(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    string
		summary artifact.Headline
		want    string
		wantErr bool
	}{
		{
			name:    "default template",
			summary: artifact.Headline{Date: "2024-03-01", Tier: "BULL", Score: "61.2"},
			want:    "data: update 2024-03-01 (BULL 61.2)",
		},
		{
			name:    "custom template",
			tmpl:    "chore(data): {{.Regime}} on {{.Date}}",
			summary: artifact.Headline{Date: "2024-03-01", Regime: "STABLE"},
			want:    "chore(data): STABLE on 2024-03-01",
		},
		{
			name: "missing date",
			want: "data: update unknown ( )",
		},
		{
			name:    "unknown field",
			tmpl:    "{{.Nope}}",
			wantErr: true,
		},
		{
			name:    "bad syntax",
			tmpl:    "{{.Date",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CommitMessage(tc.tmpl, tc.summary)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
