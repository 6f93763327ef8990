package artifact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const fullBrief = `{
  "market": {"indices": [{"symbol": "^NDX", "price": 19000.5}, {"symbol": "BTC-USD", "price": 61000}]},
  "movers": {"gainers": [{"symbol": "NVDA"}], "losers": []},
  "news": {"top5": [{"title": "Fed holds"}]},
  "analysis": {"commentary": {"main_theme": "Liquidity steady"}, "outlook": [{"asset": "BTC"}], "source": "rule_based"}
}`

func TestVerify(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		failures []string
	}{
		{
			name:     "macro only warns about missing brief",
			content:  `{"score": {"composite": 55.1}, "judgment": {"regime": "STABLE"}}`,
			failures: []string{"brief"},
		},
		{
			name:    "full payload passes",
			content: `{"score": {"composite": 55.1}, "judgment": {"regime": "STABLE"}, "daily_brief": ` + fullBrief + `}`,
		},
		{
			name:     "missing score is critical",
			content:  `{"judgment": {"regime": "STABLE"}}`,
			wantErr:  true,
			failures: []string{"score", "brief"},
		},
		{
			name:     "empty regime is critical",
			content:  `{"score": {"composite": 55.1}, "judgment": {"regime": ""}}`,
			wantErr:  true,
			failures: []string{"regime", "brief"},
		},
		{
			name:     "unpriced index and empty sections warn",
			content:  `{"score": {"composite": 1}, "judgment": {"regime": "STABLE"}, "daily_brief": {"market": {"indices": [{"price": null}]}}}`,
			failures: []string{"indices", "movers", "news", "commentary", "outlook"},
		},
		{
			name:     "garbage",
			content:  `nope`,
			wantErr:  true,
			failures: []string{"decode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Verify([]byte(tt.content))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrVerification)
				require.True(t, report.HasCritical())
			} else {
				require.NoError(t, err)
			}
			var names []string
			for _, c := range report.Failures() {
				names = append(names, c.Name)
			}
			require.Equal(t, tt.failures, names)
		})
	}
}

func TestVerify_BuiltArtifactPasses(t *testing.T) {
	content := encodeSample(t, time.Now())

	_, err := Verify(content)

	require.NoError(t, err)
}
