package brief

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/macropulse/macropulse/internal/fetch"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Business</title>
<item>
  <title>Stocks rally as Fed holds rates - Reuters</title>
  <link>https://example.com/a</link>
  <pubDate>Tue, 05 Mar 2024 12:00:00 GMT</pubDate>
  <description>&lt;a href="x"&gt;Stocks rallied&lt;/a&gt; on Tuesday. Traders cheered.</description>
</item>
<item>
  <title>Oil climbs - Energy Desk - Bloomberg</title>
  <link>https://example.com/b</link>
  <pubDate>not a date</pubDate>
  <source url="https://bloomberg.com">Bloomberg</source>
</item>
</channel></rss>`

func TestParseRSS(t *testing.T) {
	articles, err := ParseRSS([]byte(sampleRSS), "topic:BUSINESS")
	require.NoError(t, err)
	require.Len(t, articles, 2)

	a := articles[0]
	require.Equal(t, "Stocks rally as Fed holds rates", a.Title)
	require.Equal(t, "Reuters", a.Source)
	require.Equal(t, "https://example.com/a", a.URL)
	require.Equal(t, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC), a.Published)
	require.Equal(t, "Stocks rallied on Tuesday. Traders cheered.", a.Summary)
	require.Equal(t, "topic:BUSINESS", a.Feed)

	b := articles[1]
	require.Equal(t, "Oil climbs - Energy Desk", b.Title, "only the last suffix is the source")
	require.Equal(t, "Bloomberg", b.Source)
	require.True(t, b.Published.IsZero())

	_, err = ParseRSS([]byte("<rss><channel>"), "broken")
	require.Error(t, err)
}

func TestGoogleNews_Requests(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		require.Equal(t, "en-US", r.URL.Query().Get("hl"))
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.ClientOptions{Timeout: 5 * time.Second, MaxAttempts: 1})
	g := NewGoogleNews(client, srv.URL+"/rss/")

	got, err := g.Topic(context.Background(), "BUSINESS")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "topic:BUSINESS", got[0].Feed)

	got, err = g.Search(context.Background(), "Wall Street")
	require.NoError(t, err)
	require.Equal(t, "search:Wall Street", got[0].Feed)

	require.True(t, strings.HasPrefix(paths[0], "/rss/headlines/section/topic/BUSINESS?"))
	require.True(t, strings.HasPrefix(paths[1], "/rss/search?"))
	require.Contains(t, paths[1], "q=Wall+Street")
}

func TestSimilarity(t *testing.T) {
	require.Equal(t, 1.0, Similarity("Fed holds rates", "fed HOLDS rates"))
	require.Equal(t, 0.0, Similarity("abc", "xyz"))
	require.Greater(t, Similarity("Fed holds rates steady", "Fed holds rates steady again"), duplicateRatio)
	require.Less(t, Similarity("Fed holds rates steady", "Bitcoin tops record high"), duplicateRatio)
}

func TestSimilarity_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.StringN(0, 40, -1).Draw(t, "a")
		b := rapid.StringN(0, 40, -1).Draw(t, "b")
		s := Similarity(a, b)
		if s < 0 || s > 1 {
			t.Fatalf("similarity %v out of range", s)
		}
		if Similarity(a, a) != 1 {
			t.Fatalf("self similarity of %q is not 1", a)
		}
	})
}

func TestDeduplicate(t *testing.T) {
	in := []Article{
		{Title: "Fed holds rates steady"},
		{Title: ""},
		{Title: "Fed holds rates steady again"},
		{Title: "Bitcoin tops record high"},
	}
	out := Deduplicate(in)
	require.Len(t, out, 2)
	require.Equal(t, "Fed holds rates steady", out[0].Title, "first occurrence wins")
	require.Equal(t, "Bitcoin tops record high", out[1].Title)
}

func TestScore(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a    Article
		want float64
	}{
		{"base only", Article{Title: "Local news"}, 50},
		{"fresh", Article{Title: "Local news", Published: now.Add(-time.Hour)}, 100},
		{"half day", Article{Title: "Local news", Published: now.Add(-8 * time.Hour)}, 90},
		{"day old", Article{Title: "Local news", Published: now.Add(-20 * time.Hour)}, 75},
		{"two days", Article{Title: "Local news", Published: now.Add(-30 * time.Hour)}, 60},
		{"stale", Article{Title: "Local news", Published: now.Add(-50 * time.Hour)}, 50},
		{"authority exact", Article{Title: "Local news", Source: "Reuters"}, 80},
		{"authority partial", Article{Title: "Local news", Source: "reuters.com via Reuters"}, 70},
		{"keywords capped", Article{Title: "Stock market rally as Fed rate cut lifts crypto and bitcoin"}, 70},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Score(tc.a, now))
		})
	}
}

func TestImpactSectorsAndOneLine(t *testing.T) {
	a := Article{Title: "Nvidia lifts Nasdaq as bitcoin rallies", Summary: "Chip stocks led. Crypto followed."}
	require.Equal(t, []string{"US equities", "Crypto", "Tech"}, ImpactSectors(a))
	require.Equal(t, "Chip stocks led.", OneLine(a))

	require.Equal(t, []string{"General"}, ImpactSectors(Article{Title: "Local bakery opens"}))
	require.Equal(t, "Local bakery opens", OneLine(Article{Title: "Local bakery opens"}))
}

func TestRankNews(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	ranked := RankNews([]Article{
		{Title: "Local bakery opens"},
		{Title: "Stocks surge", Source: "Reuters", Published: now.Add(-time.Hour)},
		{Title: "Stocks surge!", Source: "CNBC"},
	}, now)
	require.Len(t, ranked, 2)
	require.Equal(t, "Stocks surge", ranked[0].Title)
	require.Equal(t, 140.0, ranked[0].Score)
	require.Equal(t, "Local bakery opens", ranked[1].Title)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijkl", 10))
	require.Equal(t, "日本語日本語日...", truncate(strings.Repeat("日本語", 5), 10))
}
