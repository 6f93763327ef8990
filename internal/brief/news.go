package brief

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/log"
)

// Article is one feed item.
type Article struct {
	Title     string
	URL       string
	Source    string
	Published time.Time // zero when the feed date is unparseable
	Summary   string
	Feed      string
	Score     float64
}

// NewsFeed lists articles for a topic or a free-text query.
type NewsFeed interface {
	Topic(ctx context.Context, topic string) ([]Article, error)
	Search(ctx context.Context, query string) ([]Article, error)
}

// Event is one ranked headline in the brief.
type Event struct {
	Rank           int      `json:"rank"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	ImpactSectors  []string `json:"impact_sectors"`
	Published      string   `json:"published,omitempty"`
	Source         string   `json:"source"`
	URL            string   `json:"url"`
	RelevanceScore float64  `json:"relevance_score"`
}

// NewsSection is the news block of the brief.
type NewsSection struct {
	Status      Status  `json:"status"`
	Top5        []Event `json:"top5"`
	TotalUnique int     `json:"total_unique,omitempty"`
}

const (
	// duplicateRatio is the title similarity above which two articles are
	// the same story.
	duplicateRatio = 0.7
	perFeedLimit   = 15
	summaryMaxLen  = 300
)

// GoogleNews reads Google News RSS feeds.
type GoogleNews struct {
	client  *fetch.Client
	baseURL string
}

// NewGoogleNews creates a feed reader rooted at baseURL
// (https://news.google.com/rss).
func NewGoogleNews(client *fetch.Client, baseURL string) *GoogleNews {
	return &GoogleNews{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

var localeParams = url.Values{"hl": {"en-US"}, "gl": {"US"}, "ceid": {"US:en"}}

// Topic reads a section feed such as BUSINESS or TECHNOLOGY.
func (g *GoogleNews) Topic(ctx context.Context, topic string) ([]Article, error) {
	return g.read(ctx, g.baseURL+"/headlines/section/topic/"+url.PathEscape(topic), localeParams, "topic:"+topic)
}

// Search reads the results feed for query.
func (g *GoogleNews) Search(ctx context.Context, query string) ([]Article, error) {
	params := url.Values{"q": {query}}
	for k, v := range localeParams {
		params[k] = v
	}
	return g.read(ctx, g.baseURL+"/search", params, "search:"+query)
}

func (g *GoogleNews) read(ctx context.Context, target string, params url.Values, feed string) ([]Article, error) {
	body, err := g.client.Get(ctx, target, params)
	if err != nil {
		return nil, err
	}
	articles, err := ParseRSS(body, feed)
	if err != nil {
		return nil, err
	}
	if len(articles) > perFeedLimit {
		articles = articles[:perFeedLimit]
	}
	return articles, nil
}

type rssDoc struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			PubDate     string `xml:"pubDate"`
			Description string `xml:"description"`
			Source      string `xml:"source"`
		} `xml:"item"`
	} `xml:"channel"`
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// ParseRSS decodes an RSS 2.0 document. Google appends " - Source" to
// titles; that suffix becomes the article source.
func ParseRSS(body []byte, feed string) ([]Article, error) {
	var doc rssDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing rss %s: %w", feed, err)
	}
	out := make([]Article, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		title := strings.TrimSpace(it.Title)
		source := strings.TrimSpace(it.Source)
		if head, tail, ok := cutLast(title, " - "); ok {
			title = strings.TrimSpace(head)
			if source == "" {
				source = strings.TrimSpace(tail)
			}
		}
		summary := strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(it.Description, "")))
		out = append(out, Article{
			Title:     title,
			URL:       strings.TrimSpace(it.Link),
			Source:    source,
			Published: parseFeedDate(it.PubDate),
			Summary:   truncate(summary, summaryMaxLen),
			Feed:      feed,
		})
	}
	return out, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseFeedDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// Similarity is the matching-characters ratio of two strings,
// 2*M/(len(a)+len(b)) over runes, case-insensitive.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	matched := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += utf8.RuneCountInString(d.Text)
		}
	}
	return 2 * float64(matched) / float64(total)
}

// Deduplicate drops untitled articles and any article whose title is more
// than 70% similar to an earlier one. Order is preserved.
func Deduplicate(articles []Article) []Article {
	var unique []Article
	for _, a := range articles {
		if a.Title == "" {
			continue
		}
		dup := false
		for _, u := range unique {
			if Similarity(a.Title, u.Title) > duplicateRatio {
				dup = true
				break
			}
		}
		if !dup {
			unique = append(unique, a)
		}
	}
	return unique
}

var authoritativeSources = []string{
	"Reuters", "Bloomberg", "CNBC", "The Wall Street Journal", "Financial Times",
	"MarketWatch", "Yahoo Finance", "Barron's", "The Economist",
	"South China Morning Post", "Nikkei Asia", "CoinDesk",
}

var marketKeywords = []string{
	"stock", "market", "fed", "rate", "bitcoin", "crypto",
	"earnings", "ipo", "merger", "tariff", "inflation",
	"recession", "rally", "crash", "surge", "plunge",
	"investment", "fund", "tech", "ai", "nvidia", "tesla",
}

// Score rates an article: a base of 50, up to 50 for freshness, up to 30
// for source authority and up to 20 for market keywords in the title.
func Score(a Article, now time.Time) float64 {
	score := 50.0
	if !a.Published.IsZero() {
		switch age := now.Sub(a.Published); {
		case age < 6*time.Hour:
			score += 50
		case age < 12*time.Hour:
			score += 40
		case age < 24*time.Hour:
			score += 25
		case age < 48*time.Hour:
			score += 10
		}
	}

	if slices.Contains(authoritativeSources, a.Source) {
		score += 30
	} else {
		src := strings.ToLower(a.Source)
		for _, s := range authoritativeSources {
			if src != "" && strings.Contains(src, strings.ToLower(s)) {
				score += 20
				break
			}
		}
	}

	title := strings.ToLower(a.Title)
	hits := 0
	for _, kw := range marketKeywords {
		if strings.Contains(title, kw) {
			hits++
		}
	}
	score += float64(min(hits*5, 20))
	return score
}

var impactKeywords = []struct {
	sector   string
	keywords []string
}{
	{"US equities", []string{"wall street", "nasdaq", "s&p", "dow", "nyse", "us stock", "us market"}},
	{"China A-shares", []string{"china stock", "shanghai", "shenzhen", "a-share", "csi", "chinese market"}},
	{"Hong Kong", []string{"hong kong", "hang seng", "hkex", "hk stock"}},
	{"Crypto", []string{"bitcoin", "crypto", "btc", "ethereum", "eth", "coinbase", "binance"}},
	{"Tech", []string{"tech", "ai ", "artificial intelligence", "nvidia", "apple", "google", "microsoft", "semiconductor", "chip"}},
	{"Energy", []string{"oil", "energy", "opec", "natural gas", "solar", " ev"}},
	{"Rates & banks", []string{"bank", "fed", "rate", "bond", "treasury", "interest rate", "inflation"}},
	{"Geopolitics", []string{"tariff", "trade war", "sanction", "geopolitical", "conflict", "war"}},
}

// ImpactSectors lists up to three sectors the article touches, or
// "General" when none match.
func ImpactSectors(a Article) []string {
	text := strings.ToLower(a.Title + " " + a.Summary)
	var out []string
	for _, ik := range impactKeywords {
		for _, kw := range ik.keywords {
			if strings.Contains(text, kw) {
				out = append(out, ik.sector)
				break
			}
		}
		if len(out) == 3 {
			break
		}
	}
	if len(out) == 0 {
		return []string{"General"}
	}
	return out
}

// OneLine returns the first sentence of the summary, or a shortened title.
func OneLine(a Article) string {
	if a.Summary == "" {
		return truncate(a.Title, 100)
	}
	for _, sep := range []string{". ", "! ", "? "} {
		if i := strings.Index(a.Summary, sep); i > 0 && i < 150 {
			return strings.TrimSpace(a.Summary[:i+1])
		}
	}
	return truncate(a.Summary, 100)
}

// RankNews deduplicates, scores and orders articles, best first.
func RankNews(articles []Article, now time.Time) []Article {
	unique := Deduplicate(articles)
	for i := range unique {
		unique[i].Score = Score(unique[i], now)
	}
	slices.SortStableFunc(unique, func(a, b Article) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return unique
}

func (s *Service) buildNews(ctx context.Context, now time.Time) (NewsSection, error) {
	if s.news == nil {
		return NewsSection{}, errors.New("no news feed configured")
	}
	nc := s.cfg.News
	topN := nc.TopN
	if topN <= 0 {
		topN = 5
	}

	var all []Article
	var errs []error
	feeds := 0
	collect := func(articles []Article, err error, what string) {
		feeds++
		if err != nil {
			log.Warn(log.CatBrief, "News feed failed", "feed", what, "error", err.Error())
			errs = append(errs, err)
			return
		}
		all = append(all, articles...)
	}
	for _, topic := range nc.Topics {
		a, err := s.news.Topic(ctx, topic)
		collect(a, err, topic)
	}
	keywords := nc.Keywords
	if nc.SearchLimit > 0 && len(keywords) > nc.SearchLimit {
		keywords = keywords[:nc.SearchLimit]
	}
	for _, kw := range keywords {
		a, err := s.news.Search(ctx, kw)
		collect(a, err, kw)
	}
	if err := ctx.Err(); err != nil {
		return NewsSection{}, err
	}
	if feeds > 0 && len(errs) == feeds {
		return NewsSection{}, fmt.Errorf("all %d feeds failed: %w", feeds, errors.Join(errs...))
	}

	ranked := RankNews(all, now.UTC())
	if nc.MaxArticles > 0 && len(ranked) > nc.MaxArticles {
		ranked = ranked[:nc.MaxArticles]
	}
	section := NewsSection{Status: StatusOK, Top5: []Event{}, TotalUnique: len(ranked)}
	if len(ranked) == 0 {
		section.Status = StatusEmpty
		return section, nil
	}
	for i, a := range ranked[:min(topN, len(ranked))] {
		ev := Event{
			Rank:           i + 1,
			Title:          a.Title,
			Summary:        OneLine(a),
			ImpactSectors:  ImpactSectors(a),
			Source:         a.Source,
			URL:            a.URL,
			RelevanceScore: a.Score,
		}
		if ev.Source == "" {
			ev.Source = "unknown"
		}
		if !a.Published.IsZero() {
			ev.Published = a.Published.Format(time.RFC3339)
		}
		section.Top5 = append(section.Top5, ev)
	}
	log.Debug(log.CatBrief, "News ranked", "fetched", len(all), "unique", len(ranked), "top", len(section.Top5))
	return section, nil
}
