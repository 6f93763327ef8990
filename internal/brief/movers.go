package brief

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/log"
)

// NoReason is the reason text when no news explains a move.
const NoReason = "no reliable reason found"

// Reason attributes a move to a headline.
type Reason struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	URL        string `json:"url"`
	Confidence string `json:"confidence"` // high, medium or none
}

// Mover is a watchlist stock that moved at least the configured threshold.
type Mover struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Market    string  `json:"market"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	ChangeAbs float64 `json:"change_abs"`
	PrevClose float64 `json:"prev_close"`
	Reason    Reason  `json:"reason"`
}

// MoversSection is the star-stock block of the brief.
type MoversSection struct {
	Status       Status  `json:"status"`
	Gainers      []Mover `json:"gainers"`
	Losers       []Mover `json:"losers"`
	TotalScanned int     `json:"total_scanned"`
}

// SelectMovers sorts quoted stocks by change and returns up to topN gainers
// at or above minChange and up to topN losers at or below -minChange,
// biggest moves first.
func SelectMovers(stocks []Mover, minChange float64, topN int) (gainers, losers []Mover) {
	sorted := slices.Clone(stocks)
	slices.SortStableFunc(sorted, func(a, b Mover) int {
		switch {
		case a.ChangePct > b.ChangePct:
			return -1
		case a.ChangePct < b.ChangePct:
			return 1
		default:
			return 0
		}
	})
	gainers, losers = []Mover{}, []Mover{}
	for _, m := range sorted {
		if len(gainers) == topN || m.ChangePct < minChange {
			break
		}
		gainers = append(gainers, m)
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		m := sorted[i]
		if len(losers) == topN || m.ChangePct > -minChange {
			break
		}
		losers = append(losers, m)
	}
	return gainers, losers
}

// stocksFor matches market case-insensitively; config loading lowercases
// map keys.
func stocksFor(watchlist map[string][]config.StockConfig, market string) []config.StockConfig {
	if st, ok := watchlist[market]; ok {
		return st
	}
	for k, st := range watchlist {
		if strings.EqualFold(k, market) {
			return st
		}
	}
	return nil
}

func (s *Service) buildMovers(ctx context.Context) (MoversSection, error) {
	if s.quotes == nil {
		return MoversSection{}, errors.New("no quote source configured")
	}
	mc := s.cfg.Movers
	watchlist := mc.Watchlist
	if len(watchlist) == 0 {
		watchlist = config.DefaultWatchlist()
	}
	topN := mc.TopN
	if topN <= 0 {
		topN = 10
	}

	type entry struct {
		market string
		stock  config.StockConfig
	}
	var entries []entry
	for _, market := range mc.Markets {
		for _, st := range stocksFor(watchlist, market) {
			entries = append(entries, entry{market: market, stock: st})
		}
	}
	if len(entries) == 0 {
		return MoversSection{}, errors.New("watchlist is empty")
	}

	quoted := make([]*Mover, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, e := range entries {
		g.Go(func() error {
			q, err := s.quote(gctx, e.stock.Symbol)
			if err != nil {
				log.Debug(log.CatBrief, "Watchlist quote failed", "symbol", e.stock.Symbol, "error", err.Error())
				return nil
			}
			quoted[i] = &Mover{
				Symbol:    e.stock.Symbol,
				Name:      e.stock.Name,
				Market:    e.market,
				Price:     round2(q.Price),
				ChangePct: round2(q.ChangePct()),
				ChangeAbs: round2(q.ChangeAbs()),
				PrevClose: round2(q.PrevClose),
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return MoversSection{}, err
	}

	var stocks []Mover
	for _, m := range quoted {
		if m != nil {
			stocks = append(stocks, *m)
		}
	}
	if len(stocks) == 0 {
		return MoversSection{}, fmt.Errorf("no quotes for %d watchlist stocks", len(entries))
	}

	gainers, losers := SelectMovers(stocks, mc.MinChangePct, topN)
	for i := range gainers {
		gainers[i].Reason = s.findReason(ctx, gainers[i])
	}
	for i := range losers {
		losers[i].Reason = s.findReason(ctx, losers[i])
	}
	return MoversSection{
		Status:       StatusOK,
		Gainers:      gainers,
		Losers:       losers,
		TotalScanned: len(stocks),
	}, nil
}

// findReason searches news for the stock by name, then by symbol, and
// attributes the move to the first headline found.
func (s *Service) findReason(ctx context.Context, m Mover) Reason {
	none := Reason{Text: NoReason, Confidence: "none"}
	if s.news == nil {
		return none
	}
	for _, q := range []string{fmt.Sprintf("%q stock", m.Name), m.Symbol} {
		articles, err := s.news.Search(ctx, q)
		if err != nil {
			log.Debug(log.CatBrief, "Reason search failed", "symbol", m.Symbol, "query", q, "error", err.Error())
			continue
		}
		if len(articles) == 0 {
			continue
		}
		best := articles[0]
		conf := "medium"
		if len(articles) > 1 {
			conf = "high"
		}
		text := best.Title
		if text == "" {
			text = NoReason
		}
		return Reason{Text: text, Source: best.Source, URL: best.URL, Confidence: conf}
	}
	return none
}
