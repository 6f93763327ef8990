package brief

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/log"
)

// Trading status values.
const (
	TradingPreOpen = "pre_open"
	TradingOpen    = "open"
	TradingClosed  = "closed"
	TradingWeekend = "weekend"
	Trading24h     = "24h"
	TradingError   = "error"
)

// chartRange is the lookback requested for quotes; it spans a long weekend.
const chartRange = "5d"

// Index is one market index quote. Numeric fields are nil when unavailable.
type Index struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Market        string   `json:"market"`
	Currency      string   `json:"currency,omitempty"`
	Price         *float64 `json:"price"`
	ChangePct     *float64 `json:"change_pct"`
	ChangeAbs     *float64 `json:"change_abs"`
	PrevClose     *float64 `json:"prev_close"`
	DayHigh       *float64 `json:"day_high"`
	DayLow        *float64 `json:"day_low"`
	PriceDisplay  string   `json:"price_display"`
	ChangeDisplay string   `json:"change_display"`
	TradingStatus string   `json:"trading_status"`
	DataDate      string   `json:"data_date,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// MarketSection is the indices block of the brief.
type MarketSection struct {
	Status  Status  `json:"status"`
	Indices []Index `json:"indices"`
	Summary string  `json:"summary"`
}

// Quote is the latest close and the one before it.
type Quote struct {
	Price     float64
	PrevClose float64
	DayHigh   float64
	DayLow    float64
	Date      time.Time
}

// ChangeAbs is Price - PrevClose.
func (q Quote) ChangeAbs() float64 { return q.Price - q.PrevClose }

// ChangePct is the percent change from PrevClose.
func (q Quote) ChangePct() float64 { return q.ChangeAbs() / q.PrevClose * 100 }

// errNoQuote means a chart had no usable close or previous close.
var errNoQuote = errors.New("no usable close")

// quoteFromChart walks back to the latest valid close and the one before it,
// falling back to the chart's previous close.
func quoteFromChart(c *fetch.Chart) (Quote, error) {
	var q Quote
	latest := -1
	for i := len(c.Points) - 1; i >= 0; i-- {
		if !c.Points[i].OK {
			continue
		}
		if latest < 0 {
			latest = i
			q.Price = c.Points[i].Value
			q.Date = c.Points[i].Date
			continue
		}
		q.PrevClose = c.Points[i].Value
		break
	}
	if latest < 0 {
		return Quote{}, errNoQuote
	}
	if q.PrevClose == 0 {
		q.PrevClose = c.Meta.ChartPreviousClose
	}
	if q.PrevClose == 0 {
		q.PrevClose = c.Meta.PreviousClose
	}
	if q.PrevClose == 0 {
		return Quote{}, errNoQuote
	}
	q.DayHigh = c.Meta.DayHigh
	q.DayLow = c.Meta.DayLow
	return q, nil
}

func (s *Service) quote(ctx context.Context, symbol string) (Quote, error) {
	chart, err := s.quotes.Chart(ctx, symbol, chartRange)
	if err != nil {
		return Quote{}, err
	}
	q, err := quoteFromChart(chart)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", symbol, err)
	}
	return q, nil
}

func (s *Service) buildMarket(ctx context.Context, now time.Time) (MarketSection, error) {
	if s.quotes == nil {
		return MarketSection{}, errors.New("no quote source configured")
	}
	cfgs := s.cfg.Indices
	if len(cfgs) == 0 {
		cfgs = config.DefaultIndices()
	}

	indices := make([]Index, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ic := range cfgs {
		g.Go(func() error {
			indices[i] = s.index(gctx, ic, now)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return MarketSection{}, err
	}

	section := MarketSection{Indices: indices, Summary: marketSummary(indices)}
	priced := 0
	for _, idx := range indices {
		if idx.Price != nil {
			priced++
		}
	}
	switch {
	case priced == len(indices):
		section.Status = StatusOK
	case priced > 0:
		section.Status = StatusPartial
	default:
		return section, fmt.Errorf("all %d indices failed", len(indices))
	}
	return section, nil
}

func (s *Service) index(ctx context.Context, ic config.IndexConfig, now time.Time) Index {
	idx := Index{
		Symbol:        ic.Symbol,
		Name:          ic.Name,
		Market:        ic.Market,
		Currency:      ic.Currency,
		PriceDisplay:  "N/A",
		ChangeDisplay: "N/A",
	}
	q, err := s.quote(ctx, ic.Symbol)
	if err != nil {
		log.Warn(log.CatBrief, "Index quote failed", "symbol", ic.Symbol, "error", err.Error())
		idx.TradingStatus = TradingError
		idx.Error = err.Error()
		return idx
	}

	idx.Price = ptr(round2(q.Price))
	idx.PrevClose = ptr(round2(q.PrevClose))
	idx.ChangeAbs = ptr(round2(q.ChangeAbs()))
	idx.ChangePct = ptr(round2(q.ChangePct()))
	if q.DayHigh > 0 && q.DayLow > 0 {
		idx.DayHigh = ptr(round2(q.DayHigh))
		idx.DayLow = ptr(round2(q.DayLow))
	}
	idx.PriceDisplay = formatPrice(q.Price)
	idx.ChangeDisplay = signed(*idx.ChangePct, 2) + "%"
	idx.TradingStatus = TradingStatus(ic, now)
	if !q.Date.IsZero() {
		idx.DataDate = q.Date.Format("2006-01-02")
	}
	return idx
}

// TradingStatus reports where now falls in the index's local session.
// Crypto trades around the clock; weekends are closed everywhere else.
func TradingStatus(ic config.IndexConfig, now time.Time) string {
	if strings.EqualFold(ic.Market, "CRYPTO") || ic.Open == "" || ic.Close == "" {
		return Trading24h
	}
	loc := time.UTC
	if ic.Timezone != "" {
		if l, err := time.LoadLocation(ic.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return TradingWeekend
	}
	open, errOpen := clockOn(local, ic.Open)
	closing, errClose := clockOn(local, ic.Close)
	if errOpen != nil || errClose != nil {
		return TradingClosed
	}
	switch {
	case local.Before(open):
		return TradingPreOpen
	case local.After(closing):
		return TradingClosed
	default:
		return TradingOpen
	}
}

// clockOn returns the HH:MM wall clock on day's date in day's location.
func clockOn(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func formatPrice(p float64) string {
	switch {
	case p > 10000:
		return commas(fmt.Sprintf("%.0f", p))
	case p > 100:
		return commas(fmt.Sprintf("%.1f", p))
	default:
		return commas(fmt.Sprintf("%.2f", p))
	}
}

// commas groups the integer digits of a formatted decimal in thousands.
func commas(s string) string {
	intPart, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

func marketSummary(indices []Index) string {
	var up, down, n int
	var sum float64
	for _, idx := range indices {
		if idx.ChangePct == nil {
			continue
		}
		n++
		sum += *idx.ChangePct
		switch {
		case *idx.ChangePct > 0:
			up++
		case *idx.ChangePct < 0:
			down++
		}
	}
	if n == 0 {
		return "no data"
	}
	avg := sum / float64(n)
	switch {
	case avg > 1:
		return fmt.Sprintf("global markets firm, %d up / %d down", up, down)
	case avg < -1:
		return fmt.Sprintf("global markets weak, %d up / %d down", up, down)
	default:
		return fmt.Sprintf("mixed session, %d up / %d down", up, down)
	}
}
