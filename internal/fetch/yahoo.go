package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/series"
)

// YahooSource reads the Yahoo Finance v8 chart endpoint.
type YahooSource struct {
	client  *Client
	baseURL string
	loc     *time.Location
}

// NewYahooSource creates a Yahoo chart source. Bar timestamps are bucketed
// into US/Eastern trading dates.
func NewYahooSource(client *Client, baseURL string) *YahooSource {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &YahooSource{client: client, baseURL: baseURL, loc: loc}
}

func (s *YahooSource) Name() string { return "yahoo" }

// ChartMeta is the subset of chart metadata used for quotes.
type ChartMeta struct {
	Symbol             string  `json:"symbol"`
	Currency           string  `json:"currency"`
	ExchangeTimezone   string  `json:"exchangeTimezoneName"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	RegularMarketTime  int64   `json:"regularMarketTime"`
	ChartPreviousClose float64 `json:"chartPreviousClose"`
	PreviousClose      float64 `json:"previousClose"`
	DayHigh            float64 `json:"regularMarketDayHigh"`
	DayLow             float64 `json:"regularMarketDayLow"`
}

// Chart is a parsed chart response.
type Chart struct {
	Meta   ChartMeta
	Points []series.Observation
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta       ChartMeta `json:"meta"`
			Timestamp  []int64   `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Observations returns daily closes for symbol between start and end.
func (s *YahooSource) Observations(ctx context.Context, symbol string, start, end time.Time) ([]series.Observation, error) {
	params := url.Values{
		"period1":        {unixDay(series.Day(start))},
		"period2":        {unixDay(series.Day(end).AddDate(0, 0, 1))},
		"interval":       {"1d"},
		"includePrePost": {"false"},
	}
	chart, err := s.chart(ctx, symbol, params)
	if err != nil {
		return nil, err
	}
	return chart.Points, nil
}

// Chart fetches a recent chart for quote purposes, e.g. rng "5d".
func (s *YahooSource) Chart(ctx context.Context, symbol, rng string) (*Chart, error) {
	return s.chart(ctx, symbol, url.Values{
		"range":          {rng},
		"interval":       {"1d"},
		"includePrePost": {"false"},
	})
}

func (s *YahooSource) chart(ctx context.Context, symbol string, params url.Values) (*Chart, error) {
	body, err := s.client.Get(ctx, s.baseURL+"/"+url.PathEscape(symbol), params)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding yahoo chart for %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart %s: %s: %s", symbol, resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: empty result", symbol)
	}

	res := resp.Chart.Result[0]
	var closes []*float64
	if len(res.Indicators.Quote) > 0 {
		closes = res.Indicators.Quote[0].Close
	}

	points := make([]series.Observation, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		local := time.Unix(ts, 0).In(s.loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		obs := series.Observation{Date: day}
		if i < len(closes) && closes[i] != nil {
			obs.Value = *closes[i]
			obs.OK = true
		}
		points = append(points, obs)
	}
	log.Debug(log.CatFetch, "Yahoo chart", "symbol", symbol, "observations", len(points))
	return &Chart{Meta: res.Meta, Points: series.Normalize(points)}, nil
}
