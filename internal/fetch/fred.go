package fetch

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/series"
)

// FREDSource reads the FRED observations API. It needs an API key.
type FREDSource struct {
	client  *Client
	baseURL string
	apiKey  string
}

// NewFREDSource creates a keyed FRED API source.
func NewFREDSource(client *Client, baseURL, apiKey string) *FREDSource {
	return &FREDSource{client: client, baseURL: baseURL, apiKey: apiKey}
}

func (s *FREDSource) Name() string { return "fred" }

type fredResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
	ErrorMessage string `json:"error_message"`
}

// Observations fetches id between start and end. A value of "." is a gap.
func (s *FREDSource) Observations(ctx context.Context, id string, start, end time.Time) ([]series.Observation, error) {
	if s.apiKey == "" {
		return nil, errors.New("fred api key not configured")
	}
	params := url.Values{
		"series_id":         {id},
		"api_key":           {s.apiKey},
		"file_type":         {"json"},
		"observation_start": {series.FormatDate(start)},
		"observation_end":   {series.FormatDate(end)},
		"sort_order":        {"asc"},
	}
	body, err := s.client.Get(ctx, s.baseURL, params)
	if err != nil {
		return nil, err
	}

	var resp fredResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding fred response: %w", err)
	}
	if resp.Observations == nil {
		if resp.ErrorMessage != "" {
			return nil, fmt.Errorf("fred: %s", resp.ErrorMessage)
		}
		return nil, fmt.Errorf("no observations in fred response for %s", id)
	}

	out := make([]series.Observation, 0, len(resp.Observations))
	for _, o := range resp.Observations {
		obs, err := parseFREDRow(o.Date, o.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	log.Debug(log.CatFetch, "FRED API", "series", id, "observations", len(out))
	return series.Normalize(out), nil
}

func parseFREDRow(date, value string) (series.Observation, error) {
	d, err := series.ParseDate(strings.TrimSpace(date))
	if err != nil {
		return series.Observation{}, err
	}
	value = strings.TrimSpace(value)
	if value == "." || value == "" {
		return series.Observation{Date: d}, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		// FRED CSV occasionally carries other markers; treat them as gaps.
		return series.Observation{Date: d}, nil
	}
	return series.Observation{Date: d, Value: v, OK: true}, nil
}

// FREDCSVSource reads the public fredgraph CSV endpoint. No key needed.
type FREDCSVSource struct {
	client  *Client
	baseURL string
}

// NewFREDCSVSource creates the no-key FRED source.
func NewFREDCSVSource(client *Client, baseURL string) *FREDCSVSource {
	return &FREDCSVSource{client: client, baseURL: baseURL}
}

func (s *FREDCSVSource) Name() string { return "fred_csv" }

// Observations downloads the CSV for id. The first column is the date and
// the second the value, whatever the header says.
func (s *FREDCSVSource) Observations(ctx context.Context, id string, start, end time.Time) ([]series.Observation, error) {
	params := url.Values{
		"id":   {id},
		"cosd": {series.FormatDate(start)},
		"coed": {series.FormatDate(end)},
	}
	body, err := s.client.Get(ctx, s.baseURL, params)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	var out []series.Observation
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		if len(rec) < 2 {
			continue
		}
		obs, err := parseFREDRow(rec[0], rec[1])
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	log.Debug(log.CatFetch, "FRED CSV", "series", id, "observations", len(out))
	return series.Normalize(out), nil
}

// FREDChain tries the keyed API and falls back to the CSV endpoint.
type FREDChain struct {
	api      *FREDSource
	csv      *FREDCSVSource
	fallback bool
}

// NewFREDChain builds the FRED source used by the fetcher. api may be nil when
// no key is configured. fallback enables CSV after an API failure.
func NewFREDChain(api *FREDSource, csv *FREDCSVSource, fallback bool) *FREDChain {
	return &FREDChain{api: api, csv: csv, fallback: fallback}
}

func (c *FREDChain) Name() string { return "fred" }

func (c *FREDChain) Observations(ctx context.Context, id string, start, end time.Time) ([]series.Observation, error) {
	if c.api != nil && c.api.apiKey != "" {
		obs, err := c.api.Observations(ctx, id, start, end)
		if err == nil || !c.fallback || ctx.Err() != nil {
			return obs, err
		}
		log.Warn(log.CatFetch, "FRED API failed, trying CSV", "series", id, "error", err.Error())
	}
	return c.csv.Observations(ctx, id, start, end)
}
