package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/macropulse/macropulse/internal/log"
)

const maxBodyBytes = 16 << 20

// HTTPStatusError is a non-2xx upstream response.
type HTTPStatusError struct {
	URL  string
	Code int
	Body string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.Code, e.Body)
}

// retryable reports whether a status is worth another attempt.
func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Client performs GET requests with exponential backoff.
type Client struct {
	http            *http.Client
	userAgent       string
	maxAttempts     uint
	initialInterval time.Duration
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	Timeout         time.Duration
	UserAgent       string
	MaxAttempts     int
	InitialInterval time.Duration // default 2s
	Transport       http.RoundTripper
}

// NewClient creates a retrying HTTP client.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 2 * time.Second
	}
	return &Client{
		http:            &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		userAgent:       opts.UserAgent,
		maxAttempts:     uint(opts.MaxAttempts),
		initialInterval: opts.InitialInterval,
	}
}

// Get fetches rawURL with params, retrying transport errors, 429 and 5xx.
// Other statuses fail immediately.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	target := rawURL
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		body, err := c.once(ctx, target)
		if err == nil {
			return body, nil
		}
		var se *HTTPStatusError
		if errors.As(err, &se) && !retryable(se.Code) {
			return nil, backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		log.Warn(log.CatFetch, "Request failed", "url", redact(rawURL), "attempt", attempt, "error", err.Error())
		return nil, err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialInterval
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.1

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(c.maxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("after %d attempt(s): %w", attempt, err)
	}
	return body, nil
}

func (c *Client) once(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redactURL(req.URL)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		const max = 256
		snippet := string(body)
		if len(snippet) > max {
			snippet = snippet[:max]
		}
		return nil, &HTTPStatusError{URL: redactURL(req.URL), Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// redact drops the query string so api keys never reach logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable url>"
	}
	return redactURL(u)
}

func redactURL(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}

// unixDay formats a day as a unix timestamp string for Yahoo period params.
func unixDay(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
