// Package kucoin fetches candles from the KuCoin public REST API.
package kucoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

const (
	DefaultBaseURL = "https://api.kucoin.com"
	candlesPath    = "/api/v1/market/candles"
	okCode         = "200000"

	// MaxPerRequest is the most candles KuCoin returns for one call.
	MaxPerRequest = 1500
)

var (
	// ErrRateLimited is returned when HTTP 429 persists past the retry budget.
	ErrRateLimited = errors.New("kucoin: rate limited")
	// ErrUpstream wraps any other non-success response.
	ErrUpstream = errors.New("kucoin: upstream error")
)

var intervals = map[model.Timeframe]string{
	model.TF1m:  "1min",
	model.TF5m:  "5min",
	model.TF15m: "15min",
	model.TF30m: "30min",
	model.TF1h:  "1hour",
	model.TF4h:  "4hour",
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithRetry sets the attempt budget and first backoff for HTTP 429.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.backoff = backoff
	}
}

// WithLogger sets the client's logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

// WithPacing limits request rate to perSec with the given burst.
func WithPacing(burst, perSec float64) Option {
	return func(c *Client) { c.pace = newPacer(burst, perSec) }
}

// WithRateLimitHook is called once per throttled request before backing off.
func WithRateLimitHook(fn func()) Option { return func(c *Client) { c.onLimited = fn } }

// Client is a model.CandleSource over KuCoin.
type Client struct {
	baseURL   string
	http      *http.Client
	attempts  int
	backoff   time.Duration
	maxWait   time.Duration
	log       zerolog.Logger
	pace      *pacer
	onLimited func()
	sleep     func(ctx context.Context, d time.Duration) error
}

var _ model.CandleSource = (*Client)(nil)

// New creates a client for baseURL (DefaultBaseURL when empty).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		attempts: 5,
		backoff:  2 * time.Second,
		maxWait:  30 * time.Second,
		log:      zerolog.Nop(),
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Candles returns [from, to) ascending with duplicates removed, paginating
// windows longer than MaxPerRequest bars.
func (c *Client) Candles(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Candle, error) {
	interval, ok := intervals[tf]
	if !ok {
		return nil, fmt.Errorf("kucoin: unsupported timeframe %q", tf)
	}
	if !from.Before(to) {
		return nil, nil
	}

	step := time.Duration(MaxPerRequest) * tf.Duration()
	var all []model.Candle
	for start := from; start.Before(to); start = start.Add(step) {
		end := start.Add(step)
		if end.After(to) {
			end = to
		}
		page, err := c.page(ctx, symbol, interval, start, end)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	return normalize(all, from, to), nil
}

func (c *Client) page(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("type", interval)
	q.Set("startAt", strconv.FormatInt(start.Unix(), 10))
	q.Set("endAt", strconv.FormatInt(end.Unix(), 10))
	u := c.baseURL + candlesPath + "?" + q.Encode()

	wait := c.backoff
	for attempt := 1; ; attempt++ {
		if c.pace != nil {
			if err := c.pace.wait(ctx, c.sleep); err != nil {
				return nil, err
			}
		}
		rows, limited, err := c.get(ctx, u)
		if !limited {
			return rows, err
		}
		if attempt >= c.attempts {
			return nil, fmt.Errorf("%w: %s after %d attempts", ErrRateLimited, symbol, attempt)
		}
		c.log.Warn().Str("symbol", symbol).Int("attempt", attempt).Dur("wait", wait).Msg("kucoin rate limited")
		if c.onLimited != nil {
			c.onLimited()
		}
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
		wait *= 2
		if wait > c.maxWait {
			wait = c.maxWait
		}
	}
}

type candlesResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data [][]json.Number `json:"data"`
}

func (c *Client) get(ctx context.Context, u string) (rows []model.Candle, limited bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, true, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, truncate(body))
	}

	var cr candlesResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, false, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if cr.Code == "429000" {
		return nil, true, nil
	}
	if cr.Code != okCode {
		return nil, false, fmt.Errorf("%w: code %s: %s", ErrUpstream, cr.Code, cr.Msg)
	}

	out := make([]model.Candle, 0, len(cr.Data))
	for _, r := range cr.Data {
		cdl, err := parseRow(r)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		out = append(out, cdl)
	}
	return out, false, nil
}

// parseRow decodes [time, open, close, high, low, volume, turnover].
func parseRow(r []json.Number) (model.Candle, error) {
	if len(r) < 6 {
		return model.Candle{}, fmt.Errorf("short candle row (%d fields)", len(r))
	}
	var f [6]float64
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(string(r[i]), 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		f[i] = v
	}
	return model.Candle{
		TS:     time.Unix(int64(f[0]), 0).UTC(),
		Open:   f[1],
		Close:  f[2],
		High:   f[3],
		Low:    f[4],
		Volume: f[5],
	}, nil
}

// normalize sorts ascending, drops duplicate timestamps and clips to [from, to).
func normalize(cs []model.Candle, from, to time.Time) []model.Candle {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].TS.Before(cs[j].TS) })
	out := cs[:0]
	for _, c := range cs {
		if c.TS.Before(from) || !c.TS.Before(to) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].TS.Equal(c.TS) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func truncate(b []byte) string {
	if len(b) > 200 {
		b = b[:200]
	}
	return string(b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
