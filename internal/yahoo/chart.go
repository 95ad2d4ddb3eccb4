package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Session is one trading day's close.
type Session struct {
	Time  time.Time
	Close float64
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

// History returns daily closes for period (e.g. "2d"), oldest first.
// Sessions without a close are skipped.
func (c *Client) History(ctx context.Context, symbol, period string) ([]Session, error) {
	var body chartResponse
	q := url.Values{}
	q.Set("range", period)
	q.Set("interval", "1d")
	if err := c.getJSON(ctx, "history", "/v8/finance/chart/"+url.PathEscape(symbol), q, &body); err != nil {
		return nil, err
	}
	if e := body.Chart.Error; e != nil {
		return nil, fmt.Errorf("chart %s: %w", symbol, e)
	}
	if len(body.Chart.Result) == 0 || len(body.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart %s: %w", symbol, ErrNotFound)
	}
	r := body.Chart.Result[0]
	closes := r.Indicators.Quote[0].Close
	out := make([]Session, 0, len(closes))
	for i, cl := range closes {
		if cl == nil {
			continue
		}
		var ts time.Time
		if i < len(r.Timestamp) {
			ts = time.Unix(r.Timestamp[i], 0).UTC()
		}
		out = append(out, Session{Time: ts, Close: *cl})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chart %s: no closes: %w", symbol, ErrNotFound)
	}
	return out, nil
}
