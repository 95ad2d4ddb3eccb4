package yahoo

import (
	"context"
	"fmt"
	"net/url"
)

// Summary is the instrument summary. Nullable fields stay nil when absent.
type Summary struct {
	Symbol             string   `json:"symbol"`
	LongName           string   `json:"longName"`
	ShortName          string   `json:"shortName"`
	Currency           string   `json:"currency"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	PreviousClose      *float64 `json:"regularMarketPreviousClose"`
	DayHigh            *float64 `json:"regularMarketDayHigh"`
	DayLow             *float64 `json:"regularMarketDayLow"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []Summary `json:"result"`
		Error  *apiError `json:"error"`
	} `json:"quoteResponse"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *apiError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Description) }

// Summary fetches summary info for a qualified symbol such as "RELIANCE.NS".
func (c *Client) Summary(ctx context.Context, symbol string) (Summary, error) {
	var body quoteResponse
	q := url.Values{}
	q.Set("symbols", symbol)
	if err := c.getJSON(ctx, "summary", "/v7/finance/quote", q, &body); err != nil {
		return Summary{}, err
	}
	if e := body.QuoteResponse.Error; e != nil {
		return Summary{}, fmt.Errorf("quote %s: %w", symbol, e)
	}
	if len(body.QuoteResponse.Result) == 0 {
		return Summary{}, fmt.Errorf("quote %s: %w", symbol, ErrNotFound)
	}
	return body.QuoteResponse.Result[0], nil
}
