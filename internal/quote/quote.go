package quote

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Quote is the normalized stock result served to callers.
// A successful Quote carries every price field; a failed one only carries Error.
type Quote struct {
	Success      bool    `json:"success"`
	Symbol       string  `json:"symbol,omitempty"`
	CompanyName  string  `json:"company_name,omitempty"`
	CurrentPrice float64 `json:"current_price"`
	Change       float64 `json:"change"`
	Error        string  `json:"error,omitempty"`
}

// New builds a successful Quote, rounding price and change to 2 places.
func New(symbol, companyName string, price, change float64) Quote {
	return Quote{
		Success:      true,
		Symbol:       symbol,
		CompanyName:  companyName,
		CurrentPrice: Round2(price),
		Change:       Round2(change),
	}
}

// Failure builds an unsuccessful Quote carrying only a reason.
func Failure(reason string) Quote {
	return Quote{Success: false, Error: reason}
}

type successJSON struct {
	Success      bool    `json:"success"`
	Symbol       string  `json:"symbol"`
	CompanyName  string  `json:"company_name"`
	CurrentPrice float64 `json:"current_price"`
	Change       float64 `json:"change"`
}

type failureJSON struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MarshalJSON drops price fields from failures so a partial record is never emitted.
func (q Quote) MarshalJSON() ([]byte, error) {
	if !q.Success {
		return json.Marshal(failureJSON{Success: false, Error: q.Error})
	}
	return json.Marshal(successJSON{
		Success:      true,
		Symbol:       q.Symbol,
		CompanyName:  q.CompanyName,
		CurrentPrice: q.CurrentPrice,
		Change:       q.Change,
	})
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// PercentChange returns the signed percent move from prev to price.
// It is 0 when there is no usable reference price.
func PercentChange(price, prev float64) float64 {
	if prev <= 0 {
		return 0
	}
	p := decimal.NewFromFloat(price)
	r := decimal.NewFromFloat(prev)
	return p.Sub(r).Div(r).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
