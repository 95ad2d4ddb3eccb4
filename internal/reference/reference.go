// Package reference holds the last-known-good quotes served without touching
// the market-data source.
package reference

import (
	"sort"

	"stockdash/internal/quote"
)

// Row is one static quote keyed by base symbol.
type Row struct {
	CompanyName  string
	CurrentPrice float64
	Change       float64
}

// Table is immutable after construction and safe for concurrent reads.
type Table struct {
	rows map[string]Row
}

var defaultRows = map[string]Row{
	"HDFCBANK":   {CompanyName: "HDFC Bank Ltd.", CurrentPrice: 1650.45, Change: 0.75},
	"RELIANCE":   {CompanyName: "Reliance Industries Ltd.", CurrentPrice: 2891.70, Change: 1.25},
	"TCS":        {CompanyName: "Tata Consultancy Services Ltd.", CurrentPrice: 3456.80, Change: -0.5},
	"INFY":       {CompanyName: "Infosys Ltd.", CurrentPrice: 1467.25, Change: 0.3},
	"ICICIBANK":  {CompanyName: "ICICI Bank Ltd.", CurrentPrice: 1022.40, Change: 0.85},
	"TATASTEEL":  {CompanyName: "Tata Steel Ltd.", CurrentPrice: 145.80, Change: -0.2},
	"SBIN":       {CompanyName: "State Bank of India", CurrentPrice: 760.25, Change: 1.1},
	"WIPRO":      {CompanyName: "Wipro Ltd.", CurrentPrice: 478.60, Change: -0.7},
	"BHARTIARTL": {CompanyName: "Bharti Airtel Ltd.", CurrentPrice: 1289.55, Change: 0.4},
	"AXISBANK":   {CompanyName: "Axis Bank Ltd.", CurrentPrice: 1055.30, Change: 0.6},
	"KOTAKBANK":  {CompanyName: "Kotak Mahindra Bank Ltd.", CurrentPrice: 1747.15, Change: 0.25},
	"HINDUNILVR": {CompanyName: "Hindustan Unilever Ltd.", CurrentPrice: 2530.75, Change: -0.3},
	"ADANIENT":   {CompanyName: "Adani Enterprises Ltd.", CurrentPrice: 2840.90, Change: 1.5},
	"BAJFINANCE": {CompanyName: "Bajaj Finance Ltd.", CurrentPrice: 7234.60, Change: 0.9},
	"TATAMOTORS": {CompanyName: "Tata Motors Ltd.", CurrentPrice: 920.45, Change: 1.3},
}

// New copies rows into a new Table.
func New(rows map[string]Row) *Table {
	m := make(map[string]Row, len(rows))
	for k, v := range rows {
		m[k] = v
	}
	return &Table{rows: m}
}

// Default returns the table of common NSE listings.
func Default() *Table { return New(defaultRows) }

// Lookup returns a success-tagged Quote for base, or false when not covered.
func (t *Table) Lookup(base string) (quote.Quote, bool) {
	if t == nil {
		return quote.Quote{}, false
	}
	r, ok := t.rows[base]
	if !ok {
		return quote.Quote{}, false
	}
	return quote.Quote{
		Success:      true,
		Symbol:       base,
		CompanyName:  r.CompanyName,
		CurrentPrice: r.CurrentPrice,
		Change:       r.Change,
	}, true
}

// Has reports whether base is covered.
func (t *Table) Has(base string) bool {
	_, ok := t.Lookup(base)
	return ok
}

// Symbols lists covered base symbols in sorted order.
func (t *Table) Symbols() []string {
	out := make([]string, 0, len(t.rows))
	for k := range t.rows {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (t *Table) Len() int { return len(t.rows) }
