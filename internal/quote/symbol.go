package quote

import "strings"

// Exchange suffixes understood by the market-data source.
const (
	SuffixNSE = ".NS" // primary
	SuffixBSE = ".BO" // secondary
)

// Normalize trims and uppercases a user supplied ticker.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// BaseSymbol strips any exchange suffix: "RELIANCE.NS" -> "RELIANCE".
func BaseSymbol(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// Qualify appends the primary exchange suffix unless a supported one is present.
func Qualify(s string) string {
	if strings.HasSuffix(s, SuffixNSE) || strings.HasSuffix(s, SuffixBSE) {
		return s
	}
	return s + SuffixNSE
}

// PlaceholderName is the display name used when the source has none.
func PlaceholderName(base string) string {
	return base + " Stock"
}
