// Package portfolio keeps the symbols each signed-in user tracks and prices
// them on demand.
package portfolio

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockdash/internal/metrics"
	"stockdash/internal/quote"
	"stockdash/internal/reference"
)

// Placeholder ranges for holdings no source can price.
const (
	minPlaceholderPrice  = 500.0
	maxPlaceholderPrice  = 3000.0
	maxPlaceholderChange = 2.0
)

var ErrMissingSymbol = errors.New("symbol is required")

// Fetcher performs one qualified lookup and reports failure in the quote.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) quote.Quote
}

// Random yields values in [0, 1). *rand.Rand satisfies it.
type Random interface {
	Float64() float64
}

type randFunc func() float64

func (f randFunc) Float64() float64 { return f() }

type Book struct {
	table       *reference.Table
	fetcher     Fetcher
	log         *zap.Logger
	concurrency int

	mu       sync.Mutex
	holdings map[string][]string

	rndMu sync.Mutex
	rnd   Random
}

type Option func(*Book)

func WithRandom(rnd Random) Option {
	return func(b *Book) { b.rnd = rnd }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Book) { b.log = l }
}

// WithConcurrency bounds the live lookups made by one List call.
func WithConcurrency(n int) Option {
	return func(b *Book) { b.concurrency = max(n, 1) }
}

func New(t *reference.Table, f Fetcher, opts ...Option) *Book {
	b := &Book{
		table:       t,
		fetcher:     f,
		log:         zap.NewNop(),
		concurrency: 4,
		holdings:    make(map[string][]string),
		rnd:         randFunc(rand.Float64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add stores symbol for user and returns the exchange-qualified form kept.
// Table symbols are stored on the primary exchange. Other symbols are tried
// on the primary then the secondary exchange; the first that prices wins and
// the primary exchange is kept when neither does. Adding a held symbol again
// is a no-op.
func (b *Book) Add(ctx context.Context, user, symbol string) (string, error) {
	base := quote.BaseSymbol(quote.Normalize(symbol))
	if base == "" {
		return "", ErrMissingSymbol
	}
	stored := b.qualify(ctx, base)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.holdings[user], stored) {
		b.holdings[user] = append(b.holdings[user], stored)
	}
	b.log.Debug("holding added", zap.String("user", user), zap.String("symbol", stored))
	return stored, nil
}

func (b *Book) qualify(ctx context.Context, base string) string {
	primary := base + quote.SuffixNSE
	if b.table.Has(base) {
		return primary
	}
	for _, sym := range []string{primary, base + quote.SuffixBSE} {
		if b.fetcher.Fetch(ctx, sym).Success {
			return sym
		}
	}
	return primary
}

// Symbols returns a copy of the user's holdings in insertion order.
func (b *Book) Symbols(user string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.holdings[user])
}

// List prices every holding in insertion order. Table rows win over live
// data, and holdings that cannot be priced get placeholder quotes.
func (b *Book) List(ctx context.Context, user string) []quote.Quote {
	symbols := b.Symbols(user)
	out := make([]quote.Quote, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			out[i] = b.price(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (b *Book) price(ctx context.Context, symbol string) quote.Quote {
	base := quote.BaseSymbol(symbol)
	if q, ok := b.table.Lookup(base); ok {
		metrics.Resolutions.WithLabelValues("portfolio_table").Inc()
		return q
	}
	if q := b.fetcher.Fetch(ctx, symbol); q.Success {
		metrics.Resolutions.WithLabelValues("portfolio_live").Inc()
		return q
	}
	metrics.Resolutions.WithLabelValues("portfolio_placeholder").Inc()
	b.log.Info("holding priced with placeholder", zap.String("symbol", symbol))
	return b.placeholder(base)
}

func (b *Book) placeholder(base string) quote.Quote {
	b.rndMu.Lock()
	p, c := b.rnd.Float64(), b.rnd.Float64()
	b.rndMu.Unlock()
	price := minPlaceholderPrice + p*(maxPlaceholderPrice-minPlaceholderPrice)
	change := -maxPlaceholderChange + c*2*maxPlaceholderChange
	return quote.New(base, quote.PlaceholderName(base), price, change)
}
