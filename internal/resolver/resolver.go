// Package resolver decides which tier serves a stock quote: cache, static
// table, primary exchange, secondary exchange, stale cache or generated data.
package resolver

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stockdash/internal/cache"
	"stockdash/internal/metrics"
	"stockdash/internal/quote"
	"stockdash/internal/ratelimit"
	"stockdash/internal/reference"
)

// Synthetic quote ranges.
const (
	minSyntheticPrice  = 500.0
	maxSyntheticPrice  = 3000.0
	maxSyntheticChange = 2.0
)

// MissingSymbolReason is returned for blank input.
const MissingSymbolReason = "Symbol is required"

// Fetcher performs one qualified lookup.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) quote.Quote
}

// Random yields values in [0, 1). *rand.Rand satisfies it.
type Random interface {
	Float64() float64
}

type randFunc func() float64

func (f randFunc) Float64() float64 { return f() }

// Resolver is safe for concurrent use. It does not coalesce concurrent
// lookups for the same symbol.
type Resolver struct {
	cache       *cache.Cache
	table       *reference.Table
	fetcher     Fetcher
	pace        ratelimit.Limiter
	lowResource bool
	log         *zap.Logger

	rndMu sync.Mutex
	rnd   Random
}

type Option func(*Resolver)

// WithLowResource marks the deployment as constrained; table data is
// served before any live lookup.
func WithLowResource(on bool) Option {
	return func(r *Resolver) { r.lowResource = on }
}

// WithPacer replaces the delay applied before each exchange attempt.
func WithPacer(l ratelimit.Limiter) Option {
	return func(r *Resolver) { r.pace = l }
}

// WithRandom replaces the source used for synthetic quotes.
func WithRandom(rnd Random) Option {
	return func(r *Resolver) { r.rnd = rnd }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

func New(c *cache.Cache, t *reference.Table, f Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		cache:   c,
		table:   t,
		fetcher: f,
		pace:    ratelimit.Jitter{Min: 200 * time.Millisecond, Max: 500 * time.Millisecond},
		log:     zap.NewNop(),
		rnd:     randFunc(rand.Float64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Static returns the table row for symbol's base without touching the cache.
func (r *Resolver) Static(symbol string) (quote.Quote, bool) {
	return r.table.Lookup(quote.BaseSymbol(symbol))
}

// Resolve returns a quote for symbol (with or without exchange suffix).
// Any non-blank input yields a successful Quote.
func (r *Resolver) Resolve(ctx context.Context, symbol string) quote.Quote {
	if strings.TrimSpace(symbol) == "" {
		return quote.Failure(MissingSymbolReason)
	}
	log := r.log.With(zap.String("symbol", symbol))

	if q, ok := r.cache.Get(symbol); ok {
		log.Debug("cache hit")
		return r.served("cache", q)
	}

	base := quote.BaseSymbol(symbol)
	if r.lowResource {
		if q, ok := r.table.Lookup(base); ok {
			log.Debug("low-resource mode: using static data")
			r.cache.Set(symbol, q)
			return r.served("table", q)
		}
	}
	if q, ok := r.table.Lookup(base); ok {
		log.Debug("using static data for common stock")
		r.cache.Set(symbol, q)
		return r.served("table", q)
	}

	primary := quote.Qualify(symbol)
	q, err := r.attempt(ctx, primary)
	if err == nil && q.Success {
		r.cache.Set(symbol, q)
		return r.served("live", q)
	}
	if err == nil && strings.HasSuffix(primary, quote.SuffixNSE) {
		secondary := base + quote.SuffixBSE
		log.Info("primary exchange failed, trying secondary", zap.String("secondary", secondary))
		q, err = r.attempt(ctx, secondary)
		if err == nil && q.Success {
			r.cache.Set(symbol, q)
			return r.served("live", q)
		}
	}

	if err != nil {
		log.Warn("live lookup aborted", zap.Error(err))
		if stale, ok := r.cache.GetStale(symbol); ok {
			log.Info("using stale data")
			return r.served("stale", stale)
		}
	}

	log.Info("generating placeholder data")
	gen := r.synthetic(base)
	r.cache.Set(symbol, gen)
	return r.served("synthetic", gen)
}

// attempt paces and fetches one qualified symbol. An error means the attempt
// was aborted, as opposed to the fetcher reporting no data.
func (r *Resolver) attempt(ctx context.Context, symbol string) (q quote.Quote, err error) {
	if err := r.pace.Wait(ctx); err != nil {
		return quote.Quote{}, fmt.Errorf("pacing %s: %w", symbol, err)
	}
	defer func() {
		if rec := recover(); rec != nil {
			q, err = quote.Quote{}, fmt.Errorf("fetching %s: panic: %v", symbol, rec)
		}
	}()
	return r.fetcher.Fetch(ctx, symbol), nil
}

func (r *Resolver) synthetic(base string) quote.Quote {
	r.rndMu.Lock()
	p, c := r.rnd.Float64(), r.rnd.Float64()
	r.rndMu.Unlock()
	price := minSyntheticPrice + p*(maxSyntheticPrice-minSyntheticPrice)
	change := -maxSyntheticChange + c*2*maxSyntheticChange
	return quote.New(base, quote.PlaceholderName(base), price, change)
}

func (r *Resolver) served(source string, q quote.Quote) quote.Quote {
	metrics.Resolutions.WithLabelValues(source).Inc()
	return q
}
