// Package fetcher performs one exchange-qualified quote lookup, degrading
// from the summary endpoint to the daily history and finally to the static table.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stockdash/internal/metrics"
	"stockdash/internal/quote"
	"stockdash/internal/ratelimit"
	"stockdash/internal/reference"
	"stockdash/internal/yahoo"
)

// NoDataReason is reported when every step failed.
const NoDataReason = "Could not fetch stock data"

// historyPeriod asks for the last two trading sessions.
const historyPeriod = "2d"

// Source is the subset of the market-data client the fetcher needs.
type Source interface {
	Summary(ctx context.Context, symbol string) (yahoo.Summary, error)
	History(ctx context.Context, symbol, period string) ([]yahoo.Session, error)
}

// Fetcher resolves a single qualified symbol.
type Fetcher struct {
	src   Source
	table *reference.Table
	pace  ratelimit.Limiter
	log   *zap.Logger
}

type Option func(*Fetcher)

// WithPacer replaces the delay applied before each upstream call.
func WithPacer(l ratelimit.Limiter) Option {
	return func(f *Fetcher) { f.pace = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.log = l }
}

func New(src Source, table *reference.Table, opts ...Option) *Fetcher {
	f := &Fetcher{
		src:   src,
		table: table,
		pace:  ratelimit.Jitter{Min: 100 * time.Millisecond, Max: 300 * time.Millisecond},
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// result is the outcome of one step: a successful quote or the reason it failed.
type result struct {
	quote quote.Quote
	err   error
}

func ok(q quote.Quote) result { return result{quote: q} }

func fail(err error) result { return result{err: err} }

func (r result) success() bool { return r.err == nil }

type step struct {
	name string
	run  func(ctx context.Context, symbol, base string) result
}

// Fetch looks up symbol, appending the primary exchange suffix when missing.
// It never returns an error: failures surface as an unsuccessful Quote.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) quote.Quote {
	symbol = quote.Qualify(symbol)
	base := quote.BaseSymbol(symbol)

	steps := []step{
		{name: "summary", run: f.upstream(f.summary)},
		{name: "history", run: f.upstream(f.history)},
		{name: "table", run: f.fromTable},
	}
	for _, s := range steps {
		r := s.run(ctx, symbol, base)
		metrics.FetchSteps.WithLabelValues(s.name, metrics.Status(r.err)).Inc()
		if r.success() {
			return r.quote
		}
		f.log.Debug("fetch step failed",
			zap.String("step", s.name),
			zap.String("symbol", symbol),
			zap.Error(r.err))
	}
	f.log.Info("no data available", zap.String("symbol", symbol))
	return quote.Failure(NoDataReason)
}

// upstream paces, then runs call, converting a panic into a step failure.
func (f *Fetcher) upstream(call func(ctx context.Context, symbol, base string) result) func(context.Context, string, string) result {
	return func(ctx context.Context, symbol, base string) (r result) {
		if err := f.pace.Wait(ctx); err != nil {
			return fail(fmt.Errorf("pacing: %w", err))
		}
		defer func() {
			if rec := recover(); rec != nil {
				r = fail(fmt.Errorf("panic: %v", rec))
			}
		}()
		return call(ctx, symbol, base)
	}
}

func (f *Fetcher) summary(ctx context.Context, symbol, base string) result {
	s, err := f.src.Summary(ctx, symbol)
	if err != nil {
		return fail(err)
	}
	if s.LongName == "" || s.RegularMarketPrice == nil {
		return fail(fmt.Errorf("summary %s: missing name or price", symbol))
	}
	price := *s.RegularMarketPrice
	prev := price
	if s.PreviousClose != nil {
		prev = *s.PreviousClose
	}
	return ok(quote.New(base, s.LongName, price, quote.PercentChange(price, prev)))
}

func (f *Fetcher) history(ctx context.Context, symbol, base string) result {
	sessions, err := f.src.History(ctx, symbol, historyPeriod)
	if err != nil {
		return fail(err)
	}
	if len(sessions) == 0 {
		return fail(fmt.Errorf("history %s: empty", symbol))
	}
	latest := sessions[len(sessions)-1].Close
	change := 0.0
	if len(sessions) > 1 {
		change = quote.PercentChange(latest, sessions[len(sessions)-2].Close)
	}
	return ok(quote.New(base, quote.PlaceholderName(base), latest, change))
}

func (f *Fetcher) fromTable(_ context.Context, _, base string) result {
	q, found := f.table.Lookup(base)
	if !found {
		return fail(fmt.Errorf("%s not in static table", base))
	}
	f.log.Info("live lookups failed, using static data", zap.String("symbol", base))
	return ok(q)
}
