package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockdash/internal/bootstrap"
	"stockdash/internal/config"
	"stockdash/internal/logger"
	"stockdash/internal/quote"
	"stockdash/internal/reference"
)

var commands = []subcommands.Command{
	&resolveCmd{out: os.Stdout, newResolver: defaultResolver},
	&tableCmd{out: os.Stdout, table: reference.Default()},
}

type quoteResolver interface {
	Resolve(ctx context.Context, symbol string) quote.Quote
}

func defaultResolver(configPath string, verbose bool) (quoteResolver, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := zap.NewNop()
	if verbose {
		if log, err = logger.New(); err != nil {
			return nil, err
		}
	}
	return bootstrap.New(cfg, log).Resolver, nil
}

type resolveCmd struct {
	configPath  string
	asJSON      bool
	verbose     bool
	concurrency int

	out         io.Writer
	newResolver func(configPath string, verbose bool) (quoteResolver, error)
}

func (*resolveCmd) Name() string     { return "resolve" }
func (*resolveCmd) Synopsis() string { return "resolve quotes for one or more symbols" }
func (*resolveCmd) Usage() string {
	return `stockctl resolve [-json] [-c <n>] [-config <file>] SYMBOL...

  Resolves each symbol through the cache, static table, live lookups and
  fallbacks, exactly as the server does, and prints one row per symbol.
`
}

func (c *resolveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "Path to the JSON config file.")
	f.BoolVar(&c.asJSON, "json", false, "Print one JSON object per line.")
	f.BoolVar(&c.verbose, "v", false, "Log lookups to stderr.")
	f.IntVar(&c.concurrency, "c", 4, "Maximum concurrent lookups.")
}

func (c *resolveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "at least one symbol is required")
		return subcommands.ExitUsageError
	}
	r, err := c.newResolver(c.configPath, c.verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	symbols := f.Args()
	quotes := make([]quote.Quote, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.concurrency, 1))
	for i, sym := range symbols {
		g.Go(func() error {
			quotes[i] = r.Resolve(gctx, quote.Normalize(sym))
			return nil
		})
	}
	_ = g.Wait()

	if c.asJSON {
		enc := json.NewEncoder(c.out)
		for _, q := range quotes {
			if err := enc.Encode(q); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return subcommands.ExitFailure
			}
		}
		return subcommands.ExitSuccess
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tNAME\tPRICE\tCHANGE%")
	for i, q := range quotes {
		if !q.Success {
			fmt.Fprintf(w, "%s\t-\t-\t%s\n", symbols[i], q.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", q.Symbol, q.CompanyName, fixed(q.CurrentPrice), fixed(q.Change))
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type tableCmd struct {
	out   io.Writer
	table *reference.Table
}

func (*tableCmd) Name() string     { return "table" }
func (*tableCmd) Synopsis() string { return "list the static reference quotes" }
func (*tableCmd) Usage() string {
	return `stockctl table

  Prints the built-in quotes served for common listings when live data is
  unavailable or the deployment runs in low-resource mode.
`
}

func (*tableCmd) SetFlags(*flag.FlagSet) {}

func (c *tableCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tNAME\tPRICE\tCHANGE%")
	for _, sym := range c.table.Symbols() {
		q, _ := c.table.Lookup(sym)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", q.Symbol, q.CompanyName, fixed(q.CurrentPrice), fixed(q.Change))
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
