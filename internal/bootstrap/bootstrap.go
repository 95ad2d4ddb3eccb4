// Package bootstrap wires the retrieval stack from configuration. The server
// and the CLI share it so both resolve quotes the same way.
package bootstrap

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"stockdash/internal/cache"
	"stockdash/internal/config"
	"stockdash/internal/fetcher"
	"stockdash/internal/httpx"
	"stockdash/internal/mutualfund"
	"stockdash/internal/portfolio"
	"stockdash/internal/ratelimit"
	"stockdash/internal/reference"
	"stockdash/internal/resolver"
	"stockdash/internal/session"
	"stockdash/internal/yahoo"
)

// Stack holds the long-lived components. Cache and table live for the
// whole process.
type Stack struct {
	Config    config.Config
	Cache     *cache.Cache
	Table     *reference.Table
	Yahoo     *yahoo.Client
	Fetcher   *fetcher.Fetcher
	Resolver  *resolver.Resolver
	Portfolio *portfolio.Book
	Funds     *mutualfund.Client
}

// New builds the quote retrieval stack.
func New(cfg config.Config, log *zap.Logger) *Stack {
	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	httpClient := httpx.New(timeout)
	if cfg.Yahoo.UserAgent != "" {
		httpClient.UserAgent = cfg.Yahoo.UserAgent
	}

	opts := []yahoo.Option{
		yahoo.WithBaseURL(cfg.Yahoo.BaseURL),
		yahoo.WithHTTPClient(httpClient),
	}
	if l := Limiter(cfg.Yahoo); l != nil {
		opts = append(opts, yahoo.WithLimiter(l))
	}
	yc := yahoo.New(opts...)

	c := cache.New()
	table := reference.Default()
	f := fetcher.New(yc, table, fetcher.WithLogger(log.Named("fetcher")))
	r := resolver.New(c, table, f,
		resolver.WithLowResource(cfg.LowResource),
		resolver.WithLogger(log.Named("resolver")),
	)

	book := portfolio.New(table, f,
		portfolio.WithConcurrency(cfg.Server.BatchConcurrency),
		portfolio.WithLogger(log.Named("portfolio")),
	)

	fundsHTTP := httpx.New(time.Duration(cfg.MutualFund.TimeoutSec) * time.Second)
	funds := mutualfund.New(
		mutualfund.WithBaseURL(cfg.MutualFund.Endpoint),
		mutualfund.WithHTTPClient(fundsHTTP),
		mutualfund.WithLogger(log.Named("mutualfund")),
	)

	return &Stack{
		Config:    cfg,
		Cache:     c,
		Table:     table,
		Yahoo:     yc,
		Fetcher:   f,
		Resolver:  r,
		Portfolio: book,
		Funds:     funds,
	}
}

// Limiter picks the upstream limiter: a token bucket when a per-minute
// budget is set, otherwise a minimum interval, otherwise none.
func Limiter(cfg config.Yahoo) ratelimit.Limiter {
	if cfg.MaxRequestsPerMinute > 0 {
		return ratelimit.PerMinute(cfg.MaxRequestsPerMinute, cfg.Burst)
	}
	if cfg.MinRequestIntervalMs > 0 {
		return &ratelimit.MinInterval{Interval: time.Duration(cfg.MinRequestIntervalMs) * time.Millisecond}
	}
	return nil
}

// Sessions builds the login manager from the auth section.
func Sessions(cfg config.Auth, log *zap.Logger) (*session.Manager, error) {
	m, err := session.NewManager(session.ParseCredentials(cfg.Credentials), session.Config{
		Secret:     cfg.Secret,
		TTL:        time.Duration(cfg.SessionTTLMinutes) * time.Minute,
		CookieName: cfg.CookieName,
		Secure:     cfg.SecureCookie,
	}, session.WithLogger(log.Named("session")))
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	return m, nil
}

// FirebaseConfig is the browser-side Firebase configuration.
func FirebaseConfig(cfg config.Firebase) map[string]string {
	return map[string]string{
		"apiKey":            cfg.APIKey,
		"authDomain":        cfg.AuthDomain,
		"databaseURL":       cfg.DatabaseURL,
		"projectId":         cfg.ProjectID,
		"storageBucket":     cfg.StorageBucket,
		"messagingSenderId": cfg.MessagingSenderID,
		"appId":             cfg.AppID,
	}
}

var (
	_ yahoo.HTTPClient      = (*httpx.Client)(nil)
	_ mutualfund.HTTPClient = (*httpx.Client)(nil)
)
