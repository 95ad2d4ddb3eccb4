package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stockdash/internal/bootstrap"
	"stockdash/internal/config"
	"stockdash/internal/logger"
)

func main() {
	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	if cfg.LowResource {
		log.Info("low-resource mode: table symbols are served without live lookups")
	}

	stack := bootstrap.New(cfg, log)
	sessions, err := bootstrap.Sessions(cfg.Auth, log)
	if err != nil {
		log.Fatal("sessions", zap.Error(err))
	}

	s := &server{
		quotes:           stack.Resolver,
		details:          stack.Yahoo,
		portfolio:        stack.Portfolio,
		funds:            stack.Funds,
		sessions:         sessions,
		firebase:         bootstrap.FirebaseConfig(cfg.Firebase),
		log:              log.Named("http"),
		validate:         validator.New(),
		maxBatch:         cfg.Server.MaxBatchSymbols,
		batchConcurrency: cfg.Server.BatchConcurrency,
	}

	root := http.NewServeMux()
	root.Handle("/metrics", promhttp.Handler())
	root.Handle("/", chain(s.routes(), s.log))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server", zap.Error(err))
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}
