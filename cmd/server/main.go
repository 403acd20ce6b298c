// Package main is the entry point for the boigordo API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boigordo/internal/app"
	"boigordo/internal/config"
	"boigordo/internal/domain/auth"
	"boigordo/internal/infrastructure/cache"
	v1 "boigordo/internal/infrastructure/http/v1"
	"boigordo/internal/infrastructure/http/v1/handlers"
	"boigordo/internal/infrastructure/storage/postgres/catalog_repo"
	"boigordo/pkg/logger"
)

func main() {
	envFile := flag.String("env", "", "dotenv file to load before the environment")
	migrate := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "boigordo-server",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()
	log.Infow("starting boigordo server", "env", cfg.Env)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()
	log.Info("database connection established")

	if *migrate {
		if err := a.Migrate(ctx); err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}
	}

	if err := a.Categories.EnsureDefaults(ctx); err != nil {
		log.Fatalw("failed to seed category mappings", "error", err)
	}

	// Mapping versions added by another instance invalidate the local table.
	listener := cache.NewListener(a.Pool.Unwrap())
	listener.Subscribe(catalog_repo.ChannelCategoryChanged, func(ctx context.Context, _ string) {
		a.Categories.Invalidate()
		logger.Debug(ctx, "category table invalidated")
	})
	listener.Start(ctx)
	defer listener.Stop()

	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	if cfg.JWT.Issuer != "" {
		jwtConfig.Issuer = cfg.JWT.Issuer
	}
	jwtService := auth.NewJWTService(jwtConfig)

	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		JWTValidator: jwtService,
		Idempotency:  a.Idempotency,
		Metrics:      a.Metrics,
		Health: map[string]handlers.Pinger{
			"database": handlers.PingFunc(a.Ping),
			"redis":    handlers.PingFunc(a.PingRedis),
		},
		Services: v1.Services{
			Records:     a.Ledger,
			Lots:        a.Lots,
			LotCosts:    a.LotCosts,
			Pens:        a.Pens,
			Sales:       a.Sales,
			Mortality:   a.Mortality,
			Reconcile:   a.Reconcile,
			Statements:  a.Statement,
			Categories:  a.Categories,
			CostCenters: a.CostCenters,
			CashFlow:    a.CashFlow,
		},
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
