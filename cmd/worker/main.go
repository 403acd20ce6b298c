// Package main is the entry point for the boigordo background worker. It
// relays outbox events, recomputes open lots, scans the ledger and purges
// expired bookkeeping rows.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"boigordo/internal/app"
	"boigordo/internal/config"
	"boigordo/internal/infrastructure/scheduler"
	"boigordo/internal/infrastructure/storage/postgres"
	"boigordo/pkg/logger"
)

func main() {
	envFile := flag.String("env", "", "dotenv file to load before the environment")
	metricsAddr := flag.String("metrics-addr", ":9091", "address of the metrics endpoint, empty to disable")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "boigordo-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()
	log.Info("starting boigordo worker")

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()

	relay := postgres.NewOutboxRelay(a.Tx, cfg.Worker.OutboxBatchSize, eventHandler(a.Statements))

	sched := scheduler.New(scheduler.NewRedisJobLock(a.Redis), cfg.Worker.JobLockTTL, a.Metrics).WithLogger(log)
	for _, j := range jobs(a, relay) {
		if err := sched.Add(j); err != nil {
			log.Fatalw("failed to schedule job", "job", j.Name, "error", err)
		}
	}
	sched.Start()

	var metricsServer *http.Server
	if *metricsAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		engine := gin.New()
		engine.GET("/metrics", a.Metrics.Handler())
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: engine, ReadTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	sched.Stop(stopCtx)
	if metricsServer != nil {
		_ = metricsServer.Shutdown(stopCtx)
	}
	log.Info("worker stopped")
}

func jobs(a *app.App, relay *postgres.OutboxRelay) []scheduler.Job {
	w := a.Config.Worker
	return []scheduler.Job{
		{
			Name:    "outbox-relay",
			Spec:    fmt.Sprintf("@every %s", w.OutboxInterval),
			Timeout: time.Minute,
			Run: func(ctx context.Context) error {
				n, err := relay.ProcessBatch(ctx)
				if n > 0 {
					logger.Debug(ctx, "outbox batch delivered", "count", n)
				}
				return err
			},
		},
		{
			Name:      "lot-recompute",
			Spec:      w.RecomputeCron,
			Exclusive: true,
			Timeout:   w.JobLockTTL,
			Run: func(ctx context.Context) error {
				recomputed, failed, err := a.LotCosts.RecomputeOpen(ctx)
				logger.Info(ctx, "open lots recomputed", "recomputed", recomputed, "failed", failed)
				return err
			},
		},
		{
			Name:      "ledger-reconcile",
			Spec:      w.ReconcileCron,
			Exclusive: true,
			Timeout:   w.JobLockTTL,
			Run: func(ctx context.Context) error {
				report, err := a.Reconcile.Scan(ctx)
				if err != nil {
					return err
				}
				logger.Info(ctx, "ledger scanned",
					"scanned", report.Scanned,
					"duplicate_groups", len(report.Duplicates),
					"orphans", len(report.Orphans),
					"warnings", len(report.Warnings),
				)
				return nil
			},
		},
		{
			Name: "pool-stats",
			Spec: "@every 5m",
			Run: func(ctx context.Context) error {
				postgres.LogPoolStats(ctx, a.Pool.Unwrap())
				return nil
			},
		},
		{
			Name:      "cleanup",
			Spec:      w.CleanupCron,
			Exclusive: true,
			Timeout:   10 * time.Minute,
			Run: func(ctx context.Context) error {
				keys, err := a.Idempotency.CleanupExpired(ctx)
				if err != nil {
					return err
				}
				events, err := relay.PurgePublished(ctx, time.Now().UTC().Add(-w.OutboxRetention))
				if err != nil {
					return err
				}
				logger.Info(ctx, "cleanup finished", "idempotency_keys", keys, "outbox_events", events)
				return nil
			},
		},
	}
}
