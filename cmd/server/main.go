// Package main is the entrypoint for the errdigest server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/errdigest/internal/api"
	"github.com/kiranshivaraju/errdigest/internal/api/handler"
	mw "github.com/kiranshivaraju/errdigest/internal/api/middleware"
	"github.com/kiranshivaraju/errdigest/internal/api/response"
	"github.com/kiranshivaraju/errdigest/internal/cache"
	"github.com/kiranshivaraju/errdigest/internal/config"
	"github.com/kiranshivaraju/errdigest/internal/ereport"
	"github.com/kiranshivaraju/errdigest/internal/mailer"
	"github.com/kiranshivaraju/errdigest/internal/metrics"
	"github.com/kiranshivaraju/errdigest/internal/report"
	"github.com/kiranshivaraju/errdigest/internal/scheduler"
	"github.com/kiranshivaraju/errdigest/internal/store"
	"github.com/kiranshivaraju/errdigest/internal/subscription"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"store_driver", cfg.Database.Driver,
		"day_starting_hour", cfg.Intake.DayStartingHour,
		"log_interval", cfg.Intake.LogInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the record store, migrations included
	st, closeStore, err := store.Open(ctx, cfg.Database, "migrations")
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()
	slog.Info("store ready", "driver", cfg.Database.Driver)

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Outbound mail
	sender, err := mailer.NewSender(cfg.SMTP)
	if err != nil {
		return fmt.Errorf("create mail sender: %w", err)
	}
	if !cfg.SMTPEnabled() {
		slog.Warn("SMTP_HOST not set, outgoing mail is logged instead of sent")
	}
	slog.Info("mail sender initialized", "sender", sender.Name())

	// 5. Services
	recorder := ereport.NewRecorder(st, ereport.NewGate(redisCache, cfg.Intake.LogInterval), cfg.Intake.DayStartingHour)
	reports := report.NewService(st, sender, cfg)
	subs := subscription.NewService(st, cfg.Subscription)

	// 6. Build router with dependencies
	if cfg.Server.AdminTokenHash == "" {
		slog.Warn("ADMIN_TOKEN_HASH not set, admin routes are disabled")
	}

	deps := api.Dependencies{
		Auth:           mw.NewAuth(cfg.Server.AdminTokenHash),
		RateLimit:      mw.NewRateLimit(redisCache, cfg.Intake.RateLimit),
		AllowedOrigins: cfg.Intake.AllowedOrigins,

		HealthHandler:          healthHandler(st, redisCache),
		MetricsHandler:         metrics.Handler(),
		IntakeHandler:          handler.NewIntakeHandler(recorder),
		ReportHandler:          handler.NewReportHandler(reports, cfg.Intake.DayStartingHour),
		InboundMailHandler:     handler.NewInboundMailHandler(subs, sender),
		GetSubscriptionHandler: handler.NewGetSubscriptionHandler(subs),
	}

	router := api.NewRouter(deps)

	// 7. Daily report schedule
	var sched *scheduler.Scheduler
	if cfg.Report.Schedule != "" && len(cfg.Report.ClientIDs) > 0 {
		sched, err = scheduler.New(cfg.Report.Schedule, reports, cfg.Report.ClientIDs)
		if err != nil {
			return err
		}
		sched.Start()
	} else {
		slog.Info("report scheduler disabled")
	}

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks store and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
