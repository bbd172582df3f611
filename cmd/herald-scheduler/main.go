// Herald Scheduler — доставка запланированных публикаций.
//
// Процесс:
//   - Раз в SCHED_INTERVAL забирает due публикации и публикует их
//   - Повторяет транзиентные ошибки с экспоненциальной задержкой
//   - Возвращает зависшие claim упавших инстансов
//   - По расписанию ALLOCATOR_SCHEDULE распределяет очереди аккаунтов по слотам
//
// Тот же HTTP-сервер отдаёт /healthz, /metrics и операторский API /api/v1.
//
// Можно запускать несколько инстансов: доставка защищена атомарным claim,
// распределение — блокировкой аккаунта в Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Herald/internal/api"
	"github.com/shaiso/Herald/internal/app"
	"github.com/shaiso/Herald/internal/config"
	"github.com/shaiso/Herald/internal/queue"
	"github.com/shaiso/Herald/internal/scheduler"
	"github.com/shaiso/Herald/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting herald-scheduler")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	telemetry.RegisterMetrics()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	allocator, err := queue.NewRunner(a.Queue, cfg.Allocator.Schedule)
	if err != nil {
		logger.Error("invalid allocator schedule", "error", err)
		os.Exit(1)
	}
	delivery := scheduler.NewRunner(a.Scheduler, cfg.Scheduler.Interval)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", telemetry.MetricsHandler())

	// операторский API
	api.NewHandler(api.Config{
		Items:     a.Items,
		Policies:  a.Policies,
		Allocator: a.Queue,
		Logger:    logger,
	}).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(delivery.Run(gctx))
	g.Go(allocator.Run(gctx))

	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("herald-scheduler stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("herald-scheduler stopped")
}
