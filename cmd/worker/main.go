package main

import (
	"context"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"schedule-builder/internal/app"
	"schedule-builder/internal/infra/config"
	applog "schedule-builder/internal/infra/log"
	"schedule-builder/internal/infra/metrics"
	"schedule-builder/internal/usecase/batch"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "worker")
	log.Logger = logger

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("worker: не удалось собрать зависимости")
	}
	defer a.Close()

	jobs, err := a.BuildQueue()
	if err != nil {
		log.Fatal().Err(err).Msg("worker: очередь недоступна")
	}

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	consumer := batch.NewConsumer(jobs, a.Orchestrator, cfg.Queues.WorkerCount, logger.With().Str("component", "consumer").Logger())
	log.Info().Int("workers", cfg.Queues.WorkerCount).Str("backend", cfg.Queues.Backend).Msg("worker: старт")
	consumer.Run(ctx)
	log.Info().Msg("worker: остановка")
}
