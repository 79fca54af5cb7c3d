package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"schedule-builder/internal/adapters/httpapi"
	"schedule-builder/internal/app"
	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/config"
	httpinfra "schedule-builder/internal/infra/http"
	applog "schedule-builder/internal/infra/log"
	"schedule-builder/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "api")
	log.Logger = logger

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("api: не удалось собрать зависимости")
	}
	defer a.Close()

	var jobs domain.BuildQueue
	if q, err := a.BuildQueue(); err != nil {
		log.Warn().Err(err).Msg("api: очередь недоступна, /api/v1/jobs отключён")
	} else {
		jobs = q
	}

	if cfg.APIToken == "" {
		log.Warn().Msg("api: API_TOKEN не задан, авторизация отключена")
	}
	srv := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	handler := httpapi.New(a.Orchestrator, a.Locks, jobs, a.Creators, a.Location, logger.With().Str("component", "httpapi").Logger())
	srv.Router.Group(func(r chi.Router) {
		r.Use(httpinfra.BearerAuth(cfg.APIToken))
		handler.Register(r)
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("api: старт")
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			log.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
