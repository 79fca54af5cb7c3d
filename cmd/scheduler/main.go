package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"schedule-builder/internal/app"
	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/config"
	applog "schedule-builder/internal/infra/log"
	"schedule-builder/internal/infra/metrics"
	"schedule-builder/internal/usecase/batch"
)

func main() {
	runNow := flag.Bool("now", false, "построить расписания сразу и выйти")
	weekFlag := flag.String("week", "", "неделя YYYY-MM-DD (по умолчанию ближайший понедельник)")
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "scheduler")
	log.Logger = logger

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: не удалось собрать зависимости")
	}
	defer a.Close()

	source, manifest, err := taskSource(a)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: нет источника авторов")
	}
	weekday, err := batch.ParseWeekday(cfg.Batch.RunWeekday)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: неверный день запуска")
	}
	weekly := batch.NewWeekly(a.Orchestrator, source, a.Cache, weekday, cfg.Batch.RunHour, a.Location,
		logger.With().Str("component", "weekly").Logger())

	if *runNow {
		week := batch.NextWeekStart(time.Now(), a.Location)
		if manifest != nil {
			if pinned, ok := manifest.Week(); ok {
				week = pinned
			}
		}
		if *weekFlag != "" {
			if week, err = time.Parse("2006-01-02", *weekFlag); err != nil {
				log.Fatal().Err(err).Msg("scheduler: неверная неделя")
			}
		}
		if err := weekly.RunWeek(ctx, week); err != nil {
			log.Fatal().Err(err).Msg("scheduler: запуск не удался")
		}
		return
	}

	if manifest != nil {
		if err := manifest.CheckScheduled(); err != nil {
			log.Fatal().Err(err).Msg("scheduler: week_start в манифесте допустим только с -now")
		}
	}

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	log.Info().
		Str("weekday", weekday.String()).
		Int("hour", cfg.Batch.RunHour).
		Str("tz", a.Location.String()).
		Msg("scheduler: старт")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler: остановка")
			return
		case now := <-ticker.C:
			if _, err := weekly.Tick(ctx, now); err != nil {
				log.Error().Err(err).Msg("scheduler: ошибка недельного запуска")
			}
		}
	}
}

// taskSource берёт авторов из манифеста, если он задан, иначе из таблицы creators.
func taskSource(a *app.App) (batch.TaskSource, *batch.Manifest, error) {
	if path := a.Config.Batch.Manifest; path != "" {
		manifest, err := batch.LoadManifest(path)
		if err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context, week time.Time) ([]domain.CreatorTask, error) {
			return manifest.Tasks(week), nil
		}, &manifest, nil
	}
	if a.Creators == nil {
		return nil, nil, &domain.ConfigurationError{Key: "BATCH_MANIFEST", Value: ""}
	}
	return func(ctx context.Context, week time.Time) ([]domain.CreatorTask, error) {
		ids, err := a.Creators.ListActiveCreators(ctx)
		if err != nil {
			return nil, err
		}
		return batch.TasksFor(ids, week), nil
	}, nil, nil
}
