package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"schedule-builder/internal/adapters/engineclient"
	"schedule-builder/internal/adapters/lockstore"
	"schedule-builder/internal/adapters/repo"
	"schedule-builder/internal/adapters/telegram"
	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/cache"
	"schedule-builder/internal/infra/config"
	"schedule-builder/internal/infra/db"
	"schedule-builder/internal/infra/queue"
	"schedule-builder/internal/usecase/batch"
	"schedule-builder/internal/usecase/locking"
	"schedule-builder/internal/usecase/schedule"
)

// App собирает зависимости, общие для всех бинарников.
type App struct {
	Config       config.AppConfig
	Log          zerolog.Logger
	Location     *time.Location
	Postgres     *repo.Postgres
	Redis        *redis.Client
	Creators     domain.CreatorRepo
	Cache        domain.Cache
	Locks        *locking.Manager
	Schedules    *schedule.Service
	Orchestrator *batch.Orchestrator

	closers []func() error
}

// New подключается к хранилищам и собирает конвейер построения расписаний.
func New(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	loc, err := schedule.ResolveLocation(cfg.TZ)
	if err != nil {
		return nil, &domain.ConfigurationError{Key: "TZ", Value: cfg.TZ}
	}
	a.Location = loc

	if cfg.PGDSN != "" {
		pool, err := db.ConnectWithLimit(cfg.PGDSN, int32(cfg.Batch.MaxConcurrency+cfg.Queues.WorkerCount+2))
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.Postgres = repo.NewPostgres(pool)
		if err := a.Postgres.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.Creators = a.Postgres
	}

	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, a.Redis.Close)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Cache = cache.NewRedis(a.Redis, "schedule-builder:")
	} else {
		a.Cache = cache.NewMemory()
	}

	backends := lockstore.Backends{Redis: a.Redis, SQLitePath: cfg.Locks.SQLitePath}
	if a.Postgres != nil {
		backends.Postgres = a.Postgres
	}
	store, closeStore, err := lockstore.Open(cfg.Locks.Store, backends)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)
	a.Locks = locking.NewManager(store, logger.With().Str("component", "locking").Logger())

	engine, err := engineclient.New(cfg.Engine.BaseURL,
		engineclient.WithTimeout(cfg.Engine.Timeout),
		engineclient.WithToken(cfg.Engine.Token),
	)
	if err != nil {
		return nil, err
	}

	seed := cfg.RandSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rnd := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var schedules domain.ScheduleRepo
	if a.Postgres != nil {
		schedules = a.Postgres
	}
	a.Schedules = schedule.NewService(engine, engine, a.Locks, schedules, newLockedRand(rnd), loc,
		logger.With().Str("component", "schedule").Logger())

	var notifier domain.BatchNotifier
	if cfg.Telegram.Token != "" && cfg.Telegram.ReportChatID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		notifier = telegram.NewNotifier(bot, cfg.Telegram.ReportChatID, logger.With().Str("component", "telegram").Logger())
	}
	a.Orchestrator = batch.NewOrchestrator(a.Schedules, notifier, batch.Config{
		MaxConcurrency: cfg.Batch.MaxConcurrency,
		MaxAttempts:    cfg.Batch.MaxAttempts,
		BackoffBase:    cfg.Batch.BackoffBase,
		BackoffMax:     cfg.Batch.BackoffMax,
	}, logger.With().Str("component", "batch").Logger())

	ok = true
	return a, nil
}

// BuildQueue открывает очередь задач по QUEUE_BACKEND.
func (a *App) BuildQueue() (domain.BuildQueue, error) {
	switch a.Config.Queues.Backend {
	case "redis":
		if a.Redis == nil {
			return nil, &domain.ConfigurationError{Key: "REDIS_ADDR", Value: ""}
		}
		return queue.NewRedisBuildQueue(a.Redis, a.Config.Queues.Build), nil
	case "rabbitmq":
		q, err := queue.NewRabbitBuildQueue(a.Config.Queues.RabbitURL, a.Config.Queues.Build, a.Config.Queues.WorkerCount)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, q.Close)
		return q, nil
	default:
		return nil, &domain.ConfigurationError{Key: "QUEUE_BACKEND", Value: a.Config.Queues.Backend}
	}
}

// Close освобождает подключения в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn().Err(err).Msg("app: ошибка при закрытии")
		}
	}
	a.closers = nil
}
