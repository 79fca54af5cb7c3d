package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
)

const (
	defaultConcurrency = 10
	defaultAttempts    = 3
	defaultBackoffBase = 2 * time.Second
	defaultBackoffMax  = 30 * time.Second
)

// Builder строит расписание одного автора.
type Builder interface {
	BuildForCreator(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error)
}

// Config задаёт размер пула и политику повторов.
type Config struct {
	MaxConcurrency int
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = max(defaultBackoffMax, c.BackoffBase)
	}
	return c
}

// Orchestrator строит расписания многих авторов ограниченным пулом.
// Авторы независимы: ошибка одного не влияет на остальных.
type Orchestrator struct {
	builder  Builder
	notifier domain.BatchNotifier
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	log      zerolog.Logger
}

// NewOrchestrator создаёт оркестратор. notifier может быть nil.
func NewOrchestrator(builder Builder, notifier domain.BatchNotifier, cfg Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		builder:  builder,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		sleep:    sleepCtx,
		now:      time.Now,
		log:      logger,
	}
}

// Run обрабатывает всех авторов и возвращает сводку. Порядок результатов
// совпадает с порядком задач.
func (o *Orchestrator) Run(ctx context.Context, tasks []domain.CreatorTask) domain.BatchRun {
	run := domain.BatchRun{
		ID:        uuid.NewString(),
		StartedAt: o.now(),
		Outcomes:  make([]domain.CreatorOutcome, len(tasks)),
	}
	if len(tasks) > 0 {
		run.WeekStart = tasks[0].WeekStart
	}
	logger := o.log.With().Str("run", run.ID).Logger()
	logger.Info().Int("creators", len(tasks)).Int("concurrency", o.cfg.MaxConcurrency).Msg("batch: запуск")

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	for i, task := range tasks {
		g.Go(func() error {
			run.Outcomes[i] = o.Process(ctx, task)
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range run.Outcomes {
		if outcome.Succeeded() {
			run.Succeeded++
		} else {
			run.Failed++
		}
	}
	run.Duration = o.now().Sub(run.StartedAt)
	metrics.BatchRunSeconds.Observe(run.Duration.Seconds())

	logger.Info().
		Int("succeeded", run.Succeeded).
		Int("failed", run.Failed).
		Float64("success_rate", run.SuccessRate()).
		Dur("duration", run.Duration).
		Dur("avg_per_creator", run.AvgPerCreator()).
		Msg("batch: запуск завершён")

	if o.notifier != nil {
		if err := o.notifier.NotifyBatch(ctx, run); err != nil {
			logger.Warn().Err(err).Msg("batch: не удалось отправить отчёт")
		}
	}
	return run
}

// Process строит расписание одного автора с повторами. Пустой пул подписей
// и ошибки настройки не повторяются.
func (o *Orchestrator) Process(ctx context.Context, task domain.CreatorTask) domain.CreatorOutcome {
	metrics.BatchInFlight.Inc()
	defer metrics.BatchInFlight.Dec()

	start := o.now()
	outcome := domain.CreatorOutcome{CreatorID: task.CreatorID}
	for attempt := 1; ; attempt++ {
		outcome.Attempts = attempt
		sched, err := o.builder.BuildForCreator(ctx, task)
		if err == nil {
			outcome.Schedule = &sched
			outcome.Err = nil
			break
		}
		outcome.Err = err
		if attempt >= o.cfg.MaxAttempts || !domain.IsRetryable(err) {
			break
		}
		delay := o.backoff(attempt)
		o.log.Warn().
			Err(err).
			Str("creator", task.CreatorID).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("batch: повтор после ошибки")
		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			outcome.Err = fmt.Errorf("ожидание повтора прервано: %v: %w", sleepErr, err)
			break
		}
	}
	outcome.Duration = o.now().Sub(start)
	metrics.ObserveBatchCreator(outcome.Succeeded(), outcome.Attempts)

	if outcome.Err != nil {
		o.log.Error().Err(outcome.Err).Str("creator", task.CreatorID).Int("attempts", outcome.Attempts).Msg("batch: автор не обработан")
	}
	return outcome
}

// backoff возвращает задержку перед попыткой attempt+1: base * 2^(attempt-1), не больше max.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	delay := o.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= o.cfg.BackoffMax {
			return o.cfg.BackoffMax
		}
	}
	return min(delay, o.cfg.BackoffMax)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
