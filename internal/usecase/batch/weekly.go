package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"schedule-builder/internal/domain"
)

// TaskSource отдаёт список авторов на неделю.
type TaskSource func(ctx context.Context, week time.Time) ([]domain.CreatorTask, error)

// Runner запускает пакет.
type Runner interface {
	Run(ctx context.Context, tasks []domain.CreatorTask) domain.BatchRun
}

// Weekly запускает пакет раз в неделю в заданный день и час по поясу сервиса.
type Weekly struct {
	runner   Runner
	source   TaskSource
	cache    domain.Cache
	weekday  time.Weekday
	hour     int
	location *time.Location
	log      zerolog.Logger
}

// ParseWeekday разбирает название дня недели на английском.
func ParseWeekday(raw string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, &domain.ConfigurationError{Key: "BATCH_RUN_WEEKDAY", Value: raw}
}

// NewWeekly создаёт недельный триггер. cache защищает от повторного запуска
// той же недели несколькими репликами.
func NewWeekly(runner Runner, source TaskSource, cache domain.Cache, weekday time.Weekday, hour int, location *time.Location, logger zerolog.Logger) *Weekly {
	if location == nil {
		location = time.UTC
	}
	return &Weekly{runner: runner, source: source, cache: cache, weekday: weekday, hour: hour, location: location, log: logger}
}

// Due сообщает, пора ли строить расписания, и на какую неделю.
func (w *Weekly) Due(now time.Time) (time.Time, bool) {
	local := now.In(w.location)
	if local.Weekday() != w.weekday || local.Hour() != w.hour {
		return time.Time{}, false
	}
	return NextWeekStart(now, w.location), true
}

// Tick запускает пакет, если наступило время и неделя ещё не обработана.
func (w *Weekly) Tick(ctx context.Context, now time.Time) (bool, error) {
	week, due := w.Due(now)
	if !due {
		return false, nil
	}
	ran := false
	key := "batch:" + week.Format(weekLayout)
	err := w.cache.Once(key, 7*24*time.Hour, func() error {
		ran = true
		return w.RunWeek(ctx, week)
	})
	return ran, err
}

// RunWeek строит расписания всех авторов на неделю week.
func (w *Weekly) RunWeek(ctx context.Context, week time.Time) error {
	tasks, err := w.source(ctx, week)
	if err != nil {
		return fmt.Errorf("список авторов: %w", err)
	}
	if len(tasks) == 0 {
		w.log.Warn().Str("week", week.Format(weekLayout)).Msg("batch: нет авторов")
		return nil
	}
	run := w.runner.Run(ctx, tasks)
	w.log.Info().
		Str("run", run.ID).
		Str("week", week.Format(weekLayout)).
		Int("succeeded", run.Succeeded).
		Int("failed", run.Failed).
		Msg("batch: неделя обработана")
	return nil
}
