package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"schedule-builder/internal/domain"
)

// Processor строит расписание одного автора с повторами.
type Processor interface {
	Process(ctx context.Context, task domain.CreatorTask) domain.CreatorOutcome
}

// Consumer разбирает очередь задач построения несколькими воркерами.
type Consumer struct {
	queue     domain.BuildQueue
	processor Processor
	workers   int
	pause     time.Duration
	log       zerolog.Logger
}

// NewConsumer создаёт потребителя очереди.
func NewConsumer(queue domain.BuildQueue, processor Processor, workers int, logger zerolog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{queue: queue, processor: processor, workers: workers, pause: time.Second, log: logger}
}

// Run блокируется, пока ctx не отменён.
func (c *Consumer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			c.loop(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (c *Consumer) loop(ctx context.Context, worker int) {
	logger := c.log.With().Int("worker", worker).Logger()
	for {
		job, ack, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Error().Err(err).Msg("worker: ошибка чтения очереди")
			if sleepCtx(ctx, c.pause) != nil {
				return
			}
			continue
		}
		c.handle(ctx, logger, job, ack)
	}
}

// handle подтверждает задачу, если расписание построено или повтор бесполезен.
// Временные сбои возвращают задачу в очередь.
func (c *Consumer) handle(ctx context.Context, logger zerolog.Logger, job domain.BuildJob, ack domain.BuildAckFunc) {
	outcome := c.processor.Process(ctx, domain.CreatorTask{
		CreatorID: job.CreatorID,
		WeekStart: job.WeekStart,
		Override:  job.Override,
	})
	done := outcome.Succeeded() || !domain.IsRetryable(outcome.Err)
	if err := ack(done); err != nil {
		logger.Error().Err(err).Str("job", job.ID).Msg("worker: не удалось подтвердить задачу")
	}

	event := logger.Info()
	if outcome.Err != nil {
		event = logger.Error().Err(outcome.Err).Bool("requeued", !done)
	}
	event.
		Str("job", job.ID).
		Str("creator", job.CreatorID).
		Str("cause", string(job.Cause)).
		Int("attempts", outcome.Attempts).
		Dur("duration", outcome.Duration).
		Msg("worker: задача обработана")
}
