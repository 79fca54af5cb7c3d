package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"schedule-builder/internal/domain"
)

// chanQueue отдаёт задачи из канала и запоминает подтверждения.
type chanQueue struct {
	jobs chan domain.BuildJob

	mu   sync.Mutex
	acks map[string]bool
	wg   sync.WaitGroup
}

func newChanQueue(jobs ...domain.BuildJob) *chanQueue {
	q := &chanQueue{jobs: make(chan domain.BuildJob, len(jobs)), acks: make(map[string]bool)}
	q.wg.Add(len(jobs))
	for _, j := range jobs {
		q.jobs <- j
	}
	return q
}

func (q *chanQueue) Enqueue(ctx context.Context, job domain.BuildJob) error {
	q.jobs <- job
	return nil
}

func (q *chanQueue) Receive(ctx context.Context) (domain.BuildJob, domain.BuildAckFunc, error) {
	select {
	case <-ctx.Done():
		return domain.BuildJob{}, nil, ctx.Err()
	case job := <-q.jobs:
		return job, func(success bool) error {
			q.mu.Lock()
			q.acks[job.ID] = success
			q.mu.Unlock()
			q.wg.Done()
			return nil
		}, nil
	}
}

type processorFunc func(ctx context.Context, task domain.CreatorTask) domain.CreatorOutcome

func (f processorFunc) Process(ctx context.Context, task domain.CreatorTask) domain.CreatorOutcome {
	return f(ctx, task)
}

func TestConsumerAcksByOutcome(t *testing.T) {
	week := time.Date(2024, time.November, 4, 0, 0, 0, 0, time.UTC)
	q := newChanQueue(
		domain.BuildJob{ID: "ok", CreatorID: "alice", WeekStart: week},
		domain.BuildJob{ID: "empty", CreatorID: "bob", WeekStart: week},
		domain.BuildJob{ID: "flaky", CreatorID: "carol", WeekStart: week},
	)
	var (
		mu    sync.Mutex
		weeks []time.Time
	)
	proc := processorFunc(func(ctx context.Context, task domain.CreatorTask) domain.CreatorOutcome {
		mu.Lock()
		weeks = append(weeks, task.WeekStart)
		mu.Unlock()
		switch task.CreatorID {
		case "bob":
			return domain.CreatorOutcome{CreatorID: "bob", Err: fmt.Errorf("автор bob: %w", domain.ErrNoCandidates)}
		case "carol":
			return domain.CreatorOutcome{CreatorID: "carol", Err: domain.Transient("engine", errors.New("503"))}
		}
		sched := domain.Schedule{ID: "s"}
		return domain.CreatorOutcome{CreatorID: task.CreatorID, Schedule: &sched}
	})

	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsumer(q, proc, 2, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	q.wg.Wait()
	cancel()
	<-done

	want := map[string]bool{"ok": true, "empty": true, "flaky": false}
	for id, ack := range want {
		if got, ok := q.acks[id]; !ok || got != ack {
			t.Fatalf("задача %s: подтверждение %v, ожидали %v", id, got, ack)
		}
	}
	for _, w := range weeks {
		if !w.Equal(week) {
			t.Fatalf("неделя задачи потеряна: %s", w)
		}
	}
}

type failingQueue struct {
	calls int
}

func (q *failingQueue) Enqueue(ctx context.Context, job domain.BuildJob) error { return nil }

func (q *failingQueue) Receive(ctx context.Context) (domain.BuildJob, domain.BuildAckFunc, error) {
	q.calls++
	return domain.BuildJob{}, nil, errors.New("битое сообщение")
}

func TestConsumerSurvivesReceiveErrors(t *testing.T) {
	q := &failingQueue{}
	c := NewConsumer(q, processorFunc(nil), 1, zerolog.Nop())
	c.pause = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c.Run(ctx)
	if q.calls < 2 {
		t.Fatalf("после ошибки чтения воркер должен продолжать, вызовов %d", q.calls)
	}
}
