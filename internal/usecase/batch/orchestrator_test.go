package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"schedule-builder/internal/domain"
)

type builderFunc func(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error)

func (f builderFunc) BuildForCreator(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error) {
	return f(ctx, task)
}

type notifierStub struct {
	mu   sync.Mutex
	runs []domain.BatchRun
}

func (n *notifierStub) NotifyBatch(ctx context.Context, run domain.BatchRun) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run)
	return nil
}

func newTestOrchestrator(b Builder, n domain.BatchNotifier, cfg Config) (*Orchestrator, *[]time.Duration) {
	o := NewOrchestrator(b, n, cfg, zerolog.Nop())
	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	o.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, d)
		return nil
	}
	return o, &delays
}

func tasks(ids ...string) []domain.CreatorTask {
	week := time.Date(2024, time.November, 4, 0, 0, 0, 0, time.UTC)
	out := make([]domain.CreatorTask, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.CreatorTask{CreatorID: id, WeekStart: week})
	}
	return out
}

func TestRunIsolatesFailures(t *testing.T) {
	builder := builderFunc(func(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error) {
		if task.CreatorID == "bad" {
			return domain.Schedule{}, fmt.Errorf("автор %s: %w", task.CreatorID, domain.ErrNoCandidates)
		}
		return domain.Schedule{ID: "sched_" + task.CreatorID, CreatorID: task.CreatorID}, nil
	})
	notifier := &notifierStub{}
	o, _ := newTestOrchestrator(builder, notifier, Config{MaxConcurrency: 2})

	run := o.Run(context.Background(), tasks("a", "bad", "b", "c"))
	if run.Succeeded != 3 || run.Failed != 1 {
		t.Fatalf("ожидали 3 успеха и 1 ошибку, получили %d и %d", run.Succeeded, run.Failed)
	}
	if run.SuccessRate() != 75 {
		t.Fatalf("ожидали 75%%, получили %.1f", run.SuccessRate())
	}
	if run.ID == "" || run.WeekStart.IsZero() {
		t.Fatalf("ожидали ID и неделю запуска: %+v", run)
	}
	for i, id := range []string{"a", "bad", "b", "c"} {
		if run.Outcomes[i].CreatorID != id {
			t.Fatalf("порядок результатов нарушен: %d -> %s", i, run.Outcomes[i].CreatorID)
		}
	}
	if run.Outcomes[1].Attempts != 1 {
		t.Fatalf("ErrNoCandidates не должен повторяться, попыток: %d", run.Outcomes[1].Attempts)
	}
	if len(notifier.runs) != 1 {
		t.Fatalf("ожидали один отчёт, получили %d", len(notifier.runs))
	}
}

func TestProcessRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	builder := builderFunc(func(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error) {
		if calls.Add(1) < 3 {
			return domain.Schedule{}, domain.Transient("analytics", errors.New("timeout"))
		}
		return domain.Schedule{ID: "ok"}, nil
	})
	o, delays := newTestOrchestrator(builder, nil, Config{MaxAttempts: 3, BackoffBase: time.Second, BackoffMax: 10 * time.Second})

	outcome := o.Process(context.Background(), tasks("a")[0])
	if !outcome.Succeeded() || outcome.Attempts != 3 {
		t.Fatalf("ожидали успех с третьей попытки, получили %+v", outcome)
	}
	if len(*delays) != 2 || (*delays)[0] != time.Second || (*delays)[1] != 2*time.Second {
		t.Fatalf("ожидали экспоненциальные задержки 1s, 2s, получили %v", *delays)
	}
}

func TestProcessRetriesLockConflict(t *testing.T) {
	var calls atomic.Int32
	builder := builderFunc(func(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error) {
		if calls.Add(1) == 1 {
			return domain.Schedule{}, &domain.LockConflictError{ScheduleID: "s", CaptionIDs: []int64{1}}
		}
		return domain.Schedule{ID: "ok"}, nil
	})
	o, _ := newTestOrchestrator(builder, nil, Config{})
	if outcome := o.Process(context.Background(), tasks("a")[0]); !outcome.Succeeded() || outcome.Attempts != 2 {
		t.Fatalf("ожидали успех со второй попытки, получили %+v", outcome)
	}
}

func TestProcessGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	builder := builderFunc(func(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error) {
		calls.Add(1)
		return domain.Schedule{}, domain.Transient("selection", errors.New("503"))
	})
	o, _ := newTestOrchestrator(builder, nil, Config{MaxAttempts: 3})
	outcome := o.Process(context.Background(), tasks("a")[0])
	if outcome.Succeeded() || outcome.Attempts != 3 || calls.Load() != 3 {
		t.Fatalf("ожидали 3 неудачные попытки, получили %+v (вызовов %d)", outcome, calls.Load())
	}
	if !domain.IsTransient(outcome.Err) {
		t.Fatalf("ожидали исходную временную ошибку, получили %v", outcome.Err)
	}
}

func TestProcessDoesNotRetryConfiguration(t *testing.T) {
	var calls atomic.Int32
	builder := builderFunc(func(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error) {
		calls.Add(1)
		return domain.Schedule{}, &domain.ConfigurationError{Key: "LOCK_STORE", Value: "mongo"}
	})
	o, _ := newTestOrchestrator(builder, nil, Config{MaxAttempts: 5})
	if outcome := o.Process(context.Background(), tasks("a")[0]); outcome.Attempts != 1 || calls.Load() != 1 {
		t.Fatalf("ошибки настройки не повторяются, попыток: %d", outcome.Attempts)
	}
}

func TestProcessStopsWhenContextCancelled(t *testing.T) {
	builder := builderFunc(func(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error) {
		return domain.Schedule{}, domain.Transient("analytics", errors.New("timeout"))
	})
	o := NewOrchestrator(builder, nil, Config{MaxAttempts: 5, BackoffBase: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := o.Process(ctx, tasks("a")[0])
	if outcome.Attempts != 1 || !errors.Is(outcome.Err, context.Canceled) && !domain.IsTransient(outcome.Err) {
		t.Fatalf("ожидали остановку после первой попытки, получили %+v", outcome)
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	const limit = 3
	var inFlight, peak atomic.Int32
	builder := builderFunc(func(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return domain.Schedule{ID: task.CreatorID}, nil
	})
	o, _ := newTestOrchestrator(builder, nil, Config{MaxConcurrency: limit})

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%d", i)
	}
	run := o.Run(context.Background(), tasks(ids...))
	if run.Succeeded != len(ids) {
		t.Fatalf("ожидали %d успехов, получили %d", len(ids), run.Succeeded)
	}
	if got := peak.Load(); got > limit || got == 0 {
		t.Fatalf("одновременно обрабатывалось %d авторов при лимите %d", got, limit)
	}
}

func TestBackoff(t *testing.T) {
	o := NewOrchestrator(nil, nil, Config{BackoffBase: time.Second, BackoffMax: 5 * time.Second}, zerolog.Nop())
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := o.backoff(i + 1); got != w {
			t.Fatalf("попытка %d: ожидали %s, получили %s", i+1, w, got)
		}
	}
}

func TestRunEmpty(t *testing.T) {
	o, _ := newTestOrchestrator(builderFunc(nil), nil, Config{})
	run := o.Run(context.Background(), nil)
	if run.Succeeded != 0 || run.Failed != 0 || run.SuccessRate() != 0 {
		t.Fatalf("пустой запуск должен быть пустым: %+v", run)
	}
}
