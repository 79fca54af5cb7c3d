package domain

import (
	"context"
	"time"
)

// BuildJobCause описывает источник задачи на построение расписания.
type BuildJobCause string

const (
	// BuildCauseManual - задача поставлена вручную через API.
	BuildCauseManual BuildJobCause = "manual"
	// BuildCauseScheduled - задача поставлена недельным планировщиком.
	BuildCauseScheduled BuildJobCause = "scheduled"
)

// BuildJob содержит информацию о задаче построения расписания.
type BuildJob struct {
	ID          string          `json:"job_id,omitempty"`
	CreatorID   string          `json:"creator_id"`
	WeekStart   time.Time       `json:"week_start"`
	Override    *VolumeOverride `json:"override,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	Cause       BuildJobCause   `json:"cause"`
}

// BuildAckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type BuildAckFunc func(success bool) error

// BuildQueue описывает очередь задач на построение расписаний.
type BuildQueue interface {
	Enqueue(ctx context.Context, job BuildJob) error
	Receive(ctx context.Context) (BuildJob, BuildAckFunc, error)
}

// CreatorTask - автор в составе пакетного запуска.
type CreatorTask struct {
	CreatorID string          `yaml:"creator_id" json:"creator_id"`
	WeekStart time.Time       `yaml:"-" json:"week_start"`
	Override  *VolumeOverride `yaml:"override,omitempty" json:"override,omitempty"`
}

// CreatorOutcome - результат конвейера для одного автора.
type CreatorOutcome struct {
	CreatorID string
	Schedule  *Schedule
	Err       error
	Attempts  int
	Duration  time.Duration
}

// Succeeded сообщает, построено ли расписание.
func (o CreatorOutcome) Succeeded() bool {
	return o.Err == nil && o.Schedule != nil
}

// BatchRun - итог пакетного запуска.
type BatchRun struct {
	ID        string
	WeekStart time.Time
	Outcomes  []CreatorOutcome
	Succeeded int
	Failed    int
	StartedAt time.Time
	Duration  time.Duration
}

// SuccessRate возвращает долю успешных авторов в процентах.
func (r BatchRun) SuccessRate() float64 {
	total := r.Succeeded + r.Failed
	if total == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(total) * 100
}

// AvgPerCreator возвращает среднее время на автора.
func (r BatchRun) AvgPerCreator() time.Duration {
	total := r.Succeeded + r.Failed
	if total == 0 {
		return 0
	}
	return r.Duration / time.Duration(total)
}
