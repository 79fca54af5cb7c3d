package domain

import (
	"context"
	"time"
)

// AnalyticsService возвращает аналитический отчёт по автору.
type AnalyticsService interface {
	AnalyzeCreator(ctx context.Context, creatorID string) (AnalyticsReport, error)
}

// CaptionQuery описывает запрос к сервису выбора подписей.
type CaptionQuery struct {
	CreatorID  string            `json:"creator_id"`
	Segment    BehavioralSegment `json:"behavioral_segment"`
	NumBudget  int               `json:"num_budget"`
	NumMid     int               `json:"num_mid"`
	NumPremium int               `json:"num_premium"`
	NumBump    int               `json:"num_bump"`
}

// CaptionSelector выбирает подписи-кандидаты. Ранжирование - забота сервиса.
type CaptionSelector interface {
	SelectCaptions(ctx context.Context, query CaptionQuery) ([]Caption, error)
}

// LockStore хранит резервирования подписей.
type LockStore interface {
	// CommitBatch фиксирует все записи пакета одной транзакцией. Если хотя бы одна
	// подпись уже активно зарезервирована, ничего не сохраняется и возвращается
	// *LockConflictError.
	CommitBatch(ctx context.Context, batch LockBatch) error
	// Release снимает активные резервирования расписания и возвращает их число.
	Release(ctx context.Context, scheduleID string) (int, error)
	// ActiveLocks возвращает активные резервирования подписи.
	ActiveLocks(ctx context.Context, captionID int64) ([]CaptionLock, error)
}

// ExportLogEntry - запись журнала построения расписания.
type ExportLogEntry struct {
	ScheduleID   string
	CreatorID    string
	MessageCount int
	Duration     time.Duration
	Error        string
	LoggedAt     time.Time
}

// ScheduleRepo сохраняет готовые расписания.
type ScheduleRepo interface {
	SaveSchedule(ctx context.Context, schedule Schedule) error
	LogExport(ctx context.Context, entry ExportLogEntry) error
}

// CreatorRepo отдаёт список активных авторов.
type CreatorRepo interface {
	ListActiveCreators(ctx context.Context) ([]string, error)
}

// BatchNotifier отправляет сводку по пакетному запуску.
type BatchNotifier interface {
	NotifyBatch(ctx context.Context, run BatchRun) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
}
