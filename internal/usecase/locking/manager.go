package locking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
)

// Manager резервирует PPV-подписи расписания одним пакетом.
type Manager struct {
	store domain.LockStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewManager создаёт менеджер резервирований.
func NewManager(store domain.LockStore, logger zerolog.Logger) *Manager {
	return &Manager{store: store, now: time.Now, log: logger}
}

// EntriesFor собирает записи резервирования из PPV-сообщений расписания.
// Каждая подпись попадает в пакет один раз, с датой и часом первого появления.
func EntriesFor(schedule domain.Schedule) []domain.LockEntry {
	seen := make(map[int64]struct{})
	var entries []domain.LockEntry
	for _, m := range schedule.Messages {
		if m.Kind != domain.MessageKindPPV {
			continue
		}
		if _, ok := seen[m.CaptionID]; ok {
			continue
		}
		seen[m.CaptionID] = struct{}{}
		entries = append(entries, domain.LockEntry{
			CaptionID: m.CaptionID,
			Date:      time.Date(m.SendAt.Year(), m.SendAt.Month(), m.SendAt.Day(), 0, 0, 0, 0, time.UTC),
			Hour:      m.SendAt.Hour(),
		})
	}
	return entries
}

// LockSchedule резервирует PPV-подписи. Расписание без PPV пропускается.
// При конфликте не сохраняется ни одна запись.
func (m *Manager) LockSchedule(ctx context.Context, schedule domain.Schedule) error {
	entries := EntriesFor(schedule)
	if len(entries) == 0 {
		m.log.Warn().Str("schedule", schedule.ID).Msg("locking: в расписании нет PPV, резервировать нечего")
		return nil
	}
	batch := domain.LockBatch{
		ScheduleID: schedule.ID,
		CreatorID:  schedule.CreatorID,
		Entries:    entries,
		LockedAt:   m.now().UTC(),
	}
	err := m.store.CommitBatch(ctx, batch)
	var conflict *domain.LockConflictError
	isConflict := errors.As(err, &conflict)
	metrics.ObserveLockBatch(len(entries), isConflict)
	switch {
	case isConflict:
		m.log.Warn().
			Str("schedule", schedule.ID).
			Str("creator", schedule.CreatorID).
			Str("captions", joinIDs(conflict.CaptionIDs)).
			Msg("locking: ATOMIC ROLLBACK, подписи уже зарезервированы")
		return err
	case err != nil:
		return fmt.Errorf("фиксация пакета %s: %w", schedule.ID, err)
	}
	m.log.Info().Str("schedule", schedule.ID).Int("captions", len(entries)).Msg("locking: подписи зарезервированы")
	return nil
}

// Release снимает резервирования расписания.
func (m *Manager) Release(ctx context.Context, scheduleID string) (int, error) {
	n, err := m.store.Release(ctx, scheduleID)
	if err != nil {
		return 0, fmt.Errorf("снятие резерва %s: %w", scheduleID, err)
	}
	m.log.Info().Str("schedule", scheduleID).Int("released", n).Msg("locking: резерв снят")
	return n, nil
}

// ActiveLocks возвращает активные резервирования подписи.
func (m *Manager) ActiveLocks(ctx context.Context, captionID int64) ([]domain.CaptionLock, error) {
	locks, err := m.store.ActiveLocks(ctx, captionID)
	if err != nil {
		return nil, fmt.Errorf("активные резервы подписи %d: %w", captionID, err)
	}
	return locks, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprint(id))
	}
	return strings.Join(parts, ",")
}
