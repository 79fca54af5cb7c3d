package lockstore

import (
	"context"
	"sync"

	"schedule-builder/internal/domain"
)

// Memory хранит резервирования в памяти процесса. Подходит для тестов и
// одиночного запуска без базы.
type Memory struct {
	mu     sync.Mutex
	active map[int64]domain.CaptionLock
	byID   map[string][]int64
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		active: make(map[int64]domain.CaptionLock),
		byID:   make(map[string][]int64),
	}
}

// CommitBatch фиксирует пакет целиком под одной блокировкой.
func (m *Memory) CommitBatch(ctx context.Context, batch domain.LockBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var taken []int64
	for _, e := range batch.Entries {
		if _, ok := m.active[e.CaptionID]; ok {
			taken = append(taken, e.CaptionID)
		}
	}
	if len(taken) > 0 {
		return batch.Conflict(taken)
	}
	for _, e := range batch.Entries {
		m.active[e.CaptionID] = batch.LockFor(e)
		m.byID[batch.ScheduleID] = append(m.byID[batch.ScheduleID], e.CaptionID)
	}
	return nil
}

// Release снимает резервирования расписания.
func (m *Memory) Release(ctx context.Context, scheduleID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	released := 0
	for _, id := range m.byID[scheduleID] {
		if lock, ok := m.active[id]; ok && lock.ScheduleID == scheduleID {
			delete(m.active, id)
			released++
		}
	}
	delete(m.byID, scheduleID)
	return released, nil
}

// ActiveLocks возвращает активное резервирование подписи, если оно есть.
func (m *Memory) ActiveLocks(ctx context.Context, captionID int64) ([]domain.CaptionLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lock, ok := m.active[captionID]; ok {
		return []domain.CaptionLock{lock}, nil
	}
	return nil, nil
}
