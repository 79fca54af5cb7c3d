package domain

import (
	"fmt"
	"sort"
)

// Validate проверяет, что пакет не пуст и каждая подпись встречается в нём один раз.
func (b LockBatch) Validate() error {
	if len(b.Entries) == 0 {
		return ErrEmptyLockBatch
	}
	if b.ScheduleID == "" {
		return fmt.Errorf("пакет без расписания: %w", ErrEmptyLockBatch)
	}
	seen := make(map[int64]struct{}, len(b.Entries))
	for _, e := range b.Entries {
		if _, ok := seen[e.CaptionID]; ok {
			return fmt.Errorf("подпись %d повторяется в пакете %s", e.CaptionID, b.ScheduleID)
		}
		seen[e.CaptionID] = struct{}{}
	}
	return nil
}

// SortedEntries возвращает копию записей по возрастанию ID подписи. Хранилища
// захватывают строки в этом порядке, чтобы конкурирующие транзакции не
// блокировали друг друга крест-накрест.
func (b LockBatch) SortedEntries() []LockEntry {
	entries := make([]LockEntry, len(b.Entries))
	copy(entries, b.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].CaptionID < entries[j].CaptionID })
	return entries
}

// Conflict формирует ошибку отката для занятых подписей.
func (b LockBatch) Conflict(taken []int64) error {
	ids := make([]int64, len(taken))
	copy(ids, taken)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &LockConflictError{ScheduleID: b.ScheduleID, CaptionIDs: ids}
}

// LockFor превращает запись пакета в активное резервирование.
func (b LockBatch) LockFor(e LockEntry) CaptionLock {
	return CaptionLock{
		CaptionID:     e.CaptionID,
		ScheduleID:    b.ScheduleID,
		CreatorID:     b.CreatorID,
		ScheduledDate: e.Date,
		ScheduledHour: e.Hour,
		LockedAt:      b.LockedAt,
		Active:        true,
	}
}
