package lockstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
)

const sqliteDateLayout = "2006-01-02"

// SQLite хранит резервирования в файле SQLite. Единственное соединение
// сериализует транзакции внутри процесса, а частичный уникальный индекс
// не даёт двум активным записям одной подписи.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite открывает базу по пути и создаёт таблицы.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("открытие sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("создание таблиц sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

func createSQLiteTables(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS caption_locks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	caption_id INTEGER NOT NULL,
	schedule_id TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	scheduled_date TEXT NOT NULL,
	scheduled_hour INTEGER NOT NULL,
	locked_at TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_caption_locks_active ON caption_locks(caption_id) WHERE is_active = 1;
CREATE INDEX IF NOT EXISTS idx_caption_locks_schedule ON caption_locks(schedule_id);
`)
	return err
}

// Close закрывает базу.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CommitBatch вставляет все записи в одной транзакции. Если хотя бы одна
// вставка проигнорирована из-за активного резерва, транзакция откатывается.
func (s *SQLite) CommitBatch(ctx context.Context, batch domain.LockBatch) (err error) {
	if err := batch.Validate(); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		var conflictErr *domain.LockConflictError
		if errors.As(err, &conflictErr) {
			metrics.ObserveNetworkRequest("sqlite", "commit_batch", "caption_locks", start, nil)
			return
		}
		metrics.ObserveNetworkRequest("sqlite", "commit_batch", "caption_locks", start, err)
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO caption_locks (caption_id, schedule_id, creator_id, scheduled_date, scheduled_hour, locked_at, is_active)
VALUES (?, ?, ?, ?, ?, ?, 1)`)
	if err != nil {
		return fmt.Errorf("подготовка вставки: %w", err)
	}
	defer stmt.Close()

	lockedAt := batch.LockedAt.UTC().Format(time.RFC3339Nano)
	var taken []int64
	for _, e := range batch.SortedEntries() {
		res, err := stmt.ExecContext(ctx, e.CaptionID, batch.ScheduleID, batch.CreatorID, e.Date.Format(sqliteDateLayout), e.Hour, lockedAt)
		if err != nil {
			return fmt.Errorf("вставка резерва %d: %w", e.CaptionID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("вставка резерва %d: %w", e.CaptionID, err)
		}
		if n == 0 {
			taken = append(taken, e.CaptionID)
		}
	}
	if len(taken) > 0 {
		return batch.Conflict(taken)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}
	return nil
}

// Release снимает активные резервирования расписания.
func (s *SQLite) Release(ctx context.Context, scheduleID string) (int, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE caption_locks SET is_active = 0 WHERE schedule_id = ? AND is_active = 1`, scheduleID)
	metrics.ObserveNetworkRequest("sqlite", "release", "caption_locks", start, err)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ActiveLocks возвращает активные резервирования подписи.
func (s *SQLite) ActiveLocks(ctx context.Context, captionID int64) ([]domain.CaptionLock, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT caption_id, schedule_id, creator_id, scheduled_date, scheduled_hour, locked_at
FROM caption_locks WHERE caption_id = ? AND is_active = 1`, captionID)
	metrics.ObserveNetworkRequest("sqlite", "active_locks", "caption_locks", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []domain.CaptionLock
	for rows.Next() {
		var (
			lock     domain.CaptionLock
			date     string
			lockedAt string
		)
		if err := rows.Scan(&lock.CaptionID, &lock.ScheduleID, &lock.CreatorID, &date, &lock.ScheduledHour, &lockedAt); err != nil {
			return nil, err
		}
		if lock.ScheduledDate, err = time.Parse(sqliteDateLayout, date); err != nil {
			return nil, fmt.Errorf("дата резерва: %w", err)
		}
		if lock.LockedAt, err = time.Parse(time.RFC3339Nano, lockedAt); err != nil {
			return nil, fmt.Errorf("время резерва: %w", err)
		}
		lock.Active = true
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}
