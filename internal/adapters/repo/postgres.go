package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Postgres реализует репозитории расписаний, авторов и резервов на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ScheduleRepo = (*Postgres)(nil)
	_ domain.CreatorRepo  = (*Postgres)(nil)
	_ domain.LockStore    = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// retryable превращает сбои сериализации, дедлоки и обрывы соединения во временные ошибки.
func retryable(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return domain.Transient(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return domain.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// EnsureSchema создаёт таблицы, если их нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, schemaSQL)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "schema", start, err)
	if err != nil {
		return fmt.Errorf("создание схемы: %w", err)
	}
	return nil
}

// SaveSchedule сохраняет расписание и его сообщения одной транзакцией.
// Повторный ID не перезаписывается: возвращается domain.ErrScheduleExists.
func (p *Postgres) SaveSchedule(ctx context.Context, schedule domain.Schedule) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "schedules", start, err)
	if err != nil {
		return retryable("начало транзакции", err)
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	tag, err := tx.Exec(ctx, `
INSERT INTO schedules (schedule_id, creator_id, saturation_zone, account_tier, message_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (schedule_id) DO NOTHING
`, schedule.ID, schedule.CreatorID, string(schedule.Zone), string(schedule.AccountTier), len(schedule.Messages), schedule.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "schedules_insert", "schedules", start, err)
	if err != nil {
		return retryable("сохранение расписания", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("расписание %s: %w", schedule.ID, domain.ErrScheduleExists)
	}

	rows := make([][]any, 0, len(schedule.Messages))
	for _, m := range schedule.Messages {
		rows = append(rows, []any{schedule.ID, m.SendAt, string(m.Kind), m.CaptionID, m.CaptionText, m.PriceTier, m.Category, m.HasUrgency, m.Score})
	}
	start = time.Now()
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"scheduled_messages"},
		[]string{"schedule_id", "scheduled_send_time", "message_type", "caption_id", "caption_text", "price_tier", "content_category", "has_urgency", "performance_score"},
		pgx.CopyFromRows(rows))
	metrics.ObserveNetworkRequest("postgres", "scheduled_messages_copy", "scheduled_messages", start, err)
	if err != nil {
		return retryable("сохранение сообщений", err)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit_tx", "schedules", start, err)
	if err != nil {
		return retryable("фиксация расписания", err)
	}
	return nil
}

// LogExport пишет строку журнала построения.
func (p *Postgres) LogExport(ctx context.Context, entry domain.ExportLogEntry) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO schedule_export_log (schedule_id, creator_id, message_count, duration_ms, error, logged_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, entry.ScheduleID, entry.CreatorID, entry.MessageCount, entry.Duration.Milliseconds(), entry.Error, entry.LoggedAt)
	metrics.ObserveNetworkRequest("postgres", "export_log_insert", "schedule_export_log", start, err)
	return err
}

// ListActiveCreators возвращает активных авторов по алфавиту.
func (p *Postgres) ListActiveCreators(ctx context.Context) ([]string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT creator_id FROM creators WHERE is_active ORDER BY creator_id`)
	metrics.ObserveNetworkRequest("postgres", "creators_list_active", "creators", start, err)
	if err != nil {
		return nil, retryable("список авторов", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, retryable("список авторов", err)
	}
	return ids, nil
}

// CommitBatch вставляет резервы в порядке ID подписей. Если хоть одна
// подпись уже занята активным резервом, транзакция откатывается целиком.
func (p *Postgres) CommitBatch(ctx context.Context, batch domain.LockBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "caption_locks", start, err)
	if err != nil {
		return retryable("начало транзакции", err)
	}
	defer tx.Rollback(ctx)

	var taken []int64
	for _, e := range batch.SortedEntries() {
		start = time.Now()
		tag, err := tx.Exec(ctx, `
INSERT INTO caption_locks (caption_id, schedule_id, creator_id, scheduled_date, scheduled_hour, locked_at, is_active)
VALUES ($1,$2,$3,$4,$5,$6,TRUE)
ON CONFLICT DO NOTHING
`, e.CaptionID, batch.ScheduleID, batch.CreatorID, e.Date, e.Hour, batch.LockedAt)
		metrics.ObserveNetworkRequest("postgres", "caption_locks_insert", "caption_locks", start, err)
		if err != nil {
			return retryable(fmt.Sprintf("резерв подписи %d", e.CaptionID), err)
		}
		if tag.RowsAffected() == 0 {
			taken = append(taken, e.CaptionID)
		}
	}
	if len(taken) > 0 {
		return batch.Conflict(taken)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit_tx", "caption_locks", start, err)
	if err != nil {
		return retryable("фиксация резервов", err)
	}
	return nil
}

// Release снимает активные резервы расписания и возвращает их число.
func (p *Postgres) Release(ctx context.Context, scheduleID string) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE caption_locks SET is_active=FALSE, released_at=now()
WHERE schedule_id=$1 AND is_active
`, scheduleID)
	metrics.ObserveNetworkRequest("postgres", "caption_locks_release", "caption_locks", start, err)
	if err != nil {
		return 0, retryable("снятие резервов", err)
	}
	return int(tag.RowsAffected()), nil
}

// ActiveLocks возвращает активные резервы подписи.
func (p *Postgres) ActiveLocks(ctx context.Context, captionID int64) ([]domain.CaptionLock, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT caption_id, schedule_id, creator_id, scheduled_date, scheduled_hour, locked_at, is_active
FROM caption_locks WHERE caption_id=$1 AND is_active
`, captionID)
	metrics.ObserveNetworkRequest("postgres", "caption_locks_active", "caption_locks", start, err)
	if err != nil {
		return nil, retryable("активные резервы", err)
	}
	defer rows.Close()

	var locks []domain.CaptionLock
	for rows.Next() {
		var (
			lock domain.CaptionLock
			hour int16
		)
		if err := rows.Scan(&lock.CaptionID, &lock.ScheduleID, &lock.CreatorID, &lock.ScheduledDate, &hour, &lock.LockedAt, &lock.Active); err != nil {
			return nil, err
		}
		lock.ScheduledHour = int(hour)
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}
