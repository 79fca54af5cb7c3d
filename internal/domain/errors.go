package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoCandidates возвращается, если пул подписей для автора пуст.
var ErrNoCandidates = errors.New("no caption candidates")

// ErrCreatorNotFound возвращается, если аналитика не знает автора.
var ErrCreatorNotFound = errors.New("creator not found")

// ErrLockConflict сигнализирует, что часть подписей уже зарезервирована.
var ErrLockConflict = errors.New("caption lock conflict")

// ErrEmptyLockBatch возвращается при попытке зафиксировать пустой пакет.
var ErrEmptyLockBatch = errors.New("empty lock batch")

// ErrScheduleExists возвращается, если расписание с таким ID уже сохранено.
// ID имеет секундную точность, поэтому два построения одного автора в одну
// секунду получают одинаковый ID.
var ErrScheduleExists = errors.New("schedule already exists")

// LockConflictError описывает отклонённый пакет резервирования.
type LockConflictError struct {
	ScheduleID string
	CaptionIDs []int64
}

func (e *LockConflictError) Error() string {
	ids := make([]string, 0, len(e.CaptionIDs))
	for _, id := range e.CaptionIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("atomic rollback: schedule %s: captions already locked: %s", e.ScheduleID, strings.Join(ids, ","))
}

// Is позволяет сравнивать ошибку с ErrLockConflict через errors.Is.
func (e *LockConflictError) Is(target error) bool {
	return target == ErrLockConflict
}

// TransientError оборачивает временный сбой внешнего сервиса.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient оборачивает err во временную ошибку операции op.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient сообщает, можно ли повторить операцию.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ConfigurationError описывает некорректную настройку окружения.
type ConfigurationError struct {
	Key   string
	Value string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: unsupported %s=%q", e.Key, e.Value)
}

// IsConfiguration сообщает, вызвана ли ошибка настройкой.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsRetryable решает, имеет ли смысл повторять конвейер автора.
// Пустой пул и ошибки настройки не повторяются; конфликт блокировок
// повторяется, так как повтор заново выбирает подписи. Повтор после
// совпадения ID получает новый ID.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNoCandidates), IsConfiguration(err):
		return false
	case errors.Is(err, ErrLockConflict), errors.Is(err, ErrScheduleExists), IsTransient(err):
		return true
	default:
		return false
	}
}
