package lockstore

import (
	"strings"

	"github.com/redis/go-redis/v9"

	"schedule-builder/internal/domain"
)

// Backends описывает уже открытые подключения, из которых выбирается хранилище.
type Backends struct {
	Postgres   domain.LockStore
	Redis      *redis.Client
	SQLitePath string
}

// Open выбирает хранилище резервов по имени: postgres, redis, sqlite или memory.
// Возвращаемая функция закрывает то, что было открыто здесь.
func Open(kind string, b Backends) (domain.LockStore, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "postgres", "":
		if b.Postgres == nil {
			return nil, noop, &domain.ConfigurationError{Key: "PG_DSN", Value: ""}
		}
		return b.Postgres, noop, nil
	case "redis":
		if b.Redis == nil {
			return nil, noop, &domain.ConfigurationError{Key: "REDIS_ADDR", Value: ""}
		}
		return NewRedis(b.Redis), noop, nil
	case "sqlite":
		store, err := OpenSQLite(b.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case "memory":
		return NewMemory(), noop, nil
	default:
		return nil, noop, &domain.ConfigurationError{Key: "LOCK_STORE", Value: kind}
	}
}
