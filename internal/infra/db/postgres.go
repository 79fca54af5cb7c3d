package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"schedule-builder/internal/infra/metrics"
)

// Параллельные транзакции резервирования держат по соединению на автора,
// поэтому пул берётся с запасом над числом воркеров.
const defaultMaxConns = 16

// Connect создаёт пул подключений к Postgres и проверяет его.
func Connect(dsn string) (*pgxpool.Pool, error) {
	return ConnectWithLimit(dsn, defaultMaxConns)
}

// ConnectWithLimit создаёт пул с заданным числом соединений.
func ConnectWithLimit(dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("разбор PG_DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	err = pool.Ping(ctx)
	metrics.ObserveNetworkRequest("postgres", "ping", "pool", start, err)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("проверка соединения: %w", err)
	}
	return pool, nil
}
