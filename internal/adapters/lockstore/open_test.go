package lockstore

import (
	"errors"
	"path/filepath"
	"testing"

	"schedule-builder/internal/domain"
)

func TestOpen(t *testing.T) {
	memory := NewMemory()
	cases := []struct {
		name    string
		kind    string
		b       Backends
		wantKey string
	}{
		{name: "memory", kind: "memory"},
		{name: "postgres", kind: "postgres", b: Backends{Postgres: memory}},
		{name: "postgres без пула", kind: "postgres", wantKey: "PG_DSN"},
		{name: "redis без клиента", kind: "Redis", wantKey: "REDIS_ADDR"},
		{name: "sqlite", kind: "sqlite", b: Backends{SQLitePath: filepath.Join(t.TempDir(), "l.db")}},
		{name: "неизвестное", kind: "etcd", wantKey: "LOCK_STORE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, closeFn, err := Open(tc.kind, tc.b)
			defer closeFn()
			if tc.wantKey != "" {
				var cfgErr *domain.ConfigurationError
				if !errors.As(err, &cfgErr) || cfgErr.Key != tc.wantKey {
					t.Fatalf("ожидали ошибку конфигурации %s, получили %v", tc.wantKey, err)
				}
				return
			}
			if err != nil || store == nil {
				t.Fatalf("ожидали хранилище, получили %v", err)
			}
		})
	}
}
