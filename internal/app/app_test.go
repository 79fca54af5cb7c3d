package app

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/config"
)

func memoryConfig() config.AppConfig {
	var cfg config.AppConfig
	cfg.TZ = "UTC"
	cfg.Locks.Store = "memory"
	cfg.Engine.BaseURL = "http://engine.local"
	cfg.Queues.Backend = "redis"
	cfg.Batch.MaxConcurrency = 2
	return cfg
}

func TestNewWithoutExternalStores(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer a.Close()
	if a.Orchestrator == nil || a.Locks == nil || a.Cache == nil {
		t.Fatalf("конвейер собран не полностью: %+v", a)
	}
	if a.Creators != nil {
		t.Fatalf("без postgres список авторов недоступен")
	}
	if _, err := a.BuildQueue(); !domain.IsConfiguration(err) {
		t.Fatalf("redis-очередь без REDIS_ADDR: ожидали ошибку конфигурации, получили %v", err)
	}
}

func TestNewRejectsBadSettings(t *testing.T) {
	cases := map[string]func(*config.AppConfig){
		"пояс":      func(c *config.AppConfig) { c.TZ = "Mars/Olympus" },
		"хранилище": func(c *config.AppConfig) { c.Locks.Store = "etcd" },
		"движок":    func(c *config.AppConfig) { c.Engine.BaseURL = "" },
		"postgres":  func(c *config.AppConfig) { c.Locks.Store = "postgres" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := memoryConfig()
			mutate(&cfg)
			if _, err := New(context.Background(), cfg, zerolog.Nop()); !domain.IsConfiguration(err) {
				t.Fatalf("ожидали ошибку конфигурации, получили %v", err)
			}
		})
	}
}

func TestLockedRandConcurrent(t *testing.T) {
	r := newLockedRand(rand.New(rand.NewPCG(1, 2)))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if v := r.IntN(60); v < 0 || v >= 60 {
					t.Errorf("значение вне диапазона: %d", v)
					return
				}
			}
		}()
	}
	wg.Wait()
}
