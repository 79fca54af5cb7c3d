package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Batch.MaxConcurrency != 10 || cfg.Batch.MaxAttempts != 3 {
		t.Fatalf("неожиданные значения по умолчанию: %+v", cfg.Batch)
	}
	if cfg.Batch.BackoffBase != 2*time.Second || cfg.Batch.BackoffMax != 30*time.Second {
		t.Fatalf("неожиданные задержки: %+v", cfg.Batch)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("LOCK_STORE", "sqlite")
	t.Setenv("BATCH_MAX_CONCURRENCY", "4")
	t.Setenv("BATCH_BACKOFF_BASE", "500ms")
	t.Setenv("TG_REPORT_CHAT_ID", "-100123")
	t.Setenv("RAND_SEED", "42")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Locks.Store != "sqlite" || cfg.Batch.MaxConcurrency != 4 || cfg.Batch.BackoffBase != 500*time.Millisecond {
		t.Fatalf("переменные окружения не применились: %+v", cfg)
	}
	if cfg.Telegram.ReportChatID != -100123 || cfg.RandSeed != 42 {
		t.Fatalf("неожиданные значения: %d %d", cfg.Telegram.ReportChatID, cfg.RandSeed)
	}
}

func TestParseRejectsBadNumber(t *testing.T) {
	t.Setenv("BATCH_MAX_ATTEMPTS", "many")
	if _, err := Parse(); err == nil {
		t.Fatalf("ожидали ошибку разбора")
	}
}
