package cache

import (
	"sync"
	"time"

	"schedule-builder/internal/domain"
)

// Memory - локальная замена RedisCache для одного процесса.
type Memory struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemory создаёт кэш в памяти.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]time.Time), now: time.Now}
}

// Once выполняет fn, если ключ не занят или истёк.
func (m *Memory) Once(key string, ttl time.Duration, fn func() error) error {
	m.mu.Lock()
	if expires, ok := m.keys[key]; ok && m.now().Before(expires) {
		m.mu.Unlock()
		return nil
	}
	m.keys[key] = m.now().Add(ttl)
	m.mu.Unlock()

	if err := fn(); err != nil {
		m.mu.Lock()
		delete(m.keys, key)
		m.mu.Unlock()
		return err
	}
	return nil
}

var _ domain.Cache = (*Memory)(nil)
