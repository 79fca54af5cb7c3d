package lockstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
)

// Все ключи содержат общий хэш-тег, чтобы скрипты работали и в кластере.
const (
	redisLockPrefix     = "caption_lock:{locks}:"
	redisSchedulePrefix = "caption_lock_schedule:{locks}:"
)

// Последний ключ - множество резервов расписания. Сначала проверяются все
// подписи, запись происходит только если ни одна не занята.
var commitBatchScript = redis.NewScript(`
local last = #KEYS
local taken = {}
for i = 1, last - 1 do
	if redis.call("EXISTS", KEYS[i]) == 1 then
		table.insert(taken, i)
	end
end
if #taken > 0 then
	return taken
end
for i = 1, last - 1 do
	redis.call("SET", KEYS[i], ARGV[i])
	redis.call("SADD", KEYS[last], KEYS[i])
end
return taken
`)

var releaseScript = redis.NewScript(`
local members = redis.call("SMEMBERS", KEYS[1])
local released = 0
for _, key in ipairs(members) do
	local raw = redis.call("GET", key)
	if raw then
		local lock = cjson.decode(raw)
		if lock["schedule_id"] == ARGV[1] then
			redis.call("DEL", key)
			released = released + 1
		end
	end
end
redis.call("DEL", KEYS[1])
return released
`)

// Redis хранит активные резервирования как ключи подписей. Снятые
// резервирования удаляются, истории в Redis нет.
type Redis struct {
	client *redis.Client
}

// NewRedis создаёт хранилище поверх клиента go-redis.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func captionKey(id int64) string {
	return redisLockPrefix + strconv.FormatInt(id, 10)
}

// CommitBatch атомарно фиксирует пакет Lua-скриптом.
func (r *Redis) CommitBatch(ctx context.Context, batch domain.LockBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	entries := batch.SortedEntries()
	keys := make([]string, 0, len(entries)+1)
	args := make([]any, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(batch.LockFor(e))
		if err != nil {
			return fmt.Errorf("сериализация резерва %d: %w", e.CaptionID, err)
		}
		keys = append(keys, captionKey(e.CaptionID))
		args = append(args, payload)
	}
	keys = append(keys, redisSchedulePrefix+batch.ScheduleID)

	start := time.Now()
	taken, err := commitBatchScript.Run(ctx, r.client, keys, args...).Int64Slice()
	metrics.ObserveNetworkRequest("redis", "commit_batch", "caption_locks", start, err)
	if err != nil {
		return domain.Transient("redis commit_batch", err)
	}
	if len(taken) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(taken))
	for _, idx := range taken {
		ids = append(ids, entries[idx-1].CaptionID)
	}
	return batch.Conflict(ids)
}

// Release удаляет резервирования расписания.
func (r *Redis) Release(ctx context.Context, scheduleID string) (int, error) {
	start := time.Now()
	n, err := releaseScript.Run(ctx, r.client, []string{redisSchedulePrefix + scheduleID}, scheduleID).Int()
	metrics.ObserveNetworkRequest("redis", "release", "caption_locks", start, err)
	if err != nil {
		return 0, domain.Transient("redis release", err)
	}
	return n, nil
}

// ActiveLocks возвращает активное резервирование подписи.
func (r *Redis) ActiveLocks(ctx context.Context, captionID int64) ([]domain.CaptionLock, error) {
	start := time.Now()
	raw, err := r.client.Get(ctx, captionKey(captionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "active_locks", "caption_locks", start, nil)
		return nil, nil
	}
	metrics.ObserveNetworkRequest("redis", "active_locks", "caption_locks", start, err)
	if err != nil {
		return nil, domain.Transient("redis active_locks", err)
	}
	var lock domain.CaptionLock
	if err := json.Unmarshal(raw, &lock); err != nil {
		return nil, fmt.Errorf("разбор резерва %d: %w", captionID, err)
	}
	return []domain.CaptionLock{lock}, nil
}
