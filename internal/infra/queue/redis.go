package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
)

// RedisBuildQueue реализует очередь задач на базе Redis lists.
type RedisBuildQueue struct {
	client *redis.Client
	key    string
}

// NewRedisBuildQueue создаёт очередь по указанному ключу.
func NewRedisBuildQueue(client *redis.Client, key string) *RedisBuildQueue {
	return &RedisBuildQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisBuildQueue) Enqueue(ctx context.Context, job domain.BuildJob) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. При неуспехе подтверждение возвращает
// задачу в хвост очереди.
func (q *RedisBuildQueue) Receive(ctx context.Context) (domain.BuildJob, domain.BuildAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.BuildJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.BuildJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.BuildJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.BuildJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		job, err := decodeJob([]byte(raw))
		if err != nil {
			return domain.BuildJob{}, nil, err
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, raw).Err()
		}
		return job, ack, nil
	}
}

func encodeJob(job domain.BuildJob) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return payload, nil
}

func decodeJob(raw []byte) (domain.BuildJob, error) {
	var job domain.BuildJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return domain.BuildJob{}, fmt.Errorf("decode job: %w", err)
	}
	if job.CreatorID == "" {
		return domain.BuildJob{}, errors.New("decode job: empty creator_id")
	}
	return job, nil
}

var _ domain.BuildQueue = (*RedisBuildQueue)(nil)
