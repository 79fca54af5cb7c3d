package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"schedule-builder/internal/domain"
)

func TestJobCodec(t *testing.T) {
	job := domain.BuildJob{
		ID:        "job-1",
		CreatorID: "alice",
		WeekStart: time.Date(2024, time.November, 4, 0, 0, 0, 0, time.UTC),
		Override:  &domain.VolumeOverride{PPV: 10, Bump: 3, Zone: domain.SaturationYellow},
		Cause:     domain.BuildCauseManual,
	}
	raw, err := encodeJob(job)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, err := decodeJob(raw)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.CreatorID != "alice" || !got.WeekStart.Equal(job.WeekStart) || got.Override == nil || got.Override.Zone != domain.SaturationYellow {
		t.Fatalf("неожиданная задача: %+v", got)
	}
	if _, err := decodeJob([]byte(`{"job_id":"x"}`)); err == nil {
		t.Fatalf("ожидали ошибку для задачи без автора")
	}
	if _, err := decodeJob([]byte(`not json`)); err == nil {
		t.Fatalf("ожидали ошибку разбора")
	}
}

func TestRedisBuildQueueRequeuesOnFailure(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR не задан")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	key := "build_jobs_test_" + time.Now().Format("150405.000000")
	defer client.Del(context.Background(), key)

	q := NewRedisBuildQueue(client, key)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Enqueue(ctx, domain.BuildJob{ID: "1", CreatorID: "alice"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	job, ack, err := q.Receive(ctx)
	if err != nil || job.CreatorID != "alice" {
		t.Fatalf("ожидали задачу alice, получили %+v (%v)", job, err)
	}
	if err := ack(false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	job, ack, err = q.Receive(ctx)
	if err != nil || job.ID != "1" {
		t.Fatalf("ожидали повторную доставку, получили %+v (%v)", job, err)
	}
	if err := ack(true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}
