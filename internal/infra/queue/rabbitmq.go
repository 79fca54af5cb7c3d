package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
)

// RabbitBuildQueue реализует очередь задач через AMQP.
type RabbitBuildQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	consumeOnce sync.Once
	deliveries  <-chan amqp.Delivery
	consumeErr  error
}

// NewRabbitBuildQueue подключается к брокеру и объявляет устойчивую очередь.
// prefetch ограничивает число неподтверждённых задач у одного потребителя.
func NewRabbitBuildQueue(amqpURL, queue string, prefetch int) (*RabbitBuildQueue, error) {
	if amqpURL == "" {
		return nil, &domain.ConfigurationError{Key: "RABBITMQ_URL", Value: amqpURL}
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("подключение к rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("открытие канала: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("объявление очереди %s: %w", queue, err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("qos: %w", err)
		}
	}
	return &RabbitBuildQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу как persistent-сообщение.
func (q *RabbitBuildQueue) Enqueue(ctx context.Context, job domain.BuildJob) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.RequestedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive ждёт следующую задачу. Подтверждение с success=false возвращает
// сообщение в очередь.
func (q *RabbitBuildQueue) Receive(ctx context.Context) (domain.BuildJob, domain.BuildAckFunc, error) {
	q.consumeOnce.Do(func() {
		q.deliveries, q.consumeErr = q.ch.Consume(q.queue, "", false, false, false, false, nil)
	})
	if q.consumeErr != nil {
		return domain.BuildJob{}, nil, fmt.Errorf("consume %s: %w", q.queue, q.consumeErr)
	}
	for {
		select {
		case <-ctx.Done():
			return domain.BuildJob{}, nil, ctx.Err()
		case msg, ok := <-q.deliveries:
			if !ok {
				return domain.BuildJob{}, nil, errors.New("rabbitmq: канал доставки закрыт")
			}
			job, err := decodeJob(msg.Body)
			if err != nil {
				_ = msg.Nack(false, false)
				return domain.BuildJob{}, nil, err
			}
			ack := func(success bool) error {
				if success {
					return msg.Ack(false)
				}
				return msg.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

// Close закрывает канал и соединение.
func (q *RabbitBuildQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ domain.BuildQueue = (*RabbitBuildQueue)(nil)
