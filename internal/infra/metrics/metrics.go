package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ScheduleBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_build_seconds",
		Help:    "Время построения недельного расписания",
		Buckets: prometheus.DefBuckets,
	})
	ScheduleBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_builds_total",
		Help: "Количество построенных расписаний",
	}, []string{"status"})
	ScheduledMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduled_messages_total",
		Help: "Количество запланированных сообщений",
	}, []string{"kind"})

	LockBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "caption_lock_batch_size",
		Help:    "Размер пакета резервирования подписей",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 50, 100},
	})
	LockConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "caption_lock_conflicts_total",
		Help: "Откаты пакетов резервирования из-за конфликтов",
	})

	BatchCreatorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_creators_total",
		Help: "Результаты обработки авторов в пакетном запуске",
	}, []string{"status"})
	BatchRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batch_retries_total",
		Help: "Повторные попытки обработки автора",
	})
	BatchRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batch_run_seconds",
		Help:    "Длительность пакетного запуска",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
	})
	BatchInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "batch_in_flight",
		Help: "Авторы, обрабатываемые прямо сейчас",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ScheduleBuildSeconds,
		ScheduleBuildsTotal,
		ScheduledMessagesTotal,
		LockBatchSize,
		LockConflictsTotal,
		BatchCreatorsTotal,
		BatchRetriesTotal,
		BatchRunSeconds,
		BatchInFlight,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := statusOf(err)
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveScheduleBuild фиксирует длительность и итог построения расписания.
func ObserveScheduleBuild(start time.Time, err error) {
	ScheduleBuildSeconds.Observe(time.Since(start).Seconds())
	ScheduleBuildsTotal.WithLabelValues(statusOf(err)).Inc()
}

// AddScheduledMessages увеличивает счётчик сообщений указанного вида.
func AddScheduledMessages(kind string, n int) {
	if n <= 0 {
		return
	}
	ScheduledMessagesTotal.WithLabelValues(kind).Add(float64(n))
}

// ObserveLockBatch фиксирует размер пакета и конфликт, если он был.
func ObserveLockBatch(size int, conflict bool) {
	LockBatchSize.Observe(float64(size))
	if conflict {
		LockConflictsTotal.Inc()
	}
}

// ObserveBatchCreator фиксирует итог обработки одного автора.
func ObserveBatchCreator(succeeded bool, attempts int) {
	status := "success"
	if !succeeded {
		status = "error"
	}
	BatchCreatorsTotal.WithLabelValues(status).Inc()
	if attempts > 1 {
		BatchRetriesTotal.Add(float64(attempts - 1))
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
