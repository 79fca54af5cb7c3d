package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"schedule-builder/internal/domain"
	httpinfra "schedule-builder/internal/infra/http"
	"schedule-builder/internal/usecase/batch"
	"schedule-builder/internal/usecase/schedule"
)

const weekLayout = "2006-01-02"

// Runner запускает пакет авторов и строит расписание одного автора.
type Runner interface {
	Run(ctx context.Context, tasks []domain.CreatorTask) domain.BatchRun
	Process(ctx context.Context, task domain.CreatorTask) domain.CreatorOutcome
}

// Locks даёт доступ к резервам подписей.
type Locks interface {
	ActiveLocks(ctx context.Context, captionID int64) ([]domain.CaptionLock, error)
	Release(ctx context.Context, scheduleID string) (int, error)
}

// Handler обслуживает HTTP API построения расписаний.
type Handler struct {
	runner   Runner
	locks    Locks
	queue    domain.BuildQueue
	creators domain.CreatorRepo
	location *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

// New создаёт обработчик. queue и creators могут быть nil.
func New(runner Runner, locks Locks, queue domain.BuildQueue, creators domain.CreatorRepo, location *time.Location, logger zerolog.Logger) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		runner:   runner,
		locks:    locks,
		queue:    queue,
		creators: creators,
		location: location,
		now:      time.Now,
		log:      logger,
	}
}

// Register подключает маршруты к роутеру.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/batches", h.runBatch)
		r.Post("/creators/{creatorID}/schedule", h.buildOne)
		r.Post("/jobs", h.enqueue)
		r.Get("/captions/{captionID}/locks", h.captionLocks)
		r.Delete("/schedules/{scheduleID}/locks", h.releaseLocks)
	})
}

type batchRequest struct {
	WeekStart string               `json:"week_start"`
	Creators  []domain.CreatorTask `json:"creators"`
}

type outcomeView struct {
	CreatorID    string `json:"creator_id"`
	ScheduleID   string `json:"schedule_id,omitempty"`
	MessageCount int    `json:"message_count"`
	Attempts     int    `json:"attempts"`
	DurationMS   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
	Zone         string `json:"saturation_zone,omitempty"`
}

type batchView struct {
	RunID         string        `json:"run_id"`
	WeekStart     string        `json:"week_start"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	SuccessRate   float64       `json:"success_rate"`
	DurationMS    int64         `json:"duration_ms"`
	AvgPerCreator int64         `json:"avg_per_creator_ms"`
	Outcomes      []outcomeView `json:"outcomes"`
}

func (h *Handler) weekStart(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return batch.NextWeekStart(h.now(), h.location), nil
	}
	week, err := time.Parse(weekLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("week_start: ожидали YYYY-MM-DD: %w", err)
	}
	return week, nil
}

func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	week, err := h.weekStart(req.WeekStart)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}

	tasks := req.Creators
	if len(tasks) == 0 {
		if h.creators == nil {
			httpinfra.WriteError(w, http.StatusBadRequest, errors.New("creators: список авторов пуст"))
			return
		}
		ids, err := h.creators.ListActiveCreators(r.Context())
		if err != nil {
			h.log.Error().Err(err).Msg("api: список авторов")
			httpinfra.WriteError(w, http.StatusBadGateway, errors.New("не удалось получить список авторов"))
			return
		}
		tasks = batch.TasksFor(ids, week)
	}
	for i := range tasks {
		if strings.TrimSpace(tasks[i].CreatorID) == "" {
			httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("creators[%d]: пустой creator_id", i))
			return
		}
		tasks[i].WeekStart = week
	}

	run := h.runner.Run(r.Context(), tasks)
	httpinfra.WriteJSON(w, http.StatusOK, viewBatch(run))
}

func (h *Handler) buildOne(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WeekStart string                 `json:"week_start"`
		Override  *domain.VolumeOverride `json:"override"`
	}
	if err := decodeBody(r, &req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	week, err := h.weekStart(req.WeekStart)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	task := domain.CreatorTask{CreatorID: chi.URLParam(r, "creatorID"), WeekStart: week, Override: req.Override}
	outcome := h.runner.Process(r.Context(), task)
	if outcome.Err != nil {
		httpinfra.WriteJSON(w, statusFor(outcome.Err), viewOutcome(outcome))
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, outcome.Schedule)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httpinfra.WriteError(w, http.StatusServiceUnavailable, errors.New("очередь не настроена"))
		return
	}
	var req struct {
		CreatorID string                 `json:"creator_id"`
		WeekStart string                 `json:"week_start"`
		Override  *domain.VolumeOverride `json:"override"`
	}
	if err := decodeBody(r, &req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.CreatorID) == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("creator_id обязателен"))
		return
	}
	week, err := h.weekStart(req.WeekStart)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	job := domain.BuildJob{
		ID:          uuid.NewString(),
		CreatorID:   strings.TrimSpace(req.CreatorID),
		WeekStart:   week,
		Override:    req.Override,
		RequestedAt: h.now().UTC(),
		Cause:       domain.BuildCauseManual,
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("creator", job.CreatorID).Msg("api: постановка задачи")
		httpinfra.WriteError(w, http.StatusBadGateway, errors.New("не удалось поставить задачу"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "week_start": week.Format(weekLayout)})
}

func (h *Handler) captionLocks(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "captionID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("caption id должен быть числом"))
		return
	}
	locks, err := h.locks.ActiveLocks(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Int64("caption", id).Msg("api: активные резервы")
		httpinfra.WriteError(w, http.StatusBadGateway, errors.New("не удалось прочитать резервы"))
		return
	}
	if locks == nil {
		locks = []domain.CaptionLock{}
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"caption_id": id, "locks": locks})
}

func (h *Handler) releaseLocks(w http.ResponseWriter, r *http.Request) {
	scheduleID := chi.URLParam(r, "scheduleID")
	n, err := h.locks.Release(r.Context(), scheduleID)
	if err != nil {
		h.log.Error().Err(err).Str("schedule", scheduleID).Msg("api: снятие резервов")
		httpinfra.WriteError(w, http.StatusBadGateway, errors.New("не удалось снять резервы"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"schedule_id": scheduleID, "released": n})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("некорректное тело запроса: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	var conflict *domain.LockConflictError
	switch {
	case errors.Is(err, schedule.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCreatorNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.Is(err, domain.ErrScheduleExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoCandidates):
		return http.StatusUnprocessableEntity
	case domain.IsConfiguration(err):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func viewOutcome(o domain.CreatorOutcome) outcomeView {
	v := outcomeView{CreatorID: o.CreatorID, Attempts: o.Attempts, DurationMS: o.Duration.Milliseconds()}
	if o.Schedule != nil {
		v.ScheduleID = o.Schedule.ID
		v.MessageCount = len(o.Schedule.Messages)
		v.Zone = string(o.Schedule.Zone)
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

func viewBatch(run domain.BatchRun) batchView {
	v := batchView{
		RunID:         run.ID,
		WeekStart:     run.WeekStart.Format(weekLayout),
		Succeeded:     run.Succeeded,
		Failed:        run.Failed,
		SuccessRate:   run.SuccessRate(),
		DurationMS:    run.Duration.Milliseconds(),
		AvgPerCreator: run.AvgPerCreator().Milliseconds(),
		Outcomes:      make([]outcomeView, 0, len(run.Outcomes)),
	}
	for _, o := range run.Outcomes {
		v.Outcomes = append(v.Outcomes, viewOutcome(o))
	}
	return v
}
