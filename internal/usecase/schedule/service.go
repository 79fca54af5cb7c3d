package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
	"schedule-builder/internal/usecase/planning"
)

// ErrInvalidRequest возвращается, если запрос на построение неполон.
var ErrInvalidRequest = errors.New("invalid schedule request")

const cleanupTimeout = 5 * time.Second

// Locker резервирует подписи расписания.
type Locker interface {
	LockSchedule(ctx context.Context, schedule domain.Schedule) error
	Release(ctx context.Context, scheduleID string) (int, error)
}

// Service строит недельное расписание автора: объёмы, подписи, слоты,
// резервирование и сохранение.
type Service struct {
	analytics domain.AnalyticsService
	allocator *Allocator
	planner   *SlotPlanner
	locker    Locker
	schedules domain.ScheduleRepo
	location  *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

// NewService создаёт сервис. schedules может быть nil, тогда расписание не сохраняется.
func NewService(
	analytics domain.AnalyticsService,
	selector domain.CaptionSelector,
	locker Locker,
	schedules domain.ScheduleRepo,
	rnd Rand,
	location *time.Location,
	logger zerolog.Logger,
) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		analytics: analytics,
		allocator: NewAllocator(selector, logger),
		planner:   NewSlotPlanner(rnd),
		locker:    locker,
		schedules: schedules,
		location:  location,
		now:       time.Now,
		log:       logger,
	}
}

// BuildForCreator получает аналитику автора и строит расписание на неделю task.WeekStart.
func (s *Service) BuildForCreator(ctx context.Context, task domain.CreatorTask) (domain.Schedule, error) {
	creatorID := strings.TrimSpace(task.CreatorID)
	if creatorID == "" {
		return domain.Schedule{}, fmt.Errorf("%w: пустой автор", ErrInvalidRequest)
	}
	report, err := s.analytics.AnalyzeCreator(ctx, creatorID)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("аналитика автора %s: %w", creatorID, err)
	}

	loc := s.location
	if report.Timezone != "" {
		resolved, err := ResolveLocation(report.Timezone)
		if err != nil {
			s.log.Warn().Str("creator", creatorID).Str("timezone", report.Timezone).Msg("schedule: неизвестный часовой пояс, используется пояс по умолчанию")
		} else {
			loc = resolved
		}
	}

	return s.Build(ctx, domain.ScheduleRequest{
		CreatorID:           creatorID,
		WeekStart:           task.WeekStart,
		Location:            loc,
		AccountTier:         report.AccountTier,
		SaturationScore:     report.SaturationScore,
		SaturationTolerance: report.SaturationTolerance,
		Segment:             report.Segment,
		PeakTimes:           report.PeakTimes,
		Override:            task.Override,
	})
}

// Build выполняет конвейер для готового запроса.
// Подписи резервируются до сохранения; если сохранить не удалось, резерв снимается.
func (s *Service) Build(ctx context.Context, req domain.ScheduleRequest) (sched domain.Schedule, err error) {
	start := s.now()
	defer func() { metrics.ObserveScheduleBuild(start, err) }()

	if strings.TrimSpace(req.CreatorID) == "" {
		return domain.Schedule{}, fmt.Errorf("%w: пустой автор", ErrInvalidRequest)
	}
	if req.WeekStart.IsZero() {
		return domain.Schedule{}, fmt.Errorf("%w: не задано начало недели", ErrInvalidRequest)
	}
	loc := req.Location
	if loc == nil {
		loc = s.location
	}

	profile := domain.ClassifyAccount(req.AccountTier)
	response := domain.EvaluateSaturation(req.SaturationScore, req.SaturationTolerance)
	volume := planning.CalculateVolume(profile, response)
	if req.Override != nil {
		volume = planning.ApplyOverride(volume, req.Override)
		response = domain.ResponseForZone(volume.Zone)
	}
	split := planning.DistributeTiers(req.Segment, volume.PPV)

	pools, err := s.allocator.Allocate(ctx, req.CreatorID, req.Segment, split, volume.Bump)
	if err != nil {
		return domain.Schedule{}, err
	}

	messages, err := s.planner.Plan(SlotPlan{
		WeekStart: req.WeekStart,
		Location:  loc,
		PPVCount:  volume.PPV,
		BumpCount: volume.Bump,
		Profile:   profile,
		Response:  response,
		PeakHours: ExtractPeakHours(req.PeakTimes),
		Pools:     pools,
	})
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("раскладка слотов: %w", err)
	}

	createdAt := s.now().In(loc)
	sched = domain.Schedule{
		ID:          domain.NewScheduleID(createdAt, req.CreatorID),
		CreatorID:   req.CreatorID,
		Messages:    messages,
		Zone:        volume.Zone,
		AccountTier: profile.Tier,
		CreatedAt:   createdAt,
	}

	if err := s.locker.LockSchedule(ctx, sched); err != nil {
		s.logExport(ctx, sched, start, err)
		return domain.Schedule{}, fmt.Errorf("резервирование подписей: %w", err)
	}

	if s.schedules != nil {
		if err := s.schedules.SaveSchedule(ctx, sched); err != nil {
			s.releaseAfterSaveFailure(ctx, sched.ID, err)
			s.logExport(ctx, sched, start, err)
			return domain.Schedule{}, fmt.Errorf("сохранение расписания: %w", err)
		}
	}
	s.logExport(ctx, sched, start, nil)

	ppv := sched.CountByKind(domain.MessageKindPPV)
	bump := sched.CountByKind(domain.MessageKindBump)
	metrics.AddScheduledMessages(string(domain.MessageKindPPV), ppv)
	metrics.AddScheduledMessages(string(domain.MessageKindBump), bump)
	s.log.Info().
		Str("schedule", sched.ID).
		Str("creator", sched.CreatorID).
		Str("zone", string(sched.Zone)).
		Str("tier", string(sched.AccountTier)).
		Int("ppv", ppv).
		Int("bump", bump).
		Msg("schedule: расписание построено")
	return sched, nil
}

// releaseAfterSaveFailure снимает резерв несохранённого расписания.
// Снятие идёт на контексте, отвязанном от отмены ctx.
func (s *Service) releaseAfterSaveFailure(ctx context.Context, scheduleID string, saveErr error) {
	if errors.Is(saveErr, domain.ErrScheduleExists) {
		// резерв под этим ID принадлежит уже сохранённому расписанию
		s.log.Warn().Str("schedule", scheduleID).Msg("schedule: ID уже занят, резерв не снимается")
		return
	}
	relCtx, cancel := cleanupContext(ctx)
	defer cancel()
	released, err := s.locker.Release(relCtx, scheduleID)
	if err != nil {
		s.log.Error().Err(err).Str("schedule", scheduleID).Msg("schedule: не удалось снять резерв после ошибки сохранения")
		return
	}
	s.log.Warn().Str("schedule", scheduleID).Int("released", released).Msg("schedule: резерв снят после ошибки сохранения")
}

func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func (s *Service) logExport(ctx context.Context, sched domain.Schedule, start time.Time, buildErr error) {
	if s.schedules == nil {
		return
	}
	entry := domain.ExportLogEntry{
		ScheduleID:   sched.ID,
		CreatorID:    sched.CreatorID,
		MessageCount: len(sched.Messages),
		Duration:     s.now().Sub(start),
		LoggedAt:     s.now(),
	}
	if buildErr != nil {
		entry.Error = buildErr.Error()
	}
	logCtx, cancel := cleanupContext(ctx)
	defer cancel()
	if err := s.schedules.LogExport(logCtx, entry); err != nil {
		s.log.Warn().Err(err).Str("schedule", sched.ID).Msg("schedule: не удалось записать журнал построения")
	}
}
