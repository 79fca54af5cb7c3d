package domain

import (
	"fmt"
	"strings"
	"time"
)

// BehavioralSegment описывает поведенческий сегмент аудитории автора.
type BehavioralSegment string

const (
	SegmentBudget      BehavioralSegment = "BUDGET"
	SegmentExploratory BehavioralSegment = "EXPLORATORY"
	SegmentStandard    BehavioralSegment = "STANDARD"
	SegmentPremium     BehavioralSegment = "PREMIUM"
	SegmentLuxury      BehavioralSegment = "LUXURY"
)

// MessageKind различает платные и бесплатные сообщения.
type MessageKind string

const (
	MessageKindPPV  MessageKind = "PPV"
	MessageKindBump MessageKind = "Bump"
)

const (
	// PriceTierFree проставляется всем bump-сообщениям.
	PriceTierFree = "Free"
	// PriceTierBump - метка bump-подписей в пуле подписей.
	PriceTierBump = "Bump"
)

// IsBumpTier сообщает, относится ли ценовой уровень подписи к бесплатным.
func IsBumpTier(tier string) bool {
	tier = strings.TrimSpace(tier)
	return strings.EqualFold(tier, PriceTierBump) || strings.EqualFold(tier, PriceTierFree)
}

// DayType различает будни и выходные для пиковых часов.
type DayType string

const (
	DayTypeWeekday DayType = "Weekday"
	DayTypeWeekend DayType = "Weekend"
)

// PeakTime - час с высокой вовлечённостью из отчёта аналитики.
type PeakTime struct {
	DayType DayType `json:"day_type"`
	Hour    int     `json:"hour_24"`
	Score   float64 `json:"score"`
}

// AnalyticsReport содержит результат внешнего анализа автора.
type AnalyticsReport struct {
	CreatorID           string            `json:"creator_id"`
	AccountTier         string            `json:"account_tier"`
	SaturationScore     float64           `json:"saturation_score"`
	SaturationTolerance float64           `json:"saturation_tolerance"`
	Segment             BehavioralSegment `json:"behavioral_segment"`
	Timezone            string            `json:"timezone,omitempty"`
	PeakTimes           []PeakTime        `json:"peak_times,omitempty"`
}

// VolumeOverride заменяет рассчитанные объёмы и зону.
type VolumeOverride struct {
	PPV  int            `json:"ppv_count" yaml:"ppv_count"`
	Bump int            `json:"bump_count" yaml:"bump_count"`
	Zone SaturationZone `json:"zone,omitempty" yaml:"zone,omitempty"`
}

// ScheduleRequest описывает запрос на построение недельного расписания.
type ScheduleRequest struct {
	CreatorID           string
	WeekStart           time.Time
	Location            *time.Location
	AccountTier         string
	SaturationScore     float64
	SaturationTolerance float64
	Segment             BehavioralSegment
	PeakTimes           []PeakTime
	Override            *VolumeOverride
}

// Caption - подпись из внешнего пула. Ядро ссылается на неё только по ID.
type Caption struct {
	ID         int64   `json:"caption_id"`
	Text       string  `json:"caption_text"`
	PriceTier  string  `json:"price_tier"`
	Category   string  `json:"content_category"`
	HasUrgency bool    `json:"has_urgency"`
	Score      float64 `json:"performance_score"`
}

// ScheduledMessage - одно сообщение в расписании.
type ScheduledMessage struct {
	SendAt      time.Time   `json:"scheduled_send_time"`
	Kind        MessageKind `json:"message_type"`
	CaptionID   int64       `json:"caption_id"`
	CaptionText string      `json:"caption_text"`
	PriceTier   string      `json:"price_tier"`
	Category    string      `json:"content_category"`
	HasUrgency  bool        `json:"has_urgency"`
	Score       float64     `json:"performance_score"`
}

// Schedule - недельное расписание автора.
type Schedule struct {
	ID          string             `json:"schedule_id"`
	CreatorID   string             `json:"creator_id"`
	Messages    []ScheduledMessage `json:"messages"`
	Zone        SaturationZone     `json:"saturation_zone"`
	AccountTier AccountTier        `json:"account_tier"`
	CreatedAt   time.Time          `json:"created_at"`
}

// CountByKind возвращает число сообщений указанного типа.
func (s Schedule) CountByKind(kind MessageKind) int {
	n := 0
	for _, m := range s.Messages {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// NewScheduleID формирует идентификатор вида sched_<YYYYMMDD_HHMMSS>_<creator>.
func NewScheduleID(now time.Time, creatorID string) string {
	return fmt.Sprintf("sched_%s_%s", now.Format("20060102_150405"), creatorID)
}

// CaptionLock - запись о резервировании подписи за расписанием.
type CaptionLock struct {
	CaptionID     int64     `json:"caption_id"`
	ScheduleID    string    `json:"schedule_id"`
	CreatorID     string    `json:"creator_id"`
	ScheduledDate time.Time `json:"scheduled_date"`
	ScheduledHour int       `json:"scheduled_hour"`
	LockedAt      time.Time `json:"locked_at"`
	Active        bool      `json:"is_active"`
}

// LockEntry - одна подпись в пакете резервирования.
type LockEntry struct {
	CaptionID int64
	Date      time.Time
	Hour      int
}

// LockBatch - пакет резервирования, фиксируемый целиком или не фиксируемый вовсе.
type LockBatch struct {
	ScheduleID string
	CreatorID  string
	Entries    []LockEntry
	LockedAt   time.Time
}
