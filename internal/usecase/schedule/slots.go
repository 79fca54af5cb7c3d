package schedule

import (
	"sort"
	"strings"
	"time"

	"schedule-builder/internal/domain"
)

// Rand - источник случайных чисел для минутного разброса и выбора подписей.
// *rand.Rand из math/rand/v2 удовлетворяет интерфейсу.
type Rand interface {
	IntN(n int) int
}

const (
	daysPerWeek  = 7
	maxPeakHours = 8

	defaultPPVCategory  = "General"
	defaultBumpCategory = "Engagement"
)

type clock struct {
	hour   int
	minute int
}

var (
	defaultWeekdayHours = []int{9, 13, 17, 19, 20}
	defaultWeekendHours = []int{11, 14, 18, 21}

	coolingAnchors = []clock{{9, 0}, {14, 30}, {20, 0}}
	firstBumpAt    = clock{8, 30}
	lastBumpAt     = clock{21, 0}
	dayCutoff      = clock{22, 0}
	lateFallback   = clock{21, 30}
)

var priceTierNames = map[string]string{
	"budget":   "Budget",
	"mid":      "Mid",
	"premium":  "Premium",
	"luxury":   "Luxury",
	"standard": "Mid",
}

// PeakHours - пиковые часы отправки для будней и выходных.
type PeakHours struct {
	Weekday []int
	Weekend []int
}

// ExtractPeakHours выбирает до восьми лучших часов для каждого типа дня.
// Часы упорядочены по возрастанию; без данных используются значения по умолчанию.
func ExtractPeakHours(times []domain.PeakTime) PeakHours {
	ranked := make([]domain.PeakTime, len(times))
	copy(ranked, times)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	weekday := topHours(ranked, false)
	weekend := topHours(ranked, true)
	if len(weekday) == 0 {
		weekday = append([]int(nil), defaultWeekdayHours...)
	}
	if len(weekend) == 0 {
		weekend = append([]int(nil), defaultWeekendHours...)
	}
	return PeakHours{Weekday: weekday, Weekend: weekend}
}

func topHours(ranked []domain.PeakTime, weekend bool) []int {
	seen := make(map[int]struct{})
	var hours []int
	for _, pt := range ranked {
		if isWeekendType(pt.DayType) != weekend {
			continue
		}
		if pt.Hour < 0 || pt.Hour > 23 {
			continue
		}
		if _, ok := seen[pt.Hour]; ok {
			continue
		}
		seen[pt.Hour] = struct{}{}
		hours = append(hours, pt.Hour)
		if len(hours) == maxPeakHours {
			break
		}
	}
	sort.Ints(hours)
	return hours
}

func isWeekendType(t domain.DayType) bool {
	return strings.EqualFold(strings.TrimSpace(string(t)), string(domain.DayTypeWeekend))
}

func (p PeakHours) forDay(day time.Time) []int {
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		if len(p.Weekend) > 0 {
			return p.Weekend
		}
		return defaultWeekendHours
	}
	if len(p.Weekday) > 0 {
		return p.Weekday
	}
	return defaultWeekdayHours
}

// SlotPlan - входные данные для раскладки сообщений по неделе.
type SlotPlan struct {
	WeekStart time.Time
	Location  *time.Location
	PPVCount  int
	BumpCount int
	Profile   domain.AccountTierProfile
	Response  domain.SaturationResponse
	PeakHours PeakHours
	Pools     Pools
}

// SlotPlanner раскладывает сообщения по дням недели.
type SlotPlanner struct {
	rnd Rand
}

// NewSlotPlanner создаёт планировщик слотов.
func NewSlotPlanner(rnd Rand) *SlotPlanner {
	return &SlotPlanner{rnd: rnd}
}

// Plan строит сообщения на семь дней, начиная с WeekStart, и сортирует их по времени.
func (p *SlotPlanner) Plan(plan SlotPlan) ([]domain.ScheduledMessage, error) {
	if plan.Pools.Empty() {
		return nil, domain.ErrNoCandidates
	}
	loc := plan.Location
	if loc == nil {
		loc = time.UTC
	}
	cooling := min(max(plan.Response.CoolingDays, 0), daysPerWeek-1)
	gap := hoursToDuration(plan.Profile.MinGapHours + plan.Response.GapExtensionHours)
	dailyPPV := plan.PPVCount / (daysPerWeek - cooling)
	dailyBump := plan.BumpCount / daysPerWeek

	ppvCursor := &roundRobin{items: plan.Pools.PPV}
	bumpCursor := &roundRobin{items: plan.Pools.Bump}

	var messages []domain.ScheduledMessage
	for offset := 0; offset < daysPerWeek; offset++ {
		day := time.Date(plan.WeekStart.Year(), plan.WeekStart.Month(), plan.WeekStart.Day()+offset, 0, 0, 0, 0, loc)
		if offset < cooling {
			messages = append(messages, p.coolingDay(day, plan.Pools.Bump)...)
			continue
		}
		messages = append(messages, p.normalDay(day, dayPlan{
			ppvCursor:  ppvCursor,
			bumpCursor: bumpCursor,
			dailyPPV:   dailyPPV,
			dailyBump:  dailyBump,
			hours:      plan.PeakHours.forDay(day),
			gap:        gap,
		})...)
	}

	sort.SliceStable(messages, func(i, j int) bool { return messages[i].SendAt.Before(messages[j].SendAt) })
	return messages, nil
}

func (p *SlotPlanner) coolingDay(day time.Time, pool []domain.Caption) []domain.ScheduledMessage {
	used := make(map[int64]struct{}, len(coolingAnchors))
	out := make([]domain.ScheduledMessage, 0, len(coolingAnchors))
	for _, anchor := range coolingAnchors {
		remaining := make([]domain.Caption, 0, len(pool))
		for _, c := range pool {
			if _, ok := used[c.ID]; !ok {
				remaining = append(remaining, c)
			}
		}
		if len(remaining) == 0 {
			break
		}
		c := remaining[p.rnd.IntN(len(remaining))]
		used[c.ID] = struct{}{}
		out = append(out, bumpMessage(at(day, anchor), c))
	}
	return out
}

type dayPlan struct {
	ppvCursor  *roundRobin
	bumpCursor *roundRobin
	dailyPPV   int
	dailyBump  int
	hours      []int
	gap        time.Duration
}

func (p *SlotPlanner) normalDay(day time.Time, dp dayPlan) []domain.ScheduledMessage {
	var out []domain.ScheduledMessage

	usedPPV := make(map[int64]struct{})
	ppvSlots := min(dp.dailyPPV, len(dp.ppvCursor.items))
	for i := 0; i < ppvSlots; i++ {
		c, ok := dp.ppvCursor.next(usedPPV)
		if !ok {
			break
		}
		sendAt := at(day, clock{hour: dp.hours[i%len(dp.hours)], minute: p.rnd.IntN(60)})
		if len(out) > 0 {
			last := out[len(out)-1].SendAt
			if sendAt.Sub(last) < dp.gap {
				sendAt = last.Add(dp.gap)
			}
		}
		out = append(out, ppvMessage(clampToDay(day, sendAt), c))
	}

	usedBump := make(map[int64]struct{})
	bumpSlots := min(dp.dailyBump, len(dp.bumpCursor.items))
	for i := 0; i < bumpSlots; i++ {
		c, ok := dp.bumpCursor.next(usedBump)
		if !ok {
			break
		}
		var sendAt time.Time
		switch {
		case i == 0:
			sendAt = at(day, firstBumpAt)
		case i == dp.dailyBump-1:
			sendAt = at(day, lastBumpAt)
		case len(out) >= 2:
			mid := len(out) / 2
			prev, next := out[mid-1].SendAt, out[mid].SendAt
			sendAt = prev.Add(next.Sub(prev) / 2)
		default:
			sendAt = at(day, clock{hour: 12 + i})
		}
		out = append(out, bumpMessage(clampToDay(day, sendAt), c))
	}
	return out
}

// roundRobin выдаёт подписи по кругу через всю неделю, пропуская уже
// использованные за текущий день.
type roundRobin struct {
	items []domain.Caption
	pos   int
}

func (r *roundRobin) next(used map[int64]struct{}) (domain.Caption, bool) {
	for step := 0; step < len(r.items); step++ {
		idx := (r.pos + step) % len(r.items)
		c := r.items[idx]
		if _, taken := used[c.ID]; taken {
			continue
		}
		r.pos = idx + 1
		used[c.ID] = struct{}{}
		return c, true
	}
	return domain.Caption{}, false
}

func ppvMessage(sendAt time.Time, c domain.Caption) domain.ScheduledMessage {
	category := c.Category
	if category == "" {
		category = defaultPPVCategory
	}
	return domain.ScheduledMessage{
		SendAt:      sendAt,
		Kind:        domain.MessageKindPPV,
		CaptionID:   c.ID,
		CaptionText: c.Text,
		PriceTier:   normalizePriceTier(c.PriceTier),
		Category:    category,
		HasUrgency:  c.HasUrgency,
		Score:       c.Score,
	}
}

func bumpMessage(sendAt time.Time, c domain.Caption) domain.ScheduledMessage {
	category := c.Category
	if category == "" {
		category = defaultBumpCategory
	}
	return domain.ScheduledMessage{
		SendAt:      sendAt,
		Kind:        domain.MessageKindBump,
		CaptionID:   c.ID,
		CaptionText: c.Text,
		PriceTier:   domain.PriceTierFree,
		Category:    category,
	}
}

func normalizePriceTier(tier string) string {
	if name, ok := priceTierNames[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return name
	}
	return tier
}

func at(day time.Time, c clock) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, day.Location())
}

// clampToDay переносит время на 21:30 того же дня, если оно попало на 22:00 или позже,
// в том числе после перехода через полночь.
func clampToDay(day, t time.Time) time.Time {
	if t.Before(at(day, dayCutoff)) {
		return t
	}
	return at(day, lateFallback)
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
