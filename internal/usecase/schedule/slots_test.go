package schedule

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"
	_ "time/tzdata"

	"schedule-builder/internal/domain"
)

type fixedRand int

func (r fixedRand) IntN(n int) int { return int(r) % n }

var monday = time.Date(2024, time.November, 4, 0, 0, 0, 0, time.UTC)

func captions(tier string, from int64, n int) []domain.Caption {
	out := make([]domain.Caption, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Caption{ID: from + int64(i), Text: "caption", PriceTier: tier, Score: 0.5})
	}
	return out
}

func dayIndex(t time.Time) int {
	return int(t.Sub(monday) / (24 * time.Hour))
}

func TestPlanCoolingDays(t *testing.T) {
	planner := NewSlotPlanner(rand.New(rand.NewPCG(1, 2)))
	messages, err := planner.Plan(SlotPlan{
		WeekStart: monday,
		PPVCount:  10,
		BumpCount: 32,
		Profile:   domain.ClassifyAccount("MEGA"),
		Response:  domain.ResponseForZone(domain.SaturationRed),
		PeakHours: ExtractPeakHours(nil),
		Pools:     Pools{PPV: captions("mid", 1, 20), Bump: captions("Bump", 100, 10)},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	perDay := make(map[int][]domain.ScheduledMessage)
	for _, m := range messages {
		perDay[dayIndex(m.SendAt)] = append(perDay[dayIndex(m.SendAt)], m)
	}
	anchors := []string{"09:00", "14:30", "20:00"}
	for day := 0; day < 2; day++ {
		got := perDay[day]
		if len(got) != len(anchors) {
			t.Fatalf("день %d: ожидали %d сообщений охлаждения, получили %d", day, len(anchors), len(got))
		}
		seen := make(map[int64]bool)
		for i, m := range got {
			if m.Kind != domain.MessageKindBump {
				t.Fatalf("день %d: в день охлаждения не должно быть PPV", day)
			}
			if m.PriceTier != domain.PriceTierFree || m.Score != 0 || m.Category != "Engagement" {
				t.Fatalf("неожиданные поля bump-сообщения: %+v", m)
			}
			if hm := m.SendAt.Format("15:04"); hm != anchors[i] {
				t.Fatalf("день %d: ожидали %s, получили %s", day, anchors[i], hm)
			}
			if seen[m.CaptionID] {
				t.Fatalf("день %d: подпись %d повторяется", day, m.CaptionID)
			}
			seen[m.CaptionID] = true
		}
	}
	for day := 2; day < 7; day++ {
		ppv := 0
		for _, m := range perDay[day] {
			if m.Kind == domain.MessageKindPPV {
				ppv++
			}
		}
		if ppv != 2 {
			t.Fatalf("день %d: ожидали 2 PPV, получили %d", day, ppv)
		}
	}
	if len(messages) != 36 {
		t.Fatalf("ожидали 36 сообщений, получили %d", len(messages))
	}
}

func TestPlanCoolingSkipsMissingBumps(t *testing.T) {
	planner := NewSlotPlanner(fixedRand(0))
	messages, err := planner.Plan(SlotPlan{
		WeekStart: monday,
		PPVCount:  5,
		Profile:   domain.ClassifyAccount("SMALL"),
		Response:  domain.ResponseForZone(domain.SaturationRed),
		Pools:     Pools{PPV: captions("budget", 1, 5), Bump: captions("Bump", 100, 1)},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	cooling := 0
	for _, m := range messages {
		if dayIndex(m.SendAt) < 2 {
			cooling++
		}
	}
	if cooling != 2 {
		t.Fatalf("ожидали по одному bump в каждый день охлаждения, получили %d", cooling)
	}
}

func TestPlanInvariantsAcrossSeeds(t *testing.T) {
	for seed := uint64(1); seed <= 50; seed++ {
		planner := NewSlotPlanner(rand.New(rand.NewPCG(seed, seed*7)))
		messages, err := planner.Plan(SlotPlan{
			WeekStart: monday,
			PPVCount:  28,
			BumpCount: 35,
			Profile:   domain.ClassifyAccount("MEGA"),
			Response:  domain.ResponseForZone(domain.SaturationYellow),
			PeakHours: PeakHours{Weekday: []int{8, 19, 20, 21, 23}, Weekend: []int{21, 23}},
			Pools:     Pools{PPV: captions("premium", 1, 6), Bump: captions("Bump", 100, 8)},
		})
		if err != nil {
			t.Fatalf("seed %d: не ожидали ошибку: %v", seed, err)
		}
		perDay := make(map[int]map[int64]bool)
		for i, m := range messages {
			if m.SendAt.Hour() >= 22 {
				t.Fatalf("seed %d: сообщение после 22:00: %s", seed, m.SendAt)
			}
			day := dayIndex(m.SendAt)
			if day < 0 || day > 6 {
				t.Fatalf("seed %d: сообщение вне недели: %s", seed, m.SendAt)
			}
			if i > 0 && m.SendAt.Before(messages[i-1].SendAt) {
				t.Fatalf("seed %d: сообщения не отсортированы", seed)
			}
			if m.Kind != domain.MessageKindPPV {
				continue
			}
			if perDay[day] == nil {
				perDay[day] = make(map[int64]bool)
			}
			if perDay[day][m.CaptionID] {
				t.Fatalf("seed %d: подпись %d дважды в день %d", seed, m.CaptionID, day)
			}
			perDay[day][m.CaptionID] = true
		}
	}
}

func TestPlanBumpAnchors(t *testing.T) {
	planner := NewSlotPlanner(fixedRand(0))
	messages, err := planner.Plan(SlotPlan{
		WeekStart: monday,
		BumpCount: 14,
		Profile:   domain.ClassifyAccount("MEDIUM"),
		Response:  domain.ResponseForZone(domain.SaturationGreen),
		Pools:     Pools{Bump: captions("Bump", 100, 5)},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(messages) != 14 {
		t.Fatalf("ожидали 14 bump, получили %d", len(messages))
	}
	for i, m := range messages {
		want := "08:30"
		if i%2 == 1 {
			want = "21:00"
		}
		if got := m.SendAt.Format("15:04"); got != want {
			t.Fatalf("сообщение %d: ожидали %s, получили %s", i, want, got)
		}
	}
}

func TestPlanEnforcesGap(t *testing.T) {
	planner := NewSlotPlanner(fixedRand(0))
	messages, err := planner.Plan(SlotPlan{
		WeekStart: monday,
		PPVCount:  14,
		Profile:   domain.AccountTierProfile{MinGapHours: 3},
		Response:  domain.ResponseForZone(domain.SaturationGreen),
		PeakHours: PeakHours{Weekday: []int{9, 10}, Weekend: []int{9, 10}},
		Pools:     Pools{PPV: captions("mid", 1, 2)},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(messages) != 14 {
		t.Fatalf("ожидали 14 PPV, получили %d", len(messages))
	}
	if got := messages[0].SendAt.Format("15:04"); got != "09:00" {
		t.Fatalf("первое PPV: ожидали 09:00, получили %s", got)
	}
	if got := messages[1].SendAt.Format("15:04"); got != "12:00" {
		t.Fatalf("второе PPV должно сдвинуться на интервал: получили %s", got)
	}
	if messages[0].CaptionID == messages[1].CaptionID {
		t.Fatalf("подпись повторяется в пределах дня")
	}
}

func TestPlanClampsLateMessages(t *testing.T) {
	planner := NewSlotPlanner(fixedRand(0))
	messages, err := planner.Plan(SlotPlan{
		WeekStart: monday,
		PPVCount:  14,
		Profile:   domain.AccountTierProfile{MinGapHours: 4},
		Response:  domain.ResponseForZone(domain.SaturationGreen),
		PeakHours: PeakHours{Weekday: []int{20, 21}, Weekend: []int{20, 21}},
		Pools:     Pools{PPV: captions("luxury", 1, 3)},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := messages[0].SendAt.Format("15:04"); got != "20:00" {
		t.Fatalf("ожидали 20:00, получили %s", got)
	}
	second := messages[1].SendAt
	if second.Format("15:04") != "21:30" || dayIndex(second) != 0 {
		t.Fatalf("ожидали 21:30 того же дня, получили %s", second)
	}
	if messages[0].PriceTier != "Luxury" {
		t.Fatalf("ожидали нормализованный уровень Luxury, получили %s", messages[0].PriceTier)
	}
}

func TestPlanEmptyPools(t *testing.T) {
	planner := NewSlotPlanner(fixedRand(0))
	_, err := planner.Plan(SlotPlan{WeekStart: monday, PPVCount: 10})
	if !errors.Is(err, domain.ErrNoCandidates) {
		t.Fatalf("ожидали ErrNoCandidates, получили %v", err)
	}
}

func TestPlanRespectsLocation(t *testing.T) {
	loc := mustLoad(t, "America/Los_Angeles")
	planner := NewSlotPlanner(fixedRand(0))
	messages, err := planner.Plan(SlotPlan{
		WeekStart: monday,
		Location:  loc,
		BumpCount: 7,
		Response:  domain.ResponseForZone(domain.SaturationGreen),
		Pools:     Pools{Bump: captions("Bump", 1, 1)},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, m := range messages {
		if m.SendAt.Location() != loc {
			t.Fatalf("ожидали пояс автора, получили %s", m.SendAt.Location())
		}
		if m.SendAt.Format("15:04") != "08:30" {
			t.Fatalf("ожидали 08:30 по местному времени, получили %s", m.SendAt)
		}
	}
}

func TestExtractPeakHours(t *testing.T) {
	defaults := ExtractPeakHours(nil)
	if len(defaults.Weekday) != 5 || len(defaults.Weekend) != 4 {
		t.Fatalf("ожидали часы по умолчанию, получили %+v", defaults)
	}

	var times []domain.PeakTime
	for h := 0; h < 12; h++ {
		times = append(times, domain.PeakTime{DayType: domain.DayTypeWeekday, Hour: h + 8, Score: float64(h)})
	}
	times = append(times,
		domain.PeakTime{DayType: "weekend", Hour: 15, Score: 0.1},
		domain.PeakTime{DayType: domain.DayTypeWeekend, Hour: 10, Score: 0.9},
		domain.PeakTime{DayType: domain.DayTypeWeekend, Hour: 10, Score: 0.5},
		domain.PeakTime{DayType: domain.DayTypeWeekend, Hour: 42, Score: 1},
	)
	got := ExtractPeakHours(times)
	wantWeekday := []int{12, 13, 14, 15, 16, 17, 18, 19}
	if len(got.Weekday) != len(wantWeekday) {
		t.Fatalf("ожидали %v, получили %v", wantWeekday, got.Weekday)
	}
	for i := range wantWeekday {
		if got.Weekday[i] != wantWeekday[i] {
			t.Fatalf("ожидали %v, получили %v", wantWeekday, got.Weekday)
		}
	}
	if len(got.Weekend) != 2 || got.Weekend[0] != 10 || got.Weekend[1] != 15 {
		t.Fatalf("ожидали [10 15], получили %v", got.Weekend)
	}
}

func TestSplitPools(t *testing.T) {
	pools := SplitPools([]domain.Caption{
		{ID: 1, PriceTier: "Mid"},
		{ID: 2, PriceTier: "Bump"},
		{ID: 1, PriceTier: "Mid"},
		{ID: 3, PriceTier: "free"},
		{ID: 4, PriceTier: "Premium"},
	})
	if len(pools.PPV) != 2 || len(pools.Bump) != 2 {
		t.Fatalf("ожидали 2 PPV и 2 bump, получили %d и %d", len(pools.PPV), len(pools.Bump))
	}
	if pools.PPV[0].ID != 1 || pools.PPV[1].ID != 4 {
		t.Fatalf("порядок PPV нарушен: %+v", pools.PPV)
	}
}

func TestResolveLocation(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		err  bool
	}{
		{raw: "America/Los_Angeles", want: "America/Los_Angeles"},
		{raw: "america/los angeles", want: "America/Los_Angeles"},
		{raw: "  europe/amsterdam ", want: "Europe/Amsterdam"},
		{raw: "", err: true},
		{raw: "Mars/Olympus", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			loc, err := ResolveLocation(tt.raw)
			if tt.err {
				if !errors.Is(err, ErrInvalidTimezone) {
					t.Fatalf("ожидали ErrInvalidTimezone, получили %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			if loc.String() != tt.want {
				t.Fatalf("ожидали %s, получили %s", tt.want, loc)
			}
		})
	}
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("загрузка пояса %s: %v", name, err)
	}
	return loc
}
