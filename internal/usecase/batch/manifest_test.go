package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "time/tzdata"

	"schedule-builder/internal/domain"
)

func TestParseManifest(t *testing.T) {
	data := []byte(`
week_start: 2024-11-04
creators:
  - creator_id: alice
  - creator_id: " bob "
    override: {ppv_count: 20, bump_count: 9, zone: RED}
`)
	m, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := time.Date(2024, time.November, 4, 0, 0, 0, 0, time.UTC)
	if week, ok := m.Week(); !ok || !week.Equal(want) {
		t.Fatalf("неделя манифеста %s, ожидали %s", week, want)
	}
	tasks := m.Tasks(want)
	if len(tasks) != 2 {
		t.Fatalf("ожидали двух авторов, получили %d", len(tasks))
	}
	for _, task := range tasks {
		if !task.WeekStart.Equal(want) {
			t.Fatalf("неделя %s, ожидали %s", task.WeekStart, want)
		}
	}
	if tasks[1].CreatorID != "bob" || tasks[1].Override == nil || tasks[1].Override.PPV != 20 || tasks[1].Override.Zone != domain.SaturationRed {
		t.Fatalf("ручные объёмы не разобраны: %+v", tasks[1])
	}
	if tasks[0].Override != nil {
		t.Fatalf("у alice не должно быть ручных объёмов")
	}
}

func TestParseManifestErrors(t *testing.T) {
	cases := map[string]string{
		"пустой":        "   ",
		"без id":        "creators:\n  - override: {ppv_count: 1}\n",
		"дубль":         "creators:\n  - creator_id: a\n  - creator_id: a\n",
		"плохая зона":   "creators:\n  - creator_id: a\n    override: {zone: PURPLE}\n",
		"отрицательный": "creators:\n  - creator_id: a\n    override: {ppv_count: -1}\n",
		"плохая неделя": "week_start: 04.11.2024\ncreators:\n  - creator_id: a\n",
		"не yaml":       "creators: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(raw)); err == nil || !strings.HasPrefix(err.Error(), "manifest:") {
				t.Fatalf("ожидали ошибку манифеста, получили %v", err)
			}
		})
	}
}

func TestLoadManifestUsesGivenWeek(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte("creators:\n  - creator_id: alice\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	week := time.Date(2024, time.November, 11, 0, 0, 0, 0, time.UTC)
	if tasks := m.Tasks(week); len(tasks) != 1 || !tasks[0].WeekStart.Equal(week) {
		t.Fatalf("ожидали неделю %s: %+v", week, tasks)
	}
}

func TestPinnedWeekDoesNotOverrideScheduledWeek(t *testing.T) {
	m, err := ParseManifest([]byte("week_start: 2024-11-04\ncreators:\n  - creator_id: alice\n"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	week := time.Date(2024, time.November, 18, 0, 0, 0, 0, time.UTC)
	if tasks := m.Tasks(week); len(tasks) != 1 || !tasks[0].WeekStart.Equal(week) {
		t.Fatalf("ожидали неделю %s, получили %+v", week, tasks)
	}
	if err := m.CheckScheduled(); !domain.IsConfiguration(err) {
		t.Fatalf("закреплённая неделя должна запрещать запуск по расписанию, получили %v", err)
	}

	floating, err := ParseManifest([]byte("creators:\n  - creator_id: alice\n"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := floating.CheckScheduled(); err != nil {
		t.Fatalf("манифест без недели подходит для расписания: %v", err)
	}
	if _, ok := floating.Week(); ok {
		t.Fatalf("у манифеста без week_start нет недели")
	}
}

func TestNextWeekStart(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"пятница вечером", time.Date(2024, time.November, 1, 18, 0, 0, 0, la), time.Date(2024, time.November, 4, 0, 0, 0, 0, time.UTC)},
		{"понедельник", time.Date(2024, time.November, 4, 9, 0, 0, 0, la), time.Date(2024, time.November, 11, 0, 0, 0, 0, time.UTC)},
		// В UTC уже суббота, а в Лос-Анджелесе ещё пятница.
		{"граница суток", time.Date(2024, time.November, 2, 3, 0, 0, 0, time.UTC), time.Date(2024, time.November, 4, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextWeekStart(tc.now, la); !got.Equal(tc.want) {
				t.Fatalf("получили %s, ожидали %s", got, tc.want)
			}
		})
	}
}
