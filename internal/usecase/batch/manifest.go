package batch

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"schedule-builder/internal/domain"
)

const weekLayout = "2006-01-02"

// Manifest - список авторов пакетного запуска с необязательными ручными объёмами.
//
//	week_start: 2024-11-04
//	creators:
//	  - creator_id: alice
//	  - creator_id: bob
//	    override: {ppv_count: 20, bump_count: 9, zone: RED}
type Manifest struct {
	WeekStart string               `yaml:"week_start,omitempty"`
	Creators  []domain.CreatorTask `yaml:"creators"`
}

// ParseManifest разбирает YAML манифеста и проверяет авторов.
func ParseManifest(data []byte) (Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Manifest{}, fmt.Errorf("manifest: пустой файл")
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: разбор: %w", err)
	}
	seen := make(map[string]struct{}, len(m.Creators))
	for i := range m.Creators {
		id := strings.TrimSpace(m.Creators[i].CreatorID)
		if id == "" {
			return Manifest{}, fmt.Errorf("manifest: автор #%d без creator_id", i+1)
		}
		if _, ok := seen[id]; ok {
			return Manifest{}, fmt.Errorf("manifest: автор %s указан дважды", id)
		}
		seen[id] = struct{}{}
		m.Creators[i].CreatorID = id
		if o := m.Creators[i].Override; o != nil {
			if o.PPV < 0 || o.Bump < 0 {
				return Manifest{}, fmt.Errorf("manifest: автор %s: отрицательный объём", id)
			}
			if o.Zone != "" && !o.Zone.Valid() {
				return Manifest{}, fmt.Errorf("manifest: автор %s: неизвестная зона %q", id, o.Zone)
			}
		}
	}
	if m.WeekStart != "" {
		if _, err := time.Parse(weekLayout, m.WeekStart); err != nil {
			return Manifest{}, fmt.Errorf("manifest: week_start: %w", err)
		}
	}
	return m, nil
}

// LoadManifest читает манифест из файла.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: чтение %s: %w", path, err)
	}
	return ParseManifest(data)
}

// Week возвращает неделю, закреплённую в манифесте.
func (m Manifest) Week() (time.Time, bool) {
	if m.WeekStart == "" {
		return time.Time{}, false
	}
	week, err := time.Parse(weekLayout, m.WeekStart)
	if err != nil {
		return time.Time{}, false
	}
	return week, true
}

// CheckScheduled отклоняет манифест с week_start для запуска по расписанию.
func (m Manifest) CheckScheduled() error {
	if m.WeekStart != "" {
		return &domain.ConfigurationError{Key: "week_start", Value: m.WeekStart}
	}
	return nil
}

// Tasks возвращает задачи на переданную неделю. week_start манифеста здесь
// не учитывается, его читает только разовый запуск через Week.
func (m Manifest) Tasks(week time.Time) []domain.CreatorTask {
	tasks := make([]domain.CreatorTask, 0, len(m.Creators))
	for _, c := range m.Creators {
		c.WeekStart = week
		tasks = append(tasks, c)
	}
	return tasks
}

// TasksFor формирует задачи для списка авторов.
func TasksFor(creators []string, week time.Time) []domain.CreatorTask {
	tasks := make([]domain.CreatorTask, 0, len(creators))
	for _, id := range creators {
		tasks = append(tasks, domain.CreatorTask{CreatorID: id, WeekStart: week})
	}
	return tasks
}

// NextWeekStart возвращает полночь ближайшего будущего понедельника в поясе loc.
func NextWeekStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	days := (int(time.Monday) - int(local.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	next := local.AddDate(0, 0, days)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, time.UTC)
}
