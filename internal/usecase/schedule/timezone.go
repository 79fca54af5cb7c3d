package schedule

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("invalid timezone")

// ResolveLocation загружает часовой пояс автора. Допускает пробелы вместо
// подчёркиваний и произвольный регистр: "america/los angeles".
func ResolveLocation(raw string) (*time.Location, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return nil, ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if loc, err := time.LoadLocation(candidate); err == nil {
		return loc, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	if loc, err := time.LoadLocation(strings.Join(parts, "/")); err == nil {
		return loc, nil
	}
	return nil, ErrInvalidTimezone
}
