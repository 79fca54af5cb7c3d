package telegram

import "strings"

const messageLimit = 4096

// SplitMessage режет текст на части не длиннее limit рун. Разрез делается
// по последнему переводу строки, чтобы строки отчёта не рвались посередине.
// limit <= 0 означает ограничение Telegram.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || limit > messageLimit {
		limit = messageLimit
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := end
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}
		if chunk := strings.Trim(string(runes[start:split]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}
