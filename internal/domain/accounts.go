package domain

import "strings"

// AccountTier описывает размер аккаунта автора.
type AccountTier string

const (
	AccountTierMicro  AccountTier = "MICRO"
	AccountTierSmall  AccountTier = "SMALL"
	AccountTierMedium AccountTier = "MEDIUM"
	AccountTierLarge  AccountTier = "LARGE"
	AccountTierMega   AccountTier = "MEGA"
)

// AccountTierProfile задаёт недельные объёмы и интервалы для размера аккаунта.
type AccountTierProfile struct {
	Tier              AccountTier
	WeeklyPPVMin      int
	WeeklyPPVMax      int
	WeeklyBumpMin     int
	WeeklyBumpMax     int
	MinGapHours       float64
	MaxMessagesPerDay int
}

var accountProfiles = map[AccountTier]AccountTierProfile{
	AccountTierMicro: {
		Tier:              AccountTierMicro,
		WeeklyPPVMin:      5,
		WeeklyPPVMax:      7,
		WeeklyBumpMin:     3,
		WeeklyBumpMax:     5,
		MinGapHours:       3.0,
		MaxMessagesPerDay: 8,
	},
	AccountTierSmall: {
		Tier:              AccountTierSmall,
		WeeklyPPVMin:      7,
		WeeklyPPVMax:      10,
		WeeklyBumpMin:     5,
		WeeklyBumpMax:     7,
		MinGapHours:       2.5,
		MaxMessagesPerDay: 10,
	},
	AccountTierMedium: {
		Tier:              AccountTierMedium,
		WeeklyPPVMin:      10,
		WeeklyPPVMax:      14,
		WeeklyBumpMin:     7,
		WeeklyBumpMax:     10,
		MinGapHours:       2.0,
		MaxMessagesPerDay: 15,
	},
	AccountTierLarge: {
		Tier:              AccountTierLarge,
		WeeklyPPVMin:      14,
		WeeklyPPVMax:      18,
		WeeklyBumpMin:     10,
		WeeklyBumpMax:     14,
		MinGapHours:       1.5,
		MaxMessagesPerDay: 20,
	},
	AccountTierMega: {
		Tier:              AccountTierMega,
		WeeklyPPVMin:      18,
		WeeklyPPVMax:      25,
		WeeklyBumpMin:     14,
		WeeklyBumpMax:     18,
		MinGapHours:       1.25,
		MaxMessagesPerDay: 25,
	},
}

// ClassifyAccount возвращает профиль для метки размера аккаунта.
// Неизвестные метки сводятся к MEDIUM.
func ClassifyAccount(label string) AccountTierProfile {
	if profile, ok := accountProfiles[AccountTier(strings.ToUpper(strings.TrimSpace(label)))]; ok {
		return profile
	}
	return accountProfiles[AccountTierMedium]
}
