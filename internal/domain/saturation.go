package domain

// SaturationZone описывает риск усталости аудитории от рассылок.
type SaturationZone string

const (
	SaturationGreen  SaturationZone = "GREEN"
	SaturationYellow SaturationZone = "YELLOW"
	SaturationRed    SaturationZone = "RED"
)

// Valid сообщает, известна ли зона.
func (z SaturationZone) Valid() bool {
	switch z {
	case SaturationGreen, SaturationYellow, SaturationRed:
		return true
	}
	return false
}

// DefaultSaturationTolerance используется, если для автора не задан собственный порог.
const DefaultSaturationTolerance = 0.5

// yellowThresholdRatio - доля порога, с которой начинается жёлтая зона.
const yellowThresholdRatio = 0.6

// SaturationResponse описывает реакцию расписания на зону насыщения.
type SaturationResponse struct {
	Zone              SaturationZone
	VolumeMultiplier  float64
	BumpIncreaseRatio float64
	GapExtensionHours float64
	CoolingDays       int
	Actions           []string
}

var saturationResponses = map[SaturationZone]SaturationResponse{
	SaturationGreen: {
		Zone:              SaturationGreen,
		VolumeMultiplier:  1.0,
		BumpIncreaseRatio: 1.0,
		GapExtensionHours: 0,
		CoolingDays:       0,
		Actions: []string{
			"Continue normal operations",
			"Consider gradual volume increase",
		},
	},
	SaturationYellow: {
		Zone:              SaturationYellow,
		VolumeMultiplier:  0.75,
		BumpIncreaseRatio: 1.20,
		GapExtensionHours: 0.5,
		CoolingDays:       0,
		Actions: []string{
			"Reduce PPV volume by 25%",
			"Increase free engagement content by 20%",
			"Extend gaps between PPVs",
		},
	},
	SaturationRed: {
		Zone:              SaturationRed,
		VolumeMultiplier:  0.5,
		BumpIncreaseRatio: 2.0,
		GapExtensionHours: 1.0,
		CoolingDays:       2,
		Actions: []string{
			"Insert 2 cooling days with zero PPVs",
			"Resume at 50% volume after cooling",
			"Send only free bumps during cooling",
		},
	},
}

// ZoneForScore определяет зону насыщения по оценке и порогу автора.
func ZoneForScore(score, tolerance float64) SaturationZone {
	if tolerance <= 0 {
		tolerance = DefaultSaturationTolerance
	}
	switch {
	case score < tolerance*yellowThresholdRatio:
		return SaturationGreen
	case score < tolerance:
		return SaturationYellow
	default:
		return SaturationRed
	}
}

// ResponseForZone возвращает реакцию для зоны. Неизвестная зона трактуется как GREEN.
func ResponseForZone(zone SaturationZone) SaturationResponse {
	if resp, ok := saturationResponses[zone]; ok {
		return resp
	}
	return saturationResponses[SaturationGreen]
}

// EvaluateSaturation сопоставляет оценку насыщения с реакцией расписания.
func EvaluateSaturation(score, tolerance float64) SaturationResponse {
	return ResponseForZone(ZoneForScore(score, tolerance))
}
