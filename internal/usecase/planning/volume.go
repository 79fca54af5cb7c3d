package planning

import (
	"math"

	"schedule-builder/internal/domain"
)

// Volume содержит недельные объёмы сообщений.
type Volume struct {
	BasePPV  int
	BaseBump int
	PPV      int
	Bump     int
	Zone     domain.SaturationZone
}

// CalculateVolume рассчитывает недельные объёмы PPV и bump.
// Все деления и умножения усекаются вниз.
func CalculateVolume(profile domain.AccountTierProfile, resp domain.SaturationResponse) Volume {
	basePPV := (profile.WeeklyPPVMin + profile.WeeklyPPVMax) / 2
	baseBump := (profile.WeeklyBumpMin + profile.WeeklyBumpMax) / 2
	return Volume{
		BasePPV:  basePPV,
		BaseBump: baseBump,
		PPV:      floorMul(basePPV, resp.VolumeMultiplier),
		Bump:     floorMul(baseBump, resp.BumpIncreaseRatio),
		Zone:     resp.Zone,
	}
}

// ApplyOverride заменяет рассчитанные объёмы ручными значениями.
func ApplyOverride(v Volume, override *domain.VolumeOverride) Volume {
	if override == nil {
		return v
	}
	v.PPV = max(override.PPV, 0)
	v.Bump = max(override.Bump, 0)
	if override.Zone != "" {
		v.Zone = override.Zone
	}
	return v
}

func floorMul(n int, factor float64) int {
	return int(math.Floor(float64(n) * factor))
}
