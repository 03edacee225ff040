package calibration

import "wisefido-collar/internal/models"

// 旧版 3 值校准的估算倍数。只是经验值，完整 6 值校准优先。
var (
	legacyStd  = [3]float64{0.3, 0.4, 0.5}
	legacyPeak = [3]float64{1.5, 2.0, 2.5}
)

const legacyRMS = 1.1

// LegacyProfiles 由 rest / walk / run 的均值估算完整档案
func LegacyProfiles(restMean, walkMean, runMean float64) (rest, walk, run models.Features) {
	return legacyProfile(restMean, 0), legacyProfile(walkMean, 1), legacyProfile(runMean, 2)
}

func legacyProfile(mean float64, i int) models.Features {
	std := mean * legacyStd[i]
	return models.Features{
		Mean:     mean,
		Std:      std,
		Variance: std * std,
		RMS:      mean * legacyRMS,
		Peak:     mean * legacyPeak[i],
		Energy:   mean * mean,
	}
}
