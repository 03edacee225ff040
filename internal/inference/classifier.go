package inference

import (
	"wisefido-collar/internal/calibration"
	"wisefido-collar/internal/models"
)

// 未校准时按均值分级的阈值（g）
const (
	fallbackWalkMean = 0.08
	fallbackRunMean  = 0.25
	fallbackPlayMean = 0.50
)

// Classify 根据特征和校准档案给出原始标签。
// sensitivity > 1 时“超过”类阈值被除、“低于”类阈值被乘，更容易判为运动。
// 规则按固定优先级匹配：REST、PLAY、RUN、WALK，否则 REST。
func Classify(f models.Features, p calibration.Profiles, sensitivity float64) models.Label {
	if !ValidSensitivity(sensitivity) {
		sensitivity = 1
	}
	if !p.Calibrated {
		return classifyByMean(f.Mean, sensitivity)
	}

	sf := sensitivity
	rest, walk, run := p.Rest, p.Walk, p.Run

	isRest := f.Variance < rest.Variance*2.0*sf &&
		f.Energy < (rest.Energy+walk.Energy)/2*sf &&
		f.Std < rest.Std*2.0*sf
	if isRest {
		return models.LabelRest
	}

	// 峰值高且方差大：动作不规则，区别于奔跑
	isPlay := f.Peak > run.Peak*1.3/sf &&
		f.Variance > run.Variance*1.2/sf
	if isPlay {
		return models.LabelPlay
	}

	isRun := f.Energy > (walk.Energy+run.Energy)/2/sf &&
		f.RMS > (walk.RMS+run.RMS)/2/sf
	if isRun {
		return models.LabelRun
	}

	isWalk := f.Energy > rest.Energy*1.5/sf ||
		f.Std > rest.Std*1.5/sf
	if isWalk {
		return models.LabelWalk
	}

	return models.LabelRest
}

func classifyByMean(mean, sf float64) models.Label {
	switch {
	case mean > fallbackPlayMean/sf:
		return models.LabelPlay
	case mean > fallbackRunMean/sf:
		return models.LabelRun
	case mean > fallbackWalkMean/sf:
		return models.LabelWalk
	default:
		return models.LabelRest
	}
}
