package inference

import (
	"math"

	"wisefido-collar/internal/models"
)

// Extract 计算窗口的统计特征，每次从头计算。空窗口返回全零。
func Extract(window []float64) models.Features {
	n := len(window)
	if n == 0 {
		return models.Features{}
	}

	var sum, sumSq, peak float64
	for _, v := range window {
		sum += v
		sumSq += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	mean := sum / float64(n)

	var dev float64
	for _, v := range window {
		d := v - mean
		dev += d * d
	}
	variance := dev / float64(n)
	energy := sumSq / float64(n)

	return models.Features{
		Mean:     mean,
		Std:      math.Sqrt(variance),
		Variance: variance,
		RMS:      math.Sqrt(energy),
		Peak:     peak,
		Energy:   energy,
	}
}

// Distance 两组特征在 (mean, std, rms, energy) 上的欧氏距离
func Distance(a, b models.Features) float64 {
	dm := a.Mean - b.Mean
	ds := a.Std - b.Std
	dr := a.RMS - b.RMS
	de := a.Energy - b.Energy
	return math.Sqrt(dm*dm + ds*ds + dr*dr + de*de)
}
