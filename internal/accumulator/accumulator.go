package accumulator

import "wisefido-collar/internal/models"

const (
	// MaxGapMs 超过该间隔视为时钟跳变，只重新同步不计时
	MaxGapMs = 10_000
	// MaxCreditMs 单个事件最多计入的时长
	MaxCreditMs = 2_000
)

// State 按标签累计的设备时间。由调用方持有并在会话之间持久化。
type State struct {
	LastSensorTimeMs *uint32                   `json:"last_sensor_time_ms,omitempty"`
	PerLabelMs       [models.LabelCount]uint64 `json:"per_label_ms"`
	ActiveMs         uint64                    `json:"active_ms"`
}

// OnEvent 计入一个 (稳定标签, 设备时间) 事件，返回新状态和本次计入的毫秒数。
// label 必须已限制在 0..3；越界时按 REST 处理。
func OnEvent(s State, label models.Label, sensorTimeMs uint32) (State, uint64) {
	if !label.Valid() {
		label = models.LabelRest
	}

	t := sensorTimeMs
	if s.LastSensorTimeMs == nil {
		s.LastSensorTimeMs = &t
		return s, 0
	}

	dt := int64(sensorTimeMs) - int64(*s.LastSensorTimeMs)
	s.LastSensorTimeMs = &t
	if dt <= 0 || dt > MaxGapMs {
		return s, 0
	}
	if dt > MaxCreditMs {
		dt = MaxCreditMs
	}

	credit := uint64(dt)
	s.PerLabelMs[label] += credit
	if label.Active() {
		s.ActiveMs += credit
	}
	return s, credit
}

// Total 所有标签的累计时长
func (s State) Total() uint64 {
	var total uint64
	for _, ms := range s.PerLabelMs {
		total += ms
	}
	return total
}
