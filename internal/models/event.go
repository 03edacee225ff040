package models

// EventKind 事件类型（决定发布主题/stream 名称）
type EventKind string

const (
	KindActivity  EventKind = "activity"
	KindInference EventKind = "inference"
	KindAlert     EventKind = "alert"
	KindSummary   EventKind = "summary"
	KindLink      EventKind = "link"
)

// ActivityEvent 每条项圈记录处理后的输出
type ActivityEvent struct {
	EventID      string             `json:"event_id"`
	DeviceID     string             `json:"device_id"`
	SessionID    string             `json:"session_id,omitempty"`
	Seq          uint32             `json:"seq"`
	SensorTimeMs uint32             `json:"sensor_time_ms"`
	RawLabel     Label              `json:"raw_label"`
	Label        Label              `json:"label"` // 稳定标签
	Changed      bool               `json:"changed"`
	Confidence   uint8              `json:"confidence"`
	Battery      uint8              `json:"battery"`
	StepsTotal   uint64             `json:"steps_total"`
	PerLabelMs   [LabelCount]uint64 `json:"per_label_ms"`
	ActiveMs     uint64             `json:"active_ms"`
	CreditedMs   uint64             `json:"credited_ms"`
	Timestamp    int64              `json:"timestamp"`
}

// InferenceEvent 本机推理流水线输出（原始加速度 -> 稳定标签）
type InferenceEvent struct {
	EventID     string             `json:"event_id"`
	DeviceID    string             `json:"device_id"`
	Source      string             `json:"source"` // "ble" 或 "mqtt"
	RawLabel    Label              `json:"raw_label"`
	Label       Label              `json:"label"`
	Changed     bool               `json:"changed"`
	Features    Features           `json:"features"`
	Distances   map[string]float64 `json:"distances,omitempty"`
	Calibrating bool               `json:"calibrating,omitempty"`
	Timestamp   int64              `json:"timestamp"`
}

// AlertEvent 告警（目前只有低电量）
type AlertEvent struct {
	EventID   string `json:"event_id"`
	DeviceID  string `json:"device_id"`
	Type      string `json:"type"`
	Severity  int    `json:"severity"`
	Message   string `json:"message"`
	Battery   uint8  `json:"battery"`
	Timestamp int64  `json:"timestamp"`
}

// AlertLowBattery 低电量告警类型
const AlertLowBattery = "LOW_BATTERY"

// LinkStatusEvent 链路状态变化
type LinkStatusEvent struct {
	DeviceID  string `json:"device_id"`
	SessionID string `json:"session_id,omitempty"`
	Address   string `json:"address,omitempty"`
	From      string `json:"from"`
	State     string `json:"state"`
	Timestamp int64  `json:"timestamp"`
}

// DailySummary 当日活动汇总
type DailySummary struct {
	DeviceID          string             `json:"device_id"`
	Day               string             `json:"day"`
	PerLabelMs        [LabelCount]uint64 `json:"per_label_ms"`
	ActiveMs          uint64             `json:"active_ms"`
	ActiveMinutes     int64              `json:"active_minutes"`
	MinutesByActivity map[string]int64   `json:"minutes_by_activity"`
	SecondsByActivity map[string]int64   `json:"seconds_by_activity"`
	Steps             uint64             `json:"steps"`
	CaloriesKcal      float64            `json:"calories_kcal"`
	DistanceKm        float64            `json:"distance_km"`
	CurrentLabel      *Label             `json:"current_label,omitempty"`
}
