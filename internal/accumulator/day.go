package accumulator

import (
	"time"

	"wisefido-collar/internal/models"
)

// DayKeyLayout 日期键格式
const DayKeyLayout = "2006-01-02"

// 每条记录的步数基数：rest / walk / run / play
var stepBase = [models.LabelCount]uint64{0, 4, 8, 1}

// Day 一天的累计数据（持久化单元）
type Day struct {
	Key       string    `json:"day"`
	State     State     `json:"state"`
	Steps     uint64    `json:"steps"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DayKey 给定时区下的日期键
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayKeyLayout)
}

// NewDay 创建空的一天
func NewDay(key string) Day {
	return Day{Key: key}
}

// Rollover 日期变化时清零。返回当前应使用的一天，以及刚结束的一天（没有切换时为 nil）。
func (d Day) Rollover(key string) (Day, *Day) {
	if d.Key == key {
		return d, nil
	}
	finished := d
	if finished.Key == "" {
		return NewDay(key), nil
	}
	return NewDay(key), &finished
}

// Apply 计入一个稳定标签事件
func (d *Day) Apply(label models.Label, sensorTimeMs uint32, now time.Time) uint64 {
	var credited uint64
	d.State, credited = OnEvent(d.State, label, sensorTimeMs)
	d.UpdatedAt = now
	return credited
}

// AddSteps 累加步数
func (d *Day) AddSteps(n uint64) {
	d.Steps += n
}

// EstimateSteps 按项圈上报的标签和置信度估算本条记录的步数
func EstimateSteps(label models.Label, confidence uint8) uint64 {
	if !label.Valid() {
		label = models.ClampLabel(int(label))
	}
	base := stepBase[label]
	if base == 0 {
		return 0
	}
	if confidence > 100 {
		confidence = 100
	}
	steps := base * uint64(confidence) / 100
	if steps < 1 {
		steps = 1
	}
	return steps
}

// Summary 生成当日汇总。strideMeters 为步幅，kcalPerStep 为每步消耗。
func (d Day) Summary(deviceID string, strideMeters, kcalPerStep float64, current *models.Label) models.DailySummary {
	minutes := make(map[string]int64, models.LabelCount)
	seconds := make(map[string]int64, models.LabelCount)
	for i, ms := range d.State.PerLabelMs {
		name := models.Label(i).String()
		minutes[name] = int64(ms / 60_000)
		seconds[name] = int64(ms / 1_000)
	}

	return models.DailySummary{
		DeviceID:          deviceID,
		Day:               d.Key,
		PerLabelMs:        d.State.PerLabelMs,
		ActiveMs:          d.State.ActiveMs,
		ActiveMinutes:     int64(d.State.ActiveMs / 60_000),
		MinutesByActivity: minutes,
		SecondsByActivity: seconds,
		Steps:             d.Steps,
		CaloriesKcal:      float64(d.Steps) * kcalPerStep,
		DistanceKm:        float64(d.Steps) * strideMeters / 1000,
		CurrentLabel:      current,
	}
}
