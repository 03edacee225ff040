package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wisefido-collar/internal/accumulator"
	"wisefido-collar/internal/config"
	"wisefido-collar/internal/inference"
	"wisefido-collar/internal/link"
	"wisefido-collar/internal/models"
	"wisefido-collar/internal/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher 事件发布（publisher.Publisher 实现）
type EventPublisher interface {
	Publish(ctx context.Context, kind models.EventKind, deviceID string, event interface{}) error
}

// StateStore 当日状态存储（repository.ActivityStateRepository 实现）
type StateStore interface {
	LoadOrEmpty(ctx context.Context, deviceID string) (accumulator.Day, error)
	Save(ctx context.Context, deviceID string, day accumulator.Day) error
}

// DailyStore 每日汇总存储（repository.DailyActivityRepository 实现）
type DailyStore interface {
	Upsert(ctx context.Context, s models.DailySummary) error
}

// TrackerConfig 活动跟踪参数
type TrackerConfig struct {
	DeviceID            string
	LabelSource         string
	ConfidenceThreshold int
	LowBatteryPercent   int
	StrideMeters        float64
	KcalPerStep         float64
	Location            *time.Location
	FlushInterval       time.Duration
	CaptureLSBPerG      float64
	InferenceEvery      int // 每隔多少个完整窗口发布一次推理事件（标签变化时总会发布）
	VoteWindow          int
	StabilityThreshold  int
}

// TrackerConfigFrom 从服务配置构建
func TrackerConfigFrom(cfg *config.Config, loc *time.Location) TrackerConfig {
	c := cfg.Collar
	return TrackerConfig{
		DeviceID:            c.DeviceID,
		LabelSource:         c.LabelSource,
		ConfidenceThreshold: c.Activity.ConfidenceThreshold,
		LowBatteryPercent:   c.Activity.LowBatteryPercent,
		StrideMeters:        c.Activity.StrideMeters,
		KcalPerStep:         c.Activity.KcalPerStep,
		Location:            loc,
		FlushInterval:       c.Activity.SummaryFlushInterval,
		CaptureLSBPerG:      c.Inference.CaptureLSBPerG,
		InferenceEvery:      cfg.WindowSize(),
		VoteWindow:          c.Inference.VoteWindow,
		StabilityThreshold:  c.Inference.StabilityThreshold,
	}
}

// 投递给跟踪器事件循环的工作项
type (
	recordBatch struct{ records []protocol.Record }
	sampleBatch struct {
		source  string
		samples []Sample
	}
	linkChange struct{ change link.StateChange }
)

// Sample 一个三轴加速度样本（g）。TimeMs 为空时使用本机时钟。
type Sample struct {
	Ax, Ay, Az float64
	TimeMs     *uint32
}

// Tracker 把项圈记录和原始样本变成稳定标签、按标签累计时长、步数和告警。
// 所有状态只在 Run 的事件循环中修改；快照通过读锁提供给其他 goroutine。
type Tracker struct {
	cfg        TrackerConfig
	pipeline   *inference.Pipeline
	stabilizer *inference.Stabilizer
	publisher  EventPublisher
	states     StateStore
	daily      DailyStore
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
	start      time.Time

	in chan interface{}

	readyWindows int
	batteryArmed bool

	mu        sync.RWMutex
	day       accumulator.Day
	sessionID string
	battery   *uint8
}

// NewTracker 创建活动跟踪器。daily 可以为 nil（未配置数据库）。
func NewTracker(
	cfg TrackerConfig,
	pipeline *inference.Pipeline,
	publisher EventPublisher,
	states StateStore,
	daily DailyStore,
	metrics *Metrics,
	logger *zap.Logger,
) *Tracker {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.InferenceEvery < 1 {
		cfg.InferenceEvery = 1
	}
	now := time.Now
	return &Tracker{
		cfg:          cfg,
		pipeline:     pipeline,
		stabilizer:   inference.NewStabilizer(cfg.VoteWindow, cfg.StabilityThreshold),
		publisher:    publisher,
		states:       states,
		daily:        daily,
		metrics:      metrics,
		logger:       logger,
		now:          now,
		start:        now(),
		in:           make(chan interface{}, 1024),
		batteryArmed: true,
	}
}

// OnRecords 实现 link.Listener
func (t *Tracker) OnRecords(records []protocol.Record) {
	t.enqueue(recordBatch{records: records})
}

// OnCaptureSamples 实现 link.Listener：采集特征的原始计数换算为 g 后进入推理流水线
func (t *Tracker) OnCaptureSamples(samples []protocol.CaptureSample) {
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		ax, ay, az := s.AccelG(t.cfg.CaptureLSBPerG)
		out = append(out, Sample{Ax: ax, Ay: ay, Az: az})
	}
	t.enqueue(sampleBatch{source: "ble", samples: out})
}

// OnStateChange 实现 link.Listener
func (t *Tracker) OnStateChange(change link.StateChange) {
	t.enqueue(linkChange{change: change})
}

// OnSamples 投递来自其他来源（MQTT）的样本
func (t *Tracker) OnSamples(source string, samples []Sample) {
	t.enqueue(sampleBatch{source: source, samples: samples})
}

// enqueue 不阻塞：调用方是链路事件循环或 MQTT 回调，队列满时丢弃并计数
func (t *Tracker) enqueue(item interface{}) {
	select {
	case t.in <- item:
		return
	default:
	}

	records := 0
	if b, ok := item.(recordBatch); ok {
		records = len(b.records)
	}
	t.metrics.IncrementDropped(records)
	t.logger.Warn("Tracker queue full, dropping batch",
		zap.String("device_id", t.cfg.DeviceID),
		zap.String("type", fmt.Sprintf("%T", item)),
		zap.Int("records", records),
	)
}

// Run 运行事件循环直到 ctx 取消；退出前保存状态并写入当日汇总
func (t *Tracker) Run(ctx context.Context) error {
	t.restore(ctx)

	interval := t.cfg.FlushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	go t.reportMetrics(ctx)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			t.flush(flushCtx)
			cancel()
			return nil
		case item := <-t.in:
			t.handle(ctx, item)
		case <-ticker.C:
			t.flush(ctx)
		}
	}
}

func (t *Tracker) handle(ctx context.Context, item interface{}) {
	switch it := item.(type) {
	case recordBatch:
		t.onRecords(ctx, it.records)
	case sampleBatch:
		t.onSamples(ctx, it.source, it.samples)
	case linkChange:
		t.onLinkChange(ctx, it.change)
	}
}

// restore 读取持久化的当日状态；跨日时先结算上一日
func (t *Tracker) restore(ctx context.Context) {
	loaded, err := t.states.LoadOrEmpty(ctx, t.cfg.DeviceID)
	if err != nil {
		t.logger.Warn("Failed to load activity state, starting fresh",
			zap.String("device_id", t.cfg.DeviceID),
			zap.Error(err),
		)
	}

	t.mu.Lock()
	t.day = loaded
	t.mu.Unlock()

	t.rollover(ctx)
	t.logger.Info("Activity state restored",
		zap.String("device_id", t.cfg.DeviceID),
		zap.String("day", t.day.Key),
		zap.Uint64("active_ms", t.day.State.ActiveMs),
		zap.Uint64("steps", t.day.Steps),
	)
}

// rollover 日期变化时结算上一日并清零
func (t *Tracker) rollover(ctx context.Context) {
	today := accumulator.DayKey(t.now(), t.cfg.Location)

	t.mu.Lock()
	next, finished := t.day.Rollover(today)
	t.day = next
	t.mu.Unlock()

	if finished == nil {
		return
	}
	t.logger.Info("Day boundary reached, flushing daily summary",
		zap.String("device_id", t.cfg.DeviceID),
		zap.String("finished_day", finished.Key),
		zap.String("today", today),
	)
	summary := finished.Summary(t.cfg.DeviceID, t.cfg.StrideMeters, t.cfg.KcalPerStep, nil)
	t.writeSummary(ctx, summary)
	t.saveState(ctx)
}

func (t *Tracker) onRecords(ctx context.Context, records []protocol.Record) {
	t.rollover(ctx)

	for _, rec := range records {
		raw := models.ClampLabel(int(rec.Label))
		cleaned := raw
		gated := int(rec.Confidence) < t.cfg.ConfidenceThreshold
		if gated {
			cleaned = models.LabelRest
		}

		steps := accumulator.EstimateSteps(raw, rec.Confidence)

		t.mu.Lock()
		stable, changed := t.stabilizer.Push(cleaned)
		var credited uint64
		if t.cfg.LabelSource != config.LabelSourceHost {
			credited = t.day.Apply(stable, rec.SensorTimeMs, t.now())
		}
		t.day.AddSteps(steps)
		battery := rec.Battery
		t.battery = &battery
		day := t.day
		sessionID := t.sessionID
		t.mu.Unlock()

		t.metrics.IncrementRecord(gated, credited)

		t.publish(ctx, models.KindActivity, models.ActivityEvent{
			EventID:      uuid.NewString(),
			DeviceID:     t.cfg.DeviceID,
			SessionID:    sessionID,
			Seq:          rec.Seq,
			SensorTimeMs: rec.SensorTimeMs,
			RawLabel:     raw,
			Label:        stable,
			Changed:      changed,
			Confidence:   rec.Confidence,
			Battery:      rec.Battery,
			StepsTotal:   day.Steps,
			PerLabelMs:   day.State.PerLabelMs,
			ActiveMs:     day.State.ActiveMs,
			CreditedMs:   credited,
			Timestamp:    t.now().UnixMilli(),
		})

		if changed {
			t.logger.Info("Activity changed",
				zap.String("device_id", t.cfg.DeviceID),
				zap.String("label", stable.String()),
				zap.Uint32("seq", rec.Seq),
			)
		}
		t.checkBattery(ctx, rec.Battery)
	}

	t.saveState(ctx)
}

func (t *Tracker) onSamples(ctx context.Context, source string, samples []Sample) {
	if len(samples) == 0 {
		return
	}
	t.metrics.IncrementSamples(len(samples))

	host := t.cfg.LabelSource == config.LabelSourceHost
	if host {
		t.rollover(ctx)
	}

	credited := false
	for _, s := range samples {
		res := t.pipeline.Process(s.Ax, s.Ay, s.Az)

		if host && res.Ready {
			ts := t.sampleTime(s)
			t.mu.Lock()
			if t.day.Apply(res.Label, ts, t.now()) > 0 {
				credited = true
			}
			t.mu.Unlock()
		}

		if !res.Ready && !res.Calibrating {
			continue
		}
		t.readyWindows++
		if !res.Changed && t.readyWindows%t.cfg.InferenceEvery != 0 {
			continue
		}
		t.publish(ctx, models.KindInference, models.InferenceEvent{
			EventID:     uuid.NewString(),
			DeviceID:    t.cfg.DeviceID,
			Source:      source,
			RawLabel:    res.Raw,
			Label:       res.Label,
			Changed:     res.Changed,
			Features:    res.Features,
			Distances:   res.Distances,
			Calibrating: res.Calibrating,
			Timestamp:   t.now().UnixMilli(),
		})
	}

	if credited {
		t.saveState(ctx)
	}
}

// sampleTime 样本时间戳；缺省时用本机启动后的毫秒数
func (t *Tracker) sampleTime(s Sample) uint32 {
	if s.TimeMs != nil {
		return *s.TimeMs
	}
	return uint32(t.now().Sub(t.start).Milliseconds())
}

func (t *Tracker) onLinkChange(ctx context.Context, change link.StateChange) {
	t.mu.Lock()
	if change.SessionID != "" {
		t.sessionID = change.SessionID
	}
	t.mu.Unlock()

	t.publish(ctx, models.KindLink, models.LinkStatusEvent{
		DeviceID:  t.cfg.DeviceID,
		SessionID: change.SessionID,
		Address:   change.Address,
		From:      change.From.String(),
		State:     change.To.String(),
		Timestamp: change.At.UnixMilli(),
	})
}

// checkBattery 低电量告警，回到阈值以上后重新布防
func (t *Tracker) checkBattery(ctx context.Context, battery uint8) {
	threshold := t.cfg.LowBatteryPercent
	if int(battery) >= threshold {
		t.batteryArmed = true
		return
	}
	if !t.batteryArmed {
		return
	}
	t.batteryArmed = false

	t.logger.Warn("Collar battery low",
		zap.String("device_id", t.cfg.DeviceID),
		zap.Uint8("battery", battery),
	)
	t.publish(ctx, models.KindAlert, models.AlertEvent{
		EventID:   uuid.NewString(),
		DeviceID:  t.cfg.DeviceID,
		Type:      models.AlertLowBattery,
		Severity:  2,
		Message:   "collar battery below threshold",
		Battery:   battery,
		Timestamp: t.now().UnixMilli(),
	})
}

func (t *Tracker) publish(ctx context.Context, kind models.EventKind, event interface{}) {
	if err := t.publisher.Publish(ctx, kind, t.cfg.DeviceID, event); err != nil {
		t.metrics.IncrementFailed("publish")
	}
}

func (t *Tracker) saveState(ctx context.Context) {
	t.mu.RLock()
	day := t.day
	t.mu.RUnlock()

	if err := t.states.Save(ctx, t.cfg.DeviceID, day); err != nil {
		t.metrics.IncrementFailed("state")
		t.logger.Warn("Failed to persist activity state",
			zap.String("device_id", t.cfg.DeviceID),
			zap.Error(err),
		)
	}
}

// flush 定期写入当日汇总
func (t *Tracker) flush(ctx context.Context) {
	t.rollover(ctx)
	t.saveState(ctx)
	t.writeSummary(ctx, t.Today())
}

func (t *Tracker) writeSummary(ctx context.Context, s models.DailySummary) {
	if t.daily != nil {
		if err := t.daily.Upsert(ctx, s); err != nil {
			t.metrics.IncrementFailed("summary")
			t.logger.Warn("Failed to store daily summary",
				zap.String("device_id", s.DeviceID),
				zap.String("day", s.Day),
				zap.Error(err),
			)
		}
	}
	t.publish(ctx, models.KindSummary, s)
}

// CurrentLabel 当前稳定标签（按配置的标签来源）
func (t *Tracker) CurrentLabel() models.Label {
	if t.cfg.LabelSource == config.LabelSourceHost {
		return t.pipeline.Current()
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stabilizer.Current()
}

// Today 当日汇总快照
func (t *Tracker) Today() models.DailySummary {
	current := t.CurrentLabel()
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.day.Summary(t.cfg.DeviceID, t.cfg.StrideMeters, t.cfg.KcalPerStep, &current)
}

// Battery 最近一次上报的电量
func (t *Tracker) Battery() (uint8, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.battery == nil {
		return 0, false
	}
	return *t.battery, true
}

// Metrics 指标
func (t *Tracker) Metrics() *Metrics {
	return t.metrics
}

// reportMetrics 定期报告指标（每60秒）
func (t *Tracker) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := t.metrics.GetSnapshot()
			gatedRate := float64(0)
			if snapshot.RecordsProcessed > 0 {
				gatedRate = float64(snapshot.RecordsGated) / float64(snapshot.RecordsProcessed) * 100
			}

			t.logger.Info("Metrics report",
				zap.Int64("records_processed", snapshot.RecordsProcessed),
				zap.Int64("records_gated", snapshot.RecordsGated),
				zap.Float64("gated_rate", gatedRate),
				zap.Int64("samples_processed", snapshot.SamplesProcessed),
				zap.Int64("samples_skipped", snapshot.SamplesSkipped),
				zap.Int64("batches_dropped", snapshot.BatchesDropped),
				zap.Int64("records_dropped", snapshot.RecordsDropped),
				zap.Int64("errors_publish", snapshot.ErrorsPublish),
				zap.Int64("errors_state", snapshot.ErrorsState),
				zap.Int64("errors_summary", snapshot.ErrorsSummary),
				zap.Int64("time_credited_ms", snapshot.TimeCreditedMs),
				zap.Duration("uptime", time.Since(snapshot.StartTime)),
			)
		}
	}
}
