package consumer

import (
	"sync"
	"time"
)

// Metrics 监控指标
type Metrics struct {
	mu sync.RWMutex

	// 记录处理统计
	RecordsProcessed int64 // 处理的项圈记录总数
	RecordsGated     int64 // 置信度不足按 REST 处理的记录数
	SamplesProcessed int64 // 进入推理流水线的原始样本数
	SamplesSkipped   int64 // 跳过的样本消息（其他设备、格式错误）
	BatchesDropped   int64 // 队列满时丢弃的批次
	RecordsDropped   int64 // 其中丢弃的项圈记录数

	// 错误分类统计
	ErrorsPublish int64 // 事件发布失败
	ErrorsState   int64 // 当日状态持久化失败
	ErrorsSummary int64 // 每日汇总写库失败

	TimeCreditedMs int64     // 累计计入的活动时长
	LastRecordTime time.Time // 最后一条记录的处理时间
	StartTime      time.Time
}

// NewMetrics 创建指标
func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		RecordsProcessed: m.RecordsProcessed,
		RecordsGated:     m.RecordsGated,
		SamplesProcessed: m.SamplesProcessed,
		SamplesSkipped:   m.SamplesSkipped,
		BatchesDropped:   m.BatchesDropped,
		RecordsDropped:   m.RecordsDropped,
		ErrorsPublish:    m.ErrorsPublish,
		ErrorsState:      m.ErrorsState,
		ErrorsSummary:    m.ErrorsSummary,
		TimeCreditedMs:   m.TimeCreditedMs,
		LastRecordTime:   m.LastRecordTime,
		StartTime:        m.StartTime,
	}
}

// IncrementRecord 增加记录计数
func (m *Metrics) IncrementRecord(gated bool, creditedMs uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsProcessed++
	if gated {
		m.RecordsGated++
	}
	m.TimeCreditedMs += int64(creditedMs)
	m.LastRecordTime = time.Now()
}

// IncrementSamples 增加样本计数
func (m *Metrics) IncrementSamples(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SamplesProcessed += int64(n)
}

// IncrementSkipped 增加跳过计数
func (m *Metrics) IncrementSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SamplesSkipped++
}

// IncrementDropped 记录一次丢弃的批次，records 为其中的记录数
func (m *Metrics) IncrementDropped(records int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchesDropped++
	m.RecordsDropped += int64(records)
}

// IncrementFailed 增加失败计数
func (m *Metrics) IncrementFailed(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch errorType {
	case "publish":
		m.ErrorsPublish++
	case "state":
		m.ErrorsState++
	case "summary":
		m.ErrorsSummary++
	}
}
