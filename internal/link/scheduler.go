package link

import "time"

// Timer 可取消的定时任务
type Timer interface {
	Stop() bool
}

// Scheduler 延迟执行。所有等待（扫描超时、连接超时、重连退避、确认限速）都通过它表达。
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler 基于 time.AfterFunc 的实现
type SystemScheduler struct{}

func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type timerKind int

const (
	timerScanTimeout timerKind = iota
	timerRescan
	timerConnectTimeout
	timerAckFlush
)

func (k timerKind) String() string {
	switch k {
	case timerScanTimeout:
		return "scan_timeout"
	case timerRescan:
		return "rescan"
	case timerConnectTimeout:
		return "connect_timeout"
	case timerAckFlush:
		return "ack_flush"
	}
	return "unknown"
}
