package link

import (
	"wisefido-collar/internal/protocol"
)

// Transport 无线传输层。所有方法只负责发起操作，结果通过 Bind 注册的 post 以事件形式异步回送。
type Transport interface {
	Bind(post func(Event))
	StartScan() error
	StopScan() error
	Connect(address string) error
	Disconnect() error
	DiscoverServices() error
	RequestMTU(mtu int) error
	EnableNotifications() error
	// WriteAck 写确认帧（无需响应）
	WriteAck(frame []byte) error
}

// Listener 状态机的下游。回调都在事件循环 goroutine 中执行。
type Listener interface {
	OnRecords(records []protocol.Record)
	OnCaptureSamples(samples []protocol.CaptureSample)
	OnStateChange(change StateChange)
}
