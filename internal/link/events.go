package link

// Event 投递到链路事件循环的事件。传输层回调和定时器都只通过事件与状态机交互。
type Event interface {
	linkEvent()
}

// Advertisement 扫描到的广播
type Advertisement struct {
	Address      string
	Name         string
	ServiceUUIDs []string
	RSSI         int16
}

// ScanFailed 扫描启动后异步失败
type ScanFailed struct {
	Err error
}

// Connected 链路层已连接
type Connected struct {
	Address string
}

// Disconnected 链路层断开（任何阶段）
type Disconnected struct {
	Address string
	Err     error
}

// GattLayout 服务发现的结果
type GattLayout struct {
	Service bool
	Result  bool
	Ack     bool
	Capture bool
}

// ServicesDiscovered 服务发现完成；Err 非空时 Layout 为尽力而为的结果
type ServicesDiscovered struct {
	Layout GattLayout
	Err    error
}

// MTUNegotiated MTU 协商完成
type MTUNegotiated struct {
	MTU int
	Err error
}

// NotificationsEnabled 订阅结果；NoDescriptor 表示特征没有 CCCD
type NotificationsEnabled struct {
	NoDescriptor bool
	Err          error
}

// Notification 结果特征的通知分片
type Notification struct {
	Data []byte
}

// CaptureNotification 采集特征的通知
type CaptureNotification struct {
	Data []byte
}

type startEvent struct{}

type timerFired struct {
	kind timerKind
	gen  uint64
}

func (Advertisement) linkEvent()        {}
func (ScanFailed) linkEvent()           {}
func (Connected) linkEvent()            {}
func (Disconnected) linkEvent()         {}
func (ServicesDiscovered) linkEvent()   {}
func (MTUNegotiated) linkEvent()        {}
func (NotificationsEnabled) linkEvent() {}
func (Notification) linkEvent()         {}
func (CaptureNotification) linkEvent()  {}
func (startEvent) linkEvent()           {}
func (timerFired) linkEvent()           {}
