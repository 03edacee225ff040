package link

// State 链路状态
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateDiscoveringServices
	StateNegotiatingMTU
	StateSubscribingNotifications
	StateStreaming
	StateDisconnected
)

var stateNames = [...]string{
	StateIdle:                     "idle",
	StateScanning:                 "scanning",
	StateConnecting:               "connecting",
	StateDiscoveringServices:      "discovering_services",
	StateNegotiatingMTU:           "negotiating_mtu",
	StateSubscribingNotifications: "subscribing_notifications",
	StateStreaming:                "streaming",
	StateDisconnected:             "disconnected",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Connected 是否已建立链路层连接（发现服务之后的各个阶段）
func (s State) Connected() bool {
	return s >= StateDiscoveringServices && s <= StateStreaming
}
