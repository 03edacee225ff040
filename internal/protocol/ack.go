package protocol

import "time"

// AckManager 记录最新已处理的 seq，并按最小间隔生成确认帧
type AckManager struct {
	minInterval time.Duration

	haveProcessed bool
	lastProcessed uint32

	haveAcked bool
	lastAcked uint32
	lastAckAt time.Time

	// 上一次成功提交前的状态，用于 Retract
	prevHaveAcked bool
	prevAcked     uint32
	prevAckAt     time.Time
}

// NewAckManager 创建确认管理器
func NewAckManager(minInterval time.Duration) *AckManager {
	return &AckManager{minInterval: minInterval}
}

// OnRecordProcessed 记录已处理的 seq
func (a *AckManager) OnRecordProcessed(seq uint32) {
	a.lastProcessed = seq
	a.haveProcessed = true
}

// Pending 是否存在尚未确认的 seq
func (a *AckManager) Pending() bool {
	return a.haveProcessed && (!a.haveAcked || a.lastAcked != a.lastProcessed)
}

// MaybeBuildAck 在允许时生成确认帧并视为已发送。
// force 忽略间隔与重复检查，但仍要求至少处理过一条记录。
func (a *AckManager) MaybeBuildAck(force bool, now time.Time) (AckFrame, bool) {
	if !a.haveProcessed {
		return AckFrame{}, false
	}
	if !force {
		if !a.Pending() {
			return AckFrame{}, false
		}
		if a.haveAcked && now.Sub(a.lastAckAt) < a.minInterval {
			return AckFrame{}, false
		}
	}

	a.prevHaveAcked, a.prevAcked, a.prevAckAt = a.haveAcked, a.lastAcked, a.lastAckAt
	a.haveAcked = true
	a.lastAcked = a.lastProcessed
	a.lastAckAt = now
	return AckFrame{Seq: a.lastProcessed}, true
}

// NextDue 距离下一次允许发送还需等待多久；没有待确认 seq 时返回 false
func (a *AckManager) NextDue(now time.Time) (time.Duration, bool) {
	if !a.Pending() {
		return 0, false
	}
	if !a.haveAcked {
		return 0, true
	}
	wait := a.minInterval - now.Sub(a.lastAckAt)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// Retract 撤销最近一次生成的确认（写入失败时调用），下次会重试同一 seq
func (a *AckManager) Retract(frame AckFrame) {
	if !a.haveAcked || a.lastAcked != frame.Seq {
		return
	}
	a.haveAcked, a.lastAcked, a.lastAckAt = a.prevHaveAcked, a.prevAcked, a.prevAckAt
}

// LastAcked 最近一次确认的 seq
func (a *AckManager) LastAcked() (uint32, bool) {
	return a.lastAcked, a.haveAcked
}

// Reset 清空会话状态（断开连接时调用）
func (a *AckManager) Reset() {
	*a = AckManager{minInterval: a.minInterval}
}
