package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"wisefido-collar/internal/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	errConnectTimeout     = errors.New("connect timeout")
	errPrimaryCharMissing = errors.New("primary characteristic not found")
)

// Config 状态机参数
type Config struct {
	Filter                 Filter
	ScanTimeout            time.Duration
	ScanRetryDelay         time.Duration
	RescanAfterScanTimeout time.Duration
	ConnectTimeout         time.Duration
	ReconnectDelay         time.Duration
	AckMinInterval         time.Duration
	PreferredMTU           int
	RxBufferSize           int
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		Filter:                 Filter{NameContains: "DOGFIT"},
		ScanTimeout:            15 * time.Second,
		ScanRetryDelay:         2 * time.Second,
		RescanAfterScanTimeout: time.Second,
		ConnectTimeout:         12 * time.Second,
		ReconnectDelay:         1500 * time.Millisecond,
		AckMinInterval:         250 * time.Millisecond,
		PreferredMTU:           256,
		RxBufferSize:           protocol.DefaultBufferSize,
	}
}

// StateChange 状态变化通知
type StateChange struct {
	From      State
	To        State
	SessionID string
	Address   string
	At        time.Time
}

// Status 供其他 goroutine 读取的状态快照
type Status struct {
	State                string    `json:"state"`
	SessionID            string    `json:"session_id,omitempty"`
	Address              string    `json:"address,omitempty"`
	MTU                  int       `json:"mtu,omitempty"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	AckEnabled           bool      `json:"ack_enabled"`
	LastAckSeq           *uint32   `json:"last_ack_seq,omitempty"`
	RecordsDecoded       uint64    `json:"records_decoded"`
	Overflows            int       `json:"overflows"`
	Since                time.Time `json:"since"`
}

// session 一次物理连接的会话状态
type session struct {
	id                   string
	address              string
	mtu                  int
	ackAvailable         bool
	captureAvailable     bool
	notificationsEnabled bool
}

type pendingTimer struct {
	gen   uint64
	timer Timer
}

// Option 构造选项
type Option func(*Machine)

// WithScheduler 替换定时器实现（测试使用）
func WithScheduler(s Scheduler) Option {
	return func(m *Machine) { m.sched = s }
}

// WithClock 替换时钟（测试使用）
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// Machine 连接状态机。一个实例对应一条物理链路，独占一个帧重组器和一个确认管理器。
// 除 Post / Status 外的所有状态只在 Run 的事件循环里访问。
type Machine struct {
	cfg       Config
	transport Transport
	listener  Listener
	sched     Scheduler
	now       func() time.Time
	logger    *zap.Logger

	events chan Event
	done   chan struct{}

	state           State
	connectInFlight bool
	sess            *session
	reassembler     *protocol.Reassembler
	acks            *protocol.AckManager
	timers          map[timerKind]pendingTimer
	timerGen        uint64
	records         uint64

	mu     sync.RWMutex
	status Status
}

// NewMachine 创建连接状态机
func NewMachine(cfg Config, transport Transport, listener Listener, logger *zap.Logger, opts ...Option) *Machine {
	m := &Machine{
		cfg:         cfg,
		transport:   transport,
		listener:    listener,
		sched:       SystemScheduler{},
		now:         time.Now,
		logger:      logger,
		events:      make(chan Event, 256),
		done:        make(chan struct{}),
		state:       StateIdle,
		reassembler: protocol.NewReassembler(cfg.RxBufferSize),
		acks:        protocol.NewAckManager(cfg.AckMinInterval),
		timers:      make(map[timerKind]pendingTimer),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.status = Status{State: StateIdle.String(), Since: m.now()}
	transport.Bind(m.Post)
	return m
}

// Post 投递事件（任意 goroutine 可调用）。事件循环退出后丢弃。
func (m *Machine) Post(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// Status 当前状态快照
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.status
	if s.LastAckSeq != nil {
		v := *s.LastAckSeq
		s.LastAckSeq = &v
	}
	return s
}

// Run 运行事件循环直到 ctx 取消
func (m *Machine) Run(ctx context.Context) error {
	defer close(m.done)

	m.handle(startEvent{})
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Machine) handle(ev Event) {
	switch e := ev.(type) {
	case startEvent:
		m.startScan()
	case timerFired:
		m.onTimer(e)
	case Advertisement:
		m.onAdvertisement(e)
	case ScanFailed:
		m.onScanFailed(e)
	case Connected:
		m.onConnected(e)
	case Disconnected:
		m.onDisconnected(e)
	case ServicesDiscovered:
		m.onServicesDiscovered(e)
	case MTUNegotiated:
		m.onMTUNegotiated(e)
	case NotificationsEnabled:
		m.onNotificationsEnabled(e)
	case Notification:
		m.onNotification(e)
	case CaptureNotification:
		m.onCaptureNotification(e)
	}
}

func (m *Machine) onTimer(e timerFired) {
	pt, ok := m.timers[e.kind]
	if !ok || pt.gen != e.gen {
		return // 已取消或已被替换
	}
	delete(m.timers, e.kind)

	switch e.kind {
	case timerScanTimeout:
		if m.state != StateScanning {
			return
		}
		m.logger.Info("Scan window elapsed without candidate, restarting scan",
			zap.Duration("delay", m.cfg.RescanAfterScanTimeout),
		)
		if err := m.transport.StopScan(); err != nil {
			m.logger.Warn("Failed to stop scan", zap.Error(err))
		}
		m.setState(StateIdle)
		m.schedule(timerRescan, m.cfg.RescanAfterScanTimeout)
	case timerRescan:
		m.startScan()
	case timerConnectTimeout:
		if m.state != StateConnecting {
			return
		}
		m.logger.Warn("Connect attempt timed out",
			zap.String("address", m.sess.address),
			zap.Duration("timeout", m.cfg.ConnectTimeout),
		)
		if err := m.transport.Disconnect(); err != nil {
			m.logger.Debug("Disconnect after connect timeout failed", zap.Error(err))
		}
		m.onLinkLost(errConnectTimeout)
	case timerAckFlush:
		m.flushAck(false)
	}
}

func (m *Machine) startScan() {
	if m.connectInFlight || m.sess != nil {
		m.logger.Debug("Scan suppressed: connection attempt outstanding")
		return
	}
	if m.state == StateScanning {
		return
	}
	if err := m.transport.StartScan(); err != nil {
		m.logger.Warn("Failed to start scan, retrying",
			zap.Error(err),
			zap.Duration("delay", m.cfg.ScanRetryDelay),
		)
		m.setState(StateIdle)
		m.schedule(timerRescan, m.cfg.ScanRetryDelay)
		return
	}
	m.setState(StateScanning)
	m.schedule(timerScanTimeout, m.cfg.ScanTimeout)
}

func (m *Machine) onScanFailed(e ScanFailed) {
	if m.state != StateScanning {
		return
	}
	m.logger.Warn("Scan failed, retrying",
		zap.Error(e.Err),
		zap.Duration("delay", m.cfg.ScanRetryDelay),
	)
	m.cancel(timerScanTimeout)
	m.setState(StateIdle)
	m.schedule(timerRescan, m.cfg.ScanRetryDelay)
}

func (m *Machine) onAdvertisement(adv Advertisement) {
	if m.state != StateScanning {
		return
	}
	if !m.cfg.Filter.Match(adv) {
		return
	}
	if m.connectInFlight || m.sess != nil {
		m.logger.Debug("Ignoring candidate: connection already in progress",
			zap.String("address", adv.Address),
		)
		return
	}

	m.logger.Info("Candidate selected",
		zap.String("name", adv.Name),
		zap.String("address", adv.Address),
		zap.Int16("rssi", adv.RSSI),
	)

	m.cancel(timerScanTimeout)
	if err := m.transport.StopScan(); err != nil {
		m.logger.Warn("Failed to stop scan", zap.Error(err))
	}

	m.connectInFlight = true
	m.sess = &session{id: uuid.NewString(), address: adv.Address}
	m.reassembler.Reset()
	m.acks.Reset()
	m.setState(StateConnecting)
	m.schedule(timerConnectTimeout, m.cfg.ConnectTimeout)

	if err := m.transport.Connect(adv.Address); err != nil {
		m.logger.Warn("Connect request failed", zap.String("address", adv.Address), zap.Error(err))
		m.onLinkLost(err)
	}
}

func (m *Machine) onConnected(e Connected) {
	if m.sess == nil {
		// 超时或断开后才到达的连接：没有会话认领，立即断开，否则设备停止广播后再也扫描不到
		m.logger.Warn("Dropping connection with no pending attempt",
			zap.String("address", e.Address),
			zap.String("state", m.state.String()),
		)
		if err := m.transport.Disconnect(); err != nil {
			m.logger.Debug("Disconnect of orphaned connection failed", zap.Error(err))
		}
		return
	}
	if m.state != StateConnecting {
		return
	}
	if e.Address != "" && e.Address != m.sess.address {
		return
	}

	m.cancel(timerConnectTimeout)
	m.connectInFlight = false
	m.reassembler.Reset()
	m.acks.Reset()

	m.logger.Info("Link connected, discovering services",
		zap.String("address", m.sess.address),
		zap.String("session_id", m.sess.id),
	)
	m.setState(StateDiscoveringServices)

	if err := m.transport.DiscoverServices(); err != nil {
		m.onServicesDiscovered(ServicesDiscovered{Err: err})
	}
}

func (m *Machine) onServicesDiscovered(e ServicesDiscovered) {
	if m.state != StateDiscoveringServices {
		return
	}
	if e.Err != nil {
		m.logger.Warn("Service discovery reported an error, continuing with what was found", zap.Error(e.Err))
	}
	if !e.Layout.Service || !e.Layout.Result {
		m.logger.Error("Collar service or result characteristic not found, dropping session",
			zap.String("address", m.sess.address),
			zap.Bool("service", e.Layout.Service),
			zap.Bool("result", e.Layout.Result),
		)
		if err := m.transport.Disconnect(); err != nil {
			m.logger.Debug("Disconnect after failed discovery returned error", zap.Error(err))
		}
		m.onLinkLost(errPrimaryCharMissing)
		return
	}

	m.sess.ackAvailable = e.Layout.Ack
	m.sess.captureAvailable = e.Layout.Capture
	if !e.Layout.Ack {
		m.logger.Warn("Ack characteristic not found, records will not be acknowledged")
	}

	m.setState(StateNegotiatingMTU)
	if err := m.transport.RequestMTU(m.cfg.PreferredMTU); err != nil {
		m.logger.Warn("MTU request failed, using default MTU", zap.Error(err))
		m.subscribe()
	}
}

func (m *Machine) onMTUNegotiated(e MTUNegotiated) {
	if m.state != StateNegotiatingMTU {
		return
	}
	if e.Err != nil {
		m.logger.Warn("MTU negotiation failed, using default MTU", zap.Error(e.Err))
	} else {
		m.sess.mtu = e.MTU
		m.logger.Info("MTU ready", zap.Int("mtu", e.MTU))
	}
	m.subscribe()
}

func (m *Machine) subscribe() {
	m.setState(StateSubscribingNotifications)
	if err := m.transport.EnableNotifications(); err != nil {
		m.onNotificationsEnabled(NotificationsEnabled{Err: err})
	}
}

func (m *Machine) onNotificationsEnabled(e NotificationsEnabled) {
	if m.state != StateSubscribingNotifications {
		return
	}
	switch {
	case e.NoDescriptor:
		m.logger.Warn("CCCD descriptor not found, assuming notifications are enabled")
		m.sess.notificationsEnabled = true
	case e.Err != nil:
		m.logger.Warn("Enabling notifications failed, acks disabled for this session", zap.Error(e.Err))
		m.sess.notificationsEnabled = false
	default:
		m.sess.notificationsEnabled = true
	}

	m.setState(StateStreaming)
	m.flushAck(true)
}

func (m *Machine) onNotification(e Notification) {
	if m.sess == nil || !m.state.Connected() {
		return
	}

	before := m.reassembler.Overflows()
	records := m.reassembler.Feed(e.Data)
	if m.reassembler.Overflows() != before {
		m.logger.Warn("Receive buffer overflow, buffer reset",
			zap.Int("fragment_size", len(e.Data)),
			zap.Int("capacity", m.cfg.RxBufferSize),
		)
	}
	if len(records) == 0 {
		m.refreshStatus()
		return
	}

	for _, rec := range records {
		m.acks.OnRecordProcessed(rec.Seq)
	}
	m.records += uint64(len(records))
	m.listener.OnRecords(records)
	m.flushAck(false)
}

func (m *Machine) onCaptureNotification(e CaptureNotification) {
	if m.sess == nil || !m.sess.captureAvailable {
		return
	}
	samples, err := protocol.DecodeCaptureSamples(e.Data)
	if err != nil {
		m.logger.Debug("Dropping capture notification", zap.Error(err))
		return
	}
	m.listener.OnCaptureSamples(samples)
}

// flushAck 在允许时写确认帧；被限速时按剩余间隔安排一次补发
func (m *Machine) flushAck(force bool) {
	if m.sess == nil || !m.sess.ackAvailable || !m.sess.notificationsEnabled {
		return
	}

	now := m.now()
	frame, ok := m.acks.MaybeBuildAck(force, now)
	if !ok {
		if wait, pending := m.acks.NextDue(now); pending {
			if _, scheduled := m.timers[timerAckFlush]; !scheduled {
				m.schedule(timerAckFlush, wait)
			}
		}
		return
	}

	m.cancel(timerAckFlush)
	if err := m.transport.WriteAck(frame.Bytes()); err != nil {
		m.acks.Retract(frame)
		m.logger.Warn("Ack write failed", zap.Uint32("seq", frame.Seq), zap.Error(err))
		m.schedule(timerAckFlush, m.cfg.AckMinInterval)
		return
	}
	m.logger.Debug("Ack sent", zap.Uint32("seq", frame.Seq), zap.Bool("forced", force))
	m.refreshStatus()
}

func (m *Machine) onDisconnected(e Disconnected) {
	if m.sess == nil && !m.connectInFlight {
		return
	}
	if e.Address != "" && m.sess != nil && e.Address != m.sess.address {
		return
	}
	m.onLinkLost(e.Err)
}

// onLinkLost 清理会话状态并安排重新扫描
func (m *Machine) onLinkLost(cause error) {
	fields := []zap.Field{zap.Duration("rescan_delay", m.cfg.ReconnectDelay)}
	if m.sess != nil {
		fields = append(fields, zap.String("address", m.sess.address), zap.String("session_id", m.sess.id))
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	m.logger.Warn("Link lost", fields...)

	m.cancel(timerConnectTimeout)
	m.cancel(timerAckFlush)
	m.cancel(timerScanTimeout)
	m.connectInFlight = false
	m.reassembler.Reset()
	m.acks.Reset()

	m.setState(StateDisconnected)
	m.sess = nil
	m.refreshStatus()
	m.schedule(timerRescan, m.cfg.ReconnectDelay)
}

func (m *Machine) shutdown() {
	for kind := range m.timers {
		m.cancel(kind)
	}
	switch {
	case m.state == StateScanning:
		if err := m.transport.StopScan(); err != nil {
			m.logger.Debug("Stop scan on shutdown failed", zap.Error(err))
		}
	case m.sess != nil:
		if err := m.transport.Disconnect(); err != nil {
			m.logger.Debug("Disconnect on shutdown failed", zap.Error(err))
		}
	}
	m.connectInFlight = false
	m.setState(StateIdle)
	m.sess = nil
	m.refreshStatus()
}

func (m *Machine) schedule(kind timerKind, d time.Duration) {
	m.cancel(kind)
	m.timerGen++
	gen := m.timerGen
	t := m.sched.AfterFunc(d, func() {
		m.Post(timerFired{kind: kind, gen: gen})
	})
	m.timers[kind] = pendingTimer{gen: gen, timer: t}
}

func (m *Machine) cancel(kind timerKind) {
	if pt, ok := m.timers[kind]; ok {
		pt.timer.Stop()
		delete(m.timers, kind)
	}
}

func (m *Machine) setState(next State) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next

	change := StateChange{From: prev, To: next, At: m.now()}
	if m.sess != nil {
		change.SessionID = m.sess.id
		change.Address = m.sess.address
	}
	m.logger.Debug("Link state changed",
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
	m.refreshStatus()
	m.listener.OnStateChange(change)
}

func (m *Machine) refreshStatus() {
	s := Status{
		State:          m.state.String(),
		RecordsDecoded: m.records,
		Overflows:      m.reassembler.Overflows(),
	}
	if m.sess != nil {
		s.SessionID = m.sess.id
		s.Address = m.sess.address
		s.MTU = m.sess.mtu
		s.NotificationsEnabled = m.sess.notificationsEnabled
		s.AckEnabled = m.sess.ackAvailable
	}
	if seq, ok := m.acks.LastAcked(); ok {
		s.LastAckSeq = &seq
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s.State != m.status.State {
		s.Since = m.now()
	} else {
		s.Since = m.status.Since
	}
	m.status = s
}
