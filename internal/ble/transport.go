package ble

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"wisefido-collar/internal/link"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

var errNotConnected = errors.New("ble: not connected")

// UUIDs 项圈 GATT 布局
type UUIDs struct {
	Service string
	Result  string
	Ack     string
	Capture string // 为空表示不订阅采集特征
}

type parsedUUIDs struct {
	service bluetooth.UUID
	result  bluetooth.UUID
	ack     bluetooth.UUID
	capture *bluetooth.UUID
}

// ParseUUIDs 解析配置中的 UUID 字符串
func ParseUUIDs(u UUIDs) (parsedUUIDs, error) {
	var p parsedUUIDs
	var err error
	if p.service, err = bluetooth.ParseUUID(u.Service); err != nil {
		return p, fmt.Errorf("invalid service uuid %q: %w", u.Service, err)
	}
	if p.result, err = bluetooth.ParseUUID(u.Result); err != nil {
		return p, fmt.Errorf("invalid result characteristic uuid %q: %w", u.Result, err)
	}
	if p.ack, err = bluetooth.ParseUUID(u.Ack); err != nil {
		return p, fmt.Errorf("invalid ack characteristic uuid %q: %w", u.Ack, err)
	}
	if u.Capture != "" {
		c, err := bluetooth.ParseUUID(u.Capture)
		if err != nil {
			return p, fmt.Errorf("invalid capture characteristic uuid %q: %w", u.Capture, err)
		}
		p.capture = &c
	}
	return p, nil
}

// Transport 基于 tinygo bluetooth 的 link.Transport 实现。
// 阻塞的协议栈调用都放到独立 goroutine 中执行，结果以事件形式回送。
type Transport struct {
	adapter *bluetooth.Adapter
	uuids   parsedUUIDs
	logger  *zap.Logger

	mu      sync.Mutex
	post    func(link.Event)
	seen    map[string]bluetooth.Address
	attempt uint64 // 当前连接尝试编号；Disconnect 递增以作废进行中的尝试
	device  *bluetooth.Device
	result  *bluetooth.DeviceCharacteristic
	ack     *bluetooth.DeviceCharacteristic
	capture *bluetooth.DeviceCharacteristic
}

// NewTransport 启用默认适配器并创建传输层
func NewTransport(uuids UUIDs, logger *zap.Logger) (*Transport, error) {
	parsed, err := ParseUUIDs(uuids)
	if err != nil {
		return nil, err
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}

	t := &Transport{
		adapter: adapter,
		uuids:   parsed,
		logger:  logger,
		seen:    make(map[string]bluetooth.Address),
		post:    func(link.Event) {},
	}
	adapter.SetConnectHandler(t.onConnectChange)
	return t, nil
}

// Bind 注册事件回送函数
func (t *Transport) Bind(post func(link.Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.post = post
}

func (t *Transport) emit(ev link.Event) {
	t.mu.Lock()
	post := t.post
	t.mu.Unlock()
	post(ev)
}

// StartScan 开始扫描；Scan 在返回前一直阻塞，因此在 goroutine 中运行
func (t *Transport) StartScan() error {
	go func() {
		err := t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			addr := result.Address.String()
			t.mu.Lock()
			t.seen[addr] = result.Address
			t.mu.Unlock()

			adv := link.Advertisement{
				Address: addr,
				Name:    result.LocalName(),
				RSSI:    result.RSSI,
			}
			if result.HasServiceUUID(t.uuids.service) {
				adv.ServiceUUIDs = []string{t.uuids.service.String()}
			}
			t.emit(adv)
		})
		if err != nil {
			t.emit(link.ScanFailed{Err: err})
		}
	}()
	return nil
}

// StopScan 停止扫描
func (t *Transport) StopScan() error {
	return t.adapter.StopScan()
}

// Connect 连接扫描到的设备。连接完成前调用 Disconnect 会作废本次尝试，
// 迟到的连接由这里自行断开，不再回送事件。
func (t *Transport) Connect(address string) error {
	t.mu.Lock()
	addr, ok := t.seen[address]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: address %s was not seen during scan", address)
	}

	id := t.beginAttempt()
	go func() {
		device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			if t.current(id) {
				t.emit(link.Disconnected{Address: address, Err: err})
			}
			return
		}
		if !t.adopt(id, &device) {
			t.logger.Warn("Connection completed after attempt was cancelled, disconnecting",
				zap.String("address", address),
			)
			if err := device.Disconnect(); err != nil {
				t.logger.Debug("Failed to drop cancelled connection", zap.Error(err))
			}
			return
		}
		t.emit(link.Connected{Address: address})
	}()
	return nil
}

func (t *Transport) beginAttempt() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempt++
	return t.attempt
}

func (t *Transport) current(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return id == t.attempt
}

// adopt 尝试仍有效时接管设备；已作废时返回 false
func (t *Transport) adopt(id uint64, device *bluetooth.Device) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id != t.attempt {
		return false
	}
	t.device = device
	return true
}

func (t *Transport) onConnectChange(device bluetooth.Device, connected bool) {
	if connected {
		return // 由 Connect 的返回值驱动
	}
	t.mu.Lock()
	t.clearLocked()
	t.mu.Unlock()
	t.emit(link.Disconnected{Address: device.Address.String()})
}

func (t *Transport) clearLocked() {
	t.device = nil
	t.result = nil
	t.ack = nil
	t.capture = nil
}

// Disconnect 断开当前设备，并作废进行中的连接尝试
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	device := t.device
	t.attempt++
	t.clearLocked()
	t.mu.Unlock()
	if device == nil {
		return nil
	}
	return device.Disconnect()
}

// DiscoverServices 发现项圈服务与特征
func (t *Transport) DiscoverServices() error {
	t.mu.Lock()
	device := t.device
	t.mu.Unlock()
	if device == nil {
		return errNotConnected
	}

	go func() {
		layout, err := t.discover(device)
		t.emit(link.ServicesDiscovered{Layout: layout, Err: err})
	}()
	return nil
}

func (t *Transport) discover(device *bluetooth.Device) (link.GattLayout, error) {
	var layout link.GattLayout

	services, err := device.DiscoverServices([]bluetooth.UUID{t.uuids.service})
	if err != nil || len(services) == 0 {
		return layout, err
	}
	layout.Service = true

	// 逐个发现，避免一个可选特征缺失导致整批失败
	var errs []error
	find := func(u bluetooth.UUID) *bluetooth.DeviceCharacteristic {
		chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{u})
		if err != nil {
			errs = append(errs, fmt.Errorf("characteristic %s: %w", u.String(), err))
			return nil
		}
		if len(chars) == 0 {
			return nil
		}
		c := chars[0]
		return &c
	}

	result := find(t.uuids.result)
	ack := find(t.uuids.ack)
	var capture *bluetooth.DeviceCharacteristic
	if t.uuids.capture != nil {
		capture = find(*t.uuids.capture)
	}

	t.mu.Lock()
	t.result, t.ack, t.capture = result, ack, capture
	t.mu.Unlock()

	layout.Result = result != nil
	layout.Ack = ack != nil
	layout.Capture = capture != nil
	return layout, errors.Join(errs...)
}

// RequestMTU 读取协商后的 MTU。协议栈在连接时自行协商，这里只上报结果。
func (t *Transport) RequestMTU(_ int) error {
	t.mu.Lock()
	result := t.result
	t.mu.Unlock()
	if result == nil {
		return errNotConnected
	}

	go func() {
		mtu, err := result.GetMTU()
		t.emit(link.MTUNegotiated{MTU: int(mtu), Err: err})
	}()
	return nil
}

// EnableNotifications 订阅结果特征（以及可选的采集特征）
func (t *Transport) EnableNotifications() error {
	t.mu.Lock()
	result, capture := t.result, t.capture
	t.mu.Unlock()
	if result == nil {
		return errNotConnected
	}

	go func() {
		err := result.EnableNotifications(func(buf []byte) {
			// 协议栈会复用缓冲区
			t.emit(link.Notification{Data: append([]byte(nil), buf...)})
		})
		if err != nil {
			t.emit(link.NotificationsEnabled{NoDescriptor: isMissingDescriptor(err), Err: err})
			return
		}

		if capture != nil {
			if err := capture.EnableNotifications(func(buf []byte) {
				t.emit(link.CaptureNotification{Data: append([]byte(nil), buf...)})
			}); err != nil {
				t.logger.Warn("Failed to enable capture notifications", zap.Error(err))
			}
		}
		t.emit(link.NotificationsEnabled{})
	}()
	return nil
}

// WriteAck 写确认帧
func (t *Transport) WriteAck(frame []byte) error {
	t.mu.Lock()
	ack := t.ack
	t.mu.Unlock()
	if ack == nil {
		return errNotConnected
	}
	_, err := ack.WriteWithoutResponse(frame)
	return err
}

// isMissingDescriptor BlueZ 在特征没有 CCCD 时返回的错误
func isMissingDescriptor(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "descriptor") && (strings.Contains(msg, "not found") || strings.Contains(msg, "no "))
}
