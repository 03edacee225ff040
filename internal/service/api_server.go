package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// APIServer 项圈网关的 HTTP 接口：REST 查询、校准控制和 /ws 实时推送。
// 不设置 WriteTimeout，websocket 连接会一直保持。
type APIServer struct {
	deviceID string
	srv      *http.Server
	logger   *zap.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewAPIServer 创建 HTTP 接口
func NewAPIServer(deviceID, addr string, handler http.Handler, logger *zap.Logger) *APIServer {
	return &APIServer{
		deviceID: deviceID,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		logger: logger,
	}
}

// Listen 绑定端口。与 Serve 分开，端口被占用时 Start 可以直接返回错误。
func (s *APIServer) Listen() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve 处理请求直到 Shutdown；正常关闭时返回 nil
func (s *APIServer) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("api server: Listen was not called")
	}

	s.logger.Info("Collar API listening",
		zap.String("device_id", s.deviceID),
		zap.String("addr", ln.Addr().String()),
	)
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr 实际监听地址（配置为 :0 时由系统分配）；Listen 之前为空
func (s *APIServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown 停止接收新连接，等待进行中的请求
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Collar API shutting down", zap.String("device_id", s.deviceID))
	return s.srv.Shutdown(ctx)
}
