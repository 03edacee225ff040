package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	logpkg "wisefido-collar/internal/common/logger"
	"wisefido-collar/internal/config"
	"wisefido-collar/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-collar")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting wisefido-collar service",
		zap.String("version", "1.0.0"),
		zap.String("device_id", cfg.Collar.DeviceID),
		zap.String("label_source", cfg.Collar.LabelSource),
		zap.String("name_filter", cfg.Collar.Link.NameFilter),
		zap.String("http_addr", cfg.Collar.HTTP.Addr),
	)

	// 创建服务
	collarService, err := service.NewCollarService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create collar service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := collarService.Start(ctx); err != nil {
		logger.Fatal("Failed to start collar service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := collarService.Stop(stopCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Service stopped")
}
