package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"wisefido-collar/internal/ble"
	"wisefido-collar/internal/calibration"
	"wisefido-collar/internal/common/database"
	mqttcommon "wisefido-collar/internal/common/mqtt"
	rediscommon "wisefido-collar/internal/common/redis"
	"wisefido-collar/internal/config"
	"wisefido-collar/internal/consumer"
	httpapi "wisefido-collar/internal/http"
	"wisefido-collar/internal/inference"
	"wisefido-collar/internal/link"
	"wisefido-collar/internal/models"
	"wisefido-collar/internal/publisher"
	"wisefido-collar/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CollarService 项圈网关服务：BLE 链路 -> 活动跟踪 -> 存储与发布
type CollarService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	kafkaSink   *publisher.KafkaSink
	queue       *publisher.Queue

	machine     *link.Machine
	tracker     *consumer.Tracker
	calibration CalibrationService
	hub         *httpapi.Hub
	server      *APIServer

	wg sync.WaitGroup
}

// NewCollarService 创建项圈网关服务
func NewCollarService(cfg *config.Config, logger *zap.Logger) (*CollarService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.EnsureSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	// 初始化Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient, 5); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化MQTT
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		redisClient.Close()
		db.Close()
		return nil, fmt.Errorf("failed to connect to mqtt: %w", err)
	}

	c := cfg.Collar

	// 创建Repository
	calibrationRepo := repository.NewCalibrationRepository(db, logger)
	dailyRepo := repository.NewDailyActivityRepository(db, logger)
	stateRepo := repository.NewActivityStateRepository(
		repository.NewRedisStateCache(redisClient),
		c.Cache.StateKeyPrefix,
		c.Cache.StateTTL,
		logger,
	)

	// 发布器：MQTT + Redis Stream + websocket，Kafka 和 webhook 按配置启用
	hub := httpapi.NewHub(logger)
	pub := publisher.New(logger,
		publisher.NewMQTTSink(mqttClient, c.Topics.Prefix, mqttClient.QoS()),
		publisher.NewStreamSink(redisClient, c.Streams.Prefix, c.Streams.MaxLen),
		hub,
	)
	var kafkaSink *publisher.KafkaSink
	if cfg.Kafka.Enabled() {
		kafkaSink = publisher.NewKafkaSink(publisher.NewKafkaWriter(cfg.Kafka), cfg.Kafka.TopicPrefix)
		pub.Add(kafkaSink)
	}
	if c.Webhook.URL != "" {
		pub.Add(publisher.NewWebhookSink(c.Webhook.URL, c.Webhook.Timeout))
	}
	// 输出端 I/O 在队列 goroutine 中进行，跟踪器循环不等待 broker
	queue := publisher.NewQueue(pub, 4096, 10*time.Second, logger)

	// 推理流水线和校准
	store := calibration.NewStore()
	pipeline := inference.NewPipeline(inference.Config{
		Alpha:              c.Inference.Alpha,
		WindowSize:         cfg.WindowSize(),
		VoteWindow:         c.Inference.VoteWindow,
		StabilityThreshold: c.Inference.StabilityThreshold,
		Sensitivity:        c.Inference.Sensitivity,
	}, store)
	calibrationService := NewCalibrationService(c.DeviceID, store, pipeline, calibrationRepo, logger)

	// 活动跟踪
	tracker := consumer.NewTracker(
		consumer.TrackerConfigFrom(cfg, loc),
		pipeline,
		queue,
		stateRepo,
		dailyRepo,
		consumer.NewMetrics(),
		logger,
	)

	// BLE 链路
	transport, err := ble.NewTransport(ble.UUIDs{
		Service: c.Link.ServiceUUID,
		Result:  c.Link.ResultCharUUID,
		Ack:     c.Link.AckCharUUID,
		Capture: c.Link.CaptureCharUUID,
	}, logger)
	if err != nil {
		mqttClient.Disconnect()
		redisClient.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize bluetooth: %w", err)
	}
	machine := link.NewMachine(LinkConfig(cfg), transport, tracker, logger)

	// HTTP
	handler := httpapi.NewCollarHandler(c.DeviceID, machine, tracker, dailyRepo, calibrationService, logger)
	server := NewAPIServer(c.DeviceID, c.HTTP.Addr, httpapi.NewRouter(handler, hub, logger), logger)

	logger.Info("Collar service initialized",
		zap.String("device_id", c.DeviceID),
		zap.String("label_source", c.LabelSource),
		zap.Strings("sinks", pub.Sinks()),
		zap.String("timezone", loc.String()),
	)

	return &CollarService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		kafkaSink:   kafkaSink,
		queue:       queue,
		machine:     machine,
		tracker:     tracker,
		calibration: calibrationService,
		hub:         hub,
		server:      server,
	}, nil
}

// LinkConfig 从服务配置构建链路状态机参数
func LinkConfig(cfg *config.Config) link.Config {
	l := cfg.Collar.Link
	return link.Config{
		Filter: link.Filter{
			NameContains: l.NameFilter,
			ServiceUUID:  l.ServiceUUID,
		},
		ScanTimeout:            l.ScanTimeout,
		ScanRetryDelay:         l.ScanRetryDelay,
		RescanAfterScanTimeout: l.RescanAfterScanTimeout,
		ConnectTimeout:         l.ConnectTimeout,
		ReconnectDelay:         l.ReconnectDelay,
		AckMinInterval:         l.AckMinInterval,
		PreferredMTU:           l.PreferredMTU,
		RxBufferSize:           l.RxBufferSize,
	}
}

// Start 启动服务
func (s *CollarService) Start(ctx context.Context) error {
	s.logger.Info("Starting collar service components")

	if err := s.calibration.Restore(ctx); err != nil {
		s.logger.Warn("Failed to restore calibration, using threshold classifier", zap.Error(err))
	}

	go s.queue.Run()

	// 跟踪器先于链路启动，确保记录不会丢失
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.tracker.Run(ctx); err != nil {
			s.logger.Error("Activity tracker stopped", zap.Error(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.machine.Run(ctx); err != nil {
			s.logger.Error("Link state machine stopped", zap.Error(err))
		}
	}()

	topic := s.config.Collar.Topics.IMU
	if topic != "" {
		if err := s.mqttClient.Subscribe(topic, s.mqttClient.QoS(), s.tracker.HandleIMU); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		s.logger.Info("Subscribed to raw IMU topic", zap.String("topic", topic))
	}

	if err := s.server.Listen(); err != nil {
		return err
	}
	go func() {
		if err := s.server.Serve(); err != nil {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	s.logger.Info("Collar service started successfully")
	return nil
}

// Stop 停止服务。调用前应已取消传给 Start 的 ctx。
func (s *CollarService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping collar service")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
	}
	s.hub.Close()

	if topic := s.config.Collar.Topics.IMU; topic != "" {
		if err := s.mqttClient.Unsubscribe(topic); err != nil {
			s.logger.Warn("Error unsubscribing from IMU topic", zap.Error(err))
		}
	}

	// 等待跟踪器写完最后的汇总，再排空发布队列
	s.wg.Wait()
	if err := s.queue.Close(ctx); err != nil {
		s.logger.Warn("Publish queue not drained", zap.Int("pending", s.queue.Pending()), zap.Error(err))
	}
	if dropped := s.queue.Dropped(); dropped > 0 {
		s.logger.Warn("Events dropped by publish queue", zap.Int64("dropped", dropped))
	}

	// 记录最终状态
	s.logFinalState()

	if s.kafkaSink != nil {
		if err := s.kafkaSink.Close(); err != nil {
			s.logger.Error("Error closing Kafka writer", zap.Error(err))
		}
	}
	s.mqttClient.Disconnect()

	// 关闭Redis
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}

	// 关闭数据库
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("Collar service stopped")
	return nil
}

func (s *CollarService) logFinalState() {
	status := s.machine.Status()
	summary := s.tracker.Today()
	s.logger.Info("Final collar state",
		zap.String("link_state", status.State),
		zap.Uint64("records_decoded", status.RecordsDecoded),
		zap.String("day", summary.Day),
		zap.Uint64("active_ms", summary.ActiveMs),
		zap.Uint64("steps", summary.Steps),
		zap.String("current_label", labelName(summary.CurrentLabel)),
	)
}

func labelName(l *models.Label) string {
	if l == nil {
		return ""
	}
	return l.String()
}
