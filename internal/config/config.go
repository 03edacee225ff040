package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"wisefido-collar/internal/common/config"
)

// 标签来源
const (
	LabelSourceDevice = "device" // 使用项圈端推理结果（记录中的 label）
	LabelSourceHost   = "host"   // 使用本机推理流水线（原始加速度）
)

// Config 项圈网关服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	Kafka    config.KafkaConfig

	Collar struct {
		DeviceID    string
		LabelSource string

		// BLE 链路
		Link struct {
			NameFilter      string
			ServiceUUID     string
			ResultCharUUID  string
			AckCharUUID     string
			CaptureCharUUID string // 可选，空表示不订阅原始采样

			ScanTimeout            time.Duration
			ScanRetryDelay         time.Duration
			RescanAfterScanTimeout time.Duration
			ConnectTimeout         time.Duration
			ReconnectDelay         time.Duration
			AckMinInterval         time.Duration
			PreferredMTU           int
			RxBufferSize           int
		}

		// 本机推理
		Inference struct {
			SampleRateHz       int
			Alpha              float64
			Sensitivity        float64
			VoteWindow         int
			StabilityThreshold int
			CaptureLSBPerG     float64
		}

		// 活动统计
		Activity struct {
			ConfidenceThreshold  int
			LowBatteryPercent    int
			StrideMeters         float64
			KcalPerStep          float64
			Timezone             string
			SummaryFlushInterval time.Duration
		}

		Topics struct {
			Prefix string // 发布主题前缀，如 "collar" -> collar/{device}/activity
			IMU    string // 原始加速度订阅主题，如 "collar/+/imu"
		}

		Streams struct {
			Prefix string // 如 "collar:" -> collar:activity:stream
			MaxLen int64
		}

		Cache struct {
			StateKeyPrefix string
			StateTTL       time.Duration
		}

		Webhook struct {
			URL     string
			Timeout time.Duration
		}

		HTTP struct {
			Addr string
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Redis.DialTimeout = parseDuration(getEnv("REDIS_DIAL_TIMEOUT", "3s"), 3*time.Second)
	cfg.Redis.PoolSize = parseInt(getEnv("REDIS_POOL_SIZE", "4"), 4)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-collar")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))
	cfg.MQTT.ConnectTimeout = parseDuration(getEnv("MQTT_CONNECT_TIMEOUT", "10s"), 10*time.Second)

	cfg.Kafka.TopicPrefix = "collar"
	cfg.Kafka.BatchTimeout = 50 * time.Millisecond
	cfg.Kafka.LoadFromEnv("KAFKA")

	// 项圈配置
	c := &cfg.Collar
	c.DeviceID = getEnv("COLLAR_DEVICE_ID", "collar-1")
	c.LabelSource = strings.ToLower(getEnv("COLLAR_LABEL_SOURCE", LabelSourceDevice))

	c.Link.NameFilter = getEnv("COLLAR_NAME_FILTER", "DOGFIT")
	c.Link.ServiceUUID = getEnv("COLLAR_SERVICE_UUID", "0000abcd-0000-1000-8000-00805f9b34fb")
	c.Link.ResultCharUUID = getEnv("COLLAR_RESULT_CHAR_UUID", "0000abcf-0000-1000-8000-00805f9b34fb")
	c.Link.AckCharUUID = getEnv("COLLAR_ACK_CHAR_UUID", "0000abd0-0000-1000-8000-00805f9b34fb")
	c.Link.CaptureCharUUID = getEnv("COLLAR_CAPTURE_CHAR_UUID", "")
	c.Link.ScanTimeout = parseDuration(getEnv("COLLAR_SCAN_TIMEOUT", "15s"), 15*time.Second)
	c.Link.ScanRetryDelay = parseDuration(getEnv("COLLAR_SCAN_RETRY_DELAY", "2s"), 2*time.Second)
	c.Link.RescanAfterScanTimeout = parseDuration(getEnv("COLLAR_RESCAN_AFTER_TIMEOUT", "1s"), time.Second)
	c.Link.ConnectTimeout = parseDuration(getEnv("COLLAR_CONNECT_TIMEOUT", "12s"), 12*time.Second)
	c.Link.ReconnectDelay = parseDuration(getEnv("COLLAR_RECONNECT_DELAY", "1500ms"), 1500*time.Millisecond)
	c.Link.AckMinInterval = parseDuration(getEnv("COLLAR_ACK_MIN_INTERVAL", "250ms"), 250*time.Millisecond)
	c.Link.PreferredMTU = parseInt(getEnv("COLLAR_PREFERRED_MTU", "256"), 256)
	c.Link.RxBufferSize = parseInt(getEnv("COLLAR_RX_BUFFER_SIZE", "8192"), 8192)

	c.Inference.SampleRateHz = parseInt(getEnv("COLLAR_SAMPLE_RATE_HZ", "10"), 10)
	c.Inference.Alpha = parseFloat(getEnv("COLLAR_FILTER_ALPHA", "0.15"), 0.15)
	c.Inference.Sensitivity = parseFloat(getEnv("COLLAR_SENSITIVITY", "1.0"), 1.0)
	c.Inference.VoteWindow = parseInt(getEnv("COLLAR_VOTE_WINDOW", "5"), 5)
	c.Inference.StabilityThreshold = parseInt(getEnv("COLLAR_STABILITY_THRESHOLD", "3"), 3)
	c.Inference.CaptureLSBPerG = parseFloat(getEnv("COLLAR_CAPTURE_LSB_PER_G", "16384"), 16384)

	c.Activity.ConfidenceThreshold = parseInt(getEnv("COLLAR_CONFIDENCE_THRESHOLD", "60"), 60)
	c.Activity.LowBatteryPercent = parseInt(getEnv("COLLAR_LOW_BATTERY_PERCENT", "20"), 20)
	c.Activity.StrideMeters = parseFloat(getEnv("COLLAR_STRIDE_METERS", "0.50"), 0.50)
	c.Activity.KcalPerStep = parseFloat(getEnv("COLLAR_KCAL_PER_STEP", "0.05"), 0.05)
	c.Activity.Timezone = getEnv("COLLAR_TIMEZONE", "Local")
	c.Activity.SummaryFlushInterval = parseDuration(getEnv("COLLAR_SUMMARY_FLUSH_INTERVAL", "60s"), time.Minute)

	c.Topics.Prefix = getEnv("COLLAR_TOPIC_PREFIX", "collar")
	c.Topics.IMU = getEnv("COLLAR_TOPIC_IMU", "collar/+/imu")

	c.Streams.Prefix = getEnv("COLLAR_STREAM_PREFIX", "collar:")
	c.Streams.MaxLen = int64(parseInt(getEnv("COLLAR_STREAM_MAXLEN", "10000"), 10000))

	c.Cache.StateKeyPrefix = getEnv("COLLAR_STATE_PREFIX", "collar:state:")
	c.Cache.StateTTL = parseDuration(getEnv("COLLAR_STATE_TTL", "48h"), 48*time.Hour)

	c.Webhook.URL = getEnv("COLLAR_WEBHOOK_URL", "")
	c.Webhook.Timeout = parseDuration(getEnv("COLLAR_WEBHOOK_TIMEOUT", "5s"), 5*time.Second)

	c.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	in := c.Collar.Inference
	if in.SampleRateHz < 1 {
		return fmt.Errorf("invalid COLLAR_SAMPLE_RATE_HZ: %d", in.SampleRateHz)
	}
	if !positiveFinite(in.Alpha) || in.Alpha > 1 {
		return fmt.Errorf("invalid COLLAR_FILTER_ALPHA: %v", in.Alpha)
	}
	if !positiveFinite(in.Sensitivity) {
		return fmt.Errorf("invalid COLLAR_SENSITIVITY: %v", in.Sensitivity)
	}
	if in.VoteWindow < 1 || in.StabilityThreshold < 1 {
		return fmt.Errorf("invalid stabilizer settings: vote=%d threshold=%d", in.VoteWindow, in.StabilityThreshold)
	}
	if !positiveFinite(in.CaptureLSBPerG) {
		return fmt.Errorf("invalid COLLAR_CAPTURE_LSB_PER_G: %v", in.CaptureLSBPerG)
	}
	switch c.Collar.LabelSource {
	case LabelSourceDevice, LabelSourceHost:
	default:
		return fmt.Errorf("invalid COLLAR_LABEL_SOURCE: %q", c.Collar.LabelSource)
	}
	if c.Collar.Link.RxBufferSize < 64 {
		return fmt.Errorf("invalid COLLAR_RX_BUFFER_SIZE: %d", c.Collar.Link.RxBufferSize)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid COLLAR_TIMEZONE: %w", err)
	}
	return nil
}

// WindowSize 特征窗口长度（采样率 × 1秒）
func (c *Config) WindowSize() int {
	return c.Collar.Inference.SampleRateHz
}

// Location 日切换使用的时区
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Collar.Activity.Timezone)
}

// positiveFinite strconv.ParseFloat 接受 "NaN"、"Inf"，比较运算拦不住 NaN
func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
