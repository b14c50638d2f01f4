package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	pkgconfig "github.com/mjasion/balena-home/vitalsgw/pkg/config"
	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

// Config represents the application configuration
type Config struct {
	BLE           BLEConfig                     `yaml:"ble"`
	Sleep         SleepConfig                   `yaml:"sleep"`
	Panel         PanelConfig                   `yaml:"panel"`
	Storage       StorageConfig                 `yaml:"storage"`
	TimeService   TimeServiceConfig             `yaml:"timeService"`
	Prometheus    PrometheusConfig              `yaml:"prometheus"`
	MQTT          MQTTConfig                    `yaml:"mqtt"`
	OpenTelemetry pkgconfig.OpenTelemetryConfig `yaml:"openTelemetry"`
	Profiling     pkgconfig.ProfilingConfig     `yaml:"profiling"`
	Logging       pkgconfig.LoggingConfig       `yaml:"logging"`
}

// BLEConfig contains radio and pairing configuration
type BLEConfig struct {
	AdapterID             string   `yaml:"adapterId" env:"BLE_ADAPTER_ID" env-default:"hci0"`
	RSSIFloor             int      `yaml:"rssiFloor" env:"BLE_RSSI_FLOOR" env-default:"-50"`
	ScanWindowMillis      int      `yaml:"scanWindowMillis" env:"BLE_SCAN_WINDOW_MILLIS" env-default:"1000"`
	PairingTimeoutSeconds int      `yaml:"pairingTimeoutSeconds" env:"BLE_PAIRING_TIMEOUT_SECONDS" env-default:"0"`
	Categories            []string `yaml:"categories" env:"BLE_CATEGORIES" env-separator:"," env-default:"temperature,pulseox,activity"`
}

// SleepConfig contains the halt cycle configuration
type SleepConfig struct {
	WakeIntervalSeconds int `yaml:"wakeIntervalSeconds" env:"SLEEP_WAKE_INTERVAL_SECONDS" env-default:"5"`
}

// PanelConfig contains the LED and button GPIO configuration. When disabled,
// the indicator is logged and no button is read.
type PanelConfig struct {
	Enabled           bool   `yaml:"enabled" env:"PANEL_ENABLED" env-default:"false"`
	LEDPin            string `yaml:"ledPin" env:"PANEL_LED_PIN" env-default:"GPIO17"`
	ButtonPin         string `yaml:"buttonPin" env:"PANEL_BUTTON_PIN" env-default:"GPIO27"`
	DebounceMillis    int    `yaml:"debounceMillis" env:"PANEL_DEBOUNCE_MILLIS" env-default:"20"`
	MediumPressMillis int    `yaml:"mediumPressMillis" env:"PANEL_MEDIUM_PRESS_MILLIS" env-default:"1000"`
	LongPressMillis   int    `yaml:"longPressMillis" env:"PANEL_LONG_PRESS_MILLIS" env-default:"5000"`
}

// StorageConfig locates the preserved state file
type StorageConfig struct {
	Path string `yaml:"path" env:"STORAGE_PATH" env-default:"/data/vitalsgw/rtc.bin"`
}

// TimeServiceConfig contains the remote-time GATT service configuration
type TimeServiceConfig struct {
	Enabled    bool   `yaml:"enabled" env:"TIME_SERVICE_ENABLED" env-default:"true"`
	DeviceName string `yaml:"deviceName" env:"TIME_SERVICE_DEVICE_NAME" env-default:"vitalsgw"`
	Value      string `yaml:"value" env:"TIME_SERVICE_VALUE" env-default:"Hello from the server"`
}

// PrometheusConfig contains Prometheus metrics push configuration
type PrometheusConfig struct {
	Enabled             bool              `yaml:"enabled" env:"PROMETHEUS_ENABLED" env-default:"false"`
	URL                 string            `yaml:"prometheusUrl" env:"PROMETHEUS_URL"`
	Username            string            `yaml:"prometheusUsername" env:"PROMETHEUS_USERNAME"`
	Password            string            `yaml:"prometheusPassword" env:"PROMETHEUS_PASSWORD"`
	PushIntervalSeconds int               `yaml:"pushIntervalSeconds" env:"PUSH_INTERVAL_SECONDS" env-default:"60"`
	BufferSize          int               `yaml:"bufferSize" env:"BUFFER_SIZE" env-default:"1000"`
	BatchSize           int               `yaml:"batchSize" env:"BATCH_SIZE" env-default:"500"`
	Labels              map[string]string `yaml:"labels"`
}

// MQTTConfig contains the classification publisher configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" env:"MQTT_ENABLED" env-default:"false"`
	Broker      string `yaml:"broker" env:"MQTT_BROKER" env-default:"tcp://localhost:1883"`
	ClientID    string `yaml:"clientId" env:"MQTT_CLIENT_ID" env-default:"vitalsgw"`
	Username    string `yaml:"username" env:"MQTT_USERNAME"`
	Password    string `yaml:"password" env:"MQTT_PASSWORD"`
	TopicPrefix string `yaml:"topicPrefix" env:"MQTT_TOPIC_PREFIX" env-default:"vitalsgw"`
	QoS         int    `yaml:"qos" env:"MQTT_QOS" env-default:"1"`
	Retained    bool   `yaml:"retained" env:"MQTT_RETAINED" env-default:"true"`
}

// Load loads configuration from a YAML file with environment variable overrides
func Load(configPath string) (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration and normalizes derived values.
func (c *Config) Validate() error {
	if err := c.BLE.validate(); err != nil {
		return err
	}

	if c.Sleep.WakeIntervalSeconds < 1 {
		return fmt.Errorf("wake interval must be at least 1 second")
	}

	if c.Panel.Enabled {
		if c.Panel.LEDPin == "" || c.Panel.ButtonPin == "" {
			return fmt.Errorf("panel LED and button pins are required when the panel is enabled")
		}
		if c.Panel.DebounceMillis < 0 {
			return fmt.Errorf("debounce must be >= 0")
		}
		if c.Panel.MediumPressMillis < 1 || c.Panel.LongPressMillis <= c.Panel.MediumPressMillis {
			return fmt.Errorf("press thresholds must satisfy 0 < medium < long, got medium=%dms long=%dms",
				c.Panel.MediumPressMillis, c.Panel.LongPressMillis)
		}
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if c.Prometheus.Enabled {
		if c.Prometheus.URL == "" {
			return fmt.Errorf("prometheus URL is required")
		}
		if c.Prometheus.Username == "" {
			return fmt.Errorf("prometheus username is required")
		}
		if c.Prometheus.PushIntervalSeconds < 1 {
			return fmt.Errorf("push interval must be at least 1 second")
		}
		if c.Prometheus.BufferSize < 1 {
			return fmt.Errorf("buffer size must be at least 1")
		}
		if c.Prometheus.BatchSize < 1 {
			return fmt.Errorf("batch size must be at least 1")
		}
	}

	if c.MQTT.Enabled {
		u, err := url.Parse(c.MQTT.Broker)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("mqtt broker must be a URL like tcp://host:1883, got: %s", c.MQTT.Broker)
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got: %d", c.MQTT.QoS)
		}
		c.MQTT.TopicPrefix = strings.TrimSuffix(c.MQTT.TopicPrefix, "/")
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt topic prefix is required")
		}
	}

	if err := c.OpenTelemetry.Validate(); err != nil {
		return err
	}
	if err := c.Profiling.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

func (b *BLEConfig) validate() error {
	if b.AdapterID == "" {
		return fmt.Errorf("BLE adapter id is required")
	}
	if b.RSSIFloor > 0 || b.RSSIFloor < -127 {
		return fmt.Errorf("RSSI floor must be between -127 and 0 dBm, got: %d", b.RSSIFloor)
	}
	if b.ScanWindowMillis < 100 {
		return fmt.Errorf("scan window must be at least 100ms")
	}
	if b.PairingTimeoutSeconds < 0 {
		return fmt.Errorf("pairing timeout must be >= 0")
	}
	if len(b.Categories) == 0 {
		return fmt.Errorf("at least one sensor category must be configured")
	}

	seen := make(map[types.Category]bool, len(b.Categories))
	for _, name := range b.Categories {
		c, err := types.ParseCategory(name)
		if err != nil {
			return err
		}
		if seen[c] {
			return fmt.Errorf("duplicate sensor category %s", c)
		}
		seen[c] = true
	}
	return nil
}

// SensorCategories returns the registry slot categories in configured order.
// Entries that fail to parse are skipped; Validate rejects them up front.
func (b *BLEConfig) SensorCategories() []types.Category {
	categories := make([]types.Category, 0, len(b.Categories))
	for _, name := range b.Categories {
		if c, err := types.ParseCategory(name); err == nil {
			categories = append(categories, c)
		}
	}
	return categories
}

// ScanWindow returns the telemetry discovery window.
func (b *BLEConfig) ScanWindow() time.Duration {
	return time.Duration(b.ScanWindowMillis) * time.Millisecond
}

// PairingTimeout returns the registration/deletion discovery bound; zero is open-ended.
func (b *BLEConfig) PairingTimeout() time.Duration {
	return time.Duration(b.PairingTimeoutSeconds) * time.Second
}

// WakeInterval returns the periodic wake interval.
func (s *SleepConfig) WakeInterval() time.Duration {
	return time.Duration(s.WakeIntervalSeconds) * time.Second
}

// PrintConfig prints the configuration (masking sensitive fields)
func (c *Config) PrintConfig(logger *zap.Logger) {
	slots := c.BLE.SensorCategories()
	categories := make([]string, len(slots))
	for i, cat := range slots {
		categories[i] = fmt.Sprintf("%s (0x%04X)", cat, uint16(cat))
	}

	logger.Info("configuration loaded",
		zap.String("ble_adapter", c.BLE.AdapterID),
		zap.Int("rssi_floor", c.BLE.RSSIFloor),
		zap.Int("scan_window_ms", c.BLE.ScanWindowMillis),
		zap.Int("pairing_timeout_seconds", c.BLE.PairingTimeoutSeconds),
		zap.Strings("categories", categories),
		zap.Int("wake_interval_seconds", c.Sleep.WakeIntervalSeconds),
		zap.Bool("panel_enabled", c.Panel.Enabled),
		zap.String("led_pin", c.Panel.LEDPin),
		zap.String("button_pin", c.Panel.ButtonPin),
		zap.String("storage_path", c.Storage.Path),
		zap.Bool("time_service_enabled", c.TimeService.Enabled),
		zap.Bool("prometheus_enabled", c.Prometheus.Enabled),
		zap.String("prometheus_url", c.Prometheus.URL),
		zap.String("prometheus_username", c.Prometheus.Username),
		zap.Bool("prometheus_password_set", c.Prometheus.Password != ""),
		zap.Int("push_interval_seconds", c.Prometheus.PushIntervalSeconds),
		zap.Int("buffer_size", c.Prometheus.BufferSize),
		zap.Bool("mqtt_enabled", c.MQTT.Enabled),
		zap.String("mqtt_broker", c.MQTT.Broker),
		zap.String("mqtt_topic_prefix", c.MQTT.TopicPrefix),
		zap.Bool("mqtt_password_set", c.MQTT.Password != ""),
		zap.Bool("otel_enabled", c.OpenTelemetry.Enabled),
		zap.Bool("profiling_enabled", c.Profiling.Enabled),
		zap.String("log_format", c.Logging.Format),
		zap.String("log_level", c.Logging.Level),
	)
}
