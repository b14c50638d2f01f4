package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
ble:
  adapterId: hci1
  rssiFloor: -60
  scanWindowMillis: 2000
  pairingTimeoutSeconds: 30
  categories: ["temperature", "0x1822"]
sleep:
  wakeIntervalSeconds: 10
storage:
  path: /tmp/vitalsgw/rtc.bin
mqtt:
  enabled: true
  broker: tcp://broker.local:1883
  topicPrefix: "home/vitals/"
logging:
  logFormat: logfmt
  logLevel: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.BLE.AdapterID != "hci1" {
		t.Errorf("Expected adapter hci1, got %s", cfg.BLE.AdapterID)
	}
	if cfg.BLE.RSSIFloor != -60 {
		t.Errorf("Expected RSSI floor -60, got %d", cfg.BLE.RSSIFloor)
	}
	if cfg.BLE.ScanWindow() != 2*time.Second {
		t.Errorf("Expected scan window 2s, got %v", cfg.BLE.ScanWindow())
	}
	if cfg.BLE.PairingTimeout() != 30*time.Second {
		t.Errorf("Expected pairing timeout 30s, got %v", cfg.BLE.PairingTimeout())
	}
	if cfg.Sleep.WakeInterval() != 10*time.Second {
		t.Errorf("Expected wake interval 10s, got %v", cfg.Sleep.WakeInterval())
	}

	categories := cfg.BLE.SensorCategories()
	if len(categories) != 2 || categories[0] != types.CategoryTemperature || categories[1] != types.CategoryPulseOximeter {
		t.Errorf("Unexpected categories: %v", categories)
	}

	if cfg.MQTT.TopicPrefix != "home/vitals" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.MQTT.TopicPrefix)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("Expected default qos 1, got %d", cfg.MQTT.QoS)
	}
	if cfg.Logging.Format != "logfmt" {
		t.Errorf("Expected logfmt format, got %s", cfg.Logging.Format)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  logLevel: info\n"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.BLE.AdapterID != "hci0" {
		t.Errorf("Expected default adapter hci0, got %s", cfg.BLE.AdapterID)
	}
	if cfg.BLE.RSSIFloor != -50 {
		t.Errorf("Expected default RSSI floor -50, got %d", cfg.BLE.RSSIFloor)
	}
	if cfg.BLE.PairingTimeout() != 0 {
		t.Errorf("Expected open-ended pairing by default, got %v", cfg.BLE.PairingTimeout())
	}
	if got := cfg.BLE.SensorCategories(); len(got) != len(types.DefaultCategories) {
		t.Errorf("Expected default categories, got %v", got)
	}
	if cfg.Sleep.WakeInterval() != 5*time.Second {
		t.Errorf("Expected default wake interval 5s, got %v", cfg.Sleep.WakeInterval())
	}
	if cfg.Storage.Path != "/data/vitalsgw/rtc.bin" {
		t.Errorf("Unexpected default storage path: %s", cfg.Storage.Path)
	}
	if cfg.TimeService.Value != "Hello from the server" {
		t.Errorf("Unexpected time service value: %q", cfg.TimeService.Value)
	}
	if cfg.Panel.MediumPressMillis != 1000 || cfg.Panel.LongPressMillis != 5000 {
		t.Errorf("Unexpected press thresholds: %d/%d", cfg.Panel.MediumPressMillis, cfg.Panel.LongPressMillis)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BLE_RSSI_FLOOR", "-70")
	t.Setenv("SLEEP_WAKE_INTERVAL_SECONDS", "30")

	cfg, err := Load(writeConfig(t, "ble:\n  rssiFloor: -40\n"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.BLE.RSSIFloor != -70 {
		t.Errorf("Expected env override -70, got %d", cfg.BLE.RSSIFloor)
	}
	if cfg.Sleep.WakeIntervalSeconds != 30 {
		t.Errorf("Expected env override 30, got %d", cfg.Sleep.WakeIntervalSeconds)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			BLE: BLEConfig{
				AdapterID:        "hci0",
				RSSIFloor:        -50,
				ScanWindowMillis: 1000,
				Categories:       []string{"temperature", "pulseox", "activity"},
			},
			Sleep:   SleepConfig{WakeIntervalSeconds: 5},
			Panel:   PanelConfig{LEDPin: "GPIO17", ButtonPin: "GPIO27", DebounceMillis: 20, MediumPressMillis: 1000, LongPressMillis: 5000},
			Storage: StorageConfig{Path: "/data/rtc.bin"},
			MQTT:    MQTTConfig{Broker: "tcp://localhost:1883", TopicPrefix: "vitalsgw", QoS: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing adapter", func(c *Config) { c.BLE.AdapterID = "" }, true},
		{"positive rssi floor", func(c *Config) { c.BLE.RSSIFloor = 5 }, true},
		{"short scan window", func(c *Config) { c.BLE.ScanWindowMillis = 10 }, true},
		{"negative pairing timeout", func(c *Config) { c.BLE.PairingTimeoutSeconds = -1 }, true},
		{"no categories", func(c *Config) { c.BLE.Categories = nil }, true},
		{"unknown category", func(c *Config) { c.BLE.Categories = []string{"heartbeat"} }, true},
		{"duplicate category", func(c *Config) { c.BLE.Categories = []string{"temperature", "0x1809"} }, true},
		{"zero wake interval", func(c *Config) { c.Sleep.WakeIntervalSeconds = 0 }, true},
		{"panel thresholds inverted", func(c *Config) {
			c.Panel.Enabled = true
			c.Panel.LongPressMillis = 500
		}, true},
		{"panel thresholds ignored when disabled", func(c *Config) { c.Panel.LongPressMillis = 500 }, false},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }, true},
		{"prometheus without url", func(c *Config) {
			c.Prometheus = PrometheusConfig{Enabled: true, Username: "u", PushIntervalSeconds: 60, BufferSize: 10, BatchSize: 10}
		}, true},
		{"mqtt bad broker", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker = "localhost"
		}, true},
		{"mqtt bad qos", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.QoS = 3
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			cfg.Logging.Format = "console"
			cfg.Logging.Level = "info"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrintConfig_MasksSecrets(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mqtt:
  enabled: true
  password: super-secret
`))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	cfg.PrintConfig(zap.New(core))

	entries := logs.FilterMessage("configuration loaded").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 configuration entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for key, value := range fields {
		if s, ok := value.(string); ok && s == "super-secret" {
			t.Errorf("Expected password to be masked, found it in field %s", key)
		}
	}
	if set, ok := fields["mqtt_password_set"].(bool); !ok || !set {
		t.Errorf("Expected mqtt_password_set=true, got %v", fields["mqtt_password_set"])
	}
}
