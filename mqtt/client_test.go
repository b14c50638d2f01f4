package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mjasion/balena-home/vitalsgw/config"
	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled:     true,
		Broker:      "tcp://127.0.0.1:1",
		ClientID:    "vitalsgw-test",
		TopicPrefix: "home/vitals",
		QoS:         1,
	}
}

func TestTopic(t *testing.T) {
	c := NewClient(testConfig(), zap.NewNop())
	if got := c.Topic(); got != "home/vitals/liferate" {
		t.Errorf("Expected topic home/vitals/liferate, got %s", got)
	}
}

func TestNewLiferateMessage(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := NewLiferateMessage(types.Reading{
		Timestamp:          ts,
		TemperatureCelsius: 38.5,
		SampleValid:        true,
		Score:              1,
		Liferate:           "critical",
		LiferateCode:       1,
		RegisteredSensors:  2,
	})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal message: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}

	if decoded["liferate"] != "critical" {
		t.Errorf("Expected liferate critical, got %v", decoded["liferate"])
	}
	if decoded["temperature_c"] != 38.5 {
		t.Errorf("Expected temperature 38.5, got %v", decoded["temperature_c"])
	}
	if decoded["registered_sensors"] != float64(2) {
		t.Errorf("Expected 2 registered sensors, got %v", decoded["registered_sensors"])
	}
	if decoded["timestamp"] != "2026-01-02T03:04:05Z" {
		t.Errorf("Unexpected timestamp: %v", decoded["timestamp"])
	}
}

func TestNewLiferateMessage_UnsetSample(t *testing.T) {
	msg := NewLiferateMessage(types.Reading{Score: -1, Liferate: "undefined", LiferateCode: -1})

	if msg.Temperature != nil {
		t.Errorf("Expected temperature to be omitted, got %v", *msg.Temperature)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Expected timestamp to default to now")
	}
	if msg.Code != -1 {
		t.Errorf("Expected code -1, got %d", msg.Code)
	}
}

func TestPublishReading_NotConnected(t *testing.T) {
	c := NewClient(testConfig(), zap.NewNop())
	if err := c.PublishReading(types.Reading{}); err == nil {
		t.Error("Expected error when publishing without a connection")
	}
}

func TestConnect_AfterDisconnect(t *testing.T) {
	c := NewClient(testConfig(), zap.NewNop())
	c.Disconnect()
	c.Disconnect()

	if err := c.Connect(context.Background()); err == nil {
		t.Error("Expected error connecting a stopped client")
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	c := NewClient(testConfig(), zap.NewNop())
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := c.Connect(ctx); err != context.DeadlineExceeded {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
