package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/vitalsgw/config"
	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

const (
	liferateTopic  = "liferate"
	publishTimeout = 5 * time.Second
)

// Client publishes classified readings to an MQTT broker.
type Client struct {
	client    paho.Client
	cfg       config.MQTTConfig
	logger    *zap.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// LiferateMessage is the JSON document published for every classified cycle.
type LiferateMessage struct {
	Timestamp         time.Time `json:"timestamp"`
	Liferate          string    `json:"liferate"`
	Code              int       `json:"code"`
	Score             int       `json:"score"`
	Temperature       *float64  `json:"temperature_c,omitempty"`
	RegisteredSensors int       `json:"registered_sensors"`
}

// NewClient builds a client for the configured broker. It does not connect.
func NewClient(cfg config.MQTTConfig, logger *zap.Logger) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ paho.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	c.client = paho.NewClient(opts)
	return c
}

// Connect waits for the initial broker connection, honouring ctx and Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// Topic returns the liferate topic under the configured prefix.
func (c *Client) Topic() string {
	return c.cfg.TopicPrefix + "/" + liferateTopic
}

// PublishReading publishes one classified reading.
func (c *Client) PublishReading(reading types.Reading) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := json.Marshal(NewLiferateMessage(reading))
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	topic := c.Topic()
	token := c.client.Publish(topic, byte(c.cfg.QoS), c.cfg.Retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("failed to publish reading", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("publish reading: %w", err)
	}

	c.logger.Debug("published reading",
		zap.String("topic", topic),
		zap.String("liferate", reading.Liferate),
		zap.Int("score", reading.Score),
	)
	return nil
}

// NewLiferateMessage converts a reading into its published form. The
// temperature is omitted when no sample has been received.
func NewLiferateMessage(reading types.Reading) LiferateMessage {
	msg := LiferateMessage{
		Timestamp:         reading.Timestamp,
		Liferate:          reading.Liferate,
		Code:              reading.LiferateCode,
		Score:             reading.Score,
		RegisteredSensors: reading.RegisteredSensors,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if reading.SampleValid {
		t := reading.TemperatureCelsius
		msg.Temperature = &t
	}
	return msg
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client. Safe to call more than once.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil && c.client.IsConnectionOpen() {
		c.client.Disconnect(250)
	}
	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
