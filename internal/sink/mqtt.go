package sink

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Retained bool

	// PublishTimeout bounds how long Inject waits for the broker.
	PublishTimeout time.Duration
}

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each fix as JSON to a topic.
type MQTT struct {
	cfg    MQTTConfig
	client mqttPublisher
}

func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	cfg, err := normalizeMQTT(cfg)
	if err != nil {
		return nil, err
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return &MQTT{cfg: cfg, client: client}, nil
}

func normalizeMQTT(cfg MQTTConfig) (MQTTConfig, error) {
	cfg.Broker = strings.TrimSpace(cfg.Broker)
	cfg.Topic = strings.TrimSpace(cfg.Topic)
	if cfg.Broker == "" {
		return cfg, fmt.Errorf("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return cfg, fmt.Errorf("mqtt topic is required")
	}
	if cfg.QoS > 2 {
		return cfg, fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gpsdrain"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return cfg, nil
}

func (m *MQTT) Inject(lat, lon float64, accuracyM float32, timestampMillis int64) error {
	payload, err := NewFix(lat, lon, accuracyM, timestampMillis).Marshal()
	if err != nil {
		return err
	}
	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, m.cfg.Retained, payload)
	if !token.WaitTimeout(m.cfg.PublishTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout after %s", m.cfg.Topic, m.cfg.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", m.cfg.Topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	m.client.Disconnect(250)
	return nil
}
