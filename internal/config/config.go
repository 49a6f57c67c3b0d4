package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"gpsdrain/internal/discovery"
	"gpsdrain/internal/gps"
	"gpsdrain/internal/serialport"
)

type Config struct {
	Scan     ScanConfig     `yaml:"scan"`
	Poll     PollConfig     `yaml:"poll"`
	Session  SessionConfig  `yaml:"session"`
	Location LocationConfig `yaml:"location"`
	Sinks    SinksConfig    `yaml:"sinks"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

type ScanConfig struct {
	// Subnet is the first three octets, e.g. "192.168.1". Empty means
	// detect from the local interface at startup.
	Subnet      string        `yaml:"subnet"`
	StartOctet  int           `yaml:"start_octet"`
	EndOctet    int           `yaml:"end_octet"`
	Port        int           `yaml:"port"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type PollConfig struct {
	Interval     time.Duration `yaml:"interval"`
	AccuracyM    float32       `yaml:"accuracy_m"`
	MaxLineBytes int           `yaml:"max_line_bytes"`
}

type SessionConfig struct {
	Retry      bool          `yaml:"retry"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type LocationConfig struct {
	OverrideAllowed bool `yaml:"override_allowed"`
}

type SinksConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
	NATS NATSConfig `yaml:"nats"`
	NMEA NMEAConfig `yaml:"nmea"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

type NATSConfig struct {
	Enable  bool   `yaml:"enable"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type NMEAConfig struct {
	Enable       bool   `yaml:"enable"`
	UDPDest      string `yaml:"udp_dest"`
	SerialDevice string `yaml:"serial_device"`
	Baud         int    `yaml:"baud"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

const (
	DefaultPort       = 2768
	DefaultStartOctet = 100
	DefaultEndOctet   = 128
	DefaultRetryDelay = 5 * time.Second
	DefaultWebListen  = ":8080"
	DefaultMQTTTopic  = "gpsdrain/location"
	DefaultNATSSubj   = "gpsdrain.location"
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default is the configuration used when no file is given.
func Default() Config {
	var cfg Config
	_ = DefaultAndValidate(&cfg)
	return cfg
}

// DefaultAndValidate fills zero values with defaults and rejects settings
// that cannot work. It is also used after command-line overrides.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// Scan.
	cfg.Scan.Subnet = strings.TrimSpace(cfg.Scan.Subnet)
	if cfg.Scan.StartOctet == 0 {
		cfg.Scan.StartOctet = DefaultStartOctet
	}
	if cfg.Scan.EndOctet == 0 {
		cfg.Scan.EndOctet = DefaultEndOctet
	}
	if cfg.Scan.Port == 0 {
		cfg.Scan.Port = DefaultPort
	}
	if cfg.Scan.DialTimeout <= 0 {
		cfg.Scan.DialTimeout = discovery.DefaultDialTimeout
	}
	if cfg.Scan.StartOctet < 1 || cfg.Scan.StartOctet > 254 {
		return fmt.Errorf("scan.start_octet must be in [1,254]")
	}
	if cfg.Scan.EndOctet < 1 || cfg.Scan.EndOctet > 254 {
		return fmt.Errorf("scan.end_octet must be in [1,254]")
	}
	if cfg.Scan.StartOctet > cfg.Scan.EndOctet {
		return fmt.Errorf("scan.start_octet must be <= scan.end_octet")
	}
	if cfg.Scan.Port < 1 || cfg.Scan.Port > 65535 {
		return fmt.Errorf("scan.port must be in [1,65535]")
	}
	if cfg.Scan.Subnet != "" {
		if err := cfg.Scan.Range().Validate(); err != nil {
			return fmt.Errorf("scan.subnet: %w", err)
		}
	}

	// Poll.
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = gps.DefaultInterval
	}
	if cfg.Poll.AccuracyM == 0 {
		cfg.Poll.AccuracyM = gps.DefaultAccuracyM
	}
	if cfg.Poll.AccuracyM < 0 {
		return fmt.Errorf("poll.accuracy_m must be > 0")
	}
	if cfg.Poll.MaxLineBytes <= 0 {
		cfg.Poll.MaxLineBytes = gps.DefaultMaxLineBytes
	}
	if cfg.Poll.MaxLineBytes < 16 {
		return fmt.Errorf("poll.max_line_bytes must be >= 16")
	}

	if cfg.Session.RetryDelay <= 0 {
		cfg.Session.RetryDelay = DefaultRetryDelay
	}

	// Sinks.
	if cfg.Sinks.MQTT.Enable {
		if strings.TrimSpace(cfg.Sinks.MQTT.Broker) == "" {
			return fmt.Errorf("sinks.mqtt.broker is required when sinks.mqtt.enable is true")
		}
		if cfg.Sinks.MQTT.QoS < 0 || cfg.Sinks.MQTT.QoS > 2 {
			return fmt.Errorf("sinks.mqtt.qos must be 0, 1 or 2")
		}
	}
	if strings.TrimSpace(cfg.Sinks.MQTT.Topic) == "" {
		cfg.Sinks.MQTT.Topic = DefaultMQTTTopic
	}
	if strings.TrimSpace(cfg.Sinks.NATS.Subject) == "" {
		cfg.Sinks.NATS.Subject = DefaultNATSSubj
	}
	if cfg.Sinks.NMEA.Baud == 0 {
		cfg.Sinks.NMEA.Baud = serialport.DefaultBaud
	}
	if cfg.Sinks.NMEA.Enable {
		if strings.TrimSpace(cfg.Sinks.NMEA.UDPDest) == "" && strings.TrimSpace(cfg.Sinks.NMEA.SerialDevice) == "" {
			return fmt.Errorf("sinks.nmea needs udp_dest or serial_device when sinks.nmea.enable is true")
		}
		if !serialport.SupportedBaud(cfg.Sinks.NMEA.Baud) {
			return fmt.Errorf("sinks.nmea.baud %d is not supported", cfg.Sinks.NMEA.Baud)
		}
	}

	if strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = DefaultWebListen
	}

	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level %q is not a valid level", cfg.Log.Level)
	}

	return nil
}

// Range is the candidate range to scan. Subnet must be set (or detected)
// before it is used.
func (s ScanConfig) Range() discovery.AddressRange {
	return discovery.AddressRange{
		SubnetPrefix: s.Subnet,
		StartOctet:   s.StartOctet,
		EndOctet:     s.EndOctet,
		Port:         s.Port,
	}
}

// ClientConfig maps poll settings onto the stream client.
func (p PollConfig) ClientConfig() gps.ClientConfig {
	return gps.ClientConfig{
		Interval:     p.Interval,
		AccuracyM:    p.AccuracyM,
		MaxLineBytes: p.MaxLineBytes,
	}
}
