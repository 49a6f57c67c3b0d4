package sink

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

type NATSConfig struct {
	URL     string
	Subject string
}

type natsPublisher interface {
	Publish(subj string, data []byte) error
	Close()
}

// NATS publishes each fix as JSON to a subject.
type NATS struct {
	subject string
	conn    natsPublisher
}

func NewNATS(cfg NATSConfig) (*NATS, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = nats.DefaultURL
	}
	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	nc, err := nats.Connect(url, nats.Name("gpsdrain"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATS{subject: subject, conn: nc}, nil
}

func (n *NATS) Inject(lat, lon float64, accuracyM float32, timestampMillis int64) error {
	payload, err := NewFix(lat, lon, accuracyM, timestampMillis).Marshal()
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.subject, err)
	}
	return nil
}

func (n *NATS) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	n.conn.Close()
	return nil
}
