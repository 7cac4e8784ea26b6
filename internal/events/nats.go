package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/signalsfoundry/contact-scheduler/internal/logging"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Subject string `yaml:"subject"`

	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       SubjectRescheduled,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// envelope is the message published to NATS.
type envelope struct {
	EventType string      `json:"event_type"`
	Payload   Rescheduled `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
	NodeID    string      `json:"node_id"`
	MessageID string      `json:"message_id"`
}

// NATS publishes events as JSON on a core NATS subject.
type NATS struct {
	conn    *nats.Conn
	subject string
	nodeID  string
	log     logging.Logger
}

// NewNATS connects to the configured server.
func NewNATS(cfg NATSConfig, log logging.Logger) (*NATS, error) {
	def := DefaultNATSConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = logging.Noop()
	}

	opts := []nats.Option{
		nats.Name("contact-scheduler"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(context.Background(), "nats disconnected", logging.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info(context.Background(), "nats reconnected", logging.String("url", c.ConnectedUrl()))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}
	return &NATS{conn: conn, subject: cfg.Subject, nodeID: nodeID(), log: log}, nil
}

// Publish implements Publisher.
func (n *NATS) Publish(ctx context.Context, ev Rescheduled) error {
	data, err := json.Marshal(envelope{
		EventType: n.subject,
		Payload:   ev,
		Timestamp: time.Now().UTC(),
		NodeID:    n.nodeID,
		MessageID: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	n.log.Debug(ctx, "published reschedule event",
		logging.String("subject", n.subject),
		logging.String("pass_id", ev.PassID.String()))
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()[:8]
}
