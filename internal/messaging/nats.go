package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
)

// NATSConfig holds connection settings.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// DefaultNATSConfig returns connection defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "phishx",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSClient implements Client on a core NATS connection.
type NATSClient struct {
	conn *nats.Conn
	log  *logging.Logger

	mu   sync.Mutex
	subs []*natsSubscription
}

// NewNATSClient connects to the broker.
func NewNATSClient(cfg NATSConfig, log *logging.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.ErrorContext(context.Background(), "nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.InfoContext(context.Background(), "nats reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSClient{conn: conn, log: log}, nil
}

// Publish sends raw data to the subject.
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.Publish(subject, data)
}

// PublishJSON marshals data and publishes it.
func (c *NATSClient) PublishJSON(ctx context.Context, subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.Publish(ctx, subject, bytes)
}

// Subscribe fans out every message on subject to the handler.
func (c *NATSClient) Subscribe(subject string, handler Handler) (Subscription, error) {
	sub, err := c.conn.Subscribe(subject, c.wrap(subject, "", handler))
	if err != nil {
		return nil, err
	}
	return c.track(sub), nil
}

// QueueSubscribe joins the queue group for load-balanced consumption.
func (c *NATSClient) QueueSubscribe(subject, queue string, handler Handler) (Subscription, error) {
	sub, err := c.conn.QueueSubscribe(subject, queue, c.wrap(subject, queue, handler))
	if err != nil {
		return nil, err
	}
	return c.track(sub), nil
}

func (c *NATSClient) wrap(subject, queue string, handler Handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if err := handler(context.Background(), natsToMessage(msg)); err != nil {
			c.log.ErrorContext(context.Background(), "message handler failed",
				"subject", subject,
				"queue", queue,
				"error", err)
		}
	}
}

func (c *NATSClient) track(sub *nats.Subscription) Subscription {
	s := &natsSubscription{sub: sub}
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
	return s
}

// Close unsubscribes everything and drops the connection.
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil

	c.conn.Close()
	return nil
}

// Drain closes gracefully, letting in-flight handlers finish.
func (c *NATSClient) Drain() error {
	return c.conn.Drain()
}

// IsConnected reports broker connectivity.
func (c *NATSClient) IsConnected() bool {
	return c.conn.IsConnected()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error { return s.sub.Unsubscribe() }
func (s *natsSubscription) Subject() string    { return s.sub.Subject }
func (s *natsSubscription) IsValid() bool      { return s.sub.IsValid() }

func natsToMessage(msg *nats.Msg) *Message {
	m := &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Reply:     msg.Reply,
		Timestamp: time.Now(),
	}
	if msg.Header != nil {
		m.Metadata = make(map[string]string, len(msg.Header))
		for k := range msg.Header {
			m.Metadata[k] = msg.Header.Get(k)
		}
	}
	return m
}
