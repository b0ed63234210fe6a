// Package messaging provides the NATS transport for the scan pipeline:
// inbound message submission, verdict events, and escalated-anomaly
// notifications.
package messaging

import (
	"context"
	"time"
)

// Message is one broker message.
type Message struct {
	Subject   string
	Data      []byte
	Reply     string
	Metadata  map[string]string
	Timestamp time.Time
}

// Handler processes a received message. Returning an error marks the
// delivery failed; redelivery depends on the producer's retry policy.
type Handler func(ctx context.Context, msg *Message) error

// Subscription is an active subject subscription.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes events to the bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishJSON(ctx context.Context, subject string, data any) error
	Close() error
}

// Subscriber consumes subjects.
type Subscriber interface {
	Subscribe(subject string, handler Handler) (Subscription, error)

	// QueueSubscribe load-balances messages across subscribers in the same
	// queue group; each message is handled once per group.
	QueueSubscribe(subject, queue string, handler Handler) (Subscription, error)

	Close() error
}

// Client combines both sides of the bus.
type Client interface {
	Publisher
	Subscriber

	// Drain closes gracefully, letting in-flight handlers finish.
	Drain() error
	IsConnected() bool
}
