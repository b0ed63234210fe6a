package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/messaging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/metrics"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/orchestrator"
)

// Ingest consumes inbound messages from the bus and feeds the orchestrator
// lanes. Bus traffic comes from upstream gateways that already passed
// admission control, so only validation applies here.
type Ingest struct {
	bus  messaging.Subscriber
	orch *orchestrator.Orchestrator
	log  *logging.Logger
	subs []messaging.Subscription
}

// NewIngest builds the bus ingest consumer.
func NewIngest(bus messaging.Subscriber, orch *orchestrator.Orchestrator, log *logging.Logger) *Ingest {
	return &Ingest{bus: bus, orch: orch, log: log}
}

// Start subscribes both inbound lanes in the shared worker queue group so
// deliveries balance across instances.
func (i *Ingest) Start() error {
	for _, subject := range []string{
		messaging.SubjectEmailsInboundNormal,
		messaging.SubjectEmailsInboundHigh,
	} {
		sub, err := i.bus.QueueSubscribe(subject, messaging.QueueScanWorkers, i.handle)
		if err != nil {
			i.Close()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		i.subs = append(i.subs, sub)
	}
	i.log.InfoContext(context.Background(), "ingest consumer started",
		"queue", messaging.QueueScanWorkers,
		"subjects", len(i.subs))
	return nil
}

// Close drops the subscriptions. Already-delivered messages stay in the
// lanes and are handled or dead-lettered by the orchestrator.
func (i *Ingest) Close() error {
	var firstErr error
	for _, sub := range i.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	i.subs = nil
	return firstErr
}

func (i *Ingest) handle(ctx context.Context, delivery *messaging.Message) error {
	var msg model.Message
	if err := json.Unmarshal(delivery.Data, &msg); err != nil {
		return fmt.Errorf("decode inbound message on %s: %w", delivery.Subject, err)
	}

	if err := msg.Validate(); err != nil {
		// Malformed payloads cannot succeed on redelivery; drop and log.
		i.log.WarnContext(ctx, "invalid inbound message dropped",
			"subject", delivery.Subject,
			"error", err)
		return nil
	}

	ctx = logging.WithMessageID(ctx, msg.ID)
	ctx = logging.WithTenantID(ctx, msg.TenantID)

	if err := i.orch.Submit(ctx, &msg); err != nil {
		return fmt.Errorf("enqueue message %s: %w", msg.ID, err)
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Priority), "bus").Inc()
	return nil
}
