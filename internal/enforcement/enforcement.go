// Package enforcement turns verdicts into downstream actions. QUARANTINE
// and REJECT verdicts are published for mail-flow integrations to act on;
// ALLOW verdicts only emit the lifecycle event.
package enforcement

import (
	"context"
	"fmt"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/messaging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// Action is the published enforcement event.
type Action struct {
	MessageID string         `json:"message_id"`
	TenantID  string         `json:"tenant_id"`
	Decision  model.Decision `json:"decision"`
	Score     int            `json:"score"`
	Category  model.Category `json:"category"`
}

// Dispatcher delivers enforcement outcomes.
type Dispatcher interface {
	Dispatch(ctx context.Context, verdict *model.Verdict) error
}

// BusDispatcher publishes verdict events and enforcement actions to NATS.
type BusDispatcher struct {
	pub messaging.Publisher
}

// NewBusDispatcher wires a dispatcher onto the bus.
func NewBusDispatcher(pub messaging.Publisher) *BusDispatcher {
	return &BusDispatcher{pub: pub}
}

// Dispatch publishes the verdict lifecycle event, and an enforcement action
// when the decision requires one.
func (d *BusDispatcher) Dispatch(ctx context.Context, verdict *model.Verdict) error {
	if err := d.pub.PublishJSON(ctx, messaging.SubjectVerdictsCreated, verdict); err != nil {
		return fmt.Errorf("publish verdict event: %w", err)
	}

	if verdict.Decision == model.DecisionAllow {
		return nil
	}

	action := Action{
		MessageID: verdict.MessageID,
		TenantID:  verdict.TenantID,
		Decision:  verdict.Decision,
		Score:     verdict.Score,
		Category:  verdict.Category,
	}
	if err := d.pub.PublishJSON(ctx, messaging.SubjectEnforcementActions, action); err != nil {
		return fmt.Errorf("publish enforcement action: %w", err)
	}
	return nil
}

// LogDispatcher records verdicts without a bus. Used when the broker is not
// configured, and in tests.
type LogDispatcher struct {
	log *logging.Logger
}

// NewLogDispatcher returns a dispatcher that only logs.
func NewLogDispatcher(log *logging.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

// Dispatch logs the verdict outcome.
func (d *LogDispatcher) Dispatch(ctx context.Context, verdict *model.Verdict) error {
	d.log.InfoContext(ctx, "verdict enforced",
		"message_id", verdict.MessageID,
		"tenant_id", verdict.TenantID,
		"decision", verdict.Decision,
		"category", verdict.Category,
		"score", verdict.Score)
	return nil
}
