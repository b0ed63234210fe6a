// Package persistence stores decisions, alerts, and audit rows in
// PostgreSQL. Writes are idempotent on the message identifier so
// at-least-once redelivery never creates duplicate records.
package persistence

import (
	"context"
	"errors"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/anomaly"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// ErrDecisionNotFound is returned when no decision exists for a message.
var ErrDecisionNotFound = errors.New("decision not found")

// Alert is one SOC alert row.
type Alert struct {
	ID        string         `json:"id"`
	MessageID string         `json:"message_id"`
	TenantID  string         `json:"tenant_id"`
	Severity  model.Category `json:"severity"` // WARM or HOT
	Score     int            `json:"score"`
	Reason    string         `json:"reason"`
	Anomaly   *anomaly.Score `json:"anomaly,omitempty"`
}

// Repository persists pipeline outcomes.
type Repository interface {
	// SaveVerdict writes the decision row, a SOC alert when the verdict is
	// WARM or HOT (or an anomaly escalated), and an audit entry, in one
	// transaction. Re-saving the same message identifier is a no-op.
	SaveVerdict(ctx context.Context, msg *model.Message, verdict *model.Verdict, anom *anomaly.Score) error

	// GetDecision returns the stored verdict for a message.
	GetDecision(ctx context.Context, messageID string) (*model.Verdict, error)

	// ListAlerts returns the most recent alerts for a tenant.
	ListAlerts(ctx context.Context, tenantID string, limit int) ([]*Alert, error)

	Close()
}
