package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/anomaly"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/metrics"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects a pooled repository.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// SaveVerdict writes decision, alert, and audit rows in one transaction.
// A message identifier that already has a decision row makes the whole call
// a no-op, so redelivered work cannot duplicate alerts or audit entries.
func (r *PostgresRepository) SaveVerdict(ctx context.Context, msg *model.Message, verdict *model.Verdict, anom *anomaly.Score) error {
	explanations, err := json.Marshal(verdict.Explanations)
	if err != nil {
		return fmt.Errorf("failed to encode explanations: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		metrics.PersistenceErrors.Inc()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO email_decisions
			(message_id, tenant_id, sender, recipient, subject, score,
			 category, decision, explanations, degraded, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (message_id) DO NOTHING
	`,
		verdict.MessageID, verdict.TenantID, msg.Sender, msg.Recipient,
		msg.Subject, verdict.Score, verdict.Category, verdict.Decision,
		explanations, verdict.Degraded, verdict.EvaluatedAt,
	)
	if err != nil {
		metrics.PersistenceErrors.Inc()
		return fmt.Errorf("failed to save decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already persisted by an earlier delivery.
		return tx.Commit(ctx)
	}

	if verdict.Category != model.CategoryCold || anom != nil {
		if err := r.insertAlert(ctx, tx, verdict, anom); err != nil {
			metrics.PersistenceErrors.Inc()
			return err
		}
	}

	detail, err := json.Marshal(map[string]any{
		"score":    verdict.Score,
		"category": verdict.Category,
		"decision": verdict.Decision,
		"degraded": verdict.Degraded,
	})
	if err != nil {
		return fmt.Errorf("failed to encode audit detail: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO audit_log (message_id, tenant_id, action, detail)
		VALUES ($1, $2, $3, $4)
	`, verdict.MessageID, verdict.TenantID, "decision_persisted", detail); err != nil {
		metrics.PersistenceErrors.Inc()
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.PersistenceErrors.Inc()
		return fmt.Errorf("failed to commit verdict: %w", err)
	}
	return nil
}

func (r *PostgresRepository) insertAlert(ctx context.Context, tx pgx.Tx, verdict *model.Verdict, anom *anomaly.Score) error {
	severity := verdict.Category
	if severity == model.CategoryCold {
		// Anomaly-only escalation on an otherwise cold message.
		severity = model.CategoryWarm
	}

	var anomalyJSON []byte
	if anom != nil {
		data, err := json.Marshal(anom)
		if err != nil {
			return fmt.Errorf("failed to encode anomaly: %w", err)
		}
		anomalyJSON = data
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO soc_alerts (id, message_id, tenant_id, severity, score, reason, anomaly)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO NOTHING
	`,
		uuid.New().String(), verdict.MessageID, verdict.TenantID, severity,
		verdict.Score, strings.Join(verdict.Explanations, "; "), anomalyJSON,
	); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetDecision returns the stored verdict for a message.
func (r *PostgresRepository) GetDecision(ctx context.Context, messageID string) (*model.Verdict, error) {
	var (
		v            model.Verdict
		explanations []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT message_id, tenant_id, score, category, decision,
		       explanations, degraded, evaluated_at
		FROM email_decisions
		WHERE message_id = $1
	`, messageID).Scan(
		&v.MessageID, &v.TenantID, &v.Score, &v.Category, &v.Decision,
		&explanations, &v.Degraded, &v.EvaluatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDecisionNotFound
		}
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	if err := json.Unmarshal(explanations, &v.Explanations); err != nil {
		return nil, fmt.Errorf("failed to decode explanations: %w", err)
	}
	return &v, nil
}

// ListAlerts returns the most recent alerts for a tenant.
func (r *PostgresRepository) ListAlerts(ctx context.Context, tenantID string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, message_id, tenant_id, severity, score, reason, anomaly
		FROM soc_alerts
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		var (
			a           Alert
			anomalyJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.MessageID, &a.TenantID, &a.Severity, &a.Score, &a.Reason, &anomalyJSON); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if len(anomalyJSON) > 0 {
			a.Anomaly = &anomaly.Score{}
			if err := json.Unmarshal(anomalyJSON, a.Anomaly); err != nil {
				return nil, fmt.Errorf("failed to decode anomaly: %w", err)
			}
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}
