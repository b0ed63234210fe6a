package messaging

// Subject names follow {domain}.{action}.{qualifier}.
const (
	// Inbound scan submissions, one subject per priority lane.
	SubjectEmailsInboundNormal = "emails.inbound.normal"
	SubjectEmailsInboundHigh   = "emails.inbound.high"

	// Verdict lifecycle events.
	SubjectVerdictsCreated = "verdicts.created"

	// Enforcement actions for downstream mail-flow integrations.
	SubjectEnforcementActions = "enforcement.actions"

	// Escalated anomaly notifications for the SOC.
	SubjectAnomaliesEscalated = "anomalies.escalated"
)

// Queue group names for load-balanced consumers.
const (
	QueueScanWorkers = "scan-workers"
)

// InboundSubject returns the lane subject for a priority value.
func InboundSubject(high bool) string {
	if high {
		return SubjectEmailsInboundHigh
	}
	return SubjectEmailsInboundNormal
}
