// Package service is the inbound boundary of the scan pipeline. It applies
// validation and admission control, then either runs a message
// synchronously or hands it to the orchestrator lanes for asynchronous
// processing.
package service

import (
	"context"
	"fmt"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/admission"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/anomaly"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/breaker"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/metrics"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/orchestrator"
)

// Endpoint classes for admission accounting.
const (
	endpointScan   = "scan"
	endpointSubmit = "submit"
)

// Service fronts the pipeline for API and bus callers.
type Service struct {
	admission *admission.Controller
	orch      *orchestrator.Orchestrator
	proc      orchestrator.Processor
	breakers  *breaker.Registry
	detector  *anomaly.Engine
	log       *logging.Logger
}

// Config carries the service's collaborators.
type Config struct {
	Admission    *admission.Controller
	Orchestrator *orchestrator.Orchestrator
	Processor    orchestrator.Processor
	Breakers     *breaker.Registry
	Detector     *anomaly.Engine
	Logger       *logging.Logger
}

// New builds the service.
func New(cfg Config) *Service {
	return &Service{
		admission: cfg.Admission,
		orch:      cfg.Orchestrator,
		proc:      cfg.Processor,
		breakers:  cfg.Breakers,
		detector:  cfg.Detector,
		log:       cfg.Logger,
	}
}

// Scan validates, admits, and processes a message synchronously, returning
// its verdict. Validation and admission failures are typed errors the
// caller can map to a response.
func (s *Service) Scan(ctx context.Context, msg *model.Message, id model.RequestIdentity, meta admission.RequestMeta) (*model.Verdict, error) {
	if err := s.gate(ctx, msg, id, endpointScan, meta); err != nil {
		return nil, err
	}

	verdict, err := s.proc.Process(ctx, msg)
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Priority), "sync").Inc()
	return verdict, nil
}

// Submit validates, admits, and enqueues a message for asynchronous
// processing. A nil return is the acceptance acknowledgement; the verdict
// arrives later on the bus and in the decision store.
func (s *Service) Submit(ctx context.Context, msg *model.Message, id model.RequestIdentity, meta admission.RequestMeta) error {
	if err := s.gate(ctx, msg, id, endpointSubmit, meta); err != nil {
		return err
	}

	if err := s.orch.Submit(ctx, msg); err != nil {
		return fmt.Errorf("enqueue message %s: %w", msg.ID, err)
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Priority), "async").Inc()
	return nil
}

func (s *Service) gate(ctx context.Context, msg *model.Message, id model.RequestIdentity, endpoint string, meta admission.RequestMeta) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	ctx = logging.WithMessageID(ctx, msg.ID)
	ctx = logging.WithTenantID(ctx, msg.TenantID)

	result, err := s.admission.Admit(ctx, id, endpoint, meta)
	if err != nil {
		return fmt.Errorf("admission check: %w", err)
	}
	if !result.Allowed {
		return &admission.RejectedError{Scope: result.Scope, RetryAfter: result.RetryAfter}
	}
	return nil
}

// ResetAdmission clears the admission counters for one identity within a
// scope. Operator use only.
func (s *Service) ResetAdmission(ctx context.Context, scope admission.Scope, identity string) (int64, error) {
	return s.admission.ResetScope(ctx, scope, identity)
}

// Status is the health snapshot for operators: breaker states, lane
// occupancy, and anomaly counters.
type Status struct {
	Breakers    []breaker.Metrics `json:"breakers"`
	NormalDepth int               `json:"normal_lane_depth"`
	HighDepth   int               `json:"high_lane_depth"`
	Anomalies   anomaly.Stats     `json:"anomalies"`
}

// Status reports the current processing state.
func (s *Service) Status() Status {
	normal, high := s.orch.Depths()
	return Status{
		Breakers:    s.breakers.Snapshot(),
		NormalDepth: normal,
		HighDepth:   high,
		Anomalies:   s.detector.Stats(),
	}
}
