// Package pipeline runs one message through enrichment, scoring, anomaly
// analysis, persistence, and enforcement. Enrichment failures degrade to
// fallback fragments and never fail the run; persistence and enforcement
// failures are returned for the orchestrator to retry.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/anomaly"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/enforcement"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/enrichment"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/messaging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/metrics"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/persistence"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/risk"
)

// Stage names, used in errors, metrics, and DLQ entries.
const (
	StageEnrich  = "enrich"
	StageScore   = "score"
	StageAnomaly = "anomaly"
	StagePersist = "persist"
	StageEnforce = "enforce"
)

// StageError marks which stage failed so retry and DLQ records carry it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline wires the per-message stages together.
type Pipeline struct {
	caller     *enrichment.Caller
	textScorer enrichment.TextScorer
	urlScorer  enrichment.URLScorer
	scanner    enrichment.AttachmentScanner
	heuristics *enrichment.Analyzer

	engine   *risk.Engine
	policies *risk.PolicyStore
	detector *anomaly.Engine

	repo       persistence.Repository
	dispatcher enforcement.Dispatcher
	events     messaging.Publisher // optional; nil disables bus notifications

	terminalDecision model.Decision
	log              *logging.Logger
}

// Config carries the pipeline's collaborators.
type Config struct {
	Caller     *enrichment.Caller
	TextScorer enrichment.TextScorer
	URLScorer  enrichment.URLScorer
	Scanner    enrichment.AttachmentScanner

	Engine   *risk.Engine
	Policies *risk.PolicyStore
	Detector *anomaly.Engine

	Repository persistence.Repository
	Dispatcher enforcement.Dispatcher
	Events     messaging.Publisher

	// TerminalDecision is the safe-default decision recorded when a
	// message exhausts its retries. Fail-open by default.
	TerminalDecision model.Decision

	Logger *logging.Logger
}

// New builds a pipeline.
func New(cfg Config) *Pipeline {
	terminal := cfg.TerminalDecision
	if terminal == "" {
		terminal = model.DecisionAllow
	}
	return &Pipeline{
		caller:           cfg.Caller,
		textScorer:       cfg.TextScorer,
		urlScorer:        cfg.URLScorer,
		scanner:          cfg.Scanner,
		heuristics:       enrichment.NewAnalyzer(),
		engine:           cfg.Engine,
		policies:         cfg.Policies,
		detector:         cfg.Detector,
		repo:             cfg.Repository,
		dispatcher:       cfg.Dispatcher,
		events:           cfg.Events,
		terminalDecision: terminal,
		log:              cfg.Logger,
	}
}

// Process runs the full stage sequence for one message.
func (p *Pipeline) Process(ctx context.Context, msg *model.Message) (*model.Verdict, error) {
	ctx = logging.WithMessageID(ctx, msg.ID)
	ctx = logging.WithTenantID(ctx, msg.TenantID)

	in := p.enrich(ctx, msg)

	verdict := p.score(ctx, msg, in)

	anom := p.analyze(ctx, msg, verdict)

	if err := p.persist(ctx, msg, verdict, anom); err != nil {
		return nil, err
	}

	if err := p.enforce(ctx, verdict); err != nil {
		return nil, err
	}

	return verdict, nil
}

// enrich fans out the two collaborator calls concurrently, runs the local
// heuristics, and scans attachments. It cannot fail; unavailable
// collaborators contribute fallback fragments.
func (p *Pipeline) enrich(ctx context.Context, msg *model.Message) risk.Input {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageEnrich).Observe(time.Since(start).Seconds())
	}()

	var (
		wg       sync.WaitGroup
		textFrag model.Fragment
		urlFrag  model.Fragment
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		textFrag = p.caller.Fragment(ctx, enrichment.CollaboratorTextML, model.FragmentTextML,
			func(ctx context.Context) (model.Fragment, error) {
				return p.textScorer.ScoreText(ctx, msg.Subject, msg.Body)
			})
	}()
	go func() {
		defer wg.Done()
		urlFrag = p.caller.Fragment(ctx, enrichment.CollaboratorURLML, model.FragmentURLML,
			func(ctx context.Context) (model.Fragment, error) {
				return p.urlScorer.ScoreURLs(ctx, msg.URLs)
			})
	}()

	heuristicFrag := p.heuristics.Analyze(msg)
	scan := p.caller.Scan(ctx, p.scanner, msg.Attachments)

	wg.Wait()

	if !scan.Available && len(msg.Attachments) > 0 {
		// Unscanned attachments reduce confidence like a fallback fragment.
		heuristicFrag.Findings = append(heuristicFrag.Findings, "attachments not scanned")
	}

	return risk.Input{
		Text:        textFrag,
		URL:         urlFrag,
		Heuristic:   heuristicFrag,
		MalwareHits: scan.Hits,
	}
}

func (p *Pipeline) score(ctx context.Context, msg *model.Message, in risk.Input) *model.Verdict {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageScore).Observe(time.Since(start).Seconds())
	}()

	in.Policy = p.policies.Lookup(msg.TenantID)
	verdict := p.engine.Evaluate(msg, in)
	metrics.Verdicts.WithLabelValues(string(verdict.Category), string(verdict.Decision)).Inc()

	p.log.InfoContext(ctx, "message scored",
		"score", verdict.Score,
		"category", verdict.Category,
		"decision", verdict.Decision,
		"degraded", verdict.Degraded)
	return &verdict
}

// analyze runs anomaly detection. It is advisory: a detection rides along
// with the verdict but detection trouble never fails the run.
func (p *Pipeline) analyze(ctx context.Context, msg *model.Message, verdict *model.Verdict) *anomaly.Score {
	if p.detector == nil {
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageAnomaly).Observe(time.Since(start).Seconds())
	}()

	score := p.detector.Analyze(msg, verdict.Score)
	if score == nil {
		return nil
	}

	if !p.detector.ShouldEscalate(score) {
		p.log.InfoContext(ctx, "anomaly detected",
			"anomaly_type", score.Type,
			"method", score.Method,
			"confidence", score.Confidence)
		return nil
	}

	p.log.WarnContext(ctx, "anomaly escalated",
		"anomaly_type", score.Type,
		"method", score.Method,
		"confidence", score.Confidence)

	if p.events != nil {
		if err := p.events.PublishJSON(ctx, messaging.SubjectAnomaliesEscalated, map[string]any{
			"message_id": msg.ID,
			"tenant_id":  msg.TenantID,
			"anomaly":    score,
		}); err != nil {
			p.log.WarnContext(ctx, "anomaly notification failed", "error", err)
		}
	}
	return score
}

func (p *Pipeline) persist(ctx context.Context, msg *model.Message, verdict *model.Verdict, anom *anomaly.Score) error {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StagePersist).Observe(time.Since(start).Seconds())
	}()

	if err := p.repo.SaveVerdict(ctx, msg, verdict, anom); err != nil {
		return &StageError{Stage: StagePersist, Err: err}
	}
	return nil
}

func (p *Pipeline) enforce(ctx context.Context, verdict *model.Verdict) error {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageEnforce).Observe(time.Since(start).Seconds())
	}()

	if err := p.dispatcher.Dispatch(ctx, verdict); err != nil {
		return &StageError{Stage: StageEnforce, Err: err}
	}
	return nil
}

// TerminalVerdict is the safe-default decision recorded when retries are
// exhausted. The message is not silently dropped: the decision row and the
// DLQ entry both land, and the fail-open default is explicit configuration.
func (p *Pipeline) TerminalVerdict(msg *model.Message) *model.Verdict {
	category := model.CategoryCold
	if p.terminalDecision == model.DecisionQuarantine {
		category = model.CategoryWarm
	}
	return &model.Verdict{
		MessageID:    msg.ID,
		TenantID:     msg.TenantID,
		Score:        0,
		Category:     category,
		Decision:     p.terminalDecision,
		Explanations: []string{"processing failed, default decision applied"},
		Degraded:     true,
		EvaluatedAt:  time.Now().UTC(),
	}
}

// RecordTerminal best-effort persists the safe-default verdict for a
// message that exhausted its retries.
func (p *Pipeline) RecordTerminal(ctx context.Context, msg *model.Message) *model.Verdict {
	verdict := p.TerminalVerdict(msg)
	if err := p.repo.SaveVerdict(ctx, msg, verdict, nil); err != nil {
		p.log.ErrorContext(ctx, "terminal decision could not be persisted",
			"message_id", msg.ID,
			"error", err)
	}
	return verdict
}
