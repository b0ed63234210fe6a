package anomaly

import (
	"math"
	"sync"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/metrics"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// Types escalated regardless of confidence.
var alwaysEscalate = map[string]struct{}{
	TypeSenderBehaviorChange: {},
	TypeHighNewSenderRate:    {},
	TypeExtremeRisk:          {},
}

// Stats are the engine's running totals.
type Stats struct {
	TotalAnalyzed     uint64  `json:"total_analyzed"`
	AnomaliesDetected uint64  `json:"anomalies_detected"`
	AnomalyRate       float64 `json:"anomaly_rate_percent"`
}

// Engine combines the pattern, statistical, and behavioral detectors.
// Detector priority is fixed: the cheap pattern checks run first and the
// first hit wins. State is in-process; detection baselines restart with the
// process.
type Engine struct {
	mu          sync.Mutex
	cfg         Config
	statistical *statisticalDetector
	behavioral  *behavioralDetector

	totalAnalyzed     uint64
	anomaliesDetected uint64
}

// NewEngine builds an engine with the given thresholds. Zero-valued config
// fields fall back to the defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.ZScoreThreshold <= 0 {
		cfg.ZScoreThreshold = def.ZScoreThreshold
	}
	if cfg.IQRMultiplier <= 0 {
		cfg.IQRMultiplier = def.IQRMultiplier
	}
	if cfg.RiskScoreThreshold <= 0 {
		cfg.RiskScoreThreshold = def.RiskScoreThreshold
	}
	if cfg.URLCountThreshold <= 0 {
		cfg.URLCountThreshold = def.URLCountThreshold
	}
	if cfg.AttachmentThreshold <= 0 {
		cfg.AttachmentThreshold = def.AttachmentThreshold
	}
	if cfg.NewSenderRateThreshold <= 0 {
		cfg.NewSenderRateThreshold = def.NewSenderRateThreshold
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	return &Engine{
		cfg:         cfg,
		statistical: newStatisticalDetector(cfg),
		behavioral:  newBehavioralDetector(cfg),
	}
}

// Analyze runs the detectors against a scored message. It returns nil when
// nothing deviates. Every call updates the rolling baselines, anomalous or
// not.
func (e *Engine) Analyze(msg *model.Message, riskScore int) *Score {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalAnalyzed++

	f := extractFeatures(msg, riskScore)

	score := e.detectPattern(msg, riskScore)

	if score == nil {
		score = e.statistical.Detect(f)
	} else {
		// Keep the baselines moving even when a pattern hit short-circuits.
		e.statistical.add(f)
	}

	if score == nil {
		score = e.behavioral.DetectSenderChange(msg.Sender, float64(riskScore))
	}
	e.behavioral.TrackSender(msg.Sender, float64(riskScore))

	// Always records the recipient's sender history; the result only counts
	// when no earlier detector fired.
	if nsr := e.behavioral.DetectNewSenderRate(msg.Recipient, msg.Sender); score == nil {
		score = nsr
	}

	if score != nil {
		e.anomaliesDetected++
		metrics.AnomaliesDetected.WithLabelValues(score.Type, score.Method).Inc()
	}
	return score
}

func (e *Engine) detectPattern(msg *model.Message, riskScore int) *Score {
	if riskScore > e.cfg.RiskScoreThreshold {
		return &Score{
			IsAnomaly:  true,
			Confidence: math.Min(1.0, float64(riskScore-e.cfg.RiskScoreThreshold)/50.0),
			Type:       TypeExtremeRisk,
			Method:     MethodPattern,
			Details:    map[string]any{"risk_score": riskScore},
		}
	}
	if n := len(msg.URLs); n > e.cfg.URLCountThreshold {
		return &Score{
			IsAnomaly:  true,
			Confidence: math.Min(1.0, float64(n)/20.0),
			Type:       TypeExcessiveURLs,
			Method:     MethodPattern,
			Details:    map[string]any{"url_count": n},
		}
	}
	if n := len(msg.Attachments); n > e.cfg.AttachmentThreshold {
		return &Score{
			IsAnomaly:  true,
			Confidence: math.Min(1.0, float64(n)/10.0),
			Type:       TypeExcessiveAttachments,
			Method:     MethodPattern,
			Details:    map[string]any{"attachment_count": n},
		}
	}
	return nil
}

// ShouldEscalate decides whether a detection becomes an alert rather than a
// log line: high confidence, or a type in the always-escalate set.
func (e *Engine) ShouldEscalate(score *Score) bool {
	if score == nil || !score.IsAnomaly {
		return false
	}
	if score.Confidence >= e.cfg.ConfidenceThreshold {
		metrics.AnomaliesEscalated.Inc()
		return true
	}
	if _, ok := alwaysEscalate[score.Type]; ok {
		metrics.AnomaliesEscalated.Inc()
		return true
	}
	return false
}

// Stats reports the engine's running totals.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		TotalAnalyzed:     e.totalAnalyzed,
		AnomaliesDetected: e.anomaliesDetected,
	}
	if e.totalAnalyzed > 0 {
		s.AnomalyRate = float64(e.anomaliesDetected) / float64(e.totalAnalyzed) * 100
	}
	return s
}

func extractFeatures(msg *model.Message, riskScore int) features {
	return features{
		featureRiskScore:       float64(riskScore),
		featureURLCount:        float64(len(msg.URLs)),
		featureAttachmentCount: float64(len(msg.Attachments)),
		featureBodyLength:      float64(len(msg.Body)),
	}
}
