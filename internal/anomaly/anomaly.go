// Package anomaly flags messages whose shape or history deviates from the
// tenant's normal traffic. Detection is advisory: it runs after scoring and
// can escalate an alert, but it never changes the verdict.
package anomaly

// Score is one detection result.
type Score struct {
	IsAnomaly  bool           `json:"is_anomaly"`
	Confidence float64        `json:"confidence"` // 0.0 - 1.0
	Type       string         `json:"anomaly_type"`
	Method     string         `json:"detection_method"`
	Details    map[string]any `json:"details,omitempty"`
}

// Anomaly types.
const (
	TypeExtremeRisk          = "extreme_risk"
	TypeExcessiveURLs        = "excessive_urls"
	TypeExcessiveAttachments = "excessive_attachments"
	TypeOutlierZScore        = "outlier_zscore"
	TypeOutlierIQR           = "outlier_iqr"
	TypeSenderBehaviorChange = "sender_behavior_change"
	TypeHighNewSenderRate    = "high_new_sender_rate"
)

// Detection methods, used as metric labels.
const (
	MethodPattern    = "pattern"
	MethodZScore     = "zscore"
	MethodIQR        = "iqr"
	MethodBehavioral = "behavioral"
)

// Config holds the detection thresholds.
type Config struct {
	WindowSize int `mapstructure:"window_size"`
	MinSamples int `mapstructure:"min_samples"`

	ZScoreThreshold float64 `mapstructure:"zscore_threshold"`
	IQRMultiplier   float64 `mapstructure:"iqr_multiplier"`

	RiskScoreThreshold  int `mapstructure:"risk_score_threshold"`
	URLCountThreshold   int `mapstructure:"url_count_threshold"`
	AttachmentThreshold int `mapstructure:"attachment_threshold"`

	NewSenderRateThreshold float64 `mapstructure:"new_sender_rate_threshold"`

	// ConfidenceThreshold gates escalation for types outside the
	// always-escalate set.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		WindowSize:             1000,
		MinSamples:             10,
		ZScoreThreshold:        3.0,
		IQRMultiplier:          1.5,
		RiskScoreThreshold:     85,
		URLCountThreshold:      10,
		AttachmentThreshold:    5,
		NewSenderRateThreshold: 0.3,
		ConfidenceThreshold:    0.8,
	}
}
