package model

import "time"

// FragmentKind names the enrichment collaborator that produced a fragment.
type FragmentKind string

const (
	FragmentTextML    FragmentKind = "text_ml"
	FragmentURLML     FragmentKind = "url_ml"
	FragmentHeuristic FragmentKind = "heuristic"
	FragmentMalware   FragmentKind = "malware"
)

// Fragment is one collaborator's partial scoring result. A fragment is
// produced by exactly one enrichment caller; only the risk engine merges
// fragments across kinds. Signals feed the engine's signal-count term;
// Findings are explanation-only and never affect the score.
type Fragment struct {
	Kind         FragmentKind `json:"kind"`
	Score        float64      `json:"score"`
	Signals      []string     `json:"signals,omitempty"`
	Findings     []string     `json:"findings,omitempty"`
	ModelVersion string       `json:"model_version"`
	Available    bool         `json:"available"`
}

// FallbackFragment is the neutral substitute used when a collaborator call
// fails or times out. The zero score and cleared availability flag degrade
// verdict confidence without failing the pipeline.
func FallbackFragment(kind FragmentKind) Fragment {
	return Fragment{
		Kind:         kind,
		Score:        0,
		ModelVersion: "fallback",
		Available:    false,
	}
}

// MalwareHit is one confirmed detection reported by the attachment scanner.
type MalwareHit struct {
	Attachment string `json:"attachment"`
	Engine     string `json:"engine,omitempty"`
	Signature  string `json:"signature"`
}

// Category is the tenant-facing three-level triage bucket.
type Category string

const (
	CategoryCold Category = "COLD"
	CategoryWarm Category = "WARM"
	CategoryHot  Category = "HOT"
)

// Decision is the enforcement outcome attached to a verdict.
type Decision string

const (
	DecisionAllow      Decision = "ALLOW"
	DecisionQuarantine Decision = "QUARANTINE"
	DecisionReject     Decision = "REJECT"
)

// Verdict is the immutable scoring result for one message. Persisted with
// the message identifier as primary key; re-processing the same identifier
// must not create a duplicate record.
type Verdict struct {
	MessageID    string    `json:"message_id"`
	TenantID     string    `json:"tenant_id"`
	Score        int       `json:"score"` // 0-100
	Category     Category  `json:"category"`
	Decision     Decision  `json:"decision"`
	Explanations []string  `json:"explanations"`
	Degraded     bool      `json:"degraded"` // at least one enrichment fell back
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// TenantPolicy overrides the global verdict thresholds for one tenant.
// Scores below Cold are COLD, below Warm are WARM, the rest HOT.
type TenantPolicy struct {
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	Cold     int    `json:"cold_threshold" yaml:"cold_threshold"`
	Warm     int    `json:"warm_threshold" yaml:"warm_threshold"`
}
