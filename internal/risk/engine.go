// Package risk turns enrichment fragments into a final verdict. The engine
// is a pure function over its inputs so that the same message always yields
// the same verdict regardless of worker, retry, or redelivery.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// Weights is the ensemble weight vector. The signal term counts heuristic
// signals up to SignalCap, each worth SignalUnit points before weighting.
type Weights struct {
	Text      float64 `mapstructure:"text"`
	URL       float64 `mapstructure:"url"`
	Malware   float64 `mapstructure:"malware"`
	Signals   float64 `mapstructure:"signals"`
	SignalCap int     `mapstructure:"signal_cap"`
	// SignalUnit is the per-signal contribution on the 0-100 scale.
	SignalUnit float64 `mapstructure:"signal_unit"`
}

// DefaultWeights is the canonical ensemble: 0.35 text, 0.35 combined URL,
// 0.20 malware, 0.10 per capped signal at 10 points each.
func DefaultWeights() Weights {
	return Weights{
		Text:       0.35,
		URL:        0.35,
		Malware:    0.20,
		Signals:    0.10,
		SignalCap:  3,
		SignalUnit: 10,
	}
}

// MalwareFloor is the minimum score forced by any confirmed malware hit.
const MalwareFloor = 90

// Input carries everything the engine needs for one message.
type Input struct {
	Text        model.Fragment
	URL         model.Fragment
	Heuristic   model.Fragment
	MalwareHits []model.MalwareHit
	Policy      model.TenantPolicy
}

// Engine computes verdicts with a fixed weight vector.
type Engine struct {
	weights Weights
	now     func() time.Time
}

// NewEngine creates an engine. Zero-valued weights fall back to the
// canonical vector.
func NewEngine(w Weights) *Engine {
	if w.Text == 0 && w.URL == 0 && w.Malware == 0 && w.Signals == 0 {
		w = DefaultWeights()
	}
	return &Engine{weights: w, now: time.Now}
}

// Evaluate merges the fragments into one verdict. Fragment scores are on a
// 0-1 scale; the verdict score is an integer 0-100. The combined URL risk is
// the max of the heuristic URL indicator and the URL ML score, so a strong
// heuristic hit is never diluted by a quiet model.
func (e *Engine) Evaluate(msg *model.Message, in Input) model.Verdict {
	w := e.weights

	combinedURL := math.Max(in.Heuristic.Score, in.URL.Score)
	signalCount := len(in.Heuristic.Signals)
	if signalCount > w.SignalCap {
		signalCount = w.SignalCap
	}

	malwareIndicator := 0.0
	if len(in.MalwareHits) > 0 {
		malwareIndicator = 1.0
	}

	total := w.Text*in.Text.Score*100 +
		w.URL*combinedURL*100 +
		w.Malware*malwareIndicator*100 +
		w.Signals*float64(signalCount)*w.SignalUnit

	score := int(total)

	// Confirmed malware dominates the weighted sum.
	if len(in.MalwareHits) > 0 && score < MalwareFloor {
		score = MalwareFloor
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	explanations := e.explain(in)
	degraded := !in.Text.Available || !in.URL.Available || !in.Heuristic.Available

	category, decision := classify(score, in.Policy)

	return model.Verdict{
		MessageID:    msg.ID,
		TenantID:     msg.TenantID,
		Score:        score,
		Category:     category,
		Decision:     decision,
		Explanations: explanations,
		Degraded:     degraded,
		EvaluatedAt:  e.now().UTC(),
	}
}

// explain builds the deduplicated explanation trail. Natural signals and
// findings come first in fragment order, then malware hits, then degradation
// notes. A
// verdict with no natural signal at all carries the literal fallback entry.
func (e *Engine) explain(in Input) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, frag := range []model.Fragment{in.Text, in.URL, in.Heuristic} {
		for _, sig := range frag.Signals {
			add(sig)
		}
		for _, f := range frag.Findings {
			add(f)
		}
	}
	for _, hit := range in.MalwareHits {
		add(fmt.Sprintf("malware detected in %s: %s", hit.Attachment, hit.Signature))
	}

	if len(out) == 0 {
		add("fallback risk calculation used")
	}

	for _, frag := range []model.Fragment{in.Text, in.URL, in.Heuristic} {
		if !frag.Available {
			add(fmt.Sprintf("%s analysis unavailable, confidence reduced", frag.Kind))
		}
	}

	return out
}

func classify(score int, policy model.TenantPolicy) (model.Category, model.Decision) {
	cold, warm := policy.Cold, policy.Warm
	if cold <= 0 || warm <= 0 || warm <= cold {
		cold, warm = DefaultColdThreshold, DefaultWarmThreshold
	}
	switch {
	case score < cold:
		return model.CategoryCold, model.DecisionAllow
	case score < warm:
		return model.CategoryWarm, model.DecisionQuarantine
	default:
		return model.CategoryHot, model.DecisionReject
	}
}
