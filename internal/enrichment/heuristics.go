package enrichment

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// Keyword weights for the text heuristic. Matching is substring-based on the
// lowercased subject+body, one hit per keyword.
var textKeywords = []struct {
	word   string
	weight float64
}{
	{"urgent", 0.2},
	{"verify", 0.2},
	{"suspended", 0.3},
	{"password", 0.3},
	{"immediately", 0.2},
}

var suspiciousTLDs = []string{
	".zip", ".review", ".country", ".link", ".click", ".top", ".xyz",
}

var brandKeywords = []string{
	"paypal", "google", "facebook", "apple", "microsoft", "amazon", "bank",
}

var ipHostPattern = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// Per-URL score at or above this is treated as a confirmed high-risk URL,
// which saturates the fragment's URL-risk indicator.
const highRiskURLScore = 0.6

// Analyzer runs the local URL and text heuristics. It has no external
// collaborator, so it is always available and never goes through a breaker.
type Analyzer struct{}

// NewAnalyzer returns the heuristic analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze produces the heuristic fragment for a message. The fragment score
// is the URL-risk indicator (1.0 once any single URL is high-risk, else the
// worst per-URL score); the signals are the keyword and URL findings.
func (a *Analyzer) Analyze(msg *model.Message) model.Fragment {
	// Only the keyword signals feed the ensemble's signal-count term; the
	// text weight sum is reported by AnalyzeText for callers that want it.
	_, textSignals := a.AnalyzeText(msg.Subject, msg.Body)

	urlIndicator := 0.0
	var urlSignals []string
	for _, raw := range msg.URLs {
		score, signals := a.AnalyzeURL(raw)
		if score >= highRiskURLScore {
			urlIndicator = 1.0
		} else if score > urlIndicator {
			urlIndicator = score
		}
		urlSignals = append(urlSignals, signals...)
	}

	// URL red flags already drive the score through the indicator; keeping
	// them out of Signals stops them from also inflating the signal count.
	return model.Fragment{
		Kind:         model.FragmentHeuristic,
		Score:        urlIndicator,
		Signals:      textSignals,
		Findings:     urlSignals,
		ModelVersion: "heuristic-v1",
		Available:    true,
	}
}

// AnalyzeText scores subject+body against the keyword table. The score is
// the capped weight sum on a 0-1 scale.
func (a *Analyzer) AnalyzeText(subject, body string) (float64, []string) {
	text := strings.ToLower(subject + " " + body)

	score := 0.0
	var signals []string
	for _, kw := range textKeywords {
		if strings.Contains(text, kw.word) {
			score += kw.weight
			signals = append(signals, "keyword detected: "+kw.word)
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score, signals
}

// AnalyzeURL scores one URL on a 0-1 scale from structural red flags.
func (a *Analyzer) AnalyzeURL(raw string) (float64, []string) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return 0, nil
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return 0, nil
	}

	score := 0.0
	var signals []string

	if ipHostPattern.MatchString(host) {
		score += 0.3
		signals = append(signals, "IP-based URL")
	}

	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			score += 0.2
			signals = append(signals, "suspicious TLD: "+tld)
			break
		}
	}

	for _, brand := range brandKeywords {
		if strings.Contains(host, brand) && !strings.HasSuffix(host, brand+".com") {
			score += 0.3
			signals = append(signals, "possible brand impersonation: "+brand)
			break
		}
	}

	if strings.Count(host, ".") >= 4 {
		score += 0.2
		signals = append(signals, "excessive subdomains")
	}

	if parsed.Scheme == "http" {
		score += 0.1
		signals = append(signals, "insecure HTTP link")
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, signals
}

// RiskLevel buckets a per-URL score for reporting.
func RiskLevel(score float64) string {
	switch {
	case score >= highRiskURLScore:
		return "high"
	case score >= 0.3:
		return "medium"
	default:
		return "low"
	}
}
