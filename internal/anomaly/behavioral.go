package anomaly

import "math"

const (
	senderHistoryCap    = 100
	recipientHistoryCap = 500
	senderMinHistory    = 5
	recipientMinHistory = 20
	recentSenderSpan    = 20

	// A sender whose historical mean is below this and whose current
	// message is above the high mark has changed behavior.
	senderLowMeanRisk  = 30.0
	senderHighRiskMark = 70.0
)

// behavioralDetector tracks per-sender risk history and per-recipient sender
// churn.
type behavioralDetector struct {
	cfg        Config
	senders    map[string]*ring[float64]
	recipients map[string]*ring[string]
}

func newBehavioralDetector(cfg Config) *behavioralDetector {
	return &behavioralDetector{
		cfg:        cfg,
		senders:    make(map[string]*ring[float64]),
		recipients: make(map[string]*ring[string]),
	}
}

// DetectSenderChange flags a sender with an established low-risk history
// suddenly sending a high-risk message. Call before TrackSender so the
// current message does not dilute its own baseline.
func (d *behavioralDetector) DetectSenderChange(sender string, currentRisk float64) *Score {
	history, ok := d.senders[sender]
	if !ok || history.Len() < senderMinHistory {
		return nil
	}

	mean, _ := meanStdev(history.Values())
	if mean >= senderLowMeanRisk || currentRisk <= senderHighRiskMark {
		return nil
	}

	return &Score{
		IsAnomaly:  true,
		Confidence: math.Min(1.0, (currentRisk-mean)/100.0),
		Type:       TypeSenderBehaviorChange,
		Method:     MethodBehavioral,
		Details: map[string]any{
			"sender":               sender,
			"historical_mean_risk": mean,
			"current_risk":         currentRisk,
		},
	}
}

// TrackSender records the sender's risk score for future baselines.
func (d *behavioralDetector) TrackSender(sender string, riskScore float64) {
	history, ok := d.senders[sender]
	if !ok {
		history = newRing[float64](senderHistoryCap)
		d.senders[sender] = history
	}
	history.Append(riskScore)
}

// DetectNewSenderRate records the sender against the recipient and flags a
// recipient whose recent traffic is dominated by previously unseen senders.
func (d *behavioralDetector) DetectNewSenderRate(recipient, sender string) *Score {
	history, ok := d.recipients[recipient]
	if !ok {
		history = newRing[string](recipientHistoryCap)
		d.recipients[recipient] = history
	}
	history.Append(sender)

	if history.Len() < recipientMinHistory {
		return nil
	}

	all := uniqueCount(history.Values())
	recent := uniqueCount(history.Last(recentSenderSpan))
	rate := 1 - float64(recent)/float64(all)

	if rate <= d.cfg.NewSenderRateThreshold {
		return nil
	}

	return &Score{
		IsAnomaly:  true,
		Confidence: math.Min(1.0, rate),
		Type:       TypeHighNewSenderRate,
		Method:     MethodBehavioral,
		Details: map[string]any{
			"recipient":       recipient,
			"unique_senders":  all,
			"new_sender_rate": rate,
		},
	}
}

func uniqueCount(values []string) int {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return len(set)
}
