package anomaly

import (
	"math"
	"sort"
)

// Feature names tracked by the statistical detector.
const (
	featureRiskScore       = "risk_score"
	featureURLCount        = "url_count"
	featureAttachmentCount = "attachment_count"
	featureBodyLength      = "body_length"
)

var trackedFeatures = []string{
	featureRiskScore,
	featureURLCount,
	featureAttachmentCount,
	featureBodyLength,
}

// features are the numeric observables of one message.
type features map[string]float64

// statisticalDetector keeps a rolling window per feature and flags values
// that deviate by z-score or interquartile range. Below MinSamples no
// judgement is made.
type statisticalDetector struct {
	cfg     Config
	history map[string]*ring[float64]
}

func newStatisticalDetector(cfg Config) *statisticalDetector {
	h := make(map[string]*ring[float64], len(trackedFeatures))
	for _, name := range trackedFeatures {
		h[name] = newRing[float64](cfg.WindowSize)
	}
	return &statisticalDetector{cfg: cfg, history: h}
}

// Detect checks the sample against the window, then adds it to the window.
// The sample is recorded whether or not it is anomalous.
func (d *statisticalDetector) Detect(f features) *Score {
	score := d.detectZScore(f)
	if score == nil {
		score = d.detectIQR(f)
	}
	d.add(f)
	return score
}

func (d *statisticalDetector) add(f features) {
	for _, name := range trackedFeatures {
		if v, ok := f[name]; ok {
			d.history[name].Append(v)
		}
	}
}

func (d *statisticalDetector) detectZScore(f features) *Score {
	for _, name := range trackedFeatures {
		window := d.history[name]
		if window.Len() < d.cfg.MinSamples {
			continue
		}
		current, ok := f[name]
		if !ok {
			continue
		}

		values := window.Values()
		mean, stdev := meanStdev(values)
		if stdev == 0 {
			continue
		}

		z := math.Abs((current - mean) / stdev)
		if z > d.cfg.ZScoreThreshold {
			confidence := math.Min(1.0, z/(d.cfg.ZScoreThreshold*2))
			return &Score{
				IsAnomaly:  true,
				Confidence: confidence,
				Type:       TypeOutlierZScore,
				Method:     MethodZScore,
				Details:    map[string]any{"feature": name, "value": current, "zscore": z},
			}
		}
	}
	return nil
}

func (d *statisticalDetector) detectIQR(f features) *Score {
	for _, name := range trackedFeatures {
		window := d.history[name]
		if window.Len() < d.cfg.MinSamples {
			continue
		}
		current, ok := f[name]
		if !ok {
			continue
		}

		values := window.Values()
		sort.Float64s(values)
		q1 := values[len(values)/4]
		q3 := values[3*len(values)/4]
		iqr := q3 - q1

		lower := q1 - d.cfg.IQRMultiplier*iqr
		upper := q3 + d.cfg.IQRMultiplier*iqr
		if current >= lower && current <= upper {
			continue
		}

		var distance, maxDistance float64
		if current > upper {
			distance = current - upper
			maxDistance = upper * 2
		} else {
			distance = lower - current
			maxDistance = math.Abs(lower) * 2
		}
		if maxDistance == 0 {
			maxDistance = 1
		}

		return &Score{
			IsAnomaly:  true,
			Confidence: math.Min(1.0, distance/maxDistance),
			Type:       TypeOutlierIQR,
			Method:     MethodIQR,
			Details:    map[string]any{"feature": name, "value": current},
		}
	}
	return nil
}

func meanStdev(values []float64) (float64, float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	if len(values) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	// Sample standard deviation
	return mean, math.Sqrt(sq / (n - 1))
}
