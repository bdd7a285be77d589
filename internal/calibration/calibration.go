package calibration

import (
	"math"

	"github.com/rawblock/keyprint-engine/pkg/models"
)

// Calibrator
//
// Converts raw per-class scores into a temperature-scaled probability
// distribution and derives the quality signals (normalized entropy, top-two
// margin) used to shade the final per-sample confidence. Faults here never
// fail a request: a numerically broken softmax degrades to the uniform
// distribution.

// DefaultTemperature leaves the raw score sharpness unchanged.
const DefaultTemperature = 1.0

// Calibrator holds the tunable temperature knob.
type Calibrator struct {
	temperature float64
}

// New creates a calibrator. Non-positive temperatures fall back to the
// default.
func New(temperature float64) *Calibrator {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Calibrator{temperature: temperature}
}

// Softmax computes the temperature-scaled softmax of raw scores. The max
// score is subtracted first for numeric stability. Underflow or any
// non-finite intermediate yields the uniform distribution.
func (c *Calibrator) Softmax(scores []float64) []float64 {
	n := len(scores)
	if n == 0 {
		return nil
	}

	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	probs := make([]float64, n)
	sum := 0.0
	for i, s := range scores {
		e := math.Exp((s - maxScore) / c.temperature)
		probs[i] = e
		sum += e
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return uniform(n)
	}
	for i := range probs {
		probs[i] /= sum
		if math.IsNaN(probs[i]) || math.IsInf(probs[i], 0) {
			return uniform(n)
		}
	}
	return probs
}

// NormalizedEntropy is the Shannon entropy of the distribution divided by
// log(n): 0 means certain, 1 maximally uncertain. One class or fewer is
// always 0.
func NormalizedEntropy(probs []float64) float64 {
	n := len(probs)
	if n <= 1 {
		return 0
	}
	h := 0.0
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	e := h / math.Log(float64(n))
	return clamp(e, 0, 1)
}

// TopTwoMargin is the gap between the largest and second-largest
// probability. Fewer than two classes clamps to 1.
func TopTwoMargin(probs []float64) float64 {
	if len(probs) < 2 {
		return 1
	}
	first, second := math.Inf(-1), math.Inf(-1)
	for _, p := range probs {
		switch {
		case p > first:
			second = first
			first = p
		case p > second:
			second = p
		}
	}
	return clamp(first-second, 0, 1)
}

// AdjustConfidence shades the top probability by the quality signals:
// uncertain distributions (high entropy, thin margin) are discounted, and a
// clearly separated prediction earns a small boost.
func AdjustConfidence(top, entropy, margin float64) float64 {
	conf := top
	switch {
	case entropy > 0.70:
		conf *= 0.85
	case entropy > 0.50:
		conf *= 0.92
	}
	switch {
	case margin < 0.10:
		conf *= 0.80
	case margin < 0.20:
		conf *= 0.90
	}
	if entropy < 0.30 && margin > 0.40 {
		conf *= 1.05
		if conf > 1 {
			conf = 1
		}
	}
	return clamp(conf, 0, 1)
}

// Calibrate runs the full per-sample calibration: softmax, quality signals
// and confidence adjustment. labels and scores must be index-aligned; the
// label order is taken from the artifact and is authoritative.
func (c *Calibrator) Calibrate(labels []string, scores []float64) models.PredictionResult {
	probs := c.Softmax(scores)

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}

	predicted := models.UnknownLabel
	if best < len(labels) {
		predicted = labels[best]
	}

	entropy := NormalizedEntropy(probs)
	margin := TopTwoMargin(probs)
	top := 0.0
	if len(probs) > 0 {
		top = probs[best]
	}

	probs32 := make([]float32, len(probs))
	for i, p := range probs {
		probs32[i] = float32(p)
	}

	return models.PredictionResult{
		PredictedLabel:     predicted,
		Probabilities:      probs32,
		Labels:             labels,
		Entropy:            entropy,
		TopTwoMargin:       margin,
		AdjustedConfidence: AdjustConfidence(top, entropy, margin),
	}
}

func uniform(n int) []float64 {
	probs := make([]float64, n)
	for i := range probs {
		probs[i] = 1.0 / float64(n)
	}
	return probs
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
