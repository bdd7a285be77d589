package calibration

import (
	"math"
	"testing"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	c := New(DefaultTemperature)
	probs := c.Softmax([]float64{2.0, 1.0, 0.1})

	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("Softmax sum = %v, want 1", sum)
	}
	if !(probs[0] > probs[1] && probs[1] > probs[2]) {
		t.Errorf("Softmax did not preserve score order: %v", probs)
	}
}

func TestSoftmaxUniformFallbackOnBadInput(t *testing.T) {
	c := New(DefaultTemperature)
	probs := c.Softmax([]float64{math.NaN(), 1.0, 2.0})
	for i, p := range probs {
		if math.Abs(p-1.0/3.0) > 1e-9 {
			t.Fatalf("Expected uniform fallback, slot %d = %v", i, p)
		}
	}
}

func TestSoftmaxTemperatureFlattens(t *testing.T) {
	sharp := New(0.5).Softmax([]float64{2, 0})
	flat := New(4.0).Softmax([]float64{2, 0})
	if sharp[0] <= flat[0] {
		t.Errorf("Lower temperature should sharpen: sharp=%v flat=%v", sharp[0], flat[0])
	}
}

func TestNormalizedEntropy(t *testing.T) {
	tests := []struct {
		name     string
		probs    []float64
		expected float64
	}{
		{"Certain", []float64{1, 0, 0}, 0},
		{"Uniform", []float64{0.25, 0.25, 0.25, 0.25}, 1},
		{"Single Class", []float64{1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizedEntropy(tt.probs); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("NormalizedEntropy() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTopTwoMargin(t *testing.T) {
	if got := TopTwoMargin([]float64{0.7, 0.2, 0.1}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("TopTwoMargin = %v, want 0.5", got)
	}
	if got := TopTwoMargin([]float64{1.0}); got != 1 {
		t.Errorf("TopTwoMargin single class = %v, want 1", got)
	}
}

func TestAdjustConfidence(t *testing.T) {
	tests := []struct {
		name                 string
		top, entropy, margin float64
		expected             float64
	}{
		{"High Entropy Discount", 0.8, 0.75, 0.30, 0.8 * 0.85},
		{"Moderate Entropy Discount", 0.8, 0.60, 0.30, 0.8 * 0.92},
		{"Thin Margin Discount", 0.8, 0.40, 0.05, 0.8 * 0.80},
		{"Narrow Margin Discount", 0.8, 0.40, 0.15, 0.8 * 0.90},
		{"Clear Winner Boost", 0.8, 0.20, 0.50, 0.8 * 1.05},
		{"Boost Capped At One", 0.99, 0.10, 0.90, 1.0},
		{"Stacked Discounts", 0.8, 0.75, 0.05, 0.8 * 0.85 * 0.80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AdjustConfidence(tt.top, tt.entropy, tt.margin)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("AdjustConfidence() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCalibratePicksArgmaxLabel(t *testing.T) {
	c := New(DefaultTemperature)
	result := c.Calibrate([]string{"alice", "bob", "carol"}, []float64{0.2, 3.1, -1.0})

	if result.PredictedLabel != "bob" {
		t.Errorf("Predicted %q, want bob", result.PredictedLabel)
	}
	if len(result.Probabilities) != 3 {
		t.Fatalf("Expected 3 probabilities, got %d", len(result.Probabilities))
	}
	sum := float32(0)
	for _, p := range result.Probabilities {
		sum += p
	}
	if math.Abs(float64(sum)-1.0) > 1e-5 {
		t.Errorf("Probabilities sum = %v, want 1", sum)
	}
	if result.AdjustedConfidence <= 0 || result.AdjustedConfidence > 1 {
		t.Errorf("AdjustedConfidence out of range: %v", result.AdjustedConfidence)
	}
}
