package keystroke

import (
	"math"
	"testing"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"Empty", nil, 0},
		{"Single", []float64{5}, 5},
		{"Several", []float64{1, 2, 3, 4}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mean(tt.values); got != tt.expected {
				t.Errorf("Mean() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSampleVariance(t *testing.T) {
	if got := SampleVariance([]float64{7}); got != 0 {
		t.Errorf("Variance of single value = %v, want 0", got)
	}
	// Values 2,4,4,4,5,5,7,9: sample variance = 32/7.
	got := SampleVariance([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	want := 32.0 / 7.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("SampleVariance() = %v, want %v", got, want)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{15, 20, 35, 40, 50}
	tests := []struct {
		name     string
		p        float64
		expected float64
	}{
		{"Min", 0, 15},
		{"P25", 25, 20},
		{"Median", 50, 35},
		{"P75", 75, 40},
		{"Max", 100, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percentile(values, tt.p); got != tt.expected {
				t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.expected)
			}
		})
	}

	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("Percentile of empty input = %v, want 0", got)
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	_ = Percentile(values, 50)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Error("Percentile mutated its input slice")
	}
}
