package evidence

import (
	"math"
	"testing"
)

func step(state *SessionState, labels []string, probs []float32) Verdict {
	return Accumulate(state, "sess-1", labels, probs)
}

func TestFirstSampleSetsCumulative(t *testing.T) {
	state := &SessionState{}
	v := step(state, []string{"alice", "bob"}, []float32{0.8, 0.2})

	if v.Label != "alice" {
		t.Errorf("Expected alice, got %q", v.Label)
	}
	if v.SampleCount != 1 {
		t.Errorf("SampleCount = %d, want 1", v.SampleCount)
	}
	if math.Abs(state.Cumulative[0]-0.8) > 1e-6 {
		t.Errorf("Cumulative[0] = %v, want 0.8", state.Cumulative[0])
	}
}

func TestConfidenceStaysInBounds(t *testing.T) {
	state := &SessionState{}
	labels := []string{"alice", "bob", "carol"}
	for i := 0; i < 30; i++ {
		v := step(state, labels, []float32{0.97, 0.02, 0.01})
		if v.Confidence < 0.05 || v.Confidence > 0.99 {
			t.Fatalf("Confidence %v out of [0.05, 0.99] at sample %d", v.Confidence, i+1)
		}
	}
	// Overwhelming one-sided evidence should saturate at the cap.
	if v := step(state, labels, []float32{0.97, 0.02, 0.01}); v.Confidence != 0.99 {
		t.Errorf("Expected saturated confidence 0.99, got %v", v.Confidence)
	}
}

func TestNoEliminationBeforeThreeSamples(t *testing.T) {
	state := &SessionState{}
	labels := []string{"alice", "bob", "carol"}
	weak := []float32{0.98, 0.019, 0.001}

	step(state, labels, weak)
	v := step(state, labels, weak)
	if v.Survivors != 3 {
		t.Errorf("Survivors = %d after 2 samples, want 3", v.Survivors)
	}

	v = step(state, labels, weak)
	if v.Survivors >= 3 {
		t.Errorf("Expected elimination at sample 3, survivors = %d", v.Survivors)
	}
	if v.Label != "alice" {
		t.Errorf("Leader must survive elimination, got %q", v.Label)
	}
}

func TestLeaderAlwaysSurvives(t *testing.T) {
	state := &SessionState{}
	labels := []string{"alice", "bob"}
	for i := 0; i < 50; i++ {
		v := step(state, labels, []float32{0.999, 0.001})
		if v.Survivors < MinUsersToKeep {
			t.Fatalf("Survivors dropped below %d", MinUsersToKeep)
		}
		if v.Label != "alice" {
			t.Fatalf("Leader changed to %q", v.Label)
		}
	}
}

func TestEliminatedStayAtZeroMass(t *testing.T) {
	state := &SessionState{}
	labels := []string{"alice", "bob", "carol"}
	lopsided := []float32{0.90, 0.09, 0.01}

	for i := 0; i < 3; i++ {
		step(state, labels, lopsided)
	}
	if !state.Eliminated[2] {
		t.Fatal("Expected carol eliminated after 3 lopsided samples")
	}

	// Further evidence, even favoring carol, must not restore her mass.
	v := step(state, labels, []float32{0.30, 0.30, 0.40})
	if state.Cumulative[2] != 0 {
		t.Errorf("Eliminated index regained mass %v", state.Cumulative[2])
	}
	if v.Survivors != 2 {
		t.Errorf("Survivors = %d, want 2", v.Survivors)
	}
	sum := 0.0
	for i, c := range state.Cumulative {
		if state.Eliminated[i] && c != 0 {
			t.Errorf("Cumulative[%d] = %v for eliminated subject, want 0", i, c)
		}
		sum += c
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("Survivor mass = %v, want 1", sum)
	}
}

func TestScoreHistoryStaysBounded(t *testing.T) {
	state := &SessionState{}
	labels := []string{"alice", "bob"}
	for i := 0; i < 3*scoreHistoryLimit; i++ {
		step(state, labels, []float32{0.6, 0.4})
	}
	if len(state.ScoreHistory) != scoreHistoryLimit {
		t.Errorf("ScoreHistory length = %d, want %d", len(state.ScoreHistory), scoreHistoryLimit)
	}
	if state.SampleCount != 3*scoreHistoryLimit {
		t.Errorf("SampleCount = %d, want %d", state.SampleCount, 3*scoreHistoryLimit)
	}
}

func TestEliminationThresholdSchedule(t *testing.T) {
	tests := []struct {
		samples  int
		expected float64
	}{
		{3, 0.05},
		{9, 0.05},
		{10, 0.10},
		{14, 0.10},
		{15, 0.15},
		{20, 0.20},
		{100, 0.50},
	}
	for _, tt := range tests {
		if got := eliminationThreshold(tt.samples); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("eliminationThreshold(%d) = %v, want %v", tt.samples, got, tt.expected)
		}
	}
}

func TestDimensionChangeResetsState(t *testing.T) {
	state := &SessionState{}
	step(state, []string{"alice", "bob"}, []float32{0.6, 0.4})
	step(state, []string{"alice", "bob"}, []float32{0.6, 0.4})

	// A retrained model added a subject: the session must restart.
	v := step(state, []string{"alice", "bob", "carol"}, []float32{0.5, 0.3, 0.2})
	if v.SampleCount != 1 {
		t.Errorf("SampleCount after reset = %d, want 1", v.SampleCount)
	}
	if len(state.Cumulative) != 3 {
		t.Errorf("Cumulative length = %d, want 3", len(state.Cumulative))
	}
}

func TestNormalizeFloorsZeros(t *testing.T) {
	out := normalize([]float32{0, 0.5, -0.1})
	sum := 0.0
	for _, p := range out {
		if p <= 0 {
			t.Errorf("Normalized probability must be positive, got %v", p)
		}
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("Normalized sum = %v, want 1", sum)
	}
}

func TestTwoSurvivorBoostApplies(t *testing.T) {
	state := &SessionState{
		Labels:      []string{"alice", "bob"},
		Cumulative:  []float64{0.6, 0.4},
		Eliminated:  []bool{false, false},
		SampleCount: 1,
	}
	v := step(state, []string{"alice", "bob"}, []float32{0.6, 0.4})

	// m=0.6, margin=0.2, N=2 bonus=0.06; both k<=3 and k==2 boosts apply.
	want := (0.6 + 0.3*0.2 + 0.06) * 1.10 * 1.15
	if want > 0.99 {
		want = 0.99
	}
	if math.Abs(v.Confidence-want) > 1e-6 {
		t.Errorf("Confidence = %v, want %v", v.Confidence, want)
	}
}
