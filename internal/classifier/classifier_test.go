package classifier

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// separableSamples builds three well-separated clusters, enough for any of
// the learners to fit perfectly.
func separableSamples() []Sample {
	var samples []Sample
	centers := map[string][]float32{
		"alice": {10, 0, 0},
		"bob":   {0, 10, 0},
		"carol": {0, 0, 10},
	}
	offsets := []float32{-0.5, -0.25, 0, 0.25, 0.5}
	for label, c := range centers {
		for _, o := range offsets {
			samples = append(samples, Sample{
				Features: []float32{c[0] + o, c[1] + o, c[2] + o},
				Label:    label,
			})
		}
	}
	return samples
}

func predictLabel(t *testing.T, a *Artifact, features []float32) string {
	t.Helper()
	labels, scores, err := a.Predict(features)
	require.NoError(t, err)
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return labels[best]
}

func TestFitSeparableData(t *testing.T) {
	for _, cfg := range []Config{DeepTreeConfig(), WideTreeConfig(), MaxEntConfig()} {
		t.Run(string(cfg.Algorithm), func(t *testing.T) {
			artifact, err := Fit(separableSamples(), cfg)
			require.NoError(t, err)

			require.Equal(t, []string{"alice", "bob", "carol"}, artifact.Labels)
			require.Equal(t, "alice", predictLabel(t, artifact, []float32{9.8, 0.1, 0}))
			require.Equal(t, "bob", predictLabel(t, artifact, []float32{0.1, 10.2, 0}))
			require.Equal(t, "carol", predictLabel(t, artifact, []float32{0, 0.2, 9.9}))
		})
	}
}

func TestFitRejectsSingleLabel(t *testing.T) {
	samples := []Sample{
		{Features: []float32{1, 2}, Label: "alice"},
		{Features: []float32{2, 3}, Label: "alice"},
	}
	_, err := Fit(samples, DeepTreeConfig())
	require.Error(t, err)
}

func TestFitRejectsEmptyInput(t *testing.T) {
	_, err := Fit(nil, DeepTreeConfig())
	require.Error(t, err)
}

func TestPredictNilArtifact(t *testing.T) {
	var a *Artifact
	_, _, err := a.Predict([]float32{1})
	require.ErrorIs(t, err, ErrModelNotReady)
}

func TestScalerImputesNonFinite(t *testing.T) {
	samples := []Sample{
		{Features: []float32{1, 10}, Label: "a"},
		{Features: []float32{3, 30}, Label: "b"},
	}
	s := fitScaler(samples, 2)

	out := s.Transform([]float32{float32(math.NaN()), 20})
	// NaN imputed with the mean (2), which scales to the midpoint.
	require.InDelta(t, 0.5, out[0], 1e-9)
	require.InDelta(t, 0.5, out[1], 1e-9)
}

func TestArtifactRoundtrip(t *testing.T) {
	artifact, err := Fit(separableSamples(), DeepTreeConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, SaveArtifact(artifact, path))

	loaded, err := LoadArtifact(path)
	require.NoError(t, err)
	require.Equal(t, artifact.Labels, loaded.Labels)
	require.Equal(t, artifact.Algorithm, loaded.Algorithm)
	require.Equal(t, "alice", predictLabel(t, loaded, []float32{9.9, 0, 0}))
}

func TestLoadArtifactMissingFile(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorIs(t, err, ErrModelNotReady)
}

func TestManagerPublishAndCurrent(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "model.json"))

	require.False(t, m.Ready())
	_, err := m.Current()
	require.ErrorIs(t, err, ErrModelNotReady)

	artifact, err := Fit(separableSamples(), MaxEntConfig())
	require.NoError(t, err)
	require.NoError(t, m.Publish(artifact))

	require.True(t, m.Ready())
	current, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, artifact.Labels, current.Labels)

	// A fresh manager restores the published artifact from disk.
	restored := NewManager(m.Path())
	require.NoError(t, restored.LoadFromDisk())
	require.True(t, restored.Ready())
}
