package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rawblock/keyprint-engine/internal/keystroke"
)

// Multiclass Classifier
//
// Fits a probabilistic multiclass model over feature vectors and predicts
// un-normalized per-class scores. The pipeline is fixed: dense label
// indexing, per-feature min-max scaling, mean imputation of non-finite
// slots, then the configured learner. The artifact's Labels slice is the
// single authority for interpreting score positions.
//
// No third-party ML library ships in this stack, so the learners are
// hand-rolled the same way the inference engines elsewhere in this codebase
// are: a small gradient-boosted tree ensemble and a maximum-entropy
// (softmax regression) linear model.

// ErrModelNotReady is returned when prediction is requested before any
// artifact has been fitted or loaded.
var ErrModelNotReady = errors.New("classifier model not ready")

// Algorithm selects the learner inside the pipeline.
type Algorithm string

const (
	AlgorithmBoostedTrees Algorithm = "boosted_trees"
	AlgorithmMaxEnt       Algorithm = "max_entropy"
)

// Config are the learner hyperparameters.
type Config struct {
	Algorithm    Algorithm `json:"algorithm"`
	Leaves       int       `json:"leaves"`       // boosted trees: max leaves per tree
	Iterations   int       `json:"iterations"`   // boosting rounds / maxent epochs
	LearningRate float64   `json:"learningRate"`
	Seed         int64     `json:"seed"`
}

// DeepTreeConfig is the deep boosted-tree ensemble candidate.
func DeepTreeConfig() Config {
	return Config{Algorithm: AlgorithmBoostedTrees, Leaves: 31, Iterations: 300, LearningRate: 0.05, Seed: 1}
}

// WideTreeConfig is the wider, shallower boosted-tree candidate.
func WideTreeConfig() Config {
	return Config{Algorithm: AlgorithmBoostedTrees, Leaves: 63, Iterations: 200, LearningRate: 0.1, Seed: 1}
}

// MaxEntConfig is the maximum-entropy linear candidate.
func MaxEntConfig() Config {
	return Config{Algorithm: AlgorithmMaxEnt, Iterations: 400, LearningRate: 0.5, Seed: 1}
}

// Sample is one training observation.
type Sample struct {
	Features []float32 `json:"features"`
	Label    string    `json:"label"`
}

// Scaler holds the per-feature min-max normalization fitted on training
// data, plus raw-space feature means used to impute non-finite slots.
type Scaler struct {
	Min  []float64 `json:"min"`
	Max  []float64 `json:"max"`
	Mean []float64 `json:"mean"`
}

func fitScaler(samples []Sample, width int) Scaler {
	s := Scaler{
		Min:  make([]float64, width),
		Max:  make([]float64, width),
		Mean: make([]float64, width),
	}
	counts := make([]int, width)
	for j := 0; j < width; j++ {
		s.Min[j] = math.Inf(1)
		s.Max[j] = math.Inf(-1)
	}
	for _, sample := range samples {
		for j, f := range sample.Features {
			v := float64(f)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if v < s.Min[j] {
				s.Min[j] = v
			}
			if v > s.Max[j] {
				s.Max[j] = v
			}
			s.Mean[j] += v
			counts[j]++
		}
	}
	for j := 0; j < width; j++ {
		if counts[j] > 0 {
			s.Mean[j] /= float64(counts[j])
		}
		if math.IsInf(s.Min[j], 0) {
			s.Min[j], s.Max[j] = 0, 0
		}
	}
	return s
}

// Transform maps a raw feature vector into normalized model space,
// imputing non-finite slots with the training mean.
func (s Scaler) Transform(features []float32) []float64 {
	out := make([]float64, len(s.Min))
	for j := range out {
		v := 0.0
		if j < len(features) {
			v = float64(features[j])
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = s.Mean[j]
		}
		if span := s.Max[j] - s.Min[j]; span > 0 {
			out[j] = (v - s.Min[j]) / span
		}
	}
	return out
}

// Artifact is a fitted model plus the canonical label order and the feature
// schema version it was trained under.
type Artifact struct {
	SchemaVersion int           `json:"featureSchemaVersion"`
	Labels        []string      `json:"labels"`
	Algorithm     Algorithm     `json:"algorithm"`
	Scaler        Scaler        `json:"scaler"`
	Boosted       *boostedModel `json:"boosted,omitempty"`
	Linear        *maxEntModel  `json:"linear,omitempty"`
}

// Fit trains an artifact on labeled samples. Labels are densely indexed in
// sorted order; that order is frozen into the artifact.
func Fit(samples []Sample, cfg Config) (*Artifact, error) {
	if len(samples) == 0 {
		return nil, errors.New("no training samples")
	}

	labelSet := map[string]bool{}
	for _, s := range samples {
		labelSet[s.Label] = true
	}
	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	if len(labels) < 2 {
		return nil, fmt.Errorf("need at least 2 distinct labels, got %d", len(labels))
	}
	labelIndex := map[string]int{}
	for i, l := range labels {
		labelIndex[l] = i
	}

	width := len(samples[0].Features)
	scaler := fitScaler(samples, width)

	x := make([][]float64, len(samples))
	y := make([]int, len(samples))
	for i, s := range samples {
		x[i] = scaler.Transform(s.Features)
		y[i] = labelIndex[s.Label]
	}

	artifact := &Artifact{
		SchemaVersion: keystroke.SchemaVersion,
		Labels:        labels,
		Algorithm:     cfg.Algorithm,
		Scaler:        scaler,
	}

	switch cfg.Algorithm {
	case AlgorithmMaxEnt:
		artifact.Linear = fitMaxEnt(x, y, len(labels), cfg)
	case AlgorithmBoostedTrees, "":
		artifact.Algorithm = AlgorithmBoostedTrees
		artifact.Boosted = fitBoosted(x, y, len(labels), cfg)
	default:
		return nil, fmt.Errorf("unknown algorithm %q", cfg.Algorithm)
	}
	return artifact, nil
}

// Predict returns the artifact's label order and the raw per-class scores
// for one feature vector. Scores are logits; the calibrator turns them into
// probabilities.
func (a *Artifact) Predict(features []float32) ([]string, []float64, error) {
	if a == nil {
		return nil, nil, ErrModelNotReady
	}
	x := a.Scaler.Transform(features)
	var scores []float64
	switch {
	case a.Boosted != nil:
		scores = a.Boosted.score(x)
	case a.Linear != nil:
		scores = a.Linear.score(x)
	default:
		return nil, nil, ErrModelNotReady
	}
	return a.Labels, scores, nil
}
