package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rawblock/keyprint-engine/internal/classifier"
	"github.com/rawblock/keyprint-engine/internal/keystroke"
	"github.com/rawblock/keyprint-engine/pkg/models"
)

// The orchestrator turns persisted labeled sessions into a published model
// artifact. Long-running by design; cancellation is honored at step
// boundaries only.

// ErrInsufficientData means the store does not yet hold enough usable
// labeled sessions to fit a model.
var ErrInsufficientData = errors.New("insufficient training data")

const (
	augmentMinEvents   = 30
	windowFraction     = 0.7
	stepFraction       = 0.3
	minWindowEvents    = 20
	minVectorsPerUser  = 2
	minTotalVectors    = 5
	ensembleMinVectors = 30
	ensembleMinLabels  = 3
	kfoldMinVectors    = 20
	defaultTestFrac    = 0.15
	defaultFolds       = 5
	shuffleSeed        = 42
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	LoadLabeledSessions(ctx context.Context) ([]models.TrainingSession, error)
	SaveTrainingMetrics(ctx context.Context, m models.TrainingMetrics) error
}

// Strategy names, recorded in logs and metrics.
const (
	StrategyEnsembleSelect = "ensemble_select"
	StrategyKFold          = "kfold_cv"
	StrategySingleSplit    = "single_split"
)

// Result is the outcome of one training run.
type Result struct {
	Artifact *classifier.Artifact
	Metrics  models.TrainingMetrics
	Strategy string
}

type Orchestrator struct {
	store    Store
	manager  *classifier.Manager
	testFrac float64
	folds    int
}

func NewOrchestrator(store Store, manager *classifier.Manager) *Orchestrator {
	return &Orchestrator{
		store:    store,
		manager:  manager,
		testFrac: defaultTestFrac,
		folds:    defaultFolds,
	}
}

// Train runs the full pipeline: load, extract with augmentation, select and
// fit a model, evaluate, persist the artifact and its metrics record, and
// publish the new model live.
func (o *Orchestrator) Train(ctx context.Context) (*Result, error) {
	started := time.Now()

	sessions, err := o.store.LoadLabeledSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load training sessions: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples := buildSamples(sessions)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	distinct := countLabels(samples)
	if len(samples) < minTotalVectors || len(distinct) < 2 {
		return nil, fmt.Errorf("%w: %d vectors across %d subjects",
			ErrInsufficientData, len(samples), len(distinct))
	}

	log.Info().Int("sessions", len(sessions)).Int("vectors", len(samples)).
		Int("subjects", len(distinct)).Msg("training data prepared")

	result, err := o.fitBestModel(ctx, samples)
	if err != nil {
		return nil, err
	}

	result.Metrics.TotalSamples = len(samples)
	result.Metrics.UniqueLabels = len(distinct)
	result.Metrics.FeatureCount = keystroke.FeatureCount()
	result.Metrics.Algorithm = string(result.Artifact.Algorithm)
	result.Metrics.TrainedAt = time.Now().UTC()
	result.Metrics.SamplesPerUser = distinct

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.persist(ctx, result); err != nil {
		return nil, err
	}

	log.Info().Str("strategy", result.Strategy).Str("algorithm", result.Metrics.Algorithm).
		Float64("microAcc", result.Metrics.MicroAccuracy).
		Float64("macroAcc", result.Metrics.MacroAccuracy).
		Dur("elapsed", time.Since(started)).
		Msg("model trained and published")
	return result, nil
}

// buildSamples extracts feature vectors from every usable session, adding
// sliding-window variants for long passages, then drops subjects with too
// few accepted vectors.
func buildSamples(sessions []models.TrainingSession) []classifier.Sample {
	var vectors []keystroke.FeatureVector
	for _, s := range sessions {
		if s.Label == "" || s.Label == models.UnknownLabel {
			continue
		}
		events := keystroke.Normalize(s.RawEvents)
		full, err := keystroke.ExtractForTraining(events, s.Label)
		if err != nil {
			continue
		}
		if full.IsTrainable() {
			vectors = append(vectors, full)
		}
		vectors = append(vectors, windowVectors(events, s.Label)...)
	}

	perLabel := map[string]int{}
	for _, v := range vectors {
		perLabel[v.Label]++
	}

	samples := make([]classifier.Sample, 0, len(vectors))
	for _, v := range vectors {
		if perLabel[v.Label] < minVectorsPerUser {
			continue
		}
		samples = append(samples, classifier.Sample{Features: v.Values, Label: v.Label})
	}
	return samples
}

// windowVectors augments a long passage with overlapping sub-windows so a
// single verbose session contributes more than one observation.
func windowVectors(events []models.KeystrokeEvent, label string) []keystroke.FeatureVector {
	n := len(events)
	if n < augmentMinEvents {
		return nil
	}
	window := int(windowFraction * float64(n))
	step := int(stepFraction * float64(n))
	if window < minWindowEvents || step < 1 {
		return nil
	}

	var out []keystroke.FeatureVector
	for start := 0; start+window <= n; start += step {
		v := keystroke.Extract(events[start:start+window], label)
		if v.IsTrainable() {
			out = append(out, v)
		}
	}
	return out
}

func countLabels(samples []classifier.Sample) map[string]int {
	counts := map[string]int{}
	for _, s := range samples {
		counts[s.Label]++
	}
	return counts
}

// fitBestModel picks the selection strategy by data size, evaluates on
// held-out data, and refits the winning config on the full set.
func (o *Orchestrator) fitBestModel(ctx context.Context, samples []classifier.Sample) (*Result, error) {
	distinct := len(countLabels(samples))

	switch {
	case len(samples) >= ensembleMinVectors && distinct >= ensembleMinLabels:
		return o.ensembleSelect(ctx, samples)
	case len(samples) >= kfoldMinVectors && distinct >= ensembleMinLabels:
		return o.kfoldValidate(ctx, samples)
	default:
		return o.singleSplit(ctx, samples)
	}
}

func (o *Orchestrator) ensembleSelect(ctx context.Context, samples []classifier.Sample) (*Result, error) {
	train, test := stratifiedSplit(samples, o.testFrac)

	candidates := []classifier.Config{
		classifier.DeepTreeConfig(),
		classifier.WideTreeConfig(),
		classifier.MaxEntConfig(),
	}

	var bestCfg classifier.Config
	var bestMetrics evalMetrics
	found := false
	for _, cfg := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		artifact, err := classifier.Fit(train, cfg)
		if err != nil {
			log.Warn().Err(err).Str("algorithm", string(cfg.Algorithm)).
				Msg("candidate fit failed, skipping")
			continue
		}
		m := evaluate(artifact, test)
		log.Debug().Str("algorithm", string(cfg.Algorithm)).Int("leaves", cfg.Leaves).
			Float64("score", m.selectionScore()).Msg("candidate evaluated")
		if !found || m.selectionScore() > bestMetrics.selectionScore() {
			bestCfg, bestMetrics, found = cfg, m, true
		}
	}
	if !found {
		return nil, ErrInsufficientData
	}

	final, err := classifier.Fit(samples, bestCfg)
	if err != nil {
		return nil, fmt.Errorf("refit selected model: %w", err)
	}
	return &Result{
		Artifact: final,
		Strategy: StrategyEnsembleSelect,
		Metrics:  toTrainingMetrics(bestMetrics),
	}, nil
}

func (o *Orchestrator) kfoldValidate(ctx context.Context, samples []classifier.Sample) (*Result, error) {
	cfg := classifier.DeepTreeConfig()
	shuffled := shuffledCopy(samples)

	var foldMetrics []evalMetrics
	for fold := 0; fold < o.folds; fold++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		train, test := foldSplit(shuffled, fold, o.folds)
		if len(test) == 0 {
			continue
		}
		artifact, err := classifier.Fit(train, cfg)
		if err != nil {
			continue
		}
		foldMetrics = append(foldMetrics, evaluate(artifact, test))
	}

	final, err := classifier.Fit(samples, cfg)
	if err != nil {
		return nil, fmt.Errorf("refit after cross-validation: %w", err)
	}
	return &Result{
		Artifact: final,
		Strategy: StrategyKFold,
		Metrics:  toTrainingMetrics(meanMetrics(foldMetrics)),
	}, nil
}

func (o *Orchestrator) singleSplit(ctx context.Context, samples []classifier.Sample) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := classifier.DeepTreeConfig()
	train, test := stratifiedSplit(samples, o.testFrac)

	artifact, err := classifier.Fit(train, cfg)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	m := evaluate(artifact, test)

	final, err := classifier.Fit(samples, cfg)
	if err != nil {
		return nil, fmt.Errorf("refit on full data: %w", err)
	}
	return &Result{
		Artifact: final,
		Strategy: StrategySingleSplit,
		Metrics:  toTrainingMetrics(m),
	}, nil
}

// stratifiedSplit holds out ~frac of each subject's vectors, always leaving
// at least one per subject in the training side so every label is fittable.
func stratifiedSplit(samples []classifier.Sample, frac float64) (train, test []classifier.Sample) {
	byLabel := map[string][]int{}
	for i, s := range samples {
		byLabel[s.Label] = append(byLabel[s.Label], i)
	}
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	rng := rand.New(rand.NewSource(shuffleSeed))
	testIdx := map[int]bool{}
	for _, l := range labels {
		indices := byLabel[l]
		rng.Shuffle(len(indices), func(a, b int) {
			indices[a], indices[b] = indices[b], indices[a]
		})
		hold := int(frac * float64(len(indices)))
		if hold >= len(indices) {
			hold = len(indices) - 1
		}
		for _, i := range indices[:hold] {
			testIdx[i] = true
		}
	}

	for i, s := range samples {
		if testIdx[i] {
			test = append(test, s)
		} else {
			train = append(train, s)
		}
	}
	return train, test
}

func shuffledCopy(samples []classifier.Sample) []classifier.Sample {
	out := append([]classifier.Sample(nil), samples...)
	rng := rand.New(rand.NewSource(shuffleSeed))
	rng.Shuffle(len(out), func(a, b int) {
		out[a], out[b] = out[b], out[a]
	})
	return out
}

func foldSplit(samples []classifier.Sample, fold, folds int) (train, test []classifier.Sample) {
	for i, s := range samples {
		if i%folds == fold {
			test = append(test, s)
		} else {
			train = append(train, s)
		}
	}
	return train, test
}

func toTrainingMetrics(m evalMetrics) models.TrainingMetrics {
	return models.TrainingMetrics{
		MicroAccuracy:    m.MicroAccuracy,
		MacroAccuracy:    m.MacroAccuracy,
		LogLoss:          m.LogLoss,
		LogLossReduction: m.LogLossReduction,
	}
}

// persist publishes the artifact (atomic temp+rename, then live swap),
// writes the metrics record next to it, and stores a metrics row.
func (o *Orchestrator) persist(ctx context.Context, r *Result) error {
	if err := o.manager.Publish(r.Artifact); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}

	if data, err := json.MarshalIndent(r.Metrics, "", "  "); err == nil {
		sidecar := filepath.Join(filepath.Dir(o.manager.Path()), "training_metrics.json")
		if err := os.WriteFile(sidecar, data, 0o644); err != nil {
			log.Warn().Err(err).Str("path", sidecar).Msg("could not write metrics sidecar")
		}
	}

	if err := o.store.SaveTrainingMetrics(ctx, r.Metrics); err != nil {
		log.Warn().Err(err).Msg("could not persist training metrics record")
	}
	return nil
}
