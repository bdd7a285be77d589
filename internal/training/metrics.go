package training

import (
	"math"

	"github.com/rawblock/keyprint-engine/internal/classifier"
)

// Held-out evaluation of a fitted artifact. Accuracy comes in two flavors:
// micro (per-sample) and macro (mean per-class recall, which keeps a
// dominant subject from hiding weak minority classes). Log loss is reported
// against the prior-based baseline so logLossReduction reads as "fraction
// of the naive model's uncertainty removed".

const logLossFloor = 1e-15

type evalMetrics struct {
	MicroAccuracy    float64
	MacroAccuracy    float64
	LogLoss          float64
	LogLossReduction float64
}

func (m evalMetrics) selectionScore() float64 {
	return 0.6*m.MacroAccuracy + 0.4*m.MicroAccuracy
}

func evaluate(artifact *classifier.Artifact, samples []classifier.Sample) evalMetrics {
	if len(samples) == 0 {
		return evalMetrics{}
	}

	labelIndex := make(map[string]int, len(artifact.Labels))
	for i, l := range artifact.Labels {
		labelIndex[l] = i
	}

	correct := 0
	classTotal := make([]int, len(artifact.Labels))
	classCorrect := make([]int, len(artifact.Labels))
	logLossSum := 0.0
	scored := 0

	for _, sample := range samples {
		trueIdx, known := labelIndex[sample.Label]
		if !known {
			continue
		}
		_, scores, err := artifact.Predict(sample.Features)
		if err != nil {
			continue
		}
		probs := softmaxScores(scores)

		predIdx := 0
		for i, p := range probs {
			if p > probs[predIdx] {
				predIdx = i
			}
		}

		scored++
		classTotal[trueIdx]++
		if predIdx == trueIdx {
			correct++
			classCorrect[trueIdx]++
		}
		logLossSum += -math.Log(math.Max(probs[trueIdx], logLossFloor))
	}
	if scored == 0 {
		return evalMetrics{}
	}

	m := evalMetrics{
		MicroAccuracy: float64(correct) / float64(scored),
		LogLoss:       logLossSum / float64(scored),
	}

	classes := 0
	recallSum := 0.0
	for i := range classTotal {
		if classTotal[i] == 0 {
			continue
		}
		classes++
		recallSum += float64(classCorrect[i]) / float64(classTotal[i])
	}
	if classes > 0 {
		m.MacroAccuracy = recallSum / float64(classes)
	}

	if baseline := priorLogLoss(classTotal, scored); baseline > 0 {
		m.LogLossReduction = 1 - m.LogLoss/baseline
	}
	return m
}

// priorLogLoss is the log loss of always predicting the class priors of the
// evaluation set.
func priorLogLoss(classTotal []int, total int) float64 {
	sum := 0.0
	for _, c := range classTotal {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		sum += -float64(c) * math.Log(p)
	}
	return sum / float64(total)
}

func softmaxScores(scores []float64) []float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		uniform := 1.0 / float64(len(out))
		for i := range out {
			out[i] = uniform
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func meanMetrics(folds []evalMetrics) evalMetrics {
	if len(folds) == 0 {
		return evalMetrics{}
	}
	var m evalMetrics
	for _, f := range folds {
		m.MicroAccuracy += f.MicroAccuracy
		m.MacroAccuracy += f.MacroAccuracy
		m.LogLoss += f.LogLoss
		m.LogLossReduction += f.LogLossReduction
	}
	n := float64(len(folds))
	m.MicroAccuracy /= n
	m.MacroAccuracy /= n
	m.LogLoss /= n
	m.LogLossReduction /= n
	return m
}
