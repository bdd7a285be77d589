package evidence

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/rawblock/keyprint-engine/pkg/models"
)

// Progressive evidence accumulation across one identification session.
// Each keystroke batch contributes one calibrated probability vector; the
// session state fuses them with a sample-weighted EMA and progressively
// eliminates implausible subjects as evidence mounts.

const (
	// MinUsersToKeep bounds elimination: the leader always survives.
	MinUsersToKeep = 1

	probabilityFloor = 1e-4

	eliminationBase = 0.05
	eliminationStep = 0.05
	eliminationCap  = 0.50
	// Elimination stays off until this many samples have been fused.
	eliminationMinSamples = 3

	confidenceMin = 0.05
	confidenceMax = 0.99

	// scoreHistoryLimit bounds per-session memory: only the most recent
	// sample vectors are retained.
	scoreHistoryLimit = 20
)

// SessionState is the running belief for one identification session.
// Owned by the SessionCache; all mutation happens under the session lock.
type SessionState struct {
	Labels       []string
	Cumulative   []float64
	Eliminated   []bool
	ScoreHistory [][]float64
	SampleCount  int
}

// Verdict is the outcome of fusing one more sample into a session.
type Verdict struct {
	Label       string
	Confidence  float64
	SampleCount int
	Survivors   int
}

// Accumulate fuses one calibrated probability vector into the session state
// and returns the updated verdict. labels and probs are trimmed to their
// common length; if that length differs from the stored state, the state is
// re-initialized (the live model changed between samples).
func Accumulate(state *SessionState, sessionID string, labels []string, probs []float32) Verdict {
	n := len(labels)
	if len(probs) < n {
		n = len(probs)
	}
	if n == 0 {
		return Verdict{Label: models.UnknownLabel, Confidence: confidenceMin}
	}
	if len(state.Cumulative) != n {
		if state.SampleCount > 0 {
			log.Info().Str("sessionId", sessionID).
				Int("previous", len(state.Cumulative)).Int("current", n).
				Msg("label dimension changed, resetting session evidence")
		}
		*state = SessionState{
			Labels:     append([]string(nil), labels[:n]...),
			Cumulative: make([]float64, n),
			Eliminated: make([]bool, n),
		}
	}

	sample := normalize(probs[:n])
	if len(state.ScoreHistory) == scoreHistoryLimit {
		copy(state.ScoreHistory, state.ScoreHistory[1:])
		state.ScoreHistory[scoreHistoryLimit-1] = sample
	} else {
		state.ScoreHistory = append(state.ScoreHistory, sample)
	}
	state.SampleCount++

	// EMA weight grows with evidence: 0.3 on the first samples up to 0.7.
	alpha := 0.3 + 0.4*float64(min(state.SampleCount, 5))/5.0
	if state.SampleCount == 1 {
		copy(state.Cumulative, sample)
	} else {
		// Eliminated subjects stay at zero mass; new evidence for them is
		// discarded rather than resurrecting them.
		for i := range state.Cumulative {
			if state.Eliminated[i] {
				continue
			}
			state.Cumulative[i] = (1-alpha)*state.Cumulative[i] + alpha*sample[i]
		}
	}
	renormalizeSurvivors(state)

	eliminate(state, sessionID)

	return verdict(state)
}

// normalize floors non-positive entries and scales to sum 1, falling back
// to uniform when the vector carries no mass.
func normalize(probs []float32) []float64 {
	out := make([]float64, len(probs))
	sum := 0.0
	for i, p := range probs {
		v := float64(p)
		if v <= 0 {
			v = probabilityFloor
		}
		out[i] = v
		sum += v
	}
	if sum <= 0 {
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

// eliminationThreshold ramps from 0.05 toward 0.50 as samples accumulate.
func eliminationThreshold(sampleCount int) float64 {
	if sampleCount < 10 {
		return eliminationBase
	}
	theta := eliminationBase + eliminationStep*float64((sampleCount-10)/5+1)
	if theta > eliminationCap {
		theta = eliminationCap
	}
	return theta
}

func eliminate(state *SessionState, sessionID string) {
	if state.SampleCount < eliminationMinSamples {
		return
	}
	survivors := survivorIndices(state)
	if len(survivors) <= MinUsersToKeep {
		return
	}
	theta := eliminationThreshold(state.SampleCount)

	// Weakest first, so the floor keeps the strongest candidates.
	sort.Slice(survivors, func(a, b int) bool {
		return state.Cumulative[survivors[a]] < state.Cumulative[survivors[b]]
	})

	removed := false
	remaining := len(survivors)
	for _, i := range survivors {
		if remaining <= MinUsersToKeep {
			break
		}
		if state.Cumulative[i] >= theta {
			break
		}
		state.Eliminated[i] = true
		state.Cumulative[i] = 0
		remaining--
		removed = true
		log.Debug().Str("sessionId", sessionID).Str("label", state.Labels[i]).
			Float64("threshold", theta).Int("samples", state.SampleCount).
			Msg("eliminated candidate from session")
	}
	if removed {
		renormalizeSurvivors(state)
	}
}

func survivorIndices(state *SessionState) []int {
	indices := make([]int, 0, len(state.Labels))
	for i := range state.Labels {
		if !state.Eliminated[i] {
			indices = append(indices, i)
		}
	}
	return indices
}

func renormalizeSurvivors(state *SessionState) {
	sum := 0.0
	for i, v := range state.Cumulative {
		if !state.Eliminated[i] {
			sum += v
		}
	}
	if sum <= 0 {
		return
	}
	for i := range state.Cumulative {
		if !state.Eliminated[i] {
			state.Cumulative[i] /= sum
		}
	}
}

func verdict(state *SessionState) Verdict {
	bestIdx, secondBest := -1, 0.0
	best := 0.0
	survivors := 0
	for i, v := range state.Cumulative {
		if state.Eliminated[i] {
			continue
		}
		survivors++
		if bestIdx == -1 || v > best {
			if bestIdx != -1 && best > secondBest {
				secondBest = best
			}
			best = v
			bestIdx = i
		} else if v > secondBest {
			secondBest = v
		}
	}
	if bestIdx == -1 {
		return Verdict{Label: models.UnknownLabel, Confidence: confidenceMin, SampleCount: state.SampleCount}
	}

	margin := 0.0
	if survivors > 1 {
		margin = best - secondBest
	}
	conf := best + 0.3*margin + min(0.15, 0.03*float64(state.SampleCount))
	if survivors <= 3 {
		conf *= 1.10
	}
	if survivors == 2 {
		conf *= 1.15
	}
	if conf < confidenceMin {
		conf = confidenceMin
	}
	if conf > confidenceMax {
		conf = confidenceMax
	}
	return Verdict{
		Label:       state.Labels[bestIdx],
		Confidence:  conf,
		SampleCount: state.SampleCount,
		Survivors:   survivors,
	}
}
