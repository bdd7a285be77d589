package keystroke

import (
	"errors"
	"math"

	"github.com/rawblock/keyprint-engine/pkg/models"
)

// Feature Extractor
//
// Turns a normalized event stream into the fixed-schema typing fingerprint.
// All interval aggregations (dwell, flight, n-graph, overlap, correction)
// use only values inside the (0, 2000 ms] validity window; anything outside
// is dropped, not clipped. Every emitted slot is finite.

// ErrInsufficientInput is returned when a caller requires training-grade
// features from fewer than MinTrainingEvents events.
var ErrInsufficientInput = errors.New("insufficient keystroke input")

const (
	// MinTrainingEvents is the floor for training-grade extraction.
	MinTrainingEvents = 10

	validityWindowMs = 2000.0
	overlapWindowMs  = 100.0
	pauseShortMs     = 200.0
	pauseLongMs      = 500.0
)

// FeatureVector is the fixed-width profiling model input. Values follows
// the schema order of FeatureNames; Label is the subject id, or "Unknown"
// for identification samples.
type FeatureVector struct {
	Values []float32 `json:"values"`
	Label  string    `json:"label"`
}

// IsTrainable reports whether the vector passes the training validity gate:
// positive mean dwell, mean flight and typing speed, and every slot finite.
func (v FeatureVector) IsTrainable() bool {
	if len(v.Values) != featureCount {
		return false
	}
	for _, f := range v.Values {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return v.Values[idxMeanDwell] > 0 &&
		v.Values[idxMeanFlight] > 0 &&
		v.Values[idxTypingSpeed] > 0
}

// ExtractForTraining extracts a labeled feature vector, failing when the
// passage is too short to carry a usable fingerprint.
func ExtractForTraining(events []models.KeystrokeEvent, label string) (FeatureVector, error) {
	if len(events) < MinTrainingEvents {
		return FeatureVector{}, ErrInsufficientInput
	}
	return Extract(events, label), nil
}

type keydown struct {
	key string
	t   int64
}

// Extract derives the feature vector from a normalized event list. Fewer
// than 2 events yields an all-zero vector labeled "Unknown". Extraction is
// deterministic: the same events always produce the same vector.
func Extract(events []models.KeystrokeEvent, label string) FeatureVector {
	values := make([]float32, featureCount)
	if len(events) < 2 {
		return FeatureVector{Values: values, Label: models.UnknownLabel}
	}
	if label == "" {
		label = models.UnknownLabel
	}

	var (
		keydowns []keydown

		dwells       []float64
		perKeyDwell  = map[string][]float64{}
		fingerDwells [fingerCount][]float64

		overlapGaps  []float64
		overlapCount int

		pendingDown = map[string]int64{}
	)

	// First pass: dwell matching and key-overlap detection in event order.
	for _, ev := range events {
		switch ev.Type {
		case models.EventKeyDown:
			for key, downT := range pendingDown {
				if key == ev.Key {
					continue
				}
				gap := float64(ev.Timestamp - downT)
				if gap > 0 && gap <= overlapWindowMs {
					overlapGaps = append(overlapGaps, gap)
					overlapCount++
				}
			}
			pendingDown[ev.Key] = ev.Timestamp
			keydowns = append(keydowns, keydown{key: ev.Key, t: ev.Timestamp})
		case models.EventKeyUp:
			downT, ok := pendingDown[ev.Key]
			if !ok {
				continue
			}
			delete(pendingDown, ev.Key)
			dwell := float64(ev.Timestamp - downT)
			if dwell <= 0 || dwell > validityWindowMs {
				continue
			}
			dwells = append(dwells, dwell)
			perKeyDwell[ev.Key] = append(perKeyDwell[ev.Key], dwell)
			if finger, ok := FingerOf(ev.Key); ok {
				fingerDwells[finger] = append(fingerDwells[finger], dwell)
			}
		}
	}

	// Second pass: flight times and everything derived from the keydown
	// sequence.
	var (
		flights []float64

		digraphSet  = indexSet(DigraphFeatures)
		trigraphSet = indexSet(TrigraphFeatures)
		digraphs    = map[string][]float64{}
		trigraphs   = map[string][]float64{}

		handTransitions  int
		handAlternations int
		sameHandFlights  []float64
		crossHandFlights []float64

		rowClassified  int
		homeCount      int
		topCount       int
		bottomCount    int
		rowTransitions int
		rowChanges     int
	)
	for i := range keydowns {
		key := keydowns[i].key
		switch RowOf(key) {
		case RowHome:
			rowClassified++
			homeCount++
		case RowTop:
			rowClassified++
			topCount++
		case RowBottom:
			rowClassified++
			bottomCount++
		}
		if i == 0 {
			continue
		}
		prev := keydowns[i-1]
		flight := float64(keydowns[i].t - prev.t)
		validFlight := flight > 0 && flight <= validityWindowMs
		if validFlight {
			flights = append(flights, flight)
			di := prev.key + "-" + key
			if _, ok := digraphSet[di]; ok {
				digraphs[di] = append(digraphs[di], flight)
			}
		}

		h1, h2 := HandOf(prev.key), HandOf(key)
		if h1 != HandNone && h2 != HandNone {
			handTransitions++
			if h1 != h2 {
				handAlternations++
				if validFlight {
					crossHandFlights = append(crossHandFlights, flight)
				}
			} else if validFlight {
				sameHandFlights = append(sameHandFlights, flight)
			}
		}

		r1, r2 := RowOf(prev.key), RowOf(key)
		if r1 != RowNone && r2 != RowNone {
			rowTransitions++
			if r1 != r2 {
				rowChanges++
			}
		}

		if i >= 2 {
			g1 := float64(prev.t - keydowns[i-2].t)
			if g1 > 0 && g1 <= validityWindowMs && validFlight {
				tri := keydowns[i-2].key + "-" + prev.key + "-" + key
				if _, ok := trigraphSet[tri]; ok {
					trigraphs[tri] = append(trigraphs[tri], (g1+flight)/2)
				}
			}
		}
	}

	meanDwell := Mean(dwells)
	meanFlight := Mean(flights)
	flightStd := StdDev(flights)
	dwellStd := StdDev(dwells)

	values[idxMeanDwell] = float32(meanDwell)
	values[idxMeanFlight] = float32(meanFlight)
	duration := float64(events[len(events)-1].Timestamp-events[0].Timestamp) / 1000.0
	if duration > 0 {
		values[idxTypingSpeed] = float32(float64(len(keydowns)) / duration)
	}

	values[idxDwellVariance] = float32(SampleVariance(dwells))
	values[idxDwellStdDev] = float32(dwellStd)
	values[idxFlightVariance] = float32(SampleVariance(flights))
	values[idxFlightStdDev] = float32(flightStd)

	values[idxDwellP25] = float32(Percentile(dwells, 25))
	values[idxDwellP50] = float32(Percentile(dwells, 50))
	values[idxDwellP75] = float32(Percentile(dwells, 75))
	values[idxFlightP25] = float32(Percentile(flights, 25))
	values[idxFlightP50] = float32(Percentile(flights, 50))
	values[idxFlightP75] = float32(Percentile(flights, 75))

	values[idxRhythmConsistency] = float32(safeRatio(flightStd, meanFlight))
	values[idxDwellFlightRatio] = float32(safeRatio(meanDwell, meanFlight))
	values[idxDwellVariability] = float32(safeRatio(dwellStd, meanDwell))

	fillPauseFeatures(values, flights)
	fillErrorFeatures(values, events, keydowns)
	fillWordFeatures(values, keydowns)

	// Hand transitions.
	totalDowns := len(keydowns)
	leftCount, rightCount := 0, 0
	for _, kd := range keydowns {
		switch HandOf(kd.key) {
		case HandLeft:
			leftCount++
		case HandRight:
			rightCount++
		}
	}
	values[idxLeftHandRatio] = float32(safeRatio(float64(leftCount), float64(totalDowns)))
	values[idxRightHandRatio] = float32(safeRatio(float64(rightCount), float64(totalDowns)))
	if handTransitions > 0 {
		values[idxHandTransitionRatio] = float32(float64(handAlternations) / float64(handTransitions))
	} else {
		values[idxHandTransitionRatio] = 0.5
	}
	values[idxSameHandMeanFlight] = float32(Mean(sameHandFlights))
	values[idxCrossHandMeanFlight] = float32(Mean(crossHandFlights))

	// Row position.
	values[idxHomeRowRatio] = float32(safeRatio(float64(homeCount), float64(rowClassified)))
	values[idxTopRowRatio] = float32(safeRatio(float64(topCount), float64(rowClassified)))
	values[idxBottomRowRatio] = float32(safeRatio(float64(bottomCount), float64(rowClassified)))
	values[idxRowTransitionRatio] = float32(safeRatio(float64(rowChanges), float64(rowTransitions)))

	// Per-finger dwell.
	for f := 0; f < int(fingerCount); f++ {
		values[idxFingerDwellBase+f] = float32(Mean(fingerDwells[f]))
	}

	// N-graph timings: untyped n-grams default to the global mean flight so
	// they do not pull the vector toward zero; per-key dwell defaults to the
	// global mean dwell for the same reason.
	for i, tri := range TrigraphFeatures {
		if samples := trigraphs[tri]; len(samples) > 0 {
			values[idxTrigraphBase+i] = float32(Mean(samples))
		} else {
			values[idxTrigraphBase+i] = float32(meanFlight)
		}
	}
	for i, key := range KeyDwellFeatures {
		if samples := perKeyDwell[key]; len(samples) > 0 {
			values[idxKeyDwellBase+i] = float32(Mean(samples))
		} else {
			values[idxKeyDwellBase+i] = float32(meanDwell)
		}
	}
	for i, di := range DigraphFeatures {
		if samples := digraphs[di]; len(samples) > 0 {
			values[idxDigraphBase+i] = float32(Mean(samples))
		} else {
			values[idxDigraphBase+i] = float32(meanFlight)
		}
	}
	for i, di := range DigraphVarianceFeatures {
		// Needs at least two occurrences, otherwise 0.
		values[idxDigraphVarBase+i] = float32(SampleVariance(digraphs[di]))
	}

	// Overlap.
	values[idxKeyOverlapFrequency] = float32(safeRatio(float64(overlapCount), float64(totalDowns)))
	values[idxMeanKeyOverlap] = float32(Mean(overlapGaps))

	// Fatigue: first vs second half of the flight sequence.
	if half := len(flights) / 2; half > 0 && len(flights)-half > 0 {
		firstMean := Mean(flights[:half])
		secondMean := Mean(flights[half:])
		values[idxTypingSpeedDecay] = float32(safeRatio(secondMean-firstMean, firstMean))
	}

	sanitize(values)
	return FeatureVector{Values: values, Label: label}
}

func fillPauseFeatures(values []float32, flights []float64) {
	if len(flights) == 0 {
		return
	}
	var fluent, short, long int
	var pauses []float64
	for _, f := range flights {
		switch {
		case f < pauseShortMs:
			fluent++
		case f < pauseLongMs:
			short++
		default:
			long++
		}
		if f >= pauseShortMs {
			pauses = append(pauses, f)
		}
	}
	n := float64(len(flights))
	values[idxFluentFlightRatio] = float32(float64(fluent) / n)
	values[idxShortPauseRatio] = float32(float64(short) / n)
	values[idxLongPauseRatio] = float32(float64(long) / n)
	values[idxMeanPauseDuration] = float32(Mean(pauses))
}

func fillErrorFeatures(values []float32, events []models.KeystrokeEvent, keydowns []keydown) {
	if len(keydowns) == 0 {
		return
	}

	backspaces := 0
	var runLengths []float64
	run := 0
	var corrections []float64
	for i, kd := range keydowns {
		if kd.key != backspaceKey {
			if run > 0 {
				runLengths = append(runLengths, float64(run))
				run = 0
			}
			continue
		}
		backspaces++
		run++
		for j := i + 1; j < len(keydowns); j++ {
			if keydowns[j].key == backspaceKey {
				continue
			}
			gap := float64(keydowns[j].t - kd.t)
			if gap > 0 && gap <= validityWindowMs {
				corrections = append(corrections, gap)
			}
			break
		}
	}
	if run > 0 {
		runLengths = append(runLengths, float64(run))
	}

	values[idxBackspaceRate] = float32(float64(backspaces) / float64(len(keydowns)))
	values[idxConsecutiveBackspaces] = float32(Mean(runLengths))
	values[idxErrorCorrectionSpeed] = float32(Mean(corrections))

	// Error-rate trend: backspace count in the second half of the session
	// timeline vs the first.
	mid := (events[0].Timestamp + events[len(events)-1].Timestamp) / 2
	firstHalf, secondHalf := 0, 0
	for _, kd := range keydowns {
		if kd.key != backspaceKey {
			continue
		}
		if kd.t <= mid {
			firstHalf++
		} else {
			secondHalf++
		}
	}
	denom := firstHalf
	if denom < 1 {
		denom = 1
	}
	values[idxErrorRateIncrease] = float32(float64(secondHalf-firstHalf) / float64(denom))
}

func fillWordFeatures(values []float32, keydowns []keydown) {
	var (
		wordLengths    []float64
		boundaryPauses []float64
		startFlights   []float64
		wordLen        int
	)
	for i, kd := range keydowns {
		if kd.key != spaceSentinel {
			wordLen++
			if i > 0 && keydowns[i-1].key == spaceSentinel {
				flight := float64(kd.t - keydowns[i-1].t)
				if flight > 0 && flight <= validityWindowMs {
					startFlights = append(startFlights, flight)
				}
			}
			continue
		}
		if wordLen > 0 {
			wordLengths = append(wordLengths, float64(wordLen))
			wordLen = 0
		}
		if i > 0 && keydowns[i-1].key != spaceSentinel {
			flight := float64(kd.t - keydowns[i-1].t)
			if flight > 0 && flight <= validityWindowMs {
				boundaryPauses = append(boundaryPauses, flight)
			}
		}
	}
	if wordLen > 0 {
		wordLengths = append(wordLengths, float64(wordLen))
	}
	values[idxMeanWordLength] = float32(Mean(wordLengths))
	values[idxWordBoundaryPause] = float32(Mean(boundaryPauses))
	values[idxWordStartFlight] = float32(Mean(startFlights))
}

func safeRatio(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom
}

func sanitize(values []float32) {
	for i, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			values[i] = 0
		}
	}
}

func indexSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
