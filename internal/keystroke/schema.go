package keystroke

import "fmt"

// SchemaVersion identifies the feature vector layout. Any slot addition,
// removal or reordering must bump it; artifacts trained under a different
// version are rejected at load time instead of being misinterpreted.
const SchemaVersion = 3

// Enumerated n-gram features. Frozen at schema-version time: trainer and
// predictor must agree on these lists exactly.
var (
	// TrigraphFeatures are the ten most frequent English trigraphs.
	TrigraphFeatures = []string{
		"t-h-e", "a-n-d", "i-n-g", "i-o-n", "t-i-o",
		"e-n-t", "f-o-r", "h-e-r", "h-a-t", "h-i-s",
	}

	// KeyDwellFeatures are the fifteen keys tracked with individual dwell
	// slots: the fourteen most frequent English letters plus Space.
	KeyDwellFeatures = []string{
		"e", "t", "a", "o", "i", "n", "s", "h", "r", "d", "l", "u", "c", "m",
		spaceSentinel,
	}

	// DigraphFeatures are the fifty digraphs tracked with flight slots.
	DigraphFeatures = []string{
		"t-h", "h-e", "i-n", "e-r", "a-n", "r-e", "n-d", "a-t", "o-n", "n-t",
		"h-a", "e-s", "s-t", "e-n", "e-d", "t-o", "i-t", "o-u", "e-a", "h-i",
		"i-s", "o-r", "t-i", "a-s", "t-e", "e-t", "n-g", "o-f", "a-l", "d-e",
		"s-e", "l-e", "s-a", "s-i", "a-r", "v-e", "r-a", "l-d", "u-r", "r-i",
		"i-o", "i-c", "n-e", "l-l", "b-e", "t-t", "m-e", "h-o", "w-a", "w-e",
	}

	// DigraphVarianceFeatures get an additional flight-variance slot.
	DigraphVarianceFeatures = []string{"t-h", "h-e", "i-n", "e-r", "a-n"}
)

// Scalar slot indices. The n-gram blocks are addressed relative to the
// offsets below.
const (
	idxMeanDwell = iota
	idxMeanFlight
	idxTypingSpeed
	idxDwellVariance
	idxDwellStdDev
	idxFlightVariance
	idxFlightStdDev
	idxDwellP25
	idxDwellP50
	idxDwellP75
	idxFlightP25
	idxFlightP50
	idxFlightP75
	idxRhythmConsistency
	idxDwellFlightRatio
	idxDwellVariability
	idxFluentFlightRatio
	idxShortPauseRatio
	idxLongPauseRatio
	idxMeanPauseDuration
	idxBackspaceRate
	idxConsecutiveBackspaces
	idxErrorCorrectionSpeed
	idxLeftHandRatio
	idxRightHandRatio
	idxHandTransitionRatio
	idxSameHandMeanFlight
	idxCrossHandMeanFlight
	idxHomeRowRatio
	idxTopRowRatio
	idxBottomRowRatio
	idxRowTransitionRatio
	idxFingerDwellBase // 5 slots: pinky, ring, middle, index, thumb
)

const (
	idxTrigraphBase   = idxFingerDwellBase + int(fingerCount)
	idxKeyDwellBase   = idxTrigraphBase + 10
	idxDigraphBase    = idxKeyDwellBase + 15
	idxDigraphVarBase = idxDigraphBase + 50

	idxKeyOverlapFrequency = idxDigraphVarBase + 5
	idxMeanKeyOverlap      = idxKeyOverlapFrequency + 1
	idxMeanWordLength      = idxMeanKeyOverlap + 1
	idxWordBoundaryPause   = idxMeanWordLength + 1
	idxWordStartFlight     = idxWordBoundaryPause + 1
	idxTypingSpeedDecay    = idxWordStartFlight + 1
	idxErrorRateIncrease   = idxTypingSpeedDecay + 1

	featureCount = idxErrorRateIncrease + 1
)

// FeatureCount is the fixed width of every feature vector under the current
// schema version.
func FeatureCount() int { return featureCount }

var featureNames = buildFeatureNames()

// FeatureNames returns the ordered slot names. The slice is shared; callers
// must not mutate it.
func FeatureNames() []string { return featureNames }

func buildFeatureNames() []string {
	names := make([]string, featureCount)
	scalar := map[int]string{
		idxMeanDwell:             "mean_dwell_time",
		idxMeanFlight:            "mean_flight_time",
		idxTypingSpeed:           "typing_speed",
		idxDwellVariance:         "dwell_variance",
		idxDwellStdDev:           "dwell_std_dev",
		idxFlightVariance:        "flight_variance",
		idxFlightStdDev:          "flight_std_dev",
		idxDwellP25:              "dwell_p25",
		idxDwellP50:              "dwell_p50",
		idxDwellP75:              "dwell_p75",
		idxFlightP25:             "flight_p25",
		idxFlightP50:             "flight_p50",
		idxFlightP75:             "flight_p75",
		idxRhythmConsistency:     "rhythm_consistency",
		idxDwellFlightRatio:      "dwell_flight_ratio",
		idxDwellVariability:      "dwell_variability",
		idxFluentFlightRatio:     "fluent_flight_ratio",
		idxShortPauseRatio:       "short_pause_ratio",
		idxLongPauseRatio:        "long_pause_ratio",
		idxMeanPauseDuration:     "mean_pause_duration",
		idxBackspaceRate:         "backspace_rate",
		idxConsecutiveBackspaces: "consecutive_backspaces",
		idxErrorCorrectionSpeed:  "error_correction_speed",
		idxLeftHandRatio:         "left_hand_ratio",
		idxRightHandRatio:        "right_hand_ratio",
		idxHandTransitionRatio:   "hand_transition_ratio",
		idxSameHandMeanFlight:    "same_hand_mean_flight",
		idxCrossHandMeanFlight:   "cross_hand_mean_flight",
		idxHomeRowRatio:          "home_row_ratio",
		idxTopRowRatio:           "top_row_ratio",
		idxBottomRowRatio:        "bottom_row_ratio",
		idxRowTransitionRatio:    "row_transition_ratio",
		idxKeyOverlapFrequency:   "key_overlap_frequency",
		idxMeanKeyOverlap:        "mean_key_overlap",
		idxMeanWordLength:        "mean_word_length",
		idxWordBoundaryPause:     "word_boundary_pause",
		idxWordStartFlight:       "word_start_flight",
		idxTypingSpeedDecay:      "typing_speed_decay",
		idxErrorRateIncrease:     "error_rate_increase",
	}
	for i, n := range scalar {
		names[i] = n
	}
	fingers := []string{"pinky", "ring", "middle", "index", "thumb"}
	for i, f := range fingers {
		names[idxFingerDwellBase+i] = "finger_dwell_" + f
	}
	for i, t := range TrigraphFeatures {
		names[idxTrigraphBase+i] = "trigraph_" + t
	}
	for i, k := range KeyDwellFeatures {
		names[idxKeyDwellBase+i] = "key_dwell_" + k
	}
	for i, d := range DigraphFeatures {
		names[idxDigraphBase+i] = "digraph_" + d
	}
	for i, d := range DigraphVarianceFeatures {
		names[idxDigraphVarBase+i] = "digraph_var_" + d
	}
	for i, n := range names {
		if n == "" {
			panic(fmt.Sprintf("feature slot %d has no name", i))
		}
	}
	return names
}
