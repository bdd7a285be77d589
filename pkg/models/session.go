package models

import "time"

// Event type discriminators for KeystrokeEvent.Type.
const (
	EventKeyDown = "keydown"
	EventKeyUp   = "keyup"
)

// KeystrokeEvent is a single key press or release captured on the client.
// Timestamps are milliseconds, session-relative or wall-clock; the pipeline
// only consumes differences between them.
type KeystrokeEvent struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"` // ms
	Type      string `json:"type"`      // "keydown" | "keyup"
}

// TrainingSession is one labeled typing passage as persisted in the store.
// Immutable after creation.
type TrainingSession struct {
	ID        string           `json:"id"`
	Label     string           `json:"label"` // subject id, never "Unknown"
	Platform  string           `json:"platform"`
	CreatedAt time.Time        `json:"createdAt"`
	RawEvents []KeystrokeEvent `json:"rawEvents"`
}

// PredictionResult is a single calibrated per-sample prediction.
// Probabilities[i] always belongs to Labels[i]; the label order comes from
// the model artifact and must never be re-derived elsewhere.
type PredictionResult struct {
	PredictedLabel     string    `json:"predictedLabel"`
	Probabilities      []float32 `json:"probabilities"`
	Labels             []string  `json:"labels"`
	Entropy            float64   `json:"entropy"`            // normalized, [0,1]
	TopTwoMargin       float64   `json:"topTwoMargin"`       // p1 - p2, [0,1]
	AdjustedConfidence float64   `json:"adjustedConfidence"` // [0,1]
}

// TrainingMetrics is the evaluation record persisted next to every
// published model artifact.
type TrainingMetrics struct {
	MicroAccuracy    float64        `json:"microAcc"`
	MacroAccuracy    float64        `json:"macroAcc"`
	LogLoss          float64        `json:"logLoss"`
	LogLossReduction float64        `json:"logLossReduction"`
	TotalSamples     int            `json:"totalSamples"`
	UniqueLabels     int            `json:"uniqueLabels"`
	FeatureCount     int            `json:"featureCount"`
	Algorithm        string         `json:"algorithm"`
	TrainedAt        time.Time      `json:"trainedAt"`
	SamplesPerUser   map[string]int `json:"samplesPerUser"`
}

// IdentifyVerdict is the progressive verdict returned to the client after
// each evidence submission within an identification session.
type IdentifyVerdict struct {
	User             string  `json:"user"`
	Confidence       float64 `json:"confidence"`                 // percent, [0,100], session-level
	SampleConfidence float64 `json:"sampleConfidence,omitempty"` // percent, calibrated quality of this batch alone
	Message          string  `json:"message"`
	Status           string  `json:"status"` // "Authenticated" | "Continue" | "Error"
	SessionID        string  `json:"sessionId"`
	SampleCount      int     `json:"sampleCount,omitempty"`
}

// Verdict statuses.
const (
	StatusAuthenticated = "Authenticated"
	StatusContinue      = "Continue"
	StatusError         = "Error"
)

// UnknownLabel is the sentinel subject id for vectors that carry no usable
// identity evidence. Sessions labeled with it are never trained on.
const UnknownLabel = "Unknown"
