package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rawblock/keyprint-engine/internal/calibration"
	"github.com/rawblock/keyprint-engine/internal/classifier"
	"github.com/rawblock/keyprint-engine/internal/db"
	"github.com/rawblock/keyprint-engine/internal/evidence"
	"github.com/rawblock/keyprint-engine/internal/keystroke"
	"github.com/rawblock/keyprint-engine/internal/telemetry"
	"github.com/rawblock/keyprint-engine/internal/training"
	"github.com/rawblock/keyprint-engine/pkg/models"
)

const (
	minIdentifyEvents = 5
	maxLabelLen       = 100
	maxPlatformLen    = 50

	backgroundTrainTimeout = 10 * time.Minute
)

// Handler wires the profiling pipeline behind the HTTP surface.
type Handler struct {
	store      db.Store
	manager    *classifier.Manager
	calibrator *calibration.Calibrator
	sessions   *evidence.SessionCache
	trainer    *training.Orchestrator
	hub        *Hub

	autoTrainEvery   int
	thresholdSettled float64
	thresholdEarly   float64
	settledSamples   int
}

type profilerRequest struct {
	Platform  string                  `json:"platform"`
	Events    []models.KeystrokeEvent `json:"events"`
	SessionID string                  `json:"sessionId"`
}

// handleSubmitSession persists a labeled typing passage for the
// authenticated subject and may kick off a background training run.
func (h *Handler) handleSubmitSession(c *gin.Context) {
	subject := authSubject(c)
	if subject == "" || subject == models.UnknownLabel {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No authenticated subject"})
		return
	}

	var req profilerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Events) < keystroke.MinTrainingEvents {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Need at least %d keystroke events", keystroke.MinTrainingEvents),
		})
		return
	}

	session := models.TrainingSession{
		ID:        uuid.NewString(),
		Label:     truncate(subject, maxLabelLen),
		Platform:  truncate(req.Platform, maxPlatformLen),
		CreatedAt: time.Now().UTC(),
		RawEvents: req.Events,
	}

	total, err := h.store.SaveTrainingSession(c.Request.Context(), session)
	if err != nil {
		log.Error().Err(err).Str("subject", session.Label).Msg("failed to persist training session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist session"})
		return
	}
	telemetry.SessionsPersisted.Inc()
	log.Info().Str("subject", session.Label).Int("events", len(req.Events)).
		Int("total", total).Msg("training session persisted")

	if h.autoTrainEvery > 0 && total%h.autoTrainEvery == 0 {
		go h.backgroundTrain(total)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session recorded"})
}

// handleIdentify runs one evidence step for an identification session.
func (h *Handler) handleIdentify(c *gin.Context) {
	var req profilerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Events) < minIdentifyEvents {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Need at least %d keystroke events", minIdentifyEvents),
		})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	artifact, err := h.manager.Current()
	if err != nil {
		h.respondVerdict(c, models.IdentifyVerdict{
			User:      models.UnknownLabel,
			Message:   "No trained model available yet",
			Status:    models.StatusError,
			SessionID: sessionID,
		})
		return
	}

	events := keystroke.Normalize(req.Events)
	vector := keystroke.Extract(events, models.UnknownLabel)

	labels, scores, err := artifact.Predict(vector.Values)
	if err != nil {
		h.respondVerdict(c, models.IdentifyVerdict{
			User:      models.UnknownLabel,
			Message:   "Prediction unavailable",
			Status:    models.StatusError,
			SessionID: sessionID,
		})
		return
	}
	result := h.calibrator.Calibrate(labels, scores)

	var fused evidence.Verdict
	h.sessions.Update(sessionID, func(state *evidence.SessionState) {
		fused = evidence.Accumulate(state, sessionID, result.Labels, result.Probabilities)
	})
	telemetry.ActiveSessions.Set(float64(h.sessions.Len()))
	telemetry.IdentifyConfidence.Observe(fused.Confidence)

	threshold := h.thresholdEarly
	if fused.SampleCount > h.settledSamples {
		threshold = h.thresholdSettled
	}
	status := models.StatusContinue
	message := "Keep typing to accumulate evidence"
	if fused.Confidence > threshold {
		status = models.StatusAuthenticated
		message = "Identity confirmed"
	}

	h.respondVerdict(c, models.IdentifyVerdict{
		User:             fused.Label,
		Confidence:       fused.Confidence * 100,
		SampleConfidence: result.AdjustedConfidence * 100,
		Message:          message,
		Status:           status,
		SessionID:        sessionID,
		SampleCount:      fused.SampleCount,
	})
}

func (h *Handler) respondVerdict(c *gin.Context, v models.IdentifyVerdict) {
	telemetry.IdentifyRequests.WithLabelValues(v.Status).Inc()
	if h.hub != nil {
		if data, err := json.Marshal(gin.H{"type": "verdict", "verdict": v}); err == nil {
			h.hub.Broadcast(data)
		}
	}
	c.JSON(http.StatusOK, v)
}

// handleTrain runs a synchronous training pass and swaps the live model on
// success.
func (h *Handler) handleTrain(c *gin.Context) {
	result, err := h.runTraining(c.Request.Context())
	if err != nil {
		if errors.Is(err, training.ErrInsufficientData) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("training run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Training failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Model trained and published",
		"strategy": result.Strategy,
		"metrics":  result.Metrics,
	})
}

func (h *Handler) runTraining(ctx context.Context) (*training.Result, error) {
	started := time.Now()
	result, err := h.trainer.Train(ctx)
	telemetry.TrainingDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		telemetry.TrainingRuns.WithLabelValues("failure").Inc()
		return nil, err
	}
	telemetry.TrainingRuns.WithLabelValues("success").Inc()

	if h.hub != nil {
		if data, err := json.Marshal(gin.H{"type": "model", "metrics": result.Metrics}); err == nil {
			h.hub.Broadcast(data)
		}
	}
	return result, nil
}

// backgroundTrain is the fire-and-forget auto-train path. Failures are
// logged and never affect the submit that triggered them.
func (h *Handler) backgroundTrain(total int) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTrainTimeout)
	defer cancel()

	log.Info().Int("sessions", total).Msg("auto-train triggered")
	if _, err := h.runTraining(ctx); err != nil {
		log.Warn().Err(err).Msg("auto-train run failed")
	}
}

// handleModelInfo reports the live model and its latest evaluation record.
func (h *Handler) handleModelInfo(c *gin.Context) {
	info := gin.H{"ready": h.manager.Ready()}

	if artifact, err := h.manager.Current(); err == nil {
		info["labels"] = artifact.Labels
		info["algorithm"] = artifact.Algorithm
		info["featureSchemaVersion"] = artifact.SchemaVersion
	}
	metrics, err := h.store.LatestTrainingMetrics(c.Request.Context())
	if err != nil {
		log.Warn().Err(err).Msg("could not load latest training metrics")
	} else if metrics != nil {
		info["lastTraining"] = metrics
	}

	c.JSON(http.StatusOK, info)
}

func (h *Handler) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":               "ok",
		"modelReady":           h.manager.Ready(),
		"activeSessions":       h.sessions.Len(),
		"featureSchemaVersion": keystroke.SchemaVersion,
	}
	if artifact, err := h.manager.Current(); err == nil {
		body["labelCount"] = len(artifact.Labels)
	}
	if _, err := h.store.CountTrainingSessions(c.Request.Context()); err != nil {
		body["status"] = "degraded"
		body["storeError"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
