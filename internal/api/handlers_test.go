package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/keyprint-engine/internal/calibration"
	"github.com/rawblock/keyprint-engine/internal/classifier"
	"github.com/rawblock/keyprint-engine/internal/config"
	"github.com/rawblock/keyprint-engine/internal/evidence"
	"github.com/rawblock/keyprint-engine/internal/keystroke"
	"github.com/rawblock/keyprint-engine/internal/training"
	"github.com/rawblock/keyprint-engine/pkg/models"
)

type stubStore struct {
	sessions []models.TrainingSession
	metrics  []models.TrainingMetrics
}

func (s *stubStore) InitSchema(ctx context.Context) error { return nil }

func (s *stubStore) SaveTrainingSession(ctx context.Context, session models.TrainingSession) (int, error) {
	s.sessions = append(s.sessions, session)
	return len(s.sessions), nil
}

func (s *stubStore) CountTrainingSessions(ctx context.Context) (int, error) {
	return len(s.sessions), nil
}

func (s *stubStore) LoadLabeledSessions(ctx context.Context) ([]models.TrainingSession, error) {
	return s.sessions, nil
}

func (s *stubStore) SaveTrainingMetrics(ctx context.Context, m models.TrainingMetrics) error {
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *stubStore) LatestTrainingMetrics(ctx context.Context) (*models.TrainingMetrics, error) {
	if len(s.metrics) == 0 {
		return nil, nil
	}
	return &s.metrics[len(s.metrics)-1], nil
}

func (s *stubStore) Close() {}

func testRouter(t *testing.T, store *stubStore, manager *classifier.Manager) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Auth.Identities = map[string]string{"token-alice": "alice"}

	calibrator := calibration.New(calibration.DefaultTemperature)
	sessions := evidence.NewSessionCache(time.Minute)
	trainer := training.NewOrchestrator(store, manager)
	hub := NewHub()
	go hub.Run()

	return SetupRouter(cfg, store, manager, calibrator, sessions, trainer, hub)
}

func postJSON(r *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func typingEvents(text string, dwell, flight int64) []models.KeystrokeEvent {
	var events []models.KeystrokeEvent
	t := int64(0)
	for _, r := range text {
		key := keystroke.NormalizeKey(string(r))
		events = append(events,
			models.KeystrokeEvent{Key: key, Timestamp: t, Type: models.EventKeyDown},
			models.KeystrokeEvent{Key: key, Timestamp: t + dwell, Type: models.EventKeyUp},
		)
		t += flight
	}
	return events
}

func TestIdentifyRejectsShortInput(t *testing.T) {
	store := &stubStore{}
	r := testRouter(t, store, classifier.NewManager(filepath.Join(t.TempDir(), "model.json")))

	w := postJSON(r, "/api/profiler/identify", gin.H{
		"platform": "web",
		"events":   typingEvents("ab", 80, 120), // 4 events, below the floor
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdentifyWithoutModel(t *testing.T) {
	store := &stubStore{}
	r := testRouter(t, store, classifier.NewManager(filepath.Join(t.TempDir(), "model.json")))

	w := postJSON(r, "/api/profiler/identify", gin.H{
		"platform": "web",
		"events":   typingEvents("hello world", 80, 120),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var v models.IdentifyVerdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	require.Equal(t, models.UnknownLabel, v.User)
	require.Equal(t, models.StatusError, v.Status)
	require.Zero(t, v.Confidence)
	require.NotEmpty(t, v.SessionID)
}

func TestIdentifyWithTrainedModel(t *testing.T) {
	store := &stubStore{}
	manager := classifier.NewManager(filepath.Join(t.TempDir(), "model.json"))

	var samples []classifier.Sample
	for i := 0; i < 5; i++ {
		a := keystroke.Extract(keystroke.Normalize(typingEvents("the quick brown fox", 60, 110)), "alice")
		b := keystroke.Extract(keystroke.Normalize(typingEvents("the quick brown fox", 170, 330)), "bob")
		samples = append(samples,
			classifier.Sample{Features: a.Values, Label: a.Label},
			classifier.Sample{Features: b.Values, Label: b.Label},
		)
	}
	artifact, err := classifier.Fit(samples, classifier.DeepTreeConfig())
	require.NoError(t, err)
	require.NoError(t, manager.Publish(artifact))

	r := testRouter(t, store, manager)

	w := postJSON(r, "/api/profiler/identify", gin.H{
		"platform":  "web",
		"events":    typingEvents("jumps over the lazy dog", 60, 110),
		"sessionId": "sess-42",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var v models.IdentifyVerdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	require.Equal(t, "sess-42", v.SessionID)
	require.Equal(t, 1, v.SampleCount)
	require.Contains(t, []string{models.StatusAuthenticated, models.StatusContinue}, v.Status)
	require.GreaterOrEqual(t, v.Confidence, 0.0)
	require.LessOrEqual(t, v.Confidence, 100.0)
	require.Greater(t, v.SampleConfidence, 0.0)
	require.LessOrEqual(t, v.SampleConfidence, 100.0)
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"alice", 10, "alice"},
		{"alice", 3, "ali"},
		// é is two bytes; a cut at 2 would split it.
		{"héllo", 2, "h"},
		{"héllo", 3, "hé"},
		// three-byte runes
		{"日本語", 4, "日"},
		{"日本語", 9, "日本語"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
		}
	}
}

func TestSubmitRequiresAuth(t *testing.T) {
	store := &stubStore{}
	r := testRouter(t, store, classifier.NewManager(filepath.Join(t.TempDir(), "model.json")))

	w := postJSON(r, "/api/profiler/session", gin.H{
		"platform": "web",
		"events":   typingEvents("hello world", 80, 120),
	}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, store.sessions)
}

func TestSubmitPersistsWithResolvedIdentity(t *testing.T) {
	store := &stubStore{}
	r := testRouter(t, store, classifier.NewManager(filepath.Join(t.TempDir(), "model.json")))

	w := postJSON(r, "/api/profiler/session", gin.H{
		"platform": "web",
		"events":   typingEvents("hello world", 80, 120),
	}, map[string]string{"Authorization": "Bearer token-alice"})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, store.sessions, 1)
	saved := store.sessions[0]
	require.Equal(t, "alice", saved.Label)
	require.Equal(t, "web", saved.Platform)
	require.NotEmpty(t, saved.ID)
	require.Len(t, saved.RawEvents, 22)
}

func TestSubmitRejectsUnknownToken(t *testing.T) {
	store := &stubStore{}
	r := testRouter(t, store, classifier.NewManager(filepath.Join(t.TempDir(), "model.json")))

	w := postJSON(r, "/api/profiler/session", gin.H{
		"platform": "web",
		"events":   typingEvents("hello world", 80, 120),
	}, map[string]string{"Authorization": "Bearer wrong-token"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTrainRequiresAuth(t *testing.T) {
	store := &stubStore{}
	r := testRouter(t, store, classifier.NewManager(filepath.Join(t.TempDir(), "model.json")))

	w := postJSON(r, "/api/profiler/train", gin.H{}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTrainWithoutDataFails(t *testing.T) {
	store := &stubStore{}
	r := testRouter(t, store, classifier.NewManager(filepath.Join(t.TempDir(), "model.json")))

	w := postJSON(r, "/api/profiler/train", gin.H{},
		map[string]string{"Authorization": "Bearer token-alice"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	store := &stubStore{}
	r := testRouter(t, store, classifier.NewManager(filepath.Join(t.TempDir(), "model.json")))

	req := httptest.NewRequest(http.MethodGet, "/api/profiler/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, false, body["modelReady"])
}

func TestModelInfoEndpoint(t *testing.T) {
	store := &stubStore{}
	r := testRouter(t, store, classifier.NewManager(filepath.Join(t.TempDir(), "model.json")))

	req := httptest.NewRequest(http.MethodGet, "/api/profiler/model", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, false, body["ready"])
}
