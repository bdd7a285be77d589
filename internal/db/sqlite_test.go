package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rawblock/keyprint-engine/pkg/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.InitSchema(context.Background()))
	return store
}

func testSession(id, label string) models.TrainingSession {
	return models.TrainingSession{
		ID:        id,
		Label:     label,
		Platform:  "web",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		RawEvents: []models.KeystrokeEvent{
			{Key: "a", Timestamp: 0, Type: models.EventKeyDown},
			{Key: "a", Timestamp: 90, Type: models.EventKeyUp},
		},
	}
}

func TestSQLiteSessionRoundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	total, err := store.SaveTrainingSession(ctx, testSession("s1", "alice"))
	require.NoError(t, err)
	require.Equal(t, 1, total)

	total, err = store.SaveTrainingSession(ctx, testSession("s2", "bob"))
	require.NoError(t, err)
	require.Equal(t, 2, total)

	count, err := store.CountTrainingSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	sessions, err := store.LoadLabeledSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "alice", sessions[0].Label)
	require.Len(t, sessions[0].RawEvents, 2)
	require.Equal(t, int64(90), sessions[0].RawEvents[1].Timestamp)
}

func TestSQLiteExcludesUnknownFromTraining(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.SaveTrainingSession(ctx, testSession("s1", models.UnknownLabel))
	require.NoError(t, err)
	_, err = store.SaveTrainingSession(ctx, testSession("s2", "alice"))
	require.NoError(t, err)

	sessions, err := store.LoadLabeledSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "alice", sessions[0].Label)
}

func TestSQLiteTrainingMetrics(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestTrainingMetrics(ctx)
	require.NoError(t, err)
	require.Nil(t, latest)

	m := models.TrainingMetrics{
		MicroAccuracy:    0.9,
		MacroAccuracy:    0.85,
		LogLoss:          0.4,
		LogLossReduction: 0.6,
		TotalSamples:     18,
		UniqueLabels:     2,
		FeatureCount:     124,
		Algorithm:        "boosted_trees",
		TrainedAt:        time.Now().UTC().Truncate(time.Second),
		SamplesPerUser:   map[string]int{"alice": 9, "bob": 9},
	}
	require.NoError(t, store.SaveTrainingMetrics(ctx, m))

	latest, err = store.LatestTrainingMetrics(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, m.TotalSamples, latest.TotalSamples)
	require.Equal(t, m.SamplesPerUser, latest.SamplesPerUser)
}
