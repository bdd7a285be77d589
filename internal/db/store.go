package db

import (
	"context"

	"github.com/rawblock/keyprint-engine/pkg/models"
)

// Store is the persistence surface for labeled typing sessions and training
// run records. Two implementations exist: PostgreSQL for deployments and an
// embedded SQLite file for single-node or development use.
type Store interface {
	InitSchema(ctx context.Context) error

	// SaveTrainingSession persists one labeled session and returns the new
	// total session count, which drives the auto-train trigger.
	SaveTrainingSession(ctx context.Context, s models.TrainingSession) (int, error)

	CountTrainingSessions(ctx context.Context) (int, error)
	LoadLabeledSessions(ctx context.Context) ([]models.TrainingSession, error)

	SaveTrainingMetrics(ctx context.Context, m models.TrainingMetrics) error
	LatestTrainingMetrics(ctx context.Context) (*models.TrainingMetrics, error)

	Close()
}
