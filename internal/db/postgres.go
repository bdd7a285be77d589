package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/rawblock/keyprint-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time.
// This ensures schema init works inside the Docker runtime image which
// does not copy internal/db/schema.sql into the final stage.
//
//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Info().Msg("connected to PostgreSQL")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Info().Msg("profiling schema initialized")
	return nil
}

// SaveTrainingSession persists the labeled session and returns the total
// session count after the insert, inside one transaction so the auto-train
// trigger sees a consistent number.
func (s *PostgresStore) SaveTrainingSession(ctx context.Context, session models.TrainingSession) (int, error) {
	raw, err := json.Marshal(session.RawEvents)
	if err != nil {
		return 0, fmt.Errorf("encode events: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertSQL := `
		INSERT INTO training_sessions (id, user_id, platform, raw_events, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	if _, err := tx.Exec(ctx, insertSQL,
		session.ID, session.Label, session.Platform, raw, session.CreatedAt); err != nil {
		return 0, fmt.Errorf("failed to insert training session: %w", err)
	}

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM training_sessions`).Scan(&total); err != nil {
		return 0, err
	}
	return total, tx.Commit(ctx)
}

func (s *PostgresStore) CountTrainingSessions(ctx context.Context) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM training_sessions`).Scan(&total)
	return total, err
}

// LoadLabeledSessions returns every persisted session carrying a usable
// subject label, oldest first.
func (s *PostgresStore) LoadLabeledSessions(ctx context.Context) ([]models.TrainingSession, error) {
	querySQL := `
		SELECT id, user_id, COALESCE(platform, ''), raw_events, created_at
		FROM training_sessions
		WHERE user_id <> '' AND user_id <> $1
		ORDER BY created_at ASC;
	`
	rows, err := s.pool.Query(ctx, querySQL, models.UnknownLabel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.TrainingSession, 0)
	for rows.Next() {
		var session models.TrainingSession
		var raw []byte
		if err := rows.Scan(&session.ID, &session.Label, &session.Platform, &raw, &session.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &session.RawEvents); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("skipping session with corrupt event blob")
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) SaveTrainingMetrics(ctx context.Context, m models.TrainingMetrics) error {
	perUser, err := json.Marshal(m.SamplesPerUser)
	if err != nil {
		return fmt.Errorf("encode samples per user: %w", err)
	}
	insertSQL := `
		INSERT INTO training_runs
			(micro_acc, macro_acc, log_loss, log_loss_reduction,
			 total_samples, unique_labels, feature_count, algorithm,
			 samples_per_user, trained_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err = s.pool.Exec(ctx, insertSQL,
		m.MicroAccuracy, m.MacroAccuracy, m.LogLoss, m.LogLossReduction,
		m.TotalSamples, m.UniqueLabels, m.FeatureCount, m.Algorithm,
		perUser, m.TrainedAt)
	return err
}

// LatestTrainingMetrics returns the most recent training run record, or nil
// when no model has been trained yet.
func (s *PostgresStore) LatestTrainingMetrics(ctx context.Context) (*models.TrainingMetrics, error) {
	querySQL := `
		SELECT micro_acc, macro_acc, log_loss, log_loss_reduction,
		       total_samples, unique_labels, feature_count, algorithm,
		       samples_per_user, trained_at
		FROM training_runs
		ORDER BY trained_at DESC
		LIMIT 1;
	`
	var m models.TrainingMetrics
	var perUser []byte
	err := s.pool.QueryRow(ctx, querySQL).Scan(
		&m.MicroAccuracy, &m.MacroAccuracy, &m.LogLoss, &m.LogLossReduction,
		&m.TotalSamples, &m.UniqueLabels, &m.FeatureCount, &m.Algorithm,
		&perUser, &m.TrainedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(perUser) > 0 {
		if err := json.Unmarshal(perUser, &m.SamplesPerUser); err != nil {
			return nil, fmt.Errorf("decode samples per user: %w", err)
		}
	}
	return &m, nil
}
