package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/rawblock/keyprint-engine/pkg/models"
)

// SQLiteStore is the embedded fallback store for single-node deployments
// and local development: same surface as PostgresStore, one file on disk.

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS training_sessions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    platform    TEXT,
    raw_events  TEXT NOT NULL,
    created_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_training_sessions_user_id
    ON training_sessions (user_id);

CREATE TABLE IF NOT EXISTS training_runs (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    micro_acc           REAL NOT NULL,
    macro_acc           REAL NOT NULL,
    log_loss            REAL NOT NULL,
    log_loss_reduction  REAL NOT NULL,
    total_samples       INTEGER NOT NULL,
    unique_labels       INTEGER NOT NULL,
    feature_count       INTEGER NOT NULL,
    algorithm           TEXT NOT NULL,
    samples_per_user    TEXT,
    trained_at          TIMESTAMP NOT NULL
);
`

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	log.Info().Str("path", path).Msg("opened SQLite store")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveTrainingSession(ctx context.Context, session models.TrainingSession) (int, error) {
	raw, err := json.Marshal(session.RawEvents)
	if err != nil {
		return 0, fmt.Errorf("encode events: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO training_sessions (id, user_id, platform, raw_events, created_at)
		VALUES (?, ?, ?, ?, ?);`,
		session.ID, session.Label, session.Platform, string(raw), session.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert training session: %w", err)
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM training_sessions`).Scan(&total); err != nil {
		return 0, err
	}
	return total, tx.Commit()
}

func (s *SQLiteStore) CountTrainingSessions(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM training_sessions`).Scan(&total)
	return total, err
}

func (s *SQLiteStore) LoadLabeledSessions(ctx context.Context) ([]models.TrainingSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(platform, ''), raw_events, created_at
		FROM training_sessions
		WHERE user_id <> '' AND user_id <> ?
		ORDER BY created_at ASC;`, models.UnknownLabel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.TrainingSession, 0)
	for rows.Next() {
		var session models.TrainingSession
		var raw string
		var createdAt time.Time
		if err := rows.Scan(&session.ID, &session.Label, &session.Platform, &raw, &createdAt); err != nil {
			return nil, err
		}
		session.CreatedAt = createdAt
		if err := json.Unmarshal([]byte(raw), &session.RawEvents); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("skipping session with corrupt event blob")
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) SaveTrainingMetrics(ctx context.Context, m models.TrainingMetrics) error {
	perUser, err := json.Marshal(m.SamplesPerUser)
	if err != nil {
		return fmt.Errorf("encode samples per user: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO training_runs
			(micro_acc, macro_acc, log_loss, log_loss_reduction,
			 total_samples, unique_labels, feature_count, algorithm,
			 samples_per_user, trained_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		m.MicroAccuracy, m.MacroAccuracy, m.LogLoss, m.LogLossReduction,
		m.TotalSamples, m.UniqueLabels, m.FeatureCount, m.Algorithm,
		string(perUser), m.TrainedAt.UTC())
	return err
}

func (s *SQLiteStore) LatestTrainingMetrics(ctx context.Context) (*models.TrainingMetrics, error) {
	var m models.TrainingMetrics
	var perUser string
	err := s.db.QueryRowContext(ctx, `
		SELECT micro_acc, macro_acc, log_loss, log_loss_reduction,
		       total_samples, unique_labels, feature_count, algorithm,
		       samples_per_user, trained_at
		FROM training_runs
		ORDER BY trained_at DESC
		LIMIT 1;`).Scan(
		&m.MicroAccuracy, &m.MacroAccuracy, &m.LogLoss, &m.LogLossReduction,
		&m.TotalSamples, &m.UniqueLabels, &m.FeatureCount, &m.Algorithm,
		&perUser, &m.TrainedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if perUser != "" {
		if err := json.Unmarshal([]byte(perUser), &m.SamplesPerUser); err != nil {
			return nil, fmt.Errorf("decode samples per user: %w", err)
		}
	}
	return &m, nil
}
