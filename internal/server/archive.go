package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dilemma-server/internal/chat"
	"dilemma-server/internal/session"
)

var ErrExperimentNotFound = errors.New("experiment not found")

// Experiment is a stored configuration that waiting rooms are created from.
type Experiment struct {
	ID        string
	Name      string
	Config    session.Config
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists experiments and session archives. It implements
// session.Archiver; archive failures are logged by the session and never
// block phase progression, so every method here simply reports the error.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

// CreateExperiment validates and stores a new experiment definition.
func (s *Store) CreateExperiment(ctx context.Context, name string, cfg session.Config) (Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return Experiment{}, session.Invalid(err.Error())
	}

	exp := Experiment{
		ID:        uuid.New().String(),
		Name:      name,
		Config:    cfg,
		Status:    "active",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	exp.Config.ExperimentID = exp.ID

	data, err := json.Marshal(exp.Config)
	if err != nil {
		return Experiment{}, fmt.Errorf("serialize experiment config: %w", err)
	}

	query := `
		INSERT INTO experiments (id, name, config, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query, exp.ID, exp.Name, data, exp.Status, exp.CreatedAt, exp.UpdatedAt); err != nil {
		return Experiment{}, fmt.Errorf("insert experiment: %w", err)
	}
	return exp, nil
}

// GetExperiment loads one experiment by id.
func (s *Store) GetExperiment(ctx context.Context, id string) (Experiment, error) {
	query := `
		SELECT id, name, config, status, created_at, updated_at
		FROM experiments WHERE id = $1
	`

	var exp Experiment
	var data []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&exp.ID, &exp.Name, &data, &exp.Status, &exp.CreatedAt, &exp.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return Experiment{}, ErrExperimentNotFound
	}
	if err != nil {
		return Experiment{}, fmt.Errorf("load experiment %s: %w", id, err)
	}

	if err := json.Unmarshal(data, &exp.Config); err != nil {
		return Experiment{}, fmt.Errorf("deserialize experiment %s: %w", id, err)
	}
	return exp, nil
}

// LoadConfig returns the session configuration for an experiment. Waiting
// rooms call this once at creation; the config is immutable afterwards.
func (s *Store) LoadConfig(ctx context.Context, experimentID string) (session.Config, error) {
	exp, err := s.GetExperiment(ctx, experimentID)
	if err != nil {
		return session.Config{}, err
	}
	return exp.Config, nil
}

// CreateSession records a session at start; status transitions flow through
// UpdateStatus.
func (s *Store) CreateSession(ctx context.Context, sessionID, experimentID string) error {
	query := `
		INSERT INTO sessions (id, experiment_id, status, created_at, updated_at)
		VALUES ($1, $2, 'running', now(), now())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, sessionID, experimentID); err != nil {
		return fmt.Errorf("insert session %s: %w", sessionID, err)
	}
	return nil
}

// SaveRoundRecord archives one revealed round. Upsert keeps the write
// idempotent if a retry races a previous attempt.
func (s *Store) SaveRoundRecord(ctx context.Context, sessionID string, rec session.RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize round record: %w", err)
	}

	query := `
		INSERT INTO round_records (session_id, round, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, round) DO UPDATE SET data = EXCLUDED.data
	`
	if _, err := s.db.ExecContext(ctx, query, sessionID, rec.Round, data); err != nil {
		return fmt.Errorf("save round %d for session %s: %w", rec.Round, sessionID, err)
	}
	return nil
}

// SaveChatRecord archives one delivered chat message.
func (s *Store) SaveChatRecord(ctx context.Context, sessionID string, rec chat.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize chat record: %w", err)
	}

	query := `
		INSERT INTO chat_records (session_id, record_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, record_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, sessionID, rec.ID, data); err != nil {
		return fmt.Errorf("save chat record %s for session %s: %w", rec.ID, sessionID, err)
	}
	return nil
}

// UpdateStatus records a session status transition.
func (s *Store) UpdateStatus(ctx context.Context, sessionID string, status string) error {
	query := `
		UPDATE sessions SET status = $2, updated_at = now() WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, sessionID, status); err != nil {
		return fmt.Errorf("update status for session %s: %w", sessionID, err)
	}
	return nil
}

// SessionStatus returns the stored status for a session.
func (s *Store) SessionStatus(ctx context.Context, sessionID string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = $1`, sessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return "", fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return status, nil
}

// SessionResults returns the archived rounds of a session in round order.
func (s *Store) SessionResults(ctx context.Context, sessionID string) ([]session.RoundRecord, error) {
	query := `
		SELECT data FROM round_records
		WHERE session_id = $1
		ORDER BY round ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query rounds for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var records []session.RoundRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan round row: %w", err)
		}
		var rec session.RoundRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID).Msg("skipping corrupt round record")
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate round rows: %w", err)
	}
	return records, nil
}
