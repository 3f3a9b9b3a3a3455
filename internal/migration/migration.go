package migration

import (
	"context"

	"gocombat/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createModelsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create combat_models table")
	}

	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create combat_runs table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createModelsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS combat_models (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			n_features INTEGER NOT NULL,
			n_batches INTEGER NOT NULL,
			n_samples INTEGER NOT NULL,
			converged BOOLEAN NOT NULL,
			fingerprint TEXT NOT NULL,
			input_fingerprint TEXT NOT NULL,
			batch_keys JSONB NOT NULL,
			payload JSONB NOT NULL
		)`)
	return err
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS combat_runs (
			id UUID PRIMARY KEY,
			model_id UUID NOT NULL REFERENCES combat_models(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			row_count INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL,
			input_fingerprint TEXT NOT NULL,
			output_fingerprint TEXT NOT NULL,
			warnings JSONB
		)`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_combat_models_created_at ON combat_models (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_combat_runs_model ON combat_runs (model_id, created_at DESC)`,
	}
	// GIN is Postgres-only; the sqlite dev database does without the
	// batch-key index.
	if db.DriverName() == "postgres" {
		indexes = append(indexes,
			`CREATE INDEX IF NOT EXISTS idx_combat_models_batch_keys ON combat_models USING GIN (batch_keys)`)
	}

	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
