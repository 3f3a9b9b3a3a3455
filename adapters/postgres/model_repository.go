package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gocombat/domain/combat"
	"gocombat/domain/core"
	"gocombat/ports"

	"github.com/jmoiron/sqlx"
)

// ModelRepositoryImpl implements ModelRepository for PostgreSQL
type ModelRepositoryImpl struct {
	db *sqlx.DB
}

// NewModelRepository creates a new PostgreSQL model repository
func NewModelRepository(db *sqlx.DB) ports.ModelRepository {
	return &ModelRepositoryImpl{db: db}
}

// SaveModel persists a fitted model. The full parameter set travels as a
// JSONB payload; the scalar columns exist for listing and filtering.
func (r *ModelRepositoryImpl) SaveModel(ctx context.Context, m *combat.Model) error {
	payloadJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal model payload: %w", err)
	}

	batchKeys := make([]string, 0, m.K())
	samples := 0
	for _, b := range m.Batches {
		batchKeys = append(batchKeys, b.Key.String())
		samples += b.Size
	}
	batchKeysJSON, _ := json.Marshal(batchKeys)

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO combat_models (
			id, created_at, n_features, n_batches, n_samples,
			converged, fingerprint, input_fingerprint, batch_keys, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			converged = EXCLUDED.converged,
			fingerprint = EXCLUDED.fingerprint,
			input_fingerprint = EXCLUDED.input_fingerprint,
			batch_keys = EXCLUDED.batch_keys,
			payload = EXCLUDED.payload`,
		m.ID.String(), m.CreatedAt.Time(), m.FeatureCount(), m.K(), samples,
		m.AllConverged(), string(m.Fingerprint), string(m.InputFingerprint),
		batchKeysJSON, payloadJSON)

	return err
}

// GetModel retrieves a model by ID
func (r *ModelRepositoryImpl) GetModel(ctx context.Context, id core.ModelID) (*combat.Model, error) {
	var payloadJSON []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT payload FROM combat_models WHERE id = $1
	`, id.String()).Scan(&payloadJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("model", id.String())
	}
	if err != nil {
		return nil, err
	}

	var m combat.Model
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model payload: %w", err)
	}
	return &m, nil
}

// ListModels returns summaries newest first
func (r *ModelRepositoryImpl) ListModels(ctx context.Context, filters ports.ModelFilters) ([]ports.ModelSummary, error) {
	query := `
		SELECT id, created_at, n_features, n_batches, n_samples, converged, fingerprint
		FROM combat_models`

	var args []interface{}
	if filters.Batch != nil {
		args = append(args, filters.Batch.String())
		query += fmt.Sprintf(" WHERE batch_keys ? $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ports.ModelSummary
	for rows.Next() {
		var (
			idStr       string
			createdAt   time.Time
			fingerprint string
			s           ports.ModelSummary
		)
		if err := rows.Scan(&idStr, &createdAt, &s.Features, &s.Batches, &s.Samples, &s.Converged, &fingerprint); err != nil {
			return nil, err
		}
		id, err := core.ParseModelID(idStr)
		if err != nil {
			return nil, fmt.Errorf("stored model id %q is invalid: %w", idStr, err)
		}
		s.ID = id
		s.CreatedAt = core.NewTimestamp(createdAt)
		s.Fingerprint = core.ModelFingerprint(fingerprint)
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// DeleteModel removes a model by ID
func (r *ModelRepositoryImpl) DeleteModel(ctx context.Context, id core.ModelID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM combat_models WHERE id = $1`, id.String())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError("model", id.String())
	}
	return nil
}
