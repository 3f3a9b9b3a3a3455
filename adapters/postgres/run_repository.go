package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gocombat/domain/core"
	"gocombat/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// RunRepositoryImpl implements RunRepository for PostgreSQL
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// SaveRun appends one run record
func (r *RunRepositoryImpl) SaveRun(ctx context.Context, run *ports.RunRecord) error {
	warningsJSON, _ := json.Marshal(run.Warnings)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO combat_runs (
			id, model_id, kind, created_at, row_count, duration_ms,
			input_fingerprint, output_fingerprint, warnings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID.String(), run.ModelID.String(), string(run.Kind), run.CreatedAt.Time(),
		run.Rows, run.DurationMillis, string(run.InputFingerprint),
		string(run.OutputFingerprint), warningsJSON)

	if err != nil {
		// The model can be deleted between the harmonization call and this
		// audit write
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
			return core.NewNotFoundError("model", run.ModelID.String())
		}
		return err
	}
	return nil
}

// ListRuns returns the runs of a model, newest first
func (r *RunRepositoryImpl) ListRuns(ctx context.Context, modelID core.ModelID, limit int) ([]ports.RunRecord, error) {
	query := `
		SELECT id, model_id, kind, created_at, row_count, duration_ms,
			   input_fingerprint, output_fingerprint, warnings
		FROM combat_runs
		WHERE model_id = $1
		ORDER BY created_at DESC`

	args := []interface{}{modelID.String()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ports.RunRecord
	for rows.Next() {
		var (
			idStr, modelStr, kind, inFP, outFP string
			createdAt                          time.Time
			warningsJSON                       []byte
			rec                                ports.RunRecord
		)
		if err := rows.Scan(&idStr, &modelStr, &kind, &createdAt, &rec.Rows,
			&rec.DurationMillis, &inFP, &outFP, &warningsJSON); err != nil {
			return nil, err
		}

		id, err := core.ParseRunID(idStr)
		if err != nil {
			return nil, fmt.Errorf("stored run id %q is invalid: %w", idStr, err)
		}
		mid, err := core.ParseModelID(modelStr)
		if err != nil {
			return nil, fmt.Errorf("stored model id %q is invalid: %w", modelStr, err)
		}
		rec.ID = id
		rec.ModelID = mid
		rec.Kind = ports.RunKind(kind)
		rec.CreatedAt = core.NewTimestamp(createdAt)
		rec.InputFingerprint = core.MatrixFingerprint(inFP)
		rec.OutputFingerprint = core.MatrixFingerprint(outFP)
		if len(warningsJSON) > 0 {
			json.Unmarshal(warningsJSON, &rec.Warnings)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}
