package ports

import (
	"context"

	"gocombat/domain/core"
)

// RunKind distinguishes the operations recorded in the run log
type RunKind string

const (
	RunFit          RunKind = "fit"
	RunTransform    RunKind = "transform"
	RunFitTransform RunKind = "fit_transform"
)

// RunRecord is the audit entry written after every harmonization call
type RunRecord struct {
	ID                core.RunID             `json:"id"`
	ModelID           core.ModelID           `json:"model_id"`
	Kind              RunKind                `json:"kind"`
	CreatedAt         core.Timestamp         `json:"created_at"`
	Rows              int                    `json:"rows"`
	DurationMillis    int64                  `json:"duration_ms"`
	InputFingerprint  core.MatrixFingerprint `json:"input_fingerprint"`
	OutputFingerprint core.MatrixFingerprint `json:"output_fingerprint,omitempty"`
	Warnings          []string               `json:"warnings,omitempty"`
}

// RunRepository persists harmonization run records
type RunRepository interface {
	// SaveRun appends one run record
	SaveRun(ctx context.Context, run *RunRecord) error

	// ListRuns returns the runs of a model, newest first
	ListRuns(ctx context.Context, modelID core.ModelID, limit int) ([]RunRecord, error)
}
