package ports

import (
	"context"

	"gocombat/domain/combat"
	"gocombat/domain/core"
)

// ModelRepository defines persistence for fitted harmonization models
type ModelRepository interface {
	// SaveModel persists a fitted model
	SaveModel(ctx context.Context, m *combat.Model) error

	// GetModel retrieves a model by ID
	GetModel(ctx context.Context, id core.ModelID) (*combat.Model, error)

	// ListModels returns stored models, newest first
	ListModels(ctx context.Context, filters ModelFilters) ([]ModelSummary, error)

	// DeleteModel removes a model by ID
	DeleteModel(ctx context.Context, id core.ModelID) error
}

// ModelFilters narrows list queries
type ModelFilters struct {
	Batch  *core.BatchKey // only models fitted with this batch
	Limit  int
	Offset int
}

// ModelSummary is the list view of a stored model
type ModelSummary struct {
	ID          core.ModelID          `json:"id"`
	CreatedAt   core.Timestamp        `json:"created_at"`
	Features    int                   `json:"features"`
	Batches     int                   `json:"batches"`
	Samples     int                   `json:"samples"`
	Converged   bool                  `json:"converged"`
	Fingerprint core.ModelFingerprint `json:"fingerprint"`
}
