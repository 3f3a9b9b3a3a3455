package ports

import (
	"context"

	"gocombat/domain/dataset"
)

// MatrixReader loads an expression matrix together with its batch labels
// and optional covariates from one input document
type MatrixReader interface {
	ReadMatrix(ctx context.Context, path string, opts ReadOptions) (*MatrixPayload, error)
}

// MatrixWriter persists an adjusted matrix alongside its sample metadata
type MatrixWriter interface {
	WriteMatrix(ctx context.Context, path string, m *dataset.Matrix, batches *dataset.BatchAssignment) error
}

// ReadOptions selects the metadata columns of an input document. Every
// column not named here is treated as a feature.
type ReadOptions struct {
	BatchColumn     string   // column holding the batch label, required
	SampleColumn    string   // column holding the sample ID, optional
	InterestColumns []string // covariates preserved through adjustment
	NuisanceColumns []string // covariates removed by adjustment
}

// MatrixPayload bundles everything a fit or transform call needs
type MatrixPayload struct {
	Matrix     *dataset.Matrix
	Batches    *dataset.BatchAssignment
	Covariates *dataset.CovariateSet
}
