package api

import (
	"sort"

	"gocombat/app"
	"gocombat/domain/combat"
	"gocombat/domain/core"
	"gocombat/domain/dataset"
)

// MatrixDocument is the wire form of a sample-by-feature matrix. It is
// the same shape the jsonio adapter reads and writes, so a file prepared
// for the CLI posts to the API unchanged.
type MatrixDocument struct {
	Samples    []string           `json:"samples,omitempty"`
	Batches    []string           `json:"batches"`
	Features   []string           `json:"features"`
	Data       [][]float64        `json:"data"`
	Covariates *CovariateDocument `json:"covariates,omitempty"`
}

// CovariateDocument carries named covariate columns split by role
type CovariateDocument struct {
	Interest map[string][]float64 `json:"interest,omitempty"`
	Nuisance map[string][]float64 `json:"nuisance,omitempty"`
}

// FitRequestBody is the payload of POST /api/fit and /api/fit-transform
type FitRequestBody struct {
	Data    MatrixDocument `json:"data" binding:"required"`
	Options app.Options    `json:"options"`
}

// TransformRequestBody is the payload of POST /api/transform
type TransformRequestBody struct {
	ModelID string         `json:"model_id" binding:"required"`
	Data    MatrixDocument `json:"data" binding:"required"`
}

// FitResponse reports a stored model
type FitResponse struct {
	ModelID     core.ModelID          `json:"model_id"`
	RunID       core.RunID            `json:"run_id"`
	Fingerprint core.ModelFingerprint `json:"fingerprint"`
	Features    int                   `json:"features"`
	Batches     int                   `json:"batches"`
	Samples     int                   `json:"samples"`
	Converged   bool                  `json:"converged"`
	Warnings    []string              `json:"warnings,omitempty"`
	RuntimeMs   int64                 `json:"runtime_ms"`
}

// TransformResponse carries the adjusted matrix
type TransformResponse struct {
	ModelID   core.ModelID   `json:"model_id"`
	RunID     core.RunID     `json:"run_id"`
	Adjusted  MatrixDocument `json:"adjusted"`
	RuntimeMs int64          `json:"runtime_ms"`
}

// FitTransformResponse reports the model and the adjusted training matrix
type FitTransformResponse struct {
	FitResponse
	Adjusted MatrixDocument `json:"adjusted"`
}

// toDomain converts the wire document into validated domain objects
func (d *MatrixDocument) toDomain() (*dataset.Matrix, *dataset.BatchAssignment, *dataset.CovariateSet, error) {
	if len(d.Data) == 0 {
		return nil, nil, nil, core.NewValidationError("data", "no rows supplied")
	}
	if len(d.Features) == 0 {
		return nil, nil, nil, core.NewValidationError("features", "no feature names supplied")
	}
	if len(d.Batches) == 0 {
		return nil, nil, nil, core.NewValidationError("batches", "no batch labels supplied")
	}

	features := make([]core.FeatureKey, len(d.Features))
	for j, name := range d.Features {
		features[j] = core.FeatureKey(name)
	}
	var samples []core.SampleKey
	if len(d.Samples) > 0 {
		if len(d.Samples) != len(d.Data) {
			return nil, nil, nil, core.NewShapeError("samples", len(d.Samples), len(d.Data))
		}
		samples = make([]core.SampleKey, len(d.Samples))
		for i, name := range d.Samples {
			samples[i] = core.SampleKey(name)
		}
	}

	matrix := dataset.NewMatrix(d.Data, samples, features)
	if err := matrix.Validate(); err != nil {
		return nil, nil, nil, err
	}

	batches, err := dataset.NewBatchAssignment(d.Batches)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := batches.Validate(matrix.Rows()); err != nil {
		return nil, nil, nil, err
	}

	covs, err := d.covariates(matrix.Rows())
	if err != nil {
		return nil, nil, nil, err
	}
	return matrix, batches, covs, nil
}

// covariates builds the covariate set with columns in sorted name order,
// the same rule the jsonio reader applies, so a design is identical no
// matter which ingestion path delivered it.
func (d *MatrixDocument) covariates(rows int) (*dataset.CovariateSet, error) {
	if d.Covariates == nil {
		return nil, nil
	}
	covs := dataset.NewCovariateSet()
	for _, name := range sortedKeys(d.Covariates.Interest) {
		values := d.Covariates.Interest[name]
		if len(values) != rows {
			return nil, core.NewShapeError("covariate "+name, len(values), rows)
		}
		covs.AddInterest(name, values)
	}
	for _, name := range sortedKeys(d.Covariates.Nuisance) {
		values := d.Covariates.Nuisance[name]
		if len(values) != rows {
			return nil, core.NewShapeError("covariate "+name, len(values), rows)
		}
		covs.AddNuisance(name, values)
	}
	if covs.InterestCount() == 0 && covs.NuisanceCount() == 0 {
		return nil, nil
	}
	return covs, nil
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// documentFrom renders a matrix back into wire form, reusing the batch
// labels of the request the adjustment was computed for.
func documentFrom(m *dataset.Matrix, batches *dataset.BatchAssignment) MatrixDocument {
	samples := make([]string, len(m.SampleIDs))
	for i, s := range m.SampleIDs {
		samples[i] = s.String()
	}
	labels := make([]string, len(batches.Labels))
	for i, b := range batches.Labels {
		labels[i] = b.String()
	}
	features := make([]string, len(m.Features))
	for j, f := range m.Features {
		features[j] = f.String()
	}
	return MatrixDocument{
		Samples:  samples,
		Batches:  labels,
		Features: features,
		Data:     m.Data,
	}
}

func fitResponseFrom(model *combat.Model, runID core.RunID, warnings []string, runtimeMs int64) FitResponse {
	samples := 0
	for _, b := range model.Batches {
		samples += b.Size
	}
	return FitResponse{
		ModelID:     model.ID,
		RunID:       runID,
		Fingerprint: model.Fingerprint,
		Features:    model.FeatureCount(),
		Batches:     model.K(),
		Samples:     samples,
		Converged:   model.AllConverged(),
		Warnings:    warnings,
		RuntimeMs:   runtimeMs,
	}
}
