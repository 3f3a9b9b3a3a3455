package app

import (
	"context"
	"fmt"
	"time"

	"gocombat/domain/combat"
	"gocombat/domain/core"
	"gocombat/domain/dataset"
	"gocombat/internal"
	"gocombat/ports"
)

// HarmonizationService orchestrates fit and transform calls against the
// model and run repositories. It owns the default harmonizer settings;
// callers may override individual knobs per request.
type HarmonizationService struct {
	base   combat.Config
	models ports.ModelRepository
	runs   ports.RunRepository
	logger *internal.Logger
}

// NewHarmonizationService creates a harmonization service
func NewHarmonizationService(base combat.Config, models ports.ModelRepository, runs ports.RunRepository, logger *internal.Logger) *HarmonizationService {
	base.Normalize()
	return &HarmonizationService{
		base:   base,
		models: models,
		runs:   runs,
		logger: logger.WithComponent("harmonize"),
	}
}

// Options overrides individual harmonizer settings for a single request.
// Zero values keep the service defaults.
type Options struct {
	Tolerance     float64 `json:"tolerance,omitempty"`
	MaxIterations int     `json:"max_iterations,omitempty"`
	Mode          string  `json:"mode,omitempty"`
}

// FitRequest carries a training matrix with its batch labels and covariates
type FitRequest struct {
	Data       *dataset.Matrix
	Batches    *dataset.BatchAssignment
	Covariates *dataset.CovariateSet
	Options    Options
}

// FitResult reports the stored model together with the run audit entry
type FitResult struct {
	Model     *combat.Model
	RunID     core.RunID
	Warnings  []string
	RuntimeMs int64
}

// TransformRequest applies a stored model to new data
type TransformRequest struct {
	ModelID    core.ModelID
	Data       *dataset.Matrix
	Batches    *dataset.BatchAssignment
	Covariates *dataset.CovariateSet
}

// TransformResult carries the adjusted matrix
type TransformResult struct {
	ModelID   core.ModelID
	Adjusted  *dataset.Matrix
	RunID     core.RunID
	RuntimeMs int64
}

// FitTransformResult reports a combined fit and adjustment
type FitTransformResult struct {
	Model     *combat.Model
	Adjusted  *dataset.Matrix
	RunID     core.RunID
	Warnings  []string
	RuntimeMs int64
}

// Fit estimates batch parameters from the request data and stores the model
func (s *HarmonizationService) Fit(ctx context.Context, req FitRequest) (*FitResult, error) {
	start := time.Now()

	h, err := combat.New(s.effectiveConfig(req.Options))
	if err != nil {
		return nil, err
	}

	model, err := h.Fit(ctx, req.Data, req.Batches, req.Covariates)
	if err != nil {
		return nil, fmt.Errorf("fit failed: %w", err)
	}

	warnings := convergenceWarnings(model)
	for _, w := range warnings {
		s.logger.Warn("%s", w)
	}

	if err := s.models.SaveModel(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to store model: %w", err)
	}

	runID := s.recordRun(ctx, ports.RunFit, model.ID, req.Data.Rows(), start, model.InputFingerprint, "", warnings)

	s.logger.Info("fitted model %s: %d features, %d batches, %d samples in %dms",
		model.ID, model.FeatureCount(), model.K(), req.Data.Rows(), time.Since(start).Milliseconds())

	return &FitResult{
		Model:     model,
		RunID:     runID,
		Warnings:  warnings,
		RuntimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// Transform adjusts new data with a previously stored model
func (s *HarmonizationService) Transform(ctx context.Context, req TransformRequest) (*TransformResult, error) {
	start := time.Now()

	model, err := s.models.GetModel(ctx, req.ModelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	h, err := combat.New(model.Config)
	if err != nil {
		return nil, fmt.Errorf("stored model %s carries an invalid config: %w", req.ModelID, err)
	}

	adjusted, err := h.Transform(ctx, model, req.Data, req.Batches, req.Covariates)
	if err != nil {
		return nil, fmt.Errorf("transform failed: %w", err)
	}

	runID := s.recordRun(ctx, ports.RunTransform, model.ID, req.Data.Rows(), start, req.Data.Fingerprint(), adjusted.Fingerprint(), nil)

	s.logger.Info("transformed %d samples with model %s in %dms",
		req.Data.Rows(), model.ID, time.Since(start).Milliseconds())

	return &TransformResult{
		ModelID:   model.ID,
		Adjusted:  adjusted,
		RunID:     runID,
		RuntimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// FitTransform fits on the request data and adjusts it in one call
func (s *HarmonizationService) FitTransform(ctx context.Context, req FitRequest) (*FitTransformResult, error) {
	start := time.Now()

	h, err := combat.New(s.effectiveConfig(req.Options))
	if err != nil {
		return nil, err
	}

	model, adjusted, err := h.FitTransform(ctx, req.Data, req.Batches, req.Covariates)
	if err != nil {
		return nil, fmt.Errorf("fit-transform failed: %w", err)
	}

	warnings := convergenceWarnings(model)
	for _, w := range warnings {
		s.logger.Warn("%s", w)
	}

	if err := s.models.SaveModel(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to store model: %w", err)
	}

	runID := s.recordRun(ctx, ports.RunFitTransform, model.ID, req.Data.Rows(), start, model.InputFingerprint, adjusted.Fingerprint(), warnings)

	s.logger.Info("fit-transformed model %s: %d features, %d batches, %d samples in %dms",
		model.ID, model.FeatureCount(), model.K(), req.Data.Rows(), time.Since(start).Milliseconds())

	return &FitTransformResult{
		Model:     model,
		Adjusted:  adjusted,
		RunID:     runID,
		Warnings:  warnings,
		RuntimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// GetModel loads a stored model by ID
func (s *HarmonizationService) GetModel(ctx context.Context, id core.ModelID) (*combat.Model, error) {
	return s.models.GetModel(ctx, id)
}

// ListModels returns stored model summaries, newest first
func (s *HarmonizationService) ListModels(ctx context.Context, filters ports.ModelFilters) ([]ports.ModelSummary, error) {
	return s.models.ListModels(ctx, filters)
}

// DeleteModel removes a stored model and its run history
func (s *HarmonizationService) DeleteModel(ctx context.Context, id core.ModelID) error {
	if err := s.models.DeleteModel(ctx, id); err != nil {
		return err
	}
	s.logger.Info("deleted model %s", id)
	return nil
}

// ListRuns returns the run audit entries of a model, newest first
func (s *HarmonizationService) ListRuns(ctx context.Context, modelID core.ModelID, limit int) ([]ports.RunRecord, error) {
	return s.runs.ListRuns(ctx, modelID, limit)
}

// effectiveConfig merges per-request overrides onto the service defaults
func (s *HarmonizationService) effectiveConfig(opts Options) combat.Config {
	cfg := s.base
	if opts.Tolerance != 0 {
		cfg.ConvergenceTolerance = opts.Tolerance
	}
	if opts.MaxIterations != 0 {
		cfg.MaxIterations = opts.MaxIterations
	}
	if opts.Mode != "" {
		cfg.Mode = combat.AdjustMode(opts.Mode)
	}
	return cfg
}

// recordRun appends the audit entry for one harmonization call. A failed
// write is logged rather than surfaced: the harmonization itself succeeded.
func (s *HarmonizationService) recordRun(ctx context.Context, kind ports.RunKind, modelID core.ModelID, rows int, start time.Time, input, output core.MatrixFingerprint, warnings []string) core.RunID {
	rec := &ports.RunRecord{
		ID:                core.RunID(core.NewID()),
		ModelID:           modelID,
		Kind:              kind,
		CreatedAt:         core.Now(),
		Rows:              rows,
		DurationMillis:    time.Since(start).Milliseconds(),
		InputFingerprint:  input,
		OutputFingerprint: output,
		Warnings:          warnings,
	}
	if err := s.runs.SaveRun(ctx, rec); err != nil {
		s.logger.Warn("failed to record %s run for model %s: %v", kind, modelID, err)
	}
	return rec.ID
}

func convergenceWarnings(m *combat.Model) []string {
	var out []string
	for _, c := range m.NonConverged() {
		out = append(out, fmt.Sprintf("batch %q did not reach tolerance after %d iterations (max delta %.3g)", c.Batch, c.Iterations, c.MaxDelta))
	}
	return out
}
