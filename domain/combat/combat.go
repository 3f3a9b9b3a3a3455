// Package combat implements parametric ComBat empirical-Bayes batch-effect
// harmonization. A fit runs per-feature least squares over the combined
// batch/covariate design, standardizes the response, estimates raw per-batch
// location and scale shifts, and shrinks them toward method-of-moments
// priors with a bounded fixed-point iteration. The fitted model then
// transforms any conformant matrix drawn from the same batch universe.
package combat

import (
	"context"

	"gocombat/domain/core"
	"gocombat/domain/dataset"
)

// Harmonizer exposes fit and transform over a fixed configuration.
// It carries no state between calls; every Fit returns a fresh Model.
type Harmonizer struct {
	cfg Config
}

// New validates the configuration and returns a Harmonizer. Zero-valued
// config fields pick up defaults before validation.
func New(cfg Config) (*Harmonizer, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Harmonizer{cfg: cfg}, nil
}

// Config returns the normalized configuration in use
func (h *Harmonizer) Config() Config {
	return h.cfg
}

// Fit estimates batch-effect parameters from a response matrix, batch
// assignment, and optional covariates. Validation failures abort before
// any estimation; no partial model is ever returned. Non-convergence of
// a batch is not an error: it is recorded on the model's convergence
// reports for the caller to inspect.
func (h *Harmonizer) Fit(ctx context.Context, y *dataset.Matrix, batches *dataset.BatchAssignment, covs *dataset.CovariateSet) (*Model, error) {
	if err := validateFitInputs(y, batches, covs); err != nil {
		return nil, err
	}

	groups := batches.Groups()
	d := buildDesign(y.Rows(), groups, covs)

	s, err := fitStandardization(y, d)
	if err != nil {
		return nil, err
	}
	z := s.standardize(y, covs)

	est, err := estimateLocationScale(z, groups, y.Cols())
	if err != nil {
		return nil, err
	}

	priors := make([]hyperPrior, len(groups))
	for k := range groups {
		priors[k], err = estimatePrior(est.gammaHat[k], est.delta2Hat[k])
		if err != nil {
			return nil, err
		}
	}

	solutions, err := solveAll(ctx, z, groups, est, priors, h.cfg)
	if err != nil {
		return nil, err
	}

	return assembleModel(h.cfg, y, groups, covs, s, est, priors, solutions), nil
}

// Transform harmonizes a matrix using a fitted model. The matrix must
// carry the model's exact feature set, batch labels must come from the
// fitted universe, and covariate columns must match fit-time structure.
// The input is not mutated.
func (h *Harmonizer) Transform(ctx context.Context, m *Model, y *dataset.Matrix, batches *dataset.BatchAssignment, covs *dataset.CovariateSet) (*dataset.Matrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, core.NewValidationError("model", "transform requires a fitted model")
	}
	if err := m.validateTransformInputs(y, batches, covs); err != nil {
		return nil, err
	}

	rowBatch := make([]int, y.Rows())
	for i, key := range batches.Labels {
		k, ok := m.BatchIndex(key)
		if !ok {
			return nil, core.NewUnknownBatchError(key.String())
		}
		rowBatch[i] = k
	}

	s := m.standardizationView()
	z := s.standardize(y, covs)
	return applyAdjustment(m, s, z, y, rowBatch, covs), nil
}

// FitTransform is exactly Fit followed by Transform on the same inputs,
// producing bit-for-bit the output of the two calls made separately.
func (h *Harmonizer) FitTransform(ctx context.Context, y *dataset.Matrix, batches *dataset.BatchAssignment, covs *dataset.CovariateSet) (*Model, *dataset.Matrix, error) {
	m, err := h.Fit(ctx, y, batches, covs)
	if err != nil {
		return nil, nil, err
	}
	adjusted, err := h.Transform(ctx, m, y, batches, covs)
	if err != nil {
		return nil, nil, err
	}
	return m, adjusted, nil
}

func validateFitInputs(y *dataset.Matrix, batches *dataset.BatchAssignment, covs *dataset.CovariateSet) error {
	if err := y.Validate(); err != nil {
		return err
	}
	if err := batches.Validate(y.Rows()); err != nil {
		return err
	}
	if err := batches.ValidateMinSizes(); err != nil {
		return err
	}
	return covs.Validate(y.Rows())
}

func assembleModel(cfg Config, y *dataset.Matrix, groups []dataset.BatchGroup, covs *dataset.CovariateSet, s *standardization, est *batchEstimates, priors []hyperPrior, solutions []batchSolution) *Model {
	k := len(groups)
	m := &Model{
		ID:        core.ModelID(core.NewID()),
		CreatedAt: core.Now(),
		Config:    cfg,

		Features: append([]core.FeatureKey(nil), y.Features...),
		Batches:  make([]BatchInfo, k),

		InterestNames: interestNames(covs),
		NuisanceNames: nuisanceNames(covs),

		GrandMean:    s.grandMean,
		PooledVar:    s.pooledVar,
		BetaInterest: s.betaInterest,
		BetaNuisance: s.betaNuisance,

		GammaHat:  est.gammaHat,
		Delta2Hat: est.delta2Hat,
		Gamma:     make([][]float64, k),
		Delta2:    make([][]float64, k),

		GammaBar: make([]float64, k),
		Tau2:     make([]float64, k),
		Lambda:   make([]float64, k),
		Theta:    make([]float64, k),

		Convergence: make([]BatchConvergence, k),

		InputFingerprint: y.Fingerprint(),
	}

	for i, g := range groups {
		m.Batches[i] = BatchInfo{Key: g.Key, Size: len(g.Rows)}
		m.Gamma[i] = solutions[i].gamma
		m.Delta2[i] = solutions[i].delta2
		m.GammaBar[i] = priors[i].gammaBar
		m.Tau2[i] = priors[i].tau2
		m.Lambda[i] = priors[i].lambda
		m.Theta[i] = priors[i].theta
		m.Convergence[i] = solutions[i].report
	}

	m.Fingerprint = m.computeFingerprint()
	return m
}
