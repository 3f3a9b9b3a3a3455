package combat

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"gocombat/domain/core"
	"gocombat/domain/dataset"
)

// standardization holds the per-feature constants and coefficient blocks
// of the full-design OLS fit. It is everything needed to reproduce the
// standardized residual matrix Z for any conformant response matrix.
type standardization struct {
	grandMean    []float64   // per feature, batch-size-weighted intercept
	pooledVar    []float64   // per feature, residual variance pooled over all rows
	betaInterest [][]float64 // interest coefficient rows, one per covariate
	betaNuisance [][]float64 // nuisance coefficient rows, one per covariate
	batchMeans   [][]float64 // fitted batch intercepts, one row per batch
}

// fitStandardization solves the full design by least squares and derives
// the standardization constants. A rank-deficient design surfaces the
// gonum condition failure as a validation error; it is never silently
// regularized away.
func fitStandardization(y *dataset.Matrix, d *design) (*standardization, error) {
	rows, feats := y.Rows(), y.Cols()

	flat := make([]float64, 0, rows*feats)
	for _, row := range y.Data {
		flat = append(flat, row...)
	}
	response := mat.NewDense(rows, feats, flat)

	var coef mat.Dense
	if err := coef.Solve(d.matrix, response); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, core.NewRankError(err)
		}
		return nil, fmt.Errorf("least squares solve: %w", err)
	}

	s := &standardization{
		grandMean:    make([]float64, feats),
		pooledVar:    make([]float64, feats),
		betaInterest: make([][]float64, d.pInterest),
		betaNuisance: make([][]float64, d.qNuisance),
		batchMeans:   make([][]float64, d.nBatches),
	}

	for k := 0; k < d.nBatches; k++ {
		s.batchMeans[k] = make([]float64, feats)
		weight := float64(len(d.groups[k].Rows)) / float64(rows)
		for j := 0; j < feats; j++ {
			s.batchMeans[k][j] = coef.At(k, j)
			s.grandMean[j] += weight * coef.At(k, j)
		}
	}
	for p := 0; p < d.pInterest; p++ {
		s.betaInterest[p] = make([]float64, feats)
		for j := 0; j < feats; j++ {
			s.betaInterest[p][j] = coef.At(d.interestCol(p), j)
		}
	}
	for q := 0; q < d.qNuisance; q++ {
		s.betaNuisance[q] = make([]float64, feats)
		for j := 0; j < feats; j++ {
			s.betaNuisance[q][j] = coef.At(d.nuisanceCol(q), j)
		}
	}

	// Pooled variance over the residuals of the full fit, batch
	// intercepts included, denominator = total observation count.
	var fitted mat.Dense
	fitted.Mul(d.matrix, &coef)
	for j := 0; j < feats; j++ {
		var ss, msq float64
		for i := 0; i < rows; i++ {
			r := response.At(i, j) - fitted.At(i, j)
			ss += r * r
			msq += response.At(i, j) * response.At(i, j)
		}
		s.pooledVar[j] = ss / float64(rows)
		// A feature the design fits exactly leaves only rounding dust in
		// the residuals; compare against the column's own magnitude so
		// that dust is treated as zero variance.
		if s.pooledVar[j] <= 1e-24*(msq/float64(rows)) {
			return nil, fmt.Errorf("%w: feature %q", core.ErrZeroVariance, y.Features[j])
		}
	}

	return s, nil
}

// standardize maps a response matrix to standardized residuals:
// Z = (Y - grand_mean - X*betaInterest - C*betaNuisance) / sqrt(pooled_var).
// Batch shifts stay in Z; they are what the solver estimates.
func (s *standardization) standardize(y *dataset.Matrix, covs *dataset.CovariateSet) [][]float64 {
	rows, feats := y.Rows(), y.Cols()
	z := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		z[i] = make([]float64, feats)
		for j := 0; j < feats; j++ {
			v := y.Data[i][j] - s.grandMean[j]
			v -= s.covariateEffect(covs, i, j)
			z[i][j] = v / math.Sqrt(s.pooledVar[j])
		}
	}
	return z
}

// covariateEffect is the fitted interest plus nuisance contribution for
// one observation and feature
func (s *standardization) covariateEffect(covs *dataset.CovariateSet, i, j int) float64 {
	if covs == nil {
		return 0
	}
	var v float64
	for p, col := range covs.Interest {
		v += col.Values[i] * s.betaInterest[p][j]
	}
	for q, col := range covs.Nuisance {
		v += col.Values[i] * s.betaNuisance[q][j]
	}
	return v
}

// interestEffect is the fitted interest-only contribution, added back in
// preserve-interest mode
func (s *standardization) interestEffect(covs *dataset.CovariateSet, i, j int) float64 {
	if covs == nil {
		return 0
	}
	var v float64
	for p, col := range covs.Interest {
		v += col.Values[i] * s.betaInterest[p][j]
	}
	return v
}
