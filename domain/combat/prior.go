package combat

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// hyperPrior carries the empirical-Bayes prior for one batch: a normal
// prior on location and an inverse-gamma prior on scale, both estimated
// by method-of-moments across features.
type hyperPrior struct {
	gammaBar float64 // normal prior mean
	tau2     float64 // normal prior variance
	lambda   float64 // inverse-gamma shape
	theta    float64 // inverse-gamma scale
	diffuse  bool    // scale prior fell back to the diffuse default
}

// Diffuse scale prior used when the cross-feature variance of delta2Hat
// is zero (single feature, or identical scale estimates everywhere).
// lambda = 1 makes the posterior denominator n/2 and theta = 0 removes
// the prior sum-of-squares term, so the data alone drive the update.
const (
	diffuseLambda = 1
	diffuseTheta  = 0
)

// estimatePrior derives the hyperparameters for one batch from its raw
// feature-wise estimates.
func estimatePrior(gammaHat, delta2Hat []float64) (hyperPrior, error) {
	var p hyperPrior

	gBar, err := stats.Mean(gammaHat)
	if err != nil {
		return p, fmt.Errorf("location prior mean: %w", err)
	}
	p.gammaBar = gBar

	// A single feature has no cross-feature spread: tau2 = 0 pins the
	// location posterior to gammaBar, and the scale prior goes diffuse.
	if len(gammaHat) < 2 {
		p.tau2 = 0
		p.lambda = diffuseLambda
		p.theta = diffuseTheta
		p.diffuse = true
		return p, nil
	}

	t2, err := stats.SampleVariance(gammaHat)
	if err != nil {
		return p, fmt.Errorf("location prior variance: %w", err)
	}
	p.tau2 = t2

	m, err := stats.Mean(delta2Hat)
	if err != nil {
		return p, fmt.Errorf("scale prior mean: %w", err)
	}
	v, err := stats.SampleVariance(delta2Hat)
	if err != nil {
		return p, fmt.Errorf("scale prior variance: %w", err)
	}

	// Rounding-level spread is zero spread: inverting the moment
	// equations on it would fabricate an absurdly concentrated prior.
	if v <= 1e-12*m*m {
		p.lambda = diffuseLambda
		p.theta = diffuseTheta
		p.diffuse = true
		return p, nil
	}

	// Invert the inverse-gamma moment equations so the prior matches the
	// observed first two moments of delta2Hat.
	p.lambda = (2*v + m*m) / v
	p.theta = (m*m*m + m*v) / v
	return p, nil
}
