package combat

import (
	"math"
	"testing"
)

func TestEstimatePrior_MomentInversion(t *testing.T) {
	// delta2Hat mean 2, variance 1: lambda = (2+4)/1 = 6, theta = (8+2)/1 = 10.
	// gammaHat mean 0.2, sample variance 0.01.
	p, err := estimatePrior([]float64{0.1, 0.2, 0.3}, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("estimatePrior: %v", err)
	}

	if math.Abs(p.gammaBar-0.2) > 1e-12 {
		t.Errorf("gammaBar: got %v, want 0.2", p.gammaBar)
	}
	if math.Abs(p.tau2-0.01) > 1e-12 {
		t.Errorf("tau2: got %v, want 0.01", p.tau2)
	}
	if math.Abs(p.lambda-6) > 1e-12 {
		t.Errorf("lambda: got %v, want 6", p.lambda)
	}
	if math.Abs(p.theta-10) > 1e-12 {
		t.Errorf("theta: got %v, want 10", p.theta)
	}
	if p.diffuse {
		t.Error("spread scale estimates must not fall back to the diffuse prior")
	}
}

func TestEstimatePrior_DiffuseWhenScaleSpreadVanishes(t *testing.T) {
	cases := []struct {
		name      string
		delta2Hat []float64
	}{
		{"identical", []float64{2, 2, 2}},
		{"rounding dust", []float64{2, 2 + 1e-13, 2 - 1e-13}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := estimatePrior([]float64{0.1, 0.2, 0.3}, c.delta2Hat)
			if err != nil {
				t.Fatalf("estimatePrior: %v", err)
			}
			if !p.diffuse {
				t.Fatal("expected diffuse fallback")
			}
			if p.lambda != diffuseLambda || p.theta != diffuseTheta {
				t.Fatalf("diffuse prior got lambda=%v theta=%v", p.lambda, p.theta)
			}
		})
	}
}

func TestEstimatePrior_SingleFeature(t *testing.T) {
	p, err := estimatePrior([]float64{0.5}, []float64{1.2})
	if err != nil {
		t.Fatalf("estimatePrior: %v", err)
	}
	if p.tau2 != 0 {
		t.Errorf("tau2: got %v, want 0 with one feature", p.tau2)
	}
	if !p.diffuse {
		t.Error("one feature gives no scale spread, expected diffuse fallback")
	}
	if math.Abs(p.gammaBar-0.5) > 1e-12 {
		t.Errorf("gammaBar: got %v, want 0.5", p.gammaBar)
	}
}
