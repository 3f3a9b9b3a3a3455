package combat

import (
	"errors"
	"math"
	"testing"

	"gocombat/domain/core"
	"gocombat/domain/dataset"
)

func twoBatchMatrix(t *testing.T, values []float64, labels []string) (*dataset.Matrix, []dataset.BatchGroup) {
	t.Helper()
	data := make([][]float64, len(values))
	for i, v := range values {
		data[i] = []float64{v}
	}
	y := dataset.NewMatrix(data, nil, []core.FeatureKey{"g0"})
	b, err := dataset.NewBatchAssignment(labels)
	if err != nil {
		t.Fatalf("batch assignment: %v", err)
	}
	return y, b.Groups()
}

func TestFitStandardization_ClosedFormTwoBatches(t *testing.T) {
	// Batch means 2 and 7, weighted grand mean 4.5, pooled residual
	// variance (1+1+4+4)/4 = 2.5.
	y, groups := twoBatchMatrix(t, []float64{1, 3, 5, 9}, []string{"a", "a", "b", "b"})

	d := buildDesign(y.Rows(), groups, nil)
	s, err := fitStandardization(y, d)
	if err != nil {
		t.Fatalf("fitStandardization: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"batch a mean", s.batchMeans[0][0], 2},
		{"batch b mean", s.batchMeans[1][0], 7},
		{"grand mean", s.grandMean[0], 4.5},
		{"pooled variance", s.pooledVar[0], 2.5},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-10 {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}

	z := s.standardize(y, nil)
	want := (1 - 4.5) / math.Sqrt(2.5)
	if math.Abs(z[0][0]-want) > 1e-10 {
		t.Errorf("z[0][0]: got %v, want %v", z[0][0], want)
	}
}

func TestFitStandardization_CovariateCoefficientsExact(t *testing.T) {
	// Residuals are constructed orthogonal to every design column, so the
	// least-squares solution recovers the generating coefficients exactly:
	// intercepts 5 and 7, slope 2, pooled variance 4/6.
	x := []float64{0, 1, 2, 3, 4, 5}
	e := []float64{1, 0, -1, -1, 0, 1}
	values := make([]float64, 6)
	for i := range values {
		intercept := 5.0
		if i >= 3 {
			intercept = 7.0
		}
		values[i] = intercept + 2*x[i] + e[i]
	}
	y, groups := twoBatchMatrix(t, values, []string{"a", "a", "a", "b", "b", "b"})

	covs := dataset.NewCovariateSet()
	covs.AddInterest("dose", x)

	d := buildDesign(y.Rows(), groups, covs)
	s, err := fitStandardization(y, d)
	if err != nil {
		t.Fatalf("fitStandardization: %v", err)
	}

	if math.Abs(s.batchMeans[0][0]-5) > 1e-9 {
		t.Errorf("batch a intercept: got %v, want 5", s.batchMeans[0][0])
	}
	if math.Abs(s.batchMeans[1][0]-7) > 1e-9 {
		t.Errorf("batch b intercept: got %v, want 7", s.batchMeans[1][0])
	}
	if math.Abs(s.betaInterest[0][0]-2) > 1e-9 {
		t.Errorf("dose coefficient: got %v, want 2", s.betaInterest[0][0])
	}
	if math.Abs(s.grandMean[0]-6) > 1e-9 {
		t.Errorf("grand mean: got %v, want 6", s.grandMean[0])
	}
	if math.Abs(s.pooledVar[0]-4.0/6.0) > 1e-9 {
		t.Errorf("pooled variance: got %v, want %v", s.pooledVar[0], 4.0/6.0)
	}

	z := s.standardize(y, covs)
	sigma := math.Sqrt(4.0 / 6.0)
	wantZ1 := (values[1] - 6 - 2*x[1]) / sigma
	if math.Abs(z[1][0]-wantZ1) > 1e-9 {
		t.Errorf("z[1][0]: got %v, want %v", z[1][0], wantZ1)
	}
}

func TestFitStandardization_AllOnesCovariateIsRankDeficient(t *testing.T) {
	// The batch indicators already sum to the intercept, so a constant
	// covariate column makes the design singular.
	y, groups := twoBatchMatrix(t, []float64{1, 3, 5, 9}, []string{"a", "a", "b", "b"})

	covs := dataset.NewCovariateSet()
	covs.AddInterest("ones", []float64{1, 1, 1, 1})

	d := buildDesign(y.Rows(), groups, covs)
	if _, err := fitStandardization(y, d); !errors.Is(err, core.ErrRankDeficient) {
		t.Fatalf("expected ErrRankDeficient, got %v", err)
	}
}

func TestFitStandardization_RejectsConstantFeature(t *testing.T) {
	data := [][]float64{
		{1, 5}, {3, 5},
		{5, 5}, {9, 5},
	}
	y := dataset.NewMatrix(data, nil, []core.FeatureKey{"g0", "flat"})
	b, err := dataset.NewBatchAssignment([]string{"a", "a", "b", "b"})
	if err != nil {
		t.Fatalf("batch assignment: %v", err)
	}

	d := buildDesign(y.Rows(), b.Groups(), nil)
	if _, err := fitStandardization(y, d); !errors.Is(err, core.ErrZeroVariance) {
		t.Fatalf("expected ErrZeroVariance for a constant feature, got %v", err)
	}
}

func TestEstimateLocationScale_ClosedForm(t *testing.T) {
	z := [][]float64{{1}, {3}, {-1}, {0}, {1}}
	b, err := dataset.NewBatchAssignment([]string{"a", "a", "b", "b", "b"})
	if err != nil {
		t.Fatalf("batch assignment: %v", err)
	}

	est, err := estimateLocationScale(z, b.Groups(), 1)
	if err != nil {
		t.Fatalf("estimateLocationScale: %v", err)
	}

	if math.Abs(est.gammaHat[0][0]-2) > 1e-12 {
		t.Errorf("batch a gammaHat: got %v, want 2", est.gammaHat[0][0])
	}
	if math.Abs(est.delta2Hat[0][0]-2) > 1e-12 {
		t.Errorf("batch a delta2Hat: got %v, want 2", est.delta2Hat[0][0])
	}
	if math.Abs(est.gammaHat[1][0]-0) > 1e-12 {
		t.Errorf("batch b gammaHat: got %v, want 0", est.gammaHat[1][0])
	}
	if math.Abs(est.delta2Hat[1][0]-1) > 1e-12 {
		t.Errorf("batch b delta2Hat: got %v, want 1", est.delta2Hat[1][0])
	}
}
