package combat

import (
	"math"

	"gocombat/domain/dataset"
)

// applyAdjustment removes the fitted batch effects from standardized
// residuals and rescales back to the original units:
//
//	adj = (z - gamma[k]) / sqrt(delta2[k]) * sqrt(pooled_var) + grand_mean
//
// In preserve-interest mode the fitted interest effects return on top;
// nuisance effects never do. rowBatch maps each row to its fit-order
// batch index.
func applyAdjustment(m *Model, s *standardization, z [][]float64, y *dataset.Matrix, rowBatch []int, covs *dataset.CovariateSet) *dataset.Matrix {
	out := y.Clone()
	feats := y.Cols()

	for i := range z {
		k := rowBatch[i]
		for j := 0; j < feats; j++ {
			v := (z[i][j] - m.Gamma[k][j]) / math.Sqrt(m.Delta2[k][j])
			v = v*math.Sqrt(m.PooledVar[j]) + m.GrandMean[j]
			if m.Config.Mode == ModePreserveInterest {
				v += s.interestEffect(covs, i, j)
			}
			out.Data[i][j] = v
		}
	}
	return out
}
