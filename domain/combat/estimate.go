package combat

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"gocombat/domain/dataset"
)

// batchEstimates are the raw, unshrunk per-batch location and scale
// estimates the solver pulls toward the prior. Row k aligns with the
// batch groups used to build the design.
type batchEstimates struct {
	gammaHat  [][]float64 // batch mean of Z, per feature
	delta2Hat [][]float64 // batch sample variance of Z (n_k - 1), per feature
}

// estimateLocationScale computes gammaHat and delta2Hat over the
// standardized residuals, one row slice per batch.
func estimateLocationScale(z [][]float64, groups []dataset.BatchGroup, feats int) (*batchEstimates, error) {
	est := &batchEstimates{
		gammaHat:  make([][]float64, len(groups)),
		delta2Hat: make([][]float64, len(groups)),
	}

	for k, g := range groups {
		est.gammaHat[k] = make([]float64, feats)
		est.delta2Hat[k] = make([]float64, feats)

		col := make([]float64, len(g.Rows))
		for j := 0; j < feats; j++ {
			for idx, i := range g.Rows {
				col[idx] = z[i][j]
			}
			m, err := stats.Mean(col)
			if err != nil {
				return nil, fmt.Errorf("batch %q location estimate: %w", g.Key, err)
			}
			v, err := stats.SampleVariance(col)
			if err != nil {
				return nil, fmt.Errorf("batch %q scale estimate: %w", g.Key, err)
			}
			est.gammaHat[k][j] = m
			est.delta2Hat[k][j] = v
		}
	}

	return est, nil
}
